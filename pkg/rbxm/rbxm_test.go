package rbxm

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func refVal(ref int32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(ref))
	return b
}

func newClass(id uint32, name string, refs ...int32) *Class {
	return &Class{ID: id, Name: name, Refs: refs}
}

func namesProp(names ...string) *Property {
	p := &Property{Name: "Name", Type: 0x01}
	for _, n := range names {
		p.Values = append(p.Values, strVal(n))
	}
	return p
}

// animationModel 构造: KeyframeSequence(0) > Keyframe(1) > ObjectValue(2) -> Part(3)，Part 是第二个根
func animationModel(t *testing.T) []byte {
	t.Helper()

	seq := newClass(0, "KeyframeSequence", 0)
	seq.Props = []*Property{namesProp("Walk")}

	kf := newClass(1, "Keyframe", 1)
	kf.Props = []*Property{
		namesProp("Start"),
		{Name: "Time", Type: 0x04, Values: [][]byte{{0x3f, 0x80, 0x00, 0x00}}},
	}

	ov := newClass(2, "ObjectValue", 2)
	ov.Props = []*Property{
		namesProp("Target"),
		{Name: "Value", Type: typeReferent, Values: [][]byte{refVal(3)}},
	}

	part := newClass(3, "Part", 3)
	part.Props = []*Property{namesProp("Baseplate")}

	doc := &Document{
		Classes:   []*Class{seq, kf, ov, part},
		Instances: map[int32]*Instance{0: {}, 1: {}, 2: {}, 3: {}},
		Links:     []Link{{0, -1}, {1, 0}, {2, 1}, {3, -1}},
		Extra:     []chunk{{Name: "META", Data: []byte{0, 0, 0, 0}}},
	}
	data, err := doc.Encode()
	require.NoError(t, err)
	return data
}

func TestDecodeRoundTrip(t *testing.T) {
	data := animationModel(t)

	doc, err := Decode(data)
	require.NoError(t, err)
	assert.Len(t, doc.Classes, 4)
	assert.Len(t, doc.Instances, 4)
	require.Len(t, doc.Extra, 1)
	assert.Equal(t, "META", doc.Extra[0].Name)

	roots := doc.Roots()
	require.Len(t, roots, 2)
	assert.Equal(t, "KeyframeSequence", roots[0].Class.Name)
	assert.Equal(t, "Part", roots[1].Class.Name)
	assert.Equal(t, []int32{1}, doc.Instances[0].Children)
	assert.Equal(t, int32(1), doc.Instances[2].Parent)

	again, err := doc.Encode()
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestExtractAnimationBinary(t *testing.T) {
	out, err := ExtractAnimation(animationModel(t), FormatBinary)
	require.NoError(t, err)

	doc, err := Decode(out)
	require.NoError(t, err)
	require.Len(t, doc.Roots(), 1)
	assert.Len(t, doc.Instances, 3)
	assert.Len(t, doc.Classes, 3)

	for _, cls := range doc.Classes {
		assert.NotEqual(t, "Part", cls.Name)
		if cls.Name != "ObjectValue" {
			continue
		}
		for _, p := range cls.Props {
			if p.Name == "Value" {
				// 指向被删除的 Part 的引用变成 nil
				assert.Equal(t, refVal(-1), p.Values[0])
			}
		}
	}

	h, err := readHeader(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, int32(3), h.Classes)
	assert.Equal(t, int32(3), h.Instances)
}

func TestExtractAnimationSingleRootUnchanged(t *testing.T) {
	seq := newClass(0, "KeyframeSequence", 0)
	seq.Props = []*Property{namesProp("Idle")}
	doc := &Document{
		Classes:   []*Class{seq},
		Instances: map[int32]*Instance{0: {}},
		Links:     []Link{{0, -1}},
	}
	data, err := doc.Encode()
	require.NoError(t, err)

	out, err := ExtractAnimation(data, FormatBinary)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestExtractAnimationErrors(t *testing.T) {
	t.Run("not an animation", func(t *testing.T) {
		part := newClass(0, "Part", 0)
		doc := &Document{Classes: []*Class{part}, Instances: map[int32]*Instance{0: {}}, Links: []Link{{0, -1}}}
		data, err := doc.Encode()
		require.NoError(t, err)

		_, err = ExtractAnimation(data, FormatBinary)
		assert.ErrorIs(t, err, ErrNotAnimation)
	})

	t.Run("bad header", func(t *testing.T) {
		_, err := ExtractAnimation([]byte("definitely not a model"), FormatBinary)
		assert.ErrorIs(t, err, ErrBadHeader)
	})

	t.Run("empty model", func(t *testing.T) {
		data, err := (&Document{Instances: map[int32]*Instance{}}).Encode()
		require.NoError(t, err)
		_, err = ExtractAnimation(data, FormatBinary)
		assert.ErrorIs(t, err, ErrEmptyModel)
	})

	t.Run("unknown property in split class", func(t *testing.T) {
		seq := newClass(0, "KeyframeSequence", 0, 1)
		seq.Props = []*Property{{Name: "Mystery", Type: 0x11, Raw: []byte{1, 2, 3}}}
		doc := &Document{
			Classes:   []*Class{seq},
			Instances: map[int32]*Instance{0: {}, 1: {}},
			Links:     []Link{{0, -1}, {1, -1}},
		}
		data, err := doc.Encode()
		require.NoError(t, err)

		_, err = ExtractAnimation(data, FormatBinary)
		assert.ErrorIs(t, err, ErrUnsupportedProperty)
	})
}

func TestReadChunkZstd(t *testing.T) {
	payload := bytes.Repeat([]byte("keyframe"), 64)
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := enc.EncodeAll(payload, nil)
	require.NoError(t, enc.Close())

	var buf bytes.Buffer
	head := make([]byte, 16)
	copy(head, "SSTR")
	binary.LittleEndian.PutUint32(head[4:8], uint32(len(compressed)))
	binary.LittleEndian.PutUint32(head[8:12], uint32(len(payload)))
	buf.Write(head)
	buf.Write(compressed)

	c, err := readChunk(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "SSTR", c.Name)
	assert.Equal(t, payload, c.Data)
}

func TestRefsEncoding(t *testing.T) {
	refs := []int32{0, 5, 3, -1, 100000}
	var buf bytes.Buffer
	writeRefs(&buf, refs)

	r := newReader(buf.Bytes())
	assert.Equal(t, refs, r.refs(len(refs)))
	require.NoError(t, r.err)

	r = newReader(buf.Bytes()[:3])
	r.refs(len(refs))
	assert.ErrorIs(t, r.err, errTruncated)
}

const xmlModel = `<roblox version="4">
	<Meta name="ExplicitAutoJoints">true</Meta>
	<Item class="KeyframeSequence" referent="RBX0">
		<Properties>
			<string name="Name">Walk</string>
			<bool name="Loop">true</bool>
			<token name="Priority">2</token>
		</Properties>
		<Item class="Keyframe" referent="RBX1">
			<Properties><string name="Name">Start</string><float name="Time">1</float></Properties>
			<Item class="Pose" referent="RBX2">
				<Properties>
					<string name="Name">HumanoidRootPart</string>
					<CoordinateFrame name="CFrame">
						<X>1</X><Y>2</Y><Z>-3</Z>
						<R00>1</R00><R01>0</R01><R02>0</R02>
						<R10>0</R10><R11>1</R11><R12>0</R12>
						<R20>0</R20><R21>0</R21><R22>1</R22>
					</CoordinateFrame>
					<float name="Weight">1</float>
					<UniqueId name="UniqueId">44b188dace632b4702e9c68d004815fc</UniqueId>
				</Properties>
			</Item>
		</Item>
		<Item class="Keyframe" referent="RBX3">
			<Properties><float name="Time">2</float></Properties>
			<Item class="ObjectValue" referent="RBX4">
				<Properties><Ref name="Value">RBX1</Ref></Properties>
			</Item>
		</Item>
	</Item>
	<Item class="Part" referent="RBX5">
		<Properties><string name="Name">Baseplate</string></Properties>
	</Item>
</roblox>`

func propOf(cls *Class, name string) *Property {
	for _, p := range cls.Props {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func TestExtractAnimationXMLConvertsToBinary(t *testing.T) {
	out, err := ExtractAnimation([]byte(xmlModel), FormatXML)
	require.NoError(t, err)

	doc, err := Decode(out)
	require.NoError(t, err)

	// 只剩第一个 Item 及其后代
	roots := doc.Roots()
	require.Len(t, roots, 1)
	assert.Equal(t, "KeyframeSequence", roots[0].Class.Name)
	assert.Len(t, doc.Instances, 5)
	assert.Len(t, roots[0].Children, 2)
	assert.NotContains(t, string(out), "Baseplate")

	classes := make(map[string]*Class)
	for _, c := range doc.Classes {
		classes[c.Name] = c
	}
	require.Contains(t, classes, "Keyframe")
	require.Contains(t, classes, "Pose")

	seq := classes["KeyframeSequence"]
	assert.Equal(t, [][]byte{strVal("Walk")}, propOf(seq, "Name").Values)
	assert.Equal(t, [][]byte{{1}}, propOf(seq, "Loop").Values)
	assert.Equal(t, [][]byte{{0, 0, 0, 2}}, propOf(seq, "Priority").Values)

	// 1.0f 左旋一位: 0x3f800000 -> 0x7f000000
	kf := classes["Keyframe"]
	assert.Equal(t, [][]byte{{0x7f, 0, 0, 0}, {0x80, 0, 0, 0}}, propOf(kf, "Time").Values)
	// 第二个 Keyframe 没有 Name，补空字符串
	assert.Equal(t, [][]byte{strVal("Start"), strVal("")}, propOf(kf, "Name").Values)

	pose := classes["Pose"]
	cf := propOf(pose, "CFrame")
	require.NotNil(t, cf)
	assert.Equal(t, byte(typeCFrame), cf.Type)
	require.Len(t, cf.Values[0], 1+36+12)
	assert.Equal(t, rotatedFloat(-3), cf.Values[0][37+8:])
	assert.Nil(t, propOf(pose, "UniqueId"), "unsupported property types are dropped")

	// 引用指向新的编号
	ov := classes["ObjectValue"]
	kfRef := kf.Refs[0]
	assert.Equal(t, [][]byte{refVal(kfRef)}, propOf(ov, "Value").Values)

	// <Meta> 保留为 META chunk
	require.Len(t, doc.Extra, 1)
	assert.Equal(t, "META", doc.Extra[0].Name)
	assert.Contains(t, string(doc.Extra[0].Data), "ExplicitAutoJoints")
}

func TestExtractAnimationXMLErrors(t *testing.T) {
	_, err := ExtractAnimation([]byte(`<roblox><Item class="Model"></Item></roblox>`), FormatXML)
	assert.ErrorIs(t, err, ErrNotAnimation)

	_, err = ExtractAnimation([]byte(`<roblox></roblox>`), FormatXML)
	assert.ErrorIs(t, err, ErrEmptyModel)

	_, err = ExtractAnimation([]byte(`<model><Item class="KeyframeSequence"/></model>`), FormatXML)
	assert.Error(t, err)

	_, err = ExtractAnimation([]byte(`<roblox><Item class="KeyframeSequence"><Properties><float name="Time">fast</float></Properties></Item></roblox>`), FormatXML)
	assert.Error(t, err)
}
