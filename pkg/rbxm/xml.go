package rbxm

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// xmlNode 是 rbxmx 的通用元素树
type xmlNode struct {
	Name     string
	Attrs    map[string]string
	Text     string
	Children []*xmlNode
}

func (n *xmlNode) child(name string) *xmlNode {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// parseXMLTree 解析整个文档，根元素必须是 <roblox>
func parseXMLTree(data []byte) (*xmlNode, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false

	var root *xmlNode
	var stack []*xmlNode
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid model xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &xmlNode{Name: t.Name.Local, Attrs: make(map[string]string, len(t.Attr))}
			for _, a := range t.Attr {
				n.Attrs[a.Name.Local] = a.Value
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, errors.New("invalid model xml: multiple root elements")
				}
				if n.Name != "roblox" {
					return nil, fmt.Errorf("invalid model xml: root element is <%s>, want <roblox>", n.Name)
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			}
			stack = append(stack, n)
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if root == nil || len(stack) != 0 {
		return nil, errors.New("invalid model xml: unexpected end of document")
	}
	return root, nil
}

// xmlValue 是一个已经编码成二进制格式的属性值
type xmlValue struct {
	typ  byte
	data []byte
	ref  string // 引用类型先记下 referent，编号确定后再解析
}

// xmlInstance 是展开后的一个实例
type xmlInstance struct {
	class    string
	referent string
	props    map[string]xmlValue
	parent   int32
}

// xmlToBinary 把 rbxmx 中第一个顶层 Item (必须是 KeyframeSequence) 转成二进制模型
func xmlToBinary(data []byte) ([]byte, error) {
	root, err := parseXMLTree(data)
	if err != nil {
		return nil, err
	}

	var first *xmlNode
	doc := &Document{Instances: make(map[int32]*Instance)}
	var meta [][2]string
	for _, c := range root.Children {
		switch c.Name {
		case "Item":
			if first == nil {
				first = c
			}
		case "Meta":
			meta = append(meta, [2]string{c.Attrs["name"], c.Text})
		}
	}
	if first == nil {
		return nil, ErrEmptyModel
	}
	if first.Attrs["class"] != animationClass {
		return nil, ErrNotAnimation
	}

	// 1. 深度优先展开，父节点在子节点之前
	var insts []*xmlInstance
	byReferent := make(map[string]int32)
	var visit func(item *xmlNode, parent int32) error
	visit = func(item *xmlNode, parent int32) error {
		ref := int32(len(insts))
		inst := &xmlInstance{class: item.Attrs["class"], referent: item.Attrs["referent"], parent: parent, props: make(map[string]xmlValue)}
		if inst.class == "" {
			return errors.New("invalid model xml: <Item> without class")
		}
		insts = append(insts, inst)
		if inst.referent != "" {
			byReferent[inst.referent] = ref
		}
		if props := item.child("Properties"); props != nil {
			for _, p := range props.Children {
				name := p.Attrs["name"]
				v, err := encodeXMLProperty(p)
				if errors.Is(err, ErrUnsupportedProperty) {
					log.WithField("property", inst.class+"."+name).Debug("dropping xml property with unsupported type")
					continue
				}
				if err != nil {
					return fmt.Errorf("%s.%s: %w", inst.class, name, err)
				}
				inst.props[name] = v
			}
		}
		for _, c := range item.Children {
			if c.Name == "Item" {
				if err := visit(c, ref); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := visit(first, -1); err != nil {
		return nil, err
	}

	// 2. 按类出现的顺序建 INST，属性取并集，缺失的用默认值
	classes := make(map[string]*Class)
	propTypes := make(map[string]map[string]byte)
	for ref, inst := range insts {
		cls, ok := classes[inst.class]
		if !ok {
			cls = &Class{ID: uint32(len(doc.Classes)), Name: inst.class, instances: make(map[int32]int)}
			classes[inst.class] = cls
			propTypes[inst.class] = make(map[string]byte)
			doc.Classes = append(doc.Classes, cls)
		}
		cls.instances[int32(ref)] = len(cls.Refs)
		cls.Refs = append(cls.Refs, int32(ref))
		doc.Instances[int32(ref)] = &Instance{Ref: int32(ref), Class: cls, Parent: inst.parent}
		if inst.parent >= 0 {
			parent := doc.Instances[inst.parent]
			parent.Children = append(parent.Children, int32(ref))
		}
		doc.Links = append(doc.Links, Link{Child: int32(ref), Parent: inst.parent})

		for name, v := range inst.props {
			if t, seen := propTypes[inst.class][name]; seen && t != v.typ {
				return nil, fmt.Errorf("%s.%s has conflicting types 0x%02x and 0x%02x", inst.class, name, t, v.typ)
			}
			propTypes[inst.class][name] = v.typ
		}
	}

	for _, cls := range doc.Classes {
		names := make([]string, 0, len(propTypes[cls.Name]))
		for name := range propTypes[cls.Name] {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			typ := propTypes[cls.Name][name]
			prop := &Property{Name: name, Type: typ}
			for _, ref := range cls.Refs {
				v, ok := insts[ref].props[name]
				switch {
				case !ok:
					prop.Values = append(prop.Values, defaultValue(typ))
				case typ == typeReferent:
					target, found := byReferent[v.ref]
					if !found {
						target = -1
					}
					b := make([]byte, 4)
					binary.BigEndian.PutUint32(b, uint32(target))
					prop.Values = append(prop.Values, b)
				default:
					prop.Values = append(prop.Values, v.data)
				}
			}
			cls.Props = append(cls.Props, prop)
		}
	}

	// 3. <Meta> 变成 META chunk
	if len(meta) > 0 {
		var w bytes.Buffer
		writeU32(&w, uint32(len(meta)))
		for _, kv := range meta {
			writeStr(&w, kv[0])
			writeStr(&w, kv[1])
		}
		doc.Extra = append(doc.Extra, chunk{Name: "META", Data: w.Bytes()})
	}

	return doc.Encode()
}

const (
	typeInt32       = 0x03
	typeFloat32     = 0x04
	typeFloat64     = 0x05
	typeColor3      = 0x0C
	typeVector2     = 0x0D
	typeVector3     = 0x0E
	typeEnum        = 0x12
	typeNumberRange = 0x17
	typeColor3uint8 = 0x1A
	typeInt64       = 0x1B

	// CFrame 旋转 ID 0x02 表示单位矩阵
	rotationIdentity = 0x02
)

// encodeXMLProperty 把一个 <Properties> 子元素编码成二进制 PROP 里单个实例的值
// 值的字节布局与 codecs 中对应类型拆分后的布局一致
func encodeXMLProperty(p *xmlNode) (xmlValue, error) {
	text := strings.TrimSpace(p.Text)
	switch p.Name {
	case "string", "ProtectedString":
		return xmlValue{typ: typeString, data: strVal(p.Text)}, nil
	case "Content":
		url := text
		if u := p.child("url"); u != nil {
			url = strings.TrimSpace(u.Text)
		} else if p.child("null") != nil {
			url = ""
		}
		return xmlValue{typ: typeString, data: strVal(url)}, nil
	case "BinaryString":
		raw, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(p.Text), ""))
		if err != nil {
			return xmlValue{}, fmt.Errorf("invalid base64: %w", err)
		}
		return xmlValue{typ: typeString, data: strVal(string(raw))}, nil
	case "bool":
		b, err := strconv.ParseBool(text)
		if err != nil {
			return xmlValue{}, err
		}
		if b {
			return xmlValue{typ: typeBool, data: []byte{1}}, nil
		}
		return xmlValue{typ: typeBool, data: []byte{0}}, nil
	case "int":
		v, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return xmlValue{}, err
		}
		return xmlValue{typ: typeInt32, data: be32(zigzag(int32(v)))}, nil
	case "int64":
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return xmlValue{}, err
		}
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(v<<1)^uint64(v>>63))
		return xmlValue{typ: typeInt64, data: b}, nil
	case "token":
		v, err := strconv.ParseUint(text, 10, 32)
		if err != nil {
			return xmlValue{}, err
		}
		return xmlValue{typ: typeEnum, data: be32(uint32(v))}, nil
	case "float":
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return xmlValue{}, err
		}
		return xmlValue{typ: typeFloat32, data: rotatedFloat(f)}, nil
	case "double":
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return xmlValue{}, err
		}
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, math.Float64bits(f))
		return xmlValue{typ: typeFloat64, data: b}, nil
	case "Vector3":
		return floatFields(p, typeVector3, "X", "Y", "Z")
	case "Vector2":
		return floatFields(p, typeVector2, "X", "Y")
	case "Color3":
		return floatFields(p, typeColor3, "R", "G", "B")
	case "NumberRange":
		// 文本形式 "min max "
		fields := strings.Fields(text)
		if len(fields) != 2 {
			return xmlValue{}, fmt.Errorf("invalid NumberRange %q", text)
		}
		b := make([]byte, 0, 8)
		for _, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return xmlValue{}, err
			}
			b = binary.LittleEndian.AppendUint32(b, math.Float32bits(float32(v)))
		}
		return xmlValue{typ: typeNumberRange, data: b}, nil
	case "Color3uint8":
		// 0xAARRGGBB
		v, err := strconv.ParseUint(text, 10, 32)
		if err != nil {
			return xmlValue{}, err
		}
		return xmlValue{typ: typeColor3uint8, data: []byte{byte(v >> 16), byte(v >> 8), byte(v)}}, nil
	case "CoordinateFrame", "CFrame":
		return encodeCFrame(p)
	case "Ref":
		ref := text
		if ref == "null" {
			ref = ""
		}
		return xmlValue{typ: typeReferent, ref: ref}, nil
	}
	return xmlValue{}, fmt.Errorf("%w <%s>", ErrUnsupportedProperty, p.Name)
}

func encodeCFrame(p *xmlNode) (xmlValue, error) {
	get := func(name string) (float64, error) {
		c := p.child(name)
		if c == nil {
			return 0, fmt.Errorf("CFrame is missing <%s>", name)
		}
		return strconv.ParseFloat(strings.TrimSpace(c.Text), 64)
	}

	// 完整旋转矩阵: ID 0 + 9 个小端 f32，位置和 Vector3 相同
	b := []byte{0}
	for _, name := range []string{"R00", "R01", "R02", "R10", "R11", "R12", "R20", "R21", "R22"} {
		v, err := get(name)
		if err != nil {
			return xmlValue{}, err
		}
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(float32(v)))
	}
	for _, name := range []string{"X", "Y", "Z"} {
		v, err := get(name)
		if err != nil {
			return xmlValue{}, err
		}
		b = append(b, rotatedFloat(v)...)
	}
	return xmlValue{typ: typeCFrame, data: b}, nil
}

func floatFields(p *xmlNode, typ byte, names ...string) (xmlValue, error) {
	b := make([]byte, 0, 4*len(names))
	for _, name := range names {
		c := p.child(name)
		if c == nil {
			return xmlValue{}, fmt.Errorf("<%s> is missing <%s>", p.Name, name)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(c.Text), 64)
		if err != nil {
			return xmlValue{}, err
		}
		b = append(b, rotatedFloat(v)...)
	}
	return xmlValue{typ: typ, data: b}, nil
}

// defaultValue 是实例缺少某个属性时写入的零值
func defaultValue(typ byte) []byte {
	switch typ {
	case typeString:
		return strVal("")
	case typeBool:
		return []byte{0}
	case typeInt32, typeFloat32, typeEnum:
		return make([]byte, 4)
	case typeFloat64, typeInt64, typeVector2, typeNumberRange:
		return make([]byte, 8)
	case typeVector3, typeColor3:
		return make([]byte, 12)
	case typeColor3uint8:
		return make([]byte, 3)
	case typeCFrame:
		return append([]byte{rotationIdentity}, make([]byte, 12)...)
	case typeReferent:
		return be32(math.MaxUint32) // -1
	}
	return nil
}

// rotatedFloat: 二进制格式里 f32 左旋一位 (符号位放到最低位) 后大端存储
func rotatedFloat(v float64) []byte {
	bits := math.Float32bits(float32(v))
	return be32(bits<<1 | bits>>31)
}

func be32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func strVal(s string) []byte {
	var b bytes.Buffer
	writeStr(&b, s)
	return b.Bytes()
}
