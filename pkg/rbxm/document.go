package rbxm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

var ErrUnsupportedProperty = errors.New("unsupported property type")

// Document 是解码后的二进制模型
type Document struct {
	Classes   []*Class
	Instances map[int32]*Instance
	// Links 按 PRNT 中的顺序记录父子关系，根实例的 Parent 为 -1
	Links []Link
	// 其他 chunk (META、SSTR、SIGN...) 原样保留
	Extra []chunk
}

type Class struct {
	ID        uint32
	Name      string
	Service   bool
	Refs      []int32
	Markers   []byte // 仅 Service 类有，每个实例一个字节
	Props     []*Property
	instances map[int32]int // ref -> 在 Refs 中的下标
}

type Property struct {
	Name   string
	Type   byte
	Values [][]byte // 每个实例一份；未知类型时为 nil
	Raw    []byte
}

type Instance struct {
	Ref      int32
	Class    *Class
	Parent   int32
	Children []int32
}

type Link struct {
	Child, Parent int32
}

// Decode 解析二进制模型
func Decode(data []byte) (*Document, error) {
	r := bytes.NewReader(data)
	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	doc := &Document{Instances: make(map[int32]*Instance, h.Instances)}
	classes := make(map[uint32]*Class, h.Classes)

	for {
		c, err := readChunk(r)
		if err != nil {
			return nil, err
		}

		switch c.Name {
		case "INST":
			cls, err := decodeInst(c.Data)
			if err != nil {
				return nil, fmt.Errorf("INST: %w", err)
			}
			if _, dup := classes[cls.ID]; dup {
				return nil, fmt.Errorf("INST: duplicate class id %d", cls.ID)
			}
			classes[cls.ID] = cls
			doc.Classes = append(doc.Classes, cls)
			for _, ref := range cls.Refs {
				doc.Instances[ref] = &Instance{Ref: ref, Class: cls, Parent: -1}
			}
		case "PROP":
			if err := decodeProp(c.Data, classes); err != nil {
				return nil, fmt.Errorf("PROP: %w", err)
			}
		case "PRNT":
			links, err := decodePrnt(c.Data)
			if err != nil {
				return nil, fmt.Errorf("PRNT: %w", err)
			}
			doc.Links = links
		case "END\x00":
			return doc, doc.link()
		default:
			doc.Extra = append(doc.Extra, c)
		}
	}
}

func decodeInst(data []byte) (*Class, error) {
	r := newReader(data)
	cls := &Class{ID: r.u32(), Name: r.str()}
	cls.Service = r.u8() == 1
	n := r.count(4)
	cls.Refs = r.refs(n)
	if cls.Service {
		cls.Markers = r.bytes(n)
	}
	if r.err != nil {
		return nil, r.err
	}
	cls.instances = make(map[int32]int, n)
	for i, ref := range cls.Refs {
		cls.instances[ref] = i
	}
	return cls, nil
}

func decodeProp(data []byte, classes map[uint32]*Class) error {
	r := newReader(data)
	id := r.u32()
	prop := &Property{Name: r.str(), Type: r.u8()}
	if r.err != nil {
		return r.err
	}
	cls, ok := classes[id]
	if !ok {
		return fmt.Errorf("property %q refers to unknown class %d", prop.Name, id)
	}
	prop.Raw = r.rest()

	if codec, ok := codecs[prop.Type]; ok {
		vr := newReader(prop.Raw)
		prop.Values = codec.decode(vr, len(cls.Refs))
		if vr.err != nil {
			return fmt.Errorf("%s.%s: %w", cls.Name, prop.Name, vr.err)
		}
	}
	cls.Props = append(cls.Props, prop)
	return nil
}

func decodePrnt(data []byte) ([]Link, error) {
	r := newReader(data)
	if v := r.u8(); v != 0 {
		return nil, fmt.Errorf("unsupported PRNT version %d", v)
	}
	n := r.count(8)
	children := r.refs(n)
	parents := r.refs(n)
	if r.err != nil {
		return nil, r.err
	}
	links := make([]Link, n)
	for i := range links {
		links[i] = Link{Child: children[i], Parent: parents[i]}
	}
	return links, nil
}

// link 根据 PRNT 建立树结构
func (d *Document) link() error {
	for _, l := range d.Links {
		inst, ok := d.Instances[l.Child]
		if !ok {
			return fmt.Errorf("PRNT: unknown instance %d", l.Child)
		}
		inst.Parent = l.Parent
		if l.Parent < 0 {
			continue
		}
		parent, ok := d.Instances[l.Parent]
		if !ok {
			return fmt.Errorf("PRNT: unknown parent %d", l.Parent)
		}
		parent.Children = append(parent.Children, l.Child)
	}
	return nil
}

// Roots 返回根实例，顺序与文件中一致
func (d *Document) Roots() []*Instance {
	var roots []*Instance
	for _, l := range d.Links {
		if l.Parent < 0 {
			roots = append(roots, d.Instances[l.Child])
		}
	}
	return roots
}

// Subtree 返回只包含 root 及其后代的新文档，引用重新编号为 0..n-1
func (d *Document) Subtree(root int32) (*Document, error) {
	if _, ok := d.Instances[root]; !ok {
		return nil, fmt.Errorf("unknown instance %d", root)
	}

	// 1. 深度优先收集，父节点在子节点之前
	var order []int32
	remap := make(map[int32]int32)
	var visit func(ref int32)
	visit = func(ref int32) {
		remap[ref] = int32(len(order))
		order = append(order, ref)
		for _, child := range d.Instances[ref].Children {
			if _, seen := remap[child]; !seen {
				visit(child)
			}
		}
	}
	visit(root)

	out := &Document{Instances: make(map[int32]*Instance, len(order))}
	for _, c := range d.Extra {
		// 签名对裁剪后的内容无效
		if c.Name != "SIGN" {
			out.Extra = append(out.Extra, c)
		}
	}

	// 2. 按原始类顺序过滤实例和属性
	for _, cls := range d.Classes {
		var keep []int
		for i, ref := range cls.Refs {
			if _, ok := remap[ref]; ok {
				keep = append(keep, i)
			}
		}
		if len(keep) == 0 {
			continue
		}

		nc := &Class{
			ID:        uint32(len(out.Classes)),
			Name:      cls.Name,
			Service:   cls.Service,
			instances: make(map[int32]int, len(keep)),
		}
		for j, i := range keep {
			ref := remap[cls.Refs[i]]
			nc.Refs = append(nc.Refs, ref)
			nc.instances[ref] = j
			if cls.Service {
				nc.Markers = append(nc.Markers, cls.Markers[i])
			}
			out.Instances[ref] = &Instance{Ref: ref, Class: nc, Parent: -1}
		}

		for _, prop := range cls.Props {
			np, err := filterProperty(cls, prop, keep, remap)
			if err != nil {
				return nil, err
			}
			nc.Props = append(nc.Props, np)
		}
		out.Classes = append(out.Classes, nc)
	}

	// 3. 父子关系，root 成为唯一的根
	for _, old := range order {
		ref := remap[old]
		parent := int32(-1)
		if old != root {
			parent = remap[d.Instances[old].Parent]
			out.Instances[parent].Children = append(out.Instances[parent].Children, ref)
		}
		out.Instances[ref].Parent = parent
		out.Links = append(out.Links, Link{Child: ref, Parent: parent})
	}
	return out, nil
}

func filterProperty(cls *Class, prop *Property, keep []int, remap map[int32]int32) (*Property, error) {
	np := &Property{Name: prop.Name, Type: prop.Type}
	if prop.Values == nil {
		if len(keep) != len(cls.Refs) {
			return nil, fmt.Errorf("%w 0x%02x (%s.%s)", ErrUnsupportedProperty, prop.Type, cls.Name, prop.Name)
		}
		np.Raw = prop.Raw
		return np, nil
	}

	for _, i := range keep {
		v := prop.Values[i]
		if prop.Type == typeReferent {
			// 指向子树外的引用变成 nil (-1)
			target, ok := remap[int32(binary.BigEndian.Uint32(v))]
			if !ok {
				target = -1
			}
			v = make([]byte, 4)
			binary.BigEndian.PutUint32(v, uint32(target))
		}
		np.Values = append(np.Values, v)
	}
	return np, nil
}

// Encode 序列化为二进制模型
func (d *Document) Encode() ([]byte, error) {
	var buf bytes.Buffer
	writeHeader(&buf, header{Classes: int32(len(d.Classes)), Instances: int32(len(d.Instances))})

	// META/SSTR 等必须在 INST 之前
	for _, c := range d.Extra {
		writeChunk(&buf, c.Name, c.Data, true)
	}

	classes := append([]*Class(nil), d.Classes...)
	sort.SliceStable(classes, func(i, j int) bool { return classes[i].ID < classes[j].ID })

	for _, cls := range classes {
		var w bytes.Buffer
		writeU32(&w, cls.ID)
		writeStr(&w, cls.Name)
		if cls.Service {
			w.WriteByte(1)
		} else {
			w.WriteByte(0)
		}
		writeU32(&w, uint32(len(cls.Refs)))
		writeRefs(&w, cls.Refs)
		if cls.Service {
			w.Write(cls.Markers)
		}
		writeChunk(&buf, "INST", w.Bytes(), true)
	}

	for _, cls := range classes {
		for _, prop := range cls.Props {
			var w bytes.Buffer
			writeU32(&w, cls.ID)
			writeStr(&w, prop.Name)
			w.WriteByte(prop.Type)
			if prop.Values != nil {
				codec, ok := codecs[prop.Type]
				if !ok {
					return nil, fmt.Errorf("%w 0x%02x", ErrUnsupportedProperty, prop.Type)
				}
				codec.encode(&w, prop.Values)
			} else {
				w.Write(prop.Raw)
			}
			writeChunk(&buf, "PROP", w.Bytes(), true)
		}
	}

	var w bytes.Buffer
	w.WriteByte(0)
	writeU32(&w, uint32(len(d.Links)))
	children := make([]int32, len(d.Links))
	parents := make([]int32, len(d.Links))
	for i, l := range d.Links {
		children[i], parents[i] = l.Child, l.Parent
	}
	writeRefs(&w, children)
	writeRefs(&w, parents)
	writeChunk(&buf, "PRNT", w.Bytes(), true)

	writeChunk(&buf, "END\x00", []byte("</roblox>"), false)
	return buf.Bytes(), nil
}
