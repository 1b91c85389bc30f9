package rbxm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var errTruncated = errors.New("unexpected end of chunk")

// reader 是 chunk 内容的顺序读取器，第一次出错后所有读取都返回零值
type reader struct {
	data []byte
	off  int
	err  error
}

func newReader(data []byte) *reader { return &reader{data: data} }

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = errTruncated
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() byte {
	b := r.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u32() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) str() string {
	n := r.u32()
	return string(r.bytes(int(n)))
}

// count 读取一个 u32 长度，并检查剩余数据至少能容纳 n*minSize 字节
func (r *reader) count(minSize int) int {
	n := int(r.u32())
	if r.err == nil && n*minSize > len(r.data)-r.off {
		r.err = errTruncated
		return 0
	}
	return n
}

func (r *reader) rest() []byte { return r.bytes(len(r.data) - r.off) }

// refs 读取交错存储、zigzag 编码、差分累加的引用数组
func (r *reader) refs(n int) []int32 {
	raw := deinterleave(r.bytes(n*4), n, 4)
	out := make([]int32, n)
	if r.err != nil {
		return out
	}
	var acc int32
	for i, b := range raw {
		acc += unzigzag(binary.BigEndian.Uint32(b))
		out[i] = acc
	}
	return out
}

func writeU32(w *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func writeStr(w *bytes.Buffer, s string) {
	writeU32(w, uint32(len(s)))
	w.WriteString(s)
}

func writeRefs(w *bytes.Buffer, refs []int32) {
	vals := make([][]byte, len(refs))
	var prev int32
	for i, ref := range refs {
		vals[i] = make([]byte, 4)
		binary.BigEndian.PutUint32(vals[i], zigzag(ref-prev))
		prev = ref
	}
	w.Write(interleave(vals, 4))
}

func zigzag(v int32) uint32   { return uint32(v<<1) ^ uint32(v>>31) }
func unzigzag(u uint32) int32 { return int32(u>>1) ^ -int32(u&1) }

// deinterleave: 第 i 个值的第 j 个字节位于 j*n+i
func deinterleave(data []byte, n, width int) [][]byte {
	if len(data) < n*width {
		return make([][]byte, n)
	}
	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		v := make([]byte, width)
		for j := 0; j < width; j++ {
			v[j] = data[j*n+i]
		}
		out[i] = v
	}
	return out
}

func interleave(vals [][]byte, width int) []byte {
	n := len(vals)
	out := make([]byte, n*width)
	for i, v := range vals {
		for j := 0; j < width; j++ {
			out[j*n+i] = v[j]
		}
	}
	return out
}

// valueCodec 把一个 PROP 的值数组拆成每个实例一份，以及反向拼回去
// 拆分后的字节保持文件里的编码，只有引用类型会转换成绝对值
type valueCodec struct {
	decode func(r *reader, n int) [][]byte
	encode func(w *bytes.Buffer, vals [][]byte)
}

func fixed(width int) valueCodec {
	return valueCodec{
		decode: func(r *reader, n int) [][]byte {
			out := make([][]byte, n)
			for i := range out {
				out[i] = r.bytes(width)
			}
			return out
		},
		encode: func(w *bytes.Buffer, vals [][]byte) {
			for _, v := range vals {
				w.Write(v)
			}
		},
	}
}

// soa: fields 个字段，每个字段是一个独立的 (交错) 数组
func soa(fields, width int) valueCodec {
	return valueCodec{
		decode: func(r *reader, n int) [][]byte {
			out := make([][]byte, n)
			for f := 0; f < fields; f++ {
				part := deinterleave(r.bytes(n*width), n, width)
				for i := range out {
					out[i] = append(out[i], part[i]...)
				}
			}
			return out
		},
		encode: func(w *bytes.Buffer, vals [][]byte) {
			for f := 0; f < fields; f++ {
				part := make([][]byte, len(vals))
				for i, v := range vals {
					part[i] = v[f*width : (f+1)*width]
				}
				w.Write(interleave(part, width))
			}
		},
	}
}

// verbatim 用于变长但可以逐个顺序读取的类型，读取函数负责消费一个值
func verbatim(read func(r *reader)) valueCodec {
	return valueCodec{
		decode: func(r *reader, n int) [][]byte {
			out := make([][]byte, n)
			for i := range out {
				start := r.off
				read(r)
				if r.err != nil {
					return out
				}
				out[i] = r.data[start:r.off]
			}
			return out
		},
		encode: fixed(0).encode,
	}
}

var stringCodec = verbatim(func(r *reader) { r.bytes(int(r.u32())) })

var cframeCodec = valueCodec{
	decode: func(r *reader, n int) [][]byte {
		rots := make([][]byte, n)
		for i := range rots {
			start := r.off
			if r.u8() == 0 {
				r.bytes(36) // 9 个 f32 的完整旋转矩阵
			}
			if r.err != nil {
				return rots
			}
			rots[i] = append([]byte(nil), r.data[start:r.off]...)
		}
		pos := soa(3, 4).decode(r, n)
		for i := range rots {
			rots[i] = append(rots[i], pos[i]...)
		}
		return rots
	},
	encode: func(w *bytes.Buffer, vals [][]byte) {
		pos := make([][]byte, len(vals))
		for i, v := range vals {
			w.Write(v[:len(v)-12])
			pos[i] = v[len(v)-12:]
		}
		soa(3, 4).encode(w, pos)
	},
}

const (
	typeString         = 0x01
	typeBool           = 0x02
	typeCFrame         = 0x10
	typeReferent       = 0x13
	typeOptionalCFrame = 0x1E

	physicalCustom   = 0x01
	physicalAcoustic = 0x02
)

var optionalCFrameCodec = valueCodec{
	decode: func(r *reader, n int) [][]byte {
		if r.u8() != typeCFrame {
			r.err = fmt.Errorf("malformed OptionalCFrame")
			return nil
		}
		frames := cframeCodec.decode(r, n)
		if r.u8() != typeBool {
			r.err = fmt.Errorf("malformed OptionalCFrame")
			return nil
		}
		flags := r.bytes(n)
		out := make([][]byte, n)
		for i := range out {
			if flags == nil {
				break
			}
			out[i] = append(frames[i], flags[i])
		}
		return out
	},
	encode: func(w *bytes.Buffer, vals [][]byte) {
		frames := make([][]byte, len(vals))
		flags := make([]byte, len(vals))
		for i, v := range vals {
			frames[i] = v[:len(v)-1]
			flags[i] = v[len(v)-1]
		}
		w.WriteByte(typeCFrame)
		cframeCodec.encode(w, frames)
		w.WriteByte(typeBool)
		w.Write(flags)
	},
}

var referentCodec = valueCodec{
	decode: func(r *reader, n int) [][]byte {
		refs := r.refs(n)
		out := make([][]byte, n)
		for i, ref := range refs {
			out[i] = make([]byte, 4)
			binary.BigEndian.PutUint32(out[i], uint32(ref))
		}
		return out
	},
	encode: func(w *bytes.Buffer, vals [][]byte) {
		refs := make([]int32, len(vals))
		for i, v := range vals {
			refs[i] = int32(binary.BigEndian.Uint32(v))
		}
		writeRefs(w, refs)
	},
}

// 已知的属性类型
// 不在表里的类型 (比如 Content) 只能原样保留，不能按实例过滤
var codecs = map[byte]valueCodec{
	0x01: stringCodec,   // String
	0x02: fixed(1),      // Bool
	0x03: soa(1, 4),     // Int32
	0x04: soa(1, 4),     // Float32
	0x05: fixed(8),      // Float64
	0x06: soa(2, 4),     // UDim
	0x07: soa(4, 4),     // UDim2
	0x08: fixed(24),     // Ray
	0x09: fixed(1),      // Faces
	0x0A: fixed(1),      // Axes
	0x0B: soa(1, 4),     // BrickColor
	0x0C: soa(3, 4),     // Color3
	0x0D: soa(2, 4),     // Vector2
	0x0E: soa(3, 4),     // Vector3
	0x10: cframeCodec,   // CFrame
	0x12: soa(1, 4),     // Enum
	0x13: referentCodec, // Referent
	0x14: fixed(6),      // Vector3int16
	0x15: verbatim(func(r *reader) { // NumberSequence
		r.bytes(r.count(12) * 12)
	}),
	0x16: verbatim(func(r *reader) { // ColorSequence
		r.bytes(r.count(20) * 20)
	}),
	0x17: fixed(8),  // NumberRange
	0x18: soa(4, 4), // Rect
	0x19: verbatim(func(r *reader) { // PhysicalProperties
		flag := r.u8()
		if flag&physicalCustom != 0 {
			r.bytes(20)
			if flag&physicalAcoustic != 0 {
				r.bytes(4)
			}
		}
	}),
	0x1A: soa(3, 1),           // Color3uint8
	0x1B: soa(1, 8),           // Int64
	0x1C: soa(1, 4),           // SharedString
	0x1D: stringCodec,         // Bytecode
	0x1E: optionalCFrameCodec, // OptionalCFrame
	0x1F: soa(1, 16),          // UniqueId
	0x20: verbatim(func(r *reader) { // Font
		r.str()
		r.bytes(3)
		r.str()
	}),
	0x21: soa(1, 8), // SecurityCapabilities
}
