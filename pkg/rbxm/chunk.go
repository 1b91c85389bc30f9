package rbxm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// 二进制模型文件头
// "<roblox!" + 签名 + u16 版本 + i32 类数量 + i32 实例数量 + 8 字节保留
var (
	magic     = []byte("<roblox!")
	signature = []byte{0x89, 0xff, 0x0d, 0x0a, 0x1a, 0x0a}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

const headerSize = 32

var ErrBadHeader = errors.New("not a binary roblox model")

type header struct {
	Version   uint16
	Classes   int32
	Instances int32
}

type chunk struct {
	Name string
	Data []byte // 解压后的内容
}

// 全局复用的 zstd 解码器 (DecodeAll 是并发安全的)
var zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))

func readHeader(r *bytes.Reader) (header, error) {
	var h header
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return h, ErrBadHeader
	}
	if !bytes.Equal(buf[:8], magic) || !bytes.Equal(buf[8:14], signature) {
		return h, ErrBadHeader
	}
	h.Version = binary.LittleEndian.Uint16(buf[14:16])
	h.Classes = int32(binary.LittleEndian.Uint32(buf[16:20]))
	h.Instances = int32(binary.LittleEndian.Uint32(buf[20:24]))
	if h.Version != 0 {
		return h, fmt.Errorf("unsupported model version %d", h.Version)
	}
	return h, nil
}

func writeHeader(w *bytes.Buffer, h header) {
	w.Write(magic)
	w.Write(signature)
	var buf [18]byte
	binary.LittleEndian.PutUint16(buf[0:2], h.Version)
	binary.LittleEndian.PutUint32(buf[2:6], uint32(h.Classes))
	binary.LittleEndian.PutUint32(buf[6:10], uint32(h.Instances))
	w.Write(buf[:])
}

// readChunk 读取一个 chunk 并解压
// 布局: name[4] + u32 压缩长度 + u32 原始长度 + u32 保留 + data
func readChunk(r *bytes.Reader) (chunk, error) {
	var c chunk
	head := make([]byte, 16)
	if _, err := io.ReadFull(r, head); err != nil {
		return c, fmt.Errorf("truncated chunk header: %w", err)
	}
	c.Name = string(head[:4])
	compressed := binary.LittleEndian.Uint32(head[4:8])
	size := binary.LittleEndian.Uint32(head[8:12])

	if int64(size) > int64(r.Len())*255+1024 {
		return c, fmt.Errorf("chunk %q claims implausible size %d", c.Name, size)
	}

	if compressed == 0 {
		c.Data = make([]byte, size)
		if _, err := io.ReadFull(r, c.Data); err != nil {
			return c, fmt.Errorf("truncated chunk %q: %w", c.Name, err)
		}
		return c, nil
	}

	raw := make([]byte, compressed)
	if _, err := io.ReadFull(r, raw); err != nil {
		return c, fmt.Errorf("truncated chunk %q: %w", c.Name, err)
	}

	if bytes.HasPrefix(raw, zstdMagic) {
		out, err := zstdDecoder.DecodeAll(raw, make([]byte, 0, size))
		if err != nil {
			return c, fmt.Errorf("failed to decompress chunk %q: %w", c.Name, err)
		}
		c.Data = out
		return c, nil
	}

	c.Data = make([]byte, size)
	n, err := lz4.UncompressBlock(raw, c.Data)
	if err != nil {
		return c, fmt.Errorf("failed to decompress chunk %q: %w", c.Name, err)
	}
	if n != int(size) {
		return c, fmt.Errorf("chunk %q decompressed to %d bytes, want %d", c.Name, n, size)
	}
	return c, nil
}

// writeChunk 写一个 chunk，compress=true 时尝试 LZ4
func writeChunk(w *bytes.Buffer, name string, data []byte, compress bool) {
	var head [16]byte
	copy(head[:4], name)
	binary.LittleEndian.PutUint32(head[8:12], uint32(len(data)))

	if compress && len(data) > 0 {
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, dst, nil)
		// n == 0 表示数据不可压缩
		if err == nil && n > 0 && n < len(data) {
			binary.LittleEndian.PutUint32(head[4:8], uint32(n))
			w.Write(head[:])
			w.Write(dst[:n])
			return
		}
	}

	w.Write(head[:])
	w.Write(data)
}
