package core

import (
	"encoding/hex"
	"fmt"

	"asphalt/pkg/types"

	"github.com/fxamacker/cbor/v2"
	"lukechampine.com/blake3"
)

// 定义 Canonical CBOR 编码选项
// 缓存记录需要稳定的字节表示，相同内容必须得到相同的编码
var encOptions = cbor.EncOptions{
	// 1. 强制 Map Key 排序 (Canonical)
	Sort: cbor.SortCanonical,
	// 2. 禁止不定长编码 (Indefinite Length)
	IndefLength: cbor.IndefLengthForbidden,
	// 3. 时间格式化为 Unix 整数
	Time:    cbor.TimeUnix,
	TimeTag: cbor.EncTagNone,
}

// 全局复用的编码模式
var em, _ = encOptions.EncMode()

var decOptions = cbor.DecOptions{
	// --- 安全性配置 ---
	// 缓存目录可能被用户随意改动，限制嵌套深度和容器大小
	MaxArrayElements: 10000,
	MaxMapPairs:      10000,
	MaxNestedLevels:  16,

	IndefLength: cbor.IndefLengthForbidden,
	DupMapKey:   cbor.DupMapKeyEnforcedAPF,
}

var dm, _ = decOptions.DecMode()

// HashBytes 计算数据的 BLAKE3-256 Hash (小写 Hex)
func HashBytes(data []byte) types.Hash {
	sum := blake3.Sum256(data)
	return types.Hash(hex.EncodeToString(sum[:]))
}

// HashParts 对多个片段做流式 Hash，片段之间用长度前缀隔开
// 避免 ("ab","c") 与 ("a","bc") 得到相同结果
func HashParts(parts ...[]byte) types.Hash {
	h := blake3.New(32, nil)
	var lenBuf [8]byte
	for _, p := range parts {
		n := uint64(len(p))
		for i := range lenBuf {
			lenBuf[i] = byte(n >> (8 * i))
		}
		h.Write(lenBuf[:])
		h.Write(p)
	}
	return types.Hash(hex.EncodeToString(h.Sum(nil)))
}

// EncodeRecord 序列化一个记录 (Canonical CBOR)
func EncodeRecord(v any) ([]byte, error) {
	data, err := em.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return data, nil
}

// DecodeRecord 通用的解码函数
func DecodeRecord(data []byte, v any) error {
	return dm.Unmarshal(data, v)
}
