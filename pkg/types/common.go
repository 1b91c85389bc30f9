// pkg/types/common.go
package types

import "encoding/hex"

// Hash 代表资源内容的唯一标识符 (BLAKE3-256 小写 Hex)
// 这是一个“值对象”，应当是不可变的。
type Hash string

func (h Hash) String() string { return string(h) }

// 验证 Hash 合法性
func (h Hash) IsZero() bool { return h == "" }
func (h Hash) IsValid() bool {
	if len(h) != 64 {
		return false
	}
	// 只接受小写 hex，避免锁文件里出现大小写不同的同一个 key
	for _, c := range h {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	_, err := hex.DecodeString(string(h))
	return err == nil
}

// AssetID 是远端资源 ID
type AssetID uint64
