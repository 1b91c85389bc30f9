package storage

import (
	"context"
	"errors"
	"io"

	"asphalt/pkg/types"
)

var (
	ErrNotFound = errors.New("object not found")
)

// Store defines the interface for a content-addressed blob store.
// 目前用于预处理缓存，Key 是内容 Hash
type Store interface {
	// Put 持久化一段数据，已存在时直接返回 (幂等)
	Put(ctx context.Context, key types.Hash, data []byte) error

	// Get 根据 Key 读取原始数据，不存在时返回 ErrNotFound
	Get(ctx context.Context, key types.Hash) (io.ReadCloser, error)

	// Has 检查对象是否存在
	Has(ctx context.Context, key types.Hash) (bool, error)
}
