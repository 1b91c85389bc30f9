package asset

import (
	"context"
	"errors"
	"io"
	"strconv"

	"asphalt/pkg/core"
	"asphalt/pkg/storage"
	"asphalt/pkg/types"

	log "github.com/sirupsen/logrus"
)

// cacheVersion 变化时旧缓存全部失效
const cacheVersion = "2"

// cacheRecord 是缓存中保存的预处理结果
type cacheRecord struct {
	Ext  string `cbor:"e"`
	Data []byte `cbor:"d"`
}

// Cache 把预处理结果存进内容寻址的 Store
// Key = BLAKE3(原始字节 + 预处理参数)
type Cache struct {
	store storage.Store
}

func NewCache(store storage.Store) *Cache {
	return &Cache{store: store}
}

// Key 计算缓存 Key，必须在 Process 修改 Data 之前调用
func (c *Cache) Key(a *Asset, bleed bool) types.Hash {
	return core.HashParts(
		[]byte(cacheVersion),
		[]byte(a.SourceExt),
		[]byte(a.Kind.String()),
		[]byte(strconv.FormatBool(bleed)),
		a.Data,
	)
}

// Load 读取缓存，任何错误都当作未命中
func (c *Cache) Load(ctx context.Context, key types.Hash) (*cacheRecord, bool) {
	rc, err := c.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false
	}
	if err != nil {
		log.WithError(err).Warn("preprocess cache read failed")
		return nil, false
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		log.WithError(err).Warn("preprocess cache read failed")
		return nil, false
	}

	var rec cacheRecord
	if err := core.DecodeRecord(raw, &rec); err != nil {
		log.WithError(err).WithField("key", key).Warn("corrupted preprocess cache entry")
		return nil, false
	}
	return &rec, true
}

// Store 写入缓存，失败只打日志
// Key 相同的结果一定相同，已存在时不再编码和写入
func (c *Cache) Store(ctx context.Context, key types.Hash, a *Asset) {
	if ok, err := c.store.Has(ctx, key); err == nil && ok {
		return
	}
	data, err := core.EncodeRecord(cacheRecord{Ext: a.Ext, Data: a.Data})
	if err != nil {
		log.WithError(err).Warn("preprocess cache encode failed")
		return
	}
	if err := c.store.Put(ctx, key, data); err != nil {
		log.WithError(err).Warn("preprocess cache write failed")
	}
}
