package disk

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"asphalt/pkg/storage"
	"asphalt/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskAdapter(t *testing.T) {
	// 1. 创建临时测试目录
	tmpDir := t.TempDir()
	store, err := NewAdapter(tmpDir)
	require.NoError(t, err)

	ctx := context.Background()
	key := types.Hash("2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824")

	// 2. 测试 Put
	require.NoError(t, store.Put(ctx, key, []byte("hello world")))

	// 路径应该是 tmpDir/2c/f24dba...
	expectedPath := filepath.Join(tmpDir, "2c", "f24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824")
	_, err = os.Stat(expectedPath)
	assert.NoError(t, err, "文件应该存在于 Sharding 目录中")

	// 3. 测试 Has
	exists, err := store.Has(ctx, key)
	assert.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Has(ctx, types.Hash(strings.Repeat("f", 64)))
	assert.NoError(t, err)
	assert.False(t, exists)

	// 4. 测试 Get
	reader, err := store.Get(ctx, key)
	require.NoError(t, err)
	defer reader.Close()

	content, err := io.ReadAll(reader)
	assert.NoError(t, err)
	assert.Equal(t, []byte("hello world"), content)

	// 5. 不存在的 Key
	_, err = store.Get(ctx, types.Hash(strings.Repeat("0", 64)))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDiskAdapter_PutIsIdempotent(t *testing.T) {
	store, err := NewAdapter(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	key := types.Hash(strings.Repeat("a", 64))

	require.NoError(t, store.Put(ctx, key, []byte("first")))
	require.NoError(t, store.Put(ctx, key, []byte("second")))

	reader, err := store.Get(ctx, key)
	require.NoError(t, err)
	defer reader.Close()
	content, _ := io.ReadAll(reader)
	assert.Equal(t, "first", string(content), "CAS 中已存在的对象不会被覆盖")
}

func TestDiskAdapter_RejectsInvalidKey(t *testing.T) {
	store, err := NewAdapter(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, store.Put(context.Background(), "../escape", []byte("x")))
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.txt")

	require.NoError(t, WriteFileAtomic(target, []byte("v1"), 0644))
	require.NoError(t, WriteFileAtomic(target, []byte("v2"), 0644))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	// 不应残留临时文件
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
