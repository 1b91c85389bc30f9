package disk

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"asphalt/pkg/storage"
	"asphalt/pkg/types"
)

// Adapter 实现了 storage.Store 接口
type Adapter struct {
	rootPath string // 比如: ./.asphalt/cache
}

// NewAdapter 创建一个新的磁盘存储适配器
func NewAdapter(root string) (*Adapter, error) {
	// 确保根目录存在
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	return &Adapter{rootPath: root}, nil
}

// layout 返回 Key 对应的物理路径
// 策略：使用前 2 个字符作为子目录 (Sharding)
// Example: "aabbcc..." -> root/aa/bbcc...
func (s *Adapter) layout(key types.Hash) string {
	k := key.String()
	if len(k) < 2 {
		return filepath.Join(s.rootPath, k)
	}
	return filepath.Join(s.rootPath, k[:2], k[2:])
}

func (s *Adapter) Put(ctx context.Context, key types.Hash, data []byte) error {
	if !key.IsValid() {
		return fmt.Errorf("invalid key %q", key)
	}
	targetPath := s.layout(key)

	// 1. 检查是否存在 (幂等性)
	if _, err := os.Stat(targetPath); err == nil {
		return nil
	}

	// 2. 准备目录
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// 3. 原子写入：先写临时文件再 Rename
	return WriteFileAtomic(targetPath, data, 0644)
}

func (s *Adapter) Get(ctx context.Context, key types.Hash) (io.ReadCloser, error) {
	f, err := os.Open(s.layout(key))
	if os.IsNotExist(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Adapter) Has(ctx context.Context, key types.Hash) (bool, error) {
	_, err := os.Stat(s.layout(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// WriteFileAtomic 保证目标文件要么不存在 (或保持旧内容)，要么是完整的新内容
// 锁文件和生成代码也复用这个函数
func WriteFileAtomic(targetPath string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(targetPath)
	tempFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	// 如果成功 Rename 了，这个删除会失败，无害
	defer os.Remove(tempFile.Name())

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return err
	}
	if err := tempFile.Chmod(perm); err != nil {
		tempFile.Close()
		return err
	}
	// 必须先关闭才能 Rename (Windows)
	if err := tempFile.Close(); err != nil {
		return err
	}

	return os.Rename(tempFile.Name(), targetPath)
}
