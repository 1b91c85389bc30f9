// pkg/lockfile/lockfile.go
package lockfile

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"sync"

	"asphalt/pkg/storage/disk"
	"asphalt/pkg/types"

	"github.com/pelletier/go-toml/v2"
)

const (
	FileName       = "asphalt.lock.toml"
	CurrentVersion = 2
)

var ErrLegacyLockfile = errors.New("lockfile uses a legacy format, migrate it to version 2 before syncing")

// Entry 是一个已上传资源的记录
type Entry struct {
	AssetID types.AssetID `toml:"asset_id"`
}

// Lockfile 按 input 名和内容 Hash 记录云端资源 ID
// 以 Hash 为键: 重命名或移动文件不会导致重新上传
type Lockfile struct {
	mu     sync.RWMutex
	inputs map[string]map[types.Hash]Entry
}

// file 是磁盘上的 TOML 结构
type file struct {
	Version *uint32                     `toml:"version"`
	Inputs  map[string]map[string]Entry `toml:"inputs"`
}

// New 返回一个空的 v2 lockfile
func New() *Lockfile {
	return &Lockfile{inputs: make(map[string]map[types.Hash]Entry)}
}

// Read 加载 lockfile，文件不存在时返回空 lockfile
func Read(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read lockfile: %w", err)
	}
	return Parse(data)
}

// Parse 解析 lockfile 内容
func Parse(data []byte) (*Lockfile, error) {
	var f file
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("corrupted lockfile: %w", err)
	}

	// 1. 版本检查: 缺失或 0 是旧格式
	if f.Version == nil || *f.Version == 0 {
		return nil, ErrLegacyLockfile
	}
	if *f.Version > CurrentVersion {
		return nil, fmt.Errorf("lockfile version %d is newer than supported version %d", *f.Version, CurrentVersion)
	}
	if *f.Version < CurrentVersion {
		return nil, fmt.Errorf("%w (found version %d)", ErrLegacyLockfile, *f.Version)
	}

	// 2. 转成内存结构
	lf := New()
	for name, entries := range f.Inputs {
		m := make(map[types.Hash]Entry, len(entries))
		for hash, e := range entries {
			m[types.Hash(hash)] = e
		}
		lf.inputs[name] = m
	}
	return lf, nil
}

// Get 查询 (input, hash) 对应的记录
func (l *Lockfile) Get(input string, hash types.Hash) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.inputs[input][hash]
	return e, ok
}

// Insert 新增或覆盖一条记录
func (l *Lockfile) Insert(input string, hash types.Hash, e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.inputs[input]
	if !ok {
		m = make(map[types.Hash]Entry)
		l.inputs[input] = m
	}
	m[hash] = e
}

// Len 返回所有 input 的记录总数
func (l *Lockfile) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, m := range l.inputs {
		n += len(m)
	}
	return n
}

// Snapshot 返回深拷贝，用于并发安全的读取
func (l *Lockfile) Snapshot() map[string]map[types.Hash]Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	snap := make(map[string]map[types.Hash]Entry, len(l.inputs))
	for name, m := range l.inputs {
		snap[name] = maps.Clone(m)
	}
	return snap
}

// Clone 复制一份独立的 lockfile
func (l *Lockfile) Clone() *Lockfile {
	return &Lockfile{inputs: l.Snapshot()}
}

// Marshal 序列化为 TOML，键有序，相同内容输出相同字节
func (l *Lockfile) Marshal() ([]byte, error) {
	version := uint32(CurrentVersion)
	f := file{Version: &version, Inputs: make(map[string]map[string]Entry)}

	l.mu.RLock()
	for name, m := range l.inputs {
		entries := make(map[string]Entry, len(m))
		for hash, e := range m {
			entries[hash.String()] = e
		}
		f.Inputs[name] = entries
	}
	l.mu.RUnlock()

	data, err := toml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode lockfile: %w", err)
	}
	return data, nil
}

// Write 原子地写入磁盘 (临时文件 + rename)
func (l *Lockfile) Write(path string) error {
	data, err := l.Marshal()
	if err != nil {
		return err
	}
	if err := disk.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write lockfile: %w", err)
	}
	return nil
}
