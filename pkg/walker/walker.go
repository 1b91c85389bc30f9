// pkg/walker/walker.go
package walker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"asphalt/pkg/asset"
	"asphalt/pkg/ignore"

	"github.com/bmatcuk/doublestar/v4"
	log "github.com/sirupsen/logrus"
)

var ErrBadPattern = errors.New("invalid input path glob")

// File 是 walker 找到的一个文件
type File struct {
	Path    string // 可以直接传给 os.ReadFile 的路径
	RelPath string // 相对 glob 字面前缀的路径，统一使用 "/"
}

// Walker 按 glob 遍历一个 input
type Walker struct {
	base    string // glob 的字面前缀 (不含通配符的最长路径)
	pattern string // 剩余部分，匹配 RelPath
	matcher *ignore.Matcher
}

// New 拆分 glob
// matcher 可以为 nil
func New(glob string, matcher *ignore.Matcher) (*Walker, error) {
	glob = filepath.ToSlash(glob)
	if !doublestar.ValidatePattern(glob) {
		return nil, fmt.Errorf("%w: %q", ErrBadPattern, glob)
	}
	base, pattern := doublestar.SplitPattern(glob)
	return &Walker{base: base, pattern: pattern, matcher: matcher}, nil
}

// Base 返回遍历的根目录
func (w *Walker) Base() string { return filepath.FromSlash(w.base) }

// Walk 以文件系统的遍历顺序对每个匹配的文件调用 fn
// 前缀目录不存在时视为空 input
func (w *Walker) Walk(ctx context.Context, fn func(File) error) error {
	root := w.Base()
	if _, err := os.Stat(root); errors.Is(err, os.ErrNotExist) {
		log.WithField("path", root).Debug("input directory does not exist")
		return nil
	}

	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		// 1. 忽略规则，同时检查相对前缀和相对项目根的路径
		if w.matcher.Matches(rel) || w.matcher.MatchesFile(p) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		// 2. glob 匹配
		ok, err := doublestar.Match(w.pattern, rel)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadPattern, err)
		}
		if !ok {
			return nil
		}

		// 3. 不支持的扩展名直接跳过，不读取内容
		if !asset.IsSupported(path.Ext(rel)) {
			log.WithField("path", rel).Debug("skipping file with unsupported extension")
			return nil
		}

		return fn(File{Path: p, RelPath: rel})
	})
}
