package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"asphalt/pkg/asset"
	"asphalt/pkg/lockfile"

	log "github.com/sirupsen/logrus"
)

var ErrStudioNotFound = errors.New("could not find the Roblox Studio content directory (set ROBLOX_CONTENT_PATH)")

// Studio 把资源写进 Studio 的 content 目录，用 rbxasset:// 引用
type Studio struct {
	identifier string
	root       string
	existing   *lockfile.Lockfile
}

// NewStudio 清空并重建 content/.asphalt-<project>
// existing 用于模型和动画: 它们不能从本地加载，只能复用已经上传的 ID
func NewStudio(projectDir string, existing *lockfile.Lockfile) (*Studio, error) {
	if existing == nil {
		existing = lockfile.New()
	}
	content, err := ContentPath()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, err
	}
	identifier := ProjectIdentifier(filepath.Base(abs))
	root := filepath.Join(content, identifier)

	if err := os.RemoveAll(root); err != nil {
		return nil, fmt.Errorf("failed to remove existing folder: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create studio folder: %w", err)
	}
	log.Infof("Assets will be synced to: %s", root)

	return &Studio{identifier: identifier, root: root, existing: existing}, nil
}

// ProjectIdentifier: 小写，空白换成 "-"，加 .asphalt- 前缀
func ProjectIdentifier(name string) string {
	return ".asphalt-" + strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

func (s *Studio) Sync(_ context.Context, input string, a *asset.Asset) (*asset.Ref, error) {
	if a.Kind.IsModel() {
		if e, ok := s.existing.Get(input, a.Hash); ok {
			return asset.CloudRef(e.AssetID), nil
		}
		log.WithField("path", a.RelPath).Warn("Models and animations cannot be synced to Studio before they are uploaded, skipping")
		return nil, nil
	}

	name := a.Hash.String() + "." + a.Ext
	if err := os.WriteFile(filepath.Join(s.root, name), a.Data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write asset: %w", err)
	}
	return asset.StudioRef("rbxasset://" + s.identifier + "/" + name), nil
}

// ContentPath 定位 Studio 的 content 目录
func ContentPath() (string, error) {
	if p := os.Getenv("ROBLOX_CONTENT_PATH"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
		log.WithField("path", p).Warn("ROBLOX_CONTENT_PATH does not exist, falling back to auto-detection")
	}

	switch runtime.GOOS {
	case "windows":
		return windowsContentPath(os.Getenv("LOCALAPPDATA"))
	case "darwin":
		p := "/Applications/RobloxStudio.app/Contents/Resources/content"
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", ErrStudioNotFound
}

// windowsContentPath 选择最新的包含 RobloxStudioBeta.exe 的版本目录
func windowsContentPath(localAppData string) (string, error) {
	if localAppData == "" {
		return "", ErrStudioNotFound
	}
	versions, err := filepath.Glob(filepath.Join(localAppData, "Roblox", "Versions", "*"))
	if err != nil {
		return "", err
	}

	type candidate struct {
		dir   string
		mtime int64
	}
	var found []candidate
	for _, dir := range versions {
		info, err := os.Stat(filepath.Join(dir, "RobloxStudioBeta.exe"))
		if err != nil {
			continue
		}
		found = append(found, candidate{dir, info.ModTime().UnixNano()})
	}
	if len(found) == 0 {
		return "", ErrStudioNotFound
	}
	sort.Slice(found, func(i, j int) bool { return found[i].mtime > found[j].mtime })
	return filepath.Join(found[0].dir, "content"), nil
}
