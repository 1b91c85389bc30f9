package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"asphalt/pkg/asset"

	log "github.com/sirupsen/logrus"
)

const DebugDir = ".asphalt-debug"

// Debug 把处理后的文件按 rel_path 写到 .asphalt-debug，用于人工检查
type Debug struct {
	root string
}

// NewDebug 清空并重建 .asphalt-debug
func NewDebug(projectDir string) (*Debug, error) {
	root := filepath.Join(projectDir, DebugDir)
	if err := os.RemoveAll(root); err != nil {
		return nil, fmt.Errorf("failed to remove existing folder: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create debug directory: %w", err)
	}
	log.Infof("Assets will be synced to: %s", root)
	return &Debug{root: root}, nil
}

// Sync 总是返回 nil Ref
func (d *Debug) Sync(_ context.Context, _ string, a *asset.Asset) (*asset.Ref, error) {
	target := filepath.Join(d.root, filepath.FromSlash(a.RelPath))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}
	if err := os.WriteFile(target, a.Data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write asset to %s: %w", target, err)
	}
	return nil, nil
}
