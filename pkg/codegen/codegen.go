// pkg/codegen/codegen.go
package codegen

import (
	"fmt"
	"os"
	"path/filepath"

	"asphalt/pkg/asset"
	"asphalt/pkg/config"
	"asphalt/pkg/storage/disk"

	log "github.com/sirupsen/logrus"
)

// Generate 渲染一个 input 的所有目标语言，返回 文件名 -> 内容
func Generate(cfg config.Codegen, refs map[string]*asset.Ref) (map[string][]byte, error) {
	values := make(map[string]string, len(refs))
	for rel, ref := range refs {
		if ref != nil {
			values[rel] = ref.Value()
		}
	}

	root, err := BuildTree(values, cfg.Style, cfg.StripExtensions)
	if err != nil {
		return nil, err
	}

	files := make(map[string][]byte, 2)
	if cfg.Luau {
		files[cfg.OutputName+Luau.Extension()] = []byte(Render(Luau, cfg.OutputName, root))
	}
	if cfg.TypeScript {
		files[cfg.OutputName+TypeScript.Extension()] = []byte(Render(TypeScript, cfg.OutputName, root))
	}
	return files, nil
}

// Write 生成并写入 outputDir，目录不存在时创建
func Write(outputDir string, cfg config.Codegen, refs map[string]*asset.Ref) error {
	files, err := Generate(cfg, refs)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	for name, data := range files {
		target := filepath.Join(outputDir, name)
		if err := disk.WriteFileAtomic(target, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", target, err)
		}
		log.WithField("file", target).Debug("wrote codegen output")
	}
	return nil
}
