package asset

import (
	"context"
	"fmt"

	"asphalt/pkg/bleed"
	"asphalt/pkg/rbxm"
	"asphalt/pkg/svg"
	"asphalt/pkg/types"

	log "github.com/sirupsen/logrus"
)

// ProcessOptions 控制预处理流程
type ProcessOptions struct {
	Bleed bool
	// Rasterizer 在一次运行中只创建一次，所有 input 共享
	Rasterizer *svg.Rasterizer
	// Cache 可选，为 nil 时不使用缓存
	Cache *Cache
}

// Process 执行按类型的预处理，然后计算最终 Hash
// 流程: SVG -> PNG, Decal 可选 alpha bleed, 动画提取 KeyframeSequence
func (a *Asset) Process(ctx context.Context, opts ProcessOptions) error {
	// 1. 查缓存 (直通类型不进缓存)
	useCache := opts.Cache != nil && a.needsTransform(opts.Bleed)
	var key types.Hash
	if useCache {
		key = opts.Cache.Key(a, opts.Bleed)
		if hit, ok := opts.Cache.Load(ctx, key); ok {
			a.Data = hit.Data
			a.Ext = hit.Ext
			if a.Kind.IsAnimation() {
				a.Kind.Format = FormatAnimationBinary
			}
			a.rehash()
			return nil
		}
	}

	// 2. 真正的转换
	if err := a.transform(opts); err != nil {
		return err
	}
	a.rehash()

	// 3. 回填缓存 (失败不影响结果)
	if useCache {
		opts.Cache.Store(ctx, key, a)
	}
	return nil
}

func (a *Asset) needsTransform(bleed bool) bool {
	return a.SourceExt == "svg" || (a.Kind.IsDecal() && bleed) || a.Kind.IsAnimation()
}

func (a *Asset) transform(opts ProcessOptions) error {
	if a.SourceExt == "svg" {
		if opts.Rasterizer == nil {
			return fmt.Errorf("no svg rasterizer available for %s", a.RelPath)
		}
		png, err := opts.Rasterizer.RasterizeToPNG(a.Data)
		if err != nil {
			return fmt.Errorf("failed to convert svg to png: %w", err)
		}
		a.Data = png
		a.Ext = "png"
	}

	switch {
	case a.Kind.IsDecal() && opts.Bleed:
		out, err := bleed.Apply(a.Data, bleed.Format(a.Kind.Format))
		if err != nil {
			return fmt.Errorf("failed to alpha bleed: %w", err)
		}
		a.Data = out
	case a.Kind.IsAnimation():
		format := rbxm.FormatBinary
		if a.Kind.Format == FormatAnimationXML {
			format = rbxm.FormatXML
		}
		out, err := rbxm.ExtractAnimation(a.Data, format)
		if err != nil {
			return err
		}
		a.Data = out
		a.Kind.Format = FormatAnimationBinary
		a.Ext = canonicalExt(a.Kind)
	default:
		log.WithField("path", a.RelPath).Debug("pass-through asset")
	}
	return nil
}
