// Package svg 把 SVG 矢量图栅格化为 PNG
package svg

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// 超过这个尺寸直接拒绝，防止一个 width="100000" 的文件吃光内存
const maxDimension = 8192

var ErrInvalidSize = errors.New("svg has no usable size")

// Rasterizer 可以在多个 goroutine 之间共享
// 字体库只加载一次，所有 input 共用
type Rasterizer struct {
	fonts *FontDB
}

// NewRasterizer 使用系统字体目录
func NewRasterizer() *Rasterizer {
	return NewRasterizerWithFonts(NewFontDB())
}

func NewRasterizerWithFonts(fonts *FontDB) *Rasterizer {
	return &Rasterizer{fonts: fonts}
}

// RasterizeToPNG 按文档自身尺寸渲染并编码为 PNG
// 含有画不出来的元素时返回 ErrUnsupportedElement
func (r *Rasterizer) RasterizeToPNG(data []byte) ([]byte, error) {
	// 1. 先检查元素并收集文字，oksvg 本身不画 <text>
	runs, err := scanText(data)
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, fmt.Errorf("failed to parse svg: %w", err)
	}

	// 2. 计算尺寸: 显式 width/height 优先，其次 viewBox
	w, h := intrinsicSize(data)
	if w <= 0 {
		w = icon.ViewBox.W
	}
	if h <= 0 {
		h = icon.ViewBox.H
	}
	width, height := int(math.Ceil(w)), int(math.Ceil(h))
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidSize
	}
	if width > maxDimension || height > maxDimension {
		return nil, fmt.Errorf("svg is too large (%dx%d)", width, height)
	}
	if icon.ViewBox.W <= 0 || icon.ViewBox.H <= 0 {
		icon.ViewBox.W, icon.ViewBox.H = w, h
	}

	// 3. 渲染图形，再把文字画在上面
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	icon.SetTarget(0, 0, float64(width), float64(height))
	scanner := rasterx.NewScannerGV(width, height, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(width, height, scanner), 1)
	if err := r.drawText(img, runs, icon.ViewBox); err != nil {
		return nil, err
	}

	// 4. 编码
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// viewBox 和 oksvg.SvgIcon.ViewBox 是同一个类型
type viewBox = struct{ X, Y, W, H float64 }

// drawText 把 viewBox 坐标映射到像素后逐段绘制
func (r *Rasterizer) drawText(img *image.NRGBA, runs []textRun, vb viewBox) error {
	if len(runs) == 0 {
		return nil
	}
	sx := float64(img.Bounds().Dx()) / vb.W
	sy := float64(img.Bounds().Dy()) / vb.H

	for _, run := range runs {
		fill, err := oksvg.ParseSVGColor(run.style.fill)
		if err != nil {
			return fmt.Errorf("invalid text fill %q: %w", run.style.fill, err)
		}
		if fill == nil {
			continue
		}
		f, err := r.fonts.Match(run.style.family)
		if err != nil {
			return err
		}
		face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: run.style.size * sy, DPI: 72, Hinting: font.HintingNone})
		if err != nil {
			return fmt.Errorf("failed to create font face: %w", err)
		}

		d := &font.Drawer{Dst: img, Src: image.NewUniform(fill), Face: face}
		x := (run.x + run.style.tx - vb.X) * sx
		y := (run.y + run.style.ty - vb.Y) * sy
		advance := float64(d.MeasureString(run.text)) / 64
		switch run.style.anchor {
		case "middle":
			x -= advance / 2
		case "end":
			x -= advance
		}
		d.Dot = fixed.Point26_6{X: fixed.Int26_6(math.Round(x * 64)), Y: fixed.Int26_6(math.Round(y * 64))}
		d.DrawString(run.text)
		face.Close()
	}
	return nil
}

// intrinsicSize 读取根元素的 width/height 属性 (只支持无单位和 px)
func intrinsicSize(data []byte) (w, h float64) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err == io.EOF || err != nil {
			return 0, 0
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "svg" {
			return 0, 0
		}
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "width":
				w = parseLength(attr.Value)
			case "height":
				h = parseLength(attr.Value)
			}
		}
		return w, h
	}
}

func parseLength(s string) float64 {
	s = strings.TrimSuffix(strings.TrimSpace(s), "px")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// 百分比、em 等单位无法确定绝对尺寸，交给 viewBox
		return 0
	}
	return v
}
