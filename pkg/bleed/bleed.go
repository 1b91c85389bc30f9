// Package bleed 实现 alpha bleed:
// 把完全透明像素的 RGB 替换成最近的不透明像素颜色，避免双线性过滤采样到背景色
package bleed

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
)

// Format 是栅格图片的编码格式
type Format string

const (
	PNG Format = "png"
	JPG Format = "jpg"
	BMP Format = "bmp"
	TGA Format = "tga"
)

// Apply 解码图片、执行 alpha bleed、再按原格式编码
// 没有透明像素的图片 (包括所有 JPEG) 原样返回
func Apply(data []byte, format Format) ([]byte, error) {
	if format == JPG {
		return data, nil
	}

	img, err := decode(data, format)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", format, err)
	}

	nrgba := toNRGBA(img)
	if !Bleed(nrgba) {
		return data, nil
	}

	var buf bytes.Buffer
	if err := encode(&buf, nrgba, format); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

func decode(data []byte, format Format) (image.Image, error) {
	r := bytes.NewReader(data)
	switch format {
	case PNG:
		return png.Decode(r)
	case BMP:
		return bmp.Decode(r)
	case TGA:
		return tga.Decode(r)
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

func encode(buf *bytes.Buffer, img image.Image, format Format) error {
	switch format {
	case PNG:
		return png.Encode(buf, img)
	case BMP:
		return bmp.Encode(buf, img)
	case TGA:
		return tga.Encode(buf, img)
	}
	return fmt.Errorf("unsupported format %q", format)
}

func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// Bleed 原地修改图片，返回是否存在透明像素 (即是否有修改的必要)
// 算法: 多源 BFS，从不透明像素一圈一圈向外扩散，
// 每个透明像素取上一圈中已填充邻居的平均色，alpha 保持为 0
func Bleed(img *image.NRGBA) bool {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w == 0 || h == 0 {
		return false
	}

	filled := make([]bool, w*h)
	queued := make([]bool, w*h)
	anyTransparent := false
	anyOpaque := false

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if img.Pix[img.PixOffset(x, y)+3] != 0 {
				filled[y*w+x] = true
				anyOpaque = true
			} else {
				anyTransparent = true
			}
		}
	}
	if !anyTransparent {
		return false
	}
	if !anyOpaque {
		// 全透明，没有颜色可以扩散
		return true
	}

	// 1. 初始边界: 与不透明像素相邻的透明像素
	var frontier []int
	for i := range filled {
		if filled[i] {
			continue
		}
		if hasNeighbour(i, w, h, filled) {
			frontier = append(frontier, i)
			queued[i] = true
		}
	}

	// 2. 一圈一圈地扩散
	for len(frontier) > 0 {
		for _, i := range frontier {
			fillFromNeighbours(img, i, w, h, filled)
		}
		for _, i := range frontier {
			filled[i] = true
		}

		var next []int
		for _, i := range frontier {
			forEachNeighbour(i, w, h, func(n int) {
				if !filled[n] && !queued[n] {
					queued[n] = true
					next = append(next, n)
				}
			})
		}
		frontier = next
	}
	return true
}

func forEachNeighbour(i, w, h int, fn func(n int)) {
	x, y := i%w, i/w
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := x+dx, y+dy
			if nx < 0 || ny < 0 || nx >= w || ny >= h {
				continue
			}
			fn(ny*w + nx)
		}
	}
}

func hasNeighbour(i, w, h int, filled []bool) bool {
	found := false
	forEachNeighbour(i, w, h, func(n int) {
		if filled[n] {
			found = true
		}
	})
	return found
}

func fillFromNeighbours(img *image.NRGBA, i, w, h int, filled []bool) {
	var r, g, b, count int
	forEachNeighbour(i, w, h, func(n int) {
		if !filled[n] {
			return
		}
		off := img.PixOffset(n%w, n/w)
		r += int(img.Pix[off])
		g += int(img.Pix[off+1])
		b += int(img.Pix[off+2])
		count++
	})
	if count == 0 {
		return
	}
	off := img.PixOffset(i%w, i/w)
	img.Pix[off] = uint8(r / count)
	img.Pix[off+1] = uint8(g / count)
	img.Pix[off+2] = uint8(b / count)
	img.Pix[off+3] = 0
}
