package svg

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"
)

const helloText = `<svg xmlns="http://www.w3.org/2000/svg" width="40" height="20">
  <text x="2" y="16" font-size="16" fill="black">Hi</text>
</svg>`

// goFonts 建一个只含 Go Regular 的字体目录
func goFonts(t *testing.T) *FontDB {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Go-Regular.ttf"), goregular.TTF, 0o644))
	return NewFontDB(dir)
}

func opaquePixels(t *testing.T, data []byte) int {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	n := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a > 0 {
				n++
			}
		}
	}
	return n
}

func TestRasterizeToPNG_DrawsText(t *testing.T) {
	r := NewRasterizerWithFonts(goFonts(t))

	out, err := r.RasterizeToPNG([]byte(helloText))
	require.NoError(t, err)
	assert.Greater(t, opaquePixels(t, out), 0, "text must produce visible pixels")
}

func TestRasterizeToPNG_TextAnchorMovesGlyphs(t *testing.T) {
	r := NewRasterizerWithFonts(goFonts(t))
	start := `<svg xmlns="http://www.w3.org/2000/svg" width="60" height="20"><text x="30" y="16" font-family="Go">I</text></svg>`
	end := `<svg xmlns="http://www.w3.org/2000/svg" width="60" height="20"><text x="30" y="16" font-family="Go" text-anchor="end">I</text></svg>`

	leftmost := func(doc string) int {
		out, err := r.RasterizeToPNG([]byte(doc))
		require.NoError(t, err)
		img, err := png.Decode(bytes.NewReader(out))
		require.NoError(t, err)
		return firstOpaqueColumn(img)
	}
	assert.Less(t, leftmost(end), leftmost(start))
}

func firstOpaqueColumn(img image.Image) int {
	b := img.Bounds()
	for x := b.Min.X; x < b.Max.X; x++ {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			if _, _, _, a := img.At(x, y).RGBA(); a > 0 {
				return x
			}
		}
	}
	return -1
}

func TestRasterizeToPNG_TextWithoutFonts(t *testing.T) {
	r := NewRasterizerWithFonts(NewFontDB(t.TempDir()))

	_, err := r.RasterizeToPNG([]byte(helloText))
	assert.ErrorIs(t, err, ErrNoFonts)

	// 没有文字时不需要字体
	_, err = r.RasterizeToPNG([]byte(redSquare))
	assert.NoError(t, err)
}

func TestRasterizeToPNG_UnsupportedElements(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"image", `<svg xmlns="http://www.w3.org/2000/svg" width="4" height="4"><image href="a.png" width="4" height="4"/></svg>`},
		{"filter", `<svg xmlns="http://www.w3.org/2000/svg" width="4" height="4"><filter id="f"/><rect width="4" height="4"/></svg>`},
		{"rotated text", `<svg xmlns="http://www.w3.org/2000/svg" width="4" height="4"><g transform="rotate(45)"><text>x</text></g></svg>`},
	}

	r := NewRasterizerWithFonts(goFonts(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.RasterizeToPNG([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrUnsupportedElement)
		})
	}
}

func TestScanText(t *testing.T) {
	doc := `<svg xmlns="http://www.w3.org/2000/svg" xmlns:inkscape="http://www.inkscape.org/namespaces/inkscape" width="10" height="10">
  <inkscape:guide position="1,1"/>
  <metadata><anything/></metadata>
  <g transform="translate(5, 1)" style="font-size: 12px; fill: red">
    <text x="1" y="2">
      Hello
      <tspan>world</tspan>
      <tspan x="7" y="8" font-family="Go">again</tspan>
    </text>
  </g>
  <text>   </text>
</svg>`

	runs, err := scanText([]byte(doc))
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "Hello world", runs[0].text)
	assert.Equal(t, 1.0, runs[0].x)
	assert.Equal(t, 12.0, runs[0].style.size)
	assert.Equal(t, "red", runs[0].style.fill)
	assert.Equal(t, 5.0, runs[0].style.tx)
	assert.Equal(t, 1.0, runs[0].style.ty)

	assert.Equal(t, "again", runs[1].text)
	assert.Equal(t, 7.0, runs[1].x)
	assert.Equal(t, 8.0, runs[1].y)
	assert.Equal(t, "Go", runs[1].style.family)
}

func TestScanText_NotSVG(t *testing.T) {
	_, err := scanText([]byte(`<html/>`))
	assert.ErrorIs(t, err, ErrNotSVG)
}

func TestFontDB_Match(t *testing.T) {
	db := goFonts(t)

	f, err := db.Match(`"Missing Font", Go, sans-serif`)
	require.NoError(t, err)
	assert.NotNil(t, f)

	fallback, err := db.Match("sans-serif")
	require.NoError(t, err)
	assert.Same(t, f, fallback)
}
