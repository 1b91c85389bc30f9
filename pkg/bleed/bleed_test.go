package bleed

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func TestBleed_FillsTransparentPixels(t *testing.T) {
	// 3x1: [红色不透明][透明黑][透明黑]
	img := image.NewNRGBA(image.Rect(0, 0, 3, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})

	changed := Bleed(img)
	require.True(t, changed)

	for x := 1; x < 3; x++ {
		c := img.NRGBAAt(x, 0)
		assert.Equal(t, uint8(255), c.R, "x=%d 应该继承红色", x)
		assert.Equal(t, uint8(0), c.A, "alpha 必须保持为 0")
	}
	// 不透明像素不变
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, img.NRGBAAt(0, 0))
}

func TestBleed_AveragesNeighbours(t *testing.T) {
	// [红][透明][蓝] -> 中间取平均
	img := image.NewNRGBA(image.Rect(0, 0, 3, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 200, A: 255})
	img.SetNRGBA(2, 0, color.NRGBA{B: 100, A: 255})

	require.True(t, Bleed(img))
	assert.Equal(t, color.NRGBA{R: 100, B: 50, A: 0}, img.NRGBAAt(1, 0))
}

func TestBleed_Cases(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*image.NRGBA)
		want  bool
	}{
		{"fully opaque", func(img *image.NRGBA) {
			for i := 3; i < len(img.Pix); i += 4 {
				img.Pix[i] = 255
			}
		}, false},
		{"fully transparent", func(*image.NRGBA) {}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
			tt.setup(img)
			assert.Equal(t, tt.want, Bleed(img))
		})
	}
}

func encodePNG(t *testing.T, img image.Image) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestApply_PNGRoundTrip(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{G: 255, A: 255})

	out, err := Apply(encodePNG(t, img), PNG)
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	got := color.NRGBAModel.Convert(decoded.At(1, 0)).(color.NRGBA)
	assert.Equal(t, uint8(0), got.A)
	// 透明像素在 NRGBA 下保留 RGB
	assert.Equal(t, uint8(255), got.G)
}

func TestApply_OpaqueImageUnchanged(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	in := encodePNG(t, img)

	out, err := Apply(in, PNG)
	require.NoError(t, err)
	assert.Equal(t, in, out, "没有透明像素时不应重新编码")
}

func TestApply_BMP(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 9, A: 255})
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, img))

	out, err := Apply(buf.Bytes(), BMP)
	require.NoError(t, err)
	assert.Equal(t, buf.Bytes(), out)
}

func TestApply_JPEGPassThrough(t *testing.T) {
	in := []byte("not even decoded")
	out, err := Apply(in, JPG)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestApply_CorruptInput(t *testing.T) {
	_, err := Apply([]byte("garbage"), PNG)
	assert.Error(t, err)
}
