package raster

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Shapes(t *testing.T) {
	for _, ch := range []int{1, 3, 4} {
		img, err := New(5, 4, ch)
		require.NoError(t, err)
		assert.Len(t, img.Pix, 5*4*ch)
		assert.NoError(t, img.Validate())
	}
}

func TestNew_Invalid(t *testing.T) {
	cases := []struct {
		name        string
		w, h, chans int
	}{
		{"zero_width", 0, 4, 3},
		{"zero_height", 4, 0, 3},
		{"two_channels", 4, 4, 2},
		{"five_channels", 4, 4, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.w, tc.h, tc.chans)
			assert.Error(t, err)
		})
	}
}

func TestValidate_BufferMismatch(t *testing.T) {
	img := &Image{Width: 2, Height: 2, Channels: 3, Pix: make([]uint8, 11)}
	assert.Error(t, img.Validate())

	var nilImg *Image
	assert.Error(t, nilImg.Validate())
}

func TestPixelAndFill(t *testing.T) {
	img, err := New(3, 2, 4)
	require.NoError(t, err)
	img.Fill([]uint8{1, 2, 3})
	assert.Equal(t, []uint8{1, 2, 3, 0}, img.Pixel(2, 1))

	img.Pixel(1, 0)[0] = 9
	assert.Equal(t, uint8(9), img.Pix[img.Offset(1, 0)])
	assert.Equal(t, 12, img.Stride())
}

func TestFromImage_Gray(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 3, 2))
	g.SetGray(2, 1, color.Gray{Y: 77})
	img, err := FromImage(g)
	require.NoError(t, err)
	assert.Equal(t, 1, img.Channels)
	assert.Equal(t, []uint8{77}, img.Pixel(2, 1))

	back, ok := img.ToImage().(*image.Gray)
	require.True(t, ok)
	assert.Equal(t, g.Pix, back.Pix)
}

func TestFromImage_OpaqueBecomesRGB(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := range src.Pix {
		src.Pix[i] = 0xff
	}
	src.SetRGBA(1, 1, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	img, err := FromImage(src)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Channels)
	assert.Equal(t, []uint8{10, 20, 30}, img.Pixel(1, 1))

	out := img.ToImage()
	assert.Equal(t, color.RGBA{R: 10, G: 20, B: 30, A: 255}, out.At(1, 1))
}

func TestFromImage_TranslucentKeepsAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(10, 10, 12, 12))
	src.SetNRGBA(11, 10, color.NRGBA{R: 200, G: 100, B: 50, A: 128})
	img, err := FromImage(src)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Channels)
	assert.Equal(t, 2, img.Width)
	assert.Equal(t, []uint8{200, 100, 50, 128}, img.Pixel(1, 0))

	back, ok := img.ToImage().(*image.NRGBA)
	require.True(t, ok)
	assert.Equal(t, color.NRGBA{R: 200, G: 100, B: 50, A: 128}, back.NRGBAAt(1, 0))
}

func TestFromImage_YCbCr(t *testing.T) {
	src := image.NewYCbCr(image.Rect(0, 0, 4, 4), image.YCbCrSubsampleRatio420)
	img, err := FromImage(src)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Channels)
}

func TestFromImage_Empty(t *testing.T) {
	_, err := FromImage(image.NewRGBA(image.Rect(0, 0, 0, 5)))
	assert.Error(t, err)
}
