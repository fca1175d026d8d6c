// Package raster holds the in-memory image exchanged with the conversion
// core: an 8-bit, row-major, interleaved pixel buffer with 1 (gray),
// 3 (RGB) or 4 (non-premultiplied RGBA) channels.
package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
)

// Image is a width×height×channels pixel grid.
type Image struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// New allocates a zeroed image.
func New(width, height, channels int) (*Image, error) {
	img := &Image{Width: width, Height: height, Channels: channels}
	if err := img.checkShape(); err != nil {
		return nil, err
	}
	img.Pix = make([]uint8, width*height*channels)
	return img, nil
}

func (m *Image) checkShape() error {
	if m.Width < 1 || m.Height < 1 {
		return fmt.Errorf("image dimensions must be at least 1x1, got %dx%d", m.Width, m.Height)
	}
	switch m.Channels {
	case 1, 3, 4:
	default:
		return fmt.Errorf("unsupported channel count %d (want 1, 3 or 4)", m.Channels)
	}
	return nil
}

// Validate checks the shape and that Pix matches it.
func (m *Image) Validate() error {
	if m == nil {
		return fmt.Errorf("image is nil")
	}
	if err := m.checkShape(); err != nil {
		return err
	}
	if want := m.Width * m.Height * m.Channels; len(m.Pix) != want {
		return fmt.Errorf("pixel buffer holds %d bytes, want %d", len(m.Pix), want)
	}
	return nil
}

// Stride is the number of bytes per row.
func (m *Image) Stride() int {
	return m.Width * m.Channels
}

// Offset returns the index of the first channel of pixel (x, y).
func (m *Image) Offset(x, y int) int {
	return y*m.Stride() + x*m.Channels
}

// Pixel returns the channel values of pixel (x, y). The slice aliases Pix.
func (m *Image) Pixel(x, y int) []uint8 {
	i := m.Offset(x, y)
	return m.Pix[i : i+m.Channels]
}

// Fill sets every pixel to value. Missing channels in value read as 0.
func (m *Image) Fill(value []uint8) {
	for i := 0; i < len(m.Pix); i += m.Channels {
		for c := 0; c < m.Channels; c++ {
			if c < len(value) {
				m.Pix[i+c] = value[c]
			} else {
				m.Pix[i+c] = 0
			}
		}
	}
}

type opaquer interface {
	Opaque() bool
}

// FromImage copies a standard library image. Gray images keep one
// channel, opaque images become RGB and everything else RGBA.
func FromImage(src image.Image) (*Image, error) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	channels := 4
	switch s := src.(type) {
	case *image.Gray, *image.Gray16:
		channels = 1
	case *image.YCbCr:
		channels = 3
	case opaquer:
		if s.Opaque() {
			channels = 3
		}
	}

	dst, err := New(w, h, channels)
	if err != nil {
		return nil, err
	}

	switch channels {
	case 1:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				g := color.GrayModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
				dst.Pix[y*w+x] = g.Y
			}
		}
	case 3:
		rgba := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)
		for i, j := 0, 0; i < len(rgba.Pix); i, j = i+4, j+3 {
			copy(dst.Pix[j:j+3], rgba.Pix[i:i+3])
		}
	default:
		nrgba := image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.Draw(nrgba, nrgba.Bounds(), src, b.Min, draw.Src)
		copy(dst.Pix, nrgba.Pix)
	}
	return dst, nil
}

// ToImage converts to a standard library image: *image.Gray for one
// channel, *image.RGBA (opaque) for three and *image.NRGBA for four.
func (m *Image) ToImage() image.Image {
	r := image.Rect(0, 0, m.Width, m.Height)
	switch m.Channels {
	case 1:
		g := image.NewGray(r)
		copy(g.Pix, m.Pix)
		return g
	case 3:
		rgba := image.NewRGBA(r)
		for i, j := 0, 0; j < len(m.Pix); i, j = i+4, j+3 {
			copy(rgba.Pix[i:i+3], m.Pix[j:j+3])
			rgba.Pix[i+3] = 0xff
		}
		return rgba
	default:
		n := image.NewNRGBA(r)
		copy(n.Pix, m.Pix)
		return n
	}
}
