package resample

import (
	"fmt"
	"image/color"
	"math"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/cjeanneret/FishGo/internal/debug"
	"github.com/cjeanneret/FishGo/internal/logic/mapping"
	"github.com/cjeanneret/FishGo/internal/raster"
)

// Interpolation selects how a source coordinate between pixel centres is
// sampled.
type Interpolation int

const (
	// Bilinear blends the four nearest pixel centres.
	Bilinear Interpolation = iota
	// Nearest takes the pixel containing the coordinate.
	Nearest
)

func (i Interpolation) String() string {
	switch i {
	case Bilinear:
		return "bilinear"
	case Nearest:
		return "nearest"
	default:
		return fmt.Sprintf("Interpolation(%d)", int(i))
	}
}

// ParseInterpolation parses "bilinear" or "nearest".
func ParseInterpolation(s string) (Interpolation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bilinear", "linear":
		return Bilinear, nil
	case "nearest":
		return Nearest, nil
	default:
		return 0, fmt.Errorf("unknown interpolation %q", s)
	}
}

// Options controls a resampling pass.
type Options struct {
	Interpolation Interpolation

	// Background fills output pixels without a source. Channels missing
	// from the slice are zero, so a nil Background yields black (and fully
	// transparent for RGBA images). A colour given for a gray image is
	// reduced to its luma.
	Background []uint8

	// Workers bounds the goroutines filling row bands. 0 uses GOMAXPROCS.
	Workers int
}

// Resample samples src through m and returns a new image of m's size with
// src's channel count. src is only read.
func Resample(src *raster.Image, m *mapping.CoordinateMap, opts Options) (*raster.Image, error) {
	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("source image: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("coordinate map is nil")
	}
	if m.Width < 1 || m.Height < 1 || len(m.Coords) != m.Width*m.Height {
		return nil, fmt.Errorf("coordinate map is %dx%d with %d entries", m.Width, m.Height, len(m.Coords))
	}
	if m.InputWidth != src.Width || m.InputHeight != src.Height {
		return nil, fmt.Errorf("coordinate map built for %dx%d input, got %dx%d",
			m.InputWidth, m.InputHeight, src.Width, src.Height)
	}

	dst, err := raster.New(m.Width, m.Height, src.Channels)
	if err != nil {
		return nil, fmt.Errorf("output image: %w", err)
	}
	background := backgroundFor(opts.Background, src.Channels)

	var sample func(x, y float64, out []uint8)
	switch opts.Interpolation {
	case Bilinear:
		sample = func(x, y float64, out []uint8) { bilinear(src, x, y, out) }
	case Nearest:
		sample = func(x, y float64, out []uint8) { nearest(src, x, y, out) }
	default:
		return nil, fmt.Errorf("invalid interpolation %d", int(opts.Interpolation))
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	var g errgroup.Group
	for _, band := range mapping.SplitRows(m.Height, workers) {
		y0, y1 := band[0], band[1]
		g.Go(func() error {
			debug.Trace("resampling rows [%d, %d)", y0, y1)
			for y := y0; y < y1; y++ {
				for x := 0; x < m.Width; x++ {
					out := dst.Pixel(x, y)
					c := m.At(x, y)
					if !c.Valid || !finite(c.X) || !finite(c.Y) {
						copy(out, background)
						continue
					}
					sample(c.X, c.Y, out)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return dst, nil
}

// backgroundFor sizes bg to the given channel count.
func backgroundFor(bg []uint8, channels int) []uint8 {
	out := make([]uint8, channels)
	if channels == 1 && len(bg) >= 3 {
		out[0] = color.GrayModel.Convert(color.RGBA{R: bg[0], G: bg[1], B: bg[2], A: 0xff}).(color.Gray).Y
		return out
	}
	copy(out, bg)
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// bilinear samples at continuous coordinate (x, y). Pixel i's centre lies
// at i+0.5; positions past the outer centres clamp to the edge pixel.
func bilinear(src *raster.Image, x, y float64, out []uint8) {
	sx := clamp(x-0.5, 0, float64(src.Width-1))
	sy := clamp(y-0.5, 0, float64(src.Height-1))

	x0 := int(math.Floor(sx))
	y0 := int(math.Floor(sy))
	x1 := min(x0+1, src.Width-1)
	y1 := min(y0+1, src.Height-1)
	fx := sx - float64(x0)
	fy := sy - float64(y0)

	p00 := src.Pixel(x0, y0)
	p10 := src.Pixel(x1, y0)
	p01 := src.Pixel(x0, y1)
	p11 := src.Pixel(x1, y1)
	for c := range out {
		top := lerp(float64(p00[c]), float64(p10[c]), fx)
		bottom := lerp(float64(p01[c]), float64(p11[c]), fx)
		out[c] = uint8(clamp(lerp(top, bottom, fy)+0.5, 0, 255))
	}
}

func nearest(src *raster.Image, x, y float64, out []uint8) {
	ix := int(clamp(math.Floor(x), 0, float64(src.Width-1)))
	iy := int(clamp(math.Floor(y), 0, float64(src.Height-1)))
	copy(out, src.Pixel(ix, iy))
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
