package convert

import (
	"math"

	"github.com/cjeanneret/FishGo/internal/logic/geometry"
	"github.com/cjeanneret/FishGo/internal/logic/projection"
	"github.com/cjeanneret/FishGo/internal/logic/resample"
)

// Configuration fully specifies a fisheye to perspective conversion.
type Configuration struct {
	FisheyeFOVDeg     float64 // (0, 360]
	PerspectiveFOVDeg float64 // (0, 180), measured across the output diagonal
	Projection        projection.Kind
	Format            geometry.Format

	// Output size in pixels. Zero means the input's size along that axis.
	OutputWidth  int
	OutputHeight int

	Interpolation resample.Interpolation

	// Background is written to output pixels without a source, one byte
	// per channel. Missing channels are zero.
	Background []uint8

	// Workers bounds per-conversion parallelism. 0 uses GOMAXPROCS.
	Workers int
}

// Validate reports the first field outside its accepted range as a
// *FieldError wrapping ErrInvalidConfiguration.
func (c Configuration) Validate() error {
	if !finite(c.FisheyeFOVDeg) || c.FisheyeFOVDeg <= 0 || c.FisheyeFOVDeg > 360 {
		return invalidField("fisheye_fov_deg", c.FisheyeFOVDeg, "must be in (0, 360]")
	}
	if !finite(c.PerspectiveFOVDeg) || c.PerspectiveFOVDeg <= 0 || c.PerspectiveFOVDeg >= 180 {
		return invalidField("perspective_fov_deg", c.PerspectiveFOVDeg, "must be in (0, 180)")
	}
	if !c.Projection.Valid() {
		return invalidField("projection", int(c.Projection), "is not a known projection")
	}
	if !c.Format.Valid() {
		return invalidField("format", int(c.Format), "is not a known fisheye format")
	}
	maxTheta := c.FisheyeFOVDeg / 2 * math.Pi / 180
	if _, err := c.Projection.FocalLength(maxTheta, 1); err != nil {
		return invalidField("fisheye_fov_deg", c.FisheyeFOVDeg, "is out of reach of the "+c.Projection.String()+" projection")
	}
	if c.OutputWidth < 0 {
		return invalidField("output_width", c.OutputWidth, "must be >= 0")
	}
	if c.OutputHeight < 0 {
		return invalidField("output_height", c.OutputHeight, "must be >= 0")
	}
	switch c.Interpolation {
	case resample.Bilinear, resample.Nearest:
	default:
		return invalidField("interpolation", int(c.Interpolation), "is not a known interpolation")
	}
	if len(c.Background) > 4 {
		return invalidField("background", c.Background, "must have at most 4 channels")
	}
	if c.Workers < 0 {
		return invalidField("workers", c.Workers, "must be >= 0")
	}
	return nil
}

// OutputSize resolves the output dimensions for an input of the given size.
func (c Configuration) OutputSize(inputWidth, inputHeight int) (int, int) {
	w, h := c.OutputWidth, c.OutputHeight
	if w == 0 {
		w = inputWidth
	}
	if h == 0 {
		h = inputHeight
	}
	return w, h
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
