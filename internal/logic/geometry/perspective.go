package geometry

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

var opticalAxis = r3.Vector{X: 0, Y: 0, Z: 1}

// PerspectiveCamera is the virtual pinhole camera rendering the output
// image. Its focal length is chosen so that the full output diagonal spans
// the requested field of view.
type PerspectiveCamera struct {
	Width  int
	Height int
	Focal  float64 // in output pixels
}

// NewPerspectiveCamera builds a camera whose diagonal field of view is
// fovDeg, which must lie in (0, 180).
func NewPerspectiveCamera(width, height int, fovDeg float64) (*PerspectiveCamera, error) {
	if width < 1 || height < 1 {
		return nil, errors.Errorf("output dimensions must be at least 1x1, got %dx%d", width, height)
	}
	if math.IsNaN(fovDeg) || fovDeg <= 0 || fovDeg >= 180 {
		return nil, errors.Errorf("perspective field of view must be in (0, 180), got %g", fovDeg)
	}
	p := &PerspectiveCamera{Width: width, Height: height}
	p.Focal = FocalFromFOV(p.diagonal(), fovDeg)
	return p, nil
}

func (p *PerspectiveCamera) diagonal() float64 {
	return math.Hypot(float64(p.Width), float64(p.Height))
}

// Offset returns the position of the centre of pixel (px, py) relative to
// the image centre.
func (p *PerspectiveCamera) Offset(px, py int) (dx, dy float64) {
	dx = float64(px) + 0.5 - float64(p.Width)/2
	dy = float64(py) + 0.5 - float64(p.Height)/2
	return dx, dy
}

// Ray is the camera-space direction through the centre of pixel (px, py).
// The optical axis is +Z; it is not normalized.
func (p *PerspectiveCamera) Ray(px, py int) r3.Vector {
	dx, dy := p.Offset(px, py)
	return r3.Vector{X: dx, Y: dy, Z: p.Focal}
}

// PixelToRay returns the incidence angle theta from the optical axis and
// the azimuth phi in (-π, π] of the ray through pixel (px, py).
// The centre ray has theta = 0 and phi = 0.
func (p *PerspectiveCamera) PixelToRay(px, py int) (theta, phi float64) {
	ray := p.Ray(px, py)
	theta = ray.Angle(opticalAxis).Radians()
	phi = math.Atan2(ray.Y, ray.X)
	return theta, phi
}
