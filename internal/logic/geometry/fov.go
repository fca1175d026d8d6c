package geometry

import "math"

// FOVFromFocal returns the field of view in degrees spanned by sizePx pixels
// behind a pinhole of focal length focalPx.
// Formula: FOV = 2 × arctan(size / (2 × focal))
func FOVFromFocal(sizePx, focalPx float64) float64 {
	return 2.0 * math.Atan(sizePx/(2.0*focalPx)) * 180.0 / math.Pi
}

// FocalFromFOV is the inverse of FOVFromFocal.
// Formula: focal = (size / 2) / tan(FOV / 2)
func FocalFromFOV(sizePx, fovDeg float64) float64 {
	return (sizePx / 2.0) / math.Tan(fovDeg*math.Pi/360.0)
}

// HorizontalFOV is the horizontal field of view of the camera in degrees.
func (p *PerspectiveCamera) HorizontalFOV() float64 {
	return FOVFromFocal(float64(p.Width), p.Focal)
}

// VerticalFOV is the vertical field of view of the camera in degrees.
func (p *PerspectiveCamera) VerticalFOV() float64 {
	return FOVFromFocal(float64(p.Height), p.Focal)
}

// DiagonalFOV is the diagonal field of view of the camera in degrees.
// It equals the FOV the camera was built with.
func (p *PerspectiveCamera) DiagonalFOV() float64 {
	return FOVFromFocal(p.diagonal(), p.Focal)
}
