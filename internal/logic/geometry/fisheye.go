package geometry

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
)

// Format describes how the lens image circle is framed on the sensor.
type Format int

const (
	// Circular: the image circle is inscribed in the frame.
	Circular Format = iota
	// Diagonal: the image circle circumscribes the frame, so the four
	// corners lie on the fisheye rim.
	Diagonal
)

func (f Format) String() string {
	switch f {
	case Circular:
		return "circular"
	case Diagonal:
		return "diagonal"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Valid reports whether f is one of the declared formats.
func (f Format) Valid() bool {
	return f == Circular || f == Diagonal
}

// ParseFormat parses "circular" or "diagonal" (case-insensitive).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "circular":
		return Circular, nil
	case "diagonal":
		return Diagonal, nil
	default:
		return 0, errors.Errorf("unknown fisheye format %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (f Format) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, errors.Errorf("invalid fisheye format %d", int(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Format) UnmarshalText(text []byte) error {
	parsed, err := ParseFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Circle is the usable fisheye image circle in input pixel units.
// Coordinates are continuous: pixel i spans [i, i+1).
type Circle struct {
	CenterX float64
	CenterY float64
	Radius  float64
}

// Resolve derives the image circle of a width×height fisheye frame.
func Resolve(width, height int, format Format) (Circle, error) {
	if width < 1 || height < 1 {
		return Circle{}, errors.Errorf("image dimensions must be at least 1x1, got %dx%d", width, height)
	}
	w, h := float64(width), float64(height)
	c := Circle{CenterX: w / 2, CenterY: h / 2}
	switch format {
	case Circular:
		c.Radius = math.Min(w, h) / 2
	case Diagonal:
		c.Radius = math.Hypot(w, h) / 2
	default:
		return Circle{}, errors.Errorf("invalid fisheye format %d", int(format))
	}
	return c, nil
}

// FromPolar converts a radius and azimuth around the circle centre into
// input image coordinates.
func (c Circle) FromPolar(r, phi float64) (x, y float64) {
	return c.CenterX + r*math.Cos(phi), c.CenterY + r*math.Sin(phi)
}
