package projection

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
)

// Kind selects the fisheye lens model relating the incidence angle theta
// to the radial distance r on the image plane.
type Kind int

const (
	// Equidistant: r = f·θ.
	Equidistant Kind = iota
	// EqualArea (equisolid): r = 2f·sin(θ/2).
	EqualArea
	// Orthographic: r = f·sin(θ). Saturates at θ = π/2.
	Orthographic
	// Stereographic: r = 2f·tan(θ/2).
	Stereographic
)

// Kinds lists every supported model, in declaration order.
var Kinds = []Kind{Equidistant, EqualArea, Orthographic, Stereographic}

// ErrInfeasible is returned when no focal length maps the requested
// maximum angle onto the image circle for a model.
var ErrInfeasible = errors.New("projection cannot reach requested angle")

func (k Kind) String() string {
	switch k {
	case Equidistant:
		return "equidistant"
	case EqualArea:
		return "equal_area"
	case Orthographic:
		return "orthographic"
	case Stereographic:
		return "stereographic"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Valid reports whether k is one of the declared models.
func (k Kind) Valid() bool {
	return k >= Equidistant && k <= Stereographic
}

// ParseKind accepts the model names used in config files and on the command
// line. "equisolid" is an alias for equal_area.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "equidistant":
		return Equidistant, nil
	case "equal_area", "equal-area", "equalarea", "equisolid":
		return EqualArea, nil
	case "orthographic":
		return Orthographic, nil
	case "stereographic":
		return Stereographic, nil
	default:
		return 0, errors.Errorf("unknown projection type %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, errors.Errorf("invalid projection kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// RadiusFromAngle returns the image-plane radius for incidence angle theta
// (radians) under focal length f. ok is false when the model has no image
// for theta, which the caller must treat as a ray with no source pixel.
func (k Kind) RadiusFromAngle(theta, f float64) (r float64, ok bool) {
	if theta < 0 || math.IsNaN(theta) {
		return 0, false
	}
	switch k {
	case Equidistant:
		return f * theta, true
	case EqualArea:
		if theta > math.Pi {
			return 0, false
		}
		return 2 * f * math.Sin(theta/2), true
	case Orthographic:
		if theta > math.Pi/2 {
			return 0, false
		}
		return f * math.Sin(theta), true
	case Stereographic:
		if theta >= math.Pi {
			return 0, false
		}
		return 2 * f * math.Tan(theta/2), true
	default:
		return 0, false
	}
}

// AngleFromRadius is the inverse of RadiusFromAngle. Arguments of the
// inverse sine are clamped to [-1, 1], so radii past the orthographic or
// equal-area rim saturate instead of producing NaN.
func (k Kind) AngleFromRadius(r, f float64) float64 {
	switch k {
	case Equidistant:
		return r / f
	case EqualArea:
		return 2 * math.Asin(clampUnit(r/(2*f)))
	case Orthographic:
		return math.Asin(clampUnit(r / f))
	case Stereographic:
		return 2 * math.Atan(r/(2*f))
	default:
		return math.NaN()
	}
}

// FocalLength solves radius = RadiusFromAngle(maxTheta, f) for f.
func (k Kind) FocalLength(maxTheta, radius float64) (float64, error) {
	if maxTheta <= 0 || radius <= 0 {
		return 0, errors.Wrapf(ErrInfeasible, "%s: max angle %g and radius %g must be positive", k, maxTheta, radius)
	}
	var f float64
	switch k {
	case Equidistant:
		f = radius / maxTheta
	case EqualArea:
		if maxTheta > math.Pi {
			return 0, errors.Wrapf(ErrInfeasible, "%s: max angle %g exceeds π", k, maxTheta)
		}
		f = radius / (2 * math.Sin(maxTheta/2))
	case Orthographic:
		if maxTheta > math.Pi/2 {
			return 0, errors.Wrapf(ErrInfeasible, "%s: max angle %g exceeds π/2", k, maxTheta)
		}
		f = radius / math.Sin(maxTheta)
	case Stereographic:
		if maxTheta >= math.Pi {
			return 0, errors.Wrapf(ErrInfeasible, "%s: max angle %g must be below π", k, maxTheta)
		}
		f = radius / (2 * math.Tan(maxTheta/2))
	default:
		return 0, errors.Errorf("invalid projection kind %d", int(k))
	}
	return f, nil
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
