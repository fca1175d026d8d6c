package mapping

import (
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/cjeanneret/FishGo/internal/debug"
	"github.com/cjeanneret/FishGo/internal/logic/geometry"
	"github.com/cjeanneret/FishGo/internal/logic/projection"
)

// Coord is a source coordinate in continuous input image space.
// Valid is false for output pixels whose ray was never captured by the lens
// or lands outside the input frame.
type Coord struct {
	X, Y  float64
	Valid bool
}

// CoordinateMap holds one Coord per output pixel, row-major.
type CoordinateMap struct {
	Width  int
	Height int
	Coords []Coord

	// Source frame the coordinates refer to.
	InputWidth  int
	InputHeight int
}

// At returns the entry for output pixel (x, y).
func (m *CoordinateMap) At(x, y int) Coord {
	return m.Coords[y*m.Width+x]
}

// ValidCount returns the number of entries with a source coordinate.
func (m *CoordinateMap) ValidCount() int {
	n := 0
	for _, c := range m.Coords {
		if c.Valid {
			n++
		}
	}
	return n
}

// Params describes a single fisheye to perspective mapping.
type Params struct {
	Projection        projection.Kind
	Format            geometry.Format
	FisheyeFOVDeg     float64
	PerspectiveFOVDeg float64

	InputWidth   int
	InputHeight  int
	OutputWidth  int
	OutputHeight int

	// Workers bounds the goroutines filling row bands. 0 uses GOMAXPROCS.
	Workers int
}

// MaxTheta is half the fisheye field of view in radians.
func (p Params) MaxTheta() float64 {
	return p.FisheyeFOVDeg / 2 * math.Pi / 180
}

// Build computes the source coordinate of every output pixel. The result
// depends only on p; rows are filled in parallel but every entry is
// computed independently, so the map is identical for any worker count.
func Build(p Params) (*CoordinateMap, error) {
	circle, err := geometry.Resolve(p.InputWidth, p.InputHeight, p.Format)
	if err != nil {
		return nil, fmt.Errorf("resolve fisheye circle: %w", err)
	}
	cam, err := geometry.NewPerspectiveCamera(p.OutputWidth, p.OutputHeight, p.PerspectiveFOVDeg)
	if err != nil {
		return nil, fmt.Errorf("perspective camera: %w", err)
	}
	maxTheta := p.MaxTheta()
	f, err := p.Projection.FocalLength(maxTheta, circle.Radius)
	if err != nil {
		return nil, fmt.Errorf("fisheye focal length: %w", err)
	}

	debug.Verbose("Fisheye circle: center=(%.2f, %.2f) radius=%.2f (%s)", circle.CenterX, circle.CenterY, circle.Radius, p.Format)
	debug.Verbose("Fisheye focal length: %.4f px (%s, max theta %.4f rad)", f, p.Projection, maxTheta)
	debug.Verbose("Perspective focal length: %.4f px (H %.2f°, V %.2f°, D %.2f°)",
		cam.Focal, cam.HorizontalFOV(), cam.VerticalFOV(), cam.DiagonalFOV())

	m := &CoordinateMap{
		Width:       p.OutputWidth,
		Height:      p.OutputHeight,
		Coords:      make([]Coord, p.OutputWidth*p.OutputHeight),
		InputWidth:  p.InputWidth,
		InputHeight: p.InputHeight,
	}
	inW, inH := float64(p.InputWidth), float64(p.InputHeight)

	fillRows := func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			row := m.Coords[y*m.Width : (y+1)*m.Width]
			for x := range row {
				theta, phi := cam.PixelToRay(x, y)
				if theta > maxTheta {
					continue
				}
				r, ok := p.Projection.RadiusFromAngle(theta, f)
				if !ok {
					continue
				}
				sx, sy := circle.FromPolar(r, phi)
				if sx < 0 || sy < 0 || sx > inW || sy > inH {
					continue
				}
				row[x] = Coord{X: sx, Y: sy, Valid: true}
			}
		}
	}

	var g errgroup.Group
	for _, band := range SplitRows(m.Height, workerCount(p.Workers)) {
		y0, y1 := band[0], band[1]
		g.Go(func() error {
			debug.Trace("mapping rows [%d, %d)", y0, y1)
			fillRows(y0, y1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if debug.IsEnabled(debug.LevelVerbose) {
		valid := m.ValidCount()
		debug.Verbose("Mapping: %d/%d output pixels have a source (%d no-source)", valid, len(m.Coords), len(m.Coords)-valid)
	}
	return m, nil
}

// SplitRows divides height rows into at most n contiguous [start, end) bands.
func SplitRows(height, n int) [][2]int {
	if n < 1 {
		n = 1
	}
	if n > height {
		n = height
	}
	bands := make([][2]int, 0, n)
	for i := 0; i < n; i++ {
		y0 := i * height / n
		y1 := (i + 1) * height / n
		if y1 > y0 {
			bands = append(bands, [2]int{y0, y1})
		}
	}
	return bands
}

func workerCount(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}
