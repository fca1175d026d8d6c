// Package convert is the entry point of the fisheye to perspective core.
// A Converter is built from a validated Configuration and turns an
// in-memory fisheye image into a new rectilinear image.
package convert

import (
	"time"

	"github.com/pkg/errors"

	"github.com/cjeanneret/FishGo/internal/debug"
	"github.com/cjeanneret/FishGo/internal/logic/mapping"
	"github.com/cjeanneret/FishGo/internal/logic/resample"
	"github.com/cjeanneret/FishGo/internal/raster"
)

// Converter runs conversions for one Configuration. It holds no mutable
// state and is safe for concurrent use.
type Converter struct {
	cfg Configuration
}

// NewConverter validates cfg and returns a Converter bound to a copy of it.
func NewConverter(cfg Configuration) (*Converter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Background = append([]uint8(nil), cfg.Background...)
	return &Converter{cfg: cfg}, nil
}

// Config returns the configuration the converter was built with.
func (c *Converter) Config() Configuration {
	cfg := c.cfg
	cfg.Background = append([]uint8(nil), c.cfg.Background...)
	return cfg
}

// Map builds the coordinate map for an input of the given size.
func (c *Converter) Map(inputWidth, inputHeight int) (*mapping.CoordinateMap, error) {
	if inputWidth < 1 || inputHeight < 1 {
		return nil, NewDimensionError("input image", inputWidth, inputHeight)
	}
	outW, outH := c.cfg.OutputSize(inputWidth, inputHeight)
	if outW < 1 || outH < 1 {
		return nil, NewDimensionError("output image", outW, outH)
	}
	m, err := mapping.Build(mapping.Params{
		Projection:        c.cfg.Projection,
		Format:            c.cfg.Format,
		FisheyeFOVDeg:     c.cfg.FisheyeFOVDeg,
		PerspectiveFOVDeg: c.cfg.PerspectiveFOVDeg,
		InputWidth:        inputWidth,
		InputHeight:       inputHeight,
		OutputWidth:       outW,
		OutputHeight:      outH,
		Workers:           c.cfg.Workers,
	})
	if err != nil {
		return nil, errors.Wrap(err, "build coordinate map")
	}
	return m, nil
}

// Convert maps img into the perspective view. img is never modified; the
// returned image is newly allocated and has img's channel count. Output
// pixels whose ray the lens never captured hold the configured background.
func (c *Converter) Convert(img *raster.Image) (*raster.Image, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	if img.Width < 1 || img.Height < 1 {
		return nil, NewDimensionError("input image", img.Width, img.Height)
	}
	if err := img.Validate(); err != nil {
		return nil, errors.Wrap(err, "input image")
	}

	debug.Section("Fisheye to perspective")
	debug.Image("Input", img.Width, img.Height, img.Channels)

	start := time.Now()
	m, err := c.Map(img.Width, img.Height)
	if err != nil {
		return nil, err
	}
	debug.Elapsed("Coordinate map", start)

	start = time.Now()
	out, err := resample.Resample(img, m, resample.Options{
		Interpolation: c.cfg.Interpolation,
		Background:    c.cfg.Background,
		Workers:       c.cfg.Workers,
	})
	if err != nil {
		return nil, errors.Wrap(err, "resample")
	}
	debug.Elapsed("Resample", start)
	debug.Image("Output", out.Width, out.Height, out.Channels)
	return out, nil
}
