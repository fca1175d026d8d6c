package config

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/FishGo/internal/logic/convert"
	"github.com/cjeanneret/FishGo/internal/logic/geometry"
	"github.com/cjeanneret/FishGo/internal/logic/projection"
	"github.com/cjeanneret/FishGo/internal/logic/resample"
)

// MaxConfigFileBytes caps the size of a config file read by Load.
const MaxConfigFileBytes = 1 << 20

// ProjectionConfig describes the lens and the virtual camera.
type ProjectionConfig struct {
	FisheyeFOVDeg     float64 `yaml:"fisheye_fov_deg"`     // full fisheye field of view (0-360]
	PerspectiveFOVDeg float64 `yaml:"perspective_fov_deg"` // diagonal field of view of the output (0-180)
	Type              string  `yaml:"type"`                // equidistant | equal_area | equisolid | orthographic | stereographic
	Format            string  `yaml:"format"`              // circular | diagonal
}

// OutputConfig describes the produced image.
type OutputConfig struct {
	WidthPx       int    `yaml:"width_px"`      // 0 = input width
	HeightPx      int    `yaml:"height_px"`     // 0 = input height
	Interpolation string `yaml:"interpolation"` // bilinear | nearest
	Background    string `yaml:"background"`    // hex colour for pixels the lens never saw, e.g. "#000000"
	CropSquare    bool   `yaml:"crop_square"`   // crop the input to its centred square first
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	Workers     int `yaml:"workers"`       // goroutines per conversion (0 = GOMAXPROCS)
	DebugLevel  int `yaml:"debug_level"`   // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MaxUploadMB int `yaml:"max_upload_mb"` // web upload limit in MiB
}

// Config aggregates all application configuration.
type Config struct {
	Projection ProjectionConfig `yaml:"projection"`
	Output     OutputConfig     `yaml:"output"`
	Defaults   DefaultsConfig   `yaml:"defaults"`
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	return &Config{
		Projection: ProjectionConfig{
			FisheyeFOVDeg:     180,
			PerspectiveFOVDeg: 120,
			Type:              projection.Equidistant.String(),
			Format:            geometry.Circular.String(),
		},
		Output: OutputConfig{
			Interpolation: resample.Bilinear.String(),
			Background:    "#000000",
		},
		Defaults: DefaultsConfig{
			DebugLevel:  1,
			MaxUploadMB: 32,
		},
	}
}

// ValidateConfigPath accepts only .yaml files located directly inside a
// directory named "configs".
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	clean := filepath.Clean(path)
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", MaxConfigFileBytes)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Normalize fills zero values with defaults and validates every field.
func (c *Config) Normalize() error {
	d := Default()
	if c.Projection.FisheyeFOVDeg == 0 {
		c.Projection.FisheyeFOVDeg = d.Projection.FisheyeFOVDeg
	}
	if c.Projection.PerspectiveFOVDeg == 0 {
		c.Projection.PerspectiveFOVDeg = d.Projection.PerspectiveFOVDeg
	}
	if c.Projection.Type == "" {
		c.Projection.Type = d.Projection.Type
	}
	if c.Projection.Format == "" {
		c.Projection.Format = d.Projection.Format
	}
	if c.Output.Interpolation == "" {
		c.Output.Interpolation = d.Output.Interpolation
	}
	if c.Output.Background == "" {
		c.Output.Background = d.Output.Background
	}
	if c.Defaults.MaxUploadMB <= 0 {
		c.Defaults.MaxUploadMB = d.Defaults.MaxUploadMB
	}

	if c.Output.WidthPx < 0 || c.Output.HeightPx < 0 {
		return fmt.Errorf("output size must be >= 0, got %dx%d", c.Output.WidthPx, c.Output.HeightPx)
	}
	if c.Defaults.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Defaults.Workers)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	if _, err := c.Conversion(); err != nil {
		return err
	}
	return nil
}

// Conversion builds the validated core configuration.
func (c *Config) Conversion() (convert.Configuration, error) {
	kind, err := projection.ParseKind(c.Projection.Type)
	if err != nil {
		return convert.Configuration{}, fmt.Errorf("projection.type: %w", err)
	}
	format, err := geometry.ParseFormat(c.Projection.Format)
	if err != nil {
		return convert.Configuration{}, fmt.Errorf("projection.format: %w", err)
	}
	interp, err := resample.ParseInterpolation(c.Output.Interpolation)
	if err != nil {
		return convert.Configuration{}, fmt.Errorf("output.interpolation: %w", err)
	}
	bg, err := ParseColor(c.Output.Background)
	if err != nil {
		return convert.Configuration{}, fmt.Errorf("output.background: %w", err)
	}
	conv := convert.Configuration{
		FisheyeFOVDeg:     c.Projection.FisheyeFOVDeg,
		PerspectiveFOVDeg: c.Projection.PerspectiveFOVDeg,
		Projection:        kind,
		Format:            format,
		OutputWidth:       c.Output.WidthPx,
		OutputHeight:      c.Output.HeightPx,
		Interpolation:     interp,
		Background:        bg,
		Workers:           c.Defaults.Workers,
	}
	if err := conv.Validate(); err != nil {
		return convert.Configuration{}, err
	}
	return conv, nil
}

// MaxUploadBytes returns the web upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Defaults.MaxUploadMB) << 20
}

// ParseColor parses "#rgb", "#rrggbb" or "#rrggbbaa" (leading # optional)
// into channel bytes. Opaque colours get an alpha of 0xff.
func ParseColor(s string) ([]uint8, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 && len(hex) != 8 {
		return nil, fmt.Errorf("colour %q must look like #rrggbb or #rrggbbaa", s)
	}
	out := make([]uint8, 0, 4)
	for i := 0; i < len(hex); i += 2 {
		v, err := strconv.ParseUint(hex[i:i+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("colour %q: %w", s, err)
		}
		out = append(out, uint8(v))
	}
	if len(out) == 3 {
		out = append(out, 0xff)
	}
	return out, nil
}

// ValidateFOV checks a field of view override against (0, max], or
// (0, max) when open is true.
func ValidateFOV(name string, v, max float64, open bool) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 || v > max || (open && v == max) {
		bound := "]"
		if open {
			bound = ")"
		}
		return fmt.Errorf("%s must be in (0, %g%s, got %g", name, max, bound, v)
	}
	return nil
}
