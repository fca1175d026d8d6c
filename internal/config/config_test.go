package config

import (
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/cjeanneret/FishGo/internal/logic/geometry"
	"github.com/cjeanneret/FishGo/internal/logic/projection"
	"github.com/cjeanneret/FishGo/internal/logic/resample"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "default.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateConfigPath(path); err != nil {
		t.Errorf("expected valid path, got error: %v", err)
	}
	if err := ValidateConfigPath("configs/default.yaml"); err != nil {
		t.Errorf("expected valid relative path, got error: %v", err)
	}
}

func TestValidateConfigPath_PathTraversal(t *testing.T) {
	cases := []string{
		"../../etc/passwd",
		"configs/../../../etc/shadow",
		"../configs/default.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for traversal path %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_WrongExtension(t *testing.T) {
	cases := []string{
		"configs/default.json",
		"configs/default.yml",
		"configs/default.txt",
		"configs/default",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for extension in %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_NotInConfigsDir(t *testing.T) {
	cases := []string{
		"other/default.yaml",
		"default.yaml",
		"/tmp/default.yaml",
		"configs/sub/default.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for path outside configs/ %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_EmptyPath(t *testing.T) {
	if err := ValidateConfigPath(""); err == nil {
		t.Error("expected error for empty path, got nil")
	}
}

func TestValidateConfigPath_SpecialChars(t *testing.T) {
	for _, name := range []string{"con fig.yaml", "café.yaml"} {
		path := filepath.Join("configs", name)
		if err := ValidateConfigPath(path); err != nil {
			t.Errorf("unexpected error for %q: %v", name, err)
		}
	}
}

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
projection:
  fisheye_fov_deg: 220
  perspective_fov_deg: 100
  type: "stereographic"
  format: "diagonal"
output:
  width_px: 1920
  height_px: 1080
  interpolation: "nearest"
  background: "#102030"
  crop_square: true
defaults:
  workers: 4
  debug_level: 3
  max_upload_mb: 8
`

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Projection.FisheyeFOVDeg != 220 {
		t.Errorf("fisheye_fov_deg = %v, want 220", cfg.Projection.FisheyeFOVDeg)
	}
	if cfg.Projection.PerspectiveFOVDeg != 100 {
		t.Errorf("perspective_fov_deg = %v, want 100", cfg.Projection.PerspectiveFOVDeg)
	}
	if cfg.Projection.Type != "stereographic" {
		t.Errorf("type = %q, want %q", cfg.Projection.Type, "stereographic")
	}
	if cfg.Output.WidthPx != 1920 || cfg.Output.HeightPx != 1080 {
		t.Errorf("output size = %dx%d, want 1920x1080", cfg.Output.WidthPx, cfg.Output.HeightPx)
	}
	if !cfg.Output.CropSquare {
		t.Error("crop_square should be true")
	}
	if cfg.Defaults.Workers != 4 {
		t.Errorf("workers = %d, want 4", cfg.Defaults.Workers)
	}
	if cfg.Defaults.DebugLevel != 3 {
		t.Errorf("debug_level = %d, want 3", cfg.Defaults.DebugLevel)
	}
	if got := cfg.MaxUploadBytes(); got != 8<<20 {
		t.Errorf("MaxUploadBytes() = %d, want %d", got, 8<<20)
	}

	conv, err := cfg.Conversion()
	if err != nil {
		t.Fatalf("Conversion(): %v", err)
	}
	if conv.Projection != projection.Stereographic {
		t.Errorf("projection = %v, want stereographic", conv.Projection)
	}
	if conv.Format != geometry.Diagonal {
		t.Errorf("format = %v, want diagonal", conv.Format)
	}
	if conv.Interpolation != resample.Nearest {
		t.Errorf("interpolation = %v, want nearest", conv.Interpolation)
	}
	if want := []uint8{0x10, 0x20, 0x30, 0xff}; !reflect.DeepEqual(conv.Background, want) {
		t.Errorf("background = %v, want %v", conv.Background, want)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Projection.FisheyeFOVDeg != 180 {
		t.Errorf("fisheye_fov_deg default = %v, want 180", cfg.Projection.FisheyeFOVDeg)
	}
	if cfg.Projection.PerspectiveFOVDeg != 120 {
		t.Errorf("perspective_fov_deg default = %v, want 120", cfg.Projection.PerspectiveFOVDeg)
	}
	if cfg.Projection.Type != "equidistant" {
		t.Errorf("type default = %q, want equidistant", cfg.Projection.Type)
	}
	if cfg.Projection.Format != "circular" {
		t.Errorf("format default = %q, want circular", cfg.Projection.Format)
	}
	if cfg.Output.Interpolation != "bilinear" {
		t.Errorf("interpolation default = %q, want bilinear", cfg.Output.Interpolation)
	}
	if cfg.Output.Background != "#000000" {
		t.Errorf("background default = %q, want #000000", cfg.Output.Background)
	}
	if cfg.Defaults.DebugLevel != 1 {
		t.Errorf("debug_level default = %d, want 1", cfg.Defaults.DebugLevel)
	}
	if cfg.Defaults.MaxUploadMB != 32 {
		t.Errorf("max_upload_mb default = %d, want 32", cfg.Defaults.MaxUploadMB)
	}
}

func TestLoad_ZeroFOVFallsBackToDefault(t *testing.T) {
	yaml := `
projection:
  fisheye_fov_deg: 0
  perspective_fov_deg: 0
`
	cfg, err := Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Projection.FisheyeFOVDeg != 180 || cfg.Projection.PerspectiveFOVDeg != 120 {
		t.Errorf("fovs = %v/%v, want 180/120", cfg.Projection.FisheyeFOVDeg, cfg.Projection.PerspectiveFOVDeg)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"fisheye_too_wide", "projection:\n  fisheye_fov_deg: 400\n", "fisheye_fov_deg"},
		{"fisheye_negative", "projection:\n  fisheye_fov_deg: -10\n", "fisheye_fov_deg"},
		{"perspective_180", "projection:\n  perspective_fov_deg: 180\n", "perspective_fov_deg"},
		{"unknown_type", "projection:\n  type: \"rectilinear\"\n", "projection.type"},
		{"unknown_format", "projection:\n  format: \"cropped\"\n", "projection.format"},
		{"orthographic_too_wide", "projection:\n  type: orthographic\n  fisheye_fov_deg: 200\n", "projection"},
		{"stereographic_360", "projection:\n  type: stereographic\n  fisheye_fov_deg: 360\n", "projection"},
		{"negative_width", "output:\n  width_px: -1\n", "output size"},
		{"bad_interpolation", "output:\n  interpolation: \"bicubic\"\n", "output.interpolation"},
		{"bad_background", "output:\n  background: \"#12\"\n", "output.background"},
		{"negative_workers", "defaults:\n  workers: -2\n", "workers"},
		{"debug_level_too_high", "defaults:\n  debug_level: 5\n", "debug_level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoad_FileTooLarge(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "big.yaml")
	data := make([]byte, MaxConfigFileBytes+1)
	for i := range data {
		data[i] = '#'
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for oversized config file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "{{{{invalid yaml!!!!")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestLoad_UnknownFields(t *testing.T) {
	yaml := `
projection:
  type: "equisolid"
unknown_section:
  foo: bar
`
	cfg, err := Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("unknown fields should be ignored, got error: %v", err)
	}
	conv, err := cfg.Conversion()
	if err != nil {
		t.Fatal(err)
	}
	if conv.Projection != projection.EqualArea {
		t.Errorf("equisolid should select equal_area, got %v", conv.Projection)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "nonexistent.yaml")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for nonexistent file, got nil")
	}
}

func TestLoad_RejectsPathOutsideConfigs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for config outside configs/, got nil")
	}
}

// ---------- Helper methods ----------

func TestParseColor(t *testing.T) {
	cases := []struct {
		in      string
		want    []uint8
		wantErr bool
	}{
		{"#000000", []uint8{0, 0, 0, 255}, false},
		{"ffffff", []uint8{255, 255, 255, 255}, false},
		{"#fa0", []uint8{0xff, 0xaa, 0x00, 255}, false},
		{"#11223344", []uint8{0x11, 0x22, 0x33, 0x44}, false},
		{" #AbCdEf ", []uint8{0xab, 0xcd, 0xef, 255}, false},
		{"", nil, true},
		{"#12345", nil, true},
		{"#zzzzzz", nil, true},
	}
	for _, tc := range cases {
		got, err := ParseColor(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseColor(%q) expected error, got %v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseColor(%q) unexpected error: %v", tc.in, err)
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("ParseColor(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestValidateFOV(t *testing.T) {
	cases := []struct {
		v       float64
		max     float64
		open    bool
		wantErr bool
	}{
		{180, 360, false, false},
		{360, 360, false, false},
		{179.9, 180, true, false},
		{180, 180, true, true},
		{0, 360, false, true},
		{-5, 360, false, true},
		{361, 360, false, true},
		{math.NaN(), 360, false, true},
		{math.Inf(1), 360, false, true},
	}
	for _, tc := range cases {
		err := ValidateFOV("fov", tc.v, tc.max, tc.open)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateFOV(%v, %v, %v) error = %v, wantErr %v", tc.v, tc.max, tc.open, err, tc.wantErr)
		}
	}
}
