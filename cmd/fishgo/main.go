package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cjeanneret/FishGo/internal/config"
	"github.com/cjeanneret/FishGo/internal/debug"
	"github.com/cjeanneret/FishGo/internal/imageio"
	"github.com/cjeanneret/FishGo/internal/logic/convert"
	"github.com/cjeanneret/FishGo/internal/logic/geometry"
	"github.com/cjeanneret/FishGo/internal/logic/projection"
	"github.com/cjeanneret/FishGo/internal/logic/resample"
	"github.com/cjeanneret/FishGo/internal/web"
)

// allProjections selects batch mode: one output per projection model.
const allProjections = "all"

// cliOverrides holds command line values that override the config file.
// Zero values (and -1 for debug and workers) mean "use config default".
type cliOverrides struct {
	FisheyeFOVDeg     float64
	PerspectiveFOVDeg float64
	Projection        string
	Format            string
	WidthPx           int
	HeightPx          int
	Interpolation     string
	CropSquare        bool
	DebugLevel        int
	Workers           int
}

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	inPath := flag.String("in", "", "fisheye input image")
	outPath := flag.String("out", "", "output image (default: <in>_perspective.<ext>)")

	var o cliOverrides
	flag.Float64Var(&o.FisheyeFOVDeg, "fisheye_fov_deg", 0, "override fisheye field of view in degrees (0-360]")
	flag.Float64Var(&o.PerspectiveFOVDeg, "perspective_fov_deg", 0, "override diagonal perspective field of view in degrees (0-180)")
	flag.StringVar(&o.Projection, "projection", "", "override projection: equidistant, equal_area (equisolid), orthographic, stereographic, or all")
	flag.StringVar(&o.Format, "format", "", "override fisheye format: circular or diagonal")
	flag.IntVar(&o.WidthPx, "width", 0, "override output width in pixels")
	flag.IntVar(&o.HeightPx, "height", 0, "override output height in pixels")
	flag.StringVar(&o.Interpolation, "interpolation", "", "override interpolation: bilinear or nearest")
	flag.BoolVar(&o.CropSquare, "crop_square", false, "crop the input to its centred square before converting")
	flag.IntVar(&o.DebugLevel, "debug", -1, "override debug level 0-4")
	flag.IntVar(&o.Workers, "workers", -1, "override worker count (0 = GOMAXPROCS)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	if err := validateCLIOverrides(o); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, o)
	if err := cfg.Normalize(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.PrintStruct("Projection config", cfg.Projection)
	debug.PrintStruct("Output config", cfg.Output)

	if port := webPort.port(); port > 0 {
		base, err := cfg.Conversion()
		if err != nil {
			log.Fatalf("invalid configuration: %v", err)
		}
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

		srv, err := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, web.NewConvertFunc(base), web.NewFormConfig(cfg))
		if err != nil {
			log.Fatalf("web server: %v", err)
		}
		if err := srv.Run(ctx); err != nil {
			log.Fatalf("web server: %v", err)
		}
		return
	}

	if *inPath == "" {
		flag.Usage()
		log.Fatal("missing -in (or -web)")
	}
	out := *outPath
	if out == "" {
		out = defaultOutputPath(*inPath)
	}
	if err := run(ctx, cfg, *inPath, out, strings.EqualFold(o.Projection, allProjections)); err != nil {
		log.Fatalf("conversion failed: %v", err)
	}
}

// run converts the image at in and writes the result to out. In batch mode
// every projection model is rendered to its own file next to out; models
// that cannot reach the configured fisheye field of view are skipped.
func run(ctx context.Context, cfg *config.Config, in, out string, all bool) error {
	if err := imageio.CheckOutputPath(out); err != nil {
		return err
	}
	base, err := cfg.Conversion()
	if err != nil {
		return err
	}

	debug.Step(1, "Loading "+in)
	start := time.Now()
	img, err := imageio.Load(in)
	if err != nil {
		return err
	}
	debug.Elapsed("Load", start)
	if cfg.Output.CropSquare {
		if img, err = imageio.CropSquare(img); err != nil {
			return err
		}
		debug.Image("Cropped input", img.Width, img.Height, img.Channels)
	}

	kinds := []projection.Kind{base.Projection}
	if all {
		kinds = projection.Kinds
	}

	written := 0
	for i, kind := range kinds {
		if err := ctx.Err(); err != nil {
			return err
		}
		conv := base
		conv.Projection = kind
		path := out
		if all {
			path = batchOutputPath(out, kind)
		}

		debug.Step(i+2, fmt.Sprintf("Converting with %s projection", kind))
		c, err := convert.NewConverter(conv)
		if err != nil {
			if all && errors.Is(err, convert.ErrInvalidConfiguration) {
				debug.Info("skipping %s: %v", kind, err)
				continue
			}
			return err
		}
		result, err := c.Convert(img)
		if err != nil {
			return err
		}
		start := time.Now()
		if err := imageio.Save(path, result); err != nil {
			return err
		}
		debug.Elapsed("Save", start)
		debug.Info("wrote %s (%dx%d)", path, result.Width, result.Height)
		written++
	}
	if written == 0 {
		return fmt.Errorf("no projection can reach a %g° fisheye field of view", cfg.Projection.FisheyeFOVDeg)
	}
	debug.Summary(fmt.Sprintf("Conversion complete: %d file(s)", written))
	return nil
}

// batchOutputPath inserts the projection name before the extension:
// out.png becomes out_stereographic.png.
func batchOutputPath(out string, kind projection.Kind) string {
	ext := filepath.Ext(out)
	return strings.TrimSuffix(out, ext) + "_" + kind.String() + ext
}

// defaultOutputPath derives the output next to the input. Inputs in a
// format that cannot be written (WebP) produce a PNG.
func defaultOutputPath(in string) string {
	ext := filepath.Ext(in)
	out := strings.TrimSuffix(in, ext) + "_perspective" + ext
	if imageio.CheckOutputPath(out) != nil {
		out = strings.TrimSuffix(in, ext) + "_perspective.png"
	}
	return out
}

// validateCLIOverrides checks that set CLI overrides are within valid ranges.
// Zero values are ignored (they mean "use config default").
func validateCLIOverrides(o cliOverrides) error {
	if o.FisheyeFOVDeg != 0 {
		if err := config.ValidateFOV("fisheye_fov_deg", o.FisheyeFOVDeg, 360, false); err != nil {
			return err
		}
	}
	if o.PerspectiveFOVDeg != 0 {
		if err := config.ValidateFOV("perspective_fov_deg", o.PerspectiveFOVDeg, 180, true); err != nil {
			return err
		}
	}
	if o.Projection != "" && !strings.EqualFold(o.Projection, allProjections) {
		if _, err := projection.ParseKind(o.Projection); err != nil {
			return err
		}
	}
	if o.Format != "" {
		if _, err := geometry.ParseFormat(o.Format); err != nil {
			return err
		}
	}
	if o.Interpolation != "" {
		if _, err := resample.ParseInterpolation(o.Interpolation); err != nil {
			return err
		}
	}
	if o.WidthPx < 0 || o.HeightPx < 0 {
		return fmt.Errorf("width and height must be >= 0, got %dx%d", o.WidthPx, o.HeightPx)
	}
	if o.DebugLevel < -1 || o.DebugLevel > 4 {
		return fmt.Errorf("debug must be between 0 and 4, got %d", o.DebugLevel)
	}
	if o.Workers < -1 {
		return fmt.Errorf("workers must be >= 0, got %d", o.Workers)
	}
	return nil
}

// applyOverrides mutates cfg with overrides. Only set override values are applied.
func applyOverrides(cfg *config.Config, o cliOverrides) {
	if o.FisheyeFOVDeg > 0 {
		cfg.Projection.FisheyeFOVDeg = o.FisheyeFOVDeg
	}
	if o.PerspectiveFOVDeg > 0 {
		cfg.Projection.PerspectiveFOVDeg = o.PerspectiveFOVDeg
	}
	switch {
	case strings.EqualFold(o.Projection, allProjections):
		// Batch mode renders every model; equidistant accepts any field of
		// view, so the config validates whatever model it names.
		cfg.Projection.Type = projection.Equidistant.String()
	case o.Projection != "":
		cfg.Projection.Type = o.Projection
	}
	if o.Format != "" {
		cfg.Projection.Format = o.Format
	}
	if o.WidthPx > 0 {
		cfg.Output.WidthPx = o.WidthPx
	}
	if o.HeightPx > 0 {
		cfg.Output.HeightPx = o.HeightPx
	}
	if o.Interpolation != "" {
		cfg.Output.Interpolation = o.Interpolation
	}
	if o.CropSquare {
		cfg.Output.CropSquare = true
	}
	if o.DebugLevel >= 0 {
		cfg.Defaults.DebugLevel = o.DebugLevel
	}
	if o.Workers >= 0 {
		cfg.Defaults.Workers = o.Workers
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
