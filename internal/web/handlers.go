package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/FishGo/internal/config"
	"github.com/cjeanneret/FishGo/internal/debug"
	"github.com/cjeanneret/FishGo/internal/imageio"
	"github.com/cjeanneret/FishGo/internal/logic/convert"
	"github.com/cjeanneret/FishGo/internal/logic/geometry"
	"github.com/cjeanneret/FishGo/internal/logic/projection"
	"github.com/cjeanneret/FishGo/internal/raster"
)

// MaxSidePx bounds the width and height of uploaded and produced images.
const MaxSidePx = 16384

// MaxImagePixels bounds the pixel count of uploaded and produced images.
const MaxImagePixels = 1 << 26

// ErrImageTooLarge is returned when an image exceeds MaxSidePx or
// MaxImagePixels.
var ErrImageTooLarge = errors.New("image too large")

// multipartMemory is the part of an upload kept in memory; the rest spills
// to temporary files.
const multipartMemory = 8 << 20

// Overrides holds conversion parameters that can override config defaults.
type Overrides struct {
	FisheyeFOVDeg     float64 `json:"fisheye_fov_deg"`
	PerspectiveFOVDeg float64 `json:"perspective_fov_deg"`
	Projection        string  `json:"projection"`
	Format            string  `json:"format"`
	WidthPx           int     `json:"width_px"`
	HeightPx          int     `json:"height_px"`
	CropSquare        bool    `json:"crop_square"`
}

// ConvertFunc converts an uploaded image with the given overrides.
// It is called from the POST /convert handler.
type ConvertFunc func(ctx context.Context, img *raster.Image, overrides Overrides) (*raster.Image, error)

// FormConfig holds default values for the conversion form (from config).
type FormConfig struct {
	FisheyeFOVDeg     float64  `json:"fisheye_fov_deg"`
	PerspectiveFOVDeg float64  `json:"perspective_fov_deg"`
	Projection        string   `json:"projection"`
	Format            string   `json:"format"`
	WidthPx           int      `json:"width_px"`
	HeightPx          int      `json:"height_px"`
	CropSquare        bool     `json:"crop_square"`
	MaxUploadBytes    int64    `json:"max_upload_bytes"`
	Projections       []string `json:"projections"`
	Formats           []string `json:"formats"`
}

// NewFormConfig builds the form defaults from the loaded configuration.
func NewFormConfig(cfg *config.Config) FormConfig {
	fc := FormConfig{
		FisheyeFOVDeg:     cfg.Projection.FisheyeFOVDeg,
		PerspectiveFOVDeg: cfg.Projection.PerspectiveFOVDeg,
		Projection:        cfg.Projection.Type,
		Format:            cfg.Projection.Format,
		WidthPx:           cfg.Output.WidthPx,
		HeightPx:          cfg.Output.HeightPx,
		CropSquare:        cfg.Output.CropSquare,
		MaxUploadBytes:    cfg.MaxUploadBytes(),
	}
	for _, k := range projection.Kinds {
		fc.Projections = append(fc.Projections, k.String())
	}
	for _, f := range []geometry.Format{geometry.Circular, geometry.Diagonal} {
		fc.Formats = append(fc.Formats, f.String())
	}
	return fc
}

// Overrides returns the form defaults as a set of overrides.
func (fc FormConfig) Overrides() Overrides {
	return Overrides{
		FisheyeFOVDeg:     fc.FisheyeFOVDeg,
		PerspectiveFOVDeg: fc.PerspectiveFOVDeg,
		Projection:        fc.Projection,
		Format:            fc.Format,
		WidthPx:           fc.WidthPx,
		HeightPx:          fc.HeightPx,
		CropSquare:        fc.CropSquare,
	}
}

// ValidateOverrides checks that every override is finite and in range.
func ValidateOverrides(o Overrides) error {
	if err := config.ValidateFOV("fisheye_fov_deg", o.FisheyeFOVDeg, 360, false); err != nil {
		return err
	}
	if err := config.ValidateFOV("perspective_fov_deg", o.PerspectiveFOVDeg, 180, true); err != nil {
		return err
	}
	if _, err := projection.ParseKind(o.Projection); err != nil {
		return err
	}
	if _, err := geometry.ParseFormat(o.Format); err != nil {
		return err
	}
	if o.WidthPx < 0 || o.WidthPx > MaxSidePx {
		return fmt.Errorf("width_px must be between 0 and %d", MaxSidePx)
	}
	if o.HeightPx < 0 || o.HeightPx > MaxSidePx {
		return fmt.Errorf("height_px must be between 0 and %d", MaxSidePx)
	}
	return nil
}

// CheckImageSize returns an error wrapping ErrImageTooLarge when a w x h
// image is over the limits.
func CheckImageSize(what string, w, h int) error {
	if w > MaxSidePx || h > MaxSidePx || int64(w)*int64(h) > MaxImagePixels {
		return fmt.Errorf("%w: %s is %dx%d, limits are %d px per side and %d px in total",
			ErrImageTooLarge, what, w, h, MaxSidePx, MaxImagePixels)
	}
	return nil
}

// canonical rewrites the projection and format names to their canonical
// spelling. o must have passed ValidateOverrides.
func (o Overrides) canonical() Overrides {
	if kind, err := projection.ParseKind(o.Projection); err == nil {
		o.Projection = kind.String()
	}
	if format, err := geometry.ParseFormat(o.Format); err == nil {
		o.Format = format.String()
	}
	return o
}

// Apply returns base with the overrides applied.
func (o Overrides) Apply(base convert.Configuration) (convert.Configuration, error) {
	kind, err := projection.ParseKind(o.Projection)
	if err != nil {
		return base, err
	}
	format, err := geometry.ParseFormat(o.Format)
	if err != nil {
		return base, err
	}
	base.FisheyeFOVDeg = o.FisheyeFOVDeg
	base.PerspectiveFOVDeg = o.PerspectiveFOVDeg
	base.Projection = kind
	base.Format = format
	base.OutputWidth = o.WidthPx
	base.OutputHeight = o.HeightPx
	return base, nil
}

// NewConvertFunc returns a ConvertFunc that applies the overrides to base
// and runs the converter.
func NewConvertFunc(base convert.Configuration) ConvertFunc {
	return func(ctx context.Context, img *raster.Image, o Overrides) (*raster.Image, error) {
		cfg, err := o.Apply(base)
		if err != nil {
			return nil, err
		}
		c, err := convert.NewConverter(cfg)
		if err != nil {
			return nil, err
		}
		if err := CheckImageSize("input", img.Width, img.Height); err != nil {
			return nil, err
		}
		if o.CropSquare {
			if img, err = imageio.CropSquare(img); err != nil {
				return nil, err
			}
		}
		outW, outH := c.Config().OutputSize(img.Width, img.Height)
		if err := CheckImageSize("output", outW, outH); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return c.Convert(img)
	}
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster  *StatusBroadcaster
	Convert      ConvertFunc
	FormDefaults FormConfig

	// MaxUploadBytes caps the request body of POST /convert.
	MaxUploadBytes int64
	// MinInterval is the minimum delay between the end of a conversion and
	// the start of the next. Zero disables the limit.
	MinInterval time.Duration

	runningMu sync.Mutex
	running   bool
	lastDone  time.Time
	staticFS  fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If convertFn is nil, POST /convert will return 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, convertFn ConvertFunc, formDefaults FormConfig, staticFS fs.FS) *Handlers {
	maxUpload := formDefaults.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}
	return &Handlers{
		Broadcaster:    broadcaster,
		Convert:        convertFn,
		FormDefaults:   formDefaults,
		MaxUploadBytes: maxUpload,
		staticFS:       staticFS,
	}
}

// HandleConfig returns the form default values (from config) as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.FormDefaults)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// parseOverrides reads the form fields, falling back to the form defaults
// for any field left empty.
func (h *Handlers) parseOverrides(r *http.Request) (Overrides, error) {
	o := h.FormDefaults.Overrides()
	floats := []struct {
		name string
		dst  *float64
	}{
		{"fisheye_fov_deg", &o.FisheyeFOVDeg},
		{"perspective_fov_deg", &o.PerspectiveFOVDeg},
	}
	for _, f := range floats {
		if v := strings.TrimSpace(r.FormValue(f.name)); v != "" {
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return o, fmt.Errorf("%s: %q is not a number", f.name, v)
			}
			*f.dst = parsed
		}
	}
	ints := []struct {
		name string
		dst  *int
	}{
		{"width_px", &o.WidthPx},
		{"height_px", &o.HeightPx},
	}
	for _, f := range ints {
		if v := strings.TrimSpace(r.FormValue(f.name)); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				return o, fmt.Errorf("%s: %q is not an integer", f.name, v)
			}
			*f.dst = parsed
		}
	}
	if v := strings.TrimSpace(r.FormValue("projection")); v != "" {
		o.Projection = v
	}
	if v := strings.TrimSpace(r.FormValue("format")); v != "" {
		o.Format = v
	}
	if v := strings.TrimSpace(r.FormValue("crop_square")); v != "" {
		crop, err := strconv.ParseBool(v)
		if err != nil && v != "on" {
			return o, fmt.Errorf("crop_square: %q is not a boolean", v)
		}
		o.CropSquare = crop || v == "on"
	}
	return o, nil
}

// acquire marks a conversion as running. It returns the HTTP status to
// send when the handler is busy, or 0.
func (h *Handlers) acquire() int {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()
	if h.running {
		return http.StatusConflict
	}
	if h.MinInterval > 0 && !h.lastDone.IsZero() && time.Since(h.lastDone) < h.MinInterval {
		return http.StatusTooManyRequests
	}
	h.running = true
	return 0
}

func (h *Handlers) release() {
	h.runningMu.Lock()
	h.running = false
	h.lastDone = time.Now()
	h.runningMu.Unlock()
}

// HandleConvert handles POST /convert: a multipart form with an "image" file
// and optional override fields. The response is the converted image as PNG.
func (h *Handlers) HandleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Convert == nil {
		http.Error(w, "conversion not configured", http.StatusServiceUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, fmt.Sprintf("upload exceeds %d bytes", h.MaxUploadBytes), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	overrides, err := h.parseOverrides(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := ValidateOverrides(overrides); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	overrides = overrides.canonical()

	if status := h.acquire(); status != 0 {
		if status == http.StatusConflict {
			http.Error(w, "conversion already in progress", status)
		} else {
			http.Error(w, "too many requests", status)
		}
		return
	}
	defer h.release()

	file, _, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "missing image file", http.StatusBadRequest)
		return
	}
	defer file.Close()
	width, height, err := imageio.DecodeConfig(file)
	if err != nil {
		http.Error(w, "cannot decode image", http.StatusBadRequest)
		return
	}
	if err := CheckImageSize("upload", width, height); err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		http.Error(w, "cannot read image", http.StatusInternalServerError)
		return
	}
	img, err := imageio.Decode(file)
	if err != nil {
		http.Error(w, "cannot decode image", http.StatusBadRequest)
		return
	}

	job := uuid.NewString()
	h.Broadcaster.BroadcastJob("info", job, fmt.Sprintf("Converting %dx%d image (%s, %s, fisheye %g°, perspective %g°)",
		img.Width, img.Height, overrides.Projection, overrides.Format, overrides.FisheyeFOVDeg, overrides.PerspectiveFOVDeg))

	start := time.Now()
	out, err := h.Convert(r.Context(), img, overrides)
	if err != nil {
		h.Broadcaster.BroadcastJob("error", job, "Conversion failed: "+err.Error())
		debug.Error(err)
		switch {
		case errors.Is(err, ErrImageTooLarge):
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		case errors.Is(err, convert.ErrInvalidConfiguration), errors.Is(err, convert.ErrDimension):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, context.Canceled):
			// client went away
		default:
			http.Error(w, "conversion failed", http.StatusInternalServerError)
		}
		return
	}

	var buf bytes.Buffer
	if err := imageio.EncodePNG(&buf, out); err != nil {
		h.Broadcaster.BroadcastJob("error", job, "Encoding failed: "+err.Error())
		http.Error(w, "encoding failed", http.StatusInternalServerError)
		return
	}
	elapsed := time.Since(start).Round(time.Millisecond)
	h.Broadcaster.BroadcastJob("info", job, fmt.Sprintf("Done: %dx%d in %v", out.Width, out.Height, elapsed))
	debug.Live("web conversion %s took %v", job, elapsed)

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", "fishgo_"+overrides.Projection+".png"))
	w.Header().Set("X-Job-Id", job)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
