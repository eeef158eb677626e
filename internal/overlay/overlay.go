// Package overlay turns hazard rasters into PNG map overlays.
package overlay

import (
	"bytes"
	"fmt"
	"image"
	"log/slog"
	"os"
	"time"

	"github.com/disintegration/imaging"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/climate-risk-explorer/internal/domain"
	"github.com/couchcryptid/climate-risk-explorer/internal/observability"
	"github.com/couchcryptid/climate-risk-explorer/internal/raster"
)

// Overlay is one classified hazard raster and its encoded image.
type Overlay struct {
	PNG    []byte
	Width  int // encoded image size, after downsampling
	Height int

	Classification domain.Classification
	Raster         *domain.Raster
}

// Extent is the map position of the overlay.
func (o *Overlay) Extent() domain.Extent { return o.Classification.Extent }

// Renderer classifies rasters on demand and keeps the most recent results.
// Cache entries are keyed by path, size, and modification time, so a
// replaced file is classified again.
type Renderer struct {
	maxDim  int
	palette domain.Palette
	cache   *lru.Cache[string, *Overlay]
	group   singleflight.Group
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewRenderer creates a renderer. maxDim bounds the longer side of the PNG;
// zero or less disables downsampling.
func NewRenderer(maxDim, cacheSize int, metrics *observability.Metrics, logger *slog.Logger) *Renderer {
	// New fails only for sizes below one.
	cache, _ := lru.New[string, *Overlay](max(cacheSize, 1))
	return &Renderer{
		maxDim:  maxDim,
		palette: domain.DefaultPalette,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
	}
}

// Render returns the overlay for the raster at path.
func (r *Renderer) Render(path string) (*Overlay, error) {
	info, err := os.Stat(path)
	if err != nil {
		r.metrics.OverlayErrors.Inc()
		return nil, fmt.Errorf("open raster: %w", err)
	}
	key := fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())

	if ov, ok := r.cache.Get(key); ok {
		r.metrics.OverlayCache.WithLabelValues("hit").Inc()
		return ov, nil
	}
	r.metrics.OverlayCache.WithLabelValues("miss").Inc()

	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.render(path)
	})
	if err != nil {
		r.metrics.OverlayErrors.Inc()
		r.logger.Warn("overlay render failed", "path", path, "error", err)
		return nil, err
	}
	ov := v.(*Overlay)
	r.cache.Add(key, ov)
	return ov, nil
}

func (r *Renderer) render(path string) (*Overlay, error) {
	start := time.Now()
	c, rast, err := raster.ClassifyFileWithPalette(path, r.palette)
	if err != nil {
		return nil, err
	}
	r.metrics.ClassificationDuration.Observe(time.Since(start).Seconds())

	png, bounds, err := EncodePNG(c.Image, r.maxDim)
	if err != nil {
		return nil, err
	}
	r.metrics.OverlaysRendered.Inc()
	r.logger.Debug("overlay rendered",
		"path", path,
		"width", bounds.Dx(),
		"height", bounds.Dy(),
		"valid_cells", c.Stats.Valid,
	)
	return &Overlay{
		PNG:            png,
		Width:          bounds.Dx(),
		Height:         bounds.Dy(),
		Classification: c,
		Raster:         rast,
	}, nil
}

// EncodePNG encodes img as PNG. Images whose longer side exceeds maxDim are
// first shrunk with nearest-neighbour sampling so class colours survive
// unblended. It returns the encoded bytes and the encoded image bounds.
func EncodePNG(img *image.NRGBA, maxDim int) ([]byte, image.Rectangle, error) {
	out := img
	if maxDim > 0 && (img.Rect.Dx() > maxDim || img.Rect.Dy() > maxDim) {
		out = imaging.Fit(img, maxDim, maxDim, imaging.NearestNeighbor)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, image.Rectangle{}, fmt.Errorf("encode overlay: %w", err)
	}
	return buf.Bytes(), out.Bounds(), nil
}
