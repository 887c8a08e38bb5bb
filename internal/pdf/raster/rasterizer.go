// Package raster renders image-only PDF pages to pixels and re-encodes them
// as JPEG. It paints the page content that scanned documents are made of:
// image XObjects, form XObjects and filled or stroked paths. Text is never
// painted because pages that carry text are not rasterized.
package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"log"
	"math"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/a3tai/mcp-pdf-tools/internal/pdf/document"
	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
)

const (
	// PointsPerInch is the size of one inch in PDF user space units.
	PointsPerInch = 72.0
	// MaxDPI bounds the surface size a single page may allocate.
	MaxDPI = 1200.0
	// MaxSurfacePixels caps width×height of a rendered page.
	MaxSurfacePixels = 100_000_000
)

// Options controls rasterization of one page
type Options struct {
	DPI     float64 `json:"dpi"`
	Quality float64 `json:"quality"`
}

// Validate checks that DPI is positive and Quality lies in [0, 1]
func (o Options) Validate() error {
	if math.IsNaN(o.DPI) || o.DPI <= 0 {
		return pdferrors.Newf(pdferrors.ErrorTypeConfiguration, "dpi must be positive, got %v", o.DPI)
	}
	if o.DPI > MaxDPI {
		return pdferrors.Newf(pdferrors.ErrorTypeConfiguration, "dpi must not exceed %v, got %v", MaxDPI, o.DPI)
	}
	if math.IsNaN(o.Quality) || o.Quality < 0 || o.Quality > 1 {
		return pdferrors.Newf(pdferrors.ErrorTypeConfiguration, "quality must be between 0 and 1, got %v", o.Quality)
	}
	return nil
}

// JPEGQuality maps a quality factor in [0, 1] to the encoder's 1..100 scale
func JPEGQuality(q float64) int {
	v := int(math.Round(q * 100))
	if v < 1 {
		return 1
	}
	if v > 100 {
		return 100
	}
	return v
}

// Image is an encoded page raster
type Image struct {
	Data   []byte
	Width  int
	Height int
}

// PixelSize returns the surface size for a box rendered at dpi. Fractional
// pixels are truncated and each side is at least one pixel.
func PixelSize(box document.Box, dpi float64) (int, int) {
	scale := dpi / PointsPerInch
	w := int(math.Floor(box.Width() * scale))
	h := int(math.Floor(box.Height() * scale))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// Rasterizer renders pages of one document. It owns a single surface, so
// calls must not overlap; concurrent use fails with ErrSurfaceBusy.
type Rasterizer struct {
	doc     *document.Document
	surface *Surface
	cache   *Cache
	logger  *log.Logger

	renders int
	encodes int
}

// Option configures a Rasterizer
type Option func(*Rasterizer)

// WithCache sets the session cache for decoded images and rendered pages
func WithCache(c *Cache) Option {
	return func(r *Rasterizer) {
		r.cache = c
	}
}

// WithLogger sets the logger used for non-fatal rendering notes
func WithLogger(l *log.Logger) Option {
	return func(r *Rasterizer) {
		if l != nil {
			r.logger = l
		}
	}
}

// New returns a rasterizer for doc
func New(doc *document.Document, opts ...Option) *Rasterizer {
	r := &Rasterizer{
		doc:     doc,
		surface: NewSurface(),
		logger:  log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Renders returns how many pages were painted, excluding cache hits
func (r *Rasterizer) Renders() int {
	return r.renders
}

// Encodes returns how many JPEG encodings were performed
func (r *Rasterizer) Encodes() int {
	return r.encodes
}

// Surface returns the surface the rasterizer paints on
func (r *Rasterizer) Surface() *Surface {
	return r.surface
}

func (r *Rasterizer) logf(format string, args ...interface{}) {
	r.logger.Printf(format, args...)
}

// RasterizePage renders pageNr at opts.DPI and encodes it at opts.Quality
func (r *Rasterizer) RasterizePage(ctx context.Context, pageNr int, opts Options) (*Image, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	img, err := r.Render(ctx, pageNr, opts.DPI)
	if err != nil {
		return nil, err
	}

	data, err := Encode(img, opts.Quality)
	if err != nil {
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeRender, err).WithPage(pageNr)
	}
	r.encodes++

	b := img.Bounds()
	return &Image{Data: data, Width: b.Dx(), Height: b.Dy()}, nil
}

// Render paints pageNr at dpi. The page rotation is applied, so the result
// is in display orientation. The image may be shared through the cache and
// must not be modified.
func (r *Rasterizer) Render(ctx context.Context, pageNr int, dpi float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeCancelled, err)
	}

	key := pageKey(pageNr, dpi)
	if img, ok := r.cache.Get(key); ok {
		return img, nil
	}

	page, err := r.doc.Page(pageNr)
	if err != nil {
		return nil, asRenderError(err, pageNr)
	}

	w, h := PixelSize(page.Box, dpi)
	if w*h > MaxSurfacePixels {
		return nil, pdferrors.Newf(pdferrors.ErrorTypeRender,
			"surface of %dx%d pixels exceeds the limit", w, h).WithPage(pageNr)
	}

	out, err := r.paint(ctx, page, w, h, dpi)
	if err != nil {
		return nil, asRenderError(err, pageNr)
	}
	r.renders++

	r.cache.Put(key, out)
	return out, nil
}

// paint runs one surface lease: acquire, draw, read out, release
func (r *Rasterizer) paint(ctx context.Context, page *document.Page, w, h int, dpi float64) (image.Image, error) {
	dst, err := r.surface.Acquire(w, h)
	if err != nil {
		return nil, err
	}
	defer r.surface.Release()

	p := newPainter(ctx, r, dst, page.Box, dpi/PointsPerInch)
	if err := p.run(page.Content, page.Resources, 0); err != nil {
		return nil, err
	}
	if p.skipped > 0 {
		r.logf("page %d: %d unsupported objects were not painted", page.Number, p.skipped)
	}

	// The surface is reused by the next lease, so copy the pixels out.
	switch page.Rotate {
	case 90:
		return imaging.Rotate270(dst), nil
	case 180:
		return imaging.Rotate180(dst), nil
	case 270:
		return imaging.Rotate90(dst), nil
	default:
		return imaging.Clone(dst), nil
	}
}

// image returns the decoded image XObject behind ref, using the cache for
// indirect objects shared between pages.
func (r *Rasterizer) image(ref types.Object, sd *types.StreamDict, resources types.Dict) (image.Image, error) {
	objNr := document.ObjectNumber(ref)
	if objNr > 0 {
		if img, ok := r.cache.Get(imageKey(objNr)); ok {
			return img, nil
		}
	}

	img, err := r.decodeImage(sd, resources)
	if err != nil {
		return nil, err
	}

	if objNr > 0 {
		r.cache.Put(imageKey(objNr), img)
	}
	return img, nil
}

// Encode writes img as a baseline JPEG at quality q in [0, 1]
func Encode(img image.Image, q float64) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality(q))); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

func asRenderError(err error, pageNr int) error {
	if pdfErr, ok := pdferrors.As(err); ok {
		if pdfErr.PageNumber == 0 {
			pdfErr.PageNumber = pageNr
		}
		switch pdfErr.Type {
		case pdferrors.ErrorTypeRender, pdferrors.ErrorTypeCancelled, pdferrors.ErrorTypeConfiguration:
			return pdfErr
		}
	}
	return pdferrors.WrapError(pdferrors.ErrorTypeRender, err).WithPage(pageNr)
}
