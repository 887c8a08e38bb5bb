// Package compress runs the recompression pipeline: classify the pages of a
// loaded document, rasterize the image-only ones and rebuild the file, either
// at fixed raster options or searching for the quality that best meets a
// target size.
package compress

import (
	"context"
	"io"
	"log"

	"github.com/a3tai/mcp-pdf-tools/internal/pdf/classify"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/document"
	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/raster"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/rebuild"
)

// Defaults for fixed-quality compression
const (
	DefaultDPI       = 150.0
	DefaultQuality   = 0.75
	DefaultCacheSize = 128 << 20 // bytes of decoded pixels per session
)

// DefaultOptions returns the default raster options
func DefaultOptions() raster.Options {
	return raster.Options{DPI: DefaultDPI, Quality: DefaultQuality}
}

// Result describes a successful compression run
type Result struct {
	Data            []byte                        `json:"-"`
	OriginalSize    int64                         `json:"original_size"`
	CompressedSize  int64                         `json:"compressed_size"`
	PageCount       int                           `json:"page_count"`
	TextPages       int                           `json:"text_pages"`
	ImagePages      int                           `json:"image_pages"`
	DPI             float64                       `json:"dpi"`
	Quality         float64                       `json:"quality"`
	Classifications []classify.PageClassification `json:"-"`
	Search          *SearchResult                 `json:"search,omitempty"`
}

// SavedBytes returns how many bytes the output saves
func (r *Result) SavedBytes() int64 {
	return r.OriginalSize - r.CompressedSize
}

// SavedPercent returns the saving relative to the original size
func (r *Result) SavedPercent() float64 {
	if r.OriginalSize == 0 {
		return 0
	}
	return float64(r.SavedBytes()) / float64(r.OriginalSize) * 100
}

// RasterizerFactory creates the page rasterizer for one document
type RasterizerFactory func(doc *document.Document, cache *raster.Cache, logger *log.Logger) rebuild.PageRasterizer

func defaultRasterizer(doc *document.Document, cache *raster.Cache, logger *log.Logger) rebuild.PageRasterizer {
	return raster.New(doc, raster.WithCache(cache), raster.WithLogger(logger))
}

// Compressor runs the pipeline. It holds no per-document state and may be
// shared between sessions.
type Compressor struct {
	rebuilder     *rebuild.Rebuilder
	logger        *log.Logger
	cacheSize     int64
	newRasterizer RasterizerFactory
}

// Option configures a Compressor
type Option func(*Compressor)

// WithLogger sets the logger for pipeline progress
func WithLogger(l *log.Logger) Option {
	return func(c *Compressor) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCacheSize sets the byte budget of each session's render cache
func WithCacheSize(n int64) Option {
	return func(c *Compressor) {
		c.cacheSize = n
	}
}

// WithRasterizerFactory replaces the page rasterizer
func WithRasterizerFactory(f RasterizerFactory) Option {
	return func(c *Compressor) {
		if f != nil {
			c.newRasterizer = f
		}
	}
}

// NewCompressor returns a Compressor
func NewCompressor(opts ...Option) *Compressor {
	c := &Compressor{
		logger:        log.New(io.Discard, "", 0),
		cacheSize:     DefaultCacheSize,
		newRasterizer: defaultRasterizer,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.rebuilder = rebuild.New(rebuild.WithLogger(c.logger))
	return c
}

// Compress classifies doc and rebuilds it at fixed raster options
func (c *Compressor) Compress(ctx context.Context, doc *document.Document, opts raster.Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	classes, err := classify.Classify(ctx, doc)
	if err != nil {
		return nil, err
	}

	r := c.newRasterizer(doc, raster.NewCache(c.cacheSize), c.logger)
	return c.compress(ctx, doc, r, classes, opts)
}

// CompressToSize classifies doc once and searches for the quality whose
// output is closest to target bytes. A target that is not smaller than the
// original fails before any page is rendered.
func (c *Compressor) CompressToSize(ctx context.Context, doc *document.Document, target int64, dpi float64, opts SearchOptions) (*Result, error) {
	if err := checkTarget(doc, target, dpi, opts); err != nil {
		return nil, err
	}

	classes, err := classify.Classify(ctx, doc)
	if err != nil {
		return nil, err
	}

	r := c.newRasterizer(doc, raster.NewCache(c.cacheSize), c.logger)
	return c.compressToSize(ctx, doc, r, classes, target, dpi, opts)
}

func checkTarget(doc *document.Document, target int64, dpi float64, opts SearchOptions) error {
	if target >= doc.Size() {
		return pdferrors.Newf(pdferrors.ErrorTypeConfiguration,
			"target size %d must be smaller than the original size %d", target, doc.Size())
	}
	if err := (raster.Options{DPI: dpi, Quality: opts.QualityMax}).Validate(); err != nil {
		return err
	}
	return opts.Validate()
}

func (c *Compressor) compress(ctx context.Context, doc *document.Document, r rebuild.PageRasterizer,
	classes []classify.PageClassification, opts raster.Options) (*Result, error) {

	c.logger.Printf("compressing %d pages at %v dpi, quality %v", doc.PageCount(), opts.DPI, opts.Quality)

	data, err := c.rebuilder.Rebuild(ctx, doc, r, classes, opts)
	if err != nil {
		return nil, err
	}

	result := newResult(doc, classes, data, opts.DPI, opts.Quality)
	if result.CompressedSize >= result.OriginalSize {
		return nil, pdferrors.Newf(pdferrors.ErrorTypeNoSavings,
			"compression would not reduce size (%d bytes, original %d bytes)", result.CompressedSize, result.OriginalSize)
	}

	c.logger.Printf("compressed %d -> %d bytes", result.OriginalSize, result.CompressedSize)
	return result, nil
}

func (c *Compressor) compressToSize(ctx context.Context, doc *document.Document, r rebuild.PageRasterizer,
	classes []classify.PageClassification, target int64, dpi float64, opts SearchOptions) (*Result, error) {

	onSample := opts.OnSample
	opts.OnSample = func(s Sample) {
		c.logger.Printf("iteration %d: quality %.4f -> %d bytes (target %d, diff %d)", s.Iteration, s.Quality, s.Size, target, s.Diff)
		if onSample != nil {
			onSample(s)
		}
	}

	build := func(ctx context.Context, quality float64) ([]byte, error) {
		return c.rebuilder.Rebuild(ctx, doc, r, classes, raster.Options{DPI: dpi, Quality: quality})
	}

	search, err := FindClosestQuality(ctx, build, doc.Size(), target, opts)
	if err != nil {
		return nil, err
	}

	result := newResult(doc, classes, search.Data, dpi, search.Quality)
	result.Search = search
	return result, nil
}

func newResult(doc *document.Document, classes []classify.PageClassification, data []byte, dpi, quality float64) *Result {
	text, image := classify.Count(classes)
	return &Result{
		Data:            data,
		OriginalSize:    doc.Size(),
		CompressedSize:  int64(len(data)),
		PageCount:       doc.PageCount(),
		TextPages:       text,
		ImagePages:      image,
		DPI:             dpi,
		Quality:         quality,
		Classifications: classes,
	}
}
