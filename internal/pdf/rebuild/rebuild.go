// Package rebuild assembles the compressed output document: pages that carry
// text are copied from the source unchanged, image-only pages are replaced by
// a single full-page JPEG of exactly the raster's pixel size.
package rebuild

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/a3tai/mcp-pdf-tools/internal/pdf/classify"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/document"
	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/raster"
)

// Source is the document being rebuilt
type Source interface {
	PageCount() int
	Reader() io.ReadSeeker
}

// PageRasterizer renders and encodes a single page
type PageRasterizer interface {
	RasterizePage(ctx context.Context, pageNr int, opts raster.Options) (*raster.Image, error)
}

// Run is a maximal sequence of consecutive pages of the same kind
type Run struct {
	Kind  classify.Kind
	First int
	Last  int
}

// Len returns the number of pages in the run
func (r Run) Len() int {
	return r.Last - r.First + 1
}

// Runs groups classifications into maximal runs, in page order
func Runs(classes []classify.PageClassification) []Run {
	var runs []Run
	for _, c := range classes {
		if n := len(runs); n > 0 && runs[n-1].Kind == c.Kind && runs[n-1].Last == c.PageIndex-1 {
			runs[n-1].Last = c.PageIndex
			continue
		}
		runs = append(runs, Run{Kind: c.Kind, First: c.PageIndex, Last: c.PageIndex})
	}
	return runs
}

// Rebuilder produces output documents
type Rebuilder struct {
	logger *log.Logger
}

// Option configures a Rebuilder
type Option func(*Rebuilder)

// WithLogger sets the logger for per-page progress
func WithLogger(l *log.Logger) Option {
	return func(b *Rebuilder) {
		if l != nil {
			b.logger = l
		}
	}
}

// New returns a Rebuilder
func New(opts ...Option) *Rebuilder {
	b := &Rebuilder{logger: log.New(io.Discard, "", 0)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Rebuild produces the output document for src. Pages are handled in
// ascending order and the result always has src.PageCount() pages; on any
// failure no output is returned.
func (b *Rebuilder) Rebuild(ctx context.Context, src Source, r PageRasterizer,
	classes []classify.PageClassification, opts raster.Options) ([]byte, error) {

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := checkClassifications(src.PageCount(), classes); err != nil {
		return nil, err
	}

	runs := Runs(classes)
	segments := make([]io.ReadSeeker, 0, len(runs))

	for _, run := range runs {
		if err := ctx.Err(); err != nil {
			return nil, pdferrors.WrapError(pdferrors.ErrorTypeCancelled, err)
		}

		var (
			seg []byte
			err error
		)
		switch run.Kind {
		case classify.TextPage:
			seg, err = b.copyPages(src, run)
		default:
			seg, err = b.rasterPages(ctx, r, run, opts)
		}
		if err != nil {
			return nil, err
		}
		segments = append(segments, bytes.NewReader(seg))
	}

	merged, err := merge(segments)
	if err != nil {
		return nil, err
	}

	// pdfcpu numbers objects differently from run to run.
	out, err := Canonical(merged)
	if err != nil {
		return nil, err
	}

	count, err := api.PageCount(bytes.NewReader(out), document.NewConfiguration())
	if err != nil {
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeBuild, fmt.Errorf("failed to verify output: %w", err))
	}
	if count != src.PageCount() {
		return nil, pdferrors.Newf(pdferrors.ErrorTypeBuild,
			"output has %d pages, source has %d", count, src.PageCount())
	}

	return out, nil
}

func checkClassifications(pageCount int, classes []classify.PageClassification) error {
	if len(classes) != pageCount {
		return pdferrors.Newf(pdferrors.ErrorTypeConfiguration,
			"%d classifications given for %d pages", len(classes), pageCount)
	}
	for i, c := range classes {
		if c.PageIndex != i+1 {
			return pdferrors.Newf(pdferrors.ErrorTypeConfiguration,
				"classification %d refers to page %d", i+1, c.PageIndex)
		}
	}
	return nil
}

// copyPages extracts a run of pages verbatim, keeping their content streams,
// resources and rotation.
func (b *Rebuilder) copyPages(src Source, run Run) ([]byte, error) {
	b.logger.Printf("copying pages %d-%d", run.First, run.Last)

	var buf bytes.Buffer
	sel := []string{fmt.Sprintf("%d-%d", run.First, run.Last)}
	if err := api.Trim(src.Reader(), &buf, sel, document.NewConfiguration()); err != nil {
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeBuild,
			fmt.Errorf("failed to copy pages %d-%d: %w", run.First, run.Last, err)).WithPage(run.First)
	}
	return buf.Bytes(), nil
}

// rasterPages renders a run of pages one at a time and imports the JPEGs as
// new pages sized to the image.
func (b *Rebuilder) rasterPages(ctx context.Context, r PageRasterizer, run Run, opts raster.Options) ([]byte, error) {
	images := make([]io.Reader, 0, run.Len())

	for pageNr := run.First; pageNr <= run.Last; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, pdferrors.WrapError(pdferrors.ErrorTypeCancelled, err)
		}

		img, err := r.RasterizePage(ctx, pageNr, opts)
		if err != nil {
			return nil, err
		}
		b.logger.Printf("page %d rasterized to %dx%d, %d bytes", pageNr, img.Width, img.Height, len(img.Data))
		images = append(images, bytes.NewReader(img.Data))
	}

	imp := pdfcpu.DefaultImportConfig()
	imp.Pos = types.Full

	var buf bytes.Buffer
	if err := api.ImportImages(nil, &buf, images, imp, document.NewConfiguration()); err != nil {
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeBuild,
			fmt.Errorf("failed to import images for pages %d-%d: %w", run.First, run.Last, err)).WithPage(run.First)
	}
	return buf.Bytes(), nil
}

func merge(segments []io.ReadSeeker) ([]byte, error) {
	switch len(segments) {
	case 0:
		return nil, pdferrors.NewPDFError(pdferrors.ErrorTypeBuild, "nothing to build")
	case 1:
		return io.ReadAll(segments[0])
	}

	var buf bytes.Buffer
	if err := api.MergeRaw(segments, &buf, false, document.NewConfiguration()); err != nil {
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeBuild, fmt.Errorf("failed to merge output: %w", err))
	}
	return buf.Bytes(), nil
}
