// Package pages implements the page-level document tools that sit beside
// compression: merging files, splitting a file into spans, reordering,
// rotating and removing pages, and reporting page geometry.
package pages

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/a3tai/mcp-pdf-tools/internal/pdf/classify"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/document"
	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
)

// Merge concatenates at least two PDF files in the given order
func Merge(ctx context.Context, inputs [][]byte) ([]byte, error) {
	if len(inputs) < 2 {
		return nil, pdferrors.Newf(pdferrors.ErrorTypeConfiguration,
			"merge needs at least 2 files, got %d", len(inputs))
	}

	readers := make([]io.ReadSeeker, 0, len(inputs))
	for i, data := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, pdferrors.WrapError(pdferrors.ErrorTypeCancelled, err)
		}
		// Load every input first so a broken file is reported by position.
		if _, err := document.Load(data); err != nil {
			return nil, fmt.Errorf("input %d: %w", i+1, err)
		}
		readers = append(readers, bytes.NewReader(data))
	}

	var buf bytes.Buffer
	if err := api.MergeRaw(readers, &buf, false, document.NewConfiguration()); err != nil {
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeBuild, fmt.Errorf("failed to merge: %w", err))
	}
	return buf.Bytes(), nil
}

// Part is one output of Split
type Part struct {
	Range PageRange
	Data  []byte
}

// Split cuts doc into consecutive parts of span pages; the last part may be
// shorter.
func Split(ctx context.Context, doc *document.Document, span int) ([]Part, error) {
	if span < 1 {
		return nil, pdferrors.Newf(pdferrors.ErrorTypeConfiguration, "span must be at least 1, got %d", span)
	}

	conf := document.NewConfiguration()
	var parts []Part
	for first := 1; first <= doc.PageCount(); first += span {
		if err := ctx.Err(); err != nil {
			return nil, pdferrors.WrapError(pdferrors.ErrorTypeCancelled, err)
		}

		r := PageRange{Start: first, End: min(first+span-1, doc.PageCount())}
		var buf bytes.Buffer
		if err := api.Trim(doc.Reader(), &buf, []string{r.String()}, conf); err != nil {
			return nil, pdferrors.WrapError(pdferrors.ErrorTypeBuild,
				fmt.Errorf("failed to extract pages %s: %w", r, err))
		}
		parts = append(parts, Part{Range: r, Data: buf.Bytes()})
	}
	return parts, nil
}

// Spec describes how Organize rearranges a document. Every page number
// refers to the input document.
type Spec struct {
	// Order lists the pages of the output in sequence. Pages may repeat.
	// Empty keeps the original order.
	Order []PageRange
	// Remove drops pages from the output.
	Remove []PageRange
	// Rotate turns the selected pages clockwise by Rotation degrees.
	Rotate   []PageRange
	Rotation int
}

// Organize applies spec to doc. The result must keep at least one page.
func Organize(ctx context.Context, doc *document.Document, spec Spec) ([]byte, error) {
	if spec.Rotation%90 != 0 {
		return nil, pdferrors.Newf(pdferrors.ErrorTypeConfiguration,
			"rotation must be a multiple of 90, got %d", spec.Rotation)
	}
	for _, group := range [][]PageRange{spec.Order, spec.Remove, spec.Rotate} {
		for _, r := range group {
			if err := r.check(doc.PageCount()); err != nil {
				return nil, selectionError(r.String(), err)
			}
		}
	}

	order := Expand(spec.Order)
	if len(order) == 0 {
		for p := 1; p <= doc.PageCount(); p++ {
			order = append(order, p)
		}
	}

	var kept []int
	for _, p := range order {
		if !Contains(spec.Remove, p) {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return nil, pdferrors.NewPDFError(pdferrors.ErrorTypeConfiguration, "the result would have no pages")
	}

	conf := document.NewConfiguration()
	var (
		buf bytes.Buffer
		err error
	)
	if len(spec.Order) == 0 {
		err = removePages(doc, spec.Remove, &buf)
	} else {
		err = api.Collect(doc.Reader(), &buf, selection(kept), conf)
	}
	if err != nil {
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeBuild, fmt.Errorf("failed to reorder pages: %w", err))
	}

	if err := ctx.Err(); err != nil {
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeCancelled, err)
	}

	rotate := rotatedPositions(kept, spec.Rotate)
	if spec.Rotation%360 == 0 || len(rotate) == 0 {
		return buf.Bytes(), nil
	}

	var out bytes.Buffer
	if err := api.Rotate(bytes.NewReader(buf.Bytes()), &out, spec.Rotation, selection(rotate), conf); err != nil {
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeBuild, fmt.Errorf("failed to rotate pages: %w", err))
	}
	return out.Bytes(), nil
}

func removePages(doc *document.Document, remove []PageRange, w io.Writer) error {
	if len(remove) == 0 {
		_, err := w.Write(doc.Bytes())
		return err
	}

	sel := make([]string, len(remove))
	for i, r := range remove {
		sel[i] = r.String()
	}
	return api.RemovePages(doc.Reader(), w, sel, document.NewConfiguration())
}

// rotatedPositions maps input page selections to positions in the output
func rotatedPositions(kept []int, rotate []PageRange) []int {
	var out []int
	for i, p := range kept {
		if Contains(rotate, p) {
			out = append(out, i+1)
		}
	}
	return out
}

// PageInfo describes one page
type PageInfo struct {
	Number int           `json:"number"`
	Width  float64       `json:"width"`
	Height float64       `json:"height"`
	Rotate int           `json:"rotate"`
	Kind   classify.Kind `json:"-"`
	Type   string        `json:"type"`
}

// Info summarizes a document
type Info struct {
	PageCount  int        `json:"page_count"`
	Size       int64      `json:"size"`
	Version    string     `json:"version"`
	TextPages  int        `json:"text_pages"`
	ImagePages int        `json:"image_pages"`
	Pages      []PageInfo `json:"pages"`
}

// Describe reports the geometry and classification of every page
func Describe(ctx context.Context, doc *document.Document) (*Info, error) {
	classes, err := classify.Classify(ctx, doc)
	if err != nil {
		return nil, err
	}

	info := &Info{
		PageCount: doc.PageCount(),
		Size:      doc.Size(),
		Version:   doc.Version(),
		Pages:     make([]PageInfo, 0, doc.PageCount()),
	}
	info.TextPages, info.ImagePages = classify.Count(classes)

	for _, c := range classes {
		box, rotate, err := doc.PageGeometry(c.PageIndex)
		if err != nil {
			return nil, err
		}
		w, h := box.Width(), box.Height()
		if rotate == 90 || rotate == 270 {
			w, h = h, w
		}
		info.Pages = append(info.Pages, PageInfo{
			Number: c.PageIndex,
			Width:  w,
			Height: h,
			Rotate: rotate,
			Kind:   c.Kind,
			Type:   c.Kind.String(),
		})
	}
	return info, nil
}
