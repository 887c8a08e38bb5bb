// Package document loads a source PDF once and gives the compression
// pipeline read-only access to it: page count, per-page text items and the
// object graph needed to paint a page.
package document

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
)

var disableConfigDir sync.Once

// NewConfiguration returns the pdfcpu configuration used for every read and
// write in this module. Validation is relaxed because real-world scans are
// rarely fully conforming.
func NewConfiguration() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// TextItem is a single run of extracted text with its position on the page
type TextItem struct {
	Text     string
	Font     string
	FontSize float64
	X        float64
	Y        float64
	Width    float64
}

// Document is an immutable, parsed source PDF
type Document struct {
	data      []byte
	ctx       *model.Context
	pageCount int

	textOnce   sync.Once
	textReader *pdf.Reader
	textErr    error
}

// Load parses data as a PDF document. Any failure is reported as a load error.
func Load(data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, pdferrors.NewPDFError(pdferrors.ErrorTypeLoad, "input is empty")
	}

	ctx, err := api.ReadContext(bytes.NewReader(data), NewConfiguration())
	if err != nil {
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeLoad, fmt.Errorf("failed to read PDF: %w", err))
	}

	if err := api.ValidateContext(ctx); err != nil {
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeLoad, fmt.Errorf("invalid PDF: %w", err))
	}

	if err := ctx.EnsurePageCount(); err != nil {
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeLoad, fmt.Errorf("failed to count pages: %w", err))
	}

	if ctx.PageCount < 1 {
		return nil, pdferrors.NewPDFError(pdferrors.ErrorTypeLoad, "document has no pages")
	}

	return &Document{
		data:      data,
		ctx:       ctx,
		pageCount: ctx.PageCount,
	}, nil
}

// PageCount returns the number of pages
func (d *Document) PageCount() int {
	return d.pageCount
}

// Size returns the size of the original file in bytes
func (d *Document) Size() int64 {
	return int64(len(d.data))
}

// Bytes returns the original file contents. Callers must not modify the slice.
func (d *Document) Bytes() []byte {
	return d.data
}

// Reader returns a fresh reader over the original file contents
func (d *Document) Reader() io.ReadSeeker {
	return bytes.NewReader(d.data)
}

// Version returns the PDF version from the file header
func (d *Document) Version() string {
	if d.ctx == nil || d.ctx.HeaderVersion == nil {
		return ""
	}
	return d.ctx.HeaderVersion.String()
}

// Context exposes the parsed pdfcpu object graph
func (d *Document) Context() *model.Context {
	return d.ctx
}

// TextItems returns the text runs found on pageNr (1-based).
func (d *Document) TextItems(pageNr int) (items []TextItem, err error) {
	if err := d.checkPage(pageNr); err != nil {
		return nil, err
	}

	d.textOnce.Do(func() {
		d.textReader, d.textErr = pdf.NewReader(bytes.NewReader(d.data), int64(len(d.data)))
	})
	if d.textErr != nil {
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeExtraction, d.textErr).WithPage(pageNr)
	}

	page := d.textReader.Page(pageNr)
	if page.V.IsNull() {
		return nil, pdferrors.NewPDFError(pdferrors.ErrorTypeExtraction, "page object not found").WithPage(pageNr)
	}

	// ledongthuc/pdf reports malformed content streams by panicking.
	defer func() {
		if r := recover(); r != nil {
			items = nil
			err = pdferrors.Newf(pdferrors.ErrorTypeExtraction, "text extraction failed: %v", r).WithPage(pageNr)
		}
	}()

	content := page.Content()
	items = make([]TextItem, 0, len(content.Text))
	for _, text := range content.Text {
		items = append(items, TextItem{
			Text:     text.S,
			Font:     text.Font,
			FontSize: text.FontSize,
			X:        text.X,
			Y:        text.Y,
			Width:    text.W,
		})
	}

	return items, nil
}

// Close drops the references held by the document
func (d *Document) Close() error {
	d.data = nil
	d.ctx = nil
	d.textReader = nil
	return nil
}

func (d *Document) checkPage(pageNr int) error {
	if d.ctx == nil {
		return pdferrors.NewPDFError(pdferrors.ErrorTypeLoad, "document is closed")
	}
	if pageNr < 1 || pageNr > d.pageCount {
		return pdferrors.Newf(pdferrors.ErrorTypeConfiguration,
			"invalid page number %d (document has %d pages)", pageNr, d.pageCount)
	}
	return nil
}
