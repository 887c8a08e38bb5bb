// Package classify decides, per page, whether a page carries extractable text
// and must be kept as is, or is a scanned image that may be re-rasterized.
package classify

import (
	"context"
	"fmt"

	"github.com/a3tai/mcp-pdf-tools/internal/pdf/document"
	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
)

// Kind is the classification of a single page
type Kind int

const (
	// TextPage has at least one extracted text item and is copied verbatim.
	TextPage Kind = iota
	// ImagePage has no extractable text and is rasterized.
	ImagePage
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case TextPage:
		return "text"
	case ImagePage:
		return "image"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// PageClassification is the kind of one page. PageIndex is 1-based, matching
// page numbers everywhere else in this module.
type PageClassification struct {
	PageIndex int
	Kind      Kind
}

// TextSource is the part of a source document the classifier needs
type TextSource interface {
	PageCount() int
	TextItems(pageNr int) ([]document.TextItem, error)
}

// KindOf classifies a page from its extracted text items. Any item counts,
// including whitespace-only runs.
func KindOf(items []document.TextItem) Kind {
	if len(items) > 0 {
		return TextPage
	}
	return ImagePage
}

// Classify classifies every page of src in order. An extraction failure on
// any page aborts classification; no kind is guessed for a page whose text
// could not be read.
func Classify(ctx context.Context, src TextSource) ([]PageClassification, error) {
	count := src.PageCount()
	result := make([]PageClassification, 0, count)

	for pageNr := 1; pageNr <= count; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, pdferrors.WrapError(pdferrors.ErrorTypeCancelled, err)
		}

		items, err := src.TextItems(pageNr)
		if err != nil {
			if pdferrors.TypeOf(err) == pdferrors.ErrorTypeExtraction {
				return nil, err
			}
			return nil, pdferrors.WrapError(pdferrors.ErrorTypeExtraction, err).WithPage(pageNr)
		}

		result = append(result, PageClassification{PageIndex: pageNr, Kind: KindOf(items)})
	}

	return result, nil
}

// Count returns how many pages of each kind are in classes
func Count(classes []PageClassification) (text, image int) {
	for _, c := range classes {
		if c.Kind == TextPage {
			text++
		} else {
			image++
		}
	}
	return text, image
}
