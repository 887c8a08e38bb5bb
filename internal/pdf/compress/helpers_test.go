package compress

import (
	"context"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-pdf-tools/internal/pdf/classify"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/document"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/raster"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/rebuild"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/testpdf"
)

var testpdfGray = color.RGBA{0x80, 0x80, 0x80, 0xff}

// textClasses returns n text page classifications
func textClasses(n int) []classify.PageClassification {
	classes := make([]classify.PageClassification, n)
	for i := range classes {
		classes[i] = classify.PageClassification{PageIndex: i + 1, Kind: classify.TextPage}
	}
	return classes
}

// rebuiltTextDocument returns an all-text document that has already been
// through the rebuilder, so rebuilding it again cannot make it smaller.
func rebuiltTextDocument(t *testing.T, pages int) []byte {
	t.Helper()

	b := testpdf.New()
	for i := 0; i < pages; i++ {
		b.AddTextPage(612, 792, "Plain text page")
	}
	doc, err := document.Load(b.Bytes())
	require.NoError(t, err)

	out, err := rebuild.New().Rebuild(context.Background(), doc, nil, textClasses(pages),
		raster.Options{DPI: DefaultDPI, Quality: DefaultQuality})
	require.NoError(t, err)
	return out
}
