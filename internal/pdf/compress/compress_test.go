package compress

import (
	"context"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-pdf-tools/internal/pdf/document"
	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/raster"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/rebuild"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/testpdf"
)

// countingFactory wraps the real rasterizer and counts page renders
type countingFactory struct {
	created int
	calls   int
}

func (f *countingFactory) factory(doc *document.Document, cache *raster.Cache, logger *log.Logger) rebuild.PageRasterizer {
	f.created++
	return &countingRasterizer{next: raster.New(doc, raster.WithCache(cache)), calls: &f.calls}
}

type countingRasterizer struct {
	next  rebuild.PageRasterizer
	calls *int
}

func (c *countingRasterizer) RasterizePage(ctx context.Context, pageNr int, opts raster.Options) (*raster.Image, error) {
	*c.calls++
	return c.next.RasterizePage(ctx, pageNr, opts)
}

// scannedDocument builds pages of incompressible noise, which shrink a lot
// when re-encoded at low quality.
func scannedDocument(pages int) []byte {
	b := testpdf.New()
	for i := 0; i < pages; i++ {
		b.AddImagePage(300, 300, testpdf.NoiseImage(400, 400, int64(i+1)))
	}
	return b.Bytes()
}

func load(t *testing.T, data []byte) *document.Document {
	t.Helper()
	doc, err := document.Load(data)
	require.NoError(t, err)
	return doc
}

func TestCompressScannedDocument(t *testing.T) {
	doc := load(t, scannedDocument(2))
	c := NewCompressor()

	result, err := c.Compress(context.Background(), doc, raster.Options{DPI: 72, Quality: 0.5})
	require.NoError(t, err)

	assert.Equal(t, 2, result.PageCount)
	assert.Equal(t, 0, result.TextPages)
	assert.Equal(t, 2, result.ImagePages)
	assert.Equal(t, doc.Size(), result.OriginalSize)
	assert.Equal(t, int64(len(result.Data)), result.CompressedSize)
	assert.Less(t, result.CompressedSize, result.OriginalSize)
	assert.Greater(t, result.SavedPercent(), 0.0)

	out := load(t, result.Data)
	assert.Equal(t, 2, out.PageCount())
}

func TestCompressNoSavingsWhenRasterIsLarger(t *testing.T) {
	// A tiny embedded image stretched over a large page grows when rendered
	// at high resolution.
	data := testpdf.New().AddImagePage(612, 792, testpdf.SolidImage(2, 2, testpdfGray)).Bytes()
	doc := load(t, data)

	_, err := NewCompressor().Compress(context.Background(), doc, raster.Options{DPI: 300, Quality: 1})
	require.Error(t, err)
	assert.True(t, pdferrors.IsType(err, pdferrors.ErrorTypeNoSavings))

	pdfErr, _ := pdferrors.As(err)
	assert.True(t, pdfErr.Recoverable)
}

func TestCompressAllTextDocument(t *testing.T) {
	doc := load(t, rebuiltTextDocument(t, 5))

	f := &countingFactory{}
	c := NewCompressor(WithRasterizerFactory(f.factory))

	result, err := c.Compress(context.Background(), doc, raster.Options{DPI: 150, Quality: 0.75})
	require.Error(t, err)
	assert.True(t, pdferrors.IsType(err, pdferrors.ErrorTypeNoSavings), "got %v", err)
	assert.Nil(t, result)
	assert.Zero(t, f.calls, "text pages are never rasterized")
}

func TestCompressToSizeTargetTenPercent(t *testing.T) {
	doc := load(t, scannedDocument(2))
	target := doc.Size() / 10

	f := &countingFactory{}
	c := NewCompressor(WithRasterizerFactory(f.factory))

	result, err := c.CompressToSize(context.Background(), doc, target, 72, DefaultSearchOptions())
	require.NoError(t, err)
	require.NotNil(t, result.Search)

	assert.Len(t, result.Search.Samples, DefaultIterations)
	assert.Less(t, result.CompressedSize, result.OriginalSize)
	for _, s := range result.Search.Samples {
		assert.LessOrEqual(t, result.Search.Diff, s.Diff, "sample %d", s.Iteration)
	}
	assert.Equal(t, result.Search.Quality, result.Quality)
	assert.Equal(t, DefaultIterations*2, f.calls, "every iteration re-rasterizes every image page")
	t.Logf("target %d, got %d (tolerance %d bytes)", target, result.CompressedSize, result.Search.Tolerance())
}

func TestCompressToSizeTargetNotSmaller(t *testing.T) {
	doc := load(t, scannedDocument(1))

	for _, target := range []int64{doc.Size(), doc.Size() + 1} {
		f := &countingFactory{}
		c := NewCompressor(WithRasterizerFactory(f.factory))

		_, err := c.CompressToSize(context.Background(), doc, target, 72, DefaultSearchOptions())
		require.Error(t, err)
		assert.True(t, pdferrors.IsType(err, pdferrors.ErrorTypeConfiguration))
		assert.Zero(t, f.calls)
	}
}

func TestCompressInvalidOptions(t *testing.T) {
	doc := load(t, scannedDocument(1))

	_, err := NewCompressor().Compress(context.Background(), doc, raster.Options{DPI: 150, Quality: 2})
	require.Error(t, err)
	assert.True(t, pdferrors.IsType(err, pdferrors.ErrorTypeConfiguration))
}
