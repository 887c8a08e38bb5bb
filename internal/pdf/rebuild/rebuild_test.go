package rebuild

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-pdf-tools/internal/pdf/classify"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/document"
	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/raster"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/testpdf"
)

// countingRasterizer records which pages were rasterized
type countingRasterizer struct {
	next  PageRasterizer
	pages []int
	fail  map[int]error
}

func (c *countingRasterizer) RasterizePage(ctx context.Context, pageNr int, opts raster.Options) (*raster.Image, error) {
	c.pages = append(c.pages, pageNr)
	if err, ok := c.fail[pageNr]; ok {
		return nil, err
	}
	return c.next.RasterizePage(ctx, pageNr, opts)
}

func prepare(t *testing.T, data []byte) (*document.Document, *countingRasterizer, []classify.PageClassification) {
	t.Helper()

	doc, err := document.Load(data)
	require.NoError(t, err)

	classes, err := classify.Classify(context.Background(), doc)
	require.NoError(t, err)

	return doc, &countingRasterizer{next: raster.New(doc)}, classes
}

func pageText(t *testing.T, doc *document.Document, pageNr int) string {
	t.Helper()
	items, err := doc.TextItems(pageNr)
	require.NoError(t, err)

	var sb strings.Builder
	for _, item := range items {
		sb.WriteString(item.Text)
	}
	return sb.String()
}

func TestRuns(t *testing.T) {
	classes := []classify.PageClassification{
		{PageIndex: 1, Kind: classify.TextPage},
		{PageIndex: 2, Kind: classify.ImagePage},
		{PageIndex: 3, Kind: classify.ImagePage},
		{PageIndex: 4, Kind: classify.TextPage},
		{PageIndex: 5, Kind: classify.TextPage},
		{PageIndex: 6, Kind: classify.ImagePage},
	}

	want := []Run{
		{Kind: classify.TextPage, First: 1, Last: 1},
		{Kind: classify.ImagePage, First: 2, Last: 3},
		{Kind: classify.TextPage, First: 4, Last: 5},
		{Kind: classify.ImagePage, First: 6, Last: 6},
	}
	if diff := cmp.Diff(want, Runs(classes)); diff != "" {
		t.Errorf("Runs() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, want[1].Len())
	assert.Empty(t, Runs(nil))
}

func TestRebuildThreePageScenario(t *testing.T) {
	data := testpdf.New().
		AddTextPage(612, 792, "Page one has text").
		AddImagePage(612, 792, testpdf.NoiseImage(120, 160, 2)).
		AddImagePage(612, 792, testpdf.NoiseImage(120, 160, 3)).
		Bytes()

	src, r, classes := prepare(t, data)

	out, err := New().Rebuild(context.Background(), src, r, classes, raster.Options{DPI: 150, Quality: 0.75})
	require.NoError(t, err)

	result, err := document.Load(out)
	require.NoError(t, err)
	require.Equal(t, 3, result.PageCount())
	assert.Equal(t, []int{2, 3}, r.pages, "only image pages are rasterized")

	// Text page is copied verbatim.
	srcContent, err := src.PageContent(1)
	require.NoError(t, err)
	outContent, err := result.PageContent(1)
	require.NoError(t, err)
	assert.Equal(t, srcContent, outContent)

	// Image pages are sized to the raster: floor(612*150/72) x floor(792*150/72).
	for _, pageNr := range []int{2, 3} {
		page, err := result.Page(pageNr)
		require.NoError(t, err)
		assert.InDelta(t, 1275, page.Box.Width(), 0.001, "page %d width", pageNr)
		assert.InDelta(t, 1650, page.Box.Height(), 0.001, "page %d height", pageNr)

		items, err := result.TextItems(pageNr)
		require.NoError(t, err)
		assert.Empty(t, items)
	}
}

func TestRebuildPreservesCountAndOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 6; trial++ {
		t.Run(fmt.Sprintf("trial %d", trial), func(t *testing.T) {
			n := 1 + rng.Intn(6)
			b := testpdf.New()
			kinds := make([]classify.Kind, n)
			for i := 0; i < n; i++ {
				if rng.Intn(2) == 0 {
					kinds[i] = classify.TextPage
					b.AddTextPage(200, 200, fmt.Sprintf("marker-%d", i+1))
				} else {
					kinds[i] = classify.ImagePage
					// Width encodes the page position so order can be checked.
					b.AddImagePage(float64(100+i), 100, testpdf.NoiseImage(10, 10, int64(i)))
				}
			}

			src, r, classes := prepare(t, b.Bytes())
			out, err := New().Rebuild(context.Background(), src, r, classes, raster.Options{DPI: 72, Quality: 0.5})
			require.NoError(t, err)

			result, err := document.Load(out)
			require.NoError(t, err)
			require.Equal(t, n, result.PageCount())

			for i, kind := range kinds {
				pageNr := i + 1
				if kind == classify.TextPage {
					assert.Contains(t, pageText(t, result, pageNr), fmt.Sprintf("marker-%d", pageNr))
					continue
				}
				page, err := result.Page(pageNr)
				require.NoError(t, err)
				assert.InDelta(t, float64(100+i), page.Box.Width(), 0.001, "page %d", pageNr)
			}
		})
	}
}

func TestRebuildKeepsRotationOfTextPages(t *testing.T) {
	data := testpdf.New().
		AddPage(testpdf.Page{Width: 300, Height: 400, Rotate: 90, Lines: []string{"sideways"}}).
		Bytes()

	src, r, classes := prepare(t, data)
	out, err := New().Rebuild(context.Background(), src, r, classes, raster.Options{DPI: 72, Quality: 0.5})
	require.NoError(t, err)

	result, err := document.Load(out)
	require.NoError(t, err)
	page, err := result.Page(1)
	require.NoError(t, err)
	assert.Equal(t, 90, page.Rotate)
	assert.Empty(t, r.pages)
}

func TestRebuildDeterministicLength(t *testing.T) {
	data := testpdf.New().
		AddTextPage(300, 300, "intro").
		AddImagePage(300, 300, testpdf.NoiseImage(60, 60, 11)).
		Bytes()
	opts := raster.Options{DPI: 96, Quality: 0.4}

	var first []byte
	for i := 0; i < 10; i++ {
		src, r, classes := prepare(t, data)
		out, err := New().Rebuild(context.Background(), src, r, classes, opts)
		require.NoError(t, err)
		if first == nil {
			first = out
			continue
		}
		require.Equal(t, len(first), len(out), "run %d", i)
		assert.True(t, bytes.Equal(first, out), "run %d differs", i)
	}
}

func TestRebuildClassificationMismatch(t *testing.T) {
	data := testpdf.New().
		AddImagePage(100, 100, testpdf.NoiseImage(10, 10, 1)).
		AddImagePage(100, 100, testpdf.NoiseImage(10, 10, 2)).
		Bytes()
	src, r, _ := prepare(t, data)

	tests := []struct {
		name    string
		classes []classify.PageClassification
	}{
		{name: "too few", classes: []classify.PageClassification{{PageIndex: 1, Kind: classify.ImagePage}}},
		{name: "out of order", classes: []classify.PageClassification{
			{PageIndex: 2, Kind: classify.ImagePage},
			{PageIndex: 1, Kind: classify.ImagePage},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Rebuild(context.Background(), src, r, tt.classes, raster.Options{DPI: 72, Quality: 0.5})
			require.Error(t, err)
			assert.True(t, pdferrors.IsType(err, pdferrors.ErrorTypeConfiguration))
		})
	}
	assert.Empty(t, r.pages)
}

func TestRebuildRenderFailureIsFatal(t *testing.T) {
	data := testpdf.New().
		AddImagePage(100, 100, testpdf.NoiseImage(10, 10, 1)).
		AddImagePage(100, 100, testpdf.NoiseImage(10, 10, 2)).
		AddImagePage(100, 100, testpdf.NoiseImage(10, 10, 3)).
		Bytes()
	src, r, classes := prepare(t, data)
	r.fail = map[int]error{
		2: pdferrors.WrapError(pdferrors.ErrorTypeRender, errors.New("out of memory")).WithPage(2),
	}

	out, err := New().Rebuild(context.Background(), src, r, classes, raster.Options{DPI: 72, Quality: 0.5})
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, pdferrors.IsType(err, pdferrors.ErrorTypeRender))
	assert.Equal(t, []int{1, 2}, r.pages, "processing stops at the failing page")
}

func TestRebuildInvalidOptions(t *testing.T) {
	src, r, classes := prepare(t, testpdf.New().AddImagePage(100, 100, testpdf.NoiseImage(10, 10, 1)).Bytes())

	_, err := New().Rebuild(context.Background(), src, r, classes, raster.Options{DPI: 0, Quality: 0.5})
	require.Error(t, err)
	assert.True(t, pdferrors.IsType(err, pdferrors.ErrorTypeConfiguration))
	assert.Empty(t, r.pages)
}

func TestRebuildCancelled(t *testing.T) {
	src, r, classes := prepare(t, testpdf.New().AddImagePage(100, 100, testpdf.NoiseImage(10, 10, 1)).Bytes())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Rebuild(ctx, src, r, classes, raster.Options{DPI: 72, Quality: 0.5})
	require.Error(t, err)
	assert.True(t, pdferrors.IsType(err, pdferrors.ErrorTypeCancelled))
	assert.Empty(t, r.pages)
}
