package compress

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/raster"
)

type recorder struct {
	changes []StateChange
}

func (r *recorder) observe(c StateChange) {
	r.changes = append(r.changes, c)
}

func (r *recorder) states() []State {
	out := make([]State, 0, len(r.changes))
	for _, c := range r.changes {
		out = append(out, c.To)
	}
	return out
}

func TestSessionRun(t *testing.T) {
	s := NewSession(NewCompressor())
	rec := &recorder{}
	s.Observe(rec.observe)

	assert.Equal(t, StateIdle, s.State())

	result, err := s.Run(context.Background(), scannedDocument(1), Job{Raster: raster.Options{DPI: 72, Quality: 0.5}})
	require.NoError(t, err)
	require.NotNil(t, result)

	want := []State{StateLoading, StateAnalyzing, StateProcessing, StateDone}
	if diff := cmp.Diff(want, rec.states()); diff != "" {
		t.Errorf("state sequence mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, StateDone, s.State())
	assert.NoError(t, s.Err())
	assert.NotNil(t, s.Document())
	assert.Len(t, s.Classifications(), 1)
}

func TestSessionLoadFailure(t *testing.T) {
	s := NewSession(nil)
	rec := &recorder{}
	s.Observe(rec.observe)

	_, err := s.Run(context.Background(), []byte("not a pdf"), Job{Raster: DefaultOptions()})
	require.Error(t, err)
	assert.True(t, pdferrors.IsType(err, pdferrors.ErrorTypeLoad))

	assert.Equal(t, StateFailed, s.State())
	assert.Nil(t, s.Document())
	assert.Equal(t, err, s.Err())

	last := rec.changes[len(rec.changes)-1]
	assert.Equal(t, StateLoading, last.From)
	assert.Equal(t, EventFailed, last.Event)
	assert.Equal(t, err, last.Err)

	_, err = s.Retry(context.Background(), Job{Raster: DefaultOptions()})
	require.Error(t, err)
	assert.True(t, pdferrors.IsType(err, pdferrors.ErrorTypeConfiguration))
}

func TestSessionRetryAfterFailure(t *testing.T) {
	s := NewSession(NewCompressor())
	data := scannedDocument(1)

	// Unreachable target: rejected before analysis, document kept.
	_, err := s.Run(context.Background(), data, Job{
		Raster:     raster.Options{DPI: 72},
		TargetSize: int64(len(data)),
		Search:     DefaultSearchOptions(),
	})
	require.Error(t, err)
	assert.True(t, pdferrors.IsType(err, pdferrors.ErrorTypeConfiguration))
	assert.Equal(t, StateFailed, s.State())
	require.NotNil(t, s.Document())

	rec := &recorder{}
	s.Observe(rec.observe)

	result, err := s.Retry(context.Background(), Job{Raster: raster.Options{DPI: 72, Quality: 0.4}})
	require.NoError(t, err)
	assert.Less(t, result.CompressedSize, result.OriginalSize)
	assert.Equal(t, StateDone, s.State())
	assert.NoError(t, s.Err())

	want := []State{StateAnalyzing, StateProcessing, StateDone}
	if diff := cmp.Diff(want, rec.states()); diff != "" {
		t.Errorf("state sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestSessionRetryKeepsRasterizer(t *testing.T) {
	f := &countingFactory{}
	s := NewSession(NewCompressor(WithRasterizerFactory(f.factory)))
	data := scannedDocument(2)

	_, err := s.Run(context.Background(), data, Job{Raster: raster.Options{DPI: 72, Quality: 0.5}})
	require.NoError(t, err)
	assert.Equal(t, 2, f.calls)

	_, err = s.Retry(context.Background(), Job{Raster: raster.Options{DPI: 72, Quality: 0.3}})
	require.NoError(t, err)
	assert.Equal(t, 4, f.calls)
	assert.Equal(t, 1, f.created, "retry reuses the session rasterizer and its cache")
}

func TestSessionReset(t *testing.T) {
	s := NewSession(NewCompressor())
	_, err := s.Run(context.Background(), scannedDocument(1), Job{Raster: raster.Options{DPI: 72, Quality: 0.5}})
	require.NoError(t, err)

	s.Reset()
	assert.Equal(t, StateIdle, s.State())
	assert.Nil(t, s.Document())
	assert.Nil(t, s.Classifications())
	assert.NoError(t, s.Err())

	// A new run is allowed from Idle again.
	_, err = s.Run(context.Background(), scannedDocument(1), Job{Raster: raster.Options{DPI: 72, Quality: 0.5}})
	require.NoError(t, err)
}

func TestSessionCancelledRun(t *testing.T) {
	s := NewSession(NewCompressor())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Run(ctx, scannedDocument(1), Job{Raster: DefaultOptions()})
	require.Error(t, err)
	assert.True(t, pdferrors.IsType(err, pdferrors.ErrorTypeCancelled))
	assert.Equal(t, StateFailed, s.State())
	assert.NotNil(t, s.Document())
}
