package compress

import (
	"context"
	"math"

	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
)

// Search defaults. They are tuning values, not derived constants: each
// iteration rebuilds the whole document, so more iterations buy precision
// with latency.
const (
	DefaultIterations = 7
	DefaultQualityMin = 0.01
	DefaultQualityMax = 1.0
)

// BuildFunc produces a complete output document at the given quality
type BuildFunc func(ctx context.Context, quality float64) ([]byte, error)

// SearchOptions bounds the quality search
type SearchOptions struct {
	QualityMin float64 `json:"quality_min"`
	QualityMax float64 `json:"quality_max"`
	Iterations int     `json:"iterations"`

	// OnSample, if set, is called after every build
	OnSample func(Sample) `json:"-"`
}

// DefaultSearchOptions returns the default search bounds
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		QualityMin: DefaultQualityMin,
		QualityMax: DefaultQualityMax,
		Iterations: DefaultIterations,
	}
}

// Validate checks the quality bounds and iteration count
func (o SearchOptions) Validate() error {
	if o.Iterations < 1 {
		return pdferrors.Newf(pdferrors.ErrorTypeConfiguration, "iterations must be at least 1, got %d", o.Iterations)
	}
	if o.QualityMin < 0 || o.QualityMax > 1 || o.QualityMin >= o.QualityMax {
		return pdferrors.Newf(pdferrors.ErrorTypeConfiguration,
			"quality bounds must satisfy 0 <= min < max <= 1, got [%v, %v]", o.QualityMin, o.QualityMax)
	}
	return nil
}

// Sample is one measured build of the search
type Sample struct {
	Iteration int     `json:"iteration"`
	Quality   float64 `json:"quality"`
	Size      int64   `json:"size"`
	Diff      int64   `json:"diff"`
}

// SearchResult is the best build found by FindClosestQuality
type SearchResult struct {
	Data    []byte   `json:"-"`
	Quality float64  `json:"quality"`
	Size    int64    `json:"size"`
	Target  int64    `json:"target"`
	Diff    int64    `json:"diff"`
	Samples []Sample `json:"samples"`
}

// Tolerance is the distance between the returned size and the target. It is
// never larger than the distance of any other sampled quality.
func (r *SearchResult) Tolerance() int64 {
	return r.Diff
}

// searchState lives for a single search run
type searchState struct {
	low         float64
	high        float64
	best        []byte
	bestQuality float64
	bestDiff    int64
}

// FindClosestQuality searches [QualityMin, QualityMax] by bisection for the
// build whose size is closest to target. The target must be smaller than
// originalSize; this is checked before anything is built. When even the best
// build is not smaller than the original, a no-savings error is returned.
//
// Cancellation is only observed between iterations.
func FindClosestQuality(ctx context.Context, build BuildFunc, originalSize, target int64, opts SearchOptions) (*SearchResult, error) {
	if target <= 0 {
		return nil, pdferrors.Newf(pdferrors.ErrorTypeConfiguration, "target size must be positive, got %d", target)
	}
	if target >= originalSize {
		return nil, pdferrors.Newf(pdferrors.ErrorTypeConfiguration,
			"target size %d must be smaller than the original size %d", target, originalSize)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	state := searchState{
		low:      opts.QualityMin,
		high:     opts.QualityMax,
		bestDiff: math.MaxInt64,
	}
	result := &SearchResult{Target: target}

	for i := 1; i <= opts.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, pdferrors.WrapError(pdferrors.ErrorTypeCancelled, err)
		}

		quality := (state.low + state.high) / 2
		data, err := build(ctx, quality)
		if err != nil {
			return nil, err
		}

		size := int64(len(data))
		diff := size - target
		if diff < 0 {
			diff = -diff
		}

		sample := Sample{Iteration: i, Quality: quality, Size: size, Diff: diff}
		result.Samples = append(result.Samples, sample)
		if opts.OnSample != nil {
			opts.OnSample(sample)
		}

		// Strict improvement only: ties keep the earlier build.
		if diff < state.bestDiff {
			state.best = data
			state.bestQuality = quality
			state.bestDiff = diff
		}

		if size > target {
			state.high = quality
		} else {
			state.low = quality
		}
	}

	result.Data = state.best
	result.Quality = state.bestQuality
	result.Size = int64(len(state.best))
	result.Diff = state.bestDiff

	if result.Size >= originalSize {
		return result, pdferrors.Newf(pdferrors.ErrorTypeNoSavings,
			"best result is %d bytes, original is %d bytes", result.Size, originalSize)
	}

	return result, nil
}
