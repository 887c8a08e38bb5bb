package compress

import (
	"context"
	"sync"

	"github.com/a3tai/mcp-pdf-tools/internal/pdf/classify"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/document"
	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/raster"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/rebuild"
)

// StateChange is delivered to observers after every transition
type StateChange struct {
	From  State
	To    State
	Event Event
	Err   error
}

// Observer is notified of state changes. Observers run synchronously on the
// goroutine that caused the change and must not call back into the session.
type Observer func(StateChange)

// Job selects what a run produces. With a positive TargetSize the quality is
// searched for; otherwise Raster is used as given.
type Job struct {
	Raster     raster.Options
	TargetSize int64
	Search     SearchOptions
}

// Session owns one loaded document, its classification and its render cache
// across runs. A failed run keeps the document, so Retry can try other
// options without loading again. Reset releases everything.
type Session struct {
	mu         sync.Mutex
	compressor *Compressor
	observers  []Observer

	state      State
	lastErr    error
	doc        *document.Document
	classes    []classify.PageClassification
	cache      *raster.Cache
	rasterizer rebuild.PageRasterizer
}

// NewSession returns an idle session using c for its runs
func NewSession(c *Compressor) *Session {
	if c == nil {
		c = NewCompressor()
	}
	return &Session{compressor: c}
}

// Observe registers an observer
func (s *Session) Observe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error of the last failed run, if any
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Document returns the loaded document, or nil
func (s *Session) Document() *document.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// Classifications returns the page classification of the loaded document
func (s *Session) Classifications() []classify.PageClassification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classes
}

// fire applies ev and notifies observers. Callers hold s.mu.
func (s *Session) fire(ev Event, cause error) error {
	next, err := Transition(s.state, ev)
	if err != nil {
		return pdferrors.WrapError(pdferrors.ErrorTypeConfiguration, err)
	}

	change := StateChange{From: s.state, To: next, Event: ev, Err: cause}
	s.state = next
	if ev == EventFailed {
		s.lastErr = cause
	}
	for _, o := range s.observers {
		o(change)
	}
	return nil
}

// fail moves to Failed and returns cause
func (s *Session) fail(cause error) error {
	_ = s.fire(EventFailed, cause)
	return cause
}

// Run loads data and runs job on it. Any previously loaded document is
// replaced.
func (s *Session) Run(ctx context.Context, data []byte, job Job) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fire(EventLoad, nil); err != nil {
		return nil, err
	}
	s.release()

	doc, err := document.Load(data)
	if err != nil {
		return nil, s.fail(err)
	}

	s.doc = doc
	s.cache = raster.NewCache(s.compressor.cacheSize)
	s.rasterizer = s.compressor.newRasterizer(doc, s.cache, s.compressor.logger)

	// A target that cannot be met is rejected before any analysis.
	if job.TargetSize > 0 {
		if err := checkTarget(doc, job.TargetSize, job.Raster.DPI, job.Search); err != nil {
			return nil, s.fail(err)
		}
	}

	if err := s.fire(EventLoaded, nil); err != nil {
		return nil, err
	}

	classes, err := classify.Classify(ctx, doc)
	if err != nil {
		return nil, s.fail(err)
	}
	s.classes = classes

	return s.process(ctx, job)
}

// Retry runs job again on the loaded document, reusing its classification
func (s *Session) Retry(ctx context.Context, job Job) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		return nil, pdferrors.NewPDFError(pdferrors.ErrorTypeConfiguration, "no document loaded")
	}
	if err := s.fire(EventRetry, nil); err != nil {
		return nil, err
	}

	if s.classes == nil {
		classes, err := classify.Classify(ctx, s.doc)
		if err != nil {
			return nil, s.fail(err)
		}
		s.classes = classes
	}

	if job.TargetSize > 0 {
		if err := checkTarget(s.doc, job.TargetSize, job.Raster.DPI, job.Search); err != nil {
			return nil, s.fail(err)
		}
	}

	return s.process(ctx, job)
}

// process runs from Analyzing to Done or Failed. Callers hold s.mu.
func (s *Session) process(ctx context.Context, job Job) (*Result, error) {
	if err := s.fire(EventAnalyzed, nil); err != nil {
		return nil, err
	}

	var (
		result *Result
		err    error
	)
	if job.TargetSize > 0 {
		result, err = s.compressor.compressToSize(ctx, s.doc, s.rasterizer, s.classes, job.TargetSize, job.Raster.DPI, job.Search)
	} else {
		result, err = s.compressor.compress(ctx, s.doc, s.rasterizer, s.classes, job.Raster)
	}
	if err != nil {
		return nil, s.fail(err)
	}

	s.lastErr = nil
	if err := s.fire(EventSucceeded, nil); err != nil {
		return nil, err
	}
	return result, nil
}

// Reset drops the loaded document and returns to Idle
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.release()
	s.lastErr = nil
	_ = s.fire(EventReset, nil)
}

func (s *Session) release() {
	if s.doc != nil {
		_ = s.doc.Close()
	}
	s.cache.Clear()
	s.doc = nil
	s.classes = nil
	s.cache = nil
	s.rasterizer = nil
}
