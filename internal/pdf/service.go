package pdf

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/a3tai/mcp-pdf-tools/internal/pdf/classify"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/compress"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/document"
	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/pages"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/raster"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/security"
)

// Suffixes of files written by the page tools
const (
	MergedSuffix    = "-merged"
	OrganizedSuffix = "-organized"
	PartSuffix      = "-part-%d"
)

// OutputPerm is the permission of every written file
const OutputPerm = 0o644

// Service runs the tools against files inside the configured directory
type Service struct {
	maxFileSize   int64
	outputDir     string
	cacheSize     int64
	defaults      CompressionDefaults
	logger        *log.Logger
	validator     *Validator
	pathValidator *security.PathValidator
	scanner       *DirectoryScanner
	compressor    *compress.Compressor
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithOutputDirectory writes outputs into dir instead of next to the input
func WithOutputDirectory(dir string) ServiceOption {
	return func(s *Service) {
		s.outputDir = dir
	}
}

// WithDefaults sets the compression settings used when a request leaves them out
func WithDefaults(d CompressionDefaults) ServiceOption {
	return func(s *Service) {
		s.defaults = d
	}
}

// WithCacheSize sets the render cache byte budget of each request
func WithCacheSize(n int64) ServiceOption {
	return func(s *Service) {
		s.cacheSize = n
	}
}

// WithLogger sets the logger for pipeline progress
func WithLogger(l *log.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// DefaultCompressionDefaults returns the built-in compression settings
func DefaultCompressionDefaults() CompressionDefaults {
	return CompressionDefaults{
		DPI:          compress.DefaultDPI,
		Quality:      compress.DefaultQuality,
		Iterations:   compress.DefaultIterations,
		QualityMin:   compress.DefaultQualityMin,
		QualityMax:   compress.DefaultQualityMax,
		OutputSuffix: compress.DefaultSuffix,
	}
}

// NewService creates a PDF service confined to configuredDirectory
func NewService(maxFileSize int64, configuredDirectory string, opts ...ServiceOption) (*Service, error) {
	pathValidator, err := security.NewPathValidator(configuredDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to create path validator: %w", err)
	}

	s := &Service{
		maxFileSize:   maxFileSize,
		cacheSize:     compress.DefaultCacheSize,
		defaults:      DefaultCompressionDefaults(),
		logger:        log.New(io.Discard, "", 0),
		validator:     NewValidator(maxFileSize),
		pathValidator: pathValidator,
		scanner:       NewDirectoryScanner(5, 100, 3*time.Second),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.outputDir != "" {
		if s.outputDir, err = pathValidator.Resolve(s.outputDir); err != nil {
			return nil, fmt.Errorf("invalid output directory: %w", err)
		}
	}

	s.compressor = compress.NewCompressor(
		compress.WithLogger(s.logger),
		compress.WithCacheSize(s.cacheSize),
	)
	return s, nil
}

// GetMaxFileSize returns the maximum file size limit
func (s *Service) GetMaxFileSize() int64 {
	return s.maxFileSize
}

// Defaults returns the compression settings used for omitted request fields
func (s *Service) Defaults() CompressionDefaults {
	return s.defaults
}

// ValidateConfiguration validates the service configuration
func (s *Service) ValidateConfiguration() error {
	if s.maxFileSize <= 0 {
		return fmt.Errorf("maxFileSize must be greater than 0")
	}

	if s.maxFileSize > 1024*1024*1024 { // 1GB limit
		return fmt.Errorf("maxFileSize cannot exceed 1GB")
	}

	if err := (raster.Options{DPI: s.defaults.DPI, Quality: s.defaults.Quality}).Validate(); err != nil {
		return err
	}

	search := compress.SearchOptions{
		QualityMin: s.defaults.QualityMin,
		QualityMax: s.defaults.QualityMax,
		Iterations: s.defaults.Iterations,
	}
	return search.Validate()
}

// PDFCompress compresses a file at fixed raster settings and writes the result
func (s *Service) PDFCompress(ctx context.Context, req PDFCompressRequest) (*PDFCompressResult, error) {
	input, data, err := s.readInput(req.Path)
	if err != nil {
		return nil, err
	}

	output, err := s.outputPath(input, req.OutputPath, s.defaults.OutputSuffix)
	if err != nil {
		return nil, err
	}

	job := compress.Job{
		Raster: raster.Options{
			DPI:     orDefault(req.DPI, s.defaults.DPI),
			Quality: valueOr(req.Quality, s.defaults.Quality),
		},
	}

	result, err := s.newSession(input).Run(ctx, data, job)
	if err != nil {
		return nil, err
	}

	if err := s.writeOutput(output, result.Data); err != nil {
		return nil, err
	}
	return compressResult(input, output, result), nil
}

// PDFCompressToSize searches for the quality whose output is closest to the
// requested size and writes the best result.
func (s *Service) PDFCompressToSize(ctx context.Context, req PDFCompressToSizeRequest) (*PDFCompressResult, error) {
	if req.TargetSize <= 0 {
		return nil, pdferrors.Newf(pdferrors.ErrorTypeConfiguration, "target size must be positive, got %d", req.TargetSize)
	}

	input, data, err := s.readInput(req.Path)
	if err != nil {
		return nil, err
	}

	output, err := s.outputPath(input, req.OutputPath, s.defaults.OutputSuffix)
	if err != nil {
		return nil, err
	}

	iterations := req.Iterations
	if iterations == 0 {
		iterations = s.defaults.Iterations
	}

	job := compress.Job{
		Raster:     raster.Options{DPI: orDefault(req.DPI, s.defaults.DPI)},
		TargetSize: req.TargetSize,
		Search: compress.SearchOptions{
			QualityMin: s.defaults.QualityMin,
			QualityMax: s.defaults.QualityMax,
			Iterations: iterations,
		},
	}

	result, err := s.newSession(input).Run(ctx, data, job)
	if err != nil {
		return nil, err
	}

	if err := s.writeOutput(output, result.Data); err != nil {
		return nil, err
	}
	return compressResult(input, output, result), nil
}

// PDFAnalyzePages classifies every page of a file
func (s *Service) PDFAnalyzePages(ctx context.Context, req PDFAnalyzeRequest) (*PDFAnalyzeResult, error) {
	input, doc, err := s.loadInput(req.Path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	classes, err := classify.Classify(ctx, doc)
	if err != nil {
		return nil, err
	}

	result := &PDFAnalyzeResult{
		Path:      input,
		Size:      doc.Size(),
		PageCount: doc.PageCount(),
		Pages:     make([]PageClass, 0, len(classes)),
	}
	result.TextPages, result.ImagePages = classify.Count(classes)
	for _, c := range classes {
		result.Pages = append(result.Pages, PageClass{Page: c.PageIndex, Type: c.Kind.String()})
	}
	return result, nil
}

// PDFMerge concatenates files in order
func (s *Service) PDFMerge(ctx context.Context, req PDFMergeRequest) (*PDFMergeResult, error) {
	if len(req.Paths) < 2 {
		return nil, pdferrors.Newf(pdferrors.ErrorTypeConfiguration, "merge needs at least 2 files, got %d", len(req.Paths))
	}

	inputs := make([][]byte, 0, len(req.Paths))
	var first string
	for i, path := range req.Paths {
		input, data, err := s.readInput(path)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			first = input
		}
		inputs = append(inputs, data)
	}

	output, err := s.outputPath(first, req.OutputPath, MergedSuffix)
	if err != nil {
		return nil, err
	}

	data, err := pages.Merge(ctx, inputs)
	if err != nil {
		return nil, err
	}

	count, err := pageCount(data)
	if err != nil {
		return nil, err
	}

	if err := s.writeOutput(output, data); err != nil {
		return nil, err
	}
	return &PDFMergeResult{
		OutputPath: output,
		InputCount: len(inputs),
		PageCount:  count,
		Size:       int64(len(data)),
	}, nil
}

// PDFSplit writes one file per span of pages
func (s *Service) PDFSplit(ctx context.Context, req PDFSplitRequest) (*PDFSplitResult, error) {
	input, doc, err := s.loadInput(req.Path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	parts, err := pages.Split(ctx, doc, req.Span)
	if err != nil {
		return nil, err
	}

	// Resolve every name before writing anything.
	outputs := make([]string, len(parts))
	for i := range parts {
		if outputs[i], err = s.outputPath(input, "", fmt.Sprintf(PartSuffix, i+1)); err != nil {
			return nil, err
		}
	}

	result := &PDFSplitResult{Path: input, PageCount: doc.PageCount()}
	for i, part := range parts {
		if err := s.writeOutput(outputs[i], part.Data); err != nil {
			return nil, err
		}
		result.Parts = append(result.Parts, SplitPart{
			Path:  outputs[i],
			Pages: part.Range.String(),
			Size:  int64(len(part.Data)),
		})
	}
	return result, nil
}

// PDFOrganize reorders, removes and rotates pages
func (s *Service) PDFOrganize(ctx context.Context, req PDFOrganizeRequest) (*PDFOrganizeResult, error) {
	input, doc, err := s.loadInput(req.Path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	spec := pages.Spec{Rotation: req.Rotation}
	for _, sel := range []struct {
		text string
		dst  *[]pages.PageRange
	}{
		{req.Order, &spec.Order},
		{req.Remove, &spec.Remove},
		{req.Rotate, &spec.Rotate},
	} {
		if sel.text == "" {
			continue
		}
		if *sel.dst, err = pages.ParseRanges(sel.text, doc.PageCount()); err != nil {
			return nil, err
		}
	}

	if req.Rotation != 0 && len(spec.Rotate) == 0 {
		return nil, pdferrors.NewPDFError(pdferrors.ErrorTypeConfiguration, "rotation given without pages to rotate")
	}

	output, err := s.outputPath(input, req.OutputPath, OrganizedSuffix)
	if err != nil {
		return nil, err
	}

	data, err := pages.Organize(ctx, doc, spec)
	if err != nil {
		return nil, err
	}

	count, err := pageCount(data)
	if err != nil {
		return nil, err
	}

	if err := s.writeOutput(output, data); err != nil {
		return nil, err
	}
	return &PDFOrganizeResult{
		Path:       input,
		OutputPath: output,
		PageCount:  count,
		Size:       int64(len(data)),
	}, nil
}

// PDFInfo reports page geometry and classification
func (s *Service) PDFInfo(ctx context.Context, req PDFInfoRequest) (*PDFInfoResult, error) {
	input, doc, err := s.loadInput(req.Path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	info, err := pages.Describe(ctx, doc)
	if err != nil {
		return nil, err
	}

	result := &PDFInfoResult{
		Path:       input,
		Size:       info.Size,
		Version:    info.Version,
		PageCount:  info.PageCount,
		TextPages:  info.TextPages,
		ImagePages: info.ImagePages,
		Pages:      make([]PageDetail, 0, len(info.Pages)),
	}
	for _, p := range info.Pages {
		result.Pages = append(result.Pages, PageDetail{
			Page:   p.Number,
			Width:  p.Width,
			Height: p.Height,
			Rotate: p.Rotate,
			Type:   p.Type,
		})
	}
	return result, nil
}

// readInput confines path to the configured directory and reads it
func (s *Service) readInput(path string) (string, []byte, error) {
	resolved, err := s.pathValidator.ValidatePath(path)
	if err != nil {
		return "", nil, pdferrors.WrapError(pdferrors.ErrorTypeConfiguration,
			fmt.Errorf("security validation failed: %w", err))
	}

	data, err := s.validator.ReadFile(resolved)
	if err != nil {
		return "", nil, err
	}
	return resolved, data, nil
}

func (s *Service) loadInput(path string) (string, *document.Document, error) {
	input, data, err := s.readInput(path)
	if err != nil {
		return "", nil, err
	}

	doc, err := document.Load(data)
	if err != nil {
		return "", nil, err
	}
	return input, doc, nil
}

// outputPath picks where a result for input is written. An explicit path
// wins; otherwise the name is derived from the input with suffix.
func (s *Service) outputPath(input, requested, suffix string) (string, error) {
	path := requested
	if path == "" {
		path = compress.OutputPath(input, s.outputDir, suffix)
	}

	resolved, err := s.pathValidator.ValidateOutput(path)
	if err != nil {
		return "", pdferrors.WrapError(pdferrors.ErrorTypeConfiguration,
			fmt.Errorf("security validation failed: %w", err))
	}
	if resolved == input {
		return "", pdferrors.Newf(pdferrors.ErrorTypeConfiguration, "output would overwrite the input file %s", input)
	}
	return resolved, nil
}

func (s *Service) writeOutput(path string, data []byte) error {
	if err := os.WriteFile(path, data, OutputPerm); err != nil {
		return pdferrors.WrapError(pdferrors.ErrorTypeBuild, fmt.Errorf("failed to write %s: %w", path, err))
	}
	s.logger.Printf("wrote %s (%d bytes)", path, len(data))
	return nil
}

// newSession returns a session that logs its state changes
func (s *Service) newSession(input string) *compress.Session {
	session := compress.NewSession(s.compressor)
	session.Observe(func(c compress.StateChange) {
		if c.Err != nil {
			s.logger.Printf("%s: %s -> %s (%s): %v", input, c.From, c.To, c.Event, c.Err)
			return
		}
		s.logger.Printf("%s: %s -> %s (%s)", input, c.From, c.To, c.Event)
	})
	return session
}

func compressResult(input, output string, r *compress.Result) *PDFCompressResult {
	result := &PDFCompressResult{
		Path:           input,
		OutputPath:     output,
		OriginalSize:   r.OriginalSize,
		CompressedSize: r.CompressedSize,
		SavedBytes:     r.SavedBytes(),
		SavedPercent:   r.SavedPercent(),
		PageCount:      r.PageCount,
		TextPages:      r.TextPages,
		ImagePages:     r.ImagePages,
		DPI:            r.DPI,
		Quality:        r.Quality,
	}

	if r.Search != nil {
		result.TargetSize = r.Search.Target
		result.Tolerance = r.Search.Tolerance()
		for _, sample := range r.Search.Samples {
			result.Samples = append(result.Samples, Sample{
				Iteration: sample.Iteration,
				Quality:   sample.Quality,
				Size:      sample.Size,
			})
		}
	}
	return result
}

func pageCount(data []byte) (int, error) {
	doc, err := document.Load(data)
	if err != nil {
		return 0, pdferrors.WrapError(pdferrors.ErrorTypeBuild, fmt.Errorf("output is not readable: %w", err))
	}
	defer doc.Close()
	return doc.PageCount(), nil
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
