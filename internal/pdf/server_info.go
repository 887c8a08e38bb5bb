package pdf

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/a3tai/mcp-pdf-tools/internal/descriptions"
)

// DirectoryScanner lists PDF files below a directory with depth, count and
// time limits so a huge tree cannot stall a request.
type DirectoryScanner struct {
	maxDepth  int
	fileLimit int
	timeLimit time.Duration
}

// ScanResult represents the result of a directory scan
type ScanResult struct {
	Files     []FileInfo
	ScanTime  time.Duration
	Truncated bool
}

var errScanLimit = errors.New("scan limit reached")

// NewDirectoryScanner creates a scanner. Zero disables a limit.
func NewDirectoryScanner(maxDepth, fileLimit int, timeLimit time.Duration) *DirectoryScanner {
	return &DirectoryScanner{
		maxDepth:  maxDepth,
		fileLimit: fileLimit,
		timeLimit: timeLimit,
	}
}

// ScanDirectory walks root, skipping hidden entries and symbolic links
func (s *DirectoryScanner) ScanDirectory(ctx context.Context, root string) (*ScanResult, error) {
	start := time.Now()
	result := &ScanResult{Files: []FileInfo{}}
	rootDepth := strings.Count(filepath.Clean(root), string(filepath.Separator))

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}

		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path != root && d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		if s.timeLimit > 0 && time.Since(start) > s.timeLimit {
			result.Truncated = true
			return errScanLimit
		}

		if d.IsDir() {
			depth := strings.Count(path, string(filepath.Separator)) - rootDepth
			if s.maxDepth > 0 && depth >= s.maxDepth {
				return fs.SkipDir
			}
			return nil
		}

		if !strings.EqualFold(filepath.Ext(d.Name()), ".pdf") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		result.Files = append(result.Files, FileInfo{
			Name:         d.Name(),
			Path:         path,
			Size:         info.Size(),
			ModifiedTime: info.ModTime().Format("2006-01-02 15:04:05"),
		})

		if s.fileLimit > 0 && len(result.Files) >= s.fileLimit {
			result.Truncated = true
			return errScanLimit
		}
		return nil
	})

	result.ScanTime = time.Since(start)
	if errors.Is(err, errScanLimit) {
		err = nil
	}
	return result, err
}

// PDFServerInfo returns server information, the configured defaults and the
// PDF files in defaultDirectory.
func (s *Service) PDFServerInfo(ctx context.Context, _ PDFServerInfoRequest, serverName, version,
	defaultDirectory string,
) (*PDFServerInfoResult, error) {
	dir := defaultDirectory
	if err := s.pathValidator.ValidateDirectory(dir); err != nil {
		dir = s.pathValidator.GetConfiguredDirectory()
	}

	scanCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	scan, err := s.scanner.ScanDirectory(scanCtx, dir)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// A directory that cannot be listed still gets a useful answer.
		s.logger.Printf("directory scan of %s failed: %v", dir, err)
		scan = &ScanResult{Files: []FileInfo{}}
	}

	return &PDFServerInfoResult{
		ServerName:        serverName,
		Version:           version,
		DefaultDirectory:  dir,
		OutputDirectory:   s.outputDir,
		MaxFileSize:       s.maxFileSize,
		Defaults:          s.defaults,
		AvailableTools:    availableTools(),
		DirectoryContents: scan.Files,
		Truncated:         scan.Truncated,
		UsageGuidance:     s.usageGuidance(),
	}, nil
}

func availableTools() []ToolInfo {
	return []ToolInfo{
		{
			Name:        "pdf_compress",
			Description: descriptions.GetToolDescription("pdf_compress"),
			Usage:       "Use this tool to shrink scanned documents at a fixed resolution and JPEG quality.",
			Parameters:  "path (required), dpi (optional, 1-1200), quality (optional, 0-1], output_path (optional)",
		},
		{
			Name:        "pdf_compress_to_size",
			Description: descriptions.GetToolDescription("pdf_compress_to_size"),
			Usage:       "Use this tool when the result must fit a size limit.",
			Parameters:  "path (required), target_size (required, bytes), dpi (optional), iterations (optional), output_path (optional)",
		},
		{
			Name:        "pdf_analyze_pages",
			Description: descriptions.GetToolDescription("pdf_analyze_pages"),
			Usage:       "Use this tool to see which pages compression would re-encode.",
			Parameters:  "path (required)",
		},
		{
			Name:        "pdf_merge",
			Description: descriptions.GetToolDescription("pdf_merge"),
			Usage:       "Use this tool to combine files in order.",
			Parameters:  "paths (required, at least 2), output_path (optional)",
		},
		{
			Name:        "pdf_split",
			Description: descriptions.GetToolDescription("pdf_split"),
			Usage:       "Use this tool to cut a file into parts of N pages.",
			Parameters:  "path (required), span (required, pages per part)",
		},
		{
			Name:        "pdf_organize",
			Description: descriptions.GetToolDescription("pdf_organize"),
			Usage:       "Use this tool to reorder, remove or rotate pages.",
			Parameters:  "path (required), order, remove, rotate (page selections like \"1-3,5\"), rotation (multiple of 90), output_path (optional)",
		},
		{
			Name:        "pdf_info",
			Description: descriptions.GetToolDescription("pdf_info"),
			Usage:       "Use this tool for page sizes, rotation and classification.",
			Parameters:  "path (required)",
		},
		{
			Name:        "pdf_server_info",
			Description: descriptions.GetToolDescription("pdf_server_info"),
			Usage:       "Use this tool to discover capabilities and available files.",
			Parameters:  "none",
		},
	}
}

func (s *Service) usageGuidance() string {
	return fmt.Sprintf(`PDF Tools Usage Guide:

1. DISCOVER:
   - Use 'pdf_server_info' to list available files and defaults
   - Use 'pdf_info' or 'pdf_analyze_pages' to inspect a file

2. COMPRESS:
   - Use 'pdf_compress' for a fixed quality (default %g dpi, quality %g)
   - Use 'pdf_compress_to_size' to hit a size limit (%d search iterations by default)
   - Only image-only pages are re-encoded; text pages are copied unchanged
   - If the result would not be smaller, nothing is written and the tool says so

3. REARRANGE:
   - Use 'pdf_merge', 'pdf_split' and 'pdf_organize' for page-level changes

IMPORTANT NOTES:
- Paths may be absolute or relative to the configured directory
- Files up to %dMB are accepted
- Outputs never overwrite the input; compressed files end in '%s.pdf'`,
		s.defaults.DPI, s.defaults.Quality, s.defaults.Iterations,
		s.maxFileSize/(1024*1024), s.defaults.OutputSuffix)
}
