package pdf

// FileInfo describes a PDF file found in the configured directory
type FileInfo struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time"`
}

// Request Types

// PDFCompressRequest compresses a file at fixed raster settings. Zero DPI or
// a nil Quality selects the configured default; quality 0 is a valid setting.
type PDFCompressRequest struct {
	Path       string   `json:"path"`
	OutputPath string   `json:"output_path,omitempty"`
	DPI        float64  `json:"dpi,omitempty"`
	Quality    *float64 `json:"quality,omitempty"`
}

// PDFCompressToSizeRequest searches for the quality that brings a file
// closest to TargetSize bytes.
type PDFCompressToSizeRequest struct {
	Path       string  `json:"path"`
	OutputPath string  `json:"output_path,omitempty"`
	TargetSize int64   `json:"target_size"`
	DPI        float64 `json:"dpi,omitempty"`
	Iterations int     `json:"iterations,omitempty"`
}

// PDFAnalyzeRequest classifies the pages of a file without writing anything
type PDFAnalyzeRequest struct {
	Path string `json:"path"`
}

// PDFMergeRequest concatenates files in the order given
type PDFMergeRequest struct {
	Paths      []string `json:"paths"`
	OutputPath string   `json:"output_path,omitempty"`
}

// PDFSplitRequest cuts a file into parts of Span pages
type PDFSplitRequest struct {
	Path string `json:"path"`
	Span int    `json:"span"`
}

// PDFOrganizeRequest reorders, removes and rotates pages. Selections use
// the "1-3,5" syntax and refer to pages of the input file.
type PDFOrganizeRequest struct {
	Path       string `json:"path"`
	OutputPath string `json:"output_path,omitempty"`
	Order      string `json:"order,omitempty"`
	Remove     string `json:"remove,omitempty"`
	Rotate     string `json:"rotate,omitempty"`
	Rotation   int    `json:"rotation,omitempty"`
}

// PDFInfoRequest asks for page geometry and classification of a file
type PDFInfoRequest struct {
	Path string `json:"path"`
}

// PDFServerInfoRequest represents a request to get server information
type PDFServerInfoRequest struct{}

// Response Types

// PDFCompressResult describes a written compressed file
type PDFCompressResult struct {
	Path           string   `json:"path"`
	OutputPath     string   `json:"output_path"`
	OriginalSize   int64    `json:"original_size"`
	CompressedSize int64    `json:"compressed_size"`
	SavedBytes     int64    `json:"saved_bytes"`
	SavedPercent   float64  `json:"saved_percent"`
	PageCount      int      `json:"page_count"`
	TextPages      int      `json:"text_pages"`
	ImagePages     int      `json:"image_pages"`
	DPI            float64  `json:"dpi"`
	Quality        float64  `json:"quality"`
	TargetSize     int64    `json:"target_size,omitempty"`
	Tolerance      int64    `json:"tolerance,omitempty"`
	Samples        []Sample `json:"samples,omitempty"`
}

// Sample is one iteration of a size search
type Sample struct {
	Iteration int     `json:"iteration"`
	Quality   float64 `json:"quality"`
	Size      int64   `json:"size"`
}

// PageClass is the classification of a single page
type PageClass struct {
	Page int    `json:"page"`
	Type string `json:"type"`
}

// PDFAnalyzeResult lists the classification of every page
type PDFAnalyzeResult struct {
	Path       string      `json:"path"`
	Size       int64       `json:"size"`
	PageCount  int         `json:"page_count"`
	TextPages  int         `json:"text_pages"`
	ImagePages int         `json:"image_pages"`
	Pages      []PageClass `json:"pages"`
}

// PDFMergeResult describes a merged file
type PDFMergeResult struct {
	OutputPath string `json:"output_path"`
	InputCount int    `json:"input_count"`
	PageCount  int    `json:"page_count"`
	Size       int64  `json:"size"`
}

// SplitPart is one file written by a split
type SplitPart struct {
	Path  string `json:"path"`
	Pages string `json:"pages"`
	Size  int64  `json:"size"`
}

// PDFSplitResult lists the files written by a split
type PDFSplitResult struct {
	Path      string      `json:"path"`
	PageCount int         `json:"page_count"`
	Parts     []SplitPart `json:"parts"`
}

// PDFOrganizeResult describes a reorganized file
type PDFOrganizeResult struct {
	Path       string `json:"path"`
	OutputPath string `json:"output_path"`
	PageCount  int    `json:"page_count"`
	Size       int64  `json:"size"`
}

// PageDetail describes the geometry of a single page
type PageDetail struct {
	Page   int     `json:"page"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Rotate int     `json:"rotate"`
	Type   string  `json:"type"`
}

// PDFInfoResult summarizes a file
type PDFInfoResult struct {
	Path       string       `json:"path"`
	Size       int64        `json:"size"`
	Version    string       `json:"version"`
	PageCount  int          `json:"page_count"`
	TextPages  int          `json:"text_pages"`
	ImagePages int          `json:"image_pages"`
	Pages      []PageDetail `json:"pages"`
}

// ToolInfo represents information about an available tool
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Usage       string `json:"usage"`
	Parameters  string `json:"parameters"`
}

// CompressionDefaults are the settings used when a request leaves them out
type CompressionDefaults struct {
	DPI          float64 `json:"dpi"`
	Quality      float64 `json:"quality"`
	Iterations   int     `json:"iterations"`
	QualityMin   float64 `json:"quality_min"`
	QualityMax   float64 `json:"quality_max"`
	OutputSuffix string  `json:"output_suffix"`
}

// PDFServerInfoResult represents server information and usage guidance
type PDFServerInfoResult struct {
	ServerName        string              `json:"server_name"`
	Version           string              `json:"version"`
	DefaultDirectory  string              `json:"default_directory"`
	OutputDirectory   string              `json:"output_directory,omitempty"`
	MaxFileSize       int64               `json:"max_file_size"`
	Defaults          CompressionDefaults `json:"defaults"`
	AvailableTools    []ToolInfo          `json:"available_tools"`
	DirectoryContents []FileInfo          `json:"directory_contents"`
	Truncated         bool                `json:"truncated"`
	UsageGuidance     string              `json:"usage_guidance"`
}
