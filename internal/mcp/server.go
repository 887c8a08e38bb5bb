package mcp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/a3tai/mcp-pdf-tools/internal/config"
	"github.com/a3tai/mcp-pdf-tools/internal/descriptions"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf"
)

// Server represents the MCP server instance
type Server struct {
	config     *config.Config
	pdfService *pdf.Service
	mcpServer  *server.MCPServer
	printer    *message.Printer
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, pdfService *pdf.Service) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if pdfService == nil {
		return nil, fmt.Errorf("pdfService cannot be nil")
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false), // We don't support dynamic tool capabilities
		server.WithRecovery(),
	)

	s := &Server{
		config:     cfg,
		pdfService: pdfService,
		mcpServer:  mcpServer,
		printer:    message.NewPrinter(language.English),
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	pathParam := mcp.WithString("path",
		mcp.Required(),
		mcp.Description("Path to the PDF file, absolute or relative to the configured directory"),
	)
	outputParam := mcp.WithString("output_path",
		mcp.Description("Where to write the result (derived from the input name if empty)"),
	)

	s.mcpServer.AddTool(mcp.NewTool("pdf_compress",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_compress")),
		pathParam,
		mcp.WithNumber("dpi",
			mcp.Description(fmt.Sprintf("Raster resolution for image-only pages (default %g)", s.config.DPI)),
		),
		mcp.WithNumber("quality",
			mcp.Description(fmt.Sprintf("JPEG quality between 0 and 1 (default %g)", s.config.Quality)),
		),
		outputParam,
	), s.handlePDFCompress)

	s.mcpServer.AddTool(mcp.NewTool("pdf_compress_to_size",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_compress_to_size")),
		pathParam,
		mcp.WithNumber("target_size",
			mcp.Required(),
			mcp.Description("Target file size in bytes, smaller than the current size"),
		),
		mcp.WithNumber("dpi",
			mcp.Description(fmt.Sprintf("Raster resolution for image-only pages (default %g)", s.config.DPI)),
		),
		mcp.WithNumber("iterations",
			mcp.Description(fmt.Sprintf("Number of search steps (default %d)", s.config.Iterations)),
		),
		outputParam,
	), s.handlePDFCompressToSize)

	s.mcpServer.AddTool(mcp.NewTool("pdf_analyze_pages",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_analyze_pages")),
		pathParam,
	), s.handlePDFAnalyzePages)

	s.mcpServer.AddTool(mcp.NewTool("pdf_merge",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_merge")),
		mcp.WithArray("paths",
			mcp.Required(),
			mcp.Description("PDF files to combine, in order"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		outputParam,
	), s.handlePDFMerge)

	s.mcpServer.AddTool(mcp.NewTool("pdf_split",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_split")),
		pathParam,
		mcp.WithNumber("span",
			mcp.Required(),
			mcp.Description("Pages per output file"),
		),
	), s.handlePDFSplit)

	s.mcpServer.AddTool(mcp.NewTool("pdf_organize",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_organize")),
		pathParam,
		mcp.WithString("order", mcp.Description(`New page order, e.g. "3,1-2"`)),
		mcp.WithString("remove", mcp.Description(`Pages to remove, e.g. "4,9"`)),
		mcp.WithString("rotate", mcp.Description(`Pages to rotate, e.g. "2-5"`)),
		mcp.WithNumber("rotation", mcp.Description("Clockwise rotation in degrees, a multiple of 90")),
		outputParam,
	), s.handlePDFOrganize)

	s.mcpServer.AddTool(mcp.NewTool("pdf_info",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_info")),
		pathParam,
	), s.handlePDFInfo)

	s.mcpServer.AddTool(mcp.NewTool("pdf_server_info",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_server_info")),
	), s.handlePDFServerInfo)
}

// Handler functions
func (s *Server) handlePDFCompress(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := request.GetArguments()
	req := pdf.PDFCompressRequest{
		Path:       path,
		OutputPath: stringArg(args, "output_path"),
		DPI:        numberArg(args, "dpi"),
		Quality:    optionalNumberArg(args, "quality"),
	}
	result, err := s.pdfService.PDFCompress(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(s.formatError(err)), nil
	}

	return mcp.NewToolResultText(s.formatPDFCompressResult(result)), nil
}

func (s *Server) handlePDFCompressToSize(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	args := request.GetArguments()
	if _, ok := args["target_size"]; !ok {
		return mcp.NewToolResultError("required argument \"target_size\" not found"), nil
	}

	req := pdf.PDFCompressToSizeRequest{
		Path:       path,
		OutputPath: stringArg(args, "output_path"),
		TargetSize: int64(numberArg(args, "target_size")),
		DPI:        numberArg(args, "dpi"),
		Iterations: int(numberArg(args, "iterations")),
	}
	result, err := s.pdfService.PDFCompressToSize(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(s.formatError(err)), nil
	}

	return mcp.NewToolResultText(s.formatPDFCompressResult(result)), nil
}

func (s *Server) handlePDFAnalyzePages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.pdfService.PDFAnalyzePages(ctx, pdf.PDFAnalyzeRequest{Path: path})
	if err != nil {
		return mcp.NewToolResultError(s.formatError(err)), nil
	}

	return mcp.NewToolResultText(s.formatPDFAnalyzeResult(result)), nil
}

func (s *Server) handlePDFMerge(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	paths := stringsArg(args, "paths")
	if len(paths) == 0 {
		return mcp.NewToolResultError("required argument \"paths\" not found"), nil
	}

	req := pdf.PDFMergeRequest{Paths: paths, OutputPath: stringArg(args, "output_path")}
	result, err := s.pdfService.PDFMerge(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(s.formatError(err)), nil
	}

	text := s.printer.Sprintf("Merged %d files into %s\n", result.InputCount, result.OutputPath)
	text += s.printer.Sprintf("Pages: %d\n", result.PageCount)
	text += s.printer.Sprintf("Size: %d bytes\n", result.Size)
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handlePDFSplit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	args := request.GetArguments()
	if _, ok := args["span"]; !ok {
		return mcp.NewToolResultError("required argument \"span\" not found"), nil
	}

	req := pdf.PDFSplitRequest{Path: path, Span: int(numberArg(args, "span"))}
	result, err := s.pdfService.PDFSplit(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(s.formatError(err)), nil
	}

	text := s.printer.Sprintf("Split %s (%d pages) into %d files:\n", result.Path, result.PageCount, len(result.Parts))
	for i, part := range result.Parts {
		text += s.printer.Sprintf("%d. %s: pages %s, %d bytes\n", i+1, part.Path, part.Pages, part.Size)
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handlePDFOrganize(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := request.GetArguments()
	req := pdf.PDFOrganizeRequest{
		Path:       path,
		OutputPath: stringArg(args, "output_path"),
		Order:      stringArg(args, "order"),
		Remove:     stringArg(args, "remove"),
		Rotate:     stringArg(args, "rotate"),
		Rotation:   int(numberArg(args, "rotation")),
	}
	result, err := s.pdfService.PDFOrganize(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(s.formatError(err)), nil
	}

	text := s.printer.Sprintf("Wrote %s\n", result.OutputPath)
	text += s.printer.Sprintf("Pages: %d\n", result.PageCount)
	text += s.printer.Sprintf("Size: %d bytes\n", result.Size)
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handlePDFInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.pdfService.PDFInfo(ctx, pdf.PDFInfoRequest{Path: path})
	if err != nil {
		return mcp.NewToolResultError(s.formatError(err)), nil
	}

	return mcp.NewToolResultText(s.formatPDFInfoResult(result)), nil
}

func (s *Server) handlePDFServerInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := pdf.PDFServerInfoRequest{}
	result, err := s.pdfService.PDFServerInfo(ctx, req, s.config.ServerName, s.config.Version, s.config.PDFDirectory)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatPDFServerInfoResult(result)), nil
}

// Argument helpers. Clients send JSON numbers as float64, but numbers may
// also arrive as strings from hand-written requests.

func stringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func numberArg(args map[string]interface{}, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return 0
}

// optionalNumberArg is numberArg for settings where zero is meaningful. It
// returns nil when the argument is absent or not a number.
func optionalNumberArg(args map[string]interface{}, key string) *float64 {
	switch v := args[key].(type) {
	case float64, int, int64:
		n := numberArg(args, key)
		return &n
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return &f
		}
	}
	return nil
}

// stringsArg accepts either an array of strings or a comma-separated string
func stringsArg(args map[string]interface{}, key string) []string {
	var values []string
	switch v := args[key].(type) {
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				values = append(values, s)
			}
		}
	case []string:
		values = v
	case string:
		values = strings.Split(v, ",")
	}

	paths := make([]string, 0, len(values))
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			paths = append(paths, value)
		}
	}
	return paths
}

// Formatting methods
func (s *Server) formatError(err error) string {
	return strings.TrimSpace(err.Error())
}

func (s *Server) formatPDFCompressResult(result *pdf.PDFCompressResult) string {
	p := s.printer
	text := p.Sprintf("Compressed %s\n", result.Path)
	text += p.Sprintf("Output: %s\n", result.OutputPath)
	text += p.Sprintf("Size: %d -> %d bytes (saved %d bytes, %.1f%%)\n",
		result.OriginalSize, result.CompressedSize, result.SavedBytes, result.SavedPercent)
	text += p.Sprintf("Pages: %d (%d text, %d image)\n", result.PageCount, result.TextPages, result.ImagePages)
	text += p.Sprintf("Settings: %g dpi, quality %.3f\n", result.DPI, result.Quality)

	if result.TargetSize > 0 {
		text += p.Sprintf("Target: %d bytes, off by %d bytes\n", result.TargetSize, result.Tolerance)
		text += "\nSearch steps:\n"
		for _, sample := range result.Samples {
			text += p.Sprintf("  %d. quality %.4f -> %d bytes\n", sample.Iteration, sample.Quality, sample.Size)
		}
	}
	return text
}

func (s *Server) formatPDFAnalyzeResult(result *pdf.PDFAnalyzeResult) string {
	p := s.printer
	text := p.Sprintf("Page analysis for: %s\n", result.Path)
	text += p.Sprintf("Size: %d bytes\n", result.Size)
	text += p.Sprintf("Pages: %d (%d text, %d image)\n", result.PageCount, result.TextPages, result.ImagePages)

	switch {
	case result.ImagePages == 0:
		text += "\n⚠️  No image-only pages: compression will not reduce the size of this file.\n"
	case result.TextPages == 0:
		text += "\n🔍 All pages are images: this file is a good candidate for compression.\n"
	}

	text += "\nPages:\n"
	for _, page := range result.Pages {
		text += p.Sprintf("  %d: %s\n", page.Page, page.Type)
	}
	return text
}

func (s *Server) formatPDFInfoResult(result *pdf.PDFInfoResult) string {
	p := s.printer
	text := p.Sprintf("PDF Information\nFile: %s\n", result.Path)
	text += p.Sprintf("Size: %d bytes\n", result.Size)
	if result.Version != "" {
		text += p.Sprintf("Version: %s\n", result.Version)
	}
	text += p.Sprintf("Pages: %d (%d text, %d image)\n\n", result.PageCount, result.TextPages, result.ImagePages)

	for _, page := range result.Pages {
		text += p.Sprintf("  %d: %.0f x %.0f pt", page.Page, page.Width, page.Height)
		if page.Rotate != 0 {
			text += p.Sprintf(", rotated %d°", page.Rotate)
		}
		text += p.Sprintf(", %s\n", page.Type)
	}
	return text
}

func (s *Server) formatPDFServerInfoResult(result *pdf.PDFServerInfoResult) string {
	p := s.printer
	text := p.Sprintf("📋 %s v%s - Server Information\n", result.ServerName, result.Version)
	text += p.Sprintf("📁 Default Directory: %s\n", result.DefaultDirectory)
	if result.OutputDirectory != "" {
		text += p.Sprintf("📤 Output Directory: %s\n", result.OutputDirectory)
	}
	text += p.Sprintf("📏 Max File Size: %d MB\n", result.MaxFileSize/(1024*1024))
	text += p.Sprintf("⚙️  Defaults: %g dpi, quality %g, %d search iterations\n\n",
		result.Defaults.DPI, result.Defaults.Quality, result.Defaults.Iterations)

	if len(result.DirectoryContents) > 0 {
		text += p.Sprintf("📂 Directory Contents (%d PDF files found):\n", len(result.DirectoryContents))
		for i, file := range result.DirectoryContents {
			if i >= 10 { // Limit to first 10 files for readability
				text += p.Sprintf("   ... and %d more files\n", len(result.DirectoryContents)-10)
				break
			}
			text += p.Sprintf("   %d. %s (%d bytes)\n", i+1, file.Name, file.Size)
		}
		if result.Truncated {
			text += "   (listing truncated)\n"
		}
		text += "\n"
	} else {
		text += "📂 Directory Contents: No PDF files found in default directory\n\n"
	}

	text += "🛠️  Available Tools:\n"
	for _, tool := range result.AvailableTools {
		text += fmt.Sprintf("\n• %s\n", tool.Name)
		text += fmt.Sprintf("  Usage: %s\n", tool.Usage)
		text += fmt.Sprintf("  Parameters: %s\n", tool.Parameters)
	}

	text += "\n" + result.UsageGuidance

	return text
}

// Run starts the MCP server in the configured mode
func (s *Server) Run(ctx context.Context) error {
	if s.config.IsServerMode() {
		return s.runServerMode(ctx)
	}
	return s.runStdioMode(ctx)
}

// runStdioMode runs the server in stdio mode
func (s *Server) runStdioMode(_ context.Context) error {
	if s.config.IsDebug() {
		log.Printf("Starting PDF tools MCP server in stdio mode")
		log.Printf("PDF directory: %s", s.config.PDFDirectory)
	}

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}

// runServerMode serves MCP over SSE until ctx is cancelled
func (s *Server) runServerMode(ctx context.Context) error {
	addr := s.config.Address()
	sse := server.NewSSEServer(s.mcpServer, server.WithBaseURL("http://"+addr))

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting PDF tools MCP server on %s", addr)
		errCh <- sse.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve on %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
		log.Printf("Shutting down server")
		if err := sse.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		return nil
	}
}
