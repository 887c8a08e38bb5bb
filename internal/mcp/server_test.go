package mcp

import (
	"context"
	"image/color"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/a3tai/mcp-pdf-tools/internal/config"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/testpdf"
)

func testConfig(dir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.PDFDirectory = dir
	cfg.ServerName = "test-server"
	cfg.Version = "1.0.0"
	cfg.MaxFileSize = 10 * 1024 * 1024
	cfg.DPI = 72
	return cfg
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	dir := t.TempDir()
	cfg := testConfig(dir)
	defaults := pdf.DefaultCompressionDefaults()
	defaults.DPI = cfg.DPI

	pdfService, err := pdf.NewService(cfg.MaxFileSize, dir, pdf.WithDefaults(defaults))
	if err != nil {
		t.Fatalf("Failed to create PDF service: %v", err)
	}

	s, err := NewServer(cfg, pdfService)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s, dir
}

func writeFixture(t *testing.T, dir, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func scannedPDF(pages int) []byte {
	b := testpdf.New()
	for i := 0; i < pages; i++ {
		b.AddImagePage(300, 300, testpdf.NoiseImage(400, 400, int64(i+1)))
	}
	return b.Bytes()
}

func textPDF(labels ...string) []byte {
	b := testpdf.New()
	for _, label := range labels {
		b.AddTextPage(612, 792, label)
	}
	return b.Bytes()
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

// extractTextFromResult returns the first text content of a tool result
func extractTextFromResult(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	for _, content := range result.Content {
		if text, ok := content.(mcp.TextContent); ok {
			return text.Text
		}
	}
	return ""
}

func TestNewServer(t *testing.T) {
	dir := t.TempDir()
	pdfService, err := pdf.NewService(1024*1024, dir)
	if err != nil {
		t.Fatalf("Failed to create PDF service: %v", err)
	}

	tests := []struct {
		name        string
		config      *config.Config
		service     *pdf.Service
		expectError bool
	}{
		{name: "valid stdio mode config", config: testConfig(dir), service: pdfService},
		{
			name: "valid server mode config",
			config: func() *config.Config {
				cfg := testConfig(dir)
				cfg.Mode = config.ModeServer
				return cfg
			}(),
			service: pdfService,
		},
		{name: "nil config", config: nil, service: pdfService, expectError: true},
		{name: "nil service", config: testConfig(dir), service: nil, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, err := NewServer(tt.config, tt.service)
			if tt.expectError {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if server.mcpServer == nil {
				t.Error("mcpServer should be initialized")
			}
		})
	}
}

func TestHandlePDFCompressZeroQuality(t *testing.T) {
	s, dir := newTestServer(t)
	input := writeFixture(t, dir, "scan.pdf", scannedPDF(1))

	result, err := s.handlePDFCompress(context.Background(), callRequest(map[string]interface{}{
		"path":    input,
		"quality": 0.0,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool returned error: %s", extractTextFromResult(result))
	}

	text := extractTextFromResult(result)
	if !strings.Contains(text, "quality 0.000") {
		t.Errorf("explicit quality 0 should be used, got:\n%s", text)
	}
}

func TestHandlePDFCompress(t *testing.T) {
	s, dir := newTestServer(t)
	input := writeFixture(t, dir, "scan.pdf", scannedPDF(2))

	result, err := s.handlePDFCompress(context.Background(), callRequest(map[string]interface{}{
		"path":    input,
		"quality": 0.4,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool returned error: %s", extractTextFromResult(result))
	}

	text := extractTextFromResult(result)
	want := filepath.Join(dir, "scan-dikompres.pdf")
	if !strings.Contains(text, want) {
		t.Errorf("expected output path %s in result, got:\n%s", want, text)
	}
	if !strings.Contains(text, "Pages: 2 (0 text, 2 image)") {
		t.Errorf("expected page summary in result, got:\n%s", text)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("expected output file: %v", err)
	}
}

func TestHandlePDFCompressErrors(t *testing.T) {
	s, dir := newTestServer(t)
	textOnly := writeFixture(t, dir, "letter.pdf", textPDF("Dear reader"))

	tests := []struct {
		name    string
		args    map[string]interface{}
		wantErr string
	}{
		{name: "missing path", args: map[string]interface{}{}, wantErr: "path"},
		{name: "missing file", args: map[string]interface{}{"path": filepath.Join(dir, "nope.pdf")}, wantErr: "does not exist"},
		{name: "outside directory", args: map[string]interface{}{"path": "/etc/passwd.pdf"}, wantErr: "security validation failed"},
		{name: "invalid quality", args: map[string]interface{}{"path": textOnly, "quality": 3.0}, wantErr: "quality"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := s.handlePDFCompress(context.Background(), callRequest(tt.args))
			if err != nil {
				t.Fatalf("handlers report failures in the result, got error: %v", err)
			}
			if !result.IsError {
				t.Fatalf("expected error result, got:\n%s", extractTextFromResult(result))
			}
			if text := extractTextFromResult(result); !strings.Contains(text, tt.wantErr) {
				t.Errorf("expected %q in error, got %q", tt.wantErr, text)
			}
		})
	}
}

func TestHandlePDFCompressToSize(t *testing.T) {
	s, dir := newTestServer(t)
	data := scannedPDF(2)
	input := writeFixture(t, dir, "scan.pdf", data)

	result, err := s.handlePDFCompressToSize(context.Background(), callRequest(map[string]interface{}{
		"path":        input,
		"target_size": float64(len(data) / 4),
		"iterations":  3,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool returned error: %s", extractTextFromResult(result))
	}

	text := extractTextFromResult(result)
	if !strings.Contains(text, "Search steps:") {
		t.Errorf("expected search steps in result, got:\n%s", text)
	}
	if got := strings.Count(text, "-> "); got < 3 {
		t.Errorf("expected at least 3 samples in result, got %d:\n%s", got, text)
	}

	result, err = s.handlePDFCompressToSize(context.Background(), callRequest(map[string]interface{}{"path": input}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected error for missing target_size")
	}
}

func TestHandlePDFAnalyzePages(t *testing.T) {
	s, dir := newTestServer(t)
	data := testpdf.New().
		AddTextPage(612, 792, "Cover").
		AddImagePage(300, 300, testpdf.SolidImage(20, 20, color.White)).
		Bytes()
	input := writeFixture(t, dir, "mixed.pdf", data)

	result, err := s.handlePDFAnalyzePages(context.Background(), callRequest(map[string]interface{}{"path": input}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool returned error: %s", extractTextFromResult(result))
	}

	text := extractTextFromResult(result)
	for _, want := range []string{"Pages: 2 (1 text, 1 image)", "1: text", "2: image"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in result, got:\n%s", want, text)
		}
	}
}

func TestHandlePDFMerge(t *testing.T) {
	s, dir := newTestServer(t)
	first := writeFixture(t, dir, "a.pdf", textPDF("A1", "A2"))
	second := writeFixture(t, dir, "b.pdf", textPDF("B1"))

	result, err := s.handlePDFMerge(context.Background(), callRequest(map[string]interface{}{
		"paths": []interface{}{first, second},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool returned error: %s", extractTextFromResult(result))
	}
	if text := extractTextFromResult(result); !strings.Contains(text, "Pages: 3") {
		t.Errorf("expected 3 merged pages, got:\n%s", text)
	}
	if _, err := os.Stat(filepath.Join(dir, "a-merged.pdf")); err != nil {
		t.Errorf("expected merged file: %v", err)
	}

	result, _ = s.handlePDFMerge(context.Background(), callRequest(map[string]interface{}{}))
	if !result.IsError {
		t.Error("expected error for missing paths")
	}
}

func TestHandlePDFSplit(t *testing.T) {
	s, dir := newTestServer(t)
	input := writeFixture(t, dir, "book.pdf", textPDF("1", "2", "3", "4", "5"))

	result, err := s.handlePDFSplit(context.Background(), callRequest(map[string]interface{}{
		"path": input,
		"span": 2,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool returned error: %s", extractTextFromResult(result))
	}

	text := extractTextFromResult(result)
	if !strings.Contains(text, "into 3 files") {
		t.Errorf("expected 3 parts, got:\n%s", text)
	}
	for _, want := range []string{"pages 1-2", "pages 3-4", "pages 5,"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in result, got:\n%s", want, text)
		}
	}
}

func TestHandlePDFOrganize(t *testing.T) {
	s, dir := newTestServer(t)
	input := writeFixture(t, dir, "deck.pdf", textPDF("1", "2", "3", "4"))

	result, err := s.handlePDFOrganize(context.Background(), callRequest(map[string]interface{}{
		"path":     input,
		"order":    "4,1-3",
		"remove":   "2",
		"rotate":   "1",
		"rotation": 90,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool returned error: %s", extractTextFromResult(result))
	}
	if text := extractTextFromResult(result); !strings.Contains(text, "Pages: 3") {
		t.Errorf("expected 3 pages, got:\n%s", text)
	}

	result, _ = s.handlePDFOrganize(context.Background(), callRequest(map[string]interface{}{
		"path":     input,
		"rotate":   "1",
		"rotation": 45,
	}))
	if !result.IsError {
		t.Error("expected error for rotation that is not a multiple of 90")
	}
}

func TestHandlePDFInfo(t *testing.T) {
	s, dir := newTestServer(t)
	data := testpdf.New().
		AddPage(testpdf.Page{Width: 200, Height: 100, Rotate: 90, Lines: []string{"Landscape"}}).
		Bytes()
	input := writeFixture(t, dir, "info.pdf", data)

	result, err := s.handlePDFInfo(context.Background(), callRequest(map[string]interface{}{"path": input}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool returned error: %s", extractTextFromResult(result))
	}

	text := extractTextFromResult(result)
	for _, want := range []string{"Version: 1.4", "Pages: 1", "100 x 200 pt", "rotated 90°"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in result, got:\n%s", want, text)
		}
	}
}

func TestHandlePDFServerInfo(t *testing.T) {
	s, dir := newTestServer(t)
	writeFixture(t, dir, "one.pdf", textPDF("x"))

	result, err := s.handlePDFServerInfo(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool returned error: %s", extractTextFromResult(result))
	}

	text := extractTextFromResult(result)
	for _, want := range []string{"test-server v1.0.0", "one.pdf", "pdf_compress_to_size", "pdf_organize"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in result, got:\n%s", want, text)
		}
	}
}

func TestFormatPDFCompressResultGroupsDigits(t *testing.T) {
	s, _ := newTestServer(t)

	text := s.formatPDFCompressResult(&pdf.PDFCompressResult{
		Path:           "in.pdf",
		OutputPath:     "in-dikompres.pdf",
		OriginalSize:   1234567,
		CompressedSize: 234567,
		SavedBytes:     1000000,
		SavedPercent:   81.0,
		PageCount:      3,
		ImagePages:     3,
		DPI:            150,
		Quality:        0.75,
	})

	if !strings.Contains(text, "1,234,567 -> 234,567 bytes") {
		t.Errorf("expected grouped sizes, got:\n%s", text)
	}
	if strings.Contains(text, "Search steps") {
		t.Errorf("fixed quality result should not list search steps:\n%s", text)
	}
}

func TestRunServerModeShutdown(t *testing.T) {
	s, _ := newTestServer(t)
	s.config.Mode = config.ModeServer
	s.config.Host = "127.0.0.1"
	s.config.Port = 18931

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	addr := s.config.Address()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("expected clean shutdown, got %v", err)
	}
}

func TestArgumentHelpers(t *testing.T) {
	args := map[string]interface{}{
		"list":    []interface{}{" a.pdf", "b.pdf", 3, ""},
		"csv":     "a.pdf, b.pdf,,c.pdf",
		"float":   150.0,
		"int":     2,
		"numeric": " 0.5 ",
		"bad":     "fast",
		"name":    "  out.pdf ",
	}

	if got := stringsArg(args, "list"); strings.Join(got, "|") != "a.pdf|b.pdf" {
		t.Errorf("stringsArg(list) = %v", got)
	}
	if got := stringsArg(args, "csv"); strings.Join(got, "|") != "a.pdf|b.pdf|c.pdf" {
		t.Errorf("stringsArg(csv) = %v", got)
	}
	if got := stringsArg(args, "missing"); len(got) != 0 {
		t.Errorf("stringsArg(missing) = %v", got)
	}

	numbers := map[string]float64{"float": 150, "int": 2, "numeric": 0.5, "bad": 0, "missing": 0}
	for key, want := range numbers {
		if got := numberArg(args, key); got != want {
			t.Errorf("numberArg(%s) = %v, want %v", key, got, want)
		}
	}

	for key, want := range map[string]float64{"float": 150, "int": 2, "numeric": 0.5} {
		got := optionalNumberArg(args, key)
		if got == nil || *got != want {
			t.Errorf("optionalNumberArg(%s) = %v, want %v", key, got, want)
		}
	}
	for _, key := range []string{"bad", "missing"} {
		if got := optionalNumberArg(args, key); got != nil {
			t.Errorf("optionalNumberArg(%s) = %v, want nil", key, *got)
		}
	}

	if got := stringArg(args, "name"); got != "out.pdf" {
		t.Errorf("stringArg(name) = %q", got)
	}
}
