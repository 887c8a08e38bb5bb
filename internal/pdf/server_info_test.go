package pdf

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-pdf-tools/internal/descriptions"
)

func TestServerInfo(t *testing.T) {
	service, dir := newTestService(t)
	writePDF(t, dir, "test.pdf", textPages("x"))

	result, err := service.PDFServerInfo(context.Background(), PDFServerInfoRequest{}, "test-pdf-server", "1.0.0-test", dir)
	require.NoError(t, err)

	assert.Equal(t, "test-pdf-server", result.ServerName)
	assert.Equal(t, "1.0.0-test", result.Version)
	assert.Equal(t, dir, result.DefaultDirectory)
	assert.Equal(t, int64(testMaxFileSize), result.MaxFileSize)
	assert.Equal(t, DefaultCompressionDefaults(), result.Defaults)

	names := make([]string, 0, len(result.AvailableTools))
	for _, tool := range result.AvailableTools {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description, tool.Name)
		assert.NotEmpty(t, tool.Parameters, tool.Name)
	}
	assert.ElementsMatch(t, descriptions.GetAllToolNames(), names)

	require.Len(t, result.DirectoryContents, 1)
	assert.Equal(t, "test.pdf", result.DirectoryContents[0].Name)
	assert.Contains(t, result.UsageGuidance, "-dikompres.pdf")
}

func TestServerInfoFallsBackToConfiguredDirectory(t *testing.T) {
	service, dir := newTestService(t)

	result, err := service.PDFServerInfo(context.Background(), PDFServerInfoRequest{}, "s", "v", "/definitely/elsewhere")
	require.NoError(t, err)
	assert.Equal(t, dir, result.DefaultDirectory)
	assert.Empty(t, result.DirectoryContents)
}

func TestDirectoryScanner(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{
		"a.pdf",
		"B.PDF",
		"notes.txt",
		".hidden.pdf",
		filepath.Join("sub", "c.pdf"),
		filepath.Join("sub", "deeper", "d.pdf"),
		filepath.Join(".git", "e.pdf"),
	} {
		full := filepath.Join(root, p)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("x"), 0o644))
	}

	names := func(r *ScanResult) []string {
		var out []string
		for _, f := range r.Files {
			out = append(out, f.Name)
		}
		return out
	}

	t.Run("unlimited", func(t *testing.T) {
		result, err := NewDirectoryScanner(0, 0, 0).ScanDirectory(context.Background(), root)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a.pdf", "B.PDF", "c.pdf", "d.pdf"}, names(result))
		assert.False(t, result.Truncated)
	})

	t.Run("depth limit", func(t *testing.T) {
		result, err := NewDirectoryScanner(2, 0, 0).ScanDirectory(context.Background(), root)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a.pdf", "B.PDF", "c.pdf"}, names(result))
	})

	t.Run("file limit", func(t *testing.T) {
		result, err := NewDirectoryScanner(0, 2, time.Minute).ScanDirectory(context.Background(), root)
		require.NoError(t, err)
		assert.Len(t, result.Files, 2)
		assert.True(t, result.Truncated)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewDirectoryScanner(0, 0, 0).ScanDirectory(ctx, root)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
