package descriptions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetAllToolNames(t *testing.T) {
	want := []string{
		"pdf_analyze_pages",
		"pdf_compress",
		"pdf_compress_to_size",
		"pdf_info",
		"pdf_merge",
		"pdf_organize",
		"pdf_server_info",
		"pdf_split",
	}
	assert.Equal(t, want, GetAllToolNames())
}

func TestGetToolDescription(t *testing.T) {
	for _, name := range GetAllToolNames() {
		assert.NotEmpty(t, GetToolDescription(name), name)
		assert.NotEqual(t, "Tool description not available", GetToolDescription(name), name)
	}
	assert.Equal(t, "Tool description not available", GetToolDescription("pdf_read_file"))
}
