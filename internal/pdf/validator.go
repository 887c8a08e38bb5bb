package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
)

// Validator checks input files before they are loaded
type Validator struct {
	maxFileSize int64
}

// NewValidator creates a validator that rejects files above maxFileSize bytes
func NewValidator(maxFileSize int64) *Validator {
	return &Validator{
		maxFileSize: maxFileSize,
	}
}

// ReadFile validates filePath and returns its contents
func (v *Validator) ReadFile(filePath string) ([]byte, error) {
	info, err := v.stat(filePath)
	if err != nil {
		return nil, err
	}
	if err := v.ValidateFileInfo(filePath, info); err != nil {
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeConfiguration, err)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeLoad, fmt.Errorf("cannot read file: %w", err))
	}
	return data, nil
}

func (v *Validator) stat(filePath string) (os.FileInfo, error) {
	if filePath == "" {
		return nil, pdferrors.NewPDFError(pdferrors.ErrorTypeConfiguration, "path cannot be empty")
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return nil, pdferrors.Newf(pdferrors.ErrorTypeConfiguration, "file does not exist: %s", filePath)
	}
	if err != nil {
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeLoad, fmt.Errorf("cannot access file: %w", err))
	}
	return info, nil
}

// IsValidPDF reports whether filePath passes the file checks and opens as a
// PDF. It is used to filter directory listings, so it stays cheap.
func (v *Validator) IsValidPDF(filePath string) bool {
	info, err := v.stat(filePath)
	if err != nil || v.ValidateFileInfo(filePath, info) != nil {
		return false
	}

	f, _, err := pdf.Open(filePath)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// ValidateFileInfo performs basic validation on file info without opening the PDF
func (v *Validator) ValidateFileInfo(filePath string, fileInfo os.FileInfo) error {
	if fileInfo.IsDir() {
		return fmt.Errorf("path is a directory, not a file: %s", filePath)
	}

	if !strings.EqualFold(filepath.Ext(filePath), ".pdf") {
		return fmt.Errorf("file is not a PDF: %s", filePath)
	}

	if fileInfo.Size() == 0 {
		return fmt.Errorf("file is empty: %s", filePath)
	}

	if v.maxFileSize > 0 && fileInfo.Size() > v.maxFileSize {
		return fmt.Errorf("file too large: %d bytes (max: %d bytes)",
			fileInfo.Size(), v.maxFileSize)
	}

	return nil
}
