package errors

import (
	"errors"
	"fmt"
	"time"
)

// PDFError is the error type surfaced by every tool operation. It carries
// enough context to tell the caller whether retrying with other options makes
// sense.
type PDFError struct {
	Type        ErrorType `json:"type"`
	Message     string    `json:"message"`
	Context     string    `json:"context,omitempty"`
	PageNumber  int       `json:"page_number,omitempty"`
	FilePath    string    `json:"file_path,omitempty"`
	Recoverable bool      `json:"recoverable"`
	Timestamp   time.Time `json:"timestamp"`
	Err         error     `json:"-"`
}

// ErrorType represents the categories of tool failures
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeLoad
	ErrorTypeExtraction
	ErrorTypeRender
	ErrorTypeBuild
	ErrorTypeNoSavings
	ErrorTypeConfiguration
	ErrorTypeCancelled
	ErrorTypeUnsupportedFeature
)

// Error implements the error interface
func (e *PDFError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Type.String(), e.Message)
	if e.PageNumber > 0 {
		msg = fmt.Sprintf("[%s] page %d: %s", e.Type.String(), e.PageNumber, e.Message)
	}
	if e.Context != "" {
		msg += ": " + e.Context
	}
	return msg
}

// Unwrap returns the underlying cause, if any
func (e *PDFError) Unwrap() error {
	return e.Err
}

// String returns a string representation of the ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeLoad:
		return "LOAD"
	case ErrorTypeExtraction:
		return "EXTRACTION"
	case ErrorTypeRender:
		return "RENDER"
	case ErrorTypeBuild:
		return "BUILD"
	case ErrorTypeNoSavings:
		return "NO_SAVINGS"
	case ErrorTypeConfiguration:
		return "CONFIGURATION"
	case ErrorTypeCancelled:
		return "CANCELLED"
	case ErrorTypeUnsupportedFeature:
		return "UNSUPPORTED_FEATURE"
	default:
		return "UNKNOWN"
	}
}

// IsRecoverable reports whether the user can retry the same loaded document
// with different options and reasonably expect another outcome.
func (et ErrorType) IsRecoverable() bool {
	switch et {
	case ErrorTypeNoSavings, ErrorTypeConfiguration, ErrorTypeCancelled:
		return true
	default:
		return false
	}
}

// NewPDFError creates a new PDFError
func NewPDFError(errorType ErrorType, message string) *PDFError {
	return &PDFError{
		Type:        errorType,
		Message:     message,
		Recoverable: errorType.IsRecoverable(),
		Timestamp:   time.Now(),
	}
}

// Newf creates a new PDFError with a formatted message
func Newf(errorType ErrorType, format string, args ...interface{}) *PDFError {
	return NewPDFError(errorType, fmt.Sprintf(format, args...))
}

// WrapError wraps err as a PDFError of the given type
func WrapError(errorType ErrorType, err error) *PDFError {
	e := NewPDFError(errorType, err.Error())
	e.Err = err
	return e
}

// WithContext adds context to an existing PDFError
func (e *PDFError) WithContext(context string) *PDFError {
	e.Context = context
	return e
}

// WithPage adds page number information to an existing PDFError
func (e *PDFError) WithPage(pageNumber int) *PDFError {
	e.PageNumber = pageNumber
	return e
}

// WithFile adds file path information to an existing PDFError
func (e *PDFError) WithFile(filePath string) *PDFError {
	e.FilePath = filePath
	return e
}

// As returns the first PDFError in err's chain
func As(err error) (*PDFError, bool) {
	var pdfErr *PDFError
	if errors.As(err, &pdfErr) {
		return pdfErr, true
	}
	return nil, false
}

// IsType reports whether err's chain contains a PDFError of type t
func IsType(err error, t ErrorType) bool {
	pdfErr, ok := As(err)
	return ok && pdfErr.Type == t
}

// TypeOf returns the ErrorType of err, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	if pdfErr, ok := As(err); ok {
		return pdfErr.Type
	}
	return ErrorTypeUnknown
}
