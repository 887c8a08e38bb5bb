package compress

import (
	"path/filepath"
	"strings"
)

// DefaultSuffix is appended to the stem of compressed files
const DefaultSuffix = "-dikompres"

// OutputName derives the name of a generated file from the input name:
// "scan.pdf" with suffix "-dikompres" becomes "scan-dikompres.pdf". Only the
// base name is returned.
func OutputName(input, suffix string) string {
	base := filepath.Base(input)
	if base == "." || base == string(filepath.Separator) {
		base = ""
	}

	stem := base
	if ext := filepath.Ext(base); strings.EqualFold(ext, ".pdf") {
		stem = strings.TrimSuffix(base, ext)
	}
	if stem == "" {
		stem = "document"
	}

	return stem + suffix + ".pdf"
}

// OutputPath places OutputName in dir, or next to the input when dir is empty
func OutputPath(input, dir, suffix string) string {
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, OutputName(input, suffix))
}
