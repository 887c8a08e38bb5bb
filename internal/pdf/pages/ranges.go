package pages

import (
	"fmt"
	"strconv"
	"strings"

	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
)

// PageRange is an inclusive range of 1-based page numbers
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// String formats the range the way pdfcpu page selections expect it
func (r PageRange) String() string {
	if r.Start == r.End {
		return strconv.Itoa(r.Start)
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Len returns the number of pages in the range
func (r PageRange) Len() int {
	return r.End - r.Start + 1
}

// ParseRanges parses a selection such as "1-3,5,8-" against a document of
// pageCount pages. An open end runs to the last page. Ranges are returned in
// the order given and may overlap.
func ParseRanges(selection string, pageCount int) ([]PageRange, error) {
	selection = strings.TrimSpace(selection)
	if selection == "" {
		return nil, pdferrors.NewPDFError(pdferrors.ErrorTypeConfiguration, "page selection is empty")
	}

	var ranges []PageRange
	for _, part := range strings.Split(selection, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		r, err := parseRange(part, pageCount)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}

	if len(ranges) == 0 {
		return nil, pdferrors.NewPDFError(pdferrors.ErrorTypeConfiguration, "page selection is empty")
	}
	return ranges, nil
}

func parseRange(part string, pageCount int) (PageRange, error) {
	start, end, isRange := strings.Cut(part, "-")

	first, err := parsePage(start, 1)
	if err != nil {
		return PageRange{}, selectionError(part, err)
	}

	last := first
	if isRange {
		if last, err = parsePage(end, pageCount); err != nil {
			return PageRange{}, selectionError(part, err)
		}
	}

	r := PageRange{Start: first, End: last}
	if err := r.check(pageCount); err != nil {
		return PageRange{}, selectionError(part, err)
	}
	return r, nil
}

func parsePage(s string, open int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return open, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not a page number", s)
	}
	return n, nil
}

func (r PageRange) check(pageCount int) error {
	switch {
	case r.Start < 1:
		return fmt.Errorf("page numbers start at 1")
	case r.End > pageCount:
		return fmt.Errorf("page %d is beyond the last page %d", r.End, pageCount)
	case r.Start > r.End:
		return fmt.Errorf("range runs backwards")
	}
	return nil
}

func selectionError(part string, err error) error {
	return pdferrors.WrapError(pdferrors.ErrorTypeConfiguration,
		fmt.Errorf("invalid page selection %q: %w", part, err))
}

// Expand lists every page of ranges in order, duplicates included
func Expand(ranges []PageRange) []int {
	var out []int
	for _, r := range ranges {
		for p := r.Start; p <= r.End; p++ {
			out = append(out, p)
		}
	}
	return out
}

// Contains reports whether pageNr falls in any of ranges
func Contains(ranges []PageRange, pageNr int) bool {
	for _, r := range ranges {
		if pageNr >= r.Start && pageNr <= r.End {
			return true
		}
	}
	return false
}

// selection converts page numbers into a pdfcpu page selection
func selection(pages []int) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = strconv.Itoa(p)
	}
	return out
}
