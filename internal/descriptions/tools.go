package descriptions

import "sort"

// Tool descriptions with practical examples and use cases

const (
	// Compression
	PDFCompressDescription = `Shrink a PDF by re-encoding its scanned pages as JPEG while leaving text pages untouched.

**When to use:** A document made of scans or photos is too large to email, upload or archive.

**Why it's useful:** Every page that carries extractable text is copied byte for byte, so searchable text, fonts and links survive. Only image-only pages are re-rendered at the chosen resolution and JPEG quality.

**Examples:**
• Shrink a scanned contract: "Compress contract-scan.pdf at 150 dpi"
• Aggressive compression: "Compress photos.pdf with quality 0.4 and 100 dpi"

**Common workflows:**
1. Inspect first: pdf_analyze_pages → see how many pages are image-only → pdf_compress
2. Size limit: if the result is still too large → pdf_compress_to_size

**Best practices:** Documents without image-only pages rarely get smaller. The output is written next to the input as <name>-dikompres.pdf unless output_path is given; the original is never modified.`

	PDFCompressToSizeDescription = `Compress a PDF as close as possible to a target size in bytes.

**When to use:** A portal or mail server enforces a hard size limit (for example 2 MB).

**Why it's useful:** Runs a bisection over JPEG quality, rebuilding the document at each step and keeping the attempt whose size is closest to the target. Every attempt is reported, so you can see how far off the result is.

**Examples:**
• Upload limit: "Compress application.pdf to 2000000 bytes"
• Fine search: "Compress scan.pdf to 500000 bytes with 10 iterations"

**Common workflows:**
1. pdf_info → read the current size → pdf_compress_to_size with a smaller target
2. If the closest result is still above the limit → lower dpi and try again

**Best practices:** The target must be smaller than the current file. Text pages never shrink, so a target below the size of the text pages cannot be reached.`

	PDFAnalyzePagesDescription = `Classify every page of a PDF as a text page or an image-only page.

**When to use:** Before compressing, to predict whether compression will help.

**Why it's useful:** Only image-only pages are re-encoded. A document of text pages will not get smaller; a document of scans usually shrinks a lot.

**Examples:**
• "Which pages of report.pdf are scanned?"
• "Is compressing thesis.pdf worth it?"

**Best practices:** A page with any extractable text, even whitespace, counts as a text page.`

	// Page tools
	PDFMergeDescription = `Combine two or more PDF files into one, in the order given.

**When to use:** Assemble a submission from separate files, or append an appendix.

**Examples:**
• "Merge cover.pdf, body.pdf and appendix.pdf into submission.pdf"

**Best practices:** At least two files are required. Without output_path the result is named after the first file with the suffix -merged.`

	PDFSplitDescription = `Split a PDF into parts of a fixed number of pages.

**When to use:** A file is too large for an upload limit even after compression, or chapters must be sent separately.

**Examples:**
• "Split book.pdf into parts of 20 pages"
• "Split scans.pdf into single pages" (span 1)

**Best practices:** Parts are written next to the input as <name>-part-1.pdf, <name>-part-2.pdf and so on. The last part may be shorter.`

	PDFOrganizeDescription = `Reorder, remove or rotate pages of a PDF.

**When to use:** Scans came out in the wrong order, upside down, or with blank pages.

**Examples:**
• Reorder: order "3,1-2"
• Drop blank pages: remove "4,9"
• Fix upside-down scans: rotate "2-5" with rotation 180

**Best practices:** Every selection uses the page numbers of the input file. Rotation must be a multiple of 90 degrees and at least one page must remain. The result is written as <name>-organized.pdf unless output_path is given.`

	PDFInfoDescription = `Report page count, PDF version, page sizes, rotation and page classification.

**When to use:** Get an overview of a file before choosing a tool.

**Examples:**
• "How many pages does scan.pdf have and how large are they?"`

	PDFServerInfoDescription = `Get server information, available tools, configured defaults and the PDF files in the configured directory.

**When to use:** At the start of a session, to discover what the server can do and which files are available.

**Best practices:** Paths may be absolute or relative to the configured directory; files outside it are rejected.`
)

// ToolDescriptions maps tool names to their descriptions
var ToolDescriptions = map[string]string{
	"pdf_compress":         PDFCompressDescription,
	"pdf_compress_to_size": PDFCompressToSizeDescription,
	"pdf_analyze_pages":    PDFAnalyzePagesDescription,
	"pdf_merge":            PDFMergeDescription,
	"pdf_split":            PDFSplitDescription,
	"pdf_organize":         PDFOrganizeDescription,
	"pdf_info":             PDFInfoDescription,
	"pdf_server_info":      PDFServerInfoDescription,
}

// GetToolDescription returns the description for a tool
func GetToolDescription(toolName string) string {
	if desc, exists := ToolDescriptions[toolName]; exists {
		return desc
	}
	return "Tool description not available"
}

// GetAllToolNames returns the sorted names of all tools
func GetAllToolNames() []string {
	names := make([]string, 0, len(ToolDescriptions))
	for name := range ToolDescriptions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
