// Package testpdf builds small, deterministic PDF documents for tests.
//
// The generated files use a classic cross-reference table, uncompressed
// content streams and the standard Helvetica font, which keeps them readable
// by both pdfcpu and ledongthuc/pdf.
package testpdf

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand"
	"strings"
)

// ImageEncoding selects how an image page embeds its picture
type ImageEncoding int

const (
	EncodingDCT ImageEncoding = iota
	EncodingFlate
)

// Page describes one page of a generated document
type Page struct {
	Width    float64
	Height   float64
	Rotate   int
	Lines    []string
	Image    image.Image
	Encoding ImageEncoding
	// FillRect paints a solid rectangle (x, y, w, h) in FillRGB before the image.
	FillRect []float64
	FillRGB  [3]float64
}

// Builder accumulates pages and serializes them into a PDF file
type Builder struct {
	pages []Page
}

// New returns an empty builder
func New() *Builder {
	return &Builder{}
}

// AddTextPage appends a page that shows lines of Helvetica text
func (b *Builder) AddTextPage(width, height float64, lines ...string) *Builder {
	b.pages = append(b.pages, Page{Width: width, Height: height, Lines: lines})
	return b
}

// AddImagePage appends a page that only paints img stretched over the full page
func (b *Builder) AddImagePage(width, height float64, img image.Image) *Builder {
	b.pages = append(b.pages, Page{Width: width, Height: height, Image: img})
	return b
}

// AddPage appends a fully specified page
func (b *Builder) AddPage(p Page) *Builder {
	b.pages = append(b.pages, p)
	return b
}

// PageCount returns the number of pages added so far
func (b *Builder) PageCount() int {
	return len(b.pages)
}

type object struct {
	dict   string
	stream []byte
	isStrm bool
}

// Bytes serializes the document
func (b *Builder) Bytes() []byte {
	objects := []object{
		{dict: "<< /Type /Catalog /Pages 2 0 R >>"},
		{}, // page tree, filled in once page numbers are known
		{dict: "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>"},
	}

	var kids []string
	for _, p := range b.pages {
		pageNum := len(objects) + 1
		contentNum := pageNum + 1
		imageNum := 0
		kids = append(kids, fmt.Sprintf("%d 0 R", pageNum))

		resources := "/Font << /F1 3 0 R >>"
		if p.Image != nil {
			imageNum = pageNum + 2
			resources += fmt.Sprintf(" /XObject << /Im1 %d 0 R >>", imageNum)
		}

		pageDict := fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %s %s] /Resources << %s >> /Contents %d 0 R",
			num(p.Width), num(p.Height), resources, contentNum)
		if p.Rotate != 0 {
			pageDict += fmt.Sprintf(" /Rotate %d", p.Rotate)
		}
		pageDict += " >>"

		objects = append(objects, object{dict: pageDict})
		objects = append(objects, streamObject("", contentStream(p)))
		if p.Image != nil {
			objects = append(objects, imageObject(p.Image, p.Encoding))
		}
	}

	objects[1] = object{dict: fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>",
		strings.Join(kids, " "), len(b.pages))}

	return serialize(objects)
}

func contentStream(p Page) []byte {
	var buf bytes.Buffer
	if len(p.FillRect) == 4 {
		fmt.Fprintf(&buf, "q %s %s %s rg %s %s %s %s re f Q\n",
			num(p.FillRGB[0]), num(p.FillRGB[1]), num(p.FillRGB[2]),
			num(p.FillRect[0]), num(p.FillRect[1]), num(p.FillRect[2]), num(p.FillRect[3]))
	}
	if p.Image != nil {
		fmt.Fprintf(&buf, "q %s 0 0 %s 0 0 cm /Im1 Do Q\n", num(p.Width), num(p.Height))
	}
	if len(p.Lines) > 0 {
		buf.WriteString("BT /F1 18 Tf 72 ")
		fmt.Fprintf(&buf, "%s Td 22 TL\n", num(p.Height-72))
		for _, line := range p.Lines {
			fmt.Fprintf(&buf, "(%s) Tj T*\n", escape(line))
		}
		buf.WriteString("ET\n")
	}
	return buf.Bytes()
}

func imageObject(img image.Image, enc ImageEncoding) object {
	bounds := img.Bounds()
	_, isGray := img.(*image.Gray)

	colorSpace := "/DeviceRGB"
	if isGray {
		colorSpace = "/DeviceGray"
	}
	head := fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace %s /BitsPerComponent 8",
		bounds.Dx(), bounds.Dy(), colorSpace)

	switch enc {
	case EncodingFlate:
		var raw bytes.Buffer
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				if isGray {
					raw.WriteByte(color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y)
					continue
				}
				c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
				raw.Write([]byte{c.R, c.G, c.B})
			}
		}
		var z bytes.Buffer
		zw := zlib.NewWriter(&z)
		_, _ = zw.Write(raw.Bytes())
		_ = zw.Close()
		return streamObject(head+" /Filter /FlateDecode", z.Bytes())
	default:
		var j bytes.Buffer
		_ = jpeg.Encode(&j, img, &jpeg.Options{Quality: 95})
		return streamObject(head+" /Filter /DCTDecode", j.Bytes())
	}
}

func streamObject(dictEntries string, data []byte) object {
	dict := fmt.Sprintf("<< %s /Length %d >>", strings.TrimSpace(dictEntries), len(data))
	return object{dict: dict, stream: data, isStrm: true}
}

func serialize(objects []object) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\n", i+1, obj.dict)
		if obj.isStrm {
			buf.WriteString("stream\n")
			buf.Write(obj.stream)
			buf.WriteString("\nendstream\n")
		}
		buf.WriteString("endobj\n")
	}

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xrefOffset)
	return buf.Bytes()
}

func num(f float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", f), "0"), ".")
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}

// NoiseImage returns a w×h RGB image of seeded random noise. Noise defeats
// JPEG compression, so file sizes react strongly to the quality setting.
func NoiseImage(w, h int, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	rng.Read(img.Pix)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return img
}

// SolidImage returns a w×h image filled with c
func SolidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	r, g, b, a := c.RGBA()
	px := []byte{byte(r >> 8), byte(g >> 8), byte(b >> 8), byte(a >> 8)}
	for i := 0; i < len(img.Pix); i += 4 {
		copy(img.Pix[i:i+4], px)
	}
	return img
}

// SplitImage returns a w×h image whose left half is left and right half is right
func SplitImage(w, h int, left, right color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				img.Set(x, y, left)
			} else {
				img.Set(x, y, right)
			}
		}
	}
	return img
}
