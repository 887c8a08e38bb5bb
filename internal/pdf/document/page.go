package document

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
)

// US Letter in points, used when a page declares no usable box.
const (
	letterWidth  = 612.0
	letterHeight = 792.0
)

// Box is a page rectangle in PDF user space units
type Box struct {
	LLX, LLY float64
	URX, URY float64
}

// Width returns the horizontal extent of the box
func (b Box) Width() float64 {
	return b.URX - b.LLX
}

// Height returns the vertical extent of the box
func (b Box) Height() float64 {
	return b.URY - b.LLY
}

func (b Box) valid() bool {
	return b.Width() > 0 && b.Height() > 0
}

// Page is the subset of a page object needed to paint it
type Page struct {
	Number    int
	Box       Box
	Rotate    int
	Resources types.Dict
	Content   []byte
}

// Page resolves page pageNr (1-based) including inherited attributes and its
// decoded content stream.
func (d *Document) Page(pageNr int) (*Page, error) {
	if err := d.checkPage(pageNr); err != nil {
		return nil, err
	}

	pageDict, _, inherited, err := d.ctx.PageDict(pageNr, false)
	if err != nil {
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeRender, err).WithPage(pageNr)
	}
	if pageDict == nil {
		return nil, pdferrors.NewPDFError(pdferrors.ErrorTypeRender, "page dictionary not found").WithPage(pageNr)
	}

	page := &Page{
		Number: pageNr,
		Box:    Box{URX: letterWidth, URY: letterHeight},
	}

	if inherited != nil {
		page.Resources = inherited.Resources
		page.Rotate = normalizeRotation(inherited.Rotate)
		if box, ok := rectBox(inherited.CropBox); ok {
			page.Box = box
		} else if box, ok := rectBox(inherited.MediaBox); ok {
			page.Box = box
		}
	}

	if page.Resources == nil {
		if res, err := d.ctx.DereferenceDict(pageDict["Resources"]); err == nil {
			page.Resources = res
		}
	}

	content, err := d.pageContent(pageDict)
	if err != nil {
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeRender, err).WithPage(pageNr)
	}
	page.Content = content

	return page, nil
}

// PageSize returns the effective width and height of pageNr in points,
// with the page rotation applied.
func (d *Document) PageSize(pageNr int) (float64, float64, error) {
	box, rotate, err := d.PageGeometry(pageNr)
	if err != nil {
		return 0, 0, err
	}
	if rotate == 90 || rotate == 270 {
		return box.Height(), box.Width(), nil
	}
	return box.Width(), box.Height(), nil
}

// PageGeometry returns the visible box and normalized rotation of pageNr
// without decoding its content.
func (d *Document) PageGeometry(pageNr int) (Box, int, error) {
	if err := d.checkPage(pageNr); err != nil {
		return Box{}, 0, err
	}

	_, _, inherited, err := d.ctx.PageDict(pageNr, false)
	if err != nil {
		return Box{}, 0, pdferrors.WrapError(pdferrors.ErrorTypeExtraction, err).WithPage(pageNr)
	}

	box := Box{URX: letterWidth, URY: letterHeight}
	rotate := 0
	if inherited != nil {
		if b, ok := rectBox(inherited.CropBox); ok {
			box = b
		} else if b, ok := rectBox(inherited.MediaBox); ok {
			box = b
		}
		rotate = normalizeRotation(inherited.Rotate)
	}
	return box, rotate, nil
}

func (d *Document) pageContent(pageDict types.Dict) ([]byte, error) {
	obj, found := pageDict.Find("Contents")
	if !found || obj == nil {
		return nil, nil
	}

	resolved, err := d.ctx.Dereference(obj)
	if err != nil {
		return nil, err
	}

	switch v := resolved.(type) {
	case types.StreamDict:
		return d.StreamData(obj)
	case types.Array:
		var buf bytes.Buffer
		for _, part := range v {
			data, err := d.StreamData(part)
			if err != nil {
				return nil, err
			}
			buf.Write(data)
			buf.WriteByte('\n')
		}
		return buf.Bytes(), nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected page contents type %T", resolved)
	}
}

// StreamData dereferences o as a stream and returns its fully decoded content
func (d *Document) StreamData(o types.Object) ([]byte, error) {
	sd, err := d.Stream(o)
	if err != nil {
		return nil, err
	}
	if err := sd.Decode(); err != nil {
		return nil, fmt.Errorf("failed to decode stream: %w", err)
	}
	return sd.Content, nil
}

// Stream dereferences o as a stream dictionary
func (d *Document) Stream(o types.Object) (*types.StreamDict, error) {
	sd, _, err := d.ctx.DereferenceStreamDict(o)
	if err != nil {
		return nil, err
	}
	if sd == nil {
		return nil, fmt.Errorf("object is not a stream")
	}
	return sd, nil
}

// Dict dereferences o as a dictionary, returning nil for a missing object
func (d *Document) Dict(o types.Object) (types.Dict, error) {
	return d.ctx.DereferenceDict(o)
}

// Array dereferences o as an array, returning nil for a missing object
func (d *Document) Array(o types.Object) (types.Array, error) {
	return d.ctx.DereferenceArray(o)
}

// Number dereferences o as an integer or real number
func (d *Document) Number(o types.Object) (float64, error) {
	return d.ctx.DereferenceNumber(o)
}

// Name dereferences o as a name
func (d *Document) Name(o types.Object) (string, error) {
	n, err := d.ctx.DereferenceName(o, model.V10, nil)
	if err != nil {
		return "", err
	}
	return n.Value(), nil
}

// Resolve dereferences o whatever its type
func (d *Document) Resolve(o types.Object) (types.Object, error) {
	return d.ctx.Dereference(o)
}

// ObjectNumber returns the object number of an indirect reference, or 0 for
// a direct object.
func ObjectNumber(o types.Object) int {
	switch ref := o.(type) {
	case types.IndirectRef:
		return ref.ObjectNumber.Value()
	case *types.IndirectRef:
		if ref != nil {
			return ref.ObjectNumber.Value()
		}
	}
	return 0
}

func rectBox(r *types.Rectangle) (Box, bool) {
	if r == nil {
		return Box{}, false
	}
	b := Box{LLX: r.LL.X, LLY: r.LL.Y, URX: r.UR.X, URY: r.UR.Y}
	if b.LLX > b.URX {
		b.LLX, b.URX = b.URX, b.LLX
	}
	if b.LLY > b.URY {
		b.LLY, b.URY = b.URY, b.LLY
	}
	return b, b.valid()
}

func normalizeRotation(r int) int {
	r %= 360
	if r < 0 {
		r += 360
	}
	// Only multiples of 90 are meaningful.
	return r - r%90
}

// PageContent returns the decoded content stream of pageNr
func (d *Document) PageContent(pageNr int) ([]byte, error) {
	page, err := d.Page(pageNr)
	if err != nil {
		return nil, err
	}
	return page.Content, nil
}
