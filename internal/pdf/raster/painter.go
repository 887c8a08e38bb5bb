package raster

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/vector"

	"github.com/a3tai/mcp-pdf-tools/internal/pdf/document"
	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
)

const maxFormDepth = 12

// matrix is a PDF transformation matrix [a b c d e f]
type matrix [6]float64

var identity = matrix{1, 0, 0, 1, 0, 0}

// mul returns m × n, i.e. m applied first
func (m matrix) mul(n matrix) matrix {
	return matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

func (m matrix) apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

func (m matrix) aff3() f64.Aff3 {
	return f64.Aff3{m[0], m[2], m[4], m[1], m[3], m[5]}
}

// graphicsState is the subset of the PDF graphics state the painter honours
type graphicsState struct {
	ctm         matrix
	fill        color.RGBA
	stroke      color.RGBA
	fillSpace   *colorSpace
	strokeSpace *colorSpace
	lineWidth   float64
}

type pathOp struct {
	op  byte // 'm', 'l', 'c', 'h'
	pts [6]float32
}

// operand is a parsed operand on the interpreter stack
type operand struct {
	typ  tokenType
	num  float64
	name string
}

// painter interprets content streams onto a leased surface
type painter struct {
	ctx    context.Context
	r      *Rasterizer
	dst    *image.RGBA
	raster *vector.Rasterizer

	gs    graphicsState
	stack []graphicsState
	path  []pathOp
	start [2]float32
	cur   [2]float32

	skipped int
}

func newPainter(ctx context.Context, r *Rasterizer, dst *image.RGBA, box document.Box, scale float64) *painter {
	b := dst.Bounds()
	// User space to device pixels, flipping the y axis.
	device := matrix{scale, 0, 0, -scale, -box.LLX * scale, float64(b.Dy()) + box.LLY*scale}

	return &painter{
		ctx:    ctx,
		r:      r,
		dst:    dst,
		raster: vector.NewRasterizer(b.Dx(), b.Dy()),
		gs: graphicsState{
			ctm:         device,
			fill:        color.RGBA{A: 0xff},
			stroke:      color.RGBA{A: 0xff},
			fillSpace:   deviceGray,
			strokeSpace: deviceGray,
			lineWidth:   1,
		},
	}
}

// run interprets one content stream with the given resources
func (p *painter) run(content []byte, resources types.Dict, depth int) error {
	lex := newLexer(content)
	var operands []operand

	for {
		tok, err := lex.next()
		if err != nil {
			return err
		}

		switch tok.Type {
		case tokenEOF:
			return nil
		case tokenNumber:
			operands = append(operands, operand{typ: tokenNumber, num: tok.Num})
		case tokenName:
			operands = append(operands, operand{typ: tokenName, name: tok.Value})
		case tokenString:
			operands = append(operands, operand{typ: tokenString})
		case tokenArrayStart, tokenDictStart:
			if err := skipComposite(lex, tok.Type); err != nil {
				return err
			}
			operands = append(operands, operand{typ: tok.Type})
		case tokenArrayEnd, tokenDictEnd:
			return fmt.Errorf("unbalanced %q at offset %d", tok.Value, tok.Pos)
		case tokenKeyword:
			if tok.Value == "ID" {
				if err := lex.skipInlineImage(); err != nil {
					return err
				}
				p.skipped++
			} else if err := p.execute(tok.Value, operands, resources, depth); err != nil {
				return err
			}
			operands = operands[:0]
		}
	}
}

// skipComposite consumes the rest of an array or dictionary operand
func skipComposite(lex *lexer, open tokenType) error {
	depth := 1
	for depth > 0 {
		tok, err := lex.next()
		if err != nil {
			return err
		}
		switch tok.Type {
		case tokenEOF:
			return fmt.Errorf("unterminated %s", open)
		case tokenArrayStart, tokenDictStart:
			depth++
		case tokenArrayEnd, tokenDictEnd:
			depth--
		}
	}
	return nil
}

func numbers(ops []operand, n int) ([]float64, bool) {
	if len(ops) < n {
		return nil, false
	}
	out := make([]float64, n)
	for i, op := range ops[len(ops)-n:] {
		if op.typ != tokenNumber {
			return nil, false
		}
		out[i] = op.num
	}
	return out, true
}

func (p *painter) execute(op string, ops []operand, resources types.Dict, depth int) error {
	switch op {
	case "q":
		p.stack = append(p.stack, p.gs)
	case "Q":
		if n := len(p.stack); n > 0 {
			p.gs = p.stack[n-1]
			p.stack = p.stack[:n-1]
		}
	case "cm":
		if v, ok := numbers(ops, 6); ok {
			p.gs.ctm = matrix{v[0], v[1], v[2], v[3], v[4], v[5]}.mul(p.gs.ctm)
		}
	case "w":
		if v, ok := numbers(ops, 1); ok {
			p.gs.lineWidth = v[0]
		}

	case "m":
		if v, ok := numbers(ops, 2); ok {
			p.moveTo(v[0], v[1])
		}
	case "l":
		if v, ok := numbers(ops, 2); ok {
			p.lineTo(v[0], v[1])
		}
	case "c":
		if v, ok := numbers(ops, 6); ok {
			p.curveTo(v[0], v[1], v[2], v[3], v[4], v[5])
		}
	case "v":
		if v, ok := numbers(ops, 4); ok {
			x0, y0 := p.userCurrent()
			p.curveTo(x0, y0, v[0], v[1], v[2], v[3])
		}
	case "y":
		if v, ok := numbers(ops, 4); ok {
			p.curveTo(v[0], v[1], v[2], v[3], v[2], v[3])
		}
	case "h":
		p.closePath()
	case "re":
		if v, ok := numbers(ops, 4); ok {
			x, y, w, h := v[0], v[1], v[2], v[3]
			p.moveTo(x, y)
			p.lineTo(x+w, y)
			p.lineTo(x+w, y+h)
			p.lineTo(x, y+h)
			p.closePath()
		}

	case "f", "F", "f*":
		p.fillPath()
		p.path = nil
	case "S":
		p.strokePath()
		p.path = nil
	case "s":
		p.closePath()
		p.strokePath()
		p.path = nil
	case "B", "B*":
		p.fillPath()
		p.strokePath()
		p.path = nil
	case "b", "b*":
		p.closePath()
		p.fillPath()
		p.strokePath()
		p.path = nil
	case "n":
		p.path = nil
	case "W", "W*":
		// Clipping is not applied; image pages rarely rely on it.

	case "g":
		if v, ok := numbers(ops, 1); ok {
			p.gs.fill = grayColor(v[0])
			p.gs.fillSpace = deviceGray
		}
	case "G":
		if v, ok := numbers(ops, 1); ok {
			p.gs.stroke = grayColor(v[0])
			p.gs.strokeSpace = deviceGray
		}
	case "rg":
		if v, ok := numbers(ops, 3); ok {
			p.gs.fill = rgbColor(v[0], v[1], v[2])
			p.gs.fillSpace = deviceRGB
		}
	case "RG":
		if v, ok := numbers(ops, 3); ok {
			p.gs.stroke = rgbColor(v[0], v[1], v[2])
			p.gs.strokeSpace = deviceRGB
		}
	case "k":
		if v, ok := numbers(ops, 4); ok {
			p.gs.fill = cmykColor(v[0], v[1], v[2], v[3])
			p.gs.fillSpace = deviceCMYK
		}
	case "K":
		if v, ok := numbers(ops, 4); ok {
			p.gs.stroke = cmykColor(v[0], v[1], v[2], v[3])
			p.gs.strokeSpace = deviceCMYK
		}
	case "cs", "CS":
		cs := p.namedColorSpace(ops, resources)
		if op == "cs" {
			p.gs.fillSpace, p.gs.fill = cs, color.RGBA{A: 0xff}
		} else {
			p.gs.strokeSpace, p.gs.stroke = cs, color.RGBA{A: 0xff}
		}
	case "sc", "scn":
		if c, ok := componentColor(ops, p.gs.fillSpace); ok {
			p.gs.fill = c
		}
	case "SC", "SCN":
		if c, ok := componentColor(ops, p.gs.strokeSpace); ok {
			p.gs.stroke = c
		}

	case "Do":
		if len(ops) == 0 || ops[len(ops)-1].typ != tokenName {
			return nil
		}
		return p.drawXObject(ops[len(ops)-1].name, resources, depth)
	}

	return nil
}

func (p *painter) device(x, y float64) (float32, float32) {
	dx, dy := p.gs.ctm.apply(x, y)
	return float32(dx), float32(dy)
}

// userCurrent maps the current point back to user space for the v operator
func (p *painter) userCurrent() (float64, float64) {
	m := p.gs.ctm
	det := m[0]*m[3] - m[1]*m[2]
	if det == 0 {
		return 0, 0
	}
	x := float64(p.cur[0]) - m[4]
	y := float64(p.cur[1]) - m[5]
	return (x*m[3] - y*m[2]) / det, (y*m[0] - x*m[1]) / det
}

func (p *painter) moveTo(x, y float64) {
	dx, dy := p.device(x, y)
	p.path = append(p.path, pathOp{op: 'm', pts: [6]float32{dx, dy}})
	p.start = [2]float32{dx, dy}
	p.cur = p.start
}

func (p *painter) lineTo(x, y float64) {
	dx, dy := p.device(x, y)
	p.path = append(p.path, pathOp{op: 'l', pts: [6]float32{dx, dy}})
	p.cur = [2]float32{dx, dy}
}

func (p *painter) curveTo(x1, y1, x2, y2, x3, y3 float64) {
	ax, ay := p.device(x1, y1)
	bx, by := p.device(x2, y2)
	cx, cy := p.device(x3, y3)
	p.path = append(p.path, pathOp{op: 'c', pts: [6]float32{ax, ay, bx, by, cx, cy}})
	p.cur = [2]float32{cx, cy}
}

func (p *painter) closePath() {
	if len(p.path) == 0 {
		return
	}
	p.path = append(p.path, pathOp{op: 'h'})
	p.cur = p.start
}

func (p *painter) resetRaster() {
	b := p.dst.Bounds()
	p.raster.Reset(b.Dx(), b.Dy())
}

func (p *painter) fillPath() {
	if len(p.path) == 0 {
		return
	}

	p.resetRaster()
	open := false
	for _, seg := range p.path {
		switch seg.op {
		case 'm':
			if open {
				p.raster.ClosePath()
			}
			p.raster.MoveTo(seg.pts[0], seg.pts[1])
			open = true
		case 'l':
			p.raster.LineTo(seg.pts[0], seg.pts[1])
		case 'c':
			p.raster.CubeTo(seg.pts[0], seg.pts[1], seg.pts[2], seg.pts[3], seg.pts[4], seg.pts[5])
		case 'h':
			p.raster.ClosePath()
			open = false
		}
	}
	if open {
		p.raster.ClosePath()
	}

	p.raster.Draw(p.dst, p.dst.Bounds(), image.NewUniform(p.gs.fill), image.Point{})
}

// strokePath paints every segment as a quad of the current line width.
// Curves are flattened into short lines first.
func (p *painter) strokePath() {
	if len(p.path) == 0 {
		return
	}

	m := p.gs.ctm
	scale := (math.Hypot(m[0], m[1]) + math.Hypot(m[2], m[3])) / 2
	half := p.gs.lineWidth * scale / 2
	if half < 0.5 {
		half = 0.5
	}

	p.resetRaster()
	var cur, start [2]float64
	segment := func(to [2]float64) {
		vx, vy := to[0]-cur[0], to[1]-cur[1]
		if l := math.Hypot(vx, vy); l > 0 {
			nx, ny := -vy/l*half, vx/l*half
			p.raster.MoveTo(float32(cur[0]+nx), float32(cur[1]+ny))
			p.raster.LineTo(float32(to[0]+nx), float32(to[1]+ny))
			p.raster.LineTo(float32(to[0]-nx), float32(to[1]-ny))
			p.raster.LineTo(float32(cur[0]-nx), float32(cur[1]-ny))
			p.raster.ClosePath()
		}
		cur = to
	}

	for _, seg := range p.path {
		switch seg.op {
		case 'm':
			cur = [2]float64{float64(seg.pts[0]), float64(seg.pts[1])}
			start = cur
		case 'l':
			segment([2]float64{float64(seg.pts[0]), float64(seg.pts[1])})
		case 'c':
			x0, y0 := cur[0], cur[1]
			for i := 1; i <= 8; i++ {
				t := float64(i) / 8
				u := 1 - t
				x := u*u*u*x0 + 3*u*u*t*float64(seg.pts[0]) + 3*u*t*t*float64(seg.pts[2]) + t*t*t*float64(seg.pts[4])
				y := u*u*u*y0 + 3*u*u*t*float64(seg.pts[1]) + 3*u*t*t*float64(seg.pts[3]) + t*t*t*float64(seg.pts[5])
				segment([2]float64{x, y})
			}
		case 'h':
			segment(start)
		}
	}

	p.raster.Draw(p.dst, p.dst.Bounds(), image.NewUniform(p.gs.stroke), image.Point{})
}

func (p *painter) namedColorSpace(ops []operand, resources types.Dict) *colorSpace {
	if len(ops) == 0 || ops[len(ops)-1].typ != tokenName {
		return deviceGray
	}
	cs, err := p.r.colorSpace(types.Name(ops[len(ops)-1].name), resources, 0)
	if err != nil {
		// Patterns and unresolvable spaces keep a neutral colour.
		return &colorSpace{family: unresolvedFamily}
	}
	return cs
}

func componentColor(ops []operand, cs *colorSpace) (color.RGBA, bool) {
	if cs == nil {
		return color.RGBA{}, false
	}
	if cs.family == "Indexed" {
		if v, ok := numbers(ops, 1); ok {
			return cs.indexedColor(int(v[0])), true
		}
		return color.RGBA{}, false
	}

	v, ok := numbers(ops, cs.components)
	if !ok || cs.components == 0 {
		return color.RGBA{}, false
	}

	switch {
	case cs.family == "Separation":
		return grayColor(1 - v[0]), true
	case cs.components == 1:
		return grayColor(v[0]), true
	case cs.components == 3:
		return rgbColor(v[0], v[1], v[2]), true
	case cs.components == 4:
		return cmykColor(v[0], v[1], v[2], v[3]), true
	}
	return color.RGBA{}, false
}

func grayColor(g float64) color.RGBA {
	v := unitToByte(g)
	return color.RGBA{v, v, v, 0xff}
}

func rgbColor(r, g, b float64) color.RGBA {
	return color.RGBA{unitToByte(r), unitToByte(g), unitToByte(b), 0xff}
}

func cmykColor(c, m, y, k float64) color.RGBA {
	r, g, b := color.CMYKToRGB(unitToByte(c), unitToByte(m), unitToByte(y), unitToByte(k))
	return color.RGBA{r, g, b, 0xff}
}

func (p *painter) drawXObject(name string, resources types.Dict, depth int) error {
	if err := p.ctx.Err(); err != nil {
		return pdferrors.WrapError(pdferrors.ErrorTypeCancelled, err)
	}

	if resources == nil {
		return nil
	}
	xobjects, err := p.r.doc.Dict(resources["XObject"])
	if err != nil || xobjects == nil {
		return nil
	}
	ref, ok := xobjects[name]
	if !ok || ref == nil {
		return nil
	}

	sd, err := p.r.doc.Stream(ref)
	if err != nil {
		return fmt.Errorf("XObject %s: %w", name, err)
	}

	subtype, _ := p.r.doc.Name(sd.Dict["Subtype"])
	switch subtype {
	case "Image":
		return p.drawImage(ref, sd, resources)
	case "Form":
		return p.drawForm(name, sd, resources, depth)
	}
	return nil
}

func (p *painter) drawImage(ref types.Object, sd *types.StreamDict, resources types.Dict) error {
	src, err := p.r.image(ref, sd, resources)
	if err != nil {
		if pdferrors.IsType(err, pdferrors.ErrorTypeUnsupportedFeature) {
			p.skipped++
			p.r.logf("skipping image: %v", err)
			return nil
		}
		return err
	}

	b := src.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	// Image pixels map onto the unit square with row 0 at the top.
	toUnit := matrix{1 / w, 0, 0, -1 / h, -float64(b.Min.X) / w, 1 + float64(b.Min.Y)/h}
	s2d := toUnit.mul(p.gs.ctm)

	if alpha, ok := src.(*image.Alpha); ok {
		// Stencil mask: paint the fill colour through the mask.
		fill := p.gs.fill
		stencil := image.NewRGBA(alpha.Rect)
		for i, a := range alpha.Pix {
			j := 4 * i
			stencil.Pix[j] = uint8(uint16(fill.R) * uint16(a) / 0xff)
			stencil.Pix[j+1] = uint8(uint16(fill.G) * uint16(a) / 0xff)
			stencil.Pix[j+2] = uint8(uint16(fill.B) * uint16(a) / 0xff)
			stencil.Pix[j+3] = a
		}
		src = stencil
	}

	xdraw.BiLinear.Transform(p.dst, s2d.aff3(), src, b, draw.Over, nil)
	return nil
}

func (p *painter) drawForm(name string, sd *types.StreamDict, parent types.Dict, depth int) error {
	if depth >= maxFormDepth {
		return fmt.Errorf("form XObject %s nested deeper than %d levels", name, maxFormDepth)
	}

	if err := sd.Decode(); err != nil {
		return fmt.Errorf("form XObject %s: %w", name, err)
	}

	resources := parent
	if o, ok := sd.Find("Resources"); ok && o != nil {
		if res, err := p.r.doc.Dict(o); err == nil && res != nil {
			resources = res
		}
	}

	saved := p.gs
	savedStack := len(p.stack)
	savedPath := p.path
	p.path = nil

	if o, ok := sd.Find("Matrix"); ok && o != nil {
		if arr, err := p.r.doc.Array(o); err == nil && len(arr) == 6 {
			var m matrix
			for i, v := range arr {
				m[i], _ = p.r.doc.Number(v)
			}
			p.gs.ctm = m.mul(p.gs.ctm)
		}
	}

	err := p.run(sd.Content, resources, depth+1)

	p.gs = saved
	if len(p.stack) > savedStack {
		p.stack = p.stack[:savedStack]
	}
	p.path = savedPath

	return err
}
