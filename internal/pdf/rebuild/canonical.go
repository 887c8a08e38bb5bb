package rebuild

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/a3tai/mcp-pdf-tools/internal/pdf/document"
	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
)

const defaultVersion = "1.7"

// Canonical rewrites a PDF so that its bytes depend only on its content.
// Objects reachable from the catalog are renumbered in breadth-first order
// with dictionary keys sorted, streams keep their encoded bytes, the
// cross-reference section is a classic table and the file ID is a digest of
// the body. The document information dictionary is dropped.
func Canonical(data []byte) ([]byte, error) {
	ctx, err := api.ReadContext(bytes.NewReader(data), document.NewConfiguration())
	if err != nil {
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeBuild, fmt.Errorf("failed to read output: %w", err))
	}
	if ctx.Root == nil {
		return nil, pdferrors.NewPDFError(pdferrors.ErrorTypeBuild, "output has no catalog")
	}

	w := &canonicalWriter{ctx: ctx, numbers: make(map[int]int)}
	return w.write(*ctx.Root)
}

type canonicalWriter struct {
	ctx     *model.Context
	numbers map[int]int
	refs    []types.IndirectRef
}

// number returns the new object number of ref, queueing it on first sight
func (w *canonicalWriter) number(ref types.IndirectRef) int {
	old := ref.ObjectNumber.Value()
	if n, ok := w.numbers[old]; ok {
		return n
	}
	w.refs = append(w.refs, ref)
	n := len(w.refs)
	w.numbers[old] = n
	return n
}

func (w *canonicalWriter) write(root types.IndirectRef) ([]byte, error) {
	var out bytes.Buffer
	fmt.Fprintf(&out, "%%PDF-%s\n%%\xe2\xe3\xcf\xd3\n", w.version())

	w.number(root)

	// Writing an object may queue more, so the bound is re-read every pass.
	var offsets []int
	for i := 0; i < len(w.refs); i++ {
		obj, err := w.ctx.Dereference(w.refs[i])
		if err != nil {
			return nil, pdferrors.WrapError(pdferrors.ErrorTypeBuild,
				fmt.Errorf("failed to resolve object %d: %w", w.refs[i].ObjectNumber.Value(), err))
		}

		offsets = append(offsets, out.Len())
		fmt.Fprintf(&out, "%d 0 obj\n", i+1)
		if err := w.object(&out, obj); err != nil {
			return nil, err
		}
		out.WriteString("\nendobj\n")
	}

	id := md5.Sum(out.Bytes())

	xref := out.Len()
	fmt.Fprintf(&out, "xref\n0 %d\n", len(offsets)+1)
	out.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&out, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&out, "trailer\n<< /ID [<%x> <%x>] /Root 1 0 R /Size %d >>\nstartxref\n%d\n%%%%EOF\n",
		id, id, len(offsets)+1, xref)

	return out.Bytes(), nil
}

func (w *canonicalWriter) version() string {
	if w.ctx.HeaderVersion == nil {
		return defaultVersion
	}
	return w.ctx.HeaderVersion.String()
}

// object writes a top-level object, which may be a stream
func (w *canonicalWriter) object(buf *bytes.Buffer, obj types.Object) error {
	var sd *types.StreamDict
	switch v := obj.(type) {
	case types.StreamDict:
		sd = &v
	case *types.StreamDict:
		sd = v
	default:
		w.value(buf, obj)
		return nil
	}

	if sd.Raw == nil && sd.Content != nil {
		if err := sd.Encode(); err != nil {
			return pdferrors.WrapError(pdferrors.ErrorTypeBuild, fmt.Errorf("failed to encode stream: %w", err))
		}
	}

	w.dict(buf, sd.Dict, len(sd.Raw))
	buf.WriteString("\nstream\n")
	buf.Write(sd.Raw)
	buf.WriteString("\nendstream")
	return nil
}

func (w *canonicalWriter) value(buf *bytes.Buffer, obj types.Object) {
	switch v := obj.(type) {
	case nil:
		buf.WriteString("null")
	case types.IndirectRef:
		fmt.Fprintf(buf, "%d 0 R", w.number(v))
	case *types.IndirectRef:
		if v == nil {
			buf.WriteString("null")
			return
		}
		fmt.Fprintf(buf, "%d 0 R", w.number(*v))
	case types.Dict:
		w.dict(buf, v, -1)
	case types.Array:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(' ')
			}
			w.value(buf, item)
		}
		buf.WriteByte(']')
	default:
		buf.WriteString(obj.PDFString())
	}
}

// dict writes d with sorted keys. A non-negative length replaces /Length.
func (w *canonicalWriter) dict(buf *bytes.Buffer, d types.Dict, length int) {
	keys := make([]string, 0, len(d))
	for k := range d {
		if length >= 0 && k == "Length" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteString("<<")
	for _, k := range keys {
		buf.WriteString(types.Name(k).PDFString())
		buf.WriteByte(' ')
		w.value(buf, d[k])
	}
	if length >= 0 {
		fmt.Fprintf(buf, "/Length %d", length)
	}
	buf.WriteString(">>")
}
