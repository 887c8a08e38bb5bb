package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/image/ccitt"

	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
)

// colorSpace describes how image samples map to colours
type colorSpace struct {
	family     string // DeviceGray, DeviceRGB, DeviceCMYK, Indexed, Separation
	components int
	base       *colorSpace // Indexed only
	hival      int
	lookup     []byte
}

var (
	deviceGray = &colorSpace{family: "DeviceGray", components: 1}
	deviceRGB  = &colorSpace{family: "DeviceRGB", components: 3}
	deviceCMYK = &colorSpace{family: "DeviceCMYK", components: 4}
)

// unresolvedFamily marks a colour space named in content that could not be
// looked up. Colour operators against it leave the current colour alone.
const unresolvedFamily = "unresolved"

// imageXObject holds the parameters of an image XObject that matter for painting
type imageXObject struct {
	width     int
	height    int
	bpc       int
	imageMask bool
	cs        *colorSpace
	decode    []float64
}

// decodeImage turns an image XObject stream into a Go image. Stencil masks
// come back as *image.Alpha where opaque means "paint with the fill colour".
func (r *Rasterizer) decodeImage(sd *types.StreamDict, resources types.Dict) (image.Image, error) {
	info, err := r.imageInfo(sd, resources)
	if err != nil {
		return nil, err
	}

	filters := sd.FilterPipeline
	last := ""
	if len(filters) > 0 {
		last = filters[len(filters)-1].Name
	}

	switch last {
	case "DCTDecode":
		if len(filters) > 1 {
			return nil, pdferrors.NewPDFError(pdferrors.ErrorTypeUnsupportedFeature, "chained DCTDecode filter")
		}
		img, err := imaging.Decode(bytes.NewReader(sd.Raw), imaging.AutoOrientation(false))
		if err != nil {
			return nil, fmt.Errorf("failed to decode JPEG image: %w", err)
		}
		if isInverted(info.decode) {
			img = imaging.Invert(img)
		}
		return img, nil

	case "CCITTFaxDecode":
		if len(filters) > 1 {
			return nil, pdferrors.NewPDFError(pdferrors.ErrorTypeUnsupportedFeature, "chained CCITTFaxDecode filter")
		}
		return r.decodeCCITT(sd.Raw, filters[0].DecodeParms, info)

	case "JPXDecode", "JBIG2Decode":
		return nil, pdferrors.Newf(pdferrors.ErrorTypeUnsupportedFeature, "%s images are not supported", last)
	}

	if err := sd.Decode(); err != nil {
		return nil, fmt.Errorf("failed to decode image stream: %w", err)
	}

	return samplesToImage(sd.Content, info)
}

func (r *Rasterizer) imageInfo(sd *types.StreamDict, resources types.Dict) (*imageXObject, error) {
	info := &imageXObject{bpc: 8}

	w, err := r.doc.Number(sd.Dict["Width"])
	if err != nil {
		return nil, fmt.Errorf("image width: %w", err)
	}
	h, err := r.doc.Number(sd.Dict["Height"])
	if err != nil {
		return nil, fmt.Errorf("image height: %w", err)
	}
	info.width, info.height = int(w), int(h)
	if info.width < 1 || info.height < 1 {
		return nil, fmt.Errorf("invalid image size %dx%d", info.width, info.height)
	}

	if mask := sd.BooleanEntry("ImageMask"); mask != nil && *mask {
		info.imageMask = true
		info.bpc = 1
		info.cs = deviceGray
	}

	if !info.imageMask {
		if o, ok := sd.Find("BitsPerComponent"); ok && o != nil {
			bpc, err := r.doc.Number(o)
			if err != nil {
				return nil, fmt.Errorf("image bits per component: %w", err)
			}
			info.bpc = int(bpc)
		}

		info.cs = deviceGray
		if o, ok := sd.Find("ColorSpace"); ok && o != nil {
			cs, err := r.colorSpace(o, resources, 0)
			if err != nil {
				return nil, err
			}
			info.cs = cs
		}
	}

	switch info.bpc {
	case 1, 2, 4, 8, 16:
	default:
		return nil, fmt.Errorf("unsupported bits per component %d", info.bpc)
	}

	if o, ok := sd.Find("Decode"); ok && o != nil {
		arr, err := r.doc.Array(o)
		if err == nil {
			for _, v := range arr {
				f, err := r.doc.Number(v)
				if err != nil {
					break
				}
				info.decode = append(info.decode, f)
			}
		}
	}

	return info, nil
}

// colorSpace resolves a colour space object, looking named spaces up in the
// ColorSpace resource dictionary.
func (r *Rasterizer) colorSpace(o types.Object, resources types.Dict, depth int) (*colorSpace, error) {
	if depth > 4 {
		return nil, fmt.Errorf("colour space nesting too deep")
	}

	resolved, err := r.doc.Resolve(o)
	if err != nil {
		return nil, err
	}

	switch v := resolved.(type) {
	case types.Name:
		switch v.Value() {
		case "DeviceGray", "CalGray", "G":
			return deviceGray, nil
		case "DeviceRGB", "CalRGB", "RGB":
			return deviceRGB, nil
		case "DeviceCMYK", "CMYK":
			return deviceCMYK, nil
		}
		if resources != nil {
			csDict, err := r.doc.Dict(resources["ColorSpace"])
			if err == nil && csDict != nil {
				if named, ok := csDict[v.Value()]; ok {
					return r.colorSpace(named, nil, depth+1)
				}
			}
		}
		return nil, pdferrors.Newf(pdferrors.ErrorTypeUnsupportedFeature, "colour space %s", v.Value())

	case types.Array:
		if len(v) == 0 {
			return nil, fmt.Errorf("empty colour space array")
		}
		family, err := r.doc.Name(v[0])
		if err != nil {
			return nil, err
		}
		return r.colorSpaceFamily(family, v, depth)
	}

	return nil, fmt.Errorf("unexpected colour space object %T", resolved)
}

func (r *Rasterizer) colorSpaceFamily(family string, arr types.Array, depth int) (*colorSpace, error) {
	switch family {
	case "DeviceGray", "CalGray":
		return deviceGray, nil
	case "DeviceRGB", "CalRGB":
		return deviceRGB, nil
	case "DeviceCMYK":
		return deviceCMYK, nil

	case "ICCBased":
		if len(arr) < 2 {
			return nil, fmt.Errorf("ICCBased colour space without profile")
		}
		profile, err := r.doc.Stream(arr[1])
		if err != nil {
			return nil, err
		}
		n, err := r.doc.Number(profile.Dict["N"])
		if err != nil {
			return nil, fmt.Errorf("ICC profile component count: %w", err)
		}
		switch int(n) {
		case 1:
			return deviceGray, nil
		case 3:
			return deviceRGB, nil
		case 4:
			return deviceCMYK, nil
		}
		return nil, fmt.Errorf("ICC profile with %d components", int(n))

	case "Indexed", "I":
		if len(arr) < 4 {
			return nil, fmt.Errorf("malformed Indexed colour space")
		}
		base, err := r.colorSpace(arr[1], nil, depth+1)
		if err != nil {
			return nil, err
		}
		hival, err := r.doc.Number(arr[2])
		if err != nil {
			return nil, err
		}
		lookup, err := r.lookupBytes(arr[3])
		if err != nil {
			return nil, err
		}
		return &colorSpace{family: "Indexed", components: 1, base: base, hival: int(hival), lookup: lookup}, nil

	case "Separation":
		return &colorSpace{family: "Separation", components: 1}, nil
	}

	return nil, pdferrors.Newf(pdferrors.ErrorTypeUnsupportedFeature, "colour space %s", family)
}

func (r *Rasterizer) lookupBytes(o types.Object) ([]byte, error) {
	resolved, err := r.doc.Resolve(o)
	if err != nil {
		return nil, err
	}
	switch v := resolved.(type) {
	case types.StringLiteral:
		return types.Unescape(v.Value())
	case types.HexLiteral:
		return v.Bytes()
	case types.StreamDict:
		return r.doc.StreamData(o)
	}
	return nil, fmt.Errorf("unexpected Indexed lookup table %T", resolved)
}

func (r *Rasterizer) decodeCCITT(raw []byte, parms types.Dict, info *imageXObject) (image.Image, error) {
	k, columns, rows := 0, 1728, info.height
	blackIs1, align := false, false

	if parms != nil {
		if v := parms.IntEntry("K"); v != nil {
			k = *v
		}
		if v := parms.IntEntry("Columns"); v != nil {
			columns = *v
		}
		if v := parms.IntEntry("Rows"); v != nil && *v > 0 {
			rows = *v
		}
		if v := parms.BooleanEntry("BlackIs1"); v != nil {
			blackIs1 = *v
		}
		if v := parms.BooleanEntry("EncodedByteAlign"); v != nil {
			align = *v
		}
	}

	subFormat := ccitt.Group3
	if k < 0 {
		subFormat = ccitt.Group4
	}

	gray := image.NewGray(image.Rect(0, 0, columns, rows))
	opts := &ccitt.Options{Align: align, Invert: blackIs1}
	if err := ccitt.DecodeIntoGray(gray, bytes.NewReader(raw), ccitt.MSB, subFormat, opts); err != nil {
		return nil, fmt.Errorf("failed to decode CCITT image: %w", err)
	}

	if info.imageMask {
		// In a stencil mask, black samples (0) are painted.
		alpha := image.NewAlpha(gray.Rect)
		for i, v := range gray.Pix {
			alpha.Pix[i] = 0xff - v
		}
		if isInverted(info.decode) {
			for i := range alpha.Pix {
				alpha.Pix[i] = 0xff - alpha.Pix[i]
			}
		}
		return alpha, nil
	}

	if isInverted(info.decode) {
		for i := range gray.Pix {
			gray.Pix[i] = 0xff - gray.Pix[i]
		}
	}
	return gray, nil
}

// samplesToImage converts unfiltered, row-aligned samples to an image
func samplesToImage(data []byte, info *imageXObject) (image.Image, error) {
	ncomp := info.cs.components
	rowBytes := (info.width*ncomp*info.bpc + 7) / 8
	if len(data) < rowBytes*info.height {
		// Short streams are common in damaged files; pad with zeros.
		padded := make([]byte, rowBytes*info.height)
		copy(padded, data)
		data = padded
	}

	rect := image.Rect(0, 0, info.width, info.height)
	maxVal := float64(int(1)<<uint(info.bpc) - 1)

	// Per component decode ranges
	dmin := make([]float64, ncomp)
	dmax := make([]float64, ncomp)
	for c := 0; c < ncomp; c++ {
		dmin[c], dmax[c] = 0, 1
		if info.cs.family == "Indexed" {
			dmax[c] = maxVal
		}
		if len(info.decode) >= 2*(c+1) {
			dmin[c], dmax[c] = info.decode[2*c], info.decode[2*c+1]
		}
	}

	sample := func(row []byte, idx int) float64 {
		switch info.bpc {
		case 8:
			return float64(row[idx])
		case 16:
			return float64(uint16(row[2*idx])<<8 | uint16(row[2*idx+1]))
		default:
			bit := idx * info.bpc
			b := row[bit/8]
			shift := 8 - info.bpc - bit%8
			return float64((b >> uint(shift)) & byte(int(1)<<uint(info.bpc)-1))
		}
	}
	value := func(row []byte, x, c int) float64 {
		v := sample(row, x*ncomp+c)
		return dmin[c] + v*(dmax[c]-dmin[c])/maxVal
	}

	switch {
	case info.imageMask:
		img := image.NewAlpha(rect)
		for y := 0; y < info.height; y++ {
			row := data[y*rowBytes : (y+1)*rowBytes]
			for x := 0; x < info.width; x++ {
				if value(row, x, 0) < 0.5 {
					img.Pix[y*img.Stride+x] = 0xff
				}
			}
		}
		return img, nil

	case info.cs.family == "Indexed":
		img := image.NewRGBA(rect)
		for y := 0; y < info.height; y++ {
			row := data[y*rowBytes : (y+1)*rowBytes]
			for x := 0; x < info.width; x++ {
				img.SetRGBA(x, y, info.cs.indexedColor(int(value(row, x, 0)+0.5)))
			}
		}
		return img, nil

	case ncomp == 1:
		img := image.NewGray(rect)
		invert := info.cs.family == "Separation"
		for y := 0; y < info.height; y++ {
			row := data[y*rowBytes : (y+1)*rowBytes]
			for x := 0; x < info.width; x++ {
				v := unitToByte(value(row, x, 0))
				if invert {
					v = 0xff - v
				}
				img.Pix[y*img.Stride+x] = v
			}
		}
		return img, nil

	case ncomp == 3:
		img := image.NewRGBA(rect)
		for y := 0; y < info.height; y++ {
			row := data[y*rowBytes : (y+1)*rowBytes]
			for x := 0; x < info.width; x++ {
				i := y*img.Stride + 4*x
				img.Pix[i] = unitToByte(value(row, x, 0))
				img.Pix[i+1] = unitToByte(value(row, x, 1))
				img.Pix[i+2] = unitToByte(value(row, x, 2))
				img.Pix[i+3] = 0xff
			}
		}
		return img, nil

	case ncomp == 4:
		img := image.NewCMYK(rect)
		for y := 0; y < info.height; y++ {
			row := data[y*rowBytes : (y+1)*rowBytes]
			for x := 0; x < info.width; x++ {
				i := y*img.Stride + 4*x
				for c := 0; c < 4; c++ {
					img.Pix[i+c] = unitToByte(value(row, x, c))
				}
			}
		}
		return img, nil
	}

	return nil, fmt.Errorf("unsupported component count %d", ncomp)
}

func (cs *colorSpace) indexedColor(idx int) color.RGBA {
	if cs.base == nil {
		return color.RGBA{A: 0xff}
	}
	if idx < 0 {
		idx = 0
	}
	if idx > cs.hival {
		idx = cs.hival
	}

	n := cs.base.components
	off := idx * n
	if off+n > len(cs.lookup) {
		return color.RGBA{A: 0xff}
	}
	entry := cs.lookup[off : off+n]

	switch n {
	case 1:
		return color.RGBA{entry[0], entry[0], entry[0], 0xff}
	case 3:
		return color.RGBA{entry[0], entry[1], entry[2], 0xff}
	case 4:
		r, g, b := color.CMYKToRGB(entry[0], entry[1], entry[2], entry[3])
		return color.RGBA{r, g, b, 0xff}
	}
	return color.RGBA{A: 0xff}
}

func unitToByte(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 0xff
	}
	return uint8(v*255 + 0.5)
}

func isInverted(decode []float64) bool {
	return len(decode) >= 2 && decode[0] > decode[1]
}
