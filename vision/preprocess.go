// Package vision turns encoded images into input tensor bytes for image
// models with NHWC inputs.
package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"golang.org/x/image/draw"

	"tflitebridge/native"
	"tflitebridge/term"
)

// Image preprocessing errors
var (
	ErrEmptyImage    = errors.New("vision: empty image data")
	ErrInvalidImage  = errors.New("vision: invalid image data")
	ErrInvalidLayout = errors.New("vision: unsupported input layout")
)

// Normalization selects how 8-bit pixels map to real values.
type Normalization int

const (
	// NormUnit maps pixels to [0,1].
	NormUnit Normalization = iota
	// NormCentered maps pixels to [-1,1].
	NormCentered
	// NormRaw keeps pixels in [0,255].
	NormRaw
)

// ParseNormalization accepts "unit", "centered" and "raw".
func ParseNormalization(s string) (Normalization, bool) {
	switch s {
	case "unit", "":
		return NormUnit, true
	case "centered":
		return NormCentered, true
	case "raw":
		return NormRaw, true
	}
	return NormUnit, false
}

func (n Normalization) apply(v uint8) float64 {
	switch n {
	case NormCentered:
		return float64(v)/127.5 - 1
	case NormRaw:
		return float64(v)
	default:
		return float64(v) / 255
	}
}

// Layout describes an image input tensor.
type Layout struct {
	Height   int
	Width    int
	Channels int
	Type     native.TensorType
	Quant    term.QuantizationParams
	Norm     Normalization
}

// LayoutFor derives a Layout from an input tensor's shape ([1,H,W,C] or
// [H,W,C] with C of 1 or 3), element type and quantization.
func LayoutFor(shape term.Shape, typ native.TensorType, quant term.QuantizationParams, norm Normalization) (Layout, error) {
	dims := []int64(shape)
	if len(dims) == 4 {
		if dims[0] != 1 {
			return Layout{}, fmt.Errorf("%w: batch %d", ErrInvalidLayout, dims[0])
		}
		dims = dims[1:]
	}
	if len(dims) != 3 {
		return Layout{}, fmt.Errorf("%w: shape %v", ErrInvalidLayout, []int64(shape))
	}
	if dims[0] <= 0 || dims[1] <= 0 || (dims[2] != 1 && dims[2] != 3) {
		return Layout{}, fmt.Errorf("%w: shape %v", ErrInvalidLayout, []int64(shape))
	}
	switch typ {
	case native.Float32, native.Float16, native.UInt8, native.Int8:
	default:
		return Layout{}, fmt.Errorf("%w: element type %s", ErrInvalidLayout, typ)
	}
	return Layout{
		Height:   int(dims[0]),
		Width:    int(dims[1]),
		Channels: int(dims[2]),
		Type:     typ,
		Quant:    quant,
		Norm:     norm,
	}, nil
}

// ByteSize is the size of the tensor buffer the layout describes.
func (l Layout) ByteSize() int {
	return l.Height * l.Width * l.Channels * l.Type.Size()
}

// DecodeImage decodes PNG, JPEG or GIF data.
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return img, nil
}

// Letterbox scales img to fit width x height, keeping the aspect ratio, and
// centers it on a black background.
func Letterbox(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return dst
	}
	scale := math.Min(float64(width)/float64(b.Dx()), float64(height)/float64(b.Dy()))
	w := max(1, int(float64(b.Dx())*scale))
	h := max(1, int(float64(b.Dy())*scale))
	x0 := (width - w) / 2
	y0 := (height - h) / 2

	draw.CatmullRom.Scale(dst, image.Rect(x0, y0, x0+w, y0+h), img, b, draw.Over, nil)
	return dst
}

// Tensorize letterboxes img into l and packs it into exactly l.ByteSize()
// bytes in row-major HWC order.
func Tensorize(img image.Image, l Layout) ([]byte, error) {
	if l.Height <= 0 || l.Width <= 0 || (l.Channels != 1 && l.Channels != 3) {
		return nil, fmt.Errorf("%w: %dx%dx%d", ErrInvalidLayout, l.Height, l.Width, l.Channels)
	}
	rgba := Letterbox(img, l.Width, l.Height)
	pixels := channels(rgba, l.Channels)

	switch l.Type {
	case native.Float32, native.Float16:
		values := make([]float32, len(pixels))
		for i, p := range pixels {
			values[i] = float32(l.Norm.apply(p))
		}
		return term.PackValues(l.Type, values)
	case native.UInt8:
		if !l.Quant.IsQuantized() {
			return pixels, nil
		}
		out := make([]uint8, len(pixels))
		for i, p := range pixels {
			out[i] = uint8(clamp(l.Quant.Quantize(l.Norm.apply(p), i%l.Channels), 0, math.MaxUint8))
		}
		return out, nil
	case native.Int8:
		out := make([]int8, len(pixels))
		for i, p := range pixels {
			if l.Quant.IsQuantized() {
				out[i] = int8(clamp(l.Quant.Quantize(l.Norm.apply(p), i%l.Channels), math.MinInt8, math.MaxInt8))
			} else {
				out[i] = int8(int(p) - 128)
			}
		}
		return term.PackValues(native.Int8, out)
	default:
		return nil, fmt.Errorf("%w: element type %s", ErrInvalidLayout, l.Type)
	}
}

// Preprocess decodes data and tensorizes it into l.
func Preprocess(data []byte, l Layout) ([]byte, error) {
	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	return Tensorize(img, l)
}

// channels flattens rgba to HWC with 3 (RGB) or 1 (luma) channels.
func channels(rgba *image.RGBA, n int) []uint8 {
	b := rgba.Bounds()
	out := make([]uint8, 0, b.Dx()*b.Dy()*n)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := rgba.Pix[(y-b.Min.Y)*rgba.Stride:]
		for x := 0; x < b.Dx(); x++ {
			r, g, bl := row[4*x], row[4*x+1], row[4*x+2]
			if n == 1 {
				out = append(out, color.GrayModel.Convert(color.RGBA{r, g, bl, 0xff}).(color.Gray).Y)
				continue
			}
			out = append(out, r, g, bl)
		}
	}
	return out
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
