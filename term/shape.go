package term

import (
	"math"

	"tflitebridge/native"
)

// Shape is a tensor shape. Dynamic axes are -1.
type Shape []int64

// NumElements returns the product of the dimensions, or -1 if any axis is
// dynamic. An empty shape is a scalar with one element.
func (s Shape) NumElements() int64 {
	n := int64(1)
	for _, d := range s {
		if d < 0 {
			return -1
		}
		n *= d
	}
	return n
}

// EncodeShape returns the declared shape signature when the model carries a
// non-empty one, otherwise the fixed dims.
func EncodeShape(t native.Tensor) Shape {
	if sig := t.DimsSignature(); !sig.IsNull() && sig.Len > 0 {
		return Shape(Int32s(sig))
	}
	return EncodeDims(t)
}

// EncodeDims returns the fixed dims, ignoring any shape signature.
func EncodeDims(t native.Tensor) Shape {
	return Shape(Int32s(t.Dims()))
}

// QuantizationParams is the affine quantization of a tensor:
// real = scale * (quantized - zero_point).
type QuantizationParams struct {
	Scale              []float64 `json:"scale" yaml:"scale"`
	ZeroPoint          []int64   `json:"zero_point" yaml:"zero_point"`
	QuantizedDimension int       `json:"quantized_dimension" yaml:"quantized_dimension"`
}

// IsQuantized reports whether any scale is present.
func (q QuantizationParams) IsQuantized() bool {
	return len(q.Scale) > 0
}

// Dequantize maps a quantized value on channel ch to a real value. Per-tensor
// params apply to every channel.
func (q QuantizationParams) Dequantize(v int64, ch int) float64 {
	if len(q.Scale) == 0 {
		return float64(v)
	}
	if ch < 0 || ch >= len(q.Scale) {
		ch = 0
	}
	var zp int64
	if ch < len(q.ZeroPoint) {
		zp = q.ZeroPoint[ch]
	}
	return q.Scale[ch] * float64(v-zp)
}

// Quantize maps a real value on channel ch to its quantized form, rounding
// to nearest. Without scales the value is only rounded.
func (q QuantizationParams) Quantize(f float64, ch int) int64 {
	if len(q.Scale) == 0 {
		return int64(math.Round(f))
	}
	if ch < 0 || ch >= len(q.Scale) {
		ch = 0
	}
	var zp int64
	if ch < len(q.ZeroPoint) {
		zp = q.ZeroPoint[ch]
	}
	return int64(math.Round(f/q.Scale[ch])) + zp
}

// EncodeQuantization returns the tensor's affine parameters. Tensors without
// affine quantization yield empty sequences and dimension 0.
func EncodeQuantization(t native.Tensor) QuantizationParams {
	q := t.Quantization()
	if q.Type != native.AffineQuantization {
		return QuantizationParams{Scale: []float64{}, ZeroPoint: []int64{}}
	}
	return QuantizationParams{
		Scale:              Float32s(q.Scale),
		ZeroPoint:          Int32s(q.ZeroPoint),
		QuantizedDimension: q.QuantizedDimension,
	}
}
