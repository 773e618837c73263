package term

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unsafe"

	"tflitebridge/native"
	"tflitebridge/status"
)

// EncodeBytes copies the tensor buffer. An unallocated tensor yields an
// empty slice.
func EncodeBytes(t native.Tensor) []byte {
	return copyOf[byte](t.Data(), t.ByteSize())
}

// DecodeBytes validates src against t and copies it into the native buffer.
// It never writes through a null buffer and never past ByteSize.
func DecodeBytes(t native.Tensor, src []byte) error {
	const op = "term.decode_bytes"
	dst := t.Data()
	if dst == nil {
		return status.New(op, status.KindInvalidInput, status.ReasonNotAllocated)
	}
	if src == nil {
		return status.New(op, status.KindInvalidInput, status.ReasonNoInputData)
	}
	if len(src) != t.ByteSize() {
		return status.Wrap(op, status.KindInvalidInput, status.ReasonByteSize,
			fmt.Errorf("got %d bytes, tensor holds %d", len(src), t.ByteSize()))
	}
	copy(unsafe.Slice((*byte)(dst), len(src)), src)
	return nil
}

// EncodeValues copies the whole tensor buffer into a typed Go slice:
// []float32 for Float32, Float16 and BFloat16, []int8 for Int8, []string for
// String, and so on.
func EncodeValues(t native.Tensor) (any, error) {
	p, typ := t.Data(), t.Type()
	if typ == native.String {
		return EncodeStrings(EncodeBytes(t))
	}
	size := typ.Size()
	if size == 0 {
		return nil, unsupported("term.values", typ)
	}
	n := t.ByteSize() / size

	switch typ {
	case native.Bool:
		return copyOf[bool](p, n), nil
	case native.Int8:
		return copyOf[int8](p, n), nil
	case native.UInt8:
		return copyOf[uint8](p, n), nil
	case native.Int16:
		return copyOf[int16](p, n), nil
	case native.UInt16:
		return copyOf[uint16](p, n), nil
	case native.Int32:
		return copyOf[int32](p, n), nil
	case native.UInt32:
		return copyOf[uint32](p, n), nil
	case native.Int64:
		return copyOf[int64](p, n), nil
	case native.UInt64:
		return copyOf[uint64](p, n), nil
	case native.Float16:
		return EncodeSequence(p, n, halfToFloat), nil
	case native.BFloat16:
		return EncodeSequence(p, n, brainToFloat), nil
	case native.Float32:
		return copyOf[float32](p, n), nil
	case native.Float64:
		return copyOf[float64](p, n), nil
	case native.Complex64:
		return copyOf[complex64](p, n), nil
	case native.Complex128:
		return copyOf[complex128](p, n), nil
	default:
		return nil, unsupported("term.values", typ)
	}
}

// Float64s returns the tensor values as float64, dequantizing integer
// tensors with their affine params when present.
func Float64s(t native.Tensor) ([]float64, error) {
	vals, err := EncodeValues(t)
	if err != nil {
		return nil, err
	}
	q := EncodeQuantization(t)
	switch v := vals.(type) {
	case []float32:
		return mapSlice(v, func(f float32) float64 { return float64(f) }), nil
	case []float64:
		return v, nil
	case []int8:
		return dequantize(v, q), nil
	case []uint8:
		return dequantize(v, q), nil
	case []int16:
		return dequantize(v, q), nil
	case []int32:
		return dequantize(v, q), nil
	case []int64:
		return dequantize(v, q), nil
	default:
		return nil, unsupported("term.float64s", t.Type())
	}
}

type integer interface {
	~int8 | ~uint8 | ~int16 | ~int32 | ~int64
}

func dequantize[E integer](v []E, q QuantizationParams) []float64 {
	out := make([]float64, len(v))
	for i, e := range v {
		out[i] = q.Dequantize(int64(e), 0)
	}
	return out
}

// PackValues serializes a typed Go slice into the byte layout of tensor type
// t. []float32 packs into Float32, Float16 and BFloat16 tensors; every other
// slice type must match t exactly.
func PackValues(t native.TensorType, values any) ([]byte, error) {
	const op = "term.pack"
	switch v := values.(type) {
	case []float32:
		switch t {
		case native.Float32:
			return packFixed(v)
		case native.Float16:
			return packFixed(mapSlice(v, floatToHalf))
		case native.BFloat16:
			return packFixed(mapSlice(v, floatToBrain))
		}
	case []string:
		if t == native.String {
			return PackStrings(v), nil
		}
	case []bool:
		if t == native.Bool {
			return packFixed(v)
		}
	case []int8:
		if t == native.Int8 {
			return packFixed(v)
		}
	case []uint8:
		if t == native.UInt8 {
			return bytes.Clone(v), nil
		}
	case []int16:
		if t == native.Int16 {
			return packFixed(v)
		}
	case []uint16:
		if t == native.UInt16 {
			return packFixed(v)
		}
	case []int32:
		if t == native.Int32 {
			return packFixed(v)
		}
	case []uint32:
		if t == native.UInt32 {
			return packFixed(v)
		}
	case []int64:
		if t == native.Int64 {
			return packFixed(v)
		}
	case []uint64:
		if t == native.UInt64 {
			return packFixed(v)
		}
	case []float64:
		if t == native.Float64 {
			return packFixed(v)
		}
	default:
		return nil, status.Errorf(op, status.KindUnsupportedType, "%s: %T", status.ReasonUnsupportedType, values)
	}
	return nil, status.Errorf(op, status.KindInvalidInput, "cannot pack %T into %s tensor", values, t)
}

func packFixed(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.NativeEndian, v); err != nil {
		return nil, status.Wrap("term.pack", status.KindInvalidInput, status.ReasonNoInputData, err)
	}
	return buf.Bytes(), nil
}

func mapSlice[E, V any](s []E, f func(E) V) []V {
	out := make([]V, len(s))
	for i, e := range s {
		out[i] = f(e)
	}
	return out
}

// EncodeStrings decodes the string tensor layout: an int32 count N, N+1
// int32 offsets from the start of the buffer, then the payload.
func EncodeStrings(b []byte) ([]string, error) {
	const op = "term.strings"
	if len(b) == 0 {
		return []string{}, nil
	}
	if len(b) < 4 {
		return nil, status.New(op, status.KindInvalidInput, status.ReasonInvalidTensor)
	}
	n := int(int32(binary.NativeEndian.Uint32(b)))
	header := 4 * (n + 2)
	if n < 0 || header > len(b) {
		return nil, status.New(op, status.KindInvalidInput, status.ReasonInvalidTensor)
	}
	offset := func(i int) int {
		return int(int32(binary.NativeEndian.Uint32(b[4*(i+1):])))
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		start, end := offset(i), offset(i+1)
		if start < header || end < start || end > len(b) {
			return nil, status.New(op, status.KindInvalidInput, status.ReasonInvalidTensor)
		}
		out[i] = string(b[start:end])
	}
	return out, nil
}

// PackStrings is the inverse of EncodeStrings.
func PackStrings(s []string) []byte {
	header := 4 * (len(s) + 2)
	total := header
	for _, v := range s {
		total += len(v)
	}
	out := make([]byte, header, total)
	binary.NativeEndian.PutUint32(out, uint32(len(s)))
	pos := header
	for i, v := range s {
		binary.NativeEndian.PutUint32(out[4*(i+1):], uint32(pos))
		out = append(out, v...)
		pos += len(v)
	}
	binary.NativeEndian.PutUint32(out[4*(len(s)+1):], uint32(pos))
	return out
}
