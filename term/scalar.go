// Package term converts native tensor data and metadata into Go values.
//
// Every function here reads engine-owned memory through native views and
// returns freshly allocated Go values; nothing returned aliases native memory.
package term

import (
	"math"
	"unsafe"

	"github.com/x448/float16"

	"tflitebridge/native"
	"tflitebridge/status"
)

// EncodeScalar reads one element of type t at p. Float16 and BFloat16 widen
// to float32. Types without a fixed-size host representation fail with
// status.ErrUnsupportedType.
func EncodeScalar(p unsafe.Pointer, t native.TensorType) (any, error) {
	if p == nil {
		return nil, status.New("term.scalar", status.KindInvalidInput, status.ReasonNoInputData)
	}
	switch t {
	case native.Bool:
		return *(*bool)(p), nil
	case native.Int8:
		return *(*int8)(p), nil
	case native.UInt8:
		return *(*uint8)(p), nil
	case native.Int16:
		return *(*int16)(p), nil
	case native.UInt16:
		return *(*uint16)(p), nil
	case native.Int32:
		return *(*int32)(p), nil
	case native.UInt32:
		return *(*uint32)(p), nil
	case native.Int64:
		return *(*int64)(p), nil
	case native.UInt64:
		return *(*uint64)(p), nil
	case native.Float16:
		return halfToFloat(*(*uint16)(p)), nil
	case native.BFloat16:
		return brainToFloat(*(*uint16)(p)), nil
	case native.Float32:
		return *(*float32)(p), nil
	case native.Float64:
		return *(*float64)(p), nil
	case native.Complex64:
		return *(*complex64)(p), nil
	case native.Complex128:
		return *(*complex128)(p), nil
	default:
		return nil, unsupported("term.scalar", t)
	}
}

func unsupported(op string, t native.TensorType) error {
	return status.Errorf(op, status.KindUnsupportedType, "%s: %s", status.ReasonUnsupportedType, t)
}

func halfToFloat(bits uint16) float32 {
	return float16.Frombits(bits).Float32()
}

func floatToHalf(f float32) uint16 {
	return float16.Fromfloat32(f).Bits()
}

// bfloat16 is the upper half of an IEEE float32.
func brainToFloat(bits uint16) float32 {
	return math.Float32frombits(uint32(bits) << 16)
}

func floatToBrain(f float32) uint16 {
	return uint16(math.Float32bits(f) >> 16)
}
