// Package native defines the boundary between tflitebridge and the
// TensorFlow Lite engine.
//
// The interfaces here are implemented by package capi over the C API. Values
// crossing the boundary are raw views into engine-owned memory (IntArray,
// FloatArray) and stay valid only while the owning interpreter is alive and
// its tensors are not reallocated.
package native

import (
	"fmt"
	"unsafe"
)

// TensorType mirrors TfLiteType.
type TensorType int

// Element type codes. Values match the C enum.
const (
	NoType     TensorType = 0
	Float32    TensorType = 1
	Int32      TensorType = 2
	UInt8      TensorType = 3
	Int64      TensorType = 4
	String     TensorType = 5
	Bool       TensorType = 6
	Int16      TensorType = 7
	Complex64  TensorType = 8
	Int8       TensorType = 9
	Float16    TensorType = 10
	Float64    TensorType = 11
	Complex128 TensorType = 12
	UInt64     TensorType = 13
	Resource   TensorType = 14
	Variant    TensorType = 15
	UInt32     TensorType = 16
	UInt16     TensorType = 17
	Int4       TensorType = 18
	BFloat16   TensorType = 19
)

var typeNames = [...]string{
	NoType:     "notype",
	Float32:    "float32",
	Int32:      "int32",
	UInt8:      "uint8",
	Int64:      "int64",
	String:     "string",
	Bool:       "bool",
	Int16:      "int16",
	Complex64:  "complex64",
	Int8:       "int8",
	Float16:    "float16",
	Float64:    "float64",
	Complex128: "complex128",
	UInt64:     "uint64",
	Resource:   "resource",
	Variant:    "variant",
	UInt32:     "uint32",
	UInt16:     "uint16",
	Int4:       "int4",
	BFloat16:   "bfloat16",
}

// String returns the lowercase type name, e.g. "float32".
func (t TensorType) String() string {
	if t >= 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// Size returns the element size in bytes, or 0 for types without a fixed
// element size (string, resource, variant, int4, notype).
func (t TensorType) Size() int {
	switch t {
	case Bool, Int8, UInt8:
		return 1
	case Int16, UInt16, Float16, BFloat16:
		return 2
	case Int32, UInt32, Float32:
		return 4
	case Int64, UInt64, Float64, Complex64:
		return 8
	case Complex128:
		return 16
	default:
		return 0
	}
}

// ParseTensorType is the inverse of String.
func ParseTensorType(s string) (TensorType, bool) {
	for i, name := range typeNames {
		if name == s {
			return TensorType(i), true
		}
	}
	return NoType, false
}

// IntArray is a view of a native int32 array (TfLiteIntArray data).
// A zero IntArray means the native pointer was null.
type IntArray struct {
	Data unsafe.Pointer
	Len  int
}

// IsNull reports whether the underlying native pointer was null.
func (a IntArray) IsNull() bool { return a.Data == nil }

// FloatArray is a view of a native float32 array (TfLiteFloatArray data).
type FloatArray struct {
	Data unsafe.Pointer
	Len  int
}

// IsNull reports whether the underlying native pointer was null.
func (a FloatArray) IsNull() bool { return a.Data == nil }

// QuantizationType mirrors TfLiteQuantizationType.
type QuantizationType int

const (
	NoQuantization     QuantizationType = 0
	AffineQuantization QuantizationType = 1
)

// Quantization is the native quantization record of a tensor. Scale and
// ZeroPoint are only meaningful when Type is AffineQuantization.
type Quantization struct {
	Type               QuantizationType
	Scale              FloatArray
	ZeroPoint          IntArray
	QuantizedDimension int
}

// DimensionType mirrors TfLiteDimensionType.
type DimensionType int

const (
	DimDense     DimensionType = 0
	DimSparseCSR DimensionType = 1
)

// DimMetadata is one entry of TfLiteSparsity.dim_metadata.
type DimMetadata struct {
	Format        DimensionType
	DenseSize     int
	ArraySegments IntArray
	ArrayIndices  IntArray
}

// Sparsity is the native sparsity record of a tensor.
type Sparsity struct {
	TraversalOrder IntArray
	BlockMap       IntArray
	DimMetadata    []DimMetadata
}
