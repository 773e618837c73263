package term

import (
	"unsafe"

	"tflitebridge/native"
)

// EncodeSequence converts n contiguous elements of type E at p into a slice
// of V. A null pointer or non-positive count yields an empty, non-nil slice.
func EncodeSequence[E, V any](p unsafe.Pointer, n int, enc func(E) V) []V {
	if p == nil || n <= 0 {
		return []V{}
	}
	src := unsafe.Slice((*E)(p), n)
	out := make([]V, n)
	for i, e := range src {
		out[i] = enc(e)
	}
	return out
}

// Int32s widens a native int32 array to int64.
func Int32s(a native.IntArray) []int64 {
	return EncodeSequence(a.Data, a.Len, func(v int32) int64 { return int64(v) })
}

// Float32s widens a native float32 array to float64.
func Float32s(a native.FloatArray) []float64 {
	return EncodeSequence(a.Data, a.Len, func(v float32) float64 { return float64(v) })
}

func identity[E any](e E) E { return e }

func copyOf[E any](p unsafe.Pointer, n int) []E {
	return EncodeSequence(p, n, identity[E])
}
