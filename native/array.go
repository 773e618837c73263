package native

import "unsafe"

// IntArrayOf returns a view of s. Used by pure-Go engines and tests; the view
// keeps s reachable only as long as the IntArray itself is reachable.
func IntArrayOf(s []int32) IntArray {
	if s == nil {
		return IntArray{}
	}
	if len(s) == 0 {
		return IntArray{Data: unsafe.Pointer(&[1]int32{}), Len: 0}
	}
	return IntArray{Data: unsafe.Pointer(unsafe.SliceData(s)), Len: len(s)}
}

// FloatArrayOf returns a view of s.
func FloatArrayOf(s []float32) FloatArray {
	if s == nil {
		return FloatArray{}
	}
	if len(s) == 0 {
		return FloatArray{Data: unsafe.Pointer(&[1]float32{}), Len: 0}
	}
	return FloatArray{Data: unsafe.Pointer(unsafe.SliceData(s)), Len: len(s)}
}

// Int32s copies the array into a Go slice. A null array yields nil.
func (a IntArray) Int32s() []int32 {
	if a.Data == nil {
		return nil
	}
	out := make([]int32, a.Len)
	if a.Len > 0 {
		copy(out, unsafe.Slice((*int32)(a.Data), a.Len))
	}
	return out
}
