package term

import (
	"unsafe"

	"tflitebridge/native"
)

// fakeTensor is a pure-Go native.Tensor backed by Go memory.
type fakeTensor struct {
	typ      native.TensorType
	name     string
	dims     []int32
	dimsSig  []int32
	buf      []byte
	size     int
	quant    native.Quantization
	sparsity *native.Sparsity
}

func (f *fakeTensor) Type() native.TensorType { return f.typ }
func (f *fakeTensor) Name() string            { return f.name }
func (f *fakeTensor) NumDims() int            { return len(f.dims) }
func (f *fakeTensor) Dim(i int) int           { return int(f.dims[i]) }
func (f *fakeTensor) Dims() native.IntArray   { return native.IntArrayOf(f.dims) }
func (f *fakeTensor) DimsSignature() native.IntArray {
	return native.IntArrayOf(f.dimsSig)
}
func (f *fakeTensor) ByteSize() int {
	if f.buf != nil {
		return len(f.buf)
	}
	return f.size
}
func (f *fakeTensor) Data() unsafe.Pointer {
	if len(f.buf) == 0 {
		return nil
	}
	return unsafe.Pointer(&f.buf[0])
}
func (f *fakeTensor) Quantization() native.Quantization { return f.quant }
func (f *fakeTensor) Sparsity() *native.Sparsity        { return f.sparsity }
