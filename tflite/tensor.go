package tflite

import (
	"tflitebridge/handle"
	"tflitebridge/native"
	"tflitebridge/status"
	"tflitebridge/term"
)

// tensorRef is the resource behind a tensor handle. It does not own the
// tensor; the interpreter does.
type tensorRef struct {
	interp handle.Handle
	tensor native.Tensor
	index  int
}

// TensorInfo is everything the bridge knows about a tensor.
type TensorInfo struct {
	Name         string                  `json:"name" yaml:"name"`
	Index        int                     `json:"index" yaml:"index"`
	Type         string                  `json:"type" yaml:"type"`
	Shape        term.Shape              `json:"shape" yaml:"shape"`
	Dims         term.Shape              `json:"dims" yaml:"dims"`
	ByteSize     int                     `json:"byte_size" yaml:"byte_size"`
	Quantization term.QuantizationParams `json:"quantization" yaml:"quantization"`
	Sparsity     *term.Sparsity          `json:"sparsity,omitempty" yaml:"sparsity,omitempty"`
	Allocated    bool                    `json:"allocated" yaml:"allocated"`
}

func (r *Runtime) tensor(op string, th handle.Handle) (*tensorRef, error) {
	ref, err := r.tensors.Resolve(th)
	if err != nil || ref.tensor == nil {
		return nil, status.InvalidHandle(op)
	}
	return ref, nil
}

// TensorType returns the element type.
func (r *Runtime) TensorType(th handle.Handle) (native.TensorType, error) {
	ref, err := r.tensor("tensor.type", th)
	if err != nil {
		return native.NoType, err
	}
	return ref.tensor.Type(), nil
}

// TensorName returns the tensor name.
func (r *Runtime) TensorName(th handle.Handle) (string, error) {
	ref, err := r.tensor("tensor.name", th)
	if err != nil {
		return "", err
	}
	return ref.tensor.Name(), nil
}

// TensorIndex returns the interpreter-wide index, or -1 when the engine did
// not report one.
func (r *Runtime) TensorIndex(th handle.Handle) (int, error) {
	ref, err := r.tensor("tensor.index", th)
	if err != nil {
		return 0, err
	}
	return ref.index, nil
}

// TensorShape returns the shape signature when the model declares one and
// the fixed shape otherwise. Dynamic axes are -1.
func (r *Runtime) TensorShape(th handle.Handle) (term.Shape, error) {
	ref, err := r.tensor("tensor.shape", th)
	if err != nil {
		return nil, err
	}
	return term.EncodeShape(ref.tensor), nil
}

// TensorDims returns the fixed shape.
func (r *Runtime) TensorDims(th handle.Handle) (term.Shape, error) {
	ref, err := r.tensor("tensor.dims", th)
	if err != nil {
		return nil, err
	}
	return term.EncodeDims(ref.tensor), nil
}

// TensorQuantization returns the affine quantization parameters. They are
// empty for tensors that are not quantized.
func (r *Runtime) TensorQuantization(th handle.Handle) (term.QuantizationParams, error) {
	ref, err := r.tensor("tensor.quantization", th)
	if err != nil {
		return term.QuantizationParams{}, err
	}
	return term.EncodeQuantization(ref.tensor), nil
}

// TensorSparsity returns nil for dense tensors.
func (r *Runtime) TensorSparsity(th handle.Handle) (*term.Sparsity, error) {
	ref, err := r.tensor("tensor.sparsity", th)
	if err != nil {
		return nil, err
	}
	return term.EncodeSparsity(ref.tensor), nil
}

// TensorBytes copies the tensor buffer. An unallocated tensor yields an
// empty slice.
func (r *Runtime) TensorBytes(th handle.Handle) ([]byte, error) {
	ref, err := r.tensor("tensor.bytes", th)
	if err != nil {
		return nil, err
	}
	return term.EncodeBytes(ref.tensor), nil
}

// SetTensorBytes copies b into the tensor buffer. b must be exactly
// ByteSize bytes and the tensor must be allocated.
func (r *Runtime) SetTensorBytes(th handle.Handle, b []byte) error {
	const op = "tensor.set_bytes"
	ref, err := r.tensor(op, th)
	if err != nil {
		return err
	}
	return status.WithOp(op, term.DecodeBytes(ref.tensor, b))
}

// TensorValues decodes the buffer into a typed slice ([]float32, []int8,
// []string, ...).
func (r *Runtime) TensorValues(th handle.Handle) (any, error) {
	const op = "tensor.values"
	ref, err := r.tensor(op, th)
	if err != nil {
		return nil, err
	}
	v, err := term.EncodeValues(ref.tensor)
	if err != nil {
		return nil, status.WithOp(op, err)
	}
	return v, nil
}

// TensorFloats returns the values as float64, dequantized for affine
// quantized integer tensors.
func (r *Runtime) TensorFloats(th handle.Handle) ([]float64, error) {
	const op = "tensor.floats"
	ref, err := r.tensor(op, th)
	if err != nil {
		return nil, err
	}
	v, err := term.Float64s(ref.tensor)
	if err != nil {
		return nil, status.WithOp(op, err)
	}
	return v, nil
}

// SetTensorValues packs a typed slice into the tensor buffer. []float32 is
// accepted for half precision tensors.
func (r *Runtime) SetTensorValues(th handle.Handle, values any) error {
	const op = "tensor.set_values"
	ref, err := r.tensor(op, th)
	if err != nil {
		return err
	}
	b, err := term.PackValues(ref.tensor.Type(), values)
	if err != nil {
		return status.WithOp(op, err)
	}
	return status.WithOp(op, term.DecodeBytes(ref.tensor, b))
}

// TensorInfo gathers the tensor's metadata in one call.
func (r *Runtime) TensorInfo(th handle.Handle) (TensorInfo, error) {
	const op = "tensor.info"
	ref, err := r.tensor(op, th)
	if err != nil {
		return TensorInfo{}, err
	}
	t := ref.tensor
	return TensorInfo{
		Name:         t.Name(),
		Index:        ref.index,
		Type:         t.Type().String(),
		Shape:        term.EncodeShape(t),
		Dims:         term.EncodeDims(t),
		ByteSize:     t.ByteSize(),
		Quantization: term.EncodeQuantization(t),
		Sparsity:     term.EncodeSparsity(t),
		Allocated:    t.Data() != nil,
	}, nil
}
