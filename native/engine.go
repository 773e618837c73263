package native

import (
	"fmt"
	"unsafe"

	"github.com/mattn/go-tflite/delegates"
)

// Engine creates native models and interpreters.
type Engine interface {
	// NewModel loads a model from a flatbuffer. The engine keeps its own copy
	// of data for as long as the model lives.
	NewModel(data []byte) (Model, error)
	// NewModelFromFile loads a model from a path on disk.
	NewModelFromFile(path string) (Model, error)
	// NewInterpreter builds an interpreter over model. The model must outlive it.
	NewInterpreter(model Model, opts Options) (Interpreter, error)
	// Version reports the engine version string.
	Version() string
}

// Model is a loaded flatbuffer model.
type Model interface {
	Delete()
}

// Options configure interpreter creation.
type Options struct {
	// NumThreads is the CPU thread count. -1 lets the engine decide.
	NumThreads int
	// Delegates are attached in order. Ownership stays with the caller.
	Delegates []delegates.Delegater
	// ErrorReporter receives formatted engine error messages.
	ErrorReporter func(msg string)
}

// Status mirrors TfLiteStatus.
type Status int

const (
	StatusOk Status = iota
	StatusError
	StatusDelegateError
	StatusApplicationError
	StatusDelegateDataNotFound
	StatusDelegateDataWriteError
	StatusDelegateDataReadError
	StatusUnresolvedOps
	StatusCancelled
)

var statusNames = [...]string{
	StatusOk:                     "ok",
	StatusError:                  "error",
	StatusDelegateError:          "delegate error",
	StatusApplicationError:       "application error",
	StatusDelegateDataNotFound:   "delegate data not found",
	StatusDelegateDataWriteError: "delegate data write error",
	StatusDelegateDataReadError:  "delegate data read error",
	StatusUnresolvedOps:          "unresolved ops",
	StatusCancelled:              "cancelled",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Interpreter is a native interpreter. Implementations are not safe for
// concurrent use.
type Interpreter interface {
	AllocateTensors() Status
	Invoke() Status
	ResizeInputTensor(index int, dims []int32) Status

	InputTensorCount() int
	OutputTensorCount() int
	InputTensor(index int) Tensor
	OutputTensor(index int) Tensor
	// TensorCount is the total number of tensors in the primary subgraph.
	TensorCount() int
	// Tensor returns the tensor at an interpreter-wide index, or nil.
	Tensor(index int) Tensor
	// InputTensorIndices returns interpreter-wide indices of the inputs.
	InputTensorIndices() IntArray
	// OutputTensorIndices returns interpreter-wide indices of the outputs.
	OutputTensorIndices() IntArray

	SignatureCount() int
	SignatureKey(index int) string
	// Signature returns the named inputs and outputs of a signature, mapped
	// to interpreter-wide tensor indices.
	Signature(key string) (inputs, outputs []SignatureTensor, ok bool)

	Delete()
}

// SignatureTensor is one named input or output of a signature.
type SignatureTensor struct {
	Name  string
	Index int
}

// Tensor is a view of a native tensor owned by an interpreter.
type Tensor interface {
	Type() TensorType
	Name() string
	NumDims() int
	Dim(i int) int
	// Dims returns the fixed shape.
	Dims() IntArray
	// DimsSignature returns the declared shape with -1 for dynamic axes. It
	// is null when the model carries no signature.
	DimsSignature() IntArray
	ByteSize() int
	// Data is the tensor buffer, nil until tensors are allocated.
	Data() unsafe.Pointer
	Quantization() Quantization
	// Sparsity returns nil for dense tensors.
	Sparsity() *Sparsity
}
