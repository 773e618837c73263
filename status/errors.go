// Package status converts native failures into tagged host results.
//
// Every operation in tflitebridge reports failure as a *Error carrying a Kind
// and a human-readable reason drawn from a fixed vocabulary. Callers check
// the kind with errors.Is against the sentinels declared here.
package status

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// KindUnknown is the zero Kind. It never appears on errors built by this package.
	KindUnknown Kind = iota
	// KindInvalidHandle means the handle does not refer to a live resource.
	KindInvalidHandle
	// KindAllocation means a host or native allocation failed.
	KindAllocation
	// KindInvalidInput means the caller supplied data the operation cannot accept.
	KindInvalidInput
	// KindIndexOutOfRange means a positional index exceeded the resource's count.
	KindIndexOutOfRange
	// KindInvalidModel means the model bytes could not be loaded.
	KindInvalidModel
	// KindNative means the engine returned a non-ok status.
	KindNative
	// KindUnsupportedType means the element type has no host representation.
	KindUnsupportedType
	// KindUnavailable means the native engine is not compiled into this binary.
	KindUnavailable
)

var kindNames = map[Kind]string{
	KindUnknown:         "unknown",
	KindInvalidHandle:   "invalid_handle",
	KindAllocation:      "allocation_error",
	KindInvalidInput:    "invalid_input",
	KindIndexOutOfRange: "index_out_of_range",
	KindInvalidModel:    "invalid_model",
	KindNative:          "native_failure",
	KindUnsupportedType: "unsupported_type",
	KindUnavailable:     "unavailable",
}

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Reason vocabulary. Reasons are stable strings; callers may match on them.
const (
	ReasonInvalidHandle   = "invalid handle"
	ReasonCannotAccess    = "cannot access resource"
	ReasonInvalidTensor   = "invalid tensor"
	ReasonAllocShape      = "cannot allocate memory for storing tensor shape"
	ReasonAllocQuant      = "cannot allocate memory for storing quantization params"
	ReasonAllocSparsity   = "cannot allocate memory for storing sparsity params"
	ReasonAllocBinary     = "cannot allocate enough memory for the tensor"
	ReasonAllocResource   = "cannot allocate resource"
	ReasonNotAllocated    = "tensor is not allocated yet? Please call AllocateTensors first"
	ReasonNoInputData     = "cannot get input data"
	ReasonByteSize        = "input size does not match tensor byte size"
	ReasonIndexOutOfRange = "index out of range"
	ReasonEmptyModel      = "model data is empty"
	ReasonLoadModel       = "cannot load model"
	ReasonCreateFailed    = "cannot create interpreter"
	ReasonAllocateFailed  = "failed to allocate tensors"
	ReasonInvokeFailed    = "failed to invoke interpreter"
	ReasonCancelled       = "invocation cancelled"
	ReasonResizeFailed    = "failed to resize input tensor"
	ReasonThreadCount     = "thread count must be -1 or greater"
	ReasonUnsupportedType = "unsupported tensor type"
	ReasonUnavailable     = "tensorflow lite is not available in this build"
)

// Sentinel errors, one per Kind. *Error matches the sentinel of its kind
// under errors.Is.
var (
	ErrInvalidHandle   = errors.New("invalid handle")
	ErrAllocation      = errors.New("allocation error")
	ErrInvalidInput    = errors.New("invalid input")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrInvalidModel    = errors.New("invalid model")
	ErrNative          = errors.New("native failure")
	ErrUnsupportedType = errors.New("unsupported type")
	ErrUnavailable     = errors.New("tensorflow lite unavailable")
)

var sentinels = map[Kind]error{
	KindInvalidHandle:   ErrInvalidHandle,
	KindAllocation:      ErrAllocation,
	KindInvalidInput:    ErrInvalidInput,
	KindIndexOutOfRange: ErrIndexOutOfRange,
	KindInvalidModel:    ErrInvalidModel,
	KindNative:          ErrNative,
	KindUnsupportedType: ErrUnsupportedType,
	KindUnavailable:     ErrUnavailable,
}

// Error is a failed operation.
type Error struct {
	Op     string // Operation that failed (e.g., "invoke", "tensor.shape")
	Kind   Kind   // Failure class
	Reason string // Reason from the vocabulary above, or native detail
	Err    error  // Wrapped underlying error (if any)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tflite %s: %s (%s): %v", e.Op, e.Reason, e.Kind, e.Err)
	}
	return fmt.Sprintf("tflite %s: %s (%s)", e.Op, e.Reason, e.Kind)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// New creates an *Error without a cause.
func New(op string, kind Kind, reason string) *Error {
	return &Error{Op: op, Kind: kind, Reason: reason}
}

// Wrap creates an *Error around err. A nil err yields the same as New.
func Wrap(op string, kind Kind, reason string, err error) *Error {
	return &Error{Op: op, Kind: kind, Reason: reason, Err: err}
}

// Errorf creates an *Error with a formatted reason.
func Errorf(op string, kind Kind, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// InvalidHandle is the error every operation returns for a dead, unknown or
// null handle. Absent and null handles are not distinguished.
func InvalidHandle(op string) *Error {
	return New(op, KindInvalidHandle, ReasonInvalidHandle)
}

// WithOp returns err re-labelled with op when it is an *Error, or err unchanged.
// The original error is not mutated.
func WithOp(op string, err error) error {
	var se *Error
	if !errors.As(err, &se) {
		return err
	}
	cp := *se
	cp.Op = op
	return &cp
}

// KindOf returns the kind of the first *Error in err's chain. Errors that are
// one of the sentinels map to their kind; anything else is KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	for k, s := range sentinels {
		if errors.Is(err, s) {
			return k
		}
	}
	return KindUnknown
}

// ReasonOf returns the reason of the first *Error in err's chain, or
// err.Error() for foreign errors.
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Reason
	}
	return err.Error()
}
