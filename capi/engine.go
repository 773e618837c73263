//go:build cgo && !notflite

package capi

/*
#cgo LDFLAGS: -ltensorflowlite_c
#cgo linux LDFLAGS: -lm

#include <stdarg.h>
#include <stdint.h>
#include <stdio.h>
#include <stdlib.h>
#include <tensorflow/lite/c/c_api.h>
#include <tensorflow/lite/c/c_api_experimental.h>
#include <tensorflow/lite/c/common.h>

extern void goTfliteReport(uintptr_t handle, char* msg);

static void tfl_reporter(void* user_data, const char* format, va_list args) {
	char buf[1024];
	vsnprintf(buf, sizeof(buf), format, args);
	goTfliteReport((uintptr_t)user_data, buf);
}

static void tfl_options_set_reporter(TfLiteInterpreterOptions* o, uintptr_t h) {
	TfLiteInterpreterOptionsSetErrorReporter(o, tfl_reporter, (void*)h);
}

static TfLiteModel* tfl_model_create(const void* data, size_t size, uintptr_t h) {
	if (h == 0) {
		return TfLiteModelCreate(data, size);
	}
	return TfLiteModelCreateWithErrorReporter(data, size, tfl_reporter, (void*)h);
}

static TfLiteModel* tfl_model_create_from_file(const char* path, uintptr_t h) {
	if (h == 0) {
		return TfLiteModelCreateFromFile(path);
	}
	return TfLiteModelCreateFromFileWithErrorReporter(path, tfl_reporter, (void*)h);
}

static void tfl_options_add_delegate(TfLiteInterpreterOptions* o, void* d) {
	TfLiteInterpreterOptionsAddDelegate(o, d);
}

static int tfl_intarray_size(const TfLiteIntArray* a) { return a ? a->size : 0; }
static const int* tfl_intarray_data(const TfLiteIntArray* a) { return a ? a->data : NULL; }
static int tfl_floatarray_size(const TfLiteFloatArray* a) { return a ? a->size : 0; }
static const float* tfl_floatarray_data(const TfLiteFloatArray* a) { return a ? a->data : NULL; }

static const TfLiteIntArray* tfl_dims(const TfLiteTensor* t) { return t->dims; }
static const TfLiteIntArray* tfl_dims_signature(const TfLiteTensor* t) { return t->dims_signature; }
static int tfl_quant_type(const TfLiteTensor* t) { return t->quantization.type; }

static const TfLiteAffineQuantization* tfl_affine(const TfLiteTensor* t) {
	if (t->quantization.type != kTfLiteAffineQuantization) {
		return NULL;
	}
	return (const TfLiteAffineQuantization*)t->quantization.params;
}

static const TfLiteSparsity* tfl_sparsity(const TfLiteTensor* t) { return t->sparsity; }

static const TfLiteDimensionMetadata* tfl_dim_metadata(const TfLiteSparsity* s, int i) {
	return &s->dim_metadata[i];
}

static int tfl_dim_format(const TfLiteDimensionMetadata* d) { return (int)d->format; }
*/
import "C"

import (
	"runtime"
	"runtime/cgo"
	"sync"
	"unsafe"

	"tflitebridge/native"
	"tflitebridge/status"
)

var (
	initOnce sync.Once
	version  string
)

// Init records the linked library version. It is safe to call more than once.
func Init() {
	initOnce.Do(func() {
		version = C.GoString(C.TfLiteVersion())
	})
}

// Version returns the TensorFlow Lite library version.
func Version() string {
	Init()
	return version
}

// Available reports whether the C API is linked into this binary.
func Available() bool { return true }

// Engine is the C API engine. The zero value is not usable; call NewEngine.
type Engine struct {
	// ModelErrorReporter, when set, receives messages emitted while a model
	// is being parsed.
	ModelErrorReporter func(msg string)
}

// NewEngine returns the C API engine.
func NewEngine() *Engine {
	Init()
	return &Engine{}
}

// Version implements native.Engine.
func (e *Engine) Version() string { return Version() }

// model wraps a TfLiteModel pointer and, for in-memory models, the C copy of
// the flatbuffer that must outlive it.
type model struct {
	ptr  *C.TfLiteModel
	data unsafe.Pointer
	mu   sync.Mutex
}

// NewModel implements native.Engine.
func (e *Engine) NewModel(data []byte) (native.Model, error) {
	const op = "model.create"
	if len(data) == 0 {
		return nil, status.New(op, status.KindInvalidModel, status.ReasonEmptyModel)
	}

	buf := C.CBytes(data)
	rep := newReporter(e.ModelErrorReporter)
	defer rep.release()

	ptr := C.tfl_model_create(buf, C.size_t(len(data)), rep.cHandle())
	if ptr == nil {
		C.free(buf)
		return nil, status.Wrap(op, status.KindInvalidModel, status.ReasonLoadModel, rep.err())
	}
	return newModel(ptr, buf), nil
}

// NewModelFromFile implements native.Engine.
func (e *Engine) NewModelFromFile(path string) (native.Model, error) {
	const op = "model.create_from_file"

	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	rep := newReporter(e.ModelErrorReporter)
	defer rep.release()

	ptr := C.tfl_model_create_from_file(cPath, rep.cHandle())
	if ptr == nil {
		return nil, status.Wrap(op, status.KindInvalidModel, status.ReasonLoadModel, rep.errOr(path))
	}
	return newModel(ptr, nil), nil
}

func newModel(ptr *C.TfLiteModel, data unsafe.Pointer) *model {
	m := &model{ptr: ptr, data: data}
	runtime.SetFinalizer(m, func(m *model) {
		m.Delete()
	})
	return m
}

// Delete releases the model. Safe to call multiple times.
func (m *model) Delete() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ptr != nil {
		C.TfLiteModelDelete(m.ptr)
		m.ptr = nil
		if m.data != nil {
			C.free(m.data)
			m.data = nil
		}
		runtime.SetFinalizer(m, nil)
	}
}

// interpreter wraps a TfLiteInterpreter pointer.
type interpreter struct {
	ptr      *C.TfLiteInterpreter
	model    *model
	reporter cgo.Handle
	mu       sync.Mutex
	byPtr    map[*C.TfLiteTensor]int
}

// NewInterpreter implements native.Engine.
func (e *Engine) NewInterpreter(m native.Model, opts native.Options) (native.Interpreter, error) {
	const op = "interpreter.create"

	cm, ok := m.(*model)
	if !ok || cm == nil || cm.ptr == nil {
		return nil, status.New(op, status.KindInvalidModel, status.ReasonLoadModel)
	}

	o := C.TfLiteInterpreterOptionsCreate()
	if o == nil {
		return nil, status.New(op, status.KindAllocation, status.ReasonAllocResource)
	}
	defer C.TfLiteInterpreterOptionsDelete(o)

	if opts.NumThreads != 0 {
		C.TfLiteInterpreterOptionsSetNumThreads(o, C.int32_t(opts.NumThreads))
	}
	for _, d := range opts.Delegates {
		if d == nil || d.Ptr() == nil {
			continue
		}
		C.tfl_options_add_delegate(o, d.Ptr())
	}

	var h cgo.Handle
	if opts.ErrorReporter != nil {
		h = cgo.NewHandle(reportFunc(opts.ErrorReporter))
		C.tfl_options_set_reporter(o, C.uintptr_t(h))
	}

	ptr := C.TfLiteInterpreterCreate(cm.ptr, o)
	if ptr == nil {
		if h != 0 {
			h.Delete()
		}
		return nil, status.New(op, status.KindNative, status.ReasonCreateFailed)
	}

	it := &interpreter{ptr: ptr, model: cm, reporter: h}
	runtime.SetFinalizer(it, func(it *interpreter) {
		it.Delete()
	})
	return it, nil
}

// Delete releases the interpreter. The model is left to its owner.
func (it *interpreter) Delete() {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.ptr != nil {
		C.TfLiteInterpreterDelete(it.ptr)
		it.ptr = nil
		it.byPtr = nil
		if it.reporter != 0 {
			it.reporter.Delete()
			it.reporter = 0
		}
		runtime.SetFinalizer(it, nil)
	}
}

func (it *interpreter) AllocateTensors() native.Status {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.ptr == nil {
		return native.StatusError
	}
	return native.Status(C.TfLiteInterpreterAllocateTensors(it.ptr))
}

func (it *interpreter) Invoke() native.Status {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.ptr == nil {
		return native.StatusError
	}
	return native.Status(C.TfLiteInterpreterInvoke(it.ptr))
}

func (it *interpreter) ResizeInputTensor(index int, dims []int32) native.Status {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.ptr == nil {
		return native.StatusError
	}
	cdims := make([]C.int, len(dims))
	for i, d := range dims {
		cdims[i] = C.int(d)
	}
	var p *C.int
	if len(cdims) > 0 {
		p = &cdims[0]
	}
	return native.Status(C.TfLiteInterpreterResizeInputTensor(it.ptr, C.int32_t(index), p, C.int32_t(len(cdims))))
}

func (it *interpreter) InputTensorCount() int {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.ptr == nil {
		return 0
	}
	return int(C.TfLiteInterpreterGetInputTensorCount(it.ptr))
}

func (it *interpreter) OutputTensorCount() int {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.ptr == nil {
		return 0
	}
	return int(C.TfLiteInterpreterGetOutputTensorCount(it.ptr))
}

func (it *interpreter) InputTensor(index int) native.Tensor {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.ptr == nil {
		return nil
	}
	return wrapTensor(C.TfLiteInterpreterGetInputTensor(it.ptr, C.int32_t(index)))
}

func (it *interpreter) OutputTensor(index int) native.Tensor {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.ptr == nil {
		return nil
	}
	return wrapTensor(C.TfLiteInterpreterGetOutputTensor(it.ptr, C.int32_t(index)))
}

func (it *interpreter) Tensor(index int) native.Tensor {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.ptr == nil || index < 0 {
		return nil
	}
	return wrapTensor(C.TfLiteInterpreterGetTensor(it.ptr, C.int(index)))
}

func (it *interpreter) TensorCount() int {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.ptr == nil {
		return 0
	}
	return len(it.tensorIndexLocked())
}

// tensorIndexLocked maps every tensor of the primary subgraph to its index.
// The engine returns NULL past the last tensor. Must be called with it.mu held.
func (it *interpreter) tensorIndexLocked() map[*C.TfLiteTensor]int {
	if it.byPtr != nil {
		return it.byPtr
	}
	it.byPtr = make(map[*C.TfLiteTensor]int)
	for i := 0; ; i++ {
		t := C.TfLiteInterpreterGetTensor(it.ptr, C.int(i))
		if t == nil {
			break
		}
		it.byPtr[t] = i
	}
	return it.byPtr
}

func (it *interpreter) InputTensorIndices() native.IntArray {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.ptr == nil {
		return native.IntArray{}
	}
	p := C.TfLiteInterpreterInputTensorIndices(it.ptr)
	return native.IntArray{Data: unsafe.Pointer(p), Len: int(C.TfLiteInterpreterGetInputTensorCount(it.ptr))}
}

func (it *interpreter) OutputTensorIndices() native.IntArray {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.ptr == nil {
		return native.IntArray{}
	}
	p := C.TfLiteInterpreterOutputTensorIndices(it.ptr)
	return native.IntArray{Data: unsafe.Pointer(p), Len: int(C.TfLiteInterpreterGetOutputTensorCount(it.ptr))}
}

func (it *interpreter) SignatureCount() int {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.ptr == nil {
		return 0
	}
	return int(C.TfLiteInterpreterGetSignatureCount(it.ptr))
}

func (it *interpreter) SignatureKey(index int) string {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.ptr == nil {
		return ""
	}
	k := C.TfLiteInterpreterGetSignatureKey(it.ptr, C.int32_t(index))
	if k == nil {
		return ""
	}
	return C.GoString(k)
}

// Signature resolves the named tensors of a signature. Tensors that do not
// live in the primary subgraph get index -1.
func (it *interpreter) Signature(key string) (inputs, outputs []native.SignatureTensor, ok bool) {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.ptr == nil {
		return nil, nil, false
	}

	cKey := C.CString(key)
	defer C.free(unsafe.Pointer(cKey))

	runner := C.TfLiteInterpreterGetSignatureRunner(it.ptr, cKey)
	if runner == nil {
		return nil, nil, false
	}
	defer C.TfLiteSignatureRunnerDelete(runner)

	index := it.tensorIndexLocked()
	lookup := func(t *C.TfLiteTensor) int {
		if i, found := index[t]; found {
			return i
		}
		return -1
	}

	nIn := int(C.TfLiteSignatureRunnerGetInputCount(runner))
	inputs = make([]native.SignatureTensor, 0, nIn)
	for i := 0; i < nIn; i++ {
		name := C.TfLiteSignatureRunnerGetInputName(runner, C.int32_t(i))
		t := C.TfLiteSignatureRunnerGetInputTensor(runner, name)
		inputs = append(inputs, native.SignatureTensor{Name: C.GoString(name), Index: lookup(t)})
	}

	nOut := int(C.TfLiteSignatureRunnerGetOutputCount(runner))
	outputs = make([]native.SignatureTensor, 0, nOut)
	for i := 0; i < nOut; i++ {
		name := C.TfLiteSignatureRunnerGetOutputName(runner, C.int32_t(i))
		t := C.TfLiteSignatureRunnerGetOutputTensor(runner, name)
		outputs = append(outputs, native.SignatureTensor{Name: C.GoString(name), Index: lookup((*C.TfLiteTensor)(unsafe.Pointer(t)))})
	}
	return inputs, outputs, true
}

// tensor is a view of a TfLiteTensor owned by its interpreter.
type tensor struct {
	ptr *C.TfLiteTensor
}

func wrapTensor(p *C.TfLiteTensor) native.Tensor {
	if p == nil {
		return nil
	}
	return &tensor{ptr: p}
}

func (t *tensor) Type() native.TensorType {
	return native.TensorType(C.TfLiteTensorType(t.ptr))
}

func (t *tensor) Name() string {
	n := C.TfLiteTensorName(t.ptr)
	if n == nil {
		return ""
	}
	return C.GoString(n)
}

func (t *tensor) NumDims() int {
	return int(C.TfLiteTensorNumDims(t.ptr))
}

func (t *tensor) Dim(i int) int {
	return int(C.TfLiteTensorDim(t.ptr, C.int32_t(i)))
}

func (t *tensor) Dims() native.IntArray {
	return intArray(C.tfl_dims(t.ptr))
}

func (t *tensor) DimsSignature() native.IntArray {
	return intArray(C.tfl_dims_signature(t.ptr))
}

func (t *tensor) ByteSize() int {
	return int(C.TfLiteTensorByteSize(t.ptr))
}

func (t *tensor) Data() unsafe.Pointer {
	return C.TfLiteTensorData(t.ptr)
}

func (t *tensor) Quantization() native.Quantization {
	q := native.Quantization{Type: native.QuantizationType(C.tfl_quant_type(t.ptr))}
	a := C.tfl_affine(t.ptr)
	if a == nil {
		return q
	}
	q.Scale = floatArray(a.scale)
	q.ZeroPoint = intArray(a.zero_point)
	q.QuantizedDimension = int(a.quantized_dimension)
	return q
}

func (t *tensor) Sparsity() *native.Sparsity {
	s := C.tfl_sparsity(t.ptr)
	if s == nil {
		return nil
	}
	out := &native.Sparsity{
		TraversalOrder: intArray(s.traversal_order),
		BlockMap:       intArray(s.block_map),
		DimMetadata:    make([]native.DimMetadata, int(s.dim_metadata_size)),
	}
	for i := range out.DimMetadata {
		d := C.tfl_dim_metadata(s, C.int(i))
		out.DimMetadata[i] = native.DimMetadata{
			Format:        native.DimensionType(C.tfl_dim_format(d)),
			DenseSize:     int(d.dense_size),
			ArraySegments: intArray(d.array_segments),
			ArrayIndices:  intArray(d.array_indices),
		}
	}
	return out
}

func intArray(a *C.TfLiteIntArray) native.IntArray {
	if a == nil {
		return native.IntArray{}
	}
	return native.IntArray{
		Data: unsafe.Pointer(C.tfl_intarray_data(a)),
		Len:  int(C.tfl_intarray_size(a)),
	}
}

func floatArray(a *C.TfLiteFloatArray) native.FloatArray {
	if a == nil {
		return native.FloatArray{}
	}
	return native.FloatArray{
		Data: unsafe.Pointer(C.tfl_floatarray_data(a)),
		Len:  int(C.tfl_floatarray_size(a)),
	}
}

var (
	_ native.Engine      = (*Engine)(nil)
	_ native.Model       = (*model)(nil)
	_ native.Interpreter = (*interpreter)(nil)
	_ native.Tensor      = (*tensor)(nil)
)
