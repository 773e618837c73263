package tflite

import (
	"bytes"
	"encoding/binary"
	"sync"
	"unsafe"

	"tflitebridge/native"
	"tflitebridge/status"
)

// fakeModelBytes is the only flatbuffer the fake engine accepts.
var fakeModelBytes = []byte("TFL3-fake-model")

const fakeModelPath = "fake.tflite"

// fakeEngine is a pure-Go native.Engine. Its interpreter has one float32
// input (shape [1,4], signature [-1,4]), one float32 output [1,2] holding
// the sum and max of the input, and a sparse int8 constant at index 2.
type fakeEngine struct {
	mu              sync.Mutex
	liveModels      int
	liveInterps     int
	threads         []int
	failInterpreter bool
	failAllocate    bool
}

func (e *fakeEngine) Version() string { return "fake-2.16" }

func (e *fakeEngine) NewModel(data []byte) (native.Model, error) {
	if len(data) == 0 {
		return nil, status.New("model.create", status.KindInvalidModel, status.ReasonEmptyModel)
	}
	if !bytes.Equal(data, fakeModelBytes) {
		return nil, status.New("model.create", status.KindInvalidModel, status.ReasonLoadModel)
	}
	e.mu.Lock()
	e.liveModels++
	e.mu.Unlock()
	return &fakeModel{engine: e}, nil
}

func (e *fakeEngine) NewModelFromFile(path string) (native.Model, error) {
	if path != fakeModelPath {
		return nil, status.New("model.create_from_file", status.KindInvalidModel, status.ReasonLoadModel)
	}
	return e.NewModel(fakeModelBytes)
}

func (e *fakeEngine) NewInterpreter(m native.Model, opts native.Options) (native.Interpreter, error) {
	fm, ok := m.(*fakeModel)
	if !ok || fm.deleted {
		return nil, status.New("interpreter.create", status.KindInvalidModel, status.ReasonLoadModel)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failInterpreter {
		if opts.ErrorReporter != nil {
			opts.ErrorReporter("Didn't find op for builtin opcode 'FAKE'")
		}
		return nil, status.New("interpreter.create", status.KindNative, status.ReasonCreateFailed)
	}
	e.liveInterps++
	e.threads = append(e.threads, opts.NumThreads)
	return newFakeInterpreter(e, opts), nil
}

func (e *fakeEngine) counts() (models, interps int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.liveModels, e.liveInterps
}

func (e *fakeEngine) lastThreads() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.threads[len(e.threads)-1]
}

type fakeModel struct {
	engine  *fakeEngine
	deleted bool
}

func (m *fakeModel) Delete() {
	if m.deleted {
		return
	}
	m.deleted = true
	m.engine.mu.Lock()
	m.engine.liveModels--
	m.engine.mu.Unlock()
}

type fakeInterpreter struct {
	engine    *fakeEngine
	opts      native.Options
	tensors   []*fakeTensor
	inputs    []int32
	outputs   []int32
	allocated bool
	deleted   bool
}

func newFakeInterpreter(e *fakeEngine, opts native.Options) *fakeInterpreter {
	weights := &fakeTensor{
		name: "weights",
		typ:  native.Int8,
		dims: []int32{4, 4},
		size: 4,
		quant: native.Quantization{
			Type:      native.AffineQuantization,
			Scale:     native.FloatArrayOf([]float32{0.5}),
			ZeroPoint: native.IntArrayOf([]int32{1}),
		},
		sparsity: &native.Sparsity{
			TraversalOrder: native.IntArrayOf([]int32{0, 1}),
			BlockMap:       native.IntArrayOf([]int32{}),
			DimMetadata: []native.DimMetadata{
				{Format: native.DimDense, DenseSize: 4},
				{
					Format:        native.DimSparseCSR,
					ArraySegments: native.IntArrayOf([]int32{0, 1, 2, 3, 4}),
					ArrayIndices:  native.IntArrayOf([]int32{0, 1, 2, 3}),
				},
			},
		},
	}
	return &fakeInterpreter{
		engine: e,
		opts:   opts,
		tensors: []*fakeTensor{
			{name: "input", typ: native.Float32, dims: []int32{1, 4}, dimsSig: []int32{-1, 4}, size: 16},
			{name: "output", typ: native.Float32, dims: []int32{1, 2}, size: 8},
			weights,
		},
		inputs:  []int32{0},
		outputs: []int32{1},
	}
}

func (it *fakeInterpreter) report(msg string) {
	if it.opts.ErrorReporter != nil {
		it.opts.ErrorReporter(msg)
	}
}

func (it *fakeInterpreter) AllocateTensors() native.Status {
	if it.deleted {
		return native.StatusError
	}
	if it.engine.failAllocate {
		it.report("Arena allocation failed")
		return native.StatusError
	}
	for _, t := range it.tensors {
		t.buf = make([]byte, t.size)
	}
	it.allocated = true
	return native.StatusOk
}

func (it *fakeInterpreter) Invoke() native.Status {
	if it.deleted {
		return native.StatusError
	}
	if !it.allocated {
		it.report("Invoke called on model that is not ready")
		return native.StatusError
	}
	in := make([]float32, it.tensors[0].size/4)
	_ = binary.Read(bytes.NewReader(it.tensors[0].buf), binary.NativeEndian, in)
	var sum, peak float32
	for i, v := range in {
		sum += v
		if i == 0 || v > peak {
			peak = v
		}
	}
	var out bytes.Buffer
	_ = binary.Write(&out, binary.NativeEndian, []float32{sum, peak})
	copy(it.tensors[1].buf, out.Bytes())
	return native.StatusOk
}

func (it *fakeInterpreter) ResizeInputTensor(index int, dims []int32) native.Status {
	if index != 0 {
		return native.StatusError
	}
	t := it.tensors[0]
	t.dims = dims
	n := 1
	for _, d := range dims {
		n *= int(d)
	}
	t.size = n * 4
	t.buf = nil
	it.allocated = false
	return native.StatusOk
}

func (it *fakeInterpreter) InputTensorCount() int  { return len(it.inputs) }
func (it *fakeInterpreter) OutputTensorCount() int { return len(it.outputs) }

// InputTensor and OutputTensor do not bounds-check, like the C API.
func (it *fakeInterpreter) InputTensor(i int) native.Tensor  { return it.tensors[it.inputs[i]] }
func (it *fakeInterpreter) OutputTensor(i int) native.Tensor { return it.tensors[it.outputs[i]] }
func (it *fakeInterpreter) TensorCount() int                 { return len(it.tensors) }

func (it *fakeInterpreter) Tensor(i int) native.Tensor {
	if i < 0 || i >= len(it.tensors) {
		return nil
	}
	return it.tensors[i]
}

func (it *fakeInterpreter) InputTensorIndices() native.IntArray  { return native.IntArrayOf(it.inputs) }
func (it *fakeInterpreter) OutputTensorIndices() native.IntArray { return native.IntArrayOf(it.outputs) }

func (it *fakeInterpreter) SignatureCount() int { return 1 }

func (it *fakeInterpreter) SignatureKey(i int) string {
	if i != 0 {
		return ""
	}
	return "serving_default"
}

func (it *fakeInterpreter) Signature(key string) (inputs, outputs []native.SignatureTensor, ok bool) {
	if key != "serving_default" {
		return nil, nil, false
	}
	return []native.SignatureTensor{{Name: "x", Index: 0}},
		[]native.SignatureTensor{{Name: "y", Index: 1}},
		true
}

func (it *fakeInterpreter) Delete() {
	if it.deleted {
		return
	}
	it.deleted = true
	it.engine.mu.Lock()
	it.engine.liveInterps--
	it.engine.mu.Unlock()
}

type fakeTensor struct {
	name     string
	typ      native.TensorType
	dims     []int32
	dimsSig  []int32
	size     int
	buf      []byte
	quant    native.Quantization
	sparsity *native.Sparsity
}

func (t *fakeTensor) Type() native.TensorType        { return t.typ }
func (t *fakeTensor) Name() string                   { return t.name }
func (t *fakeTensor) NumDims() int                   { return len(t.dims) }
func (t *fakeTensor) Dim(i int) int                  { return int(t.dims[i]) }
func (t *fakeTensor) Dims() native.IntArray          { return native.IntArrayOf(t.dims) }
func (t *fakeTensor) DimsSignature() native.IntArray { return native.IntArrayOf(t.dimsSig) }
func (t *fakeTensor) ByteSize() int                  { return t.size }

func (t *fakeTensor) Data() unsafe.Pointer {
	if len(t.buf) == 0 {
		return nil
	}
	return unsafe.Pointer(&t.buf[0])
}

func (t *fakeTensor) Quantization() native.Quantization { return t.quant }
func (t *fakeTensor) Sparsity() *native.Sparsity        { return t.sparsity }

var (
	_ native.Engine      = (*fakeEngine)(nil)
	_ native.Interpreter = (*fakeInterpreter)(nil)
	_ native.Tensor      = (*fakeTensor)(nil)
)
