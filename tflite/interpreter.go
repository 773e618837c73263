package tflite

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tflitebridge/handle"
	"tflitebridge/logging"
	"tflitebridge/metrics"
	"tflitebridge/native"
	"tflitebridge/status"
	"tflitebridge/term"
)

// interpreterState is the resource behind an interpreter handle. native is
// replaced when SetNumThreads rebuilds the interpreter.
type interpreterState struct {
	model     handle.Handle
	native    native.Interpreter
	opts      InterpreterOptions
	threads   int
	allocated bool

	mu         sync.Mutex
	lastReport string
}

func (s *interpreterState) report(msg string) {
	s.mu.Lock()
	s.lastReport = msg
	s.mu.Unlock()
}

// takeReport returns and clears the last engine message.
func (s *interpreterState) takeReport() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.lastReport
	s.lastReport = ""
	return msg
}

// SignatureDef maps the named inputs and outputs of one signature to
// interpreter-wide tensor indices.
type SignatureDef struct {
	Key     string         `json:"key" yaml:"key"`
	Inputs  map[string]int `json:"inputs" yaml:"inputs"`
	Outputs map[string]int `json:"outputs" yaml:"outputs"`
}

// NewInterpreter loads model bytes and builds an interpreter over them.
func (r *Runtime) NewInterpreter(model []byte, o InterpreterOptions) (handle.Handle, error) {
	mh, err := r.LoadModel(model)
	if err != nil {
		return handle.Nil, status.WithOp("interpreter.create", err)
	}
	defer r.models.Release(mh)
	return r.NewInterpreterFromModel(mh, o)
}

// NewInterpreterFromFile loads the model at path and builds an interpreter.
func (r *Runtime) NewInterpreterFromFile(path string, o InterpreterOptions) (handle.Handle, error) {
	mh, err := r.LoadModelFile(path)
	if err != nil {
		return handle.Nil, status.WithOp("interpreter.create", err)
	}
	defer r.models.Release(mh)
	return r.NewInterpreterFromModel(mh, o)
}

// NewInterpreterFromModel builds an interpreter over a loaded model. The
// interpreter holds its own reference to the model.
func (r *Runtime) NewInterpreterFromModel(mh handle.Handle, o InterpreterOptions) (handle.Handle, error) {
	const op = "interpreter.create"
	if o.NumThreads < DefaultThreads {
		return handle.Nil, status.New(op, status.KindInvalidInput, status.ReasonThreadCount)
	}
	m, err := r.models.Resolve(mh)
	if err != nil {
		return handle.Nil, status.WithOp(op, err)
	}
	ref, err := r.models.Clone(mh)
	if err != nil {
		return handle.Nil, status.WithOp(op, err)
	}

	st := &interpreterState{model: ref, opts: o, threads: r.threadsFor(o.NumThreads)}
	ni, err := r.engine.NewInterpreter(m, r.nativeOptions(st, st.threads))
	if err != nil {
		r.models.Release(ref)
		return handle.Nil, r.withReport(op, st, err)
	}
	st.native = ni

	h, err := r.interps.Create(st, r.destroyInterpreter)
	if err != nil {
		ni.Delete()
		r.models.Release(ref)
		return handle.Nil, status.WithOp(op, err)
	}
	r.logger.Debug("interpreter created",
		zap.Stringer("handle", h),
		zap.Int("threads", st.threads),
		zap.Int("delegates", len(o.Delegates)),
	)
	return h, nil
}

func (r *Runtime) destroyInterpreter(st *interpreterState) error {
	st.native.Delete()
	return r.models.Release(st.model)
}

func (r *Runtime) threadsFor(n int) int {
	if n == 0 {
		return r.defaultThreads
	}
	return n
}

func (r *Runtime) nativeOptions(st *interpreterState, threads int) native.Options {
	return native.Options{
		NumThreads: threads,
		Delegates:  st.opts.Delegates,
		ErrorReporter: func(msg string) {
			st.report(msg)
			r.logger.Warn("engine error", zap.String("message", msg))
		},
	}
}

// withReport relabels err with op and attaches the engine's last message.
func (r *Runtime) withReport(op string, st *interpreterState, err error) error {
	if msg := st.takeReport(); msg != "" {
		return status.Wrap(op, status.KindOf(err), status.ReasonOf(err), errors.New(msg))
	}
	return status.WithOp(op, err)
}

// nativeFailure wraps a non-ok engine status.
func (r *Runtime) nativeFailure(op, reason string, st *interpreterState, code native.Status) error {
	detail := code.String()
	if msg := st.takeReport(); msg != "" {
		detail = msg
	}
	return status.Wrap(op, status.KindNative, reason, errors.New(detail))
}

func (r *Runtime) interpreter(op string, h handle.Handle) (*interpreterState, error) {
	st, err := r.interps.Resolve(h)
	if err != nil {
		return nil, status.InvalidHandle(op)
	}
	return st, nil
}

// AllocateTensors allocates every tensor buffer.
func (r *Runtime) AllocateTensors(h handle.Handle) error {
	const op = "interpreter.allocate_tensors"
	st, err := r.interpreter(op, h)
	if err != nil {
		return err
	}
	if code := st.native.AllocateTensors(); code != native.StatusOk {
		return r.nativeFailure(op, status.ReasonAllocateFailed, st, code)
	}
	st.allocated = true
	return nil
}

// Inputs returns the interpreter-wide tensor indices of the inputs.
func (r *Runtime) Inputs(h handle.Handle) ([]int, error) {
	const op = "interpreter.inputs"
	st, err := r.interpreter(op, h)
	if err != nil {
		return nil, err
	}
	return toInts(term.Int32s(st.native.InputTensorIndices())), nil
}

// Outputs returns the interpreter-wide tensor indices of the outputs.
func (r *Runtime) Outputs(h handle.Handle) ([]int, error) {
	const op = "interpreter.outputs"
	st, err := r.interpreter(op, h)
	if err != nil {
		return nil, err
	}
	return toInts(term.Int32s(st.native.OutputTensorIndices())), nil
}

func toInts(v []int64) []int {
	out := make([]int, len(v))
	for i, x := range v {
		out[i] = int(x)
	}
	return out
}

// InputCount returns the number of inputs.
func (r *Runtime) InputCount(h handle.Handle) (int, error) {
	st, err := r.interpreter("interpreter.input_count", h)
	if err != nil {
		return 0, err
	}
	return st.native.InputTensorCount(), nil
}

// OutputCount returns the number of outputs.
func (r *Runtime) OutputCount(h handle.Handle) (int, error) {
	st, err := r.interpreter("interpreter.output_count", h)
	if err != nil {
		return 0, err
	}
	return st.native.OutputTensorCount(), nil
}

// InputName returns the name of input i.
func (r *Runtime) InputName(h handle.Handle, i int) (string, error) {
	t, _, err := r.ioTensor("interpreter.input_name", h, i, true)
	if err != nil {
		return "", err
	}
	return t.Name(), nil
}

// OutputName returns the name of output i.
func (r *Runtime) OutputName(h handle.Handle, i int) (string, error) {
	t, _, err := r.ioTensor("interpreter.output_name", h, i, false)
	if err != nil {
		return "", err
	}
	return t.Name(), nil
}

// ioTensor range-checks i before touching the engine, which does not
// bounds-check input and output positions itself.
func (r *Runtime) ioTensor(op string, h handle.Handle, i int, input bool) (native.Tensor, int, error) {
	st, err := r.interpreter(op, h)
	if err != nil {
		return nil, 0, err
	}

	count, indices := st.native.OutputTensorCount(), st.native.OutputTensorIndices
	if input {
		count, indices = st.native.InputTensorCount(), st.native.InputTensorIndices
	}
	if i < 0 || i >= count {
		return nil, 0, status.Wrap(op, status.KindIndexOutOfRange, status.ReasonIndexOutOfRange,
			fmt.Errorf("index %d, count %d", i, count))
	}

	var t native.Tensor
	if input {
		t = st.native.InputTensor(i)
	} else {
		t = st.native.OutputTensor(i)
	}
	if t == nil {
		return nil, 0, status.New(op, status.KindNative, status.ReasonInvalidTensor)
	}

	index := -1
	if idx := term.Int32s(indices()); i < len(idx) {
		index = int(idx[i])
	}
	return t, index, nil
}

// InputTensor returns a handle to input i.
func (r *Runtime) InputTensor(h handle.Handle, i int) (handle.Handle, error) {
	const op = "interpreter.input_tensor"
	t, index, err := r.ioTensor(op, h, i, true)
	if err != nil {
		return handle.Nil, err
	}
	return r.tensorHandle(op, h, t, index)
}

// OutputTensor returns a handle to output i.
func (r *Runtime) OutputTensor(h handle.Handle, i int) (handle.Handle, error) {
	const op = "interpreter.output_tensor"
	t, index, err := r.ioTensor(op, h, i, false)
	if err != nil {
		return handle.Nil, err
	}
	return r.tensorHandle(op, h, t, index)
}

// Tensor returns a handle to the tensor at an interpreter-wide index, as
// listed by Inputs, Outputs and SignatureDefs.
func (r *Runtime) Tensor(h handle.Handle, index int) (handle.Handle, error) {
	const op = "interpreter.tensor"
	st, err := r.interpreter(op, h)
	if err != nil {
		return handle.Nil, err
	}
	count := st.native.TensorCount()
	if index < 0 || index >= count {
		return handle.Nil, status.Wrap(op, status.KindIndexOutOfRange, status.ReasonIndexOutOfRange,
			fmt.Errorf("index %d, count %d", index, count))
	}
	t := st.native.Tensor(index)
	if t == nil {
		return handle.Nil, status.New(op, status.KindIndexOutOfRange, status.ReasonIndexOutOfRange)
	}
	return r.tensorHandle(op, h, t, index)
}

func (r *Runtime) tensorHandle(op string, h handle.Handle, t native.Tensor, index int) (handle.Handle, error) {
	th, err := r.tensors.CreateChild(r.interps, h, &tensorRef{interp: h, tensor: t, index: index})
	if err != nil {
		return handle.Nil, status.WithOp(op, err)
	}
	return th, nil
}

// Invoke runs the interpreter. ctx is checked before the native call; the
// call itself cannot be interrupted.
func (r *Runtime) Invoke(ctx context.Context, h handle.Handle) error {
	const op = "interpreter.invoke"
	if err := ctx.Err(); err != nil {
		return status.Wrap(op, status.KindNative, status.ReasonCancelled, err)
	}
	st, err := r.interpreter(op, h)
	if err != nil {
		return err
	}

	start := time.Now()
	code := st.native.Invoke()
	elapsed := time.Since(start)

	rec := metrics.InvokeRecord{
		ID:          uuid.NewString(),
		Interpreter: h.String(),
		Threads:     st.threads,
		Status:      metrics.StatusSuccess,
		StartTime:   start,
		Duration:    elapsed,
	}
	if code != native.StatusOk {
		err = r.nativeFailure(op, status.ReasonInvokeFailed, st, code)
		rec.Status = metrics.StatusError
		rec.ErrorMsg = err.Error()
	}
	r.metrics.RecordInvoke(rec)

	r.logger.Debug("invoke complete",
		logging.InvokeFields(logging.InvokeMetrics{
			Interpreter: h.String(),
			Inputs:      st.native.InputTensorCount(),
			Outputs:     st.native.OutputTensorCount(),
			Threads:     st.threads,
			Duration:    elapsed,
		}),
		zap.Stringer("status", code),
	)
	return err
}

// ResizeInput changes the shape of input i. Tensors must be allocated again
// before the next Invoke.
func (r *Runtime) ResizeInput(h handle.Handle, i int, dims []int) error {
	const op = "interpreter.resize_input"
	st, err := r.interpreter(op, h)
	if err != nil {
		return err
	}
	if count := st.native.InputTensorCount(); i < 0 || i >= count {
		return status.Wrap(op, status.KindIndexOutOfRange, status.ReasonIndexOutOfRange,
			fmt.Errorf("index %d, count %d", i, count))
	}
	d := make([]int32, len(dims))
	for k, v := range dims {
		if v <= 0 {
			return status.Errorf(op, status.KindInvalidInput, "dimension %d must be positive, got %d", k, v)
		}
		d[k] = int32(v)
	}
	if code := st.native.ResizeInputTensor(i, d); code != native.StatusOk {
		return r.nativeFailure(op, status.ReasonResizeFailed, st, code)
	}
	st.allocated = false
	return nil
}

// SetNumThreads rebuilds the interpreter with n threads (0 for the runtime
// default, -1 for the engine default). Tensors are reallocated if they were allocated, but their
// contents are lost and every tensor handle of h is invalidated. On failure
// the previous interpreter stays in place.
func (r *Runtime) SetNumThreads(h handle.Handle, n int) error {
	const op = "interpreter.set_num_threads"
	st, err := r.interpreter(op, h)
	if err != nil {
		return err
	}
	if n < DefaultThreads {
		return status.Wrap(op, status.KindInvalidInput, status.ReasonThreadCount, fmt.Errorf("got %d", n))
	}
	n = r.threadsFor(n)
	m, err := r.models.Resolve(st.model)
	if err != nil {
		return status.WithOp(op, err)
	}

	ni, err := r.engine.NewInterpreter(m, r.nativeOptions(st, n))
	if err != nil {
		return r.withReport(op, st, err)
	}
	if st.allocated {
		if code := ni.AllocateTensors(); code != native.StatusOk {
			ferr := r.nativeFailure(op, status.ReasonAllocateFailed, st, code)
			ni.Delete()
			return ferr
		}
	}

	old := st.native
	st.native = ni
	st.threads = n
	st.opts.NumThreads = n
	old.Delete()

	r.logger.Debug("interpreter rebuilt", zap.Stringer("handle", h), zap.Int("threads", n))
	return r.interps.InvalidateChildren(h)
}

// NumThreads returns the thread count the interpreter was built with.
func (r *Runtime) NumThreads(h handle.Handle) (int, error) {
	st, err := r.interpreter("interpreter.num_threads", h)
	if err != nil {
		return 0, err
	}
	return st.threads, nil
}

// SignatureDefs returns every signature of the model keyed by signature key.
func (r *Runtime) SignatureDefs(h handle.Handle) (map[string]SignatureDef, error) {
	const op = "interpreter.signature_defs"
	st, err := r.interpreter(op, h)
	if err != nil {
		return nil, err
	}

	defs := make(map[string]SignatureDef)
	for i := 0; i < st.native.SignatureCount(); i++ {
		key := st.native.SignatureKey(i)
		inputs, outputs, ok := st.native.Signature(key)
		if !ok {
			r.logger.Warn("skipping unreadable signature", zap.String("key", key))
			continue
		}
		defs[key] = SignatureDef{
			Key:     key,
			Inputs:  signatureMap(inputs),
			Outputs: signatureMap(outputs),
		}
	}
	return defs, nil
}

func signatureMap(ts []native.SignatureTensor) map[string]int {
	m := make(map[string]int, len(ts))
	for _, t := range ts {
		m[t.Name] = t.Index
	}
	return m
}

// SignatureKeys returns the signature keys in sorted order.
func SignatureKeys(defs map[string]SignatureDef) []string {
	keys := make([]string, 0, len(defs))
	for k := range defs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
