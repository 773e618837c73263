// Package tflite is the host-facing API of the bridge. A Runtime hands out
// opaque handles for models, interpreters and tensors and reports every
// failure as a *status.Error.
//
// Every call follows the same path: resolve the handle, call the engine,
// marshal the result, wrap any failure.
//
// Thread safety: the Runtime's registries are safe for concurrent use, but
// native interpreters are not. Callers must not use one interpreter handle
// (or its tensor handles) from several goroutines at once, and must not
// release a handle while another call on it is in flight.
//
// Tensor handles die with their interpreter and when SetNumThreads rebuilds
// it. They are NOT invalidated by AllocateTensors or ResizeInput, which may
// move the native buffers; re-fetch tensor handles after either call.
package tflite

import (
	"errors"

	"github.com/mattn/go-tflite/delegates"
	"go.uber.org/zap"

	"tflitebridge/handle"
	"tflitebridge/metrics"
	"tflitebridge/native"
	"tflitebridge/status"
)

// DefaultThreads lets the engine pick its thread count.
const DefaultThreads = -1

// InterpreterOptions configure interpreter creation.
type InterpreterOptions struct {
	// NumThreads is the CPU thread count. 0 takes the runtime default and
	// -1 lets the engine decide.
	NumThreads int
	// Delegates are attached in order. They must outlive the interpreter.
	Delegates []delegates.Delegater
}

// Runtime owns every handle it issues.
type Runtime struct {
	engine         native.Engine
	logger         *zap.Logger
	metrics        metrics.Collector
	defaultThreads int

	models  *handle.Registry[native.Model]
	interps *handle.Registry[*interpreterState]
	tensors *handle.Registry[*tensorRef]
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the runtime logger. Handle registries log under it too.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics records every Invoke into c.
func WithMetrics(c metrics.Collector) Option {
	return func(r *Runtime) {
		if c != nil {
			r.metrics = c
		}
	}
}

// WithDefaultThreads sets the thread count used when InterpreterOptions
// leaves NumThreads at 0.
func WithDefaultThreads(n int) Option {
	return func(r *Runtime) {
		r.defaultThreads = n
	}
}

// NewRuntime returns a Runtime over engine.
func NewRuntime(engine native.Engine, opts ...Option) *Runtime {
	r := &Runtime{
		engine:         engine,
		logger:         zap.NewNop(),
		metrics:        metrics.Discard,
		defaultThreads: DefaultThreads,
	}
	for _, opt := range opts {
		opt(r)
	}

	hl := r.logger.Named("handle")
	r.models = handle.New(handle.KindModel, handle.WithLogger[native.Model](hl))
	r.interps = handle.New(handle.KindInterpreter, handle.WithLogger[*interpreterState](hl))
	r.tensors = handle.New(handle.KindTensor, handle.WithLogger[*tensorRef](hl))
	return r
}

// EngineVersion reports the version of the underlying engine.
func (r *Runtime) EngineVersion() string {
	return r.engine.Version()
}

// LoadModel loads a flatbuffer model and returns its handle. Interpreters
// created from it keep it alive after the handle is released.
func (r *Runtime) LoadModel(data []byte) (handle.Handle, error) {
	const op = "model.load"
	if len(data) == 0 {
		return handle.Nil, status.New(op, status.KindInvalidModel, status.ReasonEmptyModel)
	}
	m, err := r.engine.NewModel(data)
	if err != nil {
		return handle.Nil, status.WithOp(op, err)
	}
	return r.registerModel(op, m)
}

// LoadModelFile loads a model from path.
func (r *Runtime) LoadModelFile(path string) (handle.Handle, error) {
	const op = "model.load_file"
	m, err := r.engine.NewModelFromFile(path)
	if err != nil {
		return handle.Nil, status.WithOp(op, err)
	}
	return r.registerModel(op, m)
}

func (r *Runtime) registerModel(op string, m native.Model) (handle.Handle, error) {
	h, err := r.models.Create(m, func(m native.Model) error {
		m.Delete()
		return nil
	})
	if err != nil {
		return handle.Nil, status.WithOp(op, err)
	}
	r.logger.Debug("model loaded", zap.Stringer("handle", h))
	return h, nil
}

// Clone issues another handle for the resource behind h. The resource lives
// until every handle to it is released.
func (r *Runtime) Clone(h handle.Handle) (handle.Handle, error) {
	var (
		c   handle.Handle
		err error
	)
	switch h.Kind() {
	case handle.KindModel:
		c, err = r.models.Clone(h)
	case handle.KindInterpreter:
		c, err = r.interps.Clone(h)
	case handle.KindTensor:
		c, err = r.tensors.Clone(h)
	default:
		return handle.Nil, status.InvalidHandle("clone")
	}
	return c, status.WithOp("clone", err)
}

// Valid reports whether h is live.
func (r *Runtime) Valid(h handle.Handle) bool {
	switch h.Kind() {
	case handle.KindModel:
		return r.models.Valid(h)
	case handle.KindInterpreter:
		return r.interps.Valid(h)
	case handle.KindTensor:
		return r.tensors.Valid(h)
	}
	return false
}

// Release retires h. Releasing an interpreter's last handle destroys it and
// invalidates its tensor handles. Releasing twice is a no-op.
func (r *Runtime) Release(h handle.Handle) error {
	switch h.Kind() {
	case handle.KindModel:
		return r.models.Release(h)
	case handle.KindInterpreter:
		return r.interps.Release(h)
	case handle.KindTensor:
		return r.tensors.Release(h)
	}
	return nil
}

// Close destroys every resource still held, interpreters before models.
func (r *Runtime) Close() error {
	return errors.Join(
		r.tensors.Close(),
		r.interps.Close(),
		r.models.Close(),
	)
}

// Stats reports how many handles of each kind are live.
type Stats struct {
	Models       int `json:"models" yaml:"models"`
	Interpreters int `json:"interpreters" yaml:"interpreters"`
	Tensors      int `json:"tensors" yaml:"tensors"`
}

// Stats returns live handle counts.
func (r *Runtime) Stats() Stats {
	return Stats{
		Models:       r.models.Len(),
		Interpreters: r.interps.Len(),
		Tensors:      r.tensors.Len(),
	}
}
