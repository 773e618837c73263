//go:build !cgo || notflite

package capi

import (
	"tflitebridge/native"
	"tflitebridge/status"
)

// Init is a no-op without the C API.
func Init() {}

// Version returns "" without the C API.
func Version() string { return "" }

// Available reports whether the C API is linked into this binary.
func Available() bool { return false }

// Engine is the placeholder engine used when the C API is not linked.
type Engine struct {
	ModelErrorReporter func(msg string)
}

// NewEngine returns an engine whose constructors fail with status.ErrUnavailable.
func NewEngine() *Engine { return &Engine{} }

func (e *Engine) Version() string { return "" }

func (e *Engine) NewModel([]byte) (native.Model, error) {
	return nil, status.New("model.create", status.KindUnavailable, status.ReasonUnavailable)
}

func (e *Engine) NewModelFromFile(string) (native.Model, error) {
	return nil, status.New("model.create_from_file", status.KindUnavailable, status.ReasonUnavailable)
}

func (e *Engine) NewInterpreter(native.Model, native.Options) (native.Interpreter, error) {
	return nil, status.New("interpreter.create", status.KindUnavailable, status.ReasonUnavailable)
}

var _ native.Engine = (*Engine)(nil)
