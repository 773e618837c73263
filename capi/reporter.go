//go:build cgo && !notflite

package capi

/*
#include <stdint.h>
*/
import "C"

import (
	"errors"
	"runtime/cgo"
	"strings"
	"sync"
)

type reportFunc func(msg string)

//export goTfliteReport
func goTfliteReport(handle C.uintptr_t, msg *C.char) {
	if handle == 0 {
		return
	}
	fn, ok := cgo.Handle(handle).Value().(reportFunc)
	if !ok || fn == nil {
		return
	}
	fn(strings.TrimSpace(C.GoString(msg)))
}

// modelReporter collects messages emitted while a model is parsed so that a
// failed load can return them as the error cause.
type modelReporter struct {
	mu       sync.Mutex
	messages []string
	forward  func(string)
	handle   cgo.Handle
}

func newReporter(forward func(string)) *modelReporter {
	r := &modelReporter{forward: forward}
	r.handle = cgo.NewHandle(reportFunc(r.report))
	return r
}

func (r *modelReporter) report(msg string) {
	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()
	if r.forward != nil {
		r.forward(msg)
	}
}

func (r *modelReporter) cHandle() C.uintptr_t {
	return C.uintptr_t(r.handle)
}

func (r *modelReporter) release() {
	if r.handle != 0 {
		r.handle.Delete()
		r.handle = 0
	}
}

// err returns the collected messages as one error, or nil.
func (r *modelReporter) err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return nil
	}
	return errors.New(strings.Join(r.messages, "; "))
}

func (r *modelReporter) errOr(fallback string) error {
	if err := r.err(); err != nil {
		return err
	}
	return errors.New(fallback)
}
