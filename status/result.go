package status

import (
	"encoding/json"
)

// Tag values used when a Result is serialized.
const (
	TagOk    = "ok"
	TagError = "error"
)

// Result is the tagged outcome of an operation: ok with an optional value,
// or error with a reason. It is the host-facing form of (T, error) used by
// the CLI and by anything that crosses a serialization boundary.
type Result[T any] struct {
	ok       bool
	hasValue bool
	value    T
	err      error
}

// Ok wraps a success value.
func Ok[T any](v T) Result[T] {
	return Result[T]{ok: true, hasValue: true, value: v}
}

// OkEmpty is a success with no value.
func OkEmpty() Result[struct{}] {
	return Result[struct{}]{ok: true}
}

// Fail builds an error result with the given reason and kind.
func Fail[T any](kind Kind, reason string) Result[T] {
	return Result[T]{err: New("", kind, reason)}
}

// FromError builds an error result from err. A nil err yields an empty ok.
func FromError[T any](err error) Result[T] {
	if err == nil {
		return Result[T]{ok: true}
	}
	return Result[T]{err: err}
}

// From converts a Go (value, error) pair.
func From[T any](v T, err error) Result[T] {
	if err != nil {
		return Result[T]{err: err}
	}
	return Ok(v)
}

// IsOk reports whether the result is a success.
func (r Result[T]) IsOk() bool { return r.ok }

// Value returns the success value and whether one is present.
func (r Result[T]) Value() (T, bool) { return r.value, r.ok && r.hasValue }

// Err returns the failure, or nil on success.
func (r Result[T]) Err() error { return r.err }

// Kind returns the failure kind, or KindUnknown on success.
func (r Result[T]) Kind() Kind { return KindOf(r.err) }

// Reason returns the failure reason, or "" on success.
func (r Result[T]) Reason() string { return ReasonOf(r.err) }

// Unwrap returns the Go form of the result.
func (r Result[T]) Unwrap() (T, error) { return r.value, r.err }

// wire is the serialized shape shared by JSON and YAML.
type wire struct {
	Status string `json:"status" yaml:"status"`
	Kind   string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
	Value  any    `json:"value,omitempty" yaml:"value,omitempty"`
}

func (r Result[T]) wire() wire {
	if !r.ok {
		return wire{Status: TagError, Kind: r.Kind().String(), Reason: r.Reason()}
	}
	w := wire{Status: TagOk}
	if r.hasValue {
		w.Value = r.value
	}
	return w
}

// MarshalJSON encodes {"status":"ok","value":…} or {"status":"error","reason":…}.
func (r Result[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.wire())
}

// MarshalYAML implements yaml.Marshaler with the same shape as MarshalJSON.
func (r Result[T]) MarshalYAML() (interface{}, error) {
	return r.wire(), nil
}
