// Package handle manages opaque host handles to native resources.
//
// A Handle is a token. Tokens reference a shared resource entry; Clone issues
// a new token for the same resource and Release retires one token. The
// resource's destructor runs exactly once, when its last token is released
// or the registry is closed. Child resources (tensors owned by an
// interpreter) are non-owning and are invalidated when their parent dies.
package handle

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind tags what a handle refers to.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindModel
	KindInterpreter
	KindTensor
)

func (k Kind) String() string {
	switch k {
	case KindModel:
		return "model"
	case KindInterpreter:
		return "interpreter"
	case KindTensor:
		return "tensor"
	default:
		return "invalid"
	}
}

// Handle is an opaque, comparable token. The zero Handle never resolves.
type Handle struct {
	id   uuid.UUID
	kind Kind
}

// Nil is the zero Handle.
var Nil Handle

func newHandle(kind Kind) Handle {
	return Handle{id: uuid.New(), kind: kind}
}

// Kind returns the resource kind the handle was issued for.
func (h Handle) Kind() Kind { return h.kind }

// ID returns the token id.
func (h Handle) ID() uuid.UUID { return h.id }

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool { return h.id == uuid.Nil }

// String renders kind:uuid.
func (h Handle) String() string {
	if h.IsZero() {
		return "nil"
	}
	return fmt.Sprintf("%s:%s", h.kind, h.id)
}

// MarshalText lets handles appear as strings in JSON and YAML output.
func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}
