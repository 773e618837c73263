package handle

import (
	"errors"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tflitebridge/status"
)

// Parent is a registry that can own children in another registry.
type Parent interface {
	adopt(parent Handle, child uuid.UUID, kill func()) (func(), error)
}

type resource[T any] struct {
	value   T
	destroy func(T) error
	tokens  map[uuid.UUID]struct{}
	dead    bool

	// children maps a child's first handle id to the func that kills it.
	children map[uuid.UUID]func()
	// detach removes this resource from its parent's children.
	detach func()
}

// Registry maps handles to live resources of type T.
//
// The mutex guards the registry's maps only. It does not serialize use of
// the resources themselves; a resolved value must not be used concurrently
// with a Release of the same handle.
type Registry[T any] struct {
	mu      sync.Mutex
	kind    Kind
	entries map[uuid.UUID]*resource[T]
	logger  *zap.Logger
	isNull  func(T) bool
}

// Option configures a Registry.
type Option[T any] func(*Registry[T])

// WithLogger sets the registry logger.
func WithLogger[T any](logger *zap.Logger) Option[T] {
	return func(r *Registry[T]) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithNullCheck overrides how Create detects a null native resource.
func WithNullCheck[T any](isNull func(T) bool) Option[T] {
	return func(r *Registry[T]) {
		r.isNull = isNull
	}
}

// New creates an empty registry issuing handles of the given kind.
func New[T any](kind Kind, opts ...Option[T]) *Registry[T] {
	r := &Registry[T]{
		kind:    kind,
		entries: make(map[uuid.UUID]*resource[T]),
		logger:  zap.NewNop(),
		isNull:  isNullValue[T],
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func isNullValue[T any](v T) bool {
	rv := reflect.ValueOf(any(v))
	if !rv.IsValid() {
		return true
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return rv.IsNil()
	}
	return false
}

// Create registers value and returns its first handle. destroy, if non-nil,
// runs once when the resource dies. A null value fails with an allocation
// error and destroy is not called.
func (r *Registry[T]) Create(value T, destroy func(T) error) (Handle, error) {
	if r.isNull(value) {
		return Nil, status.New("handle.create", status.KindAllocation, status.ReasonAllocResource)
	}

	h := newHandle(r.kind)
	res := &resource[T]{
		value:   value,
		destroy: destroy,
		tokens:  map[uuid.UUID]struct{}{h.id: {}},
	}

	r.mu.Lock()
	r.entries[h.id] = res
	r.mu.Unlock()

	r.logger.Debug("handle created", zap.Stringer("handle", h))
	return h, nil
}

// CreateChild registers a non-owning value whose lifetime is bounded by
// parentHandle in parent. The child is invalidated, without a destructor,
// when the parent resource dies or its children are invalidated. A child
// that dies first is dropped from the parent.
func (r *Registry[T]) CreateChild(parent Parent, parentHandle Handle, value T) (Handle, error) {
	h, err := r.Create(value, nil)
	if err != nil {
		return Nil, err
	}

	r.mu.Lock()
	res := r.entries[h.id]
	r.mu.Unlock()

	detach, err := parent.adopt(parentHandle, h.id, func() { r.kill(res) })
	if err != nil {
		r.kill(res)
		return Nil, err
	}

	r.mu.Lock()
	if res.dead {
		r.mu.Unlock()
		detach()
		return Nil, status.InvalidHandle("handle.adopt")
	}
	res.detach = detach
	r.mu.Unlock()
	return h, nil
}

func (r *Registry[T]) adopt(parentHandle Handle, child uuid.UUID, kill func()) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.lookup(parentHandle)
	if !ok {
		return nil, status.InvalidHandle("handle.adopt")
	}
	if res.children == nil {
		res.children = make(map[uuid.UUID]func())
	}
	res.children[child] = kill
	return func() { r.disown(res, child) }, nil
}

func (r *Registry[T]) disown(res *resource[T], child uuid.UUID) {
	r.mu.Lock()
	delete(res.children, child)
	r.mu.Unlock()
}

// lookup must be called with r.mu held.
func (r *Registry[T]) lookup(h Handle) (*resource[T], bool) {
	if h.IsZero() || h.kind != r.kind {
		return nil, false
	}
	res, ok := r.entries[h.id]
	if !ok || res.dead {
		return nil, false
	}
	return res, true
}

// Resolve returns the live value behind h.
func (r *Registry[T]) Resolve(h Handle) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.lookup(h)
	if !ok {
		var zero T
		return zero, status.InvalidHandle("handle.resolve")
	}
	return res.value, nil
}

// Valid reports whether h currently resolves.
func (r *Registry[T]) Valid(h Handle) bool {
	_, err := r.Resolve(h)
	return err == nil
}

// Clone issues a new handle for the resource behind h.
func (r *Registry[T]) Clone(h Handle) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.lookup(h)
	if !ok {
		return Nil, status.InvalidHandle("handle.clone")
	}
	c := newHandle(r.kind)
	res.tokens[c.id] = struct{}{}
	r.entries[c.id] = res
	return c, nil
}

// Release retires h. When it was the resource's last token the destructor
// runs and all children are invalidated. Releasing a retired, unknown or
// zero handle is a no-op.
func (r *Registry[T]) Release(h Handle) error {
	r.mu.Lock()
	if h.IsZero() || h.kind != r.kind {
		r.mu.Unlock()
		return nil
	}
	res, ok := r.entries[h.id]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.entries, h.id)
	delete(res.tokens, h.id)
	if res.dead || len(res.tokens) > 0 {
		r.mu.Unlock()
		r.logger.Debug("handle released", zap.Stringer("handle", h))
		return nil
	}
	children, detach := r.retire(res)
	r.mu.Unlock()

	r.logger.Debug("resource released", zap.Stringer("handle", h), zap.Int("children", len(children)))
	settle(children, detach)
	return r.destroy(res)
}

// retire marks res dead and takes its links. r.mu must be held.
func (r *Registry[T]) retire(res *resource[T]) (map[uuid.UUID]func(), func()) {
	res.dead = true
	for id := range res.tokens {
		delete(r.entries, id)
	}
	res.tokens = nil
	children, detach := res.children, res.detach
	res.children, res.detach = nil, nil
	return children, detach
}

// settle runs the links taken by retire. No registry lock may be held.
func settle(children map[uuid.UUID]func(), detach func()) {
	if detach != nil {
		detach()
	}
	for _, kill := range children {
		kill()
	}
}

func (r *Registry[T]) destroy(res *resource[T]) error {
	if res.destroy == nil {
		return nil
	}
	return res.destroy(res.value)
}

// kill invalidates res without running its destructor.
func (r *Registry[T]) kill(res *resource[T]) {
	r.mu.Lock()
	if res.dead {
		r.mu.Unlock()
		return
	}
	children, detach := r.retire(res)
	r.mu.Unlock()

	settle(children, detach)
}

// Invalidate kills the resource behind h and every handle sharing it,
// without running its destructor. Children are invalidated too.
func (r *Registry[T]) Invalidate(h Handle) {
	r.mu.Lock()
	res, ok := r.lookup(h)
	r.mu.Unlock()
	if ok {
		r.kill(res)
	}
}

// InvalidateChildren kills every child of h while h stays live.
func (r *Registry[T]) InvalidateChildren(h Handle) error {
	r.mu.Lock()
	res, ok := r.lookup(h)
	if !ok {
		r.mu.Unlock()
		return status.InvalidHandle("handle.invalidate_children")
	}
	children := res.children
	res.children = nil
	r.mu.Unlock()

	settle(children, nil)
	return nil
}

// Len returns the number of live handles.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close destroys every live resource regardless of outstanding handles.
// Destructor errors are joined.
func (r *Registry[T]) Close() error {
	type link struct {
		children map[uuid.UUID]func()
		detach   func()
	}

	r.mu.Lock()
	var live []*resource[T]
	var links []link
	for _, res := range r.entries {
		if res.dead {
			continue
		}
		children, detach := r.retire(res)
		live = append(live, res)
		links = append(links, link{children, detach})
	}
	r.entries = make(map[uuid.UUID]*resource[T])
	r.mu.Unlock()

	var errs []error
	for i, res := range live {
		settle(links[i].children, links[i].detach)
		if err := r.destroy(res); err != nil {
			errs = append(errs, err)
		}
	}
	if len(live) > 0 {
		r.logger.Debug("registry closed", zap.Stringer("kind", r.kind), zap.Int("resources", len(live)))
	}
	return errors.Join(errs...)
}
