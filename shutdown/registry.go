package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Func is a cleanup step run during shutdown.
type Func func(ctx context.Context) error

// Cleanup priorities. Lower runs first.
const (
	PriorityInterpreters = 10 // release interpreter handles before their models
	PriorityRuntime      = 20
	PriorityReport       = 30
	PriorityLogger       = 90 // flush last so earlier steps are logged
)

type entry struct {
	name     string
	priority int
	fn       Func
}

// Registry holds cleanup steps ordered by priority. Steps with equal
// priority run in registration order.
type Registry struct {
	mu      sync.Mutex
	entries []entry
	closed  bool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a cleanup step. Registration after Run is a no-op.
func (r *Registry) Register(name string, priority int, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.entries = append(r.entries, entry{name: name, priority: priority, fn: fn})
}

// Run executes every step once, in priority order, and joins their errors.
// Subsequent calls return nil.
func (r *Registry) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	steps := r.sorted()
	r.mu.Unlock()

	var errs []error
	for _, e := range steps {
		if err := e.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
		}
	}
	return errors.Join(errs...)
}

// Names returns step names in execution order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	steps := r.sorted()
	names := make([]string, len(steps))
	for i, e := range steps {
		names[i] = e.name
	}
	return names
}

// Len returns the number of registered steps.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) sorted() []entry {
	out := make([]entry, len(r.entries))
	copy(out, r.entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].priority < out[j].priority
	})
	return out
}
