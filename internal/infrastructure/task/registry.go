package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dropcraft/backend/internal/infrastructure/queue"
)

var (
	ErrDuplicateHandler = errors.New("task: handler already registered")
	ErrUnknownTask      = errors.New("task: no handler registered for task")
)

// Handler executes one task delivery and reduces it to an outcome. Handlers
// must be idempotent: at-least-once delivery means the same task id can be
// executed more than once.
type Handler func(ctx context.Context, t *queue.Task) Outcome

// Registry maps task names to handlers. Registration happens at startup;
// lookups are concurrent.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a task name. Registering the same name twice
// is a wiring bug and fails loudly.
func (r *Registry) Register(name string, h Handler) error {
	if name == "" {
		return queue.ErrEmptyTaskName
	}
	if h == nil {
		return fmt.Errorf("task: nil handler for %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, name)
	}
	r.handlers[name] = h
	return nil
}

// MustRegister is Register that panics, for static startup wiring.
func (r *Registry) MustRegister(name string, h Handler) {
	if err := r.Register(name, h); err != nil {
		panic(err)
	}
}

// Resolve returns the handler for a task name.
func (r *Registry) Resolve(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return h, nil
}

// Names returns the registered task names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
