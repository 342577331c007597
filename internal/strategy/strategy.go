// Package strategy defines the Strategy interface for signal generators and
// provides a Registry for looking up strategy factories by id.
package strategy

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"strategylab/internal/domain"
)

// ErrUnknownStrategy is returned when a strategy id has no registered factory.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Strategy maps a bar index to a directional signal. Implementations must be
// pure: Signal may only read bars[:i+1], must not retain state between calls
// and must return identical output for identical input.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Warmup returns the number of leading bars for which the strategy cannot
	// produce a signal.
	Warmup() int

	// Signal returns the signal for bar i given the history up to and
	// including it.
	Signal(bars []domain.Bar, i int) domain.SignalType
}

// BatchStrategy is implemented by strategies that can evaluate a whole
// series in one pass. Signals(bars)[i] must equal Signal(bars, i).
type BatchStrategy interface {
	Strategy
	Signals(bars []domain.Bar) []domain.SignalType
}

// Factory builds a Strategy from parameters, validating them.
type Factory func(params domain.Params) (Strategy, error)

// Registry holds a named collection of strategy factories. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under id, replacing any previous registration.
func (r *Registry) Register(id string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = f
}

// Get retrieves a factory by id. The second return value indicates whether
// the id was found.
func (r *Registry) Get(id string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[id]
	return f, ok
}

// Build looks up id and constructs a strategy with params.
func (r *Registry) Build(id string, params domain.Params) (Strategy, error) {
	f, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, id)
	}
	return f(params)
}

// List returns a sorted slice of all registered strategy ids.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
