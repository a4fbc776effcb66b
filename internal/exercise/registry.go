package exercise

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the dispatch table from exercise name to definition.
// It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry creates a registry holding the built-in exercises.
func NewRegistry() *Registry {
	r := &Registry{defs: make(map[string]Definition)}
	for _, d := range []Definition{Curl(), Squat()} {
		r.defs[d.Name] = d
	}
	return r
}

// Get returns the definition registered under name.
func (r *Registry) Get(name string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.defs[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownExercise, name)
	}
	return d, nil
}

// Names returns the registered exercise names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all definitions sorted by name.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		defs = append(defs, d)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Register adds or replaces a custom definition. Built-in exercises cannot be
// replaced.
func (r *Registry) Register(d Definition) error {
	if err := d.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.defs[d.Name]; ok && existing.BuiltIn {
		return fmt.Errorf("%w: %s", ErrBuiltIn, d.Name)
	}
	d.BuiltIn = false
	r.defs[d.Name] = d
	return nil
}

// Unregister removes a custom definition. Removing a built-in is an error.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.defs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownExercise, name)
	}
	if d.BuiltIn {
		return fmt.Errorf("%w: %s", ErrBuiltIn, name)
	}
	delete(r.defs, name)
	return nil
}

// Resolve returns the named definition with the side applied. An empty side
// keeps the definition's default.
func (r *Registry) Resolve(name string, side Side) (Definition, error) {
	d, err := r.Get(name)
	if err != nil {
		return Definition{}, err
	}
	return d.WithSide(side)
}
