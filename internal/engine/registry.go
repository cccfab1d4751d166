package engine

import (
	"fmt"
	"maps"
	"slices"

	"github.com/linuxmatters/sigtrace/internal/results"
)

// Method is a measurement implementation. It reads the context, never modifies it,
// and returns structured output or an error.
type Method func(ctx *Context, params Params) (results.Output, error)

// Entry describes a registered method.
type Entry struct {
	ID          string
	Category    string
	Description string
	Func        Method
	Defaults    Params
}

// Registry maps method identifiers to entries. It is built once and read-only after.
type Registry struct {
	entries map[string]Entry
	order   []string
}

// NewRegistry registers entries in order. Any duplicate identifier is an error, so a
// misconfigured build fails at startup rather than at lookup.
func NewRegistry(entries ...Entry) (*Registry, error) {
	r := &Registry{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if err := r.register(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) register(e Entry) error {
	if e.ID == "" || e.Func == nil {
		return fmt.Errorf("method entry %q is incomplete", e.ID)
	}
	if prev, dup := r.entries[e.ID]; dup {
		return fmt.Errorf("%w: %q in %s and %s", ErrDuplicateMethod, e.ID, prev.Category, e.Category)
	}
	e.Defaults = maps.Clone(e.Defaults)
	r.entries[e.ID] = e
	r.order = append(r.order, e.ID)
	return nil
}

// Resolve returns the entry for id.
func (r *Registry) Resolve(id string) (Entry, error) {
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownMethod, id)
	}
	return e, nil
}

// Entries returns every entry in registration order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id])
	}
	return out
}

// Categories returns the distinct categories in first-registration order.
func (r *Registry) Categories() []string {
	var out []string
	for _, id := range r.order {
		if c := r.entries[id].Category; !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

// Len returns the number of registered methods.
func (r *Registry) Len() int { return len(r.order) }
