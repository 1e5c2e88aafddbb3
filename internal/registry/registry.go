package registry

import (
	"sort"
	"sync"
)

// Origin records where a registration came from.
type Origin string

const (
	OriginBuiltin Origin = "builtin"
	OriginConfig  Origin = "config"
)

// Entry is one registered program.
type Entry struct {
	Name      string
	Signature Signature
	Origin    Origin // builtin, config, or the path of a types script
}

// Registry maps program names to stream signatures. It is safe for
// concurrent use; later registrations replace earlier ones.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New creates an empty registry. Use RegisterDefaults to add the
// built-in signatures.
func New() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds or replaces the signature for name.
func (r *Registry) Register(name string, sig Signature, origin Origin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = Entry{Name: name, Signature: sig, Origin: origin}
}

// Lookup returns the registration for name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Resolve returns the signature for name, or Unknown if the program is
// not registered.
func (r *Registry) Resolve(name string) Signature {
	if e, ok := r.Lookup(name); ok {
		return e.Signature
	}
	return Unknown
}

// All returns every registration sorted by name.
func (r *Registry) All() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries
}
