package command

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Registry maps case-folded names and aliases to descriptors. A registry is
// filled while it is private to its builder and treated as read-only once
// published through Live.
type Registry struct {
	mu     sync.RWMutex
	prefix string
	keys   map[string]*Descriptor
	order  []*Descriptor
}

// NewRegistry creates an empty registry. prefix is only used to build default
// usage hints.
func NewRegistry(prefix string) *Registry {
	return &Registry{
		prefix: prefix,
		keys:   make(map[string]*Descriptor),
	}
}

// Prefix returns the command prefix the registry was built for.
func (r *Registry) Prefix() string {
	return r.prefix
}

// Register validates d, fills defaults and inserts it under its name and all
// aliases. The stored copy is returned. On error the registry is unchanged.
func (r *Registry) Register(d *Descriptor) (*Descriptor, error) {
	nd, err := d.normalized(r.prefix)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range nd.Names() {
		if existing, ok := r.keys[key]; ok {
			return nil, &DuplicateNameError{Name: key, Command: nd.Name, Existing: existing.Name}
		}
	}
	for _, key := range nd.Names() {
		r.keys[key] = nd
	}
	r.order = append(r.order, nd)
	return nd, nil
}

// MustRegister is Register for static built-in tables; it panics on error.
func (r *Registry) MustRegister(d *Descriptor) *Descriptor {
	nd, err := r.Register(d)
	if err != nil {
		panic(err)
	}
	return nd
}

// Resolve looks up a primary name or alias, ignoring case.
func (r *Registry) Resolve(nameOrAlias string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.keys[foldName(nameOrAlias)]
	return d, ok
}

// Primaries returns primary descriptors in registration order.
func (r *Registry) Primaries() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of primary descriptors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// ListByCategory groups primary descriptors by category, each group in
// registration order. Aliases never appear as separate entries.
func (r *Registry) ListByCategory() map[string][]*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]*Descriptor)
	for _, d := range r.order {
		out[d.Category] = append(out[d.Category], d)
	}
	return out
}

// Categories returns the sorted category names.
func (r *Registry) Categories() []string {
	byCat := r.ListByCategory()
	cats := make([]string, 0, len(byCat))
	for c := range byCat {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

// Live holds the registry currently used for dispatch. Readers never block;
// a reload builds a new Registry and swaps it in whole.
type Live struct {
	p atomic.Pointer[Registry]
}

// NewLive publishes an initial registry.
func NewLive(r *Registry) *Live {
	l := &Live{}
	l.p.Store(r)
	return l
}

// Load returns the current registry.
func (l *Live) Load() *Registry {
	return l.p.Load()
}

// Swap publishes next and returns the previous registry.
func (l *Live) Swap(next *Registry) *Registry {
	return l.p.Swap(next)
}
