package core

// Registry is the ordered mapping from source key to Table.
//
// Keys keep their first-insertion position: replacing an existing key swaps
// the table in place, it never moves to the end and is never merged with the
// previous table. A Registry is not safe for concurrent use; the owning
// Session serializes access.
type Registry struct {
	keys   []string
	tables map[string]Source
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]Source)}
}

// Put stores src under src.Key and reports whether an entry was replaced.
func (r *Registry) Put(src Source) (replaced bool) {
	if _, exists := r.tables[src.Key]; exists {
		r.tables[src.Key] = src
		return true
	}
	r.keys = append(r.keys, src.Key)
	r.tables[src.Key] = src
	return false
}

// Get returns the source stored under key.
func (r *Registry) Get(key string) (Source, bool) {
	src, ok := r.tables[key]
	return src, ok
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	return len(r.keys)
}

// Keys returns the source keys in registry order.
func (r *Registry) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Sources returns every entry in registry order.
func (r *Registry) Sources() []Source {
	out := make([]Source, len(r.keys))
	for i, k := range r.keys {
		out[i] = r.tables[k]
	}
	return out
}

// ReplaceAll swaps the tables of every listed source in one step.
// All keys must already exist; otherwise nothing is changed and false is returned.
func (r *Registry) ReplaceAll(srcs []Source) bool {
	for _, src := range srcs {
		if _, ok := r.tables[src.Key]; !ok {
			return false
		}
	}
	for _, src := range srcs {
		r.tables[src.Key] = src
	}
	return true
}

// Clone returns a shallow copy. Tables are shared since they are immutable.
func (r *Registry) Clone() *Registry {
	c := &Registry{
		keys:   make([]string, len(r.keys)),
		tables: make(map[string]Source, len(r.tables)),
	}
	copy(c.keys, r.keys)
	for k, v := range r.tables {
		c.tables[k] = v
	}
	return c
}

// Clear removes all entries.
func (r *Registry) Clear() {
	r.keys = nil
	r.tables = make(map[string]Source)
}
