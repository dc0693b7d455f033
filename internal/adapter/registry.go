package adapter

import (
	"fmt"
	"sort"
	"sync"
)

type instanceKey struct {
	typ Type
	key string
}

// Registry maps (Type, key) to adapter instances. It is populated at startup
// and is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	instances map[instanceKey]Handle
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{instances: make(map[instanceKey]Handle)}
}

// Register adds an adapter instance. An empty key registers the type's
// unnamed instance.
//
// Register panics if h is nil or if (t, key) is already registered.
func (r *Registry) Register(t Type, key string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h == nil {
		panic(fmt.Sprintf("adapter: Register handle is nil for %s/%s", t, key))
	}

	k := instanceKey{typ: t, key: key}
	if _, exists := r.instances[k]; exists {
		panic(fmt.Sprintf("adapter: Register called twice for %s/%s", t, key))
	}

	r.instances[k] = h
}

// Resolve returns the adapter instance for (t, key).
func (r *Registry) Resolve(t Type, key string) (Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.instances[instanceKey{typ: t, key: key}]
	if !ok {
		return nil, fmt.Errorf("%w: type=%s key=%s", ErrAdapterNotFound, t, key)
	}
	return h, nil
}

// Keys returns the registered keys for t, sorted.
func (r *Registry) Keys(t Type) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var keys []string
	for k := range r.instances {
		if k.typ == t {
			keys = append(keys, k.key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Types returns every type with at least one registered instance, sorted.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[Type]bool)
	for k := range r.instances {
		seen[k.typ] = true
	}

	types := make([]Type, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Load builds an instance for every spec with the registered factories and
// registers it. It stops at the first failure.
func (r *Registry) Load(specs []Spec, env Env) error {
	for _, spec := range specs {
		h, err := New(spec, env)
		if err != nil {
			return fmt.Errorf("failed to create adapter %s/%s: %w", spec.Type, spec.Key, err)
		}
		r.Register(spec.Type, spec.Key, h)
	}
	return nil
}
