package adapter

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/mschirtzinger/etlguard/internal/tasks"
)

// Spec describes one adapter instance to construct, as listed in the
// service configuration.
type Spec struct {
	Type        Type              `mapstructure:"type"`
	Key         string            `mapstructure:"key"`
	DSN         string            `mapstructure:"dsn"`
	Destination string            `mapstructure:"destination"`
	Options     map[string]string `mapstructure:"options"`
}

// Env carries the shared dependencies a factory may need.
type Env struct {
	// Tasks resolves task names to their configs.
	Tasks *tasks.Registry

	// Logger for the adapter (nil = adapter default)
	Logger *log.Logger
}

// Factory constructs an adapter instance from a Spec.
type Factory func(spec Spec, env Env) (Handle, error)

var (
	factories      = make(map[Type]Factory)
	factoriesMutex sync.RWMutex
)

// RegisterFactory registers the constructor for an adapter type.
// This is called from init() functions in implementation packages.
//
// Example:
//
//	func init() {
//	    adapter.RegisterFactory(adapter.TypeRDB, New)
//	}
func RegisterFactory(t Type, f Factory) {
	factoriesMutex.Lock()
	defer factoriesMutex.Unlock()

	if f == nil {
		panic(fmt.Sprintf("adapter: RegisterFactory factory is nil for type %s", t))
	}
	if _, exists := factories[t]; exists {
		panic(fmt.Sprintf("adapter: RegisterFactory called twice for type %s", t))
	}

	factories[t] = f
}

// New constructs an adapter instance with the factory registered for
// spec.Type.
func New(spec Spec, env Env) (Handle, error) {
	factoriesMutex.RLock()
	f := factories[spec.Type]
	factoriesMutex.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, spec.Type)
	}
	return f(spec, env)
}

// FactoryTypes returns all types with a registered factory, sorted.
func FactoryTypes() []Type {
	factoriesMutex.RLock()
	defer factoriesMutex.RUnlock()

	types := make([]Type, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
