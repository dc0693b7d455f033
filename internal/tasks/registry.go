package tasks

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ErrTaskNotFound is returned when no config is registered for a (type, task) pair.
var ErrTaskNotFound = errors.New("task not found")

// Registry maps (adapter type, task name) to the task's config.
// It is safe for concurrent use; the watcher updates it while requests read it.
type Registry struct {
	mu     sync.RWMutex
	byType map[string]map[string]*Config // type -> task -> config
	logger *log.Logger
}

// NewRegistry creates an empty Registry. If logger is nil, a default logger
// writing to stderr is used.
func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.New(os.Stderr, "[tasks] ", log.LstdFlags)
	}
	return &Registry{
		byType: make(map[string]map[string]*Config),
		logger: logger,
	}
}

// Register adds or replaces the config for (typ, task). The config's Name and
// Type are set to match.
func (r *Registry) Register(typ, task string, cfg *Config) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.Type = typ
	cfg.Name = task

	r.mu.Lock()
	defer r.mu.Unlock()

	tasks, ok := r.byType[typ]
	if !ok {
		tasks = make(map[string]*Config)
		r.byType[typ] = tasks
	}
	tasks[task] = cfg
}

// Remove deletes the config for (typ, task). Removing an unknown task is a no-op.
func (r *Registry) Remove(typ, task string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tasks, ok := r.byType[typ]; ok {
		delete(tasks, task)
		if len(tasks) == 0 {
			delete(r.byType, typ)
		}
	}
}

// Lookup returns the config for (typ, task).
func (r *Registry) Lookup(typ, task string) (*Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.byType[typ][task]
	return cfg, ok
}

// Resolve returns the adapter key a task is configured for.
//
// The result depends only on the registered configs; Resolve has no side
// effects. An empty key is a valid mapping to the type's unnamed adapter.
func (r *Registry) Resolve(typ, task string) (string, error) {
	cfg, ok := r.Lookup(typ, task)
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrTaskNotFound, typ, task)
	}
	return cfg.OuterAdapterKey, nil
}

// Tasks returns the registered task names for typ, sorted.
func (r *Registry) Tasks(typ string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byType[typ]))
	for name := range r.byType[typ] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Types returns the adapter types that have at least one task, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.byType))
	for t := range r.byType {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// LoadFile reads one task file and registers it.
func (r *Registry) LoadFile(path string) (*Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	r.Register(cfg.Type, cfg.Name, cfg)
	return cfg, nil
}

// LoadDir reads every task file under confDir/<type>/ and registers it.
//
// Loading is resilient - an invalid file is logged and skipped. The function
// returns an error only if confDir itself cannot be read. A missing confDir
// loads nothing.
func (r *Registry) LoadDir(confDir string) (int, error) {
	if _, err := os.Stat(confDir); os.IsNotExist(err) {
		r.logger.Printf("Task config directory doesn't exist: %s (skipping)", confDir)
		return 0, nil
	}

	typeDirs, err := os.ReadDir(confDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read task config directory: %w", err)
	}

	loaded := 0
	for _, typeDir := range typeDirs {
		if !typeDir.IsDir() {
			continue
		}

		dir := filepath.Join(confDir, typeDir.Name())
		entries, err := os.ReadDir(dir)
		if err != nil {
			r.logger.Printf("WARNING: Failed to read %s: %v", dir, err)
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() || !IsTaskFile(entry.Name()) {
				continue
			}

			path := filepath.Join(dir, entry.Name())
			if _, err := r.LoadFile(path); err != nil {
				r.logger.Printf("WARNING: Failed to load task %s: %v", path, err)
				continue
			}
			loaded++
		}
	}

	r.logger.Printf("Loaded %d task configs from %s", loaded, confDir)
	return loaded, nil
}
