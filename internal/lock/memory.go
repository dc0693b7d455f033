package lock

import (
	"context"
	"log"
	"os"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process lock registry. It is safe for concurrent use.
type Memory struct {
	mu     sync.Mutex
	leases map[string]Lease // path -> lease
	owner  string
	logger *log.Logger
	now    func() time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithMemoryOwner sets the owner recorded on leases. An empty owner keeps
// the default.
func WithMemoryOwner(owner string) MemoryOption {
	return func(m *Memory) {
		if owner != "" {
			m.owner = owner
		}
	}
}

// WithMemoryLogger sets the logger used for release warnings.
func WithMemoryLogger(logger *log.Logger) MemoryOption {
	return func(m *Memory) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMemory creates an empty in-process lock registry.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		leases: make(map[string]Lease),
		owner:  DefaultOwner(),
		logger: log.New(os.Stderr, "[lock] ", log.LstdFlags),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TryAcquire implements Store.TryAcquire.
func (m *Memory) TryAcquire(ctx context.Context, path string) (bool, error) {
	if path == "" {
		return false, ErrEmptyPath
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.leases[path]; held {
		return false, nil
	}
	m.leases[path] = Lease{
		Path:       path,
		Owner:      m.owner,
		AcquiredAt: m.now(),
	}
	return true, nil
}

// Release implements Store.Release.
func (m *Memory) Release(ctx context.Context, path string) error {
	if path == "" {
		return ErrEmptyPath
	}

	m.mu.Lock()
	_, held := m.leases[path]
	delete(m.leases, path)
	m.mu.Unlock()

	if !held {
		m.logger.Printf("WARNING: release of %s: %v", path, ErrNotHeld)
	}
	return nil
}

// List implements Store.List.
func (m *Memory) List(ctx context.Context) ([]Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	leases := make([]Lease, 0, len(m.leases))
	for _, l := range m.leases {
		leases = append(leases, l)
	}
	sort.Slice(leases, func(i, j int) bool {
		return leases[i].Path < leases[j].Path
	})
	return leases, nil
}

// Held reports whether path is currently locked.
func (m *Memory) Held(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, held := m.leases[path]
	return held
}
