package syncswitch

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process switch store, safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	switches map[string]State
	now      func() time.Time
}

// NewMemory creates an empty in-process switch store.
func NewMemory() *Memory {
	return &Memory{
		switches: make(map[string]State),
		now:      time.Now,
	}
}

// Status implements Store.Status.
func (m *Memory) Status(ctx context.Context, destination string) (bool, error) {
	if destination == "" {
		return false, ErrEmptyDestination
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.switches[destination]
	if !ok {
		return true, nil
	}
	return st.On, nil
}

// On implements Store.On.
func (m *Memory) On(ctx context.Context, destination string) error {
	return m.set(destination, true)
}

// Off implements Store.Off.
func (m *Memory) Off(ctx context.Context, destination string) error {
	return m.set(destination, false)
}

func (m *Memory) set(destination string, on bool) error {
	if destination == "" {
		return ErrEmptyDestination
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.switches[destination] = State{
		Destination: destination,
		On:          on,
		UpdatedAt:   m.now(),
	}
	return nil
}

// Destinations implements Store.Destinations.
func (m *Memory) Destinations(ctx context.Context) ([]State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make([]State, 0, len(m.switches))
	for _, st := range m.switches {
		states = append(states, st)
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].Destination < states[j].Destination
	})
	return states, nil
}
