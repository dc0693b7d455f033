// Package adaptertest provides an in-memory adapter that records the calls
// it receives, for tests of code that drives adapters.
package adaptertest

import (
	"context"
	"sync"

	"github.com/mschirtzinger/etlguard/internal/adapter"
)

// Call is one recorded Etl invocation.
type Call struct {
	Task    string
	Filters []string
}

// Recorder is an adapter.Handle that records every Etl call.
type Recorder struct {
	// Dest is returned by Destination for every task.
	Dest string

	// OnEtl, if set, is called for every Etl invocation and its result is
	// returned. Otherwise Etl succeeds.
	OnEtl func(ctx context.Context, task string, filters []string) *adapter.EtlResult

	// Counts is returned by Count.
	Counts map[string]any

	mu    sync.Mutex
	calls []Call
}

// Destination implements adapter.Handle.
func (r *Recorder) Destination(task string) string {
	return r.Dest
}

// Etl implements adapter.Handle.
func (r *Recorder) Etl(ctx context.Context, task string, filters []string) *adapter.EtlResult {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Task: task, Filters: filters})
	r.mu.Unlock()

	if r.OnEtl != nil {
		return r.OnEtl(ctx, task, filters)
	}
	return adapter.Success("")
}

// Count implements adapter.Handle.
func (r *Recorder) Count(ctx context.Context, task string) (map[string]any, error) {
	if r.Counts == nil {
		return map[string]any{"count": 0}, nil
	}
	return r.Counts, nil
}

// Calls returns a copy of the recorded Etl calls, in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}
