// Package etl implements the operator-facing ETL operations: ad-hoc and
// range backfills run under a guard, counts, and sync switch control.
package etl

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/mschirtzinger/etlguard/internal/adapter"
	"github.com/mschirtzinger/etlguard/internal/guard"
	"github.com/mschirtzinger/etlguard/internal/syncswitch"
)

// Resolver maps a task to the key of the adapter instance that runs it.
type Resolver interface {
	Resolve(typ, task string) (string, error)
}

// Dispatcher resolves an adapter instance.
type Dispatcher interface {
	Resolve(t adapter.Type, key string) (adapter.Handle, error)
}

// Config holds configuration for a Service.
type Config struct {
	// Destinations are the configured destinations reported by ListDestinations.
	Destinations []string

	// Observer receives progress events (nil = none)
	Observer Observer

	// Logger for ETL events (nil = default logger)
	Logger *log.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Observer: NopObserver{},
		Logger:   log.New(os.Stderr, "[etl] ", log.LstdFlags),
	}
}

// Service runs ETL operations. It is safe for concurrent use; operations on
// different lock keys proceed in parallel.
type Service struct {
	tasks    Resolver
	adapters Dispatcher
	guard    *guard.Guard
	switches syncswitch.Store
	config   *Config
}

// New creates a Service with the default configuration.
func New(tasks Resolver, adapters Dispatcher, g *guard.Guard, switches syncswitch.Store) (*Service, error) {
	return NewWithConfig(tasks, adapters, g, switches, DefaultConfig())
}

// NewWithConfig creates a Service with custom configuration.
func NewWithConfig(tasks Resolver, adapters Dispatcher, g *guard.Guard, switches syncswitch.Store, config *Config) (*Service, error) {
	if tasks == nil {
		return nil, fmt.Errorf("task resolver cannot be nil")
	}
	if adapters == nil {
		return nil, fmt.Errorf("adapter dispatcher cannot be nil")
	}
	if g == nil {
		return nil, fmt.Errorf("guard cannot be nil")
	}
	if switches == nil {
		return nil, fmt.Errorf("switch store cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Observer == nil {
		config.Observer = NopObserver{}
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[etl] ", log.LstdFlags)
	}

	return &Service{
		tasks:    tasks,
		adapters: adapters,
		guard:    g,
		switches: switches,
		config:   config,
	}, nil
}

// dispatch resolves the adapter for (typ, key, task). An empty key is
// looked up from the task configuration.
func (s *Service) dispatch(typ, key, task string) (string, adapter.Handle, error) {
	if key == "" {
		resolved, err := s.tasks.Resolve(typ, task)
		if err != nil {
			return "", nil, fmt.Errorf("failed to resolve adapter key: %w", err)
		}
		key = resolved
	}

	h, err := s.adapters.Resolve(adapter.Type(typ), key)
	if err != nil {
		return "", nil, err
	}
	return key, h, nil
}

// Etl runs one guarded adapter call for task with the filters parsed from
// filterExpr. An empty key is resolved from the task configuration.
//
// Resolution failures return a nil result and an error. Lock contention
// returns a failed result and no error; the adapter is not called. A switch
// left paused returns a failed result and an error matching
// guard.ErrSwitchRestore. Adapter failures are reported only in the result.
func (s *Service) Etl(ctx context.Context, typ, key, task, filterExpr string) (*adapter.EtlResult, error) {
	key, h, err := s.dispatch(typ, key, task)
	if err != nil {
		return nil, err
	}

	dest := h.Destination(task)
	filters := ParseFilters(filterExpr)

	s.config.Logger.Printf("Starting ETL type=%s key=%s task=%s filters=%v", typ, key, task, filters)
	s.config.Observer.EtlStarted(typ, key, task)

	var result *adapter.EtlResult
	err = s.guard.Run(ctx, typ, dest, task, func(ctx context.Context) error {
		result = h.Etl(ctx, task, filters)
		return nil
	})

	return s.finish(typ, task, dest, result, err)
}

// EtlRange runs a full backfill of task in id windows of size step covering
// [1, max). The whole run holds one guard. Windows run sequentially in
// ascending order; a failed window is logged and the run continues. The
// result is a success once every window has been attempted; per-window
// outcomes go to the observer.
func (s *Service) EtlRange(ctx context.Context, typ, task string, max, step int) (*adapter.EtlResult, error) {
	if step < 1 {
		return nil, fmt.Errorf("%w: step must be at least 1, got %d", ErrInvalidRange, step)
	}

	key, h, err := s.dispatch(typ, "", task)
	if err != nil {
		return nil, err
	}

	dest := h.Destination(task)

	s.config.Logger.Printf("Starting range ETL type=%s key=%s task=%s max=%d step=%d", typ, key, task, max, step)
	s.config.Observer.EtlStarted(typ, key, task)

	windows, failed := 0, 0
	var result *adapter.EtlResult
	err = s.guard.Run(ctx, typ, dest, task, func(ctx context.Context) error {
		for w := range Windows(max, step) {
			res := h.Etl(ctx, task, w.Params())
			if res == nil {
				res = adapter.Failed("adapter returned no result")
			}
			windows++
			if !res.Succeeded {
				failed++
				s.config.Logger.Printf("WARNING: Window %d-%d of %s failed: %s", w.Start, w.End, task, res.ErrorMessage)
			} else {
				s.config.Logger.Printf("Window %d-%d of %s done", w.Start, w.End, task)
			}
			s.config.Observer.WindowDone(typ, task, w, res)
		}

		result = adapter.Success(fmt.Sprintf("range etl of %s finished: %d windows, %d failed", task, windows, failed))
		return nil
	})

	return s.finish(typ, task, dest, result, err)
}

// finish turns a guard outcome into the operation result.
func (s *Service) finish(typ, task, dest string, result *adapter.EtlResult, err error) (*adapter.EtlResult, error) {
	switch {
	case err == nil:
		if result == nil {
			result = adapter.Failed("adapter returned no result")
		}

	case guard.IsBusy(err):
		result = adapter.Failed(err.Error())
		err = nil

	case guard.IsRestoreFailure(err):
		msg := fmt.Sprintf("incremental sync for %s is still paused: %v",
			guard.EffectiveDestination(dest, task), err)
		s.config.Logger.Printf("ERROR: %s", msg)
		restored := &adapter.EtlResult{Succeeded: false, ErrorMessage: msg}
		if result != nil {
			restored.ResultMessage = result.ResultMessage
		}
		result = restored

	default:
		s.config.Logger.Printf("ERROR: ETL of %s could not run: %v", task, err)
		result = adapter.Failed(err.Error())
	}

	s.config.Observer.EtlFinished(typ, task, result)
	return result, err
}

// Count returns the adapter's statistics for task. An empty key is
// resolved from the task configuration.
func (s *Service) Count(ctx context.Context, typ, key, task string) (map[string]any, error) {
	_, h, err := s.dispatch(typ, key, task)
	if err != nil {
		return nil, err
	}
	return h.Count(ctx, task)
}
