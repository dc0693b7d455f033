// Package guard runs a backfill body under exclusive, switch-coordinated
// execution.
//
// A guarded run:
//  1. takes the lock for prefix + type + "-" + (destination or task) without waiting
//  2. records whether incremental sync is on for the destination and, if so, turns it off
//  3. runs the body
//  4. turns the switch back on if it was on before, even when the body failed or panicked
//  5. releases the lock, even when the restore failed
//
// Contention is reported as a *BusyError before anything else happens. A
// switch that could not be restored is reported as a *SwitchRestoreError
// carried next to the body's own error in a *GuardError.
package guard

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/mschirtzinger/etlguard/internal/lock"
	"github.com/mschirtzinger/etlguard/internal/syncswitch"
)

// DefaultPrefix is the namespace of ETL lock paths.
const DefaultPrefix = "/sync-etl/"

// Config holds configuration for a Guard.
type Config struct {
	// Prefix is prepended to every lock key.
	Prefix string

	// RestoreAttempts is how many times turning a switch back on is tried
	// before the failure is reported.
	RestoreAttempts int

	// RestoreBackoff is the wait before the second restore attempt; it grows
	// linearly with each further attempt.
	RestoreBackoff time.Duration

	// Observer receives lock and switch events (nil = none)
	Observer Observer

	// Logger for guard events (nil = default logger)
	Logger *log.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Prefix:          DefaultPrefix,
		RestoreAttempts: 3,
		RestoreBackoff:  200 * time.Millisecond,
		Observer:        NopObserver{},
		Logger:          log.New(os.Stderr, "[guard] ", log.LstdFlags),
	}
}

// Guard coordinates guarded runs over a lock store and a switch store.
// It holds no per-run state and is safe for concurrent use.
type Guard struct {
	locks    lock.Store
	switches syncswitch.Store
	config   *Config
}

// New creates a Guard with the default configuration.
func New(locks lock.Store, switches syncswitch.Store) (*Guard, error) {
	return NewWithConfig(locks, switches, DefaultConfig())
}

// NewWithConfig creates a Guard with custom configuration. Zero fields of
// config take their defaults.
func NewWithConfig(locks lock.Store, switches syncswitch.Store, config *Config) (*Guard, error) {
	if locks == nil {
		return nil, fmt.Errorf("lock store cannot be nil")
	}
	if switches == nil {
		return nil, fmt.Errorf("switch store cannot be nil")
	}

	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.Prefix == "" {
		config.Prefix = defaults.Prefix
	}
	if config.RestoreAttempts < 1 {
		config.RestoreAttempts = defaults.RestoreAttempts
	}
	if config.Observer == nil {
		config.Observer = defaults.Observer
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Guard{locks: locks, switches: switches, config: config}, nil
}

// EffectiveDestination returns destination, or task when the adapter
// reports no destination.
func EffectiveDestination(destination, task string) string {
	if destination == "" {
		return task
	}
	return destination
}

// LockKey returns the lock path for a run of task of adapter type typ.
func (g *Guard) LockKey(typ, destination, task string) string {
	return g.config.Prefix + typ + "-" + EffectiveDestination(destination, task)
}

// Run executes body under the lock for (typ, destination or task) with the
// destination's switch turned off.
//
// If the lock is held, Run returns a *BusyError without running body. If
// body panics, cleanup still runs and the panic propagates. The context
// passed to body is ctx; cleanup runs on a context that ignores ctx's
// cancellation.
func (g *Guard) Run(ctx context.Context, typ, destination, task string, body func(ctx context.Context) error) (err error) {
	key := g.LockKey(typ, destination, task)
	dest := EffectiveDestination(destination, task)
	cleanupCtx := context.WithoutCancel(ctx)

	acquired, err := g.locks.TryAcquire(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !acquired {
		g.config.Logger.Printf("Lock %s is held, rejecting %s", key, task)
		g.config.Observer.LockBusy(key, task)
		return &BusyError{Task: task, Key: key}
	}
	g.config.Observer.LockAcquired(key)

	// Deferred first so it runs last, after the switch restore.
	defer g.release(cleanupCtx, key)

	prior, err := g.switches.Status(ctx, dest)
	if err != nil {
		return fmt.Errorf("failed to read sync switch for %s: %w", dest, err)
	}

	if prior {
		if err := g.switches.Off(ctx, dest); err != nil {
			return fmt.Errorf("failed to pause sync for %s: %w", dest, err)
		}
		g.config.Logger.Printf("Paused incremental sync for %s", dest)
		g.config.Observer.SwitchChanged(dest, false)

		defer func() {
			if restoreErr := g.restore(cleanupCtx, dest); restoreErr != nil {
				err = withCleanup(err, restoreErr)
			}
		}()
	}

	return body(ctx)
}

// restore turns dest back on, retrying with linear backoff.
func (g *Guard) restore(ctx context.Context, dest string) error {
	attempts := g.config.RestoreAttempts

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = g.switches.On(ctx, dest); err == nil {
			g.config.Logger.Printf("Resumed incremental sync for %s", dest)
			g.config.Observer.SwitchChanged(dest, true)
			return nil
		}

		g.config.Logger.Printf("WARNING: Failed to resume sync for %s (attempt %d/%d): %v",
			dest, attempt, attempts, err)
		if attempt < attempts && g.config.RestoreBackoff > 0 {
			time.Sleep(g.config.RestoreBackoff * time.Duration(attempt))
		}
	}

	g.config.Logger.Printf("ERROR: Incremental sync for %s is still paused", dest)
	return &SwitchRestoreError{Destination: dest, Attempts: attempts, Err: err}
}

// release gives up key. Failures are logged only; the lock store's lease
// expiry reclaims the lock.
func (g *Guard) release(ctx context.Context, key string) {
	if err := g.locks.Release(ctx, key); err != nil {
		g.config.Logger.Printf("WARNING: Failed to release lock %s: %v", key, err)
		return
	}
	g.config.Observer.LockReleased(key)
}
