// Package syncswitch provides the per-destination on/off switch that gates
// incremental delivery.
//
// The incremental pipeline checks a destination's switch before delivering each
// unit of work and holds back while it is off. A backfill turns the switch off
// for its destination while it runs and restores it afterwards.
//
// A destination that has never been switched is on.
package syncswitch

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrEmptyDestination is returned when a switch operation is given an empty destination.
var ErrEmptyDestination = errors.New("destination is empty")

// Store is the durable destination -> enabled mapping.
type Store interface {
	// Status reports whether incremental sync is on for destination.
	Status(ctx context.Context, destination string) (bool, error)

	// On enables incremental sync for destination.
	On(ctx context.Context, destination string) error

	// Off disables incremental sync for destination.
	Off(ctx context.Context, destination string) error

	// Destinations returns every destination with a recorded switch, ordered by name.
	Destinations(ctx context.Context) ([]State, error)
}

// State is the recorded switch for one destination.
type State struct {
	Destination string    `json:"destination"`
	On          bool      `json:"on"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Set turns the switch for destination on or off.
func Set(ctx context.Context, s Store, destination string, on bool) error {
	if on {
		return s.On(ctx, destination)
	}
	return s.Off(ctx, destination)
}

// DefaultPollInterval is how often Wait re-reads the switch.
const DefaultPollInterval = time.Second

// Wait blocks until the switch for destination is on, polling every interval.
// The incremental pipeline calls this before delivering each batch.
// It returns ctx.Err() if the context ends first.
func Wait(ctx context.Context, s Store, destination string, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		on, err := s.Status(ctx, destination)
		if err != nil {
			return fmt.Errorf("failed to read switch for %s: %w", destination, err)
		}
		if on {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
