package etl

import (
	"context"
	"fmt"

	"github.com/mschirtzinger/etlguard/internal/syncswitch"
)

// Switch verbs, also used to render switch states.
const (
	StatusOn  = "on"
	StatusOff = "off"
)

// DestinationStatus is one row of the destination listing.
type DestinationStatus struct {
	Destination string `json:"destination"`
	Status      string `json:"status"`
}

// Render returns "on" or "off".
func Render(on bool) string {
	if on {
		return StatusOn
	}
	return StatusOff
}

// IsSyncOn reports whether incremental sync is on for destination.
func (s *Service) IsSyncOn(ctx context.Context, destination string) (bool, error) {
	return s.switches.Status(ctx, destination)
}

// ListDestinations returns the live switch state of every configured
// destination, in configuration order with duplicates removed.
func (s *Service) ListDestinations(ctx context.Context) ([]DestinationStatus, error) {
	seen := make(map[string]bool, len(s.config.Destinations))
	out := make([]DestinationStatus, 0, len(s.config.Destinations))

	for _, dest := range s.config.Destinations {
		if dest == "" || seen[dest] {
			continue
		}
		seen[dest] = true

		on, err := s.switches.Status(ctx, dest)
		if err != nil {
			return nil, fmt.Errorf("failed to read switch for %s: %w", dest, err)
		}
		out = append(out, DestinationStatus{Destination: dest, Status: Render(on)})
	}
	return out, nil
}

// SetSync turns incremental sync for destination on or off, outside of any
// guard. verb must be "on" or "off"; anything else returns ErrUnknownVerb
// and changes nothing. The returned message names the destination.
//
// Overriding a switch while a guarded run for the same destination is in
// flight races with that run's restore; callers must avoid it.
func (s *Service) SetSync(ctx context.Context, destination, verb string) (string, error) {
	var on bool
	switch verb {
	case StatusOn:
		on = true
	case StatusOff:
		on = false
	default:
		return "", fmt.Errorf("%w %q for destination %s", ErrUnknownVerb, verb, destination)
	}

	if err := syncswitch.Set(ctx, s.switches, destination, on); err != nil {
		return "", err
	}

	s.config.Logger.Printf("Destination %s sync %s", destination, verb)
	s.config.Observer.SwitchChanged(destination, on)
	return fmt.Sprintf("destination %s sync %s", destination, verb), nil
}
