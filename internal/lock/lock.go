// Package lock provides the mutual-exclusion primitive used to keep two ETL
// runs for the same target from overlapping.
//
// A lock is identified by a string path such as "/sync-etl/es7-example".
// Acquisition never blocks: TryAcquire either takes the lock or reports that
// somebody else holds it. Release tolerates paths the caller does not hold.
//
// Two implementations are provided:
//   - [Memory]: an in-process registry, for tests and single-node deployments
//   - [SQL]: lease rows in the shared coordination database, for multi-node deployments
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

// Sentinel errors returned by lock stores.
var (
	// ErrEmptyPath is returned when a lock operation is given an empty path.
	ErrEmptyPath = errors.New("lock path is empty")

	// ErrNotHeld is reported (logged, never returned from Release) when a path
	// is released that this store does not hold.
	ErrNotHeld = errors.New("lock is not held")
)

// Store is a non-blocking mutual-exclusion primitive keyed by path.
type Store interface {
	// TryAcquire attempts to take the lock at path without waiting.
	// It returns false, nil when the lock is held by someone else.
	TryAcquire(ctx context.Context, path string) (bool, error)

	// Release gives up the lock at path. Releasing a path that is not held
	// by this store is a no-op.
	Release(ctx context.Context, path string) error

	// List returns the currently held leases, ordered by path.
	List(ctx context.Context) ([]Lease, error)
}

// Lease describes a held lock.
type Lease struct {
	Path       string    `json:"path"`
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
	// ExpiresAt is zero for stores without lease expiry.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the lease has passed its expiry at time now.
func (l Lease) Expired(now time.Time) bool {
	return !l.ExpiresAt.IsZero() && !now.Before(l.ExpiresAt)
}

var tokenSeq atomic.Uint64

// DefaultOwner returns an owner id for this process: "<hostname>-<pid>".
func DefaultOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// newToken returns an acquisition token unique within the process.
func newToken(owner string) string {
	return fmt.Sprintf("%s-%d", owner, tokenSeq.Add(1))
}
