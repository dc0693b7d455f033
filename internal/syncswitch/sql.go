package syncswitch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQL stores switches in the sync_switches table of the coordination database,
// where every launcher node and the incremental pipeline can observe them.
type SQL struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQL creates a switch store over db. The sync_switches table must already
// exist (see store.DB.InitSchema).
func NewSQL(db *sql.DB) (*SQL, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	return &SQL{db: db, now: time.Now}, nil
}

// Status implements Store.Status.
func (s *SQL) Status(ctx context.Context, destination string) (bool, error) {
	if destination == "" {
		return false, ErrEmptyDestination
	}

	var enabled int
	err := s.db.QueryRowContext(ctx,
		`SELECT enabled FROM sync_switches WHERE destination = ?`, destination).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read switch for %s: %w", destination, err)
	}
	return enabled != 0, nil
}

// On implements Store.On.
func (s *SQL) On(ctx context.Context, destination string) error {
	return s.set(ctx, destination, true)
}

// Off implements Store.Off.
func (s *SQL) Off(ctx context.Context, destination string) error {
	return s.set(ctx, destination, false)
}

func (s *SQL) set(ctx context.Context, destination string, on bool) error {
	if destination == "" {
		return ErrEmptyDestination
	}

	enabled := 0
	if on {
		enabled = 1
	}

	query := `
	INSERT INTO sync_switches (destination, enabled, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(destination) DO UPDATE SET
		enabled = excluded.enabled,
		updated_at = excluded.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query, destination, enabled, s.now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to set switch for %s: %w", destination, err)
	}
	return nil
}

// Destinations implements Store.Destinations.
func (s *SQL) Destinations(ctx context.Context) ([]State, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT destination, enabled, updated_at
	FROM sync_switches
	ORDER BY destination ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list switches: %w", err)
	}
	defer rows.Close()

	var states []State
	for rows.Next() {
		var st State
		var enabled int
		var updatedAt int64
		if err := rows.Scan(&st.Destination, &enabled, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan switch: %w", err)
		}
		st.On = enabled != 0
		st.UpdatedAt = time.UnixMilli(updatedAt)
		states = append(states, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating switches: %w", err)
	}

	return states, nil
}
