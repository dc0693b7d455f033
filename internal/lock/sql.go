package lock

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// DefaultTTL is the lease length used when SQLConfig.TTL is zero. It bounds how
// long a crashed node can keep a target locked; it must exceed the longest backfill.
const DefaultTTL = 24 * time.Hour

// SQLConfig configures a SQL lock store.
type SQLConfig struct {
	// Owner identifies this node on lease rows (default: DefaultOwner()).
	Owner string

	// TTL is the lease length. Expired leases may be taken over by any node.
	TTL time.Duration

	// Logger for release warnings (default: stderr logger).
	Logger *log.Logger
}

// SQL stores leases in the etl_locks table of the coordination database.
//
// Acquisition is a single conditional upsert, so the database decides
// contention: a row is written only if the path is free or its lease expired.
type SQL struct {
	db     *sql.DB
	owner  string
	ttl    time.Duration
	logger *log.Logger
	now    func() time.Time

	mu   sync.Mutex
	held map[string]string // path -> acquisition token
}

// NewSQL creates a lock store over db. The etl_locks table must already exist
// (see store.DB.InitSchema).
func NewSQL(db *sql.DB, config *SQLConfig) (*SQL, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if config == nil {
		config = &SQLConfig{}
	}

	s := &SQL{
		db:     db,
		owner:  config.Owner,
		ttl:    config.TTL,
		logger: config.Logger,
		now:    time.Now,
		held:   make(map[string]string),
	}
	if s.owner == "" {
		s.owner = DefaultOwner()
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	if s.logger == nil {
		s.logger = log.New(os.Stderr, "[lock] ", log.LstdFlags)
	}
	return s, nil
}

// TryAcquire implements Store.TryAcquire.
func (s *SQL) TryAcquire(ctx context.Context, path string) (bool, error) {
	if path == "" {
		return false, ErrEmptyPath
	}

	now := s.now()
	token := newToken(s.owner)

	query := `
	INSERT INTO etl_locks (path, owner, acquired_at, expires_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(path) DO UPDATE SET
		owner = excluded.owner,
		acquired_at = excluded.acquired_at,
		expires_at = excluded.expires_at
	WHERE etl_locks.expires_at <= ?
	`

	res, err := s.db.ExecContext(ctx, query,
		path,
		token,
		now.UnixMilli(),
		now.Add(s.ttl).UnixMilli(),
		now.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", path, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read lock result for %s: %w", path, err)
	}
	if n == 0 {
		return false, nil
	}

	s.mu.Lock()
	s.held[path] = token
	s.mu.Unlock()

	return true, nil
}

// Release implements Store.Release.
//
// Only the row written by this store's own acquisition is deleted, so a
// lease that expired and was taken over by another node is left alone.
func (s *SQL) Release(ctx context.Context, path string) error {
	if path == "" {
		return ErrEmptyPath
	}

	s.mu.Lock()
	token, ok := s.held[path]
	delete(s.held, path)
	s.mu.Unlock()

	if !ok {
		s.logger.Printf("WARNING: release of %s: %v", path, ErrNotHeld)
		return nil
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM etl_locks WHERE path = ? AND owner = ?`, path, token)
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", path, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.logger.Printf("WARNING: lease for %s expired before release and was taken over", path)
	}
	return nil
}

// List implements Store.List. Expired leases are not reported.
func (s *SQL) List(ctx context.Context) ([]Lease, error) {
	query := `
	SELECT path, owner, acquired_at, expires_at
	FROM etl_locks
	WHERE expires_at > ?
	ORDER BY path ASC
	`

	rows, err := s.db.QueryContext(ctx, query, s.now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to list locks: %w", err)
	}
	defer rows.Close()

	var leases []Lease
	for rows.Next() {
		var l Lease
		var acquiredAt, expiresAt int64
		if err := rows.Scan(&l.Path, &l.Owner, &acquiredAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan lock: %w", err)
		}
		l.AcquiredAt = time.UnixMilli(acquiredAt)
		l.ExpiresAt = time.UnixMilli(expiresAt)
		leases = append(leases, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating locks: %w", err)
	}

	return leases, nil
}
