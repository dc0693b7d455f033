// Package rdb implements a relational ETL adapter.
//
// A task's mapping names a target table and a SELECT statement. An ETL run
// executes
//
//	INSERT OR REPLACE INTO <targetTable> <etlSql> [<etlCondition>]
//
// against the adapter's database, so rows are (re)loaded in one statement.
// When filters are given and the mapping has an etlCondition, each "{}" in
// the condition is bound to the next filter value. A mapping without an
// etlCondition only supports full imports: filtered calls fail without
// touching the target.
package rdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/mschirtzinger/etlguard/internal/adapter"
	"github.com/mschirtzinger/etlguard/internal/tasks"
)

// ErrNoCondition is returned for a filtered call on a mapping without an
// etlCondition.
var ErrNoCondition = errors.New("mapping has no etlCondition, filters are not supported")

// DefaultDriver is the database/sql driver used when Options["driver"] is unset.
const DefaultDriver = "sqlite3"

func init() {
	adapter.RegisterFactory(adapter.TypeRDB, New)
}

// Adapter is a relational adapter instance.
type Adapter struct {
	db          *sql.DB
	key         string
	destination string
	tasks       *tasks.Registry
	logger      *log.Logger
}

// New opens the database named by spec.DSN. spec.Options["driver"] selects
// the database/sql driver ("sqlite3" or "libsql").
func New(spec adapter.Spec, env adapter.Env) (adapter.Handle, error) {
	if spec.DSN == "" {
		return nil, fmt.Errorf("rdb adapter %q: dsn is required", spec.Key)
	}
	if env.Tasks == nil {
		return nil, fmt.Errorf("rdb adapter %q: task registry is required", spec.Key)
	}

	driver := spec.Options["driver"]
	if driver == "" {
		driver = DefaultDriver
	}

	db, err := sql.Open(driver, spec.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open rdb database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping rdb database: %w", err)
	}

	return NewWithDB(db, spec.Key, spec.Destination, env.Tasks, env.Logger), nil
}

// NewWithDB creates an adapter over an already opened database.
func NewWithDB(db *sql.DB, key, destination string, registry *tasks.Registry, logger *log.Logger) *Adapter {
	if logger == nil {
		logger = log.New(os.Stderr, "[rdb] ", log.LstdFlags)
	}
	return &Adapter{
		db:          db,
		key:         key,
		destination: destination,
		tasks:       registry,
		logger:      logger,
	}
}

// Close closes the adapter's database.
func (a *Adapter) Close() error {
	return a.db.Close()
}

// Destination implements adapter.Handle. The task's own destination wins
// over the instance default.
func (a *Adapter) Destination(task string) string {
	if cfg, ok := a.tasks.Lookup(string(adapter.TypeRDB), task); ok && cfg.Destination != "" {
		return cfg.Destination
	}
	return a.destination
}

// Etl implements adapter.Handle.
func (a *Adapter) Etl(ctx context.Context, task string, filters []string) *adapter.EtlResult {
	cfg, ok := a.tasks.Lookup(string(adapter.TypeRDB), task)
	if !ok {
		return adapter.Failed(fmt.Sprintf("task %s not found", task))
	}

	query, args, err := BuildQuery(cfg.Mapping, filters)
	if err != nil {
		return adapter.Failed(err.Error())
	}

	res, err := a.db.ExecContext(ctx, query, args...)
	if err != nil {
		a.logger.Printf("ETL of %s failed: %v", task, err)
		return adapter.Failed(fmt.Sprintf("etl of %s failed: %v", task, err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		n = -1
	}

	msg := fmt.Sprintf("imported %d rows into %s", n, cfg.Mapping.TargetTable)
	a.logger.Printf("ETL of %s: %s (filters=%v)", task, msg, filters)
	return adapter.Success(msg)
}

// Count implements adapter.Handle.
func (a *Adapter) Count(ctx context.Context, task string) (map[string]any, error) {
	cfg, ok := a.tasks.Lookup(string(adapter.TypeRDB), task)
	if !ok {
		return nil, fmt.Errorf("%w: %s", tasks.ErrTaskNotFound, task)
	}

	query := cfg.Mapping.CountSQL
	if query == "" {
		if cfg.Mapping.TargetTable == "" {
			return nil, fmt.Errorf("task %s has neither countSql nor targetTable", task)
		}
		query = "SELECT COUNT(*) FROM " + quoteIdent(cfg.Mapping.TargetTable)
	}

	var n int64
	if err := a.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return nil, fmt.Errorf("failed to count %s: %w", task, err)
	}

	return map[string]any{
		"count":       n,
		"targetTable": cfg.Mapping.TargetTable,
	}, nil
}

// BuildQuery assembles the statement and bind arguments for one ETL call.
func BuildQuery(m tasks.Mapping, filters []string) (string, []any, error) {
	if m.TargetTable == "" {
		return "", nil, fmt.Errorf("targetTable is required")
	}
	if m.EtlSQL == "" {
		return "", nil, fmt.Errorf("etlSql is required")
	}

	var b strings.Builder
	b.WriteString("INSERT OR REPLACE INTO ")
	b.WriteString(quoteIdent(m.TargetTable))
	b.WriteString(" ")
	b.WriteString(strings.TrimSpace(m.EtlSQL))

	if len(filters) == 0 {
		return b.String(), nil, nil
	}

	if m.EtlCondition == "" {
		return "", nil, fmt.Errorf("%w: got %d filters", ErrNoCondition, len(filters))
	}

	placeholders := strings.Count(m.EtlCondition, "{}")
	if placeholders != len(filters) {
		return "", nil, fmt.Errorf("etlCondition has %d placeholders but %d filters were given",
			placeholders, len(filters))
	}

	b.WriteString(" ")
	b.WriteString(strings.ReplaceAll(m.EtlCondition, "{}", "?"))

	args := make([]any, len(filters))
	for i, f := range filters {
		args[i] = f
	}
	return b.String(), args, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
