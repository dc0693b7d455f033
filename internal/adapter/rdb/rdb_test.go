package rdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/etlguard/internal/adapter"
	"github.com/mschirtzinger/etlguard/internal/tasks"
)

// setupAdapter opens a fresh database with a 300-row source table and an
// empty target, and registers the mytest_user.yml task.
func setupAdapter(t *testing.T) (*Adapter, *sql.DB) {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "rdb.db")
	a, err := New(adapter.Spec{
		Type:        adapter.TypeRDB,
		Key:         "mysql1",
		DSN:         dsn,
		Destination: "fallback",
	}, adapter.Env{
		Tasks:  tasks.NewRegistry(log.New(io.Discard, "", 0)),
		Logger: log.New(io.Discard, "", 0),
	})
	require.NoError(t, err)

	rdb := a.(*Adapter)
	t.Cleanup(func() { _ = rdb.Close() })

	db := rdb.db
	for _, stmt := range []string{
		`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)`,
		`CREATE TABLE mytest_user (id INTEGER PRIMARY KEY, name TEXT)`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	for i := 1; i <= 300; i++ {
		_, err := db.Exec(`INSERT INTO users (id, name) VALUES (?, ?)`, i, fmt.Sprintf("user-%d", i))
		require.NoError(t, err)
	}

	rdb.tasks.Register("rdb", "mytest_user.yml", &tasks.Config{
		OuterAdapterKey: "mysql1",
		Destination:     "example",
		Mapping: tasks.Mapping{
			TargetTable:  "mytest_user",
			EtlSQL:       "SELECT id, name FROM users",
			EtlCondition: "WHERE id >= {} AND id <= {}",
		},
	})

	return rdb, db
}

func countRows(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM mytest_user`).Scan(&n))
	return n
}

func TestEtlFullImport(t *testing.T) {
	a, db := setupAdapter(t)

	res := a.Etl(context.Background(), "mytest_user.yml", nil)
	require.True(t, res.Succeeded, res.ErrorMessage)
	assert.Contains(t, res.ResultMessage, "300 rows")
	assert.Equal(t, 300, countRows(t, db))
}

func TestEtlWindow(t *testing.T) {
	a, db := setupAdapter(t)

	res := a.Etl(context.Background(), "mytest_user.yml", []string{"101", "200"})
	require.True(t, res.Succeeded, res.ErrorMessage)
	assert.Equal(t, 100, countRows(t, db))

	var lo, hi int
	require.NoError(t, db.QueryRow(`SELECT MIN(id), MAX(id) FROM mytest_user`).Scan(&lo, &hi))
	assert.Equal(t, 101, lo)
	assert.Equal(t, 200, hi)
}

func TestEtlWrongFilterCount(t *testing.T) {
	a, db := setupAdapter(t)

	res := a.Etl(context.Background(), "mytest_user.yml", []string{"1"})
	assert.False(t, res.Succeeded)
	assert.Contains(t, res.ErrorMessage, "placeholders")
	assert.Equal(t, 0, countRows(t, db))
}

func TestEtlWindowWithoutCondition(t *testing.T) {
	a, db := setupAdapter(t)
	a.tasks.Register("rdb", "nocond.yml", &tasks.Config{
		OuterAdapterKey: "mysql1",
		Mapping: tasks.Mapping{
			TargetTable: "mytest_user",
			EtlSQL:      "SELECT id, name FROM users",
		},
	})
	ctx := context.Background()

	res := a.Etl(ctx, "nocond.yml", []string{"1", "100"})
	assert.False(t, res.Succeeded)
	assert.Contains(t, res.ErrorMessage, "etlCondition")
	assert.Equal(t, 0, countRows(t, db), "a rejected window must not import anything")

	res = a.Etl(ctx, "nocond.yml", nil)
	require.True(t, res.Succeeded, res.ErrorMessage)
	assert.Equal(t, 300, countRows(t, db))
}

func TestEtlUnknownTask(t *testing.T) {
	a, _ := setupAdapter(t)

	res := a.Etl(context.Background(), "nope.yml", nil)
	assert.False(t, res.Succeeded)
	assert.Contains(t, res.ErrorMessage, "not found")
}

func TestDestination(t *testing.T) {
	a, _ := setupAdapter(t)

	assert.Equal(t, "example", a.Destination("mytest_user.yml"))
	assert.Equal(t, "fallback", a.Destination("unknown.yml"))
}

func TestCount(t *testing.T) {
	a, _ := setupAdapter(t)
	ctx := context.Background()

	require.True(t, a.Etl(ctx, "mytest_user.yml", []string{"1", "50"}).Succeeded)

	counts, err := a.Count(ctx, "mytest_user.yml")
	require.NoError(t, err)
	assert.Equal(t, int64(50), counts["count"])
	assert.Equal(t, "mytest_user", counts["targetTable"])

	_, err = a.Count(ctx, "nope.yml")
	assert.ErrorIs(t, err, tasks.ErrTaskNotFound)
}

func TestBuildQuery(t *testing.T) {
	base := tasks.Mapping{TargetTable: "t", EtlSQL: "SELECT * FROM s"}

	tests := []struct {
		name     string
		mapping  tasks.Mapping
		filters  []string
		wantSQL  string
		wantArgs int
		wantErr  bool
	}{
		{
			name:    "full import",
			mapping: base,
			wantSQL: `INSERT OR REPLACE INTO "t" SELECT * FROM s`,
		},
		{
			name:    "filters without condition",
			mapping: base,
			filters: []string{"1", "100"},
			wantErr: true,
		},
		{
			name: "bound condition",
			mapping: tasks.Mapping{
				TargetTable: "t", EtlSQL: "SELECT * FROM s", EtlCondition: "WHERE id >= {} AND id <= {}",
			},
			filters:  []string{"1", "100"},
			wantSQL:  `INSERT OR REPLACE INTO "t" SELECT * FROM s WHERE id >= ? AND id <= ?`,
			wantArgs: 2,
		},
		{
			name:    "missing target",
			mapping: tasks.Mapping{EtlSQL: "SELECT 1"},
			wantErr: true,
		},
		{
			name:    "missing sql",
			mapping: tasks.Mapping{TargetTable: "t"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args, err := BuildQuery(tt.mapping, tt.filters)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, query)
			assert.Len(t, args, tt.wantArgs)
		})
	}
}

func TestNewRequiresDSN(t *testing.T) {
	_, err := New(adapter.Spec{Type: adapter.TypeRDB, Key: "x"}, adapter.Env{Tasks: tasks.NewRegistry(nil)})
	assert.Error(t, err)
}
