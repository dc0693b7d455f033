package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/etlguard/internal/adapter"
	"github.com/mschirtzinger/etlguard/internal/config"
	"github.com/mschirtzinger/etlguard/internal/etl"
	"github.com/mschirtzinger/etlguard/internal/logging"
)

const userTask = `outerAdapterKey: warehouse
destination: example
mapping:
  targetTable: mytest_user
  etlSql: SELECT id, name FROM users
  etlCondition: WHERE id >= {} AND id <= {}
`

// setupConfig writes a task config and a source database with 250 users and
// returns a config wired to them.
func setupConfig(t *testing.T, driver string) *config.Config {
	t.Helper()
	dir := t.TempDir()

	confDir := filepath.Join(dir, "conf")
	require.NoError(t, os.MkdirAll(filepath.Join(confDir, "rdb"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(confDir, "rdb", "mytest_user.yml"), []byte(userTask), 0o644))

	dsn := "file:" + filepath.Join(dir, "warehouse.db")
	db, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	for _, stmt := range []string{
		`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)`,
		`CREATE TABLE mytest_user (id INTEGER PRIMARY KEY, name TEXT)`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	for i := 1; i <= 250; i++ {
		_, err := db.Exec(`INSERT INTO users (id, name) VALUES (?, ?)`, i, fmt.Sprintf("user-%d", i))
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	cfg := config.Default()
	cfg.Store.Driver = driver
	cfg.Store.Path = filepath.Join(dir, "etlguard.db")
	cfg.ConfDir = confDir
	cfg.Destinations = []string{"example"}
	cfg.Logging.File = filepath.Join(dir, "etlguard.log")
	cfg.Logging.Quiet = true
	cfg.Adapters = []adapter.Spec{{Type: adapter.TypeRDB, Key: "warehouse", DSN: dsn}}
	require.Empty(t, cfg.Validate())

	return cfg
}

type windowCounter struct {
	etl.NopObserver
	windows int
}

func (w *windowCounter) WindowDone(string, string, etl.Window, *adapter.EtlResult) {
	w.windows++
}

func TestAppRangeEtl(t *testing.T) {
	for _, driver := range []string{config.StoreMemory, "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			cfg := setupConfig(t, driver)
			counter := &windowCounter{}

			ctx := context.Background()
			a, err := newApp(ctx, cfg, func(*logging.Output) etl.Observer { return counter })
			require.NoError(t, err)
			defer a.Close()

			res, err := a.svc.EtlRange(ctx, "rdb", "mytest_user.yml", 251, 100)
			require.NoError(t, err)
			require.True(t, res.Succeeded, res.ErrorMessage)
			assert.Equal(t, 3, counter.windows)

			counts, err := a.svc.Count(ctx, "rdb", "", "mytest_user.yml")
			require.NoError(t, err)
			assert.Equal(t, int64(250), counts["count"])

			on, err := a.svc.IsSyncOn(ctx, "example")
			require.NoError(t, err)
			assert.True(t, on, "switch must be back on after the run")

			leases, err := a.locks.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, leases)
		})
	}
}

func TestAppSwitchPersists(t *testing.T) {
	cfg := setupConfig(t, "sqlite")
	ctx := context.Background()

	a, err := newApp(ctx, cfg, nil)
	require.NoError(t, err)
	_, err = a.svc.SetSync(ctx, "example", "off")
	require.NoError(t, err)
	a.Close()

	b, err := newApp(ctx, cfg, nil)
	require.NoError(t, err)
	defer b.Close()

	list, err := b.svc.ListDestinations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []etl.DestinationStatus{{Destination: "example", Status: "off"}}, list)
}

func TestAppRejectsUnknownAdapter(t *testing.T) {
	cfg := setupConfig(t, config.StoreMemory)
	cfg.Adapters = append(cfg.Adapters, adapter.Spec{Type: "kudu", Key: "k1"})

	_, err := newApp(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.True(t, adapter.IsNotFound(err))
}

func TestReportResult(t *testing.T) {
	assert.NoError(t, reportResult(adapter.Success("done"), nil, time.Second))
	assert.ErrorIs(t, reportResult(adapter.Failed("boom"), nil, time.Second), errReported)

	restore := errors.New("restore failed")
	assert.ErrorIs(t, reportResult(adapter.Success("done"), restore, time.Second), errReported)
	assert.ErrorIs(t, reportResult(nil, restore, time.Second), restore)
}

// writeConfigFile renders the store, task and adapter settings of cfg as a
// config file for the root command.
func writeConfigFile(t *testing.T, cfg *config.Config) string {
	t.Helper()
	body := fmt.Sprintf(`store:
  driver: %s
  path: %s
conf_dir: %s
destinations: [example]
logging:
  file: %s
  quiet: true
adapters:
  - type: rdb
    key: warehouse
    dsn: %s
`, cfg.Store.Driver, cfg.Store.Path, cfg.ConfDir, cfg.Logging.File, cfg.Adapters[0].DSN)

	path := filepath.Join(filepath.Dir(cfg.Store.Path), "etlguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestFailedRunClosesApp(t *testing.T) {
	cfg := setupConfig(t, "sqlite")
	path := writeConfigFile(t, cfg)

	// One filter for a two-placeholder condition fails the run.
	rootCmd.SetArgs([]string{"--config", path, "--no-color", "etl", "rdb", "mytest_user.yml", "--params", "1"})
	err := rootCmd.Execute()
	require.ErrorIs(t, err, errReported)

	// Closing the last connection checkpoints and removes the WAL file.
	_, statErr := os.Stat(cfg.Store.Path + "-wal")
	assert.True(t, os.IsNotExist(statErr), "store must be closed before the command returns")

	db, err := sql.Open("sqlite3", "file:"+cfg.Store.Path)
	require.NoError(t, err)
	defer db.Close()
	var leases int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM etl_locks`).Scan(&leases))
	assert.Zero(t, leases)
}
