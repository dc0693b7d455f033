package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mschirtzinger/etlguard/internal/adapter/rdb"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "etlguard.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 8081 {
		t.Errorf("Server.Port = %d, want 8081", cfg.Server.Port)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("Store.Driver = %q, want sqlite", cfg.Store.Driver)
	}
	if cfg.Lock.Prefix != "/sync-etl/" {
		t.Errorf("Lock.Prefix = %q, want /sync-etl/", cfg.Lock.Prefix)
	}
	if cfg.Guard.RestoreAttempts != 3 {
		t.Errorf("Guard.RestoreAttempts = %d, want 3", cfg.Guard.RestoreAttempts)
	}
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("defaults should validate, got %v", ValidationErrors(errs))
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
dashboard:
  enabled: true
  port: 9001
store:
  driver: memory
lock:
  ttl: 30m
guard:
  restore_backoff: 1s
conf_dir: /etc/etlguard/conf
destinations:
  - example
  - orders
adapters:
  - type: rdb
    key: warehouse
    dsn: file:warehouse.db
    destination: warehouse
    options:
      driver: sqlite3
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if !cfg.Dashboard.Enabled || cfg.Dashboard.Port != 9001 {
		t.Errorf("Dashboard = %+v", cfg.Dashboard)
	}
	if cfg.Store.Driver != StoreMemory {
		t.Errorf("Store.Driver = %q, want memory", cfg.Store.Driver)
	}
	if cfg.Lock.TTL != 30*time.Minute {
		t.Errorf("Lock.TTL = %v, want 30m", cfg.Lock.TTL)
	}
	if cfg.Lock.Prefix != "/sync-etl/" {
		t.Errorf("unset keys should keep defaults, Lock.Prefix = %q", cfg.Lock.Prefix)
	}
	if cfg.Guard.RestoreBackoff != time.Second {
		t.Errorf("Guard.RestoreBackoff = %v, want 1s", cfg.Guard.RestoreBackoff)
	}
	if len(cfg.Destinations) != 2 || cfg.Destinations[1] != "orders" {
		t.Errorf("Destinations = %v", cfg.Destinations)
	}
	if len(cfg.Adapters) != 1 {
		t.Fatalf("Adapters = %v, want 1 entry", cfg.Adapters)
	}
	a := cfg.Adapters[0]
	if a.Type != "rdb" || a.Key != "warehouse" || a.DSN != "file:warehouse.db" || a.Options["driver"] != "sqlite3" {
		t.Errorf("Adapters[0] = %+v", a)
	}
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("expected valid config, got %v", ValidationErrors(errs))
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")
	t.Setenv("ETLGUARD_SERVER_PORT", "9100")
	t.Setenv("ETLGUARD_STORE_DRIVER", "libsql")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want 9100 from the environment", cfg.Server.Port)
	}
	if cfg.Store.Driver != "libsql" {
		t.Errorf("Store.Driver = %q, want libsql", cfg.Store.Driver)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing explicit config file")
	}
}

func TestStoreOptions(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = "libsql"
	cfg.Store.URL = "libsql://example.turso.io"
	cfg.Store.SyncInterval = time.Minute

	opts := cfg.StoreOptions()
	if opts.Driver != "libsql" || opts.URL != cfg.Store.URL || opts.SyncInterval != time.Minute {
		t.Errorf("StoreOptions = %+v", opts)
	}
}
