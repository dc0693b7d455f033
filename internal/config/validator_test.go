package config

import (
	"strings"
	"testing"

	"github.com/mschirtzinger/etlguard/internal/adapter"
)

func hasField(errs []ValidationError, field string) bool {
	for _, err := range errs {
		if err.Field == field {
			return true
		}
	}
	return false
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "postgres" }, "store.driver"},
		{"missing path", func(c *Config) { c.Store.Path = "" }, "store.path"},
		{"libsql without url", func(c *Config) { c.Store.Driver = "libsql" }, "store.url"},
		{"empty prefix", func(c *Config) { c.Lock.Prefix = "" }, "lock.prefix"},
		{"zero restore attempts", func(c *Config) { c.Guard.RestoreAttempts = 0 }, "guard.restore_attempts"},
		{"blank destination", func(c *Config) { c.Destinations = []string{"example", " "} }, "destinations[1]"},
		{"dashboard on api port", func(c *Config) {
			c.Dashboard.Enabled = true
			c.Dashboard.Port = c.Server.Port
		}, "dashboard.port"},
		{"unknown adapter type", func(c *Config) {
			c.Adapters = []adapter.Spec{{Type: "cassandra", Key: "c1"}}
		}, "adapters[0].type"},
		{"missing adapter key", func(c *Config) {
			c.Adapters = []adapter.Spec{{Type: adapter.TypeRDB}}
		}, "adapters[0].key"},
		{"duplicate adapter", func(c *Config) {
			c.Adapters = []adapter.Spec{{Type: adapter.TypeRDB, Key: "a"}, {Type: adapter.TypeRDB, Key: "a"}}
		}, "adapters[1]"},
		{"rotation without size", func(c *Config) {
			c.Logging.File = "etlguard.log"
			c.Logging.MaxSizeMB = 0
		}, "logging.max_size_mb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := cfg.Validate()
			if !hasField(errs, tt.field) {
				t.Errorf("expected an error on %s, got %v", tt.field, ValidationErrors(errs))
			}
		})
	}
}

func TestMemoryStoreNeedsNoPath(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = StoreMemory
	cfg.Store.Path = ""
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("expected no errors, got %v", ValidationErrors(errs))
	}
}

func TestValidationErrorsMessage(t *testing.T) {
	errs := ValidationErrors{
		{Field: "server.port", Value: -1, Message: "must be between 0 and 65535"},
		{Field: "lock.prefix", Value: "", Message: "must not be empty"},
	}
	msg := errs.Error()
	if !strings.HasPrefix(msg, "2 validation errors:") {
		t.Errorf("unexpected message: %q", msg)
	}
	if !strings.Contains(msg, "server.port: must be between 0 and 65535 (got: -1)") {
		t.Errorf("missing field detail: %q", msg)
	}
}
