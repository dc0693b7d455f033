// Package config loads etlguard configuration from a YAML file, environment
// variables (ETLGUARD_ prefix) and built-in defaults, in that order of
// precedence after explicit flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mschirtzinger/etlguard/internal/adapter"
	"github.com/mschirtzinger/etlguard/internal/logging"
	"github.com/mschirtzinger/etlguard/internal/store"
)

// EnvPrefix is the prefix for environment overrides, e.g. ETLGUARD_SERVER_PORT.
const EnvPrefix = "ETLGUARD"

// StoreMemory keeps locks and switches in process. Only useful for a single
// node or for tests.
const StoreMemory = "memory"

// Config represents the complete etlguard configuration
type Config struct {
	Server       ServerConfig    `mapstructure:"server"`
	Dashboard    DashboardConfig `mapstructure:"dashboard"`
	Store        StoreConfig     `mapstructure:"store"`
	Lock         LockConfig      `mapstructure:"lock"`
	Guard        GuardConfig     `mapstructure:"guard"`
	Logging      logging.Config  `mapstructure:"logging"`
	ConfDir      string          `mapstructure:"conf_dir"`
	Destinations []string        `mapstructure:"destinations"`
	Adapters     []adapter.Spec  `mapstructure:"adapters"`
}

// ServerConfig controls the HTTP API
type ServerConfig struct {
	// Port for the HTTP API (default: 8081)
	Port int `mapstructure:"port"`
	// ShutdownTimeout bounds how long in-flight requests may run on shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DashboardConfig controls the websocket event feed
type DashboardConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Port for the dashboard server (default: 8082)
	Port int `mapstructure:"port"`
}

// StoreConfig selects where locks and switches live
type StoreConfig struct {
	// Driver is "sqlite", "libsql" or "memory"
	Driver string `mapstructure:"driver"`
	// Path is the database file (the embedded replica for libsql)
	Path string `mapstructure:"path"`
	// URL is the libsql primary
	URL string `mapstructure:"url"`
	// AuthToken authenticates against the libsql primary
	AuthToken string `mapstructure:"auth_token"`
	// SyncInterval is how often a libsql replica pulls from the primary
	SyncInterval time.Duration `mapstructure:"sync_interval"`
}

// LockConfig controls ETL locks
type LockConfig struct {
	Prefix string `mapstructure:"prefix"`
	// TTL is the lease length for SQL-backed locks
	TTL time.Duration `mapstructure:"ttl"`
	// Owner names this node on lease rows (default: host and pid)
	Owner string `mapstructure:"owner"`
}

// GuardConfig controls switch restoration
type GuardConfig struct {
	RestoreAttempts int           `mapstructure:"restore_attempts"`
	RestoreBackoff  time.Duration `mapstructure:"restore_backoff"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8081,
			ShutdownTimeout: 30 * time.Second,
		},
		Dashboard: DashboardConfig{
			Enabled: false,
			Port:    8082,
		},
		Store: StoreConfig{
			Driver: store.DriverSQLite,
			Path:   "etlguard.db",
		},
		Lock: LockConfig{
			Prefix: "/sync-etl/",
			TTL:    6 * time.Hour,
		},
		Guard: GuardConfig{
			RestoreAttempts: 3,
			RestoreBackoff:  200 * time.Millisecond,
		},
		Logging: logging.DefaultConfig(),
		ConfDir: "conf",
	}
}

// SetDefaults registers default values with v
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("server.port", defaults.Server.Port)
	v.SetDefault("server.shutdown_timeout", defaults.Server.ShutdownTimeout)

	v.SetDefault("dashboard.enabled", defaults.Dashboard.Enabled)
	v.SetDefault("dashboard.port", defaults.Dashboard.Port)

	v.SetDefault("store.driver", defaults.Store.Driver)
	v.SetDefault("store.path", defaults.Store.Path)
	v.SetDefault("store.url", defaults.Store.URL)
	v.SetDefault("store.auth_token", defaults.Store.AuthToken)
	v.SetDefault("store.sync_interval", defaults.Store.SyncInterval)

	v.SetDefault("lock.prefix", defaults.Lock.Prefix)
	v.SetDefault("lock.ttl", defaults.Lock.TTL)
	v.SetDefault("lock.owner", defaults.Lock.Owner)

	v.SetDefault("guard.restore_attempts", defaults.Guard.RestoreAttempts)
	v.SetDefault("guard.restore_backoff", defaults.Guard.RestoreBackoff)

	v.SetDefault("logging.file", defaults.Logging.File)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", defaults.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", defaults.Logging.Compress)
	v.SetDefault("logging.quiet", defaults.Logging.Quiet)

	v.SetDefault("conf_dir", defaults.ConfDir)
	v.SetDefault("destinations", defaults.Destinations)
}

// Load reads configuration from path (optional), the environment and the
// defaults. An empty path looks for etlguard.yaml in the working directory
// and the user's config directory; a missing file there is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("etlguard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(dir + "/etlguard")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// StoreOptions converts the store section for store.Open.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Driver:       c.Store.Driver,
		Path:         c.Store.Path,
		URL:          c.Store.URL,
		AuthToken:    c.Store.AuthToken,
		SyncInterval: c.Store.SyncInterval,
	}
}

// ValidStoreDrivers returns the list of valid store drivers
func ValidStoreDrivers() []string {
	return []string{store.DriverSQLite, store.DriverLibSQL, StoreMemory}
}
