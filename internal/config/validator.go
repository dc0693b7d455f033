package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/mschirtzinger/etlguard/internal/adapter"
	"github.com/mschirtzinger/etlguard/internal/store"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "server.port")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	errs = append(errs, validatePort("server.port", c.Server.Port)...)
	if c.Dashboard.Enabled {
		errs = append(errs, validatePort("dashboard.port", c.Dashboard.Port)...)
		if c.Dashboard.Port != 0 && c.Dashboard.Port == c.Server.Port {
			errs = append(errs, ValidationError{
				Field:   "dashboard.port",
				Value:   c.Dashboard.Port,
				Message: "must differ from server.port",
			})
		}
	}

	if !slices.Contains(ValidStoreDrivers(), c.Store.Driver) {
		errs = append(errs, ValidationError{
			Field:   "store.driver",
			Value:   c.Store.Driver,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidStoreDrivers(), ", ")),
		})
	}
	if c.Store.Driver != StoreMemory && c.Store.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "store.path",
			Value:   c.Store.Path,
			Message: "must be set for a database store",
		})
	}
	if c.Store.Driver == store.DriverLibSQL && c.Store.URL == "" {
		errs = append(errs, ValidationError{
			Field:   "store.url",
			Value:   c.Store.URL,
			Message: "must be set for the libsql driver",
		})
	}

	if c.Lock.Prefix == "" {
		errs = append(errs, ValidationError{
			Field:   "lock.prefix",
			Value:   c.Lock.Prefix,
			Message: "must not be empty",
		})
	}
	if c.Lock.TTL < 0 {
		errs = append(errs, ValidationError{
			Field:   "lock.ttl",
			Value:   c.Lock.TTL,
			Message: "must not be negative",
		})
	}

	if c.Guard.RestoreAttempts < 1 {
		errs = append(errs, ValidationError{
			Field:   "guard.restore_attempts",
			Value:   c.Guard.RestoreAttempts,
			Message: "must be at least 1",
		})
	}
	if c.Guard.RestoreBackoff < 0 {
		errs = append(errs, ValidationError{
			Field:   "guard.restore_backoff",
			Value:   c.Guard.RestoreBackoff,
			Message: "must not be negative",
		})
	}

	for i, d := range c.Destinations {
		if strings.TrimSpace(d) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("destinations[%d]", i),
				Value:   d,
				Message: "must not be empty",
			})
		}
	}

	seen := make(map[string]bool)
	for i, as := range c.Adapters {
		field := fmt.Sprintf("adapters[%d]", i)
		if as.Type == "" {
			errs = append(errs, ValidationError{Field: field + ".type", Value: as.Type, Message: "must be set"})
		} else if !slices.Contains(adapter.FactoryTypes(), as.Type) {
			errs = append(errs, ValidationError{
				Field:   field + ".type",
				Value:   as.Type,
				Message: "no adapter factory registered for this type",
			})
		}
		if as.Key == "" {
			errs = append(errs, ValidationError{Field: field + ".key", Value: as.Key, Message: "must be set"})
		}
		id := string(as.Type) + "/" + as.Key
		if seen[id] {
			errs = append(errs, ValidationError{Field: field, Value: id, Message: "duplicate adapter"})
		}
		seen[id] = true
	}

	if c.Logging.File != "" && c.Logging.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be at least 1 when logging.file is set",
		})
	}

	return errs
}

func validatePort(field string, port int) []ValidationError {
	if port < 0 || port > 65535 {
		return []ValidationError{{Field: field, Value: port, Message: "must be between 0 and 65535"}}
	}
	return nil
}
