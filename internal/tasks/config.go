// Package tasks loads ETL task configurations and resolves a task to the
// adapter key it belongs to.
//
// Task configs live under a configuration directory, one subdirectory per
// adapter type, one file per task:
//
//	conf/
//	├── es7/
//	│   └── mytest_person2.yml
//	└── rdb/
//	    ├── mytest_user.yml
//	    └── mytest_order.toml
//
// The file name is the task name. YAML (.yml, .yaml) and TOML (.toml) are
// supported and carry the same fields.
package tasks

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the parsed content of one task file.
type Config struct {
	// Name is the task name (the file's base name, e.g. "mytest_user.yml").
	Name string `yaml:"-" toml:"-"`

	// Type is the adapter type (the parent directory name, e.g. "rdb").
	Type string `yaml:"-" toml:"-"`

	// Path is the file the config was read from.
	Path string `yaml:"-" toml:"-"`

	// OuterAdapterKey is the key of the adapter instance that executes the task.
	OuterAdapterKey string `yaml:"outerAdapterKey" toml:"outerAdapterKey"`

	// Destination is the upstream change-data instance the task consumes from.
	Destination string `yaml:"destination" toml:"destination"`

	// GroupID is the consumer group of the incremental subscription.
	GroupID string `yaml:"groupId" toml:"groupId"`

	// Mapping holds adapter-specific settings.
	Mapping Mapping `yaml:"mapping" toml:"mapping"`
}

// Mapping holds the adapter-specific part of a task config.
type Mapping struct {
	// TargetTable is the table (or index) the task writes to.
	TargetTable string `yaml:"targetTable" toml:"targetTable"`

	// EtlSQL is the bulk load statement.
	EtlSQL string `yaml:"etlSql" toml:"etlSql"`

	// EtlCondition is appended to EtlSQL when filters are given. Each "{}"
	// placeholder is bound to the next filter value, in order. Without it the
	// task only supports unfiltered imports.
	EtlCondition string `yaml:"etlCondition" toml:"etlCondition"`

	// CountSQL counts the rows the task covers.
	CountSQL string `yaml:"countSql" toml:"countSql"`
}

// Supported task file extensions.
var extensions = []string{".yml", ".yaml", ".toml"}

// IsTaskFile reports whether path has a supported task file extension.
func IsTaskFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ReadFile parses the task file at path. The adapter type is taken from the
// parent directory name.
func ReadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse task file %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse task file %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported task file extension: %s", path)
	}

	cfg.Name = filepath.Base(path)
	cfg.Type = filepath.Base(filepath.Dir(path))
	cfg.Path = path

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks if the Config has valid field values.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Type == "" {
		return fmt.Errorf("type is required")
	}
	if c.Mapping.EtlCondition != "" && c.Mapping.EtlSQL == "" {
		return fmt.Errorf("etlCondition requires etlSql")
	}
	return nil
}
