// Package logging builds the per-component loggers used across etlguard.
//
// Every component logs through a standard *log.Logger carrying a
// "[component] " prefix. When a log file is configured, output goes to both
// stderr and a size-rotated file.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where log output goes.
type Config struct {
	// File is the log file path. Empty means stderr only.
	File string `mapstructure:"file"`

	// MaxSizeMB is the size at which the file is rotated.
	MaxSizeMB int `mapstructure:"max_size_mb"`

	// MaxBackups is the number of rotated files kept.
	MaxBackups int `mapstructure:"max_backups"`

	// MaxAgeDays is how long rotated files are kept.
	MaxAgeDays int `mapstructure:"max_age_days"`

	// Compress gzips rotated files.
	Compress bool `mapstructure:"compress"`

	// Quiet drops the stderr copy when a file is configured.
	Quiet bool `mapstructure:"quiet"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxSizeMB:  50,
		MaxBackups: 5,
		MaxAgeDays: 28,
		Compress:   true,
	}
}

// Output is a shared log destination.
type Output struct {
	w    io.Writer
	file *lumberjack.Logger

	mu      sync.Mutex
	loggers map[string]*log.Logger
}

// Open returns the log destination described by cfg. stderr receives the
// console copy; nil means os.Stderr.
func Open(cfg Config, stderr io.Writer) (*Output, error) {
	if stderr == nil {
		stderr = os.Stderr
	}
	out := &Output{w: stderr, loggers: make(map[string]*log.Logger)}
	if cfg.File == "" {
		return out, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, err
	}

	out.file = &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	if cfg.Quiet {
		out.w = out.file
	} else {
		out.w = io.MultiWriter(stderr, out.file)
	}
	return out, nil
}

// Logger returns the logger for component, creating it on first use.
func (o *Output) Logger(component string) *log.Logger {
	o.mu.Lock()
	defer o.mu.Unlock()

	if l, ok := o.loggers[component]; ok {
		return l
	}
	l := New(o.w, component)
	o.loggers[component] = l
	return l
}

// Writer returns the underlying writer.
func (o *Output) Writer() io.Writer {
	return o.w
}

// Rotate starts a new log file. It is a no-op without a file.
func (o *Output) Rotate() error {
	if o.file == nil {
		return nil
	}
	return o.file.Rotate()
}

// Close closes the log file, if any.
func (o *Output) Close() error {
	if o.file == nil {
		return nil
	}
	return o.file.Close()
}

// New returns a logger writing to w with a "[component] " prefix.
func New(w io.Writer, component string) *log.Logger {
	return log.New(w, "["+component+"] ", log.LstdFlags)
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}
