package tasks

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatcherConfig holds configuration for a task config Watcher.
type WatcherConfig struct {
	// DebounceInterval is how long a file must be quiet before it is reloaded.
	DebounceInterval time.Duration

	// Logger for watcher events (nil = default logger)
	Logger *log.Logger
}

// DefaultWatcherConfig returns a WatcherConfig with sensible defaults.
func DefaultWatcherConfig() *WatcherConfig {
	return &WatcherConfig{
		DebounceInterval: 100 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[tasks] ", log.LstdFlags),
	}
}

// Watcher keeps a Registry in sync with the task files under a config
// directory. Created or modified files are (re)loaded, deleted files are
// removed from the registry.
type Watcher struct {
	registry *Registry
	confDir  string
	config   *WatcherConfig

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time // filepath -> timestamp
	changeQueueMu sync.Mutex

	wg sync.WaitGroup
}

// NewWatcher creates a Watcher for confDir. Use Start to begin watching.
func NewWatcher(registry *Registry, confDir string, config *WatcherConfig) (*Watcher, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if confDir == "" {
		return nil, fmt.Errorf("confDir cannot be empty")
	}
	if config == nil {
		config = DefaultWatcherConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[tasks] ", log.LstdFlags)
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 100 * time.Millisecond
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		registry:    registry,
		confDir:     confDir,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
	}, nil
}

// Start watches confDir and each adapter type subdirectory, and processes
// changes until ctx is cancelled. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.confDir); err != nil {
		return fmt.Errorf("failed to watch config directory %s: %w", w.confDir, err)
	}

	entries, err := os.ReadDir(w.confDir)
	if err != nil {
		return fmt.Errorf("failed to read config directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(w.confDir, entry.Name())
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	w.wg.Add(2)
	go w.watchFiles(ctx)
	go w.processChangeQueue(ctx)

	w.config.Logger.Printf("Watching task configs in %s", w.confDir)
	return nil
}

// Stop closes the underlying watcher and waits for the event loops to exit.
// The context passed to Start must be cancelled as well.
func (w *Watcher) Stop() error {
	err := w.watcher.Close()
	w.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (w *Watcher) watchFiles(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// A new adapter type directory
			if event.Has(fsnotify.Create) && filepath.Dir(event.Name) == filepath.Clean(w.confDir) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.watcher.Add(event.Name); err != nil {
						w.config.Logger.Printf("WARNING: Failed to watch %s: %v", event.Name, err)
					}
					continue
				}
			}

			if !IsTaskFile(event.Name) {
				continue
			}
			// Ignore chmod-only events
			if event.Op == fsnotify.Chmod {
				continue
			}

			w.queueChange(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) queueChange(path string) {
	w.changeQueueMu.Lock()
	defer w.changeQueueMu.Unlock()

	w.changeQueue[path] = time.Now()
}

func (w *Watcher) processChangeQueue(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processPendingChanges()
		}
	}
}

// processPendingChanges reloads files that have been quiet for a full
// debounce interval.
func (w *Watcher) processPendingChanges() {
	w.changeQueueMu.Lock()
	defer w.changeQueueMu.Unlock()

	now := time.Now()
	for path, queuedAt := range w.changeQueue {
		if now.Sub(queuedAt) < w.config.DebounceInterval {
			continue
		}
		delete(w.changeQueue, path)

		typ := filepath.Base(filepath.Dir(path))
		task := filepath.Base(path)

		if _, err := os.Stat(path); os.IsNotExist(err) {
			w.registry.Remove(typ, task)
			w.config.Logger.Printf("Removed task %s/%s", typ, task)
			continue
		}

		if _, err := w.registry.LoadFile(path); err != nil {
			w.config.Logger.Printf("WARNING: Failed to reload task %s: %v", path, err)
			continue
		}
		w.config.Logger.Printf("Reloaded task %s/%s", typ, task)
	}
}
