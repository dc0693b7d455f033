package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mschirtzinger/etlguard/internal/adapter"
	"github.com/mschirtzinger/etlguard/internal/config"
	"github.com/mschirtzinger/etlguard/internal/etl"
	"github.com/mschirtzinger/etlguard/internal/guard"
	"github.com/mschirtzinger/etlguard/internal/lock"
	"github.com/mschirtzinger/etlguard/internal/logging"
	"github.com/mschirtzinger/etlguard/internal/store"
	"github.com/mschirtzinger/etlguard/internal/syncswitch"
	"github.com/mschirtzinger/etlguard/internal/tasks"
)

// app holds the wired components for one command invocation.
type app struct {
	cfg  *config.Config
	logs *logging.Output

	db       *store.DB
	locks    lock.Store
	switches syncswitch.Store
	tasks    *tasks.Registry
	adapters *adapter.Registry
	svc      *etl.Service

	closers []io.Closer
}

// newApp opens the stores, loads task configs and adapters, and builds the
// ETL service. observe may be nil, as may the observer it returns.
func newApp(ctx context.Context, cfg *config.Config, observe func(*logging.Output) etl.Observer) (*app, error) {
	logs, err := logging.Open(cfg.Logging, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to open log output: %w", err)
	}
	a := &app{cfg: cfg, logs: logs}
	a.closers = append(a.closers, logs)

	if err := a.openStores(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.tasks = tasks.NewRegistry(logs.Logger("tasks"))
	if _, err := a.tasks.LoadDir(cfg.ConfDir); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load task configs: %w", err)
	}

	a.adapters = adapter.NewRegistry()
	if err := a.adapters.Load(cfg.Adapters, adapter.Env{Tasks: a.tasks, Logger: logs.Logger("adapter")}); err != nil {
		a.Close()
		return nil, err
	}
	for _, t := range a.adapters.Types() {
		for _, key := range a.adapters.Keys(t) {
			h, _ := a.adapters.Resolve(t, key)
			if c, ok := h.(io.Closer); ok {
				a.closers = append(a.closers, c)
			}
		}
	}

	var observer etl.Observer = etl.NopObserver{}
	if observe != nil {
		if o := observe(logs); o != nil {
			observer = o
		}
	}

	g, err := guard.NewWithConfig(a.locks, a.switches, &guard.Config{
		Prefix:          cfg.Lock.Prefix,
		RestoreAttempts: cfg.Guard.RestoreAttempts,
		RestoreBackoff:  cfg.Guard.RestoreBackoff,
		Observer:        observer,
		Logger:          logs.Logger("guard"),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.svc, err = etl.NewWithConfig(a.tasks, a.adapters, g, a.switches, &etl.Config{
		Destinations: cfg.Destinations,
		Observer:     observer,
		Logger:       logs.Logger("etl"),
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openStores(ctx context.Context) error {
	if a.cfg.Store.Driver == config.StoreMemory {
		a.locks = lock.NewMemory(
			lock.WithMemoryOwner(a.cfg.Lock.Owner),
			lock.WithMemoryLogger(a.logs.Logger("lock")),
		)
		a.switches = syncswitch.NewMemory()
		return nil
	}

	db, err := store.Open(a.cfg.StoreOptions())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, db)

	// Pull the latest leases and switches before anything reads them. No-op for sqlite.
	if err := db.Sync(); err != nil {
		return err
	}
	if err := db.InitSchemaContext(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	locks, err := lock.NewSQL(db.RawDB(), &lock.SQLConfig{
		Owner:  a.cfg.Lock.Owner,
		TTL:    a.cfg.Lock.TTL,
		Logger: a.logs.Logger("lock"),
	})
	if err != nil {
		return err
	}
	switches, err := syncswitch.NewSQL(db.RawDB())
	if err != nil {
		return err
	}
	a.locks, a.switches = locks, switches
	return nil
}

// Close releases everything newApp opened, in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
	a.closers = nil
}
