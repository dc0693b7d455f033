package etl

import (
	"github.com/mschirtzinger/etlguard/internal/adapter"
	"github.com/mschirtzinger/etlguard/internal/guard"
)

// Observer receives progress events from ETL operations, in addition to the
// guard's lock and switch events.
type Observer interface {
	guard.Observer

	EtlStarted(typ, key, task string)
	WindowDone(typ, task string, w Window, result *adapter.EtlResult)
	EtlFinished(typ, task string, result *adapter.EtlResult)
}

// NopObserver ignores all events.
type NopObserver struct {
	guard.NopObserver
}

func (NopObserver) EtlStarted(string, string, string)                    {}
func (NopObserver) WindowDone(string, string, Window, *adapter.EtlResult) {}
func (NopObserver) EtlFinished(string, string, *adapter.EtlResult)        {}
