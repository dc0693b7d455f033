package dashboard

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mschirtzinger/etlguard/internal/adapter"
	"github.com/mschirtzinger/etlguard/internal/etl"
)

// Handler turns ETL and guard events into dashboard messages. It implements
// etl.Observer and guard.Observer and is safe for concurrent use.
type Handler struct {
	server *Server
	logger *log.Logger

	mu    sync.Mutex
	stats StatsData
}

var _ etl.Observer = (*Handler)(nil)

// NewHandler creates an event handler connected to a dashboard server. New
// clients receive the current stats as their first message.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}

	h := &Handler{
		server: server,
		logger: logger,
	}
	server.setWelcome(h.statsMessage)
	return h
}

// EtlStarted implements etl.Observer.
func (h *Handler) EtlStarted(typ, key, task string) {
	h.mu.Lock()
	h.stats.Running++
	h.mu.Unlock()

	h.send(MessageTypeEtlStarted, EtlData{Type: typ, Key: key, Task: task})
}

// WindowDone implements etl.Observer.
func (h *Handler) WindowDone(typ, task string, w etl.Window, result *adapter.EtlResult) {
	data := WindowData{Type: typ, Task: task, Start: w.Start, End: w.End}
	if result != nil {
		data.Succeeded = result.Succeeded
		data.Message = result.ErrorMessage
	}

	if !data.Succeeded {
		h.mu.Lock()
		h.stats.WindowsFailed++
		h.mu.Unlock()
	}

	h.send(MessageTypeEtlWindow, data)
}

// EtlFinished implements etl.Observer.
func (h *Handler) EtlFinished(typ, task string, result *adapter.EtlResult) {
	data := EtlData{Type: typ, Task: task}
	if result != nil {
		data.Succeeded = result.Succeeded
		data.Message = result.ErrorMessage
		if data.Succeeded {
			data.Message = result.ResultMessage
		}
	}

	h.mu.Lock()
	if h.stats.Running > 0 {
		h.stats.Running--
	}
	if data.Succeeded {
		h.stats.Succeeded++
	} else {
		h.stats.Failed++
	}
	h.mu.Unlock()

	h.send(MessageTypeEtlFinished, data)
	h.broadcastStats()
}

// LockAcquired implements guard.Observer.
func (h *Handler) LockAcquired(key string) {
	h.mu.Lock()
	h.stats.LocksHeld++
	h.mu.Unlock()

	h.send(MessageTypeLockAcquired, LockData{Key: key})
}

// LockBusy implements guard.Observer.
func (h *Handler) LockBusy(key, task string) {
	h.mu.Lock()
	h.stats.Busy++
	h.mu.Unlock()

	h.logger.Printf("Lock busy: %s (task %s)", key, task)
	h.send(MessageTypeLockBusy, LockData{Key: key, Task: task})
}

// LockReleased implements guard.Observer.
func (h *Handler) LockReleased(key string) {
	h.mu.Lock()
	if h.stats.LocksHeld > 0 {
		h.stats.LocksHeld--
	}
	h.mu.Unlock()

	h.send(MessageTypeLockReleased, LockData{Key: key})
}

// SwitchChanged implements guard.Observer.
func (h *Handler) SwitchChanged(destination string, on bool) {
	h.logger.Printf("Switch changed: %s %s", destination, etl.Render(on))
	h.send(MessageTypeSwitchChanged, SwitchData{Destination: destination, Status: etl.Render(on)})
}

// GetStats returns the current counters
func (h *Handler) GetStats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

func (h *Handler) send(typ MessageType, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}

	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}

func (h *Handler) statsMessage() Message {
	stats := h.GetStats()
	dataJSON, _ := json.Marshal(stats)
	return Message{
		Type:      MessageTypeStats,
		Timestamp: time.Now(),
		Data:      dataJSON,
	}
}

// broadcastStats sends current statistics to all clients
func (h *Handler) broadcastStats() {
	h.server.Broadcast(h.statsMessage())
}
