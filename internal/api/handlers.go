// Package api exposes the ETL operations over HTTP.
//
// Routes:
//
//	POST /etl/{type}/{key}/{task}?params=a;b      ad-hoc ETL with an explicit adapter key
//	POST /etl/{type}/{task}?params=a;b            ad-hoc ETL, key resolved from the task
//	POST /etl/sync/{type}/{task}?max=N&step=M     range ETL over [1, max)
//	GET  /count/{type}/{key}/{task}               adapter statistics
//	GET  /count/{type}/{task}
//	GET  /destinations                            switch state of every configured destination
//	PUT  /syncSwitch/{destination}/{status}       turn sync on or off
//	GET  /syncSwitch/{destination}                switch state of one destination
//	GET  /locks                                   held ETL locks
//	GET  /health
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/mschirtzinger/etlguard/internal/adapter"
	"github.com/mschirtzinger/etlguard/internal/etl"
	"github.com/mschirtzinger/etlguard/internal/lock"
)

// Result codes carried in Result.Code.
const (
	CodeSuccess    = 20000
	CodeBadRequest = 40000
	CodeNotFound   = 40400
	CodeFailure    = 50000
)

// Result is the envelope for switch control and error responses.
type Result struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Service is the set of ETL operations served over HTTP.
type Service interface {
	Etl(ctx context.Context, typ, key, task, filterExpr string) (*adapter.EtlResult, error)
	EtlRange(ctx context.Context, typ, task string, max, step int) (*adapter.EtlResult, error)
	Count(ctx context.Context, typ, key, task string) (map[string]any, error)
	IsSyncOn(ctx context.Context, destination string) (bool, error)
	ListDestinations(ctx context.Context) ([]etl.DestinationStatus, error)
	SetSync(ctx context.Context, destination, verb string) (string, error)
}

var _ Service = (*etl.Service)(nil)

type handlers struct {
	svc    Service
	locks  lock.Store
	logger *log.Logger
}

// NewRouter returns the HTTP handler for svc. locks may be nil, in which
// case /locks is not served.
func NewRouter(svc Service, locks lock.Store, logger *log.Logger) *mux.Router {
	h := &handlers{svc: svc, locks: locks, logger: logger}

	r := mux.NewRouter()
	r.Use(h.logRequests)

	// The range route must be registered before /etl/{type}/{key}/{task},
	// which would otherwise match it with type "sync".
	r.HandleFunc("/etl/sync/{type}/{task}", h.etlRange).Methods(http.MethodPost)
	r.HandleFunc("/etl/{type}/{key}/{task}", h.etl).Methods(http.MethodPost)
	r.HandleFunc("/etl/{type}/{task}", h.etl).Methods(http.MethodPost)

	r.HandleFunc("/count/{type}/{key}/{task}", h.count).Methods(http.MethodGet)
	r.HandleFunc("/count/{type}/{task}", h.count).Methods(http.MethodGet)

	r.HandleFunc("/destinations", h.destinations).Methods(http.MethodGet)
	r.HandleFunc("/syncSwitch/{destination}/{status}", h.setSwitch).Methods(http.MethodPut)
	r.HandleFunc("/syncSwitch/{destination}", h.switchStatus).Methods(http.MethodGet)

	if locks != nil {
		r.HandleFunc("/locks", h.listLocks).Methods(http.MethodGet)
	}
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)

	return r
}

// operationContext detaches an operation from the request, so a client that
// disconnects does not abort a backfill halfway.
func operationContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (h *handlers) etl(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	result, err := h.svc.Etl(operationContext(r), vars["type"], vars["key"], vars["task"],
		r.URL.Query().Get("params"))
	h.writeEtlResult(w, result, err)
}

func (h *handlers) etlRange(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	query := r.URL.Query()

	max, err := strconv.Atoi(query.Get("max"))
	if err != nil {
		h.writeResult(w, http.StatusBadRequest, Result{Code: CodeBadRequest, Message: "max must be an integer"})
		return
	}
	step, err := strconv.Atoi(query.Get("step"))
	if err != nil {
		h.writeResult(w, http.StatusBadRequest, Result{Code: CodeBadRequest, Message: "step must be an integer"})
		return
	}

	result, err := h.svc.EtlRange(operationContext(r), vars["type"], vars["task"], max, step)
	h.writeEtlResult(w, result, err)
}

func (h *handlers) writeEtlResult(w http.ResponseWriter, result *adapter.EtlResult, err error) {
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, result)
	case result != nil:
		// The operation ran but left the system in a state the caller must see.
		h.writeJSON(w, http.StatusInternalServerError, result)
	default:
		h.writeError(w, err)
	}
}

func (h *handlers) count(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	counts, err := h.svc.Count(r.Context(), vars["type"], vars["key"], vars["task"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, counts)
}

func (h *handlers) destinations(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListDestinations(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

func (h *handlers) setSwitch(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	destination := vars["destination"]

	msg, err := h.svc.SetSync(r.Context(), destination, vars["status"])
	if errors.Is(err, etl.ErrUnknownVerb) {
		h.writeResult(w, http.StatusBadRequest, Result{
			Code:    CodeFailure,
			Message: "destination " + destination + ": operation failed: " + err.Error(),
		})
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeResult(w, http.StatusOK, Result{Code: CodeSuccess, Message: msg})
}

func (h *handlers) switchStatus(w http.ResponseWriter, r *http.Request) {
	on, err := h.svc.IsSyncOn(r.Context(), mux.Vars(r)["destination"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": etl.Render(on)})
}

func (h *handlers) listLocks(w http.ResponseWriter, r *http.Request) {
	leases, err := h.locks.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if leases == nil {
		leases = []lock.Lease{}
	}
	h.writeJSON(w, http.StatusOK, leases)
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeError maps err to a status code and Result.
func (h *handlers) writeError(w http.ResponseWriter, err error) {
	switch {
	case etl.IsNotFound(err):
		h.writeResult(w, http.StatusNotFound, Result{Code: CodeNotFound, Message: err.Error()})
	case etl.IsClientError(err):
		h.writeResult(w, http.StatusBadRequest, Result{Code: CodeBadRequest, Message: err.Error()})
	default:
		h.logger.Printf("ERROR: %v", err)
		h.writeResult(w, http.StatusInternalServerError, Result{Code: CodeFailure, Message: err.Error()})
	}
}

func (h *handlers) writeResult(w http.ResponseWriter, status int, res Result) {
	h.writeJSON(w, status, res)
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Printf("Failed to encode response: %v", err)
	}
}
