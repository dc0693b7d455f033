// Package adapter defines the contract of a backend ETL adapter and the
// registry that dispatches an (adapter type, adapter key) pair to a
// configured instance.
//
// Adapters do the actual data movement. The coordinator only calls them
// inside a guarded scope and passes their outcome through unchanged.
package adapter

import "context"

// Type is the category of a backend, e.g. "es7", "hbase", "rdb".
type Type string

// Well-known adapter types.
const (
	TypeES6   Type = "es6"
	TypeES7   Type = "es7"
	TypeHBase Type = "hbase"
	TypeRDB   Type = "rdb"
	TypeKudu  Type = "kudu"
)

// Handle is one configured adapter instance.
type Handle interface {
	// Destination returns the upstream change-data instance the task
	// consumes from, or "" if the task doubles as the destination.
	Destination(task string) string

	// Etl runs a full (filters == nil) or filtered import of task.
	// Failures are reported in the result, never as a panic.
	Etl(ctx context.Context, task string, filters []string) *EtlResult

	// Count reports row counts or similar statistics for task.
	Count(ctx context.Context, task string) (map[string]any, error)
}

// EtlResult is the outcome of one ETL call.
type EtlResult struct {
	Succeeded     bool   `json:"succeeded"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
	ResultMessage string `json:"resultMessage,omitempty"`
}

// Success returns a successful result with an optional message.
func Success(msg string) *EtlResult {
	return &EtlResult{Succeeded: true, ResultMessage: msg}
}

// Failed returns a failed result carrying msg.
func Failed(msg string) *EtlResult {
	return &EtlResult{Succeeded: false, ErrorMessage: msg}
}
