package etl

import (
	"errors"

	"github.com/mschirtzinger/etlguard/internal/adapter"
	"github.com/mschirtzinger/etlguard/internal/tasks"
)

// Errors returned by the ETL service.
var (
	// ErrInvalidRange is returned when a range ETL is requested with step < 1.
	ErrInvalidRange = errors.New("invalid range")

	// ErrUnknownVerb is returned when switch control gets a verb other than
	// "on" or "off". Nothing is changed.
	ErrUnknownVerb = errors.New("unknown switch verb")
)

// IsNotFound returns true if err means the task or adapter does not exist.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, tasks.ErrTaskNotFound) || adapter.IsNotFound(err)
}

// IsClientError returns true if err was caused by bad caller input.
func IsClientError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrInvalidRange) || errors.Is(err, ErrUnknownVerb)
}
