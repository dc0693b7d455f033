package guard

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for guarded runs.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, guard.ErrBusy) {
//	    // Another run holds the lock, try later
//	}
var (
	// ErrBusy is returned when the lock for a run is already held.
	// No switch was touched and the body did not run.
	ErrBusy = errors.New("lock is held by another process")

	// ErrSwitchRestore is returned when a paused switch could not be turned
	// back on after the body ran. Incremental sync for the destination stays
	// paused until an operator intervenes.
	ErrSwitchRestore = errors.New("failed to restore sync switch")
)

// BusyError reports lock contention for a task.
type BusyError struct {
	Task string
	Key  string
}

func (e *BusyError) Error() string {
	return BusyMessage(e.Task)
}

// Is makes errors.Is(err, ErrBusy) true for a *BusyError.
func (e *BusyError) Is(target error) bool {
	return target == ErrBusy
}

// BusyMessage is the operator-facing message for a task whose lock is held.
func BusyMessage(task string) string {
	return fmt.Sprintf("%s is being imported by another process, try again later", task)
}

// SwitchRestoreError reports a switch that stayed off after a run.
type SwitchRestoreError struct {
	Destination string
	Attempts    int
	Err         error
}

func (e *SwitchRestoreError) Error() string {
	return fmt.Sprintf("failed to restore sync switch for %s after %d attempt(s): %v",
		e.Destination, e.Attempts, e.Err)
}

// Unwrap returns ErrSwitchRestore and the last store error.
func (e *SwitchRestoreError) Unwrap() []error {
	return []error{ErrSwitchRestore, e.Err}
}

// GuardError carries the body's error together with the errors of cleanup
// steps that failed after it. Err is nil when the body succeeded but cleanup
// did not.
type GuardError struct {
	Err     error
	Cleanup []error
}

func (e *GuardError) Error() string {
	parts := make([]string, 0, len(e.Cleanup))
	for _, c := range e.Cleanup {
		parts = append(parts, c.Error())
	}
	cleanup := strings.Join(parts, "; ")

	if e.Err == nil {
		return "cleanup failed: " + cleanup
	}
	return fmt.Sprintf("%v (cleanup failed: %s)", e.Err, cleanup)
}

// Unwrap exposes both the body error and the cleanup errors to errors.Is
// and errors.As.
func (e *GuardError) Unwrap() []error {
	errs := make([]error, 0, len(e.Cleanup)+1)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return append(errs, e.Cleanup...)
}

// withCleanup records cleanupErr on top of err.
func withCleanup(err, cleanupErr error) error {
	if ge, ok := err.(*GuardError); ok {
		ge.Cleanup = append(ge.Cleanup, cleanupErr)
		return ge
	}
	return &GuardError{Err: err, Cleanup: []error{cleanupErr}}
}

// IsBusy returns true if err reports lock contention.
func IsBusy(err error) bool {
	return err != nil && errors.Is(err, ErrBusy)
}

// IsRestoreFailure returns true if err reports a switch left paused.
func IsRestoreFailure(err error) bool {
	return err != nil && errors.Is(err, ErrSwitchRestore)
}
