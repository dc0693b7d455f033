package adapter

import "errors"

// Errors returned by adapter dispatch.
var (
	// ErrAdapterNotFound is returned when no adapter instance is registered
	// for a (type, key) pair.
	ErrAdapterNotFound = errors.New("adapter not found")

	// ErrUnknownType is returned when no factory is registered for an
	// adapter type.
	ErrUnknownType = errors.New("unknown adapter type")
)

// IsNotFound returns true if err means the requested adapter does not exist.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrAdapterNotFound) || errors.Is(err, ErrUnknownType)
}
