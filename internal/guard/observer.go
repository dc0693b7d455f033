package guard

// Observer receives lock and switch events from guarded runs.
// Implementations must not block; they are called on the run's goroutine.
type Observer interface {
	LockAcquired(key string)
	LockBusy(key, task string)
	LockReleased(key string)
	SwitchChanged(destination string, on bool)
}

// NopObserver ignores all events.
type NopObserver struct{}

func (NopObserver) LockAcquired(string)        {}
func (NopObserver) LockBusy(string, string)    {}
func (NopObserver) LockReleased(string)        {}
func (NopObserver) SwitchChanged(string, bool) {}
