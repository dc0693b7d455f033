package guard

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/etlguard/internal/lock"
	"github.com/mschirtzinger/etlguard/internal/syncswitch"
)

// countingSwitches wraps a switch store, counts mutations and can be told to
// fail them.
type countingSwitches struct {
	syncswitch.Store

	ons, offs atomic.Int32
	onErr     error
	offErr    error
}

func (c *countingSwitches) On(ctx context.Context, destination string) error {
	c.ons.Add(1)
	if c.onErr != nil {
		return c.onErr
	}
	return c.Store.On(ctx, destination)
}

func (c *countingSwitches) Off(ctx context.Context, destination string) error {
	c.offs.Add(1)
	if c.offErr != nil {
		return c.offErr
	}
	return c.Store.Off(ctx, destination)
}

func (c *countingSwitches) mutations() int32 {
	return c.ons.Load() + c.offs.Load()
}

// faultyLocks wraps a lock store and can be told to fail acquire or release.
type faultyLocks struct {
	lock.Store
	acquireErr error
	releaseErr error
}

func (f *faultyLocks) TryAcquire(ctx context.Context, path string) (bool, error) {
	if f.acquireErr != nil {
		return false, f.acquireErr
	}
	return f.Store.TryAcquire(ctx, path)
}

func (f *faultyLocks) Release(ctx context.Context, path string) error {
	if f.releaseErr != nil {
		_ = f.Store.Release(ctx, path)
		return f.releaseErr
	}
	return f.Store.Release(ctx, path)
}

// recordingObserver records events as strings.
type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingObserver) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingObserver) LockAcquired(key string)   { r.add("acquired " + key) }
func (r *recordingObserver) LockBusy(key, task string) { r.add("busy " + key) }
func (r *recordingObserver) LockReleased(key string)   { r.add("released " + key) }
func (r *recordingObserver) SwitchChanged(dest string, on bool) {
	if on {
		r.add("on " + dest)
	} else {
		r.add("off " + dest)
	}
}

type fixture struct {
	guard    *Guard
	locks    *lock.Memory
	switches *countingSwitches
	observer *recordingObserver
}

func setup(t *testing.T) *fixture {
	t.Helper()

	quiet := log.New(io.Discard, "", 0)
	f := &fixture{
		locks:    lock.NewMemory(lock.WithMemoryLogger(quiet)),
		switches: &countingSwitches{Store: syncswitch.NewMemory()},
		observer: &recordingObserver{},
	}

	g, err := NewWithConfig(f.locks, f.switches, &Config{
		RestoreAttempts: 3,
		Observer:        f.observer,
		Logger:          quiet,
	})
	require.NoError(t, err)
	f.guard = g
	return f
}

func (f *fixture) status(t *testing.T, dest string) bool {
	t.Helper()
	on, err := f.switches.Status(context.Background(), dest)
	require.NoError(t, err)
	return on
}

func TestLockKey(t *testing.T) {
	f := setup(t)

	assert.Equal(t, "/sync-etl/es7-example", f.guard.LockKey("es7", "example", "mytest_person2.yml"))
	assert.Equal(t, "/sync-etl/rdb-mytest_user.yml", f.guard.LockKey("rdb", "", "mytest_user.yml"))
}

func TestRunSwitchOffDuringBodyAndRestored(t *testing.T) {
	ctx := context.Background()

	bodies := map[string]func(ctx context.Context) error{
		"success": func(ctx context.Context) error { return nil },
		"error":   func(ctx context.Context) error { return errors.New("adapter exploded") },
	}

	for name, result := range bodies {
		t.Run(name, func(t *testing.T) {
			f := setup(t)
			require.True(t, f.status(t, "example"))

			var duringOn, duringLocked bool
			err := f.guard.Run(ctx, "es7", "example", "task.yml", func(ctx context.Context) error {
				duringOn = f.status(t, "example")
				duringLocked = f.locks.Held("/sync-etl/es7-example")
				return result(ctx)
			})

			if name == "error" {
				assert.EqualError(t, err, "adapter exploded")
			} else {
				assert.NoError(t, err)
			}

			assert.False(t, duringOn, "switch should be off while the body runs")
			assert.True(t, duringLocked, "lock should be held while the body runs")
			assert.True(t, f.status(t, "example"), "switch should be on after the run")
			assert.False(t, f.locks.Held("/sync-etl/es7-example"), "lock should be released")
			assert.Equal(t, []string{
				"acquired /sync-etl/es7-example",
				"off example",
				"on example",
				"released /sync-etl/es7-example",
			}, f.observer.events)
		})
	}
}

func TestRunRestoresOnPanic(t *testing.T) {
	f := setup(t)

	assert.PanicsWithValue(t, "boom", func() {
		_ = f.guard.Run(context.Background(), "es7", "example", "task.yml", func(ctx context.Context) error {
			panic("boom")
		})
	})

	assert.True(t, f.status(t, "example"), "switch should be restored after a panic")
	assert.False(t, f.locks.Held("/sync-etl/es7-example"), "lock should be released after a panic")
}

func TestRunPriorOffStaysOff(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.switches.Store.Off(ctx, "example"))

	var during bool
	err := f.guard.Run(ctx, "es7", "example", "task.yml", func(ctx context.Context) error {
		during = f.status(t, "example")
		return errors.New("failed")
	})
	require.Error(t, err)

	assert.False(t, during)
	assert.False(t, f.status(t, "example"), "switch must not be turned on when it was off before")
	assert.Zero(t, f.switches.mutations(), "no switch writes expected")
}

func TestRunTaskAsDestination(t *testing.T) {
	f := setup(t)

	var during bool
	err := f.guard.Run(context.Background(), "rdb", "", "mytest_user.yml", func(ctx context.Context) error {
		during = f.status(t, "mytest_user.yml")
		return nil
	})
	require.NoError(t, err)

	assert.False(t, during, "the task doubles as destination")
	assert.True(t, f.status(t, "mytest_user.yml"))
}

func TestRunBusy(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	firstDone := make(chan error, 1)

	go func() {
		firstDone <- f.guard.Run(ctx, "es7", "example", "a.yml", func(ctx context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	mutationsBefore := f.switches.mutations()

	// Same destination, different task: same lock key
	var ran bool
	err := f.guard.Run(ctx, "es7", "example", "b.yml", func(ctx context.Context) error {
		ran = true
		return nil
	})

	require.Error(t, err)
	assert.True(t, IsBusy(err))
	assert.ErrorIs(t, err, ErrBusy)
	assert.EqualError(t, err, "b.yml is being imported by another process, try again later")

	var busy *BusyError
	require.ErrorAs(t, err, &busy)
	assert.Equal(t, "/sync-etl/es7-example", busy.Key)

	assert.False(t, ran, "busy run must not execute its body")
	assert.Equal(t, mutationsBefore, f.switches.mutations(), "busy run must not touch the switch")

	close(release)
	require.NoError(t, <-firstDone)
	assert.True(t, f.status(t, "example"))
}

func TestRunConcurrentSingleFlight(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	const workers = 16
	var (
		inBody    atomic.Int32
		maxInBody atomic.Int32
		ran       atomic.Int32
		busy      atomic.Int32
		wg        sync.WaitGroup
		start     = make(chan struct{})
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := f.guard.Run(ctx, "es7", "example", "task.yml", func(ctx context.Context) error {
				n := inBody.Add(1)
				for {
					m := maxInBody.Load()
					if n <= m || maxInBody.CompareAndSwap(m, n) {
						break
					}
				}
				ran.Add(1)
				time.Sleep(5 * time.Millisecond)
				inBody.Add(-1)
				return nil
			})
			if IsBusy(err) {
				busy.Add(1)
			}
		}()
	}

	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), maxInBody.Load(), "at most one body may run at a time")
	assert.Equal(t, int32(workers), ran.Load()+busy.Load())
	assert.GreaterOrEqual(t, ran.Load(), int32(1))
	// Each body that ran paused and restored the switch exactly once
	assert.Equal(t, ran.Load()*2, f.switches.mutations())
	assert.True(t, f.status(t, "example"))
}

func TestRunDifferentKeysInParallel(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	inner := make(chan error, 1)
	err := f.guard.Run(ctx, "es7", "alpha", "a.yml", func(ctx context.Context) error {
		inner <- f.guard.Run(ctx, "es7", "beta", "b.yml", func(ctx context.Context) error {
			return nil
		})
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, <-inner)
}

func TestRunRestoreFailure(t *testing.T) {
	f := setup(t)
	f.switches.onErr = errors.New("store unavailable")
	bodyErr := errors.New("adapter failed")

	err := f.guard.Run(context.Background(), "es7", "example", "task.yml", func(ctx context.Context) error {
		return bodyErr
	})

	require.Error(t, err)
	assert.True(t, IsRestoreFailure(err))
	assert.ErrorIs(t, err, ErrSwitchRestore)
	assert.ErrorIs(t, err, bodyErr, "body error must not be replaced")

	var ge *GuardError
	require.ErrorAs(t, err, &ge)
	assert.Same(t, bodyErr, ge.Err)
	require.Len(t, ge.Cleanup, 1)

	var re *SwitchRestoreError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "example", re.Destination)
	assert.Equal(t, 3, re.Attempts)
	assert.Equal(t, int32(3), f.switches.ons.Load(), "restore should be retried")

	assert.False(t, f.locks.Held("/sync-etl/es7-example"), "lock must be released even if restore failed")
}

func TestRunRestoreFailureAfterSuccess(t *testing.T) {
	f := setup(t)
	f.switches.onErr = errors.New("store unavailable")

	err := f.guard.Run(context.Background(), "es7", "example", "task.yml", func(ctx context.Context) error {
		return nil
	})

	require.Error(t, err)
	assert.True(t, IsRestoreFailure(err))

	var ge *GuardError
	require.ErrorAs(t, err, &ge)
	assert.Nil(t, ge.Err)
	assert.Contains(t, err.Error(), "cleanup failed")
}

func TestRunPauseFailure(t *testing.T) {
	f := setup(t)
	f.switches.offErr = errors.New("store unavailable")

	var ran bool
	err := f.guard.Run(context.Background(), "es7", "example", "task.yml", func(ctx context.Context) error {
		ran = true
		return nil
	})

	require.Error(t, err)
	assert.False(t, ran)
	assert.Zero(t, f.switches.ons.Load(), "nothing to restore when pausing failed")
	assert.False(t, f.locks.Held("/sync-etl/es7-example"))
}

func TestRunAcquireError(t *testing.T) {
	quiet := log.New(io.Discard, "", 0)
	storeErr := errors.New("coordination store down")
	switches := &countingSwitches{Store: syncswitch.NewMemory()}
	locks := &faultyLocks{Store: lock.NewMemory(lock.WithMemoryLogger(quiet)), acquireErr: storeErr}

	g, err := NewWithConfig(locks, switches, &Config{Logger: quiet})
	require.NoError(t, err)

	var ran bool
	err = g.Run(context.Background(), "es7", "example", "task.yml", func(ctx context.Context) error {
		ran = true
		return nil
	})

	assert.ErrorIs(t, err, storeErr)
	assert.False(t, IsBusy(err))
	assert.False(t, ran)
	assert.Zero(t, switches.mutations())
}

func TestRunReleaseFailureDoesNotChangeOutcome(t *testing.T) {
	quiet := log.New(io.Discard, "", 0)
	switches := &countingSwitches{Store: syncswitch.NewMemory()}
	locks := &faultyLocks{
		Store:      lock.NewMemory(lock.WithMemoryLogger(quiet)),
		releaseErr: errors.New("release failed"),
	}

	g, err := NewWithConfig(locks, switches, &Config{Logger: quiet})
	require.NoError(t, err)

	err = g.Run(context.Background(), "es7", "example", "task.yml", func(ctx context.Context) error {
		return nil
	})
	assert.NoError(t, err)

	on, _ := switches.Status(context.Background(), "example")
	assert.True(t, on)
}

func TestRunCancelledContextStillRestores(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())

	err := f.guard.Run(ctx, "es7", "example", "task.yml", func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, f.status(t, "example"))
	assert.False(t, f.locks.Held("/sync-etl/es7-example"))
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, syncswitch.NewMemory())
	assert.Error(t, err)

	_, err = New(lock.NewMemory(), nil)
	assert.Error(t, err)

	g, err := NewWithConfig(lock.NewMemory(), syncswitch.NewMemory(), &Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultPrefix, g.config.Prefix)
	assert.Equal(t, 3, g.config.RestoreAttempts)
}
