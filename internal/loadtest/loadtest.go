// Package loadtest drives concurrent guarded runs against a lock store and a
// switch store.
//
// It simulates many launcher nodes triggering ETLs for a small set of
// destinations at once, to check that the coordination store keeps runs of
// one destination single-flight under contention, always restores switches,
// and answers lock requests quickly.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mschirtzinger/etlguard/internal/guard"
	"github.com/mschirtzinger/etlguard/internal/lock"
	"github.com/mschirtzinger/etlguard/internal/syncswitch"
)

// Config describes a load test run.
type Config struct {
	// Workers is the number of concurrent simulated operators.
	Workers int

	// Requests is the number of guarded runs each worker attempts.
	Requests int

	// Destinations is the number of distinct destinations runs are spread over.
	// Fewer destinations means more contention.
	Destinations int

	// Hold is how long each successful run keeps its lock.
	Hold time.Duration

	// Type is the adapter type used in lock keys (default: "loadtest").
	Type string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Workers:      50,
		Requests:     20,
		Destinations: 4,
		Hold:         2 * time.Millisecond,
		Type:         "loadtest",
	}
}

// LatencyStats captures performance metrics from a load test.
type LatencyStats struct {
	Min       time.Duration
	Max       time.Duration
	Mean      time.Duration
	P50       time.Duration // Median
	P95       time.Duration
	P99       time.Duration
	Durations []time.Duration
}

// Result summarizes a load test run.
type Result struct {
	Attempts int
	Ran      int
	Busy     int
	Errors   int

	// Overlaps counts runs that started while another run of the same
	// destination was still in its body. Anything but zero is a bug.
	Overlaps int

	// SwitchesOff lists destinations whose switch was left off.
	SwitchesOff []string

	Latency *LatencyStats
	Elapsed time.Duration
}

// Run executes the load test described by cfg.
func Run(ctx context.Context, locks lock.Store, switches syncswitch.Store, cfg Config) (*Result, error) {
	if cfg.Workers < 1 || cfg.Requests < 1 || cfg.Destinations < 1 {
		return nil, fmt.Errorf("workers, requests and destinations must be positive")
	}
	if cfg.Type == "" {
		cfg.Type = "loadtest"
	}

	g, err := guard.NewWithConfig(locks, switches, &guard.Config{
		Logger: log.New(io.Discard, "", 0),
	})
	if err != nil {
		return nil, err
	}

	inFlight := make([]atomic.Int32, cfg.Destinations)
	var (
		ran, busy, errCount, overlaps atomic.Int64

		mu        sync.Mutex
		durations = make([]time.Duration, 0, cfg.Workers*cfg.Requests)
		wg        sync.WaitGroup
	)

	start := time.Now()
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			local := make([]time.Duration, 0, cfg.Requests)
			for i := 0; i < cfg.Requests; i++ {
				if ctx.Err() != nil {
					break
				}
				d := (worker + i) % cfg.Destinations
				dest := destinationName(d)

				began := time.Now()
				entered := time.Duration(0)
				err := g.Run(ctx, cfg.Type, dest, "loadtest.yml", func(ctx context.Context) error {
					entered = time.Since(began)
					if inFlight[d].Add(1) > 1 {
						overlaps.Add(1)
					}
					defer inFlight[d].Add(-1)

					if cfg.Hold > 0 {
						time.Sleep(cfg.Hold)
					}
					return nil
				})

				switch {
				case err == nil:
					ran.Add(1)
					local = append(local, entered)
				case guard.IsBusy(err):
					busy.Add(1)
					local = append(local, time.Since(began))
				default:
					errCount.Add(1)
				}
			}

			mu.Lock()
			durations = append(durations, local...)
			mu.Unlock()
		}(w)
	}
	wg.Wait()

	res := &Result{
		Attempts: int(ran.Load() + busy.Load() + errCount.Load()),
		Ran:      int(ran.Load()),
		Busy:     int(busy.Load()),
		Errors:   int(errCount.Load()),
		Overlaps: int(overlaps.Load()),
		Latency:  computeLatencyStats(durations),
		Elapsed:  time.Since(start),
	}

	for d := 0; d < cfg.Destinations; d++ {
		on, err := switches.Status(context.WithoutCancel(ctx), destinationName(d))
		if err != nil {
			return nil, fmt.Errorf("failed to read switch: %w", err)
		}
		if !on {
			res.SwitchesOff = append(res.SwitchesOff, destinationName(d))
		}
	}
	return res, nil
}

// Verify returns an error describing the first broken coordination property
// in r, or nil.
func (r *Result) Verify() error {
	if r.Overlaps > 0 {
		return fmt.Errorf("%d run(s) overlapped another run of the same destination", r.Overlaps)
	}
	if len(r.SwitchesOff) > 0 {
		return fmt.Errorf("sync switch left off for %v", r.SwitchesOff)
	}
	if r.Errors > 0 {
		return fmt.Errorf("%d run(s) failed with store errors", r.Errors)
	}
	return nil
}

func destinationName(i int) string {
	return fmt.Sprintf("loadtest-%02d", i)
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:       sorted[0],
		Max:       sorted[len(sorted)-1],
		Mean:      sum / time.Duration(len(durations)),
		P50:       sorted[len(sorted)*50/100],
		P95:       sorted[len(sorted)*95/100],
		P99:       sorted[len(sorted)*99/100],
		Durations: sorted,
	}
}

// PrintStats formats and prints the result.
func (r *Result) PrintStats(w io.Writer) {
	fmt.Fprintf(w, "Load test results:\n")
	fmt.Fprintf(w, "  Attempts:      %d\n", r.Attempts)
	fmt.Fprintf(w, "  Ran:           %d\n", r.Ran)
	fmt.Fprintf(w, "  Busy:          %d\n", r.Busy)
	fmt.Fprintf(w, "  Errors:        %d\n", r.Errors)
	fmt.Fprintf(w, "  Overlaps:      %d\n", r.Overlaps)
	fmt.Fprintf(w, "  Elapsed:       %v\n", r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Lock latency:\n")
	fmt.Fprintf(w, "  Min:           %v\n", r.Latency.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", r.Latency.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", r.Latency.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", r.Latency.P95)
	fmt.Fprintf(w, "  P99:           %v\n", r.Latency.P99)
	fmt.Fprintf(w, "  Max:           %v\n", r.Latency.Max)
}
