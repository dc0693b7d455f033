package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/etlguard/internal/adapter"
	"github.com/mschirtzinger/etlguard/internal/etl"
	"github.com/mschirtzinger/etlguard/internal/guard"
	"github.com/mschirtzinger/etlguard/internal/logging"
	"github.com/mschirtzinger/etlguard/internal/ui"
)

var etlCmd = &cobra.Command{
	Use:   "etl <type> <task>",
	Short: "Run an ad-hoc ETL for one task",
	Long: `Run a guarded ETL of one task through its adapter.

The adapter key is read from the task config unless --key is given. --params
takes a ';'-separated list of filter values handed to the adapter verbatim.

Examples:
  etlguard etl rdb mytest_user.yml
  etlguard etl rdb mytest_user.yml --params "id>100;id<200"
  etlguard etl es7 mytest_person2.yml --key es1`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("key")
		params, _ := cmd.Flags().GetString("params")

		a, err := newApp(cmd.Context(), cfg, withProgress)
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Printf("%s Running ETL of %s (%s)...\n", ui.RenderAccent("🔄"), args[1], args[0])
		start := time.Now()
		result, err := a.svc.Etl(context.WithoutCancel(cmd.Context()), args[0], key, args[1], params)
		return reportResult(result, err, time.Since(start))
	},
}

var etlRangeCmd = &cobra.Command{
	Use:   "etl-range <type> <task>",
	Short: "Run a windowed ETL over an id range",
	Long: `Run a guarded ETL of one task in windows of --step ids covering [1, --max).

The whole run holds a single lock and keeps the destination's sync switch off
until the last window finishes. A failed window is reported and the run
continues with the next one.

Example:
  etlguard etl-range rdb mytest_user.yml --max 1000000 --step 50000`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		max, _ := cmd.Flags().GetInt("max")
		step, _ := cmd.Flags().GetInt("step")

		a, err := newApp(cmd.Context(), cfg, withProgress)
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Printf("%s Running range ETL of %s (%s), max %d, step %d...\n",
			ui.RenderAccent("🔄"), args[1], args[0], max, step)
		start := time.Now()
		result, err := a.svc.EtlRange(context.WithoutCancel(cmd.Context()), args[0], args[1], max, step)
		return reportResult(result, err, time.Since(start))
	},
}

var countCmd = &cobra.Command{
	Use:   "count <type> <task>",
	Short: "Show adapter statistics for a task",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("key")

		a, err := newApp(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		counts, err := a.svc.Count(cmd.Context(), args[0], key, args[1])
		if err != nil {
			return err
		}
		return printJSON(counts)
	},
}

func init() {
	etlCmd.Flags().String("key", "", "adapter key (default: from the task config)")
	etlCmd.Flags().String("params", "", "';'-separated filter values")

	etlRangeCmd.Flags().Int("max", 0, "exclusive upper bound of the id range")
	etlRangeCmd.Flags().Int("step", 0, "ids per window")
	_ = etlRangeCmd.MarkFlagRequired("max")
	_ = etlRangeCmd.MarkFlagRequired("step")

	countCmd.Flags().String("key", "", "adapter key (default: from the task config)")

	rootCmd.AddCommand(etlCmd)
	rootCmd.AddCommand(etlRangeCmd)
	rootCmd.AddCommand(countCmd)
}

// progress prints range windows and lock contention as they happen.
type progress struct {
	etl.NopObserver
}

func withProgress(*logging.Output) etl.Observer {
	return progress{}
}

func (progress) WindowDone(typ, task string, w etl.Window, result *adapter.EtlResult) {
	if result != nil && result.Succeeded {
		fmt.Printf("   %s window %d-%d\n", ui.RenderPass("✓"), w.Start, w.End)
		return
	}
	msg := ""
	if result != nil {
		msg = result.ErrorMessage
	}
	fmt.Printf("   %s window %d-%d: %s\n", ui.RenderFail("✗"), w.Start, w.End, msg)
}

func (progress) SwitchChanged(destination string, on bool) {
	fmt.Printf("   %s sync switch for %s is %s\n", ui.RenderMuted("•"), destination, ui.RenderStatus(etl.Render(on)))
}

var _ guard.Observer = progress{}

// reportResult prints the outcome of a run. A failed run or a restore error
// yields errReported, so deferred cleanup still runs before the exit.
func reportResult(result *adapter.EtlResult, err error, elapsed time.Duration) error {
	if result == nil {
		return err
	}
	if result.Succeeded {
		fmt.Printf("%s ETL complete in %v\n", ui.RenderPass("✓"), elapsed.Round(time.Millisecond))
		if result.ResultMessage != "" {
			fmt.Printf("   %s\n", result.ResultMessage)
		}
	} else {
		fmt.Printf("%s ETL failed: %s\n", ui.RenderFail("✗"), result.ErrorMessage)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderWarn("⚠"), err)
	}
	if !result.Succeeded || err != nil {
		return errReported
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
