// Command etlguard runs guarded full and partial re-synchronizations for a
// change-data-capture pipeline.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/etlguard/internal/config"
	"github.com/mschirtzinger/etlguard/internal/ui"

	// Adapter factories register themselves by type.
	_ "github.com/mschirtzinger/etlguard/internal/adapter/rdb"
)

var (
	configPath string
	noColor    bool

	cfg *config.Config
)

// errReported is returned by commands that already printed why they failed.
// main exits non-zero without printing it again.
var errReported = errors.New("failure reported")

var rootCmd = &cobra.Command{
	Use:   "etlguard",
	Short: "Guarded backfills for a change-data-capture pipeline",
	Long: `etlguard runs on-demand bulk re-synchronizations (ETL) of a target while the
incremental pipeline keeps streaming into it.

Each run takes a lock keyed by adapter type and destination, so two backfills of
the same target never overlap, and pauses the destination's incremental sync
switch for the duration of the run. The switch is restored afterwards, even when
the run fails.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.Init(noColor)

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if errs := loaded.Validate(); len(errs) > 0 {
			return config.ValidationErrors(errs)
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ./etlguard.yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)
		}
		os.Exit(1)
	}
}
