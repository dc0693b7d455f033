package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/mschirtzinger/etlguard/internal/etl"
	"github.com/mschirtzinger/etlguard/internal/syncswitch"
	"github.com/mschirtzinger/etlguard/internal/ui"
)

var switchCmd = &cobra.Command{
	Use:   "switch",
	Short: "Inspect and control incremental sync switches",
	Long: `Each destination has a sync switch. While it is off the incremental pipeline
holds back deliveries to that destination. ETL runs turn it off and back on
automatically; these commands are for manual control.`,
}

var switchOnCmd = &cobra.Command{
	Use:   "on <destination>",
	Short: "Resume incremental sync for a destination",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setSwitch(cmd, args[0], "on")
	},
}

var switchOffCmd = &cobra.Command{
	Use:   "off <destination>",
	Short: "Pause incremental sync for a destination",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes && ui.IsInteractive() {
			confirmed := false
			err := huh.NewConfirm().
				Title(fmt.Sprintf("Pause incremental sync for %s?", args[0])).
				Description("Changes stop reaching this destination until the switch is turned back on.").
				Affirmative("Pause").
				Negative("Cancel").
				Value(&confirmed).
				Run()
			if err != nil {
				return err
			}
			if !confirmed {
				fmt.Println("Cancelled")
				return nil
			}
		}
		return setSwitch(cmd, args[0], "off")
	},
}

var switchStatusCmd = &cobra.Command{
	Use:   "status <destination>",
	Short: "Show the sync switch of a destination",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		on, err := a.svc.IsSyncOn(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", args[0], ui.RenderStatus(etl.Render(on)))
		return nil
	},
}

var switchWaitCmd = &cobra.Command{
	Use:   "wait <destination>",
	Short: "Block until a destination's sync switch is on",
	Long: `Block until the sync switch of a destination is on. Pipeline scripts can
run this before delivering a batch. Exits non-zero on --timeout.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		a, err := newApp(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := syncswitch.Wait(ctx, a.switches, args[0], interval); err != nil {
			return err
		}
		fmt.Printf("%s %s: %s\n", ui.RenderPass("✓"), args[0], ui.RenderStatus("on"))
		return nil
	},
}

var destinationsCmd = &cobra.Command{
	Use:   "destinations",
	Short: "List configured destinations and their sync switches",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := newApp(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.svc.ListDestinations(cmd.Context())
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(list)
		}
		if len(list) == 0 {
			fmt.Printf("%s No destinations configured\n", ui.RenderWarn("⚠"))
			return nil
		}

		rows := make([][]string, 0, len(list))
		for _, d := range list {
			rows = append(rows, []string{d.Destination, ui.RenderStatus(d.Status)})
		}
		fmt.Print(ui.Table([]string{"DESTINATION", "STATUS"}, rows))
		return nil
	},
}

func setSwitch(cmd *cobra.Command, destination, verb string) error {
	a, err := newApp(cmd.Context(), cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	msg, err := a.svc.SetSync(cmd.Context(), destination, verb)
	if err != nil {
		return fmt.Errorf("destination %s: operation failed: %w", destination, err)
	}
	fmt.Printf("%s %s\n", ui.RenderPass("✓"), msg)
	return nil
}

func init() {
	switchOffCmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")
	switchWaitCmd.Flags().Duration("interval", time.Second, "poll interval")
	switchWaitCmd.Flags().Duration("timeout", 0, "give up after this long (0 = wait forever)")
	destinationsCmd.Flags().Bool("json", false, "output JSON")

	switchCmd.AddCommand(switchOnCmd)
	switchCmd.AddCommand(switchOffCmd)
	switchCmd.AddCommand(switchStatusCmd)
	switchCmd.AddCommand(switchWaitCmd)
	rootCmd.AddCommand(switchCmd)
	rootCmd.AddCommand(destinationsCmd)
}
