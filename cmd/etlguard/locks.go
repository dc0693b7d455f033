package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/etlguard/internal/ui"
)

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "List held ETL locks",
	Long: `List the ETL locks currently held, one per running guarded ETL. With the
memory store this only shows locks of the current process, so it is most useful
with a sqlite or libsql store shared by every node.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := newApp(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		leases, err := a.locks.List(cmd.Context())
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(leases)
		}
		if len(leases) == 0 {
			fmt.Printf("%s No ETL locks held\n", ui.RenderPass("✓"))
			return nil
		}

		now := time.Now()
		rows := make([][]string, 0, len(leases))
		for _, l := range leases {
			expires := "never"
			if !l.ExpiresAt.IsZero() {
				expires = l.ExpiresAt.Format(time.RFC3339)
				if l.Expired(now) {
					expires = ui.RenderWarn(expires + " (expired)")
				}
			}
			rows = append(rows, []string{
				l.Path,
				l.Owner,
				now.Sub(l.AcquiredAt).Round(time.Second).String(),
				expires,
			})
		}
		fmt.Print(ui.Table([]string{"PATH", "OWNER", "HELD", "EXPIRES"}, rows))
		return nil
	},
}

func init() {
	locksCmd.Flags().Bool("json", false, "output JSON")
	rootCmd.AddCommand(locksCmd)
}
