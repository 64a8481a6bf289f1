package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var dryrunCmd = &cobra.Command{
	Use:   "dry-run",
	Short: "Simulate a housekeeping cycle without making changes",
	Long: `Dry-run simulates the next housekeeping cycle and reports what would
be deleted without making any changes to the database.

The dry-run shows:
  - Watermark, highest id and oldest row per table
  - Retention floor and delete bound used by the predicate
  - Row counts that the cycle would delete

Example:
  proxyhk dry-run --config proxyhk.yaml`,
	RunE: runDryrun,
}

func init() {
	rootCmd.AddCommand(dryrunCmd)
}

func runDryrun(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	reports, err := inspectTables(context.Background(), cfg, log, true)
	if err != nil {
		return fmt.Errorf("estimation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n=== Dry Run ===\n")
	fmt.Fprintf(out, "Offline buffer: %dh, local buffer: %dh\n",
		cfg.Housekeeper.ProxyOfflineBufferHours, cfg.Housekeeper.ProxyLocalBufferHours)

	var total int64
	for _, r := range reports {
		if r.Skipped() != "" {
			continue
		}
		fmt.Fprintf(out, "%s: delete where clock < %s, or id <= %d and clock < %s\n",
			r.Table.TableName, formatClock(r.RetentionFloor), r.NextID, formatClock(r.DeleteBound))
		total += r.Eligible
	}
	fmt.Fprintln(out)

	printTableReports(out, reports, true)
	fmt.Fprintf(out, "\nTotal rows to delete: %d\n", total)
	return nil
}
