package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/proxyhk/internal/config"
	"github.com/dbsmedya/proxyhk/internal/database"
	"github.com/dbsmedya/proxyhk/internal/housekeeper"
	"github.com/dbsmedya/proxyhk/internal/logger"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the buffered tables and their watermarks",
	Long: `Tables shows every buffered table the housekeeper prunes, the ids
entry holding its watermark, the current watermark value, the highest id
and the oldest row.

Example:
  proxyhk tables --config proxyhk.yaml`,
	RunE: runTables,
}

func init() {
	rootCmd.AddCommand(tablesCmd)
}

func runTables(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	reports, err := inspectTables(context.Background(), cfg, log, false)
	if err != nil {
		return err
	}

	printTableReports(cmd.OutOrStdout(), reports, false)
	return nil
}

// inspectTables opens the proxy database and inspects every buffered table
// as the next cycle would see it, without deleting anything.
func inspectTables(ctx context.Context, cfg *config.Config, log *logger.Logger, count bool) ([]*housekeeper.TableReport, error) {
	connector := database.NewConnector(cfg.Database)
	db, err := connector.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	engine := housekeeper.NewEngine(connector.Dialect(), retentionWindow(cfg), log)
	return inspectWith(ctx, db, engine, nextCycle(cfg, time.Now()), count)
}

func inspectWith(ctx context.Context, db *sql.DB, engine *housekeeper.Engine, cycle housekeeper.CycleContext, count bool) ([]*housekeeper.TableReport, error) {
	reports := make([]*housekeeper.TableReport, 0, len(housekeeper.Tables))
	for _, spec := range housekeeper.Tables {
		report, err := engine.Inspect(ctx, db, spec, cycle, count)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect %s: %w", spec.TableName, err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// nextCycle approximates the context of the next scheduled cycle: a full
// frequency slept, clamped like any measured period.
func nextCycle(cfg *config.Config, now time.Time) housekeeper.CycleContext {
	return housekeeper.CycleContext{
		Now:                   now.Unix(),
		SchedulePeriodSeconds: housekeeper.ComputePeriod(cfg.Housekeeper.Frequency()),
	}
}
