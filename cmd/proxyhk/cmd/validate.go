package cmd

import (
	"context"
	"fmt"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/dbsmedya/proxyhk/internal/database"
	"github.com/dbsmedya/proxyhk/internal/housekeeper"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and run preflight checks",
	Long: `Validate checks the configuration file and runs preflight checks
against the proxy database to ensure the housekeeper can run.

Checks performed:
  - Configuration syntax and value ranges
  - Database connectivity
  - Table existence (ids and the buffered tables)

Example:
  proxyhk validate --config proxyhk.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n=== Configuration Validation ===\n")
	fmt.Fprintf(out, "Config file: %s\n", GetConfigFile())

	cfg, log, err := loadConfig()
	if err != nil {
		fmt.Fprintln(out, color.Red.Sprintf("❌ %v", err))
		return fmt.Errorf("configuration is invalid")
	}
	fmt.Fprintln(out, color.Green.Sprint("✅ Configuration is valid"))

	ctx := context.Background()
	connector := database.NewConnector(cfg.Database)
	db, err := connector.Open(ctx)
	if err != nil {
		fmt.Fprintln(out, color.Red.Sprintf("❌ Database connection failed: %v", err))
		return fmt.Errorf("validation failed")
	}
	defer db.Close()
	fmt.Fprintln(out, color.Green.Sprintf("✅ Connected to %s database", cfg.Database.Driver))

	checker := housekeeper.NewPreflightChecker(db, connector.Dialect(), nil, log)
	if err := checker.RunAllChecks(ctx); err != nil {
		fmt.Fprintln(out, color.Red.Sprintf("❌ Preflight checks failed: %v", err))
		return fmt.Errorf("validation failed")
	}

	fmt.Fprintln(out, color.Green.Sprint("✅ All checks passed"))
	return nil
}
