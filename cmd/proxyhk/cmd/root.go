package cmd

import (
	"fmt"
	"os"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/dbsmedya/proxyhk/internal/config"
	"github.com/dbsmedya/proxyhk/internal/logger"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// CLI flags that override config file values
var (
	cfgFile        string
	logLevel       string
	logFormat      string
	frequencyHours int
	noColor        bool
)

var rootCmd = &cobra.Command{
	Use:   "proxyhk",
	Short: "Proxy database housekeeper",
	Long: `A housekeeping worker for monitoring proxy databases. It periodically
prunes the buffered history tables of data that was already sent upstream
or that is older than the offline buffer.

Features:
  - Watermark aware deletion bounded by the housekeeping period
  - Forced execution and shutdown through a runtime control socket
  - Single worker per database via MySQL advisory lock
  - MySQL and SQLite proxy databases
  - Prometheus metrics`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.Enable = false
		}
	},
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Config file flag
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "proxyhk.yaml",
		"Path to configuration file")

	// Logging overrides
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")

	// Schedule override
	rootCmd.PersistentFlags().IntVar(&frequencyHours, "frequency", -1,
		"Override housekeeping frequency in hours (0 runs only on command)")

	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false,
		"Disable colored output")
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// CLIOverrides contains flag values that override config file settings
type CLIOverrides struct {
	LogLevel       string
	LogFormat      string
	FrequencyHours int
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() CLIOverrides {
	return CLIOverrides{
		LogLevel:       logLevel,
		LogFormat:      logFormat,
		FrequencyHours: frequencyHours,
	}
}

// loadConfig reads the config file, applies CLI overrides, validates the
// result and builds the logger.
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	overrides := GetCLIOverrides()
	cfg.ApplyOverrides(overrides.LogLevel, overrides.LogFormat, overrides.FrequencyHours)

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}
