package cmd

import (
	"context"
	"fmt"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/dbsmedya/proxyhk/internal/config"
	"github.com/dbsmedya/proxyhk/internal/rtc"
)

var runtimeControlCmd = &cobra.Command{
	Use:   "runtime-control <option>",
	Short: "Send a runtime control command to a running housekeeper",
	Long: `Runtime-control sends a command to a running housekeeper through its
control socket.

Options:
  housekeeper_execute   run a housekeeping cycle now
  shutdown              stop the housekeeper

Example:
  proxyhk runtime-control housekeeper_execute --config proxyhk.yaml`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{rtc.CommandExecute.String(), rtc.CommandShutdown.String()},
	RunE:      runRuntimeControl,
}

func init() {
	rootCmd.AddCommand(runtimeControlCmd)
}

func runRuntimeControl(cmd *cobra.Command, args []string) error {
	if _, err := rtc.ParseCommand(args[0]); err != nil {
		return err
	}

	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	reply, err := rtc.Send(context.Background(), cfg.Control.Socket, args[0], cfg.Housekeeper.Timeout())
	if err != nil {
		cmd.Println(color.Red.Sprintf("error: %v", err))
		return fmt.Errorf("runtime control command %q failed: %w", args[0], err)
	}

	cmd.Println(color.Green.Sprint(reply))
	return nil
}
