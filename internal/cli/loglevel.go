package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"focuser/internal/config"
	"focuser/internal/logging"
)

var logLevelCmd = &cobra.Command{
	Use:   "log-level [level]",
	Short: "Show or set the daemon log level",
	Long: `Show or set log.level in the config file. A running daemon watches the
file and applies the new level without a restart.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogLevel,
}

func runLogLevel(cmd *cobra.Command, args []string) error {
	manager, err := config.NewManager(configPath)
	if err != nil {
		return err
	}
	logConfig := manager.GetConfig().Log
	if len(args) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), logConfig.Level)
		return nil
	}

	level, err := logging.ParseLevel(args[0])
	if err != nil {
		return err
	}
	logConfig.Level = level.String()
	if err := manager.UpdateLogConfig(logConfig); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Log level set to %s in %s\n", logConfig.Level, manager.Path())
	return nil
}
