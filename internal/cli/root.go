package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"focuser/internal/bus"
	"focuser/internal/client"
	"focuser/internal/config"
)

const requestTimeout = 15 * time.Second

var (
	configPath string
	daemonAddr string
	rootCmd    *cobra.Command
)

func init() {
	rootCmd = &cobra.Command{
		Use:   "focuser",
		Short: "Focuser - site blocking, pomodoro timer and tasks",
		Long: `Focuser blocks distracting sites, runs a pomodoro timer and keeps a task list.

Run "focuser serve" to start the daemon; every other command talks to it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.focuser/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&daemonAddr, "addr", "", "Daemon address (default server.listen from config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(blockCmd)
	rootCmd.AddCommand(timerCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(dataCmd)
	rootCmd.AddCommand(logLevelCmd)
}

// Execute runs the root command
func Execute(version string) error {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func newClient() (*client.Client, error) {
	if daemonAddr != "" {
		return client.New(daemonAddr), nil
	}
	manager, err := config.NewManager(configPath)
	if err != nil {
		return nil, err
	}
	return client.New(manager.GetConfig().Server.Listen), nil
}

// call sends msg to the daemon and decodes the reply into out.
func call(cmd *cobra.Command, msg bus.Message, out any) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()
	return c.Call(ctx, msg, out)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
