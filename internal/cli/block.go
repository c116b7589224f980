package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"focuser/internal/background"
	"focuser/internal/bus"
)

var blockCmd = &cobra.Command{
	Use:   "block",
	Short: "Manage site blocking",
}

var blockToggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Turn blocking on or off",
	Args:  cobra.NoArgs,
	RunE:  runBlockToggle,
}

var blockListCmd = &cobra.Command{
	Use:   "list",
	Short: "List blocked sites",
	Args:  cobra.NoArgs,
	RunE:  runBlockList,
}

var blockAddCmd = &cobra.Command{
	Use:   "add [site]",
	Short: "Block a site",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlockAdd,
}

var blockRemoveCmd = &cobra.Command{
	Use:   "remove [site]",
	Short: "Stop blocking a site",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlockRemove,
}

var blockAllowCmd = &cobra.Command{
	Use:   "allow [hostname]",
	Short: "Temporarily allow a blocked site",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlockAllow,
}

var blockCheckCmd = &cobra.Command{
	Use:   "check [url]",
	Short: "Check whether a URL is blocked",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlockCheck,
}

func init() {
	blockCmd.AddCommand(blockToggleCmd)
	blockCmd.AddCommand(blockListCmd)
	blockCmd.AddCommand(blockAddCmd)
	blockCmd.AddCommand(blockRemoveCmd)
	blockCmd.AddCommand(blockAllowCmd)
	blockCmd.AddCommand(blockCheckCmd)

	blockAllowCmd.Flags().Duration("for", 5*time.Minute, "How long to allow the site")
}

func runBlockToggle(cmd *cobra.Command, args []string) error {
	var result struct {
		Enabled bool `json:"enabled"`
	}
	if err := call(cmd, bus.Message{Action: bus.ActionToggleBlocking}, &result); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Blocking %s\n", onOff(result.Enabled))
	return nil
}

func runBlockList(cmd *cobra.Command, args []string) error {
	var status background.Status
	if err := call(cmd, bus.Message{Action: bus.ActionGetStatus}, &status); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(status.Blocking.BlockedSites) == 0 {
		fmt.Fprintln(out, "No blocked sites.")
		return nil
	}
	fmt.Fprintf(out, "Blocked sites (%d, blocking %s):\n", len(status.Blocking.BlockedSites), onOff(status.Blocking.Enabled))
	for _, site := range status.Blocking.BlockedSites {
		fmt.Fprintf(out, "  %s\n", site)
	}
	return nil
}

func runBlockAdd(cmd *cobra.Command, args []string) error {
	if err := call(cmd, bus.Message{Action: bus.ActionAddBlockedSite, Site: args[0]}, nil); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Blocked %s\n", args[0])
	return nil
}

func runBlockRemove(cmd *cobra.Command, args []string) error {
	if err := call(cmd, bus.Message{Action: bus.ActionRemoveBlockedSite, Site: args[0]}, nil); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Unblocked %s\n", args[0])
	return nil
}

func runBlockAllow(cmd *cobra.Command, args []string) error {
	d, _ := cmd.Flags().GetDuration("for")
	if d <= 0 {
		return fmt.Errorf("--for must be positive")
	}

	var result background.UnblockResult
	msg := bus.Message{
		Action:   bus.ActionTemporaryUnblock,
		URL:      args[0],
		Duration: float64(d.Milliseconds()),
	}
	if err := call(cmd, msg, &result); err != nil {
		return err
	}
	until := time.UnixMilli(result.ExpiresAt).Format("15:04:05")
	fmt.Fprintf(cmd.OutOrStdout(), "Allowed %s until %s\n", result.Hostname, until)
	return nil
}

func runBlockCheck(cmd *cobra.Command, args []string) error {
	var result background.CheckResult
	if err := call(cmd, bus.Message{Action: bus.ActionCheckURL, URL: args[0]}, &result); err != nil {
		return err
	}
	verdict := "allowed"
	if result.Blocked {
		verdict = "blocked"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is %s\n", args[0], verdict)
	return nil
}

