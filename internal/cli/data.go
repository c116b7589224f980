package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"focuser/internal/bus"
	"focuser/internal/models"
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Back up, restore or wipe all data",
}

var dataExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write a backup (stdout without a file)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDataExport,
}

var dataImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Restore a backup",
	Args:  cobra.ExactArgs(1),
	RunE:  runDataImport,
}

var dataResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all data and restore the defaults",
	Args:  cobra.NoArgs,
	RunE:  runDataReset,
}

func init() {
	dataCmd.AddCommand(dataExportCmd)
	dataCmd.AddCommand(dataImportCmd)
	dataCmd.AddCommand(dataResetCmd)

	dataResetCmd.Flags().Bool("yes", false, "Confirm the reset")
}

func runDataExport(cmd *cobra.Command, args []string) error {
	var backup json.RawMessage
	if err := call(cmd, bus.Message{Action: bus.ActionExportData}, &backup); err != nil {
		return err
	}
	data, err := json.MarshalIndent(backup, "", "  ")
	if err != nil {
		return err
	}
	return writeOutput(cmd, args, data)
}

func runDataImport(cmd *cobra.Command, args []string) error {
	data, err := readJSONFile(args[0])
	if err != nil {
		return err
	}

	var backup models.Backup
	if err := call(cmd, bus.Message{Action: bus.ActionImportData, Data: data}, &backup); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported backup from %s (%d tasks, %d blocked sites)\n",
		args[0], len(backup.Tasks), len(backup.BlockedSites))
	return nil
}

func runDataReset(cmd *cobra.Command, args []string) error {
	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		return fmt.Errorf("this deletes every task, setting and statistic; rerun with --yes")
	}
	if err := call(cmd, bus.Message{Action: bus.ActionResetAllData}, nil); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "All data reset")
	return nil
}
