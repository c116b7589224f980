package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"focuser/internal/bus"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Read or change settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print all settings, or one key",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSettingsGet,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set key=value...",
	Short: "Change settings",
	Example: `  focuser settings set pomodoroWorkDuration=50
  focuser settings set autoStartBreaks=true defaultTaskCategory=work`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSettingsSet,
}

func init() {
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
}

func runSettingsGet(cmd *cobra.Command, args []string) error {
	var settings map[string]any
	if err := call(cmd, bus.Message{Action: bus.ActionGetSettings}, &settings); err != nil {
		return err
	}
	if len(args) == 0 {
		return printJSON(cmd.OutOrStdout(), settings)
	}
	value, ok := settings[args[0]]
	if !ok {
		return fmt.Errorf("unknown setting %q", args[0])
	}
	return printJSON(cmd.OutOrStdout(), value)
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	patch, err := parseAssignments(args)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	if err := call(cmd, bus.Message{Action: bus.ActionUpdateSettings, Settings: raw}, nil); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated %d setting(s)\n", len(patch))
	return nil
}

// parseAssignments turns key=value pairs into a settings patch. Values are
// read as YAML scalars so numbers and booleans keep their types.
func parseAssignments(args []string) (map[string]any, error) {
	patch := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		if value == nil && strings.TrimSpace(raw) == "" {
			value = ""
		}
		patch[key] = value
	}
	return patch, nil
}
