package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"focuser/internal/background"
	"focuser/internal/bus"
	"focuser/internal/models"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Productivity statistics",
}

var statsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the counters",
	Args:  cobra.NoArgs,
	RunE:  runStatsShow,
}

var statsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Zero the counters",
	Args:  cobra.NoArgs,
	RunE:  runStatsReset,
}

var statsSetCmd = &cobra.Command{
	Use:   "set key=value...",
	Short: "Overwrite counters",
	Example: `  focuser stats set tasksCompleted=12
  focuser stats set sessionsCompleted=4 totalFocusTime=100`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStatsSet,
}

var statsHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent pomodoro sessions",
	Args:  cobra.NoArgs,
	RunE:  runStatsHistory,
}

func init() {
	statsCmd.AddCommand(statsShowCmd)
	statsCmd.AddCommand(statsResetCmd)
	statsCmd.AddCommand(statsSetCmd)
	statsCmd.AddCommand(statsHistoryCmd)

	statsHistoryCmd.Flags().Int("limit", 10, "Number of sessions to show")
}

func runStatsShow(cmd *cobra.Command, args []string) error {
	var stats models.Statistics
	if err := call(cmd, bus.Message{Action: bus.ActionGetStatistics}, &stats); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Sessions completed: %d\n", stats.SessionsCompleted)
	fmt.Fprintf(out, "Focus time:         %dh %02dm\n", stats.TotalFocusTime/60, stats.TotalFocusTime%60)
	fmt.Fprintf(out, "Sites blocked:      %d\n", stats.SitesBlocked)
	fmt.Fprintf(out, "Tasks completed:    %d\n", stats.TasksCompleted)
	return nil
}

func runStatsReset(cmd *cobra.Command, args []string) error {
	if err := call(cmd, bus.Message{Action: bus.ActionResetStatistics}, nil); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Statistics reset")
	return nil
}

func runStatsSet(cmd *cobra.Command, args []string) error {
	values, err := parseAssignments(args)
	if err != nil {
		return err
	}
	for key, v := range values {
		if _, ok := v.(int); !ok {
			return fmt.Errorf("%s: expected a whole number", key)
		}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}

	if err := call(cmd, bus.Message{Action: bus.ActionSetStatistics, Data: data}, nil); err != nil {
		return err
	}
	return runStatsShow(cmd, nil)
}

func runStatsHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	var history background.PomodoroHistory
	if err := call(cmd, bus.Message{Action: bus.ActionGetPomodoroHistory, Limit: limit}, &history); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if history.Week != nil {
		fmt.Fprintf(out, "Last 7 days: %d sessions, %d min (today %d, %d min)\n\n",
			history.Week.TotalSessions, history.Week.TotalDuration/60,
			history.Week.TodaySessions, history.Week.TodayDuration/60)
	}
	if len(history.Records) == 0 {
		fmt.Fprintln(out, "No sessions recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tTYPE\tMINUTES\tTASK")
	for _, r := range history.Records {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.StartTime.Local().Format("2006-01-02 15:04"), r.Type, r.Duration/60, r.TaskID)
	}
	return w.Flush()
}
