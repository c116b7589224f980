package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"focuser/internal/background"
	"focuser/internal/bus"
	"focuser/internal/models"
	"focuser/internal/pomodoro"
)

var timerCmd = &cobra.Command{
	Use:   "timer",
	Short: "Control the pomodoro timer",
}

var timerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the next session, or resume a paused one",
	Args:  cobra.NoArgs,
	RunE:  runTimerStart,
}

var timerPauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the running session",
	Args:  cobra.NoArgs,
	RunE:  timerAction(bus.ActionPausePomodoro, "Paused"),
}

var timerResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume the paused session",
	Args:  cobra.NoArgs,
	RunE:  timerAction(bus.ActionResumePomodoro, "Resumed"),
}

var timerStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Cancel the current session without credit",
	Args:  cobra.NoArgs,
	RunE:  runTimerStop,
}

var timerSkipCmd = &cobra.Command{
	Use:   "skip",
	Short: "Skip to the other session type",
	Args:  cobra.NoArgs,
	RunE:  timerAction(bus.ActionSkipSession, "Up next"),
}

var timerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the timer",
	Args:  cobra.NoArgs,
	RunE:  runTimerStatus,
}

func init() {
	timerCmd.AddCommand(timerStartCmd)
	timerCmd.AddCommand(timerPauseCmd)
	timerCmd.AddCommand(timerResumeCmd)
	timerCmd.AddCommand(timerStopCmd)
	timerCmd.AddCommand(timerSkipCmd)
	timerCmd.AddCommand(timerStatusCmd)

	timerStartCmd.Flags().Int("minutes", 0, "Session length (default from settings)")
	timerStartCmd.Flags().String("task", "", "Task to credit when the work session completes")
}

func runTimerStart(cmd *cobra.Command, args []string) error {
	minutes, _ := cmd.Flags().GetInt("minutes")
	taskID, _ := cmd.Flags().GetString("task")
	if minutes < 0 {
		return fmt.Errorf("--minutes must not be negative")
	}

	var session *models.Session
	msg := bus.Message{Action: bus.ActionStartPomodoro, Duration: float64(minutes), TaskID: taskID}
	if err := call(cmd, msg, &session); err != nil {
		return err
	}
	printSession(cmd, "Started", session)
	return nil
}

func timerAction(action, verb string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		var session *models.Session
		if err := call(cmd, bus.Message{Action: action}, &session); err != nil {
			return err
		}
		printSession(cmd, verb, session)
		return nil
	}
}

func runTimerStop(cmd *cobra.Command, args []string) error {
	if err := call(cmd, bus.Message{Action: bus.ActionStopPomodoro}, nil); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Timer stopped")
	return nil
}

func runTimerStatus(cmd *cobra.Command, args []string) error {
	var report background.TimerReport
	if err := call(cmd, bus.Message{Action: bus.ActionGetTimerStatus}, &report); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", describeTimer(report.TimerStatus))
	if report.IsRunning || report.IsPaused {
		fmt.Fprintf(out, "Progress: %.0f%%\n", report.Progress)
	}
	fmt.Fprintf(out, "Completed work sessions: %d\n", report.SessionCount)
	return nil
}

func printSession(cmd *cobra.Command, verb string, s *models.Session) {
	out := cmd.OutOrStdout()
	if s == nil {
		fmt.Fprintln(out, "No session")
		return
	}
	line := fmt.Sprintf("%s: %s (%d min)", verb, s.Type.Label(), s.Duration)
	if s.RemainingTime != nil {
		line += ", " + pomodoro.FormatTime(*s.RemainingTime) + " left"
	}
	fmt.Fprintln(out, line)
}
