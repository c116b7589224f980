package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"focuser/internal/background"
	"focuser/internal/bus"
	"focuser/internal/models"
	"focuser/internal/pomodoro"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show blocking, timer and task status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	var status background.Status
	if err := call(cmd, bus.Message{Action: bus.ActionGetStatus}, &status); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Blocking:  %s (%d sites)\n", onOff(status.Blocking.Enabled), len(status.Blocking.BlockedSites))
	fmt.Fprintf(out, "Timer:     %s\n", describeTimer(status.Pomodoro))
	fmt.Fprintf(out, "Sessions:  %d completed\n", status.Pomodoro.SessionCount)

	open := 0
	for _, t := range status.Tasks {
		if t.Status != models.StatusCompleted {
			open++
		}
	}
	fmt.Fprintf(out, "Tasks:     %d open, %d total\n", open, len(status.Tasks))
	return nil
}

func describeTimer(s models.TimerStatus) string {
	state := "idle"
	switch {
	case s.IsRunning:
		state = "running"
	case s.IsPaused:
		state = "paused"
	}
	if s.CurrentSession == nil {
		return state
	}
	desc := fmt.Sprintf("%s, %s (%d min)", state, s.CurrentSession.Type.Label(), s.CurrentSession.Duration)
	if s.IsRunning || s.IsPaused {
		desc += ", " + pomodoro.FormatTime(s.TimeRemaining) + " left"
	} else if s.CurrentSession.SuggestedNext {
		desc += " up next"
	}
	return desc
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
