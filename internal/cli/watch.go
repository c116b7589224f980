package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"focuser/internal/background"
	"focuser/internal/bus"
	"focuser/internal/pomodoro"
)

const watchInterval = time.Second

var (
	workColor  = lipgloss.Color("#e57373")
	breakColor = lipgloss.Color("#8BC34A")

	titleStyle = lipgloss.NewStyle().Bold(true)
	clockStyle = lipgloss.NewStyle().Bold(true).Padding(1, 0)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9e9e9e"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935"))
)

var timerWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show a live countdown",
	Args:  cobra.NoArgs,
	RunE:  runTimerWatch,
}

func init() {
	timerCmd.AddCommand(timerWatchCmd)
}

func runTimerWatch(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	send := func(ctx context.Context, action string) (background.TimerReport, error) {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		if action != bus.ActionGetTimerStatus {
			if err := c.Call(ctx, bus.Message{Action: action}, nil); err != nil {
				return background.TimerReport{}, err
			}
		}
		var report background.TimerReport
		err := c.Call(ctx, bus.Message{Action: bus.ActionGetTimerStatus}, &report)
		return report, err
	}

	p := tea.NewProgram(newWatchModel(cmd.Context(), send),
		tea.WithContext(cmd.Context()),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	_, err = p.Run()
	return err
}

type reportMsg struct {
	report background.TimerReport
	err    error
}

type tickMsg time.Time

// watchModel polls the timer and maps keys to timer actions.
type watchModel struct {
	ctx      context.Context
	send     func(ctx context.Context, action string) (background.TimerReport, error)
	report   background.TimerReport
	loaded   bool
	err      error
	progress progress.Model
}

func newWatchModel(ctx context.Context, send func(context.Context, string) (background.TimerReport, error)) watchModel {
	p := progress.New(progress.WithDefaultGradient())
	p.Width = 40
	return watchModel{ctx: ctx, send: send, progress: p}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.do(bus.ActionGetTimerStatus), tick())
}

func tick() tea.Cmd {
	return tea.Tick(watchInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m watchModel) do(action string) tea.Cmd {
	return func() tea.Msg {
		report, err := m.send(m.ctx, action)
		return reportMsg{report: report, err: err}
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case " ", "p":
			switch {
			case m.report.IsRunning:
				return m, m.do(bus.ActionPausePomodoro)
			case m.report.IsPaused:
				return m, m.do(bus.ActionResumePomodoro)
			default:
				return m, m.do(bus.ActionStartPomodoro)
			}
		case "s":
			return m, m.do(bus.ActionStopPomodoro)
		case "n":
			return m, m.do(bus.ActionSkipSession)
		}

	case tea.WindowSizeMsg:
		m.progress.Width = min(msg.Width-4, 60)

	case tickMsg:
		return m, tea.Batch(m.do(bus.ActionGetTimerStatus), tick())

	case reportMsg:
		m.err = msg.err
		if msg.err == nil {
			m.report = msg.report
			m.loaded = true
		}
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder

	if !m.loaded {
		if m.err != nil {
			b.WriteString(errorStyle.Render(m.err.Error()) + "\n")
		} else {
			b.WriteString("Connecting...\n")
		}
		b.WriteString(mutedStyle.Render("q quit") + "\n")
		return b.String()
	}

	r := m.report
	color := workColor
	if r.CurrentSession != nil && r.CurrentSession.Type.IsBreak() {
		color = breakColor
	}

	state := "idle"
	switch {
	case r.IsRunning:
		state = "running"
	case r.IsPaused:
		state = "paused"
	}
	b.WriteString(titleStyle.Foreground(color).Render(r.SessionType) + "  " + mutedStyle.Render(state) + "\n")

	remaining := r.TimeRemaining
	if !r.IsRunning && !r.IsPaused && r.CurrentSession != nil {
		remaining = int64(r.CurrentSession.Duration) * int64(time.Minute/time.Millisecond)
	}
	b.WriteString(clockStyle.Render(pomodoro.FormatTime(remaining)) + "\n")
	b.WriteString(m.progress.ViewAs(r.Progress/100) + "\n\n")
	b.WriteString(fmt.Sprintf("Completed work sessions: %d\n", r.SessionCount))

	if m.err != nil {
		b.WriteString(errorStyle.Render(m.err.Error()) + "\n")
	}
	b.WriteString(mutedStyle.Render("space start/pause  s stop  n skip  q quit") + "\n")
	return b.String()
}
