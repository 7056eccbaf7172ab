package cmd

import (
	"fmt"
	"net/http"
	"strings"
	"streamjobs/internal/model"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var watchInterval time.Duration

var (
	watchTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	watchMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	watchErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	watchOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	watchPanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

var watchCmd = &cobra.Command{
	Use:   "watch [kind]",
	Short: "Follow a job until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := model.ParseKind(args[0])
		if err != nil {
			return err
		}

		m := newWatchModel(kind, watchInterval, fetchStatus)
		final, err := tea.NewProgram(m).Run()
		if err != nil {
			return err
		}

		if wm, ok := final.(watchModel); ok && wm.err != nil {
			return wm.err
		}
		return nil
	},
}

func fetchStatus(kind model.Kind) (model.StatusResponse, error) {
	var s model.StatusResponse
	_, err := call(http.MethodGet, "/jobs/"+string(kind)+"/status", nil, &s)
	return s, err
}

type statusMsg struct {
	status model.StatusResponse
	err    error
}

type tickMsg struct{}

type watchModel struct {
	kind     model.Kind
	interval time.Duration
	fetch    func(model.Kind) (model.StatusResponse, error)
	bar      progress.Model

	status *model.StatusResponse
	err    error
	done   bool
}

func newWatchModel(kind model.Kind, interval time.Duration, fetch func(model.Kind) (model.StatusResponse, error)) watchModel {
	return watchModel{
		kind:     kind,
		interval: interval,
		fetch:    fetch,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

func (m watchModel) poll() tea.Cmd {
	return func() tea.Msg {
		s, err := m.fetch(m.kind)
		return statusMsg{status: s, err: err}
	}
}

func (m watchModel) Init() tea.Cmd {
	return m.poll()
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		return m, m.poll()
	case statusMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.status = &msg.status
		if msg.status.State == model.JobStateIdle || msg.status.State.Terminal() {
			m.done = true
			return m, tea.Quit
		}
		return m, tea.Tick(m.interval, func(time.Time) tea.Msg { return tickMsg{} })
	}
	return m, nil
}

func (m watchModel) View() string {
	if m.err != nil {
		return watchErrorStyle.Render(m.err.Error()) + "\n"
	}
	if m.status == nil {
		return watchMutedStyle.Render("waiting for daemon...") + "\n"
	}

	s := m.status
	var b strings.Builder

	title := fmt.Sprintf("%s  %s", s.Kind, s.Status)
	switch s.State {
	case model.JobStateCompleted:
		title = watchOKStyle.Render(title)
	case model.JobStateError, model.JobStateCancelled:
		title = watchErrorStyle.Render(title)
	default:
		title = watchTitleStyle.Render(title)
	}
	b.WriteString(title + "\n\n")

	if s.Progress != nil {
		b.WriteString(m.bar.ViewAs(float64(*s.Progress) / 100))
	} else {
		b.WriteString(watchMutedStyle.Render("discovering items..."))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "%d/%d items  %d errors\n", s.Completed, s.Total, len(s.Errors))

	if s.CurrentItem != "" {
		line := "current: " + s.CurrentItem
		if s.ItemProgress != nil {
			line += fmt.Sprintf(" %d%%", *s.ItemProgress)
		}
		b.WriteString(watchMutedStyle.Render(line) + "\n")
	}
	if s.EstimatedRemaining != nil {
		b.WriteString(watchMutedStyle.Render(fmt.Sprintf("eta: %.1f min", *s.EstimatedRemaining)) + "\n")
	}
	if s.Error != "" {
		b.WriteString(watchErrorStyle.Render(s.Error) + "\n")
	}

	out := watchPanelStyle.Render(strings.TrimRight(b.String(), "\n")) + "\n"
	if !m.done {
		out += watchMutedStyle.Render("q to stop watching (the job keeps running)") + "\n"
	}
	return out
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 2*time.Second, "poll interval")
	rootCmd.AddCommand(watchCmd)
}
