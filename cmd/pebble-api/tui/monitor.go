package tui

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/marshallshelly/pebble-api/pkg/server"
)

// Mode represents the current mode of the monitor
type Mode int

const (
	ModeStopped Mode = iota
	ModeStarting
	ModeRunning
	ModeStopping
	ModeConfirmStop
)

const refreshInterval = time.Second

// MonitorModel is the Bubbletea model for starting, stopping and watching a server
type MonitorModel struct {
	mgr      *server.Manager
	mode     Mode
	spinner  spinner.Model
	routes   table.Model
	logs     LogView
	confirm  ConfirmationDialog
	snapshot server.Snapshot
	err      error
	quitting bool
	width    int
	height   int
}

// NewMonitorModel creates a monitor for the manager
func NewMonitorModel(mgr *server.Manager) MonitorModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = infoStyle

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Entity", Width: 24},
			{Title: "Endpoints", Width: 10},
		}),
		table.WithHeight(6),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Foreground(colorPrimary).Bold(true)
	styles.Selected = styles.Selected.Foreground(colorText).Background(colorPrimary)
	t.SetStyles(styles)

	return MonitorModel{
		mgr:     mgr,
		mode:    ModeStarting,
		spinner: s,
		routes:  t,
		logs:    NewLogView(12),
	}
}

// Messages
type tickMsg time.Time

type startedMsg struct{ err error }

type stoppedMsg struct{ err error }

// Commands
func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func startCmd(mgr *server.Manager) tea.Cmd {
	return func() tea.Msg {
		return startedMsg{err: mgr.Start(context.Background())}
	}
}

func stopCmd(mgr *server.Manager) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return stoppedMsg{err: mgr.Stop(ctx)}
	}
}

// Init starts the server and the refresh loop
func (m MonitorModel) Init() tea.Cmd {
	return tea.Batch(
		startCmd(m.mgr),
		m.spinner.Tick,
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func (m *MonitorModel) refresh() {
	m.snapshot = m.mgr.State().Snapshot()
	m.logs.SetEntries(m.mgr.State().Logs().Entries())

	rt := m.mgr.Router()
	if rt == nil {
		m.routes.SetRows(nil)
		return
	}
	var rows []table.Row
	for _, e := range rt.Entities() {
		rows = append(rows, table.Row{e, strconv.Itoa(len(rt.Endpoints(e)))})
	}
	m.routes.SetRows(rows)
}

// Update handles messages
func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case startedMsg:
		m.err = msg.err
		if msg.err != nil {
			m.mode = ModeStopped
		} else {
			m.mode = ModeRunning
		}
		m.refresh()
		return m, nil

	case stoppedMsg:
		m.err = msg.err
		m.mode = ModeStopped
		m.refresh()
		if m.quitting {
			return m, tea.Quit
		}
		return m, nil

	case tea.KeyMsg:
		if m.mode == ModeConfirmStop {
			if msg.String() == "esc" {
				m.mode = ModeRunning
				return m, nil
			}
			return m, m.confirm.Update(msg)
		}

		switch msg.String() {
		case "ctrl+c", "q":
			if m.mode == ModeRunning {
				m.quitting = true
				m.mode = ModeStopping
				return m, stopCmd(m.mgr)
			}
			if m.mode == ModeStopped {
				return m, tea.Quit
			}
			return m, nil

		case "s":
			switch m.mode {
			case ModeStopped:
				m.mode = ModeStarting
				m.err = nil
				return m, startCmd(m.mgr)
			case ModeRunning:
				m.confirm = NewConfirmationDialog("Stop Server",
					fmt.Sprintf("Stop serving on %s?", m.mgr.Addr()))
				m.confirm.OnConfirm = func() tea.Cmd {
					return func() tea.Msg { return confirmedStopMsg{} }
				}
				m.confirm.OnCancel = func() tea.Cmd {
					return func() tea.Msg { return cancelledStopMsg{} }
				}
				m.mode = ModeConfirmStop
				return m, nil
			}
			return m, nil
		}

		var cmd tea.Cmd
		m.routes, cmd = m.routes.Update(msg)
		return m, cmd

	case confirmedStopMsg:
		m.mode = ModeStopping
		return m, stopCmd(m.mgr)

	case cancelledStopMsg:
		m.mode = ModeRunning
		return m, nil
	}

	return m, nil
}

type confirmedStopMsg struct{}

type cancelledStopMsg struct{}

// View renders the UI
func (m MonitorModel) View() string {
	if m.mode == ModeConfirmStop {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.confirm.View())
	}

	header := titleStyle.Render("Pebble API Monitor") + "  " + FormatServerStatus(m.mode)
	if m.mode == ModeStarting || m.mode == ModeStopping {
		header += " " + m.spinner.View()
	}

	var info strings.Builder
	addr := m.mgr.Addr()
	if addr == "" {
		addr = "-"
	}
	fmt.Fprintf(&info, "%s %s\n", mutedStyle.Render("Address: "), addr)
	fmt.Fprintf(&info, "%s %s\n", mutedStyle.Render("Run ID:  "), m.snapshot.RunID)
	uptime := m.snapshot.Uptime
	if uptime == "" {
		uptime = "-"
	}
	fmt.Fprintf(&info, "%s %s\n", mutedStyle.Render("Uptime:  "), uptime)
	fmt.Fprintf(&info, "%s %d (%s)", mutedStyle.Render("Requests:"), m.snapshot.Requests,
		dangerStyle.Render(fmt.Sprintf("%d errors", m.snapshot.Errors)))
	if codes := formatStatuses(m.snapshot.Statuses); codes != "" {
		info.WriteString("\n" + mutedStyle.Render(codes))
	}

	var health strings.Builder
	health.WriteString(subtitleStyle.Render("Datasources"))
	if len(m.snapshot.Health) == 0 {
		health.WriteString("\n" + mutedStyle.Render("not checked yet"))
	}
	names := make([]string, 0, len(m.snapshot.Health))
	for name := range m.snapshot.Health {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&health, "\n%-12s %s", name, FormatHealth(m.snapshot.Health[name]))
	}

	top := lipgloss.JoinHorizontal(lipgloss.Top,
		boxStyle.Render(info.String()),
		" ",
		boxStyle.Render(health.String()),
		" ",
		boxStyle.Render(m.routes.View()),
	)

	parts := []string{header, top}
	if m.err != nil {
		parts = append(parts, errorStyle.Render(m.err.Error()))
	}

	width := m.width - 2
	if width < 40 {
		width = 80
	}
	parts = append(parts,
		m.logs.View(width),
		helpStyle.Render(
			FormatKey("s", "start/stop")+" • "+
				FormatKey("↑/↓", "entities")+" • "+
				FormatKey("q", "quit"),
		),
	)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func formatStatuses(statuses map[int]int64) string {
	codes := make([]int, 0, len(statuses))
	for c := range statuses {
		codes = append(codes, c)
	}
	sort.Ints(codes)

	parts := make([]string, 0, len(codes))
	for _, c := range codes {
		parts = append(parts, fmt.Sprintf("%d×%d", c, statuses[c]))
	}
	return strings.Join(parts, "  ")
}

// RunMonitor starts the server and the interactive monitor. The server is
// stopped when the monitor exits.
func RunMonitor(mgr *server.Manager) error {
	p := tea.NewProgram(NewMonitorModel(mgr))
	_, err := p.Run()
	if mgr.Running() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if stopErr := mgr.Stop(ctx); stopErr != nil && err == nil {
			err = stopErr
		}
	}
	return err
}
