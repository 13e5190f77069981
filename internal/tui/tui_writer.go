// Package tui renders sweep progress with bubbletea.
package tui

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"dutbench/internal/bench"
	"dutbench/internal/traffic"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// stateMsg carries a run state transition.
type stateMsg struct{ bench.StateEvent }

// rowMsg carries a finished row.
type rowMsg struct{ bench.RowRecord }

// logMsg carries a line for the log viewport.
type logMsg struct{ line string }

var (
	styleHeader   = lipgloss.NewStyle().Bold(true)
	styleComplete = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	styleFailed   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	styleActive   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	styleDim      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// TUIWriter forwards bench events to a bubbletea program.
type TUIWriter struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts a bubbletea program. Quitting the UI interrupts this
// process so the sweep is cancelled and torn down.
func NewTUIWriter(targetID int, sizes []traffic.PacketSize) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(targetID, sizes), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// ObserveState implements bench.StateObserver.
func (w *TUIWriter) ObserveState(ev bench.StateEvent) {
	w.program.Send(stateMsg{ev})
}

// WriteRow implements bench.RowWriter.
func (w *TUIWriter) WriteRow(rec bench.RowRecord) error {
	w.program.Send(rowMsg{rec})
	return nil
}

// WriteRun implements bench.RunWriter.
func (w *TUIWriter) WriteRun(rec bench.RunRecord) error {
	line := fmt.Sprintf("%s size=%s %s: rx=%.1f/%.2f kpps cpu=%.1f rtt=%.1f/%.1f",
		rec.Finished.Format(time.TimeOnly), rec.Size, rec.Condition,
		rec.DUT.RxMeanKpps, rec.DUT.RxStdevKpps, rec.DUT.CPUUsagePercent,
		rec.Latency.RTTMean, rec.Latency.RTTStdev)
	if rec.Failure != bench.FailureNone {
		line = fmt.Sprintf("%s size=%s %s: FAILED (%s) %s",
			rec.Finished.Format(time.TimeOnly), rec.Size, rec.Condition, rec.Failure, rec.Error)
	}
	w.program.Send(logMsg{line: line})
	return nil
}

// Close stops the program without interrupting the process.
func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

type tuiModel struct {
	targetID   int
	sizes      []traffic.PacketSize
	table      table.Model
	spin       spinner.Model
	vp         viewport.Model
	logs       []string
	rows       []bench.RowRecord
	states     map[traffic.Kind]bench.StateEvent
	current    *bench.StateEvent
	failures   int
	wrap       bool
	autoscroll bool
	width      int
	height     int
}

func newTUIModel(targetID int, sizes []traffic.PacketSize) tuiModel {
	cols := []table.Column{
		{Title: "Condition", Width: 28},
		{Title: "Rate", Width: 7},
		{Title: "State", Width: 18},
		{Title: "Failure", Width: 16},
	}
	t := table.New(table.WithColumns(cols), table.WithHeight(len(traffic.Kinds)+1))
	m := tuiModel{
		targetID:   targetID,
		sizes:      sizes,
		table:      t,
		spin:       spinner.New(spinner.WithSpinner(spinner.Dot)),
		vp:         viewport.New(0, 0),
		states:     map[traffic.Kind]bench.StateEvent{},
		autoscroll: true,
	}
	m.refreshTable()
	return m
}

func (m tuiModel) Init() tea.Cmd { return m.spin.Tick }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.vp.Width = msg.Width
		m.updateViewportHeight()
		m.refreshViewport()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
		default:
			var cmd tea.Cmd
			m.vp, cmd = m.vp.Update(msg)
			return m, cmd
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case stateMsg:
		ev := msg.StateEvent
		if m.current != nil && m.current.Condition.Size != ev.Condition.Size {
			// A new packet size starts with a clean condition table.
			m.states = map[traffic.Kind]bench.StateEvent{}
		}
		m.states[ev.Condition.Kind] = ev
		if ev.State == bench.Failed {
			m.failures++
		}
		m.current = &ev
		m.refreshTable()
	case rowMsg:
		m.rows = append(m.rows, msg.RowRecord)
		m.updateViewportHeight()
	case logMsg:
		m.logs = append(m.logs, msg.line)
		m.refreshViewport()
	}
	return m, nil
}

func (m *tuiModel) refreshTable() {
	rows := make([]table.Row, 0, len(traffic.Kinds))
	for _, k := range traffic.Kinds {
		state, failure, rate := "pending", "", ""
		if ev, ok := m.states[k]; ok {
			state = ev.State.String()
			failure = string(ev.Failure)
			rate = fmt.Sprintf("%d", ev.Condition.Rate)
		}
		rows = append(rows, table.Row{k.String(), rate, state, failure})
	}
	m.table.SetRows(rows)
}

func (m *tuiModel) updateViewportHeight() {
	used := lipgloss.Height(m.renderHeader()) + lipgloss.Height(m.table.View()) +
		lipgloss.Height(m.renderRows()) + lipgloss.Height(m.renderHelp()) + 4
	h := m.height - used
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshViewport() {
	var lines []string
	for _, l := range m.logs {
		if m.wrap && m.vp.Width > 0 {
			lines = append(lines, wordwrap.String(l, m.vp.Width))
		} else {
			lines = append(lines, l)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m tuiModel) renderHeader() string {
	size := "-"
	status := styleDim.Render("waiting")
	if m.current != nil {
		size = string(m.current.Condition.Size)
		switch m.current.State {
		case bench.Complete:
			status = styleComplete.Render(m.current.State.String())
		case bench.Failed:
			status = styleFailed.Render(m.current.State.String())
		default:
			status = m.spin.View() + " " + styleActive.Render(m.current.State.String())
		}
	}
	return styleHeader.Render(fmt.Sprintf("dutbench VM %d", m.targetID)) +
		fmt.Sprintf("  size %s (%d/%d done)  failed runs %d  ", size, len(m.rows), len(m.sizes), m.failures) +
		status
}

func (m tuiModel) renderRows() string {
	if len(m.rows) == 0 {
		return styleDim.Render("no rows yet")
	}
	var b strings.Builder
	for i, r := range m.rows {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%-6s %s", r.Size, r.Values.Format())
	}
	return b.String()
}

func (m tuiModel) renderHelp() string {
	return styleDim.Render("q quit  w wrap  s autoscroll  ↑/↓ scroll")
}

func (m tuiModel) View() string {
	divider := strings.Repeat("─", m.vp.Width)
	return strings.Join([]string{
		m.renderHeader(),
		divider,
		m.table.View(),
		divider,
		m.renderRows(),
		divider,
		m.vp.View(),
		m.renderHelp(),
	}, "\n")
}
