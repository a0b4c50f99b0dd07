// Package tui is the live terminal view of a running mission. It is also the
// input task: keys move the controller's target depth while the mission runs.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/buoysim/internal/actuator"
	"github.com/san-kum/buoysim/internal/sim"
)

const (
	refresh         = 200 * time.Millisecond
	historyCapacity = 600
	targetStep      = 5.0
	barWidth        = 30
)

// Target is the part of the controller the view reads and steers.
type Target interface {
	TargetDepth() float64
	SetTargetDepth(d float64) error
	DepthReached() bool
}

type tickMsg time.Time

// DoneMsg reports that the mission behind the view has ended.
type DoneMsg struct{ Err error }

type Model struct {
	vehicle sim.Vehicle
	target  Target
	engines actuator.Bank

	state   sim.State
	ext     []float64
	history []float64
	notice  string
	err     error
	done    bool

	width  int
	height int
}

func New(v sim.Vehicle, target Target, engines actuator.Bank) Model {
	return Model{
		vehicle: v,
		target:  target,
		engines: engines,
		history: make([]float64, 0, historyCapacity),
		width:   80,
		height:  24,
	}
}

func (m Model) Init() tea.Cmd { return tick() }

func tick() tea.Cmd {
	return tea.Tick(refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Err is the error the mission ended with, if any.
func (m Model) Err() error { return m.err }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case DoneMsg:
		m.done = true
		m.err = msg.Err
		m.sample()
		return m, tea.Quit
	case tickMsg:
		if m.done {
			return m, nil
		}
		m.sample()
		return m, tick()
	}
	return m, nil
}

func (m *Model) sample() {
	m.state = m.vehicle.Snapshot()
	m.ext = m.engines.Extensions(m.ext)
	if len(m.history) == historyCapacity {
		copy(m.history, m.history[1:])
		m.history = m.history[:historyCapacity-1]
	}
	// plotted negated so the trace goes down as the vehicle dives
	m.history = append(m.history, -m.state.Depth)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "up", "k":
		m.moveTarget(-targetStep)
	case "down", "j":
		m.moveTarget(targetStep)
	}
	return m, nil
}

func (m *Model) moveTarget(delta float64) {
	next := m.target.TargetDepth() + delta
	if next < 0 {
		next = 0
	}
	if err := m.target.SetTargetDepth(next); err != nil {
		m.notice = err.Error()
		return
	}
	m.notice = fmt.Sprintf("target set to %.0f m", next)
}

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(Title.Render("buoysim") + "  " + m.status() + "\n\n")

	row := func(label, value string) {
		s.WriteString(MetricLabel.Render(label) + MetricValue.Render(value) + "\n")
	}
	row("time", fmt.Sprintf("%.1f s", m.state.Elapsed))
	row("depth", fmt.Sprintf("%.2f m", m.state.Depth))
	row("target", fmt.Sprintf("%.1f m", m.target.TargetDepth()))
	row("velocity", fmt.Sprintf("%+.3f m/s", m.state.Velocity))
	row("acceleration", fmt.Sprintf("%+.4f m/s²", m.state.Acceleration))
	row("density", fmt.Sprintf("%.2f kg/m³", m.state.Density))
	s.WriteString("\n")

	for i, e := range m.ext {
		s.WriteString(MetricLabel.Render(fmt.Sprintf("engine %d", i)) + ExtensionBar(e, barWidth) +
			fmt.Sprintf(" %.2f", e) + "\n")
	}

	if len(m.history) > 1 {
		w := m.width - 12
		if w > historyCapacity {
			w = historyCapacity
		}
		if w < 10 {
			w = 10
		}
		chart := asciigraph.Plot(m.history,
			asciigraph.Height(8),
			asciigraph.Width(w),
			asciigraph.Caption("depth (m)"))
		s.WriteString("\n" + chart + "\n")
	}

	s.WriteString("\n" + Separator(50) + "\n")
	if m.notice != "" {
		s.WriteString(Subtle.Render(m.notice) + "\n")
	}
	s.WriteString(KeyHint.Render("↑/k shallower  ↓/j deeper  q quit"))

	return Panel.Render(s.String())
}

func (m Model) status() string {
	switch {
	case m.err != nil:
		return StatusError.Render("FAILED: " + m.err.Error())
	case m.done:
		return Subtle.Render("FINISHED")
	case m.target.DepthReached():
		return StatusAscending.Render("ASCENDING")
	default:
		return StatusDescending.Render("DESCENDING")
	}
}
