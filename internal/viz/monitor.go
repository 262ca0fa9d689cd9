package viz

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
)

const (
	canvasWidth     = 40
	canvasHeight    = 16
	historyCapacity = 200
	refresh         = time.Second / 30
)

var (
	canvasStyle = lipgloss.NewStyle().Padding(1, 2)
	statsStyle  = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(lipgloss.Color("240")).Padding(1, 2).Width(52)
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	graphStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
)

type TickMsg time.Time

// DoneMsg reports that the run feeding the monitor has ended.
type DoneMsg struct{ Err error }

// Monitor is the live Bubble Tea view of a tracker.
type Monitor struct {
	name    string
	tracker *Tracker
	canvas  *Canvas
	view    View
	frame   Frame
	have    bool
	frozen  bool
	help    bool
	done    bool
	err     error
	normal  []float64
	last    uint64
}

func NewMonitor(name string, tracker *Tracker) Monitor {
	return Monitor{
		name:    name,
		tracker: tracker,
		canvas:  NewCanvas(canvasWidth, canvasHeight),
		view:    View{Scale: 36},
		normal:  make([]float64, 0, historyCapacity),
	}
}

func tick() tea.Cmd {
	return tea.Tick(refresh, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Monitor) Init() tea.Cmd { return tick() }

func (m Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case " ":
			m.frozen = !m.frozen
		case "v":
			m.view.Front = !m.view.Front
		case "?":
			m.help = !m.help
		}
	case DoneMsg:
		m.done, m.err = true, msg.Err
	case TickMsg:
		if !m.frozen {
			m.poll()
		}
		return m, tick()
	}
	return m, nil
}

func (m *Monitor) poll() {
	f, ok := m.tracker.Latest()
	if !ok || (m.have && f.Tick == m.last) {
		return
	}
	m.frame, m.have, m.last = f, true, f.Tick
	total := 0.0
	for _, z := range f.NormalZ {
		total += z
	}
	m.normal = append(m.normal, total)
	if len(m.normal) > historyCapacity {
		m.normal = m.normal[1:]
	}
}

func (m *Monitor) draw() {
	m.canvas.Clear()
	f := m.frame
	v := m.view
	v.Center.X, v.Center.Y = f.CoM.X, f.CoM.Y
	v.Center.Z = 0.4
	m.canvas.Ground(v)
	for _, s := range f.Segments {
		m.canvas.Segment(v, s.From, s.To)
	}
	for _, s := range f.Feet {
		m.canvas.Segment(v, s.From, s.To)
	}
	// plumb line from the CoM
	ground := f.CoM
	ground.Z = 0
	x, y0 := v.project(m.canvas, f.CoM)
	_, y1 := v.project(m.canvas, ground)
	for y := y0; y <= y1; y += 3 {
		m.canvas.Set(x, y)
	}
}

func (m Monitor) View() string {
	if !m.have {
		return headerStyle.Render(strings.ToUpper(m.name)) + "\nwaiting for the first tick...\n"
	}
	m.draw()
	f := m.frame

	var s strings.Builder
	s.WriteString(headerStyle.Render(strings.ToUpper(m.name)) + "\n")
	s.WriteString(m.status() + "\n\n")
	row := func(label, value string) {
		s.WriteString(labelStyle.Render(label) + valueStyle.Render(value) + "\n")
	}
	row("Tick", fmt.Sprintf("%d", f.Tick))
	row("Solve", f.Elapsed.Round(time.Microsecond).String())
	row("QP", fmt.Sprintf("%s, %d it", f.Status, f.Iterations))
	row("Overruns", fmt.Sprintf("%d", f.Overruns))
	row("Failures", fmt.Sprintf("%d", f.Failures))
	for i, name := range f.Contacts {
		row(name, fmt.Sprintf("%.1f N", f.NormalZ[i]))
	}

	if len(m.normal) > 1 {
		chart := asciigraph.Plot(m.normal, asciigraph.Height(4), asciigraph.Width(36), asciigraph.Caption("normal force [N]"))
		s.WriteString(graphStyle.Render(chart) + "\n")
	}

	s.WriteString("\nTORQUES\n")
	for i, name := range f.Joints {
		s.WriteString(fmt.Sprintf("%-14s %s %8.2f\n", truncate(name, 14), TorqueBar(f.Torques[i], f.Limits[i], 16), f.Torques[i]))
	}
	s.WriteString(helpStyle.Render("SP:Freeze V:View ?:Help Q:Quit"))

	main := lipgloss.JoinHorizontal(lipgloss.Top, canvasStyle.Render(m.canvas.String()), statsStyle.Render(s.String()))
	if m.help {
		return GlassPanel.Render(strings.Join([]string{
			"Space  freeze the display",
			"V      toggle front/side view",
			"?      toggle this help",
			"Q      quit",
		}, "\n")) + "\n" + main
	}
	return main
}

func (m Monitor) status() string {
	switch {
	case m.done && m.err != nil:
		return StatusFailed.Render("STOPPED: " + m.err.Error())
	case m.done:
		return StatusPaused.Render("FINISHED")
	case m.frozen:
		return StatusPaused.Render("FROZEN")
	case m.frame.Fallback:
		return StatusFailed.Render("FALLBACK")
	}
	return StatusRunning.Render("RUNNING")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
