package viz

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/golang/geo/r3"
	. "github.com/onsi/gomega"

	"github.com/san-kum/wholebody/internal/control"
	"github.com/san-kum/wholebody/internal/robots"
	"github.com/san-kum/wholebody/internal/spatial"
)

func TestCanvasDrawLine(t *testing.T) {
	g := NewWithT(t)
	c := NewCanvas(2, 1)
	c.DrawLine(0, 0, 3, 0)
	g.Expect(c.String()).To(Equal("⠉⠉\n"))

	c.Clear()
	c.Set(-1, 0)
	c.Set(100, 100)
	g.Expect(c.String()).To(Equal("⠀⠀\n"))
}

func TestViewProject(t *testing.T) {
	g := NewWithT(t)
	c := NewCanvas(10, 5)
	v := View{Scale: 10, Center: r3.Vector{X: 1, Y: 2, Z: 3}}

	x, y := v.project(c, v.Center)
	g.Expect(x).To(Equal(10))
	g.Expect(y).To(Equal(10))

	x, y = v.project(c, r3.Vector{X: 1.5, Y: 2, Z: 3.5})
	g.Expect(x).To(Equal(15))
	g.Expect(y).To(Equal(5))

	v.Front = true
	x, _ = v.project(c, r3.Vector{X: 9, Y: 2.5, Z: 3})
	g.Expect(x).To(Equal(15))
}

func legTelemetry(tick uint64) control.Telemetry {
	return control.Telemetry{
		Tick:            tick,
		Time:            time.Unix(0, 0),
		JointNames:      []string{"hip", "knee"},
		Torques:         []float64{10, -20},
		ContactWrenches: map[string]spatial.Vector{"shank": {Linear: r3.Vector{Z: 100}}},
	}
}

func TestTracker(t *testing.T) {
	g := NewWithT(t)
	robot, err := robots.TwoLinkLeg()
	g.Expect(err).NotTo(HaveOccurred())
	tr := NewTracker(robot)

	_, ok := tr.Latest()
	g.Expect(ok).To(BeFalse())

	tel := legTelemetry(1)
	tel.Overrun = true
	tr.OnTick(tel)
	tel = legTelemetry(2)
	tel.Fallback = true
	tr.OnTick(tel)

	f, ok := tr.Latest()
	g.Expect(ok).To(BeTrue())
	g.Expect(f.Tick).To(Equal(uint64(2)))
	// hip, knee and shank to sole
	g.Expect(f.Segments).To(HaveLen(3))
	g.Expect(f.Feet).To(HaveLen(3))
	for _, s := range f.Feet {
		g.Expect(s.From.Z).To(BeNumerically("~", 0, 1e-9))
		g.Expect(s.To.Z).To(BeNumerically("~", 0, 1e-9))
	}
	g.Expect(f.Limits).To(Equal([]float64{300, 300}))
	g.Expect(f.Contacts).To(Equal([]string{"shank"}))
	g.Expect(f.NormalZ).To(Equal([]float64{100}))
	g.Expect(f.CoM.Z).To(BeNumerically(">", 0))
	g.Expect(f.Overruns).To(Equal(uint64(1)))
	g.Expect(f.Failures).To(Equal(uint64(1)))
	g.Expect(f.Fallback).To(BeTrue())
}

func TestPlotSeries(t *testing.T) {
	g := NewWithT(t)
	g.Expect(PlotSeries(nil, "torque", 40, 5)).To(Equal("torque: no data"))

	out := PlotSeries([]float64{0, 1, 2, 3, 2, 1}, "torque", 40, 5)
	g.Expect(out).To(ContainSubstring("torque"))
	g.Expect(strings.Count(out, "\n")).To(BeNumerically(">=", 5))

	out = PlotMany([][]float64{{0, 1, 2}, {2, 1, 0}}, "contacts", 40, 4)
	g.Expect(out).To(ContainSubstring("contacts"))
}

func TestDownsample(t *testing.T) {
	g := NewWithT(t)
	g.Expect(downsample([]float64{1, 3, 5, 7}, 2)).To(Equal([]float64{2, 6}))
	g.Expect(downsample([]float64{1, 2, 3}, 3)).To(Equal([]float64{1, 2, 3}))
}

func TestTorqueBar(t *testing.T) {
	g := NewWithT(t)
	g.Expect(TorqueBar(150, 300, 10)).To(ContainSubstring(strings.Repeat("█", 5)))
	g.Expect(TorqueBar(-1000, 300, 10)).To(ContainSubstring(strings.Repeat("█", 10)))
	g.Expect(TorqueBar(0, 0, 4)).To(ContainSubstring(strings.Repeat("░", 4)))
}

func key(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestMonitor(t *testing.T) {
	g := NewWithT(t)
	robot, err := robots.TwoLinkLeg()
	g.Expect(err).NotTo(HaveOccurred())
	tr := NewTracker(robot)
	m := NewMonitor("leg", tr)
	g.Expect(m.Init()).NotTo(BeNil())
	g.Expect(m.View()).To(ContainSubstring("waiting"))

	tr.OnTick(legTelemetry(1))
	model, cmd := m.Update(TickMsg(time.Now()))
	g.Expect(cmd).NotTo(BeNil())
	m = model.(Monitor)
	g.Expect(m.have).To(BeTrue())
	g.Expect(m.normal).To(Equal([]float64{100}))

	view := m.View()
	g.Expect(view).To(ContainSubstring("LEG"))
	g.Expect(view).To(ContainSubstring("RUNNING"))
	g.Expect(view).To(ContainSubstring("knee"))

	// the same tick is not counted twice
	model, _ = m.Update(TickMsg(time.Now()))
	m = model.(Monitor)
	g.Expect(m.normal).To(HaveLen(1))

	model, _ = m.Update(key(" "))
	m = model.(Monitor)
	g.Expect(m.frozen).To(BeTrue())
	tr.OnTick(legTelemetry(2))
	model, _ = m.Update(TickMsg(time.Now()))
	m = model.(Monitor)
	g.Expect(m.frame.Tick).To(Equal(uint64(1)))
	g.Expect(m.View()).To(ContainSubstring("FROZEN"))

	model, _ = m.Update(key("v"))
	m = model.(Monitor)
	g.Expect(m.view.Front).To(BeTrue())

	model, _ = m.Update(DoneMsg{})
	m = model.(Monitor)
	g.Expect(m.View()).To(ContainSubstring("FINISHED"))

	_, cmd = m.Update(key("q"))
	g.Expect(cmd).NotTo(BeNil())
}

func TestPicker(t *testing.T) {
	g := NewWithT(t)
	choices := Choices()
	g.Expect(choices).NotTo(BeEmpty())
	for i := 1; i < len(choices); i++ {
		g.Expect(choices[i-1].Robot <= choices[i].Robot).To(BeTrue())
	}
	for _, c := range choices {
		g.Expect(c.Config).NotTo(BeNil())
	}

	p := NewPicker(choices)
	g.Expect(p.View()).To(ContainSubstring(choices[0].String()))

	model, _ := p.Update(tea.KeyMsg{Type: tea.KeyUp})
	p = model.(Picker)
	model, _ = p.Update(tea.KeyMsg{Type: tea.KeyDown})
	p = model.(Picker)
	model, cmd := p.Update(tea.KeyMsg{Type: tea.KeyEnter})
	p = model.(Picker)
	g.Expect(cmd).NotTo(BeNil())
	g.Expect(p.Selected()).NotTo(BeNil())
	g.Expect(*p.Selected()).To(Equal(choices[1]))

	model, _ = NewPicker(choices).Update(key("q"))
	g.Expect(model.(Picker).Selected()).To(BeNil())
}
