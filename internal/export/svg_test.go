package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	. "github.com/onsi/gomega"

	"github.com/san-kum/wholebody/internal/viz"
)

func TestFrameSVG(t *testing.T) {
	g := NewWithT(t)
	f := viz.Frame{
		Segments: []viz.Segment{{From: r3.Vector{Z: 0.8}, To: r3.Vector{Z: 0.4}}},
		Feet:     []viz.Segment{{From: r3.Vector{X: 0.1}, To: r3.Vector{X: -0.1}}},
		CoM:      r3.Vector{Z: 0.6},
	}
	var buf bytes.Buffer
	g.Expect(FrameSVG(&buf, f, false, 200, 100, 100)).To(Succeed())
	out := buf.String()
	g.Expect(out).To(HavePrefix("<?xml"))
	g.Expect(out).To(HaveSuffix("</svg>\n"))
	// ground, link, foot, plumb line
	g.Expect(strings.Count(out, "<line")).To(Equal(4))
	g.Expect(out).To(ContainSubstring(`x1="100.0" y1="10.0" x2="100.0" y2="50.0"`))
	g.Expect(out).To(ContainSubstring(`<circle cx="100.0" cy="30.0"`))
}

func TestTraceSVG(t *testing.T) {
	g := NewWithT(t)
	var buf bytes.Buffer
	times := []float64{0, 1, 2}
	err := TraceSVG(&buf, times, []string{"hip", "knee"}, [][]float64{{0, 1, 2}, {2, 1, 0}}, 100, 50)
	g.Expect(err).NotTo(HaveOccurred())
	out := buf.String()
	g.Expect(strings.Count(out, "<path")).To(Equal(2))
	g.Expect(out).To(ContainSubstring(">hip</text>"))
	g.Expect(out).To(ContainSubstring("M0.0,"))
	g.Expect(out).To(ContainSubstring(" L100.0,"))

	g.Expect(TraceSVG(&buf, []float64{0}, nil, [][]float64{{1}}, 10, 10)).NotTo(Succeed())
	g.Expect(TraceSVG(&buf, times, nil, [][]float64{{1, 2}}, 10, 10)).NotTo(Succeed())
}
