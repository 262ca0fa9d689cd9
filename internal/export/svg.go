// Package export renders run data as standalone SVG documents.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/wholebody/internal/viz"
)

var palette = []string{"#00ff88", "#ffcc00", "#00ccff", "#ff4444", "#cc66ff", "#ff8800"}

func header(sb *strings.Builder, width, height int) {
	fmt.Fprintf(sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height)
}

// FrameSVG draws a tracker frame as a stick figure: links, feet, the
// ground line and the centre of mass. front selects the y-z plane,
// otherwise x-z. scale is pixels per metre.
func FrameSVG(w io.Writer, f viz.Frame, front bool, width, height int, scale float64) error {
	project := func(p r3.Vector) (float64, float64) {
		h := p.X - f.CoM.X
		if front {
			h = p.Y - f.CoM.Y
		}
		return float64(width)/2 + h*scale, float64(height)*0.9 - p.Z*scale
	}

	var sb strings.Builder
	header(&sb, width, height)
	_, gy := project(r3.Vector{})
	fmt.Fprintf(&sb, `<line x1="0" y1="%.1f" x2="%d" y2="%.1f" stroke="#444466" stroke-width="1"/>
`, gy, width, gy)

	line := func(s viz.Segment, color string, stroke float64) {
		x0, y0 := project(s.From)
		x1, y1 := project(s.To)
		fmt.Fprintf(&sb, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s" stroke-width="%.1f" stroke-linecap="round"/>
`, x0, y0, x1, y1, color, stroke)
	}
	for _, s := range f.Segments {
		line(s, "#e0e0e0", 4)
	}
	for _, s := range f.Feet {
		line(s, "#00ccff", 2)
	}

	cx, cy := project(f.CoM)
	fmt.Fprintf(&sb, `<circle cx="%.1f" cy="%.1f" r="5" fill="#ff00ff"/>
<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#ff00ff" stroke-dasharray="4 4"/>
`, cx, cy, cx, cy, cx, gy)
	sb.WriteString("</svg>\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

// TraceSVG draws one polyline per series against times, all sharing the
// vertical scale, with the labels as a legend.
func TraceSVG(w io.Writer, times []float64, labels []string, series [][]float64, width, height int) error {
	if len(times) < 2 || len(series) == 0 {
		return errors.Errorf("export: need at least two samples and one series")
	}
	for i, s := range series {
		if len(s) != len(times) {
			return errors.Errorf("export: series %d has %d samples, want %d", i, len(s), len(times))
		}
	}

	minX, maxX := times[0], times[len(times)-1]
	minY, maxY := floats.Min(series[0]), floats.Max(series[0])
	for _, s := range series[1:] {
		minY = min(minY, floats.Min(s))
		maxY = max(maxY, floats.Max(s))
	}
	rangeX, rangeY := maxX-minX, maxY-minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minY -= rangeY * 0.1
	rangeY *= 1.2

	var sb strings.Builder
	header(&sb, width, height)
	for k, s := range series {
		color := palette[k%len(palette)]
		fmt.Fprintf(&sb, `<path fill="none" stroke="%s" stroke-width="1.5" d="M`, color)
		for i, v := range s {
			x := (times[i] - minX) / rangeX * float64(width)
			y := float64(height) - (v-minY)/rangeY*float64(height)
			if i == 0 {
				fmt.Fprintf(&sb, "%.1f,%.1f", x, y)
			} else {
				fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
			}
		}
		sb.WriteString("\"/>\n")
		if k < len(labels) {
			fmt.Fprintf(&sb, `<text x="8" y="%d" fill="%s" font-family="monospace" font-size="12">%s</text>
`, 16+14*k, color, labels[k])
		}
	}
	sb.WriteString("</svg>\n")

	_, err := io.WriteString(w, sb.String())
	return err
}
