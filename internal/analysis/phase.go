package analysis

import (
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Point is one sample of a portrait.
type Point struct{ X, Y float64 }

// PhasePortrait is one trace plotted against another, e.g. base height
// against total normal force.
type PhasePortrait struct {
	XLabel, YLabel string
	Points         []Point
}

// NewPhasePortrait pairs xs and ys sample by sample.
func NewPhasePortrait(xLabel string, xs []float64, yLabel string, ys []float64) (*PhasePortrait, error) {
	if len(xs) != len(ys) {
		return nil, errors.Errorf("analysis: %s has %d samples, %s has %d", xLabel, len(xs), yLabel, len(ys))
	}
	p := &PhasePortrait{XLabel: xLabel, YLabel: yLabel, Points: make([]Point, len(xs))}
	for i := range xs {
		p.Points[i] = Point{X: xs[i], Y: ys[i]}
	}
	return p, nil
}

// Derivative differentiates values sampled every dt by central differences.
func Derivative(values []float64, dt float64) []float64 {
	n := len(values)
	out := make([]float64, n)
	if n < 2 || dt <= 0 {
		return out
	}
	out[0] = (values[1] - values[0]) / dt
	out[n-1] = (values[n-1] - values[n-2]) / dt
	for i := 1; i < n-1; i++ {
		out[i] = (values[i+1] - values[i-1]) / (2 * dt)
	}
	return out
}

// bounds returns the padded range of the portrait.
func (p *PhasePortrait) bounds() (minX, maxX, minY, maxY float64) {
	xs := make([]float64, len(p.Points))
	ys := make([]float64, len(p.Points))
	for i, pt := range p.Points {
		xs[i], ys[i] = pt.X, pt.Y
	}
	minX, maxX = floats.Min(xs), floats.Max(xs)
	minY, maxY = floats.Min(ys), floats.Max(ys)
	rangeX, rangeY := maxX-minX, maxY-minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	return minX - rangeX*0.1, maxX + rangeX*0.1, minY - rangeY*0.1, maxY + rangeY*0.1
}

// ASCII draws the portrait with axes where zero is in range.
func (p *PhasePortrait) ASCII(width, height int) string {
	if p == nil || len(p.Points) == 0 || width < 2 || height < 2 {
		return ""
	}
	minX, maxX, minY, maxY := p.bounds()
	rangeX, rangeY := maxX-minX, maxY-minY

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = []rune(strings.Repeat(" ", width))
	}
	for _, pt := range p.Points {
		col := int((pt.X - minX) / rangeX * float64(width-1))
		row := height - 1 - int((pt.Y-minY)/rangeY*float64(height-1))
		if row >= 0 && row < height && col >= 0 && col < width {
			canvas[row][col] = '•'
		}
	}

	if minX <= 0 && maxX >= 0 {
		col := int(-minX / rangeX * float64(width-1))
		for row := 0; row < height; row++ {
			if canvas[row][col] == ' ' {
				canvas[row][col] = '│'
			}
		}
	}
	if minY <= 0 && maxY >= 0 {
		row := height - 1 - int(-minY/rangeY*float64(height-1))
		for col := 0; col < width; col++ {
			if canvas[row][col] == ' ' {
				canvas[row][col] = '─'
			}
		}
	}

	var sb strings.Builder
	sb.WriteString(p.YLabel + "\n")
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	sb.WriteString(strings.Repeat(" ", max(0, width-len(p.XLabel))) + p.XLabel + "\n")
	return sb.String()
}
