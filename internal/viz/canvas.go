package viz

import (
	"strings"

	"github.com/golang/geo/r3"
)

// Braille cells are 2x4 dots:
// 1 4
// 2 5
// 3 6
// 7 8
var pixelMap = [4][2]uint8{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const brailleBase = 0x2800

// Canvas is a grid of braille cells, Width*2 by Height*4 dots.
type Canvas struct {
	Width, Height int
	dots          [][]uint8
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{Width: w, Height: h, dots: make([][]uint8, h)}
	for i := range c.dots {
		c.dots[i] = make([]uint8, w)
	}
	return c
}

// Set lights the dot at (x, y); y grows downwards.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.dots[row][col] |= pixelMap[y%4][x%2]
}

func (c *Canvas) Clear() {
	for i := range c.dots {
		for j := range c.dots[i] {
			c.dots[i][j] = 0
		}
	}
}

// DrawLine draws a line using Bresenham's algorithm.
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx, dy := absInt(x1-x0), absInt(y1-y0)
	sx, sy := -1, -1
	if x0 < x1 {
		sx = 1
	}
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy
	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.dots {
		for _, d := range row {
			b.WriteRune(rune(brailleBase + int(d)))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// View projects world points onto the canvas: the side view looks along
// world y, the front view along world x. Z is up.
type View struct {
	Front bool
	// Scale is dots per metre; Center is the world point drawn in the middle.
	Scale  float64
	Center r3.Vector
}

func (v View) project(c *Canvas, p r3.Vector) (int, int) {
	d := p.Sub(v.Center)
	h := d.X
	if v.Front {
		h = d.Y
	}
	x := float64(c.Width) + h*v.Scale
	y := float64(c.Height*4)/2 - d.Z*v.Scale
	return int(x), int(y)
}

// Segment draws a world-space segment.
func (c *Canvas) Segment(v View, a, b r3.Vector) {
	x0, y0 := v.project(c, a)
	x1, y1 := v.project(c, b)
	c.DrawLine(x0, y0, x1, y1)
}

// Ground draws the z = 0 plane as a horizontal line.
func (c *Canvas) Ground(v View) {
	_, y := v.project(c, r3.Vector{})
	c.DrawLine(0, y, c.Width*2-1, y)
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
