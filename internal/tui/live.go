// Package tui renders the arm in the terminal: a plain ANSI canvas
// renderer for scripted runs and a bubbletea model for interactive use.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/san-kum/armsim/internal/spatial"
)

const (
	width       = 70
	height      = 22
	clearScreen = "\033[2J\033[H"
	hideCursor  = "\033[?25l"
	showCursor  = "\033[?25h"

	// world-to-canvas scale, columns per meter in x and rows per meter in z
	scaleX = 28.0
	scaleZ = 11.0
)

type LiveRenderer struct {
	task      string
	frameRate int
	lastFrame time.Time
	canvas    [][]rune
	trail     []struct{ x, y int }
}

func NewLiveRenderer(task string, frameRate int) *LiveRenderer {
	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = make([]rune, width)
	}
	return &LiveRenderer{
		task:      task,
		frameRate: frameRate,
		canvas:    canvas,
		trail:     make([]struct{ x, y int }, 0, 50),
	}
}

// OnStep draws the chain projected onto the x-z plane. joints holds the
// frame origin of every movable joint, base to tip; ee and goal are
// world positions.
func (r *LiveRenderer) OnStep(joints []spatial.Vec3, ee, goal spatial.Vec3, t float64) {
	elapsed := time.Since(r.lastFrame)
	if elapsed < time.Second/time.Duration(r.frameRate) {
		return
	}
	r.lastFrame = time.Now()

	r.clear()
	r.drawArm(joints, ee, goal)
	r.render(ee, goal, t)
}

func (r *LiveRenderer) project(p spatial.Vec3) (int, int) {
	cx := 12 + int(p.X*scaleX)
	cy := height - 3 - int(p.Z*scaleZ)
	return cx, cy
}

func (r *LiveRenderer) drawArm(joints []spatial.Vec3, ee, goal spatial.Vec3) {
	for i := 2; i < width-2; i++ {
		r.set(i, height-2, '=')
	}

	ex, ey := r.project(ee)
	r.trail = append(r.trail, struct{ x, y int }{ex, ey})
	if len(r.trail) > 40 {
		r.trail = r.trail[1:]
	}
	for _, pt := range r.trail {
		r.set(pt.x, pt.y, '.')
	}

	gx, gy := r.project(goal)
	r.set(gx-1, gy, '(')
	r.set(gx, gy, '*')
	r.set(gx+1, gy, ')')

	px, py := r.project(spatial.Vec3{})
	r.set(px, py, '#')
	for _, j := range joints {
		jx, jy := r.project(j)
		r.line(px, py, jx, jy, '|')
		r.set(jx, jy, 'o')
		px, py = jx, jy
	}
	r.line(px, py, ex, ey, '|')
	r.set(ex, ey, 'O')
}

func (r *LiveRenderer) clear() {
	for y := range r.canvas {
		for x := range r.canvas[y] {
			r.canvas[y][x] = ' '
		}
	}
}

func (r *LiveRenderer) set(x, y int, c rune) {
	if x >= 0 && x < width && y >= 0 && y < height {
		r.canvas[y][x] = c
	}
}

func (r *LiveRenderer) line(x1, y1, x2, y2 int, c rune) {
	dx := abs(x2 - x1)
	dy := abs(y2 - y1)
	sx, sy := 1, 1
	if x1 > x2 {
		sx = -1
	}
	if y1 > y2 {
		sy = -1
	}
	err := dx - dy
	for {
		r.set(x1, y1, c)
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

func (r *LiveRenderer) render(ee, goal spatial.Vec3, t float64) {
	var b strings.Builder
	b.WriteString(clearScreen)
	b.WriteString(fmt.Sprintf("  %s  t=%.2fs\n", r.task, t))
	b.WriteString("  " + strings.Repeat("-", width) + "\n")

	for _, row := range r.canvas {
		b.WriteString("  ")
		b.WriteString(string(row))
		b.WriteString("\n")
	}

	b.WriteString("  " + strings.Repeat("-", width) + "\n")
	dist := ee.Sub(goal).Norm()
	b.WriteString(fmt.Sprintf("  ee=(%.3f %.3f %.3f)  goal=(%.3f %.3f %.3f)  dist=%.4f\n",
		ee.X, ee.Y, ee.Z, goal.X, goal.Y, goal.Z, dist))

	fmt.Print(b.String())
}

func (r *LiveRenderer) Start() { fmt.Print(hideCursor) }
func (r *LiveRenderer) Stop()  { fmt.Print(showCursor) }

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
