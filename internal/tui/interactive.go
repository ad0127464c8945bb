package tui

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/armsim/internal/env"
	"github.com/san-kum/armsim/internal/spatial"
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
)

type tickMsg time.Time

// Model drives a reach episode interactively, one control tick per
// frame, with a greedy policy steering the end effector at the goal.
type Model struct {
	e       *env.ReachEnv
	task    string
	scale   float64
	canvas  *LiveRenderer
	paused  bool
	done    bool
	reward  float64
	ret     float64
	dist    float64
	tick    int
	lastErr error
}

func NewModel(e *env.ReachEnv, task string, actionScale float64) *Model {
	return &Model{
		e:      e,
		task:   task,
		scale:  actionScale,
		canvas: NewLiveRenderer(task, 1000),
	}
}

func (m *Model) Init() tea.Cmd {
	if _, err := m.e.Reset(); err != nil {
		m.lastErr = err
		m.done = true
		return nil
	}
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(50*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.paused = !m.paused
		case "r":
			if _, err := m.e.Reset(); err != nil {
				m.lastErr = err
				m.done = true
				return m, nil
			}
			m.tick = 0
			m.ret = 0
			m.done = false
			m.lastErr = nil
			return m, tick()
		}
		return m, nil
	case tickMsg:
		if m.paused {
			return m, tick()
		}
		if m.done {
			return m, nil
		}
		m.step()
		if m.done {
			return m, nil
		}
		return m, tick()
	}
	return m, nil
}

func (m *Model) step() {
	q, _ := m.e.Loop().Adapter().ReadJointState()
	ee, err := m.e.Solver().ForwardKinematics(q)
	if err != nil {
		m.lastErr = err
		m.done = true
		return
	}
	goal := m.e.Goal()
	diff := goal.Sub(ee.Pos)
	m.dist = diff.Norm()

	action := []float64{
		clip(diff.X/m.scale, -1, 1),
		clip(diff.Y/m.scale, -1, 1),
		clip(diff.Z/m.scale, -1, 1),
	}
	_, reward, terminated, truncated, err := m.e.Step(action)
	if err != nil {
		m.lastErr = err
		m.done = true
		return
	}
	m.reward = reward
	m.ret += reward
	m.tick++
	if terminated || truncated {
		m.done = true
	}
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(cyan.Render(fmt.Sprintf("  armsim  %s", m.task)))
	b.WriteString(dim.Render(fmt.Sprintf("  tick=%d  t=%.2fs", m.tick, m.e.Loop().Clock().CurTime)))
	b.WriteString("\n")
	b.WriteString(dim.Render("  "+strings.Repeat("-", width)) + "\n")

	q, _ := m.e.Loop().Adapter().ReadJointState()
	joints := m.jointPositions(q)
	ee, err := m.e.Solver().ForwardKinematics(q)
	if err == nil {
		m.canvas.clear()
		m.canvas.drawArm(joints, ee.Pos, m.e.Goal())
	}
	for _, row := range m.canvas.canvas {
		b.WriteString("  " + white.Render(string(row)) + "\n")
	}
	b.WriteString(dim.Render("  "+strings.Repeat("-", width)) + "\n")

	status := fmt.Sprintf("  dist=%.4f  reward=%+.0f  return=%+.0f", m.dist, m.reward, m.ret)
	if m.dist <= 0.05 {
		b.WriteString(green.Render(status))
	} else {
		b.WriteString(yellow.Render(status))
	}
	b.WriteString("\n")

	vals := m.e.Loop().MetricValues()
	names := make([]string, 0, len(vals))
	for name := range vals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b.WriteString(dim.Render(fmt.Sprintf("  %s=%.5f", name, vals[name])))
	}
	if len(names) > 0 {
		b.WriteString("\n")
	}

	if m.lastErr != nil {
		b.WriteString(yellow.Render(fmt.Sprintf("  error: %v", m.lastErr)) + "\n")
	}
	if m.done {
		b.WriteString(dim.Render("  episode over  [r] restart  [q] quit") + "\n")
	} else if m.paused {
		b.WriteString(dim.Render("  paused  [space] resume  [q] quit") + "\n")
	} else {
		b.WriteString(dim.Render("  [space] pause  [r] restart  [q] quit") + "\n")
	}
	return b.String()
}

func (m *Model) jointPositions(q []float64) []spatial.Vec3 {
	poses, err := m.e.Solver().LinkPoses(q)
	if err != nil {
		return nil
	}
	out := make([]spatial.Vec3, len(poses))
	for i, p := range poses {
		out[i] = p.Pos
	}
	return out
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
