// Package model loads rigid-body-chain descriptions (URDF) into an
// immutable kinematic model consumed by the solver and the engine.
package model

import (
	"fmt"

	"github.com/san-kum/armsim/internal/spatial"
)

type JointType int

const (
	Revolute JointType = iota
	Continuous
	Prismatic
	Fixed
)

func (t JointType) String() string {
	switch t {
	case Revolute:
		return "revolute"
	case Continuous:
		return "continuous"
	case Prismatic:
		return "prismatic"
	case Fixed:
		return "fixed"
	}
	return "unknown"
}

// Joint is one movable joint of the chain. Origin is the fixed
// transform from the parent link frame to the joint frame, with any
// preceding fixed joints folded in. Axis is expressed in the joint
// frame (URDF convention).
type Joint struct {
	Name   string
	Type   JointType
	Origin spatial.Pose
	Axis   spatial.Vec3
	Parent string
	Child  string

	// Limits; Lower/Upper are meaningless for Continuous joints.
	Lower  float64
	Upper  float64
	Effort float64
}

// Link carries the inertial parameters of a movable joint's child
// link: mass, centre of mass in the link frame, and the rotational
// inertia tensor about the centre of mass, in the link frame.
type Link struct {
	Name    string
	Mass    float64
	COM     spatial.Vec3
	Inertia spatial.Mat3
}

// Model is an immutable serial kinematic chain.
type Model struct {
	name     string
	base     string
	joints   []Joint
	links    []Link
	eeOffset spatial.Pose
	eeLink   string
	byName   map[string]int
}

// LoadError reports a malformed or missing model description.
type LoadError struct {
	Path   string
	Reason string
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("model load: %s", e.Reason)
	}
	return fmt.Sprintf("model load %s: %s", e.Path, e.Reason)
}

func (m *Model) Name() string { return m.name }

// DOF returns the degree-of-freedom count of the chain.
func (m *Model) DOF() int { return len(m.joints) }

// BaseLink returns the name of the root link.
func (m *Model) BaseLink() string { return m.base }

// EndEffectorLink returns the name of the last link of the chain
// (the tool frame when the chain ends in a fixed joint).
func (m *Model) EndEffectorLink() string { return m.eeLink }

// EndEffectorOffset is the fixed transform from the last movable
// joint's child-link frame to the end-effector frame.
func (m *Model) EndEffectorOffset() spatial.Pose { return m.eeOffset }

// Joint returns the i-th movable joint, ordered base to tip.
func (m *Model) Joint(i int) Joint { return m.joints[i] }

// Link returns the inertial description of the i-th movable joint's
// child link.
func (m *Model) Link(i int) Link { return m.links[i] }

func (m *Model) JointNames() []string {
	names := make([]string, len(m.joints))
	for i, j := range m.joints {
		names[i] = j.Name
	}
	return names
}

func (m *Model) LinkNames() []string {
	names := make([]string, 0, len(m.links)+2)
	names = append(names, m.base)
	for _, l := range m.links {
		names = append(names, l.Name)
	}
	if m.eeLink != "" && (len(m.links) == 0 || m.eeLink != m.links[len(m.links)-1].Name) {
		names = append(names, m.eeLink)
	}
	return names
}

// JointIndex returns the index of the named movable joint, or -1.
func (m *Model) JointIndex(name string) int {
	if i, ok := m.byName[name]; ok {
		return i
	}
	return -1
}

// CheckDim validates that v has one entry per degree of freedom.
func (m *Model) CheckDim(v []float64) error {
	if len(v) != m.DOF() {
		return &DimensionError{Want: m.DOF(), Got: len(v)}
	}
	return nil
}

// DimensionError reports a configuration or velocity vector whose
// length does not match the model's degree-of-freedom count.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("dimension mismatch: want %d, got %d", e.Want, e.Got)
}

// Integrate advances a configuration by the tangent step v*dt,
// respecting each joint's configuration space. Every joint type the
// loader admits lives on a Euclidean (or covering) space, so the
// update is additive; non-Euclidean joint types compose here when
// added.
func (m *Model) Integrate(q, v []float64, dt float64) ([]float64, error) {
	if err := m.CheckDim(q); err != nil {
		return nil, err
	}
	if err := m.CheckDim(v); err != nil {
		return nil, err
	}
	out := make([]float64, len(q))
	for i := range q {
		out[i] = q[i] + v[i]*dt
	}
	return out, nil
}

// ClampToLimits clips q to the joint position limits in place.
// Continuous joints are left untouched.
func (m *Model) ClampToLimits(q []float64) error {
	if err := m.CheckDim(q); err != nil {
		return err
	}
	for i, j := range m.joints {
		if j.Type == Continuous {
			continue
		}
		if q[i] < j.Lower {
			q[i] = j.Lower
		} else if q[i] > j.Upper {
			q[i] = j.Upper
		}
	}
	return nil
}
