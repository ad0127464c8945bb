package model

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const planar2R = `<?xml version="1.0"?>
<robot name="planar2r">
  <link name="base"/>
  <link name="upper">
    <inertial>
      <origin xyz="0 0 0.25"/>
      <mass value="1.0"/>
      <inertia ixx="0.02" ixy="0" ixz="0" iyy="0.02" iyz="0" izz="0.001"/>
    </inertial>
  </link>
  <link name="lower">
    <inertial>
      <origin xyz="0 0 0.25"/>
      <mass value="0.8"/>
      <inertia ixx="0.015" ixy="0" ixz="0" iyy="0.015" iyz="0" izz="0.001"/>
    </inertial>
  </link>
  <joint name="shoulder" type="revolute">
    <parent link="base"/>
    <child link="upper"/>
    <origin xyz="0 0 0.1"/>
    <axis xyz="0 1 0"/>
    <limit lower="-3.14" upper="3.14" effort="50"/>
  </joint>
  <joint name="elbow" type="revolute">
    <parent link="upper"/>
    <child link="lower"/>
    <origin xyz="0 0 0.5"/>
    <axis xyz="0 1 0"/>
    <limit lower="-2.5" upper="2.5" effort="30"/>
  </joint>
</robot>`

func TestParsePlanar2R(t *testing.T) {
	m, err := Parse([]byte(planar2R))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if m.Name() != "planar2r" {
		t.Errorf("expected name planar2r, got %s", m.Name())
	}
	if m.DOF() != 2 {
		t.Fatalf("expected 2 dof, got %d", m.DOF())
	}
	if m.BaseLink() != "base" {
		t.Errorf("expected base link base, got %s", m.BaseLink())
	}
	if m.EndEffectorLink() != "lower" {
		t.Errorf("expected ee link lower, got %s", m.EndEffectorLink())
	}

	j := m.Joint(0)
	if j.Name != "shoulder" || j.Type != Revolute {
		t.Errorf("unexpected first joint: %+v", j)
	}
	if j.Origin.Pos.Z != 0.1 {
		t.Errorf("expected joint origin z=0.1, got %g", j.Origin.Pos.Z)
	}
	if j.Axis.Y != 1 {
		t.Errorf("expected axis (0 1 0), got %+v", j.Axis)
	}
	if j.Lower != -3.14 || j.Upper != 3.14 || j.Effort != 50 {
		t.Errorf("unexpected limits: %+v", j)
	}

	l := m.Link(0)
	if l.Mass != 1.0 {
		t.Errorf("expected mass 1.0, got %g", l.Mass)
	}
	if l.COM.Z != 0.25 {
		t.Errorf("expected com z=0.25, got %g", l.COM.Z)
	}
	if l.Inertia[0][0] != 0.02 {
		t.Errorf("expected ixx=0.02, got %g", l.Inertia[0][0])
	}
}

func TestParseFixedJointFolding(t *testing.T) {
	urdf := `<robot name="folded">
  <link name="base"/>
  <link name="mount"/>
  <link name="arm"/>
  <link name="tool"/>
  <joint name="base_mount" type="fixed">
    <parent link="base"/>
    <child link="mount"/>
    <origin xyz="0 0 0.2"/>
  </joint>
  <joint name="j1" type="revolute">
    <parent link="mount"/>
    <child link="arm"/>
    <origin xyz="0 0 0.1"/>
    <axis xyz="0 0 1"/>
    <limit lower="-1" upper="1" effort="10"/>
  </joint>
  <joint name="tool_mount" type="fixed">
    <parent link="arm"/>
    <child link="tool"/>
    <origin xyz="0 0 0.05"/>
  </joint>
</robot>`

	m, err := Parse([]byte(urdf))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if m.DOF() != 1 {
		t.Fatalf("expected 1 dof, got %d", m.DOF())
	}
	// Leading fixed joint folds into j1's origin.
	if got := m.Joint(0).Origin.Pos.Z; math.Abs(got-0.3) > 1e-12 {
		t.Errorf("expected folded origin z=0.3, got %g", got)
	}
	// Trailing fixed joint becomes the tool frame.
	if m.EndEffectorLink() != "tool" {
		t.Errorf("expected ee link tool, got %s", m.EndEffectorLink())
	}
	if got := m.EndEffectorOffset().Pos.Z; math.Abs(got-0.05) > 1e-12 {
		t.Errorf("expected ee offset z=0.05, got %g", got)
	}
}

func TestParseContinuousWithoutLimits(t *testing.T) {
	urdf := `<robot name="c">
  <link name="base"/>
  <link name="rotor"/>
  <joint name="spin" type="continuous">
    <parent link="base"/>
    <child link="rotor"/>
    <axis xyz="0 0 1"/>
  </joint>
</robot>`
	m, err := Parse([]byte(urdf))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if m.Joint(0).Type != Continuous {
		t.Errorf("expected continuous joint, got %v", m.Joint(0).Type)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name   string
		urdf   string
		reason string
	}{
		{
			name:   "bad xml",
			urdf:   `<robot name="x"><link`,
			reason: "invalid XML",
		},
		{
			name:   "no links",
			urdf:   `<robot name="x"></robot>`,
			reason: "no links",
		},
		{
			name: "missing parent link",
			urdf: `<robot name="x"><link name="a"/>
  <joint name="j" type="revolute"><parent link="ghost"/><child link="a"/><axis xyz="0 0 1"/><limit lower="-1" upper="1" effort="1"/></joint></robot>`,
			reason: "missing parent link",
		},
		{
			name: "branching chain",
			urdf: `<robot name="x"><link name="a"/><link name="b"/><link name="c"/>
  <joint name="j1" type="revolute"><parent link="a"/><child link="b"/><axis xyz="0 0 1"/><limit lower="-1" upper="1" effort="1"/></joint>
  <joint name="j2" type="revolute"><parent link="a"/><child link="c"/><axis xyz="0 0 1"/><limit lower="-1" upper="1" effort="1"/></joint></robot>`,
			reason: "more than one child joint",
		},
		{
			name: "revolute without limits",
			urdf: `<robot name="x"><link name="a"/><link name="b"/>
  <joint name="j" type="revolute"><parent link="a"/><child link="b"/><axis xyz="0 0 1"/></joint></robot>`,
			reason: "without limits",
		},
		{
			name: "zero axis",
			urdf: `<robot name="x"><link name="a"/><link name="b"/>
  <joint name="j" type="revolute"><parent link="a"/><child link="b"/><axis xyz="0 0 0"/><limit lower="-1" upper="1" effort="1"/></joint></robot>`,
			reason: "zero axis",
		},
		{
			name: "no movable joints",
			urdf: `<robot name="x"><link name="a"/><link name="b"/>
  <joint name="j" type="fixed"><parent link="a"/><child link="b"/></joint></robot>`,
			reason: "no movable joints",
		},
		{
			name: "cycle",
			urdf: `<robot name="x"><link name="a"/><link name="b"/>
  <joint name="j1" type="revolute"><parent link="a"/><child link="b"/><axis xyz="0 0 1"/><limit lower="-1" upper="1" effort="1"/></joint>
  <joint name="j2" type="revolute"><parent link="b"/><child link="a"/><axis xyz="0 0 1"/><limit lower="-1" upper="1" effort="1"/></joint></robot>`,
			reason: "cycle",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.urdf))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var le *LoadError
			if !errors.As(err, &le) {
				t.Fatalf("expected LoadError, got %T: %v", err, err)
			}
			if !strings.Contains(le.Reason, tc.reason) {
				t.Errorf("expected reason containing %q, got %q", tc.reason, le.Reason)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.urdf"))
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected LoadError, got %T: %v", err, err)
	}
	if le.Path == "" {
		t.Error("expected path in load error")
	}
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arm.urdf")
	if err := os.WriteFile(path, []byte(planar2R), 0644); err != nil {
		t.Fatal(err)
	}
	m, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if m.DOF() != 2 {
		t.Errorf("expected 2 dof, got %d", m.DOF())
	}
}

func TestMasslessLinkTolerated(t *testing.T) {
	urdf := `<robot name="x"><link name="a"/><link name="b"/>
  <joint name="j" type="revolute"><parent link="a"/><child link="b"/><axis xyz="0 0 1"/><limit lower="-1" upper="1" effort="1"/></joint></robot>`
	m, err := Parse([]byte(urdf))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if m.Link(0).Mass != 0 {
		t.Errorf("expected zero mass, got %g", m.Link(0).Mass)
	}
	// Default inertia keeps the mass matrix invertible.
	if m.Link(0).Inertia[0][0] <= 0 {
		t.Error("expected positive default inertia")
	}
}
