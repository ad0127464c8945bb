// Package robot describes robot assemblies as data: kinematic chains
// with ordered joint and actuator names, an initial pose, and the
// scene operations a task mounts around the arm. Task variants are
// configuration deltas over a base assembly, selected by identifier.
package robot

import (
	_ "embed"
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/armsim/internal/model"
	"github.com/san-kum/armsim/internal/scene"
)

//go:embed diana7.urdf
var defaultURDF []byte

// DefaultURDF returns the built-in 7-DOF arm description.
func DefaultURDF() []byte {
	out := make([]byte, len(defaultURDF))
	copy(out, defaultURDF)
	return out
}

// Arm is one kinematic chain of an assembly. JointNames, ActuatorNames
// and InitPose are index-aligned.
type Arm struct {
	Name          string
	JointNames    []string
	ActuatorNames []string
	InitPose      []float64
}

// Assembly is a complete robot description for one task. It is
// created once and re-applied whole on every environment reset.
type Assembly struct {
	Name     string
	Task     string
	Arms     []Arm
	Gripper  string
	Mount    string
	SceneOps []scene.Op
}

func (a *Assembly) Validate() error {
	if len(a.Arms) == 0 {
		return fmt.Errorf("assembly %q has no arms", a.Name)
	}
	for _, arm := range a.Arms {
		if len(arm.JointNames) != len(arm.InitPose) {
			return fmt.Errorf("arm %q: %d joints but %d initial pose values",
				arm.Name, len(arm.JointNames), len(arm.InitPose))
		}
		if len(arm.JointNames) != len(arm.ActuatorNames) {
			return fmt.Errorf("arm %q: %d joints but %d actuators",
				arm.Name, len(arm.JointNames), len(arm.ActuatorNames))
		}
	}
	return nil
}

// CheckModel validates that every joint the assembly names exists in
// the model.
func (a *Assembly) CheckModel(m *model.Model) error {
	for _, arm := range a.Arms {
		for _, name := range arm.JointNames {
			if m.JointIndex(name) < 0 {
				return fmt.Errorf("arm %q references joint %q not present in model %q",
					arm.Name, name, m.Name())
			}
		}
	}
	return nil
}

// InitialPoseByJoint flattens all arms into one joint-name-to-value
// map, the unit the adapter's reset consumes atomically.
func (a *Assembly) InitialPoseByJoint() map[string]float64 {
	out := make(map[string]float64)
	for _, arm := range a.Arms {
		for i, name := range arm.JointNames {
			out[name] = arm.InitPose[i]
		}
	}
	return out
}

// ActuatorNames returns all actuator names across arms, in arm order.
func (a *Assembly) ActuatorNames() []string {
	var out []string
	for _, arm := range a.Arms {
		out = append(out, arm.ActuatorNames...)
	}
	return out
}

func sevenDOFArm(initPose []float64) Arm {
	return Arm{
		Name:          "single",
		JointNames:    []string{"j1", "j2", "j3", "j4", "j5", "j6", "j7"},
		ActuatorNames: []string{"a1", "a2", "a3", "a4", "a5", "a6", "a7"},
		InitPose:      initPose,
	}
}

// variants maps task identifiers to assembly constructors. Initial
// poses are per-task tuned configurations.
var variants = map[string]func() *Assembly{
	"reach": func() *Assembly {
		return &Assembly{
			Name: "diana7",
			Task: "reach",
			Arms: []Arm{sevenDOFArm([]float64{0, -math.Pi / 4, 0, math.Pi / 2, 0, math.Pi / 4, 0})},
			SceneOps: []scene.Op{
				scene.AddSite{Body: "worldbody", Name: "goal_site", Pos: "0.4 0.0 0.5",
					Size: "0.02 0.02 0.02", RGBA: "1 0 0 1", Type: "sphere"},
			},
		}
	},
	"grasp": func() *Assembly {
		return &Assembly{
			Name:    "diana7",
			Task:    "grasp",
			Gripper: "rethink_gripper",
			Mount:   "top_point",
			Arms: []Arm{sevenDOFArm([]float64{
				0.02167871, -0.16747492, 0.00730963, 2.5573341, -0.00401727, -0.42203728, -0.01099269,
			})},
			SceneOps: []scene.Op{
				scene.AddBody{Name: "green_block", Pos: "0.5 0.0 0.46"},
				scene.AddGeom{Body: "green_block", Name: "green_block_geom", Type: "box",
					Size: "0.02 0.02 0.02", RGBA: "0 1 0 1", Mass: "0.05"},
				scene.AddJoint{Body: "green_block", Name: "green_block_free", Type: "free", Axis: "0 0 1"},
				scene.AddSite{Body: "worldbody", Name: "goal_site", Pos: "0.4 0.0 0.5",
					Size: "0.02 0.02 0.02", RGBA: "1 0 0 1", Type: "sphere"},
			},
		}
	},
	"drawer": func() *Assembly {
		return &Assembly{
			Name:    "diana7",
			Task:    "drawer",
			Gripper: "rethink_gripper",
			Mount:   "top_point",
			Arms: []Arm{sevenDOFArm([]float64{
				-0.51198529, -0.44737435, -0.50879166, 2.3063219, 0.46514545, -0.48916244, -0.37233289,
			})},
			SceneOps: []scene.Op{
				scene.AddMesh{Name: "cupboard", File: "objects/cupboard/cupboard.stl", Scale: "0.001 0.001 0.001"},
				scene.AddMesh{Name: "drawer", File: "objects/cupboard/drawer.stl", Scale: "0.001 0.001 0.001"},
				scene.AddBody{Name: "cupboard", Pos: "0.66 0.0 0.42"},
				scene.AddGeom{Body: "cupboard", Name: "cupboard_geom", Type: "mesh", Material: "cupboard"},
				scene.AddSite{Body: "worldbody", Name: "goal_site", Pos: "0.56 0.0 0.478",
					Size: "0.01 0.01 0.01", RGBA: "1 0 0 1", Type: "sphere"},
			},
		}
	},
	"cabinet": func() *Assembly {
		return &Assembly{
			Name:    "diana7",
			Task:    "cabinet",
			Gripper: "rethink_gripper",
			Mount:   "top_point",
			Arms: []Arm{sevenDOFArm([]float64{
				-0.71325374, 0.07279728, -0.72080385, 2.5239552, -0.07686951, -0.67930021, 0.05372948,
			})},
			SceneOps: []scene.Op{
				scene.AddBody{Name: "cabinet", Pos: "0.66 0.0 0.42"},
				scene.AddGeom{Body: "cabinet", Name: "cabinet_geom", Type: "box",
					Size: "0.2 0.3 0.4", RGBA: "0.6 0.4 0.2 1"},
			},
		}
	},
}

// Variant returns a fresh assembly for the named task.
func Variant(task string) (*Assembly, error) {
	ctor, ok := variants[task]
	if !ok {
		return nil, fmt.Errorf("unknown task %q (have %v)", task, Tasks())
	}
	a := ctor()
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Tasks lists the known task identifiers.
func Tasks() []string {
	out := make([]string, 0, len(variants))
	for k := range variants {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// BuildScene applies the assembly's scene operations to a fresh tree
// and returns the world description.
func (a *Assembly) BuildScene() ([]byte, error) {
	t := scene.NewTree(a.Name + "_" + a.Task)
	if err := t.Apply(a.SceneOps...); err != nil {
		return nil, err
	}
	return t.Marshal()
}
