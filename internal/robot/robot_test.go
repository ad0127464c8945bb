package robot

import (
	"strings"
	"testing"

	"github.com/san-kum/armsim/internal/model"
)

func TestDefaultURDFParses(t *testing.T) {
	m, err := model.Parse(DefaultURDF())
	if err != nil {
		t.Fatalf("built-in description must parse: %v", err)
	}
	if m.DOF() != 7 {
		t.Errorf("expected 7 dof, got %d", m.DOF())
	}
	if m.EndEffectorLink() != "ee_link" {
		t.Errorf("expected ee_link, got %s", m.EndEffectorLink())
	}
}

func TestDefaultURDFReturnsCopy(t *testing.T) {
	a := DefaultURDF()
	a[0] = 'x'
	b := DefaultURDF()
	if b[0] == 'x' {
		t.Error("caller mutation leaked into the embedded description")
	}
}

func TestVariantsCheckAgainstModel(t *testing.T) {
	m, err := model.Parse(DefaultURDF())
	if err != nil {
		t.Fatal(err)
	}
	for _, task := range Tasks() {
		asm, err := Variant(task)
		if err != nil {
			t.Errorf("variant %s: %v", task, err)
			continue
		}
		if asm.Task != task {
			t.Errorf("variant %s carries task %s", task, asm.Task)
		}
		if err := asm.CheckModel(m); err != nil {
			t.Errorf("variant %s does not fit the built-in model: %v", task, err)
		}
	}
}

func TestVariantUnknownTask(t *testing.T) {
	if _, err := Variant("juggling"); err == nil {
		t.Error("expected error for unknown task")
	}
}

func TestVariantsAreFresh(t *testing.T) {
	a, err := Variant("reach")
	if err != nil {
		t.Fatal(err)
	}
	a.Arms[0].InitPose[0] = 99

	b, err := Variant("reach")
	if err != nil {
		t.Fatal(err)
	}
	if b.Arms[0].InitPose[0] == 99 {
		t.Error("variant mutation leaked into later calls")
	}
}

func TestInitialPoseByJoint(t *testing.T) {
	asm, err := Variant("reach")
	if err != nil {
		t.Fatal(err)
	}
	pose := asm.InitialPoseByJoint()
	if len(pose) != 7 {
		t.Fatalf("expected 7 entries, got %d", len(pose))
	}
	if pose["j1"] != 0 {
		t.Errorf("unexpected j1 pose %g", pose["j1"])
	}
	if pose["j4"] == 0 {
		t.Error("expected bent elbow in initial pose")
	}
}

func TestActuatorNamesOrdered(t *testing.T) {
	asm, err := Variant("reach")
	if err != nil {
		t.Fatal(err)
	}
	names := asm.ActuatorNames()
	want := []string{"a1", "a2", "a3", "a4", "a5", "a6", "a7"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("expected %v, got %v", want, names)
			break
		}
	}
}

func TestBuildScene(t *testing.T) {
	asm, err := Variant("grasp")
	if err != nil {
		t.Fatal(err)
	}
	out, err := asm.BuildScene()
	if err != nil {
		t.Fatalf("build scene failed: %v", err)
	}
	xml := string(out)
	for _, want := range []string{
		`model="diana7_grasp"`,
		`name="green_block"`,
		`name="goal_site"`,
	} {
		if !strings.Contains(xml, want) {
			t.Errorf("scene missing %q", want)
		}
	}
}

func TestAssemblyValidate(t *testing.T) {
	bad := &Assembly{Name: "empty"}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for assembly with no arms")
	}

	bad = &Assembly{
		Name: "mismatch",
		Arms: []Arm{{
			Name:          "a",
			JointNames:    []string{"j1", "j2"},
			ActuatorNames: []string{"a1", "a2"},
			InitPose:      []float64{0},
		}},
	}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for pose length mismatch")
	}
}
