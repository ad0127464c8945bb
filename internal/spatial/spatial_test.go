package spatial

import (
	"math"
	"testing"
)

func mat3Close(t *testing.T, got, want Mat3, tol float64) {
	t.Helper()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(got[i][j]-want[i][j]) > tol {
				t.Fatalf("matrix mismatch at (%d,%d): got %v want %v", i, j, got, want)
			}
		}
	}
}

func TestExpLogRoundTrip(t *testing.T) {
	cases := []Vec3{
		{0.3, -0.2, 0.5},
		{0, 0, 1e-8},
		{1.2, 0.4, -0.9},
		{0, math.Pi - 1e-3, 0},
	}
	for _, w := range cases {
		got := Log3(Exp3(w))
		if got.Sub(w).Norm() > 1e-6 {
			t.Errorf("log(exp(%v)) = %v", w, got)
		}
	}
}

func TestLogNearPi(t *testing.T) {
	w := Vec3{0, 0, math.Pi}
	r := Exp3(w)
	got := Log3(r)
	if math.Abs(got.Norm()-math.Pi) > 1e-6 {
		t.Errorf("expected |w| = pi, got %f", got.Norm())
	}
	mat3Close(t, Exp3(got), r, 1e-9)
}

func TestQuatMatRoundTrip(t *testing.T) {
	rots := []Mat3{
		Identity3(),
		FromRPY(0.3, -1.1, 2.0),
		Exp3(Vec3{0, math.Pi - 1e-4, 0}),
		FromRPY(-2.9, 0.1, -0.4),
	}
	for _, r := range rots {
		mat3Close(t, MatToQuat(r).Mat(), r, 1e-9)
	}
}

func TestPoseInverse(t *testing.T) {
	p := Pose{Pos: Vec3{0.1, -0.5, 0.8}, Rot: FromRPY(0.2, 0.7, -1.3)}
	ident := p.Mul(p.Inverse())
	if ident.Pos.Norm() > 1e-12 {
		t.Errorf("expected zero translation, got %v", ident.Pos)
	}
	mat3Close(t, ident.Rot, Identity3(), 1e-12)
}

func TestLog6Identity(t *testing.T) {
	tw := Log6(IdentityPose())
	if tw.Norm() != 0 {
		t.Errorf("expected zero twist, got %v", tw)
	}
}

func TestLog6PureTranslation(t *testing.T) {
	p := Pose{Pos: Vec3{1, 2, 3}, Rot: Identity3()}
	tw := Log6(p)
	if tw.Linear().Sub(p.Pos).Norm() > 1e-12 || tw.Angular().Norm() != 0 {
		t.Errorf("unexpected twist %v", tw)
	}
}

func TestJlog3Identity(t *testing.T) {
	mat3Close(t, Jlog3(Identity3()), Identity3(), 1e-12)
}

func TestJlog6Identity(t *testing.T) {
	j := Jlog6(IdentityPose())
	for i := 0; i < 6; i++ {
		for k := 0; k < 6; k++ {
			want := 0.0
			if i == k {
				want = 1.0
			}
			if math.Abs(j.At(i, k)-want) > 1e-12 {
				t.Fatalf("Jlog6(I) not identity at (%d,%d): %f", i, k, j.At(i, k))
			}
		}
	}
}

func TestJlog3FiniteDifference(t *testing.T) {
	// d/dt log3(R * exp(t*dw)) at t=0 should equal Jlog3(R) * dw.
	r := Exp3(Vec3{0.4, -0.7, 0.2})
	j := Jlog3(r)
	h := 1e-7
	dirs := []Vec3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	for _, dw := range dirs {
		plus := Log3(r.Mul(Exp3(dw.Scale(h))))
		minus := Log3(r.Mul(Exp3(dw.Scale(-h))))
		fd := plus.Sub(minus).Scale(1 / (2 * h))
		want := j.MulVec(dw)
		if fd.Sub(want).Norm() > 1e-5 {
			t.Errorf("Jlog3 mismatch along %v: fd %v want %v", dw, fd, want)
		}
	}
}
