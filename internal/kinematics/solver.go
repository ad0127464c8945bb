// Package kinematics implements the chain solver: forward kinematics,
// geometric Jacobians, joint-space dynamics terms, and the damped
// least-squares iterative inverse kinematics.
//
// Every operation is a pure function of the supplied configuration; no
// state is cached between calls.
package kinematics

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/armsim/internal/model"
	"github.com/san-kum/armsim/internal/spatial"
)

// Solver computes kinematics and dynamics quantities for one model.
// It holds a non-owning reference to the model for its lifetime.
type Solver struct {
	m *model.Model

	// Gravity is the gravitational acceleration in the base frame.
	Gravity spatial.Vec3
}

func New(m *model.Model) *Solver {
	return &Solver{m: m, Gravity: spatial.Vec3{Z: -9.81}}
}

func (s *Solver) Model() *model.Model { return s.m }

// frames propagates transforms along the chain and returns the pose of
// every movable joint's child-link frame plus the end-effector pose,
// all in the base frame.
func (s *Solver) frames(q []float64) ([]spatial.Pose, spatial.Pose, error) {
	if err := s.m.CheckDim(q); err != nil {
		return nil, spatial.Pose{}, err
	}
	n := s.m.DOF()
	frames := make([]spatial.Pose, n)
	cur := spatial.IdentityPose()
	for i := 0; i < n; i++ {
		j := s.m.Joint(i)
		cur = cur.Mul(j.Origin).Mul(jointMotion(j, q[i]))
		frames[i] = cur
	}
	return frames, cur.Mul(s.m.EndEffectorOffset()), nil
}

func jointMotion(j model.Joint, qi float64) spatial.Pose {
	switch j.Type {
	case model.Prismatic:
		return spatial.Pose{Pos: j.Axis.Scale(qi), Rot: spatial.Identity3()}
	default:
		return spatial.Pose{Rot: spatial.Exp3(j.Axis.Scale(qi))}
	}
}

// ForwardKinematics returns the end-effector pose in the base frame.
func (s *Solver) ForwardKinematics(q []float64) (spatial.Pose, error) {
	_, ee, err := s.frames(q)
	return ee, err
}

// LinkPoses returns the base-frame pose of each movable joint's
// child-link frame, ordered base to tip.
func (s *Solver) LinkPoses(q []float64) ([]spatial.Pose, error) {
	frames, _, err := s.frames(q)
	return frames, err
}

// Jacobian returns the 6xN geometric Jacobian mapping joint velocity
// to end-effector spatial velocity, expressed in the end-effector
// (body) frame, linear rows first.
func (s *Solver) Jacobian(q []float64) (*mat.Dense, error) {
	frames, ee, err := s.frames(q)
	if err != nil {
		return nil, err
	}
	n := s.m.DOF()
	j := mat.NewDense(6, n, nil)
	eeInv := ee.Inverse()
	for i := 0; i < n; i++ {
		joint := s.m.Joint(i)
		x := eeInv.Mul(frames[i]) // joint frame expressed in the end-effector frame
		var v, w spatial.Vec3
		if joint.Type == model.Prismatic {
			v = x.Rot.MulVec(joint.Axis)
		} else {
			w = x.Rot.MulVec(joint.Axis)
			v = x.Pos.Cross(w)
		}
		j.Set(0, i, v.X)
		j.Set(1, i, v.Y)
		j.Set(2, i, v.Z)
		j.Set(3, i, w.X)
		j.Set(4, i, w.Y)
		j.Set(5, i, w.Z)
	}
	return j, nil
}

// JacobianPseudoInverse returns the Moore-Penrose pseudo-inverse of
// the body Jacobian, computed by singular value decomposition. It is
// defined at every configuration; near singularities the result has
// large norm and callers are responsible for clipping.
func (s *Solver) JacobianPseudoInverse(q []float64) (*mat.Dense, error) {
	j, err := s.Jacobian(q)
	if err != nil {
		return nil, err
	}
	return pseudoInverse(j)
}

func pseudoInverse(a *mat.Dense) (*mat.Dense, error) {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, fmt.Errorf("pseudo-inverse: SVD failed to converge")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	sv := svd.Values(nil)

	rows, cols := a.Dims()
	maxDim := rows
	if cols > maxDim {
		maxDim = cols
	}
	tol := 0.0
	if len(sv) > 0 {
		tol = float64(maxDim) * sv[0] * 2.220446049250313e-16
	}

	k := len(sv)
	sinv := mat.NewDense(k, k, nil)
	for i, val := range sv {
		if val > tol {
			sinv.Set(i, i, 1/val)
		}
	}

	out := mat.NewDense(cols, rows, nil)
	var tmp mat.Dense
	tmp.Mul(&v, sinv)
	out.Mul(&tmp, u.T())
	return out, nil
}

// JacobianDot returns the time-derivative of the body Jacobian along
// the current joint velocity, by central finite difference of the
// Jacobian over the configuration manifold.
func (s *Solver) JacobianDot(q, qdot []float64) (*mat.Dense, error) {
	if err := s.m.CheckDim(qdot); err != nil {
		return nil, err
	}
	const h = 1e-6
	qp, err := s.m.Integrate(q, qdot, h)
	if err != nil {
		return nil, err
	}
	qm, err := s.m.Integrate(q, qdot, -h)
	if err != nil {
		return nil, err
	}
	jp, err := s.Jacobian(qp)
	if err != nil {
		return nil, err
	}
	jm, err := s.Jacobian(qm)
	if err != nil {
		return nil, err
	}
	var out mat.Dense
	out.Sub(jp, jm)
	out.Scale(1/(2*h), &out)
	return &out, nil
}

// WorldJacobian returns the 3xN translational and rotational
// Jacobians of the named link's frame origin, expressed in the base
// frame. Columns past the link's joint are zero.
func (s *Solver) WorldJacobian(q []float64, link string) (jp, jr *mat.Dense, err error) {
	frames, ee, err := s.frames(q)
	if err != nil {
		return nil, nil, err
	}
	idx := -1
	var point spatial.Vec3
	switch link {
	case s.m.BaseLink():
		// Fixed in the world: both Jacobians are zero.
		n := s.m.DOF()
		return mat.NewDense(3, n, nil), mat.NewDense(3, n, nil), nil
	case s.m.EndEffectorLink():
		idx = s.m.DOF() - 1
		point = ee.Pos
	default:
		for i := 0; i < s.m.DOF(); i++ {
			if s.m.Joint(i).Child == link {
				idx = i
				point = frames[i].Pos
				break
			}
		}
		if idx < 0 {
			return nil, nil, fmt.Errorf("unknown link %q", link)
		}
	}
	jp, jr = s.pointJacobian(frames, idx, point)
	return jp, jr, nil
}

// pointJacobian computes world-frame translational and rotational
// Jacobians of a point attached to the body after joint upTo.
func (s *Solver) pointJacobian(frames []spatial.Pose, upTo int, point spatial.Vec3) (jp, jr *mat.Dense) {
	n := s.m.DOF()
	jp = mat.NewDense(3, n, nil)
	jr = mat.NewDense(3, n, nil)
	for i := 0; i <= upTo; i++ {
		joint := s.m.Joint(i)
		axisW := frames[i].Rot.MulVec(joint.Axis)
		var vp, vr spatial.Vec3
		if joint.Type == model.Prismatic {
			vp = axisW
		} else {
			vr = axisW
			vp = axisW.Cross(point.Sub(frames[i].Pos))
		}
		jp.Set(0, i, vp.X)
		jp.Set(1, i, vp.Y)
		jp.Set(2, i, vp.Z)
		jr.Set(0, i, vr.X)
		jr.Set(1, i, vr.Y)
		jr.Set(2, i, vr.Z)
	}
	return jp, jr
}
