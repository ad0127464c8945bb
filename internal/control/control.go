// Package control provides controller plug-ins for the control loop:
// pure functions from (q, qdot, action) to actuator targets.
package control

import (
	"github.com/san-kum/armsim/internal/kinematics"
	"github.com/san-kum/armsim/internal/model"
	"github.com/san-kum/armsim/internal/spatial"
)

// JointPosition passes the action through as absolute joint-position
// targets, one per actuator.
type JointPosition struct {
	dof int
}

func NewJointPosition(dof int) *JointPosition {
	return &JointPosition{dof: dof}
}

func (c *JointPosition) Targets(q, qd, action []float64) ([]float64, error) {
	if len(action) != c.dof {
		return nil, &model.DimensionError{Want: c.dof, Got: len(action)}
	}
	out := make([]float64, len(action))
	copy(out, action)
	return out, nil
}

// Cartesian converts a desired end-effector position into joint
// targets through inverse kinematics, holding the current
// orientation. The action is the absolute target position (x, y, z)
// in the base frame.
//
// On a ConvergenceError the best-effort targets are returned alongside
// the error, so callers may treat non-convergence as "skip this step"
// or use the estimate anyway.
type Cartesian struct {
	solver *kinematics.Solver
	params kinematics.IKParams
}

func NewCartesian(solver *kinematics.Solver, params kinematics.IKParams) *Cartesian {
	return &Cartesian{solver: solver, params: params}
}

func (c *Cartesian) Targets(q, qd, action []float64) ([]float64, error) {
	if len(action) != 3 {
		return nil, &model.DimensionError{Want: 3, Got: len(action)}
	}
	cur, err := c.solver.ForwardKinematics(q)
	if err != nil {
		return nil, err
	}
	target := spatial.Pose{
		Pos: spatial.Vec3{X: action[0], Y: action[1], Z: action[2]},
		Rot: cur.Rot,
	}
	res, err := c.solver.InverseKinematics(target, q, c.params)
	if err != nil {
		return res.Q, err
	}
	return res.Q, nil
}
