package kinematics

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/armsim/internal/spatial"
)

// IKParams configures the iterative inverse-kinematics solve. The
// zero value is unusable; start from DefaultIKParams.
type IKParams struct {
	// Tolerance on the Euclidean norm of the 6-vector pose error.
	Tolerance float64 `yaml:"tolerance"`
	// MaxIterations bounds the fixed-point iteration.
	MaxIterations int `yaml:"max_iterations"`
	// StepScale is the dimensionless relaxation factor applied to
	// each joint-velocity step. Not a physical timestep.
	StepScale float64 `yaml:"step_scale"`
	// Damping regularizes the normal equations near singularities.
	// Purely numerical, not a physical parameter.
	Damping float64 `yaml:"damping"`
}

func DefaultIKParams() IKParams {
	return IKParams{
		Tolerance:     1e-4,
		MaxIterations: 1000,
		StepScale:     0.1,
		Damping:       1e-12,
	}
}

// IKResult is the outcome of an inverse-kinematics solve. Q is the
// best estimate reached, also populated when the solve fails to
// converge.
type IKResult struct {
	Q          []float64
	Iterations int
	Residual   float64
}

// ConvergenceError reports an inverse-kinematics solve that exhausted
// its iteration cap. BestEffort holds the final estimate so callers
// may still use it.
type ConvergenceError struct {
	BestEffort []float64
	Iterations int
	Residual   float64
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("inverse kinematics did not converge after %d iterations (residual %.3e)",
		e.Iterations, e.Residual)
}

// InverseKinematics solves for a joint configuration reaching the
// target end-effector pose, by closed-loop damped least squares:
// the pose error is the SE(3) logarithm of the relative transform
// between current and target pose, expressed in the end-effector
// frame, and each step solves the damped normal equations for a
// joint-velocity update integrated with the model's joint types.
//
// On ConvergenceError the returned result still carries the final
// estimate.
func (s *Solver) InverseKinematics(target spatial.Pose, qInit []float64, p IKParams) (IKResult, error) {
	if err := s.m.CheckDim(qInit); err != nil {
		return IKResult{}, err
	}
	q := make([]float64, len(qInit))
	copy(q, qInit)

	var jt, jjt mat.Dense
	var z, v mat.VecDense
	for it := 0; ; it++ {
		_, ee, err := s.frames(q)
		if err != nil {
			return IKResult{}, err
		}
		iMd := ee.Inverse().Mul(target)
		errTw := spatial.Log6(iMd)
		residual := errTw.Norm()

		if residual < p.Tolerance {
			return IKResult{Q: q, Iterations: it, Residual: residual}, nil
		}
		if it >= p.MaxIterations {
			return IKResult{Q: q, Iterations: it, Residual: residual},
				&ConvergenceError{BestEffort: q, Iterations: it, Residual: residual}
		}

		j, err := s.Jacobian(q)
		if err != nil {
			return IKResult{}, err
		}
		// Transform the body Jacobian by the logarithm-map Jacobian
		// of the relative pose so the step acts on the error 6-vector.
		jt.Mul(spatial.Jlog6(iMd.Inverse()), j)
		jt.Scale(-1, &jt)

		jjt.Mul(&jt, jt.T())
		for i := 0; i < 6; i++ {
			jjt.Set(i, i, jjt.At(i, i)+p.Damping)
		}
		errVec := mat.NewVecDense(6, errTw[:])
		if err := z.SolveVec(&jjt, errVec); err != nil {
			// The damped normal matrix is singular only at exact
			// numerical degeneracy; surface it as non-convergence.
			return IKResult{Q: q, Iterations: it, Residual: residual},
				&ConvergenceError{BestEffort: q, Iterations: it, Residual: residual}
		}
		v.MulVec(jt.T(), &z)
		v.ScaleVec(-1, &v)

		q, err = s.m.Integrate(q, v.RawVector().Data, p.StepScale)
		if err != nil {
			return IKResult{}, err
		}
	}
}
