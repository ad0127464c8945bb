// Package engine provides the physics-side contract of the simulation:
// advance-by-timestep, joint/body state readbacks, Jacobian readbacks,
// staged actuator targets, and atomic reset.
//
// ChainEngine is the built-in implementation, integrating the chain's
// forward dynamics M(q) qdd = tau - C(q,qd) qd - g(q) with per-joint
// position-servo actuators.
package engine

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/armsim/internal/kinematics"
	"github.com/san-kum/armsim/internal/model"
	"github.com/san-kum/armsim/internal/spatial"
)

// StateDivergedError reports non-finite generalized coordinates. It is
// fatal to the episode; the engine makes no attempt at numerical
// repair.
type StateDivergedError struct {
	Step int
}

func (e *StateDivergedError) Error() string {
	return fmt.Sprintf("engine: non-finite state after micro-step %d", e.Step)
}

// Options tune the built-in engine.
type Options struct {
	Integrator Integrator
	// Servo gains shared by all actuators.
	Kp float64
	Kd float64
}

func DefaultOptions() Options {
	return Options{Integrator: NewRK4(), Kp: 80, Kd: 12}
}

// ChainEngine owns the live mutable simulation state and is its single
// writer. All readbacks return copies, never aliases.
type ChainEngine struct {
	m      *model.Model
	solver *kinematics.Solver
	integ  Integrator
	dt     float64
	kp, kd float64

	q, qd    []float64
	targets  []float64
	actIndex map[string]int

	// Derived poses, refreshed by the consistency pass after every
	// advance and reset.
	poses map[string]spatial.Pose
}

// New builds an engine for the model with one position actuator per
// joint, named by actuators in joint order. The timestep must be
// strictly positive.
func New(m *model.Model, actuators []string, dt float64, opts Options) (*ChainEngine, error) {
	if dt <= 0 {
		return nil, fmt.Errorf("engine: timestep must be positive, got %g", dt)
	}
	if len(actuators) != m.DOF() {
		return nil, fmt.Errorf("engine: %d actuators for %d joints", len(actuators), m.DOF())
	}
	if opts.Integrator == nil {
		opts.Integrator = NewRK4()
	}
	actIndex := make(map[string]int, len(actuators))
	for i, name := range actuators {
		if _, dup := actIndex[name]; dup {
			return nil, fmt.Errorf("engine: duplicate actuator %q", name)
		}
		actIndex[name] = i
	}
	n := m.DOF()
	e := &ChainEngine{
		m:        m,
		solver:   kinematics.New(m),
		integ:    opts.Integrator,
		dt:       dt,
		kp:       opts.Kp,
		kd:       opts.Kd,
		q:        make([]float64, n),
		qd:       make([]float64, n),
		targets:  make([]float64, n),
		actIndex: actIndex,
		poses:    make(map[string]spatial.Pose),
	}
	e.refreshPoses()
	return e, nil
}

// Timestep returns the fixed internal integration step.
func (e *ChainEngine) Timestep() float64 { return e.dt }

// Advance integrates n micro-steps with the currently staged actuator
// targets. Advance(0) only re-runs the kinematic consistency pass.
func (e *ChainEngine) Advance(n int) error {
	if n < 0 {
		return fmt.Errorf("engine: negative micro-step count %d", n)
	}
	dof := e.m.DOF()
	x := make([]float64, 2*dof)
	copy(x, e.q)
	copy(x[dof:], e.qd)

	for step := 0; step < n; step++ {
		x = e.integ.Step(e.derivative, x, e.dt)
		for _, v := range x {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return &StateDivergedError{Step: step}
			}
		}
	}
	copy(e.q, x[:dof])
	copy(e.qd, x[dof:])
	e.refreshPoses()
	return nil
}

// derivative is the forward-dynamics right-hand side for the state
// [q, qd], with servo torques evaluated at the intermediate state.
func (e *ChainEngine) derivative(x []float64) []float64 {
	dof := e.m.DOF()
	q := x[:dof]
	qd := x[dof:]

	tau := make([]float64, dof)
	for i := 0; i < dof; i++ {
		u := e.kp*(e.targets[i]-q[i]) - e.kd*qd[i]
		if eff := e.m.Joint(i).Effort; eff > 0 {
			if u > eff {
				u = eff
			} else if u < -eff {
				u = -eff
			}
		}
		tau[i] = u
	}

	im, err := e.solver.InertiaMatrix(q)
	if err != nil {
		// Dimension errors cannot occur here; q is model-sized.
		panic(err)
	}
	cm, err := e.solver.CoriolisMatrix(q, qd)
	if err != nil {
		panic(err)
	}
	g, err := e.solver.GravityVector(q)
	if err != nil {
		panic(err)
	}

	rhs := mat.NewVecDense(dof, nil)
	cqd := mat.NewVecDense(dof, nil)
	cqd.MulVec(cm, mat.NewVecDense(dof, qd))
	for i := 0; i < dof; i++ {
		rhs.SetVec(i, tau[i]-cqd.AtVec(i)-g[i])
	}

	var qdd mat.VecDense
	var chol mat.Cholesky
	if chol.Factorize(im) {
		if err := chol.SolveVecTo(&qdd, rhs); err != nil {
			qdd.SolveVec(im, rhs)
		}
	} else {
		// Fall back to a general solve when rounding spoils
		// positive-definiteness.
		qdd.SolveVec(im, rhs)
	}

	dx := make([]float64, 2*dof)
	copy(dx, qd)
	for i := 0; i < dof; i++ {
		dx[dof+i] = qdd.AtVec(i)
	}
	return dx
}

func (e *ChainEngine) refreshPoses() {
	frames, err := e.solver.LinkPoses(e.q)
	if err != nil {
		panic(err)
	}
	e.poses[e.m.BaseLink()] = spatial.IdentityPose()
	for i, f := range frames {
		e.poses[e.m.Joint(i).Child] = f
	}
	ee, err := e.solver.ForwardKinematics(e.q)
	if err != nil {
		panic(err)
	}
	e.poses[e.m.EndEffectorLink()] = ee
}

// ReadJointState returns copies of the joint positions and velocities.
func (e *ChainEngine) ReadJointState() (q, qd []float64) {
	q = make([]float64, len(e.q))
	qd = make([]float64, len(e.qd))
	copy(q, e.q)
	copy(qd, e.qd)
	return q, qd
}

// ReadBodyPose returns the named link's base-frame pose as of the last
// advance or reset.
func (e *ChainEngine) ReadBodyPose(name string) (spatial.Pose, error) {
	p, ok := e.poses[name]
	if !ok {
		return spatial.Pose{}, fmt.Errorf("engine: unknown body %q", name)
	}
	return p, nil
}

// ReadBodyJacobian returns the named link's world-frame translational
// and rotational Jacobians at the current configuration.
func (e *ChainEngine) ReadBodyJacobian(name string) (jp, jr *mat.Dense, err error) {
	return e.solver.WorldJacobian(e.q, name)
}

// WriteActuatorTarget stages one actuator command; it takes effect at
// the next Advance. Repeated writes before an Advance overwrite.
func (e *ChainEngine) WriteActuatorTarget(name string, value float64) error {
	i, ok := e.actIndex[name]
	if !ok {
		return fmt.Errorf("engine: unknown actuator %q", name)
	}
	e.targets[i] = value
	return nil
}

// ResetToInitialPose atomically overwrites all joint positions and
// velocities, re-stages targets to hold the pose, and runs a
// zero-duration consistency pass so derived poses and Jacobians are
// valid before the first Advance. The pose must name every joint
// exactly once.
func (e *ChainEngine) ResetToInitialPose(poseByJoint map[string]float64) error {
	if len(poseByJoint) != e.m.DOF() {
		return fmt.Errorf("engine: initial pose names %d joints, model has %d",
			len(poseByJoint), e.m.DOF())
	}
	next := make([]float64, e.m.DOF())
	for name, value := range poseByJoint {
		i := e.m.JointIndex(name)
		if i < 0 {
			return fmt.Errorf("engine: initial pose references unknown joint %q", name)
		}
		next[i] = value
	}
	copy(e.q, next)
	copy(e.targets, next)
	for i := range e.qd {
		e.qd[i] = 0
	}
	e.refreshPoses()
	return nil
}
