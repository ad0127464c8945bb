package env

import (
	"errors"
	"math/rand"

	"github.com/san-kum/armsim/internal/kinematics"
	"github.com/san-kum/armsim/internal/model"
	"github.com/san-kum/armsim/internal/spatial"
)

// ReachConfig tunes the reach task.
type ReachConfig struct {
	// MaxEpisodeSteps truncates the episode.
	MaxEpisodeSteps int
	// ActionScale maps the [-1,1] action range to a position offset
	// in metres per control tick.
	ActionScale float64
	// GoalRadius is the success distance for the sparse reward.
	GoalRadius float64
	// Workspace bounds for the commanded end-effector position.
	PosMin, PosMax spatial.Vec3
	// RandomizeGoal samples a fresh goal inside the workspace on
	// every reset; otherwise Goal is used as-is.
	RandomizeGoal bool
	Goal          spatial.Vec3
	Seed          int64
	// IK parameters for converting position commands to joint targets.
	IK kinematics.IKParams
}

func DefaultReachConfig() ReachConfig {
	return ReachConfig{
		MaxEpisodeSteps: 50,
		ActionScale:     0.05,
		GoalRadius:      0.05,
		PosMin:          spatial.Vec3{X: 0.3, Y: -0.2, Z: 0.14},
		PosMax:          spatial.Vec3{X: 0.6, Y: 0.2, Z: 0.9},
		Goal:            spatial.Vec3{X: 0.4, Y: 0.0, Z: 0.9},
		IK:              kinematics.DefaultIKParams(),
	}
}

// ReachEnv is a Gym-style reach task: the action is a Cartesian
// position offset for the end effector, the reward is sparse on goal
// distance. Position commands become joint targets through inverse
// kinematics; a non-converged solve falls back to its best-effort
// estimate, matching the recoverable-error contract.
type ReachEnv struct {
	loop   *Loop
	solver *kinematics.Solver
	cfg    ReachConfig
	rng    *rand.Rand

	goal     spatial.Vec3
	episode  int
	tick     int
	ikMisses int
}

// NewReachEnv wraps a loop whose controller accepts joint-position
// targets (one per actuator).
func NewReachEnv(loop *Loop, solver *kinematics.Solver, cfg ReachConfig) *ReachEnv {
	if cfg.MaxEpisodeSteps <= 0 {
		cfg.MaxEpisodeSteps = 50
	}
	return &ReachEnv{
		loop:   loop,
		solver: solver,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}
}

func (e *ReachEnv) Goal() spatial.Vec3 { return e.goal }

func (e *ReachEnv) Loop() *Loop { return e.loop }

func (e *ReachEnv) Solver() *kinematics.Solver { return e.solver }

// IKMisses counts control ticks that used a best-effort IK estimate.
func (e *ReachEnv) IKMisses() int { return e.ikMisses }

// Reset starts a new episode and returns the first observation.
func (e *ReachEnv) Reset() ([]float64, error) {
	if err := e.loop.Reset(); err != nil {
		return nil, err
	}
	e.tick = 0
	e.ikMisses = 0
	e.episode++
	if e.cfg.RandomizeGoal {
		e.goal = spatial.Vec3{
			X: e.cfg.PosMin.X + e.rng.Float64()*(e.cfg.PosMax.X-e.cfg.PosMin.X),
			Y: e.cfg.PosMin.Y + e.rng.Float64()*(e.cfg.PosMax.Y-e.cfg.PosMin.Y),
			Z: e.cfg.PosMin.Z + e.rng.Float64()*(e.cfg.PosMax.Z-e.cfg.PosMin.Z),
		}
	} else {
		e.goal = e.cfg.Goal
	}
	return e.observe()
}

// Step applies a 3-dimensional position-offset action in [-1,1] and
// returns (observation, reward, terminated, truncated).
func (e *ReachEnv) Step(action []float64) ([]float64, float64, bool, bool, error) {
	if len(action) != 3 {
		return nil, 0, false, false, &model.DimensionError{Want: 3, Got: len(action)}
	}
	q, _ := e.loop.Adapter().ReadJointState()
	ee, err := e.solver.ForwardKinematics(q)
	if err != nil {
		return nil, 0, false, false, err
	}

	desired := ee.Pos.Add(spatial.Vec3{
		X: action[0] * e.cfg.ActionScale,
		Y: action[1] * e.cfg.ActionScale,
		Z: action[2] * e.cfg.ActionScale,
	})
	desired = clipVec(desired, e.cfg.PosMin, e.cfg.PosMax)

	res, err := e.solver.InverseKinematics(
		spatial.Pose{Pos: desired, Rot: ee.Rot}, q, e.cfg.IK)
	if err != nil {
		var conv *kinematics.ConvergenceError
		if !errors.As(err, &conv) {
			return nil, 0, false, false, err
		}
		e.ikMisses++
	}

	if _, err := e.loop.Step(res.Q); err != nil {
		return nil, 0, false, false, err
	}
	e.tick++

	obs, err := e.observe()
	if err != nil {
		return nil, 0, false, false, err
	}
	reward := e.reward(obs)
	truncated := e.tick >= e.cfg.MaxEpisodeSteps
	return obs, reward, false, truncated, nil
}

// observe returns [ee(3), goal(3), ee-goal(3), q(n), qd(n)].
func (e *ReachEnv) observe() ([]float64, error) {
	q, qd := e.loop.Adapter().ReadJointState()
	ee, err := e.solver.ForwardKinematics(q)
	if err != nil {
		return nil, err
	}
	obs := make([]float64, 0, 9+2*len(q))
	obs = append(obs, ee.Pos.X, ee.Pos.Y, ee.Pos.Z)
	obs = append(obs, e.goal.X, e.goal.Y, e.goal.Z)
	diff := ee.Pos.Sub(e.goal)
	obs = append(obs, diff.X, diff.Y, diff.Z)
	obs = append(obs, q...)
	obs = append(obs, qd...)
	return obs, nil
}

// reward is sparse: 0 at the goal, -1 away from it.
func (e *ReachEnv) reward(obs []float64) float64 {
	diff := spatial.Vec3{X: obs[6], Y: obs[7], Z: obs[8]}
	if diff.Norm() > e.cfg.GoalRadius {
		return -1
	}
	return 0
}

func clipVec(v, lo, hi spatial.Vec3) spatial.Vec3 {
	clip := func(x, a, b float64) float64 {
		if x < a {
			return a
		}
		if x > b {
			return b
		}
		return x
	}
	return spatial.Vec3{
		X: clip(v.X, lo.X, hi.X),
		Y: clip(v.Y, lo.Y, hi.Y),
		Z: clip(v.Z, lo.Z, hi.Z),
	}
}
