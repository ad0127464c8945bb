// Package env couples robot control to the physics engine: the
// multi-rate control loop that applies one controller decision per
// control tick while physics advances in fixed micro-steps, and a
// Gym-style task environment built on top of it.
package env

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/armsim/internal/robot"
	"github.com/san-kum/armsim/internal/spatial"
)

// Adapter is the physics-engine contract the loop drives. The adapter
// owns the live simulation state and is its single writer; reads are
// snapshots.
type Adapter interface {
	Timestep() float64
	Advance(nMicroSteps int) error
	ReadJointState() (q, qd []float64)
	ReadBodyPose(name string) (spatial.Pose, error)
	ReadBodyJacobian(name string) (jp, jr *mat.Dense, err error)
	WriteActuatorTarget(name string, value float64) error
	ResetToInitialPose(poseByJoint map[string]float64) error
}

// Controller converts a task-level action into actuator targets. Pure
// function of its inputs; no side effects expected.
type Controller interface {
	Targets(q, qd, action []float64) ([]float64, error)
}

// Metric accumulates a scalar over the control ticks of an episode.
type Metric interface {
	Name() string
	Observe(q, qd, u []float64, t float64)
	Value() float64
	Reset()
}

// Observer is notified once per control tick with the pre-step state
// and the applied targets.
type Observer interface {
	OnStep(q, qd, u []float64, t float64)
}

// Clock is the simulation time bookkeeping. StepCount counts physics
// micro-steps; control ticks are tracked by the loop.
type Clock struct {
	CurTime         float64
	StepCount       int
	ModelTimestep   float64
	ControlTimestep float64
}

// ConfigurationError reports invalid timestep configuration at
// construction. Fatal at startup.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "control loop configuration: " + e.Reason
}

// StateError reports a step call on a loop that was never reset. A
// programming error; the loop never resets on the caller's behalf.
type StateError struct {
	Op string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s called before reset", e.Op)
}

// Loop drives one robot assembly: it converts each action into
// actuator targets, advances physics by the derived micro-step count,
// and keeps the clock. Two states: idle until the first Reset, then
// running.
type Loop struct {
	adapter    Adapter
	assembly   *robot.Assembly
	ctrl       Controller
	actuators  []string
	clock      Clock
	microSteps int
	running    bool

	controlTicks int
	metrics      []Metric
	observers    []Observer
	logger       *zap.Logger
}

// NewLoop validates the control/physics rates and builds an idle loop.
// controlFreq is in Hz; the physics timestep comes from the adapter
// and must be strictly positive. The micro-step count per control
// tick is control_timestep/model_timestep rounded, and must be >= 1.
func NewLoop(adapter Adapter, assembly *robot.Assembly, ctrl Controller, controlFreq float64) (*Loop, error) {
	if err := assembly.Validate(); err != nil {
		return nil, err
	}
	modelTs := adapter.Timestep()
	if modelTs <= 0 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("model timestep must be positive, got %g", modelTs)}
	}
	if controlFreq <= 0 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("control frequency must be positive, got %g", controlFreq)}
	}
	controlTs := 1.0 / controlFreq
	micro := int(math.Round(controlTs / modelTs))
	if micro < 1 {
		return nil, &ConfigurationError{
			Reason: fmt.Sprintf("control timestep %g is below model timestep %g", controlTs, modelTs),
		}
	}
	return &Loop{
		adapter:   adapter,
		assembly:  assembly,
		ctrl:      ctrl,
		actuators: assembly.ActuatorNames(),
		clock: Clock{
			ModelTimestep:   modelTs,
			ControlTimestep: controlTs,
		},
		microSteps: micro,
		logger:     zap.NewNop(),
	}, nil
}

// SetLogger attaches a structured logger for per-tick diagnostics.
func (l *Loop) SetLogger(logger *zap.Logger) {
	if logger != nil {
		l.logger = logger
	}
}

func (l *Loop) AddMetric(m Metric)     { l.metrics = append(l.metrics, m) }
func (l *Loop) AddObserver(o Observer) { l.observers = append(l.observers, o) }

// Clock returns a copy of the simulation clock.
func (l *Loop) Clock() Clock { return l.clock }

// MicroSteps returns the physics micro-steps taken per control tick.
func (l *Loop) MicroSteps() int { return l.microSteps }

// ControlTicks returns the number of completed Step calls since the
// last Reset.
func (l *Loop) ControlTicks() int { return l.controlTicks }

// Adapter exposes the underlying physics adapter for read access.
func (l *Loop) Adapter() Adapter { return l.adapter }

// Reset re-applies the assembly's whole initial pose atomically,
// zeroes the clock, and settles derived quantities. Valid in both
// states; transitions the loop to running.
func (l *Loop) Reset() error {
	if err := l.adapter.ResetToInitialPose(l.assembly.InitialPoseByJoint()); err != nil {
		return err
	}
	if err := l.adapter.Advance(0); err != nil {
		return err
	}
	l.clock.CurTime = 0
	l.clock.StepCount = 0
	l.controlTicks = 0
	for _, m := range l.metrics {
		m.Reset()
	}
	l.running = true
	l.logger.Debug("loop reset", zap.String("task", l.assembly.Task))
	return nil
}

// StepState is the post-step joint state snapshot.
type StepState struct {
	Q    []float64
	Qdot []float64
	Time float64
}

// Step runs one control tick: controller decision, actuator writes,
// exactly one Advance of the derived micro-step count, clock update.
// Only valid while running.
func (l *Loop) Step(action []float64) (StepState, error) {
	if !l.running {
		return StepState{}, &StateError{Op: "step"}
	}

	q, qd := l.adapter.ReadJointState()
	u, err := l.ctrl.Targets(q, qd, action)
	if err != nil {
		return StepState{}, err
	}
	if len(u) != len(l.actuators) {
		return StepState{}, fmt.Errorf("controller produced %d targets for %d actuators",
			len(u), len(l.actuators))
	}

	for _, m := range l.metrics {
		m.Observe(q, qd, u, l.clock.CurTime)
	}
	for _, o := range l.observers {
		o.OnStep(q, qd, u, l.clock.CurTime)
	}

	for i, name := range l.actuators {
		if err := l.adapter.WriteActuatorTarget(name, u[i]); err != nil {
			return StepState{}, err
		}
	}
	if err := l.adapter.Advance(l.microSteps); err != nil {
		return StepState{}, err
	}

	l.clock.StepCount += l.microSteps
	l.clock.CurTime += float64(l.microSteps) * l.clock.ModelTimestep
	l.controlTicks++

	nq, nqd := l.adapter.ReadJointState()
	return StepState{Q: nq, Qdot: nqd, Time: l.clock.CurTime}, nil
}

// MetricValues snapshots all registered metrics.
func (l *Loop) MetricValues() map[string]float64 {
	out := make(map[string]float64, len(l.metrics))
	for _, m := range l.metrics {
		out[m.Name()] = m.Value()
	}
	return out
}
