// Package config holds the YAML-backed runtime configuration:
// robot/task selection, control and engine rates, solver parameters.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/armsim/internal/kinematics"
)

const (
	DefaultControlFreq = 200.0
	DefaultTimestep    = 0.0005
	DefaultKp          = 80.0
	DefaultKd          = 12.0
	DefaultMaxSteps    = 50
)

type Config struct {
	Robot   RobotConfig         `yaml:"robot"`
	Engine  EngineConfig        `yaml:"engine"`
	Control ControlConfig       `yaml:"control"`
	IK      kinematics.IKParams `yaml:"ik"`
	Episode EpisodeConfig       `yaml:"episode"`
}

type RobotConfig struct {
	// URDF is the model description path; empty selects the built-in
	// seven-DOF arm.
	URDF string `yaml:"urdf"`
	Task string `yaml:"task"`
}

type EngineConfig struct {
	Timestep   float64 `yaml:"timestep"`
	Integrator string  `yaml:"integrator"`
	Kp         float64 `yaml:"kp"`
	Kd         float64 `yaml:"kd"`
}

type ControlConfig struct {
	Frequency  float64 `yaml:"frequency"`
	Controller string  `yaml:"controller"`
}

type EpisodeConfig struct {
	MaxSteps      int   `yaml:"max_steps"`
	Seed          int64 `yaml:"seed"`
	RandomizeGoal bool  `yaml:"randomize_goal"`
}

func Default() *Config {
	return &Config{
		Robot: RobotConfig{Task: "reach"},
		Engine: EngineConfig{
			Timestep:   DefaultTimestep,
			Integrator: "rk4",
			Kp:         DefaultKp,
			Kd:         DefaultKd,
		},
		Control: ControlConfig{
			Frequency:  DefaultControlFreq,
			Controller: "joint",
		},
		IK: kinematics.DefaultIKParams(),
		Episode: EpisodeConfig{
			MaxSteps: DefaultMaxSteps,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate rejects configurations the loop or engine would refuse at
// construction.
func (c *Config) Validate() error {
	if c.Engine.Timestep <= 0 {
		return fmt.Errorf("engine timestep must be positive, got %g", c.Engine.Timestep)
	}
	if c.Control.Frequency <= 0 {
		return fmt.Errorf("control frequency must be positive, got %g", c.Control.Frequency)
	}
	if 1.0/c.Control.Frequency < c.Engine.Timestep {
		return fmt.Errorf("control timestep %g is below engine timestep %g",
			1.0/c.Control.Frequency, c.Engine.Timestep)
	}
	if c.IK.Tolerance <= 0 || c.IK.MaxIterations <= 0 || c.IK.StepScale <= 0 {
		return fmt.Errorf("ik parameters must be positive")
	}
	return nil
}
