package config

// Presets are per-task configuration deltas over Default.
var Presets = map[string]func() *Config{
	"reach": func() *Config {
		c := Default()
		c.Robot.Task = "reach"
		return c
	},
	"reach_random": func() *Config {
		c := Default()
		c.Robot.Task = "reach"
		c.Episode.RandomizeGoal = true
		return c
	},
	"grasp": func() *Config {
		c := Default()
		c.Robot.Task = "grasp"
		c.Episode.MaxSteps = 80
		return c
	},
	"drawer": func() *Config {
		c := Default()
		c.Robot.Task = "drawer"
		c.Episode.MaxSteps = 80
		return c
	},
	"cabinet": func() *Config {
		c := Default()
		c.Robot.Task = "cabinet"
		c.Episode.MaxSteps = 100
		return c
	},
	// Low-rate control against the same physics step: 50 Hz, 40
	// micro-steps per tick.
	"reach_slow": func() *Config {
		c := Default()
		c.Robot.Task = "reach"
		c.Control.Frequency = 50
		return c
	},
}

// Preset returns a fresh config for the named preset, or nil.
func Preset(name string) *Config {
	ctor, ok := Presets[name]
	if !ok {
		return nil
	}
	return ctor()
}
