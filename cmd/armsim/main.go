package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/armsim/internal/config"
	"github.com/san-kum/armsim/internal/control"
	"github.com/san-kum/armsim/internal/engine"
	"github.com/san-kum/armsim/internal/env"
	"github.com/san-kum/armsim/internal/kinematics"
	"github.com/san-kum/armsim/internal/metrics"
	"github.com/san-kum/armsim/internal/model"
	"github.com/san-kum/armsim/internal/robot"
	"github.com/san-kum/armsim/internal/spatial"
	"github.com/san-kum/armsim/internal/storage"
	"github.com/san-kum/armsim/internal/tui"
)

var (
	dataDir     string
	configFile  string
	urdfPath    string
	timestep    float64
	controlFreq float64
	integrator  string
	kp          float64
	kd          float64
	maxSteps    int
	seed        int64
	randomGoal  bool
	goalFlag    string
	frameRate   int
	watch       bool
	verbose     bool
	// fk/ik inputs
	qFlag   string
	posFlag string
	rpyFlag string
	tol     float64
	maxIter int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "armsim",
		Short: "robot arm kinematics and control sandbox",
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".armsim", "data directory")
	rootCmd.PersistentFlags().StringVar(&urdfPath, "urdf", "", "robot description path (default: built-in 7-dof arm)")

	runCmd := &cobra.Command{
		Use:   "run [preset]",
		Short: "run one reach episode with a scripted policy",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runEpisode,
	}
	runCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	runCmd.Flags().Float64Var(&timestep, "dt", config.DefaultTimestep, "physics timestep")
	runCmd.Flags().Float64Var(&controlFreq, "freq", config.DefaultControlFreq, "control frequency (hz)")
	runCmd.Flags().StringVar(&integrator, "integrator", "rk4", "integrator (rk4, euler)")
	runCmd.Flags().Float64Var(&kp, "kp", config.DefaultKp, "servo kp")
	runCmd.Flags().Float64Var(&kd, "kd", config.DefaultKd, "servo kd")
	runCmd.Flags().IntVar(&maxSteps, "steps", config.DefaultMaxSteps, "episode length in control ticks")
	runCmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "random seed")
	runCmd.Flags().BoolVar(&randomGoal, "random-goal", false, "sample the goal inside the workspace")
	runCmd.Flags().StringVar(&goalFlag, "goal", "", "goal position x,y,z")
	runCmd.Flags().BoolVar(&watch, "watch", false, "render the arm while running")
	runCmd.Flags().IntVar(&frameRate, "fps", 30, "frame rate for --watch")
	runCmd.Flags().BoolVar(&verbose, "verbose", false, "per-tick logging")

	liveCmd := &cobra.Command{
		Use:   "live [preset]",
		Short: "interactive episode viewer",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runInteractive,
	}
	liveCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	liveCmd.Flags().BoolVar(&randomGoal, "random-goal", false, "sample the goal inside the workspace")
	liveCmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "random seed")

	fkCmd := &cobra.Command{
		Use:   "fk",
		Short: "forward kinematics for a joint vector",
		RunE:  runFK,
	}
	fkCmd.Flags().StringVar(&qFlag, "q", "", "joint positions, comma separated")

	ikCmd := &cobra.Command{
		Use:   "ik",
		Short: "inverse kinematics for a target pose",
		RunE:  runIK,
	}
	ikCmd.Flags().StringVar(&posFlag, "pos", "", "target position x,y,z")
	ikCmd.Flags().StringVar(&rpyFlag, "rpy", "", "target orientation roll,pitch,yaw (default: hold initial)")
	ikCmd.Flags().StringVar(&qFlag, "q", "", "initial joint guess, comma separated")
	ikCmd.Flags().Float64Var(&tol, "tol", 1e-4, "convergence tolerance")
	ikCmd.Flags().IntVar(&maxIter, "max-iter", 1000, "iteration cap")

	describeCmd := &cobra.Command{
		Use:   "describe",
		Short: "print the robot description",
		RunE:  describeRobot,
	}

	sceneCmd := &cobra.Command{
		Use:   "scene [task]",
		Short: "print the generated scene for a task",
		Args:  cobra.MaximumNArgs(1),
		RunE:  printScene,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list saved runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot joint trajectories of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run metadata as json",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := make([]string, 0, len(config.Presets))
			for name := range config.Presets {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				c := config.Presets[name]()
				fmt.Printf("  %-14s task=%s freq=%ghz steps=%d\n",
					name, c.Robot.Task, c.Control.Frequency, c.Episode.MaxSteps)
			}
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, liveCmd, fkCmd, ikCmd, describeCmd, sceneCmd, listCmd, plotCmd, exportCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfig layers preset, config file and explicit flags, in that
// order of increasing precedence.
func resolveConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.Default()
	if len(args) > 0 {
		cfg = config.Preset(args[0])
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s", args[0])
		}
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if urdfPath != "" {
		cfg.Robot.URDF = urdfPath
	}
	f := cmd.Flags()
	if f.Changed("dt") {
		cfg.Engine.Timestep = timestep
	}
	if f.Changed("freq") {
		cfg.Control.Frequency = controlFreq
	}
	if f.Changed("integrator") {
		cfg.Engine.Integrator = integrator
	}
	if f.Changed("kp") {
		cfg.Engine.Kp = kp
	}
	if f.Changed("kd") {
		cfg.Engine.Kd = kd
	}
	if f.Changed("steps") {
		cfg.Episode.MaxSteps = maxSteps
	}
	if f.Changed("seed") {
		cfg.Episode.Seed = seed
	}
	if f.Changed("random-goal") {
		cfg.Episode.RandomizeGoal = randomGoal
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadModel(cfg *config.Config) (*model.Model, error) {
	if cfg.Robot.URDF != "" {
		return model.Load(cfg.Robot.URDF)
	}
	return model.Parse(robot.DefaultURDF())
}

func pickIntegrator(name string) (engine.Integrator, error) {
	switch name {
	case "rk4", "":
		return engine.NewRK4(), nil
	case "euler":
		return engine.NewEuler(), nil
	default:
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
}

// buildEnv wires model, engine, loop and reach task from a config.
func buildEnv(cfg *config.Config) (*env.ReachEnv, *robot.Assembly, error) {
	m, err := loadModel(cfg)
	if err != nil {
		return nil, nil, err
	}
	asm, err := robot.Variant(cfg.Robot.Task)
	if err != nil {
		return nil, nil, err
	}
	if err := asm.CheckModel(m); err != nil {
		return nil, nil, err
	}
	integ, err := pickIntegrator(cfg.Engine.Integrator)
	if err != nil {
		return nil, nil, err
	}
	eng, err := engine.New(m, asm.ActuatorNames(), cfg.Engine.Timestep, engine.Options{
		Integrator: integ,
		Kp:         cfg.Engine.Kp,
		Kd:         cfg.Engine.Kd,
	})
	if err != nil {
		return nil, nil, err
	}
	loop, err := env.NewLoop(eng, asm, control.NewJointPosition(m.DOF()), cfg.Control.Frequency)
	if err != nil {
		return nil, nil, err
	}
	loop.AddMetric(metrics.NewTrackingError())
	loop.AddMetric(metrics.NewControlEffort())

	rc := env.DefaultReachConfig()
	rc.MaxEpisodeSteps = cfg.Episode.MaxSteps
	rc.Seed = cfg.Episode.Seed
	rc.RandomizeGoal = cfg.Episode.RandomizeGoal
	rc.IK = cfg.IK
	if goalFlag != "" {
		goal, err := parseVec3(goalFlag)
		if err != nil {
			return nil, nil, fmt.Errorf("bad --goal: %w", err)
		}
		rc.Goal = goal
	}
	return env.NewReachEnv(loop, kinematics.New(m), rc), asm, nil
}

func runEpisode(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	e, asm, err := buildEnv(cfg)
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	if verbose {
		logger, err = zap.NewDevelopment()
		if err != nil {
			return err
		}
		defer logger.Sync()
	}
	e.Loop().SetLogger(logger)

	var renderer *tui.LiveRenderer
	if watch {
		renderer = tui.NewLiveRenderer(asm.Task, frameRate)
		renderer.Start()
		defer renderer.Stop()
	}

	if _, err := e.Reset(); err != nil {
		return err
	}
	goal := e.Goal()
	fmt.Printf("task: %s  goal: (%.3f %.3f %.3f)\n", asm.Task, goal.X, goal.Y, goal.Z)

	solver := e.Solver()
	rec := &storage.EpisodeRecord{}
	var dists []float64
	ret := 0.0
	start := time.Now()

	for tick := 0; ; tick++ {
		q, _ := e.Loop().Adapter().ReadJointState()
		ee, err := solver.ForwardKinematics(q)
		if err != nil {
			return err
		}
		diff := goal.Sub(ee.Pos)
		dists = append(dists, diff.Norm())
		rec.Times = append(rec.Times, e.Loop().Clock().CurTime)
		rec.States = append(rec.States, append([]float64(nil), q...))

		scale := env.DefaultReachConfig().ActionScale
		action := []float64{
			clamp(diff.X/scale, -1, 1),
			clamp(diff.Y/scale, -1, 1),
			clamp(diff.Z/scale, -1, 1),
		}
		_, reward, terminated, truncated, err := e.Step(action)
		if err != nil {
			return err
		}
		rec.Rewards = append(rec.Rewards, reward)
		ret += reward

		if renderer != nil {
			joints := jointPositions(solver, q)
			renderer.OnStep(joints, ee.Pos, goal, e.Loop().Clock().CurTime)
		}
		logger.Debug("tick",
			zap.Int("n", tick),
			zap.Float64("dist", diff.Norm()),
			zap.Float64("reward", reward))

		if terminated || truncated {
			break
		}
	}
	elapsed := time.Since(start)

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	vals := e.Loop().MetricValues()
	runID, err := st.Save(storage.RunMetadata{
		Task:        asm.Task,
		Seed:        cfg.Episode.Seed,
		Timestep:    cfg.Engine.Timestep,
		ControlFreq: cfg.Control.Frequency,
		IKMisses:    e.IKMisses(),
		Metrics:     vals,
	}, rec)
	if err != nil {
		return err
	}

	clock := e.Loop().Clock()
	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TICKS\tMICRO-STEPS\tSIM TIME\tRETURN\tFINAL DIST\tIK MISSES")
	fmt.Fprintf(w, "%d\t%d\t%.3fs\t%+.0f\t%.4f\t%d\n",
		e.Loop().ControlTicks(), clock.StepCount, clock.CurTime, ret,
		dists[len(dists)-1], e.IKMisses())
	w.Flush()

	if len(vals) > 0 {
		fmt.Println("\nmetrics:")
		names := make([]string, 0, len(vals))
		for name := range vals {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %s: %.6f\n", name, vals[name])
		}
	}

	fmt.Println()
	fmt.Println(asciigraph.Plot(dists,
		asciigraph.Height(10),
		asciigraph.Width(70),
		asciigraph.Caption("goal distance vs control tick"),
	))
	return nil
}

func runInteractive(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	e, asm, err := buildEnv(cfg)
	if err != nil {
		return err
	}
	m := tui.NewModel(e, asm.Task, env.DefaultReachConfig().ActionScale)
	_, err = tea.NewProgram(m).Run()
	return err
}

func runFK(cmd *cobra.Command, args []string) error {
	m, err := loadModel(config.Default())
	if err != nil {
		return err
	}
	q, err := jointVector(m, qFlag)
	if err != nil {
		return err
	}
	solver := kinematics.New(m)
	pose, err := solver.ForwardKinematics(q)
	if err != nil {
		return err
	}
	quat := spatial.MatToQuat(pose.Rot)
	fmt.Printf("position: (%.6f %.6f %.6f)\n", pose.Pos.X, pose.Pos.Y, pose.Pos.Z)
	fmt.Printf("quaternion (w x y z): (%.6f %.6f %.6f %.6f)\n", quat.W, quat.X, quat.Y, quat.Z)
	return nil
}

func runIK(cmd *cobra.Command, args []string) error {
	if posFlag == "" {
		return fmt.Errorf("--pos is required")
	}
	m, err := loadModel(config.Default())
	if err != nil {
		return err
	}
	pos, err := parseVec3(posFlag)
	if err != nil {
		return fmt.Errorf("bad --pos: %w", err)
	}
	qInit, err := jointVector(m, qFlag)
	if err != nil {
		return err
	}
	solver := kinematics.New(m)

	var rot spatial.Mat3
	if rpyFlag != "" {
		rpy, err := parseVec3(rpyFlag)
		if err != nil {
			return fmt.Errorf("bad --rpy: %w", err)
		}
		rot = spatial.FromRPY(rpy.X, rpy.Y, rpy.Z)
	} else {
		init, err := solver.ForwardKinematics(qInit)
		if err != nil {
			return err
		}
		rot = init.Rot
	}

	params := kinematics.DefaultIKParams()
	params.Tolerance = tol
	params.MaxIterations = maxIter
	res, err := solver.InverseKinematics(spatial.Pose{Pos: pos, Rot: rot}, qInit, params)
	if err != nil {
		return err
	}
	fmt.Printf("converged in %d iterations, residual %.2e\n", res.Iterations, res.Residual)
	for i, v := range res.Q {
		fmt.Printf("  %s: %.6f\n", m.JointNames()[i], v)
	}
	check, err := solver.ForwardKinematics(res.Q)
	if err == nil {
		fmt.Printf("reached: (%.6f %.6f %.6f)\n", check.Pos.X, check.Pos.Y, check.Pos.Z)
	}
	return nil
}

func describeRobot(cmd *cobra.Command, args []string) error {
	m, err := loadModel(config.Default())
	if err != nil {
		return err
	}
	fmt.Printf("model: %s\n", m.Name())
	fmt.Printf("dof: %d\n", m.DOF())
	fmt.Printf("base: %s  end effector: %s\n\n", m.BaseLink(), m.EndEffectorLink())

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOINT\tTYPE\tAXIS\tLOWER\tUPPER\tEFFORT")
	for i := 0; i < m.DOF(); i++ {
		j := m.Joint(i)
		fmt.Fprintf(w, "%s\t%s\t(%g %g %g)\t%.3f\t%.3f\t%.0f\n",
			j.Name, j.Type, j.Axis.X, j.Axis.Y, j.Axis.Z, j.Lower, j.Upper, j.Effort)
	}
	w.Flush()

	fmt.Println("\ntasks:")
	for _, task := range robot.Tasks() {
		fmt.Printf("  %s\n", task)
	}
	return nil
}

func printScene(cmd *cobra.Command, args []string) error {
	task := "reach"
	if len(args) > 0 {
		task = args[0]
	}
	asm, err := robot.Variant(task)
	if err != nil {
		return err
	}
	data, err := asm.BuildScene()
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTASK\tTIME\tSTEPS\tDT\tFREQ\tIK MISSES")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.4gs\t%ghz\t%d\n",
			run.ID,
			run.Task,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Steps,
			run.Timestep,
			run.ControlFreq,
			run.IKMisses,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	_, cols, err := st.LoadStates(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("run: %s  task: %s  samples: %d\n\n", meta.ID, meta.Task, meta.Steps)

	// last column is the reward
	maxPlots := 8
	for i, col := range cols {
		if i >= maxPlots {
			break
		}
		caption := fmt.Sprintf("q%d vs time", i)
		if i == len(cols)-1 {
			caption = "reward vs time"
		}
		fmt.Println(asciigraph.Plot(col,
			asciigraph.Height(8),
			asciigraph.Width(70),
			asciigraph.Caption(caption),
		))
		fmt.Println()
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func jointPositions(solver *kinematics.Solver, q []float64) []spatial.Vec3 {
	poses, err := solver.LinkPoses(q)
	if err != nil {
		return nil
	}
	out := make([]spatial.Vec3, len(poses))
	for i, p := range poses {
		out[i] = p.Pos
	}
	return out
}

func jointVector(m *model.Model, s string) ([]float64, error) {
	if s == "" {
		return make([]float64, m.DOF()), nil
	}
	q, err := parseFloats(s)
	if err != nil {
		return nil, fmt.Errorf("bad --q: %w", err)
	}
	if len(q) != m.DOF() {
		return nil, &model.DimensionError{Want: m.DOF(), Got: len(q)}
	}
	return q, nil
}

func parseFloats(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func parseVec3(s string) (spatial.Vec3, error) {
	vals, err := parseFloats(s)
	if err != nil {
		return spatial.Vec3{}, err
	}
	if len(vals) != 3 {
		return spatial.Vec3{}, fmt.Errorf("want 3 values, got %d", len(vals))
	}
	return spatial.Vec3{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
