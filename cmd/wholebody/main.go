package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/wholebody/internal/analysis"
	"github.com/san-kum/wholebody/internal/config"
	"github.com/san-kum/wholebody/internal/control"
	"github.com/san-kum/wholebody/internal/experiment"
	"github.com/san-kum/wholebody/internal/export"
	"github.com/san-kum/wholebody/internal/logging"
	"github.com/san-kum/wholebody/internal/optim"
	"github.com/san-kum/wholebody/internal/scenario"
	"github.com/san-kum/wholebody/internal/sim"
	"github.com/san-kum/wholebody/internal/storage"
	"github.com/san-kum/wholebody/internal/viz"
)

var (
	dataDir    string
	debug      bool
	jsonLog    bool
	configFile string
	preset     string
	seed       int64
	duration   float64
	solver     string
	plant      string
	integrator string
	noise      float64
	exportPath string
	cutoff     float64
	xColumn    string
	yColumn    string
	sweepGrid  []string
	metricName string
	frontView  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "wholebody",
		Short:        "whole-body inverse dynamics controller lab",
		SilenceUsage: true,
		RunE:         pickAndRun,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".wholebody", "data directory")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLog, "json-log", false, "log as JSON")

	runCmd := &cobra.Command{
		Use:   "run [robot]",
		Short: "run a closed-loop simulation and store the traces",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	addConfigFlags(runCmd)
	runCmd.Flags().StringVar(&exportPath, "json", "", "also export the full result as JSON")

	checkCmd := &cobra.Command{
		Use:   "check [robot]",
		Short: "solve one tick and compare against inverse dynamics",
		Args:  cobra.MaximumNArgs(1),
		RunE:  checkRobot,
	}
	addConfigFlags(checkCmd)

	liveCmd := &cobra.Command{
		Use:   "live [robot]",
		Short: "run in real time with a terminal monitor",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addConfigFlags(liveCmd)

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run a scripted scenario",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}
	addConfigFlags(scenarioCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot torques, base height and contact forces of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "print run metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [robot]",
		Short: "list presets",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	robotsCmd := &cobra.Command{
		Use:   "robots",
		Short: "list robots and solver backends",
		Run: func(cmd *cobra.Command, args []string) {
			reg := experiment.NewRegistry()
			fmt.Println("robots:")
			for _, r := range reg.ListRobots() {
				fmt.Printf("  %s\n", r)
			}
			fmt.Println("solvers:")
			for _, s := range reg.ListSolvers() {
				fmt.Printf("  %s\n", s)
			}
		},
	}

	initCmd := &cobra.Command{
		Use:   "init-config [path]",
		Short: "write the default configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.Save(args[0], config.DefaultConfig())
		},
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "frequency analysis of joint torques",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().Float64Var(&cutoff, "cutoff", 10, "chatter cutoff frequency (Hz)")

	phaseCmd := &cobra.Command{
		Use:   "phase [run_id]",
		Short: "plot one trace column against another",
		Args:  cobra.ExactArgs(1),
		RunE:  phasePlot,
	}
	phaseCmd.Flags().StringVar(&xColumn, "x", "base_height", "column for the x axis")
	phaseCmd.Flags().StringVar(&yColumn, "y", "", "column for the y axis (default: rate of x)")

	svgCmd := &cobra.Command{
		Use:   "svg [run_id] [file]",
		Short: "export the torque traces of a run as SVG",
		Args:  cobra.ExactArgs(2),
		RunE:  exportSVG,
	}

	poseCmd := &cobra.Command{
		Use:   "pose [robot] [file]",
		Short: "draw the standing pose of a robot as SVG",
		Args:  cobra.ExactArgs(2),
		RunE:  drawPose,
	}
	addConfigFlags(poseCmd)
	poseCmd.Flags().BoolVar(&frontView, "front", false, "front view instead of side view")

	sweepCmd := &cobra.Command{
		Use:   "sweep [robot]",
		Short: "grid search over controller settings",
		Args:  cobra.MaximumNArgs(1),
		RunE:  sweep,
	}
	addConfigFlags(sweepCmd)
	sweepCmd.Flags().StringArrayVar(&sweepGrid, "param", nil, fmt.Sprintf("name=v1,v2,... (one of %v)", optim.Params()))
	sweepCmd.Flags().StringVar(&metricName, "metric", "torque_effort", "metric to minimize")

	rootCmd.AddCommand(runCmd, checkCmd, liveCmd, scenarioCmd, listCmd, plotCmd, exportCmd, presetsCmd, robotsCmd, initCmd,
		analyzeCmd, phaseCmd, svgCmd, poseCmd, sweepCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed")
	cmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "duration in seconds")
	cmd.Flags().StringVar(&solver, "solver", "", "qp backend")
	cmd.Flags().StringVar(&plant, "plant", "", "kinematic or dynamic")
	cmd.Flags().StringVar(&integrator, "integrator", "", "plant integrator")
	cmd.Flags().Float64Var(&noise, "noise", 0, "joint velocity noise")
}

// loadConfig resolves preset, then config file, then explicit flags.
func loadConfig(cmd *cobra.Command, robot string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if robot != "" {
		cfg.Robot = robot
	}
	if preset != "" {
		p := config.GetPreset(cfg.Robot, preset)
		if p == nil {
			return nil, errors.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(cfg.Robot))
		}
		c := *p
		cfg = &c
	}
	if configFile != "" {
		c, err := config.Load(configFile)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load config")
		}
		cfg = c
		if robot != "" {
			cfg.Robot = robot
		}
	}

	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("time") {
		cfg.Duration = duration
	}
	if flags.Changed("solver") {
		cfg.Solver.Backend = solver
	}
	if flags.Changed("plant") {
		cfg.Plant = plant
	}
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("noise") {
		cfg.VelocityNoise = noise
	}
	return cfg, cfg.Validate()
}

func newLogger() (*zap.SugaredLogger, error) {
	return logging.New("wholebody", debug, jsonLog)
}

func robotArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, robotArg(args))
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	exp := experiment.New(cfg, experiment.NewRegistry(), logger)
	if err := exp.Setup(); err != nil {
		return err
	}

	fmt.Printf("running %s (%s, %s plant)...\n", cfg.Robot, cfg.Solver.Backend, cfg.Plant)
	start := time.Now()
	result, err := exp.Run(ctx)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	meta := metadata(cfg)
	runID, err := save(meta, result)
	if err != nil {
		return err
	}
	if exportPath != "" {
		meta.ID = runID
		if err := storage.ExportJSON(exportPath, meta, result); err != nil {
			return err
		}
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	printResult(result)
	return nil
}

func metadata(cfg *config.Config) storage.RunMetadata {
	return storage.RunMetadata{
		Robot:      cfg.Robot,
		Seed:       cfg.Seed,
		Period:     cfg.Period,
		Duration:   cfg.Duration,
		Solver:     cfg.Solver.Backend,
		Integrator: cfg.Integrator,
		Plant:      cfg.Plant,
	}
}

func save(meta storage.RunMetadata, result *sim.Result) (string, error) {
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return "", err
	}
	return st.Save(meta, result)
}

func printResult(result *sim.Result) {
	fmt.Printf("steps: %d\n", result.StepsTaken)
	fmt.Printf("failures: %d\n", result.Failures)
	if result.Halted {
		fmt.Println("halted: output stopped after repeated failures")
	}
	for _, e := range result.Errors {
		fmt.Printf("  %v\n", e)
	}

	names := make([]string, 0, len(result.Metrics))
	for name := range result.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Println("\nmetrics:")
	for _, name := range names {
		fmt.Printf("  %s: %.6f\n", name, result.Metrics[name])
	}
}

func checkRobot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, robotArg(args))
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	r, err := experiment.New(cfg, experiment.NewRegistry(), logger).Check()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "robot\t%s\n", r.Robot)
	fmt.Fprintf(w, "dof\t%d\n", r.DoF)
	fmt.Fprintf(w, "contact forces\t%d\n", r.RhoSize)
	fmt.Fprintf(w, "objectives\t%d\n", r.Objectives)
	fmt.Fprintf(w, "status\t%s (%d iterations)\n", r.Status, r.Iterations)
	fmt.Fprintf(w, "max torque error\t%.3e\n", r.MaxTorqueError)
	fmt.Fprintf(w, "floating residual\t%.3e\n", r.FloatingResidual)
	fmt.Fprintf(w, "normal force\t%.2f N (weight %.2f N)\n", r.TotalNormalForce, r.Weight)
	if r.Dropped != nil {
		fmt.Fprintf(w, "dropped\t%v\n", r.Dropped)
	}
	return w.Flush()
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, robotArg(args))
	if err != nil {
		return err
	}
	return live(cfg, cfg.Robot)
}

func pickAndRun(cmd *cobra.Command, args []string) error {
	m, err := tea.NewProgram(viz.NewPicker(viz.Choices())).Run()
	if err != nil {
		return err
	}
	choice := m.(viz.Picker).Selected()
	if choice == nil {
		return nil
	}
	cfg := *choice.Config
	cfg.Duration = 30
	return live(&cfg, choice.String())
}

// live runs the simulator paced to the wall clock while the monitor polls
// it. Logs would corrupt the screen, so they are dropped unless --debug.
func live(cfg *config.Config, name string) error {
	logger := zap.NewNop().Sugar()
	if debug {
		var err error
		if logger, err = newLogger(); err != nil {
			return err
		}
	}

	exp := experiment.New(cfg, experiment.NewRegistry(), logger)
	if err := exp.Setup(); err != nil {
		return err
	}
	s := exp.Simulator()
	tracker := viz.NewTracker(s.Robot())
	s.AddObserver(tracker)

	sc, err := cfg.Sim()
	if err != nil {
		return err
	}
	sc.Realtime = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := tea.NewProgram(viz.NewMonitor(name, tracker), tea.WithAltScreen())
	done := make(chan struct{})
	go func() {
		defer close(done)
		result, err := s.Run(ctx, sc)
		if err == nil && result.Halted {
			err = errors.New("output halted")
		}
		p.Send(viz.DoneMsg{Err: err})
	}()

	_, err = p.Run()
	cancel()
	<-done
	return err
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := scenario.Load(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, sc.Robot)
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	base, err := cfg.Sim()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	exp := experiment.New(cfg, experiment.NewRegistry(), logger)
	results, runErr := scenario.Run(ctx, sc, exp.Factory(), base, logger)

	meta := metadata(cfg)
	meta.Scenario = sc.Name
	meta.Duration = sc.Duration
	meta.Plant = sc.Plant.String()
	for i, result := range results {
		if result == nil {
			continue
		}
		meta.Seed = sc.Seed + int64(i)
		runID, err := save(meta, result)
		if err != nil {
			return err
		}
		fmt.Printf("\nrun %d (seed %d): %s\n", i, meta.Seed, runID)
		printResult(result)
	}
	return runErr
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
	fmt.Fprintln(w, "ID\tROBOT\tSCENARIO\tTIME\tDURATION\tSOLVER\tPLANT\tFAILURES")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2fs\t%s\t%s\t%d\n",
			run.ID,
			run.Robot,
			run.Scenario,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Solver,
			run.Plant,
			run.Failures,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	torques, err := st.LoadTrace(runID, storage.TorquesFile)
	if err != nil {
		return err
	}
	if len(torques.Rows) == 0 {
		return errors.New("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("robot: %s\n", meta.Robot)
	fmt.Printf("samples: %d\n\n", len(torques.Rows))

	const maxPlots = 6
	names := torques.Columns
	if len(names) > maxPlots {
		names = names[:maxPlots]
	}
	plots, err := torques.Series(names...)
	if err != nil {
		return err
	}
	for i, name := range names {
		values := plots[i]
		caption := name + " torque [Nm]"
		switch name {
		case "base_height":
			caption = "base height [m]"
		case "iterations":
			caption = "qp iterations"
		}
		fmt.Println(viz.PlotSeries(values, caption, 80, 10))
		fmt.Println()
	}

	contacts, err := st.LoadTrace(runID, storage.ContactsFile)
	if err != nil {
		return err
	}
	series, err := contacts.Series(contacts.Columns...)
	if err != nil {
		return err
	}
	if len(series) > 0 {
		fmt.Println(viz.PlotMany(series, fmt.Sprintf("normal force [N] %v", contacts.Columns), 80, 10))
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

func listPresets(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		presets := config.ListPresets(args[0])
		if len(presets) == 0 {
			fmt.Printf("no presets for robot: %s\n", args[0])
			return nil
		}
		fmt.Printf("presets for %s:\n", args[0])
		for _, p := range presets {
			fmt.Printf("  %s\n", p)
		}
		return nil
	}
	for _, c := range viz.Choices() {
		fmt.Printf("  %s\n", c)
	}
	return nil
}

// jointColumns are the torque columns of a trace.
func jointColumns(tr *storage.Trace) []string {
	var out []string
	for _, c := range tr.Columns {
		if c != "base_height" && c != "iterations" {
			out = append(out, c)
		}
	}
	return out
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	torques, err := st.LoadTrace(runID, storage.TorquesFile)
	if err != nil {
		return err
	}

	names := jointColumns(torques)
	series, err := torques.Series(names...)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOINT\tDOMINANT\tAMPLITUDE\tCHATTER")
	for i, name := range names {
		values := series[i]
		freq, amp := analysis.Dominant(values, meta.Period)
		fmt.Fprintf(w, "%s\t%.2f Hz\t%.3f Nm\t%.1f%%\n", name, freq, amp, 100*analysis.Chatter(values, meta.Period, cutoff))
	}
	return w.Flush()
}

// column looks name up in the torque trace, then the contact trace.
func column(st *storage.Store, runID, name string) ([]float64, error) {
	for _, file := range []string{storage.TorquesFile, storage.ContactsFile} {
		tr, err := st.LoadTrace(runID, file)
		if err != nil {
			return nil, err
		}
		if values, ok := tr.Column(name); ok {
			return values, nil
		}
	}
	return nil, errors.Errorf("run %s has no column %q", runID, name)
}

func phasePlot(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	xs, err := column(st, runID, xColumn)
	if err != nil {
		return err
	}
	yLabel := yColumn
	var ys []float64
	if yColumn == "" {
		yLabel = "d/dt " + xColumn
		ys = analysis.Derivative(xs, meta.Period)
	} else if ys, err = column(st, runID, yColumn); err != nil {
		return err
	}

	portrait, err := analysis.NewPhasePortrait(xColumn, xs, yLabel, ys)
	if err != nil {
		return err
	}
	fmt.Print(portrait.ASCII(80, 24))
	return nil
}

func exportSVG(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	torques, err := st.LoadTrace(runID, storage.TorquesFile)
	if err != nil {
		return err
	}
	labels := jointColumns(torques)
	series, err := torques.Series(labels...)
	if err != nil {
		return err
	}

	f, err := os.Create(args[1])
	if err != nil {
		return err
	}
	defer f.Close()
	return export.TraceSVG(f, torques.Times, labels, series, 800, 400)
}

func drawPose(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args[0])
	if err != nil {
		return err
	}
	p, err := experiment.New(cfg, experiment.NewRegistry(), nil).Build(cfg.Seed)
	if err != nil {
		return err
	}
	tracker := viz.NewTracker(p.Robot)
	tracker.OnTick(control.Telemetry{})
	frame, ok := tracker.Latest()
	if !ok {
		return errors.Errorf("no pose frame for %s", cfg.Robot)
	}

	f, err := os.Create(args[1])
	if err != nil {
		return err
	}
	defer f.Close()
	return export.FrameSVG(f, frame, frontView, 600, 600, 300)
}

// parseGrid reads name=v1,v2 flags.
func parseGrid(flags []string) ([]string, [][]float64, error) {
	var names []string
	var ranges [][]float64
	for _, flag := range flags {
		name, list, ok := strings.Cut(flag, "=")
		if !ok {
			return nil, nil, errors.Errorf("bad --param %q, want name=v1,v2", flag)
		}
		var values []float64
		for _, field := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "--param %s", name)
			}
			values = append(values, v)
		}
		names = append(names, name)
		ranges = append(ranges, values)
	}
	return names, ranges, nil
}

func sweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, robotArg(args))
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	names, ranges, err := parseGrid(sweepGrid)
	if err != nil {
		return err
	}
	gs, err := optim.NewGridSearch(names, ranges, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	trials, searchErr := gs.Search(ctx, cfg, experiment.NewRegistry(), metricName)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", strings.ToUpper(strings.Join(names, "\t")), strings.ToUpper(metricName))
	for _, t := range trials {
		values := make([]string, len(names))
		for i, n := range names {
			values[i] = strconv.FormatFloat(t.Params[n], 'g', -1, 64)
		}
		fmt.Fprintf(w, "%s\t%.6g\n", strings.Join(values, "\t"), t.Score)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return searchErr
}
