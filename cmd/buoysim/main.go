package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/san-kum/buoysim/internal/config"
	"github.com/san-kum/buoysim/internal/logging"
	"github.com/san-kum/buoysim/internal/mission"
	"github.com/san-kum/buoysim/internal/optim"
	"github.com/san-kum/buoysim/internal/storage"
	"github.com/san-kum/buoysim/internal/telemetry"
	"github.com/san-kum/buoysim/internal/tui"
)

var (
	dataDir  string
	logLevel string
	jsonLog  bool
	logFile  string

	configFile    string
	preset        string
	target        float64
	duration      time.Duration
	fast          bool
	output        string
	engines       int
	speedMetric   string
	sensorKind    string
	noise         float64
	untilSurfaced bool
	descentRate   float64
	ascentRate    float64

	targets []float64

	descentRates []float64
	ascentRates  []float64
	tuneMetric   string
	maximize     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "buoysim",
		Short:        "buoyancy-driven profiler simulator",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".buoysim", "data directory for archived runs")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error, off)")
	rootCmd.PersistentFlags().BoolVar(&jsonLog, "json-log", false, "log line-delimited JSON")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a dive mission",
		Args:  cobra.NoArgs,
		RunE:  runMission,
	}
	addMissionFlags(runCmd)
	runCmd.Flags().BoolVar(&fast, "fast", false, "step in lockstep as fast as possible instead of in real time")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run a mission with a live view; arrow keys move the target depth",
		Args:  cobra.NoArgs,
		RunE:  runLive,
	}
	addMissionFlags(liveCmd)

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "run lockstep missions for several target depths",
		Args:  cobra.NoArgs,
		RunE:  runSweep,
	}
	addMissionFlags(sweepCmd)
	sweepCmd.Flags().Float64SliceVar(&targets, "targets", []float64{20, 40, 60}, "target depths in meters")

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "grid-search target rates for the best mission metric",
		Args:  cobra.NoArgs,
		RunE:  runTune,
	}
	addMissionFlags(tuneCmd)
	tuneCmd.Flags().Float64SliceVar(&descentRates, "descent-rates", []float64{0.05, 0.1, 0.2}, "descent rates to try")
	tuneCmd.Flags().Float64SliceVar(&ascentRates, "ascent-rates", []float64{0.1}, "ascent rates to try")
	tuneCmd.Flags().StringVar(&tuneMetric, "metric", "time_to_target", "metric to optimise")
	tuneCmd.Flags().BoolVar(&maximize, "maximize", false, "maximise the metric instead of minimising it")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list archived runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export an archived run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVarP(&exportPath, "out", "o", "", "output file (default stdout)")

	plotCmd := &cobra.Command{
		Use:   "plot [csv|run_id]",
		Short: "plot a recorded mission",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringSliceVar(&plotColumns, "columns", []string{"depth", "velocity", "engine_0"}, "columns to plot")
	plotCmd.Flags().StringVar(&svgPath, "svg", "", "also write the dive profile to this SVG file")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Args:  cobra.NoArgs,
		RunE:  listPresets,
	}

	configCmd := &cobra.Command{
		Use:   "config [path]",
		Short: "write a config file with default (or --preset) values",
		Args:  cobra.MaximumNArgs(1),
		RunE:  writeConfig,
	}
	configCmd.Flags().StringVar(&preset, "preset", "", "start from a preset")

	rootCmd.AddCommand(runCmd, liveCmd, sweepCmd, tuneCmd, listCmd, plotCmd, exportCmd, presetsCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addMissionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "config file path (yaml)")
	f.StringVar(&preset, "preset", "", "use preset configuration")
	f.Float64Var(&target, "target", 60, "target depth in meters")
	f.DurationVar(&duration, "time", 0, "simulated time limit (0 for none)")
	f.StringVar(&output, "output", config.DefaultOutput, "telemetry CSV path (empty to disable); the default goes into the run directory")
	f.IntVar(&engines, "engines", 1, "number of engines commanded by the controller")
	f.StringVar(&speedMetric, "speed-metric", "rate", "speed metric (rate or legacy)")
	f.StringVar(&sensorKind, "sensor", "ideal", "depth sensor (ideal or noisy)")
	f.Float64Var(&noise, "noise", 0.05, "noisy sensor standard deviation in meters")
	f.BoolVar(&untilSurfaced, "until-surfaced", false, "stop once the target was reached and the vehicle is back at the surface")
	f.Float64Var(&descentRate, "descent-rate", 0.1, "target descent rate in m/s")
	f.Float64Var(&ascentRate, "ascent-rate", 0.1, "target ascent rate in m/s")
}

// loadConfig layers defaults, preset, config file and changed flags, in that
// order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		p, err := config.GetPreset(preset)
		if err != nil {
			return nil, fmt.Errorf("%w (available: %v)", err, config.ListPresets())
		}
		cfg = p
	}
	if configFile != "" {
		c, err := config.LoadOver(configFile, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = c
	}

	flags := cmd.Flags()
	if flags.Changed("target") {
		cfg.Controller.TargetDepth = target
	}
	if flags.Changed("time") {
		cfg.Mission.Duration = duration
	}
	if flags.Changed("output") {
		cfg.Telemetry.Output = output
	}
	if flags.Changed("engines") {
		cfg.Controller.CommandedEngines = engines
	}
	if flags.Changed("speed-metric") {
		cfg.Controller.SpeedMetric = speedMetric
	}
	if flags.Changed("sensor") {
		cfg.Sensor.Kind = sensorKind
	}
	if flags.Changed("noise") {
		cfg.Sensor.StdDev = noise
	}
	if flags.Changed("until-surfaced") {
		cfg.Mission.StopOnSurface = untilSurfaced
	}
	if flags.Changed("descent-rate") {
		cfg.Controller.DescentRate = descentRate
	}
	if flags.Changed("ascent-rate") {
		cfg.Controller.AscentRate = ascentRate
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("json-log") {
		cfg.Log.JSON = jsonLog
	}
	if flags.Changed("log-file") {
		cfg.Log.File = logFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger returns the configured logger and a cleanup func. A nil out keeps
// the default stderr output.
func newLogger(cfg *config.Config, out io.Writer) (zerolog.Logger, func(), error) {
	opts := cfg.Logging()
	opts.Out = out
	cleanup := func() {}
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Nop(), cleanup, fmt.Errorf("open log file: %w", err)
		}
		opts.File = f
		cleanup = func() { f.Close() }
	}
	return logging.New(opts), cleanup, nil
}

func newSink(cfg *config.Config, log zerolog.Logger) (telemetry.Sink, func(), error) {
	if cfg.Telemetry.Output == "" {
		return telemetry.Discard{}, func() {}, nil
	}
	rec, err := telemetry.Create(cfg.Telemetry.Output,
		telemetry.WithBufferSize(cfg.Telemetry.BufferSize),
		telemetry.WithLogger(logging.Component(log, "telemetry")),
	)
	if err != nil {
		return nil, nil, err
	}
	return rec, func() {
		if err := rec.Close(); err != nil {
			log.Warn().Err(err).Msg("closing telemetry file")
		}
	}, nil
}

// newArchive allocates a run directory. Telemetry left at the default path
// is redirected into it.
func newArchive(cfg *config.Config) (*storage.Store, storage.RunMetadata, error) {
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return nil, storage.RunMetadata{}, err
	}
	runID, err := st.NewRun(preset)
	if err != nil {
		return nil, storage.RunMetadata{}, err
	}
	if cfg.Telemetry.Output == config.DefaultOutput {
		cfg.Telemetry.Output = st.TelemetryPath(runID)
	}
	meta := storage.RunMetadata{
		ID:               runID,
		Preset:           preset,
		Timestamp:        time.Now(),
		TargetDepth:      cfg.Controller.TargetDepth,
		CommandedEngines: cfg.Controller.CommandedEngines,
		SpeedMetric:      cfg.Controller.SpeedMetric,
		Sensor:           cfg.Sensor.Kind,
	}
	return st, meta, nil
}

func runMission(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, meta, err := newArchive(cfg)
	if err != nil {
		return err
	}
	log, closeLog, err := newLogger(cfg, nil)
	if err != nil {
		return err
	}
	defer closeLog()

	sink, closeSink, err := newSink(cfg, log)
	if err != nil {
		return err
	}
	defer closeSink()

	m, err := mission.New(cfg.MissionOptions(), mission.WithLogger(log), mission.WithSink(sink))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	if fast {
		err = m.RunFast(ctx)
		if errors.Is(err, mission.ErrUnbounded) {
			return fmt.Errorf("%w: pass --time or --until-surfaced with --fast", err)
		}
	} else {
		fmt.Printf("diving to %.1f m, ctrl+c to stop\n", cfg.Controller.TargetDepth)
		err = m.Run(ctx)
	}
	if err != nil {
		return err
	}

	res := m.Result()
	printSummary(os.Stdout, res, m.Metrics().Names(), time.Since(start))
	meta.Describe(res)
	if err := st.Save(meta); err != nil {
		return err
	}
	fmt.Printf("run id: %s\n", meta.ID)
	if cfg.Telemetry.Output != "" {
		fmt.Printf("telemetry: %s\n", cfg.Telemetry.Output)
	}
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, meta, err := newArchive(cfg)
	if err != nil {
		return err
	}
	// the terminal belongs to the view; logs only go to --log-file
	log, closeLog, err := newLogger(cfg, io.Discard)
	if err != nil {
		return err
	}
	defer closeLog()

	sink, closeSink, err := newSink(cfg, log)
	if err != nil {
		return err
	}
	defer closeSink()

	m, err := mission.New(cfg.MissionOptions(), mission.WithLogger(log), mission.WithSink(sink))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := tea.NewProgram(tui.New(m.Simulator(), m.Controller(), m.Engines()), tea.WithAltScreen())
	done := make(chan error, 1)
	go func() {
		err := m.Run(ctx)
		done <- err
		p.Send(tui.DoneMsg{Err: err})
	}()

	start := time.Now()
	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return err
	}
	cancel()
	if err := <-done; err != nil {
		return err
	}

	res := m.Result()
	printSummary(os.Stdout, res, m.Metrics().Names(), time.Since(start))
	meta.Describe(res)
	if err := st.Save(meta); err != nil {
		return err
	}
	fmt.Printf("run id: %s\n", meta.ID)
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Mission.Duration == 0 && !cfg.Mission.StopOnSurface {
		cfg.Mission.StopOnSurface = true
		cfg.Mission.Duration = 2 * time.Hour
	}
	log, closeLog, err := newLogger(cfg, nil)
	if err != nil {
		return err
	}
	defer closeLog()

	cfgs := make([]mission.Config, len(targets))
	for i, t := range targets {
		c := cfg.MissionOptions()
		c.Control.TargetDepth = t
		cfgs[i] = c
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := mission.Sweep(ctx, cfgs, log)
	if err != nil {
		return err
	}
	printSweep(os.Stdout, targets, results)
	return nil
}

func runTune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Mission.Duration == 0 && !cfg.Mission.StopOnSurface {
		cfg.Mission.StopOnSurface = true
		cfg.Mission.Duration = 2 * time.Hour
	}

	g, err := optim.NewGridSearch([]string{"descent_rate", "ascent_rate"}, [][]float64{descentRates, ascentRates})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	params, best, err := g.Search(ctx, cfg.MissionOptions(), optim.MetricScore(tuneMetric, maximize))
	if err != nil {
		return err
	}
	if maximize {
		best = -best
	}
	fmt.Printf("best %s: %.4f\n", tuneMetric, best)
	fmt.Printf("  descent_rate: %g\n", params["descent_rate"])
	fmt.Printf("  ascent_rate: %g\n", params["ascent_rate"])
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := newTable(os.Stdout)
	fmt.Fprintln(w, "NAME\tTARGET\tENGINES\tMETRIC\tSENSOR\tLIMIT")
	for _, name := range config.ListPresets() {
		p, _ := config.GetPreset(name)
		limit := "none"
		if p.Mission.Duration > 0 {
			limit = p.Mission.Duration.String()
		}
		if p.Mission.StopOnSurface {
			limit += ", surface"
		}
		fmt.Fprintf(w, "%s\t%.0f m\t%d\t%s\t%s\t%s\n", name,
			p.Controller.TargetDepth, p.Controller.CommandedEngines,
			p.Controller.SpeedMetric, p.Sensor.Kind, limit)
	}
	return w.Flush()
}

func writeConfig(cmd *cobra.Command, args []string) error {
	path := "buoysim.yaml"
	if len(args) > 0 {
		path = args[0]
	}
	cfg := config.DefaultConfig()
	if preset != "" {
		p, err := config.GetPreset(preset)
		if err != nil {
			return err
		}
		cfg = p
	}
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}
