package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"

	"hardspheres/internal/config"
	"hardspheres/internal/telemetry"
	api "hardspheres/pkg/hardspheres"
)

const exportsDir = "exports"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "metropolis":
		return runMetropolis(ctx, args[1:])
	case "wang-landau":
		return runWangLandau(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "measurements":
		return runMeasurements(ctx, args[1:])
	case "dos":
		return runDOS(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "confinements":
		return runConfinements(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

// commonFlags are shared by every subcommand. Defaults come from the
// HARDSPHERES_* environment.
type commonFlags struct {
	storeKind   *string
	dbPath      *string
	outputDir   *string
	logLevel    *string
	logFormat   *string
	metrics     *string
	metricsAddr *string
}

func bindCommonFlags(fs *flag.FlagSet) (*commonFlags, error) {
	env, err := config.LoadEnv()
	if err != nil {
		return nil, err
	}
	return &commonFlags{
		storeKind:   fs.String("store", env.Store, "store backend: memory|sqlite"),
		dbPath:      fs.String("db-path", env.DBPath, "sqlite database path"),
		outputDir:   fs.String("output-dir", env.OutputDir, "base directory for run output directories"),
		logLevel:    fs.String("log-level", env.LogLevel, "log level: debug|info|warn|error"),
		logFormat:   fs.String("log-format", env.LogFormat, "log format: text|json"),
		metrics:     fs.String("metrics", env.Metrics, "metric exporter: none|stdout|prometheus"),
		metricsAddr: fs.String("metrics-addr", env.MetricsAddr, "prometheus listen address"),
	}, nil
}

func (c *commonFlags) logger(w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLogLevel(*c.logLevel)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch *c.logFormat {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", *c.logFormat)
	}
}

func (c *commonFlags) client(logger *slog.Logger) (*api.Client, error) {
	return api.New(api.Options{
		StoreKind:  *c.storeKind,
		DBPath:     *c.dbPath,
		OutputDir:  *c.outputDir,
		ExportsDir: exportsDir,
		Program:    "hardspherectl",
		Logger:     logger,
	})
}

// session opens the logger, telemetry and client of a subcommand. The
// returned closer releases them in reverse order.
func (c *commonFlags) session(ctx context.Context) (*api.Client, *slog.Logger, func(), error) {
	logger, err := c.logger(os.Stderr)
	if err != nil {
		return nil, nil, nil, err
	}
	slog.SetDefault(logger)

	tcfg := telemetry.DefaultConfig()
	tcfg.MetricExporter = *c.metrics
	tcfg.MetricsAddr = *c.metricsAddr
	provider, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return nil, nil, nil, err
	}
	if addr := provider.Addr(); addr != nil {
		logger.Info("serving metrics", "addr", addr.String(), "path", "/metrics")
	}

	client, err := c.client(logger)
	if err != nil {
		_ = provider.Shutdown(context.WithoutCancel(ctx))
		return nil, nil, nil, err
	}
	if err := client.Init(ctx); err != nil {
		_ = client.Close()
		_ = provider.Shutdown(context.WithoutCancel(ctx))
		return nil, nil, nil, err
	}

	closer := func() {
		_ = client.Close()
		if err := provider.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("telemetry shutdown", "err", err)
		}
	}
	return client, logger, closer, nil
}

func runMetropolis(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("metropolis", flag.ContinueOnError)
	common, err := bindCommonFlags(fs)
	if err != nil {
		return err
	}
	configPath := fs.String("config", "", "optional run config path (YAML or JSON)")
	sys := bindSystemFlags(fs)
	beta := fs.Float64("beta", 1.0, "inverse temperature")
	relaxation := fs.Int("relaxation-steps", 1000, "steps before the first measurement")
	measurements := fs.Int("measurements", 1000, "number of measurements")
	between := fs.Int("steps-between", 100, "steps between two measurements")
	jsonOut := fs.Bool("json", false, "emit the run summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	values := sys.values()
	values["beta"] = *beta
	values["relaxation-steps"] = *relaxation
	values["measurements"] = *measurements
	values["steps-between"] = *between

	req, err := loadMetropolisRequest(*configPath, setFlags(fs), values)
	if err != nil {
		return err
	}

	client, logger, closer, err := common.session(ctx)
	if err != nil {
		return err
	}
	defer closer()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer forwardSnapshotSignals(client, logger)()

	total := uint64(req.RelaxationSteps) + uint64(req.Measurements)*uint64(req.StepsBetweenMeasurements)
	logger.Info("starting metropolis run", "steps", humanize.Comma(int64(total)), "beta", req.Beta, "confinement", req.Confinement)

	summary, runErr := client.RunMetropolis(ctx, req)
	if summary.RunID == "" {
		return runErr
	}
	if *jsonOut {
		if err := writeJSON(summary); err != nil {
			return errors.Join(runErr, err)
		}
		return runErr
	}
	fmt.Printf("run metropolis run_id=%s status=%s\n", summary.RunID, summary.Status)
	printRunSummary(summary.RunSummary)
	if len(summary.Measurements) > 0 {
		fmt.Printf("measurements=%d last=%d\n", len(summary.Measurements), summary.Measurements[len(summary.Measurements)-1])
	}
	return runErr
}

func runWangLandau(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("wang-landau", flag.ContinueOnError)
	common, err := bindCommonFlags(fs)
	if err != nil {
		return err
	}
	configPath := fs.String("config", "", "optional run config path (YAML or JSON)")
	sys := bindSystemFlags(fs)
	modInitial := fs.Float64("mod-initial", 1.0, "initial ln f")
	modFinal := fs.Float64("mod-final", 1e-2, "ln f below which the run has converged")
	modMultiplier := fs.Float64("mod-multiplier", 0.5, "factor applied to ln f after a flat sweep")
	flatness := fs.Float64("flatness", 0.8, "min/mean histogram ratio considered flat")
	sweepSteps := fs.Int("sweep-steps", 10000, "steps per sweep")
	cutoff := fs.Int("energy-cutoff", -1, "reject proposals above this particle number (<0 disables)")
	maxSweeps := fs.Int("max-sweeps", 0, "stop after this many sweeps (0 disables)")
	jsonOut := fs.Bool("json", false, "emit the run summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	values := sys.values()
	values["mod-initial"] = *modInitial
	values["mod-final"] = *modFinal
	values["mod-multiplier"] = *modMultiplier
	values["flatness"] = *flatness
	values["sweep-steps"] = *sweepSteps
	values["energy-cutoff"] = *cutoff
	values["max-sweeps"] = *maxSweeps

	req, err := loadWangLandauRequest(*configPath, setFlags(fs), values)
	if err != nil {
		return err
	}

	client, logger, closer, err := common.session(ctx)
	if err != nil {
		return err
	}
	defer closer()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer forwardSnapshotSignals(client, logger)()

	logger.Info("starting wang-landau run",
		"sweep_steps", humanize.Comma(int64(req.SweepSteps)),
		"mod_initial", req.ModificationInitial,
		"mod_final", req.ModificationFinal,
		"confinement", req.Confinement,
	)

	summary, runErr := client.RunWangLandau(ctx, req)
	if summary.RunID == "" {
		return runErr
	}
	if *jsonOut {
		if err := writeJSON(summary); err != nil {
			return errors.Join(runErr, err)
		}
		return runErr
	}
	fmt.Printf("run wang-landau run_id=%s status=%s\n", summary.RunID, summary.Status)
	printRunSummary(summary.RunSummary)
	fmt.Printf("sweeps=%s converged=%t mod=%e energies=%d\n",
		humanize.Comma(int64(summary.Sweeps)), summary.Converged, summary.ModificationFactor, len(summary.DensityOfStates))
	return runErr
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	common, err := bindCommonFlags(fs)
	if err != nil {
		return err
	}
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, _, closer, err := common.session(ctx)
	if err != nil {
		return err
	}
	defer closer()

	runs, err := client.Runs(ctx, api.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(runs)
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	for _, r := range runs {
		fmt.Printf("run_id=%s created_at=%s algorithm=%s status=%s confinement=%s extents=%gx%gx%g seed=%d simulation_time=%s energy=%d\n",
			r.RunID,
			r.CreatedAtUTC,
			r.Algorithm,
			r.Status,
			r.Confinement,
			r.Extents[0], r.Extents[1], r.Extents[2],
			r.Seed,
			humanize.Comma(int64(r.SimulationTime)),
			r.FinalEnergy,
		)
	}
	return nil
}

func runMeasurements(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("measurements", flag.ContinueOnError)
	common, err := bindCommonFlags(fs)
	if err != nil {
		return err
	}
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	blockSize := fs.Int("block-size", 100, "measurements per block average")
	showBlocks := fs.Bool("blocks", false, "print block averages")
	jsonOut := fs.Bool("json", false, "emit measurements summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("measurements requires --run-id or --latest")
	}
	if *blockSize <= 0 {
		return errors.New("block-size must be > 0")
	}

	client, _, closer, err := common.session(ctx)
	if err != nil {
		return err
	}
	defer closer()

	summary, err := client.Measurements(ctx, api.MeasurementsRequest{RunID: *runID, Latest: *latest, BlockSize: *blockSize})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(summary)
	}
	s := summary.Summary
	fmt.Printf("run_id=%s count=%d mean=%.6f std=%.6f min=%d max=%d density=%.6f packing_fraction=%.6f\n",
		summary.RunID, s.Count, s.Mean, s.Std, s.Min, s.Max, s.Density, s.PackingFraction)
	if *showBlocks {
		for _, p := range summary.Blocks {
			fmt.Printf("block index=%d mean=%.6f\n", p.Index, p.Value)
		}
	}
	return nil
}

func runDOS(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("dos", flag.ContinueOnError)
	common, err := bindCommonFlags(fs)
	if err != nil {
		return err
	}
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	label := fs.String("label", api.LabelFinal, "stored density of states label")
	listLabels := fs.Bool("labels", false, "list stored labels instead of entries")
	jsonOut := fs.Bool("json", false, "emit density of states as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("dos requires --run-id or --latest")
	}

	client, _, closer, err := common.session(ctx)
	if err != nil {
		return err
	}
	defer closer()

	dos, err := client.DensityOfStates(ctx, api.DensityOfStatesRequest{RunID: *runID, Latest: *latest, Label: *label})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(dos)
	}
	if *listLabels {
		for _, l := range dos.Labels {
			fmt.Println(l)
		}
		return nil
	}
	// same layout as the dump files
	for _, e := range dos.Entries {
		fmt.Printf("%d\t%.16e\n", e.Energy, e.LnG)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	common, err := bindCommonFlags(fs)
	if err != nil {
		return err
	}
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, _, closer, err := common.session(ctx)
	if err != nil {
		return err
	}
	defer closer()

	exported, err := client.Export(ctx, api.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s to=%s\n", exported.RunID, filepath.Clean(exported.Directory))
	return nil
}

func runConfinements(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("confinements", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "emit names as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, err := api.New(api.Options{StoreKind: "memory"})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	names := client.Confinements()
	if *jsonOut {
		return writeJSON(names)
	}
	fmt.Println(strings.Join(names, "\n"))
	return nil
}

// systemFlags are the box flags of both samplers.
type systemFlags struct {
	runID       *string
	confinement *string
	x, y, z     *float64
	moveSet     *string
	seed        *int64
	resumeFrom  *string
}

func bindSystemFlags(fs *flag.FlagSet) *systemFlags {
	return &systemFlags{
		runID:       fs.String("run-id", "", "explicit run id (optional)"),
		confinement: fs.String("confinement", "bulk", "confinement name (see confinements)"),
		x:           fs.Float64("x", 10, "box width"),
		y:           fs.Float64("y", 10, "box height"),
		z:           fs.Float64("z", 10, "box depth"),
		moveSet:     fs.String("move-set", "three-way", "proposal set: three-way|two-way"),
		seed:        fs.Int64("seed", 1, "rng seed"),
		resumeFrom:  fs.String("resume-from", "", "start from the stored snapshot of this run id"),
	}
}

func (s *systemFlags) values() map[string]any {
	return map[string]any{
		"run-id":      *s.runID,
		"confinement": *s.confinement,
		"x":           *s.x,
		"y":           *s.y,
		"z":           *s.z,
		"move-set":    *s.moveSet,
		"seed":        *s.seed,
		"resume-from": *s.resumeFrom,
	}
}

func setFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

func printRunSummary(s api.RunSummary) {
	fmt.Printf("simulation_time=%s energy=%d proposed=%s accepted=%s duration=%s\n",
		humanize.Comma(int64(s.SimulationTime)),
		s.FinalEnergy,
		humanize.Comma(int64(s.Steps.Proposed)),
		humanize.Comma(int64(s.Steps.Accepted)),
		s.Duration,
	)
	if s.OutputDir != "" {
		fmt.Printf("output_dir=%s\n", filepath.Clean(s.OutputDir))
	}
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: hardspherectl <metropolis|wang-landau|runs|measurements|dos|export|confinements> [flags]", msg)
}
