package hardspheres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"hardspheres/internal/confinement"
	"hardspheres/internal/geom"
	"hardspheres/internal/model"
	"hardspheres/internal/platform"
	"hardspheres/internal/sampling"
	"hardspheres/internal/space"
	"hardspheres/internal/stats"
	"hardspheres/internal/storage"
)

const (
	defaultOutputDir  = "."
	defaultExportsDir = "exports"
	defaultDBPath     = "hardspheres.db"
	defaultRunsLimit  = 20

	// LabelFinal names the density of states stored at the end of a
	// Wang-Landau run.
	LabelFinal = "final"
)

type Options struct {
	StoreKind  string
	DBPath     string
	OutputDir  string
	ExportsDir string
	// Program prefixes output directory names.
	Program string
	Logger  *slog.Logger
}

type Client struct {
	store  storage.Store
	polis  *platform.Polis
	logger *slog.Logger

	outputDir  string
	exportsDir string
	program    string
}

// SystemRequest describes the box shared by both samplers.
type SystemRequest struct {
	// RunID defaults to a random UUID.
	RunID       string
	Confinement string
	Extents     [3]float64
	MoveSet     string
	Seed        int64
	// ResumeFrom starts from the stored snapshot of another run.
	ResumeFrom string
}

type MetropolisRequest struct {
	SystemRequest
	Beta                     float64
	RelaxationSteps          int
	Measurements             int
	StepsBetweenMeasurements int
}

type WangLandauRequest struct {
	SystemRequest
	ModificationInitial    float64
	ModificationFinal      float64
	ModificationMultiplier float64
	Flatness               float64
	SweepSteps             int
	// EnergyCutoff rejects proposals above the given particle number when
	// set.
	EnergyCutoff *int
	MaxSweeps    int
}

type RunSummary struct {
	RunID          string
	Status         string
	OutputDir      string
	SimulationTime uint64
	FinalEnergy    int
	Steps          model.StepSummary
	Duration       time.Duration
}

type MetropolisSummary struct {
	RunSummary
	Measurements []int
}

type WangLandauSummary struct {
	RunSummary
	Sweeps             int
	Converged          bool
	ModificationFactor float64
	DensityOfStates    []model.DensityEntry
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID          string
	Algorithm      string
	Status         string
	Confinement    string
	Extents        [3]float64
	Seed           int64
	SimulationTime uint64
	FinalEnergy    int
	OutputDir      string
	CreatedAtUTC   string
}

type MeasurementsRequest struct {
	RunID  string
	Latest bool
	// BlockSize groups the series for block averages. Zero uses 100.
	BlockSize int
}

type MeasurementsSummary struct {
	RunID   string
	Values  []int
	Summary stats.MeasurementSummary
	Blocks  []stats.SeriesPoint
}

type DensityOfStatesRequest struct {
	RunID  string
	Latest bool
	// Label selects a stored dump. Empty selects the final one.
	Label string
}

type DensityOfStatesSummary struct {
	RunID              string
	Label              string
	SimulationTime     uint64
	ModificationFactor float64
	Entries            []model.DensityEntry
	// Labels lists every dump stored for the run.
	Labels []string
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = defaultOutputDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		logger:     logger,
		outputDir:  outputDir,
		exportsDir: exportsDir,
		program:    opts.Program,
	}, nil
}

func (c *Client) Close() error {
	if c.polis != nil {
		c.polis.Stop()
	}
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensurePolis(ctx)
	return err
}

func (c *Client) RunMetropolis(ctx context.Context, req MetropolisRequest) (MetropolisSummary, error) {
	if req.Beta == 0 {
		req.Beta = sampling.DefaultBeta
	}
	if req.RelaxationSteps <= 0 {
		req.RelaxationSteps = sampling.DefaultRelaxationSteps
	}
	if req.Measurements <= 0 {
		req.Measurements = sampling.DefaultMeasurements
	}
	if req.StepsBetweenMeasurements <= 0 {
		req.StepsBetweenMeasurements = sampling.DefaultStepsBetweenMeasurements
	}

	p, err := c.ensurePolis(ctx)
	if err != nil {
		return MetropolisSummary{}, err
	}
	spec, err := runSpec(req.SystemRequest)
	if err != nil {
		return MetropolisSummary{}, err
	}

	outcome, err := p.RunMetropolis(ctx, spec, sampling.MetropolisConfig{
		Beta:                     req.Beta,
		RelaxationSteps:          req.RelaxationSteps,
		Measurements:             req.Measurements,
		StepsBetweenMeasurements: req.StepsBetweenMeasurements,
		Logger:                   c.logger,
	})
	summary := MetropolisSummary{RunSummary: runSummary(outcome.Run)}
	summary.Measurements = make([]int, 0, len(outcome.Result.Measurements))
	for _, m := range outcome.Result.Measurements {
		summary.Measurements = append(summary.Measurements, m.Energy)
	}
	return summary, err
}

func (c *Client) RunWangLandau(ctx context.Context, req WangLandauRequest) (WangLandauSummary, error) {
	if req.ModificationInitial <= 0 {
		req.ModificationInitial = sampling.DefaultModificationInitial
	}
	if req.ModificationFinal <= 0 {
		req.ModificationFinal = sampling.DefaultModificationFinal
	}
	if req.ModificationMultiplier <= 0 {
		req.ModificationMultiplier = sampling.DefaultModificationMultiplier
	}
	if req.Flatness <= 0 {
		req.Flatness = sampling.DefaultFlatness
	}
	if req.SweepSteps <= 0 {
		req.SweepSteps = sampling.DefaultSweepSteps
	}
	if req.MaxSweeps < 0 {
		return WangLandauSummary{}, errors.New("max sweeps must be >= 0")
	}

	p, err := c.ensurePolis(ctx)
	if err != nil {
		return WangLandauSummary{}, err
	}
	spec, err := runSpec(req.SystemRequest)
	if err != nil {
		return WangLandauSummary{}, err
	}

	cfg := sampling.WangLandauConfig{
		ModificationInitial:    req.ModificationInitial,
		ModificationFinal:      req.ModificationFinal,
		ModificationMultiplier: req.ModificationMultiplier,
		Flatness:               req.Flatness,
		SweepSteps:             req.SweepSteps,
		MaxSweeps:              req.MaxSweeps,
		Logger:                 c.logger,
	}
	if req.EnergyCutoff != nil {
		cfg.UseEnergyCutoff = true
		cfg.EnergyCutoff = *req.EnergyCutoff
	}

	outcome, err := p.RunWangLandau(ctx, spec, cfg)
	summary := WangLandauSummary{
		RunSummary:         runSummary(outcome.Run),
		Sweeps:             outcome.Result.Sweeps,
		Converged:          outcome.Result.Converged,
		ModificationFactor: outcome.Result.ModificationFactor,
	}
	for _, e := range outcome.Result.DensityOfStates.Energies() {
		summary.DensityOfStates = append(summary.DensityOfStates, model.DensityEntry{Energy: e, LnG: outcome.Result.DensityOfStates[e]})
	}
	return summary, err
}

// Runs lists runs newest first. Runs recorded only in the output directory
// index, such as those of earlier processes using the memory store, are
// included.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = defaultRunsLimit
	}
	if _, err := c.ensurePolis(ctx); err != nil {
		return nil, err
	}

	stored, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(stored))
	out := make([]RunItem, 0, len(stored))
	for _, run := range stored {
		seen[run.ID] = struct{}{}
		out = append(out, RunItem{
			RunID:          run.ID,
			Algorithm:      run.Algorithm,
			Status:         run.Status,
			Confinement:    run.Confinement,
			Extents:        run.Extents,
			Seed:           run.Seed,
			SimulationTime: run.SimulationTime,
			FinalEnergy:    run.FinalEnergy,
			OutputDir:      run.OutputDir,
			CreatedAtUTC:   run.StartedAt.UTC().Format(time.RFC3339Nano),
		})
	}

	entries, err := stats.ListRunIndex(c.outputDir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if _, ok := seen[e.RunID]; ok {
			continue
		}
		out = append(out, RunItem{
			RunID:          e.RunID,
			Algorithm:      e.Algorithm,
			Status:         e.Status,
			Confinement:    e.Confinement,
			Extents:        e.Extents,
			Seed:           e.Seed,
			SimulationTime: e.SimulationTime,
			FinalEnergy:    e.FinalEnergy,
			OutputDir:      e.OutputDir,
			CreatedAtUTC:   e.CreatedAtUTC,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return createdAt(out[i]).After(createdAt(out[j]))
	})
	if len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}

func (c *Client) Measurements(ctx context.Context, req MeasurementsRequest) (MeasurementsSummary, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return MeasurementsSummary{}, err
	}

	var (
		values  []int
		extents [3]float64
	)
	records, ok, err := c.store.GetMeasurements(ctx, runID)
	if err != nil {
		return MeasurementsSummary{}, err
	}
	if ok {
		values = make([]int, 0, len(records))
		for _, m := range records {
			values = append(values, m.Energy)
		}
		run, found, err := c.store.GetRun(ctx, runID)
		if err != nil {
			return MeasurementsSummary{}, err
		}
		if found {
			extents = run.Extents
		}
	} else {
		entry, found, err := stats.LookupRun(c.outputDir, runID)
		if err != nil {
			return MeasurementsSummary{}, err
		}
		if !found {
			return MeasurementsSummary{}, fmt.Errorf("measurements not found for run id: %s", runID)
		}
		values, ok, err = stats.ReadMeasurements(c.runDir(entry.OutputDir))
		if err != nil {
			return MeasurementsSummary{}, err
		}
		if !ok {
			return MeasurementsSummary{}, fmt.Errorf("measurements not found for run id: %s", runID)
		}
		extents = entry.Extents
	}

	volume := geom.Extents(extents).Volume()
	return MeasurementsSummary{
		RunID:   runID,
		Values:  values,
		Summary: stats.SummarizeMeasurements(values, volume, space.ReferenceVolume),
		Blocks:  stats.BlockAverages(values, req.BlockSize),
	}, nil
}

func (c *Client) DensityOfStates(ctx context.Context, req DensityOfStatesRequest) (DensityOfStatesSummary, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return DensityOfStatesSummary{}, err
	}
	label := req.Label
	if label == "" {
		label = LabelFinal
	}

	records, err := c.store.ListDensityOfStates(ctx, runID)
	if err != nil {
		return DensityOfStatesSummary{}, err
	}
	labels := make([]string, 0, len(records))
	for _, record := range records {
		labels = append(labels, record.Label)
	}

	record, ok, err := c.store.GetDensityOfStates(ctx, runID, label)
	if err != nil {
		return DensityOfStatesSummary{}, err
	}
	if ok {
		return DensityOfStatesSummary{
			RunID:              runID,
			Label:              record.Label,
			SimulationTime:     record.SimulationTime,
			ModificationFactor: record.ModificationFactor,
			Entries:            record.Entries,
			Labels:             labels,
		}, nil
	}
	if label != LabelFinal {
		return DensityOfStatesSummary{}, fmt.Errorf("density of states %q not found for run id: %s", label, runID)
	}

	entry, found, err := stats.LookupRun(c.outputDir, runID)
	if err != nil {
		return DensityOfStatesSummary{}, err
	}
	if !found {
		return DensityOfStatesSummary{}, fmt.Errorf("density of states not found for run id: %s", runID)
	}
	entries, err := stats.ReadDensityOfStates(stats.FinalDensityOfStatesPath(c.runDir(entry.OutputDir)))
	if err != nil {
		return DensityOfStatesSummary{}, fmt.Errorf("density of states not found for run id %s: %w", runID, err)
	}
	return DensityOfStatesSummary{
		RunID:          runID,
		Label:          LabelFinal,
		SimulationTime: entry.SimulationTime,
		Entries:        entries,
		Labels:         []string{LabelFinal},
	}, nil
}

func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID := req.RunID
	if req.Latest {
		entries, err := stats.ListRunIndex(c.outputDir)
		if err != nil {
			return ExportSummary{}, err
		}
		if len(entries) == 0 {
			return ExportSummary{}, errors.New("no runs available to export")
		}
		runID = entries[0].RunID
	}

	exportedDir, err := stats.ExportRunArtifacts(c.outputDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}

	// the store may hold snapshots that were never written to the run
	// directory
	if _, err := c.ensurePolis(ctx); err != nil {
		return ExportSummary{}, err
	}
	snapshot, ok, err := c.store.GetSnapshot(ctx, runID)
	if err != nil {
		return ExportSummary{}, err
	}
	if ok {
		if err := stats.WriteSnapshot(exportedDir, snapshot); err != nil {
			return ExportSummary{}, err
		}
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

// Confinements lists the registered confinement names.
func (c *Client) Confinements() []string {
	return confinement.Names()
}

// SnapshotActive asks every active run for an intermediate snapshot.
func (c *Client) SnapshotActive() int {
	if c.polis == nil {
		return 0
	}
	return c.polis.SnapshotAll()
}

func (c *Client) StopRun(runID string) error {
	if c.polis == nil {
		return fmt.Errorf("run not active: %s", runID)
	}
	return c.polis.StopRun(runID)
}

func (c *Client) ActiveRuns() []string {
	if c.polis == nil {
		return nil
	}
	return c.polis.ActiveRuns()
}

func (c *Client) ensurePolis(ctx context.Context) (*platform.Polis, error) {
	if c.polis != nil {
		return c.polis, nil
	}
	p := platform.NewPolis(platform.Config{
		Store:     c.store,
		OutputDir: c.outputDir,
		Program:   c.program,
		Logger:    c.logger,
	})
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	c.polis = p
	return c.polis, nil
}

func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if _, err := c.ensurePolis(ctx); err != nil {
		return "", err
	}
	if latest {
		runs, err := c.Runs(ctx, RunsRequest{Limit: 1})
		if err != nil {
			return "", err
		}
		if len(runs) == 0 {
			return "", errors.New("no runs available")
		}
		return runs[0].RunID, nil
	}
	if runID == "" {
		return "", errors.New("run id or latest is required")
	}
	return runID, nil
}

func (c *Client) runDir(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(c.outputDir, dir)
}

func runSpec(req SystemRequest) (platform.RunSpec, error) {
	extents := geom.Extents(req.Extents)
	if extents == (geom.Extents{}) {
		extents = geom.Extents{10, 10, 10}
	}
	if err := extents.Validate(); err != nil {
		return platform.RunSpec{}, err
	}
	moveSet, err := space.ParseMoveSet(req.MoveSet)
	if err != nil {
		return platform.RunSpec{}, err
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	return platform.RunSpec{
		RunID:       runID,
		Extents:     extents,
		Confinement: req.Confinement,
		MoveSet:     moveSet,
		Seed:        req.Seed,
		ResumeFrom:  req.ResumeFrom,
	}, nil
}

func runSummary(run model.RunRecord) RunSummary {
	summary := RunSummary{
		RunID:          run.ID,
		Status:         run.Status,
		OutputDir:      run.OutputDir,
		SimulationTime: run.SimulationTime,
		FinalEnergy:    run.FinalEnergy,
		Steps:          run.Steps,
	}
	if !run.FinishedAt.IsZero() {
		summary.Duration = run.FinishedAt.Sub(run.StartedAt)
	}
	return summary
}

func createdAt(item RunItem) time.Time {
	t, err := time.Parse(time.RFC3339Nano, item.CreatedAtUTC)
	if err != nil {
		return time.Time{}
	}
	return t
}
