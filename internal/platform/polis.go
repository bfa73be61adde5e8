package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"hardspheres/internal/confinement"
	"hardspheres/internal/geom"
	"hardspheres/internal/model"
	"hardspheres/internal/rng"
	"hardspheres/internal/sampling"
	"hardspheres/internal/space"
	"hardspheres/internal/stats"
	"hardspheres/internal/storage"
)

const defaultProgram = "hardspheres"

type Config struct {
	Store storage.Store
	// OutputDir receives one parameter-named directory per run. Empty
	// disables file artifacts.
	OutputDir string
	// Program prefixes output directory names.
	Program string
	Logger  *slog.Logger
}

type StopReason string

const (
	StopReasonNormal   StopReason = "normal"
	StopReasonShutdown StopReason = "shutdown"
)

// RunSpec describes the configuration a run samples.
type RunSpec struct {
	RunID       string
	Extents     geom.Extents
	Confinement string
	MoveSet     space.MoveSet
	Seed        int64
	// ResumeFrom names a run whose stored snapshot seeds the configuration.
	ResumeFrom string
	// Control is used instead of a fresh channel when set.
	Control chan sampling.Command
}

type MetropolisOutcome struct {
	Run    model.RunRecord
	Result sampling.MetropolisResult
}

type WangLandauOutcome struct {
	Run    model.RunRecord
	Result sampling.WangLandauResult
}

// Polis owns the store and the control channels of active runs.
type Polis struct {
	store     storage.Store
	outputDir string
	program   string
	logger    *slog.Logger

	mu             sync.RWMutex
	started        bool
	lastStopReason StopReason
	runs           map[string]chan sampling.Command
}

func NewPolis(cfg Config) *Polis {
	program := cfg.Program
	if program == "" {
		program = defaultProgram
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Polis{
		store:          cfg.Store,
		outputDir:      cfg.OutputDir,
		program:        program,
		logger:         logger,
		runs:           make(map[string]chan sampling.Command),
		lastStopReason: StopReasonNormal,
	}
}

func (p *Polis) Init(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("store is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := p.store.Init(ctx); err != nil {
		return err
	}
	p.started = true
	return nil
}

func (p *Polis) Stop() {
	_ = p.StopWithReason(StopReasonNormal)
}

func (p *Polis) Shutdown() {
	_ = p.StopWithReason(StopReasonShutdown)
}

// StopWithReason asks every active run to stop and forgets their controls.
func (p *Polis) StopWithReason(reason StopReason) error {
	if reason == "" {
		reason = StopReasonNormal
	}
	if reason != StopReasonNormal && reason != StopReasonShutdown {
		return fmt.Errorf("unsupported stop reason: %s", reason)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, control := range p.runs {
		select {
		case control <- sampling.CommandStop:
		default:
		}
	}
	p.started = false
	p.lastStopReason = reason
	p.runs = make(map[string]chan sampling.Command)
	return nil
}

func (p *Polis) SnapshotRun(runID string) error {
	return p.sendRunCommand(runID, sampling.CommandSnapshot)
}

func (p *Polis) StopRun(runID string) error {
	return p.sendRunCommand(runID, sampling.CommandStop)
}

// SnapshotAll requests a snapshot from every active run and returns how many
// accepted the command.
func (p *Polis) SnapshotAll() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sent := 0
	for _, control := range p.runs {
		select {
		case control <- sampling.CommandSnapshot:
			sent++
		default:
		}
	}
	return sent
}

func (p *Polis) ActiveRuns() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]string, 0, len(p.runs))
	for id := range p.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p *Polis) Started() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

func (p *Polis) LastStopReason() StopReason {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastStopReason
}

func (p *Polis) RunMetropolis(ctx context.Context, spec RunSpec, cfg sampling.MetropolisConfig) (MetropolisOutcome, error) {
	params := model.RunParameters{
		Beta:                     cfg.Beta,
		RelaxationSteps:          cfg.RelaxationSteps,
		Measurements:             cfg.Measurements,
		StepsBetweenMeasurements: cfg.StepsBetweenMeasurements,
	}
	r, err := p.prepare(ctx, spec, model.AlgorithmMetropolis, params)
	if err != nil {
		return MetropolisOutcome{}, err
	}
	defer p.unregisterRunControl(r.record.ID)

	measurements := make([]model.MeasurementRecord, 0, cfg.Measurements)
	onMeasurement := cfg.OnMeasurement
	cfg.OnMeasurement = func(m sampling.Measurement) error {
		measurements = append(measurements, model.MeasurementRecord{Index: m.Index, SimulationTime: m.SimulationTime, Energy: m.Energy})
		if r.dir != "" {
			if err := stats.AppendMeasurement(r.dir, m.Energy); err != nil {
				return err
			}
		}
		if onMeasurement != nil {
			return onMeasurement(m)
		}
		return nil
	}
	cfg.OnSnapshot = r.snapshotHandler(cfg.OnSnapshot)
	cfg.Control = r.control
	if cfg.Logger == nil {
		cfg.Logger = p.logger
	}

	result, runErr := sampling.RunMetropolis(ctx, r.h, rng.New(spec.Seed), cfg)

	r.record.Steps = stepSummary(result.Steps)
	r.record.FinalEnergy = result.FinalEnergy
	saveCtx := context.WithoutCancel(ctx)
	if err := p.store.SaveMeasurements(saveCtx, r.record.ID, measurements); err != nil {
		return MetropolisOutcome{Run: r.record, Result: result}, errors.Join(runErr, fmt.Errorf("save measurements: %w", err))
	}
	if err := p.finish(saveCtx, r, result.Stopped, runErr); err != nil {
		return MetropolisOutcome{Run: r.record, Result: result}, errors.Join(runErr, err)
	}
	return MetropolisOutcome{Run: r.record, Result: result}, runErr
}

func (p *Polis) RunWangLandau(ctx context.Context, spec RunSpec, cfg sampling.WangLandauConfig) (WangLandauOutcome, error) {
	params := model.RunParameters{
		ModificationInitial:    cfg.ModificationInitial,
		ModificationFinal:      cfg.ModificationFinal,
		ModificationMultiplier: cfg.ModificationMultiplier,
		Flatness:               cfg.Flatness,
		SweepSteps:             cfg.SweepSteps,
		MaxSweeps:              cfg.MaxSweeps,
	}
	if cfg.UseEnergyCutoff {
		cutoff := cfg.EnergyCutoff
		params.EnergyCutoff = &cutoff
	}
	r, err := p.prepare(ctx, spec, model.AlgorithmWangLandau, params)
	if err != nil {
		return WangLandauOutcome{}, err
	}
	defer p.unregisterRunControl(r.record.ID)

	onChange := cfg.OnModificationFactorChange
	cfg.OnModificationFactorChange = func(c sampling.ModificationFactorChange) error {
		record := densityRecord(r.record.ID, fmt.Sprintf("modfac,%d", c.SimulationTime), c.SimulationTime, c.ModificationFactor, c.DensityOfStates)
		if err := p.store.SaveDensityOfStates(context.WithoutCancel(ctx), record); err != nil {
			return fmt.Errorf("save density of states: %w", err)
		}
		if r.dir != "" {
			path := r.path(stats.ModificationFactorDumpName(time.Now(), c.ModificationFactor))
			if err := p.writeDump(path, record.Entries); err != nil {
				return err
			}
		}
		if onChange != nil {
			return onChange(c)
		}
		return nil
	}
	cfg.OnSnapshot = r.snapshotHandler(cfg.OnSnapshot)
	cfg.Control = r.control
	if cfg.Logger == nil {
		cfg.Logger = p.logger
	}

	result, runErr := sampling.RunWangLandau(ctx, r.h, rng.New(spec.Seed), cfg)

	r.record.Steps = stepSummary(result.Steps)
	r.record.FinalEnergy = r.h.Energy()
	r.record.Sweeps = result.Sweeps
	r.record.Converged = result.Converged
	saveCtx := context.WithoutCancel(ctx)
	final := densityRecord(r.record.ID, "final", result.SimulationTime, result.ModificationFactor, result.DensityOfStates)
	if err := p.store.SaveDensityOfStates(saveCtx, final); err != nil {
		return WangLandauOutcome{Run: r.record, Result: result}, errors.Join(runErr, fmt.Errorf("save density of states: %w", err))
	}
	if r.dir != "" {
		if err := p.writeDump(stats.FinalDensityOfStatesPath(r.dir), final.Entries); err != nil {
			return WangLandauOutcome{Run: r.record, Result: result}, errors.Join(runErr, err)
		}
	}
	if err := p.finish(saveCtx, r, result.Stopped, runErr); err != nil {
		return WangLandauOutcome{Run: r.record, Result: result}, errors.Join(runErr, err)
	}
	return WangLandauOutcome{Run: r.record, Result: result}, runErr
}

// run is the state shared by both drivers while a run is active.
type run struct {
	p       *Polis
	h       *space.HardDiscs
	record  model.RunRecord
	dir     string
	control chan sampling.Command
}

func (p *Polis) prepare(ctx context.Context, spec RunSpec, algorithm string, params model.RunParameters) (*run, error) {
	if !p.Started() {
		return nil, fmt.Errorf("polis is not initialized")
	}
	if spec.RunID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	if spec.Confinement == "" {
		spec.Confinement = "bulk"
	}

	functor, err := confinement.New(spec.Confinement, spec.Extents)
	if err != nil {
		return nil, err
	}
	h, err := space.New(spec.Extents, functor, space.WithMoveSet(spec.MoveSet), space.WithLogger(p.logger))
	if err != nil {
		return nil, err
	}
	if spec.ResumeFrom != "" {
		if err := p.resume(ctx, h, spec.ResumeFrom); err != nil {
			return nil, err
		}
	}

	r := &run{
		p: p,
		h: h,
		record: model.RunRecord{
			VersionedRecord: storage.CurrentVersion(),
			ID:              spec.RunID,
			Algorithm:       algorithm,
			Status:          model.RunStatusRunning,
			Confinement:     spec.Confinement,
			Extents:         [3]float64(spec.Extents),
			MoveSet:         spec.MoveSet.String(),
			Seed:            spec.Seed,
			Parameters:      params,
			StartedAt:       time.Now().UTC(),
		},
		control: spec.Control,
	}
	if r.control == nil {
		r.control = make(chan sampling.Command, 16)
	}
	if err := p.registerRunControl(spec.RunID, r.control); err != nil {
		return nil, err
	}
	registered := true
	defer func() {
		if registered {
			p.unregisterRunControl(spec.RunID)
		}
	}()

	if p.outputDir != "" {
		var name string
		if algorithm == model.AlgorithmWangLandau {
			name = stats.WangLandauDirName(p.program, r.record.Extents, spec.Seed, params)
		} else {
			name = stats.MetropolisDirName(p.program, r.record.Extents, spec.Seed, params)
		}
		dir, err := stats.CreateOutputDir(p.outputDir, name)
		if err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
		r.dir = dir
		r.record.OutputDir = dir
		err = stats.WriteRunConfig(dir, stats.RunConfig{
			RunID:       spec.RunID,
			Program:     p.program,
			Algorithm:   algorithm,
			Confinement: spec.Confinement,
			Extents:     r.record.Extents,
			MoveSet:     r.record.MoveSet,
			Seed:        spec.Seed,
			Parameters:  params,
		})
		if err != nil {
			return nil, fmt.Errorf("write run config: %w", err)
		}
		p.logger.Debug("created output directory", "dir", dir)
	}

	if err := p.store.SaveRun(ctx, r.record); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}
	if err := p.indexRun(r.record); err != nil {
		return nil, err
	}
	p.logger.Info("run started",
		"run_id", spec.RunID,
		"algorithm", algorithm,
		"confinement", spec.Confinement,
		"extents", spec.Extents,
		"seed", spec.Seed,
		"discs", h.NumberOfDiscs(),
	)
	registered = false
	return r, nil
}

func (p *Polis) resume(ctx context.Context, h *space.HardDiscs, runID string) error {
	snapshot, ok, err := p.store.GetSnapshot(ctx, runID)
	if err != nil {
		return fmt.Errorf("load snapshot %s: %w", runID, err)
	}
	if !ok {
		return fmt.Errorf("no snapshot stored for run %s", runID)
	}
	positions := make([]geom.Point, len(snapshot.Positions))
	for i, pos := range snapshot.Positions {
		positions[i] = geom.Point(pos)
	}
	err = h.Restore(space.Snapshot{
		Extents:        geom.Extents(snapshot.Extents),
		SimulationTime: snapshot.SimulationTime,
		Positions:      positions,
	})
	if err != nil {
		return fmt.Errorf("resume from %s: %w", runID, err)
	}
	return nil
}

func (p *Polis) finish(ctx context.Context, r *run, stopped bool, runErr error) error {
	r.record.Status = runStatus(runErr, stopped)
	r.record.FinishedAt = time.Now().UTC()
	r.record.SimulationTime = r.h.SimulationTime()
	if runErr != nil {
		r.record.Error = runErr.Error()
	}
	if err := p.store.SaveRun(ctx, r.record); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	if r.dir != "" {
		if err := stats.WriteRunSummary(r.dir, r.record); err != nil {
			return fmt.Errorf("write run summary: %w", err)
		}
	}
	if err := p.indexRun(r.record); err != nil {
		return err
	}
	p.logger.Info("run finished",
		"run_id", r.record.ID,
		"status", r.record.Status,
		"simulation_time", r.record.SimulationTime,
		"energy", r.record.FinalEnergy,
		"duration", r.record.FinishedAt.Sub(r.record.StartedAt),
	)
	return nil
}

func (p *Polis) indexRun(record model.RunRecord) error {
	if p.outputDir == "" {
		return nil
	}
	err := stats.AppendRunIndex(p.outputDir, stats.RunIndexEntry{
		RunID:          record.ID,
		Algorithm:      record.Algorithm,
		Confinement:    record.Confinement,
		Extents:        record.Extents,
		Seed:           record.Seed,
		Status:         record.Status,
		OutputDir:      record.OutputDir,
		SimulationTime: record.SimulationTime,
		FinalEnergy:    record.FinalEnergy,
		CreatedAtUTC:   record.StartedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("update run index: %w", err)
	}
	return nil
}

// writeDump writes a density of states file. A name collision within the
// same second is logged and skipped.
func (p *Polis) writeDump(path string, entries []model.DensityEntry) error {
	err := stats.WriteDensityOfStates(path, entries)
	if errors.Is(err, stats.ErrDumpExists) {
		p.logger.Error("density of states dump skipped", "path", path, "err", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("write density of states: %w", err)
	}
	p.logger.Info("wrote density of states", "path", path)
	return nil
}

func (r *run) path(name string) string {
	return filepath.Join(r.dir, name)
}

func (r *run) snapshotHandler(next func(sampling.Snapshot) error) func(sampling.Snapshot) error {
	return func(s sampling.Snapshot) error {
		ctx := context.Background()
		record := snapshotRecord(r.record.ID, s)
		if err := r.p.store.SaveSnapshot(ctx, record); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		if r.dir != "" {
			if err := stats.WriteSnapshot(r.dir, record); err != nil {
				return fmt.Errorf("write snapshot: %w", err)
			}
		}
		if s.DensityOfStates != nil {
			dos := densityRecord(r.record.ID, fmt.Sprintf("intermediate,%d", s.SimulationTime), s.SimulationTime, s.ModificationFactor, s.DensityOfStates)
			if err := r.p.store.SaveDensityOfStates(ctx, dos); err != nil {
				return fmt.Errorf("save density of states: %w", err)
			}
			if r.dir != "" {
				if err := r.p.writeDump(r.path(stats.IntermediateDumpName(s.TakenAt)), dos.Entries); err != nil {
					return err
				}
			}
		}
		if next != nil {
			return next(s)
		}
		return nil
	}
}

func (p *Polis) registerRunControl(runID string, control chan sampling.Command) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return fmt.Errorf("polis is not initialized")
	}
	if _, exists := p.runs[runID]; exists {
		return fmt.Errorf("run already active: %s", runID)
	}
	p.runs[runID] = control
	return nil
}

func (p *Polis) unregisterRunControl(runID string) {
	p.mu.Lock()
	delete(p.runs, runID)
	p.mu.Unlock()
}

func (p *Polis) sendRunCommand(runID string, cmd sampling.Command) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	p.mu.RLock()
	control, ok := p.runs[runID]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("run not active: %s", runID)
	}
	select {
	case control <- cmd:
		return nil
	default:
		return fmt.Errorf("run control channel is full: %s", runID)
	}
}

func runStatus(err error, stopped bool) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return model.RunStatusInterrupted
	case err != nil:
		return model.RunStatusFailed
	case stopped:
		return model.RunStatusStopped
	default:
		return model.RunStatusCompleted
	}
}

func stepSummary(s sampling.StepStats) model.StepSummary {
	total := s.Total()
	return model.StepSummary{Proposed: total.Proposed, Executable: total.Executable, Accepted: total.Accepted}
}

func densityEntries(dos sampling.DensityOfStates) []model.DensityEntry {
	entries := make([]model.DensityEntry, 0, len(dos))
	for _, e := range dos.Energies() {
		entries = append(entries, model.DensityEntry{Energy: e, LnG: dos[e]})
	}
	return entries
}

func densityRecord(runID, label string, simTime uint64, lnf float64, dos sampling.DensityOfStates) model.DensityOfStatesRecord {
	return model.DensityOfStatesRecord{
		VersionedRecord:    storage.CurrentVersion(),
		RunID:              runID,
		Label:              label,
		SimulationTime:     simTime,
		ModificationFactor: lnf,
		Entries:            densityEntries(dos),
	}
}

func snapshotRecord(runID string, s sampling.Snapshot) model.SnapshotRecord {
	positions := make([][3]float64, len(s.Configuration.Positions))
	for i, pos := range s.Configuration.Positions {
		positions[i] = [3]float64(pos)
	}
	record := model.SnapshotRecord{
		VersionedRecord:    storage.CurrentVersion(),
		RunID:              runID,
		Reason:             string(s.Reason),
		TakenAt:            s.TakenAt,
		SimulationTime:     s.SimulationTime,
		Energy:             s.Energy,
		Extents:            [3]float64(s.Configuration.Extents),
		Positions:          positions,
		ModificationFactor: s.ModificationFactor,
	}
	if s.DensityOfStates != nil {
		record.DensityOfStates = densityEntries(s.DensityOfStates)
	}
	return record
}
