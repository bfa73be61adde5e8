package sampling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"hardspheres/internal/rng"
	"hardspheres/internal/space"
)

const (
	DefaultModificationInitial    = 1.0
	DefaultModificationFinal      = 1e-2
	DefaultModificationMultiplier = 0.5
	DefaultFlatness               = 0.8
	DefaultSweepSteps             = 10000
)

type SweepReport struct {
	Sweep              int
	SimulationTime     uint64
	Energy             int
	ModificationFactor float64
	Flatness           float64
}

// ModificationFactorChange is reported after a flat sweep. The density of
// states is normalized and ModificationFactor is the new value.
type ModificationFactorChange struct {
	Sweep              int
	SimulationTime     uint64
	ModificationFactor float64
	DensityOfStates    DensityOfStates
}

type WangLandauConfig struct {
	// ModificationInitial, ModificationFinal and ModificationMultiplier
	// describe the schedule of ln f.
	ModificationInitial    float64
	ModificationFinal      float64
	ModificationMultiplier float64
	Flatness               float64
	SweepSteps             int
	// Proposals that would raise the energy above EnergyCutoff are rejected
	// when UseEnergyCutoff is set.
	UseEnergyCutoff bool
	EnergyCutoff    int
	// MaxSweeps bounds the run when positive.
	MaxSweeps int

	Logger                     *slog.Logger
	OnSweep                    func(SweepReport) error
	OnModificationFactorChange func(ModificationFactorChange) error
	OnSnapshot                 func(Snapshot) error
	Control                    <-chan Command
}

type WangLandauResult struct {
	DensityOfStates    DensityOfStates
	Histogram          Histogram
	ModificationFactor float64
	Sweeps             int
	Steps              StepStats
	SimulationTime     uint64
	Converged          bool
	Stopped            bool
}

func (c WangLandauConfig) validate() error {
	if !(c.ModificationInitial > 0) {
		return errors.New("initial modification factor must be > 0")
	}
	if !(c.ModificationFinal > 0) || c.ModificationFinal > c.ModificationInitial {
		return fmt.Errorf("final modification factor must be in (0, %v]", c.ModificationInitial)
	}
	if !(c.ModificationMultiplier > 0 && c.ModificationMultiplier < 1) {
		return errors.New("modification factor multiplier must be in (0, 1)")
	}
	if !(c.Flatness > 0 && c.Flatness <= 1) {
		return errors.New("flatness must be in (0, 1]")
	}
	if c.SweepSteps <= 0 {
		return errors.New("sweep steps must be > 0")
	}
	if c.UseEnergyCutoff && c.EnergyCutoff < 0 {
		return errors.New("energy cutoff must be >= 0")
	}
	if c.MaxSweeps < 0 {
		return errors.New("max sweeps must be >= 0")
	}
	return nil
}

// WangLandauAcceptance is min(1, exp(lnG[from] - lnG[to]) * factor).
func WangLandauAcceptance(lnGFrom, lnGTo, factor float64) float64 {
	return math.Min(1, math.Exp(lnGFrom-lnGTo)*factor)
}

type wangLandau struct {
	h      *space.HardDiscs
	src    rng.Source
	cfg    WangLandauConfig
	logger *slog.Logger
	stats  StepStats
	poller poller

	lnG   DensityOfStates
	hist  Histogram
	lnf   float64
	sweep int
}

// RunWangLandau estimates the density of states over the particle number.
// The run ends when ln f drops below ModificationFinal, after MaxSweeps
// sweeps, on CommandStop, or when ctx is cancelled. The returned density of
// states is normalized so the lowest visited energy has ln g = 0.
func RunWangLandau(ctx context.Context, h *space.HardDiscs, src rng.Source, cfg WangLandauConfig) (WangLandauResult, error) {
	if h == nil {
		return WangLandauResult{}, errors.New("configuration is required")
	}
	if src == nil {
		return WangLandauResult{}, errors.New("random source is required")
	}
	if err := cfg.validate(); err != nil {
		return WangLandauResult{}, err
	}

	w := &wangLandau{
		h:      h,
		src:    src,
		cfg:    cfg,
		logger: cfg.Logger,
		lnG:    make(DensityOfStates),
		hist:   make(Histogram),
		lnf:    cfg.ModificationInitial,
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	w.poller = poller{control: cfg.Control, snapshot: w.snapshot}

	ctx, span := startRunSpan(ctx, "WangLandau", h)
	defer span.End()
	started := time.Now()

	result, err := w.run(ctx)
	recordRunMetrics(ctx, "wang-landau", time.Since(started), err)
	if err != nil {
		span.RecordError(err)
	}
	return result, err
}

func (w *wangLandau) result(converged, stopped bool) WangLandauResult {
	return WangLandauResult{
		DensityOfStates:    w.lnG.Normalized(),
		Histogram:          w.hist.Clone(),
		ModificationFactor: w.lnf,
		Sweeps:             w.sweep,
		Steps:              w.stats,
		SimulationTime:     w.h.SimulationTime(),
		Converged:          converged,
		Stopped:            stopped,
	}
}

func (w *wangLandau) run(ctx context.Context) (WangLandauResult, error) {
	w.logger.Info("wang-landau started",
		"modification_factor", w.lnf,
		"final", w.cfg.ModificationFinal,
		"flatness", w.cfg.Flatness,
		"sweep_steps", w.cfg.SweepSteps,
	)
	for w.lnf >= w.cfg.ModificationFinal {
		if w.cfg.MaxSweeps > 0 && w.sweep >= w.cfg.MaxSweeps {
			w.logger.Warn("sweep limit reached", "sweeps", w.sweep, "modification_factor", w.lnf)
			return w.result(false, false), nil
		}
		for i := 0; i < w.cfg.SweepSteps; i++ {
			state, err := w.poller.poll(ctx)
			if err != nil || state == controlStop {
				return w.result(false, state == controlStop), err
			}
			if err := w.step(ctx); err != nil {
				return w.result(false, false), err
			}
		}
		w.sweep++
		if err := w.endSweep(ctx); err != nil {
			return w.result(false, false), err
		}
	}
	w.logger.Info("wang-landau converged", "sweeps", w.sweep, "modification_factor", w.lnf, "simulation_time", w.h.SimulationTime())
	return w.result(true, false), nil
}

func (w *wangLandau) step(ctx context.Context) error {
	step := w.h.ProposeStep(w.src)
	counts := w.stats.counts(step.Kind())
	counts.Proposed++

	accepted := false
	if step.IsExecutable() {
		counts.Executable++
		from := w.h.Energy()
		to := from + step.DeltaE()
		if !w.cfg.UseEnergyCutoff || to <= w.cfg.EnergyCutoff {
			p := WangLandauAcceptance(w.lnG[from], w.lnG[to], step.SelectionProbabilityFactor())
			if p >= 1 || w.src.Float64() < p {
				if err := step.Execute(); err != nil {
					return fmt.Errorf("execute %s step: %w", step.Kind(), err)
				}
				accepted = true
				counts.Accepted++
			}
		}
	}
	if !accepted {
		step.Discard()
	}
	recordStepMetrics(ctx, step.Kind(), accepted)

	e := w.h.Energy()
	w.lnG[e] += w.lnf
	w.hist[e]++
	return nil
}

func (w *wangLandau) endSweep(ctx context.Context) error {
	flatness := w.hist.Flatness()
	w.logger.Info("sweep completed",
		"sweep", w.sweep,
		"simulation_time", w.h.SimulationTime(),
		"modification_factor", w.lnf,
		"flatness", flatness,
	)
	if w.cfg.OnSweep != nil {
		report := SweepReport{
			Sweep:              w.sweep,
			SimulationTime:     w.h.SimulationTime(),
			Energy:             w.h.Energy(),
			ModificationFactor: w.lnf,
			Flatness:           flatness,
		}
		if err := w.cfg.OnSweep(report); err != nil {
			return fmt.Errorf("sweep %d: %w", w.sweep, err)
		}
	}

	flat := flatness >= w.cfg.Flatness
	recordSweepMetrics(ctx, flatness, flat)
	if !flat {
		return nil
	}

	w.lnf *= w.cfg.ModificationMultiplier
	w.hist.Reset()
	w.logger.Info("modification factor changed", "sweep", w.sweep, "modification_factor", w.lnf)
	if w.cfg.OnModificationFactorChange != nil {
		change := ModificationFactorChange{
			Sweep:              w.sweep,
			SimulationTime:     w.h.SimulationTime(),
			ModificationFactor: w.lnf,
			DensityOfStates:    w.lnG.Normalized(),
		}
		if err := w.cfg.OnModificationFactorChange(change); err != nil {
			return fmt.Errorf("modification factor change: %w", err)
		}
	}
	return nil
}

func (w *wangLandau) snapshot(ctx context.Context, reason SnapshotReason) error {
	recordSnapshotMetrics(ctx, reason)
	w.logger.Info("snapshot", "reason", string(reason), "simulation_time", w.h.SimulationTime(), "modification_factor", w.lnf)
	if w.cfg.OnSnapshot == nil {
		return nil
	}
	return w.cfg.OnSnapshot(Snapshot{
		Reason:             reason,
		TakenAt:            time.Now().UTC(),
		SimulationTime:     w.h.SimulationTime(),
		Energy:             w.h.Energy(),
		Configuration:      w.h.Snapshot(),
		DensityOfStates:    w.lnG.Normalized(),
		ModificationFactor: w.lnf,
	})
}
