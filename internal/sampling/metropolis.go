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
	DefaultBeta                     = 1.0
	DefaultRelaxationSteps          = 1000
	DefaultMeasurements             = 1000
	DefaultStepsBetweenMeasurements = 100
)

// progressLadder lists the completed fractions at which long runs log.
var progressLadder = []float64{
	0.001, 0.002, 0.005, 0.01, 0.015, 0.02, 0.025, 0.05, 0.075,
	0.1, 0.15, 0.2, 0.25, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1,
}

type Measurement struct {
	Index          int    `json:"index"`
	SimulationTime uint64 `json:"simulation_time"`
	Energy         int    `json:"energy"`
}

type StepCounts struct {
	Proposed   uint64 `json:"proposed"`
	Executable uint64 `json:"executable"`
	Accepted   uint64 `json:"accepted"`
}

type StepStats struct {
	Insert    StepCounts `json:"insert"`
	Remove    StepCounts `json:"remove"`
	Translate StepCounts `json:"translate"`
}

func (s *StepStats) counts(kind space.Kind) *StepCounts {
	switch kind {
	case space.Insert:
		return &s.Insert
	case space.Remove:
		return &s.Remove
	default:
		return &s.Translate
	}
}

func (s StepStats) Total() StepCounts {
	return StepCounts{
		Proposed:   s.Insert.Proposed + s.Remove.Proposed + s.Translate.Proposed,
		Executable: s.Insert.Executable + s.Remove.Executable + s.Translate.Executable,
		Accepted:   s.Insert.Accepted + s.Remove.Accepted + s.Translate.Accepted,
	}
}

type MetropolisConfig struct {
	Beta                     float64
	RelaxationSteps          int
	Measurements             int
	StepsBetweenMeasurements int

	Logger        *slog.Logger
	OnMeasurement func(Measurement) error
	OnSnapshot    func(Snapshot) error
	Control       <-chan Command
}

type MetropolisResult struct {
	Measurements   []Measurement
	Steps          StepStats
	SimulationTime uint64
	FinalEnergy    int
	Stopped        bool
}

func (c MetropolisConfig) validate() error {
	if math.IsNaN(c.Beta) || math.IsInf(c.Beta, 0) {
		return fmt.Errorf("beta must be finite: %v", c.Beta)
	}
	if c.RelaxationSteps < 0 {
		return errors.New("relaxation steps must be >= 0")
	}
	if c.Measurements < 0 {
		return errors.New("measurements must be >= 0")
	}
	if c.StepsBetweenMeasurements <= 0 {
		return errors.New("steps between measurements must be > 0")
	}
	return nil
}

// MetropolisAcceptance is min(1, exp(-beta*dE) * factor).
func MetropolisAcceptance(beta float64, deltaE int, factor float64) float64 {
	return math.Min(1, math.Exp(-beta*float64(deltaE))*factor)
}

type metropolis struct {
	h      *space.HardDiscs
	src    rng.Source
	cfg    MetropolisConfig
	logger *slog.Logger
	stats  StepStats
	poller poller
}

// RunMetropolis relaxes the configuration and then records the particle
// number every StepsBetweenMeasurements steps. Cancelling ctx delivers an
// interrupt snapshot and returns ctx.Err() together with the partial result.
func RunMetropolis(ctx context.Context, h *space.HardDiscs, src rng.Source, cfg MetropolisConfig) (MetropolisResult, error) {
	if h == nil {
		return MetropolisResult{}, errors.New("configuration is required")
	}
	if src == nil {
		return MetropolisResult{}, errors.New("random source is required")
	}
	if err := cfg.validate(); err != nil {
		return MetropolisResult{}, err
	}

	m := &metropolis{h: h, src: src, cfg: cfg, logger: cfg.Logger}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.poller = poller{control: cfg.Control, snapshot: m.snapshot}

	ctx, span := startRunSpan(ctx, "Metropolis", h)
	defer span.End()
	started := time.Now()

	result, err := m.run(ctx)
	recordRunMetrics(ctx, "metropolis", time.Since(started), err)
	if err != nil {
		span.RecordError(err)
	}
	return result, err
}

func (m *metropolis) run(ctx context.Context) (MetropolisResult, error) {
	result := MetropolisResult{Measurements: make([]Measurement, 0, m.cfg.Measurements)}
	finish := func(stopped bool) MetropolisResult {
		result.Steps = m.stats
		result.SimulationTime = m.h.SimulationTime()
		result.FinalEnergy = m.h.Energy()
		result.Stopped = stopped
		return result
	}

	m.logger.Info("relaxing configuration", "steps", m.cfg.RelaxationSteps, "beta", m.cfg.Beta)
	if state, err := m.steps(ctx, m.cfg.RelaxationSteps); err != nil || state == controlStop {
		return finish(state == controlStop), err
	}

	next := 0
	for i := 0; i < m.cfg.Measurements; i++ {
		fraction := float64(i) / float64(m.cfg.Measurements)
		if next < len(progressLadder) && fraction >= progressLadder[next] {
			m.logger.Info("simulation progress", "fraction", fraction, "energy", m.h.Energy())
			for next < len(progressLadder) && fraction >= progressLadder[next] {
				next++
			}
		}

		state, err := m.steps(ctx, m.cfg.StepsBetweenMeasurements)
		if err != nil || state == controlStop {
			return finish(state == controlStop), err
		}

		measurement := Measurement{Index: i, SimulationTime: m.h.SimulationTime(), Energy: m.h.Energy()}
		result.Measurements = append(result.Measurements, measurement)
		recordMeasurementMetrics(ctx, measurement.Energy)
		if m.cfg.OnMeasurement != nil {
			if err := m.cfg.OnMeasurement(measurement); err != nil {
				return finish(false), fmt.Errorf("measurement %d: %w", i, err)
			}
		}
	}
	m.logger.Info("simulation finished", "measurements", len(result.Measurements), "simulation_time", m.h.SimulationTime())
	return finish(false), nil
}

func (m *metropolis) steps(ctx context.Context, n int) (controlState, error) {
	for i := 0; i < n; i++ {
		if state, err := m.poller.poll(ctx); err != nil || state == controlStop {
			return state, err
		}
		if err := m.step(ctx); err != nil {
			return controlStop, err
		}
	}
	return controlContinue, nil
}

func (m *metropolis) step(ctx context.Context) error {
	step := m.h.ProposeStep(m.src)
	counts := m.stats.counts(step.Kind())
	counts.Proposed++

	accepted := false
	if step.IsExecutable() {
		counts.Executable++
		p := MetropolisAcceptance(m.cfg.Beta, step.DeltaE(), step.SelectionProbabilityFactor())
		if p >= 1 || m.src.Float64() < p {
			if err := step.Execute(); err != nil {
				return fmt.Errorf("execute %s step: %w", step.Kind(), err)
			}
			accepted = true
			counts.Accepted++
		}
	}
	if !accepted {
		step.Discard()
	}
	recordStepMetrics(ctx, step.Kind(), accepted)
	return nil
}

func (m *metropolis) snapshot(ctx context.Context, reason SnapshotReason) error {
	recordSnapshotMetrics(ctx, reason)
	m.logger.Info("snapshot", "reason", string(reason), "simulation_time", m.h.SimulationTime(), "energy", m.h.Energy())
	if m.cfg.OnSnapshot == nil {
		return nil
	}
	return m.cfg.OnSnapshot(Snapshot{
		Reason:         reason,
		TakenAt:        time.Now().UTC(),
		SimulationTime: m.h.SimulationTime(),
		Energy:         m.h.Energy(),
		Configuration:  m.h.Snapshot(),
	})
}
