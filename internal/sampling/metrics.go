package sampling

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"hardspheres/internal/space"
)

var (
	tracer = otel.Tracer("hardspheres.sampling")
	meter  = otel.Meter("hardspheres.sampling")
)

var (
	stepsProposed     metric.Int64Counter
	stepsAccepted     metric.Int64Counter
	particleNumber    metric.Int64Histogram
	modFactorChanges  metric.Int64Counter
	sweepFlatness     metric.Float64Histogram
	runDuration       metric.Float64Histogram
	snapshotsRecorded metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates the instruments on first use. Safe to call repeatedly.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		stepsProposed, err = meter.Int64Counter(
			"sampling_steps_proposed_total",
			metric.WithDescription("Steps proposed by kind"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		stepsAccepted, err = meter.Int64Counter(
			"sampling_steps_accepted_total",
			metric.WithDescription("Steps executed by kind"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		particleNumber, err = meter.Int64Histogram(
			"sampling_particle_number",
			metric.WithDescription("Active disc count at each measurement"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		modFactorChanges, err = meter.Int64Counter(
			"sampling_modification_factor_changes_total",
			metric.WithDescription("Wang-Landau modification factor reductions"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		sweepFlatness, err = meter.Float64Histogram(
			"sampling_sweep_flatness",
			metric.WithDescription("Histogram flatness after each Wang-Landau sweep"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		runDuration, err = meter.Float64Histogram(
			"sampling_run_duration_seconds",
			metric.WithDescription("Wall time of sampling runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		snapshotsRecorded, err = meter.Int64Counter(
			"sampling_snapshots_total",
			metric.WithDescription("Snapshots delivered to callbacks by reason"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordStepMetrics(ctx context.Context, kind space.Kind, accepted bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("kind", kind.String()))
	stepsProposed.Add(ctx, 1, attrs)
	if accepted {
		stepsAccepted.Add(ctx, 1, attrs)
	}
}

func recordMeasurementMetrics(ctx context.Context, energy int) {
	if err := initMetrics(); err != nil {
		return
	}
	particleNumber.Record(ctx, int64(energy))
}

func recordSweepMetrics(ctx context.Context, flatness float64, modFactorChanged bool) {
	if err := initMetrics(); err != nil {
		return
	}
	sweepFlatness.Record(ctx, flatness)
	if modFactorChanged {
		modFactorChanges.Add(ctx, 1)
	}
}

func recordSnapshotMetrics(ctx context.Context, reason SnapshotReason) {
	if err := initMetrics(); err != nil {
		return
	}
	snapshotsRecorded.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(reason))))
}

func recordRunMetrics(ctx context.Context, algorithm string, duration time.Duration, err error) {
	if initErr := initMetrics(); initErr != nil {
		return
	}
	runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("algorithm", algorithm),
		attribute.Bool("success", err == nil),
	))
}

func startRunSpan(ctx context.Context, algorithm string, h *space.HardDiscs) (context.Context, trace.Span) {
	extents := h.Extents()
	return tracer.Start(ctx, "sampling."+algorithm,
		trace.WithAttributes(
			attribute.Float64Slice("box.extents", extents[:]),
			attribute.Int("box.capacity", h.Capacity()),
		),
	)
}
