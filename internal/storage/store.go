package storage

import (
	"context"

	"hardspheres/internal/model"
)

// Store persists simulation runs and their outputs. Get methods report a
// missing record with ok == false and a nil error.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveMeasurements(ctx context.Context, runID string, measurements []model.MeasurementRecord) error
	GetMeasurements(ctx context.Context, runID string) ([]model.MeasurementRecord, bool, error)
	SaveDensityOfStates(ctx context.Context, record model.DensityOfStatesRecord) error
	GetDensityOfStates(ctx context.Context, runID, label string) (model.DensityOfStatesRecord, bool, error)
	ListDensityOfStates(ctx context.Context, runID string) ([]model.DensityOfStatesRecord, error)
	SaveSnapshot(ctx context.Context, snapshot model.SnapshotRecord) error
	GetSnapshot(ctx context.Context, runID string) (model.SnapshotRecord, bool, error)
}
