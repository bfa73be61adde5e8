package storage

import (
	"context"
	"sort"
	"sync"

	"hardspheres/internal/model"
)

type MemoryStore struct {
	mu           sync.RWMutex
	initialized  bool
	runs         map[string]model.RunRecord
	measurements map[string][]model.MeasurementRecord
	dos          map[string]map[string]model.DensityOfStatesRecord
	snapshots    map[string]model.SnapshotRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.measurements = make(map[string][]model.MeasurementRecord)
	s.dos = make(map[string]map[string]model.DensityOfStatesRecord)
	s.snapshots = make(map[string]model.SnapshotRecord)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	return cloneRun(run), true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, cloneRun(run))
	}
	sortRuns(runs)
	return runs, nil
}

func (s *MemoryStore) SaveMeasurements(_ context.Context, runID string, measurements []model.MeasurementRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.measurements[runID] = append([]model.MeasurementRecord(nil), measurements...)
	return nil
}

func (s *MemoryStore) GetMeasurements(_ context.Context, runID string) ([]model.MeasurementRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	measurements, ok := s.measurements[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]model.MeasurementRecord(nil), measurements...), true, nil
}

func (s *MemoryStore) SaveDensityOfStates(_ context.Context, record model.DensityOfStatesRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byLabel, ok := s.dos[record.RunID]
	if !ok {
		byLabel = make(map[string]model.DensityOfStatesRecord)
		s.dos[record.RunID] = byLabel
	}
	byLabel[record.Label] = cloneDensityOfStates(record)
	return nil
}

func (s *MemoryStore) GetDensityOfStates(_ context.Context, runID, label string) (model.DensityOfStatesRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.dos[runID][label]
	if !ok {
		return model.DensityOfStatesRecord{}, false, nil
	}
	return cloneDensityOfStates(record), true, nil
}

func (s *MemoryStore) ListDensityOfStates(_ context.Context, runID string) ([]model.DensityOfStatesRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]model.DensityOfStatesRecord, 0, len(s.dos[runID]))
	for _, record := range s.dos[runID] {
		records = append(records, cloneDensityOfStates(record))
	}
	sortDensityOfStates(records)
	return records, nil
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snapshot model.SnapshotRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[snapshot.RunID] = cloneSnapshot(snapshot)
	return nil
}

func (s *MemoryStore) GetSnapshot(_ context.Context, runID string) (model.SnapshotRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.snapshots[runID]
	if !ok {
		return model.SnapshotRecord{}, false, nil
	}
	return cloneSnapshot(snapshot), true, nil
}

func cloneRun(run model.RunRecord) model.RunRecord {
	if run.Parameters.EnergyCutoff != nil {
		cutoff := *run.Parameters.EnergyCutoff
		run.Parameters.EnergyCutoff = &cutoff
	}
	return run
}

func cloneDensityOfStates(record model.DensityOfStatesRecord) model.DensityOfStatesRecord {
	record.Entries = append([]model.DensityEntry(nil), record.Entries...)
	return record
}

func cloneSnapshot(snapshot model.SnapshotRecord) model.SnapshotRecord {
	snapshot.Positions = append([][3]float64(nil), snapshot.Positions...)
	snapshot.DensityOfStates = append([]model.DensityEntry(nil), snapshot.DensityOfStates...)
	return snapshot
}

// sortRuns orders runs by start time, oldest first.
func sortRuns(runs []model.RunRecord) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.Before(runs[j].StartedAt)
		}
		return runs[i].ID < runs[j].ID
	})
}

func sortDensityOfStates(records []model.DensityOfStatesRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].SimulationTime != records[j].SimulationTime {
			return records[i].SimulationTime < records[j].SimulationTime
		}
		return records[i].Label < records[j].Label
	})
}
