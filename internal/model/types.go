package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

const (
	AlgorithmMetropolis = "metropolis"
	AlgorithmWangLandau = "wang-landau"
)

const (
	RunStatusRunning     = "running"
	RunStatusCompleted   = "completed"
	RunStatusStopped     = "stopped"
	RunStatusInterrupted = "interrupted"
	RunStatusFailed      = "failed"
)

// RunParameters holds the driver settings of a run. Only the fields of the
// run's algorithm are populated.
type RunParameters struct {
	Beta                     float64 `json:"beta,omitempty"`
	RelaxationSteps          int     `json:"relaxation_steps,omitempty"`
	Measurements             int     `json:"measurements,omitempty"`
	StepsBetweenMeasurements int     `json:"steps_between_measurements,omitempty"`

	ModificationInitial    float64 `json:"modification_initial,omitempty"`
	ModificationFinal      float64 `json:"modification_final,omitempty"`
	ModificationMultiplier float64 `json:"modification_multiplier,omitempty"`
	Flatness               float64 `json:"flatness,omitempty"`
	SweepSteps             int     `json:"sweep_steps,omitempty"`
	EnergyCutoff           *int    `json:"energy_cutoff,omitempty"`
	MaxSweeps              int     `json:"max_sweeps,omitempty"`
}

type StepSummary struct {
	Proposed   uint64 `json:"proposed"`
	Executable uint64 `json:"executable"`
	Accepted   uint64 `json:"accepted"`
}

type RunRecord struct {
	VersionedRecord
	ID             string        `json:"id"`
	Algorithm      string        `json:"algorithm"`
	Status         string        `json:"status"`
	Confinement    string        `json:"confinement"`
	Extents        [3]float64    `json:"extents"`
	MoveSet        string        `json:"move_set"`
	Seed           int64         `json:"seed"`
	Parameters     RunParameters `json:"parameters"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at,omitzero"`
	SimulationTime uint64        `json:"simulation_time"`
	FinalEnergy    int           `json:"final_energy"`
	Steps          StepSummary   `json:"steps"`
	Sweeps         int           `json:"sweeps,omitempty"`
	Converged      bool          `json:"converged,omitempty"`
	OutputDir      string        `json:"output_dir,omitempty"`
	Error          string        `json:"error,omitempty"`
}

type MeasurementRecord struct {
	Index          int    `json:"index"`
	SimulationTime uint64 `json:"simulation_time"`
	Energy         int    `json:"energy"`
}

type DensityEntry struct {
	Energy int     `json:"energy"`
	LnG    float64 `json:"ln_g"`
}

// DensityOfStatesRecord is one dump of a Wang-Landau estimate. Label tells
// dumps of the same run apart: "final", "modfac,<time>" or
// "intermediate,<time>".
type DensityOfStatesRecord struct {
	VersionedRecord
	RunID              string         `json:"run_id"`
	Label              string         `json:"label"`
	SimulationTime     uint64         `json:"simulation_time"`
	ModificationFactor float64        `json:"modification_factor"`
	Entries            []DensityEntry `json:"entries"`
}

// SnapshotRecord is the latest restorable configuration of a run.
type SnapshotRecord struct {
	VersionedRecord
	RunID              string         `json:"run_id"`
	Reason             string         `json:"reason"`
	TakenAt            time.Time      `json:"taken_at"`
	SimulationTime     uint64         `json:"simulation_time"`
	Energy             int            `json:"energy"`
	Extents            [3]float64     `json:"extents"`
	Positions          [][3]float64   `json:"positions"`
	ModificationFactor float64        `json:"modification_factor,omitempty"`
	DensityOfStates    []DensityEntry `json:"density_of_states,omitempty"`
}
