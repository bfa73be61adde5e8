package storage

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"hardspheres/internal/model"
)

func TestDecodeRunFixture(t *testing.T) {
	data, err := os.ReadFile(fixturePath("run_v1.json"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	run, err := DecodeRun(data)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if run.ID != "run-minimal-1" || run.Algorithm != model.AlgorithmWangLandau {
		t.Fatalf("unexpected run: %+v", run)
	}
	if run.Parameters.EnergyCutoff == nil || *run.Parameters.EnergyCutoff != 1 {
		t.Fatalf("unexpected energy cutoff: %v", run.Parameters.EnergyCutoff)
	}
	if run.Extents != [3]float64{1.2, 1.2, 1.2} || !run.Converged {
		t.Fatalf("unexpected run fields: %+v", run)
	}
	if got := run.FinishedAt.Sub(run.StartedAt); got != 2*time.Second {
		t.Fatalf("unexpected run duration: %v", got)
	}
}

func TestDecodeSnapshotFixture(t *testing.T) {
	data, err := os.ReadFile(fixturePath("snapshot_v1.json"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	snapshot, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if snapshot.Energy != len(snapshot.Positions) || snapshot.Positions[1] != [3]float64{2, 2, 2} {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
}

func TestDecodeDensityOfStatesRejectsOldSchema(t *testing.T) {
	data, err := os.ReadFile(fixturePath("density_of_states_v0.json"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	if _, err := DecodeDensityOfStates(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
}

func TestDensityOfStatesRoundTrip(t *testing.T) {
	input := model.DensityOfStatesRecord{
		VersionedRecord:    CurrentVersion(),
		RunID:              "run-1",
		Label:              "modfac,4096",
		SimulationTime:     4096,
		ModificationFactor: 0.25,
		Entries:            []model.DensityEntry{{Energy: 0, LnG: 0}, {Energy: 1, LnG: 1.5}},
	}
	data, err := EncodeDensityOfStates(input)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	output, err := DecodeDensityOfStates(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(input, output) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", output, input)
	}
}

func TestDecodeMeasurementsRejectsMalformedPayload(t *testing.T) {
	if _, err := DecodeMeasurements([]byte(`{"index":1}`)); err == nil {
		t.Fatal("expected decode error")
	}
}

func fixturePath(name string) string {
	return filepath.Join("..", "..", "testdata", "fixtures", name)
}
