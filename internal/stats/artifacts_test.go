package stats

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"hardspheres/internal/model"
)

func TestOutputDirNames(t *testing.T) {
	metropolis := MetropolisDirName("mcchd_metropolis", [3]float64{10, 10, 10}, 1, model.RunParameters{
		Beta: 1, RelaxationSteps: 1000, Measurements: 1000, StepsBetweenMeasurements: 100,
	})
	if want := "mcchd_metropolis,x1.0e+01,y1.0e+01,z1.0e+01,S1,b1.0e+00,r1.0e+03,n1.0e+03,N1.0e+02"; metropolis != want {
		t.Fatalf("unexpected metropolis dir name:\n got %s\nwant %s", metropolis, want)
	}

	cutoff := 4400
	wl := WangLandauDirName("mcchd_wl", [3]float64{18, 18, 18}, 300, model.RunParameters{
		Flatness: 0.9, ModificationFinal: 1e-20, ModificationInitial: 0.1, ModificationMultiplier: 0.95,
		EnergyCutoff: &cutoff, SweepSteps: 10000000,
	})
	if want := "mcchd_wl,x1.8e+01,y1.8e+01,z1.8e+01,S300,f9.0e-01,m1.0e-20,s1.0e-01,M9.5e-01,E4400,N1.0e+07"; wl != want {
		t.Fatalf("unexpected wang-landau dir name:\n got %s\nwant %s", wl, want)
	}
}

func TestCreateOutputDirSuffixes(t *testing.T) {
	base := t.TempDir()
	for i, want := range []string{"run_0", "run_1", "run_2"} {
		dir, err := CreateOutputDir(base, "run")
		if err != nil {
			t.Fatalf("create dir %d: %v", i, err)
		}
		if filepath.Base(dir) != want {
			t.Fatalf("expected %s, got %s", want, dir)
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}

func TestMeasurementsAppendAndRead(t *testing.T) {
	dir := t.TempDir()
	if _, ok, err := ReadMeasurements(dir); err != nil || ok {
		t.Fatalf("expected no measurements yet, got ok=%v err=%v", ok, err)
	}
	for _, v := range []int{3, 5, 8} {
		if err := AppendMeasurement(dir, v); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	data, err := os.ReadFile(filepath.Join(dir, "measurements.out"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(data) != "3\n5\n8\n" {
		t.Fatalf("unexpected file content: %q", data)
	}
	values, ok, err := ReadMeasurements(dir)
	if err != nil || !ok {
		t.Fatalf("read measurements: ok=%v err=%v", ok, err)
	}
	if len(values) != 3 || values[2] != 8 {
		t.Fatalf("unexpected values: %v", values)
	}
}

func TestDensityOfStatesDump(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2013, 4, 4, 3, 5, 7, 0, time.UTC)
	name := ModificationFactorDumpName(at, 1.101831e-02)
	if want := "modfac_entropy_dump,20130404-030507,mod=1.101831e-02"; name != want {
		t.Fatalf("unexpected dump name: %s", name)
	}
	if got := IntermediateDumpName(at); got != "intermediate_entropy,20130404-030507" {
		t.Fatalf("unexpected intermediate name: %s", got)
	}

	path := filepath.Join(dir, name)
	entries := []model.DensityEntry{{Energy: 1, LnG: 1.25}, {Energy: 0, LnG: 0}}
	if err := WriteDensityOfStates(path, entries); err != nil {
		t.Fatalf("write dump: %v", err)
	}
	if err := WriteDensityOfStates(path, entries); !errors.Is(err, ErrDumpExists) {
		t.Fatalf("expected ErrDumpExists, got %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read dump: %v", err)
	}
	if want := "0\t0.0000000000000000e+00\n1\t1.2500000000000000e+00\n"; string(data) != want {
		t.Fatalf("unexpected dump:\n%q\nwant\n%q", data, want)
	}

	loaded, err := ReadDensityOfStates(path)
	if err != nil {
		t.Fatalf("read density of states: %v", err)
	}
	if len(loaded) != 2 || loaded[0].Energy != 0 || loaded[1].LnG != 1.25 {
		t.Fatalf("unexpected entries: %+v", loaded)
	}
}

func TestRunConfigAndSnapshotFiles(t *testing.T) {
	dir := t.TempDir()
	if err := WriteRunConfig(dir, RunConfig{}); err == nil {
		t.Fatal("expected missing run id error")
	}
	cfg := RunConfig{RunID: "r1", Algorithm: model.AlgorithmMetropolis, Confinement: "bulk", Extents: [3]float64{5, 5, 5}, Seed: 3}
	if err := WriteRunConfig(dir, cfg); err != nil {
		t.Fatalf("write config: %v", err)
	}
	loaded, ok, err := ReadRunConfig(dir)
	if err != nil || !ok {
		t.Fatalf("read config: ok=%v err=%v", ok, err)
	}
	if loaded.RunID != "r1" || loaded.Extents != cfg.Extents || loaded.Seed != 3 {
		t.Fatalf("unexpected config: %+v", loaded)
	}

	snapshot := model.SnapshotRecord{RunID: "r1", Reason: "stopped", Energy: 1, Positions: [][3]float64{{1, 2, 3}}}
	if err := WriteSnapshot(dir, snapshot); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	loadedSnapshot, ok, err := ReadSnapshot(dir)
	if err != nil || !ok || loadedSnapshot.Positions[0] != [3]float64{1, 2, 3} {
		t.Fatalf("unexpected snapshot: %+v ok=%v err=%v", loadedSnapshot, ok, err)
	}
}

func TestRunIndexAndExport(t *testing.T) {
	base := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "exports")

	runDir, err := CreateOutputDir(base, "prog,x5.0e+00")
	if err != nil {
		t.Fatalf("create dir: %v", err)
	}
	if err := WriteRunConfig(runDir, RunConfig{RunID: "r1"}); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := AppendMeasurement(runDir, 4); err != nil {
		t.Fatalf("append measurement: %v", err)
	}

	entries := []RunIndexEntry{
		{RunID: "r1", Status: model.RunStatusRunning, OutputDir: filepath.Base(runDir), CreatedAtUTC: "2024-03-01T10:00:00Z"},
		{RunID: "r2", Status: model.RunStatusCompleted, OutputDir: filepath.Base(runDir), CreatedAtUTC: "2024-03-01T11:00:00Z"},
		{RunID: "r1", Status: model.RunStatusCompleted, OutputDir: filepath.Base(runDir), CreatedAtUTC: "2024-03-01T10:00:00Z"},
	}
	for _, entry := range entries {
		if err := AppendRunIndex(base, entry); err != nil {
			t.Fatalf("append index: %v", err)
		}
	}

	listed, err := ListRunIndex(base)
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	if len(listed) != 2 || listed[0].RunID != "r2" || listed[1].Status != model.RunStatusCompleted {
		t.Fatalf("unexpected index: %+v", listed)
	}

	exported, err := ExportRunArtifacts(base, "r1", outDir)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	for _, file := range []string{"config.json", "measurements.out"} {
		if _, err := os.Stat(filepath.Join(exported, file)); err != nil {
			t.Fatalf("expected exported file %s: %v", file, err)
		}
	}

	if _, err := ExportRunArtifacts(base, "missing", outDir); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestSummarizeMeasurements(t *testing.T) {
	if got := SummarizeMeasurements(nil, 10, 1); got.Count != 0 {
		t.Fatalf("expected empty summary, got %+v", got)
	}
	summary := SummarizeMeasurements([]int{2, 4, 4, 4, 5, 5, 7, 9}, 10, 0.5)
	if summary.Mean != 5 || summary.Std != 2 || summary.Min != 2 || summary.Max != 9 {
		t.Fatalf("unexpected moments: %+v", summary)
	}
	if math.Abs(summary.Density-0.5) > 1e-12 || math.Abs(summary.PackingFraction-0.25) > 1e-12 {
		t.Fatalf("unexpected density: %+v", summary)
	}
}

func TestBlockAverages(t *testing.T) {
	points := BlockAverages([]int{1, 3, 5, 7, 10}, 2)
	want := []SeriesPoint{{Index: 0, Value: 2}, {Index: 2, Value: 6}, {Index: 4, Value: 10}}
	if len(points) != len(want) {
		t.Fatalf("unexpected points: %+v", points)
	}
	for i := range want {
		if points[i] != want[i] {
			t.Fatalf("point %d: got %+v want %+v", i, points[i], want[i])
		}
	}
}
