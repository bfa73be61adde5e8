package stats

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"hardspheres/internal/model"
)

const (
	runIndexFile     = "run_index.json"
	runConfigFile    = "config.json"
	runSummaryFile   = "summary.json"
	measurementsFile = "measurements.out"
	finalDOSFile     = "entropy_final"
	snapshotFile     = "snapshot.json"

	// dumpTimeLayout matches strftime %Y%m%d-%H%M%S.
	dumpTimeLayout = "20060102-150405"
)

var ErrDumpExists = errors.New("density of states dump already exists")

// RunConfig is the config.json written into every output directory.
type RunConfig struct {
	RunID       string              `json:"run_id"`
	Program     string              `json:"program"`
	Algorithm   string              `json:"algorithm"`
	Confinement string              `json:"confinement"`
	Extents     [3]float64          `json:"extents"`
	MoveSet     string              `json:"move_set"`
	Seed        int64               `json:"seed"`
	Parameters  model.RunParameters `json:"parameters"`
}

type RunIndexEntry struct {
	RunID          string     `json:"run_id"`
	Algorithm      string     `json:"algorithm"`
	Confinement    string     `json:"confinement"`
	Extents        [3]float64 `json:"extents"`
	Seed           int64      `json:"seed"`
	Status         string     `json:"status"`
	OutputDir      string     `json:"output_dir"`
	SimulationTime uint64     `json:"simulation_time"`
	FinalEnergy    int        `json:"final_energy"`
	CreatedAtUTC   string     `json:"created_at_utc"`
}

// MetropolisDirName encodes the run parameters into a directory name.
func MetropolisDirName(program string, extents [3]float64, seed int64, p model.RunParameters) string {
	return fmt.Sprintf("%s,x%.1e,y%.1e,z%.1e,S%d,b%.1e,r%.1e,n%.1e,N%.1e",
		program, extents[0], extents[1], extents[2], seed,
		p.Beta, float64(p.RelaxationSteps), float64(p.Measurements), float64(p.StepsBetweenMeasurements))
}

// WangLandauDirName encodes the run parameters into a directory name. A
// missing energy cutoff is written as E0.
func WangLandauDirName(program string, extents [3]float64, seed int64, p model.RunParameters) string {
	cutoff := 0
	if p.EnergyCutoff != nil {
		cutoff = *p.EnergyCutoff
	}
	return fmt.Sprintf("%s,x%.1e,y%.1e,z%.1e,S%d,f%.1e,m%.1e,s%.1e,M%.1e,E%d,N%.1e",
		program, extents[0], extents[1], extents[2], seed,
		p.Flatness, p.ModificationFinal, p.ModificationInitial, p.ModificationMultiplier,
		cutoff, float64(p.SweepSteps))
}

// CreateOutputDir creates baseDir/name_N for the smallest N that does not
// exist yet and returns its path.
func CreateOutputDir(baseDir, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("output directory name is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", err
	}
	for trial := 0; ; trial++ {
		dir := filepath.Join(baseDir, fmt.Sprintf("%s_%d", name, trial))
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if !os.IsExist(err) {
			return "", err
		}
	}
}

// AppendMeasurement appends one particle number to measurements.out.
func AppendMeasurement(runDir string, energy int) error {
	file, err := os.OpenFile(filepath.Join(runDir, measurementsFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(file, energy); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func ReadMeasurements(runDir string) ([]int, bool, error) {
	file, err := os.Open(filepath.Join(runDir, measurementsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	values := make([]int, 0, 128)
	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		value, err := strconv.Atoi(text)
		if err != nil {
			return nil, false, fmt.Errorf("%s line %d: %w", measurementsFile, line, err)
		}
		values = append(values, value)
	}
	if err := scanner.Err(); err != nil {
		return nil, false, err
	}
	return values, true, nil
}

// WriteDensityOfStates writes one "energy ln_g" line per entry in
// scientific notation. Existing files are never overwritten.
func WriteDensityOfStates(path string, entries []model.DensityEntry) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", ErrDumpExists, path)
		}
		return err
	}

	sorted := append([]model.DensityEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Energy < sorted[j].Energy })

	w := bufio.NewWriter(file)
	for _, entry := range sorted {
		if _, err := fmt.Fprintf(w, "%d\t%.16e\n", entry.Energy, entry.LnG); err != nil {
			_ = file.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func ReadDensityOfStates(path string) ([]model.DensityEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []model.DensityEntry
	for i, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("%s line %d: expected 2 columns, got %d", filepath.Base(path), i+1, len(fields))
		}
		energy, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", filepath.Base(path), i+1, err)
		}
		lnG, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", filepath.Base(path), i+1, err)
		}
		entries = append(entries, model.DensityEntry{Energy: energy, LnG: lnG})
	}
	return entries, nil
}

// ModificationFactorDumpName names the dump written after a modification
// factor change.
func ModificationFactorDumpName(at time.Time, lnf float64) string {
	return fmt.Sprintf("modfac_entropy_dump,%s,mod=%e", at.UTC().Format(dumpTimeLayout), lnf)
}

// IntermediateDumpName names a dump written on request.
func IntermediateDumpName(at time.Time) string {
	return "intermediate_entropy," + at.UTC().Format(dumpTimeLayout)
}

func FinalDensityOfStatesPath(runDir string) string {
	return filepath.Join(runDir, finalDOSFile)
}

func WriteRunConfig(runDir string, cfg RunConfig) error {
	if cfg.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	return writeJSON(filepath.Join(runDir, runConfigFile), cfg)
}

func ReadRunConfig(runDir string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(runDir, runConfigFile), &cfg)
	return cfg, ok, err
}

func WriteRunSummary(runDir string, run model.RunRecord) error {
	return writeJSON(filepath.Join(runDir, runSummaryFile), run)
}

func WriteSnapshot(runDir string, snapshot model.SnapshotRecord) error {
	return writeJSON(filepath.Join(runDir, snapshotFile), snapshot)
}

func ReadSnapshot(runDir string) (model.SnapshotRecord, bool, error) {
	var snapshot model.SnapshotRecord
	ok, err := readJSON(filepath.Join(runDir, snapshotFile), &snapshot)
	return snapshot, ok, err
}

// AppendRunIndex inserts or replaces the entry for entry.RunID.
func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := readRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the index newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	entries, err := readRunIndex(baseDir)
	if err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func LookupRun(baseDir, runID string) (RunIndexEntry, bool, error) {
	entries, err := readRunIndex(baseDir)
	if err != nil {
		return RunIndexEntry{}, false, err
	}
	for _, entry := range entries {
		if entry.RunID == runID {
			return entry, true, nil
		}
	}
	return RunIndexEntry{}, false, nil
}

// ExportRunArtifacts copies every regular file of the run's output directory
// to outDir/<directory name> and returns the destination.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}
	entry, ok, err := LookupRun(baseDir, runID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("run %s not found in %s", runID, filepath.Join(baseDir, runIndexFile))
	}

	src := entry.OutputDir
	if !filepath.IsAbs(src) {
		src = filepath.Join(baseDir, src)
	}
	files, err := os.ReadDir(src)
	if err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, filepath.Base(src))
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}
	for _, file := range files {
		if !file.Type().IsRegular() {
			continue
		}
		if err := copyFile(filepath.Join(src, file.Name()), filepath.Join(dst, file.Name())); err != nil {
			return "", err
		}
	}
	return dst, nil
}

func readRunIndex(baseDir string) ([]RunIndexEntry, error) {
	var entries []RunIndexEntry
	ok, err := readJSON(filepath.Join(baseDir, runIndexFile), &entries)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []RunIndexEntry{}, nil
	}
	return entries, nil
}

func readJSON(path string, value any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, value); err != nil {
		return false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
