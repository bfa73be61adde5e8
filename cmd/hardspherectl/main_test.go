package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	api "hardspheres/pkg/hardspheres"
)

func captureStdout(fn func() error) (string, error) {
	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		return "", err
	}

	os.Stdout = w
	runErr := fn()
	_ = w.Close()
	os.Stdout = origStdout

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		_ = r.Close()
		return "", err
	}
	_ = r.Close()
	return buf.String(), runErr
}

func chdirTemp(t *testing.T) string {
	t.Helper()
	origWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	workdir := t.TempDir()
	if err := os.Chdir(workdir); err != nil {
		t.Fatalf("chdir tempdir: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(origWD)
	})
	t.Setenv("HARDSPHERES_STORE", "memory")
	t.Setenv("HARDSPHERES_LOG_LEVEL", "error")
	return workdir
}

func TestRunRequiresKnownCommand(t *testing.T) {
	if err := run(context.Background(), nil); err == nil || !strings.Contains(err.Error(), "missing command") {
		t.Fatalf("expected missing command error, got %v", err)
	}
	if err := run(context.Background(), []string{"anneal"}); err == nil || !strings.Contains(err.Error(), "unknown command: anneal") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestMetropolisCommandThenQueries(t *testing.T) {
	workdir := chdirTemp(t)
	outputDir := filepath.Join(workdir, "out")

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{
			"metropolis",
			"--output-dir", outputDir,
			"--x", "4", "--y", "4", "--z", "4",
			"--seed", "3",
			"--relaxation-steps", "100",
			"--measurements", "10",
			"--steps-between", "10",
			"--json",
		})
	})
	if err != nil {
		t.Fatalf("metropolis command: %v", err)
	}
	var summary api.MetropolisSummary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode summary %q: %v", out, err)
	}
	if summary.Status != "completed" || len(summary.Measurements) != 10 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"runs", "--output-dir", outputDir})
	})
	if err != nil {
		t.Fatalf("runs command: %v", err)
	}
	if !strings.Contains(out, "run_id="+summary.RunID) || !strings.Contains(out, "algorithm=metropolis") {
		t.Fatalf("expected run in listing: %s", out)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"measurements", "--output-dir", outputDir, "--latest", "--block-size", "5", "--blocks"})
	})
	if err != nil {
		t.Fatalf("measurements command: %v", err)
	}
	if !strings.Contains(out, "count=10") || strings.Count(out, "block index=") != 2 {
		t.Fatalf("unexpected measurements output: %s", out)
	}

	exportDir := filepath.Join(workdir, "exported")
	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"export", "--output-dir", outputDir, "--latest", "--out", exportDir})
	})
	if err != nil {
		t.Fatalf("export command: %v", err)
	}
	if !strings.Contains(out, "exported run_id="+summary.RunID) {
		t.Fatalf("unexpected export output: %s", out)
	}
	matches, err := filepath.Glob(filepath.Join(exportDir, "*", "measurements.out"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected exported measurements, got %v err=%v", matches, err)
	}
}

func TestWangLandauCommandWithConfig(t *testing.T) {
	workdir := chdirTemp(t)
	outputDir := filepath.Join(workdir, "out")
	configPath := filepath.Join(workdir, "wl.yaml")
	config := strings.Join([]string{
		"run_id: tiny",
		"extents: [1.2, 1.2, 1.2]",
		"modification_initial: 1",
		"modification_final: 0.2",
		"modification_multiplier: 0.5",
		"flatness: 0.5",
		"sweep_steps: 1000",
		"energy_cutoff: 1",
		"max_sweeps: 2000",
		"seed: 4",
	}, "\n")
	if err := os.WriteFile(configPath, []byte(config), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"wang-landau", "--output-dir", outputDir, "--config", configPath, "--seed", "8"})
	})
	if err != nil {
		t.Fatalf("wang-landau command: %v", err)
	}
	if !strings.Contains(out, "run wang-landau run_id=tiny status=completed") || !strings.Contains(out, "converged=true") {
		t.Fatalf("unexpected output: %s", out)
	}

	// a fresh memory store falls back to the final dump file
	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"dos", "--output-dir", outputDir, "--run-id", "tiny"})
	})
	if err != nil {
		t.Fatalf("dos command: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "0\t0.0000000000000000e+00") {
		t.Fatalf("unexpected dos output: %q", out)
	}

	runConfig, err := os.ReadFile(filepath.Join(mustRunDir(t, outputDir), "config.json"))
	if err != nil {
		t.Fatalf("read run config: %v", err)
	}
	if !strings.Contains(string(runConfig), `"seed": 8`) {
		t.Fatalf("expected flag seed to override config: %s", runConfig)
	}
}

func mustRunDir(t *testing.T, outputDir string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(outputDir, "hardspherectl,*"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one run directory, got %v err=%v", matches, err)
	}
	return matches[0]
}

func TestQueryCommandsValidateFlags(t *testing.T) {
	chdirTemp(t)
	cases := [][]string{
		{"runs", "--limit", "0"},
		{"measurements"},
		{"measurements", "--run-id", "a", "--latest"},
		{"dos"},
		{"export"},
		{"export", "--run-id", "a", "--latest"},
		{"metropolis", "--log-format", "xml"},
		{"metropolis", "--metrics", "carrier-pigeon"},
	}
	for _, args := range cases {
		if err := run(context.Background(), args); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestConfinementsCommand(t *testing.T) {
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"confinements"})
	})
	if err != nil {
		t.Fatalf("confinements command: %v", err)
	}
	names := strings.Split(strings.TrimSpace(out), "\n")
	if len(names) != 13 || names[0] != "bulk" {
		t.Fatalf("unexpected confinements: %v", names)
	}
}
