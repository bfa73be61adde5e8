package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	api "hardspheres/pkg/hardspheres"
)

// loadRunConfig reads a YAML run config. JSON files parse as well.
func loadRunConfig(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode run config %s: %w", path, err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// loadMetropolisRequest layers flag defaults, the optional config file and
// explicitly set flags, in that order.
func loadMetropolisRequest(path string, set map[string]bool, values map[string]any) (api.MetropolisRequest, error) {
	var req api.MetropolisRequest
	if err := overrideMetropolisFromFlags(&req, allFlags(values), values); err != nil {
		return api.MetropolisRequest{}, err
	}
	if path == "" {
		return req, nil
	}

	raw, err := loadRunConfig(path)
	if err != nil {
		return api.MetropolisRequest{}, err
	}
	if err := applySystemConfig(&req.SystemRequest, raw); err != nil {
		return api.MetropolisRequest{}, err
	}
	if v, ok := asFloat64(raw["beta"]); ok {
		req.Beta = v
	}
	if v, ok := asInt(raw["relaxation_steps"]); ok {
		req.RelaxationSteps = v
	}
	if v, ok := asInt(raw["measurements"]); ok {
		req.Measurements = v
	}
	if v, ok := asInt(raw["steps_between_measurements"]); ok {
		req.StepsBetweenMeasurements = v
	}

	if err := overrideMetropolisFromFlags(&req, set, values); err != nil {
		return api.MetropolisRequest{}, err
	}
	return req, nil
}

func loadWangLandauRequest(path string, set map[string]bool, values map[string]any) (api.WangLandauRequest, error) {
	var req api.WangLandauRequest
	if err := overrideWangLandauFromFlags(&req, allFlags(values), values); err != nil {
		return api.WangLandauRequest{}, err
	}
	if path == "" {
		return req, nil
	}

	raw, err := loadRunConfig(path)
	if err != nil {
		return api.WangLandauRequest{}, err
	}
	if err := applySystemConfig(&req.SystemRequest, raw); err != nil {
		return api.WangLandauRequest{}, err
	}
	if v, ok := asFloat64(raw["modification_initial"]); ok {
		req.ModificationInitial = v
	}
	if v, ok := asFloat64(raw["modification_final"]); ok {
		req.ModificationFinal = v
	}
	if v, ok := asFloat64(raw["modification_multiplier"]); ok {
		req.ModificationMultiplier = v
	}
	if v, ok := asFloat64(raw["flatness"]); ok {
		req.Flatness = v
	}
	if v, ok := asInt(raw["sweep_steps"]); ok {
		req.SweepSteps = v
	}
	if v, ok := asInt(raw["energy_cutoff"]); ok {
		req.EnergyCutoff = cutoffOrNil(v)
	}
	if v, ok := asInt(raw["max_sweeps"]); ok {
		req.MaxSweeps = v
	}

	if err := overrideWangLandauFromFlags(&req, set, values); err != nil {
		return api.WangLandauRequest{}, err
	}
	return req, nil
}

func applySystemConfig(sys *api.SystemRequest, raw map[string]any) error {
	if v, ok := asString(raw["run_id"]); ok {
		sys.RunID = v
	}
	if v, ok := asString(raw["confinement"]); ok {
		sys.Confinement = v
	}
	if v, ok := asString(raw["move_set"]); ok {
		sys.MoveSet = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		sys.Seed = v
	}
	if v, ok := asString(raw["resume_from"]); ok {
		sys.ResumeFrom = v
	}
	if extents, ok := raw["extents"]; ok {
		list, ok := extents.([]any)
		if !ok || len(list) != 3 {
			return fmt.Errorf("extents must be a list of three numbers")
		}
		for i, item := range list {
			v, ok := asFloat64(item)
			if !ok {
				return fmt.Errorf("extents[%d] is not a number: %v", i, item)
			}
			sys.Extents[i] = v
		}
	}
	for i, key := range []string{"x", "y", "z"} {
		if v, ok := asFloat64(raw[key]); ok {
			sys.Extents[i] = v
		}
	}
	return nil
}

func overrideSystemFromFlag(sys *api.SystemRequest, name string, v any) bool {
	switch name {
	case "run-id":
		sys.RunID = v.(string)
	case "confinement":
		sys.Confinement = v.(string)
	case "x":
		sys.Extents[0] = v.(float64)
	case "y":
		sys.Extents[1] = v.(float64)
	case "z":
		sys.Extents[2] = v.(float64)
	case "move-set":
		sys.MoveSet = v.(string)
	case "seed":
		sys.Seed = v.(int64)
	case "resume-from":
		sys.ResumeFrom = v.(string)
	default:
		return false
	}
	return true
}

func overrideMetropolisFromFlags(req *api.MetropolisRequest, set map[string]bool, flagValue map[string]any) error {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		if overrideSystemFromFlag(&req.SystemRequest, name, v) {
			continue
		}
		switch name {
		case "beta":
			req.Beta = v.(float64)
		case "relaxation-steps":
			req.RelaxationSteps = v.(int)
		case "measurements":
			req.Measurements = v.(int)
		case "steps-between":
			req.StepsBetweenMeasurements = v.(int)
		default:
			return fmt.Errorf("unsupported override flag: %s", name)
		}
	}
	return nil
}

func overrideWangLandauFromFlags(req *api.WangLandauRequest, set map[string]bool, flagValue map[string]any) error {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		if overrideSystemFromFlag(&req.SystemRequest, name, v) {
			continue
		}
		switch name {
		case "mod-initial":
			req.ModificationInitial = v.(float64)
		case "mod-final":
			req.ModificationFinal = v.(float64)
		case "mod-multiplier":
			req.ModificationMultiplier = v.(float64)
		case "flatness":
			req.Flatness = v.(float64)
		case "sweep-steps":
			req.SweepSteps = v.(int)
		case "energy-cutoff":
			req.EnergyCutoff = cutoffOrNil(v.(int))
		case "max-sweeps":
			req.MaxSweeps = v.(int)
		default:
			return fmt.Errorf("unsupported override flag: %s", name)
		}
	}
	return nil
}

func allFlags(values map[string]any) map[string]bool {
	all := make(map[string]bool, len(values))
	for name := range values {
		all[name] = true
	}
	return all
}

// cutoffOrNil treats negative cutoffs as disabled.
func cutoffOrNil(v int) *int {
	if v < 0 {
		return nil
	}
	return &v
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}
