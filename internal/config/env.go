// Package config loads tool defaults from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Env holds the HARDSPHERES_* overrides. Command-line flags take precedence.
type Env struct {
	Store       string `env:"HARDSPHERES_STORE" envDefault:"memory"`
	DBPath      string `env:"HARDSPHERES_DB_PATH" envDefault:"hardspheres.db"`
	OutputDir   string `env:"HARDSPHERES_OUTPUT_DIR" envDefault:"."`
	LogLevel    string `env:"HARDSPHERES_LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"HARDSPHERES_LOG_FORMAT" envDefault:"text"`
	Metrics     string `env:"HARDSPHERES_METRICS" envDefault:"none"`
	MetricsAddr string `env:"HARDSPHERES_METRICS_ADDR" envDefault:"127.0.0.1:9464"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func LoadEnv() (Env, error) {
	var cfg Env
	if err := ParseEnv(&cfg); err != nil {
		return Env{}, err
	}
	return cfg, nil
}

// ParseLogLevel maps debug, info, warn and error to slog levels.
func ParseLogLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}
