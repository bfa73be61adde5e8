//go:build !unix

package main

import (
	"log/slog"

	api "hardspheres/pkg/hardspheres"
)

// forwardSnapshotSignals is a no-op where SIGUSR1 does not exist.
func forwardSnapshotSignals(*api.Client, *slog.Logger) func() {
	return func() {}
}
