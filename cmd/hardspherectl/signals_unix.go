//go:build unix

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	api "hardspheres/pkg/hardspheres"
)

// forwardSnapshotSignals turns SIGUSR1 into a snapshot request for every
// active run until the returned function is called.
func forwardSnapshotSignals(client *api.Client, logger *slog.Logger) func() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-sigs:
				sent := client.SnapshotActive()
				logger.Info("snapshot requested", "signal", "SIGUSR1", "runs", sent)
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(done)
	}
}
