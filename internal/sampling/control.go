// Package sampling drives a hard-disc configuration with Metropolis or
// Wang-Landau acceptance. Both drivers check the context and the optional
// control channel between steps and hand interrupt snapshots to callbacks
// instead of touching process state.
package sampling

import (
	"context"
	"fmt"
	"time"

	"hardspheres/internal/space"
)

// Command is sent on a run's control channel.
type Command int

const (
	// CommandSnapshot asks the driver for an intermediate snapshot.
	CommandSnapshot Command = iota + 1
	// CommandStop ends the run after a final snapshot.
	CommandStop
)

func (c Command) String() string {
	switch c {
	case CommandSnapshot:
		return "snapshot"
	case CommandStop:
		return "stop"
	default:
		return fmt.Sprintf("Command(%d)", int(c))
	}
}

type SnapshotReason string

const (
	SnapshotRequested   SnapshotReason = "requested"
	SnapshotInterrupted SnapshotReason = "interrupted"
	SnapshotStopped     SnapshotReason = "stopped"
)

// Snapshot is handed to OnSnapshot. DensityOfStates and ModificationFactor
// are only set by Wang-Landau runs.
type Snapshot struct {
	Reason             SnapshotReason
	TakenAt            time.Time
	SimulationTime     uint64
	Energy             int
	Configuration      space.Snapshot
	DensityOfStates    DensityOfStates
	ModificationFactor float64
}

type controlState int

const (
	controlContinue controlState = iota
	controlStop
)

// poller watches the context and the control channel between steps.
type poller struct {
	control  <-chan Command
	snapshot func(ctx context.Context, reason SnapshotReason) error
}

func (p *poller) poll(ctx context.Context) (controlState, error) {
	select {
	case <-ctx.Done():
		// the run context is already cancelled, deliver the final snapshot
		// on a fresh one
		if err := p.snapshot(context.WithoutCancel(ctx), SnapshotInterrupted); err != nil {
			return controlStop, fmt.Errorf("interrupt snapshot: %w", err)
		}
		return controlStop, ctx.Err()
	case cmd, ok := <-p.control:
		if !ok {
			p.control = nil
			return controlContinue, nil
		}
		switch cmd {
		case CommandSnapshot:
			return controlContinue, p.snapshot(ctx, SnapshotRequested)
		case CommandStop:
			return controlStop, p.snapshot(ctx, SnapshotStopped)
		default:
			return controlContinue, fmt.Errorf("unsupported control command: %s", cmd)
		}
	default:
		return controlContinue, nil
	}
}
