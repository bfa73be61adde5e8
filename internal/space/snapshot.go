package space

import (
	"errors"
	"fmt"

	"hardspheres/internal/disc"
	"hardspheres/internal/geom"
)

var ErrSnapshotExtents = errors.New("snapshot extents do not match the configuration")

// Snapshot is the restorable state of a configuration: active positions in
// slot order and the simulation clock.
type Snapshot struct {
	Extents        geom.Extents `json:"extents"`
	SimulationTime uint64       `json:"simulation_time"`
	Positions      []geom.Point `json:"positions"`
}

func (h *HardDiscs) Snapshot() Snapshot {
	positions := make([]geom.Point, h.numPresent)
	for slot := 0; slot < h.numPresent; slot++ {
		positions[slot] = h.arena[h.order[slot]].Center
	}
	return Snapshot{
		Extents:        h.extents,
		SimulationTime: h.simulationTime,
		Positions:      positions,
	}
}

// Restore replaces the active discs with the snapshot positions. A snapshot
// that violates the confinement or non-overlap leaves the configuration
// unchanged.
func (h *HardDiscs) Restore(s Snapshot) error {
	if s.Extents != h.extents {
		return fmt.Errorf("%w: snapshot %v, configuration %v", ErrSnapshotExtents, s.Extents, h.extents)
	}
	previous := h.Snapshot()

	h.clear()
	for i, p := range s.Positions {
		p = p.RebasePeriodic(h.extents)
		if h.IsOverlapping(disc.Probe(p)) {
			h.clear()
			for _, q := range previous.Positions {
				h.insertAt(q)
			}
			return fmt.Errorf("restore position %d %v: %w", i, p, ErrOverlap)
		}
		h.insertAt(p)
	}
	h.simulationTime = s.SimulationTime
	h.revision++
	h.logger.Info("configuration restored", "discs", h.numPresent, "simulation_time", h.simulationTime)
	return nil
}

func (h *HardDiscs) clear() {
	for h.numPresent > 0 {
		h.removeSlot(h.numPresent - 1)
	}
}
