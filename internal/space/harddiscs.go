// Package space holds the hard-disc configuration: the disc arena, the
// active/inactive partition, the neighbour index and the simulation clock,
// together with the Step type drivers use to change it.
//
// A HardDiscs value is owned by one walker and is not safe for concurrent
// use. Drivers that run several walkers build one value per walker.
package space

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"hardspheres/internal/celllist"
	"hardspheres/internal/confinement"
	"hardspheres/internal/disc"
	"hardspheres/internal/geom"
	"hardspheres/internal/rng"
)

const (
	// PMove is the translate probability of the three-way move set.
	PMove = 1.0 / 3.0
	// MaxMoveSize bounds the length of a translate displacement.
	MaxMoveSize = 0.2 * disc.Radius
	// ReferenceVolume is the thermal volume used in the insert/remove
	// selection factors.
	ReferenceVolume = 4.0 / 3.0 * math.Pi * disc.Radius * disc.Radius * disc.Radius

	closePackingFraction = math.Pi / 3.0 / math.Sqrt2
	removeThreshold      = 0.5 + PMove/2
)

var (
	ErrNoConfinement  = errors.New("confinement functor is required")
	ErrOverlap        = errors.New("disc overlaps the configuration or its confinement")
	ErrSlotOutOfRange = errors.New("slot is not active")
	ErrStepConsumed   = errors.New("step already executed or discarded")
	ErrStaleStep      = errors.New("configuration changed since the step was proposed")
	ErrNotExecutable  = errors.New("step is not executable")
	ErrForeignStep    = errors.New("step belongs to another configuration")
)

// MoveSet selects the proposal categories of ProposeStep.
type MoveSet int

const (
	// ThreeWay proposes translate, remove and insert.
	ThreeWay MoveSet = iota
	// TwoWay proposes remove and insert with equal probability.
	TwoWay
)

func (m MoveSet) String() string {
	switch m {
	case ThreeWay:
		return "three-way"
	case TwoWay:
		return "two-way"
	default:
		return fmt.Sprintf("MoveSet(%d)", int(m))
	}
}

// ParseMoveSet accepts the names printed by MoveSet.String.
func ParseMoveSet(name string) (MoveSet, error) {
	switch name {
	case "three-way", "":
		return ThreeWay, nil
	case "two-way":
		return TwoWay, nil
	default:
		return 0, fmt.Errorf("unsupported move set: %s", name)
	}
}

type Option func(*HardDiscs)

func WithMoveSet(m MoveSet) Option {
	return func(h *HardDiscs) { h.moveSet = m }
}

// WithIndex replaces the default cell list. The index must be empty.
func WithIndex(idx celllist.Index) Option {
	return func(h *HardDiscs) { h.index = idx }
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *HardDiscs) { h.logger = logger }
}

type HardDiscs struct {
	extents geom.Extents
	volume  float64
	functor confinement.Functor
	moveSet MoveSet
	index   celllist.Index
	logger  *slog.Logger

	// arena is indexed by disc ID. order maps pool slots to IDs and slotOf
	// is its inverse; slots [0, numPresent) are active.
	arena      []disc.Disc
	order      []disc.ID
	slotOf     []int
	numPresent int

	simulationTime uint64
	// revision changes on every mutation, including direct seeding and
	// restores, so steps can detect that they were proposed against an
	// older state.
	revision uint64

	neighbours []disc.ID
}

// EstimateCapacity is the close-packing bound on the number of discs that
// fit in the given volume.
func EstimateCapacity(volume float64) int {
	return int(math.Ceil(volume * closePackingFraction / ReferenceVolume))
}

func New(extents geom.Extents, functor confinement.Functor, opts ...Option) (*HardDiscs, error) {
	if err := extents.Validate(); err != nil {
		return nil, err
	}
	if functor == nil {
		return nil, ErrNoConfinement
	}

	h := &HardDiscs{
		extents: extents,
		volume:  extents.Volume(),
		functor: functor,
		moveSet: ThreeWay,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.index == nil {
		h.index = celllist.New(extents)
	}

	capacity := EstimateCapacity(h.volume)
	h.arena = make([]disc.Disc, 0, capacity)
	h.order = make([]disc.ID, 0, capacity)
	h.slotOf = make([]int, 0, capacity)
	for i := 0; i < capacity; i++ {
		h.grow()
	}

	attrs := []any{
		"extents", extents,
		"confinement", confinement.NameOf(functor),
		"move_set", h.moveSet.String(),
		"capacity", capacity,
	}
	if table, ok := h.index.(*celllist.Table); ok {
		attrs = append(attrs, "cells", table.CellCounts(), "reach", table.Reach())
	}
	h.logger.Debug("configuration space ready", attrs...)
	return h, nil
}

func (h *HardDiscs) grow() {
	id := disc.ID(len(h.arena))
	h.arena = append(h.arena, disc.New(id, geom.Origin()))
	h.order = append(h.order, id)
	h.slotOf = append(h.slotOf, len(h.order)-1)
}

func (h *HardDiscs) Extents() geom.Extents { return h.extents }

func (h *HardDiscs) Volume() float64 { return h.volume }

func (h *HardDiscs) Functor() confinement.Functor { return h.functor }

func (h *HardDiscs) MoveSet() MoveSet { return h.moveSet }

func (h *HardDiscs) NumberOfDiscs() int { return h.numPresent }

// Energy is the number of active discs, the observable sampled in the
// grand-canonical ensemble.
func (h *HardDiscs) Energy() int { return h.numPresent }

func (h *HardDiscs) SimulationTime() uint64 { return h.simulationTime }

// Capacity is the current arena size. It starts at the close-packing
// estimate and grows when an insert finds every slot active.
func (h *HardDiscs) Capacity() int { return len(h.arena) }

func (h *HardDiscs) Disc(slot int) (disc.Disc, error) {
	if slot < 0 || slot >= h.numPresent {
		return disc.Disc{}, fmt.Errorf("%w: %d of %d", ErrSlotOutOfRange, slot, h.numPresent)
	}
	return h.arena[h.order[slot]], nil
}

// ActiveDiscs returns a copy of the active discs in slot order.
func (h *HardDiscs) ActiveDiscs() []disc.Disc {
	out := make([]disc.Disc, h.numPresent)
	for slot := 0; slot < h.numPresent; slot++ {
		out[slot] = h.arena[h.order[slot]]
	}
	return out
}

// IsOverlapping reports whether the candidate is rejected by the confinement
// or lies closer than two radii to an active disc. An active disc is never
// compared with itself, so a member moved to a hypothetical position can be
// tested in place.
func (h *HardDiscs) IsOverlapping(candidate disc.Disc) bool {
	if h.functor.CollidesWith(candidate) {
		return true
	}
	h.neighbours = h.index.Neighbours(candidate.Center, h.neighbours[:0])
	for _, id := range h.neighbours {
		if id == candidate.ID {
			continue
		}
		if h.arena[id].OverlapsPeriodic(candidate, h.extents) {
			return true
		}
	}
	return false
}

// IsOverlappingAfterDisplacement tests the disc in slot at its rebased
// displaced position. Inactive slots always report an overlap.
func (h *HardDiscs) IsOverlappingAfterDisplacement(slot int, displacement geom.Point) bool {
	if slot < 0 || slot >= h.numPresent {
		return true
	}
	future := h.arena[h.order[slot]]
	future.TranslateTo(future.Center.Add(displacement).RebasePeriodic(h.extents))
	return h.IsOverlapping(future)
}

// ProposeStep draws one move. Draw order is fixed: category, then slot or
// position, then displacement.
func (h *HardDiscs) ProposeStep(src rng.Source) *Step {
	u := src.Float64()
	switch h.moveSet {
	case TwoWay:
		if u < 0.5 {
			return h.proposeRemove(src)
		}
		return h.proposeInsert(src)
	default:
		if u < PMove {
			return h.proposeTranslate(src)
		}
		if u < removeThreshold {
			return h.proposeRemove(src)
		}
		return h.proposeInsert(src)
	}
}

func (h *HardDiscs) randomSlot(src rng.Source) int {
	return src.IntRange(0, max(h.numPresent-1, 0))
}

func (h *HardDiscs) proposeTranslate(src rng.Source) *Step {
	slot := h.randomSlot(src)
	displacement := geom.RandomInSphere(src, MaxMoveSize)
	return h.newStep(Translate, slot, geom.Point{}, displacement)
}

func (h *HardDiscs) proposeRemove(src rng.Source) *Step {
	return h.newStep(Remove, h.randomSlot(src), geom.Point{}, geom.Point{})
}

func (h *HardDiscs) proposeInsert(src rng.Source) *Step {
	target := geom.RandomInBox(src, h.extents).RebasePeriodic(h.extents)
	return h.newStep(Insert, -1, target, geom.Point{})
}

// Commit applies an executable step and advances the simulation clock.
func (h *HardDiscs) Commit(step *Step) error {
	if step == nil || step.space != h {
		return ErrForeignStep
	}
	if step.state != stepProposed {
		return ErrStepConsumed
	}
	if step.revision != h.revision {
		return fmt.Errorf("%w: proposed at t=%d, now t=%d", ErrStaleStep, step.createdAt, h.simulationTime)
	}
	if !step.IsExecutable() {
		return ErrNotExecutable
	}

	switch step.kind {
	case Translate:
		h.translateSlot(step.slot, step.displacement)
	case Remove:
		h.removeSlot(step.slot)
	case Insert:
		step.inserted = h.insertAt(step.target)
	}
	step.state = stepExecuted
	h.simulationTime++
	h.revision++
	return nil
}

// InsertDisc places a disc at the rebased position without a step. The
// simulation clock is not advanced.
func (h *HardDiscs) InsertDisc(p geom.Point) (disc.ID, error) {
	p = p.RebasePeriodic(h.extents)
	if h.IsOverlapping(disc.Probe(p)) {
		return 0, fmt.Errorf("%w: %v", ErrOverlap, p)
	}
	id := h.insertAt(p)
	h.revision++
	return id, nil
}

// RemoveDisc deactivates the disc in slot without a step. The last active
// disc takes over the slot.
func (h *HardDiscs) RemoveDisc(slot int) error {
	if slot < 0 || slot >= h.numPresent {
		return fmt.Errorf("%w: %d of %d", ErrSlotOutOfRange, slot, h.numPresent)
	}
	h.removeSlot(slot)
	h.revision++
	return nil
}

func (h *HardDiscs) insertAt(p geom.Point) disc.ID {
	if h.numPresent == len(h.arena) {
		h.grow()
		h.logger.Debug("disc arena grown", "capacity", len(h.arena))
	}
	id := h.order[h.numPresent]
	h.arena[id].TranslateTo(p)
	h.numPresent++
	h.index.Insert(h.arena[id])
	return id
}

func (h *HardDiscs) removeSlot(slot int) {
	id := h.order[slot]
	last := h.numPresent - 1
	lastID := h.order[last]

	h.order[slot], h.order[last] = lastID, id
	h.slotOf[lastID] = slot
	h.slotOf[id] = last
	h.numPresent--
	h.index.Remove(h.arena[id])
}

func (h *HardDiscs) translateSlot(slot int, displacement geom.Point) {
	id := h.order[slot]
	target := h.arena[id].Center.Add(displacement).RebasePeriodic(h.extents)
	h.index.Remove(h.arena[id])
	h.arena[id].TranslateTo(target)
	h.index.Insert(h.arena[id])
}

// SlotOf returns the pool slot currently holding the disc and whether the
// disc is active.
func (h *HardDiscs) SlotOf(id disc.ID) (int, bool) {
	if int(id) >= len(h.slotOf) {
		return 0, false
	}
	slot := h.slotOf[id]
	return slot, slot < h.numPresent
}
