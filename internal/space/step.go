package space

import (
	"fmt"

	"hardspheres/internal/disc"
	"hardspheres/internal/geom"
)

type Kind int

const (
	Insert Kind = iota
	Remove
	Translate
)

func (k Kind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Remove:
		return "remove"
	case Translate:
		return "translate"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

type stepState uint8

const (
	stepProposed stepState = iota
	stepExecuted
	stepDiscarded
)

// Step is a proposed move. It is executed at most once; after Execute or
// Discard every further Execute fails with ErrStepConsumed.
type Step struct {
	space        *HardDiscs
	kind         Kind
	slot         int
	target       geom.Point
	displacement geom.Point
	createdAt    uint64
	revision     uint64
	state        stepState

	checked    bool
	executable bool
	inserted   disc.ID
}

func (h *HardDiscs) newStep(kind Kind, slot int, target, displacement geom.Point) *Step {
	return &Step{
		space:        h,
		kind:         kind,
		slot:         slot,
		target:       target,
		displacement: displacement,
		createdAt:    h.simulationTime,
		revision:     h.revision,
	}
}

func (s *Step) Kind() Kind { return s.kind }

// Slot is the pool slot a remove or translate acts on, or -1 for inserts.
func (s *Step) Slot() int { return s.slot }

// Target is the insert position.
func (s *Step) Target() geom.Point { return s.target }

// Displacement is the translate vector before periodic rebasing.
func (s *Step) Displacement() geom.Point { return s.displacement }

// CreatedAt is the simulation time at which the step was proposed.
func (s *Step) CreatedAt() uint64 { return s.createdAt }

// InsertedID is the ID of the disc activated by an executed insert.
func (s *Step) InsertedID() (disc.ID, bool) {
	if s.kind != Insert || s.state != stepExecuted {
		return 0, false
	}
	return s.inserted, true
}

func (s *Step) Executed() bool { return s.state == stepExecuted }

func (s *Step) DeltaE() int {
	switch s.kind {
	case Insert:
		return 1
	case Remove:
		return -1
	default:
		return 0
	}
}

// SelectionProbabilityFactor is the reverse over forward proposal ratio for
// the configuration as it is now. Insert at N and remove at N+1 are exact
// reciprocals.
func (s *Step) SelectionProbabilityFactor() float64 {
	n := float64(s.space.numPresent)
	vl3 := s.space.volume / ReferenceVolume
	switch s.kind {
	case Remove:
		return vl3 / n
	case Insert:
		return (n + 1) / vl3
	default:
		return 1
	}
}

// IsExecutable reports whether committing the step would keep the
// configuration valid. The answer is cached until the configuration changes.
func (s *Step) IsExecutable() bool {
	if s.state != stepProposed || s.revision != s.space.revision {
		return false
	}
	if s.checked {
		return s.executable
	}

	h := s.space
	switch s.kind {
	case Insert:
		s.executable = !h.IsOverlapping(disc.Probe(s.target))
	case Remove:
		s.executable = h.numPresent > 0 && s.slot < h.numPresent
	case Translate:
		s.executable = h.numPresent > 0 && !h.IsOverlappingAfterDisplacement(s.slot, s.displacement)
	}
	s.checked = true
	return s.executable
}

func (s *Step) Execute() error {
	return s.space.Commit(s)
}

// Discard marks a proposed step as rejected.
func (s *Step) Discard() {
	if s.state == stepProposed {
		s.state = stepDiscarded
	}
}
