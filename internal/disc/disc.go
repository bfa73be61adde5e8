package disc

import (
	"math"

	"hardspheres/internal/geom"
)

// Radius is shared by every disc in the system.
const Radius = 0.5

// ID is the stable identity of a disc. Pool slots are reused across
// insert/remove cycles, so identity never derives from position.
type ID uint32

// ProbeID marks a disc that is not a member of any configuration.
const ProbeID ID = math.MaxUint32

type Disc struct {
	ID     ID
	Center geom.Point
	Radius float64
}

func New(id ID, center geom.Point) Disc {
	return Disc{ID: id, Center: center, Radius: Radius}
}

// Probe builds a test disc that can be checked against a configuration
// without being mistaken for one of its members.
func Probe(center geom.Point) Disc {
	return New(ProbeID, center)
}

// TranslateTo moves the disc without any collision check.
func (d *Disc) TranslateTo(p geom.Point) {
	d.Center = p
}

func (d Disc) IsProbe() bool {
	return d.ID == ProbeID
}

func (d Disc) Distance(other Disc) float64 {
	return d.Center.Distance(other.Center)
}

func (d Disc) PeriodicDistance(other Disc, extents geom.Extents) float64 {
	return d.Center.PeriodicDistance(other.Center, extents)
}

func (d Disc) Overlaps(other Disc) bool {
	return d.Distance(other) < d.Radius+other.Radius
}

func (d Disc) OverlapsPeriodic(other Disc, extents geom.Extents) bool {
	return d.PeriodicDistance(other, extents) < d.Radius+other.Radius
}

// Equal compares identities only.
func (d Disc) Equal(other Disc) bool {
	return d.ID == other.ID
}
