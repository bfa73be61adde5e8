// Package confinement defines the geometric predicates that forbid parts of
// the periodic box in addition to hard-core non-overlap.
//
// Every variant is built once from the box extents and holds no simulation
// state afterwards, so a Functor can be queried any number of times and from
// any number of read-only callers.
package confinement

import (
	"errors"

	"hardspheres/internal/disc"
	"hardspheres/internal/geom"
)

// WallOffset is subtracted from the box side to size the excluded shape of
// the outer sphere and outer cylinder variants.
const WallOffset = 7.0

var (
	ErrSphereExtents      = errors.New("sphere confinement requires a cubic box")
	ErrCylinderExtents    = errors.New("cylinder confinement requires a square xy cross-section")
	ErrUnknownConfinement = errors.New("unknown confinement")
)

// Functor reports whether a disc intersects the forbidden region.
type Functor interface {
	CollidesWith(d disc.Disc) bool
}

// Named is implemented by the built-in variants.
type Named interface {
	Name() string
}

// Bulk confines nothing.
type Bulk struct{}

func NewBulk(_ geom.Extents) (*Bulk, error) {
	return &Bulk{}, nil
}

func (*Bulk) Name() string { return "bulk" }

func (*Bulk) CollidesWith(disc.Disc) bool {
	return false
}

// NameOf returns the registered name of a functor, or "custom".
func NameOf(f Functor) string {
	if n, ok := f.(Named); ok {
		return n.Name()
	}
	return "custom"
}
