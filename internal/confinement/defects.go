package confinement

import (
	"math"

	"hardspheres/internal/disc"
	"hardspheres/internal/geom"
)

// PointDefect forbids a ball of one disc radius around the box center.
type PointDefect struct {
	center geom.Point
}

func NewPointDefect(extents geom.Extents) (*PointDefect, error) {
	return &PointDefect{center: extents.Center()}, nil
}

func (*PointDefect) Name() string { return "point-defect" }

func (f *PointDefect) CollidesWith(d disc.Disc) bool {
	return f.center.Distance(d.Center) < d.Radius
}

// LineDefect forbids a cylinder of one disc radius around the line parallel
// to z through the center of the xy-plane.
type LineDefect struct {
	center geom.Point
}

func NewLineDefect(extents geom.Extents) (*LineDefect, error) {
	return &LineDefect{center: extents.Center().WithCoord(2, 0)}, nil
}

func (*LineDefect) Name() string { return "line-defect" }

func (f *LineDefect) CollidesWith(d disc.Disc) bool {
	projected := d.Center.WithCoord(2, 0)
	return f.center.Distance(projected) < d.Radius
}

// PlaneDefect forbids a slab of one disc radius around the plane x = Lx/2.
type PlaneDefect struct {
	x float64
}

func NewPlaneDefect(extents geom.Extents) (*PlaneDefect, error) {
	return &PlaneDefect{x: extents[0] / 2}, nil
}

func (*PlaneDefect) Name() string { return "plane-defect" }

func (f *PlaneDefect) CollidesWith(d disc.Disc) bool {
	return math.Abs(d.Center[0]-f.x) < d.Radius
}
