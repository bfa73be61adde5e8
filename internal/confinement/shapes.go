package confinement

import (
	"fmt"

	"hardspheres/internal/disc"
	"hardspheres/internal/geom"
)

// InnerSphere confines discs to the ball inscribed in a cubic box.
type InnerSphere struct {
	center geom.Point
	radius float64
}

func NewInnerSphere(extents geom.Extents) (*InnerSphere, error) {
	if !extents.IsCubic() {
		return nil, fmt.Errorf("%w: extents %v", ErrSphereExtents, extents)
	}
	return &InnerSphere{center: extents.Center(), radius: extents[0] / 2}, nil
}

func (*InnerSphere) Name() string { return "inner-sphere" }

func (f *InnerSphere) Radius() float64 { return f.radius }

func (f *InnerSphere) CollidesWith(d disc.Disc) bool {
	return f.center.Distance(d.Center) > f.radius-d.Radius
}

// OuterSphere excludes discs from a ball centered in a cubic box whose
// surface keeps WallOffset/2 distance to the box faces.
type OuterSphere struct {
	center geom.Point
	radius float64
}

func NewOuterSphere(extents geom.Extents) (*OuterSphere, error) {
	if !extents.IsCubic() {
		return nil, fmt.Errorf("%w: extents %v", ErrSphereExtents, extents)
	}
	if extents[0] <= WallOffset {
		return nil, fmt.Errorf("%w: side %v must exceed wall offset %v", ErrSphereExtents, extents[0], WallOffset)
	}
	return &OuterSphere{center: extents.Center(), radius: (extents[0] - WallOffset) / 2}, nil
}

func (*OuterSphere) Name() string { return "outer-sphere" }

func (f *OuterSphere) Radius() float64 { return f.radius }

func (f *OuterSphere) CollidesWith(d disc.Disc) bool {
	return f.center.Distance(d.Center) < f.radius+d.Radius
}

func hasSquareBase(extents geom.Extents) bool {
	return extents[0] == extents[1]
}

// InnerCylinder confines discs to the cylinder along z inscribed in the
// square xy cross-section.
type InnerCylinder struct {
	axis   geom.Point
	radius float64
}

func NewInnerCylinder(extents geom.Extents) (*InnerCylinder, error) {
	if !hasSquareBase(extents) {
		return nil, fmt.Errorf("%w: extents %v", ErrCylinderExtents, extents)
	}
	return &InnerCylinder{axis: extents.Center().WithCoord(2, 0), radius: extents[0] / 2}, nil
}

func (*InnerCylinder) Name() string { return "inner-cylinder" }

func (f *InnerCylinder) Radius() float64 { return f.radius }

func (f *InnerCylinder) CollidesWith(d disc.Disc) bool {
	return f.axis.Distance(d.Center.WithCoord(2, 0)) > f.radius-d.Radius
}

// OuterCylinder excludes discs from a cylinder along z through the center of
// the xy cross-section.
type OuterCylinder struct {
	axis   geom.Point
	radius float64
}

func NewOuterCylinder(extents geom.Extents) (*OuterCylinder, error) {
	if !hasSquareBase(extents) {
		return nil, fmt.Errorf("%w: extents %v", ErrCylinderExtents, extents)
	}
	if extents[0] <= WallOffset {
		return nil, fmt.Errorf("%w: side %v must exceed wall offset %v", ErrCylinderExtents, extents[0], WallOffset)
	}
	return &OuterCylinder{axis: extents.Center().WithCoord(2, 0), radius: (extents[0] - WallOffset) / 2}, nil
}

func (*OuterCylinder) Name() string { return "outer-cylinder" }

func (f *OuterCylinder) Radius() float64 { return f.radius }

func (f *OuterCylinder) CollidesWith(d disc.Disc) bool {
	return f.axis.Distance(d.Center.WithCoord(2, 0)) < f.radius+d.Radius
}
