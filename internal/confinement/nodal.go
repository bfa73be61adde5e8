package confinement

import (
	"math"

	"hardspheres/internal/disc"
	"hardspheres/internal/geom"
)

// Nodal approximations of triply periodic minimal surfaces. Each variant
// evaluates a level-set function of the disc center with one period per box
// side and forbids one side of it.

type nodalPhases struct {
	k geom.Point
}

func newNodalPhases(extents geom.Extents) nodalPhases {
	return nodalPhases{k: geom.Point{
		2 * math.Pi / extents[0],
		2 * math.Pi / extents[1],
		2 * math.Pi / extents[2],
	}}
}

func (n nodalPhases) angles(p geom.Point) (x, y, z float64) {
	return n.k[0] * p[0], n.k[1] * p[1], n.k[2] * p[2]
}

// PSurface is the Schwarz primitive surface.
type PSurface struct{ nodalPhases }

func NewPSurface(extents geom.Extents) (*PSurface, error) {
	return &PSurface{newNodalPhases(extents)}, nil
}

func (*PSurface) Name() string { return "p-surface" }

func (f *PSurface) Level(p geom.Point) float64 {
	x, y, z := f.angles(p)
	return math.Cos(x) + math.Cos(y) + math.Cos(z)
}

func (f *PSurface) CollidesWith(d disc.Disc) bool {
	return f.Level(d.Center) < 0
}

// DSurface is the Schwarz diamond surface.
type DSurface struct{ nodalPhases }

func NewDSurface(extents geom.Extents) (*DSurface, error) {
	return &DSurface{newNodalPhases(extents)}, nil
}

func (*DSurface) Name() string { return "d-surface" }

func (f *DSurface) Level(p geom.Point) float64 {
	x, y, z := f.angles(p)
	sx, cx := math.Sincos(x)
	sy, cy := math.Sincos(y)
	sz, cz := math.Sincos(z)
	return sx*sy*sz + sx*cy*cz + cx*sy*cz + cx*cy*sz
}

func (f *DSurface) CollidesWith(d disc.Disc) bool {
	return f.Level(d.Center) < 0
}

// GSurface is the Schoen gyroid.
type GSurface struct{ nodalPhases }

func NewGSurface(extents geom.Extents) (*GSurface, error) {
	return &GSurface{newNodalPhases(extents)}, nil
}

func (*GSurface) Name() string { return "g-surface" }

func (f *GSurface) Level(p geom.Point) float64 {
	x, y, z := f.angles(p)
	sx, cx := math.Sincos(x)
	sy, cy := math.Sincos(y)
	sz, cz := math.Sincos(z)
	return cx*sy + cy*sz + cz*sx
}

func (f *GSurface) CollidesWith(d disc.Disc) bool {
	return f.Level(d.Center) < 0
}

func iwpLevel(n nodalPhases, p geom.Point) float64 {
	x, y, z := n.angles(p)
	cx, cy, cz := math.Cos(x), math.Cos(y), math.Cos(z)
	return 2*(cx*cy+cy*cz+cz*cx) - (math.Cos(2*x) + math.Cos(2*y) + math.Cos(2*z))
}

// InnerIWPSurface forbids the negative side of the IWP level set.
type InnerIWPSurface struct{ nodalPhases }

func NewInnerIWPSurface(extents geom.Extents) (*InnerIWPSurface, error) {
	return &InnerIWPSurface{newNodalPhases(extents)}, nil
}

func (*InnerIWPSurface) Name() string { return "inner-iwp-surface" }

func (f *InnerIWPSurface) Level(p geom.Point) float64 {
	return iwpLevel(f.nodalPhases, p)
}

func (f *InnerIWPSurface) CollidesWith(d disc.Disc) bool {
	return f.Level(d.Center) < 0
}

// OuterIWPSurface forbids the positive side of the IWP level set.
type OuterIWPSurface struct{ nodalPhases }

func NewOuterIWPSurface(extents geom.Extents) (*OuterIWPSurface, error) {
	return &OuterIWPSurface{newNodalPhases(extents)}, nil
}

func (*OuterIWPSurface) Name() string { return "outer-iwp-surface" }

func (f *OuterIWPSurface) Level(p geom.Point) float64 {
	return iwpLevel(f.nodalPhases, p)
}

func (f *OuterIWPSurface) CollidesWith(d disc.Disc) bool {
	return f.Level(d.Center) > 0
}
