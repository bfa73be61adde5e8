// Package geom holds the 3D point arithmetic used by the configuration
// space, including the minimum-image metric of a periodic box.
package geom

import (
	"errors"
	"fmt"
	"math"

	"hardspheres/internal/rng"
)

const Dimensions = 3

var ErrInvalidExtents = errors.New("box extents must be positive and finite")

// Extents are the side lengths of the periodic box.
type Extents [Dimensions]float64

func NewExtents(x, y, z float64) (Extents, error) {
	e := Extents{x, y, z}
	if err := e.Validate(); err != nil {
		return Extents{}, err
	}
	return e, nil
}

func (e Extents) Validate() error {
	for i, v := range e {
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: axis %d = %v", ErrInvalidExtents, i, v)
		}
	}
	return nil
}

func (e Extents) Volume() float64 {
	return e[0] * e[1] * e[2]
}

func (e Extents) Center() Point {
	return Point{e[0] / 2, e[1] / 2, e[2] / 2}
}

func (e Extents) IsCubic() bool {
	return e[0] == e[1] && e[1] == e[2]
}

// Point is a position or displacement in the box.
type Point [Dimensions]float64

func Origin() Point {
	return Point{}
}

func NewPoint(x, y, z float64) Point {
	return Point{x, y, z}
}

// RandomInBox draws a point uniformly inside the box, consuming one draw per
// axis in x, y, z order.
func RandomInBox(src rng.Source, extents Extents) Point {
	var p Point
	for i := range p {
		p[i] = src.Float64() * extents[i]
	}
	return p
}

// RandomInSphere draws a point uniformly inside a ball of the given radius
// around the origin. Draw order: azimuth, polar angle, radial distance.
func RandomInSphere(src rng.Source, maxRadius float64) Point {
	phi := 2 * math.Pi * src.Float64()
	theta := math.Asin(2*src.Float64() - 1)
	r := maxRadius * math.Cbrt(src.Float64())

	cosTheta := math.Cos(theta)
	return Point{
		r * cosTheta * math.Cos(phi),
		r * cosTheta * math.Sin(phi),
		r * math.Sin(theta),
	}
}

func (p Point) Coord(i int) float64 {
	return p[i]
}

func (p Point) WithCoord(i int, v float64) Point {
	p[i] = v
	return p
}

func (p Point) Add(q Point) Point {
	return Point{p[0] + q[0], p[1] + q[1], p[2] + q[2]}
}

func (p Point) Sub(q Point) Point {
	return Point{p[0] - q[0], p[1] - q[1], p[2] - q[2]}
}

func (p Point) Norm() float64 {
	return math.Sqrt(p[0]*p[0] + p[1]*p[1] + p[2]*p[2])
}

// RebasePeriodic maps every coordinate into [0, extent). It has to run after
// each translation so cell lookups stay consistent.
func (p Point) RebasePeriodic(extents Extents) Point {
	for i := range p {
		c := p[i]
		for c < 0 {
			c += extents[i]
		}
		c = math.Mod(c, extents[i])
		if c >= extents[i] {
			c = 0
		}
		p[i] = c
	}
	return p
}

// Distance is the plain Euclidean distance, for confinements that are not
// periodic themselves.
func (p Point) Distance(q Point) float64 {
	return q.Sub(p).Norm()
}

// PeriodicDistance is the minimum-image distance in a box of the given
// extents.
func (p Point) PeriodicDistance(q Point, extents Extents) float64 {
	var sum float64
	for i := range p {
		d := math.Abs(q[i] - p[i])
		if alt := extents[i] - d; alt < d {
			d = alt
		}
		sum += d * d
	}
	return math.Sqrt(sum)
}

func (p Point) String() string {
	return fmt.Sprintf("(%g, %g, %g)", p[0], p[1], p[2])
}
