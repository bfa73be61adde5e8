package geom

import (
	"errors"
	"math"
	"testing"

	"hardspheres/internal/rng"
)

type fixedSource struct {
	draws []float64
	next  int
}

func (s *fixedSource) Float64() float64 {
	v := s.draws[s.next]
	s.next++
	return v
}

func (s *fixedSource) IntRange(lo, _ int) int {
	return lo
}

func TestNewExtentsRejectsNonPositive(t *testing.T) {
	cases := []Extents{
		{0, 1, 1},
		{1, -2, 1},
		{1, 1, math.NaN()},
		{1, math.Inf(1), 1},
	}
	for _, e := range cases {
		if _, err := NewExtents(e[0], e[1], e[2]); !errors.Is(err, ErrInvalidExtents) {
			t.Fatalf("extents %v: expected ErrInvalidExtents, got %v", e, err)
		}
	}
	e, err := NewExtents(4, 6, 3)
	if err != nil {
		t.Fatalf("new extents: %v", err)
	}
	if e.Volume() != 72 {
		t.Fatalf("unexpected volume: %v", e.Volume())
	}
	if e.IsCubic() {
		t.Fatal("expected non-cubic box")
	}
	if c := e.Center(); c != (Point{2, 3, 1.5}) {
		t.Fatalf("unexpected center: %v", c)
	}
}

func TestPeriodicDistanceFarCornerIsOrigin(t *testing.T) {
	extents := Extents{4, 6, 3}
	if d := Origin().PeriodicDistance(NewPoint(4, 6, 3), extents); d != 0 {
		t.Fatalf("expected periodic image distance 0, got %v", d)
	}
}

func TestPeriodicDistanceUsesMinimumImage(t *testing.T) {
	extents := Extents{10, 10, 10}
	cases := []struct {
		a, b Point
		want float64
	}{
		{NewPoint(0.5, 5, 5), NewPoint(9.5, 5, 5), 1},
		{NewPoint(1, 1, 1), NewPoint(2, 1, 1), 1},
		{NewPoint(0, 0, 0), NewPoint(5, 0, 0), 5},
		{NewPoint(0.2, 0.2, 0.2), NewPoint(9.8, 9.8, 9.8), math.Sqrt(3 * 0.4 * 0.4)},
	}
	for _, tc := range cases {
		got := tc.a.PeriodicDistance(tc.b, extents)
		if math.Abs(got-tc.want) > 1e-12 {
			t.Fatalf("%v-%v: expected %v, got %v", tc.a, tc.b, tc.want, got)
		}
		if back := tc.b.PeriodicDistance(tc.a, extents); math.Abs(back-got) > 1e-12 {
			t.Fatalf("periodic distance not symmetric: %v vs %v", got, back)
		}
	}
}

func TestDistanceIsPlainEuclidean(t *testing.T) {
	a, b := NewPoint(0.5, 5, 5), NewPoint(9.5, 5, 5)
	if d := a.Distance(b); d != 9 {
		t.Fatalf("expected 9, got %v", d)
	}
	if d := NewPoint(1, 2, 2).Norm(); d != 3 {
		t.Fatalf("expected norm 3, got %v", d)
	}
}

func TestRebasePeriodic(t *testing.T) {
	extents := Extents{5, 5, 5}
	cases := []struct {
		in, want Point
	}{
		{NewPoint(1, 2, 3), NewPoint(1, 2, 3)},
		{NewPoint(-0.5, 5, 12.25), NewPoint(4.5, 0, 2.25)},
		{NewPoint(-10.5, -5, 4.999), NewPoint(4.5, 0, 4.999)},
	}
	for _, tc := range cases {
		got := tc.in.RebasePeriodic(extents)
		for i := range got {
			if math.Abs(got[i]-tc.want[i]) > 1e-12 {
				t.Fatalf("rebase %v: expected %v, got %v", tc.in, tc.want, got)
			}
			if got[i] < 0 || got[i] >= extents[i] {
				t.Fatalf("rebase %v: coordinate %d outside box: %v", tc.in, i, got[i])
			}
		}
	}
}

func TestRebasePeriodicTinyNegative(t *testing.T) {
	extents := Extents{5, 5, 5}
	got := NewPoint(-1e-18, 0, 0).RebasePeriodic(extents)
	if got[0] < 0 || got[0] >= extents[0] {
		t.Fatalf("coordinate outside box: %v", got[0])
	}
}

func TestRandomInBoxStaysInside(t *testing.T) {
	src := rng.New(11)
	extents := Extents{4, 6, 3}
	for i := 0; i < 1000; i++ {
		p := RandomInBox(src, extents)
		for axis := range p {
			if p[axis] < 0 || p[axis] >= extents[axis] {
				t.Fatalf("point outside box: %v", p)
			}
		}
	}
}

func TestRandomInBoxDrawOrder(t *testing.T) {
	src := &fixedSource{draws: []float64{0.5, 0.25, 0}}
	p := RandomInBox(src, Extents{4, 8, 2})
	if p != (Point{2, 2, 0}) {
		t.Fatalf("unexpected point: %v", p)
	}
}

func TestRandomInSphereStaysInside(t *testing.T) {
	src := rng.New(5)
	const radius = 0.1
	for i := 0; i < 1000; i++ {
		if n := RandomInSphere(src, radius).Norm(); n > radius+1e-12 {
			t.Fatalf("displacement %v exceeds radius", n)
		}
	}
}

func TestRandomInSphereTransforms(t *testing.T) {
	// u2 = 1 maps to the north pole; u3 = 1 maps to the full radius.
	src := &fixedSource{draws: []float64{0, 1, 1}}
	p := RandomInSphere(src, 2)
	if math.Abs(p[2]-2) > 1e-12 || math.Abs(p[0]) > 1e-12 || math.Abs(p[1]) > 1e-12 {
		t.Fatalf("expected north pole at radius 2, got %v", p)
	}

	src = &fixedSource{draws: []float64{0.25, 0.5, 0.125}}
	p = RandomInSphere(src, 2)
	if math.Abs(p.Norm()-1) > 1e-12 {
		t.Fatalf("expected radius 2*cbrt(1/8)=1, got %v", p.Norm())
	}
	if math.Abs(p[1]-1) > 1e-12 {
		t.Fatalf("expected azimuth pi/2 on the equator, got %v", p)
	}
}
