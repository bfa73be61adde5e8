package confinement

import (
	"errors"
	"math/rand"
	"testing"

	"hardspheres/internal/disc"
	"hardspheres/internal/geom"
)

func probeAt(x, y, z float64) disc.Disc {
	return disc.Probe(geom.NewPoint(x, y, z))
}

func TestBulkNeverCollides(t *testing.T) {
	extents := geom.Extents{4, 6, 3}
	bulk, err := NewBulk(extents)
	if err != nil {
		t.Fatalf("new bulk: %v", err)
	}
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 10000; i++ {
		p := geom.NewPoint(r.Float64()*extents[0], r.Float64()*extents[1], r.Float64()*extents[2])
		if bulk.CollidesWith(disc.Probe(p)) {
			t.Fatalf("bulk collided at %v", p)
		}
	}
}

func TestSingularDefects(t *testing.T) {
	extents := geom.Extents{4, 6, 3}
	point, _ := NewPointDefect(extents)
	line, _ := NewLineDefect(extents)
	plane, _ := NewPlaneDefect(extents)

	cases := []struct {
		name                string
		probe               disc.Disc
		point, line, planeC bool
	}{
		{name: "near center", probe: probeAt(2.2, 2.8, 1.6), point: true, line: true, planeC: true},
		{name: "near axis", probe: probeAt(1.9, 3.1, 2.5), line: true, planeC: true},
		{name: "near plane", probe: probeAt(1.7, 1.0, 1.4), planeC: true},
		{name: "far corner", probe: probeAt(0.3, 0.3, 0.3)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := point.CollidesWith(tc.probe); got != tc.point {
				t.Fatalf("point defect: got %v want %v", got, tc.point)
			}
			if got := line.CollidesWith(tc.probe); got != tc.line {
				t.Fatalf("line defect: got %v want %v", got, tc.line)
			}
			if got := plane.CollidesWith(tc.probe); got != tc.planeC {
				t.Fatalf("plane defect: got %v want %v", got, tc.planeC)
			}
		})
	}
}

func TestNodalSurfaces(t *testing.T) {
	extents := geom.Extents{8, 8, 8}
	p, _ := NewPSurface(extents)
	d, _ := NewDSurface(extents)
	g, _ := NewGSurface(extents)
	inner, _ := NewInnerIWPSurface(extents)
	outer, _ := NewOuterIWPSurface(extents)

	cases := []struct {
		name    string
		functor Functor
		probe   disc.Disc
		want    bool
	}{
		{name: "p origin", functor: p, probe: probeAt(0, 0, 0), want: false},
		{name: "p center", functor: p, probe: probeAt(4, 4, 4), want: true},
		{name: "d origin on surface", functor: d, probe: probeAt(0, 0, 0), want: false},
		{name: "d positive lobe", functor: d, probe: probeAt(2, 2, 2), want: false},
		{name: "d negative lobe", functor: d, probe: probeAt(6, 2, 2), want: true},
		{name: "g positive lobe", functor: g, probe: probeAt(2, 6, 0), want: false},
		{name: "g negative lobe", functor: g, probe: probeAt(6, 2, 0), want: true},
		{name: "inner iwp origin", functor: inner, probe: probeAt(0, 0, 0), want: false},
		{name: "inner iwp face", functor: inner, probe: probeAt(4, 0, 0), want: true},
		{name: "outer iwp origin", functor: outer, probe: probeAt(0, 0, 0), want: true},
		{name: "outer iwp face", functor: outer, probe: probeAt(4, 0, 0), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.functor.CollidesWith(tc.probe); got != tc.want {
				t.Fatalf("collides: got %v want %v", got, tc.want)
			}
		})
	}
}

func TestSphereExtentsValidation(t *testing.T) {
	cases := []struct {
		name      string
		extents   geom.Extents
		innerFail bool
		outerFail bool
	}{
		{name: "x differs", extents: geom.Extents{4, 5, 5}, innerFail: true, outerFail: true},
		{name: "y differs", extents: geom.Extents{5, 3, 5}, innerFail: true, outerFail: true},
		{name: "z differs", extents: geom.Extents{5, 5, 1}, innerFail: true, outerFail: true},
		{name: "cubic below wall offset", extents: geom.Extents{5, 5, 5}, outerFail: true},
		{name: "cubic", extents: geom.Extents{8, 8, 8}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewInnerSphere(tc.extents)
			if tc.innerFail != (err != nil) {
				t.Fatalf("inner sphere: unexpected err=%v", err)
			}
			if err != nil && !errors.Is(err, ErrSphereExtents) {
				t.Fatalf("inner sphere: expected ErrSphereExtents, got %v", err)
			}
			_, err = NewOuterSphere(tc.extents)
			if tc.outerFail != (err != nil) {
				t.Fatalf("outer sphere: unexpected err=%v", err)
			}
			if err != nil && !errors.Is(err, ErrSphereExtents) {
				t.Fatalf("outer sphere: expected ErrSphereExtents, got %v", err)
			}
		})
	}
}

func TestCylinderExtentsValidation(t *testing.T) {
	cases := []struct {
		name      string
		extents   geom.Extents
		innerFail bool
		outerFail bool
	}{
		{name: "x differs", extents: geom.Extents{4, 5, 5}, innerFail: true, outerFail: true},
		{name: "y differs", extents: geom.Extents{5, 3, 5}, innerFail: true, outerFail: true},
		{name: "flat small", extents: geom.Extents{5, 5, 1}, outerFail: true},
		{name: "cubic small", extents: geom.Extents{5, 5, 5}, outerFail: true},
		{name: "flat", extents: geom.Extents{8, 8, 1}},
		{name: "cubic", extents: geom.Extents{8, 8, 8}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewInnerCylinder(tc.extents)
			if tc.innerFail != (err != nil) {
				t.Fatalf("inner cylinder: unexpected err=%v", err)
			}
			if err != nil && !errors.Is(err, ErrCylinderExtents) {
				t.Fatalf("inner cylinder: expected ErrCylinderExtents, got %v", err)
			}
			_, err = NewOuterCylinder(tc.extents)
			if tc.outerFail != (err != nil) {
				t.Fatalf("outer cylinder: unexpected err=%v", err)
			}
			if err != nil && !errors.Is(err, ErrCylinderExtents) {
				t.Fatalf("outer cylinder: expected ErrCylinderExtents, got %v", err)
			}
		})
	}
}

func TestSimpleGeometryPredicates(t *testing.T) {
	extents := geom.Extents{10, 10, 10}
	innerSphere, err := NewInnerSphere(extents)
	if err != nil {
		t.Fatalf("inner sphere: %v", err)
	}
	outerSphere, err := NewOuterSphere(extents)
	if err != nil {
		t.Fatalf("outer sphere: %v", err)
	}
	innerCylinder, err := NewInnerCylinder(extents)
	if err != nil {
		t.Fatalf("inner cylinder: %v", err)
	}
	outerCylinder, err := NewOuterCylinder(extents)
	if err != nil {
		t.Fatalf("outer cylinder: %v", err)
	}
	if outerSphere.Radius() != 1.5 || outerCylinder.Radius() != 1.5 {
		t.Fatalf("unexpected outer radii: %v %v", outerSphere.Radius(), outerCylinder.Radius())
	}

	cases := []struct {
		name    string
		functor Functor
		probe   disc.Disc
		want    bool
	}{
		{name: "inner sphere center", functor: innerSphere, probe: probeAt(5, 5, 5), want: false},
		{name: "inner sphere near wall", functor: innerSphere, probe: probeAt(5, 5, 9.4), want: false},
		{name: "inner sphere through wall", functor: innerSphere, probe: probeAt(5, 5, 9.6), want: true},
		{name: "inner sphere corner", functor: innerSphere, probe: probeAt(0.5, 0.5, 0.5), want: true},
		{name: "outer sphere center", functor: outerSphere, probe: probeAt(5, 5, 5), want: true},
		{name: "outer sphere touching", functor: outerSphere, probe: probeAt(5, 5, 6.9), want: true},
		{name: "outer sphere clear", functor: outerSphere, probe: probeAt(5, 5, 7.1), want: false},
		{name: "inner cylinder axis", functor: innerCylinder, probe: probeAt(5, 5, 0.2), want: false},
		{name: "inner cylinder through wall", functor: innerCylinder, probe: probeAt(9.6, 5, 3), want: true},
		{name: "inner cylinder z ignored", functor: innerCylinder, probe: probeAt(5, 5, 9.9), want: false},
		{name: "outer cylinder axis", functor: outerCylinder, probe: probeAt(5, 5, 9.9), want: true},
		{name: "outer cylinder touching", functor: outerCylinder, probe: probeAt(6.9, 5, 0.3), want: true},
		{name: "outer cylinder clear", functor: outerCylinder, probe: probeAt(7.1, 5, 0.3), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.functor.CollidesWith(tc.probe); got != tc.want {
				t.Fatalf("collides: got %v want %v", got, tc.want)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	builtIn := []string{
		"bulk", "point-defect", "line-defect", "plane-defect",
		"p-surface", "d-surface", "g-surface", "inner-iwp-surface", "outer-iwp-surface",
		"inner-sphere", "outer-sphere", "inner-cylinder", "outer-cylinder",
	}
	registered := make(map[string]bool)
	for _, name := range Names() {
		registered[name] = true
	}
	for _, name := range builtIn {
		if !registered[name] {
			t.Fatalf("missing built-in confinement %s", name)
		}
		extents := geom.Extents{8, 8, 8}
		f, err := New(name, extents)
		if err != nil {
			t.Fatalf("new %s: %v", name, err)
		}
		if got := NameOf(f); got != name {
			t.Fatalf("name mismatch: got %s want %s", got, name)
		}
	}

	if _, err := New("torus", geom.Extents{8, 8, 8}); !errors.Is(err, ErrUnknownConfinement) {
		t.Fatalf("expected ErrUnknownConfinement, got %v", err)
	}
	if _, err := New("bulk", geom.Extents{8, 0, 8}); !errors.Is(err, geom.ErrInvalidExtents) {
		t.Fatalf("expected ErrInvalidExtents, got %v", err)
	}
	if _, err := New("outer-sphere", geom.Extents{5, 5, 5}); !errors.Is(err, ErrSphereExtents) {
		t.Fatalf("expected ErrSphereExtents, got %v", err)
	}
	if err := Register("bulk", func(geom.Extents) (Functor, error) { return &Bulk{}, nil }); !errors.Is(err, ErrConfinementExists) {
		t.Fatalf("expected ErrConfinementExists, got %v", err)
	}
}

type slab struct{}

func (slab) CollidesWith(d disc.Disc) bool { return d.Center[2] < 1 }

func TestRegisterCustom(t *testing.T) {
	err := Register("test-slab", func(geom.Extents) (Functor, error) { return slab{}, nil })
	if err != nil && !errors.Is(err, ErrConfinementExists) {
		t.Fatalf("register: %v", err)
	}
	f, err := New("test-slab", geom.Extents{3, 3, 3})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if NameOf(f) != "custom" {
		t.Fatalf("unexpected name: %s", NameOf(f))
	}
	if !f.CollidesWith(probeAt(1, 1, 0.5)) || f.CollidesWith(probeAt(1, 1, 2)) {
		t.Fatal("custom predicate not applied")
	}
}
