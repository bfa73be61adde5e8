package disc

import (
	"testing"

	"hardspheres/internal/geom"
)

func TestEqualityIsByIDOnly(t *testing.T) {
	a := New(3, geom.NewPoint(1, 1, 1))
	b := New(3, geom.NewPoint(4, 4, 4))
	c := New(4, geom.NewPoint(1, 1, 1))
	if !a.Equal(b) {
		t.Fatal("expected discs with equal id to be equal")
	}
	if a.Equal(c) {
		t.Fatal("expected discs with different ids to differ")
	}
}

func TestProbeIsNotAMember(t *testing.T) {
	p := Probe(geom.NewPoint(1, 2, 3))
	if !p.IsProbe() || p.ID != ProbeID {
		t.Fatalf("unexpected probe: %+v", p)
	}
	if p.Radius != Radius {
		t.Fatalf("unexpected radius: %v", p.Radius)
	}
	if New(0, geom.Origin()).IsProbe() {
		t.Fatal("member disc reported as probe")
	}
}

func TestTranslateTo(t *testing.T) {
	d := New(1, geom.Origin())
	d.TranslateTo(geom.NewPoint(2, 3, 4))
	if d.Center != geom.NewPoint(2, 3, 4) {
		t.Fatalf("unexpected center: %v", d.Center)
	}
}

func TestOverlapPlainAndPeriodic(t *testing.T) {
	extents := geom.Extents{5, 5, 5}
	a := New(0, geom.NewPoint(0.25, 2, 2))
	b := New(1, geom.NewPoint(4.9, 2, 2))

	if a.Overlaps(b) {
		t.Fatal("expected no plain overlap at distance 4.65")
	}
	if !a.OverlapsPeriodic(b, extents) {
		t.Fatal("expected periodic overlap at image distance 0.35")
	}

	touching := New(2, geom.NewPoint(1.25, 2, 2))
	if a.Overlaps(touching) {
		t.Fatal("discs at exactly twice the radius must not overlap")
	}
}
