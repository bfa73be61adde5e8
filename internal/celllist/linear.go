package celllist

import (
	"fmt"

	"hardspheres/internal/disc"
	"hardspheres/internal/geom"
)

// Linear is the exhaustive reference index: every query returns every
// indexed disc.
type Linear struct {
	ids  []disc.ID
	slot map[disc.ID]int
}

func NewLinear() *Linear {
	return &Linear{slot: make(map[disc.ID]int)}
}

func (l *Linear) Len() int { return len(l.ids) }

func (l *Linear) Insert(d disc.Disc) {
	if _, ok := l.slot[d.ID]; ok {
		panic(fmt.Sprintf("celllist: disc %d already indexed", d.ID))
	}
	l.slot[d.ID] = len(l.ids)
	l.ids = append(l.ids, d.ID)
}

func (l *Linear) Remove(d disc.Disc) {
	i, ok := l.slot[d.ID]
	if !ok {
		panic(fmt.Sprintf("celllist: disc %d not indexed", d.ID))
	}
	last := len(l.ids) - 1
	l.ids[i] = l.ids[last]
	l.slot[l.ids[i]] = i
	l.ids = l.ids[:last]
	delete(l.slot, d.ID)
}

func (l *Linear) Neighbours(_ geom.Point, dst []disc.ID) []disc.ID {
	return append(dst, l.ids...)
}
