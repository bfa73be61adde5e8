package sampling

import (
	"math"
	"sort"
)

// DensityOfStates maps particle number to the logarithm of the density of
// states.
type DensityOfStates map[int]float64

// Energies returns the populated energies in ascending order.
func (d DensityOfStates) Energies() []int {
	energies := make([]int, 0, len(d))
	for e := range d {
		energies = append(energies, e)
	}
	sort.Ints(energies)
	return energies
}

// Normalized returns a copy shifted so the lowest energy has ln g = 0.
func (d DensityOfStates) Normalized() DensityOfStates {
	out := make(DensityOfStates, len(d))
	if len(d) == 0 {
		return out
	}
	energies := d.Energies()
	offset := d[energies[0]]
	for e, v := range d {
		out[e] = v - offset
	}
	return out
}

func (d DensityOfStates) Clone() DensityOfStates {
	out := make(DensityOfStates, len(d))
	for e, v := range d {
		out[e] = v
	}
	return out
}

// Histogram counts visits per energy.
type Histogram map[int]uint64

// Flatness is min/mean over the visited energies, 0 when every count is zero.
func (h Histogram) Flatness() float64 {
	if len(h) == 0 {
		return 0
	}
	minCount := uint64(math.MaxUint64)
	var sum uint64
	for _, c := range h {
		sum += c
		if c < minCount {
			minCount = c
		}
	}
	if sum == 0 {
		return 0
	}
	mean := float64(sum) / float64(len(h))
	return float64(minCount) / mean
}

// Reset zeroes every count but keeps the visited energies.
func (h Histogram) Reset() {
	for e := range h {
		h[e] = 0
	}
}

func (h Histogram) Clone() Histogram {
	out := make(Histogram, len(h))
	for e, c := range h {
		out[e] = c
	}
	return out
}
