package stats

import "math"

type SeriesPoint struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
}

// MeasurementSummary describes a particle-number series. Density and
// PackingFraction are derived from Mean.
type MeasurementSummary struct {
	Count           int     `json:"count"`
	Mean            float64 `json:"mean"`
	Std             float64 `json:"std"`
	Min             int     `json:"min"`
	Max             int     `json:"max"`
	Density         float64 `json:"density"`
	PackingFraction float64 `json:"packing_fraction"`
}

// SummarizeMeasurements computes the moments of values for a box of the given
// volume holding discs of discVolume each.
func SummarizeMeasurements(values []int, volume, discVolume float64) MeasurementSummary {
	if len(values) == 0 {
		return MeasurementSummary{}
	}
	summary := MeasurementSummary{Count: len(values), Min: values[0], Max: values[0]}
	sum := 0.0
	for _, v := range values {
		sum += float64(v)
		summary.Min = min(summary.Min, v)
		summary.Max = max(summary.Max, v)
	}
	summary.Mean = sum / float64(len(values))

	variance := 0.0
	for _, v := range values {
		d := float64(v) - summary.Mean
		variance += d * d
	}
	summary.Std = math.Sqrt(variance / float64(len(values)))

	if volume > 0 {
		summary.Density = summary.Mean / volume
		summary.PackingFraction = summary.Density * discVolume
	}
	return summary
}

// BlockAverages averages consecutive blocks of blockSize values. A trailing
// partial block is averaged over its own length.
func BlockAverages(values []int, blockSize int) []SeriesPoint {
	if blockSize <= 0 {
		blockSize = 100
	}
	points := make([]SeriesPoint, 0, (len(values)+blockSize-1)/blockSize)
	for start := 0; start < len(values); start += blockSize {
		end := min(start+blockSize, len(values))
		sum := 0
		for _, v := range values[start:end] {
			sum += v
		}
		points = append(points, SeriesPoint{Index: start, Value: float64(sum) / float64(end-start)})
	}
	return points
}
