package aggregation

import (
	"math"
	"sort"
)

// minIQRSamples is the smallest series the IQR filter is applied to.
const minIQRSamples = 4

// Clean drops null placeholders (NaN), optionally exact zeros, and IQR
// outliers from values. The result is a subset of values in input order.
//
// Quartiles are positional, Q1 = sorted[n/4] and Q3 = sorted[3n/4], without
// interpolation. Stored aggregates were computed this way; keep it.
func Clean(values []float64, removeZeros bool) []float64 {
	cleaned := make([]float64, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if removeZeros && v == 0 {
			continue
		}
		cleaned = append(cleaned, v)
	}
	if len(cleaned) < minIQRSamples {
		return cleaned
	}

	sorted := append([]float64(nil), cleaned...)
	sort.Float64s(sorted)
	n := len(sorted)
	q1 := sorted[n/4]
	q3 := sorted[(3*n)/4]
	iqr := q3 - q1
	lower := q1 - 1.5*iqr
	upper := q3 + 1.5*iqr

	out := cleaned[:0]
	for _, v := range cleaned {
		if v >= lower && v <= upper {
			out = append(out, v)
		}
	}
	return out
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return sum(values) / float64(len(values))
}

func minMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
