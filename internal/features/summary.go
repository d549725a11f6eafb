package features

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrNoVectors is returned when summarizing an empty set.
var ErrNoVectors = errors.New("no feature vectors")

// Stats describes the distribution of one feature across a set of vectors.
type Stats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std"`
}

// Summary holds per-feature statistics for a set of vectors.
type Summary struct {
	Count    int     `json:"count"`
	Features []Stats `json:"features"`
}

// Summarize computes per-feature statistics. All vectors must share the
// length of the first one. StdDev is the population standard deviation.
func Summarize(vectors []Vector) (Summary, error) {
	if len(vectors) == 0 {
		return Summary{}, ErrNoVectors
	}

	width := len(vectors[0])
	for i, v := range vectors {
		if len(v) != width {
			return Summary{}, fmt.Errorf("vector %d has %d values, expected %d", i, len(v), width)
		}
	}

	summary := Summary{
		Count:    len(vectors),
		Features: make([]Stats, width),
	}

	column := make([]float64, len(vectors))
	for f := 0; f < width; f++ {
		for i, v := range vectors {
			column[i] = v[f]
		}
		sort.Float64s(column)

		mean, variance := stat.PopMeanVariance(column, nil)
		summary.Features[f] = Stats{
			Min:    column[0],
			Max:    column[len(column)-1],
			Mean:   mean,
			Median: column[len(column)/2],
			StdDev: math.Sqrt(variance),
		}
	}

	return summary, nil
}

// Standardize returns the z-scores of v's values relative to each other.
// A constant vector is returned unchanged.
func Standardize(v Vector) Vector {
	out := make(Vector, len(v))
	copy(out, v)
	if len(v) == 0 {
		return out
	}

	mean, variance := stat.PopMeanVariance(v, nil)
	std := math.Sqrt(variance)
	if std == 0 {
		return out
	}

	floats.AddConst(-mean, out)
	floats.Scale(1/std, out)
	return out
}
