package forest

import (
	"math"
	"math/rand/v2"
)

// Accuracy estimation constants.
const (
	MinAccuracySamples = 10
	MaxAccuracyDraws   = 100
	AccuracyRatio      = 0.2
)

// EstimateAccuracy returns the fraction, in [0,1], of correctly predicted
// samples among min(100, floor(0.2*n)) draws with replacement from set.
//
// The draws come from the data the forest was trained on, so the result is
// an optimistic in-sample figure, not a held-out accuracy. Sets with fewer
// than 10 samples yield 0.
func EstimateAccuracy(f *Forest, set TrainingSet, rng *rand.Rand) (float64, error) {
	if _, err := set.Validate(); err != nil {
		return 0, err
	}
	n := set.Len()
	if n < MinAccuracySamples {
		return 0, nil
	}
	if rng == nil {
		rng = NewRand(0)
	}

	draws := min(MaxAccuracyDraws, int(math.Floor(AccuracyRatio*float64(n))))
	correct := 0
	for range draws {
		i := rng.IntN(n)
		p, err := f.Predict(set.Features[i])
		if err != nil {
			return 0, err
		}
		if p.Label == set.Labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(draws), nil
}
