// Package forest implements a CART decision tree and a bagged random forest
// for classifying feature vectors into string labels.
//
// Trees are stored as arenas of nodes addressed by integer index, which keeps
// them trivially serializable and comparable. Every random draw comes from a
// caller-supplied *rand.Rand so fitting is reproducible for a fixed seed and
// input order. Fitted trees and forests are immutable and safe for concurrent
// prediction.
package forest

import (
	"fmt"
	"math/rand/v2"
	"sort"
)

// TrainingSet is an ordered collection of labeled feature vectors.
// Features[i] is labeled Labels[i].
type TrainingSet struct {
	Features [][]float64
	Labels   []string
}

// Len returns the number of samples.
func (s TrainingSet) Len() int {
	return len(s.Labels)
}

// Append adds one labeled sample.
func (s *TrainingSet) Append(features []float64, label string) {
	s.Features = append(s.Features, features)
	s.Labels = append(s.Labels, label)
}

// Validate checks the set invariants and returns the shared vector width.
func (s TrainingSet) Validate() (int, error) {
	if len(s.Features) != len(s.Labels) {
		return 0, fmt.Errorf("%w: %d feature vectors, %d labels", ErrLabelLengthMismatch, len(s.Features), len(s.Labels))
	}
	if len(s.Features) == 0 {
		return 0, ErrEmptyTrainingSet
	}

	width := len(s.Features[0])
	if width == 0 {
		return 0, fmt.Errorf("%w: sample 0 has no features", ErrFeatureDimensionMismatch)
	}
	for i, f := range s.Features {
		if len(f) != width {
			return 0, fmt.Errorf("%w: sample %d has %d features, expected %d", ErrFeatureDimensionMismatch, i, len(f), width)
		}
	}
	return width, nil
}

// Classes returns the sorted distinct labels.
func (s TrainingSet) Classes() []string {
	seen := make(map[string]struct{}, len(s.Labels))
	classes := make([]string, 0)
	for _, l := range s.Labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		classes = append(classes, l)
	}
	sort.Strings(classes)
	return classes
}

// Subset returns the samples at idx in order. Vectors are shared, not copied.
func (s TrainingSet) Subset(idx []int) TrainingSet {
	out := TrainingSet{
		Features: make([][]float64, len(idx)),
		Labels:   make([]string, len(idx)),
	}
	for i, j := range idx {
		out.Features[i] = s.Features[j]
		out.Labels[i] = s.Labels[j]
	}
	return out
}

// NewRand returns a deterministic generator for seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
