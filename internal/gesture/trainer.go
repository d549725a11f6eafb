package gesture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/mudra/internal/features"
	"github.com/ayusman/mudra/internal/forest"
)

// DefaultMinSamples is the smallest training set Train accepts.
const DefaultMinSamples = 50

// ErrNotEnoughSamples is returned when a training set is below the trainer's minimum.
var ErrNotEnoughSamples = errors.New("not enough training samples")

// SampleSource supplies the stored training set of a sign family.
type SampleSource interface {
	TrainingSet(kind string) (forest.TrainingSet, error)
}

// ModelStore persists trained forests per sign family.
type ModelStore interface {
	SaveModel(kind string, f *forest.Forest, accuracy float64, samples int) error
	LoadModel(kind string) (*forest.Forest, error)
}

// Trainer fits forests from labeled feature vectors.
type Trainer struct {
	Params     forest.Params
	MinSamples int
	Logger     *zap.Logger
}

// NewTrainer creates a Trainer. A non-positive minSamples selects
// DefaultMinSamples and a nil logger discards output.
func NewTrainer(params forest.Params, minSamples int, logger *zap.Logger) *Trainer {
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trainer{Params: params, MinSamples: minSamples, Logger: logger}
}

// TrainResult is the outcome of one training run.
type TrainResult struct {
	Kind     string         `json:"kind"`
	Forest   *forest.Forest `json:"-"`
	Accuracy float64        `json:"accuracy"` // in-sample fraction in [0,1]
	Samples  int            `json:"samples"`
	Classes  []string       `json:"classes"`
	Duration time.Duration  `json:"duration"`
}

// Train fits a forest for kind on set and estimates its accuracy.
//
// Every vector must have features.Length values and every label must belong
// to kind. The forest is tagged with features.SchemaVersion. Each kind draws
// from its own generator seeded from Params.Seed, so results do not depend on
// which other kinds are trained alongside it.
func (t *Trainer) Train(kind string, set forest.TrainingSet, opts ...forest.FitOption) (*TrainResult, error) {
	if !ValidKind(kind) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if set.Len() < t.MinSamples {
		return nil, fmt.Errorf("%w: %s has %d, need %d", ErrNotEnoughSamples, kind, set.Len(), t.MinSamples)
	}
	if err := checkSet(kind, set); err != nil {
		return nil, err
	}

	start := time.Now()
	rng := forest.NewRand(t.Params.Seed + uint64(kindIndex(kind)))

	opts = append([]forest.FitOption{forest.WithRand(rng), forest.WithSchema(features.SchemaVersion)}, opts...)
	f, err := forest.Fit(set, t.Params, opts...)
	if err != nil {
		return nil, fmt.Errorf("fit %s: %w", kind, err)
	}

	accuracy, err := forest.EstimateAccuracy(f, set, rng)
	if err != nil {
		return nil, fmt.Errorf("estimate %s accuracy: %w", kind, err)
	}

	result := &TrainResult{
		Kind:     kind,
		Forest:   f,
		Accuracy: accuracy,
		Samples:  set.Len(),
		Classes:  f.Classes,
		Duration: time.Since(start),
	}

	t.Logger.Info("model trained",
		zap.String("kind", kind),
		zap.Int("samples", result.Samples),
		zap.Int("classes", len(result.Classes)),
		zap.Int("trees", len(f.Trees)),
		zap.Float64("accuracy", accuracy),
		zap.Duration("took", result.Duration),
	)

	return result, nil
}

func checkSet(kind string, set forest.TrainingSet) error {
	if len(set.Features) != len(set.Labels) {
		return fmt.Errorf("%w: %d vectors, %d labels", forest.ErrLabelLengthMismatch, len(set.Features), len(set.Labels))
	}
	for i, v := range set.Features {
		if len(v) != features.Length {
			return fmt.Errorf("%w: sample %d has %d features, expected %d", forest.ErrFeatureDimensionMismatch, i, len(v), features.Length)
		}
		if !ValidLabel(kind, set.Labels[i]) {
			return fmt.Errorf("sample %d: label %q is not a %s sign", i, set.Labels[i], kind)
		}
	}
	return nil
}

// TrainKinds trains every kind in sets concurrently. It stops at the first
// failure and returns that error. Options are shared by all runs, so a
// WithProgress callback must be safe for concurrent use.
func (t *Trainer) TrainKinds(ctx context.Context, sets map[string]forest.TrainingSet, opts ...forest.FitOption) (map[string]*TrainResult, error) {
	g, ctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	results := make(map[string]*TrainResult, len(sets))

	for kind, set := range sets {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := t.Train(kind, set, opts...)
			if err != nil {
				return err
			}
			mu.Lock()
			results[kind] = res
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Retrain loads kind's samples from src, trains, and saves the forest to
// every store in dst in order.
func (t *Trainer) Retrain(kind string, src SampleSource, dst []ModelStore, opts ...forest.FitOption) (*TrainResult, error) {
	set, err := src.TrainingSet(kind)
	if err != nil {
		return nil, fmt.Errorf("load %s samples: %w", kind, err)
	}

	res, err := t.Train(kind, set, opts...)
	if err != nil {
		return nil, err
	}

	for _, s := range dst {
		if err := s.SaveModel(kind, res.Forest, res.Accuracy, res.Samples); err != nil {
			return nil, fmt.Errorf("save %s model: %w", kind, err)
		}
	}
	return res, nil
}
