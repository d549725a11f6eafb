package forest

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Default forest hyperparameters.
const (
	DefaultNumTrees    = 30
	DefaultSampleRatio = 0.8
)

// Params configures forest training.
type Params struct {
	NumTrees        int     `json:"num_trees" yaml:"num_trees"`
	MaxDepth        int     `json:"max_depth" yaml:"max_depth"`
	MinSamplesSplit int     `json:"min_samples_split" yaml:"min_samples_split"`
	SampleRatio     float64 `json:"sample_ratio" yaml:"sample_ratio"`
	Seed            uint64  `json:"seed" yaml:"seed"`
}

// DefaultParams returns the parameters used when nothing is configured.
func DefaultParams() Params {
	return Params{
		NumTrees:        DefaultNumTrees,
		MaxDepth:        DefaultMaxDepth,
		MinSamplesSplit: DefaultMinSamplesSplit,
		SampleRatio:     DefaultSampleRatio,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.NumTrees <= 0 {
		p.NumTrees = d.NumTrees
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = d.MaxDepth
	}
	if p.MinSamplesSplit <= 0 {
		p.MinSamplesSplit = d.MinSamplesSplit
	}
	if p.SampleRatio <= 0 || p.SampleRatio > 1 {
		p.SampleRatio = d.SampleRatio
	}
	return p
}

func (p Params) tree() TreeParams {
	return TreeParams{MaxDepth: p.MaxDepth, MinSamplesSplit: p.MinSamplesSplit}
}

// Forest is an ensemble of trees fit on bootstrap samples of one training set.
type Forest struct {
	// Schema identifies the feature extraction scheme the model was fit on.
	// Empty means unchecked.
	Schema      string
	Classes     []string
	Trees       []*Tree
	Params      Params
	NumFeatures int
	Samples     int
}

// Prediction is the outcome of a forest vote.
type Prediction struct {
	Label string `json:"label"`
	// Confidence is the fraction of trees that voted for Label, in (0, 1].
	Confidence float64        `json:"confidence"`
	Votes      map[string]int `json:"votes"`
}

type fitOptions struct {
	rng      *rand.Rand
	progress func(done, total int)
	schema   string
}

// FitOption customizes Fit.
type FitOption func(*fitOptions)

// WithRand supplies the random source, overriding Params.Seed.
func WithRand(rng *rand.Rand) FitOption {
	return func(o *fitOptions) { o.rng = rng }
}

// WithProgress registers a callback invoked after each tree is fit.
func WithProgress(fn func(done, total int)) FitOption {
	return func(o *fitOptions) { o.progress = fn }
}

// WithSchema records the feature schema the training vectors were built with.
func WithSchema(schema string) FitOption {
	return func(o *fitOptions) { o.schema = schema }
}

// Fit trains params.NumTrees trees, each on a bootstrap sample of
// max(1, floor(SampleRatio*n)) draws with replacement. Trees are fit in
// order from a single random stream, so the result is reproducible for a
// fixed seed and input order.
func Fit(set TrainingSet, params Params, opts ...FitOption) (*Forest, error) {
	width, err := set.Validate()
	if err != nil {
		return nil, err
	}
	params = params.withDefaults()

	o := fitOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		o.rng = NewRand(params.Seed)
	}

	f := &Forest{
		Schema:      o.schema,
		Classes:     set.Classes(),
		Trees:       make([]*Tree, 0, params.NumTrees),
		Params:      params,
		NumFeatures: width,
		Samples:     set.Len(),
	}

	for i := 0; i < params.NumTrees; i++ {
		sample := set.Subset(Bootstrap(set.Len(), params.SampleRatio, o.rng))
		tree, err := FitTree(sample, params.tree(), o.rng)
		if err != nil {
			return nil, fmt.Errorf("fit tree %d: %w", i, err)
		}
		f.Trees = append(f.Trees, tree)
		if o.progress != nil {
			o.progress(i+1, params.NumTrees)
		}
	}

	return f, nil
}

// Bootstrap draws max(1, floor(ratio*n)) indices from [0, n) with replacement.
func Bootstrap(n int, ratio float64, rng *rand.Rand) []int {
	size := max(1, int(math.Floor(ratio*float64(n))))
	idx := make([]int, size)
	for i := range idx {
		idx[i] = rng.IntN(n)
	}
	return idx
}

// Predict returns the majority vote over all trees. Ties go to the class
// that sorts first.
func (f *Forest) Predict(v []float64) (Prediction, error) {
	if len(f.Trees) == 0 {
		return Prediction{}, fmt.Errorf("%w: forest has no trees", ErrCorruptModel)
	}
	if len(v) != f.NumFeatures {
		return Prediction{}, fmt.Errorf("%w: got %d features, model expects %d", ErrFeatureDimensionMismatch, len(v), f.NumFeatures)
	}

	votes := make(map[string]int, len(f.Classes))
	for _, c := range f.Classes {
		votes[c] = 0
	}
	for _, t := range f.Trees {
		label, err := t.Predict(v)
		if err != nil {
			return Prediction{}, err
		}
		votes[label]++
	}

	var best string
	bestVotes := 0
	for _, c := range f.Classes {
		if votes[c] > bestVotes {
			best, bestVotes = c, votes[c]
		}
	}

	return Prediction{
		Label:      best,
		Confidence: float64(bestVotes) / float64(len(f.Trees)),
		Votes:      votes,
	}, nil
}

// PredictSchema is Predict guarded by a schema check. A forest with an empty
// Schema only accepts an empty schema.
func (f *Forest) PredictSchema(schema string, v []float64) (Prediction, error) {
	if schema != f.Schema {
		return Prediction{}, fmt.Errorf("%w: vector is %q, model is %q", ErrSchemaMismatch, schema, f.Schema)
	}
	return f.Predict(v)
}

// Info summarizes a forest for listings and logs.
type Info struct {
	Schema      string   `json:"schema"`
	Classes     []string `json:"classes"`
	NumTrees    int      `json:"num_trees"`
	NumFeatures int      `json:"num_features"`
	Samples     int      `json:"samples"`
	MaxDepth    int      `json:"max_depth"`
	Nodes       int      `json:"nodes"`
}

// Info reports the forest's shape.
func (f *Forest) Info() Info {
	info := Info{
		Schema:      f.Schema,
		Classes:     f.Classes,
		NumTrees:    len(f.Trees),
		NumFeatures: f.NumFeatures,
		Samples:     f.Samples,
	}
	for _, t := range f.Trees {
		info.Nodes += len(t.Nodes)
		info.MaxDepth = max(info.MaxDepth, t.Depth())
	}
	return info
}
