package forest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitTree_Validation(t *testing.T) {
	tests := []struct {
		name string
		set  TrainingSet
		want error
	}{
		{"empty", TrainingSet{}, ErrEmptyTrainingSet},
		{"length mismatch", TrainingSet{Features: [][]float64{{1}}, Labels: []string{"a", "b"}}, ErrLabelLengthMismatch},
		{"ragged", TrainingSet{Features: [][]float64{{1, 2}, {1}}, Labels: []string{"a", "b"}}, ErrFeatureDimensionMismatch},
		{"zero width", TrainingSet{Features: [][]float64{{}}, Labels: []string{"a"}}, ErrFeatureDimensionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FitTree(tt.set, TreeParams{}, NewRand(1))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFitTree_ConstantFeaturesBecomeLeaf(t *testing.T) {
	set := TrainingSet{
		Features: [][]float64{{1, 1}, {1, 1}, {1, 1}, {1, 1}},
		Labels:   []string{"B", "A", "A", "B"},
	}

	tree, err := FitTree(set, TreeParams{}, NewRand(3))
	require.NoError(t, err)
	require.Len(t, tree.Nodes, 1)
	assert.Equal(t, LeafNode, tree.Nodes[0].Kind)
	// Two-way tie resolves to the label seen first.
	assert.Equal(t, "B", tree.Nodes[0].Label)
}

func TestFitTree_PureSetIsSingleLeaf(t *testing.T) {
	set := TrainingSet{
		Features: [][]float64{{0}, {1}, {2}},
		Labels:   []string{"x", "x", "x"},
	}

	tree, err := FitTree(set, TreeParams{}, NewRand(1))
	require.NoError(t, err)
	assert.Equal(t, 1, tree.Leaves())
	assert.Equal(t, 0, tree.Depth())

	got, err := tree.Predict([]float64{100})
	require.NoError(t, err)
	assert.Equal(t, "x", got)
}

func TestFitTree_SplitsAtMidpoint(t *testing.T) {
	set := TrainingSet{
		Features: [][]float64{{1}, {2}, {4}, {5}},
		Labels:   []string{"lo", "lo", "hi", "hi"},
	}

	tree, err := FitTree(set, TreeParams{}, NewRand(1))
	require.NoError(t, err)

	root := tree.Nodes[tree.Root]
	require.Equal(t, SplitNode, root.Kind)
	assert.Equal(t, 0, root.Feature)
	assert.Equal(t, 3.0, root.Threshold)

	tests := []struct {
		v    float64
		want string
	}{
		{-10, "lo"},
		{2, "lo"},
		{3, "lo"}, // equal to the threshold goes left
		{3.0001, "hi"},
		{50, "hi"},
	}
	for _, tt := range tests {
		got, err := tree.Predict([]float64{tt.v})
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "value %v", tt.v)
	}
}

func TestFitTree_MaxDepth(t *testing.T) {
	set := TrainingSet{}
	for i := 0; i < 32; i++ {
		label := "even"
		if i%2 == 1 {
			label = "odd"
		}
		set.Append([]float64{float64(i)}, label)
	}

	tree, err := FitTree(set, TreeParams{MaxDepth: 3}, NewRand(1))
	require.NoError(t, err)
	assert.LessOrEqual(t, tree.Depth(), 3)
	assert.Equal(t, 3, tree.Params.MaxDepth)
	assert.Equal(t, DefaultMinSamplesSplit, tree.Params.MinSamplesSplit)
}

func TestFitTree_MinSamplesSplit(t *testing.T) {
	set := TrainingSet{
		Features: [][]float64{{1}, {2}, {3}},
		Labels:   []string{"a", "b", "a"},
	}

	tree, err := FitTree(set, TreeParams{MinSamplesSplit: 4}, NewRand(1))
	require.NoError(t, err)
	require.Len(t, tree.Nodes, 1)
	assert.Equal(t, "a", tree.Nodes[0].Label)
}

func TestFitTree_PreOrderArena(t *testing.T) {
	set := clusters()
	tree, err := FitTree(set, TreeParams{}, NewRand(11))
	require.NoError(t, err)

	assert.Equal(t, 0, tree.Root)
	for i, n := range tree.Nodes {
		if n.Kind == SplitNode {
			assert.Greater(t, n.Left, i)
			assert.Greater(t, n.Right, i)
			assert.Less(t, n.Left, len(tree.Nodes))
			assert.Less(t, n.Right, len(tree.Nodes))
		}
	}
}

func TestFitTree_SameSeedSameTree(t *testing.T) {
	set := clusters()

	a, err := FitTree(set, TreeParams{}, NewRand(99))
	require.NoError(t, err)
	b, err := FitTree(set, TreeParams{}, NewRand(99))
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestTreePredict_DimensionMismatch(t *testing.T) {
	tree, err := FitTree(clusters(), TreeParams{}, NewRand(1))
	require.NoError(t, err)

	_, err = tree.Predict([]float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrFeatureDimensionMismatch)
}

func TestWeightedGini(t *testing.T) {
	labels := []string{"a", "a", "b", "b", "b", "c"}
	assert.InDelta(t, 1-(4.0+9.0+1.0)/36.0, gini(labels), 1e-12)
	assert.Equal(t, 0.0, gini(nil))

	// Split {a,a,b} | {b,b,c}: class order a, b, c.
	total := []int{2, 3, 1}
	left := []int{2, 1, 0}
	want := 0.5*gini(labels[:3]) + 0.5*gini(labels[3:])
	assert.InDelta(t, want, weightedGini(left, total, 3, 6), 1e-12)

	// A perfect split has zero impurity.
	assert.Equal(t, 0.0, weightedGini([]int{2, 0}, []int{2, 2}, 2, 4))
}

func TestNodeKindString(t *testing.T) {
	assert.Equal(t, "leaf", LeafNode.String())
	assert.Equal(t, "split", SplitNode.String())
	assert.Equal(t, "NodeKind(7)", NodeKind(7).String())
}

// gini is the impurity 1 - sum(p_c^2) of a label multiset.
func gini(labels []string) float64 {
	if len(labels) == 0 {
		return 0
	}
	counts := make(map[string]int)
	for _, l := range labels {
		counts[l]++
	}
	impurity := 1.0
	for _, c := range counts {
		p := float64(c) / float64(len(labels))
		impurity -= p * p
	}
	return impurity
}
