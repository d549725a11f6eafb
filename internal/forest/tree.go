package forest

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// Default tree hyperparameters.
const (
	DefaultMaxDepth        = 10
	DefaultMinSamplesSplit = 2
)

// NodeKind tags a Node as a leaf or a split.
type NodeKind uint8

const (
	// LeafNode carries a predicted label.
	LeafNode NodeKind = iota
	// SplitNode routes a vector left when Vector[Feature] <= Threshold, right otherwise.
	SplitNode
)

// String implements fmt.Stringer.
func (k NodeKind) String() string {
	switch k {
	case LeafNode:
		return "leaf"
	case SplitNode:
		return "split"
	default:
		return fmt.Sprintf("NodeKind(%d)", uint8(k))
	}
}

// Node is one entry in a tree arena. Only the fields relevant to Kind are set.
type Node struct {
	Kind      NodeKind
	Label     string
	Feature   int
	Threshold float64
	Left      int
	Right     int
}

// TreeParams controls tree growth.
type TreeParams struct {
	MaxDepth        int
	MinSamplesSplit int
}

func (p TreeParams) withDefaults() TreeParams {
	if p.MaxDepth <= 0 {
		p.MaxDepth = DefaultMaxDepth
	}
	if p.MinSamplesSplit <= 0 {
		p.MinSamplesSplit = DefaultMinSamplesSplit
	}
	return p
}

// Tree is a fitted binary classification tree. Nodes are laid out in
// pre-order, so every child index is greater than its parent's.
type Tree struct {
	Nodes       []Node
	Root        int
	Params      TreeParams
	NumFeatures int
}

// FitTree grows a tree top-down on set using weighted Gini impurity.
//
// At every node a fresh subset of max(1, floor(sqrt(numFeatures))) feature
// indices is drawn from rng without replacement; thresholds are the midpoints
// between consecutive distinct values. The first (feature, threshold) pair
// with the strictly lowest impurity wins. A node becomes a leaf when its
// samples share one label, it holds fewer than MinSamplesSplit samples, it
// sits at MaxDepth, or no candidate feature can separate its samples.
//
// Leaf labels are the majority label of the node's samples; ties go to the
// label whose first occurrence comes earliest in the set's order.
//
// A nil rng is replaced by NewRand(0).
func FitTree(set TrainingSet, params TreeParams, rng *rand.Rand) (*Tree, error) {
	width, err := set.Validate()
	if err != nil {
		return nil, err
	}
	if rng == nil {
		rng = NewRand(0)
	}

	b := newBuilder(set, params.withDefaults(), rng, width)

	idx := make([]int, set.Len())
	for i := range idx {
		idx[i] = i
	}
	root := b.build(idx, 0)

	return &Tree{
		Nodes:       b.nodes,
		Root:        root,
		Params:      b.params,
		NumFeatures: width,
	}, nil
}

// Predict walks the tree for v and returns the reached leaf's label.
func (t *Tree) Predict(v []float64) (string, error) {
	if len(v) != t.NumFeatures {
		return "", fmt.Errorf("%w: got %d features, tree expects %d", ErrFeatureDimensionMismatch, len(v), t.NumFeatures)
	}

	i := t.Root
	for range len(t.Nodes) {
		n := &t.Nodes[i]
		if n.Kind == LeafNode {
			return n.Label, nil
		}
		if v[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return "", fmt.Errorf("%w: no leaf reached", ErrCorruptModel)
}

// Depth returns the length of the longest root-to-leaf path.
func (t *Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.Kind == LeafNode {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	if len(t.Nodes) == 0 {
		return 0
	}
	return walk(t.Root)
}

// Leaves returns the number of leaf nodes.
func (t *Tree) Leaves() int {
	var n int
	for _, node := range t.Nodes {
		if node.Kind == LeafNode {
			n++
		}
	}
	return n
}

// builder holds the state of one FitTree call. Labels are encoded as small
// integers in order of first appearance.
type builder struct {
	features [][]float64
	codes    []int
	names    []string
	params   TreeParams
	rng      *rand.Rand
	width    int
	perm     []int
	nodes    []Node
}

func newBuilder(set TrainingSet, params TreeParams, rng *rand.Rand, width int) *builder {
	b := &builder{
		features: set.Features,
		codes:    make([]int, set.Len()),
		params:   params,
		rng:      rng,
		width:    width,
		perm:     make([]int, width),
	}

	index := make(map[string]int)
	for i, l := range set.Labels {
		c, ok := index[l]
		if !ok {
			c = len(b.names)
			index[l] = c
			b.names = append(b.names, l)
		}
		b.codes[i] = c
	}
	return b
}

func (b *builder) build(idx []int, depth int) int {
	if len(idx) < b.params.MinSamplesSplit || depth >= b.params.MaxDepth || b.pure(idx) {
		return b.leaf(idx)
	}

	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return b.leaf(idx)
	}

	left, right := b.partition(idx, feature, threshold)
	if len(left) == 0 || len(right) == 0 {
		return b.leaf(idx)
	}

	self := len(b.nodes)
	b.nodes = append(b.nodes, Node{Kind: SplitNode, Feature: feature, Threshold: threshold})
	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[self].Left = l
	b.nodes[self].Right = r
	return self
}

func (b *builder) pure(idx []int) bool {
	first := b.codes[idx[0]]
	for _, i := range idx[1:] {
		if b.codes[i] != first {
			return false
		}
	}
	return true
}

func (b *builder) leaf(idx []int) int {
	counts := make([]int, len(b.names))
	for _, i := range idx {
		counts[b.codes[i]]++
	}

	best := b.codes[idx[0]]
	for _, i := range idx {
		if c := b.codes[i]; counts[c] > counts[best] {
			best = c
		}
	}

	b.nodes = append(b.nodes, Node{Kind: LeafNode, Label: b.names[best]})
	return len(b.nodes) - 1
}

// candidates draws k distinct feature indices by partial Fisher-Yates shuffle.
func (b *builder) candidates() []int {
	k := max(1, int(math.Floor(math.Sqrt(float64(b.width)))))
	for i := range b.perm {
		b.perm[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + b.rng.IntN(b.width-i)
		b.perm[i], b.perm[j] = b.perm[j], b.perm[i]
	}
	return b.perm[:k]
}

func (b *builder) bestSplit(idx []int) (int, float64, bool) {
	var (
		bestFeature   = -1
		bestThreshold float64
		bestScore     = math.Inf(1)
	)

	n := len(idx)
	total := make([]int, len(b.names))
	for _, i := range idx {
		total[b.codes[i]]++
	}
	left := make([]int, len(b.names))
	order := make([]int, n)

	for _, f := range b.candidates() {
		copy(order, idx)
		sort.Slice(order, func(x, y int) bool {
			return b.features[order[x]][f] < b.features[order[y]][f]
		})
		clear(left)

		// Sweep thresholds in ascending order; left holds samples <= current value.
		for pos := 0; pos < n-1; pos++ {
			left[b.codes[order[pos]]]++

			cur := b.features[order[pos]][f]
			next := b.features[order[pos+1]][f]
			if cur == next {
				continue
			}

			threshold := (cur + next) / 2
			if !(threshold < next) {
				// Adjacent floats: the midpoint rounds onto next.
				threshold = cur
			}

			score := weightedGini(left, total, pos+1, n)
			if score < bestScore {
				bestScore = score
				bestFeature = f
				bestThreshold = threshold
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}

// weightedGini scores a partition given per-class counts on the left side,
// per-class totals, and the left and overall sizes.
func weightedGini(left, total []int, nLeft, n int) float64 {
	nRight := n - nLeft
	giniLeft, giniRight := 1.0, 1.0
	for c := range total {
		l := left[c]
		r := total[c] - l
		if l > 0 {
			p := float64(l) / float64(nLeft)
			giniLeft -= p * p
		}
		if r > 0 {
			p := float64(r) / float64(nRight)
			giniRight -= p * p
		}
	}
	return float64(nLeft)/float64(n)*giniLeft + float64(nRight)/float64(n)*giniRight
}

func (b *builder) partition(idx []int, feature int, threshold float64) (left, right []int) {
	for _, i := range idx {
		if b.features[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}
