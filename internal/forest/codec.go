package forest

import (
	"encoding/json"
	"fmt"
	"math"
)

// FormatVersion is the version of the serialized model document.
const FormatVersion = 1

type modelDoc struct {
	FormatVersion int       `json:"format_version"`
	Schema        string    `json:"schema"`
	Classes       []string  `json:"classes"`
	NumTrees      int       `json:"num_trees"`
	NumFeatures   int       `json:"num_features"`
	Samples       int       `json:"samples"`
	Params        Params    `json:"params"`
	Trees         []treeDoc `json:"trees"`
}

type treeDoc struct {
	Root            int       `json:"root"`
	MaxDepth        int       `json:"max_depth"`
	MinSamplesSplit int       `json:"min_samples_split"`
	Nodes           []nodeDoc `json:"nodes"`
}

type nodeDoc struct {
	Kind      string  `json:"kind"`
	Label     string  `json:"label,omitempty"`
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
}

// Marshal encodes f as a self-describing JSON document holding every tree's
// node arena together with the class list, schema and fit parameters.
func Marshal(f *Forest) ([]byte, error) {
	doc := modelDoc{
		FormatVersion: FormatVersion,
		Schema:        f.Schema,
		Classes:       f.Classes,
		NumTrees:      len(f.Trees),
		NumFeatures:   f.NumFeatures,
		Samples:       f.Samples,
		Params:        f.Params,
		Trees:         make([]treeDoc, len(f.Trees)),
	}

	for i, t := range f.Trees {
		td := treeDoc{
			Root:            t.Root,
			MaxDepth:        t.Params.MaxDepth,
			MinSamplesSplit: t.Params.MinSamplesSplit,
			Nodes:           make([]nodeDoc, len(t.Nodes)),
		}
		for j, n := range t.Nodes {
			if n.Kind == LeafNode {
				td.Nodes[j] = nodeDoc{Kind: LeafNode.String(), Label: n.Label}
				continue
			}
			if math.IsNaN(n.Threshold) || math.IsInf(n.Threshold, 0) {
				return nil, fmt.Errorf("tree %d node %d: threshold %v is not finite", i, j, n.Threshold)
			}
			td.Nodes[j] = nodeDoc{
				Kind:      SplitNode.String(),
				Feature:   n.Feature,
				Threshold: n.Threshold,
				Left:      n.Left,
				Right:     n.Right,
			}
		}
		doc.Trees[i] = td
	}

	return json.Marshal(doc)
}

// Unmarshal decodes and validates a document produced by Marshal. Every
// failure wraps ErrCorruptModel.
func Unmarshal(data []byte) (*Forest, error) {
	var doc modelDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptModel, err)
	}

	if doc.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: format version %d, expected %d", ErrCorruptModel, doc.FormatVersion, FormatVersion)
	}
	if len(doc.Trees) == 0 {
		return nil, fmt.Errorf("%w: no trees", ErrCorruptModel)
	}
	if doc.NumTrees != len(doc.Trees) {
		return nil, fmt.Errorf("%w: num_trees is %d but %d trees present", ErrCorruptModel, doc.NumTrees, len(doc.Trees))
	}
	if doc.NumFeatures <= 0 {
		return nil, fmt.Errorf("%w: num_features is %d", ErrCorruptModel, doc.NumFeatures)
	}
	if len(doc.Classes) == 0 {
		return nil, fmt.Errorf("%w: no classes", ErrCorruptModel)
	}

	classes := make(map[string]struct{}, len(doc.Classes))
	for _, c := range doc.Classes {
		classes[c] = struct{}{}
	}

	f := &Forest{
		Schema:      doc.Schema,
		Classes:     doc.Classes,
		Trees:       make([]*Tree, len(doc.Trees)),
		Params:      doc.Params,
		NumFeatures: doc.NumFeatures,
		Samples:     doc.Samples,
	}

	for i, td := range doc.Trees {
		t, err := decodeTree(td, doc.NumFeatures, classes)
		if err != nil {
			return nil, fmt.Errorf("%w: tree %d: %v", ErrCorruptModel, i, err)
		}
		f.Trees[i] = t
	}

	return f, nil
}

func decodeTree(td treeDoc, numFeatures int, classes map[string]struct{}) (*Tree, error) {
	n := len(td.Nodes)
	if n == 0 {
		return nil, fmt.Errorf("no nodes")
	}
	if td.Root < 0 || td.Root >= n {
		return nil, fmt.Errorf("root %d out of range", td.Root)
	}

	t := &Tree{
		Nodes:       make([]Node, n),
		Root:        td.Root,
		Params:      TreeParams{MaxDepth: td.MaxDepth, MinSamplesSplit: td.MinSamplesSplit},
		NumFeatures: numFeatures,
	}

	for j, nd := range td.Nodes {
		switch nd.Kind {
		case LeafNode.String():
			if _, ok := classes[nd.Label]; !ok {
				return nil, fmt.Errorf("node %d: label %q is not a known class", j, nd.Label)
			}
			t.Nodes[j] = Node{Kind: LeafNode, Label: nd.Label}

		case SplitNode.String():
			if nd.Feature < 0 || nd.Feature >= numFeatures {
				return nil, fmt.Errorf("node %d: feature %d out of range", j, nd.Feature)
			}
			// Children must follow their parent; this rules out cycles.
			if nd.Left <= j || nd.Left >= n || nd.Right <= j || nd.Right >= n {
				return nil, fmt.Errorf("node %d: children %d,%d out of range", j, nd.Left, nd.Right)
			}
			t.Nodes[j] = Node{
				Kind:      SplitNode,
				Feature:   nd.Feature,
				Threshold: nd.Threshold,
				Left:      nd.Left,
				Right:     nd.Right,
			}

		default:
			return nil, fmt.Errorf("node %d: unknown kind %q", j, nd.Kind)
		}
	}

	return t, nil
}
