package forest

import (
	"fmt"
	"math"
)

// Node is one vertex of a binary tree stored in preorder. Leaves have
// Left == -1; children always sit after their parent in the slice.
type Node struct {
	Feature   int     `json:"f,omitempty"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
}

func (n Node) leaf() bool { return n.Left < 0 }

// Tree is a flat binary decision tree.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// eval walks x down to a leaf and returns the leaf and its depth.
func (t *Tree) eval(x []float64) (Node, int) {
	i, depth := 0, 0
	for {
		n := t.Nodes[i]
		if n.leaf() {
			return n, depth
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
		depth++
	}
}

// validate checks that every walk terminates and stays in bounds.
func (t *Tree) validate(features int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("%w: empty tree", ErrCorrupt)
	}
	for i, n := range t.Nodes {
		if math.IsNaN(n.Value) || math.IsNaN(n.Threshold) {
			return fmt.Errorf("%w: node %d holds NaN", ErrCorrupt, i)
		}
		if n.leaf() {
			continue
		}
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("%w: node %d has invalid children", ErrCorrupt, i)
		}
		if n.Feature < 0 || n.Feature >= features {
			return fmt.Errorf("%w: node %d splits on unknown feature %d", ErrCorrupt, i, n.Feature)
		}
	}
	return nil
}

// checkMatrix verifies X is non-empty, rectangular and free of NaN.
func checkMatrix(X [][]float64) (int, error) {
	if len(X) == 0 {
		return 0, ErrEmptyInput
	}
	d := len(X[0])
	if d == 0 {
		return 0, fmt.Errorf("%w: zero features", ErrShape)
	}
	for i, row := range X {
		if len(row) != d {
			return 0, fmt.Errorf("%w: row %d has %d features, want %d", ErrShape, i, len(row), d)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, fmt.Errorf("%w: row %d holds a non-finite value", ErrShape, i)
			}
		}
	}
	return d, nil
}
