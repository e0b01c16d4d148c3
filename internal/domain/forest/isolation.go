package forest

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

const eulerGamma = 0.5772156649015329

// IsolationForest scores samples by how quickly random axis-aligned cuts
// isolate them. Short average paths mean anomalies.
type IsolationForest struct {
	Features      int     `json:"features"`
	SampleSize    int     `json:"sample_size"`
	Contamination float64 `json:"contamination"`
	// Offset is the score above which a sample is labelled anomalous.
	Offset float64 `json:"offset"`
	Trees  []Tree  `json:"trees"`

	p params
}

// NewIsolationForest creates an unfitted detector.
func NewIsolationForest(opts ...Option) *IsolationForest {
	p := defaultParams()
	for _, opt := range opts {
		opt(&p)
	}
	return &IsolationForest{p: p, Contamination: p.contamination}
}

// Fitted reports whether the forest holds at least one tree.
func (f *IsolationForest) Fitted() bool {
	return f != nil && len(f.Trees) > 0
}

// Fit grows the isolation trees and calibrates Offset so that roughly the
// contamination fraction of the training samples score above it.
func (f *IsolationForest) Fit(X [][]float64) error {
	d, err := checkMatrix(X)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(f.p.seed)) //nolint:gosec // deterministic seed for reproducible models
	psi := min(f.p.maxSamples, len(X))
	limit := int(math.Ceil(math.Log2(float64(max(psi, 2)))))

	trees := make([]Tree, f.p.trees)
	for t := range trees {
		sample := rng.Perm(len(X))[:psi]
		b := &isolationBuilder{X: X, features: d, limit: limit, rng: rng}
		b.grow(sample, 0)
		trees[t] = Tree{Nodes: b.nodes}
	}

	f.Features = d
	f.SampleSize = psi
	f.Contamination = f.p.contamination
	f.Trees = trees

	scores := make([]float64, len(X))
	for i, x := range X {
		scores[i] = f.Score(x)
	}
	f.Offset = quantile(scores, 1-f.Contamination)
	return nil
}

// Score returns the anomaly score in (0, 1]; values near 1 are anomalous.
func (f *IsolationForest) Score(x []float64) float64 {
	total := 0.0
	for i := range f.Trees {
		leaf, depth := f.Trees[i].eval(x)
		total += float64(depth) + leaf.Value
	}
	mean := total / float64(len(f.Trees))
	norm := averagePathLength(f.SampleSize)
	if norm == 0 {
		norm = 1
	}
	return math.Pow(2, -mean/norm)
}

// Predict returns -1 for an anomaly and 1 for a normal sample.
func (f *IsolationForest) Predict(x []float64) int {
	if f.Score(x) > f.Offset {
		return -1
	}
	return 1
}

// Validate checks a decoded forest before it is trusted for prediction.
func (f *IsolationForest) Validate() error {
	if f.Features <= 0 || f.SampleSize <= 0 {
		return fmt.Errorf("%w: features=%d sample_size=%d", ErrCorrupt, f.Features, f.SampleSize)
	}
	if math.IsNaN(f.Offset) {
		return fmt.Errorf("%w: offset is NaN", ErrCorrupt)
	}
	for i := range f.Trees {
		if err := f.Trees[i].validate(f.Features); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

type isolationBuilder struct {
	X        [][]float64
	features int
	limit    int
	rng      *rand.Rand
	nodes    []Node
}

// grow stores, in each leaf's Value, the expected remaining path length of
// the samples it still holds.
func (b *isolationBuilder) grow(idx []int, depth int) int {
	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{Left: -1, Right: -1, Value: averagePathLength(len(idx))})
	if depth >= b.limit || len(idx) <= 1 {
		return id
	}

	feature := b.rng.Intn(b.features)
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, i := range idx {
		v := b.X[i][feature]
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo == hi {
		return id
	}
	threshold := lo + b.rng.Float64()*(hi-lo)

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return id
	}
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[id].Feature = feature
	b.nodes[id].Threshold = threshold
	b.nodes[id].Left = l
	b.nodes[id].Right = r
	return id
}

// averagePathLength is c(n), the mean unsuccessful-search path length of a
// binary search tree holding n items.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	m := float64(n - 1)
	return 2*(math.Log(m)+eulerGamma) - 2*m/float64(n)
}

// quantile returns the q-th quantile of values with linear interpolation.
func quantile(values []float64, q float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (pos-float64(lo))*(sorted[hi]-sorted[lo])
}
