package forest

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// RandomForest is a bagged ensemble of CART regression trees. Each tree is
// grown to purity on a bootstrap resample; predictions average the trees.
// A fitted forest is read-only and safe for concurrent Predict calls.
type RandomForest struct {
	Features int    `json:"features"`
	Trees    []Tree `json:"trees"`

	p params
}

// NewRandomForest creates an unfitted regressor.
func NewRandomForest(opts ...Option) *RandomForest {
	p := defaultParams()
	for _, opt := range opts {
		opt(&p)
	}
	return &RandomForest{p: p}
}

// Fitted reports whether the forest holds at least one tree.
func (f *RandomForest) Fitted() bool {
	return f != nil && len(f.Trees) > 0
}

// Fit grows the ensemble on X (rows of features) and targets y.
func (f *RandomForest) Fit(X [][]float64, y []float64) error {
	d, err := checkMatrix(X)
	if err != nil {
		return err
	}
	if len(y) != len(X) {
		return fmt.Errorf("%w: %d targets for %d samples", ErrShape, len(y), len(X))
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: target %d is not finite", ErrShape, i)
		}
	}

	rng := rand.New(rand.NewSource(f.p.seed)) //nolint:gosec // deterministic seed for reproducible models
	n := len(X)
	trees := make([]Tree, f.p.trees)
	for t := range trees {
		sample := make([]int, n)
		for i := range sample {
			sample[i] = rng.Intn(n)
		}
		b := &regressionBuilder{X: X, y: y, features: d, minSplit: f.p.minSplit}
		b.grow(sample)
		trees[t] = Tree{Nodes: b.nodes}
	}

	f.Features = d
	f.Trees = trees
	return nil
}

// Predict returns the ensemble mean for one sample.
func (f *RandomForest) Predict(x []float64) float64 {
	sum := 0.0
	for i := range f.Trees {
		leaf, _ := f.Trees[i].eval(x)
		sum += leaf.Value
	}
	return sum / float64(len(f.Trees))
}

// Validate checks a decoded forest before it is trusted for prediction.
func (f *RandomForest) Validate() error {
	if f.Features <= 0 {
		return fmt.Errorf("%w: forest declares %d features", ErrCorrupt, f.Features)
	}
	for i := range f.Trees {
		if err := f.Trees[i].validate(f.Features); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

type regressionBuilder struct {
	X        [][]float64
	y        []float64
	features int
	minSplit int
	nodes    []Node
}

func (b *regressionBuilder) grow(idx []int) int {
	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{Left: -1, Right: -1, Value: b.mean(idx)})
	if len(idx) < b.minSplit {
		return id
	}
	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return id
	}

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
	l := b.grow(left)
	r := b.grow(right)
	b.nodes[id].Feature = feature
	b.nodes[id].Threshold = threshold
	b.nodes[id].Left = l
	b.nodes[id].Right = r
	return id
}

func (b *regressionBuilder) mean(idx []int) float64 {
	sum := 0.0
	for _, i := range idx {
		sum += b.y[i]
	}
	return sum / float64(len(idx))
}

// bestSplit picks the feature and midpoint threshold that minimise the summed
// squared error of the two children. It reports false for pure nodes and for
// nodes whose samples cannot be separated.
func (b *regressionBuilder) bestSplit(idx []int) (int, float64, bool) {
	n := float64(len(idx))
	total, totalSq := 0.0, 0.0
	for _, i := range idx {
		total += b.y[i]
		totalSq += b.y[i] * b.y[i]
	}
	if totalSq-total*total/n <= 1e-12 {
		return 0, 0, false
	}

	bestScore := math.Inf(-1)
	bestFeature, bestThreshold, found := 0, 0.0, false
	sorted := make([]int, len(idx))
	for feature := 0; feature < b.features; feature++ {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, c int) bool {
			return b.X[sorted[a]][feature] < b.X[sorted[c]][feature]
		})

		leftSum := 0.0
		for k := 0; k < len(sorted)-1; k++ {
			leftSum += b.y[sorted[k]]
			cur, next := b.X[sorted[k]][feature], b.X[sorted[k+1]][feature]
			if cur == next {
				continue
			}
			nl := float64(k + 1)
			nr := n - nl
			rightSum := total - leftSum
			// Maximising this term minimises the children's squared error.
			score := leftSum*leftSum/nl + rightSum*rightSum/nr
			if score > bestScore {
				bestScore = score
				bestFeature = feature
				bestThreshold = cur + (next-cur)/2
				if bestThreshold >= next {
					bestThreshold = cur
				}
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}
