// Package forest implements the two tree ensembles behind the models: a
// random-forest regressor and an isolation forest.
package forest

// Default ensemble parameters.
const (
	DefaultTrees         = 100
	DefaultSeed          = 42
	DefaultContamination = 0.05
	defaultMaxSamples    = 256
	defaultMinSplit      = 2
)

type params struct {
	trees         int
	seed          int64
	minSplit      int
	maxSamples    int
	contamination float64
}

func defaultParams() params {
	return params{
		trees:         DefaultTrees,
		seed:          DefaultSeed,
		minSplit:      defaultMinSplit,
		maxSamples:    defaultMaxSamples,
		contamination: DefaultContamination,
	}
}

// Option applies a configuration option to an ensemble.
type Option func(*params)

// WithTrees sets the number of trees in the ensemble.
func WithTrees(n int) Option {
	return func(p *params) {
		if n > 0 {
			p.trees = n
		}
	}
}

// WithSeed fixes the random source used for resampling and split selection.
func WithSeed(seed int64) Option {
	return func(p *params) {
		p.seed = seed
	}
}

// WithMinSamplesSplit sets the minimum node size a regression tree may split.
func WithMinSamplesSplit(n int) Option {
	return func(p *params) {
		if n >= 2 {
			p.minSplit = n
		}
	}
}

// WithMaxSamples caps the subsample drawn for each isolation tree.
func WithMaxSamples(n int) Option {
	return func(p *params) {
		if n > 0 {
			p.maxSamples = n
		}
	}
}

// WithContamination sets the expected anomaly fraction of the isolation forest.
func WithContamination(c float64) Option {
	return func(p *params) {
		if c > 0 && c <= 0.5 {
			p.contamination = c
		}
	}
}
