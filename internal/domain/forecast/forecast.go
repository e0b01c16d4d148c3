// Package forecast predicts WTI and Brent prices from the day of the year.
package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/okian/petroenergy/internal/adapters/artifact"
	"github.com/okian/petroenergy/internal/domain/forest"
	"github.com/okian/petroenergy/internal/domain/model"
)

// Models is the fitted pair persisted as one artifact payload.
type Models struct {
	WTI   *forest.RandomForest `json:"wti"`
	Brent *forest.RandomForest `json:"brent"`
}

// Option applies a configuration option to the Forecaster.
type Option func(*Forecaster)

// WithTrees sets the number of trees per regressor.
func WithTrees(n int) Option {
	return func(f *Forecaster) {
		if n > 0 {
			f.trees = n
		}
	}
}

// WithSeed fixes the random seed shared by both regressors.
func WithSeed(seed int64) Option {
	return func(f *Forecaster) {
		f.seed = seed
	}
}

// Forecaster regresses each price series against day-of-year.
type Forecaster struct {
	models Models
	trees  int
	seed   int64
}

// New creates an untrained Forecaster.
func New(opts ...Option) *Forecaster {
	f := &Forecaster{
		trees: forest.DefaultTrees,
		seed:  forest.DefaultSeed,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name returns the artifact name of the forecaster.
func (f *Forecaster) Name() string { return model.ForecasterName }

// DayOfYear reduces a date to its 1-366 ordinal, the sole model feature.
func DayOfYear(t time.Time) int { return t.YearDay() }

// Train fits one regressor per commodity. It fails with
// model.ErrDataInsufficient when there are no rows or when either price column
// has no usable value; the previously fitted pair is kept in that case.
func (f *Forecaster) Train(_ context.Context, records []model.PriceRecord) error {
	if len(records) == 0 {
		return fmt.Errorf("%w: price series is empty", model.ErrDataInsufficient)
	}
	wtiX, wtiY := series(records, func(r model.PriceRecord) float64 { return r.WTI })
	brentX, brentY := series(records, func(r model.PriceRecord) float64 { return r.Brent })
	if len(wtiY) == 0 {
		return fmt.Errorf("%w: no WTI prices", model.ErrDataInsufficient)
	}
	if len(brentY) == 0 {
		return fmt.Errorf("%w: no Brent prices", model.ErrDataInsufficient)
	}

	next := Models{
		WTI:   forest.NewRandomForest(forest.WithTrees(f.trees), forest.WithSeed(f.seed)),
		Brent: forest.NewRandomForest(forest.WithTrees(f.trees), forest.WithSeed(f.seed)),
	}
	if err := next.WTI.Fit(wtiX, wtiY); err != nil {
		return fmt.Errorf("fit WTI: %w", err)
	}
	if err := next.Brent.Fit(brentX, brentY); err != nil {
		return fmt.Errorf("fit Brent: %w", err)
	}
	f.models = next
	return nil
}

// series extracts day-of-year features and the non-missing values of one column.
func series(records []model.PriceRecord, price func(model.PriceRecord) float64) ([][]float64, []float64) {
	X := make([][]float64, 0, len(records))
	y := make([]float64, 0, len(records))
	for _, r := range records {
		v := price(r)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		X = append(X, []float64{float64(DayOfYear(r.Date))})
		y = append(y, v)
	}
	return X, y
}

// Predict returns one price estimate per commodity for each date. Dates
// outside the training range are projected like any other.
func (f *Forecaster) Predict(dates []time.Time) ([]model.PricePrediction, error) {
	if !f.models.WTI.Fitted() || !f.models.Brent.Fitted() {
		return nil, fmt.Errorf("%w: forecaster is not trained", model.ErrValidation)
	}
	out := make([]model.PricePrediction, len(dates))
	for i, d := range dates {
		x := []float64{float64(DayOfYear(d))}
		out[i] = model.PricePrediction{
			Date:      d,
			DayOfYear: DayOfYear(d),
			WTI:       f.models.WTI.Predict(x),
			Brent:     f.models.Brent.Predict(x),
		}
	}
	return out, nil
}

// Fitted is the trained-ness check: both regressors hold trees.
func (f *Forecaster) Fitted() bool {
	return f.models.WTI.Fitted() && f.models.Brent.Fitted()
}

// Save writes the fitted pair as the artifact for version.
func (f *Forecaster) Save(ctx context.Context, store *artifact.Store, version string) (string, error) {
	if !f.Fitted() {
		return "", fmt.Errorf("%w: nothing to save", model.ErrValidation)
	}
	return store.Write(ctx, f.Name(), version, f.models)
}

// Load reads the artifact at path and restores the fitted pair. It returns
// the version tag stored in the artifact.
func (f *Forecaster) Load(ctx context.Context, store *artifact.Store, path string) (string, error) {
	b, err := store.Read(ctx, path)
	if err != nil {
		return "", err
	}
	if err := f.Restore(b); err != nil {
		return "", err
	}
	return b.Version, nil
}

// Restore replaces the fitted pair with the one carried by b. Decoding and
// structural problems wrap model.ErrModelLoad; a bundle missing either fitted
// regressor wraps model.ErrValidation. On error the Forecaster is unchanged.
func (f *Forecaster) Restore(b *artifact.Bundle) error {
	if b.Model != f.Name() {
		return fmt.Errorf("%w: artifact holds %q, want %q", model.ErrModelLoad, b.Model, f.Name())
	}
	var m Models
	if err := b.Decode(&m); err != nil {
		return err
	}
	for _, side := range []struct {
		name string
		rf   *forest.RandomForest
	}{{"WTI", m.WTI}, {"Brent", m.Brent}} {
		if !side.rf.Fitted() {
			return fmt.Errorf("%w: artifact holds no fitted %s regressor", model.ErrValidation, side.name)
		}
		if err := side.rf.Validate(); err != nil {
			return fmt.Errorf("%w: %s regressor: %w", model.ErrModelLoad, side.name, err)
		}
	}
	f.models = m
	return nil
}
