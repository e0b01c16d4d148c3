// Package maintenance flags abnormal equipment health readings and ranks the
// equipment that needs attention first.
package maintenance

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/okian/petroenergy/internal/adapters/artifact"
	"github.com/okian/petroenergy/internal/domain/forest"
	"github.com/okian/petroenergy/internal/domain/model"
)

// Option applies a configuration option to the Predictor.
type Option func(*Predictor)

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(p *Predictor) {
		if n > 0 {
			p.trees = n
		}
	}
}

// WithSeed fixes the random seed of the detector.
func WithSeed(seed int64) Option {
	return func(p *Predictor) {
		p.seed = seed
	}
}

// WithContamination sets the expected share of anomalous readings.
func WithContamination(c float64) Option {
	return func(p *Predictor) {
		if c > 0 && c <= 0.5 {
			p.contamination = c
		}
	}
}

// Predictor wraps an isolation forest fitted on health scores.
type Predictor struct {
	detector      *forest.IsolationForest
	trees         int
	seed          int64
	contamination float64
}

// New creates a Predictor without a detector.
func New(opts ...Option) *Predictor {
	p := &Predictor{
		trees:         forest.DefaultTrees,
		seed:          forest.DefaultSeed,
		contamination: forest.DefaultContamination,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the artifact name of the predictor.
func (p *Predictor) Name() string { return model.MaintenanceName }

// Fitted reports whether a detector is available.
func (p *Predictor) Fitted() bool { return p.detector.Fitted() }

// Train fits the detector on the non-missing health scores. When no score is
// left the call does nothing and the current detector, if any, is kept.
func (p *Predictor) Train(_ context.Context, readings []model.EquipmentReading) error {
	X := make([][]float64, 0, len(readings))
	for _, r := range readings {
		if math.IsNaN(r.HealthScore) || math.IsInf(r.HealthScore, 0) {
			continue
		}
		X = append(X, []float64{r.HealthScore})
	}
	if len(X) == 0 {
		return nil
	}
	det := forest.NewIsolationForest(
		forest.WithTrees(p.trees),
		forest.WithSeed(p.seed),
		forest.WithContamination(p.contamination),
	)
	if err := det.Fit(X); err != nil {
		return fmt.Errorf("fit detector: %w", err)
	}
	p.detector = det
	return nil
}

// PredictAnomalies labels every reading. A missing health score is scored as 0.
func (p *Predictor) PredictAnomalies(_ context.Context, readings []model.EquipmentReading) []model.Label {
	if !p.Fitted() {
		return unavailableLabels(len(readings))
	}
	labels := make([]model.Label, len(readings))
	for i, r := range readings {
		score := r.HealthScore
		if math.IsNaN(score) {
			score = 0
		}
		labels[i] = model.Label(p.detector.Predict([]float64{score}))
	}
	return labels
}

// unavailableLabels is the answer given when no detector exists: every
// reading is reported normal.
func unavailableLabels(n int) []model.Label {
	labels := make([]model.Label, n)
	for i := range labels {
		labels[i] = model.Normal
	}
	return labels
}

// Label pairs each reading with its verdict.
func (p *Predictor) Label(ctx context.Context, readings []model.EquipmentReading) []model.LabeledReading {
	labels := p.PredictAnomalies(ctx, readings)
	out := make([]model.LabeledReading, len(readings))
	for i, r := range readings {
		out[i] = model.LabeledReading{EquipmentReading: r, Label: labels[i]}
	}
	return out
}

type groupKey struct {
	facility  string
	equipment string
}

// Report ranks anomalous equipment by its lowest health score. Rows are keyed
// by facility and equipment; ties are ordered by facility, then equipment.
// Readings without a score are not reported.
func (p *Predictor) Report(_ context.Context, readings []model.EquipmentReading) []model.ReportRow {
	if !p.Fitted() || len(readings) == 0 {
		return []model.ReportRow{}
	}

	index := make(map[groupKey]int)
	rows := make([]model.ReportRow, 0)
	for _, r := range readings {
		if math.IsNaN(r.HealthScore) {
			continue
		}
		if p.detector.Predict([]float64{r.HealthScore}) != int(model.Anomaly) {
			continue
		}
		k := groupKey{facility: r.FacilityID, equipment: r.EquipmentID}
		i, ok := index[k]
		if !ok {
			index[k] = len(rows)
			rows = append(rows, model.ReportRow{
				FacilityID:     r.FacilityID,
				EquipmentID:    r.EquipmentID,
				MinHealthScore: r.HealthScore,
				LastSeen:       r.Timestamp,
			})
			continue
		}
		rows[i].MinHealthScore = math.Min(rows[i].MinHealthScore, r.HealthScore)
		if r.Timestamp.After(rows[i].LastSeen) {
			rows[i].LastSeen = r.Timestamp
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.MinHealthScore != b.MinHealthScore {
			return a.MinHealthScore < b.MinHealthScore
		}
		if a.FacilityID != b.FacilityID {
			return a.FacilityID < b.FacilityID
		}
		return a.EquipmentID < b.EquipmentID
	})
	for i := range rows {
		rows[i].Priority = i + 1
	}
	return rows
}

// Save writes the detector as the artifact for version.
func (p *Predictor) Save(ctx context.Context, store *artifact.Store, version string) (string, error) {
	if !p.Fitted() {
		return "", fmt.Errorf("%w: nothing to save", model.ErrValidation)
	}
	return store.Write(ctx, p.Name(), version, p.detector)
}

// Load reads the artifact at path and restores the detector. It returns the
// version tag stored in the artifact.
func (p *Predictor) Load(ctx context.Context, store *artifact.Store, path string) (string, error) {
	b, err := store.Read(ctx, path)
	if err != nil {
		return "", err
	}
	if err := p.Restore(b); err != nil {
		return "", err
	}
	return b.Version, nil
}

// Restore replaces the detector with the one carried by b.
func (p *Predictor) Restore(b *artifact.Bundle) error {
	if b.Model != p.Name() {
		return fmt.Errorf("%w: artifact holds %q, want %q", model.ErrModelLoad, b.Model, p.Name())
	}
	var det forest.IsolationForest
	if err := b.Decode(&det); err != nil {
		return err
	}
	if !det.Fitted() {
		return fmt.Errorf("%w: artifact holds no fitted detector", model.ErrValidation)
	}
	if err := det.Validate(); err != nil {
		return fmt.Errorf("%w: detector: %w", model.ErrModelLoad, err)
	}
	p.detector = &det
	return nil
}
