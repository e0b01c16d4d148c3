// Package pipeline decides, per model, whether to reuse a persisted artifact
// or train a new one, and removes artifacts that fall out of the compatible
// version set when asked to.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/okian/petroenergy/internal/adapters/artifact"
	"github.com/okian/petroenergy/internal/domain/forecast"
	"github.com/okian/petroenergy/internal/domain/maintenance"
	"github.com/okian/petroenergy/internal/domain/model"
	"github.com/okian/petroenergy/pkg/logger"
	"github.com/okian/petroenergy/pkg/metrics"
)

// Config carries everything the pipeline needs to locate and judge artifacts.
type Config struct {
	ModelsDir string
	// Version is written into every new artifact.
	Version string
	// CompatibleVersions may be loaded. Entries are exact versions ("0.9.0")
	// or constraints ("~0.9", ">= 0.8 < 1.0"). Version is always included.
	CompatibleVersions []string
}

// Option applies a configuration option to the Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used for load, train and cleanup events.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithStoreOptions forwards options to the artifact store.
func WithStoreOptions(opts ...artifact.Option) Option {
	return func(p *Pipeline) {
		p.storeOpts = append(p.storeOpts, opts...)
	}
}

// Pipeline owns the artifact store and the lifecycle state of each model kind.
type Pipeline struct {
	cfg         Config
	compatible  map[string]bool
	constraints []*semver.Constraints
	store      *artifact.Store
	storeOpts  []artifact.Option
	log        logger.Logger

	mu     sync.RWMutex
	states map[Kind]State
}

// persistable is the part of a model the pipeline drives.
type persistable interface {
	Name() string
	Fitted() bool
	Restore(b *artifact.Bundle) error
	Save(ctx context.Context, store *artifact.Store, version string) (string, error)
}

// New validates cfg and opens the models directory, creating it if needed.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if !artifact.ValidVersion(cfg.Version) {
		return nil, fmt.Errorf("%w: current version %q", artifact.ErrBadVersion, cfg.Version)
	}
	p := &Pipeline{
		cfg:        cfg,
		compatible: map[string]bool{cfg.Version: true},
		states: map[Kind]State{
			KindForecaster:  Uninitialized,
			KindMaintenance: Uninitialized,
		},
	}
	for _, v := range cfg.CompatibleVersions {
		if artifact.ValidVersion(v) {
			p.compatible[v] = true
			continue
		}
		c, err := semver.NewConstraint(v)
		if err != nil {
			return nil, fmt.Errorf("%w: compatible version %q: %w", artifact.ErrBadVersion, v, err)
		}
		p.constraints = append(p.constraints, c)
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.Get().Named("pipeline")
	}

	store, err := artifact.NewStore(cfg.ModelsDir, p.storeOpts...)
	if err != nil {
		return nil, err
	}
	p.store = store
	for kind := range p.states {
		metrics.UpdateModelState(kind.ModelName(), int(Uninitialized))
	}
	return p, nil
}

// Store returns the artifact store backing the pipeline.
func (p *Pipeline) Store() *artifact.Store { return p.store }

// Version returns the version written into new artifacts.
func (p *Pipeline) Version() string { return p.cfg.Version }

// Compatible reports whether artifacts tagged v may be loaded.
func (p *Pipeline) Compatible(v string) bool {
	if p.compatible[v] {
		return true
	}
	if len(p.constraints) == 0 {
		return false
	}
	sv, err := semver.StrictNewVersion(v)
	if err != nil {
		return false
	}
	for _, c := range p.constraints {
		if c.Check(sv) {
			return true
		}
	}
	return false
}

// CompatibleVersions returns the exact compatible versions newest first,
// followed by any constraints in configuration order.
func (p *Pipeline) CompatibleVersions() []string {
	out := make([]string, 0, len(p.compatible)+len(p.constraints))
	for v := range p.compatible {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b string) int { return artifact.CompareVersions(b, a) })
	for _, c := range p.constraints {
		out = append(out, c.String())
	}
	return out
}

// State returns the current state of one kind.
func (p *Pipeline) State(kind Kind) State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.states[kind]
}

// States returns a snapshot of every kind's state.
func (p *Pipeline) States() map[Kind]State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[Kind]State, len(p.states))
	for k, s := range p.states {
		out[k] = s
	}
	return out
}

func (p *Pipeline) setState(kind Kind, s State) {
	p.mu.Lock()
	p.states[kind] = s
	p.mu.Unlock()
	metrics.UpdateModelState(kind.ModelName(), int(s))
}

// InitializeForecaster returns a forecaster loaded from the newest usable
// artifact, or trained on records and persisted under the current version.
// Only training errors are returned.
func (p *Pipeline) InitializeForecaster(ctx context.Context, records []model.PriceRecord, opts ...forecast.Option) (*forecast.Forecaster, error) {
	f := forecast.New(opts...)
	err := p.initialize(ctx, KindForecaster, f, func(ctx context.Context) error {
		return f.Train(ctx, records)
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// InitializeMaintenance is InitializeForecaster for the maintenance predictor.
// Training on no usable readings succeeds without persisting anything.
func (p *Pipeline) InitializeMaintenance(ctx context.Context, readings []model.EquipmentReading, opts ...maintenance.Option) (*maintenance.Predictor, error) {
	m := maintenance.New(opts...)
	err := p.initialize(ctx, KindMaintenance, m, func(ctx context.Context) error {
		return m.Train(ctx, readings)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RetrainForecaster trains f on records and overwrites the current-version
// artifact without attempting a load.
func (p *Pipeline) RetrainForecaster(ctx context.Context, f *forecast.Forecaster, records []model.PriceRecord) error {
	return p.train(ctx, KindForecaster, f, func(ctx context.Context) error {
		return f.Train(ctx, records)
	})
}

// RetrainMaintenance trains m on readings and overwrites the current-version
// artifact without attempting a load.
func (p *Pipeline) RetrainMaintenance(ctx context.Context, m *maintenance.Predictor, readings []model.EquipmentReading) error {
	return p.train(ctx, KindMaintenance, m, func(ctx context.Context) error {
		return m.Train(ctx, readings)
	})
}

func (p *Pipeline) initialize(ctx context.Context, kind Kind, m persistable, fit func(context.Context) error) error {
	candidates, err := p.candidates(ctx, m.Name())
	if err != nil {
		p.log.Warn(ctx, "listing artifacts failed",
			logger.String("model", m.Name()), logger.Error(err))
	}
	for _, path := range candidates {
		version, err := p.tryLoad(ctx, m, path)
		if err != nil {
			p.log.Warn(ctx, "artifact not usable, trying next",
				logger.String("model", m.Name()),
				logger.String("kind", string(kind)),
				logger.String("path", path),
				logger.Error(err))
			metrics.RecordLoadAttempt(m.Name(), loadOutcome(err))
			continue
		}
		metrics.RecordLoadAttempt(m.Name(), "loaded")
		p.log.Info(ctx, "model loaded",
			logger.String("model", m.Name()),
			logger.String("path", path),
			logger.String("version", version))
		p.setState(kind, Loaded)
		return nil
	}
	return p.train(ctx, kind, m, fit)
}

// candidates lists the artifacts worth trying, the current-version file
// first, then older compatible versions newest first.
func (p *Pipeline) candidates(ctx context.Context, name string) ([]string, error) {
	var out []string
	current := p.store.Path(name, p.cfg.Version)
	if p.store.Exists(current) {
		out = append(out, current)
	}
	entries, err := p.store.List(ctx)
	if err != nil {
		return out, err
	}
	for _, e := range entries {
		if e.Model != name || e.Version == p.cfg.Version || !p.Compatible(e.Version) {
			continue
		}
		out = append(out, e.Path)
	}
	return out, nil
}

// tryLoad restores m from path. m is untouched unless it returns nil.
func (p *Pipeline) tryLoad(ctx context.Context, m persistable, path string) (version string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic while restoring %s: %v", model.ErrModelLoad, path, r)
		}
	}()

	b, err := p.store.Read(ctx, path)
	if err != nil {
		return "", err
	}
	_, fileVersion, _ := artifact.ParseName(path)
	switch {
	case b.Version == "":
		return "", fmt.Errorf("%w: %s carries no version tag", model.ErrIncompatibleVersion, path)
	case b.Version != fileVersion:
		return "", fmt.Errorf("%w: %s is tagged %s", model.ErrIncompatibleVersion, path, b.Version)
	case !p.Compatible(b.Version):
		return "", fmt.Errorf("%w: %s not in compatible set", model.ErrIncompatibleVersion, b.Version)
	}
	if err := m.Restore(b); err != nil {
		return "", err
	}
	if !m.Fitted() {
		return "", fmt.Errorf("%w: %s", model.ErrValidation, path)
	}
	return b.Version, nil
}

func (p *Pipeline) train(ctx context.Context, kind Kind, m persistable, fit func(context.Context) error) error {
	start := time.Now()
	if err := fit(ctx); err != nil {
		metrics.RecordTrainRun(m.Name(), "failed", time.Since(start).Seconds())
		metrics.RecordErrorByComponent("pipeline", "train")
		p.log.Error(ctx, "training failed", logger.String("model", m.Name()), logger.Error(err))
		p.setState(kind, Failed)
		return fmt.Errorf("train %s: %w", m.Name(), err)
	}

	if !m.Fitted() {
		metrics.RecordTrainRun(m.Name(), "empty", time.Since(start).Seconds())
		p.log.Warn(ctx, "no usable training data, model left empty",
			logger.String("model", m.Name()),
			logger.Duration("duration", time.Since(start)))
		p.setState(kind, Trained)
		return nil
	}

	path, err := m.Save(ctx, p.store, p.cfg.Version)
	if err != nil {
		metrics.RecordTrainRun(m.Name(), "failed", time.Since(start).Seconds())
		metrics.RecordErrorByComponent("pipeline", "persist")
		p.log.Error(ctx, "persisting model failed", logger.String("model", m.Name()), logger.Error(err))
		p.setState(kind, Failed)
		return fmt.Errorf("persist %s: %w", m.Name(), err)
	}
	metrics.RecordTrainRun(m.Name(), "ok", time.Since(start).Seconds())
	p.log.Info(ctx, "model trained",
		logger.String("model", m.Name()),
		logger.String("path", path),
		logger.String("version", p.cfg.Version),
		logger.Duration("duration", time.Since(start)))
	p.setState(kind, Trained)
	return nil
}

// CleanupOldModels deletes every artifact whose version is outside the
// compatible set and returns the deleted paths. Files it cannot remove are
// reported together in the returned error.
func (p *Pipeline) CleanupOldModels(ctx context.Context) ([]string, error) {
	entries, err := p.store.List(ctx)
	if err != nil {
		return nil, err
	}
	var (
		deleted []string
		errs    []error
	)
	for _, e := range entries {
		if p.Compatible(e.Version) {
			continue
		}
		if err := p.store.Remove(ctx, e.Path); err != nil {
			errs = append(errs, err)
			continue
		}
		deleted = append(deleted, e.Path)
		metrics.RecordArtifactDeleted()
		p.log.Info(ctx, "removed incompatible artifact",
			logger.String("model", e.Model),
			logger.String("version", e.Version),
			logger.String("path", e.Path))
	}
	return deleted, errors.Join(errs...)
}

func loadOutcome(err error) string {
	switch {
	case errors.Is(err, model.ErrIncompatibleVersion):
		return "incompatible"
	case errors.Is(err, model.ErrValidation):
		return "invalid"
	default:
		return "corrupt"
	}
}
