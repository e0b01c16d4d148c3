// Package service provides the core business service that implements
// the dependencies required by the HTTP API and the CLI.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/petroenergy/internal/adapters/dataset"
	"github.com/okian/petroenergy/internal/domain/forecast"
	"github.com/okian/petroenergy/internal/domain/maintenance"
	"github.com/okian/petroenergy/internal/domain/model"
	"github.com/okian/petroenergy/internal/domain/pipeline"
	"github.com/okian/petroenergy/pkg/logger"
	"github.com/okian/petroenergy/pkg/metrics"
)

// Price trends reported in the summary.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
)

// Service owns the datasets and the two models and answers prediction calls.
type Service struct {
	mu sync.RWMutex

	// Configuration
	modelsDir     string
	version       string
	compatible    []string
	marketPath    string
	equipmentPath string
	horizon       int
	trees         int
	seed          int64
	contamination float64
	reportLimit   int
	forceRetrain  bool
	now           func() time.Time

	// State
	started    bool
	startedAt  time.Time
	pipeline   *pipeline.Pipeline
	forecaster *forecast.Forecaster
	predictor  *maintenance.Predictor
	prices     []model.PriceRecord
	readings   []model.EquipmentReading

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithModelsDir sets the artifact directory.
func WithModelsDir(dir string) Option {
	return func(s *Service) {
		if dir != "" {
			s.modelsDir = dir
		}
	}
}

// WithModelVersion sets the current artifact version and the older versions
// that may still be loaded.
func WithModelVersion(version string, compatible ...string) Option {
	return func(s *Service) {
		if version != "" {
			s.version = version
		}
		s.compatible = compatible
	}
}

// WithDataPaths sets the market and equipment CSV files.
func WithDataPaths(market, equipment string) Option {
	return func(s *Service) {
		if market != "" {
			s.marketPath = market
		}
		if equipment != "" {
			s.equipmentPath = equipment
		}
	}
}

// WithForecastHorizon sets the default number of forecast days.
func WithForecastHorizon(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.horizon = days
		}
	}
}

// WithForest configures the tree count and seed of both models.
func WithForest(trees int, seed int64) Option {
	return func(s *Service) {
		if trees > 0 {
			s.trees = trees
		}
		s.seed = seed
	}
}

// WithContamination sets the expected anomaly share.
func WithContamination(c float64) Option {
	return func(s *Service) {
		if c > 0 && c <= 0.5 {
			s.contamination = c
		}
	}
}

// WithReportLimit sets the default maintenance report size; 0 means all rows.
func WithReportLimit(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.reportLimit = n
		}
	}
}

// WithForceRetrain makes Start train both models even when a usable
// artifact exists.
func WithForceRetrain(force bool) Option {
	return func(s *Service) {
		s.forceRetrain = force
	}
}

// WithClock overrides the clock that anchors forecasts to "today".
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		modelsDir:     "models",
		version:       "1.0.0",
		marketPath:    "data/market_data.csv",
		equipmentPath: "data/equipment_data.csv",
		horizon:       30,
		trees:         100,
		seed:          42,
		contamination: 0.05,
		reportLimit:   5,
		now:           time.Now,
		logger:        nil, // Will be replaced when service starts
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start reads both datasets and initializes the models, loading compatible
// artifacts where possible.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if err := s.ensurePipeline(); err != nil {
		return err
	}
	s.logger.Info(ctx, "starting model service...",
		logger.String("modelsDir", s.modelsDir),
		logger.String("version", s.version))

	if err := s.loadData(ctx); err != nil {
		return err
	}

	if err := s.initModels(ctx); err != nil {
		return err
	}

	s.started = true
	s.startedAt = s.now()
	s.logger.Info(ctx, "model service started",
		logger.Int("priceRows", len(s.prices)),
		logger.Int("equipmentRows", len(s.readings)),
		logger.String("forecaster", s.pipeline.State(pipeline.KindForecaster).String()),
		logger.String("maintenance", s.pipeline.State(pipeline.KindMaintenance).String()),
	)
	return nil
}

// ensurePipeline opens the models directory once. Callers hold s.mu.
func (s *Service) ensurePipeline() error {
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.pipeline != nil {
		return nil
	}
	p, err := pipeline.New(pipeline.Config{
		ModelsDir:          s.modelsDir,
		Version:            s.version,
		CompatibleVersions: s.compatible,
	}, pipeline.WithLogger(s.logger.Named("pipeline")))
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	s.pipeline = p
	return nil
}

func (s *Service) loadData(ctx context.Context) error {
	r := dataset.NewReader(dataset.WithLogger(s.logger.Named("dataset")))

	prices, err := r.LoadPriceSeries(ctx, s.marketPath)
	if err != nil {
		return fmt.Errorf("load market data: %w", err)
	}
	readings, err := r.LoadEquipmentReadings(ctx, s.equipmentPath)
	if err != nil {
		return fmt.Errorf("load equipment data: %w", err)
	}

	s.prices = dataset.CleanPriceSeries(prices)
	s.readings = readings
	metrics.UpdateDatasetRows("market", len(s.prices))
	metrics.UpdateDatasetRows("equipment", len(s.readings))
	return nil
}

func (s *Service) forecastOptions() []forecast.Option {
	return []forecast.Option{forecast.WithTrees(s.trees), forecast.WithSeed(s.seed)}
}

func (s *Service) maintenanceOptions() []maintenance.Option {
	return []maintenance.Option{
		maintenance.WithTrees(s.trees),
		maintenance.WithSeed(s.seed),
		maintenance.WithContamination(s.contamination),
	}
}

func (s *Service) initModels(ctx context.Context) error {
	if s.forceRetrain {
		f := forecast.New(s.forecastOptions()...)
		if err := s.pipeline.RetrainForecaster(ctx, f, s.prices); err != nil {
			return err
		}
		m := maintenance.New(s.maintenanceOptions()...)
		if err := s.pipeline.RetrainMaintenance(ctx, m, s.readings); err != nil {
			return err
		}
		s.forecaster, s.predictor = f, m
		return nil
	}

	f, err := s.pipeline.InitializeForecaster(ctx, s.prices, s.forecastOptions()...)
	if err != nil {
		return err
	}
	m, err := s.pipeline.InitializeMaintenance(ctx, s.readings, s.maintenanceOptions()...)
	if err != nil {
		return err
	}
	s.forecaster, s.predictor = f, m
	return nil
}

// Stop marks the service as stopped. Persisted artifacts are left in place.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.started = false
	s.logger.Info(context.Background(), "model service stopped")
}

func (s *Service) ready() error {
	if !s.started {
		return fmt.Errorf("%w: service not started", model.ErrNotReady)
	}
	return nil
}

// Today returns the service's current date at midnight UTC.
func (s *Service) Today() time.Time {
	return s.now().UTC().Truncate(24 * time.Hour)
}

// Forecast predicts prices for days consecutive dates starting today. A
// non-positive days uses the configured horizon.
func (s *Service) Forecast(ctx context.Context, days int) ([]model.PricePrediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.forecast(ctx, days)
}

func (s *Service) forecast(_ context.Context, days int) ([]model.PricePrediction, error) {
	if days <= 0 {
		days = s.horizon
	}
	start := s.Today()
	dates := make([]time.Time, days)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
	}
	preds, err := s.forecaster.Predict(dates)
	if err != nil {
		return nil, err
	}
	metrics.RecordPredictions(model.ForecasterName, len(preds))
	return preds, nil
}

// Anomalies labels every equipment reading, optionally restricted to one
// facility.
func (s *Service) Anomalies(ctx context.Context, facility string) ([]model.LabeledReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return nil, err
	}
	labeled := s.predictor.Label(ctx, s.facilityReadings(facility))
	metrics.RecordPredictions(model.MaintenanceName, len(labeled))
	metrics.UpdateAnomaliesFlagged(countAnomalies(labeled))
	return labeled, nil
}

// facilityReadings returns the readings of one facility, or all of them when
// facility is empty. Callers hold s.mu.
func (s *Service) facilityReadings(facility string) []model.EquipmentReading {
	if facility == "" {
		return s.readings
	}
	rows := make([]model.EquipmentReading, 0, len(s.readings))
	for _, r := range s.readings {
		if r.FacilityID == facility {
			rows = append(rows, r)
		}
	}
	return rows
}

// MaintenanceReport returns the ranked maintenance table truncated to limit
// rows. A negative limit uses the configured default; 0 returns every row.
func (s *Service) MaintenanceReport(ctx context.Context, limit int) ([]model.ReportRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit < 0 {
		limit = s.reportLimit
	}
	rows := s.predictor.Report(ctx, s.readings)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// Summary condenses the default-horizon forecast and the anomaly count of one
// facility, or of every facility when facility is empty.
func (s *Service) Summary(ctx context.Context, facility string) (model.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return model.Summary{}, err
	}
	preds, err := s.forecast(ctx, s.horizon)
	if err != nil {
		return model.Summary{}, err
	}
	anomalies := countAnomalies(s.predictor.Label(ctx, s.facilityReadings(facility)))
	metrics.UpdateAnomaliesFlagged(anomalies)

	first, last := preds[0], preds[len(preds)-1]
	trend := TrendDecreasing
	if last.WTI > first.WTI {
		trend = TrendIncreasing
	}

	recs := make([]string, 0, 2)
	if anomalies > 0 {
		recs = append(recs, "Consider preventive maintenance for flagged equipment.")
	} else {
		recs = append(recs, "No immediate maintenance concerns.")
	}
	if trend == TrendIncreasing {
		recs = append(recs, "Adjust production schedules to take advantage of rising prices.")
	}

	return model.Summary{
		Facility:        facility,
		PriceTrend:      trend,
		HorizonDays:     len(preds),
		WTIForecast:     last.WTI,
		BrentForecast:   last.Brent,
		AnomalyCount:    anomalies,
		Recommendations: recs,
	}, nil
}

// Retrain rereads both datasets and retrains both models, overwriting the
// current-version artifacts. On a training error the previous models keep
// serving.
func (s *Service) Retrain(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}
	if err := s.loadData(ctx); err != nil {
		return err
	}
	if err := s.pipeline.RetrainForecaster(ctx, s.forecaster, s.prices); err != nil {
		return err
	}
	if err := s.pipeline.RetrainMaintenance(ctx, s.predictor, s.readings); err != nil {
		return err
	}
	s.logger.Info(ctx, "models retrained")
	return nil
}

// Cleanup deletes artifacts outside the compatible version set. It does not
// need the service to be started.
func (s *Service) Cleanup(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensurePipeline(); err != nil {
		return nil, err
	}
	return s.pipeline.CleanupOldModels(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":        s.started,
		"modelsDir":      s.modelsDir,
		"modelVersion":   s.version,
		"forecastDays":   s.horizon,
		"forestTrees":    s.trees,
		"priceRows":      len(s.prices),
		"equipmentRows":  len(s.readings),
		"reportLimit":    s.reportLimit,
		"contamination":  s.contamination,
		"goroutineCount": runtime.NumGoroutine(),
	}

	if s.pipeline != nil {
		states := make(map[string]string)
		for kind, st := range s.pipeline.States() {
			states[string(kind)] = st.String()
		}
		stats["models"] = states
		stats["compatibleVersions"] = s.pipeline.CompatibleVersions()
	}
	if s.started {
		stats["startedAt"] = s.startedAt.UTC().Format(time.RFC3339)
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	metrics.UpdateSystemMemoryUsage(mem.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	return stats
}

func countAnomalies(rows []model.LabeledReading) int {
	n := 0
	for _, r := range rows {
		if r.Label == model.Anomaly {
			n++
		}
	}
	return n
}
