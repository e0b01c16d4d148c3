package sampledata

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/okian/petroenergy/internal/domain/model"
	"github.com/okian/petroenergy/pkg/logger"
)

// Price model constants.
const (
	wtiBase         = 75.0
	seasonAmplitude = 6.0
	walkStep        = 0.8
	brentSpreadMin  = 3.0
	brentSpreadSpan = 2.0
	priceGapRate    = 0.01
	minPrice        = 20.0
)

// Health score ranges per condition.
const (
	healthyMin    = 85.0
	healthyRange  = 15.0
	degradingMin  = 60.0
	degradingSpan = 25.0
	failingMin    = 5.0
	failingRange  = 35.0
)

// Condition cases drawn per reading, out of conditionCases.
const (
	conditionCases   = 40
	caseFailing      = 0
	caseSensorDrop   = 1
	caseDegradingMax = 6
)

// Prices generates one price row per day: a seasonal curve plus a random walk,
// with Brent trading at a small premium. About one day in a hundred is
// missing a price.
func Prices(_ context.Context, cfg Config) ([]model.PriceRecord, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // reproducible sample data
	start := cfg.start()

	out := make([]model.PriceRecord, cfg.Days)
	walk := 0.0
	for i := range out {
		date := start.AddDate(0, 0, i)
		walk += (rng.Float64()*2 - 1) * walkStep
		season := seasonAmplitude * math.Sin(2*math.Pi*float64(date.YearDay())/365)
		wti := math.Max(minPrice, wtiBase+season+walk)
		brent := wti + brentSpreadMin + rng.Float64()*brentSpreadSpan

		rec := model.PriceRecord{Date: date, WTI: round2(wti), Brent: round2(brent)}
		switch r := rng.Float64(); {
		case r < priceGapRate/2:
			rec.WTI = math.NaN()
		case r < priceGapRate:
			rec.Brent = math.NaN()
		}
		out[i] = rec
	}
	return out, nil
}

// Readings generates one health reading per equipment per day. Most readings
// are healthy; a few are degrading, failing or missing their score.
func Readings(ctx context.Context, cfg Config) ([]model.EquipmentReading, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed + 1)) //nolint:gosec // reproducible sample data
	start := cfg.start()

	out := make([]model.EquipmentReading, 0, cfg.Days*cfg.Facilities*cfg.EquipmentPerFacility)
	for d := 0; d < cfg.Days; d++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("generation cancelled: %w", err)
		}
		for f := 1; f <= cfg.Facilities; f++ {
			for e := 1; e <= cfg.EquipmentPerFacility; e++ {
				ts := start.AddDate(0, 0, d).Add(time.Duration(rng.Intn(24*60)) * time.Minute)
				out = append(out, model.EquipmentReading{
					FacilityID:  fmt.Sprintf("FAC-%03d", f),
					EquipmentID: fmt.Sprintf("EQ-%03d-%02d", f, e),
					Timestamp:   ts,
					HealthScore: healthScore(rng),
				})
			}
		}
	}
	return out, nil
}

func healthScore(rng *rand.Rand) float64 {
	switch c := rng.Intn(conditionCases); {
	case c == caseFailing:
		return round2(failingMin + rng.Float64()*failingRange)
	case c == caseSensorDrop:
		return math.NaN()
	case c <= caseDegradingMax:
		return round2(degradingMin + rng.Float64()*degradingSpan)
	default:
		return round2(healthyMin + rng.Float64()*healthyRange)
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Generate produces both datasets and logs their sizes.
func Generate(ctx context.Context, cfg Config) ([]model.PriceRecord, []model.EquipmentReading, error) {
	prices, err := Prices(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	readings, err := Readings(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	logger.Get().Info(ctx, "generated sample data",
		logger.Int("price_rows", len(prices)),
		logger.Int("equipment_rows", len(readings)))
	return prices, readings, nil
}
