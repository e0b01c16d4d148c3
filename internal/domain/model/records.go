// Package model contains domain models passed between layers.
package model

import "time"

// Model kinds handled by the pipeline.
const (
	ForecasterName  = "market_forecaster"
	MaintenanceName = "maintenance_model"
)

// PriceRecord is one row of the commodity price series.
// A missing price is represented as NaN.
type PriceRecord struct {
	Date  time.Time
	WTI   float64
	Brent float64
}

// EquipmentReading is a single health observation for one piece of equipment.
// HealthScore is nominally 0-100; NaN means the reading carried no score.
type EquipmentReading struct {
	FacilityID  string
	EquipmentID string
	Timestamp   time.Time
	HealthScore float64
}

// MaxForecastDays bounds how many days a single forecast request may cover.
const MaxForecastDays = 366

// PricePrediction is the forecast for a single calendar date.
type PricePrediction struct {
	Date      time.Time `json:"date"`
	DayOfYear int       `json:"day_of_year"`
	WTI       float64   `json:"wti_price"`
	Brent     float64   `json:"brent_price"`
}

// Label is the per-reading verdict of the anomaly detector.
type Label int

// Label values follow the detector's -1/1 convention.
const (
	Anomaly Label = -1
	Normal  Label = 1
)

func (l Label) String() string {
	if l == Anomaly {
		return "anomaly"
	}
	return "normal"
}

// MarshalText renders the label as "normal" or "anomaly".
func (l Label) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// LabeledReading pairs a reading with its detector verdict.
type LabeledReading struct {
	EquipmentReading
	Label Label
}

// ReportRow is one line of the maintenance priority table. Rows are derived
// on every request and never persisted.
type ReportRow struct {
	FacilityID     string    `json:"facility_id"`
	EquipmentID    string    `json:"equipment_id"`
	MinHealthScore float64   `json:"min_health_score"`
	LastSeen       time.Time `json:"last_seen"`
	Priority       int       `json:"priority"`
}

// Summary condenses forecasts and anomalies for the executive overview.
type Summary struct {
	Facility        string   `json:"facility,omitempty"`
	PriceTrend      string   `json:"price_trend"`
	HorizonDays     int      `json:"horizon_days"`
	WTIForecast     float64  `json:"wti_forecast"`
	BrentForecast   float64  `json:"brent_forecast"`
	AnomalyCount    int      `json:"anomaly_count"`
	Recommendations []string `json:"recommendations"`
}
