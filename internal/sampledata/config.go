// Package sampledata generates synthetic market and equipment datasets for
// local runs and demos. Output is fully determined by the Config.
package sampledata

import (
	"fmt"
	"time"
)

// Default generation parameters.
const (
	DefaultDays                 = 365
	DefaultFacilities           = 3
	DefaultEquipmentPerFacility = 4
	DefaultSeed                 = 42
)

// File names written by WriteFiles.
const (
	MarketFile    = "market_data.csv"
	EquipmentFile = "equipment_data.csv"
)

// Config controls the size and shape of the generated data.
type Config struct {
	// Start is the first generated day. Zero means Days before today.
	Start                time.Time
	Days                 int
	Facilities           int
	EquipmentPerFacility int
	Seed                 int64
}

// DefaultConfig returns a year of data for a small fleet.
func DefaultConfig() Config {
	return Config{
		Days:                 DefaultDays,
		Facilities:           DefaultFacilities,
		EquipmentPerFacility: DefaultEquipmentPerFacility,
		Seed:                 DefaultSeed,
	}
}

func (c Config) validate() error {
	if c.Days <= 0 {
		return fmt.Errorf("days must be positive, got %d", c.Days)
	}
	if c.Facilities <= 0 || c.EquipmentPerFacility <= 0 {
		return fmt.Errorf("need at least one facility and one equipment, got %d/%d", c.Facilities, c.EquipmentPerFacility)
	}
	return nil
}

func (c Config) start() time.Time {
	if !c.Start.IsZero() {
		return c.Start.UTC().Truncate(24 * time.Hour)
	}
	return time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -c.Days)
}
