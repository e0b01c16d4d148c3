// Package config defines service configuration and how it is loaded.
//
// Conventions:
// - New() returns a Config holding every default.
// - Load layers a .env file, an optional YAML file and PETRO_* env vars on top.
// - Errors wrap this package's sentinels.
package config

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Log formats understood by the logger.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// ModelsDir holds the versioned model artifacts.
	ModelsDir string `koanf:"models_dir"`

	// MarketDataPath and EquipmentDataPath point at the input CSV files.
	MarketDataPath    string `koanf:"market_data_path"`
	EquipmentDataPath string `koanf:"equipment_data_path"`

	// ModelVersion is stamped on newly trained artifacts.
	ModelVersion string `koanf:"model_version"`

	// CompatibleVersions lists older artifact versions, or semver constraints
	// such as "~0.9", that may still be loaded. From the environment it is a
	// comma separated list.
	CompatibleVersions []string `koanf:"compatible_versions"`

	// ForecastHorizonDays is the default number of forecast days.
	ForecastHorizonDays int `koanf:"forecast_horizon_days"`

	// ForestTrees and RandomSeed configure both tree ensembles.
	ForestTrees int   `koanf:"forest_trees"`
	RandomSeed  int64 `koanf:"random_seed"`

	// Contamination is the expected share of anomalous readings.
	Contamination float64 `koanf:"contamination"`

	// ReportLimit caps the maintenance report; 0 returns every row.
	ReportLimit int `koanf:"report_limit"`
}

// New creates a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           LogFormatText,
		Addr:                ":9080",
		ModelsDir:           "models",
		MarketDataPath:      "data/market_data.csv",
		EquipmentDataPath:   "data/equipment_data.csv",
		ModelVersion:        "1.0.0",
		CompatibleVersions:  []string{},
		ForecastHorizonDays: 30,
		ForestTrees:         100,
		RandomSeed:          42,
		Contamination:       0.05,
		ReportLimit:         5,
	}
}

// Validate checks the values a service cannot start without.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.ModelsDir == "":
		return fmt.Errorf("%w: models_dir must not be empty", ErrInvalidConfig)
	case !releaseVersion(c.ModelVersion):
		return fmt.Errorf("%w: model_version %q is not major.minor.patch", ErrInvalidConfig, c.ModelVersion)
	case c.ForecastHorizonDays <= 0:
		return fmt.Errorf("%w: forecast_horizon_days must be positive", ErrInvalidConfig)
	case c.ForestTrees <= 0:
		return fmt.Errorf("%w: forest_trees must be positive", ErrInvalidConfig)
	case c.Contamination <= 0 || c.Contamination > 0.5:
		return fmt.Errorf("%w: contamination must be in (0, 0.5]", ErrInvalidConfig)
	case c.ReportLimit < 0:
		return fmt.Errorf("%w: report_limit must not be negative", ErrInvalidConfig)
	case c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON:
		return fmt.Errorf("%w: log_format must be %q or %q", ErrInvalidConfig, LogFormatText, LogFormatJSON)
	}
	for _, v := range c.CompatibleVersions {
		if releaseVersion(v) {
			continue
		}
		if _, err := semver.NewConstraint(v); err != nil {
			return fmt.Errorf("%w: compatible version %q is neither major.minor.patch nor a constraint: %w", ErrInvalidConfig, v, err)
		}
	}
	return nil
}

// releaseVersion reports whether v is a plain major.minor.patch version.
func releaseVersion(v string) bool {
	sv, err := semver.StrictNewVersion(v)
	return err == nil && sv.Prerelease() == "" && sv.Metadata() == ""
}

// splitList flattens comma separated entries and drops blanks.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
