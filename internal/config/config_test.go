package config_test

import (
	"errors"
	"testing"

	"github.com/okian/petroenergy/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.ModelsDir, convey.ShouldEqual, "models")
			convey.So(cfg.ModelVersion, convey.ShouldEqual, "1.0.0")
			convey.So(cfg.ForecastHorizonDays, convey.ShouldEqual, 30)
			convey.So(cfg.ForestTrees, convey.ShouldEqual, 100)
			convey.So(cfg.RandomSeed, convey.ShouldEqual, 42)
			convey.So(cfg.Contamination, convey.ShouldEqual, 0.05)
			convey.So(cfg.ReportLimit, convey.ShouldEqual, 5)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs with one bad value each", t, func() {
		cases := map[string]func(*config.Config){
			"empty addr":          func(c *config.Config) { c.Addr = "" },
			"empty models dir":    func(c *config.Config) { c.ModelsDir = "" },
			"prefixed version":    func(c *config.Config) { c.ModelVersion = "v1.0.0" },
			"zero horizon":        func(c *config.Config) { c.ForecastHorizonDays = 0 },
			"no trees":            func(c *config.Config) { c.ForestTrees = 0 },
			"large contamination": func(c *config.Config) { c.Contamination = 0.7 },
			"negative limit":      func(c *config.Config) { c.ReportLimit = -1 },
			"unknown log format":  func(c *config.Config) { c.LogFormat = "xml" },
			"bad compatible":      func(c *config.Config) { c.CompatibleVersions = []string{"newest"} },
			"pre-release version": func(c *config.Config) { c.ModelVersion = "1.0.0-rc.1" },
		}

		for name, mutate := range cases {
			cfg := config.New()
			mutate(cfg)

			convey.Convey("Then "+name+" is rejected", func() {
				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})
}

func TestConfig_CompatibleConstraints(t *testing.T) {
	convey.Convey("Given compatible versions mixing releases and constraints", t, func() {
		cfg := config.New()
		cfg.CompatibleVersions = []string{"0.9.0", "~0.8", ">= 0.5 < 0.7"}

		convey.Convey("Then the config is valid", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}
