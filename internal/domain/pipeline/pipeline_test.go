package pipeline_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/petroenergy/internal/adapters/artifact"
	"github.com/okian/petroenergy/internal/domain/forecast"
	"github.com/okian/petroenergy/internal/domain/maintenance"
	"github.com/okian/petroenergy/internal/domain/model"
	"github.com/okian/petroenergy/internal/domain/pipeline"
	"github.com/okian/petroenergy/pkg/logger"
	"github.com/okian/petroenergy/pkg/metrics"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func prices() []model.PriceRecord {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.PriceRecord, 60)
	for i := range out {
		out[i] = model.PriceRecord{Date: start.AddDate(0, 0, i), WTI: 70 + float64(i%7), Brent: 74 + float64(i%5)}
	}
	return out
}

func health() []model.EquipmentReading {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	scores := []float64{95, 94, 96, 10, 93}
	out := make([]model.EquipmentReading, len(scores))
	for i, s := range scores {
		out[i] = model.EquipmentReading{FacilityID: "F1", EquipmentID: "E1", Timestamp: start.Add(time.Duration(i) * time.Hour), HealthScore: s}
	}
	return out
}

func newPipeline(dir, version string, compatible ...string) *pipeline.Pipeline {
	p, err := pipeline.New(pipeline.Config{ModelsDir: dir, Version: version, CompatibleVersions: compatible}, pipeline.WithLogger(logger.Nop()))
	So(err, ShouldBeNil)
	return p
}

func TestPipeline_LoadOrTrain(t *testing.T) {
	Convey("Given an empty models directory", t, func() {
		ctx := context.Background()
		dir := filepath.Join(t.TempDir(), "models")
		p := newPipeline(dir, "1.0.0")

		Convey("Then the directory is created and both kinds are uninitialized", func() {
			_, err := os.Stat(dir)
			So(err, ShouldBeNil)
			So(p.State(pipeline.KindForecaster), ShouldEqual, pipeline.Uninitialized)
			So(p.State(pipeline.KindMaintenance), ShouldEqual, pipeline.Uninitialized)
		})

		Convey("When both models are initialized", func() {
			f, err := p.InitializeForecaster(ctx, prices(), forecast.WithTrees(10))
			So(err, ShouldBeNil)
			m, err := p.InitializeMaintenance(ctx, health(), maintenance.WithTrees(20))
			So(err, ShouldBeNil)

			Convey("Then they are trained and persisted under the current version", func() {
				So(p.State(pipeline.KindForecaster), ShouldEqual, pipeline.Trained)
				So(p.State(pipeline.KindMaintenance), ShouldEqual, pipeline.Trained)
				So(p.Store().Exists(p.Store().Path(model.ForecasterName, "1.0.0")), ShouldBeTrue)
				So(p.Store().Exists(p.Store().Path(model.MaintenanceName, "1.0.0")), ShouldBeTrue)
			})

			Convey("And a restarted pipeline loads instead of training", func() {
				again := newPipeline(dir, "1.0.0")
				f2, err := again.InitializeForecaster(ctx, nil)
				So(err, ShouldBeNil)
				m2, err := again.InitializeMaintenance(ctx, nil)
				So(err, ShouldBeNil)

				So(again.State(pipeline.KindForecaster), ShouldEqual, pipeline.Loaded)
				So(again.State(pipeline.KindMaintenance), ShouldEqual, pipeline.Loaded)

				dates := []time.Time{time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)}
				a, _ := f.Predict(dates)
				b, err := f2.Predict(dates)
				So(err, ShouldBeNil)
				So(b, ShouldResemble, a)
				So(m2.PredictAnomalies(ctx, health()), ShouldResemble, m.PredictAnomalies(ctx, health()))
			})
		})
	})
}

func TestPipeline_Recovery(t *testing.T) {
	Convey("Given a trained forecaster artifact", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		p := newPipeline(dir, "1.0.0")
		_, err := p.InitializeForecaster(ctx, prices(), forecast.WithTrees(5))
		So(err, ShouldBeNil)
		path := p.Store().Path(model.ForecasterName, "1.0.0")

		Convey("When the artifact was torn mid-write", func() {
			raw, err := os.ReadFile(path)
			So(err, ShouldBeNil)
			So(os.WriteFile(path, raw[:len(raw)/3], 0o644), ShouldBeNil)

			again := newPipeline(dir, "1.0.0")
			f, err := again.InitializeForecaster(ctx, prices(), forecast.WithTrees(5))

			Convey("Then it retrains and rewrites a readable artifact", func() {
				So(err, ShouldBeNil)
				So(f.Fitted(), ShouldBeTrue)
				So(again.State(pipeline.KindForecaster), ShouldEqual, pipeline.Trained)
				_, err := again.Store().Read(ctx, path)
				So(err, ShouldBeNil)
			})
		})

		Convey("When the artifact holds only one fitted regressor", func() {
			b, err := p.Store().Read(ctx, path)
			So(err, ShouldBeNil)
			var full forecast.Models
			So(b.Decode(&full), ShouldBeNil)
			_, err = p.Store().Write(ctx, model.ForecasterName, "1.0.0", forecast.Models{WTI: full.WTI})
			So(err, ShouldBeNil)

			again := newPipeline(dir, "1.0.0")
			f, err := again.InitializeForecaster(ctx, prices(), forecast.WithTrees(5))

			Convey("Then it is retrained and can forecast", func() {
				So(err, ShouldBeNil)
				So(again.State(pipeline.KindForecaster), ShouldEqual, pipeline.Trained)
				preds, err := f.Predict([]time.Time{time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)})
				So(err, ShouldBeNil)
				So(preds, ShouldHaveLength, 1)

				b, err := again.Store().Read(ctx, path)
				So(err, ShouldBeNil)
				var rewritten forecast.Models
				So(b.Decode(&rewritten), ShouldBeNil)
				So(rewritten.Brent.Fitted(), ShouldBeTrue)
			})
		})

		Convey("When the artifact's tag disagrees with its file name", func() {
			renamed := p.Store().Path(model.ForecasterName, "1.1.0")
			So(os.Rename(path, renamed), ShouldBeNil)

			again := newPipeline(dir, "1.1.0", "1.0.0")
			_, err := again.InitializeForecaster(ctx, prices(), forecast.WithTrees(5))

			Convey("Then it is not trusted and the model is retrained", func() {
				So(err, ShouldBeNil)
				So(again.State(pipeline.KindForecaster), ShouldEqual, pipeline.Trained)
				b, err := again.Store().Read(ctx, renamed)
				So(err, ShouldBeNil)
				So(b.Version, ShouldEqual, "1.1.0")
			})
		})

		Convey("When a newer release lists the old version as compatible", func() {
			again := newPipeline(dir, "1.1.0", "1.0.0")
			_, err := again.InitializeForecaster(ctx, nil)

			Convey("Then the older artifact is loaded and nothing new is written", func() {
				So(err, ShouldBeNil)
				So(again.State(pipeline.KindForecaster), ShouldEqual, pipeline.Loaded)
				So(again.Store().Exists(again.Store().Path(model.ForecasterName, "1.1.0")), ShouldBeFalse)
			})
		})

		Convey("When a newer release drops the old version", func() {
			again := newPipeline(dir, "2.0.0")
			_, err := again.InitializeForecaster(ctx, prices(), forecast.WithTrees(5))

			Convey("Then it retrains but leaves the old artifact on disk", func() {
				So(err, ShouldBeNil)
				So(again.State(pipeline.KindForecaster), ShouldEqual, pipeline.Trained)
				So(again.Store().Exists(path), ShouldBeTrue)
				So(again.Store().Exists(again.Store().Path(model.ForecasterName, "2.0.0")), ShouldBeTrue)
			})
		})
	})
}

func TestPipeline_TrainingErrors(t *testing.T) {
	Convey("Given a fresh pipeline", t, func() {
		ctx := context.Background()
		p := newPipeline(t.TempDir(), "1.0.0")

		Convey("When the price series has no usable WTI value", func() {
			records := prices()
			for i := range records {
				records[i].WTI = math.NaN()
			}
			f, err := p.InitializeForecaster(ctx, records)

			Convey("Then the error propagates and nothing is persisted", func() {
				So(errors.Is(err, model.ErrDataInsufficient), ShouldBeTrue)
				So(f, ShouldBeNil)
				So(p.State(pipeline.KindForecaster), ShouldEqual, pipeline.Failed)
				entries, err := p.Store().List(ctx)
				So(err, ShouldBeNil)
				So(entries, ShouldBeEmpty)
			})
		})

		Convey("When there are no equipment readings", func() {
			m, err := p.InitializeMaintenance(ctx, nil)

			Convey("Then the predictor is trained empty and degrades to all normal", func() {
				So(err, ShouldBeNil)
				So(p.State(pipeline.KindMaintenance), ShouldEqual, pipeline.Trained)
				So(m.Fitted(), ShouldBeFalse)
				So(p.Store().Exists(p.Store().Path(model.MaintenanceName, "1.0.0")), ShouldBeFalse)
				So(m.PredictAnomalies(ctx, health()), ShouldResemble,
					[]model.Label{model.Normal, model.Normal, model.Normal, model.Normal, model.Normal})
			})
		})
	})

	Convey("Given an invalid version", t, func() {
		_, err := pipeline.New(pipeline.Config{ModelsDir: t.TempDir(), Version: "v1"})

		Convey("Then construction fails", func() {
			So(errors.Is(err, artifact.ErrBadVersion), ShouldBeTrue)
		})
	})
}

func TestPipeline_Retrain(t *testing.T) {
	Convey("Given a loaded forecaster", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		first := newPipeline(dir, "1.0.0")
		_, err := first.InitializeForecaster(ctx, prices(), forecast.WithTrees(5))
		So(err, ShouldBeNil)
		p := newPipeline(dir, "1.0.0")
		f, err := p.InitializeForecaster(ctx, nil, forecast.WithTrees(5))
		So(err, ShouldBeNil)
		So(p.State(pipeline.KindForecaster), ShouldEqual, pipeline.Loaded)

		Convey("When retrained on new prices", func() {
			records := prices()
			for i := range records {
				records[i].WTI += 10
			}
			So(p.RetrainForecaster(ctx, f, records), ShouldBeNil)

			Convey("Then the state is trained and the artifact carries the new model", func() {
				So(p.State(pipeline.KindForecaster), ShouldEqual, pipeline.Trained)
				fresh := forecast.New()
				_, err := fresh.Load(ctx, p.Store(), p.Store().Path(model.ForecasterName, "1.0.0"))
				So(err, ShouldBeNil)
				date := []time.Time{records[3].Date}
				a, _ := fresh.Predict(date)
				b, _ := f.Predict(date)
				So(a, ShouldResemble, b)
				So(a[0].WTI, ShouldBeGreaterThanOrEqualTo, 80)
			})
		})

		Convey("When retraining fails", func() {
			err := p.RetrainForecaster(ctx, f, nil)

			Convey("Then the state is failed and the previous model still predicts", func() {
				So(errors.Is(err, model.ErrDataInsufficient), ShouldBeTrue)
				So(p.State(pipeline.KindForecaster), ShouldEqual, pipeline.Failed)
				So(f.Fitted(), ShouldBeTrue)
			})
		})
	})
}

func TestPipeline_Cleanup(t *testing.T) {
	Convey("Given artifacts from several releases", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		for _, v := range []string{"0.9.0", "1.0.0", "1.1.0"} {
			p := newPipeline(dir, v)
			_, err := p.InitializeForecaster(ctx, prices(), forecast.WithTrees(3))
			So(err, ShouldBeNil)
			_, err = p.InitializeMaintenance(ctx, health(), maintenance.WithTrees(3))
			So(err, ShouldBeNil)
		}
		So(os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0o644), ShouldBeNil)

		p := newPipeline(dir, "1.1.0", "1.0.0")

		Convey("When cleanup runs", func() {
			deleted, err := p.CleanupOldModels(ctx)

			Convey("Then only the incompatible versions are removed", func() {
				So(err, ShouldBeNil)
				So(deleted, ShouldHaveLength, 2)
				So(deleted, ShouldContain, filepath.Join(dir, artifact.FileName(model.ForecasterName, "0.9.0")))
				So(deleted, ShouldContain, filepath.Join(dir, artifact.FileName(model.MaintenanceName, "0.9.0")))

				entries, err := p.Store().List(ctx)
				So(err, ShouldBeNil)
				So(entries, ShouldHaveLength, 4)
				for _, e := range entries {
					So(p.Compatible(e.Version), ShouldBeTrue)
				}
				_, err = os.Stat(filepath.Join(dir, "notes.txt"))
				So(err, ShouldBeNil)
			})

			Convey("And a second run deletes nothing", func() {
				again, err := p.CleanupOldModels(ctx)
				So(err, ShouldBeNil)
				So(again, ShouldBeEmpty)
			})
		})

		Convey("Then the compatible set is ordered newest first", func() {
			So(p.CompatibleVersions(), ShouldResemble, []string{"1.1.0", "1.0.0"})
		})

		Convey("When the compatible set is a constraint", func() {
			ranged := newPipeline(dir, "1.1.0", "~0.9")
			deleted, err := ranged.CleanupOldModels(ctx)

			Convey("Then versions inside the range are kept", func() {
				So(err, ShouldBeNil)
				So(deleted, ShouldHaveLength, 2)
				So(deleted, ShouldContain, filepath.Join(dir, artifact.FileName(model.ForecasterName, "1.0.0")))
				So(ranged.Compatible("0.9.0"), ShouldBeTrue)
				So(ranged.Compatible("0.9.7"), ShouldBeTrue)
				So(ranged.Compatible("1.0.0"), ShouldBeFalse)
				So(ranged.CompatibleVersions(), ShouldResemble, []string{"1.1.0", "~0.9"})
			})

			Convey("And an older artifact in range is loaded", func() {
				So(os.Remove(filepath.Join(dir, artifact.FileName(model.ForecasterName, "1.1.0"))), ShouldBeNil)
				_, err := ranged.InitializeForecaster(ctx, nil)
				So(err, ShouldBeNil)
				So(ranged.State(pipeline.KindForecaster), ShouldEqual, pipeline.Loaded)
			})
		})
	})
}

func TestPipeline_VersionOrdering(t *testing.T) {
	Convey("Given compatible versions with multi-digit parts", t, func() {
		p := newPipeline(t.TempDir(), "10.0.0", "9.12.0", "9.2.0")

		Convey("Then they order numerically, newest first", func() {
			So(p.CompatibleVersions(), ShouldResemble, []string{"10.0.0", "9.12.0", "9.2.0"})
		})
	})

	Convey("Given an unparsable compatible entry", t, func() {
		_, err := pipeline.New(pipeline.Config{ModelsDir: t.TempDir(), Version: "1.0.0", CompatibleVersions: []string{"newest"}})

		Convey("Then the pipeline is not created", func() {
			So(errors.Is(err, artifact.ErrBadVersion), ShouldBeTrue)
		})
	})
}

// modelLabels collects the "model" label values of every metric family whose
// name ends with suffix.
func modelLabels(t *testing.T, suffix string) map[string]bool {
	t.Helper()
	families, err := metrics.GetRegistry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	out := make(map[string]bool)
	for _, mf := range families {
		if !strings.HasSuffix(mf.GetName(), suffix) {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "model" {
					out[lp.GetValue()] = true
				}
			}
		}
	}
	return out
}

func TestPipeline_MetricLabels(t *testing.T) {
	Convey("Given a pipeline that trains and then loads a forecaster", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		_, err := newPipeline(dir, "1.0.0").InitializeForecaster(ctx, prices(), forecast.WithTrees(3))
		So(err, ShouldBeNil)
		_, err = newPipeline(dir, "1.0.0").InitializeForecaster(ctx, nil)
		So(err, ShouldBeNil)

		Convey("Then state, load and train series share the artifact name label", func() {
			for _, suffix := range []string{"_state", "_load_attempts_total", "_train_runs_total"} {
				labels := modelLabels(t, suffix)
				So(labels[model.ForecasterName], ShouldBeTrue)
				So(labels[string(pipeline.KindForecaster)], ShouldBeFalse)
			}
		})
	})

	Convey("Kinds map to their artifact names", t, func() {
		So(pipeline.KindForecaster.ModelName(), ShouldEqual, model.ForecasterName)
		So(pipeline.KindMaintenance.ModelName(), ShouldEqual, model.MaintenanceName)
	})
}

func TestState_String(t *testing.T) {
	Convey("States render as lower-case names", t, func() {
		So(pipeline.Uninitialized.String(), ShouldEqual, "uninitialized")
		So(pipeline.Loaded.String(), ShouldEqual, "loaded")
		So(pipeline.Trained.String(), ShouldEqual, "trained")
		So(pipeline.Failed.String(), ShouldEqual, "failed")
	})
}
