package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	service "github.com/okian/petroenergy/internal/app"
	"github.com/okian/petroenergy/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// run executes the root command with args and returns stdout.
func run(args ...string) (string, error) {
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	content := "models_dir: " + filepath.Join(dir, "models") + "\n" +
		"market_data_path: " + filepath.Join(dir, "data", "market_data.csv") + "\n" +
		"equipment_data_path: " + filepath.Join(dir, "data", "equipment_data.csv") + "\n" +
		"forest_trees: 10\n" +
		"forecast_horizon_days: 5\n" +
		"report_limit: 2\n" +
		"log_level: error\n"
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestCommands(t *testing.T) {
	convey.Convey("Given generated data and a config file", t, func() {
		dir := t.TempDir()
		cfgPath := writeConfig(t, dir)

		out, err := run("generate", "--config", cfgPath, "--out", filepath.Join(dir, "data"),
			"--days", "90", "--facilities", "2", "--equipment", "2")
		convey.So(err, convey.ShouldBeNil)
		convey.So(out, convey.ShouldContainSubstring, "market_data.csv")
		convey.So(out, convey.ShouldContainSubstring, "equipment_data.csv")

		convey.Convey("train creates both artifacts, then loads them", func() {
			out, err := run("train", "--config", cfgPath)
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "forecaster: trained")
			convey.So(out, convey.ShouldContainSubstring, "maintenance: trained")

			entries, err := os.ReadDir(filepath.Join(dir, "models"))
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(entries), convey.ShouldEqual, 2)

			out, err = run("train", "--config", cfgPath)
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "forecaster: loaded")

			out, err = run("train", "--config", cfgPath, "--force")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "forecaster: trained")
		})

		convey.Convey("forecast prints one row per day plus a header", func() {
			out, err := run("forecast", "--config", cfgPath, "--days", "3")
			convey.So(err, convey.ShouldBeNil)
			lines := strings.Split(strings.TrimSpace(out), "\n")
			convey.So(lines, convey.ShouldHaveLength, 4)
			convey.So(lines[0], convey.ShouldStartWith, "DATE")

			out, err = run("forecast", "--config", cfgPath)
			convey.So(err, convey.ShouldBeNil)
			convey.So(strings.Split(strings.TrimSpace(out), "\n"), convey.ShouldHaveLength, 6)
		})

		convey.Convey("forecast rejects horizons beyond the cap before loading models", func() {
			_, err := run("forecast", "--config", cfgPath, "--days", "1000000000")
			convey.So(errors.Is(err, errInvalidFlag), convey.ShouldBeTrue)
			_, err = run("forecast", "--config", cfgPath, "--days=-1")
			convey.So(errors.Is(err, errInvalidFlag), convey.ShouldBeTrue)
			_, statErr := os.Stat(filepath.Join(dir, "models"))
			convey.So(os.IsNotExist(statErr), convey.ShouldBeTrue)
		})

		convey.Convey("report respects the configured limit", func() {
			out, err := run("report", "--config", cfgPath)
			convey.So(err, convey.ShouldBeNil)
			if !strings.Contains(out, "no equipment") {
				lines := strings.Split(strings.TrimSpace(out), "\n")
				convey.So(len(lines), convey.ShouldBeLessThanOrEqualTo, 3)
				convey.So(lines[0], convey.ShouldStartWith, "PRIORITY")
			}
		})

		convey.Convey("cleanup removes stale versions only", func() {
			_, err := run("train", "--config", cfgPath)
			convey.So(err, convey.ShouldBeNil)
			stale := filepath.Join(dir, "models", "market_forecaster_v0.1.0.json")
			convey.So(os.WriteFile(stale, []byte("{}"), 0o600), convey.ShouldBeNil)

			out, err := run("cleanup", "--config", cfgPath)
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "v0.1.0")
			_, statErr := os.Stat(stale)
			convey.So(os.IsNotExist(statErr), convey.ShouldBeTrue)

			out, err = run("cleanup", "--config", cfgPath)
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "nothing to delete")
		})
	})

	convey.Convey("Given a missing config file", t, func() {
		_, err := run("cleanup", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
		convey.So(err, convey.ShouldNotBeNil)
	})
}

func TestHTTPServer(t *testing.T) {
	convey.Convey("Given an HTTP server over an unstarted service", t, func() {
		_ = logger.Init()
		svc := service.New(service.WithModelsDir(t.TempDir()))
		srv := newHTTPServer(context.Background(), ":0", svc)

		convey.So(srv.ReadTimeout, convey.ShouldEqual, readTimeout)
		convey.So(srv.ReadHeaderTimeout, convey.ShouldEqual, readHeaderTimeout)

		convey.Convey("healthz serves metrics", func() {
			w := httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("api docs are mounted", func() {
			w := httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("model endpoints report not ready", func() {
			w := httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/summary", nil))
			convey.So(w.Code, convey.ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}
