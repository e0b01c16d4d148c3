package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/okian/petroenergy/internal/adapters/http/api"
	"github.com/okian/petroenergy/internal/adapters/http/swagger"
	service "github.com/okian/petroenergy/internal/app"
	"github.com/okian/petroenergy/internal/config"
	"github.com/okian/petroenergy/pkg/logger"
	"github.com/okian/petroenergy/pkg/metrics"
	"github.com/spf13/cobra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 60 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1) //nolint:gocritic // stop already called
	}
}

// cli carries state shared by every subcommand.
type cli struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "petroenergy",
		Short: "PetroEnergy price forecasting and predictive maintenance",
		Long: `Trains, persists and serves two models: a price forecaster for WTI and
Brent crude, and an anomaly detector over equipment health scores.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "Path to a YAML config file (overrides "+config.EnvConfigPath+")")

	root.AddCommand(c.serveCmd())
	root.AddCommand(c.trainCmd())
	root.AddCommand(c.forecastCmd())
	root.AddCommand(c.reportCmd())
	root.AddCommand(c.cleanupCmd())
	root.AddCommand(c.generateCmd())
	return root
}

// setup loads configuration (defaults -> .env -> file -> env) and initializes
// logging to the command's stderr.
func (c *cli) setup(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg, err := config.LoadFrom(ctx, c.configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(
		logger.WithJSON(cfg.LogFormat == config.LogFormatJSON),
		logger.WithWriter(cmd.ErrOrStderr()),
	); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	c.cfg = cfg
	return nil
}

// newService builds a service from the loaded configuration.
func (c *cli) newService(extra ...service.Option) *service.Service {
	opts := []service.Option{
		service.WithLogger(logger.Get()),
		service.WithModelsDir(c.cfg.ModelsDir),
		service.WithModelVersion(c.cfg.ModelVersion, c.cfg.CompatibleVersions...),
		service.WithDataPaths(c.cfg.MarketDataPath, c.cfg.EquipmentDataPath),
		service.WithForecastHorizon(c.cfg.ForecastHorizonDays),
		service.WithForest(c.cfg.ForestTrees, c.cfg.RandomSeed),
		service.WithContamination(c.cfg.Contamination),
		service.WithReportLimit(c.cfg.ReportLimit),
	}
	return service.New(append(opts, extra...)...)
}

// serveCmd starts the HTTP API.
func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load or train the models and serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.serve(cmd.Context())
		},
	}
}

func (c *cli) serve(ctx context.Context) error {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	loggerInstance := logger.Get()

	svc := c.newService()
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx)

	srv := newHTTPServer(ctx, c.cfg.Addr, svc)

	errCh := make(chan error, 1)
	go func() {
		loggerInstance.Info(ctx, "starting HTTP server", logger.String("addr", c.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or a listener failure
	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}
	loggerInstance.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	loggerInstance.Info(ctx, "server stopped")
	return nil
}

// newHTTPServer registers the API docs and the business API on a gorilla/mux
// router.
func newHTTPServer(ctx context.Context, addr string, svc *service.Service) *http.Server {
	router := mux.NewRouter()
	swagger.Register(ctx, router)
	api.NewServer(svc, svc).Register(ctx, router)

	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
