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

	"github.com/okian/posecap/internal/adapters/camera"
	"github.com/okian/posecap/internal/adapters/feedback"
	"github.com/okian/posecap/internal/adapters/http/api"
	"github.com/okian/posecap/internal/adapters/http/swagger"
	"github.com/okian/posecap/internal/adapters/repository"
	"github.com/okian/posecap/internal/adapters/sensors"
	app "github.com/okian/posecap/internal/app"
	"github.com/okian/posecap/internal/config"
	"github.com/okian/posecap/internal/domain/angle"
	"github.com/okian/posecap/internal/simulate"
	"github.com/okian/posecap/pkg/logger"
	"github.com/okian/posecap/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	scriptSettle              = 800 * time.Millisecond
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Process metrics are exported by our own system collectors.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger format depends on config, so report on stderr.
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "posecap stopped with error", logger.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	readings := sensors.NewReadings(sensors.WithHeadPoseMaxAge(cfg.HeadPoseMaxAge()))

	store, err := repository.OpenSQLite(ctx, cfg.StorePath)
	if err != nil {
		return fmt.Errorf("open store %s: %w", cfg.StorePath, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn(ctx, "session store close", logger.Error(err))
		}
	}()

	hub := feedback.NewHub(
		feedback.WithBufferSize(cfg.FeedbackBuffer),
		feedback.WithHubLogger(log.Named("feedback")),
	)

	// The scripted source follows the session, so the service is bound late.
	var svc *app.Service
	source, err := newSource(cfg, readings, func() angle.Index { return svc.CurrentAngle() }, log)
	if err != nil {
		return err
	}

	svc = app.New(
		app.WithLogger(log.Named("service")),
		app.WithReadings(readings),
		app.WithSource(source),
		app.WithCamera(camera.NewSimulated(camera.WithLatency(cfg.CameraLatency()))),
		app.WithStore(store),
		app.WithHub(hub),
		app.WithTickInterval(cfg.TickInterval()),
		app.WithCountdownCheckInterval(cfg.CountdownCheckInterval()),
		app.WithCountdown(time.Duration(cfg.CountdownSeconds)*time.Second),
		app.WithStabilityThreshold(cfg.StabilityThreshold()),
		app.WithMovementTolerance(cfg.MovementToleranceDeg),
		app.WithQueueSize(cfg.CommandQueueSize),
	)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	metrics.SetEnabled(cfg.MetricsEnabled)
	metrics.SetRefreshInterval(cfg.MetricsRefresh())
	if metrics.Enabled() {
		go startSystemMetricsUpdater(ctx)
		go startServiceMetricsUpdater(ctx, svc)
	}

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc, hub).Register(ctx, mux)

	// No write timeout: /feedback holds long-lived websocket connections.
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("sensor_source", cfg.SensorSource),
			logger.String("store", cfg.StorePath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// newSource builds the configured sensor source. current is only used by the
// scripted source.
func newSource(cfg *config.Config, readings *sensors.Readings, current simulate.AngleFunc, log logger.Logger) (app.Source, error) {
	switch cfg.SensorSource {
	case config.SourceMQTT:
		return sensors.NewMQTTSource(sensors.MQTTConfig{
			Broker:           cfg.MQTTBroker,
			ClientID:         cfg.MQTTClientID,
			TopicHeadPose:    cfg.TopicHeadPose,
			TopicOrientation: cfg.TopicOrientation,
		}, readings, log.Named("mqtt")), nil
	default:
		script, err := simulate.Scenario(cfg.Scenario, scriptSettle)
		if err != nil {
			return nil, fmt.Errorf("sensor script: %w", err)
		}
		return simulate.NewPlayer(
			simulate.ReadingsPublisher{Readings: readings},
			script,
			current,
			simulate.WithPlayerLogger(log.Named("script")),
		), nil
	}
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metrics.RefreshInterval())
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

// startServiceMetricsUpdater refreshes the gauges GetStats maintains.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = svc.GetStats()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
