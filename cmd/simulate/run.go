package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/okian/posecap/internal/adapters/camera"
	"github.com/okian/posecap/internal/adapters/feedback"
	"github.com/okian/posecap/internal/adapters/repository"
	"github.com/okian/posecap/internal/adapters/sensors"
	app "github.com/okian/posecap/internal/app"
	"github.com/okian/posecap/internal/domain/angle"
	"github.com/okian/posecap/internal/domain/capture"
	"github.com/okian/posecap/internal/simulate"
	"github.com/okian/posecap/pkg/logger"
)

const pollInterval = 50 * time.Millisecond

// ErrIncomplete is returned when the session did not finish before the deadline.
var ErrIncomplete = errors.New("session did not complete")

// Config holds the simulator settings.
type Config struct {
	Scenario  string        // Script to play
	Settle    time.Duration // Time the simulated user takes to reach each pose
	Countdown time.Duration // Countdown length
	Timeout   time.Duration // Overall deadline for the session
	StorePath string        // SQLite path for the saved session
	BaseURL   string        // Drive a running server instead of an in-process service
	Broker    string        // MQTT broker used with BaseURL
	ClientID  string        // MQTT client id used with BaseURL
}

// Report is printed when the run ends.
type Report struct {
	Scenario string         `json:"scenario"`
	Mode     string         `json:"mode"`
	Elapsed  time.Duration  `json:"elapsed_ns"`
	View     capture.View   `json:"view"`
	Feedback map[string]int `json:"feedback,omitempty"`
}

// Run plays the scenario through a whole session and writes a Report to out.
func Run(ctx context.Context, cfg Config, out io.Writer, log logger.Logger) error {
	script, err := simulate.Scenario(cfg.Scenario, cfg.Settle)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	var report Report
	if cfg.BaseURL != "" {
		report, err = runRemote(ctx, cfg, script, log)
	} else {
		report, err = runLocal(ctx, cfg, script, log)
	}
	report.Scenario = cfg.Scenario

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(report); encErr != nil {
		return errors.Join(err, fmt.Errorf("write report: %w", encErr))
	}
	return err
}

func runLocal(ctx context.Context, cfg Config, script simulate.Script, log logger.Logger) (Report, error) {
	report := Report{Mode: "local"}
	start := time.Now()

	store, err := repository.OpenSQLite(ctx, cfg.StorePath)
	if err != nil {
		return report, fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	readings := sensors.NewReadings()
	rec := &feedback.Recorder{}
	var svc *app.Service
	player := simulate.NewPlayer(
		simulate.ReadingsPublisher{Readings: readings},
		script,
		func() angle.Index { return svc.CurrentAngle() },
		simulate.WithPlayerLogger(log.Named("script")),
	)
	svc = app.New(
		app.WithLogger(log.Named("service")),
		app.WithReadings(readings),
		app.WithSource(player),
		app.WithCamera(camera.NewSimulated()),
		app.WithStore(store),
		app.WithSink(rec),
		app.WithCountdown(cfg.Countdown),
	)
	if err := svc.Start(ctx); err != nil {
		return report, fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	if _, err := svc.StartSession(ctx); err != nil {
		return report, fmt.Errorf("start session: %w", err)
	}
	report.View, err = waitComplete(ctx, svc.View)
	report.Elapsed = time.Since(start)
	report.Feedback = countFeedback(rec)
	if err != nil {
		return report, err
	}

	if report.View, err = svc.Save(ctx); err != nil {
		return report, fmt.Errorf("save session: %w", err)
	}
	log.Info(ctx, "session saved",
		logger.String("session_id", report.View.SessionID),
		logger.String("store", cfg.StorePath))
	return report, nil
}

func runRemote(ctx context.Context, cfg Config, script simulate.Script, log logger.Logger) (Report, error) {
	report := Report{Mode: "remote"}
	start := time.Now()

	pub, err := sensors.DialPublisher(sensors.MQTTConfig{Broker: cfg.Broker, ClientID: cfg.ClientID})
	if err != nil {
		return report, fmt.Errorf("dial broker: %w", err)
	}
	defer pub.Close()

	remote := simulate.NewRemote(cfg.BaseURL, nil)
	trackCtx, stopTrack := context.WithCancel(ctx)
	defer stopTrack()
	go remote.Track(trackCtx, log)

	player := simulate.NewPlayer(pub, script, remote.Current, simulate.WithPlayerLogger(log.Named("script")))
	if err := player.Start(ctx); err != nil {
		return report, err
	}
	defer func() { _ = player.Stop() }()

	if _, err := remote.StartSession(ctx); err != nil {
		return report, fmt.Errorf("start session: %w", err)
	}
	report.View, err = waitComplete(ctx, remote.Session)
	report.Elapsed = time.Since(start)
	if err != nil {
		return report, err
	}
	if report.View, err = remote.Save(ctx); err != nil {
		return report, fmt.Errorf("save session: %w", err)
	}
	return report, nil
}

func waitComplete(ctx context.Context, view func(context.Context) (capture.View, error)) (capture.View, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	var last capture.View
	for {
		v, err := view(ctx)
		if err == nil {
			last = v
			if v.State == capture.StateComplete {
				return v, nil
			}
		}
		select {
		case <-ctx.Done():
			return last, fmt.Errorf("%w: %d of %d angles: %w",
				ErrIncomplete, last.Summary.Captured, angle.Count, ctx.Err())
		case <-ticker.C:
		}
	}
}

func countFeedback(rec *feedback.Recorder) map[string]int {
	out := make(map[string]int)
	for _, e := range rec.Events() {
		out[string(e.Kind)]++
	}
	return out
}
