package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/okian/posecap/internal/simulate"
	"github.com/okian/posecap/pkg/logger"
)

// Default configuration constants.
const (
	defaultSettle    = 800 * time.Millisecond
	defaultCountdown = 3 * time.Second
	defaultTimeout   = 2 * time.Minute
)

func main() {
	var (
		scenario  = flag.String("scenario", "steady", "Script to play ("+strings.Join(simulate.ScenarioNames(), ", ")+")")
		settle    = flag.Duration("settle", defaultSettle, "Time the simulated user takes to reach each pose")
		countdown = flag.Duration("countdown", defaultCountdown, "Countdown length for the in-process service")
		timeout   = flag.Duration("timeout", defaultTimeout, "Deadline for the whole session")
		store     = flag.String("store", ":memory:", "SQLite path for the saved session")
		baseURL   = flag.String("url", "", "Drive a running posecap server at this URL instead of an in-process service")
		broker    = flag.String("broker", "tcp://localhost:1883", "MQTT broker used with -url")
		clientID  = flag.String("client-id", "posecap-simulate", "MQTT client id used with -url")
		logFormat = flag.String("log-format", string(logger.FormatText), "Log format (text or json)")
		verbose   = flag.Bool("verbose", false, "Enable debug logging")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	// Logs go to stderr so stdout carries only the report.
	if err := logger.Init(logger.WithFormat(*logFormat), logger.WithOutput(os.Stderr)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := Config{
		Scenario:  *scenario,
		Settle:    *settle,
		Countdown: *countdown,
		Timeout:   *timeout,
		StorePath: *store,
		BaseURL:   strings.TrimRight(*baseURL, "/"),
		Broker:    *broker,
		ClientID:  *clientID,
	}
	if err := Run(ctx, cfg, os.Stdout, log); err != nil {
		log.Error(ctx, "simulation failed", logger.Error(err))
		return
	}
}

func showHelp() {
	os.Stdout.WriteString(`posecap simulator
=================

Plays a scripted user through a full five-angle capture session and prints
a JSON report of the result.

Usage:
  go run ./cmd/simulate [options]

Options:
  -scenario string    Script to play: steady, flinch, wander (default "steady")
  -settle duration    Time the user takes to reach each pose (default 800ms)
  -countdown duration Countdown for the in-process service (default 3s)
  -timeout duration   Deadline for the whole session (default 2m)
  -store string       SQLite path for the saved session (default ":memory:")
  -url string         Drive a running server; sensors go over MQTT
  -broker string      MQTT broker used with -url (default "tcp://localhost:1883")
  -client-id string   MQTT client id used with -url (default "posecap-simulate")
  -log-format string  text or json (default "text")
  -verbose            Enable debug logging
  -help               Show this help message

Examples:
  # Offline session with a glance away on the front angle
  go run ./cmd/simulate -scenario flinch

  # Drive a server started with POSECAP_SENSOR_SOURCE=mqtt
  go run ./cmd/simulate -url http://localhost:9080
`)
}
