package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-jobboard-client/auth"
	"github.com/jrsteele09/go-jobboard-client/internal/config"
	"github.com/jrsteele09/go-jobboard-client/metrics"
	"github.com/jrsteele09/go-jobboard-client/sessions"
	"github.com/jrsteele09/go-jobboard-client/token"
	"github.com/jrsteele09/go-jobboard-client/token/refresh"
)

// app holds everything a command needs, wired from configuration
type app struct {
	cfg      config.Config
	client   *auth.HTTPClient
	machine  *sessions.Machine
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

func newApp(flags *globalFlags) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.GetEnv(), firstNonEmpty(flags.logLevel, cfg.GetLogLevel()))

	store, err := token.NewStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("[newApp] token store: %w", err)
	}

	client, err := auth.NewHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("[newApp] backend client: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	machine, err := sessions.NewMachine(client, store, cfg,
		sessions.WithMetrics(m),
		sessions.WithRefreshOptions(refresh.WithAttemptTimeout(cfg.GetRefreshTimeout())),
	)
	if err != nil {
		return nil, fmt.Errorf("[newApp] session machine: %w", err)
	}

	return &app{cfg: cfg, client: client, machine: machine, registry: registry, metrics: m}, nil
}

func setupLogging(env, level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if env == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("app", appName).Logger()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
