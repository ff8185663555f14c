package main

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"

	"golang.org/x/time/rate"

	"codebot/internal/advisory"
	"codebot/internal/config"
	"codebot/internal/engine"
	"codebot/internal/metrics"
	"codebot/internal/scan"
	"codebot/internal/source"
	"codebot/internal/store"
)

// settings decodes and validates the loaded configuration.
func settings() (config.Config, error) {
	cfg, err := config.Settings()
	if err != nil {
		return config.Config{}, err
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// newAdvisoryClient returns nil when lookups are disabled, which turns the
// dependency engine off. The cleanup func is never nil.
func newAdvisoryClient(cfg config.AdvisoryConfig, logger *slog.Logger) (advisory.Client, func(), error) {
	noop := func() {}
	if cfg.Disabled {
		return nil, noop, nil
	}

	c := advisory.NewOSVClient()
	c.APIURL = cfg.URL
	c.BatchSize = cfg.BatchSize
	c.Timeout = cfg.Timeout
	c.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	c.Retry.MaxAttempts = max(cfg.Retries, 1)
	c.Limiter = rate.NewLimiter(rate.Limit(cfg.Rate), max(int(math.Ceil(cfg.Rate)), 1))
	c.CacheTTL = cfg.CacheTTL
	c.Logger = logger

	if cfg.CachePath == "" {
		return c, noop, nil
	}
	st, err := store.NewSQLiteStore(cfg.CachePath)
	if err != nil {
		return nil, noop, fmt.Errorf("failed to open advisory cache: %w", err)
	}
	c.Cache = st
	return c, func() {
		if err := st.Close(); err != nil {
			logger.Warn("Failed to close advisory cache", "error", err)
		}
	}, nil
}

// newScanner wires the engines and limits from cfg onto src.
func newScanner(cfg config.Config, src source.FileSource, logger *slog.Logger, m *metrics.Metrics) (*scan.Scanner, func(), error) {
	client, cleanup, err := newAdvisoryClient(cfg.Advisory, logger)
	if err != nil {
		return nil, cleanup, err
	}

	engines := engine.Defaults(
		engine.DependencyOptions{Client: client, Thresholds: cfg.Severity},
		cfg.Secrets,
	)
	s := scan.New(src, engines)
	s.Workers = cfg.Scan.Workers
	s.MaxFileBytes = cfg.Scan.MaxFileBytes
	s.FileTimeout = cfg.Scan.FileTimeout
	s.Logger = logger
	s.Metrics = m
	return s, cleanup, nil
}

func newGitHubSource(cfg config.GitHubConfig, logger *slog.Logger) *source.GitHubSource {
	src := source.NewGitHubSource(cfg.Token)
	src.BaseURL = cfg.APIURL
	src.Logger = logger
	return src
}
