package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks every setting and returns all problems joined together,
// or nil.
func Validate(cfg Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if cfg.Scan.MaxFiles < 1 || cfg.Scan.MaxFiles > 10000 {
		add("scan.max_files must be between 1 and 10000, got: %d", cfg.Scan.MaxFiles)
	}
	if cfg.Scan.MaxFileBytes <= 0 {
		add("scan.max_file_bytes must be positive, got: %d", cfg.Scan.MaxFileBytes)
	}
	if cfg.Scan.Workers < 0 {
		add("scan.workers must not be negative, got: %d", cfg.Scan.Workers)
	}
	if cfg.Scan.FileTimeout <= 0 {
		add("scan.file_timeout must be positive, got: %v", cfg.Scan.FileTimeout)
	}

	if cfg.Secrets.EntropyThreshold <= 0 || cfg.Secrets.EntropyThreshold > 8 {
		add("secrets.entropy_threshold must be in (0, 8], got: %v", cfg.Secrets.EntropyThreshold)
	}
	if cfg.Secrets.MinLength < 1 {
		add("secrets.min_length must be positive, got: %d", cfg.Secrets.MinLength)
	}

	if !cfg.Advisory.Disabled {
		if u, err := url.Parse(cfg.Advisory.URL); err != nil || u.Scheme == "" || u.Host == "" {
			add("advisory.url must be an absolute URL, got: %q", cfg.Advisory.URL)
		}
	}
	if cfg.Advisory.BatchSize < 1 || cfg.Advisory.BatchSize > 1000 {
		add("advisory.batch_size must be between 1 and 1000, got: %d", cfg.Advisory.BatchSize)
	}
	if cfg.Advisory.Timeout <= 0 {
		add("advisory.timeout must be positive, got: %v", cfg.Advisory.Timeout)
	}
	if cfg.Advisory.Rate <= 0 {
		add("advisory.rate must be positive, got: %v", cfg.Advisory.Rate)
	}
	if cfg.Advisory.Retries < 0 {
		add("advisory.retries must not be negative, got: %d", cfg.Advisory.Retries)
	}
	if cfg.Advisory.CacheTTL < 0 {
		add("advisory.cache_ttl must not be negative, got: %v", cfg.Advisory.CacheTTL)
	}

	if err := cfg.Severity.Validate(); err != nil {
		errs = append(errs, err)
	}

	if u, err := url.Parse(cfg.GitHub.APIURL); err != nil || u.Scheme == "" || u.Host == "" {
		add("github.api_url must be an absolute URL, got: %q", cfg.GitHub.APIURL)
	}

	if cfg.Server.Addr == "" {
		add("server.addr must not be empty")
	}
	if cfg.Server.ScanTimeout < 0 {
		add("server.scan_timeout must not be negative, got: %v", cfg.Server.ScanTimeout)
	}
	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		add("metrics_port must be between 0 and 65535, got: %d", cfg.MetricsPort)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
}
