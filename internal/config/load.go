// Package config loads codebot settings from config.yaml, .env and
// CODEBOT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"codebot/internal/engine"
	"codebot/internal/finding"
)

// DefaultAdvisoryURL is the public OSV batch query endpoint.
const DefaultAdvisoryURL = "https://api.osv.dev/v1/querybatch"

// Config is the typed view of the loaded settings.
type Config struct {
	Scan     ScanConfig           `mapstructure:"scan"`
	Secrets  engine.SecretOptions `mapstructure:"secrets"`
	Advisory AdvisoryConfig       `mapstructure:"advisory"`
	Severity finding.Thresholds   `mapstructure:"severity"`
	GitHub   GitHubConfig         `mapstructure:"github"`
	Server   ServerConfig         `mapstructure:"server"`

	MetricsPort int  `mapstructure:"metrics_port"`
	Verbose     bool `mapstructure:"verbose"`
}

type ScanConfig struct {
	MaxFiles             int           `mapstructure:"max_files"`
	MaxFileBytes         int64         `mapstructure:"max_file_bytes"`
	Workers              int           `mapstructure:"workers"`
	FileTimeout          time.Duration `mapstructure:"file_timeout"`
	IncludeLowConfidence bool          `mapstructure:"include_low_confidence"`
}

type AdvisoryConfig struct {
	URL       string        `mapstructure:"url"`
	BatchSize int           `mapstructure:"batch_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
	// Rate is requests per second.
	Rate      float64       `mapstructure:"rate"`
	Retries   int           `mapstructure:"retries"`
	CachePath string        `mapstructure:"cache_path"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	Disabled  bool          `mapstructure:"disabled"`
}

type GitHubConfig struct {
	Token  string `mapstructure:"token"`
	APIURL string `mapstructure:"api_url"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// ScanTimeout bounds one API scan call; zero means no limit.
	ScanTimeout time.Duration `mapstructure:"scan_timeout"`
}

// Load initializes the configuration from file and environment variables.
// A missing config file is not an error; a malformed one is.
func Load(cfgFile string) error {
	// .env is optional
	_ = godotenv.Load()

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("CODEBOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// Fall back to the standard GITHUB_TOKEN when CODEBOT_GITHUB_TOKEN is unset.
	if os.Getenv("CODEBOT_GITHUB_TOKEN") == "" && os.Getenv("GITHUB_TOKEN") != "" {
		viper.SetDefault("github.token", os.Getenv("GITHUB_TOKEN"))
	}

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		if cfgFile == "" && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	slog.Debug("Using config file", "path", viper.ConfigFileUsed())
	return nil
}

func setDefaults() {
	viper.SetDefault("scan.max_files", 500)
	viper.SetDefault("scan.max_file_bytes", 1<<20)
	viper.SetDefault("scan.workers", 0)
	viper.SetDefault("scan.file_timeout", 15*time.Second)
	viper.SetDefault("scan.include_low_confidence", false)

	viper.SetDefault("secrets.entropy_threshold", engine.DefaultEntropyThreshold)
	viper.SetDefault("secrets.min_length", engine.DefaultMinSecretLength)

	viper.SetDefault("advisory.url", DefaultAdvisoryURL)
	viper.SetDefault("advisory.batch_size", 100)
	viper.SetDefault("advisory.timeout", 30*time.Second)
	viper.SetDefault("advisory.rate", 5.0)
	viper.SetDefault("advisory.retries", 3)
	viper.SetDefault("advisory.cache_path", "")
	viper.SetDefault("advisory.cache_ttl", 24*time.Hour)
	viper.SetDefault("advisory.disabled", false)

	viper.SetDefault("severity.critical", finding.DefaultThresholds.Critical)
	viper.SetDefault("severity.high", finding.DefaultThresholds.High)
	viper.SetDefault("severity.medium", finding.DefaultThresholds.Medium)
	viper.SetDefault("severity.low", finding.DefaultThresholds.Low)

	viper.SetDefault("github.token", "")
	viper.SetDefault("github.api_url", "https://api.github.com")

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.scan_timeout", 5*time.Minute)
	viper.SetDefault("metrics_port", 2112)
	viper.SetDefault("verbose", false)
}

// Settings decodes the current viper state into a Config.
func Settings() (Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}
