package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all VibeKnowing environment variables.
const EnvPrefix = "VIBEKNOWING_"

// Config holds all application configuration.
type Config struct {
	APIBaseURL       string `yaml:"api_base_url"`
	ListenAddr       string `yaml:"listen_addr"`
	RequestTimeout   string `yaml:"request_timeout"`
	SuggestionPrefix int    `yaml:"suggestion_prefix"`
	VideoSummaryLen  int    `yaml:"video_summary_fallback_len"`
}

func defaults() Config {
	return Config{
		APIBaseURL:       "http://localhost:8000",
		ListenAddr:       "127.0.0.1:8080",
		RequestTimeout:   "0s",
		SuggestionPrefix: 10000,
		VideoSummaryLen:  200,
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, and validates the result. It returns the
// config, any validation warnings, and an error if the file exists but
// cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedRequestTimeout returns RequestTimeout as a time.Duration. Zero means
// no client-side timeout: streamed generations have no bounded duration and
// only end on completion, cancellation, or a transport failure.
func (c *Config) ParsedRequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "API_BASE_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv(EnvPrefix + "LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvPrefix + "REQUEST_TIMEOUT"); v != "" {
		cfg.RequestTimeout = v
	}
	if v := os.Getenv(EnvPrefix + "SUGGESTION_PREFIX"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.SuggestionPrefix = n
		}
	}
	if v := os.Getenv(EnvPrefix + "VIDEO_SUMMARY_FALLBACK_LEN"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.VideoSummaryLen = n
		}
	}
}

func validate(cfg *Config) []string {
	var warnings []string

	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	if u, err := url.Parse(cfg.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		warnings = append(warnings, fmt.Sprintf("Invalid api_base_url %q; backend requests will fail until it is fixed. Set "+EnvPrefix+"API_BASE_URL.", cfg.APIBaseURL))
	}
	if _, err := time.ParseDuration(cfg.RequestTimeout); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid request_timeout %q; using no timeout.", cfg.RequestTimeout))
	}
	if cfg.SuggestionPrefix <= 0 {
		cfg.SuggestionPrefix = 10000
		warnings = append(warnings, "suggestion_prefix must be positive; using default 10000.")
	}

	return warnings
}
