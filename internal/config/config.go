// Package config handles configuration loading and validation for the scraper.
// It supports YAML configuration files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the scraper
type Config struct {
	Target      TargetConfig      `yaml:"target"`
	Session     SessionConfig     `yaml:"session"`
	Throttle    ThrottleConfig    `yaml:"throttle"`
	Scroll      ScrollConfig      `yaml:"scroll"`
	Browser     BrowserConfig     `yaml:"browser"`
	Fingerprint FingerprintConfig `yaml:"fingerprint"`
	Storage     StorageConfig     `yaml:"storage"`

	// Proxy descriptors in "host:port" or "host:port:user:pass" form
	Proxies []string `yaml:"proxies"`

	// Loaded from environment
	LogLevel string `yaml:"-"`
}

// TargetConfig holds the product target and traversal limits
type TargetConfig struct {
	ProductURL     string `yaml:"product_url"`
	BaseURL        string `yaml:"base_url"`
	MaxReviewPages int    `yaml:"max_review_pages"`
}

// SessionConfig holds navigation protection settings
type SessionConfig struct {
	MaxRetries               int  `yaml:"max_retries"`
	CaptchaSolveTimeoutSec   int  `yaml:"captcha_solve_timeout_seconds"`
	PageLoadTimeoutSec       int  `yaml:"page_load_timeout_seconds"`
	RotateFingerprintOnBlock bool `yaml:"rotate_fingerprint_on_block"`
}

// ThrottleConfig holds adaptive pacing settings
type ThrottleConfig struct {
	MinDelaySec    float64 `yaml:"min_delay_seconds"`
	MaxDelaySec    float64 `yaml:"max_delay_seconds"`
	BurstThreshold int     `yaml:"burst_threshold"`
}

// ScrollConfig holds human-like scrolling settings
type ScrollConfig struct {
	StepMinPx           int     `yaml:"step_min_px"`
	StepMaxPx           int     `yaml:"step_max_px"`
	PauseMinSec         float64 `yaml:"pause_min_seconds"`
	PauseMaxSec         float64 `yaml:"pause_max_seconds"`
	ScrollBackChance    float64 `yaml:"scroll_back_chance"`
	ActionWaitMinSec    float64 `yaml:"action_wait_min_seconds"`
	ActionWaitMaxSec    float64 `yaml:"action_wait_max_seconds"`
	AfterClickWaitMin   float64 `yaml:"after_click_wait_min_seconds"`
	AfterClickWaitMax   float64 `yaml:"after_click_wait_max_seconds"`
	PageLoadWaitMinSec  float64 `yaml:"page_load_wait_min_seconds"`
	PageLoadWaitMaxSec  float64 `yaml:"page_load_wait_max_seconds"`
}

// BrowserConfig holds browser launch settings
type BrowserConfig struct {
	Headless    bool   `yaml:"headless"`
	UserDataDir string `yaml:"user_data_dir"`
	BinaryPath  string `yaml:"binary_path"`
}

// FingerprintConfig holds fingerprint generation settings
type FingerprintConfig struct {
	// Seed of 0 means derive from wall-clock time
	Seed int64 `yaml:"seed"`
}

// StorageConfig holds persistence settings
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	OutputDir    string `yaml:"output_dir"`
	CookiesPath  string `yaml:"cookies_path"`
}

// Load reads configuration from YAML file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	// Set defaults
	cfg := &Config{
		Target: TargetConfig{
			BaseURL:        "https://www.amazon.in",
			MaxReviewPages: 500,
		},
		Session: SessionConfig{
			MaxRetries:             3,
			CaptchaSolveTimeoutSec: 300,
			PageLoadTimeoutSec:     60,
		},
		Throttle: ThrottleConfig{
			MinDelaySec:    2.0,
			MaxDelaySec:    5.0,
			BurstThreshold: 10,
		},
		Scroll: ScrollConfig{
			StepMinPx:          300,
			StepMaxPx:          500,
			PauseMinSec:        0.3,
			PauseMaxSec:        0.8,
			ScrollBackChance:   0.1,
			ActionWaitMinSec:   2,
			ActionWaitMaxSec:   4,
			AfterClickWaitMin:  5,
			AfterClickWaitMax:  10,
			PageLoadWaitMinSec: 5,
			PageLoadWaitMaxSec: 10,
		},
		Browser: BrowserConfig{
			Headless:    true,
			UserDataDir: "./data/browser",
		},
		Storage: StorageConfig{
			DatabasePath: "./data/scraper.db",
			OutputDir:    "./data/html",
			CookiesPath:  "./data/cookies.json",
		},
		LogLevel: "info",
	}

	// Load YAML config if file exists
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// File doesn't exist, use defaults
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables
	cfg.loadEnvOverrides()

	return cfg, nil
}

// loadEnvOverrides applies environment variable overrides to config
func (c *Config) loadEnvOverrides() {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}

	if v := os.Getenv("PRODUCT_URL"); v != "" {
		c.Target.ProductURL = v
	}

	if v := os.Getenv("HEADLESS"); v != "" {
		c.Browser.Headless = strings.ToLower(v) == "true"
	}

	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.Storage.DatabasePath = v
	}

	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		c.Storage.OutputDir = v
	}

	if v := os.Getenv("PROXY_LIST"); v != "" {
		c.Proxies = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.Proxies = append(c.Proxies, p)
			}
		}
	}

	if v := os.Getenv("MAX_REVIEW_PAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Target.MaxReviewPages = n
		}
	}

	if v := os.Getenv("FINGERPRINT_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Fingerprint.Seed = n
		}
	}
}
