package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.wamon/config.toml.
type Config struct {
	DefaultSession string    `toml:"default_session"`
	Browser        Browser   `toml:"browser"`
	Monitor        Monitor   `toml:"monitor"`
	Selectors      Selectors `toml:"selectors"`
}

// Browser holds headless browser launch options.
type Browser struct {
	URL                string `toml:"url"`
	BinPath            string `toml:"bin_path"`
	Headless           bool   `toml:"headless"`
	NoSandbox          bool   `toml:"no_sandbox"`
	WindowWidth        int    `toml:"window_width"`
	WindowHeight       int    `toml:"window_height"`
	LaunchTimeoutSec   int    `toml:"launch_timeout_sec"`
	PageLoadTimeoutSec int    `toml:"page_load_timeout_sec"`
}

// Monitor holds the polling cadence and failure thresholds.
type Monitor struct {
	ScanIntervalMs         int `toml:"scan_interval_ms"`
	HealthIntervalSec      int `toml:"health_interval_sec"`
	GapIntervalSec         int `toml:"gap_interval_sec"`
	StallThresholdSec      int `toml:"stall_threshold_sec"`
	MaxConsecutiveFailures int `toml:"max_consecutive_failures"`
	SettleDelayMs          int `toml:"settle_delay_ms"`
	ValidateDelayMs        int `toml:"validate_delay_ms"`
	MinQRLength            int `toml:"min_qr_length"`
}

// Selectors holds the DOM selector sets used against WhatsApp Web. These
// track a frequently-changing page and are configuration, not code: a selector
// update must never require touching state-machine logic.
type Selectors struct {
	LoggedIn     []string `toml:"logged_in"`
	QRProbe      []string `toml:"qr_probe"`
	SessionError []string `toml:"session_error"`
	Critical     []string `toml:"critical"`
	QRCanvas     []string `toml:"qr_canvas"`
	QRRef        string   `toml:"qr_ref"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Browser: Browser{
			URL:                "https://web.whatsapp.com/",
			Headless:           true,
			WindowWidth:        1280,
			WindowHeight:       720,
			LaunchTimeoutSec:   30,
			PageLoadTimeoutSec: 30,
		},
		Monitor: Monitor{
			ScanIntervalMs:         500,
			HealthIntervalSec:      30,
			GapIntervalSec:         60,
			StallThresholdSec:      120,
			MaxConsecutiveFailures: 5,
			SettleDelayMs:          3000,
			ValidateDelayMs:        5000,
			MinQRLength:            100,
		},
		Selectors: Selectors{
			LoggedIn: []string{
				"[data-testid='chat-list']",
				".app-wrapper-web",
				"#main",
				"[data-testid='side']",
				"[data-testid='conversation-panel-wrapper']",
			},
			QRProbe: []string{
				"[data-testid='qr-code']",
				"[data-ref] canvas",
				"canvas",
			},
			SessionError: []string{
				"[data-testid='qr-code']",
				"[data-testid='intro-qr-code']",
				".landing-wrapper",
				"[data-ref='qr-canvas']",
				"[data-testid='qr-canvas']",
				".qr-code",
				"[alt='Scan me!']",
				"canvas[aria-label='Scan me!']",
			},
			Critical: []string{
				"[data-testid='chat-list']",
				"[data-testid='search']",
				"[data-testid='side']",
				"#main",
			},
			QRCanvas: []string{
				"[data-testid='qr-code'] canvas",
				"[data-testid='intro-qr-code'] canvas",
				"[data-ref='qr-canvas']",
				"[data-testid='qr-canvas']",
				".qr-code canvas",
				"canvas[aria-label='Scan me!']",
				".landing-window canvas",
				"[data-ref] canvas",
				"canvas",
			},
			QRRef: "[data-ref]",
		},
	}
}

// Load reads config from the given path, overlaying file values on defaults.
// A missing file returns the defaults without error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// ScanInterval returns the scan loop tick as a duration.
func (m Monitor) ScanInterval() time.Duration {
	return time.Duration(m.ScanIntervalMs) * time.Millisecond
}

// HealthInterval returns the health check tick as a duration.
func (m Monitor) HealthInterval() time.Duration {
	return time.Duration(m.HealthIntervalSec) * time.Second
}

// GapInterval returns the gap detection tick as a duration.
func (m Monitor) GapInterval() time.Duration {
	return time.Duration(m.GapIntervalSec) * time.Second
}

// StallThreshold returns the heartbeat age beyond which the connection is
// considered stalled.
func (m Monitor) StallThreshold() time.Duration {
	return time.Duration(m.StallThresholdSec) * time.Second
}
