// Package config loads and validates the securedl configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/CosmicWandererMaker/MFADownloadScript/pkg/flow"
	"github.com/CosmicWandererMaker/MFADownloadScript/pkg/watcher"
)

// DefaultPath is the configuration file looked up when no -config flag is
// given.
const DefaultPath = "securedl.yaml"

// Config is the operator-facing configuration. Timing values are whole
// seconds; element selectors belong to the target site and have
// conventional defaults.
type Config struct {
	// DownloadDir is where the browser writes downloads and the watcher
	// polls. Created on first use if absent.
	DownloadDir string `yaml:"download_dir" validate:"required"`

	// MaxWaitSeconds is the maximum total wait for a download to complete
	MaxWaitSeconds int `yaml:"max_wait_seconds" validate:"gte=1"`

	// PollIntervalSeconds is the sleep between directory observations.
	// Must not exceed StabilitySeconds.
	PollIntervalSeconds int `yaml:"poll_interval_seconds" validate:"gte=1,ltefield=StabilitySeconds"`

	// StabilitySeconds is how long a file's size must hold steady to be
	// considered complete
	StabilitySeconds int `yaml:"stability_seconds" validate:"gte=1"`

	// MarkerSuffix is the in-progress suffix the downloading agent
	// appends to incomplete files
	MarkerSuffix string `yaml:"marker_suffix"`

	// IgnorePatterns are glob patterns for auxiliary temp files that are
	// never download candidates
	IgnorePatterns []string `yaml:"ignore_patterns"`

	// LoginURL is the page carrying the credential form
	LoginURL string `yaml:"login_url" validate:"omitempty,url"`

	// DownloadURL optionally names a separate page holding the download
	// trigger
	DownloadURL string `yaml:"download_url" validate:"omitempty,url"`

	// Headless controls whether the browser runs without a visible window
	Headless bool `yaml:"headless"`

	// Selectors locate the form elements on the target site
	Selectors flow.Selectors `yaml:"selectors"`
}

// DefaultConfig returns the configuration used when no file is present:
// a ./downloads subdirectory of the working directory, 30s maximum wait,
// 1s poll interval, 3s stability window.
func DefaultConfig() *Config {
	return &Config{
		DownloadDir:         "downloads",
		MaxWaitSeconds:      30,
		PollIntervalSeconds: 1,
		StabilitySeconds:    3,
		MarkerSuffix:        watcher.DefaultMarkerSuffix,
		IgnorePatterns:      watcher.DefaultIgnorePatterns(),
		Headless:            true,
		Selectors:           flow.DefaultSelectors(),
	}
}

// Load reads the configuration file at path, falling back to defaults when
// the file does not exist. Values present in the file override defaults;
// omitted values keep them.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks field constraints, including that the poll interval does
// not exceed the stability window.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// MaxWait returns the maximum wait as a duration.
func (c *Config) MaxWait() time.Duration {
	return time.Duration(c.MaxWaitSeconds) * time.Second
}

// PollInterval returns the poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Stability returns the stability window as a duration.
func (c *Config) Stability() time.Duration {
	return time.Duration(c.StabilitySeconds) * time.Second
}

// WatcherOptions maps the configuration onto a watch session.
func (c *Config) WatcherOptions() watcher.Options {
	return watcher.Options{
		Dir:             c.DownloadDir,
		Timeout:         c.MaxWait(),
		PollInterval:    c.PollInterval(),
		StabilityWindow: c.Stability(),
		MarkerSuffix:    c.MarkerSuffix,
		IgnorePatterns:  c.IgnorePatterns,
	}
}

// FlowOptions maps the configuration onto a browser session flow.
func (c *Config) FlowOptions() flow.Options {
	return flow.Options{
		LoginURL:    c.LoginURL,
		DownloadURL: c.DownloadURL,
		DownloadDir: c.DownloadDir,
		Headless:    c.Headless,
	}
}
