// Package noise transforms raw decibel samples into daily quiet-score
// analytics: exposure band classification, score computation, and per-day
// summaries with hourly breakdowns.
package noise

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds the sampling and classification parameters shared by the
// sampling monitor and the analytics engine. Both sides must use the same
// values: exposure time is charged per sample at SampleInterval, and the
// score formula is expressed in minutes derived from that interval.
type Config struct {
	// SampleInterval is the spacing between captures and the exposure time
	// charged per sample.
	SampleInterval time.Duration

	// Band thresholds in dB. Must be strictly increasing.
	QuietThreshold    float64
	ModerateThreshold float64
	LoudThreshold     float64
}

// DefaultConfig returns the standard tuning: one sample per minute with
// 40/70/85 dB band boundaries.
func DefaultConfig() Config {
	return Config{
		SampleInterval:    60 * time.Second,
		QuietThreshold:    40,
		ModerateThreshold: 70,
		LoudThreshold:     85,
	}
}

// Validate checks the configuration invariants. Invalid configuration is
// rejected at construction time, never at sampling time.
func (c Config) Validate() error {
	if c.SampleInterval <= 0 {
		return fmt.Errorf("sample interval must be positive, got %v", c.SampleInterval)
	}
	if !(c.QuietThreshold < c.ModerateThreshold && c.ModerateThreshold < c.LoudThreshold) {
		return fmt.Errorf("band thresholds must be strictly increasing, got %v/%v/%v",
			c.QuietThreshold, c.ModerateThreshold, c.LoudThreshold)
	}
	return nil
}

// fileConfig is the JSON shape for on-disk configuration. Fields omitted
// from the file keep their defaults, so partial configs are safe.
type fileConfig struct {
	SampleInterval    *string  `json:"sample_interval,omitempty"` // duration string like "60s"
	QuietThreshold    *float64 `json:"quiet_threshold,omitempty"`
	ModerateThreshold *float64 `json:"moderate_threshold,omitempty"`
	LoudThreshold     *float64 `json:"loud_threshold,omitempty"`
}

// LoadConfig reads a Config from a JSON file, applying defaults for any
// omitted fields and validating the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return cfg, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return cfg, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if fc.SampleInterval != nil {
		d, err := time.ParseDuration(*fc.SampleInterval)
		if err != nil {
			return cfg, fmt.Errorf("invalid sample_interval %q: %w", *fc.SampleInterval, err)
		}
		cfg.SampleInterval = d
	}
	if fc.QuietThreshold != nil {
		cfg.QuietThreshold = *fc.QuietThreshold
	}
	if fc.ModerateThreshold != nil {
		cfg.ModerateThreshold = *fc.ModerateThreshold
	}
	if fc.LoudThreshold != nil {
		cfg.LoudThreshold = *fc.LoudThreshold
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
