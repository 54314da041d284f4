package main

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/pricewatch/scrape"
)

// Config holds all pricewatch configuration. Loaded from an optional YAML
// file; a handful of env vars override the common fields (see main).
type Config struct {
	Port     string        `yaml:"port"`
	DBPath   string        `yaml:"db_path"`
	SeedPath string        `yaml:"seed_path"`
	Scrape   ScrapeConfig  `yaml:"scrape"`
	Capture  CaptureConfig `yaml:"capture"`
}

// ScrapeConfig controls the browser-driven capture engine.
type ScrapeConfig struct {
	DebugDir string `yaml:"debug_dir"`
	// StateDir switches session persistence from the database to one
	// <store>.json file per store under this directory.
	StateDir   string  `yaml:"state_dir"`
	GeoLat     float64 `yaml:"geo_lat"`
	GeoLon     float64 `yaml:"geo_lon"`
	BrowserBin string  `yaml:"browser_bin"`
	Headful    bool    `yaml:"headful"`
	SlowmoMS   int     `yaml:"slowmo_ms"`
	// DebugCapture and SaveState default to true when omitted.
	DebugCapture *bool `yaml:"debug_capture"`
	SaveState    *bool `yaml:"save_state"`
	// Profiles overrides the built-in per-store selector lists.
	Profiles map[string]scrape.Profile `yaml:"profiles"`
}

// CaptureConfig controls the job scheduler.
type CaptureConfig struct {
	QueueSize int `yaml:"queue_size"`
}

func (c *Config) defaults() {
	if c.Port == "" {
		c.Port = "8000"
	}
	if c.DBPath == "" {
		c.DBPath = "db/pricewatch.db"
	}
	if c.Scrape.DebugDir == "" {
		c.Scrape.DebugDir = "scrape_debug"
	}
}

// Settings materializes the per-run scrape toggles.
func (sc ScrapeConfig) Settings() scrape.Settings {
	s := scrape.DefaultSettings()
	s.Headful = sc.Headful
	s.SlowmoMS = sc.SlowmoMS
	if sc.DebugCapture != nil {
		s.DebugCapture = *sc.DebugCapture
	}
	if sc.SaveState != nil {
		s.SaveStorageState = *sc.SaveState
	}
	return s
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
