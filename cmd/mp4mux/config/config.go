// Package config loads the demo muxer CLI's YAML configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Track describes one RTP source to mux into the output file.
type Track struct {
	ListenAddr string `yaml:"listen_addr"`
	SDPFile    string `yaml:"sdp_file"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
}

// Config is the top-level demo CLI configuration.
type Config struct {
	OutputPath           string  `yaml:"output_path"`
	InterleaveDurationMs int64   `yaml:"interleave_duration_ms"`
	FileSizeLimitBytes   int64   `yaml:"file_size_limit_bytes"`
	DurationLimitMs      int64   `yaml:"duration_limit_ms"`
	EventDBPath          string  `yaml:"event_db_path"`
	LogDBPath            string  `yaml:"log_db_path"`
	MinFreeDiskBytes     uint64  `yaml:"min_free_disk_bytes"`
	Latitude             float32 `yaml:"latitude"`
	Longitude            float32 `yaml:"longitude"`
	Tracks               []Track `yaml:"tracks"`
}

// Load reads and parses the YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.OutputPath == "" {
		return nil, fmt.Errorf("config: output_path is required")
	}
	if len(cfg.Tracks) == 0 {
		return nil, fmt.Errorf("config: at least one track is required")
	}
	return &cfg, nil
}
