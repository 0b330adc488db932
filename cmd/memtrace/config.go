// Copyright 2025 The Limitly Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// config.go implements the replay command's YAML configuration file.
package main

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// replayConfig holds configuration for the replay command. Flags override
// file values; file values override the defaults.
type replayConfig struct {
	// LogPath is where the analyzer's event journal is written.
	LogPath string `yaml:"log_path"`

	// Format selects the report rendering: "text" or "json".
	Format string `yaml:"format"`

	// Verbose enables per-event progress logging.
	Verbose bool `yaml:"verbose"`
}

// defaultConfig is the starting point before file and flags apply.
func defaultConfig() replayConfig {
	return replayConfig{
		LogPath: "memtrace-replay.log",
		Format:  "text",
	}
}

// loadConfig reads a YAML config file over the defaults.
func loadConfig(path string) (replayConfig, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, cfg.validate()
}

func (c replayConfig) validate() error {
	switch c.Format {
	case "text", "json":
		return nil
	default:
		return errors.Errorf("unknown format %q (want text or json)", c.Format)
	}
}
