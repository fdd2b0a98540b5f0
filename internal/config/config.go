// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the peristat YAML configuration
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/peristat/pkg/masterflex"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when --config is not given and the file exists
const DefaultPath = "peristat.yaml"

type Config struct {
	Link    LinkConfig    `yaml:"link"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Trace   string        `yaml:"trace"`
}

type LinkConfig struct {
	Port            string        `yaml:"port"`
	Baud            int           `yaml:"baud"`
	URL             string        `yaml:"url"`
	Username        string        `yaml:"username"`
	NoSSLVerify     bool          `yaml:"no_ssl_verify"`
	Address         int           `yaml:"address"`
	DiscardTimeout  time.Duration `yaml:"discard_timeout"`
	ResponseTimeout time.Duration `yaml:"response_timeout"`
	Reconnect       bool          `yaml:"reconnect"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LoadConfig reads path over the defaults, so a file only needs the fields
// it changes
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := GetDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// LoadDefault loads path when set, else DefaultPath if it exists, else the
// defaults
func LoadDefault(path string) (*Config, error) {
	if path != "" {
		return LoadConfig(path)
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		return LoadConfig(DefaultPath)
	}
	return GetDefaultConfig(), nil
}

// GetDefaultConfig returns the built-in configuration
func GetDefaultConfig() *Config {
	return &Config{
		Link: LinkConfig{
			Baud:            9600,
			Address:         masterflex.DefaultAddress,
			DiscardTimeout:  masterflex.DefaultDiscardTimeout,
			ResponseTimeout: masterflex.DefaultResponseTimeout,
			Reconnect:       true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Validate rejects values the link cannot run with
func (c *Config) Validate() error {
	if c.Link.Baud <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.Link.Baud)
	}
	if c.Link.Address < masterflex.MinAddress || c.Link.Address > masterflex.MaxAddress {
		return fmt.Errorf("pump address %d out of range %d-%d",
			c.Link.Address, masterflex.MinAddress, masterflex.MaxAddress)
	}
	if c.Link.DiscardTimeout < 0 {
		return fmt.Errorf("discard timeout must not be negative")
	}
	if c.Link.ResponseTimeout < 0 {
		return fmt.Errorf("response timeout must not be negative")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	switch c.Log.Output {
	case "stdout", "stderr":
	case "file":
		if c.Log.FilePath == "" {
			return fmt.Errorf("log output file needs file_path")
		}
	default:
		return fmt.Errorf("unknown log output %q", c.Log.Output)
	}
	return nil
}
