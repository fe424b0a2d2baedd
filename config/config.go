// Copyright (C) 2025 vaultsync contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package config loads vaultsync's runtime configuration from YAML/JSON
// files with environment variable substitution, the way the rest of the
// ambient stack expects: ${VAR} or ${VAR:default} anywhere in the file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for a vaultsync host process.
type Config struct {
	Environment string        `yaml:"environment" json:"environment"`
	Relay       RelayConfig   `yaml:"relay" json:"relay"`
	Argon2      Argon2Config  `yaml:"argon2" json:"argon2"`
	Storage     StorageConfig `yaml:"storage" json:"storage"`
	Logging     LoggingConfig `yaml:"logging" json:"logging"`
	Metrics     MetricsConfig `yaml:"metrics" json:"metrics"`
	Health      HealthConfig  `yaml:"health" json:"health"`
}

// RelayConfig points at the sync relay websocket endpoint.
type RelayConfig struct {
	URL               string        `yaml:"url" json:"url"`
	AllowInsecureWS    bool          `yaml:"allow_insecure_ws" json:"allow_insecure_ws"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval" json:"reconnect_interval"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout" json:"handshake_timeout"`
}

// Argon2Config holds the KEK-derivation cost parameters. Defaults match the
// values every client in a sync group must agree on; changing them for an
// existing vault requires a re-wrap via changePassphrase.
type Argon2Config struct {
	TimeCost    uint32 `yaml:"time_cost" json:"time_cost"`
	MemoryKiB   uint32 `yaml:"memory_kib" json:"memory_kib"`
	Parallelism uint8  `yaml:"parallelism" json:"parallelism"`
}

// StorageConfig locates the on-disk persisted vault representation.
type StorageConfig struct {
	Path string `yaml:"path" json:"path"`
}

// LoggingConfig configures the internal/logger default logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Pretty bool   `yaml:"pretty" json:"pretty"`
}

// MetricsConfig configures the Prometheus exposition server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// HealthConfig configures the health check endpoint.
type HealthConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// Default returns a Config populated with the vaultsync defaults.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// LoadFromFile reads a YAML or JSON config file, substituting environment
// variables before parsing, and fills in defaults for anything left unset.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := SubstituteEnvVars(string(data))

	cfg := &Config{}
	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file (tried YAML and JSON): %w", err)
	}

	setDefaults(cfg)
	return cfg, nil
}

// SaveToFile writes cfg back out, choosing JSON or YAML by the file
// extension.
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = GetEnvironment()
	}

	if cfg.Relay.ReconnectInterval == 0 {
		cfg.Relay.ReconnectInterval = 5 * time.Second
	}
	if cfg.Relay.HandshakeTimeout == 0 {
		cfg.Relay.HandshakeTimeout = 10 * time.Second
	}

	if cfg.Argon2.TimeCost == 0 {
		cfg.Argon2.TimeCost = 256
	}
	if cfg.Argon2.MemoryKiB == 0 {
		cfg.Argon2.MemoryKiB = 512 * 1024
	}
	if cfg.Argon2.Parallelism == 0 {
		cfg.Argon2.Parallelism = 1
	}

	if cfg.Storage.Path == "" {
		cfg.Storage.Path = ".vaultsync/vault.json"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}

	if cfg.Health.Addr == "" {
		cfg.Health.Addr = ":9091"
	}
}
