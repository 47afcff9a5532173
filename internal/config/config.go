// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the debugger daemon configuration from an optional
// YAML file plus environment overrides. Command-line flags override both.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Protocol modes.
const (
	ModeConsole = "console"
	ModeJSON    = "json"
)

// Transports.
const (
	TransportStdio = "stdio"
	TransportPipe  = "pipe"
	TransportTCP   = "tcp"
)

// Config is the daemon configuration.
type Config struct {
	// Mode selects the protocol handler: console or json.
	Mode string `yaml:"mode"`

	// Transport selects the client transport: stdio, pipe or tcp.
	Transport string `yaml:"transport"`

	// Pipe is the named pipe path for the pipe transport.
	Pipe string `yaml:"pipe"`

	// Port is the listen port for the tcp transport.
	Port int `yaml:"port"`

	// Prompt enables the console prompt.
	Prompt bool `yaml:"prompt"`

	// BreakOnError pauses the interpreter when a statement fails.
	BreakOnError bool `yaml:"breakOnError"`

	// MetricsAddr optionally serves prometheus metrics, e.g. "127.0.0.1:9321".
	MetricsAddr string `yaml:"metricsAddr"`

	// Trace enables exporting request-handling spans to stderr.
	Trace bool `yaml:"trace"`
}

// Default returns the baseline configuration: a prompting console debugger
// on standard I/O.
func Default() *Config {
	return &Config{
		Mode:         ModeConsole,
		Transport:    TransportStdio,
		Prompt:       true,
		BreakOnError: true,
	}
}

// configDir returns the XDG config directory for scriptdbg, respecting
// XDG_CONFIG_HOME.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "scriptdbg"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "scriptdbg"), nil
}

// Load reads the configuration file at path, falling back to
// <configdir>/scriptdbg.yaml when path is empty. A missing file yields the
// defaults. Environment overrides are applied afterwards.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		dir, err := configDir()
		if err == nil {
			path = filepath.Join(dir, "scriptdbg.yaml")
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parsing %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv merges SCRIPTDBG_* environment overrides.
func applyEnv(cfg *Config) {
	if v := os.Getenv("SCRIPTDBG_MODE"); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv("SCRIPTDBG_TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("SCRIPTDBG_PIPE"); v != "" {
		cfg.Pipe = v
	}
	if v := os.Getenv("SCRIPTDBG_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("SCRIPTDBG_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
}

// Validate checks mode, transport and their required parameters.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeConsole, ModeJSON:
	default:
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}

	switch c.Transport {
	case TransportStdio:
	case TransportPipe:
		if c.Pipe == "" {
			return fmt.Errorf("config: pipe transport needs a pipe path")
		}
	case TransportTCP:
		if c.Port <= 0 || c.Port > 65535 {
			return fmt.Errorf("config: tcp transport needs a port in 1..65535, got %d", c.Port)
		}
	default:
		return fmt.Errorf("config: unknown transport %q", c.Transport)
	}
	return nil
}
