// Copyright 2025 Google LLC
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

// Package serverconfig decodes the YAML file that configures a running
// server: its identity, transport, logging, telemetry and the demo
// components it wires in. It never carries tool credentials — those stay
// at the transport boundary (environment variables, secret stores), kept
// out of the hot-reloadable file on purpose.
package serverconfig

import (
	"context"
	"fmt"
	"strings"

	validatorpkg "github.com/go-playground/validator/v10"
	yaml "github.com/goccy/go-yaml"
)

// Config is the top-level shape of a server's YAML configuration file.
type Config struct {
	// ServerName/ServerVersion are advertised verbatim in `initialize`.
	ServerName    string `yaml:"serverName" validate:"required"`
	ServerVersion string `yaml:"serverVersion" validate:"required"`

	// Transport selects how the server listens: "stdio" or "http".
	Transport string `yaml:"transport" validate:"omitempty,oneof=stdio http"`
	Address   string `yaml:"address"`
	Port      int    `yaml:"port" validate:"omitempty,min=1,max=65535"`

	LoggingFormat LogFormat   `yaml:"loggingFormat"`
	LogLevel      StringLevel `yaml:"logLevel"`

	TelemetryOTLP        string `yaml:"telemetryOtlp"`
	TelemetryServiceName string `yaml:"telemetryServiceName"`

	DisableReload bool `yaml:"disableReload"`

	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Demo      DemoConfig      `yaml:"demo"`
}

// RateLimitConfig configures the optional Redis-backed rate-limit
// middleware. A zero value disables it (RequestsPerSecond == 0).
type RateLimitConfig struct {
	RedisAddr         string `yaml:"redisAddr"`
	RequestsPerSecond int    `yaml:"requestsPerSecond" validate:"omitempty,min=1"`
	Burst             int    `yaml:"burst" validate:"omitempty,min=1"`
}

// DemoConfig toggles the example tool/resource components shipped with
// this core, each wired to a distinct third-party backend.
type DemoConfig struct {
	SQLiteResource SQLiteResourceConfig `yaml:"sqliteResource"`
	EchoTool       bool                 `yaml:"echoTool"`
}

// SQLiteResourceConfig configures the `notes://db/{id}` resource_template.
type SQLiteResourceConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"dbPath"`
}

// Default returns a minimal, valid configuration suitable for local
// development: stdio transport, standard logging at info level.
func Default() Config {
	return Config{
		ServerName:    "mcpcore-demo",
		ServerVersion: "0.0.0-dev",
		Transport:     "stdio",
		Address:       "127.0.0.1",
		Port:          5000,
		LoggingFormat: "standard",
		LogLevel:      "info",

		TelemetryServiceName: "mcpcore",
	}
}

// Load reads and strictly decodes a YAML configuration file, then
// validates it. Unknown fields are a decode error, matching the
// teacher's fail-fast posture on malformed config. Every other field
// falls back to Default(), but serverName and serverVersion must come
// from the file itself.
func Load(ctx context.Context, raw []byte) (Config, error) {
	cfg := Default()
	cfg.ServerName, cfg.ServerVersion = "", ""
	if err := yaml.UnmarshalContext(ctx, raw, &cfg, yaml.Strict()); err != nil {
		return Config{}, fmt.Errorf("serverconfig: decode: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate runs struct-tag validation plus the cross-field checks the
// tags alone can't express.
func Validate(cfg Config) error {
	v := validatorpkg.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("serverconfig: invalid configuration: %w", err)
	}
	if cfg.Demo.SQLiteResource.Enabled && cfg.Demo.SQLiteResource.DBPath == "" {
		return fmt.Errorf("serverconfig: demo.sqliteResource.dbPath is required when enabled")
	}
	if cfg.RateLimit.RequestsPerSecond > 0 && cfg.RateLimit.RedisAddr == "" {
		return fmt.Errorf("serverconfig: rateLimit.redisAddr is required when requestsPerSecond is set")
	}
	return nil
}

// LogFormat is a cobra-flag-friendly string enum, in the same shape as
// StringLevel: satisfies pflag.Value so it can be bound directly to a CLI
// flag as well as decoded from YAML.
type LogFormat string

func (f *LogFormat) String() string {
	if string(*f) != "" {
		return strings.ToLower(string(*f))
	}
	return "standard"
}

func (f *LogFormat) Set(v string) error {
	switch strings.ToLower(v) {
	case "standard", "json":
		*f = LogFormat(v)
		return nil
	default:
		return fmt.Errorf(`log format must be one of "standard" or "json"`)
	}
}

func (f *LogFormat) Type() string {
	return "logFormat"
}

// StringLevel is a cobra-flag-friendly log level enum.
type StringLevel string

func (s *StringLevel) String() string {
	if string(*s) != "" {
		return strings.ToLower(string(*s))
	}
	return "info"
}

func (s *StringLevel) Set(v string) error {
	switch strings.ToLower(v) {
	case "debug", "info", "warn", "error":
		*s = StringLevel(v)
		return nil
	default:
		return fmt.Errorf(`log level must be one of "debug", "info", "warn", or "error"`)
	}
}

func (s *StringLevel) Type() string {
	return "stringLevel"
}
