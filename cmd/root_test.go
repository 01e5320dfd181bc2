// Copyright 2024 Google LLC
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

package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"

	"github.com/fiberplane/mcpcore/internal/serverconfig"
)

func invokeCommand(args []string) (*Command, string, error) {
	c := NewCommand()

	// Keep the test output quiet
	c.SilenceUsage = true
	c.SilenceErrors = true

	buf := new(bytes.Buffer)
	c.SetOut(buf)
	c.SetErr(buf)
	c.SetArgs(args)

	// Disable execute behavior
	c.RunE = func(*cobra.Command, []string) error {
		return nil
	}

	err := c.Execute()

	return c, buf.String(), err
}

func TestVersion(t *testing.T) {
	_, got, err := invokeCommand([]string{"--version"})
	if err != nil {
		t.Fatalf("error invoking command: %s", err)
	}
	if want := versionString; !bytes.Contains([]byte(got), []byte(want)) {
		t.Errorf("cli did not return correct version: want %q, got %q", want, got)
	}
}

func TestServerConfigFlags(t *testing.T) {
	def := serverconfig.Default()

	tcs := []struct {
		desc string
		args []string
		want serverconfig.Config
	}{
		{
			desc: "default values",
			args: []string{},
			want: def,
		},
		{
			desc: "address short",
			args: []string{"-a", "127.0.1.1"},
			want: func() serverconfig.Config { c := def; c.Address = "127.0.1.1"; return c }(),
		},
		{
			desc: "address long",
			args: []string{"--address", "0.0.0.0"},
			want: func() serverconfig.Config { c := def; c.Address = "0.0.0.0"; return c }(),
		},
		{
			desc: "port short",
			args: []string{"-p", "5052"},
			want: func() serverconfig.Config { c := def; c.Port = 5052; return c }(),
		},
		{
			desc: "port long",
			args: []string{"--port", "5050"},
			want: func() serverconfig.Config { c := def; c.Port = 5050; return c }(),
		},
		{
			desc: "logging format",
			args: []string{"--logging-format", "json"},
			want: func() serverconfig.Config { c := def; c.LoggingFormat = "json"; return c }(),
		},
		{
			desc: "log level",
			args: []string{"--log-level", "warn"},
			want: func() serverconfig.Config { c := def; c.LogLevel = "warn"; return c }(),
		},
		{
			desc: "telemetry otlp",
			args: []string{"--telemetry-otlp", "http://127.0.0.1:4553"},
			want: func() serverconfig.Config { c := def; c.TelemetryOTLP = "http://127.0.0.1:4553"; return c }(),
		},
		{
			desc: "telemetry service name",
			args: []string{"--telemetry-service-name", "mcpcore-custom"},
			want: func() serverconfig.Config { c := def; c.TelemetryServiceName = "mcpcore-custom"; return c }(),
		},
		{
			desc: "disable reload",
			args: []string{"--disable-reload"},
			want: func() serverconfig.Config { c := def; c.DisableReload = true; return c }(),
		},
	}
	for _, tc := range tcs {
		t.Run(tc.desc, func(t *testing.T) {
			c, _, err := invokeCommand(tc.args)
			if err != nil {
				t.Fatalf("unexpected error invoking command: %s", err)
			}
			if diff := cmp.Diff(tc.want, c.cfg); diff != "" {
				t.Fatalf("unexpected cfg (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStdioFlagForcesTransport(t *testing.T) {
	c, _, err := invokeCommand([]string{"--stdio"})
	if err != nil {
		t.Fatalf("unexpected error invoking command: %s", err)
	}
	if !c.stdio {
		t.Fatalf("expected stdio flag to be set")
	}
}

func TestConfigFlag(t *testing.T) {
	c, _, err := invokeCommand([]string{"--config", "mcpcore.yaml"})
	if err != nil {
		t.Fatalf("unexpected error invoking command: %s", err)
	}
	if c.configPath != "mcpcore.yaml" {
		t.Fatalf("got configPath %q, want %q", c.configPath, "mcpcore.yaml")
	}
}

func TestFailServerConfigFlags(t *testing.T) {
	tcs := []struct {
		desc string
		args []string
	}{
		{
			desc: "logging format",
			args: []string{"--logging-format", "fail"},
		},
		{
			desc: "log level",
			args: []string{"--log-level", "fail"},
		},
	}
	for _, tc := range tcs {
		t.Run(tc.desc, func(t *testing.T) {
			_, _, err := invokeCommand(tc.args)
			if err == nil {
				t.Fatalf("expected an error, but got nil")
			}
		})
	}
}

func TestDefaultLoggingFormat(t *testing.T) {
	c, _, err := invokeCommand([]string{})
	if err != nil {
		t.Fatalf("unexpected error invoking command: %s", err)
	}
	if got, want := c.cfg.LoggingFormat.String(), "standard"; got != want {
		t.Fatalf("unexpected default logging format: got %v, want %v", got, want)
	}
}

func TestDefaultLogLevel(t *testing.T) {
	c, _, err := invokeCommand([]string{})
	if err != nil {
		t.Fatalf("unexpected error invoking command: %s", err)
	}
	if got, want := c.cfg.LogLevel.String(), "info"; got != want {
		t.Fatalf("unexpected default log level: got %v, want %v", got, want)
	}
}

func TestParseEnv(t *testing.T) {
	os.Setenv("MCPCORE_TEST_VAR", "resolved")
	defer os.Unsetenv("MCPCORE_TEST_VAR")

	got := parseEnv("redisAddr: ${MCPCORE_TEST_VAR}:6379")
	want := "redisAddr: resolved:6379"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestParseEnv_UndefinedVariableLeftVerbatim(t *testing.T) {
	got := parseEnv("value: ${MCPCORE_DEFINITELY_UNSET}")
	want := "value: ${MCPCORE_DEFINITELY_UNSET}"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestUpdateLogLevel(t *testing.T) {
	tcs := []struct {
		desc     string
		stdio    bool
		logLevel string
		want     bool
	}{
		{desc: "no stdio", stdio: false, logLevel: "info", want: false},
		{desc: "stdio with info log", stdio: true, logLevel: "info", want: true},
		{desc: "stdio with debug log", stdio: true, logLevel: "debug", want: true},
		{desc: "stdio with warn log", stdio: true, logLevel: "warn", want: false},
		{desc: "stdio with error log", stdio: true, logLevel: "error", want: false},
	}
	for _, tc := range tcs {
		t.Run(tc.desc, func(t *testing.T) {
			got := updateLogLevel(tc.stdio, tc.logLevel)
			if got != tc.want {
				t.Fatalf("incorrect indication to update log level: got %t, want %t", got, tc.want)
			}
		})
	}
}

func TestOverlayFlags(t *testing.T) {
	c := NewCommand()
	c.SetArgs([]string{"--address", "10.0.0.1"})
	c.RunE = func(*cobra.Command, []string) error { return nil }
	if err := c.Execute(); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	file := serverconfig.Default()
	file.Address = "192.168.1.1"
	file.Port = 9000

	merged := overlayFlags(c.Flags(), file, c.cfg)
	if merged.Address != "10.0.0.1" {
		t.Fatalf("expected explicit flag to win, got address %q", merged.Address)
	}
	if merged.Port != 9000 {
		t.Fatalf("expected untouched flag to keep the file's value, got port %d", merged.Port)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcpcore.yaml")
	contents := "serverName: from-file\nserverVersion: 1.2.3\ntransport: http\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("unexpected error writing fixture: %s", err)
	}

	cfg, err := loadConfigFile(t.Context(), path)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if cfg.ServerName != "from-file" {
		t.Fatalf("got serverName %q, want %q", cfg.ServerName, "from-file")
	}
	if cfg.Transport != "http" {
		t.Fatalf("got transport %q, want %q", cfg.Transport, "http")
	}
}
