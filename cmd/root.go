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
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/fiberplane/mcpcore/internal/demo/echotool"
	"github.com/fiberplane/mcpcore/internal/demo/sqliteresource"
	"github.com/fiberplane/mcpcore/internal/log"
	"github.com/fiberplane/mcpcore/internal/mcp/dispatch"
	"github.com/fiberplane/mcpcore/internal/middleware/ratelimit"
	"github.com/fiberplane/mcpcore/internal/serverconfig"
	"github.com/fiberplane/mcpcore/internal/telemetry"
	"github.com/fiberplane/mcpcore/internal/transport"
)

// versionString is the version reported by --version. There is no build
// pipeline wired up in this repo to stamp it via ldflags, so it is a
// plain constant rather than the embedded/ldflags combination a shipped
// binary would use.
const versionString = "0.1.0"

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen
// once to the rootCmd.
func Execute() {
	if err := NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// Command represents an invocation of the CLI.
type Command struct {
	*cobra.Command

	cfg        serverconfig.Config
	configPath string
	stdio      bool
	logger     log.Logger
	inStream   io.Reader
	outStream  io.Writer
	errStream  io.Writer
}

// NewCommand returns a Command object representing an invocation of the CLI.
func NewCommand(opts ...Option) *Command {
	in := os.Stdin
	out := os.Stdout
	err := os.Stderr

	baseCmd := &cobra.Command{
		Use:           "mcpcore",
		Version:       versionString,
		SilenceErrors: true,
	}
	cmd := &Command{
		Command:   baseCmd,
		cfg:       serverconfig.Default(),
		inStream:  in,
		outStream: out,
		errStream: err,
	}

	for _, o := range opts {
		o(cmd)
	}

	// set baseCmd in, out and err the same as cmd.
	baseCmd.SetIn(cmd.inStream)
	baseCmd.SetOut(cmd.outStream)
	baseCmd.SetErr(cmd.errStream)

	flags := cmd.Flags()
	flags.StringVar(&cmd.configPath, "config", "", "Path to the server's YAML configuration file. Hot-reloaded unless --disable-reload is set.")
	flags.StringVarP(&cmd.cfg.Address, "address", "a", cmd.cfg.Address, "Address of the interface the server will listen on.")
	flags.IntVarP(&cmd.cfg.Port, "port", "p", cmd.cfg.Port, "Port the server will listen on.")
	flags.Var(&cmd.cfg.LogLevel, "log-level", "Specify the minimum level logged. Allowed: 'debug', 'info', 'warn', 'error'.")
	flags.Var(&cmd.cfg.LoggingFormat, "logging-format", "Specify logging format to use. Allowed: 'standard' or 'json'.")
	flags.StringVar(&cmd.cfg.TelemetryOTLP, "telemetry-otlp", "", "Enable exporting using OpenTelemetry Protocol (OTLP) to the specified endpoint (e.g. 'http://127.0.0.1:4318').")
	flags.StringVar(&cmd.cfg.TelemetryServiceName, "telemetry-service-name", "mcpcore", "Sets the value of the service.name resource attribute for telemetry data.")
	flags.BoolVar(&cmd.stdio, "stdio", false, "Listens via MCP stdio even when the config file selects the HTTP transport. Stdio is also the default transport.")
	flags.BoolVar(&cmd.cfg.DisableReload, "disable-reload", false, "Disables hot-reloading of the configuration file.")

	// wrap RunE command so that we have access to original Command object
	cmd.RunE = func(*cobra.Command, []string) error { return run(cmd) }

	return cmd
}

// parseEnv replaces environment variables ${ENV_NAME} with their values.
func parseEnv(input string) string {
	re := regexp.MustCompile(`\$\{(\w+)\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		variableName := parts[1]
		if value, found := os.LookupEnv(variableName); found {
			return value
		}
		return match
	})
}

// loadConfigFile reads and decodes the configuration file at path,
// substituting ${ENV_NAME} references first.
func loadConfigFile(ctx context.Context, path string) (serverconfig.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return serverconfig.Config{}, fmt.Errorf("unable to read config file at %q: %w", path, err)
	}
	cfg, err := serverconfig.Load(ctx, []byte(parseEnv(string(raw))))
	if err != nil {
		return serverconfig.Config{}, fmt.Errorf("unable to parse config file at %q: %w", path, err)
	}
	return cfg, nil
}

// overlayFlags lets a flag the caller actually typed on the command line
// win over the same field loaded from the config file; a flag left at its
// default never overrides a value the file set explicitly.
func overlayFlags(flags *pflag.FlagSet, file, fromFlags serverconfig.Config) serverconfig.Config {
	merged := file
	if flags.Changed("address") {
		merged.Address = fromFlags.Address
	}
	if flags.Changed("port") {
		merged.Port = fromFlags.Port
	}
	if flags.Changed("log-level") {
		merged.LogLevel = fromFlags.LogLevel
	}
	if flags.Changed("logging-format") {
		merged.LoggingFormat = fromFlags.LoggingFormat
	}
	if flags.Changed("telemetry-otlp") {
		merged.TelemetryOTLP = fromFlags.TelemetryOTLP
	}
	if flags.Changed("telemetry-service-name") {
		merged.TelemetryServiceName = fromFlags.TelemetryServiceName
	}
	if flags.Changed("disable-reload") {
		merged.DisableReload = fromFlags.DisableReload
	}
	return merged
}

// updateLogLevel reports whether stdio forces the log level up to WARN:
// stdio writes informational logs to the same stdout the JSON-RPC
// responses travel over, so anything below WARN (which this logger routes
// to stderr) would corrupt the message stream.
func updateLogLevel(stdio bool, logLevel string) bool {
	if !stdio {
		return false
	}
	switch strings.ToUpper(logLevel) {
	case log.Debug, log.Info:
		return true
	default:
		return false
	}
}

// registerDemoComponents wires whichever demo tool/resource components cfg
// enables into reg. Registration is additive and idempotent (Registry.Tool
// /Resource is last-write-wins by name), so calling this again after a
// config reload with more components enabled is always safe; a component
// disabled in a later reload stays registered; removal is not supported.
func registerDemoComponents(ctx context.Context, reg *dispatch.Server, cfg serverconfig.DemoConfig, sqliteStore **sqliteresource.Store) error {
	if cfg.EchoTool {
		if err := echotool.Register(reg.Reg); err != nil {
			return fmt.Errorf("registering echo tool: %w", err)
		}
	}
	if cfg.SQLiteResource.Enabled && *sqliteStore == nil {
		store, err := sqliteresource.Open(ctx, cfg.SQLiteResource.DBPath)
		if err != nil {
			return fmt.Errorf("opening sqlite resource store: %w", err)
		}
		if err := store.Register(reg.Reg); err != nil {
			return fmt.Errorf("registering sqlite resource: %w", err)
		}
		*sqliteStore = store
	}
	return nil
}

func run(cmd *Command) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// watch for sigterm / sigint signals
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func(sCtx context.Context) {
		var s os.Signal
		select {
		case <-sCtx.Done():
			return
		case s = <-signals:
		}
		switch s {
		case syscall.SIGINT:
			cmd.logger.Debug("received SIGINT, shutting down")
		case syscall.SIGTERM:
			cmd.logger.Debug("received SIGTERM, shutting down")
		}
		cancel()
	}(ctx)

	if cmd.stdio {
		cmd.cfg.Transport = "stdio"
	}

	if cmd.configPath != "" {
		fileCfg, err := loadConfigFile(ctx, cmd.configPath)
		if err != nil {
			return err
		}
		cmd.cfg = overlayFlags(cmd.Flags(), fileCfg, cmd.cfg)
		if cmd.stdio {
			cmd.cfg.Transport = "stdio"
		}
	}

	if updateLogLevel(cmd.cfg.Transport == "stdio", cmd.cfg.LogLevel.String()) {
		cmd.cfg.LogLevel = serverconfig.StringLevel(log.Warn)
	}

	switch strings.ToLower(cmd.cfg.LoggingFormat.String()) {
	case "json":
		logger, err := log.NewStructuredLogger(cmd.outStream, cmd.errStream, cmd.cfg.LogLevel.String())
		if err != nil {
			return fmt.Errorf("unable to initialize logger: %w", err)
		}
		cmd.logger = logger
	case "standard":
		logger, err := log.NewStdLogger(cmd.outStream, cmd.errStream, cmd.cfg.LogLevel.String())
		if err != nil {
			return fmt.Errorf("unable to initialize logger: %w", err)
		}
		cmd.logger = logger
	default:
		return fmt.Errorf("logging format invalid")
	}

	instrumentation, otelShutdown, err := telemetry.New(ctx, cmd.cfg.TelemetryServiceName, cmd.cfg.TelemetryOTLP)
	if err != nil {
		errMsg := fmt.Errorf("error setting up telemetry: %w", err)
		cmd.logger.Error(errMsg.Error())
		return errMsg
	}
	defer func() {
		if err := otelShutdown(ctx); err != nil {
			cmd.logger.Error("error shutting down telemetry", "error", err)
		}
	}()

	server := dispatch.NewServer(dispatch.ServerInfo{Name: cmd.cfg.ServerName, Version: cmd.cfg.ServerVersion})
	server.Use(instrumentation.Middleware())

	if cmd.cfg.RateLimit.RequestsPerSecond > 0 {
		limiter := ratelimit.New(cmd.cfg.RateLimit)
		if err := limiter.Ping(ctx); err != nil {
			errMsg := fmt.Errorf("rate limiter: unable to reach redis at %q: %w", cmd.cfg.RateLimit.RedisAddr, err)
			cmd.logger.Error(errMsg.Error())
			return errMsg
		}
		defer limiter.Close()
		server.Use(limiter.Middleware())
	}

	var sqliteStore *sqliteresource.Store
	if err := registerDemoComponents(ctx, server, cmd.cfg.Demo, &sqliteStore); err != nil {
		cmd.logger.Error(err.Error())
		return err
	}
	if sqliteStore != nil {
		defer sqliteStore.Close()
	}

	srvErr := make(chan error, 1)
	var httpServer *http.Server

	if cmd.cfg.Transport == "stdio" {
		go func() {
			st := &transport.Stdio{Server: server, Logger: cmd.logger}
			srvErr <- st.Serve(ctx, cmd.inStream, cmd.outStream)
		}()
	} else {
		ht := &transport.HTTP{Server: server, Logger: cmd.logger, Metrics: instrumentation.MetricsHandler()}
		// The SSE endpoint event tells clients to POST to /mcp, so the
		// transport's router is mounted there.
		mux := chi.NewRouter()
		mux.Mount("/mcp", ht.Router())
		httpServer = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cmd.cfg.Address, cmd.cfg.Port),
			Handler: mux,
		}
		go func() {
			cmd.logger.Info("server ready to serve", "address", httpServer.Addr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				srvErr <- err
				return
			}
			srvErr <- nil
		}()
	}

	if cmd.configPath != "" && !cmd.cfg.DisableReload {
		go func() {
			err := serverconfig.Watch(ctx, cmd.logger, cmd.configPath, func(newCfg serverconfig.Config) {
				cmd.logger.Info("configuration reloaded")
				if err := registerDemoComponents(ctx, server, newCfg.Demo, &sqliteStore); err != nil {
					cmd.logger.Warn("reload: failed to apply demo component changes", "error", err)
				}
			})
			if err != nil {
				cmd.logger.Warn("config watcher exited", "error", err)
			}
		}()
	}

	// wait for either the server to error out or the command's context to be canceled
	select {
	case err := <-srvErr:
		if err != nil {
			errMsg := fmt.Errorf("mcpcore crashed: %w", err)
			cmd.logger.Error(errMsg.Error())
			return errMsg
		}
	case <-ctx.Done():
		shutdownContext, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		cmd.logger.Warn("shutting down gracefully...")
		if httpServer != nil {
			if err := httpServer.Shutdown(shutdownContext); err != nil {
				return fmt.Errorf("graceful shutdown timed out... forcing exit")
			}
		}
	}

	return nil
}
