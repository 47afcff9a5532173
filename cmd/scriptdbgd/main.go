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

// scriptdbgd runs a build script under the interactive debugger, serving
// remote debug clients over stdio, a named pipe or TCP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tombee/scriptdbg/internal/config"
	"github.com/tombee/scriptdbg/internal/connection"
	"github.com/tombee/scriptdbg/internal/debugserver"
	"github.com/tombee/scriptdbg/internal/framing"
	"github.com/tombee/scriptdbg/internal/interp"
	"github.com/tombee/scriptdbg/internal/log"
	"github.com/tombee/scriptdbg/internal/tracing"
	"github.com/tombee/scriptdbg/pkg/debugger"
)

// Version information (injected via ldflags at build time)
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath   string
		mode         string
		transport    string
		pipePath     string
		port         int
		noPrompt     bool
		breakOnError bool
		metricsAddr  string
		traceSpans   bool
		showVersion  bool
	)

	cmd := &cobra.Command{
		Use:   "scriptdbgd <script>",
		Short: "Run a build script under the interactive debugger",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Printf("scriptdbgd %s (commit: %s)\n", version, commit)
				return nil
			}
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one script argument")
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			applyFlags(cfg, cmd.Flags(), mode, transport, pipePath, port, noPrompt, breakOnError, metricsAddr, traceSpans)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cfg, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "Path to scriptdbg.yaml")
	flags.StringVar(&mode, "mode", "", "Protocol mode (console, json)")
	flags.StringVar(&transport, "transport", "", "Client transport (stdio, pipe, tcp)")
	flags.StringVar(&pipePath, "pipe", "", "Named pipe path for the pipe transport")
	flags.IntVar(&port, "port", 0, "Listen port for the tcp transport")
	flags.BoolVar(&noPrompt, "no-prompt", false, "Suppress the console prompt")
	flags.BoolVar(&breakOnError, "break-on-error", true, "Pause when a statement fails")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address")
	flags.BoolVar(&traceSpans, "trace", false, "Export request spans to stderr")
	flags.BoolVar(&showVersion, "version", false, "Show version information")
	return cmd
}

func applyFlags(cfg *config.Config, flags *pflag.FlagSet, mode, transport, pipePath string, port int, noPrompt, breakOnError bool, metricsAddr string, traceSpans bool) {
	if mode != "" {
		cfg.Mode = mode
	}
	if transport != "" {
		cfg.Transport = transport
	}
	if pipePath != "" {
		cfg.Pipe = pipePath
	}
	if port != 0 {
		cfg.Port = port
	}
	if noPrompt {
		cfg.Prompt = false
	}
	if flags.Changed("break-on-error") {
		cfg.BreakOnError = breakOnError
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	if traceSpans {
		cfg.Trace = true
	}
}

func run(cfg *config.Config, script string) error {
	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	if cfg.Trace {
		tp, err := tracing.New("scriptdbgd", os.Stderr)
		if err != nil {
			return err
		}
		defer tp.Shutdown(context.Background())
	}

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	vars := interp.NewVariables()
	itp := interp.New(vars, logger)
	dbg := debugger.New(itp, vars, logger)
	defer dbg.Close()
	dbg.SetBreakOnError(cfg.BreakOnError)
	itp.SetHooks(interp.Hooks{PreRun: dbg.PreRunHook, Error: dbg.ErrorHook})

	srv, err := buildServer(cfg, dbg, logger)
	if err != nil {
		return err
	}
	if err := srv.Serve(); err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	return itp.RunFile(script)
}

// server is the common surface of both protocol handlers.
type server interface {
	Serve() error
	Shutdown(ctx context.Context) error
}

func buildServer(cfg *config.Config, dbg *debugger.Debugger, logger *slog.Logger) (server, error) {
	strategy := func() framing.Strategy {
		if cfg.Mode == config.ModeJSON {
			return framing.NewJSON()
		}
		return framing.NewLine()
	}

	var conn connection.Connection
	switch cfg.Transport {
	case config.TransportStdio:
		conn = connection.NewStdio(strategy(), logger)
	case config.TransportPipe:
		conn = connection.NewPipe(cfg.Pipe, strategy(), logger)
	case config.TransportTCP:
		conn = connection.NewTCP(cfg.Port, strategy(), logger)
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}

	if cfg.Mode == config.ModeJSON {
		return debugserver.NewJSON(dbg, logger, conn).Server, nil
	}
	return debugserver.NewConsole(dbg, cfg.Prompt, logger, conn).Server, nil
}
