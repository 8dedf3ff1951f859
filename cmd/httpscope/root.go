package main

import (
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jkbrsn/httpscope/internal/config"
	"github.com/jkbrsn/httpscope/internal/observability"
)

// app carries state shared by the subcommands.
type app struct {
	cfg    config.Config
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: config.FromEnv(), logger: zerolog.Nop()}

	root := &cobra.Command{
		Use:   "httpscope",
		Short: "Measure outgoing HTTP requests",
		Long: `httpscope sends requests through an instrumented HTTP client and reports a
timeline of every exchange: labels, durations, connection phases, status and
transport failures. Measurements can also be exported as HAR, as OpenTelemetry
spans, as Prometheus metrics, or streamed to websocket clients.`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if err := a.cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			a.logger = observability.NewLogger(a.cfg.LogLevel, a.cfg.LogConsole)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "Log level (trace, debug, info, warn, error)")
	flags.BoolVar(&a.cfg.LogConsole, "log-console", a.cfg.LogConsole, "Human readable log output")

	root.AddCommand(newFetchCmd(a), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Version:    %s\n", observability.Version)
			fmt.Fprintf(out, "Git Commit: %s\n", observability.Commit)
			fmt.Fprintf(out, "Go Version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
