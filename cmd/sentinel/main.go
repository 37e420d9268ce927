// Package main implements the sentinel command line interface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/sentinel/internal/app"
	"github.com/MrSnakeDoc/sentinel/internal/config"
	"github.com/MrSnakeDoc/sentinel/internal/discovery"
	"github.com/MrSnakeDoc/sentinel/internal/logger"
	"github.com/MrSnakeDoc/sentinel/internal/version"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serveCmd := newServeCmd()

	rootCmd := &cobra.Command{
		Use:          "sentinel",
		Short:        "sentinel supervises services and restarts them when they fail",
		SilenceUsage: true,
		RunE:         serveCmd.RunE,
	}
	rootCmd.AddCommand(serveCmd, newValidateCmd(), newVersionCmd())
	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the supervisor (configured through SENTINEL_* environment variables)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()

			loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)
			defer func() { _ = loggerClient.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, loggerClient)
			if err != nil {
				loggerClient.Error("❌ sentinel failed to start", logger.Error(err))
				return err
			}
			return a.Run(ctx)
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <services.yaml>",
		Short: "Validate a discovery file and print the services it declares",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := discovery.NewFileSource(args[0]).Load()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "NAME\tINTERVAL\tMAX RETRIES\tSTRATEGY\tCRITICAL\tCHECK\tDEPENDENCIES")
			for _, svc := range discovery.MapServices(file.Services) {
				svc = svc.WithDefaults()
				_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%t\t%s\t%v\n",
					svc.Name,
					svc.HealthCheckInterval,
					svc.MaxRetries,
					svc.RestartStrategy,
					svc.CriticalService,
					checkKind(svc.Probe != nil, svc.CheckName),
					svc.Dependencies,
				)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d service(s), file is valid.\n", len(file.Services))
			return err
		},
	}
}

func checkKind(hasProbe bool, checkName string) string {
	if hasProbe {
		return "probe"
	}
	if checkName != "" {
		return "aggregator:" + checkName
	}
	return "aggregator"
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return err
		},
	}
}
