package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/miradorstack/kpi-recon/internal/config"
	"github.com/miradorstack/kpi-recon/internal/engine"
	"github.com/miradorstack/kpi-recon/internal/models"
	"github.com/miradorstack/kpi-recon/internal/utils"
)

type options struct {
	configPath string
	baseURL    string
	apiKey     string
	server     string
	logLevel   string
	format     string
	kpis       []string
	timeout    time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "kpi-report",
		Short: "Compare KPI forecasts with recorded values",
		Long: `kpi-report fetches KPI definitions, 24h forecast results and historical
statistics, aligns each forecast to the bucket it predicts and prints the
comparison together with half-day peak metrics.

The API key is read from --api-key or KPI_RECON_API_KEY.`,
		SilenceUsage: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flags.StringVar(&opts.baseURL, "base-url", "", "KPI API base URL (overrides config)")
	flags.StringVar(&opts.apiKey, "api-key", "", "KPI API key (defaults to KPI_RECON_API_KEY)")
	flags.StringVar(&opts.server, "server", "", "Address of a running kpi-recon service; empty runs locally")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.format, "format", "table", "Output format: table or json")
	flags.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Overall deadline for the command")

	rootCmd.AddCommand(newRunCmd(&opts), newListCmd(&opts), newChartCmd(&opts))
	return rootCmd
}

func newRunCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile forecasts with recorded values",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, opts, func(ctx context.Context, b backend) error {
				report, err := b.Run(ctx, models.RunRequest{KPIs: opts.kpis})
				if err != nil {
					return err
				}
				if opts.format == "json" {
					return writeJSON(cmd.OutOrStdout(), report)
				}
				return renderReport(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().StringSliceVar(&opts.kpis, "kpi", nil, "Restrict to KPIs by name or kpiId (repeatable)")
	return cmd
}

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List KPI definitions and their lead times",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, opts, func(ctx context.Context, b backend) error {
				defs, err := b.Definitions(ctx)
				if err != nil {
					return err
				}
				if opts.format == "json" {
					if defs == nil {
						defs = []models.KPIDefinition{}
					}
					return writeJSON(cmd.OutOrStdout(), defs)
				}
				return renderDefinitions(cmd.OutOrStdout(), defs)
			})
		},
	}
}

func newChartCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chart <kpi>",
		Short: "Print the forecast/actual and delta/error series for one KPI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, opts, func(ctx context.Context, b backend) error {
				report, err := b.Run(ctx, models.RunRequest{KPIs: []string{args[0]}})
				if err != nil {
					return err
				}
				series := engine.ChartSeries(report, args[0])
				if opts.format == "json" {
					return writeJSON(cmd.OutOrStdout(), series)
				}
				return renderSeries(cmd.OutOrStdout(), series)
			})
		},
	}
}

func withBackend(cmd *cobra.Command, opts *options, fn func(context.Context, backend) error) error {
	if opts.format != "table" && opts.format != "json" {
		return fmt.Errorf("unsupported format %q", opts.format)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.baseURL != "" {
		cfg.Upstream.BaseURL = opts.baseURL
	}
	if opts.apiKey != "" {
		cfg.Upstream.APIKey = opts.apiKey
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	logger := utils.NewLoggerTo(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.JSON)

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	b, err := newBackend(opts.server, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := fn(ctx, b); err != nil {
		logger.Error("command failed", slog.String("command", cmd.Name()), slog.Any("error", err))
		return err
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
