package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"BillsScanner/internal/app"
	"BillsScanner/internal/config"
	"BillsScanner/internal/logging"
)

func main() {
	// A .env file is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type runtime struct {
	app    *app.Application
	logger *slog.Logger
}

func newRootCommand() *cobra.Command {
	var (
		cfgFile string
		rt      runtime
	)

	root := &cobra.Command{
		Use:          "billscanner",
		Short:        "Scrape, extract, publish and enrich parliamentary bills",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			rt.logger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
			rt.app = app.New(cfg, rt.logger)
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if rt.app != nil {
				return rt.app.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to the YAML config (default $BILLS_SCANNER_CONFIG)")

	root.AddCommand(
		passCommand(&rt, "scrape", "Refresh the bill catalog from the chamber listings", func(ctx context.Context) (any, error) {
			return rt.app.ScrapePass().Run(ctx)
		}),
		passCommand(&rt, "extract", "OCR every catalog bill not yet processed", func(ctx context.Context) (any, error) {
			return rt.app.ExtractionPass().Run(ctx)
		}),
		passCommand(&rt, "publish", "Upload extracted bills to storage and the document store", func(ctx context.Context) (any, error) {
			pass, err := rt.app.PublishPass(ctx)
			if err != nil {
				return nil, err
			}
			return pass.Run(ctx)
		}),
		passCommand(&rt, "enrich", "Generate missing descriptions, assessments and dates", func(ctx context.Context) (any, error) {
			pass, err := rt.app.EnrichmentPass(ctx)
			if err != nil {
				return nil, err
			}
			return pass.Run(ctx)
		}),
		&cobra.Command{
			Use:   "schedule",
			Short: "Run the full pipeline on the configured cron expression",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := rt.app.Schedule(cmd.Context()); err != nil {
					rt.logger.Error("scheduler stopped", "error", err)
					return err
				}
				return nil
			},
		},
	)
	return root
}

func passCommand(rt *runtime, name, short string, run func(ctx context.Context) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := run(cmd.Context())
			if err != nil {
				rt.logger.Error("pass failed", "pass", name, "error", err, "report", fmt.Sprintf("%+v", report))
				return err
			}
			rt.logger.Info("pass finished", "pass", name, "report", fmt.Sprintf("%+v", report))
			return nil
		},
	}
}
