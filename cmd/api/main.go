package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sinew-backend/internal/client"
	"sinew-backend/internal/config"
	"sinew-backend/internal/logger"
	"sinew-backend/internal/repository"
	"sinew-backend/internal/server"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "sinew-api",
		Short:         "Checkout, payment fulfillment and downloads for the SINEW store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(reconcileCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads .env when present, then the environment.
func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found (ok in prod)")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.SetupDefault(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			if cfg.Database.AutoMigrate {
				if err := client.Migrate(a.db); err != nil {
					return err
				}
				if err := a.products.Seed(cmd.Context()); err != nil {
					return fmt.Errorf("seed catalog: %w", err)
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			go a.reconciler.Run(ctx)

			srv := server.NewServer(cfg, a.services, a.registry)
			errCh := make(chan error, 1)
			go func() {
				slog.Info("starting HTTP server", "address", cfg.Address(), "environment", cfg.Environment.Name)
				if err := srv.Start(cfg.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("http server: %w", err)
			case <-ctx.Done():
			}

			slog.Info("signal received, starting graceful shutdown")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("http server shutdown: %w", err)
			}
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and seed the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := client.InitDBClient(&cfg.Database)
			if err != nil {
				return err
			}
			if err := client.Migrate(db); err != nil {
				return err
			}
			if err := repository.NewProductRepository(db).Seed(cmd.Context()); err != nil {
				return fmt.Errorf("seed catalog: %w", err)
			}

			slog.Info("database migrated", "driver", cfg.Database.Driver)
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the book and course catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := client.InitDBClient(&cfg.Database)
			if err != nil {
				return err
			}
			if err := repository.NewProductRepository(db).Seed(cmd.Context()); err != nil {
				return fmt.Errorf("seed catalog: %w", err)
			}

			slog.Info("catalog seeded")
			return nil
		},
	}
}

func reconcileCmd() *cobra.Command {
	var window time.Duration

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Fulfill approved Mercado Pago payments that never reached us",
		Long: `Searches Mercado Pago for approved payments created inside the window and
runs each one through the same idempotent confirmation as the webhook.

Examples:
  sinew-api reconcile
  sinew-api reconcile --window 72h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if window > 0 {
				cfg.Reconcile.Window = window
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.reconciler.RunOnce(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("scanned=%d fulfilled=%d already=%d failed=%d\n",
				report.Scanned, report.Fulfilled, report.Already, report.Failed)
			if report.Failed > 0 {
				return fmt.Errorf("%d payments could not be fulfilled", report.Failed)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&window, "window", 0, "how far back to search (default RECONCILE_WINDOW)")
	return cmd
}
