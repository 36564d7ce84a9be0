// YOLO Timeline - REST backend for the detection event timeline UI
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/yolo-detection/yolo-timeline/internal/api"
	"github.com/yolo-detection/yolo-timeline/internal/config"
	"github.com/yolo-detection/yolo-timeline/internal/db"
)

const shutdownTimeout = 30 * time.Second

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "yolo-timeline",
		Short: "YOLO detection timeline server",
		Long: `yolo-timeline serves the detection timeline UI and its REST API: event
lists, per-hour activity, camera status, recorded media and live snapshots
proxied from the detection service.`,
		SilenceUsage: true,
		RunE:         runServe,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server (default)",
			RunE:  runServe,
		},
		migrateCmd(),
		&cobra.Command{
			Use:   "config",
			Short: "Print the effective configuration",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				return cfg.Dump(cmd.OutOrStdout())
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.FindConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting YOLO timeline server",
		zap.String("config", cfg.Path),
		zap.String("address", cfg.Timeline.Address()),
		zap.String("database", cfg.Database.PoolConfig().Redacted()),
		zap.Int("cameras", len(cfg.Cameras)),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connection failures here are tolerated; the pool starts smaller and the API
	// reports degraded data until the database is back.
	pool := db.NewPool(ctx, cfg.Database.PoolConfig(), logger)
	defer pool.Close()

	store := db.NewEventStore(pool, logger, cfg.Database.AcquireTimeout)

	srv, err := api.NewServer(cfg, pool, store, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		return err
	}

	logger.Info("Server stopped")
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the development database schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				if err := db.RunMigrations(db.Migrations(), cfg.Database.PoolConfig().URL()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Revert all migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				if err := db.RollbackMigrations(db.Migrations(), cfg.Database.PoolConfig().URL()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Migrations rolled back")
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show the current schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				version, dirty, err := db.GetMigrationVersion(db.Migrations(), cfg.Database.PoolConfig().URL())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
				return nil
			},
		},
	)
	return cmd
}

func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	switch cfg.Output {
	case "", "stdout":
		zapCfg.OutputPaths = []string{"stdout"}
	case "stderr":
		zapCfg.OutputPaths = []string{"stderr"}
	default:
		zapCfg.OutputPaths = []string{cfg.Output}
	}

	return zapCfg.Build()
}
