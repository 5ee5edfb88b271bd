package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/devhaven/auth-service/internal/app"
	"github.com/devhaven/auth-service/internal/config"
	"github.com/devhaven/auth-service/internal/db"
	"github.com/devhaven/auth-service/internal/logger"
)

func main() {
	var envFile string

	root := &cobra.Command{
		Use:           "auth-service",
		Short:         "OAuth login service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), envFile)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create the account tables and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd.Context(), envFile)
		},
	})

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func loadConfig(envFile string) (config.Config, error) {
	cfg := config.Load(envFile)
	logger.Init(logger.Config{
		Env:         cfg.AppEnv,
		Level:       cfg.LogLevel,
		ServiceName: "auth-service",
	})
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, envFile string) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	application, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize app", logger.Err(err))
		return err
	}

	if err := application.Run(ctx); err != nil {
		logger.Error("http server failed", logger.Err(err))
		return err
	}

	logger.Info("auth-service stopped cleanly")
	return nil
}

func migrate(ctx context.Context, envFile string) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	database, err := db.Open(ctx, cfg.DatabaseDSN, db.PoolOptions{MaxOpenConns: 1})
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return fmt.Errorf("db: migrate: %w", err)
	}
	logger.Info("migrations applied")
	return nil
}
