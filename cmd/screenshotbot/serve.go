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

	"github.com/spf13/cobra"

	"github.com/maauso/screenshot-bot/internal/bootstrap"
	"github.com/maauso/screenshot-bot/internal/bot"
	"github.com/maauso/screenshot-bot/internal/config"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot and the health server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting screenshot bot",
		slog.Int("port", cfg.Port),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("temp_dir", cfg.TempDir),
		slog.Int("max_concurrent_frames", cfg.MaxConcurrentFrames),
		slog.String("user_store", cfg.UserStore),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
		slog.Bool("redis_enabled", cfg.RedisEnabled()),
	)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := deps.Close(closeCtx); err != nil {
			logger.Error("failed to release dependencies", slog.String("error", err.Error()))
		}
	}()

	client, err := bot.NewClient(cfg.BotToken)
	if err != nil {
		return fmt.Errorf("create telegram client: %w", err)
	}
	logger.Info("authorized on telegram", slog.String("username", client.Self.UserName))

	go deps.Sweeper.Start(ctx)

	errCh := make(chan error, 2)

	srv := deps.NewHTTPServer()
	if srv != nil {
		go func() {
			logger.Info("HTTP server listening", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("server failed: %w", err)
			}
		}()
	}

	botDone := make(chan struct{})
	go func() {
		defer close(botDone)
		if err := deps.NewBot(client).Run(ctx); err != nil {
			errCh <- fmt.Errorf("bot failed: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case runErr = <-errCh:
		stop()
	}

	// In-flight updates finish before temp files are drained.
	<-botDone

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		logger.Info("shutting down server...")
		if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
			runErr = fmt.Errorf("shutdown failed: %w", err)
		}
	}

	if runErr == nil {
		logger.Info("bot stopped gracefully")
	}
	return runErr
}
