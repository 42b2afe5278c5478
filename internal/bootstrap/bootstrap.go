// Package bootstrap provides dependency initialization for the screenshot bot.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/maauso/screenshot-bot/internal/bot"
	"github.com/maauso/screenshot-bot/internal/broadcast"
	"github.com/maauso/screenshot-bot/internal/config"
	"github.com/maauso/screenshot-bot/internal/media"
	"github.com/maauso/screenshot-bot/internal/screenshot"
	"github.com/maauso/screenshot-bot/internal/server"
	"github.com/maauso/screenshot-bot/internal/session"
	"github.com/maauso/screenshot-bot/internal/storage"
	"github.com/maauso/screenshot-bot/internal/userstore"
)

// Dependencies holds everything the bot process needs apart from the
// Telegram connection itself.
type Dependencies struct {
	Config   *config.Config
	Logger   *slog.Logger
	Storage  storage.Storage
	Pipeline *screenshot.Pipeline
	Sessions *session.Store
	Users    userstore.Store
	Sweeper  *storage.Sweeper
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := NewStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	users, err := NewUserStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	sessions := session.NewStore(store, logger)
	sweeper := storage.NewSweeper(cfg.TempDir, cfg.SweepInterval, cfg.SweepMaxAge, logger)
	sweeper.SetPending(sessions)

	return &Dependencies{
		Config:   cfg,
		Logger:   logger,
		Storage:  store,
		Pipeline: NewPipeline(cfg, store, logger),
		Sessions: sessions,
		Users:    users,
		Sweeper:  sweeper,
	}, nil
}

// NewStorage creates the appropriate storage backend based on configuration.
func NewStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(ctx, cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 screenshot archive configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}

// NewPipeline builds the screenshot pipeline on top of ffmpeg. Delivered
// screenshots are archived when S3 is configured.
func NewPipeline(cfg *config.Config, store storage.Storage, logger *slog.Logger) *screenshot.Pipeline {
	processor := media.NewFFmpegProcessor(cfg.FFmpegPath,
		media.WithFFprobePath(cfg.FFprobePath),
		media.WithTimeout(cfg.FFmpegTimeout),
	)

	p := screenshot.NewPipeline(processor, store, cfg.TempDir, logger)
	p.SetMaxConcurrentFrames(cfg.MaxConcurrentFrames)
	if cfg.S3Enabled() {
		p.SetArchiver(store)
	}
	return p
}

// NewUserStore opens the configured user store backend, with Redis
// counters layered on top when REDIS_ADDR is set.
func NewUserStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (userstore.Store, error) {
	var (
		users userstore.Store
		err   error
	)

	switch cfg.UserStore {
	case config.StorePostgres:
		users, err = userstore.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres user store: %w", err)
		}
	case config.StoreDynamoDB:
		client, err := userstore.NewDynamoClient(ctx, cfg.AWSRegion, cfg.DynamoDBEndpoint)
		if err != nil {
			return nil, fmt.Errorf("create dynamodb client: %w", err)
		}
		users = userstore.NewDynamoStore(client, cfg.DynamoDBUsersTable, cfg.DynamoDBCountersTable)
	default:
		users = userstore.NewMemoryStore()
	}
	logger.Info("user store configured", slog.String("backend", cfg.UserStore))

	if cfg.RedisEnabled() {
		users = userstore.WithCounter(users, userstore.NewRedisCounter(cfg.RedisAddr, cfg.RedisPassword))
		logger.Info("redis counters configured", slog.String("addr", cfg.RedisAddr))
	}
	return users, nil
}

// NewBot wires a Telegram client to the pipeline, the sessions and a
// broadcast dispatcher.
func (d *Dependencies) NewBot(client bot.Client) *bot.Bot {
	dispatcher := broadcast.NewDispatcher(d.Users, bot.NewSender(client), d.Logger)
	dispatcher.SetDelay(d.Config.BroadcastDelay)

	b := bot.New(client, bot.Deps{
		Sessions:    d.Sessions,
		Pipeline:    d.Pipeline,
		Users:       d.Users,
		Broadcaster: dispatcher,
		Files:       d.Storage,
	}, d.Config.AdminID, d.Logger)
	b.SetMaxUploadBytes(d.Config.MaxUploadBytes)
	return b
}

// NewHTTPServer returns the health and stats server, or nil when HTTP is disabled.
func (d *Dependencies) NewHTTPServer() *http.Server {
	if !d.Config.HTTPEnabled() {
		return nil
	}
	handlers := server.NewHandlers(d.Users, d.Sessions, d.Logger)
	return server.NewHTTPServer(d.Config.Port, server.NewRouter(handlers, d.Logger))
}

// Close deletes the files of pending uploads and releases the user store.
func (d *Dependencies) Close(ctx context.Context) error {
	if n := d.Sessions.Drain(ctx); n > 0 {
		d.Logger.Info("dropped pending uploads", slog.Int("count", n))
	}
	if err := d.Users.Close(); err != nil {
		return fmt.Errorf("close user store: %w", err)
	}
	return nil
}
