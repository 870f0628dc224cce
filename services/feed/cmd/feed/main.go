package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/example/reelfeed/internal/platform/config"
	"github.com/example/reelfeed/internal/platform/db"
	"github.com/example/reelfeed/internal/platform/grpchealth"
	"github.com/example/reelfeed/internal/platform/httpserver"
	"github.com/example/reelfeed/internal/platform/logging"
	"github.com/example/reelfeed/internal/platform/natsconn"
	"github.com/example/reelfeed/internal/platform/run"
	"github.com/example/reelfeed/internal/platform/signing"
	feedconfig "github.com/example/reelfeed/services/feed/internal/config"
	"github.com/example/reelfeed/services/feed/internal/feed"
	"github.com/example/reelfeed/services/feed/internal/handlers"
	"github.com/example/reelfeed/services/feed/internal/media"
	"github.com/example/reelfeed/services/feed/internal/publisher"
	"github.com/example/reelfeed/services/feed/internal/store"
	"github.com/example/reelfeed/services/feed/internal/telegram"
)

func main() {
	app := &cli.App{
		Name:   "feed",
		Usage:  "telegram channel video feed: webhook ingestion, pagination and playback URLs",
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP and gRPC health servers (default)",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply pending schema migrations and exit",
				Action: migrate,
			},
		},
		ErrWriter: os.Stderr,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		run.Exit(1)
	}
}

func setup() (config.AppConfig, feedconfig.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.AppConfig{}, feedconfig.Config{}, nil, err
	}
	log, err := logging.NewWithFields(cfg.LogLevel, zap.String("service", cfg.ServiceName), zap.String("env", cfg.Env))
	if err != nil {
		return config.AppConfig{}, feedconfig.Config{}, nil, err
	}
	feedCfg, err := feedconfig.Load()
	if err != nil {
		log.Error("feed config", zap.Error(err))
		return config.AppConfig{}, feedconfig.Config{}, nil, err
	}
	return cfg, feedCfg, log, nil
}

func serve(c *cli.Context) error {
	cfg, feedCfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	st, closeStore := initStore(c.Context, log, cfg, feedCfg)
	if closeStore != nil {
		defer closeStore()
	}

	pub := initPublisher(log, cfg, feedCfg)

	breaker := telegram.NewBreaker("telegram-getfile", feedCfg.CBFailureThreshold, feedCfg.CBTimeout, log)
	files := telegram.NewFileClient(feedCfg.TelegramAPIBaseURL, feedCfg.TelegramBotToken,
		telegram.WithCircuitBreaker(breaker),
		telegram.WithLogger(log),
	)
	if !files.Configured() {
		log.Warn("TELEGRAM_BOT_TOKEN not set, /api/video-url will answer NOT_CONFIGURED")
	}
	if feedCfg.WebhookSecret == "" {
		log.Warn("WEBHOOK_SECRET_TOKEN not set, webhook accepts unauthenticated updates")
	}

	var (
		resolverOpts []media.Option
		signer       *signing.Signer
	)
	if feedCfg.SigningEnabled() {
		signer = signing.New(feedCfg.MediaSigningSecret)
		resolverOpts = append(resolverOpts, media.WithSigning(signer, feedCfg.PublicBaseURL, feedCfg.MediaURLTTL))
	}
	resolver := media.NewResolver(files, log, resolverOpts...)

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		Logger: log,
		ReadyFunc: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return st.Ping(ctx)
		},
	})
	r.Handle("/metrics", promhttp.Handler())

	webhook := handlers.NewWebhookHandler(feedCfg.WebhookSecret, feedCfg.ChannelID, log, st, pub)
	r.Route("/api", func(r chi.Router) {
		r.Post("/webhook/telegram", webhook.ServeHTTP)
		r.Get("/webhook/telegram", handlers.WebhookStatus)
		r.Get("/videos", handlers.NewVideosHandler(feed.NewPaginator(st), log).ServeHTTP)
		r.Get("/video-url", handlers.NewVideoURLHandler(resolver, log).ServeHTTP)
		if signer != nil {
			r.Get("/media/{token}", handlers.NewMediaProxyHandler(signer, files, log).ServeHTTP)
		}
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, Logger: log, Router: r})
	health := grpchealth.New(feedCfg.GRPCAddr, cfg.ServiceName, st.Ping, log)

	runner := run.New(log)
	code := runner.WithSignals(
		func(ctx context.Context) error {
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
			return srv.Start()
		},
		health.Run,
		pub.Run,
	)

	log.Info("exit", zap.Int("code", code))
	if code != 0 {
		return cli.Exit("", code)
	}
	return nil
}

func migrate(c *cli.Context) error {
	_, feedCfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if feedCfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required to migrate")
	}
	pool, err := db.Open(c.Context, db.Options{DSN: feedCfg.DatabaseURL, MaxConns: 2})
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer pool.Close()

	return db.Migrate(c.Context, pool, store.Migrations, store.MigrationsDir, log)
}

// initStore picks the video store.
// In production (APP_ENV=production) it requires a working Postgres and
// terminates the process otherwise; in development it falls back to memory.
func initStore(ctx context.Context, log *zap.Logger, cfg config.AppConfig, feedCfg feedconfig.Config) (store.VideoStore, func()) {
	if feedCfg.DatabaseURL == "" {
		if cfg.IsProduction() {
			fatal(log, "DATABASE_URL is required in production")
		}
		log.Warn("DATABASE_URL not set, videos are kept in memory (development only)")
		return store.NewMemory(), nil
	}

	pool, err := db.Open(ctx, db.Options{DSN: feedCfg.DatabaseURL, MaxConns: feedCfg.DBMaxConns})
	if err != nil {
		if cfg.IsProduction() {
			fatal(log, "Postgres is unreachable in production", zap.Error(err))
		}
		log.Warn("postgres unavailable, videos are kept in memory", zap.Error(err))
		return store.NewMemory(), nil
	}

	if feedCfg.RunMigrations {
		if err := db.Migrate(ctx, pool, store.Migrations, store.MigrationsDir, log); err != nil {
			pool.Close()
			fatal(log, "schema migration failed", zap.Error(err))
		}
	}

	log.Info("postgres connected for feed")
	return store.NewPostgres(pool), pool.Close
}

// initPublisher connects to NATS when configured. Production refuses to run
// without it; development degrades to the stub publisher.
func initPublisher(log *zap.Logger, cfg config.AppConfig, feedCfg feedconfig.Config) *publisher.Publisher {
	opts := natsconn.Options{URL: feedCfg.NATSURL, Name: cfg.ServiceName, Logger: log}
	if !opts.Enabled() {
		if cfg.IsProduction() {
			fatal(log, "NATS_URL is required in production")
		}
		pub, _ := publisher.New(nil, log)
		return pub
	}

	nc, err := natsconn.Connect(opts)
	if err == nil {
		var pub *publisher.Publisher
		if pub, err = publisher.New(nc, log); err == nil {
			return pub
		}
		nc.Close()
	}
	if cfg.IsProduction() {
		fatal(log, "NATS is required in production", zap.Error(err))
	}
	log.Warn("NATS unavailable, feed events will not be published", zap.Error(err))
	pub, _ := publisher.New(nil, log)
	return pub
}

func fatal(log *zap.Logger, msg string, fields ...zap.Field) {
	log.Error(msg, fields...)
	_ = log.Sync()
	os.Exit(1)
}
