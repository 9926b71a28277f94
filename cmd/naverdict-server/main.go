package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/at-ishikawa/naverdict/internal/bootstrap"
	"github.com/at-ishikawa/naverdict/internal/cache"
	"github.com/at-ishikawa/naverdict/internal/config"
	"github.com/at-ishikawa/naverdict/internal/database"
	"github.com/at-ishikawa/naverdict/internal/dictionary"
	"github.com/at-ishikawa/naverdict/internal/ratelimit"
	"github.com/at-ishikawa/naverdict/internal/search"
	"github.com/at-ishikawa/naverdict/internal/server"
	"github.com/at-ishikawa/naverdict/internal/upstream"
)

var configFile string

func main() {
	var debugMode bool
	rootCmd := &cobra.Command{
		Use:           "naverdict-server",
		Short:         "Naver dictionary proxy HTTP server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogger(debugMode)
			return run(cmd.Context())
		},
	}
	rootCmd.Flags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug mode")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	app := bootstrap.New()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loadConfig() > %w", err)
	}

	client := dictionary.NewClient(cfg.Upstream.BaseURL, time.Duration(cfg.Upstream.TimeoutSeconds)*time.Second)
	app.AddShutdownHook(func(ctx context.Context) error {
		return client.Close()
	})

	limiter := ratelimit.New(cfg.RateLimit.RequestsPerMinute)
	orchestrator := upstream.New(client, limiter, upstream.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Retry.BaseDelayMillis) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Retry.MaxDelayMillis) * time.Millisecond,
	})
	responseCache := cache.New(
		cfg.Cache.MaxSize,
		time.Duration(cfg.Cache.TTLSeconds)*time.Second,
		cache.KeyMode(cfg.Cache.KeyMode),
	)

	var repository dictionary.Repository
	if cfg.Database.Enabled() {
		db, err := database.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("database.Open > %w", err)
		}
		app.AddShutdownHook(func(ctx context.Context) error {
			return db.Close()
		})
		repository = dictionary.NewDBRepository(db)
	}

	service := search.NewService(orchestrator, responseCache, limiter, search.NewMetrics(), repository, search.Config{
		NegativeTTL:      time.Duration(cfg.Cache.NegativeTTLSeconds) * time.Second,
		BatchMaxWords:    cfg.Batch.MaxWords,
		BatchConcurrency: cfg.Batch.Concurrency,
		UpstreamTimeout:  time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		UpstreamBaseURL:  cfg.Upstream.BaseURL,
	})

	mux := http.NewServeMux()
	server.NewSearchHandler(service).Register(mux)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: server.CORSMiddleware(h2c.NewHandler(mux, &http2.Server{}), cfg.Server.CORS.AllowedOrigins),
	}
	app.AddShutdownHook(srv.Shutdown)

	return app.Run(ctx, func(ctx context.Context) error {
		slog.Default().Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
}

func loadConfig() (*config.Config, error) {
	loader, err := config.NewConfigLoader(configFile)
	if err != nil {
		return nil, fmt.Errorf("config.NewConfigLoader() > %w", err)
	}
	return loader.Load()
}

func setupLogger(debugMode bool) {
	logLevel := slog.LevelInfo
	if debugMode {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(
		slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		})),
	)
}
