package main

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/at-ishikawa/naverdict/internal/cache"
	"github.com/at-ishikawa/naverdict/internal/config"
	"github.com/at-ishikawa/naverdict/internal/database"
	"github.com/at-ishikawa/naverdict/internal/dictionary"
	"github.com/at-ishikawa/naverdict/internal/ratelimit"
	"github.com/at-ishikawa/naverdict/internal/search"
	"github.com/at-ishikawa/naverdict/internal/upstream"
)

// DictType is a pflag.Value for the dictionary variant flag.
type DictType string

var (
	_            pflag.Value = (*DictType)(nil)
	allDictTypes             = []dictionary.Variant{
		dictionary.VariantKoreanChinese,
		dictionary.VariantKoreanEnglish,
	}
)

func (d *DictType) Set(val string) error {
	variant, err := dictionary.ParseVariant(val)
	if err != nil {
		return err
	}
	*d = DictType(variant)
	return nil
}

func (d DictType) String() string {
	return string(d)
}

func (d *DictType) Type() string {
	return "DictType"
}

func loadConfig() (*config.Config, error) {
	loader, err := config.NewConfigLoader(configFile)
	if err != nil {
		return nil, fmt.Errorf("config.NewConfigLoader > %w", err)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("loader.Load > %w", err)
	}
	return cfg, nil
}

// newService wires a Service from the config. The returned closer releases
// the HTTP client and, when configured, the database connection.
func newService(cfg *config.Config) (*search.Service, func() error, error) {
	client := dictionary.NewClient(cfg.Upstream.BaseURL, time.Duration(cfg.Upstream.TimeoutSeconds)*time.Second)
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

	closers := []func() error{client.Close}
	var repository dictionary.Repository
	if cfg.Database.Enabled() {
		db, err := database.Open(cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("database.Open > %w", err)
		}
		closers = append(closers, db.Close)
		repository = dictionary.NewDBRepository(db)
	}

	service := search.NewService(orchestrator, responseCache, limiter, search.NewMetrics(), repository, search.Config{
		NegativeTTL:      time.Duration(cfg.Cache.NegativeTTLSeconds) * time.Second,
		BatchMaxWords:    cfg.Batch.MaxWords,
		BatchConcurrency: cfg.Batch.Concurrency,
		UpstreamTimeout:  time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		UpstreamBaseURL:  cfg.Upstream.BaseURL,
	})

	closer := func() error {
		var firstErr error
		for _, close := range closers {
			if err := close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
	return service, closer, nil
}
