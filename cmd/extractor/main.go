// Package main wires together the article extractor service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/worknuggets/extractor/internal/api"
	"github.com/worknuggets/extractor/internal/archive"
	"github.com/worknuggets/extractor/internal/clock/system"
	"github.com/worknuggets/extractor/internal/config"
	"github.com/worknuggets/extractor/internal/events"
	"github.com/worknuggets/extractor/internal/extract"
	"github.com/worknuggets/extractor/internal/governor"
	"github.com/worknuggets/extractor/internal/logging"
	"github.com/worknuggets/extractor/internal/pipeline"
	"github.com/worknuggets/extractor/internal/scheduler"
	"github.com/worknuggets/extractor/internal/store"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()

	articles, err := buildArticleStore(ctx, cfg)
	if err != nil {
		logger.Fatal("article store init failed", zap.Error(err))
	}

	gov, govRun, err := buildGovernor(ctx, cfg, clock, logger)
	if err != nil {
		logger.Fatal("governor init failed", zap.Error(err))
	}
	if govRun != nil {
		go func() {
			if runErr := govRun(ctx); runErr != nil {
				logger.Error("governor stopped", zap.Error(runErr))
				stop()
			}
		}()
	}

	rules := extract.NewRuleTable(extract.RuleFile{})
	if cfg.Rules.Path != "" {
		rules, err = extract.LoadRuleTable(cfg.Rules.Path)
		if err != nil {
			logger.Fatal("rule table load failed", zap.Error(err))
		}
	}

	light := extract.NewHTTPExtractor(extract.HTTPExtractorConfig{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.HTTPTimeout(),
	}, logger.Named("http"))

	var heavy extract.HeavyExtractor
	if cfg.Browser.Enabled {
		heavy = extract.NewBrowserExtractor(extract.BrowserExtractorConfig{
			UserAgent:         cfg.Browser.UserAgent,
			NavigationTimeout: cfg.NavTimeout(),
			SettleDelay:       cfg.SettleDelay(),
		}, extract.NewBlockDetector(nil), logger.Named("browser"))
	}

	blobs, err := buildArchive(ctx, cfg)
	if err != nil {
		logger.Fatal("archive init failed", zap.Error(err))
	}

	publisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("publisher init failed", zap.Error(err))
	}

	pipe := pipeline.New(
		articles,
		rules,
		light,
		heavy,
		gov,
		blobs,
		publisher,
		clock,
		pipeline.Config{
			ReserveSeconds:   cfg.Governor.ReserveSeconds,
			MaxConcurrent:    cfg.Governor.MaxConcurrent,
			MaxDailySeconds:  cfg.Governor.MaxDailySeconds,
			QualityThreshold: cfg.Quality.Threshold,
			MinHeavyLength:   cfg.Quality.MinHeavyLength,
			EventsTopic:      cfg.Events.TopicName,
			ContentType:      cfg.Archive.ContentType,
		},
		logger.Named("pipeline"),
	)

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(pipe, cfg.SchedulerInterval(), logger.Named("scheduler"))
		go sched.Run(ctx)
	}

	apiServer := api.NewServer(pipe, gov, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func buildArticleStore(ctx context.Context, cfg config.Config) (extract.ArticleStore, error) {
	switch cfg.Store.Backend {
	case "postgres":
		return store.NewPostgresStore(ctx, store.PostgresConfig{
			DSN:             cfg.Store.DSN,
			MaxConns:        cfg.Store.MaxConns,
			MinConns:        cfg.Store.MinConns,
			MaxConnLifetime: time.Duration(cfg.Store.MaxConnLifetimeMin) * time.Minute,
			RetryFailed:     cfg.Store.RetryFailed,
		})
	case "memory", "":
		return store.NewMemoryStore(cfg.Store.RetryFailed), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// buildGovernor returns the quota governor and, for the embedded
// actor, a run function the caller must start.
func buildGovernor(ctx context.Context, cfg config.Config, clock extract.Clock, logger *zap.Logger) (extract.Governor, func(context.Context) error, error) {
	if cfg.Governor.Remote != "" {
		return governor.NewClient(cfg.Governor.Remote, 10*time.Second), nil, nil
	}

	var states governor.StateStore
	switch cfg.Governor.Backend {
	case "postgres":
		ps, err := governor.NewPostgresStateStore(ctx, governor.PostgresStateStoreConfig{
			DSN: cfg.Governor.DSN,
		})
		if err != nil {
			return nil, nil, err
		}
		states = ps
	case "memory", "":
		states = governor.NewMemoryStateStore()
	default:
		return nil, nil, fmt.Errorf("unknown governor backend %q", cfg.Governor.Backend)
	}

	actor := governor.New(states, clock, logger.Named("governor"))
	return actor, actor.Run, nil
}

func buildArchive(ctx context.Context, cfg config.Config) (extract.BlobStore, error) {
	switch cfg.Archive.Backend {
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		return archive.NewGCSStore(client, archive.GCSConfig{
			Bucket: cfg.Archive.GCSBucket,
			Prefix: cfg.Archive.Prefix,
		})
	case "local":
		return archive.NewLocalStore(archive.LocalConfig{BaseDir: cfg.Archive.LocalDir})
	case "memory":
		return archive.NewMemoryStore(), nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Archive.Backend)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (extract.Publisher, error) {
	switch cfg.Events.Backend {
	case "pubsub":
		client, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client: %w", err)
		}
		return events.NewPubSubPublisher(client.Topic(cfg.Events.TopicName)), nil
	case "memory":
		return events.NewMemoryPublisher(), nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Events.Backend)
	}
}
