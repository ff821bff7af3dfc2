package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/l0p7/searchedge/internal/cache"
	"github.com/l0p7/searchedge/internal/config"
	"github.com/l0p7/searchedge/internal/logging"
	"github.com/l0p7/searchedge/internal/metrics"
	"github.com/l0p7/searchedge/internal/origin"
	"github.com/l0p7/searchedge/internal/proxy"
	"github.com/l0p7/searchedge/internal/ratelimit"
	"github.com/l0p7/searchedge/internal/server"
	"github.com/l0p7/searchedge/internal/store"
	"github.com/l0p7/searchedge/internal/upstream"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	var (
		configFile = flag.String("config", "", "path to server configuration file")
		envPrefix  = flag.String("env-prefix", "SEARCHEDGE", "environment variable prefix")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*envPrefix, *configFile)
	cfg, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Server.Logging)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}

	kv := buildStore(logger.With(slog.String("agent", "store_factory")), cfg.Server.Store)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := kv.Close(closeCtx); err != nil {
			logger.Error("store shutdown failed", slog.Any("error", err))
		}
	}()

	origins, err := origin.NewValidator(cfg.Server.CORS.AllowedOrigins)
	if err != nil {
		logger.Error("invalid origin allow-list", slog.Any("error", err))
		os.Exit(1)
	}

	client, err := buildUpstream(logger, cfg.Server.Upstream)
	if err != nil {
		logger.Error("unable to construct upstream client", slog.Any("error", err))
		os.Exit(1)
	}

	promRegistry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(promRegistry)

	pipe := proxy.NewPipeline(logger, proxy.Options{
		Origins:   origins,
		Limiter:   ratelimit.NewLimiter(kv, cfg.Server.RateLimit, logger, recorder),
		Cache:     cache.NewAdapter(kv, cfg.Server.Cache.KeyPrefix, logger, recorder),
		Upstream:  client,
		TTL:       cfg.Server.Cache.TTL,
		Lexicon:   config.DefaultLexicon(),
		Prefix:    cfg.Server.Cache.KeyPrefix,
		Metrics:   recorder,
		PingStore: kv.Ping,
	})
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := pipe.Close(drainCtx); err != nil {
			logger.Error("cache write drain incomplete", slog.Any("error", err))
		}
	}()

	if cfg.Server.Cache.LexiconFile != "" {
		watcher, err := config.WatchLexicon(ctx, cfg.Server.Cache.LexiconFile, func(lex config.Lexicon) {
			pipe.SetLexicon(lex)
			logger.Info("lexicon loaded", slog.String("file", cfg.Server.Cache.LexiconFile))
		}, func(err error) {
			logger.Error("lexicon watcher error", slog.Any("error", err))
		})
		if err != nil {
			logger.Error("lexicon watcher setup failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer watcher.Stop()
	}

	handler := server.NewPipelineHandler(pipe)
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	mux.Handle("/", handler)

	srv, err := server.New(cfg, logger, mux)
	if err != nil {
		logger.Error("unable to construct server", slog.Any("error", err))
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated unexpectedly", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}

func buildStore(logger *slog.Logger, cfg config.StoreConfig) store.Store {
	backend := strings.TrimSpace(strings.ToLower(cfg.Backend))
	switch backend {
	case "", "memory":
		logger.Info("using memory key-value store")
		return store.NewMemory()
	case "redis":
		kv, err := store.NewRedis(store.RedisConfig{
			Address:  cfg.Redis.Address,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TLS: store.RedisTLSConfig{
				Enabled: cfg.Redis.TLS.Enabled,
				CAFile:  cfg.Redis.TLS.CAFile,
			},
		})
		if err != nil {
			logger.Error("redis store initialization failed", slog.Any("error", err))
			logger.Info("falling back to memory store")
			return store.NewMemory()
		}
		logger.Info("using redis key-value store", slog.String("address", cfg.Redis.Address))
		return kv
	default:
		logger.Warn("unsupported store backend, defaulting to memory", slog.String("backend", cfg.Backend))
		return store.NewMemory()
	}
}

func buildUpstream(logger *slog.Logger, cfg config.UpstreamConfig) (upstream.Client, error) {
	switch strings.TrimSpace(strings.ToLower(cfg.Mode)) {
	case "", "fake":
		logger.Info("using fake upstream client")
		return upstream.NewFake(cfg.MaxResults), nil
	case "live":
		logger.Info("using live upstream client", slog.String("url", cfg.URL))
		return upstream.NewLive(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported upstream mode %q", cfg.Mode)
	}
}
