package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/experiment-engine/internal/api"
	"github.com/ignite/experiment-engine/internal/config"
	"github.com/ignite/experiment-engine/internal/identity"
	"github.com/ignite/experiment-engine/internal/pkg/distlock"
	"github.com/ignite/experiment-engine/internal/pkg/logger"
	"github.com/ignite/experiment-engine/internal/repository/memory"
	"github.com/ignite/experiment-engine/internal/repository/redisrepo"
	"github.com/ignite/experiment-engine/internal/service/experiment"
	"github.com/ignite/experiment-engine/internal/worker"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		logger.Error("config load failed", "path", configPath, "error", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactSubjects(cfg.Logging.RedactSubjects)

	// Durable store: Redis when configured and reachable, otherwise an
	// in-memory fallback so local development works without infrastructure.
	var repo experiment.Repository
	var cache experiment.AnalysisCache
	var redisClient *redis.Client

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.URL})
		} else {
			redisClient = redis.NewClient(opts)
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err = redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn("redis connection failed, falling back to in-memory store", "url", cfg.Redis.URL, "error", err)
			redisClient.Close()
			redisClient = nil
		}
	}

	if redisClient != nil {
		r := redisrepo.New(redisClient, cfg.Redis.KeyPrefix)
		repo, cache = r, r
		logger.Info("redis store connected", "prefix", cfg.Redis.KeyPrefix)
	} else {
		m := memory.New()
		repo, cache = m, m
		logger.Warn("using in-memory store; experiments will not survive a restart")
	}

	var resolver experiment.SubjectResolver
	if cfg.Identity.BaseURL != "" {
		resolver = identity.New(cfg.Identity.BaseURL, cfg.Identity.MaxRetries)
		logger.Info("identity resolver configured", "base_url", cfg.Identity.BaseURL)
	}

	svc := experiment.NewService(repo, resolver,
		experiment.WithAnalysisCache(cache, time.Duration(cfg.Engine.AnalysisCacheTTLSec)*time.Second),
	)

	var sweeper *worker.CompletionWorker
	if cfg.Engine.SweepEnabled {
		var lock worker.Locker
		if redisClient != nil {
			lock = distlock.New(redisClient, "completion-sweep", time.Duration(cfg.Engine.SweepLockTTLSec)*time.Second)
		}
		sweeper = worker.New(svc, lock, time.Duration(cfg.Engine.SweepIntervalSec)*time.Second)
		sweeper.Start()
	}

	server := api.NewServer(cfg.Server, api.NewHandlers(svc))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", "error", err)
		}
	}

	if sweeper != nil {
		sweeper.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	if redisClient != nil {
		redisClient.Close()
	}
	logger.Info("shutdown complete")
}
