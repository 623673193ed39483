package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DeafMist/crm-spotlight/backend/internal/bootstrap"
	"github.com/DeafMist/crm-spotlight/backend/internal/cache"
	"github.com/DeafMist/crm-spotlight/backend/internal/config"
	"github.com/DeafMist/crm-spotlight/backend/internal/deploy"
	"github.com/DeafMist/crm-spotlight/backend/internal/elasticsearch"
	"github.com/DeafMist/crm-spotlight/backend/internal/insight"
	"github.com/DeafMist/crm-spotlight/backend/internal/logger"
)

func main() {
	log := logger.New("api")
	if err := config.LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		log.Warn("load env file", slog.Any("err", err))
	}
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	st, closeStore, err := bootstrap.OpenStore(ctx, cfg.Store, log)
	if err != nil {
		log.Error("open store", slog.Any("err", err))
		os.Exit(1)
	}
	defer closeStore()

	srv := &server{
		log:    log,
		cfg:    cfg,
		store:  st,
		deploy: deploy.NewSimulator(st, deploy.DefaultSteps(cfg.StepDelay), cfg.BaseVersion, log),
	}

	if cfg.APIKey != "" {
		gen, err := bootstrap.NewGenerator(ctx, cfg.Generator, log)
		if err != nil {
			log.Error("init generator", slog.Any("err", err))
			os.Exit(1)
		}
		pub := bootstrap.OpenPublisher(cfg.Kafka, log)
		if pub != nil {
			defer pub.Close()
		}
		srv.refresh = bootstrap.NewIngestService(gen, st, cfg.Refresh, pub, log)
		srv.insight = insight.NewService(gen, cache.New(cfg.InsightCacheSize, cfg.InsightCacheTTL), log)
	} else {
		log.Warn("GEMINI_API_KEY not set, refresh and insight endpoints disabled")
	}

	if cfg.ElasticsearchAddr != "" {
		esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
		if err != nil {
			log.Error("init elasticsearch", slog.Any("err", err))
			os.Exit(1)
		}
		srv.search = esClient
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// refresh waits on the generator
		WriteTimeout: cfg.Generator.Timeout + 15*time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped", slog.Any("err", err))
		os.Exit(1)
	}
}
