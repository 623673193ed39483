package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/crm-spotlight/backend/internal/bootstrap"
	"github.com/DeafMist/crm-spotlight/backend/internal/config"
	"github.com/DeafMist/crm-spotlight/backend/internal/ingest"
	"github.com/DeafMist/crm-spotlight/backend/internal/logger"
)

type refresher interface {
	Refresh(ctx context.Context) (ingest.Result, error)
}

type availability interface {
	CheckAvailability(ctx context.Context) bool
}

func main() {
	log := logger.New("refresher")
	if err := config.LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		log.Warn("load env file", slog.Any("err", err))
	}
	cfg, err := config.LoadRefresher()
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

	if err := waitForStore(ctx, log, st, 10, 2*time.Second); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("shutdown signal received during startup")
			return
		}
		log.Error("store unavailable after retries", slog.Any("err", err))
		os.Exit(1)
	}

	gen, err := bootstrap.NewGenerator(ctx, cfg.Generator, log)
	if err != nil {
		log.Error("init generator", slog.Any("err", err))
		os.Exit(1)
	}
	pub := bootstrap.OpenPublisher(cfg.Kafka, log)
	if pub != nil {
		defer pub.Close()
	}
	svc := bootstrap.NewIngestService(gen, st, cfg.Refresh, pub, log)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	log.Info("refresh job running",
		slog.Duration("interval", cfg.Interval),
		slog.Duration("lookback", cfg.Lookback),
	)

	runOnce(ctx, log, svc, cfg.Generator.Timeout)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			runOnce(ctx, log, svc, cfg.Generator.Timeout)
		}
	}
}

var errStoreDown = errors.New("store did not become available")

// waitForStore polls the store with exponential backoff capped at 30s.
func waitForStore(ctx context.Context, log *slog.Logger, st availability, attempts int, delay time.Duration) error {
	for i := 0; i < attempts; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		ok := st.CheckAvailability(pingCtx)
		cancel()
		if ok {
			log.Info("store available")
			return nil
		}

		log.Warn("store unavailable, retrying",
			slog.Int("attempt", i+1),
			slog.Int("max_retries", attempts),
			slog.Duration("retry_in", delay),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
	}
	return errStoreDown
}

// runOnce performs a single refresh. Failures are logged and retried on the next tick.
func runOnce(ctx context.Context, log *slog.Logger, svc refresher, timeout time.Duration) {
	subCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := svc.Refresh(subCtx)
	switch {
	case errors.Is(err, ingest.ErrNoValidItems):
		log.Warn("refresh produced no valid items (will retry on next interval)")
	case err != nil:
		log.Warn("refresh failed (will retry on next interval)", slog.Any("err", err))
	case len(res.Added) > 0:
		log.Info("refresh completed",
			slog.Int("fetched", res.Fetched),
			slog.Int("added", len(res.Added)),
		)
	default:
		log.Debug("refresh completed, nothing new", slog.Int("fetched", res.Fetched))
	}
}
