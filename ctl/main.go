// Command spotlight is the operator CLI for the news store, refresh pipeline and deployment
// history.
//
// Usage:
//
//	spotlight news list [--category AI] [--json]
//	spotlight news refresh
//	spotlight deployments list
//	spotlight deploy --by alice --commit abc1234
//	spotlight health
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/DeafMist/crm-spotlight/backend/internal/bootstrap"
	"github.com/DeafMist/crm-spotlight/backend/internal/config"
	"github.com/DeafMist/crm-spotlight/backend/internal/deploy"
	"github.com/DeafMist/crm-spotlight/backend/internal/logger"
)

func main() {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	log := logger.NewWithWriter("ctl", os.Stderr, level, os.Getenv("LOG_FORMAT"))
	if err := config.LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		log.Warn("load env file", slog.Any("err", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	root, cleanup := newRootCmd(func(ctx context.Context) (*app, error) {
		return openApp(ctx, log)
	})
	err := root.ExecuteContext(ctx)
	cleanup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openApp(ctx context.Context, log *slog.Logger) (*app, error) {
	cfg, err := config.LoadCLI()
	if err != nil {
		return nil, err
	}

	st, closeStore, err := bootstrap.OpenStore(ctx, cfg.Store, log)
	if err != nil {
		return nil, err
	}

	a := &app{
		store:   st,
		deploy:  deploy.NewSimulator(st, deploy.DefaultSteps(cfg.StepDelay), cfg.BaseVersion, log),
		close:   closeStore,
		timeout: cfg.Generator.Timeout,
	}
	if cfg.APIKey != "" {
		gen, err := bootstrap.NewGenerator(ctx, cfg.Generator, log)
		if err != nil {
			closeStore()
			return nil, err
		}
		a.refresh = bootstrap.NewIngestService(gen, st, cfg.Refresh, nil, log)
	}
	return a, nil
}
