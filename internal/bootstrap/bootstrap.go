// Package bootstrap builds the shared components of the binaries from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DeafMist/crm-spotlight/backend/internal/config"
	"github.com/DeafMist/crm-spotlight/backend/internal/dynamo"
	"github.com/DeafMist/crm-spotlight/backend/internal/events"
	"github.com/DeafMist/crm-spotlight/backend/internal/generator"
	"github.com/DeafMist/crm-spotlight/backend/internal/ingest"
	"github.com/DeafMist/crm-spotlight/backend/internal/sqlite"
	"github.com/DeafMist/crm-spotlight/backend/internal/store"
	"github.com/DeafMist/crm-spotlight/backend/internal/valkey"
)

// OpenStore opens the configured backend and wraps it in a Store. The returned func releases
// the backend.
func OpenStore(ctx context.Context, cfg config.Store, log *slog.Logger) (*store.Store, func(), error) {
	var (
		kv      store.KV
		closeFn = func() {}
	)

	switch cfg.Backend {
	case "memory":
		kv = store.NewMemoryKV()
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		kv = db
		closeFn = func() { _ = db.Close() }
	case "valkey":
		vk, err := valkey.New(ctx, valkey.Options{
			Addrs:    cfg.ValkeyAddrs,
			Password: cfg.ValkeyPassword,
			DB:       cfg.ValkeyDB,
			TLS:      cfg.ValkeyTLS,
		}, log)
		if err != nil {
			return nil, nil, fmt.Errorf("open valkey store: %w", err)
		}
		kv = vk
		closeFn = vk.Close
	case "dynamodb":
		dk, err := dynamo.New(ctx, cfg.DynamoTable, cfg.DynamoRegion, cfg.DynamoEndpoint)
		if err != nil {
			return nil, nil, fmt.Errorf("open dynamodb store: %w", err)
		}
		kv = dk
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}

	log.Info("store opened", slog.String("backend", cfg.Backend), slog.String("namespace", cfg.Namespace))
	return store.New(kv, cfg.Namespace, log), closeFn, nil
}

// OpenPublisher returns a Kafka publisher, or nil when no brokers are configured.
func OpenPublisher(cfg config.Kafka, log *slog.Logger) *events.Publisher {
	if len(cfg.Brokers) == 0 {
		return nil
	}
	log.Info("publishing ingested news", slog.String("topic", cfg.Topic), slog.Any("brokers", cfg.Brokers))
	return events.NewPublisher(cfg.Brokers, cfg.Topic, log)
}

// NewIngestService wires the refresh pipeline. pub may be nil.
func NewIngestService(gen ingest.Searcher, st ingest.Merger, cfg config.Refresh, pub *events.Publisher, log *slog.Logger) *ingest.Service {
	opts := ingest.Options{
		Lookback:    cfg.Lookback,
		Buckets:     cfg.Buckets,
		EmptyPolicy: ingest.EmptyPolicy(cfg.EmptyPolicy),
		Logger:      log,
	}
	// a nil *events.Publisher stored in the interface would not compare equal to nil
	if pub != nil {
		opts.Publisher = pub
	}
	return ingest.NewService(gen, st, opts)
}

// NewGenerator creates the Gemini client.
func NewGenerator(ctx context.Context, cfg config.Generator, log *slog.Logger) (*generator.Client, error) {
	return generator.New(ctx, cfg.APIKey, cfg.Model, log)
}
