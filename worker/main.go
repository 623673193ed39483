package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/crm-spotlight/backend/internal/cache"
	"github.com/DeafMist/crm-spotlight/backend/internal/config"
	"github.com/DeafMist/crm-spotlight/backend/internal/elasticsearch"
	"github.com/DeafMist/crm-spotlight/backend/internal/events"
	"github.com/DeafMist/crm-spotlight/backend/internal/logger"
	"github.com/DeafMist/crm-spotlight/backend/internal/models"
	"github.com/DeafMist/crm-spotlight/backend/internal/processing"
)

type newsIndexer interface {
	IndexNews(ctx context.Context, doc models.SearchDocument) error
}

type indexEnsurer interface {
	EnsureIndex(ctx context.Context) error
}

type dlqWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

const dlqAttempts = 5

func main() {
	log := logger.New("worker")
	if err := config.LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		log.Warn("load env file", slog.Any("err", err))
	}
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := ensureIndex(ctx, log, esClient, 10, 2*time.Second); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("shutdown signal received during startup")
			return
		}
		log.Error("elasticsearch unavailable after retries", slog.Any("err", err))
		os.Exit(1)
	}

	seen := cache.New(cfg.DedupeCapacity, cfg.DedupeTTL)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.KafkaConsumer,
		QueueCapacity:  cfg.BatchSize,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit only
	})
	defer reader.Close()

	dlqTopic := cfg.Topic + "_dlq"
	dlq := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.Brokers,
		Topic:       dlqTopic,
		MaxAttempts: 3,
	})
	defer dlq.Close()

	log.Info("worker started",
		slog.String("topic", cfg.Topic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", dlqTopic),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := processMessage(ctx, log, esClient, seen, cfg, msg); err != nil {
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)
			if !sendToDLQ(ctx, log, dlq, msg, err, time.Second) {
				if ctx.Err() != nil {
					return
				}
				// leave uncommitted so the message is redelivered on restart
				log.Error("DLQ write exhausted retries",
					slog.Int("partition", msg.Partition),
					slog.Int64("offset", msg.Offset),
				)
				continue
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

// processMessage indexes one ingested news item. Items already indexed within the dedupe
// window are skipped.
func processMessage(ctx context.Context, log *slog.Logger, indexer newsIndexer, seen *cache.Cache, cfg *config.Worker, msg kafka.Message) error {
	item, err := events.DecodeNews(msg)
	if err != nil {
		return err
	}
	if strings.TrimSpace(item.Title) == "" {
		return errors.New("news item has no title")
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = time.Now().UTC()
	}

	if seen.Contains(item.ID) {
		log.Debug("duplicate news", slog.String("id", item.ID))
		return nil
	}

	doc := processing.BuildSearchDocument(item, cfg.KeywordLimit, cfg.KeywordMinLength)
	if err := indexer.IndexNews(ctx, doc); err != nil {
		return err
	}

	seen.Put(item.ID, item.Title)
	log.Info("indexed news", slog.String("id", item.ID), slog.String("title", item.Title))
	return nil
}

// ensureIndex retries index creation with exponential backoff capped at 30s.
func ensureIndex(ctx context.Context, log *slog.Logger, es indexEnsurer, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = es.EnsureIndex(callCtx)
		cancel()
		if err == nil {
			log.Info("connected to elasticsearch")
			return nil
		}

		log.Warn("elasticsearch not ready, retrying",
			slog.Any("err", err),
			slog.Int("attempt", i+1),
			slog.Int("max_retries", attempts),
			slog.Duration("retry_in", delay),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(delay*2, 30*time.Second)
	}
	return err
}

// sendToDLQ copies a failed message to the dead letter topic, doubling the wait between
// attempts. It reports whether the write succeeded.
func sendToDLQ(ctx context.Context, log *slog.Logger, w dlqWriter, msg kafka.Message, cause error, backoff time.Duration) bool {
	headers := make([]kafka.Header, 0, len(msg.Headers)+4)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
		kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
		kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
	)
	dead := kafka.Message{Key: msg.Key, Value: msg.Value, Headers: headers}

	for attempt := range dlqAttempts {
		err := w.WriteMessages(ctx, dead)
		if err == nil {
			log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		}

		wait := backoff << uint(attempt)
		log.Warn("DLQ write failed, retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", wait),
		)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			log.Info("context canceled during DLQ retry")
			return false
		}
	}
	return false
}
