// Package events carries newly ingested news items over Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/crm-spotlight/backend/internal/models"
)

// NewsIngested is the value of the "type" header on published news messages.
const NewsIngested = "news.ingested"

// MessageWriter is the part of kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes NewsItems as JSON messages keyed by item id.
type Publisher struct {
	w   MessageWriter
	log *slog.Logger
}

// NewPublisher creates a Kafka-backed publisher for topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            3,
		AllowAutoTopicCreation: true,
	}
	return NewPublisherWithWriter(w, logger)
}

// NewPublisherWithWriter wraps an existing writer.
func NewPublisherWithWriter(w MessageWriter, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Publisher{w: w, log: logger}
}

// PublishNews writes one message per item.
func (p *Publisher) PublishNews(ctx context.Context, items []models.NewsItem) error {
	if len(items) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(items))
	for _, item := range items {
		value, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal news %s: %w", item.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(item.ID),
			Value:   value,
			Headers: []kafka.Header{{Key: "type", Value: []byte(NewsIngested)}},
		})
	}

	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write news messages: %w", err)
	}
	p.log.Info("published ingested news", slog.Int("count", len(msgs)))
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}

// DecodeNews reads a published NewsItem back from a message.
func DecodeNews(msg kafka.Message) (models.NewsItem, error) {
	var item models.NewsItem
	if err := json.Unmarshal(msg.Value, &item); err != nil {
		return models.NewsItem{}, fmt.Errorf("decode news message: %w", err)
	}
	if strings.TrimSpace(item.ID) == "" {
		item.ID = string(msg.Key)
	}
	if strings.TrimSpace(item.ID) == "" {
		return models.NewsItem{}, fmt.Errorf("decode news message: missing id")
	}
	return item, nil
}
