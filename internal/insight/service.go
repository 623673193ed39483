// Package insight fetches and caches analyst annotations for stored news items.
package insight

import (
	"context"
	"io"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/DeafMist/crm-spotlight/backend/internal/cache"
	"github.com/DeafMist/crm-spotlight/backend/internal/models"
)

// Unavailable is returned in place of an insight the generator could not produce.
const Unavailable = "Insight unavailable right now. Try again later."

// Generator produces an insight for one item.
type Generator interface {
	Insight(ctx context.Context, item models.NewsItem) (string, error)
}

// Service serves insights lazily: stored value first, then cache, then the generator.
type Service struct {
	gen   Generator
	cache *cache.Cache
	group singleflight.Group
	log   *slog.Logger
}

// NewService builds a Service over gen, caching answers in c.
func NewService(gen Generator, c *cache.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{gen: gen, cache: c, log: logger}
}

// For returns the insight for item. Concurrent calls for the same item share one generator
// request. Failures yield Unavailable and are not cached.
func (s *Service) For(ctx context.Context, item models.NewsItem) string {
	if item.Insight != "" {
		return item.Insight
	}
	if v, ok := s.cache.Get(item.ID); ok {
		return v
	}

	v, err, shared := s.group.Do(item.ID, func() (any, error) {
		text, err := s.gen.Insight(ctx, item)
		if err != nil {
			return "", err
		}
		s.cache.Put(item.ID, text)
		return text, nil
	})
	if err != nil {
		s.log.Warn("fetch insight", slog.String("id", item.ID), slog.Any("err", err))
		return Unavailable
	}

	s.log.Debug("insight fetched", slog.String("id", item.ID), slog.Bool("shared", shared))
	return v.(string)
}
