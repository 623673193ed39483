// Package ingest turns generator answers into validated, timestamped news items and merges
// them into the store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/DeafMist/crm-spotlight/backend/internal/generator"
	"github.com/DeafMist/crm-spotlight/backend/internal/models"
)

var (
	// ErrNoValidItems is returned when a refresh produced no record with a usable URL.
	ErrNoValidItems = errors.New("no valid news items returned; try again later")
	// ErrStoreUnavailable is returned when the refreshed items could not be persisted.
	ErrStoreUnavailable = errors.New("news store unavailable")
)

// EmptyPolicy decides what an empty refresh means.
type EmptyPolicy string

const (
	EmptyAsError  EmptyPolicy = "error"
	EmptyAsNoop   EmptyPolicy = "ignore"
	defaultBucket             = 6
)

// Searcher is the generator call the service depends on.
type Searcher interface {
	Search(ctx context.Context, start, end time.Time) (generator.Response, error)
}

// Merger persists items and returns the ones that were new.
type Merger interface {
	MergeNews(ctx context.Context, items []models.NewsItem) ([]models.NewsItem, error)
}

// Publisher forwards newly stored items downstream.
type Publisher interface {
	PublishNews(ctx context.Context, items []models.NewsItem) error
}

// Options tune a Service.
type Options struct {
	Lookback    time.Duration
	Buckets     int
	EmptyPolicy EmptyPolicy
	Publisher   Publisher
	Logger      *slog.Logger
	Now         func() time.Time
}

// Result describes one refresh.
type Result struct {
	Fetched int               `json:"fetched"`
	Valid   int               `json:"valid"`
	Added   []models.NewsItem `json:"items"`
}

// Service runs the refresh pipeline: search, normalize, hydrate, sort, merge, publish.
type Service struct {
	gen   Searcher
	store Merger
	opts  Options
	log   *slog.Logger
}

// NewService wires a refresh pipeline.
func NewService(gen Searcher, store Merger, opts Options) *Service {
	if opts.Lookback <= 0 {
		opts.Lookback = 72 * time.Hour
	}
	if opts.Buckets <= 0 {
		opts.Buckets = defaultBucket
	}
	if opts.EmptyPolicy == "" {
		opts.EmptyPolicy = EmptyAsError
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{gen: gen, store: store, opts: opts, log: log}
}

// Refresh asks the generator for news in the lookback window and stores the new items.
// A generator failure counts as an empty answer.
func (s *Service) Refresh(ctx context.Context) (Result, error) {
	now := s.opts.Now().UTC()
	start := now.Add(-s.opts.Lookback)

	resp, err := s.gen.Search(ctx, start, now)
	if err != nil {
		s.log.Warn("generator search failed", slog.Any("err", err))
		resp = generator.Response{}
	}

	raw := ParseItems(resp.Text)
	items := Normalize(raw, resp.GroundingURLs, now)
	result := Result{Fetched: len(raw), Valid: len(items)}

	s.log.Info("normalized generator answer",
		slog.Int("fetched", len(raw)),
		slog.Int("valid", len(items)),
		slog.Int("grounding_urls", len(resp.GroundingURLs)),
	)

	if len(items) == 0 {
		if s.opts.EmptyPolicy == EmptyAsNoop {
			return result, nil
		}
		return result, ErrNoValidItems
	}

	Hydrate(items, Buckets(start, now, s.opts.Buckets))
	SortByRecency(items)

	added, err := s.store.MergeNews(ctx, items)
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	result.Added = added

	if len(added) > 0 && s.opts.Publisher != nil {
		if err := s.opts.Publisher.PublishNews(ctx, added); err != nil {
			s.log.Warn("publish ingested news", slog.Any("err", err), slog.Int("count", len(added)))
		}
	}

	s.log.Info("refresh completed", slog.Int("added", len(added)))
	return result, nil
}
