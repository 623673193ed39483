// Package store keeps the news and deployment collections as JSON arrays in a key-value backend.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/DeafMist/crm-spotlight/backend/internal/models"
)

// errCorrupt marks a stored value that no longer decodes. Such a collection is treated as empty.
var errCorrupt = errors.New("corrupt collection")

// Collection names a persisted record collection.
type Collection string

const (
	News        Collection = "news"
	Deployments Collection = "deployments"
)

// Store is the durable collection store. Reads never fail: storage and decode faults are
// logged and degrade to an empty collection. Writes report success as a boolean.
type Store struct {
	kv        KV
	namespace string
	log       *slog.Logger

	mu    sync.Mutex
	locks map[Collection]*sync.Mutex
}

// New wraps kv. Keys are prefixed with namespace.
func New(kv KV, namespace string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = "crm_spotlight"
	}
	return &Store{
		kv:        kv,
		namespace: namespace,
		log:       logger,
		locks:     make(map[Collection]*sync.Mutex),
	}
}

// Key returns the backend key holding collection c.
func (s *Store) Key(c Collection) string {
	return s.namespace + ":" + string(c)
}

// FetchNews returns every stored news item, most recent first.
func (s *Store) FetchNews(ctx context.Context) []models.NewsItem {
	items, err := readCollection[models.NewsItem](ctx, s.kv, s.Key(News))
	if err != nil {
		s.log.Warn("fetch news", slog.Any("err", err))
		return []models.NewsItem{}
	}
	slices.SortStableFunc(items, func(a, b models.NewsItem) int {
		return newestFirst(a.Timestamp, b.Timestamp)
	})
	return items
}

// FetchDeployments returns the deployment history, most recent first.
func (s *Store) FetchDeployments(ctx context.Context) []models.DeploymentRecord {
	records, err := readCollection[models.DeploymentRecord](ctx, s.kv, s.Key(Deployments))
	if err != nil {
		s.log.Warn("fetch deployments", slog.Any("err", err))
		return []models.DeploymentRecord{}
	}
	slices.SortStableFunc(records, func(a, b models.DeploymentRecord) int {
		return newestFirst(a.Timestamp, b.Timestamp)
	})
	return records
}

// FindNews returns the stored item with the given id.
func (s *Store) FindNews(ctx context.Context, id string) (models.NewsItem, bool) {
	for _, item := range s.FetchNews(ctx) {
		if item.ID == id {
			return item, true
		}
	}
	return models.NewsItem{}, false
}

// SaveNews merges items into the news collection, dropping titles that are already stored.
func (s *Store) SaveNews(ctx context.Context, items []models.NewsItem) bool {
	if len(items) == 0 {
		return true
	}
	if _, err := s.MergeNews(ctx, items); err != nil {
		s.log.Error("save news", slog.Any("err", err))
		return false
	}
	return true
}

// MergeNews prepends the items whose title is not stored yet and returns them in input order.
// Nothing is written when every title is already present.
func (s *Store) MergeNews(ctx context.Context, items []models.NewsItem) ([]models.NewsItem, error) {
	if len(items) == 0 {
		return nil, nil
	}

	unlock := s.lock(News)
	defer unlock()

	key := s.Key(News)
	existing, err := readCollection[models.NewsItem](ctx, s.kv, key)
	if errors.Is(err, errCorrupt) {
		s.log.Warn("overwriting unreadable news collection", slog.Any("err", err))
		existing, err = []models.NewsItem{}, nil
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(existing)+len(items))
	for _, item := range existing {
		seen[item.Title] = struct{}{}
	}

	added := make([]models.NewsItem, 0, len(items))
	for _, item := range items {
		if _, dup := seen[item.Title]; dup {
			continue
		}
		seen[item.Title] = struct{}{}
		added = append(added, item)
	}
	if len(added) == 0 {
		s.log.Debug("no new news titles", slog.Int("incoming", len(items)))
		return nil, nil
	}

	merged := make([]models.NewsItem, 0, len(added)+len(existing))
	merged = append(merged, added...)
	merged = append(merged, existing...)
	if err := writeCollection(ctx, s.kv, key, merged); err != nil {
		return nil, err
	}

	s.log.Info("saved news", slog.Int("added", len(added)), slog.Int("total", len(merged)))
	return added, nil
}

// SaveDeployment prepends record to the deployment history.
func (s *Store) SaveDeployment(ctx context.Context, record models.DeploymentRecord) bool {
	unlock := s.lock(Deployments)
	defer unlock()

	key := s.Key(Deployments)
	existing, err := readCollection[models.DeploymentRecord](ctx, s.kv, key)
	if errors.Is(err, errCorrupt) {
		s.log.Warn("overwriting unreadable deployment collection", slog.Any("err", err))
		existing, err = []models.DeploymentRecord{}, nil
	}
	if err != nil {
		s.log.Error("save deployment", slog.Any("err", err))
		return false
	}

	merged := make([]models.DeploymentRecord, 0, len(existing)+1)
	merged = append(merged, record)
	merged = append(merged, existing...)
	if err := writeCollection(ctx, s.kv, key, merged); err != nil {
		s.log.Error("save deployment", slog.Any("err", err))
		return false
	}

	s.log.Info("saved deployment", slog.String("id", record.ID), slog.String("version", record.Version))
	return true
}

// CheckAvailability reports whether the backend is reachable. Backends without a health
// check are always available.
func (s *Store) CheckAvailability(ctx context.Context) bool {
	p, ok := s.kv.(Pinger)
	if !ok {
		return true
	}
	if err := p.Ping(ctx); err != nil {
		s.log.Warn("store unavailable", slog.Any("err", err))
		return false
	}
	return true
}

func (s *Store) lock(c Collection) func() {
	s.mu.Lock()
	m, ok := s.locks[c]
	if !ok {
		m = &sync.Mutex{}
		s.locks[c] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func readCollection[T any](ctx context.Context, kv KV, key string) ([]T, error) {
	raw, err := kv.Read(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if len(raw) == 0 {
		return []T{}, nil
	}

	var out []T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w: %v", key, errCorrupt, err)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func writeCollection[T any](ctx context.Context, kv KV, key string, records []T) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := kv.Write(ctx, key, payload); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func newestFirst(a, b time.Time) int {
	return b.Compare(a)
}
