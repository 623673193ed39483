package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DeafMist/crm-spotlight/backend/internal/config"
	"github.com/DeafMist/crm-spotlight/backend/internal/deploy"
	"github.com/DeafMist/crm-spotlight/backend/internal/elasticsearch"
	"github.com/DeafMist/crm-spotlight/backend/internal/ingest"
	"github.com/DeafMist/crm-spotlight/backend/internal/models"
)

type newsStore interface {
	FetchNews(ctx context.Context) []models.NewsItem
	FindNews(ctx context.Context, id string) (models.NewsItem, bool)
	FetchDeployments(ctx context.Context) []models.DeploymentRecord
	CheckAvailability(ctx context.Context) bool
}

type refresher interface {
	Refresh(ctx context.Context) (ingest.Result, error)
}

type insighter interface {
	For(ctx context.Context, item models.NewsItem) string
}

type deployer interface {
	Run(ctx context.Context, deployedBy, commit string) (models.DeploymentRecord, error)
}

type newsSearcher interface {
	SearchNews(ctx context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error)
}

type server struct {
	log     *slog.Logger
	cfg     *config.API
	store   newsStore
	refresh refresher
	insight insighter
	deploy  deployer
	search  newsSearcher
}

type errorResponse struct {
	Error string `json:"error"`
}

type newsResponse struct {
	Total int               `json:"total"`
	Items []models.NewsItem `json:"items"`
}

type refreshResponse struct {
	Fetched int               `json:"fetched"`
	Valid   int               `json:"valid"`
	Added   int               `json:"added"`
	Items   []models.NewsItem `json:"items"`
}

type insightResponse struct {
	ID      string `json:"id"`
	Insight string `json:"insight"`
}

type deployRequest struct {
	DeployedBy string `json:"deployedBy"`
	Commit     string `json:"commit"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Route("/news", func(r chi.Router) {
		r.Get("/", s.handleListNews)
		r.Get("/search", s.handleSearch)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/{id}/insight", s.handleInsight)
	})
	r.Get("/deployments", s.handleListDeployments)
	r.Post("/deployments", s.handleDeploy)
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if !s.store.CheckAvailability(ctx) {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleListNews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items := filterNews(s.store.FetchNews(r.Context()),
		strings.TrimSpace(q.Get("category")),
		strings.TrimSpace(q.Get("source")),
		strings.TrimSpace(q.Get("q")),
	)
	writeJSON(w, http.StatusOK, newsResponse{Total: len(items), Items: items})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.search == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "search index not configured"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	params := elasticsearch.SearchParams{
		Query:    strings.TrimSpace(q.Get("q")),
		Category: strings.TrimSpace(q.Get("category")),
		Source:   strings.TrimSpace(q.Get("source")),
		From:     clampInt(q.Get("from"), 0, 10_000),
		Size:     clampInt(q.Get("size"), s.cfg.DefaultPage, s.cfg.MaxPage),
		Sort:     strings.TrimSpace(q.Get("sort")),
		Start:    parseTime(q.Get("start")),
		End:      parseTime(q.Get("end")),
	}

	result, err := s.search.SearchNews(ctx, params)
	if err != nil {
		s.log.Warn("search news", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresh == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "generator not configured"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Generator.Timeout)
	defer cancel()

	res, err := s.refresh.Refresh(ctx)
	switch {
	case errors.Is(err, ingest.ErrNoValidItems):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	case errors.Is(err, ingest.ErrStoreUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	added := res.Added
	if added == nil {
		added = []models.NewsItem{}
	}
	writeJSON(w, http.StatusOK, refreshResponse{Fetched: res.Fetched, Valid: res.Valid, Added: len(added), Items: added})
}

func (s *server) handleInsight(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	item, ok := s.store.FindNews(r.Context(), id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "news item not found"})
		return
	}
	if item.Insight == "" && s.insight == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "generator not configured"})
		return
	}

	text := item.Insight
	if text == "" {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Generator.Timeout)
		defer cancel()
		text = s.insight.For(ctx, item)
	}
	writeJSON(w, http.StatusOK, insightResponse{ID: id, Insight: text})
}

func (s *server) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.FetchDeployments(r.Context()))
}

func (s *server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	// an empty body, chunked or not, means all defaults
	var req deployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	rec, err := s.deploy.Run(r.Context(), req.DeployedBy, req.Commit)
	if errors.Is(err, deploy.ErrNotRecorded) {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func filterNews(items []models.NewsItem, category, source, query string) []models.NewsItem {
	if category == "" && source == "" && query == "" {
		return items
	}
	query = strings.ToLower(query)

	out := make([]models.NewsItem, 0, len(items))
	for _, it := range items {
		if category != "" && !strings.EqualFold(it.Category, category) {
			continue
		}
		if source != "" && !strings.EqualFold(it.Source, source) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(it.Title), query) &&
			!strings.Contains(strings.ToLower(it.Summary), query) &&
			!strings.Contains(strings.ToLower(it.Source), query) {
			continue
		}
		out = append(out, it)
	}
	return out
}

func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts
	}
	return nil
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
