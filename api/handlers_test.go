package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/crm-spotlight/backend/internal/config"
	"github.com/DeafMist/crm-spotlight/backend/internal/deploy"
	"github.com/DeafMist/crm-spotlight/backend/internal/elasticsearch"
	"github.com/DeafMist/crm-spotlight/backend/internal/ingest"
	"github.com/DeafMist/crm-spotlight/backend/internal/logger"
	"github.com/DeafMist/crm-spotlight/backend/internal/models"
)

type stubStore struct {
	news        []models.NewsItem
	deployments []models.DeploymentRecord
	down        bool
}

func (s *stubStore) FetchNews(context.Context) []models.NewsItem { return s.news }

func (s *stubStore) FindNews(_ context.Context, id string) (models.NewsItem, bool) {
	for _, it := range s.news {
		if it.ID == id {
			return it, true
		}
	}
	return models.NewsItem{}, false
}

func (s *stubStore) FetchDeployments(context.Context) []models.DeploymentRecord {
	return s.deployments
}

func (s *stubStore) CheckAvailability(context.Context) bool { return !s.down }

type stubRefresher struct {
	res ingest.Result
	err error
}

func (s stubRefresher) Refresh(context.Context) (ingest.Result, error) { return s.res, s.err }

type stubInsight struct{ calls int }

func (s *stubInsight) For(_ context.Context, item models.NewsItem) string {
	s.calls++
	return "insight for " + item.Title
}

type stubDeployer struct {
	by, commit string
	err        error
}

func (s *stubDeployer) Run(_ context.Context, by, commit string) (models.DeploymentRecord, error) {
	s.by, s.commit = by, commit
	if s.err != nil {
		return models.DeploymentRecord{}, s.err
	}
	return models.DeploymentRecord{ID: "d1", Version: "v1.0.1", Status: models.DeploymentSuccess, DeployedBy: by, Commit: commit}, nil
}

type stubSearch struct{ params elasticsearch.SearchParams }

func (s *stubSearch) SearchNews(_ context.Context, p elasticsearch.SearchParams) (*elasticsearch.SearchResult, error) {
	s.params = p
	return &elasticsearch.SearchResult{Total: 0}, nil
}

func newTestServer(st *stubStore) *server {
	cfg := &config.API{DefaultPage: 20, MaxPage: 100}
	cfg.Generator.Timeout = time.Second
	return &server{
		log:    logger.Discard(),
		cfg:    cfg,
		store:  st,
		deploy: &stubDeployer{},
	}
}

func sampleNews() []models.NewsItem {
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	return []models.NewsItem{
		{ID: "a", Title: "Salesforce ships Agentforce 3", Source: "Reuters", Category: "AI", Timestamp: base},
		{ID: "b", Title: "HubSpot acquires startup", Source: "The Verge", Category: "M&A", Timestamp: base.Add(-time.Hour)},
		{ID: "c", Title: "Zoho pricing update", Summary: "Salesforce rival adjusts", Source: "TechCrunch", Category: "Pricing", Timestamp: base.Add(-2 * time.Hour), Insight: "cached"},
	}
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	st := &stubStore{}
	h := newTestServer(st).routes()

	rec := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	st.down = true
	rec = do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListNewsFilters(t *testing.T) {
	h := newTestServer(&stubStore{news: sampleNews()}).routes()

	tests := []struct {
		name  string
		query string
		ids   []string
	}{
		{name: "all", query: "", ids: []string{"a", "b", "c"}},
		{name: "category", query: "?category=ai", ids: []string{"a"}},
		{name: "source", query: "?source=the%20verge", ids: []string{"b"}},
		{name: "text matches title and summary", query: "?q=salesforce", ids: []string{"a", "c"}},
		{name: "no match", query: "?q=oracle", ids: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/news"+tt.query, "")
			require.Equal(t, http.StatusOK, rec.Code)

			var resp newsResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			ids := []string{}
			for _, it := range resp.Items {
				ids = append(ids, it.ID)
			}
			require.Equal(t, tt.ids, ids)
			require.Equal(t, len(tt.ids), resp.Total)
		})
	}
}

func TestRefreshStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "ok", code: http.StatusOK},
		{name: "no valid items", err: ingest.ErrNoValidItems, code: http.StatusBadGateway},
		{name: "store down", err: ingest.ErrStoreUnavailable, code: http.StatusServiceUnavailable},
		{name: "other", err: errors.New("boom"), code: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&stubStore{})
			srv.refresh = stubRefresher{
				res: ingest.Result{Fetched: 3, Valid: 2, Added: sampleNews()[:2]},
				err: tt.err,
			}
			rec := do(t, srv.routes(), http.MethodPost, "/news/refresh", "")
			require.Equal(t, tt.code, rec.Code)

			if tt.err == nil {
				var resp refreshResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				require.Equal(t, 2, resp.Added)
				require.Len(t, resp.Items, 2)
			}
		})
	}
}

func TestRefreshNothingAdded(t *testing.T) {
	srv := newTestServer(&stubStore{})
	srv.refresh = stubRefresher{res: ingest.Result{Fetched: 2, Valid: 2}}

	rec := do(t, srv.routes(), http.MethodPost, "/news/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"fetched":2,"valid":2,"added":0,"items":[]}`, rec.Body.String())
}

func TestRefreshWithoutGenerator(t *testing.T) {
	rec := do(t, newTestServer(&stubStore{}).routes(), http.MethodPost, "/news/refresh", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestInsight(t *testing.T) {
	srv := newTestServer(&stubStore{news: sampleNews()})
	gen := &stubInsight{}
	srv.insight = gen
	h := srv.routes()

	rec := do(t, h, http.MethodGet, "/news/a/insight", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"id":"a","insight":"insight for Salesforce ships Agentforce 3"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/news/c/insight", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"id":"c","insight":"cached"}`, rec.Body.String())
	require.Equal(t, 1, gen.calls)

	rec = do(t, h, http.MethodGet, "/news/missing/insight", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeploy(t *testing.T) {
	srv := newTestServer(&stubStore{})
	dep := &stubDeployer{}
	srv.deploy = dep
	h := srv.routes()

	rec := do(t, h, http.MethodPost, "/deployments", `{"deployedBy":"alice","commit":"abc1234"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "alice", dep.by)
	require.Equal(t, "abc1234", dep.commit)

	rec = do(t, h, http.MethodPost, "/deployments", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Empty(t, dep.by)

	rec = do(t, h, http.MethodPost, "/deployments", "{not json")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	dep.err = deploy.ErrNotRecorded
	rec = do(t, h, http.MethodPost, "/deployments", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDeployChunkedEmptyBody(t *testing.T) {
	srv := newTestServer(&stubStore{})
	dep := &stubDeployer{}
	srv.deploy = dep

	req := httptest.NewRequest(http.MethodPost, "/deployments", strings.NewReader(""))
	req.ContentLength = -1
	req.TransferEncoding = []string{"chunked"}
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Empty(t, dep.by)
	require.Empty(t, dep.commit)
}

func TestListDeployments(t *testing.T) {
	st := &stubStore{deployments: []models.DeploymentRecord{{ID: "d2"}, {ID: "d1"}}}
	rec := do(t, newTestServer(st).routes(), http.MethodGet, "/deployments", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []models.DeploymentRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	require.Equal(t, "d2", got[0].ID)
}

func TestSearchParams(t *testing.T) {
	srv := newTestServer(&stubStore{})
	rec := do(t, srv.routes(), http.MethodGet, "/news/search?q=crm", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	search := &stubSearch{}
	srv.search = search
	rec = do(t, srv.routes(), http.MethodGet, "/news/search?q=crm&size=500&category=AI&start=2025-06-01T00:00:00Z&end=bad", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "crm", search.params.Query)
	require.Equal(t, "AI", search.params.Category)
	require.Equal(t, 100, search.params.Size)
	require.NotNil(t, search.params.Start)
	require.Nil(t, search.params.End)
}

func TestClampInt(t *testing.T) {
	require.Equal(t, 20, clampInt("", 20, 100))
	require.Equal(t, 20, clampInt("x", 20, 100))
	require.Equal(t, 20, clampInt("-5", 20, 100))
	require.Equal(t, 50, clampInt("50", 20, 100))
	require.Equal(t, 100, clampInt("500", 20, 100))
}
