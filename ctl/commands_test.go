package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/crm-spotlight/backend/internal/deploy"
	"github.com/DeafMist/crm-spotlight/backend/internal/ingest"
	"github.com/DeafMist/crm-spotlight/backend/internal/logger"
	"github.com/DeafMist/crm-spotlight/backend/internal/models"
	"github.com/DeafMist/crm-spotlight/backend/internal/store"
)

type stubRefresher struct {
	res ingest.Result
	err error
}

func (s stubRefresher) Refresh(context.Context) (ingest.Result, error) { return s.res, s.err }

func seededStore(t *testing.T) *store.Store {
	t.Helper()
	st := store.New(store.NewMemoryKV(), "", logger.Discard())
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	require.True(t, st.SaveNews(context.Background(), []models.NewsItem{
		{ID: "a", Title: "Salesforce ships Agentforce 3", Category: "AI", Source: "Reuters", Timestamp: base},
		{ID: "b", Title: "HubSpot acquires startup", Category: "M&A", Source: "The Verge", Timestamp: base.Add(-time.Hour)},
	}))
	return st
}

func run(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	closed := false
	a.close = func() { closed = true }

	root, cleanup := newRootCmd(func(context.Context) (*app, error) { return a, nil })
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	cleanup()
	require.True(t, closed)
	return out.String(), err
}

func TestNewsListJSON(t *testing.T) {
	a := &app{store: seededStore(t)}

	out, err := run(t, a, "news", "list", "--json")
	require.NoError(t, err)

	var items []models.NewsItem
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 2)
	require.Equal(t, "a", items[0].ID)
}

func TestNewsListCategoryTable(t *testing.T) {
	a := &app{store: seededStore(t)}

	out, err := run(t, a, "news", "list", "--category", "m&a")
	require.NoError(t, err)
	require.Contains(t, out, "HubSpot acquires startup")
	require.NotContains(t, out, "Agentforce")
}

func TestNewsRefresh(t *testing.T) {
	a := &app{store: seededStore(t), timeout: time.Second}

	_, err := run(t, a, "news", "refresh")
	require.ErrorIs(t, err, errNoGenerator)

	a.refresh = stubRefresher{res: ingest.Result{Fetched: 4, Valid: 3, Added: []models.NewsItem{{ID: "c", Title: "Zoho update"}}}}
	out, err := run(t, a, "news", "refresh")
	require.NoError(t, err)
	require.Contains(t, out, "fetched 4, valid 3, added 1")
	require.Contains(t, out, "Zoho update")

	a.refresh = stubRefresher{err: ingest.ErrNoValidItems}
	_, err = run(t, a, "news", "refresh")
	require.ErrorIs(t, err, ingest.ErrNoValidItems)
}

func TestDeployAndList(t *testing.T) {
	st := seededStore(t)
	a := &app{
		store:  st,
		deploy: deploy.NewSimulator(st, deploy.DefaultSteps(0), "1.0", logger.Discard()),
	}

	out, err := run(t, a, "deploy", "--by", "alice", "--commit", "abc1234", "--json")
	require.NoError(t, err)

	var rec models.DeploymentRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	require.Equal(t, "v1.0.1", rec.Version)
	require.Equal(t, "alice", rec.DeployedBy)
	require.Equal(t, models.DeploymentSuccess, rec.Status)

	out, err = run(t, a, "deployments", "list")
	require.NoError(t, err)
	require.Contains(t, out, "v1.0.1")
	require.Contains(t, out, "abc1234")
}

type downStore struct{ *store.Store }

func (downStore) CheckAvailability(context.Context) bool { return false }

func TestHealth(t *testing.T) {
	out, err := run(t, &app{store: seededStore(t)}, "health")
	require.NoError(t, err)
	require.Contains(t, out, "store available")

	_, err = run(t, &app{store: downStore{seededStore(t)}}, "health")
	require.Error(t, err)
}
