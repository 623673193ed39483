package insight_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/crm-spotlight/backend/internal/cache"
	"github.com/DeafMist/crm-spotlight/backend/internal/insight"
	"github.com/DeafMist/crm-spotlight/backend/internal/models"
)

type stubGenerator struct {
	calls   atomic.Int32
	err     error
	release chan struct{}
}

func (g *stubGenerator) Insight(_ context.Context, item models.NewsItem) (string, error) {
	g.calls.Add(1)
	if g.release != nil {
		<-g.release
	}
	if g.err != nil {
		return "", g.err
	}
	return "why " + item.Title + " matters", nil
}

func TestForUsesStoredInsight(t *testing.T) {
	gen := &stubGenerator{}
	svc := insight.NewService(gen, cache.New(10, time.Hour), nil)

	got := svc.For(context.Background(), models.NewsItem{ID: "1", Insight: "already known"})
	require.Equal(t, "already known", got)
	require.Zero(t, gen.calls.Load())
}

func TestForCachesGeneratedInsight(t *testing.T) {
	gen := &stubGenerator{}
	svc := insight.NewService(gen, cache.New(10, time.Hour), nil)
	item := models.NewsItem{ID: "1", Title: "Zoho IPO"}

	require.Equal(t, "why Zoho IPO matters", svc.For(context.Background(), item))
	require.Equal(t, "why Zoho IPO matters", svc.For(context.Background(), item))
	require.Equal(t, int32(1), gen.calls.Load())
}

func TestForFailureIsNotCached(t *testing.T) {
	gen := &stubGenerator{err: errors.New("quota exceeded")}
	svc := insight.NewService(gen, cache.New(10, time.Hour), nil)
	item := models.NewsItem{ID: "1", Title: "x"}

	require.Equal(t, insight.Unavailable, svc.For(context.Background(), item))
	require.Equal(t, insight.Unavailable, svc.For(context.Background(), item))
	require.Equal(t, int32(2), gen.calls.Load())
}

func TestForCollapsesConcurrentFetches(t *testing.T) {
	gen := &stubGenerator{release: make(chan struct{})}
	svc := insight.NewService(gen, cache.New(10, time.Hour), nil)
	item := models.NewsItem{ID: "1", Title: "Pipedrive"}

	const callers = 5
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.For(context.Background(), item)
		}(i)
	}

	require.Eventually(t, func() bool { return gen.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(gen.release)
	wg.Wait()

	require.Equal(t, int32(1), gen.calls.Load())
	for _, r := range results {
		require.Equal(t, "why Pipedrive matters", r)
	}
}
