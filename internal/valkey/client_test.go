package valkey_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/crm-spotlight/backend/internal/models"
	"github.com/DeafMist/crm-spotlight/backend/internal/store"
	"github.com/DeafMist/crm-spotlight/backend/internal/valkey"
)

// Runs against a live server when VALKEY_TEST_ADDR is set, e.g. "127.0.0.1:6379".
func liveKV(t *testing.T) *valkey.KV {
	t.Helper()
	addr := strings.TrimSpace(os.Getenv("VALKEY_TEST_ADDR"))
	if addr == "" {
		t.Skip("VALKEY_TEST_ADDR not set")
	}
	kv, err := valkey.New(context.Background(), valkey.Options{Addrs: []string{addr}}, nil)
	require.NoError(t, err)
	t.Cleanup(kv.Close)
	return kv
}

func TestNewRequiresAddress(t *testing.T) {
	_, err := valkey.New(context.Background(), valkey.Options{}, nil)
	require.Error(t, err)
}

func TestReadMissingKey(t *testing.T) {
	kv := liveKV(t)
	got, err := kv.Read(context.Background(), "crm_spotlight_test:missing:"+time.Now().Format(time.RFC3339Nano))
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStoreOverValkey(t *testing.T) {
	kv := liveKV(t)
	ns := "crm_spotlight_test_" + time.Now().Format("150405.000000")
	s := store.New(kv, ns, nil)
	ctx := context.Background()

	require.True(t, s.CheckAvailability(ctx))
	require.True(t, s.SaveNews(ctx, []models.NewsItem{{ID: "1", Title: "a", Timestamp: time.Now()}}))
	require.True(t, s.SaveNews(ctx, []models.NewsItem{{ID: "2", Title: "a", Timestamp: time.Now()}}))
	require.Len(t, s.FetchNews(ctx), 1)
}
