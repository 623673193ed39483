package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/crm-spotlight/backend/internal/ingest"
	"github.com/DeafMist/crm-spotlight/backend/internal/logger"
)

type flakyStore struct {
	downFor int
	checks  int
}

func (s *flakyStore) CheckAvailability(context.Context) bool {
	s.checks++
	return s.checks > s.downFor
}

type recordingRefresher struct {
	deadline bool
	err      error
	calls    int
}

func (r *recordingRefresher) Refresh(ctx context.Context) (ingest.Result, error) {
	r.calls++
	_, r.deadline = ctx.Deadline()
	return ingest.Result{}, r.err
}

func TestWaitForStoreRecovers(t *testing.T) {
	st := &flakyStore{downFor: 2}
	require.NoError(t, waitForStore(context.Background(), logger.Discard(), st, 5, time.Millisecond))
	require.Equal(t, 3, st.checks)
}

func TestWaitForStoreGivesUp(t *testing.T) {
	st := &flakyStore{downFor: 100}
	err := waitForStore(context.Background(), logger.Discard(), st, 3, time.Millisecond)
	require.ErrorIs(t, err, errStoreDown)
	require.Equal(t, 3, st.checks)
}

func TestWaitForStoreCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := waitForStore(ctx, logger.Discard(), &flakyStore{downFor: 100}, 3, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunOnceAppliesTimeout(t *testing.T) {
	r := &recordingRefresher{}
	runOnce(context.Background(), logger.Discard(), r, time.Minute)
	require.Equal(t, 1, r.calls)
	require.True(t, r.deadline)

	r.err = ingest.ErrNoValidItems
	runOnce(context.Background(), logger.Discard(), r, time.Minute)
	require.Equal(t, 2, r.calls)
}
