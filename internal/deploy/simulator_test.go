package deploy_test

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/DeafMist/crm-spotlight/backend/internal/deploy"
	"github.com/DeafMist/crm-spotlight/backend/internal/models"
	"github.com/DeafMist/crm-spotlight/backend/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type rejectingHistory struct{}

func (rejectingHistory) FetchDeployments(context.Context) []models.DeploymentRecord { return nil }

func (rejectingHistory) SaveDeployment(context.Context, models.DeploymentRecord) bool { return false }

func TestRunRecordsSuccessfulDeployment(t *testing.T) {
	st := store.New(store.NewMemoryKV(), "test", nil)
	sim := deploy.NewSimulator(st, deploy.DefaultSteps(0), "v2.3", nil)
	ctx := context.Background()

	first, err := sim.Run(ctx, "maria", "abc1234")
	require.NoError(t, err)
	require.Equal(t, models.DeploymentSuccess, first.Status)
	require.Equal(t, "v2.3.1", first.Version)
	require.Equal(t, "maria", first.DeployedBy)
	require.Equal(t, "abc1234", first.Commit)
	require.NotEmpty(t, first.ID)
	require.False(t, first.Timestamp.IsZero())
	require.Len(t, first.Log, 12)
	require.True(t, strings.HasSuffix(first.Log[2], "[checkout] Checked out abc1234"))
	require.True(t, strings.HasSuffix(first.Log[len(first.Log)-1], "[release] Release v2.3.1 is live"))

	second, err := sim.Run(ctx, "", "")
	require.NoError(t, err)
	require.Equal(t, "v2.3.2", second.Version)
	require.Equal(t, "github-actions", second.DeployedBy)
	require.Regexp(t, regexp.MustCompile(`^[0-9a-f]{7}$`), second.Commit)

	history := st.FetchDeployments(ctx)
	require.Len(t, history, 2)
	require.NotEqual(t, history[0].ID, history[1].ID)
}

func TestRunCancelledIsRecordedAsFailed(t *testing.T) {
	st := store.New(store.NewMemoryKV(), "test", nil)
	sim := deploy.NewSimulator(st, deploy.DefaultSteps(time.Hour), "1.0", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	rec, err := sim.Run(ctx, "ci", "deadbee")
	require.NoError(t, err)
	require.Equal(t, models.DeploymentFailed, rec.Status)
	require.Len(t, rec.Log, 1)
	require.Contains(t, rec.Log[0], "[checkout] aborted")

	history := st.FetchDeployments(context.Background())
	require.Len(t, history, 1)
	require.Equal(t, models.DeploymentFailed, history[0].Status)
}

func TestRunReportsUnsavedRecord(t *testing.T) {
	sim := deploy.NewSimulator(rejectingHistory{}, deploy.DefaultSteps(0), "", nil)
	rec, err := sim.Run(context.Background(), "ci", "1234567")
	require.ErrorIs(t, err, deploy.ErrNotRecorded)
	require.Equal(t, "v1.0.1", rec.Version)
}
