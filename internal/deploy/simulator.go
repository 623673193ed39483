// Package deploy runs the simulated build-and-release pipeline shown on the deployment page.
package deploy

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DeafMist/crm-spotlight/backend/internal/models"
)

// ErrNotRecorded is returned when the finished run could not be persisted.
var ErrNotRecorded = errors.New("deployment record not saved")

// Step is one stage of the pipeline.
type Step struct {
	Name  string
	Delay time.Duration
	Lines []string
}

// History is the deployment collection the simulator reads and appends to.
type History interface {
	FetchDeployments(ctx context.Context) []models.DeploymentRecord
	SaveDeployment(ctx context.Context, record models.DeploymentRecord) bool
}

// DefaultSteps returns the canned pipeline with every step taking delay.
func DefaultSteps(delay time.Duration) []Step {
	return []Step{
		{Name: "checkout", Delay: delay, Lines: []string{"Received push webhook", "Cloning repository", "Checked out %s"}},
		{Name: "install", Delay: delay, Lines: []string{"Installing dependencies", "Dependencies installed"}},
		{Name: "build", Delay: delay, Lines: []string{"Compiling production bundle", "Build artifacts ready"}},
		{Name: "test", Delay: delay, Lines: []string{"Running test suite", "All checks passed"}},
		{Name: "release", Delay: delay, Lines: []string{"Applying database migrations", "Uploading artifacts", "Release %s is live"}},
	}
}

// Simulator produces deployment records.
type Simulator struct {
	history     History
	steps       []Step
	baseVersion string
	log         *slog.Logger
	now         func() time.Time
}

// NewSimulator builds a simulator writing to history. baseVersion is the prefix of every
// run's version, e.g. "1.4" gives "v1.4.7".
func NewSimulator(history History, steps []Step, baseVersion string, logger *slog.Logger) *Simulator {
	if baseVersion == "" {
		baseVersion = "1.0"
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Simulator{
		history:     history,
		steps:       steps,
		baseVersion: strings.TrimPrefix(baseVersion, "v"),
		log:         logger,
		now:         time.Now,
	}
}

// Run walks the pipeline and saves the resulting record. Cancelling ctx mid-run produces a
// failed record, which is still saved.
func (s *Simulator) Run(ctx context.Context, deployedBy, commit string) (models.DeploymentRecord, error) {
	deployedBy = strings.TrimSpace(deployedBy)
	if deployedBy == "" {
		deployedBy = "github-actions"
	}
	commit = strings.TrimSpace(commit)
	if commit == "" {
		commit = randomCommit()
	}

	run := len(s.history.FetchDeployments(ctx)) + 1
	rec := models.DeploymentRecord{
		ID:         uuid.NewString(),
		Version:    fmt.Sprintf("v%s.%d", s.baseVersion, run),
		Status:     models.DeploymentSuccess,
		DeployedBy: deployedBy,
		Commit:     commit,
	}

	log := s.log.With(slog.String("version", rec.Version), slog.String("commit", commit))
	log.Info("deployment started", slog.String("deployed_by", deployedBy))

	for _, step := range s.steps {
		if err := wait(ctx, step.Delay); err != nil {
			rec.Log = append(rec.Log, s.line("[%s] aborted: %v", step.Name, err))
			rec.Status = models.DeploymentFailed
			log.Warn("deployment aborted", slog.String("step", step.Name), slog.Any("err", err))
			break
		}
		for _, l := range step.Lines {
			rec.Log = append(rec.Log, s.line("[%s] %s", step.Name, s.expand(l, rec)))
		}
	}
	rec.Timestamp = s.now().UTC()

	// a cancelled run is still recorded, so the save must not inherit the cancellation
	if !s.history.SaveDeployment(context.WithoutCancel(ctx), rec) {
		return rec, ErrNotRecorded
	}

	log.Info("deployment finished", slog.String("status", string(rec.Status)))
	return rec, nil
}

func (s *Simulator) expand(line string, rec models.DeploymentRecord) string {
	switch {
	case strings.HasPrefix(line, "Checked out"):
		return fmt.Sprintf(line, rec.Commit)
	case strings.HasPrefix(line, "Release"):
		return fmt.Sprintf(line, rec.Version)
	default:
		return line
	}
}

func (s *Simulator) line(format string, args ...any) string {
	return s.now().UTC().Format("15:04:05") + " " + fmt.Sprintf(format, args...)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func randomCommit() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "0000000"
	}
	return hex.EncodeToString(b)[:7]
}
