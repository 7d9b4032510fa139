package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailarchive/dto"
	mailarchive_errors "github.com/customeros/mailarchive/errors"
	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/enum"
	"github.com/customeros/mailarchive/internal/logger"
	"github.com/customeros/mailarchive/internal/models"
)

type fakeEmails struct {
	interfaces.EmailRepository
	ids []string
	err error
}

func (f *fakeEmails) ListRefreshable(context.Context) ([]string, error) {
	return f.ids, f.err
}

type fakeLogs struct {
	interfaces.IngestionLogRepository
	mu      sync.Mutex
	entries []*models.IngestionLog
}

func (f *fakeLogs) Add(_ context.Context, entry *models.IngestionLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

// gatedPipeline blocks every email until release is closed.
type gatedPipeline struct {
	release chan struct{}
	failing map[string]bool
	mu      sync.Mutex
	seen    []string
}

func (p *gatedPipeline) ProcessEmail(ctx context.Context, emailID string) (*dto.EmailOutcome, error) {
	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.mu.Lock()
	p.seen = append(p.seen, emailID)
	p.mu.Unlock()
	if p.failing[emailID] {
		return &dto.EmailOutcome{EmailID: emailID, Status: enum.EmailStatusError, Error: "broken attachment"}, nil
	}
	return &dto.EmailOutcome{EmailID: emailID, Status: enum.EmailStatusCompleted}, nil
}

func waitFor(t *testing.T, tracker interfaces.JobTracker) dto.JobStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status := tracker.Wait(ctx)
	require.False(t, status.Running, "job did not finish in time")
	return status
}

func TestStartRefreshAll_SingleJob(t *testing.T) {
	p := &gatedPipeline{release: make(chan struct{})}
	tracker := NewJobTracker(&fakeEmails{ids: []string{"e1", "e2", "e3"}}, &fakeLogs{}, p, logger.NewNopLogger())

	const callers = 10
	results := make([]dto.JobStatus, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status, err := tracker.StartRefreshAll(context.Background())
			assert.NoError(t, err)
			results[i] = status
		}(i)
	}
	wg.Wait()

	started := 0
	for _, r := range results {
		assert.True(t, r.Running)
		assert.Equal(t, results[0].JobID, r.JobID)
		if r.Status == enum.JobStatusRunning {
			started++
		} else {
			assert.Equal(t, enum.JobStatusAlreadyRunning, r.Status)
		}
	}
	assert.Equal(t, 1, started)

	close(p.release)
	final := waitFor(t, tracker)
	assert.Equal(t, 3, final.Total)
	assert.Equal(t, 3, final.Processed)
	assert.Len(t, p.seen, 3)
}

func TestTerminalStateIsKept(t *testing.T) {
	p := &gatedPipeline{failing: map[string]bool{"e2": true}}
	logs := &fakeLogs{}
	tracker := NewJobTracker(&fakeEmails{ids: []string{"e1", "e2"}}, logs, p, logger.NewNopLogger())

	first, err := tracker.StartRefreshAll(context.Background())
	require.NoError(t, err)
	waitFor(t, tracker)

	status := tracker.Status()
	assert.Equal(t, first.JobID, status.JobID)
	assert.Equal(t, enum.JobStatusIdle, status.Status)
	assert.False(t, status.Running)
	assert.Equal(t, status.Total, status.Processed)
	require.Len(t, status.Errors, 1)
	assert.Equal(t, dto.JobError{EmailID: "e2", Message: "broken attachment"}, status.Errors[0])
	assert.NotNil(t, status.FinishedAt)

	// a late poller still sees the same final counts
	assert.Equal(t, status, tracker.Status())

	require.Len(t, logs.entries, 1)
	assert.Equal(t, enum.LogActionRefreshAll, logs.entries[0].Action)
	assert.Equal(t, enum.LogStatusWarning, logs.entries[0].Status)

	second, err := tracker.StartRefreshAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, enum.JobStatusRunning, second.Status)
	assert.NotEqual(t, first.JobID, second.JobID)
	waitFor(t, tracker)
}

func TestStatusIsACopy(t *testing.T) {
	tracker := NewJobTracker(&fakeEmails{ids: []string{"e1"}}, &fakeLogs{}, &gatedPipeline{failing: map[string]bool{"e1": true}}, logger.NewNopLogger())
	_, err := tracker.StartRefreshAll(context.Background())
	require.NoError(t, err)
	status := waitFor(t, tracker)

	status.Errors[0].Message = "changed"
	assert.Equal(t, "broken attachment", tracker.Status().Errors[0].Message)
}

func TestListFailureEndsJob(t *testing.T) {
	tracker := NewJobTracker(&fakeEmails{err: errors.New("db down")}, &fakeLogs{}, &gatedPipeline{}, logger.NewNopLogger())
	_, err := tracker.StartRefreshAll(context.Background())
	require.NoError(t, err)

	status := waitFor(t, tracker)
	assert.Zero(t, status.Total)
	require.Len(t, status.Errors, 1)
	assert.Contains(t, status.Errors[0].Message, "db down")
}

func TestJobSurvivesCallerCancellation(t *testing.T) {
	tracker := NewJobTracker(&fakeEmails{ids: []string{"e1", "e2"}}, &fakeLogs{}, &gatedPipeline{}, logger.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	_, err := tracker.StartRefreshAll(ctx)
	require.NoError(t, err)
	cancel()

	status := waitFor(t, tracker)
	assert.Equal(t, 2, status.Processed)
}

func TestShutdown(t *testing.T) {
	p := &gatedPipeline{release: make(chan struct{})}
	tracker := NewJobTracker(&fakeEmails{ids: []string{"e1", "e2"}}, &fakeLogs{}, p, logger.NewNopLogger())
	_, err := tracker.StartRefreshAll(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tracker.Shutdown(ctx))

	status := tracker.Status()
	assert.False(t, status.Running)
	assert.Zero(t, status.Processed)

	_, err = tracker.StartRefreshAll(context.Background())
	assert.ErrorIs(t, err, mailarchive_errors.ErrJobsShuttingDown)
}

func TestIdleBeforeFirstRun(t *testing.T) {
	tracker := NewJobTracker(&fakeEmails{}, &fakeLogs{}, &gatedPipeline{}, logger.NewNopLogger())
	status := tracker.Status()
	assert.Equal(t, enum.JobStatusIdle, status.Status)
	assert.False(t, status.Running)
	assert.NotNil(t, status.Errors)
	assert.NoError(t, tracker.Shutdown(context.Background()))
}
