// Package jobs runs the refresh-all background job.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"

	"github.com/customeros/mailarchive/dto"
	mailarchive_errors "github.com/customeros/mailarchive/errors"
	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/enum"
	"github.com/customeros/mailarchive/internal/logger"
	"github.com/customeros/mailarchive/internal/models"
	"github.com/customeros/mailarchive/internal/tracing"
	"github.com/customeros/mailarchive/internal/utils"
)

type jobTracker struct {
	emails   interfaces.EmailRepository
	logs     interfaces.IngestionLogRepository
	pipeline interfaces.IngestionPipeline
	log      logger.Logger

	// guards every field below
	mu           sync.Mutex
	status       dto.JobStatus
	cancel       context.CancelFunc
	done         chan struct{}
	shuttingDown bool
}

func NewJobTracker(emails interfaces.EmailRepository, logs interfaces.IngestionLogRepository, pipeline interfaces.IngestionPipeline, log logger.Logger) interfaces.JobTracker {
	return &jobTracker{
		emails:   emails,
		logs:     logs,
		pipeline: pipeline,
		log:      log,
		status:   dto.JobStatus{Status: enum.JobStatusIdle, Errors: []dto.JobError{}},
	}
}

// StartRefreshAll returns at once. While a job runs it returns that job's
// progress with status already_running instead of starting another.
func (t *jobTracker) StartRefreshAll(ctx context.Context) (dto.JobStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.shuttingDown {
		return t.snapshot(), mailarchive_errors.ErrJobsShuttingDown
	}
	if t.status.Running {
		current := t.snapshot()
		current.Status = enum.JobStatusAlreadyRunning
		return current, nil
	}

	now := time.Now().UTC()
	t.status = dto.JobStatus{
		JobID:     uuid.NewString(),
		Status:    enum.JobStatusRunning,
		Errors:    []dto.JobError{},
		Running:   true,
		StartedAt: &now,
	}
	// the job outlives the request that started it
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	jobCtx = utils.SetJobIDInContext(jobCtx, t.status.JobID)
	t.cancel = cancel
	t.done = make(chan struct{})

	go t.run(jobCtx, t.done)

	return t.snapshot(), nil
}

func (t *jobTracker) Status() dto.JobStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot()
}

func (t *jobTracker) Wait(ctx context.Context) dto.JobStatus {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	return t.Status()
}

// Shutdown refuses new jobs and cancels the running one. The email being
// processed finishes its current document before the job stops.
func (t *jobTracker) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	t.shuttingDown = true
	if t.cancel != nil {
		t.cancel()
	}
	done := t.done
	t.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *jobTracker) run(ctx context.Context, done chan struct{}) {
	defer tracing.RecoverAndLogToJaeger(t.log)

	span, ctx := opentracing.StartSpanFromContext(ctx, "JobTracker.RefreshAll")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("job.id", utils.GetJobIDFromContext(ctx))

	defer t.finish(ctx, done)

	ids, err := t.emails.ListRefreshable(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		t.recordError("", "list emails: "+err.Error())
		return
	}

	t.mu.Lock()
	t.status.Total = len(ids)
	t.mu.Unlock()
	t.log.Info("Refresh-all started", zap.String("jobId", utils.GetJobIDFromContext(ctx)), zap.Int("total", len(ids)))

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		outcome, err := t.pipeline.ProcessEmail(ctx, id)
		if err != nil && ctx.Err() != nil {
			return
		}

		t.mu.Lock()
		t.status.Processed++
		switch {
		case err != nil:
			t.status.Errors = append(t.status.Errors, dto.JobError{EmailID: id, Message: err.Error()})
		case outcome != nil && outcome.Status == enum.EmailStatusError:
			t.status.Errors = append(t.status.Errors, dto.JobError{EmailID: id, Message: outcome.Error})
		}
		t.mu.Unlock()
	}
}

func (t *jobTracker) recordError(emailID, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Errors = append(t.status.Errors, dto.JobError{EmailID: emailID, Message: message})
}

func (t *jobTracker) finish(ctx context.Context, done chan struct{}) {
	t.mu.Lock()
	now := time.Now().UTC()
	t.status.Running = false
	t.status.Status = enum.JobStatusIdle
	t.status.FinishedAt = &now
	final := t.snapshot()
	t.cancel = nil
	close(done)
	t.mu.Unlock()

	entry := &models.IngestionLog{
		Action:  enum.LogActionRefreshAll,
		Status:  enum.LogStatusSuccess,
		Message: "Refresh-all finished",
		Details: models.JSONMap{
			"jobId":     final.JobID,
			"total":     final.Total,
			"processed": final.Processed,
			"errors":    len(final.Errors),
		},
	}
	if len(final.Errors) > 0 {
		entry.Status = enum.LogStatusWarning
	}
	if err := t.logs.Add(context.WithoutCancel(ctx), entry); err != nil {
		t.log.Warn("Failed to write ingestion log", zap.Error(err))
	}
	t.log.Info("Refresh-all finished", zap.String("jobId", final.JobID), zap.Int("processed", final.Processed), zap.Int("errors", len(final.Errors)))
}

// snapshot copies the status; callers hold mu.
func (t *jobTracker) snapshot() dto.JobStatus {
	s := t.status
	s.Errors = append([]dto.JobError{}, t.status.Errors...)
	return s
}
