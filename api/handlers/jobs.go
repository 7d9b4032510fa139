package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	apierrors "github.com/customeros/mailarchive/api/errors"
	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/enum"
	"github.com/customeros/mailarchive/internal/tracing"
)

type JobsHandler struct {
	jobs interfaces.JobTracker
}

func NewJobsHandler(jobs interfaces.JobTracker) *JobsHandler {
	return &JobsHandler{jobs: jobs}
}

// StartRefreshAll answers 202 when a job was started and 200 when one was
// already running.
func (h *JobsHandler) StartRefreshAll() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "JobsHandler.StartRefreshAll")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		status, err := h.jobs.StartRefreshAll(ctx)
		if err != nil {
			tracing.TraceErr(span, err)
			apierrors.Respond(c, err)
			return
		}
		span.SetTag("job.id", status.JobID)

		if status.Status == enum.JobStatusAlreadyRunning {
			c.JSON(http.StatusOK, status)
			return
		}
		c.JSON(http.StatusAccepted, status)
	}
}

func (h *JobsHandler) RefreshAllStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, h.jobs.Status())
	}
}
