package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	apierrors "github.com/customeros/mailarchive/api/errors"
	"github.com/customeros/mailarchive/dto"
	mailarchive_errors "github.com/customeros/mailarchive/errors"
	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/enum"
	"github.com/customeros/mailarchive/internal/models"
	"github.com/customeros/mailarchive/internal/tracing"
	"github.com/customeros/mailarchive/internal/utils"
)

type EmailsHandler struct {
	emails   interfaces.EmailRepository
	logs     interfaces.IngestionLogRepository
	pipeline interfaces.IngestionPipeline
}

func NewEmailsHandler(emails interfaces.EmailRepository, logs interfaces.IngestionLogRepository, pipeline interfaces.IngestionPipeline) *EmailsHandler {
	return &EmailsHandler{emails: emails, logs: logs, pipeline: pipeline}
}

type EmailSearchResponse struct {
	Emails []*models.Email `json:"emails"`
	Total  int64           `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// Search ranks emails against q, filtered by accountId, classification and status.
func (h *EmailsHandler) Search() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "EmailsHandler.Search")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		search := dto.EmailSearch{
			Query:          c.Query("q"),
			AccountID:      c.Query("accountId"),
			Classification: enum.EmailClassification(c.Query("classification")),
			Status:         enum.EmailStatus(c.Query("status")),
		}
		if search.Classification != "" && !search.Classification.IsValid() {
			apierrors.Respond(c, errors.Wrapf(mailarchive_errors.ErrInvalidInput, "unknown classification %q", search.Classification))
			return
		}
		if search.Status != "" && !search.Status.IsValid() {
			apierrors.Respond(c, errors.Wrapf(mailarchive_errors.ErrInvalidInput, "unknown status %q", search.Status))
			return
		}
		var err error
		if search.Limit, err = intQuery(c, "limit", 0); err != nil {
			apierrors.Respond(c, err)
			return
		}
		if search.Offset, err = intQuery(c, "offset", 0); err != nil {
			apierrors.Respond(c, err)
			return
		}
		tracing.LogObjectAsJson(span, "search", search)

		emails, total, err := h.emails.Search(ctx, search)
		if err != nil {
			tracing.TraceErr(span, err)
			apierrors.Respond(c, err)
			return
		}
		if emails == nil {
			emails = []*models.Email{}
		}
		c.JSON(http.StatusOK, EmailSearchResponse{Emails: emails, Total: total, Limit: search.Limit, Offset: search.Offset})
	}
}

// Reprocess runs the pipeline for one email. Documents already stored are
// detected as duplicates, so repeating the call is safe.
func (h *EmailsHandler) Reprocess() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		ctx := utils.SetEmailIDInContext(c.Request.Context(), id)
		span, ctx := opentracing.StartSpanFromContext(ctx, "EmailsHandler.Reprocess")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		outcome, err := h.pipeline.ProcessEmail(ctx, id)
		if err != nil {
			tracing.TraceErr(span, err)
			apierrors.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, outcome)
	}
}

// Logs returns the audit trail of one email.
func (h *EmailsHandler) Logs() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "EmailsHandler.Logs")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		id := c.Param("id")
		email, err := h.emails.GetByID(ctx, id)
		if err != nil {
			tracing.TraceErr(span, err)
			apierrors.Respond(c, err)
			return
		}
		if email == nil {
			apierrors.Respond(c, errors.Wrapf(mailarchive_errors.ErrNotFound, "email %s", id))
			return
		}

		entries, err := h.logs.ListByEmail(ctx, id)
		if err != nil {
			tracing.TraceErr(span, err)
			apierrors.Respond(c, err)
			return
		}
		if entries == nil {
			entries = []*models.IngestionLog{}
		}
		c.JSON(http.StatusOK, gin.H{"email": email, "logs": entries})
	}
}
