package handlers

import (
	"mime"
	"net/http"
	"strconv"
	"strings"

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
)

type DocumentsHandler struct {
	documents interfaces.DocumentRepository
	store     interfaces.DocumentStore
	preview   interfaces.PreviewService
}

func NewDocumentsHandler(documents interfaces.DocumentRepository, store interfaces.DocumentStore, preview interfaces.PreviewService) *DocumentsHandler {
	return &DocumentsHandler{documents: documents, store: store, preview: preview}
}

type SearchResponse struct {
	Documents []*models.Document `json:"documents"`
	Total     int64              `json:"total"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
}

type VerifyResponse struct {
	DocumentID string `json:"documentId"`
	Verified   bool   `json:"verified"`
	Message    string `json:"message,omitempty"`
}

// Search filters documents by q, emailId, accountId, classification and category.
func (h *DocumentsHandler) Search() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DocumentsHandler.Search")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		search := dto.DocumentSearch{
			Query:          c.Query("q"),
			EmailID:        c.Query("emailId"),
			AccountID:      c.Query("accountId"),
			Classification: enum.DocumentLabel(c.Query("classification")),
			Category:       enum.DocumentCategory(c.Query("category")),
		}
		if search.Classification != "" && !search.Classification.IsValid() {
			apierrors.Respond(c, errors.Wrapf(mailarchive_errors.ErrInvalidInput, "unknown classification %q", search.Classification))
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

		documents, total, err := h.documents.Search(ctx, search)
		if err != nil {
			tracing.TraceErr(span, err)
			apierrors.Respond(c, err)
			return
		}
		if documents == nil {
			documents = []*models.Document{}
		}
		c.JSON(http.StatusOK, SearchResponse{Documents: documents, Total: total, Limit: search.Limit, Offset: search.Offset})
	}
}

func (h *DocumentsHandler) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DocumentsHandler.Get")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		document, err := h.lookup(c)
		if err != nil {
			tracing.TraceErr(span, err)
			apierrors.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, document)
	}
}

// Download streams the stored bytes, falling back to the object mirror when
// the local file is gone.
func (h *DocumentsHandler) Download() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DocumentsHandler.Download")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		document, err := h.lookup(c)
		if err != nil {
			tracing.TraceErr(span, err)
			apierrors.Respond(c, err)
			return
		}
		reader, err := h.store.Open(ctx, document)
		if err != nil {
			tracing.TraceErr(span, err)
			apierrors.Respond(c, err)
			return
		}
		defer reader.Close()

		contentType := document.MimeType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		name := document.StoredFilename
		if name == "" {
			name = document.OriginalFilename
		}
		headers := map[string]string{
			"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": name}),
		}
		c.DataFromReader(http.StatusOK, document.ByteSize, contentType, reader, headers)
	}
}

// Preview renders one page as PNG. Pages are one-based.
func (h *DocumentsHandler) Preview() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DocumentsHandler.Preview")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		page, err := intQuery(c, "page", 1)
		if err != nil {
			apierrors.Respond(c, err)
			return
		}
		span.SetTag("page", page)

		png, err := h.preview.RenderPage(ctx, c.Param("id"), page)
		if err != nil {
			tracing.TraceErr(span, err)
			apierrors.Respond(c, err)
			return
		}
		c.Data(http.StatusOK, "image/png", png)
	}
}

// Verify re-hashes the stored file. A mismatch or a missing file is a normal
// answer with verified false, not an error response.
func (h *DocumentsHandler) Verify() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DocumentsHandler.Verify")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		id := c.Param("id")
		err := h.store.Verify(ctx, id)
		var integrityErr *mailarchive_errors.IntegrityError
		switch {
		case err == nil:
			c.JSON(http.StatusOK, VerifyResponse{DocumentID: id, Verified: true})
		case errors.As(err, &integrityErr):
			c.JSON(http.StatusOK, VerifyResponse{DocumentID: id, Verified: false, Message: integrityErr.Error()})
		default:
			tracing.TraceErr(span, err)
			apierrors.Respond(c, err)
		}
	}
}

func (h *DocumentsHandler) lookup(c *gin.Context) (*models.Document, error) {
	id := c.Param("id")
	document, err := h.documents.GetByID(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if document == nil {
		return nil, errors.Wrapf(mailarchive_errors.ErrNotFound, "document %s", id)
	}
	return document, nil
}

func intQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, errors.Wrapf(mailarchive_errors.ErrInvalidInput, "%s must be a non-negative integer", name)
	}
	return value, nil
}
