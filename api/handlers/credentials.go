package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	apierrors "github.com/customeros/mailarchive/api/errors"
	mailarchive_errors "github.com/customeros/mailarchive/errors"
	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/tracing"
)

type CredentialsHandler struct {
	credentials interfaces.CredentialStore
}

func NewCredentialsHandler(credentials interfaces.CredentialStore) *CredentialsHandler {
	return &CredentialsHandler{credentials: credentials}
}

type UnlockRequest struct {
	Password string `json:"password" binding:"required"`
}

type CredentialsState struct {
	Unlocked bool `json:"unlocked"`
}

func (h *CredentialsHandler) Unlock() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "CredentialsHandler.Unlock")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var request UnlockRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			apierrors.Respond(c, errors.Wrap(mailarchive_errors.ErrInvalidInput, err.Error()))
			return
		}
		if err := h.credentials.Unlock(ctx, request.Password); err != nil {
			tracing.TraceErr(span, err)
			apierrors.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, CredentialsState{Unlocked: true})
	}
}

func (h *CredentialsHandler) Lock() gin.HandlerFunc {
	return func(c *gin.Context) {
		h.credentials.Lock()
		c.JSON(http.StatusOK, CredentialsState{Unlocked: false})
	}
}
