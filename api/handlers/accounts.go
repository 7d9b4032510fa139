package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	apierrors "github.com/customeros/mailarchive/api/errors"
	mailarchive_errors "github.com/customeros/mailarchive/errors"
	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/models"
	"github.com/customeros/mailarchive/internal/tracing"
	"github.com/customeros/mailarchive/internal/utils"
)

type AccountsHandler struct {
	accounts    interfaces.AccountRepository
	poller      interfaces.Poller
	credentials interfaces.CredentialStore
}

func NewAccountsHandler(accounts interfaces.AccountRepository, poller interfaces.Poller, credentials interfaces.CredentialStore) *AccountsHandler {
	return &AccountsHandler{accounts: accounts, poller: poller, credentials: credentials}
}

type SetSecretRequest struct {
	Secret string `json:"secret" binding:"required"`
}

func (h *AccountsHandler) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AccountsHandler.List")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		accounts, err := h.accounts.List(ctx, c.Query("enabled") == "true")
		if err != nil {
			tracing.TraceErr(span, err)
			apierrors.Respond(c, err)
			return
		}
		if accounts == nil {
			accounts = []*models.Account{}
		}
		c.JSON(http.StatusOK, accounts)
	}
}

// Fetch polls the account now, outside its schedule.
func (h *AccountsHandler) Fetch() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		ctx := utils.SetAccountIDInContext(c.Request.Context(), id)
		span, ctx := opentracing.StartSpanFromContext(ctx, "AccountsHandler.Fetch")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)
		tracing.TagAccount(span, id)

		outcome, err := h.poller.PollAccount(ctx, id)
		if err != nil {
			tracing.TraceErr(span, err)
			apierrors.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, outcome)
	}
}

// SetSecret stores the account's login secret. The credential store must be
// unlocked.
func (h *AccountsHandler) SetSecret() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		ctx := utils.SetAccountIDInContext(c.Request.Context(), id)
		span, ctx := opentracing.StartSpanFromContext(ctx, "AccountsHandler.SetSecret")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)
		tracing.TagAccount(span, id)

		var request SetSecretRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			apierrors.Respond(c, errors.Wrap(mailarchive_errors.ErrInvalidInput, err.Error()))
			return
		}

		account, err := h.accounts.GetByID(ctx, id)
		if err != nil {
			tracing.TraceErr(span, err)
			apierrors.Respond(c, err)
			return
		}
		if account == nil {
			apierrors.Respond(c, errors.Wrapf(mailarchive_errors.ErrNotFound, "account %s", id))
			return
		}

		if err := h.credentials.SetSecret(ctx, id, request.Secret); err != nil {
			tracing.TraceErr(span, err)
			apierrors.Respond(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
