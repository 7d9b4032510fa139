// Package errors renders service errors as API responses.
package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	mailarchive_errors "github.com/customeros/mailarchive/errors"
	"github.com/customeros/mailarchive/internal/enum"
)

// ErrorBody is the payload of every failed request.
type ErrorBody struct {
	Kind    enum.ErrorKind `json:"kind"`
	Message string         `json:"message"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

var statusByKind = map[enum.ErrorKind]int{
	enum.ErrorKindNotFound:                  http.StatusNotFound,
	enum.ErrorKindInvalid:                   http.StatusBadRequest,
	enum.ErrorKindLockedCredentials:         http.StatusLocked,
	enum.ErrorKindDuplicate:                 http.StatusConflict,
	enum.ErrorKindIntegrity:                 http.StatusConflict,
	enum.ErrorKindFetch:                     http.StatusBadGateway,
	enum.ErrorKindExtraction:                http.StatusUnprocessableEntity,
	enum.ErrorKindClassificationUnavailable: http.StatusServiceUnavailable,
}

// Status picks the HTTP status for err.
func Status(err error) int {
	switch {
	case errors.Is(err, mailarchive_errors.ErrWrongMasterPassword):
		return http.StatusUnauthorized
	case errors.Is(err, mailarchive_errors.ErrJobsShuttingDown):
		return http.StatusServiceUnavailable
	}
	if status, ok := statusByKind[mailarchive_errors.Kind(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Respond aborts the request with the error's kind and message.
func Respond(c *gin.Context, err error) {
	RespondWithStatus(c, Status(err), mailarchive_errors.Kind(err), err.Error())
}

func RespondWithStatus(c *gin.Context, status int, kind enum.ErrorKind, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorBody{Kind: kind, Message: message}})
}
