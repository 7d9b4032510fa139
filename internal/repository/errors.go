package repository

import (
	"github.com/pkg/errors"

	mailarchive_errors "github.com/customeros/mailarchive/errors"
)

var (
	ErrAccountNotFound = errors.Wrap(mailarchive_errors.ErrNotFound, "account")
	ErrEmailNotFound   = errors.Wrap(mailarchive_errors.ErrNotFound, "email")
	ErrInvalidInput    = mailarchive_errors.ErrInvalidInput
)
