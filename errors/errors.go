package mailarchive_errors

import (
	"fmt"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/customeros/mailarchive/internal/enum"
)

var (
	ErrNotFound                  = errors.New("not found")
	ErrInvalidInput              = errors.New("invalid input parameters")
	ErrClassificationUnavailable = errors.New("classification model unavailable")
	ErrLockedCredentialStore     = errors.New("credential store is locked")
	ErrWrongMasterPassword       = errors.New("wrong master password")
	ErrCredentialNotFound        = errors.New("no credential stored for account")
	ErrDuplicateDocument         = errors.New("duplicate document for email")
	ErrUnresolvedPathToken       = errors.New("unresolved token in folder template")
	ErrPathEscapesBase           = errors.New("path escapes storage base directory")
	ErrJobsShuttingDown          = errors.New("job tracker is shutting down")
	ErrPageOutOfRange            = errors.New("page out of range")
	ErrPreviewUnsupported        = errors.New("preview not supported for this file type")
	ErrOutboundDisabled          = errors.New("outbound connections are disabled")
	ErrEngineUnavailable         = errors.New("engine not available")
)

// FetchError reports a failed remote retrieval. StatusCode is zero when the
// request never produced a response.
type FetchError struct {
	URL        string
	StatusCode int
	Reason     string
	Err        error
}

func (e *FetchError) Error() string {
	msg := "fetch " + e.URL
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func NewFetchError(url string, statusCode int, reason string, err error) *FetchError {
	return &FetchError{URL: url, StatusCode: statusCode, Reason: reason, Err: err}
}

// IntegrityError reports that bytes on disk do not hash to the recorded value.
type IntegrityError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

// ExtractionError reports that text could not be produced for an item.
type ExtractionError struct {
	Item   string
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	msg := "extract " + e.Item
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func NewExtractionError(item, reason string, err error) *ExtractionError {
	return &ExtractionError{Item: item, Reason: reason, Err: err}
}

// Kind maps an error to the kind reported in logs and API responses.
func Kind(err error) enum.ErrorKind {
	if err == nil {
		return enum.ErrorKindNone
	}
	var fetchErr *FetchError
	var integrityErr *IntegrityError
	var extractionErr *ExtractionError
	switch {
	case errors.As(err, &integrityErr):
		return enum.ErrorKindIntegrity
	case errors.As(err, &fetchErr):
		return enum.ErrorKindFetch
	case errors.As(err, &extractionErr):
		return enum.ErrorKindExtraction
	case errors.Is(err, ErrClassificationUnavailable):
		return enum.ErrorKindClassificationUnavailable
	case errors.Is(err, ErrLockedCredentialStore), errors.Is(err, ErrWrongMasterPassword):
		return enum.ErrorKindLockedCredentials
	case errors.Is(err, ErrDuplicateDocument), errors.Is(err, gorm.ErrDuplicatedKey):
		return enum.ErrorKindDuplicate
	case errors.Is(err, ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, ErrCredentialNotFound):
		return enum.ErrorKindNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnresolvedPathToken), errors.Is(err, ErrPathEscapesBase),
		errors.Is(err, ErrPageOutOfRange), errors.Is(err, ErrPreviewUnsupported):
		return enum.ErrorKindInvalid
	}
	return enum.ErrorKindInternal
}
