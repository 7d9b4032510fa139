package documents

import (
	"context"
	"os"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/customeros/mailarchive/dto"
	mailarchive_errors "github.com/customeros/mailarchive/errors"
	"github.com/customeros/mailarchive/internal/enum"
	"github.com/customeros/mailarchive/internal/models"
	"github.com/customeros/mailarchive/internal/tracing"
	"github.com/customeros/mailarchive/services/hasher"
)

type verifyResult int

const (
	verifyOK verifyResult = iota
	verifyMismatch
	verifyMissing
	verifyUnchecked
)

// Verify re-hashes a stored file. A mismatch or a missing file flags the row
// unverified and returns an IntegrityError; the file is never removed.
func (s *documentStore) Verify(ctx context.Context, documentID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DocumentStore.Verify")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, documentID)

	document, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if document == nil {
		return errors.Wrap(mailarchive_errors.ErrNotFound, documentID)
	}
	_, err = s.verify(ctx, document)
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

func (s *documentStore) VerifyAll(ctx context.Context) (*dto.VerifyOutcome, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DocumentStore.VerifyAll")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	ids, err := s.documents.ListIDs(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	outcome := &dto.VerifyOutcome{Mismatched: []string{}, Missing: []string{}, Unchecked: []string{}}
	for _, id := range ids {
		if ctx.Err() != nil {
			return outcome, ctx.Err()
		}
		document, err := s.documents.GetByID(ctx, id)
		if err != nil {
			tracing.TraceErr(span, err)
			return outcome, err
		}
		if document == nil {
			continue
		}
		outcome.Checked++
		result, err := s.verify(ctx, document)
		switch result {
		case verifyOK:
			outcome.Verified++
		case verifyMismatch:
			outcome.Mismatched = append(outcome.Mismatched, id)
		case verifyMissing:
			outcome.Missing = append(outcome.Missing, id)
		case verifyUnchecked:
			outcome.Unchecked = append(outcome.Unchecked, id)
		}
		var integrityErr *mailarchive_errors.IntegrityError
		if err != nil && !errors.As(err, &integrityErr) {
			s.log.Warn("Integrity check failed to run", zap.String("documentId", id), zap.Error(err))
		}
	}
	span.LogKV("checked", outcome.Checked, "mismatched", len(outcome.Mismatched), "missing", len(outcome.Missing), "unchecked", len(outcome.Unchecked))
	return outcome, nil
}

func (s *documentStore) verify(ctx context.Context, document *models.Document) (verifyResult, error) {
	actual, err := hasher.HashFile(document.StoragePath)
	result := verifyOK
	switch {
	case err != nil && os.IsNotExist(err):
		result = verifyMissing
		actual = "missing"
	case err != nil:
		err = errors.Wrap(err, "hash stored file")
		s.logUnchecked(ctx, document, err)
		return verifyUnchecked, err
	case !hasher.Equal(actual, document.ContentHash):
		result = verifyMismatch
	}

	verified := result == verifyOK
	if verified != document.HashVerified {
		if err := s.documents.SetHashVerified(ctx, document.ID, verified); err != nil {
			return result, err
		}
		document.HashVerified = verified
	}
	if verified {
		return verifyOK, nil
	}

	integrityErr := &mailarchive_errors.IntegrityError{Path: document.StoragePath, Expected: document.ContentHash, Actual: actual}
	entry := &models.IngestionLog{
		EmailID:    document.EmailID,
		DocumentID: &document.ID,
		Action:     enum.LogActionVerifyIntegrity,
		Status:     enum.LogStatusError,
		Kind:       enum.ErrorKindIntegrity,
		Message:    integrityErr.Error(),
	}
	if err := s.logs.Add(ctx, entry); err != nil {
		s.log.Warn("Failed to write ingestion log", zap.Error(err))
	}
	s.log.Error("Document failed integrity check", zap.String("documentId", document.ID), zap.String("path", document.StoragePath), zap.String("actual", actual))
	return result, integrityErr
}

// logUnchecked records a file that exists but could not be read. The row keeps
// its verified flag since nothing was compared.
func (s *documentStore) logUnchecked(ctx context.Context, document *models.Document, err error) {
	entry := &models.IngestionLog{
		EmailID:    document.EmailID,
		DocumentID: &document.ID,
		Action:     enum.LogActionVerifyIntegrity,
		Status:     enum.LogStatusWarning,
		Kind:       enum.ErrorKindInternal,
		Message:    "Integrity check could not read " + document.StoragePath + ": " + err.Error(),
	}
	if logErr := s.logs.Add(ctx, entry); logErr != nil {
		s.log.Warn("Failed to write ingestion log", zap.Error(logErr))
	}
}
