// Package pipeline turns a fetched email into archived documents.
package pipeline

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
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

// Dependencies are the collaborators of the pipeline. Publisher may be nil.
type Dependencies struct {
	Accounts    interfaces.AccountRepository
	Emails      interfaces.EmailRepository
	Logs        interfaces.IngestionLogRepository
	Attachments interfaces.AttachmentExtractor
	Links       interfaces.LinkExtractor
	Fetcher     interfaces.ContentFetcher
	Text        interfaces.TextExtractor
	Classifier  interfaces.Classifier
	Store       interfaces.DocumentStore
	Publisher   interfaces.EventPublisher
}

type ingestionPipeline struct {
	Dependencies
	emailLocks *utils.KeyedMutex
	log        logger.Logger
	now        func() time.Time
}

func NewIngestionPipeline(deps Dependencies, log logger.Logger) interfaces.IngestionPipeline {
	return &ingestionPipeline{
		Dependencies: deps,
		emailLocks:   utils.NewKeyedMutex(),
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// ProcessEmail runs every attachment and invoice link of the email through
// the store. Item failures are recorded and never stop the remaining items.
// Running it again on an unchanged email stores nothing new.
func (p *ingestionPipeline) ProcessEmail(ctx context.Context, emailID string) (*dto.EmailOutcome, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IngestionPipeline.ProcessEmail")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, emailID)

	unlock := p.emailLocks.Lock(emailID)
	defer unlock()

	email, err := p.Emails.GetByID(ctx, emailID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if email == nil {
		return nil, errors.Wrap(mailarchive_errors.ErrNotFound, "email "+emailID)
	}
	account, err := p.Accounts.GetByID(ctx, email.AccountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if account == nil {
		return nil, errors.Wrap(mailarchive_errors.ErrNotFound, "account "+email.AccountID)
	}
	tracing.TagAccount(span, account.ID)
	ctx = utils.SetEmailIDInContext(utils.SetAccountIDInContext(ctx, account.ID), email.ID)

	if err := p.Emails.SetStatus(ctx, email.ID, enum.EmailStatusProcessing, ""); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	email.Status = enum.EmailStatusProcessing

	run := &emailRun{
		pipeline: p,
		email:    email,
		account:  account,
		outcome:  &dto.EmailOutcome{EmailID: email.ID, Items: []dto.ItemOutcome{}},
	}
	run.attachments(ctx)
	if ctx.Err() == nil {
		if account.DownloadInvoiceLinks {
			run.links(ctx)
		} else {
			run.flagLinks()
		}
	}

	// status bookkeeping must land even when the caller gave up
	finishCtx := context.WithoutCancel(ctx)
	if ctx.Err() != nil {
		// unfinished work goes back to the queue
		if err := p.Emails.SetStatus(finishCtx, email.ID, enum.EmailStatusPending, "interrupted"); err != nil {
			p.log.Warn("Failed to reset interrupted email", zap.String("emailId", email.ID), zap.Error(err))
		}
		run.outcome.Status = enum.EmailStatusPending
		return run.outcome, ctx.Err()
	}

	p.finish(finishCtx, run)
	span.LogKV("status", run.outcome.Status, "stored", run.outcome.Stored, "duplicates", run.outcome.Duplicates, "failures", run.outcome.Failures)
	return run.outcome, nil
}

func (p *ingestionPipeline) finish(ctx context.Context, run *emailRun) {
	email := run.email
	outcome := run.outcome

	classification := p.Classifier.ClassifyEmail(ctx, email)
	email.Classification = classification.Class
	email.Summary = classification.Summary

	now := p.now()
	email.ProcessedAt = &now
	if outcome.Failures > 0 {
		email.Status = enum.EmailStatusError
		email.LastError = run.firstFailure
	} else {
		email.Status = enum.EmailStatusCompleted
		email.LastError = ""
	}
	outcome.Status = email.Status
	outcome.Error = email.LastError

	if err := p.Emails.Update(ctx, email); err != nil {
		p.log.Error("Failed to save processed email", zap.String("emailId", email.ID), zap.Error(err))
		outcome.Status = enum.EmailStatusError
		outcome.Error = err.Error()
		_ = p.Emails.SetStatus(ctx, email.ID, enum.EmailStatusError, err.Error())
	}

	entry := run.entry(enum.LogActionProcessEmail, enum.LogStatusSuccess, enum.ErrorKindNone, "Processed email")
	if outcome.Status == enum.EmailStatusError {
		entry.Status = enum.LogStatusError
		entry.Kind = run.firstKind
		entry.Message = "Email finished with errors: " + outcome.Error
	}
	entry.Details = models.JSONMap{
		"stored":     outcome.Stored,
		"duplicates": outcome.Duplicates,
		"warnings":   outcome.Warnings,
		"failures":   outcome.Failures,
	}
	p.addLog(ctx, entry)
}

func (p *ingestionPipeline) addLog(ctx context.Context, entry *models.IngestionLog) {
	if err := p.Logs.Add(ctx, entry); err != nil {
		p.log.Warn("Failed to write ingestion log", zap.String("action", entry.Action.String()), zap.Error(err))
	}
}
