// Package poller runs fetch rounds for mail accounts: credentials, source,
// stored emails, pipeline, then the post-action for completed emails.
package poller

import (
	"context"
	"strings"
	"time"

	"github.com/jaytaylor/html2text"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/customeros/mailarchive/dto"
	mailarchive_errors "github.com/customeros/mailarchive/errors"
	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/enum"
	"github.com/customeros/mailarchive/internal/logger"
	"github.com/customeros/mailarchive/internal/models"
	"github.com/customeros/mailarchive/internal/tracing"
	"github.com/customeros/mailarchive/internal/utils"
)

// Dependencies of the poller. Publisher is optional: without it new emails
// run through the pipeline inline. Attachments and Links set the content
// flags of a stored email and may be nil.
type Dependencies struct {
	Accounts    interfaces.AccountRepository
	Emails      interfaces.EmailRepository
	Logs        interfaces.IngestionLogRepository
	Source      interfaces.EmailSource
	PostActions interfaces.PostActionRunner
	Pipeline    interfaces.IngestionPipeline
	Publisher   interfaces.EventPublisher
	Attachments interfaces.AttachmentExtractor
	Links       interfaces.LinkExtractor
}

type poller struct {
	Dependencies
	maxConcurrent int
	running       *utils.KeyedMutex
	log           logger.Logger
	now           func() time.Time
}

func NewPoller(deps Dependencies, maxConcurrent int, log logger.Logger) interfaces.Poller {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &poller{
		Dependencies:  deps,
		maxConcurrent: maxConcurrent,
		running:       utils.NewKeyedMutex(),
		log:           log,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// PollDue polls every enabled account whose interval has elapsed. One
// account failing does not affect the others.
func (p *poller) PollDue(ctx context.Context) []*dto.PollOutcome {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Poller.PollDue")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	accounts, err := p.Accounts.List(ctx, true)
	if err != nil {
		tracing.TraceErr(span, err)
		p.log.Error("Failed to list accounts", zap.Error(err))
		return nil
	}

	now := p.now()
	var due []*models.Account
	for _, a := range accounts {
		if a.PollDue(now) {
			due = append(due, a)
		}
	}
	span.LogKV("accounts", len(accounts), "due", len(due))

	outcomes := make([]*dto.PollOutcome, len(due))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxConcurrent)
	for i, account := range due {
		g.Go(func() error {
			outcome, err := p.poll(gctx, account)
			if err != nil && outcome != nil {
				outcome.Error = err.Error()
			}
			outcomes[i] = outcome
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// PollAccount polls one account now, regardless of its interval. A poll that
// is already running for the account makes this a skipped no-op.
func (p *poller) PollAccount(ctx context.Context, accountID string) (*dto.PollOutcome, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Poller.PollAccount")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	account, err := p.Accounts.GetByID(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if account == nil {
		return nil, errors.Wrap(mailarchive_errors.ErrNotFound, "account "+accountID)
	}
	return p.poll(ctx, account)
}

func (p *poller) poll(ctx context.Context, account *models.Account) (*dto.PollOutcome, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Poller.poll")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account.ID)
	ctx = utils.SetAccountIDInContext(ctx, account.ID)

	outcome := &dto.PollOutcome{AccountID: account.ID}
	unlock, ok := p.running.TryLock(account.ID)
	if !ok {
		p.log.Info("Poll already running, skipping", zap.String("accountId", account.ID))
		outcome.Skipped = true
		return outcome, nil
	}
	defer unlock()

	started := p.now()
	limit := account.MaxPerFetch
	if limit <= 0 {
		limit = 50
	}
	criteria := account.SearchCriteria
	if criteria == "" {
		criteria = enum.SearchAll
	}

	raws, err := p.Source.Fetch(ctx, account, account.FetchSince(started), criteria, limit)
	if err != nil {
		tracing.TraceErr(span, err)
		if errors.Is(err, mailarchive_errors.ErrLockedCredentialStore) {
			p.log.Warn("Credential store locked, skipping account", zap.String("accountId", account.ID))
			outcome.Skipped = true
		} else {
			p.log.Error("Fetch failed", zap.String("accountId", account.ID), zap.Error(err))
		}
		p.addLog(ctx, account, enum.LogStatusError, mailarchive_errors.Kind(err), "Fetch failed: "+err.Error(), nil)
		return outcome, err
	}
	outcome.Fetched = len(raws)

	var completed []*dto.RawEmail
	for _, raw := range raws {
		if ctx.Err() != nil {
			break
		}
		res, err := p.ingest(ctx, account, raw)
		if res.isNew {
			outcome.New++
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			outcome.Failed++
			p.log.Error("Failed to ingest email", zap.String("accountId", account.ID), zap.String("messageId", raw.MessageID), zap.Error(err))
			continue
		}
		if res.processed {
			outcome.Processed++
		}
		switch res.status {
		case enum.EmailStatusCompleted:
			completed = append(completed, raw)
		case enum.EmailStatusError:
			outcome.Failed++
		}
	}

	if ctx.Err() == nil {
		p.applyPostAction(ctx, account, completed)
		if err := p.Accounts.MarkSynced(ctx, account.ID, started); err != nil {
			p.log.Warn("Failed to mark account synced", zap.String("accountId", account.ID), zap.Error(err))
		}
	}

	p.addLog(ctx, account, enum.LogStatusSuccess, enum.ErrorKindNone, "Fetched emails", models.JSONMap{
		"fetched":   outcome.Fetched,
		"new":       outcome.New,
		"processed": outcome.Processed,
		"failed":    outcome.Failed,
	})
	span.LogKV("fetched", outcome.Fetched, "new", outcome.New, "processed", outcome.Processed)
	return outcome, ctx.Err()
}

type ingestResult struct {
	status    enum.EmailStatus
	isNew     bool
	processed bool
}

// ingest stores the message and runs or queues the pipeline for it. Emails
// that already left pending are not touched again here.
func (p *poller) ingest(ctx context.Context, account *models.Account, raw *dto.RawEmail) (ingestResult, error) {
	email, isNew, err := p.Emails.CreateIfAbsent(ctx, p.toEmail(account, raw))
	if err != nil {
		return ingestResult{}, err
	}
	res := ingestResult{status: email.Status, isNew: isNew}
	if email.Status != enum.EmailStatusPending {
		return res, nil
	}

	if p.Publisher != nil {
		return res, p.Publisher.PublishIngestEmail(ctx, dto.IngestEmail{EmailID: email.ID, AccountID: account.ID})
	}

	outcome, err := p.Pipeline.ProcessEmail(ctx, email.ID)
	if err != nil {
		return res, err
	}
	res.status = outcome.Status
	res.processed = true
	return res, nil
}

func (p *poller) applyPostAction(ctx context.Context, account *models.Account, completed []*dto.RawEmail) {
	action := account.PostAction
	if action == "" || action == enum.PostActionNone || len(completed) == 0 || p.PostActions == nil {
		return
	}
	err := p.PostActions.ApplyPostAction(ctx, account, action, completed)
	if err != nil {
		p.log.Warn("Post-action failed", zap.String("accountId", account.ID), zap.String("action", action.String()), zap.Error(err))
		p.addLogAction(ctx, account, enum.LogActionPostAction, enum.LogStatusWarning, mailarchive_errors.Kind(err), "Post-action failed: "+err.Error(), nil)
		return
	}
	p.addLogAction(ctx, account, enum.LogActionPostAction, enum.LogStatusSuccess, enum.ErrorKindNone, "Applied "+action.String(), models.JSONMap{"messages": len(completed)})
}

func (p *poller) addLog(ctx context.Context, account *models.Account, status enum.LogStatus, kind enum.ErrorKind, message string, details models.JSONMap) {
	p.addLogAction(ctx, account, enum.LogActionFetchEmails, status, kind, message, details)
}

func (p *poller) addLogAction(ctx context.Context, account *models.Account, action enum.LogAction, status enum.LogStatus, kind enum.ErrorKind, message string, details models.JSONMap) {
	entry := &models.IngestionLog{
		AccountID: &account.ID,
		Action:    action,
		Status:    status,
		Kind:      kind,
		Message:   message,
		Details:   details,
	}
	if err := p.Logs.Add(context.WithoutCancel(ctx), entry); err != nil {
		p.log.Warn("Failed to write ingestion log", zap.String("action", action.String()), zap.Error(err))
	}
}

func (p *poller) toEmail(account *models.Account, raw *dto.RawEmail) *models.Email {
	email := &models.Email{
		AccountID:   account.ID,
		MessageID:   raw.MessageID,
		Folder:      raw.Folder,
		ImapUID:     raw.UID,
		FromAddress: raw.From,
		FromName:    raw.FromName,
		Subject:     raw.Subject,
		BodyText:    raw.BodyText,
		BodyHTML:    raw.BodyHTML,
		RawMessage:  raw.Raw,
		Status:      enum.EmailStatusPending,
	}
	if !raw.Date.IsZero() {
		sent := raw.Date.UTC()
		email.SentAt = &sent
	}
	if strings.TrimSpace(email.BodyText) == "" && email.BodyHTML != "" {
		if text, err := html2text.FromString(email.BodyHTML, html2text.Options{OmitLinks: true}); err == nil {
			email.BodyText = text
		}
	}
	p.flagContent(email)
	return email
}

// flagContent marks what the message carries, independent of the account's
// link setting, so a later refresh-all still finds it.
func (p *poller) flagContent(email *models.Email) {
	if p.Attachments != nil && len(email.RawMessage) > 0 {
		if parts, err := p.Attachments.Extract(email.RawMessage, false); err == nil {
			email.HasAttachments = len(parts) > 0
		} else {
			// unparsable here means the pipeline has to look at it
			email.HasAttachments = true
		}
	}
	if p.Links != nil {
		for range p.Links.Extract(email.BodyHTML, email.BodyText) {
			email.HasInvoiceLinks = true
			break
		}
	}
}
