package pipeline

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/customeros/mailarchive/dto"
	mailarchive_errors "github.com/customeros/mailarchive/errors"
	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/enum"
	"github.com/customeros/mailarchive/internal/models"
	"github.com/customeros/mailarchive/internal/utils"
	"github.com/customeros/mailarchive/services/hasher"
)

// emailRun is the state of one ProcessEmail call.
type emailRun struct {
	pipeline *ingestionPipeline
	email    *models.Email
	account  *models.Account
	outcome  *dto.EmailOutcome

	firstFailure string
	firstKind    enum.ErrorKind
}

func (r *emailRun) attachments(ctx context.Context) {
	p := r.pipeline
	if len(r.email.RawMessage) == 0 {
		return
	}
	parts, err := p.Attachments.Extract(r.email.RawMessage, false)
	if err != nil {
		r.fail(ctx, dto.ItemOutcome{Name: "message", Source: string(enum.SourceAttachment)}, enum.LogActionExtractText, err)
		return
	}
	r.email.HasAttachments = len(parts) > 0

	limit := r.account.MaxAttachmentBytes()
	for _, part := range parts {
		if ctx.Err() != nil {
			return
		}
		item := dto.ItemOutcome{Name: part.Filename, Source: string(enum.SourceAttachment)}
		mimeType := utils.MediaType(part.MimeType)
		if mimeType == "" || mimeType == "application/octet-stream" {
			mimeType = utils.ContentTypeFromFilename(part.Filename)
		}
		if !utils.IsProcessableContentType(mimeType) {
			r.skip(ctx, item, "unsupported type "+mimeType)
			continue
		}
		if int64(len(part.Data)) > limit {
			r.skip(ctx, item, "larger than the account attachment limit")
			continue
		}
		content := &dto.FetchedContent{Data: part.Data, MimeType: mimeType, Filename: part.Filename}
		r.processItem(ctx, item, content, enum.SourceAttachment)
	}
}

func (r *emailRun) links(ctx context.Context) {
	p := r.pipeline
	for link := range p.Links.Extract(r.email.BodyHTML, r.email.BodyText) {
		if ctx.Err() != nil {
			return
		}
		r.email.HasInvoiceLinks = true
		item := dto.ItemOutcome{Name: link.URL, Source: string(enum.SourceInvoiceLink)}
		content, err := p.Fetcher.FetchURL(ctx, link.URL)
		if err != nil {
			r.warn(ctx, &item, enum.LogActionFetchLink, err, "Invoice link fetch failed: "+err.Error())
			r.outcome.Items = append(r.outcome.Items, item)
			continue
		}
		if content.SourceURL == "" {
			content.SourceURL = link.URL
		}
		r.processItem(ctx, item, content, enum.SourceInvoiceLink)
	}
}

// flagLinks records that the email has invoice links without fetching them,
// so enabling downloads later and refreshing picks the email up.
func (r *emailRun) flagLinks() {
	for range r.pipeline.Links.Extract(r.email.BodyHTML, r.email.BodyText) {
		r.email.HasInvoiceLinks = true
		return
	}
}

// processItem is hash, dedup gate, text, classification and store for one
// payload. It records the outcome and never returns an error.
func (r *emailRun) processItem(ctx context.Context, item dto.ItemOutcome, content *dto.FetchedContent, source enum.DocumentSource) {
	p := r.pipeline
	hash := hasher.Hash(content.Data)

	existing, err := p.Store.FindDuplicate(ctx, &r.email.ID, hash)
	if err != nil {
		r.fail(ctx, item, enum.LogActionStoreDocument, err)
		return
	}
	if existing != nil {
		r.duplicate(ctx, item, existing, content.Filename)
		return
	}

	extraction, err := p.Text.Extract(ctx, content.Data, content.MimeType, content.Filename)
	if err != nil {
		r.warn(ctx, &item, enum.LogActionExtractText, err, "Text extraction failed for "+content.Filename+": "+err.Error())
		extraction = &dto.ExtractionResult{}
	} else if extraction.PageErrors > 0 {
		r.warn(ctx, &item, enum.LogActionExtractText, mailarchive_errors.NewExtractionError(content.Filename, "ocr failed on some pages", nil),
			"OCR failed on some pages of "+content.Filename)
	}

	class := p.Classifier.Classify(ctx, extraction.Text, content.Filename)

	document, err := p.Store.Store(ctx, interfaces.StoreRequest{
		Email:      r.email,
		Account:    r.account,
		Content:    content,
		Hash:       hash,
		Extraction: extraction,
		Class:      class,
		Source:     string(source),
	})
	var integrityErr *mailarchive_errors.IntegrityError
	switch {
	case errors.Is(err, mailarchive_errors.ErrDuplicateDocument):
		// the store already logged the skip
		item.Duplicate = true
		if document != nil {
			item.DocumentID = document.ID
		}
		r.outcome.Duplicates++
		r.outcome.Items = append(r.outcome.Items, item)
	case errors.As(err, &integrityErr):
		// logged by the store together with the row
		if document != nil {
			item.DocumentID = document.ID
		}
		r.record(item, err)
	case err != nil:
		r.fail(ctx, item, enum.LogActionStoreDocument, err)
	default:
		item.DocumentID = document.ID
		r.outcome.Stored++
		r.outcome.Items = append(r.outcome.Items, item)
		r.announce(ctx, document)
	}
}

func (r *emailRun) duplicate(ctx context.Context, item dto.ItemOutcome, existing *models.Document, filename string) {
	entry := r.entry(enum.LogActionDuplicateSkipped, enum.LogStatusInfo, enum.ErrorKindDuplicate,
		"Duplicate skipped: "+filename+" matches "+existing.StoredFilename)
	entry.DocumentID = &existing.ID
	entry.Details = models.JSONMap{"hash": existing.ContentHash}
	r.pipeline.addLog(ctx, entry)

	item.Duplicate = true
	item.DocumentID = existing.ID
	r.outcome.Duplicates++
	r.outcome.Items = append(r.outcome.Items, item)
}

func (r *emailRun) skip(ctx context.Context, item dto.ItemOutcome, reason string) {
	entry := r.entry(enum.LogActionStoreDocument, enum.LogStatusInfo, enum.ErrorKindNone, "Skipped "+item.Name+": "+reason)
	r.pipeline.addLog(ctx, entry)
	item.Skipped = true
	r.outcome.Items = append(r.outcome.Items, item)
}

// warn records a recoverable problem; the email can still complete.
func (r *emailRun) warn(ctx context.Context, item *dto.ItemOutcome, action enum.LogAction, err error, message string) {
	kind := mailarchive_errors.Kind(err)
	entry := r.entry(action, enum.LogStatusWarning, kind, message)
	if item.Source == string(enum.SourceInvoiceLink) {
		entry.Details = models.JSONMap{"url": item.Name}
	} else {
		entry.Details = models.JSONMap{"filename": item.Name}
	}
	r.pipeline.addLog(ctx, entry)
	r.pipeline.log.Warn(message, zap.String("emailId", r.email.ID))

	item.Kind = kind
	item.Error = err.Error()
	r.outcome.Warnings++
}

// fail logs an item error; the email finishes as error once all items ran.
func (r *emailRun) fail(ctx context.Context, item dto.ItemOutcome, action enum.LogAction, err error) {
	entry := r.entry(action, enum.LogStatusError, mailarchive_errors.Kind(err), "Failed "+item.Name+": "+err.Error())
	r.pipeline.addLog(ctx, entry)
	r.pipeline.log.Error("Item failed", zap.String("emailId", r.email.ID), zap.String("item", item.Name), zap.Error(err))
	r.record(item, err)
}

func (r *emailRun) record(item dto.ItemOutcome, err error) {
	item.Kind = mailarchive_errors.Kind(err)
	item.Error = err.Error()
	r.outcome.Failures++
	r.outcome.Items = append(r.outcome.Items, item)
	if r.firstFailure == "" {
		r.firstFailure = item.Name + ": " + err.Error()
		r.firstKind = item.Kind
	}
}

func (r *emailRun) announce(ctx context.Context, document *models.Document) {
	publisher := r.pipeline.Publisher
	if publisher == nil {
		return
	}
	err := publisher.PublishDocumentStored(ctx, dto.DocumentStored{
		DocumentID:     document.ID,
		EmailID:        r.email.ID,
		AccountID:      r.account.ID,
		Filename:       document.StoredFilename,
		Classification: document.Classification.String(),
		ContentHash:    document.ContentHash,
		StoragePath:    document.StoragePath,
	})
	if err != nil {
		r.pipeline.log.Warn("Failed to publish document event", zap.String("documentId", document.ID), zap.Error(err))
	}
}

func (r *emailRun) entry(action enum.LogAction, status enum.LogStatus, kind enum.ErrorKind, message string) *models.IngestionLog {
	return &models.IngestionLog{
		AccountID: &r.account.ID,
		EmailID:   &r.email.ID,
		Action:    action,
		Status:    status,
		Kind:      kind,
		Message:   message,
	}
}
