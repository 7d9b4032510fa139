package listeners

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/customeros/mailarchive/dto"
	mailarchive_errors "github.com/customeros/mailarchive/errors"
	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/enum"
	"github.com/customeros/mailarchive/internal/logger"
	"github.com/customeros/mailarchive/internal/tracing"
	"github.com/customeros/mailarchive/internal/utils"
	"github.com/customeros/mailarchive/services/events"
)

// IngestEmailListener runs the pipeline for emails queued by the poller.
type IngestEmailListener struct {
	events.BaseEventListener
	log      logger.Logger
	emails   interfaces.EmailRepository
	pipeline interfaces.IngestionPipeline
}

func NewIngestEmailListener(log logger.Logger, emails interfaces.EmailRepository, pipeline interfaces.IngestionPipeline) interfaces.EventListener {
	return &IngestEmailListener{
		BaseEventListener: events.NewBaseEventListener(
			log,
			events.GetEventType[dto.IngestEmail](),
			events.QueueIngestEmail,
		),
		log:      log,
		emails:   emails,
		pipeline: pipeline,
	}
}

// Handle processes one queued email. Redelivered messages for emails that
// already finished are acknowledged without work unless Reprocess is set.
func (l *IngestEmailListener) Handle(ctx context.Context, baseEvent any) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IngestEmailListener.Handle")
	defer span.Finish()
	tracing.SetDefaultListenerSpanTags(ctx, span)
	tracing.LogObjectAsJson(span, "event", baseEvent)

	validatedEvent, err := l.ValidateBaseEvent(ctx, baseEvent)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	message, err := events.DecodeEventData[dto.IngestEmail](ctx, validatedEvent)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	tracing.TagEntity(span, message.EmailID)
	ctx = utils.SetAccountIDInContext(ctx, message.AccountID)

	email, err := l.emails.GetByID(ctx, message.EmailID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if email == nil {
		l.log.Warn("Queued email no longer exists", zap.String("emailId", message.EmailID))
		return nil
	}
	if email.Status.IsTerminal() && !message.Reprocess {
		span.LogKV("skipped", email.Status)
		return nil
	}

	outcome, err := l.pipeline.ProcessEmail(ctx, email.ID)
	if err != nil {
		if errors.Is(err, mailarchive_errors.ErrNotFound) {
			return nil
		}
		tracing.TraceErr(span, err)
		return err
	}
	if outcome.Status == enum.EmailStatusError {
		l.log.Warn("Email finished with errors", zap.String("emailId", email.ID), zap.String("error", outcome.Error))
	}
	return nil
}
