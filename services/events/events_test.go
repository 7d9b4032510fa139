package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailarchive/dto"
	"github.com/customeros/mailarchive/internal/enum"
	"github.com/customeros/mailarchive/internal/logger"
	"github.com/customeros/mailarchive/internal/utils"
)

type captureListener struct {
	BaseEventListener
	got []dto.IngestEmail
	ctx context.Context
}

func (l *captureListener) Handle(ctx context.Context, input any) error {
	event, err := l.ValidateBaseEvent(ctx, input)
	if err != nil {
		return err
	}
	data, err := DecodeEventData[dto.IngestEmail](ctx, event)
	if err != nil {
		return err
	}
	l.got = append(l.got, data)
	l.ctx = ctx
	return nil
}

func encodedEvent(t *testing.T, ctx context.Context, message dto.IngestEmail) []byte {
	t.Helper()
	event := newEvent(ctx, message.EmailID, enum.EMAIL, message, "trace-1", time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC))
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return body
}

func TestNewEvent_Envelope(t *testing.T) {
	ctx := utils.SetJobIDInContext(utils.SetAccountIDInContext(context.Background(), "acct_1"), "job-1")
	msg := &dto.DocumentStored{DocumentID: "doc_1"}

	event := newEvent(ctx, "doc_1", enum.DOCUMENT, msg, "trace-1", time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC))
	assert.Equal(t, "DocumentStored", event.Event.EventType)
	assert.Equal(t, "acct_1", event.Event.AccountId)
	assert.Equal(t, enum.DOCUMENT, event.Event.EntityType)
	assert.Equal(t, "job-1", event.Metadata.JobId)
	assert.Equal(t, AppSource, event.Metadata.AppSource)
	assert.Equal(t, "2025-03-14T10:00:00Z", event.Metadata.Timestamp)
	assert.Contains(t, event.Event.Id, "event")
}

func TestDispatch_RoutesToListener(t *testing.T) {
	sub := newSubscriber("", logger.NewNopLogger(), nil)
	listener := &captureListener{BaseEventListener: NewBaseEventListener(logger.NewNopLogger(), GetEventType[dto.IngestEmail](), QueueIngestEmail)}
	sub.RegisterListener(listener)

	ctx := utils.SetAccountIDInContext(context.Background(), "acct_1")
	body := encodedEvent(t, ctx, dto.IngestEmail{EmailID: "email_1", AccountID: "acct_1"})

	require.NoError(t, sub.dispatch(context.Background(), body, QueueIngestEmail))
	require.Len(t, listener.got, 1)
	assert.Equal(t, "email_1", listener.got[0].EmailID)
	assert.Equal(t, "acct_1", utils.GetAccountIDFromContext(listener.ctx))
}

func TestDispatch_IgnoresWrongQueueAndUnknownType(t *testing.T) {
	sub := newSubscriber("", logger.NewNopLogger(), nil)
	listener := &captureListener{BaseEventListener: NewBaseEventListener(logger.NewNopLogger(), "IngestEmail", QueueIngestEmail)}
	sub.RegisterListener(listener)

	body := encodedEvent(t, context.Background(), dto.IngestEmail{EmailID: "email_1"})
	require.NoError(t, sub.dispatch(context.Background(), body, "other-queue"))
	assert.Empty(t, listener.got)

	other, err := json.Marshal(dto.Event{Event: dto.EventDetails{EventType: "Unknown", EntityId: "x", Data: map[string]any{}}})
	require.NoError(t, err)
	require.NoError(t, sub.dispatch(context.Background(), other, QueueIngestEmail))
	assert.Empty(t, listener.got)
}

func TestDispatch_BadBody(t *testing.T) {
	sub := newSubscriber("", logger.NewNopLogger(), nil)
	assert.Error(t, sub.dispatch(context.Background(), []byte("{"), QueueIngestEmail))
}

func TestValidateBaseEvent(t *testing.T) {
	base := NewBaseEventListener(logger.NewNopLogger(), "IngestEmail", QueueIngestEmail)

	_, err := base.ValidateBaseEvent(context.Background(), "not an event")
	assert.Error(t, err)

	_, err = base.ValidateBaseEvent(context.Background(), dto.Event{Event: dto.EventDetails{EventType: "IngestEmail", Data: map[string]any{}}})
	assert.Error(t, err, "entity id is required")

	event, err := base.ValidateBaseEvent(context.Background(), dto.Event{Event: dto.EventDetails{EventType: "IngestEmail", EntityId: "e", Data: map[string]any{}}})
	require.NoError(t, err)
	assert.Equal(t, "e", event.Event.EntityId)
}
