package interfaces

import (
	"context"

	"github.com/customeros/mailarchive/dto"
)

type EventPublisher interface {
	PublishIngestEmail(ctx context.Context, message dto.IngestEmail) error
	PublishDocumentStored(ctx context.Context, message dto.DocumentStored) error
	Close() error
}

type EventListener interface {
	Handle(ctx context.Context, event any) error
	GetEventType() string
	GetQueueName() string
}

type EventSubscriber interface {
	RegisterListener(listener EventListener)
	ListenQueue(queueName string) error
	Close() error
}
