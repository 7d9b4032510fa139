package dto

import "github.com/customeros/mailarchive/internal/enum"

type Event struct {
	Event    EventDetails  `json:"event"`
	Metadata EventMetadata `json:"metadata"`
}

type EventDetails struct {
	Id         string          `json:"id"`
	AccountId  string          `json:"accountId"`
	EntityId   string          `json:"entityId"`
	EntityType enum.EntityType `json:"entityType"`
	EventType  string          `json:"eventType"`
	Data       interface{}     `json:"data"`
}

type EventMetadata struct {
	UberTraceId string `json:"uber-trace-id"`
	AppSource   string `json:"appSource"`
	JobId       string `json:"jobId,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// IngestEmail asks a worker to run the pipeline for a stored email.
type IngestEmail struct {
	EmailID   string `json:"emailId"`
	AccountID string `json:"accountId"`
	Reprocess bool   `json:"reprocess"`
}

// DocumentStored announces a newly archived document.
type DocumentStored struct {
	DocumentID     string `json:"documentId"`
	EmailID        string `json:"emailId,omitempty"`
	AccountID      string `json:"accountId,omitempty"`
	Filename       string `json:"filename"`
	Classification string `json:"classification"`
	ContentHash    string `json:"contentHash"`
	StoragePath    string `json:"storagePath"`
}
