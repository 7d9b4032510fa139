package models

import (
	"time"

	"github.com/customeros/mailarchive/internal/enum"
)

// IngestionLog is the append-only audit trail of the pipeline.
type IngestionLog struct {
	ID         uint           `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	AccountID  *string        `gorm:"column:account_id;type:varchar(50);index" json:"accountId,omitempty"`
	EmailID    *string        `gorm:"column:email_id;type:varchar(50);index" json:"emailId,omitempty"`
	DocumentID *string        `gorm:"column:document_id;type:varchar(50)" json:"documentId,omitempty"`
	Action     enum.LogAction `gorm:"column:action;type:varchar(50);not null" json:"action"`
	Status     enum.LogStatus `gorm:"column:status;type:varchar(20);index;not null" json:"status"`
	Kind       enum.ErrorKind `gorm:"column:kind;type:varchar(50)" json:"kind,omitempty"`
	Message    string         `gorm:"column:message;type:text" json:"message"`
	Details    JSONMap        `gorm:"column:details;type:text" json:"details,omitempty"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime;index" json:"createdAt"`
}

func (IngestionLog) TableName() string {
	return "ingestion_logs"
}
