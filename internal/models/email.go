package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailarchive/internal/enum"
	"github.com/customeros/mailarchive/internal/utils"
)

// Email is a fetched message. RawMessage keeps the original bytes so the
// pipeline can re-enter without talking to the mail server again.
type Email struct {
	ID        string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	AccountID string `gorm:"column:account_id;type:varchar(50);not null;uniqueIndex:uq_email_account_message,priority:1" json:"accountId"`
	MessageID string `gorm:"column:message_id;type:varchar(512);not null;uniqueIndex:uq_email_account_message,priority:2" json:"messageId"`
	Folder    string `gorm:"column:folder;type:varchar(255)" json:"folder"`
	ImapUID   uint32 `gorm:"column:imap_uid" json:"imapUid"`

	FromAddress string     `gorm:"column:from_address;type:varchar(255);index" json:"sender"`
	FromName    string     `gorm:"column:from_name;type:varchar(255)" json:"senderName"`
	Subject     string     `gorm:"column:subject;type:varchar(1000)" json:"subject"`
	SentAt      *time.Time `gorm:"column:sent_at;index" json:"dateSent,omitempty"`

	BodyText        string `gorm:"column:body_text;type:text" json:"bodyText"`
	BodyHTML        string `gorm:"column:body_html;type:text" json:"-"`
	HasAttachments  bool   `gorm:"column:has_attachments;default:false" json:"hasAttachments"`
	HasInvoiceLinks bool   `gorm:"column:has_invoice_links;default:false" json:"hasInvoiceLinks"`
	RawMessage      []byte `gorm:"column:raw_message" json:"-"`

	Status         enum.EmailStatus         `gorm:"column:status;type:varchar(20);index;not null;default:pending" json:"status"`
	Classification enum.EmailClassification `gorm:"column:classification;type:varchar(50)" json:"classification"`
	Summary        string                   `gorm:"column:summary;type:text" json:"summary"`
	LastError      string                   `gorm:"column:last_error;type:text" json:"lastError,omitempty"`
	ProcessedAt    *time.Time               `gorm:"column:processed_at" json:"processedAt,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`

	Rank    float64 `gorm:"-" json:"rank,omitempty"`
	Snippet string  `gorm:"-" json:"snippet,omitempty"`
}

func (Email) TableName() string {
	return "emails"
}

func (e *Email) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = utils.GenerateNanoIDWithPrefix("email", 24)
	}
	if e.Status == "" {
		e.Status = enum.EmailStatusPending
	}
	return nil
}
