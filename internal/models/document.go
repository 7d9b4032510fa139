package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailarchive/internal/enum"
	"github.com/customeros/mailarchive/internal/utils"
)

// Document is a stored file. No two documents of the same email share a
// content hash; EmailID is nil for direct link captures. Rank and Snippet are
// only set on full-text search results.
type Document struct {
	ID               string                `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	EmailID          *string               `gorm:"column:email_id;type:varchar(50);uniqueIndex:uq_document_email_hash,priority:1" json:"emailId,omitempty"`
	OriginalFilename string                `gorm:"column:original_filename;type:varchar(500)" json:"originalFilename"`
	StoredFilename   string                `gorm:"column:stored_filename;type:varchar(500)" json:"storedFilename"`
	MimeType         string                `gorm:"column:mime_type;type:varchar(255)" json:"mimeType"`
	ByteSize         int64                 `gorm:"column:byte_size" json:"byteSize"`
	ContentHash      string                `gorm:"column:content_hash;type:varchar(64);not null;index;uniqueIndex:uq_document_email_hash,priority:2" json:"contentHash"`
	StoragePath      string                `gorm:"column:storage_path;type:varchar(2000);not null" json:"storagePath"`
	PageCount        int                   `gorm:"column:page_count" json:"pageCount"`
	ExtractedText    string                `gorm:"column:extracted_text;type:text" json:"extractedText"`
	OCRUsed          bool                  `gorm:"column:ocr_used;default:false" json:"ocrUsed"`
	Classification   enum.DocumentLabel    `gorm:"column:classification;type:varchar(50);index" json:"classification"`
	Category         enum.DocumentCategory `gorm:"column:category;type:varchar(50);index" json:"category"`
	AISummary        string                `gorm:"column:ai_summary;type:text" json:"aiSummary"`
	HashVerified     bool                  `gorm:"column:hash_verified;default:false" json:"hashVerified"`
	SourceType       enum.DocumentSource   `gorm:"column:source_type;type:varchar(50)" json:"sourceType"`
	SourceURL        string                `gorm:"column:source_url;type:varchar(2000)" json:"sourceUrl,omitempty"`
	ObjectKey        string                `gorm:"column:object_key;type:varchar(1000)" json:"-"`
	DateIngested     time.Time             `gorm:"column:date_ingested;index" json:"dateIngested"`
	UpdatedAt        time.Time             `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
	Rank             float64               `gorm:"-" json:"rank,omitempty"`
	Snippet          string                `gorm:"-" json:"snippet,omitempty"`
}

func (Document) TableName() string {
	return "documents"
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = utils.GenerateNanoIDWithPrefix("doc", 16)
	}
	if d.DateIngested.IsZero() {
		d.DateIngested = time.Now().UTC()
	}
	if d.Classification != "" && d.Category == "" {
		d.Category = d.Classification.Category()
	}
	return nil
}
