package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailarchive/internal/enum"
	"github.com/customeros/mailarchive/internal/utils"
)

// Account is a mailbox the archive polls. The secret used to log in lives in
// the credential store, keyed by the account id.
type Account struct {
	ID         string             `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Name       string             `gorm:"column:name;type:varchar(255)" json:"name"`
	Email      string             `gorm:"column:email;type:varchar(255);uniqueIndex;not null" json:"email"`
	Provider   enum.EmailProvider `gorm:"column:provider;type:varchar(50);not null" json:"provider"`
	IMAPServer string             `gorm:"column:imap_server;type:varchar(255)" json:"imapServer"`
	IMAPPort   int                `gorm:"column:imap_port" json:"imapPort"`
	UseTLS     bool               `gorm:"column:use_tls" json:"useTls"`
	Username   string             `gorm:"column:username;type:varchar(255)" json:"username"`
	AuthMethod enum.AuthMethod    `gorm:"column:auth_method;type:varchar(50);default:app_password" json:"authMethod"`
	Enabled    bool               `gorm:"column:enabled" json:"enabled"`

	// Polling and filtering
	PollIntervalMinutes int                 `gorm:"column:poll_interval_minutes;default:15" json:"pollIntervalMinutes"`
	Folders             StringList          `gorm:"column:folders;type:text" json:"folders"`
	SearchCriteria      enum.SearchCriteria `gorm:"column:search_criteria;type:varchar(20);default:all" json:"searchCriteria"`
	SubjectFilter       string              `gorm:"column:subject_filter;type:varchar(255)" json:"subjectFilter"`
	FromFilter          string              `gorm:"column:from_filter;type:varchar(255)" json:"fromFilter"`
	MaxPerFetch         int                 `gorm:"column:max_per_fetch;default:50" json:"maxPerFetch"`
	SkipOlderThanDays   int                 `gorm:"column:skip_older_than_days;default:0" json:"skipOlderThanDays"`
	StartDate           *time.Time          `gorm:"column:start_date" json:"startDate,omitempty"`

	// Post-processing
	PostAction           enum.PostAction `gorm:"column:post_action;type:varchar(20);default:none" json:"postAction"`
	MoveToFolder         string          `gorm:"column:move_to_folder;type:varchar(255)" json:"moveToFolder"`
	DownloadInvoiceLinks bool            `gorm:"column:download_invoice_links" json:"downloadInvoiceLinks"`
	MaxAttachmentSizeMB  int             `gorm:"column:max_attachment_size_mb;default:50" json:"maxAttachmentSizeMb"`

	LastSyncAt *time.Time `gorm:"column:last_sync_at" json:"lastSyncAt,omitempty"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Account) TableName() string {
	return "accounts"
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("acct", 16)
	}
	if len(a.Folders) == 0 {
		a.Folders = StringList{"INBOX"}
	}
	if a.Provider == "" {
		a.Provider = enum.EmailProviderIMAP
	}
	if a.PostAction == "" {
		a.PostAction = enum.PostActionNone
	}
	if a.SearchCriteria == "" {
		a.SearchCriteria = enum.SearchAll
	}
	return nil
}

// ServerAddress resolves host and port, filling provider defaults for empty fields.
func (a *Account) ServerAddress() (string, int) {
	settings := a.Provider.Settings()
	host, port := a.IMAPServer, a.IMAPPort
	if host == "" {
		host = settings.Server
	}
	if port == 0 {
		port = settings.Port
	}
	return host, port
}

func (a *Account) LoginName() string {
	if a.Username != "" {
		return a.Username
	}
	return a.Email
}

// FetchSince is the earliest message date the account wants, or zero for no bound.
func (a *Account) FetchSince(now time.Time) time.Time {
	var since time.Time
	if a.SkipOlderThanDays > 0 {
		since = now.AddDate(0, 0, -a.SkipOlderThanDays)
	}
	if a.StartDate != nil && a.StartDate.After(since) {
		since = *a.StartDate
	}
	return since
}

// PollDue reports whether the account's poll interval has elapsed.
func (a *Account) PollDue(now time.Time) bool {
	if !a.Enabled {
		return false
	}
	if a.LastSyncAt == nil {
		return true
	}
	interval := a.PollIntervalMinutes
	if interval <= 0 {
		interval = 15
	}
	return !now.Before(a.LastSyncAt.Add(time.Duration(interval) * time.Minute))
}

func (a *Account) MaxAttachmentBytes() int64 {
	if a.MaxAttachmentSizeMB <= 0 {
		return 50 << 20
	}
	return int64(a.MaxAttachmentSizeMB) << 20
}
