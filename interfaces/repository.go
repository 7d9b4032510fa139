package interfaces

import (
	"context"
	"time"

	"github.com/customeros/mailarchive/dto"
	"github.com/customeros/mailarchive/internal/enum"
	"github.com/customeros/mailarchive/internal/models"
)

type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id string) (*models.Account, error)
	List(ctx context.Context, enabledOnly bool) ([]*models.Account, error)
	Update(ctx context.Context, account *models.Account) error
	MarkSynced(ctx context.Context, id string, at time.Time) error
}

type EmailRepository interface {
	// CreateIfAbsent inserts the email unless (account_id, message_id) already
	// exists, and returns the stored row either way.
	CreateIfAbsent(ctx context.Context, email *models.Email) (*models.Email, bool, error)
	GetByID(ctx context.Context, id string) (*models.Email, error)
	GetByMessageID(ctx context.Context, accountID, messageID string) (*models.Email, error)
	SetStatus(ctx context.Context, id string, status enum.EmailStatus, lastError string) error
	Update(ctx context.Context, email *models.Email) error
	ListRefreshable(ctx context.Context) ([]string, error)
	ListIDsByStatus(ctx context.Context, status enum.EmailStatus, limit int) ([]string, error)
	// Search ranks by full-text relevance when Query is set, newest first otherwise.
	Search(ctx context.Context, search dto.EmailSearch) ([]*models.Email, int64, error)
}

type DocumentRepository interface {
	// FindDuplicate returns the document of the same email with the same hash, or nil.
	FindDuplicate(ctx context.Context, emailID *string, contentHash string) (*models.Document, error)
	// CreateWithLog inserts the document and its audit entry in one transaction.
	CreateWithLog(ctx context.Context, document *models.Document, entry *models.IngestionLog) error
	GetByID(ctx context.Context, id string) (*models.Document, error)
	ListByEmail(ctx context.Context, emailID string) ([]*models.Document, error)
	ListIDs(ctx context.Context) ([]string, error)
	// Search ranks by full-text relevance when Query is set, newest first otherwise.
	Search(ctx context.Context, search dto.DocumentSearch) ([]*models.Document, int64, error)
	SetHashVerified(ctx context.Context, id string, verified bool) error
	SetObjectKey(ctx context.Context, id, key string) error
	PathTaken(ctx context.Context, storagePath string) (bool, error)
}

type IngestionLogRepository interface {
	Add(ctx context.Context, entry *models.IngestionLog) error
	ListByEmail(ctx context.Context, emailID string) ([]*models.IngestionLog, error)
	ListRecent(ctx context.Context, limit int) ([]*models.IngestionLog, error)
}

type CredentialRepository interface {
	GetVault(ctx context.Context) (*models.CredentialVault, error)
	SaveVault(ctx context.Context, vault *models.CredentialVault) error
	Get(ctx context.Context, accountID string) (*models.Credential, error)
	Save(ctx context.Context, credential *models.Credential) error
	Delete(ctx context.Context, accountID string) error
}
