package interfaces

import (
	"context"
	"time"

	"github.com/customeros/mailarchive/dto"
	"github.com/customeros/mailarchive/internal/enum"
	"github.com/customeros/mailarchive/internal/models"
)

// EmailSource yields raw emails for an account without changing any state on
// the remote mailbox.
type EmailSource interface {
	Fetch(ctx context.Context, account *models.Account, since time.Time, criteria enum.SearchCriteria, limit int) ([]*dto.RawEmail, error)
}

// PostActionRunner applies a post-action to messages that finished ingestion.
// It is the only mailbox-mutating step and is invoked separately from Fetch.
type PostActionRunner interface {
	ApplyPostAction(ctx context.Context, account *models.Account, action enum.PostAction, messages []*dto.RawEmail) error
}

// CredentialStore resolves account secrets. GetSecret fails with
// ErrLockedCredentialStore while the store is locked.
type CredentialStore interface {
	GetSecret(ctx context.Context, accountID string) (string, error)
	SetSecret(ctx context.Context, accountID, secret string) error
	Unlock(ctx context.Context, masterPassword string) error
	Lock()
	IsUnlocked() bool
}
