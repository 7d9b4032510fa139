package repository

import (
	"gorm.io/gorm"

	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/models"
)

type Repositories struct {
	AccountRepository      interfaces.AccountRepository
	EmailRepository        interfaces.EmailRepository
	DocumentRepository     interfaces.DocumentRepository
	IngestionLogRepository interfaces.IngestionLogRepository
	CredentialRepository   interfaces.CredentialRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		AccountRepository:      NewAccountRepository(db),
		EmailRepository:        NewEmailRepository(db),
		DocumentRepository:     NewDocumentRepository(db),
		IngestionLogRepository: NewIngestionLogRepository(db),
		CredentialRepository:   NewCredentialRepository(db),
	}
}

// MigrateDB creates the tables and the full-text index over documents and
// emails. It is safe to run on every start.
func MigrateDB(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Account{},
		&models.Email{},
		&models.Document{},
		&models.IngestionLog{},
		&models.Credential{},
		&models.CredentialVault{},
	)
	if err != nil {
		return err
	}
	return newSearchIndex(db).migrate(db)
}
