package repository

import (
	"context"
	"errors"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/models"
	"github.com/customeros/mailarchive/internal/tracing"
)

type credentialRepository struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) interfaces.CredentialRepository {
	return &credentialRepository{db: db}
}

// GetVault returns nil until a master password has been set
func (r *credentialRepository) GetVault(ctx context.Context) (*models.CredentialVault, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "credentialRepository.GetVault")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var vault models.CredentialVault
	if err := r.db.WithContext(ctx).Order("id ASC").First(&vault).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &vault, nil
}

func (r *credentialRepository) SaveVault(ctx context.Context, vault *models.CredentialVault) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "credentialRepository.SaveVault")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if vault == nil {
		return ErrInvalidInput
	}
	vault.ID = 1
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"salt", "verifier"}),
	}).Create(vault).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// Get returns nil when no secret is stored for the account
func (r *credentialRepository) Get(ctx context.Context, accountID string) (*models.Credential, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "credentialRepository.Get")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)

	var credential models.Credential
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&credential).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &credential, nil
}

func (r *credentialRepository) Save(ctx context.Context, credential *models.Credential) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "credentialRepository.Save")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if credential == nil || credential.AccountID == "" {
		return ErrInvalidInput
	}
	tracing.TagAccount(span, credential.AccountID)

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"ciphertext", "updated_at"}),
	}).Create(credential).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *credentialRepository) Delete(ctx context.Context, accountID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "credentialRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)

	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).Delete(&models.Credential{}).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
