package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/models"
	"github.com/customeros/mailarchive/internal/tracing"
)

type ingestionLogRepository struct {
	db *gorm.DB
}

func NewIngestionLogRepository(db *gorm.DB) interfaces.IngestionLogRepository {
	return &ingestionLogRepository{db: db}
}

func (r *ingestionLogRepository) Add(ctx context.Context, entry *models.IngestionLog) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ingestionLogRepository.Add")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if entry == nil {
		return ErrInvalidInput
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *ingestionLogRepository) ListByEmail(ctx context.Context, emailID string) ([]*models.IngestionLog, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ingestionLogRepository.ListByEmail")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var entries []*models.IngestionLog
	if err := r.db.WithContext(ctx).Where("email_id = ?", emailID).Order("id ASC").Find(&entries).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return entries, nil
}

func (r *ingestionLogRepository) ListRecent(ctx context.Context, limit int) ([]*models.IngestionLog, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ingestionLogRepository.ListRecent")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if limit <= 0 {
		limit = 100
	}
	var entries []*models.IngestionLog
	if err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&entries).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return entries, nil
}
