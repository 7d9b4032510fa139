package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/mailarchive/dto"
	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/models"
	"github.com/customeros/mailarchive/internal/tracing"
	"github.com/customeros/mailarchive/internal/utils"
)

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 500
)

type documentRepository struct {
	db    *gorm.DB
	index searchIndex
}

func NewDocumentRepository(db *gorm.DB) interfaces.DocumentRepository {
	return &documentRepository{db: db, index: newSearchIndex(db)}
}

func (r *documentRepository) FindDuplicate(ctx context.Context, emailID *string, contentHash string) (*models.Document, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "documentRepository.FindDuplicate")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("contentHash", contentHash)

	query := r.db.WithContext(ctx).Where("content_hash = ?", contentHash)
	if emailID == nil {
		query = query.Where("email_id IS NULL")
	} else {
		query = query.Where("email_id = ?", *emailID)
	}

	var document models.Document
	if err := query.First(&document).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &document, nil
}

func (r *documentRepository) CreateWithLog(ctx context.Context, document *models.Document, entry *models.IngestionLog) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "documentRepository.CreateWithLog")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if document == nil || document.ContentHash == "" || document.StoragePath == "" {
		return ErrInvalidInput
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(document).Error; err != nil {
			return err
		}
		if entry == nil {
			return nil
		}
		entry.DocumentID = &document.ID
		return tx.Create(entry).Error
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	tracing.TagEntity(span, document.ID)
	return nil
}

// GetByID returns nil when the document does not exist
func (r *documentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "documentRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	var document models.Document
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&document).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &document, nil
}

func (r *documentRepository) ListByEmail(ctx context.Context, emailID string) ([]*models.Document, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "documentRepository.ListByEmail")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var documents []*models.Document
	err := r.db.WithContext(ctx).Where("email_id = ?", emailID).Order("date_ingested ASC").Find(&documents).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return documents, nil
}

func (r *documentRepository) ListIDs(ctx context.Context) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "documentRepository.ListIDs")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var ids []string
	if err := r.db.WithContext(ctx).Model(&models.Document{}).Order("date_ingested ASC").Pluck("id", &ids).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return ids, nil
}

// Search matches Query against the full-text index over filename, summary,
// labels and extracted text. Ranked results carry Rank and Snippet; total is
// capped at maxSearchCandidates. Without a query it lists newest first.
func (r *documentRepository) Search(ctx context.Context, search dto.DocumentSearch) ([]*models.Document, int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "documentRepository.Search")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.LogObjectAsJson(span, "search", search)

	limit, offset := pageBounds(search.Limit, search.Offset)
	query := r.db.WithContext(ctx).Model(&models.Document{}).
		Joins("LEFT JOIN emails ON emails.id = documents.email_id")
	if search.EmailID != "" {
		query = query.Where("documents.email_id = ?", search.EmailID)
	}
	if search.AccountID != "" {
		query = query.Where("emails.account_id = ?", search.AccountID)
	}
	if search.Classification != "" {
		query = query.Where("documents.classification = ?", search.Classification)
	}
	if search.Category != "" {
		query = query.Where("documents.category = ?", search.Category)
	}

	if strings.TrimSpace(search.Query) != "" {
		documents, total, err := r.ranked(ctx, query, searchTerms(search.Query), limit, offset)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, 0, err
		}
		span.LogKV("total", total)
		return documents, total, nil
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}

	var documents []*models.Document
	err := query.Select("documents.*").
		Order("documents.date_ingested DESC").
		Limit(limit).Offset(offset).
		Find(&documents).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}
	span.LogKV("total", total)
	return documents, total, nil
}

func (r *documentRepository) ranked(ctx context.Context, query *gorm.DB, terms []string, limit, offset int) ([]*models.Document, int64, error) {
	// a query with nothing indexable matches nothing
	if len(terms) == 0 {
		return []*models.Document{}, 0, nil
	}

	var candidates []searchCandidate
	err := r.index.candidates(query, "documents", terms).
		Order("documents.date_ingested DESC").
		Limit(maxSearchCandidates).
		Scan(&candidates).Error
	if err != nil {
		return nil, 0, err
	}
	candidates = rankCandidates(r.index, "documents", candidates)
	page := pageOf(candidates, limit, offset)

	documents := make([]*models.Document, 0, len(page))
	if len(page) == 0 {
		return documents, int64(len(candidates)), nil
	}
	ids := make([]string, len(page))
	for i, candidate := range page {
		ids[i] = candidate.ID
	}
	var loaded []*models.Document
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&loaded).Error; err != nil {
		return nil, 0, err
	}
	byID := make(map[string]*models.Document, len(loaded))
	for _, document := range loaded {
		byID[document.ID] = document
	}
	for _, candidate := range page {
		document, ok := byID[candidate.ID]
		if !ok {
			continue
		}
		document.Rank = candidate.score
		document.Snippet = utils.Snippet(firstNonEmpty(document.ExtractedText, document.AISummary, document.OriginalFilename), terms, snippetLength)
		documents = append(documents, document)
	}
	return documents, int64(len(candidates)), nil
}

func (r *documentRepository) SetHashVerified(ctx context.Context, id string, verified bool) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "documentRepository.SetHashVerified")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	err := r.db.WithContext(ctx).Model(&models.Document{}).Where("id = ?", id).Update("hash_verified", verified).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *documentRepository) SetObjectKey(ctx context.Context, id, key string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "documentRepository.SetObjectKey")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	err := r.db.WithContext(ctx).Model(&models.Document{}).Where("id = ?", id).Update("object_key", key).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// PathTaken reports whether a document row already claims the storage path.
func (r *documentRepository) PathTaken(ctx context.Context, storagePath string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "documentRepository.PathTaken")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var count int64
	err := r.db.WithContext(ctx).Model(&models.Document{}).Where("storage_path = ?", storagePath).Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return false, err
	}
	return count > 0, nil
}
