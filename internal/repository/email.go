package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/mailarchive/dto"
	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/enum"
	"github.com/customeros/mailarchive/internal/models"
	"github.com/customeros/mailarchive/internal/tracing"
	"github.com/customeros/mailarchive/internal/utils"
)

type emailRepository struct {
	db    *gorm.DB
	index searchIndex
}

func NewEmailRepository(db *gorm.DB) interfaces.EmailRepository {
	return &emailRepository{db: db, index: newSearchIndex(db)}
}

func (r *emailRepository) CreateIfAbsent(ctx context.Context, email *models.Email) (*models.Email, bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.CreateIfAbsent")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if email == nil || email.AccountID == "" || email.MessageID == "" {
		return nil, false, ErrInvalidInput
	}
	tracing.TagAccount(span, email.AccountID)

	existing, err := r.GetByMessageID(ctx, email.AccountID, email.MessageID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, false, err
	}
	if existing != nil {
		span.SetTag("duplicate", true)
		return existing, false, nil
	}

	err = r.db.WithContext(ctx).Create(email).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// lost a race with a concurrent insert of the same message
		existing, getErr := r.GetByMessageID(ctx, email.AccountID, email.MessageID)
		if getErr != nil || existing == nil {
			tracing.TraceErr(span, err)
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, false, err
	}
	return email, true, nil
}

// GetByID returns nil when the email does not exist
func (r *emailRepository) GetByID(ctx context.Context, id string) (*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	var email models.Email
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &email, nil
}

func (r *emailRepository) GetByMessageID(ctx context.Context, accountID, messageID string) (*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.GetByMessageID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var email models.Email
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND message_id = ?", accountID, messageID).
		First(&email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &email, nil
}

func (r *emailRepository) SetStatus(ctx context.Context, id string, status enum.EmailStatus, lastError string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.SetStatus")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)
	span.SetTag("status", status.String())

	result := r.db.WithContext(ctx).Model(&models.Email{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "last_error": lastError})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrEmailNotFound
	}
	return nil
}

func (r *emailRepository) Update(ctx context.Context, email *models.Email) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.Update")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if email == nil || email.ID == "" {
		return ErrInvalidInput
	}
	tracing.TagEntity(span, email.ID)

	if err := r.db.WithContext(ctx).Save(email).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// ListRefreshable returns ids of emails that carry attachments or invoice
// links, plus emails that never left pending, oldest first.
func (r *emailRepository) ListRefreshable(ctx context.Context) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.ListRefreshable")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var ids []string
	err := r.db.WithContext(ctx).Model(&models.Email{}).
		Where("has_attachments = ? OR has_invoice_links = ? OR status = ?", true, true, enum.EmailStatusPending).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.LogKV("count", len(ids))
	return ids, nil
}

func (r *emailRepository) ListIDsByStatus(ctx context.Context, status enum.EmailStatus, limit int) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.ListIDsByStatus")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var ids []string
	query := r.db.WithContext(ctx).Model(&models.Email{}).Where("status = ?", status).Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Pluck("id", &ids).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return ids, nil
}

// Search matches Query against subject, sender, summary and body text. The
// raw message and HTML body are never loaded.
func (r *emailRepository) Search(ctx context.Context, search dto.EmailSearch) ([]*models.Email, int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.Search")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.LogObjectAsJson(span, "search", search)

	limit, offset := pageBounds(search.Limit, search.Offset)
	query := r.db.WithContext(ctx).Model(&models.Email{})
	if search.AccountID != "" {
		query = query.Where("emails.account_id = ?", search.AccountID)
	}
	if search.Classification != "" {
		query = query.Where("emails.classification = ?", search.Classification)
	}
	if search.Status != "" {
		query = query.Where("emails.status = ?", search.Status)
	}

	if strings.TrimSpace(search.Query) == "" {
		var total int64
		if err := query.Count(&total).Error; err != nil {
			tracing.TraceErr(span, err)
			return nil, 0, err
		}
		var emails []*models.Email
		err := query.Omit("raw_message", "body_html").
			Order("emails.created_at DESC").
			Limit(limit).Offset(offset).
			Find(&emails).Error
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, 0, err
		}
		span.LogKV("total", total)
		return emails, total, nil
	}

	terms := searchTerms(search.Query)
	if len(terms) == 0 {
		return []*models.Email{}, 0, nil
	}
	var candidates []searchCandidate
	err := r.index.candidates(query, "emails", terms).
		Order("emails.created_at DESC").
		Limit(maxSearchCandidates).
		Scan(&candidates).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}
	candidates = rankCandidates(r.index, "emails", candidates)
	total := int64(len(candidates))
	span.LogKV("total", total)

	page := pageOf(candidates, limit, offset)
	emails := make([]*models.Email, 0, len(page))
	if len(page) == 0 {
		return emails, total, nil
	}
	ids := make([]string, len(page))
	for i, candidate := range page {
		ids[i] = candidate.ID
	}
	var loaded []*models.Email
	if err := r.db.WithContext(ctx).Omit("raw_message", "body_html").Where("id IN ?", ids).Find(&loaded).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}
	byID := make(map[string]*models.Email, len(loaded))
	for _, email := range loaded {
		byID[email.ID] = email
	}
	for _, candidate := range page {
		email, ok := byID[candidate.ID]
		if !ok {
			continue
		}
		email.Rank = candidate.score
		email.Snippet = utils.Snippet(firstNonEmpty(email.BodyText, email.Summary, email.Subject), terms, snippetLength)
		emails = append(emails, email)
	}
	return emails, total, nil
}
