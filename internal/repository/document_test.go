package repository_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/customeros/mailarchive/dto"
	"github.com/customeros/mailarchive/internal/enum"
	"github.com/customeros/mailarchive/internal/models"
	"github.com/customeros/mailarchive/internal/repository"
	"github.com/customeros/mailarchive/internal/testutil"
)

func newDocument(emailID *string, hash, path string) *models.Document {
	return &models.Document{
		EmailID:          emailID,
		OriginalFilename: "invoice.pdf",
		StoredFilename:   "invoice.pdf",
		MimeType:         "application/pdf",
		ContentHash:      hash,
		StoragePath:      path,
		Classification:   enum.LabelInvoice,
		SourceType:       enum.SourceAttachment,
	}
}

func TestDocumentRepository_CreateWithLog(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := repository.NewDocumentRepository(db)
	logs := repository.NewIngestionLogRepository(db)
	ctx := context.Background()
	account := testutil.CreateAccount(t, db, "archive@example.com")
	email := testutil.CreateEmail(t, db, account.ID, "<doc@example.com>")

	document := newDocument(&email.ID, "abc", "/archive/a/invoice.pdf")
	entry := &models.IngestionLog{
		EmailID: &email.ID,
		Action:  enum.LogActionStoreDocument,
		Status:  enum.LogStatusSuccess,
		Message: "stored invoice.pdf",
	}
	require.NoError(t, repo.CreateWithLog(ctx, document, entry))
	assert.NotEmpty(t, document.ID)
	assert.Equal(t, enum.CategoryFinancial, document.Category)
	assert.False(t, document.DateIngested.IsZero())

	entries, err := logs.ListByEmail(ctx, email.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].DocumentID)
	assert.Equal(t, document.ID, *entries[0].DocumentID)
}

func TestDocumentRepository_UniquePerEmailAndHash(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := repository.NewDocumentRepository(db)
	logs := repository.NewIngestionLogRepository(db)
	ctx := context.Background()
	account := testutil.CreateAccount(t, db, "archive@example.com")
	email := testutil.CreateEmail(t, db, account.ID, "<dup@example.com>")
	other := testutil.CreateEmail(t, db, account.ID, "<other@example.com>")

	require.NoError(t, repo.CreateWithLog(ctx, newDocument(&email.ID, "same", "/a/1.pdf"), nil))

	entry := &models.IngestionLog{EmailID: &email.ID, Action: enum.LogActionStoreDocument, Status: enum.LogStatusSuccess}
	err := repo.CreateWithLog(ctx, newDocument(&email.ID, "same", "/a/2.pdf"), entry)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	// the log row of the failed insert rolls back with it
	entries, err := logs.ListByEmail(ctx, email.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// same bytes under another email are stored again
	require.NoError(t, repo.CreateWithLog(ctx, newDocument(&other.ID, "same", "/b/1.pdf"), nil))
}

func TestDocumentRepository_FindDuplicate(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := repository.NewDocumentRepository(db)
	ctx := context.Background()
	account := testutil.CreateAccount(t, db, "archive@example.com")
	email := testutil.CreateEmail(t, db, account.ID, "<find@example.com>")

	stored := newDocument(&email.ID, "h1", "/a/1.pdf")
	require.NoError(t, repo.CreateWithLog(ctx, stored, nil))
	require.NoError(t, repo.CreateWithLog(ctx, newDocument(nil, "h2", "/links/2.pdf"), nil))

	found, err := repo.FindDuplicate(ctx, &email.ID, "h1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, stored.ID, found.ID)

	found, err = repo.FindDuplicate(ctx, &email.ID, "h2")
	require.NoError(t, err)
	assert.Nil(t, found)

	found, err = repo.FindDuplicate(ctx, nil, "h2")
	require.NoError(t, err)
	assert.NotNil(t, found)
}

func TestDocumentRepository_Search(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := repository.NewDocumentRepository(db)
	ctx := context.Background()
	account := testutil.CreateAccount(t, db, "archive@example.com")
	email := testutil.CreateEmail(t, db, account.ID, "<search@example.com>", testutil.WithSubject("March statement"))

	invoice := newDocument(&email.ID, "h1", "/a/1.pdf")
	invoice.ExtractedText = "Total due 42 EUR"
	require.NoError(t, repo.CreateWithLog(ctx, invoice, nil))

	statement := newDocument(&email.ID, "h2", "/a/2.pdf")
	statement.OriginalFilename = "summary.pdf"
	statement.Classification = enum.LabelStatement
	require.NoError(t, repo.CreateWithLog(ctx, statement, nil))

	docs, total, err := repo.Search(ctx, dto.DocumentSearch{Query: "TOTAL DUE"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, docs, 1)
	assert.Equal(t, invoice.ID, docs[0].ID)

	// labels are indexed alongside the text
	docs, total, err = repo.Search(ctx, dto.DocumentSearch{Query: "statement"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, docs, 1)
	assert.Equal(t, statement.ID, docs[0].ID)

	// prefixes match, and every term has to
	docs, _, err = repo.Search(ctx, dto.DocumentSearch{Query: "tot eur"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, invoice.ID, docs[0].ID)
	docs, _, err = repo.Search(ctx, dto.DocumentSearch{Query: "total statement"})
	require.NoError(t, err)
	assert.Empty(t, docs)

	docs, _, err = repo.Search(ctx, dto.DocumentSearch{Classification: enum.LabelStatement, AccountID: account.ID})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, statement.ID, docs[0].ID)

	docs, total, err = repo.Search(ctx, dto.DocumentSearch{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, docs, 1)
}

func TestDocumentRepository_SearchRanksAndSnippets(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := repository.NewDocumentRepository(db)
	ctx := context.Background()

	inText := newDocument(nil, "h1", "/links/1.pdf")
	inText.OriginalFilename = "scan-0001.pdf"
	inText.ExtractedText = strings.Repeat("lorem ipsum ", 50) + "see the attached contract for terms " + strings.Repeat("dolor ", 50)
	require.NoError(t, repo.CreateWithLog(ctx, inText, nil))

	inName := newDocument(nil, "h2", "/links/2.pdf")
	inName.OriginalFilename = "contract-acme.pdf"
	inName.ExtractedText = "signed by both parties"
	require.NoError(t, repo.CreateWithLog(ctx, inName, nil))

	docs, total, err := repo.Search(ctx, dto.DocumentSearch{Query: "Contract"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, docs, 2)
	assert.Equal(t, inName.ID, docs[0].ID)
	assert.Equal(t, inText.ID, docs[1].ID)
	assert.Greater(t, docs[0].Rank, docs[1].Rank)
	assert.Greater(t, docs[1].Rank, 0.0)

	assert.Contains(t, docs[1].Snippet, "attached contract")
	assert.True(t, strings.HasPrefix(docs[1].Snippet, "..."))
	assert.Equal(t, "signed by both parties", docs[0].Snippet)

	page, total, err := repo.Search(ctx, dto.DocumentSearch{Query: "contract", Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, page, 1)
	assert.Equal(t, inText.ID, page[0].ID)
}

func TestDocumentRepository_SearchTreatsWildcardsLiterally(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := repository.NewDocumentRepository(db)
	ctx := context.Background()

	document := newDocument(nil, "h1", "/links/1.pdf")
	document.ExtractedText = "net_amount 100% paid"
	require.NoError(t, repo.CreateWithLog(ctx, document, nil))

	for _, query := range []string{"%", "_", "%%", "*", "\"OR\"", "-"} {
		docs, total, err := repo.Search(ctx, dto.DocumentSearch{Query: query})
		require.NoError(t, err, query)
		assert.Equal(t, int64(0), total, query)
		assert.Empty(t, docs, query)
	}

	docs, _, err := repo.Search(ctx, dto.DocumentSearch{Query: "net_amount"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, document.ID, docs[0].ID)
}

func TestDocumentRepository_SearchFollowsUpdates(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := repository.NewDocumentRepository(db)
	ctx := context.Background()

	document := newDocument(nil, "h1", "/links/1.pdf")
	require.NoError(t, repo.CreateWithLog(ctx, document, nil))

	docs, _, err := repo.Search(ctx, dto.DocumentSearch{Query: "quarterly"})
	require.NoError(t, err)
	assert.Empty(t, docs)

	require.NoError(t, db.Model(&models.Document{}).Where("id = ?", document.ID).
		Update("ai_summary", "Quarterly service invoice").Error)

	docs, _, err = repo.Search(ctx, dto.DocumentSearch{Query: "quarterly"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, document.ID, docs[0].ID)
}

func TestDocumentRepository_Flags(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := repository.NewDocumentRepository(db)
	ctx := context.Background()

	document := newDocument(nil, "h", "/links/x.pdf")
	require.NoError(t, repo.CreateWithLog(ctx, document, nil))

	require.NoError(t, repo.SetHashVerified(ctx, document.ID, true))
	require.NoError(t, repo.SetObjectKey(ctx, document.ID, "documents/x.pdf"))

	got, err := repo.GetByID(ctx, document.ID)
	require.NoError(t, err)
	assert.True(t, got.HashVerified)
	assert.Equal(t, "documents/x.pdf", got.ObjectKey)

	taken, err := repo.PathTaken(ctx, "/links/x.pdf")
	require.NoError(t, err)
	assert.True(t, taken)
	taken, err = repo.PathTaken(ctx, "/links/y.pdf")
	require.NoError(t, err)
	assert.False(t, taken)

	missing, err := repo.GetByID(ctx, "doc_missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDocumentRepository_Postgres(t *testing.T) {
	db := testutil.NewPostgresDB(t)
	repo := repository.NewDocumentRepository(db)
	ctx := context.Background()
	account := testutil.CreateAccount(t, db, "archive@example.com")
	email := testutil.CreateEmail(t, db, account.ID, "<pg@example.com>")

	require.NoError(t, repo.CreateWithLog(ctx, newDocument(&email.ID, "pg", "/pg/1.pdf"), nil))
	err := repo.CreateWithLog(ctx, newDocument(&email.ID, "pg", "/pg/2.pdf"), nil)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	billed := newDocument(&email.ID, "pg-billed", "/pg/3.pdf")
	billed.ExtractedText = "Invoices billed monthly, 100% due on receipt"
	require.NoError(t, repo.CreateWithLog(ctx, billed, nil))

	docs, total, err := repo.Search(ctx, dto.DocumentSearch{Query: "bill month"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, docs, 1)
	assert.Equal(t, billed.ID, docs[0].ID)
	assert.Greater(t, docs[0].Rank, 0.0)
	assert.Contains(t, docs[0].Snippet, "billed monthly")

	docs, _, err = repo.Search(ctx, dto.DocumentSearch{Query: "%"})
	require.NoError(t, err)
	assert.Empty(t, docs)
}
