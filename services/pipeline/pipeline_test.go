package pipeline_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/customeros/mailarchive/dto"
	mailarchive_errors "github.com/customeros/mailarchive/errors"
	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/config"
	"github.com/customeros/mailarchive/internal/enum"
	"github.com/customeros/mailarchive/internal/logger"
	"github.com/customeros/mailarchive/internal/models"
	"github.com/customeros/mailarchive/internal/repository"
	"github.com/customeros/mailarchive/internal/testutil"
	"github.com/customeros/mailarchive/services/attachments"
	"github.com/customeros/mailarchive/services/classifier"
	"github.com/customeros/mailarchive/services/documents"
	"github.com/customeros/mailarchive/services/fetcher"
	"github.com/customeros/mailarchive/services/links"
	"github.com/customeros/mailarchive/services/pipeline"
)

type fakeText struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeText) Extract(_ context.Context, _ []byte, _, _ string) (*dto.ExtractionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return &dto.ExtractionResult{Text: "Invoice 1042 amount due", PageCount: 1}, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	stored []dto.DocumentStored
}

func (p *fakePublisher) PublishIngestEmail(context.Context, dto.IngestEmail) error { return nil }

func (p *fakePublisher) PublishDocumentStored(_ context.Context, message dto.DocumentStored) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stored = append(p.stored, message)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

// failingStore rejects one filename and delegates everything else.
type failingStore struct {
	interfaces.DocumentStore
	filename string
}

func (s *failingStore) Store(ctx context.Context, req interfaces.StoreRequest) (*models.Document, error) {
	if req.Content.Filename == s.filename {
		return nil, errors.New("disk full")
	}
	return s.DocumentStore.Store(ctx, req)
}

type harness struct {
	db        *gorm.DB
	repos     *repository.Repositories
	store     interfaces.DocumentStore
	text      *fakeText
	publisher *fakePublisher
	account   *models.Account
	deps      pipeline.Dependencies
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logger.NewNopLogger()
	db := testutil.NewSQLiteDB(t)
	repos := repository.InitRepositories(db)
	store := documents.NewDocumentStore(&config.StorageConfig{
		BaseDir:        t.TempDir(),
		FolderTemplate: "{email}/{date}/{sender}/{subject}",
		DateFormat:     "2006-01-02",
		MaxNameLength:  100,
	}, repos.DocumentRepository, repos.IngestionLogRepository, nil, log)

	h := &harness{
		db:        db,
		repos:     repos,
		store:     store,
		text:      &fakeText{},
		publisher: &fakePublisher{},
		account:   testutil.CreateAccount(t, db, "me@example.com"),
	}
	h.deps = pipeline.Dependencies{
		Accounts:    repos.AccountRepository,
		Emails:      repos.EmailRepository,
		Logs:        repos.IngestionLogRepository,
		Attachments: attachments.NewAttachmentExtractor(log),
		Links:       links.NewLinkExtractor(&config.LinkConfig{Keywords: []string{"invoice", "receipt"}}, log),
		Fetcher: fetcher.NewContentFetcher(&config.FetcherConfig{
			AllowOutbound: true,
			Timeout:       5 * time.Second,
			MaxBytes:      1 << 20,
			MaxRedirects:  3,
			UserAgent:     "test",
		}, nil, log),
		Text: h.text,
		Classifier: classifier.NewClassifier(&config.ClassifierConfig{
			Timeout:       time.Second,
			Cooldown:      time.Minute,
			MaxInputChars: 4000,
		}, nil, log),
		Store:     store,
		Publisher: h.publisher,
	}
	return h
}

func (h *harness) pipeline() interfaces.IngestionPipeline {
	return pipeline.NewIngestionPipeline(h.deps, logger.NewNopLogger())
}

func withHTML(html string) testutil.EmailOption {
	return func(e *models.Email) {
		e.BodyHTML = html
	}
}

func (h *harness) documents(t *testing.T, emailID string) []*models.Document {
	docs, err := h.repos.DocumentRepository.ListByEmail(context.Background(), emailID)
	require.NoError(t, err)
	return docs
}

func (h *harness) logsWith(t *testing.T, emailID string, action enum.LogAction) []*models.IngestionLog {
	entries, err := h.repos.IngestionLogRepository.ListByEmail(context.Background(), emailID)
	require.NoError(t, err)
	var out []*models.IngestionLog
	for _, e := range entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

func invoiceMessage() []byte {
	return testutil.BuildMIME("billing@vendor.example", "Your invoice", "See attached.", "",
		testutil.Attachment{Filename: "invoice-1042.pdf", ContentType: "application/pdf", Data: testutil.MinimalPDF})
}

func TestProcessEmail_NewAttachmentIsStored(t *testing.T) {
	h := newHarness(t)
	email := testutil.CreateEmail(t, h.db, h.account.ID, "<a@vendor.example>", testutil.WithRaw(invoiceMessage()))

	outcome, err := h.pipeline().ProcessEmail(context.Background(), email.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.EmailStatusCompleted, outcome.Status)
	assert.Equal(t, 1, outcome.Stored)
	assert.Zero(t, outcome.Failures)

	docs := h.documents(t, email.ID)
	require.Len(t, docs, 1)
	assert.Equal(t, enum.LabelInvoice, docs[0].Classification)
	assert.True(t, docs[0].HashVerified)
	assert.Equal(t, enum.SourceAttachment, docs[0].SourceType)
	assert.Equal(t, "Invoice 1042 amount due", docs[0].ExtractedText)

	stored, err := h.repos.EmailRepository.GetByID(context.Background(), email.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.EmailStatusCompleted, stored.Status)
	assert.True(t, stored.HasAttachments)
	assert.Equal(t, enum.EmailClassInvoice, stored.Classification)
	assert.NotNil(t, stored.ProcessedAt)

	require.Len(t, h.publisher.stored, 1)
	assert.Equal(t, docs[0].ID, h.publisher.stored[0].DocumentID)
}

func TestProcessEmail_ReprocessingIsIdempotent(t *testing.T) {
	h := newHarness(t)
	email := testutil.CreateEmail(t, h.db, h.account.ID, "<b@vendor.example>", testutil.WithRaw(invoiceMessage()))
	p := h.pipeline()

	_, err := p.ProcessEmail(context.Background(), email.ID)
	require.NoError(t, err)
	first := h.documents(t, email.ID)
	require.Len(t, first, 1)
	callsAfterFirst := h.text.calls

	outcome, err := p.ProcessEmail(context.Background(), email.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.EmailStatusCompleted, outcome.Status)
	assert.Zero(t, outcome.Stored)
	assert.Equal(t, 1, outcome.Duplicates)

	second := h.documents(t, email.ID)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[0].ContentHash, second[0].ContentHash)
	assert.Len(t, h.logsWith(t, email.ID, enum.LogActionDuplicateSkipped), 1)
	assert.Equal(t, callsAfterFirst, h.text.calls, "duplicates skip text extraction")
}

func TestProcessEmail_FailedInvoiceLinkIsAWarning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := newHarness(t)
	html := `<p>Your invoice is ready.</p><a href="` + srv.URL + `/invoice/42.pdf">Download invoice</a>`
	email := testutil.CreateEmail(t, h.db, h.account.ID, "<c@vendor.example>", withHTML(html))

	outcome, err := h.pipeline().ProcessEmail(context.Background(), email.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.EmailStatusCompleted, outcome.Status)
	assert.Equal(t, 1, outcome.Warnings)
	assert.Empty(t, h.documents(t, email.ID))

	warnings := h.logsWith(t, email.ID, enum.LogActionFetchLink)
	require.Len(t, warnings, 1)
	assert.Equal(t, enum.LogStatusWarning, warnings[0].Status)
	assert.Equal(t, enum.ErrorKindFetch, warnings[0].Kind)

	stored, err := h.repos.EmailRepository.GetByID(context.Background(), email.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.EmailStatusCompleted, stored.Status)
	assert.True(t, stored.HasInvoiceLinks)
}

func TestProcessEmail_InvoiceLinkIsStored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(testutil.MinimalPDF)
	}))
	defer srv.Close()

	h := newHarness(t)
	html := `<a href="` + srv.URL + `/invoice/7.pdf">View invoice</a>`
	email := testutil.CreateEmail(t, h.db, h.account.ID, "<d@vendor.example>", withHTML(html))

	outcome, err := h.pipeline().ProcessEmail(context.Background(), email.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Stored)

	docs := h.documents(t, email.ID)
	require.Len(t, docs, 1)
	assert.Equal(t, enum.SourceInvoiceLink, docs[0].SourceType)
	assert.Equal(t, srv.URL+"/invoice/7.pdf", docs[0].SourceURL)
}

func TestProcessEmail_LinksIgnoredWhenDisabled(t *testing.T) {
	h := newHarness(t)
	h.account.DownloadInvoiceLinks = false
	require.NoError(t, h.repos.AccountRepository.Update(context.Background(), h.account))

	html := `<a href="http://127.0.0.1:1/invoice/1.pdf">invoice</a>`
	email := testutil.CreateEmail(t, h.db, h.account.ID, "<e@vendor.example>", withHTML(html))

	outcome, err := h.pipeline().ProcessEmail(context.Background(), email.ID)
	require.NoError(t, err)
	assert.Zero(t, outcome.Warnings)
	assert.Empty(t, outcome.Items)

	stored, err := h.repos.EmailRepository.GetByID(context.Background(), email.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasInvoiceLinks)
}

func TestRefreshable_CoversLinkDisabledAndPendingEmails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.account.DownloadInvoiceLinks = false
	require.NoError(t, h.repos.AccountRepository.Update(ctx, h.account))

	html := `<a href="http://127.0.0.1:1/invoice/1.pdf">invoice</a>`
	linked := testutil.CreateEmail(t, h.db, h.account.ID, "<linked@vendor.example>", withHTML(html))
	_, err := h.pipeline().ProcessEmail(ctx, linked.ID)
	require.NoError(t, err)

	queued := testutil.CreateEmail(t, h.db, h.account.ID, "<queued@vendor.example>", testutil.WithRaw(invoiceMessage()))

	ids, err := h.repos.EmailRepository.ListRefreshable(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, linked.ID)
	assert.Contains(t, ids, queued.ID)
}

func TestProcessEmail_ItemFailureDoesNotStopOthers(t *testing.T) {
	h := newHarness(t)
	h.deps.Store = &failingStore{DocumentStore: h.store, filename: "bad.pdf"}
	raw := testutil.BuildMIME("billing@vendor.example", "Two files", "", "",
		testutil.Attachment{Filename: "bad.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4 bad")},
		testutil.Attachment{Filename: "good.pdf", ContentType: "application/pdf", Data: testutil.MinimalPDF},
	)
	email := testutil.CreateEmail(t, h.db, h.account.ID, "<f@vendor.example>", testutil.WithRaw(raw))

	outcome, err := h.pipeline().ProcessEmail(context.Background(), email.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.EmailStatusError, outcome.Status)
	assert.Equal(t, 1, outcome.Failures)
	assert.Equal(t, 1, outcome.Stored)
	assert.Contains(t, outcome.Error, "bad.pdf")

	docs := h.documents(t, email.ID)
	require.Len(t, docs, 1)
	assert.Equal(t, "good.pdf", docs[0].OriginalFilename)

	stored, err := h.repos.EmailRepository.GetByID(context.Background(), email.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.EmailStatusError, stored.Status)
	assert.Contains(t, stored.LastError, "disk full")
}

func TestProcessEmail_SkipsUnsupportedAndOversizedAttachments(t *testing.T) {
	h := newHarness(t)
	h.account.MaxAttachmentSizeMB = 1
	require.NoError(t, h.repos.AccountRepository.Update(context.Background(), h.account))

	big := make([]byte, 2<<20)
	copy(big, "%PDF-1.4")
	raw := testutil.BuildMIME("billing@vendor.example", "Files", "body", "",
		testutil.Attachment{Filename: "notes.txt", ContentType: "text/plain", Data: []byte("hello")},
		testutil.Attachment{Filename: "huge.pdf", ContentType: "application/pdf", Data: big},
	)
	email := testutil.CreateEmail(t, h.db, h.account.ID, "<g@vendor.example>", testutil.WithRaw(raw))

	outcome, err := h.pipeline().ProcessEmail(context.Background(), email.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.EmailStatusCompleted, outcome.Status)
	require.Len(t, outcome.Items, 2)
	for _, item := range outcome.Items {
		assert.True(t, item.Skipped, item.Name)
	}
	assert.Empty(t, h.documents(t, email.ID))
}

func TestProcessEmail_UnknownEmail(t *testing.T) {
	h := newHarness(t)
	_, err := h.pipeline().ProcessEmail(context.Background(), "email_missing")
	assert.ErrorIs(t, err, mailarchive_errors.ErrNotFound)
}
