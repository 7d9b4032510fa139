package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	apierrors "github.com/customeros/mailarchive/api/errors"
	"github.com/customeros/mailarchive/dto"
	mailarchive_errors "github.com/customeros/mailarchive/errors"
	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/enum"
	"github.com/customeros/mailarchive/internal/models"
	"github.com/customeros/mailarchive/internal/repository"
	"github.com/customeros/mailarchive/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockJobs struct {
	mock.Mock
}

func (m *mockJobs) StartRefreshAll(ctx context.Context) (dto.JobStatus, error) {
	args := m.Called(ctx)
	return args.Get(0).(dto.JobStatus), args.Error(1)
}

func (m *mockJobs) Status() dto.JobStatus {
	return m.Called().Get(0).(dto.JobStatus)
}

func (m *mockJobs) Wait(ctx context.Context) dto.JobStatus {
	return m.Called(ctx).Get(0).(dto.JobStatus)
}

func (m *mockJobs) Shutdown(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type fakeStore struct {
	interfaces.DocumentStore
	content   map[string]string
	verifyErr map[string]error
}

func (f *fakeStore) Open(_ context.Context, document *models.Document) (io.ReadCloser, error) {
	body, ok := f.content[document.ID]
	if !ok {
		return nil, mailarchive_errors.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *fakeStore) Verify(_ context.Context, id string) error {
	return f.verifyErr[id]
}

type fakePreview struct {
	pages map[string]int
}

func (f *fakePreview) RenderPage(_ context.Context, documentID string, page int) ([]byte, error) {
	count, ok := f.pages[documentID]
	if !ok {
		return nil, mailarchive_errors.ErrNotFound
	}
	if page < 1 || page > count {
		return nil, mailarchive_errors.ErrPageOutOfRange
	}
	return []byte("\x89PNG page"), nil
}

type fakeCredentials struct {
	unlocked bool
	password string
	secrets  map[string]string
}

func (f *fakeCredentials) GetSecret(_ context.Context, accountID string) (string, error) {
	if !f.unlocked {
		return "", mailarchive_errors.ErrLockedCredentialStore
	}
	return f.secrets[accountID], nil
}

func (f *fakeCredentials) SetSecret(_ context.Context, accountID, secret string) error {
	if !f.unlocked {
		return mailarchive_errors.ErrLockedCredentialStore
	}
	f.secrets[accountID] = secret
	return nil
}

func (f *fakeCredentials) Unlock(_ context.Context, password string) error {
	if password != f.password {
		return mailarchive_errors.ErrWrongMasterPassword
	}
	f.unlocked = true
	return nil
}

func (f *fakeCredentials) Lock()            { f.unlocked = false }
func (f *fakeCredentials) IsUnlocked() bool { return f.unlocked }

type fakePipeline struct {
	processed []string
}

func (f *fakePipeline) ProcessEmail(_ context.Context, emailID string) (*dto.EmailOutcome, error) {
	f.processed = append(f.processed, emailID)
	if emailID == "missing" {
		return nil, errors.Wrap(mailarchive_errors.ErrNotFound, emailID)
	}
	return &dto.EmailOutcome{EmailID: emailID, Status: enum.EmailStatusCompleted, Items: []dto.ItemOutcome{}}, nil
}

type fixture struct {
	router      *gin.Engine
	db          *gorm.DB
	repos       *repository.Repositories
	jobs        *mockJobs
	store       *fakeStore
	credentials *fakeCredentials
	pipeline    *fakePipeline
	account     *models.Account
	email       *models.Email
	document    *models.Document
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	f := &fixture{
		db:          db,
		repos:       repository.InitRepositories(db),
		jobs:        &mockJobs{},
		store:       &fakeStore{content: map[string]string{}, verifyErr: map[string]error{}},
		credentials: &fakeCredentials{password: "hunter2", secrets: map[string]string{}},
		pipeline:    &fakePipeline{},
	}
	f.account = testutil.CreateAccount(t, db, "archive@example.com")
	f.email = testutil.CreateEmail(t, db, f.account.ID, "<m1@vendor.example>")
	f.document = &models.Document{
		EmailID:          &f.email.ID,
		OriginalFilename: "invoice-1042.pdf",
		StoredFilename:   "2025-03-14_vendor_invoice-1042.pdf",
		MimeType:         "application/pdf",
		ByteSize:         11,
		ContentHash:      strings.Repeat("a", 64),
		StoragePath:      "/archive/2025/03/2025-03-14_vendor_invoice-1042.pdf",
		ExtractedText:    "Invoice 1042 total due",
		Classification:   enum.LabelInvoice,
	}
	require.NoError(t, db.Create(f.document).Error)
	f.store.content[f.document.ID] = "pdf-content"

	documents := NewDocumentsHandler(f.repos.DocumentRepository, f.store, &fakePreview{pages: map[string]int{f.document.ID: 2}})
	emails := NewEmailsHandler(f.repos.EmailRepository, f.repos.IngestionLogRepository, f.pipeline)
	accounts := NewAccountsHandler(f.repos.AccountRepository, nil, f.credentials)
	credentials := NewCredentialsHandler(f.credentials)
	jobs := NewJobsHandler(f.jobs)

	r := gin.New()
	r.POST("/jobs/refresh-all", jobs.StartRefreshAll())
	r.GET("/jobs/refresh-all", jobs.RefreshAllStatus())
	r.GET("/documents", documents.Search())
	r.GET("/documents/:id", documents.Get())
	r.GET("/documents/:id/download", documents.Download())
	r.GET("/documents/:id/preview", documents.Preview())
	r.POST("/documents/:id/verify", documents.Verify())
	r.GET("/emails", emails.Search())
	r.POST("/emails/:id/reprocess", emails.Reprocess())
	r.GET("/emails/:id/logs", emails.Logs())
	r.GET("/accounts", accounts.List())
	r.PUT("/accounts/:id/credentials", accounts.SetSecret())
	r.POST("/credentials/unlock", credentials.Unlock())
	r.POST("/credentials/lock", credentials.Lock())
	f.router = r
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) apierrors.ErrorBody {
	t.Helper()
	var resp apierrors.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestStartRefreshAll(t *testing.T) {
	f := newFixture(t)
	f.jobs.On("StartRefreshAll", mock.Anything).Return(dto.JobStatus{JobID: "j1", Status: enum.JobStatusRunning, Running: true, Errors: []dto.JobError{}}, nil).Once()
	f.jobs.On("StartRefreshAll", mock.Anything).Return(dto.JobStatus{JobID: "j1", Status: enum.JobStatusAlreadyRunning, Running: true, Errors: []dto.JobError{}}, nil).Once()

	w := f.do(http.MethodPost, "/jobs/refresh-all", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"running"`)

	w = f.do(http.MethodPost, "/jobs/refresh-all", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"already_running"`)
	assert.Contains(t, w.Body.String(), `"job_id":"j1"`)
	f.jobs.AssertExpectations(t)
}

func TestStartRefreshAll_ShuttingDown(t *testing.T) {
	f := newFixture(t)
	f.jobs.On("StartRefreshAll", mock.Anything).Return(dto.JobStatus{}, mailarchive_errors.ErrJobsShuttingDown)

	w := f.do(http.MethodPost, "/jobs/refresh-all", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRefreshAllStatus(t *testing.T) {
	f := newFixture(t)
	f.jobs.On("Status").Return(dto.JobStatus{Status: enum.JobStatusIdle, Errors: []dto.JobError{}})

	w := f.do(http.MethodGet, "/jobs/refresh-all", "")
	require.Equal(t, http.StatusOK, w.Code)

	var status map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	for _, key := range []string{"status", "total", "processed", "errors", "running"} {
		assert.Contains(t, status, key)
	}
}

func TestDocuments_Search(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/documents?q=INVOICE&classification=invoice", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp SearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 1, resp.Total)
	require.Len(t, resp.Documents, 1)
	assert.Equal(t, f.document.ID, resp.Documents[0].ID)

	w = f.do(http.MethodGet, "/documents?q=nothing-matches", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"documents":[]`)
}

func TestDocuments_SearchRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/documents?limit=abc", "/documents?offset=-1", "/documents?classification=spam"} {
		w := f.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Equal(t, enum.ErrorKindInvalid, decodeError(t, w).Kind, path)
	}
}

func TestDocuments_Get(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/documents/"+f.document.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"originalFilename":"invoice-1042.pdf"`)

	w = f.do(http.MethodGet, "/documents/doc_unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, enum.ErrorKindNotFound, decodeError(t, w).Kind)
}

func TestDocuments_Download(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/documents/"+f.document.ID+"/download", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pdf-content", w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "2025-03-14_vendor_invoice-1042.pdf")
}

func TestDocuments_Preview(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/documents/"+f.document.ID+"/preview", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	w = f.do(http.MethodGet, "/documents/"+f.document.ID+"/preview?page=2", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/documents/"+f.document.ID+"/preview?page=3", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/documents/"+f.document.ID+"/preview?page=first", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocuments_Verify(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/documents/"+f.document.ID+"/verify", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"documentId":"`+f.document.ID+`","verified":true}`, w.Body.String())

	f.store.verifyErr[f.document.ID] = &mailarchive_errors.IntegrityError{Path: f.document.StoragePath, Expected: "a", Actual: "missing"}
	w = f.do(http.MethodPost, "/documents/"+f.document.ID+"/verify", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"verified":false`)

	f.store.verifyErr["doc_unknown"] = errors.Wrap(mailarchive_errors.ErrNotFound, "doc_unknown")
	w = f.do(http.MethodPost, "/documents/doc_unknown/verify", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEmails_Search(t *testing.T) {
	f := newFixture(t)
	testutil.CreateEmail(t, f.db, f.account.ID, "<m2@vendor.example>", testutil.WithSubject("Shipping notice"))

	w := f.do(http.MethodGet, "/emails?q=invoice&accountId="+f.account.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp EmailSearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 1, resp.Total)
	require.Len(t, resp.Emails, 1)
	assert.Equal(t, f.email.ID, resp.Emails[0].ID)
	assert.Greater(t, resp.Emails[0].Rank, 0.0)
	assert.Equal(t, "Your invoice", resp.Emails[0].Snippet)

	w = f.do(http.MethodGet, "/emails?q=%25", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"emails":[]`)

	w = f.do(http.MethodGet, "/emails?status=pending&limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 2, resp.Total)
	assert.Len(t, resp.Emails, 1)
}

func TestEmails_SearchRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/emails?status=done", "/emails?classification=spam", "/emails?limit=x"} {
		w := f.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Equal(t, enum.ErrorKindInvalid, decodeError(t, w).Kind, path)
	}
}

func TestEmails_Reprocess(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/emails/"+f.email.ID+"/reprocess", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"completed"`)
	assert.Equal(t, []string{f.email.ID}, f.pipeline.processed)

	w = f.do(http.MethodPost, "/emails/missing/reprocess", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEmails_Logs(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repos.IngestionLogRepository.Add(context.Background(), &models.IngestionLog{
		EmailID: &f.email.ID,
		Action:  enum.LogActionProcessEmail,
		Status:  enum.LogStatusSuccess,
		Message: "processed",
	}))

	w := f.do(http.MethodGet, "/emails/"+f.email.ID+"/logs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"message":"processed"`)

	w = f.do(http.MethodGet, "/emails/unknown/logs", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAccounts_SetSecret(t *testing.T) {
	f := newFixture(t)
	path := "/accounts/" + f.account.ID + "/credentials"

	w := f.do(http.MethodPut, path, `{"secret":"app-password"}`)
	assert.Equal(t, http.StatusLocked, w.Code)
	assert.Equal(t, enum.ErrorKindLockedCredentials, decodeError(t, w).Kind)

	w = f.do(http.MethodPost, "/credentials/unlock", `{"password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodPost, "/credentials/unlock", `{"password":"hunter2"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"unlocked":true}`, w.Body.String())

	w = f.do(http.MethodPut, path, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPut, "/accounts/acct_unknown/credentials", `{"secret":"x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodPut, path, `{"secret":"app-password"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "app-password", f.credentials.secrets[f.account.ID])

	w = f.do(http.MethodPost, "/credentials/lock", "")
	assert.JSONEq(t, `{"unlocked":false}`, w.Body.String())
	assert.False(t, f.credentials.IsUnlocked())
}

func TestAccounts_List(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/accounts", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"email":"archive@example.com"`)
}
