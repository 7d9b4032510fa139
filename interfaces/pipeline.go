package interfaces

import (
	"context"
	"io"
	"iter"

	"github.com/customeros/mailarchive/dto"
	"github.com/customeros/mailarchive/internal/models"
)

type LinkExtractor interface {
	Extract(html, text string) iter.Seq[dto.Link]
}

type AttachmentExtractor interface {
	// Extract returns the attachments of a raw RFC 822 message. Inline parts
	// referenced from the html body are only returned when includeInline is set.
	Extract(raw []byte, includeInline bool) ([]dto.Attachment, error)
}

type ContentFetcher interface {
	FetchURL(ctx context.Context, url string) (*dto.FetchedContent, error)
}

// PageRenderer prints a web page to PDF bytes.
type PageRenderer interface {
	RenderPDF(ctx context.Context, url string) ([]byte, error)
}

type TextExtractor interface {
	Extract(ctx context.Context, data []byte, mimeType, filename string) (*dto.ExtractionResult, error)
}

// PDFDocument is an opened PDF. Pages are zero-based.
type PDFDocument interface {
	NumPage() int
	Text(page int) (string, error)
	ImagePNG(page int, dpi float64) ([]byte, error)
	Close() error
}

type PDFOpener interface {
	Open(data []byte) (PDFDocument, error)
}

type OCREngine interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// DocumentConverter turns office and markup formats into plain text.
type DocumentConverter interface {
	Supports(mimeType string) bool
	Convert(data []byte, mimeType string) (string, error)
}

type Classifier interface {
	// Classify always returns a label from the fixed set.
	Classify(ctx context.Context, text, filename string) dto.Classification
	ClassifyEmail(ctx context.Context, email *models.Email) dto.EmailClassification
}

// LanguageModel is an external model used by the classifier.
type LanguageModel interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

type StoreRequest struct {
	Email      *models.Email
	Account    *models.Account
	Content    *dto.FetchedContent
	Hash       string
	Extraction *dto.ExtractionResult
	Class      dto.Classification
	Source     string
}

type DocumentStore interface {
	FindDuplicate(ctx context.Context, emailID *string, hash string) (*models.Document, error)
	Store(ctx context.Context, req StoreRequest) (*models.Document, error)
	Verify(ctx context.Context, documentID string) error
	VerifyAll(ctx context.Context) (*dto.VerifyOutcome, error)
	Open(ctx context.Context, document *models.Document) (io.ReadCloser, error)
}

type IngestionPipeline interface {
	ProcessEmail(ctx context.Context, emailID string) (*dto.EmailOutcome, error)
}

// JobTracker runs at most one refresh-all job at a time. The last job's
// final counts stay readable until the next start.
type JobTracker interface {
	StartRefreshAll(ctx context.Context) (dto.JobStatus, error)
	Status() dto.JobStatus
	// Wait blocks until the current job, if any, has finished.
	Wait(ctx context.Context) dto.JobStatus
	Shutdown(ctx context.Context) error
}

type Poller interface {
	PollAccount(ctx context.Context, accountID string) (*dto.PollOutcome, error)
	PollDue(ctx context.Context) []*dto.PollOutcome
}

type PreviewService interface {
	RenderPage(ctx context.Context, documentID string, page int) ([]byte, error)
}
