package services

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/customeros/mailarchive/config"
	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/logger"
	"github.com/customeros/mailarchive/internal/repository"
	"github.com/customeros/mailarchive/services/attachments"
	"github.com/customeros/mailarchive/services/classifier"
	"github.com/customeros/mailarchive/services/classifier/gemini"
	"github.com/customeros/mailarchive/services/classifier/ollama"
	"github.com/customeros/mailarchive/services/credentials"
	"github.com/customeros/mailarchive/services/documents"
	"github.com/customeros/mailarchive/services/events"
	"github.com/customeros/mailarchive/services/extractor"
	"github.com/customeros/mailarchive/services/extractor/mupdf"
	"github.com/customeros/mailarchive/services/extractor/tesseract"
	"github.com/customeros/mailarchive/services/fetcher"
	"github.com/customeros/mailarchive/services/fetcher/chrome"
	"github.com/customeros/mailarchive/services/imap"
	"github.com/customeros/mailarchive/services/jobs"
	"github.com/customeros/mailarchive/services/links"
	"github.com/customeros/mailarchive/services/pipeline"
	"github.com/customeros/mailarchive/services/poller"
	"github.com/customeros/mailarchive/services/preview"
	"github.com/customeros/mailarchive/services/storage"
)

type Services struct {
	EventsService *events.EventsService
	Credentials   interfaces.CredentialStore
	Source        *imap.IMAPSource
	Mirror        interfaces.StorageService
	Classifier    interfaces.Classifier
	Store         interfaces.DocumentStore
	Pipeline      interfaces.IngestionPipeline
	Jobs          interfaces.JobTracker
	Poller        interfaces.Poller
	Preview       interfaces.PreviewService

	closers []func() error
}

// InitServices wires every service. RabbitMQ and the object mirror are only
// connected when configured.
func InitServices(ctx context.Context, cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	s := &Services{}

	if cfg.AppConfig.RabbitMQURL != "" {
		publisherConfig := &events.PublisherConfig{
			MessageTTL:          events.DefaultMessageTTL,
			MaxRetries:          events.DefaultMaxRetries,
			PublishTimeout:      events.DefaultPublishTimeout,
			ReconnectBackoff:    events.DefaultReconnectBackoff,
			MaxReconnectBackoff: events.DefaultMaxReconnectBackoff,
		}
		subscriberConfig := &events.SubscriberConfig{
			MaxRetries:          events.DefaultMaxRetries,
			ReconnectBackoff:    events.DefaultReconnectBackoff,
			MaxReconnectBackoff: events.DefaultMaxReconnectBackoff,
		}
		eventsService, err := events.NewEventsService(cfg.AppConfig.RabbitMQURL, log, publisherConfig, subscriberConfig)
		if err != nil {
			return nil, errors.Wrap(err, "events")
		}
		s.EventsService = eventsService
		s.closers = append(s.closers, eventsService.Close)
	}

	mirror, err := storage.NewFromConfig(cfg.ObjectStorageConfig)
	if err != nil {
		_ = s.Close()
		return nil, errors.Wrap(err, "object storage")
	}
	s.Mirror = mirror

	model, err := languageModel(ctx, cfg, s)
	if err != nil {
		_ = s.Close()
		return nil, errors.Wrap(err, "classifier model")
	}
	s.Classifier = classifier.NewClassifier(cfg.ClassifierConfig, model, log)

	s.Credentials = credentials.NewCredentialStore(repos.CredentialRepository, log)
	if cfg.CredentialsConfig.MasterKey != "" {
		if err := s.Credentials.Unlock(ctx, masterPassword(cfg.CredentialsConfig.MasterKey)); err != nil {
			log.Warn("Unattended credential unlock failed", zap.Error(err))
		}
	}
	s.Source = imap.NewIMAPSource(s.Credentials, cfg.FetcherConfig.Timeout, log)

	s.Store = documents.NewDocumentStore(cfg.StorageConfig, repos.DocumentRepository, repos.IngestionLogRepository, s.Mirror, log)

	var ocr interfaces.OCREngine
	if cfg.OCRConfig.Enabled {
		ocr = tesseract.NewEngine(cfg.OCRConfig.Language)
	}
	pdf := mupdf.NewOpener()
	text := extractor.NewTextExtractor(cfg.OCRConfig, pdf, ocr, extractor.NewDocconvConverter(false), log)

	var publisher interfaces.EventPublisher
	if s.EventsService != nil {
		publisher = s.EventsService.Publisher
	}

	attachmentExtractor := attachments.NewAttachmentExtractor(log)
	linkExtractor := links.NewLinkExtractor(cfg.LinkConfig, log)

	s.Pipeline = pipeline.NewIngestionPipeline(pipeline.Dependencies{
		Accounts:    repos.AccountRepository,
		Emails:      repos.EmailRepository,
		Logs:        repos.IngestionLogRepository,
		Attachments: attachmentExtractor,
		Links:       linkExtractor,
		Fetcher:     fetcher.NewContentFetcher(cfg.FetcherConfig, chrome.NewRenderer(cfg.FetcherConfig, log), log),
		Text:        text,
		Classifier:  s.Classifier,
		Store:       s.Store,
		Publisher:   publisher,
	}, log)

	s.Jobs = jobs.NewJobTracker(repos.EmailRepository, repos.IngestionLogRepository, s.Pipeline, log)

	s.Poller = poller.NewPoller(poller.Dependencies{
		Accounts:    repos.AccountRepository,
		Emails:      repos.EmailRepository,
		Logs:        repos.IngestionLogRepository,
		Source:      s.Source,
		PostActions: s.Source,
		Pipeline:    s.Pipeline,
		Publisher:   publisher,
		Attachments: attachmentExtractor,
		Links:       linkExtractor,
	}, cfg.SchedulerConfig.MaxConcurrent, log)

	s.Preview = preview.NewPreviewService(repos.DocumentRepository, s.Store, pdf, cfg.OCRConfig, log)

	return s, nil
}

func languageModel(ctx context.Context, cfg *config.Config, s *Services) (interfaces.LanguageModel, error) {
	switch cfg.ClassifierConfig.Provider {
	case "gemini":
		model, err := gemini.NewModel(ctx, cfg.ClassifierConfig.GeminiAPIKey, cfg.ClassifierConfig.Model)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, model.Close)
		return model, nil
	case "ollama":
		return ollama.NewModel(cfg.ClassifierConfig.OllamaURL, cfg.ClassifierConfig.Model), nil
	}
	return nil, nil
}

// masterPassword accepts the configured key either base64 encoded or as is.
func masterPassword(key string) string {
	if decoded, err := base64.StdEncoding.DecodeString(key); err == nil && len(decoded) > 0 {
		return string(decoded)
	}
	return key
}

// Close releases connections in reverse order of creation.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing services: %v", errs)
	}
	return nil
}
