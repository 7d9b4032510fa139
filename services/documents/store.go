// Package documents is the content-addressed write path of the archive.
package documents

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/customeros/mailarchive/dto"
	mailarchive_errors "github.com/customeros/mailarchive/errors"
	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/config"
	"github.com/customeros/mailarchive/internal/enum"
	"github.com/customeros/mailarchive/internal/logger"
	"github.com/customeros/mailarchive/internal/models"
	"github.com/customeros/mailarchive/internal/tracing"
	"github.com/customeros/mailarchive/internal/utils"
	"github.com/customeros/mailarchive/services/hasher"
)

const maxCollisionSuffix = 10000

type documentStore struct {
	cfg       *config.StorageConfig
	documents interfaces.DocumentRepository
	logs      interfaces.IngestionLogRepository
	mirror    interfaces.StorageService
	locks     *utils.KeyedMutex
	log       logger.Logger

	// swapped in tests to simulate a bad write
	writeFile func(dir, path string, data []byte) error
}

// NewDocumentStore builds the store. mirror may be nil.
func NewDocumentStore(cfg *config.StorageConfig, documents interfaces.DocumentRepository, logs interfaces.IngestionLogRepository, mirror interfaces.StorageService, log logger.Logger) interfaces.DocumentStore {
	return &documentStore{
		cfg:       cfg,
		documents: documents,
		logs:      logs,
		mirror:    mirror,
		locks:     utils.NewKeyedMutex(),
		log:       log,
		writeFile: atomicWrite,
	}
}

func (s *documentStore) FindDuplicate(ctx context.Context, emailID *string, hash string) (*models.Document, error) {
	return s.documents.FindDuplicate(ctx, emailID, hash)
}

// Store writes the payload and inserts its Document row. When the email
// already holds the same content it returns the existing row together with
// ErrDuplicateDocument and writes nothing. A hash mismatch after the write
// returns the row, flagged unverified, with an IntegrityError.
func (s *documentStore) Store(ctx context.Context, req interfaces.StoreRequest) (*models.Document, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DocumentStore.Store")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if req.Content == nil || len(req.Content.Data) == 0 {
		return nil, errors.Wrap(mailarchive_errors.ErrInvalidInput, "empty content")
	}
	hash := req.Hash
	if hash == "" {
		hash = hasher.Hash(req.Content.Data)
	}
	var emailID *string
	if req.Email != nil {
		emailID = &req.Email.ID
		tracing.TagEntity(span, req.Email.ID)
	}
	span.LogKV("hash", hash, "filename", req.Content.Filename)

	if existing, err := s.documents.FindDuplicate(ctx, emailID, hash); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	} else if existing != nil {
		s.logDuplicate(ctx, req, existing)
		return existing, mailarchive_errors.ErrDuplicateDocument
	}

	segments, err := resolveDir(s.cfg.FolderTemplate, tokensFor(req.Email, req.Account, s.cfg.DateFormat), s.cfg.MaxNameLength)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	filename := SanitizeFilename(storedName(req.Content), s.cfg.MaxNameLength)
	target, err := containedPath(s.cfg.BaseDir, append(segments, filename)...)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	// the write and the insert finish even if the caller goes away
	writeCtx := context.WithoutCancel(ctx)

	unlock := s.locks.Lock(target)
	defer unlock()

	// a concurrent writer may have stored the same content while we waited
	if existing, err := s.documents.FindDuplicate(writeCtx, emailID, hash); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	} else if existing != nil {
		s.logDuplicate(writeCtx, req, existing)
		return existing, mailarchive_errors.ErrDuplicateDocument
	}

	finalPath, err := s.freePath(writeCtx, target)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	dir := filepath.Dir(finalPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "create document directory")
	}
	if err := s.writeFile(dir, finalPath, req.Content.Data); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "write document")
	}

	written, err := hasher.HashFile(finalPath)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "re-hash document")
	}
	verified := hasher.Equal(written, hash)

	document := s.newDocument(req, emailID, hash, finalPath, verified)
	entry := s.entry(req, enum.LogActionStoreDocument, enum.LogStatusSuccess, enum.ErrorKindNone, "Stored "+document.StoredFilename)
	entry.Details = models.JSONMap{"path": finalPath, "hash": hash, "source": string(document.SourceType)}

	var integrityErr *mailarchive_errors.IntegrityError
	if !verified {
		integrityErr = &mailarchive_errors.IntegrityError{Path: finalPath, Expected: hash, Actual: written}
		entry.Action = enum.LogActionVerifyIntegrity
		entry.Status = enum.LogStatusError
		entry.Kind = enum.ErrorKindIntegrity
		entry.Message = integrityErr.Error()
	}

	if err := s.documents.CreateWithLog(writeCtx, document, entry); err != nil {
		// nothing references the file we just wrote
		if rmErr := os.Remove(finalPath); rmErr != nil {
			s.log.Warn("Failed to remove orphaned document file", zap.String("path", finalPath), zap.Error(rmErr))
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, findErr := s.documents.FindDuplicate(writeCtx, emailID, hash)
			if findErr == nil && existing != nil {
				s.logDuplicate(writeCtx, req, existing)
				return existing, mailarchive_errors.ErrDuplicateDocument
			}
		}
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "insert document")
	}

	if integrityErr != nil {
		tracing.TraceErr(span, integrityErr)
		s.log.Error("Stored document failed integrity check", zap.String("documentId", document.ID), zap.String("path", finalPath))
		return document, integrityErr
	}

	s.mirrorDocument(writeCtx, document, req.Content.Data)
	span.LogKV("documentId", document.ID, "path", finalPath)
	return document, nil
}

// freePath appends _N before the extension until neither the disk nor the
// documents table claims the path.
func (s *documentStore) freePath(ctx context.Context, target string) (string, error) {
	candidate := target
	for n := 1; n <= maxCollisionSuffix; n++ {
		taken, err := s.pathTaken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = withSuffix(target, n)
	}
	return "", errors.Errorf("no free path for %s", target)
}

func (s *documentStore) pathTaken(ctx context.Context, path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return true, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}
	return s.documents.PathTaken(ctx, path)
}

func (s *documentStore) newDocument(req interfaces.StoreRequest, emailID *string, hash, path string, verified bool) *models.Document {
	source := enum.DocumentSource(req.Source)
	if source == "" {
		source = enum.SourceAttachment
	}
	document := &models.Document{
		EmailID:          emailID,
		OriginalFilename: req.Content.Filename,
		StoredFilename:   filepath.Base(path),
		MimeType:         req.Content.MimeType,
		ByteSize:         int64(len(req.Content.Data)),
		ContentHash:      hash,
		StoragePath:      path,
		Classification:   req.Class.Label,
		AISummary:        req.Class.Summary,
		HashVerified:     verified,
		SourceType:       source,
		SourceURL:        req.Content.SourceURL,
	}
	if document.Classification == "" {
		document.Classification = enum.LabelOther
	}
	document.Category = document.Classification.Category()
	if req.Extraction != nil {
		document.ExtractedText = req.Extraction.Text
		document.PageCount = req.Extraction.PageCount
		document.OCRUsed = req.Extraction.OCRUsed
	}
	return document
}

func (s *documentStore) mirrorDocument(ctx context.Context, document *models.Document, data []byte) {
	if s.mirror == nil {
		return
	}
	key := filepath.ToSlash(relativeTo(s.cfg.BaseDir, document.StoragePath))
	if err := s.mirror.Upload(ctx, key, data, document.MimeType); err != nil {
		s.log.Warn("Failed to mirror document", zap.String("documentId", document.ID), zap.Error(err))
		return
	}
	if err := s.documents.SetObjectKey(ctx, document.ID, key); err != nil {
		s.log.Warn("Failed to record mirror key", zap.String("documentId", document.ID), zap.Error(err))
		return
	}
	document.ObjectKey = key
}

func (s *documentStore) logDuplicate(ctx context.Context, req interfaces.StoreRequest, existing *models.Document) {
	entry := s.entry(req, enum.LogActionDuplicateSkipped, enum.LogStatusInfo, enum.ErrorKindDuplicate,
		"Duplicate skipped: "+req.Content.Filename+" matches "+existing.StoredFilename)
	entry.DocumentID = &existing.ID
	entry.Details = models.JSONMap{"hash": existing.ContentHash}
	if err := s.logs.Add(ctx, entry); err != nil {
		s.log.Warn("Failed to write ingestion log", zap.Error(err))
	}
}

func (s *documentStore) entry(req interfaces.StoreRequest, action enum.LogAction, status enum.LogStatus, kind enum.ErrorKind, message string) *models.IngestionLog {
	entry := &models.IngestionLog{
		Action:  action,
		Status:  status,
		Kind:    kind,
		Message: message,
	}
	if req.Email != nil {
		entry.EmailID = &req.Email.ID
		entry.AccountID = &req.Email.AccountID
	} else if req.Account != nil {
		entry.AccountID = &req.Account.ID
	}
	return entry
}

// storedName picks the filename to store, adding an extension from the
// media type when the name has none.
func storedName(content *dto.FetchedContent) string {
	name := content.Filename
	if name == "" {
		name = "document"
	}
	if filepath.Ext(name) == "" {
		name += "." + utils.GetFileExtensionFromContentType(content.MimeType)
	}
	return name
}

// atomicWrite writes data to a temp file in dir and renames it into place.
func atomicWrite(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".incoming-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

// Open returns the stored bytes, falling back to the mirror when the local
// file is gone.
func (s *documentStore) Open(ctx context.Context, document *models.Document) (io.ReadCloser, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DocumentStore.Open")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, document.ID)

	if _, err := containedPath(s.cfg.BaseDir, relativeTo(s.cfg.BaseDir, document.StoragePath)); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	f, err := os.Open(document.StoragePath)
	if err == nil {
		return f, nil
	}
	if !os.IsNotExist(err) || s.mirror == nil || document.ObjectKey == "" {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(mailarchive_errors.ErrNotFound, err.Error())
	}
	data, mirrorErr := s.mirror.Download(ctx, document.ObjectKey)
	if mirrorErr != nil {
		tracing.TraceErr(span, mirrorErr)
		return nil, errors.Wrap(mirrorErr, "download mirrored document")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func relativeTo(base, path string) string {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return path
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(absBase, absPath)
	if err != nil {
		return path
	}
	return rel
}
