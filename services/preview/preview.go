// Package preview renders stored documents as PNG pages.
package preview

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	mailarchive_errors "github.com/customeros/mailarchive/errors"
	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/config"
	"github.com/customeros/mailarchive/internal/logger"
	"github.com/customeros/mailarchive/internal/models"
	"github.com/customeros/mailarchive/internal/tracing"
	"github.com/customeros/mailarchive/internal/utils"
)

type previewService struct {
	documents interfaces.DocumentRepository
	store     interfaces.DocumentStore
	pdf       interfaces.PDFOpener
	dpi       float64
	maxSide   int
	log       logger.Logger
}

func NewPreviewService(documents interfaces.DocumentRepository, store interfaces.DocumentStore, pdf interfaces.PDFOpener, cfg *config.OCRConfig, log logger.Logger) interfaces.PreviewService {
	dpi := float64(cfg.PreviewDPI)
	if dpi <= 0 {
		dpi = 150
	}
	maxSide := cfg.ThumbnailMaxSide
	if maxSide <= 0 {
		maxSide = 800
	}
	return &previewService{
		documents: documents,
		store:     store,
		pdf:       pdf,
		dpi:       dpi,
		maxSide:   maxSide,
		log:       log,
	}
}

// RenderPage returns a PNG of the 1-based page. Images have a single page
// and are scaled down to fit the thumbnail size.
func (s *previewService) RenderPage(ctx context.Context, documentID string, page int) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "PreviewService.RenderPage")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, documentID)
	span.SetTag("page", page)

	document, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if document == nil {
		return nil, errors.Wrap(mailarchive_errors.ErrNotFound, "document "+documentID)
	}
	if page < 1 {
		return nil, errors.Wrapf(mailarchive_errors.ErrPageOutOfRange, "page %d", page)
	}

	mimeType := strings.ToLower(document.MimeType)
	if !utils.IsPDFContentType(mimeType) && !utils.IsImageContentType(mimeType) {
		return nil, errors.Wrap(mailarchive_errors.ErrPreviewUnsupported, document.MimeType)
	}

	data, err := s.read(ctx, document)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	var out []byte
	if utils.IsPDFContentType(mimeType) {
		out, err = s.renderPDF(data, page)
	} else {
		out, err = s.renderImage(data, page)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return out, nil
}

func (s *previewService) read(ctx context.Context, document *models.Document) ([]byte, error) {
	rc, err := s.store.Open(ctx, document)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s *previewService) renderPDF(data []byte, page int) ([]byte, error) {
	if s.pdf == nil {
		return nil, errors.Wrap(mailarchive_errors.ErrEngineUnavailable, "pdf renderer")
	}
	doc, err := s.pdf.Open(data)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := doc.Close(); err != nil {
			s.log.Debug("Failed to close pdf", zap.Error(err))
		}
	}()

	if page > doc.NumPage() {
		return nil, errors.Wrapf(mailarchive_errors.ErrPageOutOfRange, "page %d of %d", page, doc.NumPage())
	}
	return doc.ImagePNG(page-1, s.dpi)
}

func (s *previewService) renderImage(data []byte, page int) ([]byte, error) {
	if page != 1 {
		return nil, errors.Wrapf(mailarchive_errors.ErrPageOutOfRange, "page %d of 1", page)
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(mailarchive_errors.ErrPreviewUnsupported, err.Error())
	}

	img := scaleToFit(src, s.maxSide)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.Wrap(err, "encode png")
	}
	return buf.Bytes(), nil
}

func scaleToFit(src image.Image, maxSide int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxSide && h <= maxSide {
		return src
	}
	if w >= h {
		h = h * maxSide / w
		w = maxSide
	} else {
		w = w * maxSide / h
		h = maxSide
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
