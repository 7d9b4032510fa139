// Package extractor produces searchable text from stored payloads.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"

	"github.com/customeros/mailarchive/dto"
	mailarchive_errors "github.com/customeros/mailarchive/errors"
	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/config"
	"github.com/customeros/mailarchive/internal/logger"
	"github.com/customeros/mailarchive/internal/tracing"
	"github.com/customeros/mailarchive/internal/utils"
)

type textExtractor struct {
	cfg       *config.OCRConfig
	pdf       interfaces.PDFOpener
	ocr       interfaces.OCREngine
	converter interfaces.DocumentConverter
	log       logger.Logger
}

// NewTextExtractor wires the engines. ocr and converter may be nil; the
// formats they handle then yield empty text.
func NewTextExtractor(cfg *config.OCRConfig, pdf interfaces.PDFOpener, ocr interfaces.OCREngine, converter interfaces.DocumentConverter, log logger.Logger) interfaces.TextExtractor {
	return &textExtractor{
		cfg:       cfg,
		pdf:       pdf,
		ocr:       ocr,
		converter: converter,
		log:       log,
	}
}

// Extract dispatches on the media type. Unsupported types return an empty
// result without error. A corrupt PDF returns an ExtractionError.
func (e *textExtractor) Extract(ctx context.Context, data []byte, mimeType, filename string) (*dto.ExtractionResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TextExtractor.Extract")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	mimeType = resolveMimeType(data, mimeType, filename)
	span.LogKV("mimeType", mimeType, "filename", filename, "bytes", len(data))

	var (
		result *dto.ExtractionResult
		err    error
	)
	switch {
	case utils.IsPDFContentType(mimeType):
		result, err = e.extractPDF(ctx, data, filename)
	case utils.IsImageContentType(mimeType):
		result = e.extractImage(ctx, data, filename)
	case mimeType == "text/plain" || mimeType == "text/csv":
		result = &dto.ExtractionResult{Text: strings.ToValidUTF8(string(data), ""), PageCount: 1}
	case e.converter != nil && e.converter.Supports(mimeType):
		result, err = e.convert(data, mimeType, filename)
	default:
		result = &dto.ExtractionResult{}
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	result.Text = strings.TrimSpace(result.Text)
	span.LogKV("pages", result.PageCount, "ocr", result.OCRUsed, "pageErrors", result.PageErrors, "chars", utf8.RuneCountInString(result.Text))
	return result, nil
}

func (e *textExtractor) extractPDF(ctx context.Context, data []byte, filename string) (*dto.ExtractionResult, error) {
	if e.pdf == nil {
		return &dto.ExtractionResult{}, nil
	}
	doc, err := e.pdf.Open(data)
	if err != nil {
		return nil, mailarchive_errors.NewExtractionError(filename, "unreadable pdf", err)
	}
	defer doc.Close()

	result := &dto.ExtractionResult{PageCount: doc.NumPage()}
	pages := make([]string, 0, result.PageCount)
	for i := 0; i < result.PageCount; i++ {
		text, err := doc.Text(i)
		if err != nil {
			e.log.Warn("Failed to read pdf text layer", zap.String("file", filename), zap.Int("page", i+1), zap.Error(err))
			text = ""
		}
		if e.needsOCR(text) {
			if ocrText, ok := e.ocrPage(ctx, doc, i, filename); ok {
				result.OCRUsed = true
				if strings.TrimSpace(ocrText) != "" {
					text = ocrText
				}
			} else {
				result.PageErrors++
			}
		}
		pages = append(pages, strings.TrimSpace(text))
	}
	result.Text = strings.Join(pages, "\n\n")
	return result, nil
}

// needsOCR treats a page with almost no text layer as scanned.
func (e *textExtractor) needsOCR(text string) bool {
	if e.ocr == nil || !e.cfg.Enabled {
		return false
	}
	return utf8.RuneCountInString(strings.TrimSpace(text)) < e.cfg.MinCharsPerPage
}

func (e *textExtractor) ocrPage(ctx context.Context, doc interfaces.PDFDocument, page int, filename string) (string, bool) {
	img, err := doc.ImagePNG(page, float64(e.cfg.DPI))
	if err != nil {
		e.log.Warn("Failed to render pdf page for ocr", zap.String("file", filename), zap.Int("page", page+1), zap.Error(err))
		return "", false
	}
	text, err := e.ocr.Recognize(ctx, img)
	if err != nil {
		e.log.Warn("OCR failed for page", zap.String("file", filename), zap.Int("page", page+1), zap.Error(err))
		return "", false
	}
	return text, true
}

func (e *textExtractor) extractImage(ctx context.Context, data []byte, filename string) *dto.ExtractionResult {
	result := &dto.ExtractionResult{PageCount: 1}
	if e.ocr == nil || !e.cfg.Enabled {
		return result
	}
	text, err := e.ocr.Recognize(ctx, data)
	if err != nil {
		e.log.Warn("OCR failed for image", zap.String("file", filename), zap.Error(err))
		result.PageErrors = 1
		return result
	}
	result.Text = text
	result.OCRUsed = true
	return result
}

func (e *textExtractor) convert(data []byte, mimeType, filename string) (*dto.ExtractionResult, error) {
	text, err := e.converter.Convert(data, mimeType)
	if err != nil {
		return nil, mailarchive_errors.NewExtractionError(filename, fmt.Sprintf("cannot convert %s", mimeType), err)
	}
	return &dto.ExtractionResult{Text: text, PageCount: 1}, nil
}

func resolveMimeType(data []byte, mimeType, filename string) string {
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return utils.ContentTypePDF
	}
	mt := utils.MediaType(mimeType)
	if mt == "" || mt == "application/octet-stream" {
		mt = utils.ContentTypeFromFilename(filename)
	}
	return mt
}
