// Package fetcher resolves invoice links into document bytes.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/customeros/mailarchive/dto"
	mailarchive_errors "github.com/customeros/mailarchive/errors"
	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/config"
	"github.com/customeros/mailarchive/internal/logger"
	"github.com/customeros/mailarchive/internal/tracing"
	"github.com/customeros/mailarchive/internal/utils"
)

const (
	pdfMagic            = "%PDF-"
	defaultPDFFilename  = "downloaded_invoice.pdf"
	defaultPageFilename = "captured_page.pdf"
)

type contentFetcher struct {
	cfg      *config.FetcherConfig
	client   *http.Client
	renderer interfaces.PageRenderer
	log      logger.Logger
}

// NewContentFetcher builds a fetcher. renderer may be nil, in which case
// pages that are not direct files fail with a FetchError.
func NewContentFetcher(cfg *config.FetcherConfig, renderer interfaces.PageRenderer, log logger.Logger) interfaces.ContentFetcher {
	f := &contentFetcher{
		cfg:      cfg,
		renderer: renderer,
		log:      log,
	}
	f.client = &http.Client{
		CheckRedirect: f.checkRedirect,
	}
	return f
}

func (f *contentFetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) > f.cfg.MaxRedirects {
		return errors.Errorf("stopped after %d redirects", f.cfg.MaxRedirects)
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return errors.Errorf("redirect to unsupported scheme %q", req.URL.Scheme)
	}
	return nil
}

func (f *contentFetcher) FetchURL(ctx context.Context, rawURL string) (*dto.FetchedContent, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ContentFetcher.FetchURL")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("url", rawURL)

	content, err := f.fetch(ctx, rawURL)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.LogKV("mimeType", content.MimeType, "bytes", len(content.Data), "rendered", content.Rendered)
	return content, nil
}

func (f *contentFetcher) fetch(ctx context.Context, rawURL string) (*dto.FetchedContent, error) {
	if !f.cfg.AllowOutbound {
		return nil, mailarchive_errors.NewFetchError(rawURL, 0, "", mailarchive_errors.ErrOutboundDisabled)
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, mailarchive_errors.NewFetchError(rawURL, 0, "invalid url", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, mailarchive_errors.NewFetchError(rawURL, 0, "unsupported scheme "+u.Scheme, nil)
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, mailarchive_errors.NewFetchError(rawURL, 0, "failed to build request", err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	req = tracing.InjectSpanContextIntoHTTPRequest(req, opentracing.SpanFromContext(ctx))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, mailarchive_errors.NewFetchError(rawURL, 0, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, mailarchive_errors.NewFetchError(rawURL, resp.StatusCode, "unexpected status", nil)
	}
	if resp.ContentLength > f.cfg.MaxBytes {
		return nil, mailarchive_errors.NewFetchError(rawURL, resp.StatusCode, fmt.Sprintf("content length %d exceeds limit", resp.ContentLength), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return nil, mailarchive_errors.NewFetchError(rawURL, resp.StatusCode, "failed to read body", err)
	}
	if int64(len(data)) > f.cfg.MaxBytes {
		return nil, mailarchive_errors.NewFetchError(rawURL, resp.StatusCode, fmt.Sprintf("body exceeds %d bytes", f.cfg.MaxBytes), nil)
	}
	if len(data) == 0 {
		return nil, mailarchive_errors.NewFetchError(rawURL, resp.StatusCode, "empty body", nil)
	}

	finalURL := resp.Request.URL
	mimeType := utils.MediaType(resp.Header.Get("Content-Type"))
	if bytes.HasPrefix(data, []byte(pdfMagic)) {
		mimeType = utils.ContentTypePDF
	}

	if isDirectFile(mimeType) {
		if mimeType == "" || mimeType == "application/octet-stream" {
			mimeType = utils.ContentTypeFromFilename(finalURL.Path)
		}
		return &dto.FetchedContent{
			Data:      data,
			MimeType:  mimeType,
			Filename:  filenameFor(resp.Header.Get("Content-Disposition"), finalURL, mimeType),
			SourceURL: rawURL,
		}, nil
	}

	return f.render(ctx, rawURL, finalURL)
}

// render prints an html page (or any non-file response) to PDF.
func (f *contentFetcher) render(ctx context.Context, rawURL string, pageURL *url.URL) (*dto.FetchedContent, error) {
	if f.renderer == nil {
		return nil, mailarchive_errors.NewFetchError(rawURL, 0, "page is not a file and no renderer is configured", nil)
	}
	f.log.Debug("Rendering page to pdf", zap.String("url", pageURL.String()))

	pdf, err := f.renderer.RenderPDF(ctx, pageURL.String())
	if err != nil {
		return nil, mailarchive_errors.NewFetchError(rawURL, 0, "render failed", err)
	}
	if len(pdf) == 0 {
		return nil, mailarchive_errors.NewFetchError(rawURL, 0, "render produced empty pdf", nil)
	}
	return &dto.FetchedContent{
		Data:      pdf,
		MimeType:  utils.ContentTypePDF,
		Filename:  renderedFilename(pageURL),
		SourceURL: rawURL,
		Rendered:  true,
	}, nil
}

func isDirectFile(mimeType string) bool {
	switch {
	case utils.IsPDFContentType(mimeType), utils.IsImageContentType(mimeType):
		return true
	case mimeType == "application/octet-stream", mimeType == "application/force-download":
		return true
	case strings.HasPrefix(mimeType, "text/"), mimeType == "application/xhtml+xml", mimeType == "":
		return false
	}
	return utils.IsProcessableContentType(mimeType)
}

// filenameFor prefers Content-Disposition, then the last URL path segment.
func filenameFor(disposition string, u *url.URL, mimeType string) string {
	name := ""
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			name = params["filename"]
		}
	}
	if name == "" {
		if base := path.Base(u.Path); strings.Contains(base, ".") {
			if unescaped, err := url.PathUnescape(base); err == nil {
				base = unescaped
			}
			name = base
		}
	}
	name = strings.TrimSpace(path.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		if utils.IsPDFContentType(mimeType) {
			return defaultPDFFilename
		}
		return "downloaded_document." + utils.GetFileExtensionFromContentType(mimeType)
	}
	if utils.IsPDFContentType(mimeType) && !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	return name
}

func renderedFilename(u *url.URL) string {
	base := strings.TrimSuffix(path.Base(u.Path), path.Ext(u.Path))
	if base == "" || base == "." || base == "/" {
		base = u.Hostname()
	}
	if base == "" {
		return defaultPageFilename
	}
	return base + ".pdf"
}
