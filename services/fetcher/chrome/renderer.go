// Package chrome prints web pages to PDF with a headless Chrome.
package chrome

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/config"
	"github.com/customeros/mailarchive/internal/logger"
	"github.com/customeros/mailarchive/internal/tracing"
)

type renderer struct {
	// one browser at a time
	mu  sync.Mutex
	cfg *config.FetcherConfig
	log logger.Logger
}

func NewRenderer(cfg *config.FetcherConfig, log logger.Logger) interfaces.PageRenderer {
	return &renderer{cfg: cfg, log: log}
}

// RenderPDF starts a browser for a single capture and tears it down before
// returning, on success and on failure.
func (r *renderer) RenderPDF(ctx context.Context, url string) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Renderer.RenderPDF")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("url", url)

	r.mu.Lock()
	defer r.mu.Unlock()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.NoFirstRun,
	)
	if r.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(r.cfg.UserAgent))
	}
	if r.cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.cfg.ChromePath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...interface{}) {
		r.log.Debugf(format, args...)
	}))
	defer cancelTab()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, r.cfg.RenderTimeout)
	defer cancelTimeout()

	var pdf []byte
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		tracing.TraceErr(span, err)
		r.log.Warn("Headless render failed", zap.String("url", url), zap.Error(err))
		return nil, errors.Wrap(err, "headless render")
	}
	span.LogKV("bytes", len(pdf))
	return pdf, nil
}
