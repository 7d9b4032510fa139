// Package links finds invoice and document download links in email bodies.
package links

import (
	"iter"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/customeros/mailarchive/dto"
	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/config"
	"github.com/customeros/mailarchive/internal/logger"
	"github.com/customeros/mailarchive/internal/utils"
)

var (
	urlPattern        = regexp.MustCompile(`(?i)https?://[^\s<>"']+`)
	downloadPathParts = []string{"/download/", "/get/", "/fetch/", "/view/"}
)

const trailingPunctuation = ".,;:)>]}'\""

type linkExtractor struct {
	keywords       []string
	invoiceDomains []string
	log            logger.Logger
}

func NewLinkExtractor(cfg *config.LinkConfig, log logger.Logger) interfaces.LinkExtractor {
	return &linkExtractor{
		keywords:       cfg.Keywords,
		invoiceDomains: cfg.InvoiceDomains,
		log:            log,
	}
}

// Extract yields candidate links from html, or from text when html is empty.
// Each URL is yielded at most once, in document order.
func (e *linkExtractor) Extract(html, text string) iter.Seq[dto.Link] {
	return func(yield func(dto.Link) bool) {
		seen := make(map[string]struct{})
		emit := func(link dto.Link) bool {
			if _, ok := seen[link.URL]; ok {
				return true
			}
			seen[link.URL] = struct{}{}
			return yield(link)
		}

		if strings.TrimSpace(html) != "" {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
			if err != nil {
				e.log.Warn("Failed to parse email html, no links extracted", zap.Error(err))
				return
			}
			stopped := false
			doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
				href, _ := s.Attr("href")
				anchor := strings.Join(strings.Fields(s.Text()), " ")
				if link, ok := e.candidate(href, anchor); ok {
					if !emit(link) {
						stopped = true
						return false
					}
				}
				return true
			})
			if stopped {
				return
			}
			// bare URLs in the visible text of the html part
			text = doc.Text()
		}

		for _, raw := range urlPattern.FindAllString(text, -1) {
			raw = strings.TrimRight(raw, trailingPunctuation)
			if link, ok := e.candidate(raw, ""); ok {
				if !emit(link) {
					return
				}
			}
		}
	}
}

func (e *linkExtractor) candidate(raw, anchor string) (dto.Link, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return dto.Link{}, false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return dto.Link{}, false
	}
	u.Fragment = ""
	link := dto.Link{URL: u.String(), AnchorText: anchor}

	if e.matchesURL(u) || utils.ContainsAnyFold(anchor, e.keywords) {
		return link, true
	}
	return dto.Link{}, false
}

func (e *linkExtractor) matchesURL(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	path := strings.ToLower(u.EscapedPath())

	if utils.ContainsAnyFold(host+path, e.keywords) {
		return true
	}
	if strings.HasSuffix(path, ".pdf") {
		return true
	}
	for _, part := range downloadPathParts {
		if strings.Contains(path, part) {
			return true
		}
	}
	if len(e.invoiceDomains) > 0 {
		registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
		if err == nil && utils.IsStringInSlice(registrable, e.invoiceDomains) {
			return true
		}
	}
	return false
}
