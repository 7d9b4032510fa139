package links

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailarchive/dto"
	"github.com/customeros/mailarchive/internal/config"
	"github.com/customeros/mailarchive/internal/logger"
)

func newTestExtractor() *linkExtractor {
	return NewLinkExtractor(&config.LinkConfig{
		Keywords:       []string{"invoice", "receipt", "statement"},
		InvoiceDomains: []string{"stripe.com"},
	}, logger.NewNopLogger()).(*linkExtractor)
}

func urls(links []dto.Link) []string {
	out := make([]string, 0, len(links))
	for _, l := range links {
		out = append(out, l.URL)
	}
	return out
}

func TestExtract_HTMLAnchors(t *testing.T) {
	html := `<html><body>
		<a href="https://billing.example.com/invoice/123">View</a>
		<a href="https://example.com/account">Download your receipt</a>
		<a href="https://example.com/unsubscribe">Unsubscribe</a>
		<a href="mailto:billing@example.com">Invoice questions</a>
		<a href="https://files.example.com/x/report.PDF">report</a>
		<a href="https://pay.stripe.com/abc">Pay</a>
		<a href="https://billing.example.com/invoice/123#top">again</a>
	</body></html>`

	got := slices.Collect(newTestExtractor().Extract(html, ""))
	assert.Equal(t, []string{
		"https://billing.example.com/invoice/123",
		"https://example.com/account",
		"https://files.example.com/x/report.PDF",
		"https://pay.stripe.com/abc",
	}, urls(got))
	assert.Equal(t, "Download your receipt", got[1].AnchorText)
}

func TestExtract_PlainTextFallback(t *testing.T) {
	text := "Your statement is ready: https://bank.example.com/statement?id=9. Thanks!\n" +
		"Other: https://example.com/news and https://cdn.example.com/download/abc)"

	got := slices.Collect(newTestExtractor().Extract("", text))
	assert.Equal(t, []string{
		"https://bank.example.com/statement?id=9",
		"https://cdn.example.com/download/abc",
	}, urls(got))
}

func TestExtract_MalformedHTMLDoesNotPanic(t *testing.T) {
	html := `<div><a href="https://example.com/invoice.pdf">inv<p><<<>>></a`
	require.NotPanics(t, func() {
		_ = slices.Collect(newTestExtractor().Extract(html, ""))
	})
}

func TestExtract_Lazy(t *testing.T) {
	html := `<a href="https://a.example.com/invoice/1">1</a><a href="https://a.example.com/invoice/2">2</a>`
	var first []string
	for link := range newTestExtractor().Extract(html, "") {
		first = append(first, link.URL)
		break
	}
	assert.Equal(t, []string{"https://a.example.com/invoice/1"}, first)
}

func TestExtract_Empty(t *testing.T) {
	assert.Empty(t, slices.Collect(newTestExtractor().Extract("", "")))
	assert.Empty(t, slices.Collect(newTestExtractor().Extract("<p>hello</p>", "")))
}
