package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mailarchive_errors "github.com/customeros/mailarchive/errors"
	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/config"
	"github.com/customeros/mailarchive/internal/enum"
	"github.com/customeros/mailarchive/internal/logger"
)

type fakeDoc struct {
	pages  []string
	closed bool
}

func (d *fakeDoc) NumPage() int { return len(d.pages) }

func (d *fakeDoc) Text(page int) (string, error) { return d.pages[page], nil }

func (d *fakeDoc) ImagePNG(page int, _ float64) ([]byte, error) {
	return []byte{byte(page)}, nil
}

func (d *fakeDoc) Close() error {
	d.closed = true
	return nil
}

type fakeOpener struct {
	doc *fakeDoc
	err error
}

func (o *fakeOpener) Open([]byte) (interfaces.PDFDocument, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.doc, nil
}

// fakeOCR returns text per page index, failing for pages listed in fail.
type fakeOCR struct {
	text  map[byte]string
	fail  map[byte]bool
	calls int
}

func (o *fakeOCR) Recognize(_ context.Context, image []byte) (string, error) {
	o.calls++
	key := byte(0)
	if len(image) > 0 {
		key = image[0]
	}
	if o.fail[key] {
		return "", errors.New("tesseract crashed")
	}
	return o.text[key], nil
}

type fakeConverter struct{}

func (fakeConverter) Supports(mimeType string) bool { return mimeType == "text/html" }

func (fakeConverter) Convert(data []byte, _ string) (string, error) {
	if string(data) == "broken" {
		return "", errors.New("bad markup")
	}
	return "converted", nil
}

func ocrConfig() *config.OCRConfig {
	return &config.OCRConfig{Enabled: true, Language: "eng", DPI: 300, MinCharsPerPage: 16}
}

func TestExtract_PDFTextLayerAndOCRFallback(t *testing.T) {
	doc := &fakeDoc{pages: []string{
		"Invoice 1042 total due 120.00 EUR",
		"  ",
		"",
	}}
	ocr := &fakeOCR{
		text: map[byte]string{1: "scanned page two"},
		fail: map[byte]bool{2: true},
	}
	e := NewTextExtractor(ocrConfig(), &fakeOpener{doc: doc}, ocr, nil, logger.NewNopLogger())

	res, err := e.Extract(context.Background(), []byte("%PDF-1.4"), "application/pdf", "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, 3, res.PageCount)
	assert.True(t, res.OCRUsed)
	assert.Equal(t, 1, res.PageErrors)
	assert.Equal(t, "Invoice 1042 total due 120.00 EUR\n\nscanned page two", res.Text)
	assert.Equal(t, 2, ocr.calls)
	assert.True(t, doc.closed)
}

func TestExtract_PDFWithoutOCR(t *testing.T) {
	cfg := ocrConfig()
	cfg.Enabled = false
	doc := &fakeDoc{pages: []string{"short"}}
	ocr := &fakeOCR{}
	e := NewTextExtractor(cfg, &fakeOpener{doc: doc}, ocr, nil, logger.NewNopLogger())

	res, err := e.Extract(context.Background(), []byte("%PDF-1.7"), "", "x.pdf")
	require.NoError(t, err)
	assert.Equal(t, "short", res.Text)
	assert.False(t, res.OCRUsed)
	assert.Zero(t, ocr.calls)
}

func TestExtract_CorruptPDF(t *testing.T) {
	e := NewTextExtractor(ocrConfig(), &fakeOpener{err: errors.New("no xref")}, nil, nil, logger.NewNopLogger())

	_, err := e.Extract(context.Background(), []byte("%PDF-garbage"), "application/pdf", "bad.pdf")
	require.Error(t, err)
	assert.Equal(t, enum.ErrorKindExtraction, mailarchive_errors.Kind(err))
}

func TestExtract_Image(t *testing.T) {
	ocr := &fakeOCR{text: map[byte]string{0x89: "Receipt #55"}}
	e := NewTextExtractor(ocrConfig(), nil, ocr, nil, logger.NewNopLogger())

	res, err := e.Extract(context.Background(), []byte("\x89PNG"), "image/png", "r.png")
	require.NoError(t, err)
	assert.Equal(t, "Receipt #55", res.Text)
	assert.True(t, res.OCRUsed)

	ocr.fail = map[byte]bool{0x89: true}
	res, err = e.Extract(context.Background(), []byte("\x89PNG"), "image/png", "r.png")
	require.NoError(t, err)
	assert.Empty(t, res.Text)
	assert.Equal(t, 1, res.PageErrors)
}

func TestExtract_OtherTypes(t *testing.T) {
	e := NewTextExtractor(ocrConfig(), nil, nil, fakeConverter{}, logger.NewNopLogger())
	ctx := context.Background()

	res, err := e.Extract(ctx, []byte("plain words"), "text/plain; charset=utf-8", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "plain words", res.Text)

	res, err = e.Extract(ctx, []byte("<p>x</p>"), "application/octet-stream", "page.html")
	require.NoError(t, err)
	assert.Equal(t, "converted", res.Text)

	_, err = e.Extract(ctx, []byte("broken"), "text/html", "page.html")
	assert.Equal(t, enum.ErrorKindExtraction, mailarchive_errors.Kind(err))

	res, err = e.Extract(ctx, []byte{0x50, 0x4b}, "application/zip", "a.zip")
	require.NoError(t, err)
	assert.Empty(t, res.Text)
	assert.Zero(t, res.PageCount)
}
