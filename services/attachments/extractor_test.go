package attachments

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailarchive/internal/logger"
	"github.com/customeros/mailarchive/internal/testutil"
)

func TestExtract_AttachmentsAndInline(t *testing.T) {
	raw := testutil.BuildMIME(
		"Vendor <billing@vendor.example>",
		"Invoice 1042",
		"See attached.",
		`<p>See attached.</p><img src="cid:logo@vendor">`,
		testutil.Attachment{Filename: "invoice-1042.pdf", ContentType: "application/pdf", Data: testutil.MinimalPDF},
		testutil.Attachment{Filename: "logo.png", ContentType: "image/png", Data: []byte("\x89PNG\r\n\x1a\nlogo"), Inline: true, ContentID: "logo@vendor"},
	)
	extractor := NewAttachmentExtractor(logger.NewNopLogger())

	got, err := extractor.Extract(raw, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "invoice-1042.pdf", got[0].Filename)
	assert.Equal(t, "application/pdf", got[0].MimeType)
	assert.Equal(t, testutil.MinimalPDF, got[0].Data)
	assert.False(t, got[0].Inline)

	got, err = extractor.Extract(raw, true)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "logo.png", got[1].Filename)
	assert.True(t, got[1].Inline)
	assert.Equal(t, "logo@vendor", got[1].ContentID)
}

func TestExtract_SynthesizesMissingFilename(t *testing.T) {
	raw := testutil.BuildMIME(
		"billing@vendor.example",
		"Receipt",
		"Receipt attached.",
		"",
		testutil.Attachment{ContentType: "application/pdf", Data: testutil.MinimalPDF},
	)

	got, err := NewAttachmentExtractor(logger.NewNopLogger()).Extract(raw, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "attachment_0.pdf", got[0].Filename)
}

func TestExtract_NoAttachments(t *testing.T) {
	raw := testutil.BuildMIME("a@example.com", "Hello", "Just text", "")
	got, err := NewAttachmentExtractor(logger.NewNopLogger()).Extract(raw, false)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = NewAttachmentExtractor(logger.NewNopLogger()).Extract(nil, false)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFilenameFor(t *testing.T) {
	tests := []struct {
		name     string
		mimeType string
		index    int
		want     string
	}{
		{"report.pdf", "application/pdf", 0, "report.pdf"},
		{"../../etc/passwd", "text/plain", 1, "passwd"},
		{`C:\Users\me\scan.png`, "image/png", 2, "scan.png"},
		{"", "image/jpeg", 3, "attachment_3.jpg"},
		{"   ", "application/pdf", 4, "attachment_4.pdf"},
		{"\ufffd\ufffd.pdf", "application/pdf", 5, "attachment_5.pdf"},
		{"...", "application/x-unknown", 6, "attachment_6.bin"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, filenameFor(tt.name, tt.mimeType, tt.index))
		})
	}
}
