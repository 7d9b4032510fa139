package testutil

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailarchive/internal/enum"
	"github.com/customeros/mailarchive/internal/models"
)

// MinimalPDF is a one-page PDF whose text layer reads "Invoice 1042".
var MinimalPDF = []byte("%PDF-1.4\n" +
	"1 0 obj<</Type/Catalog/Pages 2 0 R>>endobj\n" +
	"2 0 obj<</Type/Pages/Kids[3 0 R]/Count 1>>endobj\n" +
	"3 0 obj<</Type/Page/Parent 2 0 R/MediaBox[0 0 200 200]/Contents 4 0 R/Resources<</Font<</F1 5 0 R>>>>>>endobj\n" +
	"4 0 obj<</Length 43>>stream\nBT /F1 12 Tf 20 100 Td (Invoice 1042) Tj ET\nendstream endobj\n" +
	"5 0 obj<</Type/Font/Subtype/Type1/BaseFont/Helvetica>>endobj\n" +
	"trailer<</Root 1 0 R>>\n%%EOF\n")

func CreateAccount(t *testing.T, db *gorm.DB, email string) *models.Account {
	t.Helper()
	account := &models.Account{
		Name:                 "Test",
		Email:                email,
		Provider:             enum.EmailProviderIMAP,
		IMAPServer:           "imap.example.com",
		Enabled:              true,
		DownloadInvoiceLinks: true,
		PollIntervalMinutes:  15,
		MaxPerFetch:          50,
	}
	if err := db.WithContext(context.Background()).Create(account).Error; err != nil {
		t.Fatalf("Failed to create account: %v", err)
	}
	return account
}

type EmailOption func(*models.Email)

func WithRaw(raw []byte) EmailOption {
	return func(e *models.Email) {
		e.RawMessage = raw
	}
}

func WithSubject(subject string) EmailOption {
	return func(e *models.Email) {
		e.Subject = subject
	}
}

func WithBody(text string) EmailOption {
	return func(e *models.Email) {
		e.BodyText = text
	}
}

func CreateEmail(t *testing.T, db *gorm.DB, accountID, messageID string, opts ...EmailOption) *models.Email {
	t.Helper()
	sent := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	email := &models.Email{
		AccountID:   accountID,
		MessageID:   messageID,
		Folder:      "INBOX",
		FromAddress: "billing@vendor.example",
		FromName:    "Vendor Billing",
		Subject:     "Your invoice",
		SentAt:      &sent,
		Status:      enum.EmailStatusPending,
	}
	for _, opt := range opts {
		opt(email)
	}
	if err := db.Create(email).Error; err != nil {
		t.Fatalf("Failed to create email: %v", err)
	}
	return email
}

// Attachment describes one MIME attachment for BuildMIME.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
	Inline      bool
	ContentID   string
}

// BuildMIME assembles a multipart/mixed message with a text body, an
// optional html body and base64 attachments.
func BuildMIME(from, subject, text, html string, attachments ...Attachment) []byte {
	var b bytes.Buffer
	boundary := "mixed-boundary-42"
	altBoundary := "alt-boundary-42"
	fmt.Fprintf(&b, "From: %s\r\n", from)
	b.WriteString("To: archive@example.com\r\n")
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("Date: Fri, 14 Mar 2025 09:30:00 +0000\r\n")
	b.WriteString("Message-ID: <fixture-1@vendor.example>\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", altBoundary)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", altBoundary, text)
	if html != "" {
		fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", altBoundary, html)
	}
	fmt.Fprintf(&b, "--%s--\r\n", altBoundary)

	for _, a := range attachments {
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		fmt.Fprintf(&b, "Content-Type: %s", a.ContentType)
		if a.Filename != "" {
			fmt.Fprintf(&b, "; name=%q", a.Filename)
		}
		b.WriteString("\r\nContent-Transfer-Encoding: base64\r\n")
		disposition := "attachment"
		if a.Inline {
			disposition = "inline"
		}
		if a.Filename != "" {
			fmt.Fprintf(&b, "Content-Disposition: %s; filename=%q\r\n", disposition, a.Filename)
		} else {
			fmt.Fprintf(&b, "Content-Disposition: %s\r\n", disposition)
		}
		if a.ContentID != "" {
			fmt.Fprintf(&b, "Content-ID: <%s>\r\n", a.ContentID)
		}
		b.WriteString("\r\n")
		b.WriteString(wrapBase64(a.Data))
		b.WriteString("\r\n")
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return b.Bytes()
}
