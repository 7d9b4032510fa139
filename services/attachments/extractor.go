// Package attachments pulls attachment parts out of raw RFC 822 messages.
package attachments

import (
	"bytes"
	"fmt"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jhillyerd/enmime"
	"go.uber.org/zap"

	"github.com/customeros/mailarchive/dto"
	mailarchive_errors "github.com/customeros/mailarchive/errors"
	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/logger"
	"github.com/customeros/mailarchive/internal/utils"
)

type attachmentExtractor struct {
	log logger.Logger
}

func NewAttachmentExtractor(log logger.Logger) interfaces.AttachmentExtractor {
	return &attachmentExtractor{log: log}
}

func (e *attachmentExtractor) Extract(raw []byte, includeInline bool) ([]dto.Attachment, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	envelope, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, mailarchive_errors.NewExtractionError("message", "unparseable MIME structure", err)
	}
	for _, perr := range envelope.Errors {
		e.log.Warn("MIME part problem", zap.String("name", perr.Name), zap.String("detail", perr.Detail), zap.Bool("severe", perr.Severe))
	}

	var result []dto.Attachment
	add := func(part *enmime.Part, inline bool) {
		if len(part.Content) == 0 {
			return
		}
		mimeType := utils.MediaType(part.ContentType)
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		result = append(result, dto.Attachment{
			Filename:  filenameFor(part.FileName, mimeType, len(result)),
			MimeType:  mimeType,
			ContentID: strings.Trim(part.ContentID, "<>"),
			Inline:    inline,
			Data:      part.Content,
		})
	}

	for _, part := range envelope.Attachments {
		add(part, false)
	}
	for _, part := range append(envelope.Inlines, envelope.OtherParts...) {
		if !includeInline && referencedByBody(envelope.HTML, part.ContentID) {
			continue
		}
		add(part, true)
	}
	return result, nil
}

func referencedByBody(html, contentID string) bool {
	cid := strings.Trim(contentID, "<> ")
	if cid == "" || html == "" {
		return false
	}
	return strings.Contains(strings.ToLower(html), "cid:"+strings.ToLower(cid))
}

// filenameFor keeps the base name of a usable filename, or synthesizes
// attachment_<index>.<ext> from the content type.
func filenameFor(name, mimeType string, index int) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	name = path.Base(name)
	if !usableFilename(name) {
		return fmt.Sprintf("attachment_%d.%s", index, utils.GetFileExtensionFromContentType(mimeType))
	}
	return name
}

func usableFilename(name string) bool {
	if name == "" || name == "." || name == "/" || name == ".." {
		return false
	}
	if !utf8.ValidString(name) || strings.ContainsRune(name, utf8.RuneError) {
		return false
	}
	printable := 0
	for _, r := range name {
		if unicode.IsControl(r) {
			return false
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			printable++
		}
	}
	return printable > 0
}
