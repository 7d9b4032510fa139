package extractor

import (
	"bytes"

	"code.sajari.com/docconv"
	"github.com/pkg/errors"

	"github.com/customeros/mailarchive/interfaces"
)

var docconvTypes = map[string]bool{
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.oasis.opendocument.text":                                   true,
	"application/msword":                                                        true,
	"application/rtf":                                                           true,
	"text/rtf":                                                                  true,
	"text/html":                                                                 true,
	"text/xml":                                                                  true,
	"application/xml":                                                           true,
}

type docconvConverter struct {
	readability bool
}

// NewDocconvConverter converts office and markup formats with docconv.
// Some formats rely on external tools (wvText, unrtf) being installed.
func NewDocconvConverter(readability bool) interfaces.DocumentConverter {
	return &docconvConverter{readability: readability}
}

func (c *docconvConverter) Supports(mimeType string) bool {
	return docconvTypes[mimeType]
}

func (c *docconvConverter) Convert(data []byte, mimeType string) (string, error) {
	res, err := docconv.Convert(bytes.NewReader(data), mimeType, c.readability)
	if err != nil {
		return "", errors.Wrapf(err, "docconv %s", mimeType)
	}
	return res.Body, nil
}
