package dto

import "time"

// RawEmail is one message as yielded by an email source, before any
// pipeline processing.
type RawEmail struct {
	AccountID string
	Folder    string
	UID       uint32
	MessageID string
	From      string
	FromName  string
	Subject   string
	Date      time.Time
	BodyText  string
	BodyHTML  string
	Raw       []byte
}

// Attachment is a MIME part classified as an attachment.
type Attachment struct {
	Filename  string
	MimeType  string
	ContentID string
	Inline    bool
	Data      []byte
}

// Link is a candidate invoice/document URL found in a body.
type Link struct {
	URL        string
	AnchorText string
}
