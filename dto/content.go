package dto

import "github.com/customeros/mailarchive/internal/enum"

// FetchedContent is a resolved payload ready for hashing.
type FetchedContent struct {
	Data      []byte
	MimeType  string
	Filename  string
	SourceURL string
	Rendered  bool
}

// ExtractionResult is the text produced from a payload.
type ExtractionResult struct {
	Text       string
	PageCount  int
	OCRUsed    bool
	PageErrors int
}

// Classification is the outcome of the classifier chain. Source is "model"
// or "rules".
type Classification struct {
	Label   enum.DocumentLabel
	Summary string
	Source  string
}

// ModelPrompt is the request body sent to a local model server.
type ModelPrompt struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// ModelReply is the non-streaming reply of a local model server.
type ModelReply struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// EmailClassification is the email-level counterpart of Classification.
type EmailClassification struct {
	Class   enum.EmailClassification
	Summary string
	Source  string
}
