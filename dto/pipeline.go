package dto

import "github.com/customeros/mailarchive/internal/enum"

// ItemOutcome reports what happened to one attachment or link.
type ItemOutcome struct {
	Name       string         `json:"name"`
	Source     string         `json:"source"`
	DocumentID string         `json:"documentId,omitempty"`
	Duplicate  bool           `json:"duplicate,omitempty"`
	Skipped    bool           `json:"skipped,omitempty"`
	Kind       enum.ErrorKind `json:"kind,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// EmailOutcome is the per-email result of a pipeline run.
type EmailOutcome struct {
	EmailID    string           `json:"emailId"`
	Status     enum.EmailStatus `json:"status"`
	Stored     int              `json:"stored"`
	Duplicates int              `json:"duplicates"`
	Warnings   int              `json:"warnings"`
	Failures   int              `json:"failures"`
	Items      []ItemOutcome    `json:"items"`
	Error      string           `json:"error,omitempty"`
}

// PollOutcome summarizes one account poll.
type PollOutcome struct {
	AccountID string `json:"accountId"`
	Fetched   int    `json:"fetched"`
	New       int    `json:"new"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Skipped   bool   `json:"skipped"`
	Error     string `json:"error,omitempty"`
}

// DocumentSearch filters the document read API.
type DocumentSearch struct {
	Query          string
	EmailID        string
	AccountID      string
	Classification enum.DocumentLabel
	Category       enum.DocumentCategory
	Limit          int
	Offset         int
}

// EmailSearch filters the email read API.
type EmailSearch struct {
	Query          string
	AccountID      string
	Classification enum.EmailClassification
	Status         enum.EmailStatus
	Limit          int
	Offset         int
}

// VerifyOutcome summarizes an integrity sweep. Unchecked files could not be
// read and keep their verified flag.
type VerifyOutcome struct {
	Checked    int      `json:"checked"`
	Verified   int      `json:"verified"`
	Mismatched []string `json:"mismatched"`
	Missing    []string `json:"missing"`
	Unchecked  []string `json:"unchecked"`
}
