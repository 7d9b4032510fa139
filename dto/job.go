package dto

import (
	"time"

	"github.com/customeros/mailarchive/internal/enum"
)

type JobError struct {
	EmailID string `json:"email_id"`
	Message string `json:"message"`
}

// JobStatus is the snapshot returned to pollers of a background job.
type JobStatus struct {
	JobID      string         `json:"job_id,omitempty"`
	Status     enum.JobStatus `json:"status"`
	Total      int            `json:"total"`
	Processed  int            `json:"processed"`
	Errors     []JobError     `json:"errors"`
	Running    bool           `json:"running"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}
