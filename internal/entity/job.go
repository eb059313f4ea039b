package entity

import (
	"time"
)

// JobStatus is the canonical status for rows in jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusError      JobStatus = "error"
)

// PayloadKind tells the recognition chain how to treat a job's payload.
type PayloadKind string

const (
	PayloadFile PayloadKind = "file" // opaque file handle, resolvable to image bytes
	PayloadURL  PayloadKind = "url"
	PayloadText PayloadKind = "text"
)

// Job is one photo or link submission queued for recognition.
// AISummary and CorrectionHistory are stored serialized and materialized
// at the repository boundary only.
type Job struct {
	ID              int64
	GroupID         int64
	SubmitterID     int64
	SourceMessageID int
	// ThreadID is reserved for forum-topic routing; the current bot API
	// client does not expose message_thread_id, so it stays unset.
	ThreadID        *int
	PayloadKind     PayloadKind
	Payload         string
	Status          JobStatus
	ErrorMessage    *string

	SummaryMode       bool
	AISummary         *Summary
	CorrectionHistory []CorrectionEntry
	SummaryMessageID  *int

	CreatedAt time.Time
}

// CorrectionEntry is one audit record of an applied summary correction.
// The history is append-only and fed back to the model as context.
type CorrectionEntry struct {
	UserText string `json:"user_text"`
	Result   string `json:"result"`
}
