package domain

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// JobStats accrues across every pipeline stage of one run. Updates from
// inline and deferred workers race, so persistence must apply them as
// serialized increments, never as read-modify-write of a snapshot.
type JobStats struct {
	Documents         int    `json:"documents"`
	Chunks            int    `json:"chunks"`
	Errors            int    `json:"errors"`
	PendingLargeFiles int    `json:"pending_large_files"`
	CurrentFile       string `json:"current_file,omitempty"`
}

// IngestJob tracks one ingestion run of one source+tenant pair.
// Status only moves forward; cancellation is the one transition that may be
// requested at any time from queued or running.
type IngestJob struct {
	ID         string     `json:"id"`
	SourceID   string     `json:"source_id"`
	TenantID   string     `json:"tenant_id"`
	Status     JobStatus  `json:"status"`
	Error      string     `json:"error,omitempty"`
	Stats      JobStats   `json:"stats"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// StatsDelta is one atomic increment applied to a job's stats.
type StatsDelta struct {
	Documents         int
	Chunks            int
	Errors            int
	PendingLargeFiles int
	CurrentFile       string
}
