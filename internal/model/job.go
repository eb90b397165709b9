package model

import "time"

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobRunning, JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

const (
	JobTypeSentimentBatch  = "sentiment_batch"
	JobTypeSentimentRecent = "sentiment_recent"
)

// BatchJob is a snapshot of a tracked multi-item operation.
type BatchJob struct {
	JobID       string         `json:"job_id"`
	JobType     string         `json:"job_type"`
	Params      map[string]any `json:"params,omitempty"`
	Status      JobStatus      `json:"status"`
	Progress    int            `json:"progress"`
	Total       int            `json:"total"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at"`
	Result      any            `json:"result"`
	Error       *string        `json:"error"`
}
