package models

import (
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle state of a background job.
type JobStatus string

const (
	JobPending JobStatus = "PENDING"
	JobRunning JobStatus = "RUNNING"
	JobSuccess JobStatus = "SUCCESS"
	JobFailure JobStatus = "FAILURE"
)

// Finished reports whether the job reached a terminal state.
func (s JobStatus) Finished() bool {
	return s == JobSuccess || s == JobFailure
}

// Job is the persisted record of one unit of background work.
type Job struct {
	ID        string          `json:"task_id"`
	Kind      string          `json:"kind"`
	UserID    int64           `json:"user_id"`
	DedupKey  string          `json:"-"`
	Payload   json.RawMessage `json:"-"`
	Status    JobStatus       `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Attempts  int             `json:"attempts"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
