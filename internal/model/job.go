package model

import (
	"encoding/json"
	"time"
)

// Job is the durable record of one background pipeline run.
type Job struct {
	ID         string          `json:"id"`
	Type       JobType         `json:"type"`
	Status     JobStatus       `json:"status"`
	OrgID      string          `json:"-"`
	DocumentID *string         `json:"-"`
	Payload    json.RawMessage `json:"-"` // Stored as JSONB
	Progress   *JobProgress    `json:"progress,omitempty"`
	Error      *JobError       `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// JobProgress is the per-step checkpoint written after each pipeline step.
type JobProgress struct {
	Step       string          `json:"step"`
	StepIndex  int             `json:"step_index,omitempty"`
	TotalSteps int             `json:"total_steps,omitempty"`
	Message    string          `json:"message,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// JobError describes a terminal failure.
type JobError struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// JobUpdate carries the fields a writer wants to overwrite on a job row.
// Nil progress/error leave the stored value untouched.
type JobUpdate struct {
	Status   JobStatus
	Progress *JobProgress
	Error    *JobError
}

// TaskMessage is the queue message shared by all pipelines.
// Attempt starts at 0 and is incremented on each worker re-publish.
type TaskMessage struct {
	JobID      string          `json:"jobId"`
	Type       JobType         `json:"type"`
	OrgID      string          `json:"org_id"`
	UserID     string          `json:"user_id"`
	DocumentID *string         `json:"document_id,omitempty"`
	Request    json.RawMessage `json:"request"`
	Attempt    int             `json:"attempt"`
}

// GetJobResponse is the status endpoint snapshot.
type GetJobResponse struct {
	ID        string       `json:"id"`
	Type      JobType      `json:"type"`
	Status    JobStatus    `json:"status"`
	Progress  *JobProgress `json:"progress"`
	Error     *JobError    `json:"error"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
