package model

import "time"

// Event types pushed over the job status stream
const (
	EventTypeProgress = "progress"
	EventTypeComplete = "complete"
	EventTypeError    = "error"
)

// JobEvent is one frame on the status stream.
type JobEvent struct {
	Type      string       `json:"type"`
	JobID     string       `json:"job_id"`
	Timestamp time.Time    `json:"timestamp"`
	Data      JobEventData `json:"data"`
}

// JobEventData is the status snapshot carried by an event.
type JobEventData struct {
	Status   JobStatus    `json:"status,omitempty"`
	Progress *JobProgress `json:"progress,omitempty"`
	Error    *JobError    `json:"error,omitempty"`
	Message  string       `json:"message,omitempty"`
}

// EventTypeForStatus derives the stream event type from a job status.
func EventTypeForStatus(status JobStatus) string {
	switch status {
	case JobStatusDone:
		return EventTypeComplete
	case JobStatusFailed:
		return EventTypeError
	default:
		return EventTypeProgress
	}
}

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage represents a progress update
type WSProgressMessage struct {
	Type     string       `json:"type"`
	JobID    string       `json:"jobId"`
	Status   JobStatus    `json:"status"`
	Progress *JobProgress `json:"progress,omitempty"`
}

// WSCompleteMessage represents job completion
type WSCompleteMessage struct {
	Type   string      `json:"type"`
	JobID  string      `json:"jobId"`
	Result interface{} `json:"result"`
}

// WSErrorMessage represents an error
type WSErrorMessage struct {
	Type  string  `json:"type"`
	JobID string  `json:"jobId"`
	Error WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
