package service

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/ezsolvy/api/internal/model"
)

const (
	TaskTypeImageExplanation = "pipeline:image-explanation"
	TaskTypeExplain          = "pipeline:explain"
	TaskTypePDFExport        = "pipeline:pdf-export"

	QueuePipelines = "pipelines"

	// MaxAttempts bounds worker re-publishes. Attempt numbers start at 0,
	// so a message is re-published only while attempt+1 < MaxAttempts.
	MaxAttempts = 3
)

// TaskEnqueuer is the slice of asynq.Client the services need. Tests
// substitute a recording fake.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskTypeFor maps a job type to its asynq task type.
func TaskTypeFor(jobType model.JobType) (string, error) {
	switch jobType {
	case model.JobTypeImageExplanation:
		return TaskTypeImageExplanation, nil
	case model.JobTypeExplain:
		return TaskTypeExplain, nil
	case model.JobTypePDFExport:
		return TaskTypePDFExport, nil
	default:
		return "", fmt.Errorf("unknown job type: %s", jobType)
	}
}

// NewPipelineTask wraps a task message into an asynq task. Retries are
// managed by the workers through attempt counters, so asynq's own retry
// is disabled.
func NewPipelineTask(msg *model.TaskMessage) (*asynq.Task, error) {
	taskType, err := TaskTypeFor(msg.Type)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task message: %w", err)
	}
	return asynq.NewTask(taskType, data, asynq.Queue(QueuePipelines), asynq.MaxRetry(0)), nil
}
