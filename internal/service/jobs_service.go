package service

import (
	"context"

	"github.com/ezsolvy/api/internal/model"
	"github.com/ezsolvy/api/internal/store"
)

// JobsService reads job snapshots for the status endpoints. It never
// writes; the queue workers are the only writers of job state.
type JobsService struct {
	store store.JobStore
}

func NewJobsService(st store.JobStore) *JobsService {
	return &JobsService{store: st}
}

// GetJob returns the current snapshot of a job, scoped to the caller's
// organization. Jobs belonging to other orgs read as not found.
func (s *JobsService) GetJob(ctx context.Context, orgID, jobID string) (*model.GetJobResponse, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if orgID != "" && job.OrgID != orgID {
		return nil, store.ErrNotFound
	}

	return &model.GetJobResponse{
		ID:        job.ID,
		Type:      job.Type,
		Status:    job.Status,
		Progress:  job.Progress,
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}, nil
}
