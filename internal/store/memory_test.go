package store

import (
	"context"
	"errors"
	"testing"

	"github.com/ezsolvy/api/internal/model"
)

func newJob(t *testing.T, s *Memory, id string) *model.Job {
	t.Helper()
	job := &model.Job{
		ID:     id,
		Type:   model.JobTypeImageExplanation,
		Status: model.JobStatusQueued,
		OrgID:  "org-1",
	}
	if err := s.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	return job
}

func TestGetJob_NotFound(t *testing.T) {
	s := NewMemory()

	_, err := s.GetJob(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateJob_Transitions(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	newJob(t, s, "job-1")

	if err := s.UpdateJob(ctx, "job-1", model.JobUpdate{
		Status:   model.JobStatusWorking,
		Progress: &model.JobProgress{Step: "analyze", StepIndex: 1, TotalSteps: 4},
	}); err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}

	job, err := s.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.Status != model.JobStatusWorking {
		t.Errorf("expected working, got %s", job.Status)
	}
	if job.Progress == nil || job.Progress.Step != "analyze" {
		t.Errorf("expected analyze progress, got %+v", job.Progress)
	}
}

func TestUpdateJob_NilProgressKeepsLastCheckpoint(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	newJob(t, s, "job-1")

	_ = s.UpdateJob(ctx, "job-1", model.JobUpdate{
		Status:   model.JobStatusWorking,
		Progress: &model.JobProgress{Step: "analyze", StepIndex: 1, TotalSteps: 4},
	})
	_ = s.UpdateJob(ctx, "job-1", model.JobUpdate{Status: model.JobStatusWorking})

	job, _ := s.GetJob(ctx, "job-1")
	if job.Progress == nil || job.Progress.Step != "analyze" {
		t.Fatalf("expected progress to survive a nil-progress update, got %+v", job.Progress)
	}
}

func TestUpdateJob_TerminalIsNeverOverwritten(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	newJob(t, s, "job-1")

	if err := s.UpdateJob(ctx, "job-1", model.JobUpdate{Status: model.JobStatusDone}); err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}

	// A late failure report must not rewrite the terminal row.
	if err := s.UpdateJob(ctx, "job-1", model.JobUpdate{
		Status: model.JobStatusFailed,
		Error:  &model.JobError{Message: "late failure"},
	}); err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}

	job, _ := s.GetJob(ctx, "job-1")
	if job.Status != model.JobStatusDone {
		t.Errorf("terminal status was overwritten: %s", job.Status)
	}
	if job.Error != nil {
		t.Errorf("done job must carry no error, got %+v", job.Error)
	}
}

func TestUpdateJob_ErrorOnlyWhenFailed(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	newJob(t, s, "fails")
	_ = s.UpdateJob(ctx, "fails", model.JobUpdate{Status: model.JobStatusFailed})
	job, _ := s.GetJob(ctx, "fails")
	if job.Error == nil || job.Error.Message == "" {
		t.Errorf("failed job must carry a non-empty error, got %+v", job.Error)
	}

	newJob(t, s, "works")
	_ = s.UpdateJob(ctx, "works", model.JobUpdate{
		Status: model.JobStatusWorking,
		Error:  &model.JobError{Message: "should be dropped"},
	})
	job, _ = s.GetJob(ctx, "works")
	if job.Error != nil {
		t.Errorf("non-failed job must not carry an error, got %+v", job.Error)
	}
}

func TestUpdateJob_UnknownJobIsDropped(t *testing.T) {
	s := NewMemory()

	if err := s.UpdateJob(context.Background(), "missing", model.JobUpdate{Status: model.JobStatusWorking}); err != nil {
		t.Fatalf("expected silent drop, got %v", err)
	}
}

func TestDocuments_RoundTrip(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	doc := &model.Document{ID: "doc-1", OrgID: "org-1", Title: "Algebra", Source: model.DocumentSourceTyped, Text: "solve x"}
	if err := s.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}

	_ = s.InsertTranscript(ctx, &model.Transcript{ID: "t-1", DocumentID: "doc-1", Content: "walkthrough"})
	_ = s.InsertAsset(ctx, &model.Asset{ID: "a-1", DocumentID: "doc-1", Kind: model.AssetKindDiagram, URL: "https://cdn/d.png"})

	got, err := s.GetDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if got.Title != "Algebra" {
		t.Errorf("unexpected title %q", got.Title)
	}

	transcripts, _ := s.ListTranscripts(ctx, "doc-1")
	if len(transcripts) != 1 {
		t.Errorf("expected 1 transcript, got %d", len(transcripts))
	}
	assets, _ := s.ListAssets(ctx, "doc-1")
	if len(assets) != 1 {
		t.Errorf("expected 1 asset, got %d", len(assets))
	}
}
