package worker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ezsolvy/api/internal/client"
	"github.com/ezsolvy/api/internal/config"
	"github.com/ezsolvy/api/internal/model"
	"github.com/ezsolvy/api/internal/service"
)

func newExplainWorkerForTest(st *recordingStore, enq *fakeEnqueuer) *ExplainWorker {
	return NewExplainWorker(
		st,
		enq,
		client.NewOpenAIClient(&config.OpenAIConfig{}),
		client.NewPerplexityClient(&config.PerplexityConfig{}),
		client.NewNanoBananaClient(&config.NanoBananaConfig{}),
		nil,
		nil,
	)
}

func TestExplainProcessTask_WritesTranscriptAndCompletes(t *testing.T) {
	st := newRecordingStore()
	enq := &fakeEnqueuer{}
	w := newExplainWorkerForTest(st, enq)
	ctx := context.Background()

	doc := &model.Document{ID: "doc-1", OrgID: "org-1", Title: "Notes", Source: model.DocumentSourceTyped, Text: "The mitochondria is the powerhouse of the cell."}
	if err := st.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}

	req := &model.ExplainRequest{DocumentID: "doc-1"}
	reqBytes, _ := json.Marshal(req)
	docID := "doc-1"

	job := &model.Job{ID: "job-1", Type: model.JobTypeExplain, Status: model.JobStatusQueued, OrgID: "org-1", DocumentID: &docID, Payload: reqBytes}
	if err := st.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	task, err := service.NewPipelineTask(&model.TaskMessage{
		JobID: "job-1", Type: model.JobTypeExplain, OrgID: "org-1", UserID: "user-1",
		DocumentID: &docID, Request: reqBytes, Attempt: 0,
	})
	if err != nil {
		t.Fatalf("NewPipelineTask failed: %v", err)
	}

	if err := w.ProcessTask(ctx, task); err != nil {
		t.Fatalf("ProcessTask failed: %v", err)
	}

	got, _ := st.GetJob(ctx, "job-1")
	if got.Status != model.JobStatusDone {
		t.Fatalf("expected done, got %s", got.Status)
	}
	if got.Progress == nil || got.Progress.TotalSteps != explainTotalSteps {
		t.Fatalf("expected %d total steps, got %+v", explainTotalSteps, got.Progress)
	}

	var result explainResult
	if err := json.Unmarshal(got.Progress.Result, &result); err != nil {
		t.Fatalf("bad result payload: %v", err)
	}
	if result.TranscriptID == "" {
		t.Error("expected a transcript id in the result")
	}

	transcripts, _ := st.ListTranscripts(ctx, "doc-1")
	if len(transcripts) != 1 {
		t.Fatalf("expected 1 stored transcript, got %d", len(transcripts))
	}
	if transcripts[0].Content == "" {
		t.Error("expected transcript content")
	}
}

func TestExplainProcessTask_EmptyDocumentFailsAfterRetries(t *testing.T) {
	st := newRecordingStore()
	enq := &fakeEnqueuer{}
	w := newExplainWorkerForTest(st, enq)
	ctx := context.Background()

	doc := &model.Document{ID: "doc-1", OrgID: "org-1", Title: "Blank", Source: model.DocumentSourceTyped}
	_ = st.CreateDocument(ctx, doc)

	req := &model.ExplainRequest{DocumentID: "doc-1"}
	reqBytes, _ := json.Marshal(req)
	docID := "doc-1"

	job := &model.Job{ID: "job-1", Type: model.JobTypeExplain, Status: model.JobStatusQueued, OrgID: "org-1", DocumentID: &docID, Payload: reqBytes}
	_ = st.CreateJob(ctx, job)

	// Final attempt: failure must be terminal with no re-publish.
	task, err := service.NewPipelineTask(&model.TaskMessage{
		JobID: "job-1", Type: model.JobTypeExplain, OrgID: "org-1",
		DocumentID: &docID, Request: reqBytes, Attempt: service.MaxAttempts - 1,
	})
	if err != nil {
		t.Fatalf("NewPipelineTask failed: %v", err)
	}

	if err := w.ProcessTask(ctx, task); err != nil {
		t.Fatalf("ProcessTask should consume the failure, got %v", err)
	}

	got, _ := st.GetJob(ctx, "job-1")
	if got.Status != model.JobStatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if len(enq.tasks) != 0 {
		t.Errorf("expected no re-publish, got %d tasks", len(enq.tasks))
	}
}
