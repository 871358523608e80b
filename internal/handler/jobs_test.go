package handler

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/ezsolvy/api/internal/model"
)

func seedJob(t *testing.T, ta *testApp, jobID, orgID string) {
	t.Helper()
	job := &model.Job{
		ID:     jobID,
		Type:   model.JobTypeImageExplanation,
		Status: model.JobStatusQueued,
		OrgID:  orgID,
	}
	if err := ta.store.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
}

func TestJobGet_Snapshot(t *testing.T) {
	ta := setupApp(t)
	seedJob(t, ta, "job-1", "org-1")

	_ = ta.store.UpdateJob(context.Background(), "job-1", model.JobUpdate{
		Status:   model.JobStatusWorking,
		Progress: &model.JobProgress{Step: "analyze", StepIndex: 1, TotalSteps: 4},
	})

	resp := doRequest(t, ta.app, http.MethodGet, "/v1/jobs/job-1", "", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	result := parseJSON(t, resp)
	if result["status"] != "working" {
		t.Errorf("expected working, got %v", result["status"])
	}
	progress, ok := result["progress"].(map[string]interface{})
	if !ok {
		t.Fatal("expected progress snapshot")
	}
	if progress["step"] != "analyze" {
		t.Errorf("expected analyze step, got %v", progress["step"])
	}
}

func TestJobGet_UnknownIs404(t *testing.T) {
	ta := setupApp(t)

	resp := doRequest(t, ta.app, http.MethodGet, "/v1/jobs/ghost", "", true)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if code := errorCode(t, parseJSON(t, resp)); code != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND, got %s", code)
	}
}

func TestJobGet_OtherOrgReadsAsNotFound(t *testing.T) {
	ta := setupApp(t)
	seedJob(t, ta, "job-1", "org-2")

	resp := doRequest(t, ta.app, http.MethodGet, "/v1/jobs/job-1", "", true)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for cross-org access, got %d", resp.StatusCode)
	}
}

func TestJobStream_UnknownJobEmitsSingleErrorEvent(t *testing.T) {
	ta := setupApp(t)

	resp := doRequest(t, ta.app, http.MethodGet, "/v1/jobs/ghost/stream", "", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("expected event-stream content type, got %q", ct)
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}

	frames := strings.Count(string(body), "event: ")
	if frames != 1 {
		t.Fatalf("expected exactly one event frame, got %d: %q", frames, string(body))
	}
	if !strings.Contains(string(body), "event: error") {
		t.Errorf("expected error event, got %q", string(body))
	}
	if !strings.Contains(string(body), "job not found") {
		t.Errorf("expected not-found message, got %q", string(body))
	}
}
