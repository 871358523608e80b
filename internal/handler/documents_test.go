package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/ezsolvy/api/internal/model"
)

func TestDocumentCreate_TypedSpawnsExplainJob(t *testing.T) {
	ta := setupApp(t)

	body := `{"title":"Photosynthesis notes","source":"typed","text":"Light reactions happen in the thylakoid."}`
	resp := doRequest(t, ta.app, http.MethodPost, "/v1/documents", body, true)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	result := parseJSON(t, resp)
	docID, _ := result["document_id"].(string)
	if docID == "" {
		t.Fatal("expected a document id")
	}
	jobID, _ := result["job_id"].(string)
	if jobID == "" {
		t.Fatal("typed document must spawn an explain job")
	}

	job, err := ta.store.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("job row missing: %v", err)
	}
	if job.Type != model.JobTypeExplain {
		t.Errorf("expected explain job, got %s", job.Type)
	}

	if len(ta.enq.tasks) != 1 {
		t.Fatalf("expected 1 enqueued task, got %d", len(ta.enq.tasks))
	}
	var msg model.TaskMessage
	if err := json.Unmarshal(ta.enq.tasks[0].Payload(), &msg); err != nil {
		t.Fatalf("bad task payload: %v", err)
	}
	if msg.DocumentID == nil || *msg.DocumentID != docID {
		t.Errorf("task must reference the document, got %v", msg.DocumentID)
	}
}

func TestDocumentCreate_TypedWithoutTextFails(t *testing.T) {
	ta := setupApp(t)

	body := `{"title":"Empty","source":"typed"}`
	resp := doRequest(t, ta.app, http.MethodPost, "/v1/documents", body, true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestDocumentGet_BundlesDerivedContent(t *testing.T) {
	ta := setupApp(t)
	ctx := context.Background()

	doc := &model.Document{ID: "doc-1", OrgID: "org-1", Title: "Algebra", Source: model.DocumentSourceTyped, Text: "solve x"}
	_ = ta.store.CreateDocument(ctx, doc)
	_ = ta.store.InsertTranscript(ctx, &model.Transcript{ID: "t-1", DocumentID: "doc-1", Content: "walkthrough"})
	_ = ta.store.InsertAsset(ctx, &model.Asset{ID: "a-1", DocumentID: "doc-1", Kind: model.AssetKindDiagram, URL: "https://cdn/d.png"})

	resp := doRequest(t, ta.app, http.MethodGet, "/v1/documents/doc-1", "", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	result := parseJSON(t, resp)
	transcripts, _ := result["transcripts"].([]interface{})
	if len(transcripts) != 1 {
		t.Errorf("expected 1 transcript, got %d", len(transcripts))
	}
	assets, _ := result["assets"].([]interface{})
	if len(assets) != 1 {
		t.Errorf("expected 1 asset, got %d", len(assets))
	}
}

func TestDocumentGet_OtherOrgReadsAsNotFound(t *testing.T) {
	ta := setupApp(t)

	doc := &model.Document{ID: "doc-1", OrgID: "org-2", Title: "Private", Source: model.DocumentSourceTyped}
	_ = ta.store.CreateDocument(context.Background(), doc)

	resp := doRequest(t, ta.app, http.MethodGet, "/v1/documents/doc-1", "", true)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
