package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"

	"github.com/ezsolvy/api/internal/client"
	"github.com/ezsolvy/api/internal/config"
	"github.com/ezsolvy/api/internal/middleware"
	"github.com/ezsolvy/api/internal/service"
	"github.com/ezsolvy/api/internal/store"
	"github.com/ezsolvy/api/internal/stream"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task"}, nil
}

type testApp struct {
	app   *fiber.App
	store *store.Memory
	enq   *fakeEnqueuer
}

// setupApp wires the HTTP surface against an in-process store, a fake
// queue, and unconfigured providers (mock pipeline). The dispatch limit
// is 4 inline images with 64 decoded bytes per image.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	st := store.NewMemory()
	enq := &fakeEnqueuer{}
	validate := validator.New()

	explanationService := service.NewExplanationService(
		st,
		enq,
		client.NewOpenAIClient(&config.OpenAIConfig{}),
		client.NewNanoBananaClient(&config.NanoBananaConfig{}),
		&config.DispatchConfig{MaxSyncImages: 4, MaxImageBytes: 64},
	)
	jobsService := service.NewJobsService(st)
	documentService := service.NewDocumentService(st, enq)
	exportService := service.NewExportService(st, enq)
	watcher := stream.NewPollWatcher(st, 10*time.Millisecond)

	explanationHandler := NewExplanationHandler(explanationService, validate)
	jobsHandler := NewJobsHandler(jobsService, watcher)
	documentsHandler := NewDocumentsHandler(documentService, validate)
	exportHandler := NewExportHandler(exportService, validate)

	app := fiber.New()
	v1 := app.Group("/v1", middleware.GatewayAuthMiddleware())
	v1.Post("/explanation", explanationHandler.Dispatch)
	v1.Get("/jobs/:jobId", jobsHandler.Get)
	v1.Get("/jobs/:jobId/stream", jobsHandler.Stream)
	v1.Post("/documents", documentsHandler.Create)
	v1.Get("/documents/:documentId", documentsHandler.Get)
	v1.Post("/export", exportHandler.Start)

	return &testApp{app: app, store: st, enq: enq}
}

func doRequest(t *testing.T, app *fiber.App, method, path, body string, authed bool) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("X-User-Id", "user-1")
		req.Header.Set("X-Org-Id", "org-1")
		req.Header.Set("X-User-Email", "student@example.com")
	}

	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to parse JSON %q: %v", string(data), err)
	}
	return result
}

func errorCode(t *testing.T, result map[string]interface{}) string {
	t.Helper()
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object, got %v", result)
	}
	code, _ := errObj["code"].(string)
	return code
}

func imagesBody(images ...string) string {
	data, _ := json.Marshal(map[string]interface{}{"imagesBase64": images})
	return string(data)
}

func TestExplanation_NoAuth(t *testing.T) {
	ta := setupApp(t)

	resp := doRequest(t, ta.app, http.MethodPost, "/v1/explanation", imagesBody("AAAA"), false)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if code := errorCode(t, parseJSON(t, resp)); code != "UNAUTHORIZED" {
		t.Errorf("expected UNAUTHORIZED, got %s", code)
	}
}

func TestExplanation_SyncResult(t *testing.T) {
	ta := setupApp(t)

	resp := doRequest(t, ta.app, http.MethodPost, "/v1/explanation", imagesBody("AAAAAAAA"), true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	result := parseJSON(t, resp)
	if result["mode"] != "sync" {
		t.Errorf("expected sync mode, got %v", result["mode"])
	}
	inner, ok := result["result"].(map[string]interface{})
	if !ok {
		t.Fatal("expected inline result")
	}
	pages, ok := inner["pages"].([]interface{})
	if !ok || len(pages) != 1 {
		t.Errorf("expected 1 page, got %v", inner["pages"])
	}

	if len(ta.enq.tasks) != 0 {
		t.Errorf("sync dispatch must not enqueue, got %d", len(ta.enq.tasks))
	}
}

func TestExplanation_AsyncAccepted(t *testing.T) {
	ta := setupApp(t)

	body := imagesBody("AAAA", "AAAA", "AAAA", "AAAA", "AAAA")
	resp := doRequest(t, ta.app, http.MethodPost, "/v1/explanation", body, true)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	result := parseJSON(t, resp)
	if result["mode"] != "async" {
		t.Errorf("expected async mode, got %v", result["mode"])
	}
	jobID, _ := result["job_id"].(string)
	if jobID == "" {
		t.Fatal("expected a job id")
	}
	if len(ta.enq.tasks) != 1 {
		t.Fatalf("expected 1 enqueued task, got %d", len(ta.enq.tasks))
	}

	// The accepted job is immediately visible on the status endpoint.
	statusResp := doRequest(t, ta.app, http.MethodGet, "/v1/jobs/"+jobID, "", true)
	if statusResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", statusResp.StatusCode)
	}
	snapshot := parseJSON(t, statusResp)
	if snapshot["status"] != "queued" {
		t.Errorf("expected queued, got %v", snapshot["status"])
	}
}

func TestExplanation_OversizedImageReturns413WithIndex(t *testing.T) {
	ta := setupApp(t)

	// 30 quads decode to 90 bytes, over the 64-byte test limit.
	body := imagesBody("AAAA", strings.Repeat("AAAA", 30))
	resp := doRequest(t, ta.app, http.MethodPost, "/v1/explanation", body, true)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.StatusCode)
	}

	result := parseJSON(t, resp)
	errObj := result["error"].(map[string]interface{})
	if errObj["code"] != "PAYLOAD_TOO_LARGE" {
		t.Errorf("expected PAYLOAD_TOO_LARGE, got %v", errObj["code"])
	}
	details, ok := errObj["details"].(map[string]interface{})
	if !ok {
		t.Fatal("expected details naming the offending image")
	}
	if idx, _ := details["index"].(float64); idx != 1 {
		t.Errorf("expected offending index 1, got %v", details["index"])
	}
}

func TestExplanation_InvalidBase64Returns413WithIndex(t *testing.T) {
	ta := setupApp(t)

	resp := doRequest(t, ta.app, http.MethodPost, "/v1/explanation", imagesBody("???"), true)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.StatusCode)
	}

	result := parseJSON(t, resp)
	errObj := result["error"].(map[string]interface{})
	details, _ := errObj["details"].(map[string]interface{})
	if idx, _ := details["index"].(float64); idx != 0 {
		t.Errorf("expected offending index 0, got %v", details["index"])
	}
}

func TestExplanation_NoImagesIsValidationError(t *testing.T) {
	ta := setupApp(t)

	resp := doRequest(t, ta.app, http.MethodPost, "/v1/explanation", `{}`, true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if code := errorCode(t, parseJSON(t, resp)); code != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %s", code)
	}
}
