package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/ezsolvy/api/internal/client"
	"github.com/ezsolvy/api/internal/config"
	"github.com/ezsolvy/api/internal/model"
	"github.com/ezsolvy/api/internal/store"
)

const analyzeAttempts = 3

const analyzeSystemPrompt = `You are a worksheet analyst. You receive a photo of a homework page.
Decide whether the page has enough whitespace to annotate in place ("annotate")
or needs separate explanation pages ("expand"). Identify every question on the
page. Respond with a single JSON object:
{"mode":"annotate|expand","reasoning":"...","questions":[{"id":"q1",
"questionText":"...","hasWhitespaceBelow":true,"answerInstructions":"...",
"diagramInstructions":"...","annotationZones":[{"label":"A","xPct":0,"yPct":0,
"widthPct":0,"heightPct":0,"notes":"..."}]}]}`

const narrateSystemPrompt = `You are a patient tutor. Write a spoken-style walkthrough of the
worksheet for the student, question by question, in plain language.
You also receive the render plan for the edited pages; point the student
at those pages by number, like [Page 2], whenever the plan splits the
work across pages.`

// ErrNoImages is returned when a dispatch request carries no source images.
var ErrNoImages = fmt.Errorf("no source images in request")

// ImageRejectedError identifies which source image failed validation.
// Handlers translate it into a 413 that names the offending index.
type ImageRejectedError struct {
	Index  int
	Reason string
}

func (e *ImageRejectedError) Error() string {
	return fmt.Sprintf("image %d rejected: %s", e.Index, e.Reason)
}

// DispatchOutcome is the router's decision plus its product: an inline
// result for sync, a job id for async.
type DispatchOutcome struct {
	Mode   model.DispatchMode
	Result *model.ExplanationResult
	JobID  string
}

// ExplanationService owns the image explanation pipeline: dispatch
// routing, source validation, and the analyze/plan/narrate/render steps.
type ExplanationService struct {
	store         store.Store
	enqueuer      TaskEnqueuer
	openai        *client.OpenAIClient
	banana        *client.NanoBananaClient
	maxSyncImages int
	maxImageBytes int64
}

func NewExplanationService(
	st store.Store,
	enqueuer TaskEnqueuer,
	openai *client.OpenAIClient,
	banana *client.NanoBananaClient,
	cfg *config.DispatchConfig,
) *ExplanationService {
	return &ExplanationService{
		store:         st,
		enqueuer:      enqueuer,
		openai:        openai,
		banana:        banana,
		maxSyncImages: cfg.MaxSyncImages,
		maxImageBytes: cfg.MaxImageBytes,
	}
}

// Dispatch validates the request and routes it. At most maxSyncImages
// sources run inline on the caller's context; anything larger becomes a
// queued job. Validation happens before the job row exists, so rejected
// requests leave no trace.
func (s *ExplanationService) Dispatch(ctx context.Context, userID, orgID string, req *model.ExplanationRequest) (*DispatchOutcome, error) {
	sources := req.Sources()
	if len(sources) == 0 {
		return nil, ErrNoImages
	}

	if err := s.validateSources(sources); err != nil {
		return nil, err
	}

	if len(sources) <= s.maxSyncImages {
		result, err := s.Run(ctx, req)
		if err != nil {
			return nil, err
		}
		return &DispatchOutcome{Mode: model.DispatchModeSync, Result: result}, nil
	}

	jobID, err := s.enqueueJob(ctx, userID, orgID, req)
	if err != nil {
		return nil, err
	}
	return &DispatchOutcome{Mode: model.DispatchModeAsync, JobID: jobID}, nil
}

func (s *ExplanationService) validateSources(sources []string) error {
	for i, src := range sources {
		size, err := decodedImageSize(src)
		if err != nil {
			return &ImageRejectedError{Index: i, Reason: err.Error()}
		}
		if size > s.maxImageBytes {
			return &ImageRejectedError{
				Index:  i,
				Reason: fmt.Sprintf("decoded size %d exceeds limit %d", size, s.maxImageBytes),
			}
		}
	}
	return nil
}

// decodedImageSize computes the decoded byte size of a base64 payload
// without decoding it. Data URL prefixes and whitespace are tolerated.
func decodedImageSize(b64 string) (int64, error) {
	if idx := strings.IndexByte(b64, ','); idx >= 0 && strings.HasPrefix(b64, "data:") {
		b64 = b64[idx+1:]
	}
	s := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, b64)

	if s == "" {
		return 0, fmt.Errorf("empty image data")
	}
	if len(s)%4 != 0 {
		return 0, fmt.Errorf("invalid base64 length")
	}

	padding := 0
	if strings.HasSuffix(s, "==") {
		padding = 2
	} else if strings.HasSuffix(s, "=") {
		padding = 1
	}
	for _, ch := range s[:len(s)-padding] {
		if (ch < 'A' || ch > 'Z') && (ch < 'a' || ch > 'z') && (ch < '0' || ch > '9') && ch != '+' && ch != '/' {
			return 0, fmt.Errorf("invalid base64 character")
		}
	}

	return int64(len(s)/4*3 - padding), nil
}

func (s *ExplanationService) enqueueJob(ctx context.Context, userID, orgID string, req *model.ExplanationRequest) (string, error) {
	jobID := uuid.New().String()

	reqBytes, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var documentID *string
	if req.DocumentID != "" {
		documentID = &req.DocumentID
	}

	job := &model.Job{
		ID:         jobID,
		Type:       model.JobTypeImageExplanation,
		Status:     model.JobStatusQueued,
		OrgID:      orgID,
		DocumentID: documentID,
		Payload:    reqBytes,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}

	msg := &model.TaskMessage{
		JobID:      jobID,
		Type:       model.JobTypeImageExplanation,
		OrgID:      orgID,
		UserID:     userID,
		DocumentID: documentID,
		Request:    reqBytes,
		Attempt:    0,
	}
	task, err := NewPipelineTask(msg)
	if err != nil {
		return "", err
	}

	// The job row exists before the message: a consumer can never see a
	// message whose job it cannot load. The reverse window (row inserted,
	// enqueue fails) leaves a queued row the caller learns about via the
	// returned error.
	if _, err := s.enqueuer.Enqueue(task, asynq.Retention(24*time.Hour)); err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	return jobID, nil
}

// ProgressFunc receives one checkpoint per completed pipeline step.
// stepIndex grows monotonically across the whole run.
type ProgressFunc func(step string, stepIndex, totalSteps int, message string)

// Run executes the four pipeline steps for every source image and
// aggregates the page results. It is shared by the sync path and the
// queue worker.
func (s *ExplanationService) Run(ctx context.Context, req *model.ExplanationRequest) (*model.ExplanationResult, error) {
	return s.RunWithProgress(ctx, req, nil)
}

// RunWithProgress is Run with a per-step checkpoint callback, used by the
// queue worker to persist progress after each step.
func (s *ExplanationService) RunWithProgress(ctx context.Context, req *model.ExplanationRequest, report ProgressFunc) (*model.ExplanationResult, error) {
	sources := req.Sources()

	totalSteps := 4 * len(sources)
	stepIndex := 0
	checkpoint := func(step, message string) {
		stepIndex++
		if report != nil {
			report(step, stepIndex, totalSteps, message)
		}
	}

	result := &model.ExplanationResult{}
	var transcripts []string

	for i, src := range sources {
		analysis, err := s.analyzeImage(ctx, src, req)
		if err != nil {
			return nil, fmt.Errorf("analyze failed for image %d: %w", i, err)
		}
		checkpoint("analyze", fmt.Sprintf("analyzed image %d of %d", i+1, len(sources)))

		plan := BuildRenderPlan(analysis, req.MaxPages)
		checkpoint("plan", fmt.Sprintf("planned %d page(s) for image %d", len(plan.Pages), i+1))

		transcript, err := s.narrate(ctx, analysis, plan, req.Audience)
		if err != nil {
			return nil, fmt.Errorf("narrate failed for image %d: %w", i, err)
		}
		checkpoint("narrate", fmt.Sprintf("narrated image %d of %d", i+1, len(sources)))

		edited, err := s.renderImage(ctx, src, plan)
		if err != nil {
			return nil, fmt.Errorf("render failed for image %d: %w", i, err)
		}
		checkpoint("render", fmt.Sprintf("rendered image %d of %d", i+1, len(sources)))

		result.Pages = append(result.Pages, model.PageResult{
			Page:              i + 1,
			Analysis:          *analysis,
			Plan:              *plan,
			Transcript:        transcript,
			EditedImageBase64: edited,
		})
		transcripts = append(transcripts, fmt.Sprintf("Page %d:\n%s", i+1, transcript))
	}

	result.Transcript = strings.Join(transcripts, "\n\n")
	return result, nil
}

// analyzeImage calls the vision model, retrying only when the provider's
// answer could not be parsed. Transport and API errors fail immediately;
// malformed answers get up to analyzeAttempts tries total. In expand
// mode a maxPages cap trims the question list here, so the plan, the
// narration, and the stored analysis all agree on what got cut.
func (s *ExplanationService) analyzeImage(ctx context.Context, imageBase64 string, req *model.ExplanationRequest) (*model.ImageAnalysis, error) {
	var lastErr error
	for attempt := 0; attempt < analyzeAttempts; attempt++ {
		analysis, err := s.requestAnalysis(ctx, imageBase64, req)
		if err == nil {
			if analysis.Mode == model.LayoutModeExpand && req.MaxPages > 0 && len(analysis.Questions) > req.MaxPages {
				analysis.Questions = analysis.Questions[:req.MaxPages]
			}
			return analysis, nil
		}
		lastErr = err
		if !client.IsMalformedResponse(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (s *ExplanationService) requestAnalysis(ctx context.Context, imageBase64 string, req *model.ExplanationRequest) (*model.ImageAnalysis, error) {
	if !s.openai.IsConfigured() {
		return mockAnalysis(), nil
	}

	user := "Analyze this worksheet page."
	if req.PromptHint != "" {
		user += " Hint from the student: " + req.PromptHint
	}
	if req.Audience != "" {
		user += " Audience: " + req.Audience + "."
	}

	content, err := s.openai.ChatCompletion(ctx, client.ChatOptions{
		System:      analyzeSystemPrompt,
		User:        user,
		ImageBase64: imageBase64,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}

	return parseAnalysis(content)
}

// parseAnalysis turns the model's JSON answer into a validated analysis.
// Any structural problem is reported as a malformed response so the
// caller's retry policy applies.
func parseAnalysis(content string) (*model.ImageAnalysis, error) {
	var analysis model.ImageAnalysis
	if err := json.Unmarshal([]byte(content), &analysis); err != nil {
		return nil, &client.MalformedResponseError{Provider: "openai", Err: err}
	}
	if analysis.Mode != model.LayoutModeAnnotate && analysis.Mode != model.LayoutModeExpand {
		return nil, &client.MalformedResponseError{
			Provider: "openai",
			Err:      fmt.Errorf("unknown layout mode %q", analysis.Mode),
		}
	}
	if len(analysis.Questions) == 0 {
		return nil, &client.MalformedResponseError{
			Provider: "openai",
			Err:      fmt.Errorf("analysis contains no questions"),
		}
	}
	return &analysis, nil
}

// BuildRenderPlan derives rendering instructions from an analysis. It is
// deterministic and performs no I/O. Annotate mode always yields one page
// over the original image; expand mode yields one page per question, and
// maxPages (when positive) truncates expand output only.
func BuildRenderPlan(analysis *model.ImageAnalysis, maxPages int) *model.RenderPlan {
	plan := &model.RenderPlan{
		Mode:    analysis.Mode,
		Summary: fmt.Sprintf("%d question(s), %s layout", len(analysis.Questions), analysis.Mode),
	}

	if analysis.Mode == model.LayoutModeAnnotate {
		page := model.PlanPage{PageNumber: 1, Title: "Annotated worksheet"}
		for _, q := range analysis.Questions {
			// One instruction per question: its answer guidance first,
			// then where on the page to put it.
			inst := q.ID + ":"
			if q.AnswerInstructions != "" {
				inst += " " + q.AnswerInstructions
			}
			if len(q.AnnotationZones) == 0 {
				inst += " Use nearby whitespace only."
			}
			for _, z := range q.AnnotationZones {
				inst += fmt.Sprintf(" Zone %s: place overlay at %.1f%%/%.1f%% size %.1f%%x%.1f%%: %s",
					z.Label, z.XPct, z.YPct, z.WidthPct, z.HeightPct, z.Notes)
			}
			page.Instructions = append(page.Instructions, inst)
		}
		plan.Pages = []model.PlanPage{page}
		return plan
	}

	for i, q := range analysis.Questions {
		page := model.PlanPage{
			PageNumber: i + 1,
			Title:      q.QuestionText,
		}
		page.Instructions = append(page.Instructions, "Work through: "+q.QuestionText)
		if q.AnswerInstructions != "" {
			page.Instructions = append(page.Instructions, q.AnswerInstructions)
		}
		if q.DiagramInstructions != "" {
			page.Instructions = append(page.Instructions, "Diagram: "+q.DiagramInstructions)
		}
		plan.Pages = append(plan.Pages, page)
	}
	if maxPages > 0 && len(plan.Pages) > maxPages {
		plan.Pages = plan.Pages[:maxPages]
	}
	return plan
}

func (s *ExplanationService) narrate(ctx context.Context, analysis *model.ImageAnalysis, plan *model.RenderPlan, audience string) (string, error) {
	if !s.openai.IsConfigured() {
		return mockTranscript(analysis), nil
	}

	analysisBytes, err := json.Marshal(analysis)
	if err != nil {
		return "", fmt.Errorf("failed to marshal analysis: %w", err)
	}
	planBytes, err := json.Marshal(plan)
	if err != nil {
		return "", fmt.Errorf("failed to marshal plan: %w", err)
	}

	user := "Worksheet analysis:\n" + string(analysisBytes) +
		"\n\nRender plan:\n" + string(planBytes)
	if audience != "" {
		user += "\nAudience: " + audience
	}

	return s.openai.ChatCompletion(ctx, client.ChatOptions{
		System: narrateSystemPrompt,
		User:   user,
	})
}

func (s *ExplanationService) renderImage(ctx context.Context, imageBase64 string, plan *model.RenderPlan) (string, error) {
	if !s.banana.IsConfigured() {
		// Development fallback: pass the source through untouched.
		return imageBase64, nil
	}
	return s.banana.EditImage(ctx, imageBase64, plan)
}

func mockAnalysis() *model.ImageAnalysis {
	return &model.ImageAnalysis{
		Mode:      model.LayoutModeAnnotate,
		Reasoning: "mock analysis",
		Questions: []model.ImageQuestion{
			{
				ID:                 "q1",
				QuestionText:       "Sample question",
				HasWhitespaceBelow: true,
				AnswerInstructions: "Write the worked answer below the question.",
			},
		},
	}
}

func mockTranscript(analysis *model.ImageAnalysis) string {
	var b strings.Builder
	b.WriteString("Let's go through the page together.")
	for _, q := range analysis.Questions {
		b.WriteString(" ")
		b.WriteString(q.QuestionText)
	}
	return b.String()
}
