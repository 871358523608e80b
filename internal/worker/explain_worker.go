package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/ezsolvy/api/internal/client"
	"github.com/ezsolvy/api/internal/model"
	"github.com/ezsolvy/api/internal/service"
	"github.com/ezsolvy/api/internal/store"
	"github.com/ezsolvy/api/internal/websocket"
)

const explainTotalSteps = 6

const explainAnalyzeSystem = `You are a study assistant. Break the given text into the key
questions or topics a student must master. Respond with JSON:
{"topics":["..."],"needsDiagram":true,"diagramHint":"..."}`

const explainNarrateSystem = `You are a patient tutor. Explain the material below as a spoken
walkthrough a student can follow without seeing the page.`

const diagramPlanSystem = `You design one diagram that captures the core idea of the material.
Respond with JSON: {"title":"...","type":"flowchart|timeline|labeled-figure",
"style":"hand-drawn","elements":[...]}`

// ExplainWorker runs the document explanation pipeline: ingest, analyze,
// research, diagram planning and rendering, then transcript generation
// with embeddings.
type ExplainWorker struct {
	store      store.Store
	enqueuer   service.TaskEnqueuer
	openai     *client.OpenAIClient
	perplexity *client.PerplexityClient
	banana     *client.NanoBananaClient
	r2         client.StorageClient
	hub        *websocket.Hub
}

type explainAnalysis struct {
	Topics       []string `json:"topics"`
	NeedsDiagram bool     `json:"needsDiagram"`
	DiagramHint  string   `json:"diagramHint"`
}

type explainResult struct {
	TranscriptID string   `json:"transcript_id"`
	DiagramURL   string   `json:"diagram_url,omitempty"`
	Citations    []string `json:"citations,omitempty"`
}

// NewExplainWorker creates a new explain worker
func NewExplainWorker(
	st store.Store,
	enqueuer service.TaskEnqueuer,
	openai *client.OpenAIClient,
	perplexity *client.PerplexityClient,
	banana *client.NanoBananaClient,
	r2 client.StorageClient,
	hub *websocket.Hub,
) *ExplainWorker {
	return &ExplainWorker{
		store:      st,
		enqueuer:   enqueuer,
		openai:     openai,
		perplexity: perplexity,
		banana:     banana,
		r2:         r2,
		hub:        hub,
	}
}

// ProcessTask handles one explain message
func (w *ExplainWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	msg, err := decodeMessage(t)
	if err != nil {
		return err
	}

	_, ok, err := claimJob(ctx, w.store, msg.JobID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	log.Printf("Starting explain job %s (attempt %d)", msg.JobID, msg.Attempt)

	var req model.ExplainRequest
	if err := json.Unmarshal(msg.Request, &req); err != nil {
		return failJob(ctx, w.store, w.hub, msg.JobID, fmt.Errorf("invalid request payload: %w", err))
	}

	result, err := w.run(ctx, msg.JobID, &req)
	if err != nil {
		return retryOrFail(ctx, w.store, w.hub, w.enqueuer, msg, err)
	}

	if err := completeJob(ctx, w.store, w.hub, msg.JobID, explainTotalSteps, result); err != nil {
		return err
	}

	log.Printf("Explain job %s completed", msg.JobID)
	return nil
}

func (w *ExplainWorker) run(ctx context.Context, jobID string, req *model.ExplainRequest) (*explainResult, error) {
	step := func(idx int, name, message string) {
		checkpoint(ctx, w.store, w.hub, jobID, &model.JobProgress{
			Step:       name,
			StepIndex:  idx,
			TotalSteps: explainTotalSteps,
			Message:    message,
		})
	}

	// Step 1: ingest
	text := req.Text
	if req.DocumentID != "" {
		doc, err := w.store.GetDocument(ctx, req.DocumentID)
		if err != nil {
			return nil, fmt.Errorf("ingest failed: %w", err)
		}
		if text == "" {
			text = doc.Text
		}
	}
	if text == "" {
		return nil, fmt.Errorf("nothing to explain: document has no text")
	}
	step(1, "ingest", "loaded source text")

	// Step 2: analyze
	analysis, err := w.analyze(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("analyze failed: %w", err)
	}
	step(2, "analyze", fmt.Sprintf("found %d topic(s)", len(analysis.Topics)))

	// Step 3: research
	research, err := w.research(ctx, analysis)
	if err != nil {
		return nil, fmt.Errorf("research failed: %w", err)
	}
	step(3, "research", "gathered background material")

	// Step 4: diagram plan
	var spec *client.DiagramSpec
	if analysis.NeedsDiagram {
		spec, err = w.planDiagram(ctx, text, analysis.DiagramHint)
		if err != nil {
			return nil, fmt.Errorf("diagram planning failed: %w", err)
		}
	}
	step(4, "diagram_plan", "diagram planned")

	// Step 5: diagram render
	result := &explainResult{}
	if research != nil {
		result.Citations = research.Citations
	}
	if spec != nil {
		url, err := w.renderDiagram(ctx, req.DocumentID, spec)
		if err != nil {
			return nil, fmt.Errorf("diagram rendering failed: %w", err)
		}
		result.DiagramURL = url
	}
	step(5, "diagram_render", "diagram stored")

	// Step 6: transcript and embeddings
	transcriptID, err := w.writeTranscript(ctx, req.DocumentID, text, analysis, research)
	if err != nil {
		return nil, fmt.Errorf("transcript failed: %w", err)
	}
	result.TranscriptID = transcriptID
	step(6, "transcript", "transcript stored")

	return result, nil
}

func (w *ExplainWorker) analyze(ctx context.Context, text string) (*explainAnalysis, error) {
	if !w.openai.IsConfigured() {
		return &explainAnalysis{Topics: []string{"overview"}}, nil
	}

	content, err := w.openai.ChatCompletion(ctx, client.ChatOptions{
		System:   explainAnalyzeSystem,
		User:     text,
		JSONMode: true,
	})
	if err != nil {
		return nil, err
	}

	var analysis explainAnalysis
	if err := json.Unmarshal([]byte(content), &analysis); err != nil {
		return nil, &client.MalformedResponseError{Provider: "openai", Err: err}
	}
	return &analysis, nil
}

func (w *ExplainWorker) research(ctx context.Context, analysis *explainAnalysis) (*client.ResearchResult, error) {
	if !w.perplexity.IsConfigured() || len(analysis.Topics) == 0 {
		return nil, nil
	}

	user := "Give concise, sourced background on: "
	for i, topic := range analysis.Topics {
		if i > 0 {
			user += "; "
		}
		user += topic
	}
	return w.perplexity.Research(ctx, "You provide factual background with citations.", user)
}

func (w *ExplainWorker) planDiagram(ctx context.Context, text, hint string) (*client.DiagramSpec, error) {
	if !w.openai.IsConfigured() {
		return &client.DiagramSpec{Title: "Overview", Type: "flowchart", Style: "hand-drawn"}, nil
	}

	user := text
	if hint != "" {
		user += "\nDiagram hint: " + hint
	}
	content, err := w.openai.ChatCompletion(ctx, client.ChatOptions{
		System:   diagramPlanSystem,
		User:     user,
		JSONMode: true,
	})
	if err != nil {
		return nil, err
	}

	var spec client.DiagramSpec
	if err := json.Unmarshal([]byte(content), &spec); err != nil {
		return nil, &client.MalformedResponseError{Provider: "openai", Err: err}
	}
	return &spec, nil
}

func (w *ExplainWorker) renderDiagram(ctx context.Context, documentID string, spec *client.DiagramSpec) (string, error) {
	if !w.banana.IsConfigured() || w.r2 == nil {
		return "", nil
	}

	png, err := w.banana.GenerateDiagram(ctx, spec)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("diagrams/%s/%s.png", documentID, uuid.New().String())
	url, err := w.r2.Upload(ctx, key, bytes.NewReader(png), "image/png")
	if err != nil {
		return "", err
	}

	if documentID != "" {
		asset := &model.Asset{
			ID:         uuid.New().String(),
			DocumentID: documentID,
			Kind:       model.AssetKindDiagram,
			URL:        url,
		}
		if err := w.store.InsertAsset(ctx, asset); err != nil {
			return "", err
		}
	}
	return url, nil
}

func (w *ExplainWorker) writeTranscript(ctx context.Context, documentID, text string, analysis *explainAnalysis, research *client.ResearchResult) (string, error) {
	content, err := w.narrate(ctx, text, analysis, research)
	if err != nil {
		return "", err
	}

	transcriptID := uuid.New().String()
	if documentID != "" {
		transcript := &model.Transcript{
			ID:         transcriptID,
			DocumentID: documentID,
			Content:    content,
			Tokens:     len(content) / 4,
			Model:      "openai",
		}
		if err := w.store.InsertTranscript(ctx, transcript); err != nil {
			return "", err
		}

		if w.openai.IsConfigured() {
			for _, chunk := range chunkText(content, 1000) {
				vec, err := w.openai.Embedding(ctx, chunk)
				if err != nil {
					return "", err
				}
				emb := &model.Embedding{DocumentID: documentID, Chunk: chunk, Vector: vec}
				if err := w.store.InsertEmbedding(ctx, emb); err != nil {
					return "", err
				}
			}
		}
	}
	return transcriptID, nil
}

func (w *ExplainWorker) narrate(ctx context.Context, text string, analysis *explainAnalysis, research *client.ResearchResult) (string, error) {
	if !w.openai.IsConfigured() {
		return "Let's work through the material step by step.", nil
	}

	user := "Material:\n" + text
	if len(analysis.Topics) > 0 {
		topicsBytes, _ := json.Marshal(analysis.Topics)
		user += "\nTopics: " + string(topicsBytes)
	}
	if research != nil && research.Content != "" {
		user += "\nBackground:\n" + research.Content
	}
	return w.openai.ChatCompletion(ctx, client.ChatOptions{
		System: explainNarrateSystem,
		User:   user,
	})
}

// chunkText splits text into chunks of at most size bytes, breaking on
// rune boundaries.
func chunkText(text string, size int) []string {
	var chunks []string
	runes := []rune(text)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
