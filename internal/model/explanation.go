package model

// ExplanationRequest is the normalized input to an explanation pipeline run.
// ImageBase64 and ImagesBase64 are alternatives; handlers collapse both into
// a single source list before dispatch.
type ExplanationRequest struct {
	ImageBase64  string   `json:"imageBase64,omitempty"`
	ImagesBase64 []string `json:"imagesBase64,omitempty"`
	Audience     string   `json:"audience,omitempty"`
	PromptHint   string   `json:"promptHint,omitempty"`
	MaxPages     int      `json:"maxPages,omitempty" validate:"omitempty,min=1"`
	DocumentID   string   `json:"documentId,omitempty" validate:"omitempty,uuid"`
}

// Sources returns the collected source images in request order.
func (r *ExplanationRequest) Sources() []string {
	if len(r.ImagesBase64) > 0 {
		return r.ImagesBase64
	}
	if r.ImageBase64 != "" {
		return []string{r.ImageBase64}
	}
	return nil
}

// ImageAnalysis is the planner's structured decision for one source image.
type ImageAnalysis struct {
	Mode      LayoutMode      `json:"mode"`
	Reasoning string          `json:"reasoning"`
	Questions []ImageQuestion `json:"questions"`
}

// ImageQuestion is one sub-question found on the worksheet.
type ImageQuestion struct {
	ID                  string           `json:"id"`
	QuestionText        string           `json:"questionText"`
	HasWhitespaceBelow  bool             `json:"hasWhitespaceBelow"`
	AnswerInstructions  string           `json:"answerInstructions"`
	DiagramInstructions string           `json:"diagramInstructions"`
	AnnotationZones     []AnnotationZone `json:"annotationZones,omitempty"`
}

// AnnotationZone is a percentage-based overlay placement on the original page.
type AnnotationZone struct {
	Label     string  `json:"label"`
	XPct      float64 `json:"xPct"`
	YPct      float64 `json:"yPct"`
	WidthPct  float64 `json:"widthPct"`
	HeightPct float64 `json:"heightPct"`
	Notes     string  `json:"notes"`
}

// RenderPlan is deterministically derived from an analysis.
type RenderPlan struct {
	Mode    LayoutMode `json:"mode"`
	Summary string     `json:"summary"`
	Pages   []PlanPage `json:"pages"`
}

// PlanPage is one page of rendering instructions.
type PlanPage struct {
	PageNumber   int      `json:"pageNumber"`
	Title        string   `json:"title"`
	Instructions []string `json:"instructions"`
}

// PageResult aggregates the four step outputs for one source image.
type PageResult struct {
	Page              int           `json:"page"`
	Analysis          ImageAnalysis `json:"analysis"`
	Plan              RenderPlan    `json:"plan"`
	Transcript        string        `json:"transcript"`
	EditedImageBase64 string        `json:"editedImageBase64"`
}

// ExplanationResult is the pipeline's final artifact set.
type ExplanationResult struct {
	Transcript string       `json:"transcript"`
	Pages      []PageResult `json:"pages"`
}

// ExplanationSyncResponse is returned when the dispatch router runs inline.
type ExplanationSyncResponse struct {
	Mode   DispatchMode       `json:"mode"`
	Result *ExplanationResult `json:"result"`
}

// ExplanationAsyncResponse is returned with accepted semantics.
type ExplanationAsyncResponse struct {
	Mode    DispatchMode `json:"mode"`
	JobID   string       `json:"job_id"`
	Message string       `json:"message"`
}
