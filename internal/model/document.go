package model

import "time"

// Document is a parent resource for explain and export jobs.
type Document struct {
	ID        string         `json:"id"`
	OrgID     string         `json:"-"`
	Title     string         `json:"title"`
	Source    DocumentSource `json:"source"`
	Text      string         `json:"-"`
	FileURL   string         `json:"-"`
	CreatedAt time.Time      `json:"created_at"`
}

// Transcript is a generated narration stored against a document.
type Transcript struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"-"`
	Content    string    `json:"content"`
	Tokens     int       `json:"tokens"`
	Model      string    `json:"model"`
	CreatedAt  time.Time `json:"created_at"`
}

// Asset is a stored artifact (diagram, edited page) referenced by URL.
type Asset struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"-"`
	Kind       AssetKind `json:"kind"`
	URL        string    `json:"url"`
	BBox       *BBox     `json:"bbox,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// BBox is a canvas-space bounding box.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Embedding is one transcript chunk vector.
type Embedding struct {
	DocumentID string
	Chunk      string
	Vector     []float64
}

// CreateDocumentRequest creates a document and, for typed sources, an
// explain job alongside it.
type CreateDocumentRequest struct {
	Title   string         `json:"title" validate:"required,max=500"`
	Source  DocumentSource `json:"source" validate:"required,oneof=typed pdf"`
	Text    string         `json:"text,omitempty"`
	FileURL string         `json:"fileUrl,omitempty" validate:"omitempty,url"`
}

// CreateDocumentResponse returns the new document and optional job id.
type CreateDocumentResponse struct {
	DocumentID string `json:"document_id"`
	JobID      string `json:"job_id,omitempty"`
}

// GetDocumentResponse bundles a document with its derived content.
type GetDocumentResponse struct {
	Document    Document     `json:"document"`
	Transcripts []Transcript `json:"transcripts"`
	Assets      []Asset      `json:"assets"`
}

// ExplainRequest is the typed-question pipeline input.
type ExplainRequest struct {
	DocumentID string `json:"document_id,omitempty"`
	Text       string `json:"text,omitempty"`
}
