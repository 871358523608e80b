package model

// ExportRequest asks for a PDF composed from a document's pages.
type ExportRequest struct {
	DocumentID string `json:"document_id" validate:"required,uuid"`
	Title      string `json:"title,omitempty" validate:"omitempty,max=500"`
}

// ExportResponse carries the accepted job id.
type ExportResponse struct {
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status"`
}

// ExportResult is embedded in the job progress once the PDF is stored.
type ExportResult struct {
	PDFURL string `json:"pdf_url"`
}
