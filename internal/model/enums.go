package model

// Job types
type JobType string

const (
	JobTypeImageExplanation JobType = "image-explanation"
	JobTypeExplain          JobType = "explain"
	JobTypePDFExport        JobType = "pdf-export"
)

var ValidJobTypes = []JobType{
	JobTypeImageExplanation, JobTypeExplain, JobTypePDFExport,
}

// Job status
type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusWorking JobStatus = "working"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// IsTerminal reports whether no further transition can leave the status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// Layout modes for the explanation planner
type LayoutMode string

const (
	LayoutModeAnnotate LayoutMode = "annotate"
	LayoutModeExpand   LayoutMode = "expand"
)

// Document sources
type DocumentSource string

const (
	DocumentSourceTyped DocumentSource = "typed"
	DocumentSourcePDF   DocumentSource = "pdf"
)

// Asset kinds
type AssetKind string

const (
	AssetKindText    AssetKind = "text"
	AssetKindDiagram AssetKind = "diagram"
	AssetKindImage   AssetKind = "image"
)

// Dispatch modes returned by the explanation endpoint
type DispatchMode string

const (
	DispatchModeSync  DispatchMode = "sync"
	DispatchModeAsync DispatchMode = "async"
)
