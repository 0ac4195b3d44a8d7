package model

import "time"

// RunStatus represents the current state of an analysis run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ErrorCategory classifies a run failure for triage.
type ErrorCategory string

const (
	ErrorCategoryTransient ErrorCategory = "transient"
	ErrorCategoryPermanent ErrorCategory = "permanent"
)

// RunError captures the cause of a failed run.
type RunError struct {
	Stage    string        `json:"stage,omitempty"`
	Message  string        `json:"message"`
	Category ErrorCategory `json:"category,omitempty"`
}

// Run represents a single analysis of one document.
type Run struct {
	ID             string          `json:"id"`
	Document       string          `json:"document"`
	Mode           ExecutionMode   `json:"mode"`
	Status         RunStatus       `json:"status"`
	PartialSuccess bool            `json:"partial_success"`
	QualityScore   int             `json:"quality_score"`
	Result         *PipelineResult `json:"result,omitempty"`
	AnalysisText   string          `json:"analysis_text,omitempty"`
	Error          *RunError       `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// AnalysisData is the flattened, display-ready form of a pipeline result:
// an overview paragraph, formatted metric lines, insight bullets, and a
// single text blob suitable for storage and search.
type AnalysisData struct {
	Document     string   `json:"document"`
	Overview     string   `json:"overview"`
	MetricLines  []string `json:"metric_lines"`
	InsightLines []string `json:"insight_lines"`
	Text         string   `json:"text"`
}
