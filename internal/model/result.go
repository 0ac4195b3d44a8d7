package model

// Confidence buckets how reliable an extracted value or insight is.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Weight maps a confidence bucket to the numeric weight used in scoring.
func (c Confidence) Weight() float64 {
	switch c {
	case ConfidenceHigh:
		return 1.0
	case ConfidenceMedium:
		return 0.6
	case ConfidenceLow:
		return 0.3
	default:
		return 0
	}
}

// ExecutionMode selects how pipeline stages are dispatched.
type ExecutionMode string

const (
	ModeSequential ExecutionMode = "sequential"
	ModeParallel   ExecutionMode = "parallel"
)

// Valid reports whether the mode is one of the supported dispatch modes.
func (m ExecutionMode) Valid() bool {
	return m == ModeSequential || m == ModeParallel
}

// BusinessOverview holds the narrative company profile extracted in stage 0.
type BusinessOverview struct {
	Description  string   `json:"description"`
	Industry     string   `json:"industry"`
	Headquarters string   `json:"headquarters"`
	Founded      string   `json:"founded"`
	KeyProducts  []string `json:"key_products,omitempty"`
	KeyMarkets   []string `json:"key_markets,omitempty"`
}

// HRInsight is a single workforce finding extracted in stage 2.
type HRInsight struct {
	Category   string     `json:"category"`
	Finding    string     `json:"finding"`
	Confidence Confidence `json:"confidence"`
	Evidence   string     `json:"evidence,omitempty"`
}

// TokenUsage tracks token consumption and estimated cost across stages.
type TokenUsage struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Add merges token usage from another instance.
func (t *TokenUsage) Add(other TokenUsage) {
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.Cost += other.Cost
}

// Total returns the combined input and output token count.
func (t TokenUsage) Total() int64 {
	return t.InputTokens + t.OutputTokens
}

// StageStats records the outcome of a single pipeline stage.
type StageStats struct {
	Name       string     `json:"name"`
	Success    bool       `json:"success"`
	Fallback   bool       `json:"fallback,omitempty"`
	Attempts   int        `json:"attempts"`
	Duration   int64      `json:"duration_ms"`
	TokenUsage TokenUsage `json:"token_usage"`
	Error      string     `json:"error,omitempty"`
}

// ProcessingStats aggregates per-stage outcomes for a whole run.
type ProcessingStats struct {
	Mode           ExecutionMode `json:"mode"`
	Stages         []StageStats  `json:"stages"`
	PartialSuccess bool          `json:"partial_success"`
	QualityScore   int           `json:"quality_score"`
	Duration       int64         `json:"duration_ms"`
	TokenUsage     TokenUsage    `json:"token_usage"`
}

// Stage returns the stats entry for the named stage, or nil if absent.
func (s *ProcessingStats) Stage(name string) *StageStats {
	for i := range s.Stages {
		if s.Stages[i].Name == name {
			return &s.Stages[i]
		}
	}
	return nil
}

// PipelineResult is the immutable aggregate produced by one pipeline run.
// It is created once per run, owned by the caller, and never mutated after
// the orchestrator returns it.
type PipelineResult struct {
	BusinessOverview BusinessOverview `json:"business_overview"`
	FinancialMetrics FinancialMetrics `json:"financial_metrics"`
	HRInsights       []HRInsight      `json:"hr_insights"`
	Stats            ProcessingStats  `json:"processing_stats"`
}
