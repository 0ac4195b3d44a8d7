package pipeline

import "fmt"

// Stage names, in dispatch order. StagePipeline marks failures outside any
// extraction stage, such as document resolution or dispatch machinery.
const (
	StageOverview  = "business_overview"
	StageFinancial = "financial"
	StageHR        = "hr"
	StagePipeline  = "pipeline"
)

// StagedFailure is a fatal pipeline error tagged with the stage that caused
// it. Degradable stages never surface as a StagedFailure; only the HR stage
// and the pipeline itself abort a run.
type StagedFailure struct {
	Stage string
	Cause error
}

func (f *StagedFailure) Error() string {
	return fmt.Sprintf("pipeline: stage %s failed: %v", f.Stage, f.Cause)
}

func (f *StagedFailure) Unwrap() error { return f.Cause }
