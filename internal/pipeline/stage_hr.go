package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/talentlens/reportflow/internal/model"
	"github.com/talentlens/reportflow/internal/resilience"
)

const hrInstructions = `You are an HR analyst reading a company's annual report.

Extract workforce insights from the document. Respond with a single JSON object:
{
  "insights": [
    {
      "category": "<one of: workforce_growth, culture, compensation, turnover, training, diversity, safety, other>",
      "finding": "<one-sentence insight>",
      "confidence": "<high, medium, or low>",
      "evidence": "<short quote from the document backing the finding>"
    }
  ]
}

Report every distinct workforce signal the document supports. Respond with only the JSON object, no commentary.`

var hrSchema = jsonschema.MustCompileString("hr.json", `{
  "type": "object",
  "required": ["insights"],
  "properties": {
    "insights": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["category", "finding", "confidence"],
        "properties": {
          "category": {"type": "string"},
          "finding": {"type": "string"},
          "confidence": {"type": "string", "enum": ["high", "medium", "low"]},
          "evidence": {"type": "string"}
        }
      }
    }
  }
}`)

// hrStage extracts workforce insights. The stage is retried with linear
// backoff up to the configured attempt cap; every failure mode retries,
// including a response that clears the schema but falls short of the
// minimum insight count.
func (p *Pipeline) hrStage(ctx context.Context, docText, prior string) ([]model.HRInsight, model.StageStats, error) {
	stats := model.StageStats{Name: StageHR}
	start := time.Now()

	retry := resilience.RetryConfig{
		MaxAttempts:    p.cfg.HRMaxAttempts,
		InitialBackoff: p.cfg.HRBackoff,
		Strategy:       resilience.BackoffLinear,
		ShouldRetry:    func(error) bool { return true },
		OnRetry:        resilience.RetryLogger("anthropic", "hr insights"),
	}

	insights, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]model.HRInsight, error) {
		stats.Attempts++
		payload, usage, callErr := p.callStage(ctx, StageHR, hrSchema, docText, hrPrompt(prior))
		stats.TokenUsage.Add(usage)
		if callErr != nil {
			return nil, callErr
		}
		ins, mapErr := mapInsights(payload)
		if mapErr != nil {
			return nil, mapErr
		}
		if len(ins) < p.cfg.HRMinInsights {
			return nil, eris.Errorf("pipeline: hr stage yielded %d insights, need at least %d", len(ins), p.cfg.HRMinInsights)
		}
		return ins, nil
	})
	stats.Duration = time.Since(start).Milliseconds()
	if err != nil {
		stats.Error = err.Error()
		return nil, stats, err
	}
	stats.Success = true
	return insights, stats, nil
}

// hrPrompt appends context from the earlier stages when sequential dispatch
// provides it.
func hrPrompt(prior string) string {
	if prior == "" {
		return hrInstructions
	}
	return hrInstructions + "\n\nFindings from the earlier analysis stages, for context:\n" + prior
}

func mapInsights(payload map[string]any) ([]model.HRInsight, error) {
	var raw struct {
		Insights []model.HRInsight `json:"insights"`
	}
	if err := decodePayload(payload, &raw); err != nil {
		return nil, err
	}
	out := make([]model.HRInsight, 0, len(raw.Insights))
	for _, in := range raw.Insights {
		in.Finding = strings.TrimSpace(in.Finding)
		if in.Finding == "" {
			continue
		}
		in.Category = strings.ToLower(strings.TrimSpace(in.Category))
		in.Evidence = strings.TrimSpace(in.Evidence)
		out = append(out, in)
	}
	return out, nil
}
