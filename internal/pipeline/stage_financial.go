package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/talentlens/reportflow/internal/model"
)

const financialInstructions = `You are a financial analyst reading a company's annual report.

Locate the financial figures in the document and quote them as written. Respond with a single JSON object:
{
  "revenue": "<sentence quoting total revenue with currency and scale>",
  "profit_loss": "<sentence quoting net profit or net loss>",
  "employees": "<sentence quoting the number of employees>",
  "assets": "<sentence quoting total assets>",
  "summary": "<one sentence on overall financial performance>"
}

Keep the document's own wording, including currency symbols and scale words such as million or billion. Use "not disclosed" for any figure the document does not state. Respond with only the JSON object, no commentary.`

var financialSchema = jsonschema.MustCompileString("financial.json", `{
  "type": "object",
  "required": ["revenue", "profit_loss", "employees", "assets"],
  "properties": {
    "revenue": {"type": "string"},
    "profit_loss": {"type": "string"},
    "employees": {"type": "string"},
    "assets": {"type": "string"},
    "summary": {"type": "string"}
  }
}`)

// financialStage asks the model for verbatim quotes and hands them to the
// deterministic normalizer. The normalizer never fails; a quote it cannot
// parse becomes a typed null, not a stage error.
func (p *Pipeline) financialStage(ctx context.Context, docText string) (model.FinancialMetrics, model.StageStats, error) {
	stats := model.StageStats{Name: StageFinancial, Attempts: 1}
	start := time.Now()

	payload, usage, err := p.callStage(ctx, StageFinancial, financialSchema, docText, financialInstructions)
	stats.Duration = time.Since(start).Milliseconds()
	stats.TokenUsage = usage
	if err != nil {
		stats.Error = err.Error()
		return model.FinancialMetrics{}, stats, err
	}

	var raw struct {
		Revenue    string `json:"revenue"`
		ProfitLoss string `json:"profit_loss"`
		Employees  string `json:"employees"`
		Assets     string `json:"assets"`
		Summary    string `json:"summary"`
	}
	if err := decodePayload(payload, &raw); err != nil {
		stats.Error = err.Error()
		return model.FinancialMetrics{}, stats, err
	}

	metrics := p.norm.Extract(narrativeText(raw.Revenue, raw.ProfitLoss, raw.Employees, raw.Assets, raw.Summary))
	stats.Success = true
	return metrics, stats, nil
}

// narrativeText joins the quoted sentences into the block the normalizer
// parses.
func narrativeText(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, "\n")
}

// defaultMetrics is the degraded stage result: typed nulls at low
// confidence, with a note explaining the gap.
func defaultMetrics() model.FinancialMetrics {
	null := model.MetricRecord{Confidence: model.ConfidenceLow}
	return model.FinancialMetrics{
		Revenue:    null,
		ProfitLoss: null,
		Employees:  null,
		Assets:     null,
		Validation: model.ValidationRecord{
			Notes: []string{"financial stage failed; no metrics extracted"},
		},
	}
}
