package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/talentlens/reportflow/internal/model"
)

const overviewInstructions = `You are a research analyst reading a company's annual report.

Extract the company profile from the document. Respond with a single JSON object:
{
  "description": "<one-sentence summary of what the company does>",
  "industry": "<primary industry>",
  "headquarters": "<city and country of the head office>",
  "founded": "<founding year>",
  "key_products": ["<main product or service>", ...],
  "key_markets": ["<geographic or customer market>", ...]
}

Use "Unknown" for any field the document does not state. Respond with only the JSON object, no commentary.`

var overviewSchema = jsonschema.MustCompileString("overview.json", `{
  "type": "object",
  "required": ["description"],
  "properties": {
    "description": {"type": "string"},
    "industry": {"type": "string"},
    "headquarters": {"type": "string"},
    "founded": {"type": ["string", "integer"]},
    "key_products": {"type": "array", "items": {"type": "string"}},
    "key_markets": {"type": "array", "items": {"type": "string"}}
  }
}`)

func (p *Pipeline) overviewStage(ctx context.Context, docText string) (model.BusinessOverview, model.StageStats, error) {
	stats := model.StageStats{Name: StageOverview, Attempts: 1}
	start := time.Now()

	payload, usage, err := p.callStage(ctx, StageOverview, overviewSchema, docText, overviewInstructions)
	stats.Duration = time.Since(start).Milliseconds()
	stats.TokenUsage = usage
	if err != nil {
		stats.Error = err.Error()
		return model.BusinessOverview{}, stats, err
	}

	ov, err := mapOverview(payload)
	if err != nil {
		stats.Error = err.Error()
		return model.BusinessOverview{}, stats, err
	}
	stats.Success = true
	return ov, stats, nil
}

// mapOverview converts the stage payload into the model type. The founding
// year is accepted as either a string or a bare number.
func mapOverview(payload map[string]any) (model.BusinessOverview, error) {
	var raw struct {
		Description  string   `json:"description"`
		Industry     string   `json:"industry"`
		Headquarters string   `json:"headquarters"`
		Founded      any      `json:"founded"`
		KeyProducts  []string `json:"key_products"`
		KeyMarkets   []string `json:"key_markets"`
	}
	if err := decodePayload(payload, &raw); err != nil {
		return model.BusinessOverview{}, err
	}
	return model.BusinessOverview{
		Description:  strings.TrimSpace(raw.Description),
		Industry:     normalizeField(raw.Industry),
		Headquarters: normalizeField(raw.Headquarters),
		Founded:      normalizeField(coerceYear(raw.Founded)),
		KeyProducts:  cleanList(raw.KeyProducts),
		KeyMarkets:   cleanList(raw.KeyMarkets),
	}, nil
}

// normalizeField trims a free-text field and blanks the "Unknown" the
// prompt asks for, so absent data stays absent in the model. The
// description keeps its literal value; "Unknown" is its documented
// degraded state.
func normalizeField(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "unknown") {
		return ""
	}
	return s
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" || strings.EqualFold(it, "unknown") {
			continue
		}
		out = append(out, it)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func coerceYear(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// defaultOverview is the degraded stage result: an explicit "Unknown"
// profile instead of a failed run.
func defaultOverview() model.BusinessOverview {
	return model.BusinessOverview{Description: "Unknown"}
}
