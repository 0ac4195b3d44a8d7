package pipeline

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/talentlens/reportflow/internal/jsonrepair"
	"github.com/talentlens/reportflow/internal/model"
	"github.com/talentlens/reportflow/pkg/anthropic"
)

// documentPrompt frames the report text as the system prefix shared by all
// three stages, so the prompt cache absorbs the document after the first
// call.
func documentPrompt(text string) string {
	return "The text below is the full content of a company's annual report.\n\n<document>\n" + text + "\n</document>"
}

// callStage sends one extraction request and returns the decoded,
// schema-checked JSON payload. Token usage is returned even when the call
// fails after a response arrived, so retries still account for spend.
func (p *Pipeline) callStage(ctx context.Context, stage string, sch *jsonschema.Schema, docText, instructions string) (map[string]any, model.TokenUsage, error) {
	if p.cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.StageTimeout)
		defer cancel()
	}

	temp := p.ai.Temperature
	resp, err := p.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       p.ai.Model,
		MaxTokens:   p.ai.MaxTokens,
		System:      anthropic.BuildCachedSystemBlocks(documentPrompt(docText)),
		Messages:    []anthropic.Message{{Role: "user", Content: instructions}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, model.TokenUsage{}, eris.Wrapf(err, "pipeline: %s request", stage)
	}
	resp.Usage.LogCost(p.ai.Model, stage)

	usage := model.TokenUsage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		Cost:         resp.Usage.EstimateCost(p.ai.Model),
	}

	payload, err := jsonrepair.Decode(resp.Text())
	if err != nil {
		return nil, usage, eris.Wrapf(err, "pipeline: %s response", stage)
	}
	if err := sch.Validate(payload); err != nil {
		return nil, usage, eris.Wrapf(err, "pipeline: %s payload", stage)
	}
	return payload, usage, nil
}

// decodePayload remarshals a schema-checked payload into a typed struct.
func decodePayload(payload map[string]any, dst any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "pipeline: encode payload")
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return eris.Wrap(err, "pipeline: decode payload")
	}
	return nil
}
