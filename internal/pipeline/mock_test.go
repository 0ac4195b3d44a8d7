package pipeline

import (
	"context"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/talentlens/reportflow/internal/config"
	"github.com/talentlens/reportflow/internal/docsource"
	"github.com/talentlens/reportflow/internal/finance"
	"github.com/talentlens/reportflow/pkg/anthropic"
)

// stubLLM scripts CreateMessage by stage name and per-stage call number,
// recording every request for prompt assertions. Safe under the parallel
// dispatcher.
type stubLLM struct {
	mu       sync.Mutex
	handler  func(stage string, call int) (*anthropic.MessageResponse, error)
	requests []anthropic.MessageRequest
	perStage map[string]int
}

var _ anthropic.Client = (*stubLLM)(nil)

func newStubLLM(handler func(stage string, call int) (*anthropic.MessageResponse, error)) *stubLLM {
	return &stubLLM{handler: handler, perStage: make(map[string]int)}
}

func (s *stubLLM) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	s.mu.Lock()
	stage := stageOf(req)
	s.perStage[stage]++
	call := s.perStage[stage]
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	return s.handler(stage, call)
}

func (s *stubLLM) recorded() []anthropic.MessageRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]anthropic.MessageRequest(nil), s.requests...)
}

func (s *stubLLM) calls(stage string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.perStage[stage]
}

// stageOf identifies the stage a request belongs to by its instruction
// wording.
func stageOf(req anthropic.MessageRequest) string {
	if len(req.Messages) == 0 {
		return ""
	}
	content := req.Messages[0].Content
	switch {
	case strings.Contains(content, "company profile"):
		return StageOverview
	case strings.Contains(content, "financial figures"):
		return StageFinancial
	case strings.Contains(content, "workforce insights"):
		return StageHR
	}
	return ""
}

// fakeResolver serves a fixed document body for any handle.
type fakeResolver struct {
	text string
	err  error
}

var _ docsource.Resolver = (*fakeResolver)(nil)

func (f *fakeResolver) Resolve(_ context.Context, handle string) (*docsource.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &docsource.Document{Handle: handle, Name: path.Base(handle), Text: f.text}, nil
}

func textResponse(body string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		ID:         "msg-test",
		Model:      "claude-sonnet-4-5-20250929",
		Content:    []anthropic.ContentBlock{{Type: "text", Text: body}},
		StopReason: "end_turn",
		Usage:      anthropic.TokenUsage{InputTokens: 1200, OutputTokens: 300},
	}
}

const overviewJSON = `{
  "description": "Acme Industrial makes specialty adhesives for manufacturers.",
  "industry": "Specialty chemicals",
  "headquarters": "Columbus, United States",
  "founded": "1987",
  "key_products": ["structural adhesives", "sealants"],
  "key_markets": ["North America", "Europe"]
}`

const financialJSON = `{
  "revenue": "Total revenue: $2.61 billion in fiscal 2024.",
  "profit_loss": "Net profit of $80 million.",
  "employees": "The company has 4,500 employees worldwide.",
  "assets": "Total assets of $12.4 billion.",
  "summary": "A solid year with stable margins."
}`

const hrJSON = `{
  "insights": [
    {"category": "workforce_growth", "finding": "Headcount grew 12% during the year.", "confidence": "high", "evidence": "We welcomed 480 new colleagues."},
    {"category": "culture", "finding": "Engagement scores improved for the third year.", "confidence": "medium", "evidence": "Engagement rose to 78%."},
    {"category": "training", "finding": "Investment in training doubled.", "confidence": "high", "evidence": "We doubled our learning budget."}
  ]
}`

func stagePayload(stage string) string {
	switch stage {
	case StageOverview:
		return overviewJSON
	case StageFinancial:
		return financialJSON
	case StageHR:
		return hrJSON
	}
	return ""
}

func happyLLM() *stubLLM {
	return newStubLLM(func(stage string, _ int) (*anthropic.MessageResponse, error) {
		return textResponse(stagePayload(stage)), nil
	})
}

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		Mode:          "sequential",
		HRMaxAttempts: 3,
		HRBackoff:     time.Millisecond,
		HRMinInsights: 1,
	}
}

func testAnthropicConfig() config.AnthropicConfig {
	return config.AnthropicConfig{
		APIKey:      "test-key",
		Model:       "claude-sonnet-4-5-20250929",
		MaxTokens:   4096,
		Temperature: 0.2,
	}
}

func testNormalizer(t *testing.T) *finance.Normalizer {
	t.Helper()
	norm, err := finance.NewNormalizer(finance.DefaultConfig())
	require.NoError(t, err)
	return norm
}

func newTestPipeline(t *testing.T, llm anthropic.Client) *Pipeline {
	t.Helper()
	return New(testPipelineConfig(), testAnthropicConfig(), llm, &fakeResolver{text: "Annual report body."}, testNormalizer(t))
}
