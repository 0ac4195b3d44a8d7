package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentlens/reportflow/internal/model"
	"github.com/talentlens/reportflow/pkg/anthropic"
)

func TestRunSequential_Success(t *testing.T) {
	llm := happyLLM()
	p := newTestPipeline(t, llm)

	res, err := p.Run(context.Background(), "reports/acme.pdf", model.ModeSequential)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "Acme Industrial makes specialty adhesives for manufacturers.", res.BusinessOverview.Description)
	assert.Equal(t, "Specialty chemicals", res.BusinessOverview.Industry)
	assert.Equal(t, "1987", res.BusinessOverview.Founded)
	assert.Equal(t, []string{"structural adhesives", "sealants"}, res.BusinessOverview.KeyProducts)

	require.NotNil(t, res.FinancialMetrics.Revenue.Value)
	assert.InDelta(t, 2_610_000_000, *res.FinancialMetrics.Revenue.Value, 1)
	require.NotNil(t, res.FinancialMetrics.ProfitLoss.Value)
	assert.InDelta(t, 80_000_000, *res.FinancialMetrics.ProfitLoss.Value, 1)
	require.NotNil(t, res.FinancialMetrics.Employees.Value)
	assert.InDelta(t, 4500, *res.FinancialMetrics.Employees.Value, 0.5)
	assert.True(t, res.FinancialMetrics.Validation.CrossCheckPassed)
	assert.False(t, res.FinancialMetrics.Validation.FlaggedForReview)

	require.Len(t, res.HRInsights, 3)
	assert.Equal(t, "workforce_growth", res.HRInsights[0].Category)
	assert.Equal(t, model.ConfidenceHigh, res.HRInsights[0].Confidence)

	stats := res.Stats
	assert.Equal(t, model.ModeSequential, stats.Mode)
	assert.False(t, stats.PartialSuccess)
	require.Len(t, stats.Stages, 3)
	assert.Equal(t, StageOverview, stats.Stages[0].Name)
	assert.Equal(t, StageFinancial, stats.Stages[1].Name)
	assert.Equal(t, StageHR, stats.Stages[2].Name)
	for _, st := range stats.Stages {
		assert.True(t, st.Success, "stage %s", st.Name)
		assert.False(t, st.Fallback, "stage %s", st.Name)
		assert.Equal(t, 1, st.Attempts, "stage %s", st.Name)
	}

	assert.Greater(t, stats.QualityScore, 60)
	assert.LessOrEqual(t, stats.QualityScore, 100)
	assert.Equal(t, int64(3*1500), stats.TokenUsage.Total())
	assert.InDelta(t, 3*(1200*3.00/1e6+300*15.00/1e6), stats.TokenUsage.Cost, 1e-9)
}

func TestRunSequential_OverviewFallback(t *testing.T) {
	llm := newStubLLM(func(stage string, _ int) (*anthropic.MessageResponse, error) {
		if stage == StageOverview {
			return nil, errors.New("api unavailable")
		}
		return textResponse(stagePayload(stage)), nil
	})
	p := newTestPipeline(t, llm)

	res, err := p.Run(context.Background(), "reports/acme.pdf", model.ModeSequential)
	require.NoError(t, err)

	assert.Equal(t, "Unknown", res.BusinessOverview.Description)
	assert.Empty(t, res.BusinessOverview.Industry)
	assert.True(t, res.Stats.PartialSuccess)

	ovStats := res.Stats.Stage(StageOverview)
	require.NotNil(t, ovStats)
	assert.True(t, ovStats.Fallback)
	assert.False(t, ovStats.Success)
	assert.Contains(t, ovStats.Error, "business_overview request")

	// The remaining stages are untouched by the degradation.
	require.NotNil(t, res.FinancialMetrics.Revenue.Value)
	require.Len(t, res.HRInsights, 3)

	// The HR prompt carries context only from the stage that succeeded.
	reqs := llm.recorded()
	hrReq := reqs[len(reqs)-1]
	assert.NotContains(t, hrReq.Messages[0].Content, "Business overview:")
	assert.Contains(t, hrReq.Messages[0].Content, "Financial metrics:")
}

func TestRunSequential_FinancialFallback(t *testing.T) {
	llm := newStubLLM(func(stage string, _ int) (*anthropic.MessageResponse, error) {
		if stage == StageFinancial {
			return nil, errors.New("api unavailable")
		}
		return textResponse(stagePayload(stage)), nil
	})
	p := newTestPipeline(t, llm)

	res, err := p.Run(context.Background(), "reports/acme.pdf", model.ModeSequential)
	require.NoError(t, err)

	assert.Nil(t, res.FinancialMetrics.Revenue.Value)
	assert.Nil(t, res.FinancialMetrics.ProfitLoss.Value)
	assert.Nil(t, res.FinancialMetrics.Employees.Value)
	assert.Nil(t, res.FinancialMetrics.Assets.Value)
	assert.Equal(t, model.ConfidenceLow, res.FinancialMetrics.Revenue.Confidence)
	assert.Contains(t, res.FinancialMetrics.Validation.Notes, "financial stage failed; no metrics extracted")

	assert.True(t, res.Stats.PartialSuccess)
	fmStats := res.Stats.Stage(StageFinancial)
	require.NotNil(t, fmStats)
	assert.True(t, fmStats.Fallback)

	// Overview still extracted normally.
	assert.Equal(t, "Specialty chemicals", res.BusinessOverview.Industry)
}

func TestRunSequential_HRFatal(t *testing.T) {
	llm := newStubLLM(func(stage string, _ int) (*anthropic.MessageResponse, error) {
		if stage == StageHR {
			return nil, errors.New("overloaded")
		}
		return textResponse(stagePayload(stage)), nil
	})
	p := newTestPipeline(t, llm)

	res, err := p.Run(context.Background(), "reports/acme.pdf", model.ModeSequential)
	require.Error(t, err)
	assert.Nil(t, res)

	var sf *StagedFailure
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, StageHR, sf.Stage)

	// Retried to the attempt cap before giving up.
	assert.Equal(t, 3, llm.calls(StageHR))
}

func TestRunSequential_HRRetriesThenSucceeds(t *testing.T) {
	llm := newStubLLM(func(stage string, call int) (*anthropic.MessageResponse, error) {
		if stage == StageHR && call < 3 {
			return nil, errors.New("transient overload")
		}
		return textResponse(stagePayload(stage)), nil
	})
	p := newTestPipeline(t, llm)

	res, err := p.Run(context.Background(), "reports/acme.pdf", model.ModeSequential)
	require.NoError(t, err)

	hrStats := res.Stats.Stage(StageHR)
	require.NotNil(t, hrStats)
	assert.True(t, hrStats.Success)
	assert.Equal(t, 3, hrStats.Attempts)
	// Failed attempts returned no response, so only the last call counts.
	assert.Equal(t, int64(1500), hrStats.TokenUsage.Total())
	require.Len(t, res.HRInsights, 3)
}

func TestRunParallel_MatchesSequential(t *testing.T) {
	seq, err := newTestPipeline(t, happyLLM()).Run(context.Background(), "reports/acme.pdf", model.ModeSequential)
	require.NoError(t, err)
	par, err := newTestPipeline(t, happyLLM()).Run(context.Background(), "reports/acme.pdf", model.ModeParallel)
	require.NoError(t, err)

	assert.Equal(t, seq.BusinessOverview, par.BusinessOverview)
	assert.Equal(t, seq.FinancialMetrics, par.FinancialMetrics)
	assert.Equal(t, seq.HRInsights, par.HRInsights)
	assert.Equal(t, seq.Stats.QualityScore, par.Stats.QualityScore)

	assert.Equal(t, model.ModeSequential, seq.Stats.Mode)
	assert.Equal(t, model.ModeParallel, par.Stats.Mode)
}

func TestRunParallel_NoShortCircuit(t *testing.T) {
	llm := newStubLLM(func(stage string, _ int) (*anthropic.MessageResponse, error) {
		if stage == StageOverview {
			return nil, errors.New("api unavailable")
		}
		return textResponse(stagePayload(stage)), nil
	})
	p := newTestPipeline(t, llm)

	res, err := p.Run(context.Background(), "reports/acme.pdf", model.ModeParallel)
	require.NoError(t, err)

	// Every stage was dispatched despite the overview failure.
	assert.Equal(t, 1, llm.calls(StageOverview))
	assert.Equal(t, 1, llm.calls(StageFinancial))
	assert.Equal(t, 1, llm.calls(StageHR))

	assert.Equal(t, "Unknown", res.BusinessOverview.Description)
	assert.True(t, res.Stats.PartialSuccess)
	require.NotNil(t, res.FinancialMetrics.Revenue.Value)
	require.Len(t, res.HRInsights, 3)
}

func TestRunParallel_HRFatalStillRunsOthers(t *testing.T) {
	llm := newStubLLM(func(stage string, _ int) (*anthropic.MessageResponse, error) {
		if stage == StageHR {
			return nil, errors.New("overloaded")
		}
		return textResponse(stagePayload(stage)), nil
	})
	p := newTestPipeline(t, llm)

	res, err := p.Run(context.Background(), "reports/acme.pdf", model.ModeParallel)
	require.Error(t, err)
	assert.Nil(t, res)

	var sf *StagedFailure
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, StageHR, sf.Stage)

	assert.Equal(t, 1, llm.calls(StageOverview))
	assert.Equal(t, 1, llm.calls(StageFinancial))
	assert.Equal(t, 3, llm.calls(StageHR))
}

func TestRunParallel_DispatchPanicFallsBackToSequential(t *testing.T) {
	llm := newStubLLM(func(stage string, call int) (*anthropic.MessageResponse, error) {
		if stage == StageHR && call == 1 {
			panic("slot misrouted")
		}
		return textResponse(stagePayload(stage)), nil
	})
	p := newTestPipeline(t, llm)

	res, err := p.Run(context.Background(), "reports/acme.pdf", model.ModeParallel)
	require.NoError(t, err)
	require.NotNil(t, res)

	// The whole run re-executed sequentially, and the stats say so.
	assert.Equal(t, model.ModeSequential, res.Stats.Mode)
	assert.Equal(t, 2, llm.calls(StageOverview))
	assert.Equal(t, 2, llm.calls(StageHR))
	require.Len(t, res.HRInsights, 3)
	assert.False(t, res.Stats.PartialSuccess)
}

func TestRun_InvalidMode(t *testing.T) {
	llm := happyLLM()
	p := newTestPipeline(t, llm)

	res, err := p.Run(context.Background(), "reports/acme.pdf", model.ExecutionMode("turbo"))
	require.Error(t, err)
	assert.Nil(t, res)

	var sf *StagedFailure
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, StagePipeline, sf.Stage)
	assert.Empty(t, llm.recorded())
}

func TestRun_ResolveFailure(t *testing.T) {
	llm := happyLLM()
	p := New(testPipelineConfig(), testAnthropicConfig(), llm,
		&fakeResolver{err: errors.New("no such file")}, testNormalizer(t))

	res, err := p.Run(context.Background(), "reports/missing.pdf", model.ModeSequential)
	require.Error(t, err)
	assert.Nil(t, res)

	var sf *StagedFailure
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, StagePipeline, sf.Stage)
	assert.Contains(t, err.Error(), "resolve document")
	assert.Empty(t, llm.recorded())
}

func TestRunSequential_HRPromptCarriesContext(t *testing.T) {
	llm := happyLLM()
	p := newTestPipeline(t, llm)

	_, err := p.Run(context.Background(), "reports/acme.pdf", model.ModeSequential)
	require.NoError(t, err)

	reqs := llm.recorded()
	require.Len(t, reqs, 3)
	hrReq := reqs[2]
	assert.Contains(t, hrReq.Messages[0].Content, "Business overview:")
	assert.Contains(t, hrReq.Messages[0].Content, "Financial metrics:")
	assert.Contains(t, hrReq.Messages[0].Content, "Acme Industrial")

	// Each stage ships the document as a cached system prefix.
	for _, req := range reqs {
		require.NotEmpty(t, req.System)
		assert.Contains(t, req.System[0].Text, "Annual report body.")
		require.NotNil(t, req.System[0].CacheControl)
		assert.Equal(t, "5m", req.System[0].CacheControl.TTL)
	}
}

func TestRunParallel_HRPromptOmitsContext(t *testing.T) {
	llm := happyLLM()
	p := newTestPipeline(t, llm)

	_, err := p.Run(context.Background(), "reports/acme.pdf", model.ModeParallel)
	require.NoError(t, err)

	for _, req := range llm.recorded() {
		if stageOf(req) != StageHR {
			continue
		}
		assert.NotContains(t, req.Messages[0].Content, "Business overview:")
		assert.NotContains(t, req.Messages[0].Content, "Financial metrics:")
	}
}

func TestRun_StageTimeoutDegradesStage(t *testing.T) {
	llm := &slowLLM{
		inner: happyLLM(),
		stage: StageOverview,
		delay: 200 * time.Millisecond,
	}
	cfg := testPipelineConfig()
	cfg.StageTimeout = 10 * time.Millisecond
	p := New(cfg, testAnthropicConfig(), llm, &fakeResolver{text: "Annual report body."}, testNormalizer(t))

	res, err := p.Run(context.Background(), "reports/acme.pdf", model.ModeSequential)
	require.NoError(t, err)

	ovStats := res.Stats.Stage(StageOverview)
	require.NotNil(t, ovStats)
	assert.True(t, ovStats.Fallback)
	assert.Contains(t, ovStats.Error, "context deadline exceeded")
	assert.Equal(t, "Unknown", res.BusinessOverview.Description)
	require.Len(t, res.HRInsights, 3)
}

func TestRun_SchemaRejectionDegradesStage(t *testing.T) {
	llm := newStubLLM(func(stage string, _ int) (*anthropic.MessageResponse, error) {
		if stage == StageOverview {
			return textResponse(`{"industry": "Retail"}`), nil
		}
		return textResponse(stagePayload(stage)), nil
	})
	p := newTestPipeline(t, llm)

	res, err := p.Run(context.Background(), "reports/acme.pdf", model.ModeSequential)
	require.NoError(t, err)

	ovStats := res.Stats.Stage(StageOverview)
	require.NotNil(t, ovStats)
	assert.True(t, ovStats.Fallback)
	assert.Contains(t, ovStats.Error, "business_overview payload")
	assert.Equal(t, "Unknown", res.BusinessOverview.Description)
}

func TestRun_MinInsightsEnforced(t *testing.T) {
	thin := `{"insights": [{"category": "culture", "finding": "Morale is fine.", "confidence": "low"}]}`
	llm := newStubLLM(func(stage string, _ int) (*anthropic.MessageResponse, error) {
		if stage == StageHR {
			return textResponse(thin), nil
		}
		return textResponse(stagePayload(stage)), nil
	})
	cfg := testPipelineConfig()
	cfg.HRMinInsights = 3
	cfg.HRMaxAttempts = 2
	p := New(cfg, testAnthropicConfig(), llm, &fakeResolver{text: "Annual report body."}, testNormalizer(t))

	res, err := p.Run(context.Background(), "reports/acme.pdf", model.ModeSequential)
	require.Error(t, err)
	assert.Nil(t, res)

	var sf *StagedFailure
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, StageHR, sf.Stage)
	assert.Contains(t, err.Error(), "need at least 3")
	assert.Equal(t, 2, llm.calls(StageHR))
}

func TestRun_RecoversMangledStageJSON(t *testing.T) {
	llm := newStubLLM(func(stage string, _ int) (*anthropic.MessageResponse, error) {
		if stage == StageOverview {
			return textResponse("Here is the profile you asked for:\n```json\n" + overviewJSON + "\n```\nLet me know if you need more."), nil
		}
		return textResponse(stagePayload(stage)), nil
	})
	p := newTestPipeline(t, llm)

	res, err := p.Run(context.Background(), "reports/acme.pdf", model.ModeSequential)
	require.NoError(t, err)

	assert.Equal(t, "Acme Industrial makes specialty adhesives for manufacturers.", res.BusinessOverview.Description)
	assert.False(t, res.Stats.PartialSuccess)
}

// slowLLM delays one stage until its context expires, simulating a hung
// upstream call.
type slowLLM struct {
	inner *stubLLM
	stage string
	delay time.Duration
}

func (s *slowLLM) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	if stageOf(req) == s.stage {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	return s.inner.CreateMessage(ctx, req)
}
