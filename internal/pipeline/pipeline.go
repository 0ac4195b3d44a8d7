// Package pipeline orchestrates the staged extraction of an annual report:
// business overview, financial metrics, and workforce insights, dispatched
// sequentially or in parallel against the same resolved document.
package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/talentlens/reportflow/internal/config"
	"github.com/talentlens/reportflow/internal/docsource"
	"github.com/talentlens/reportflow/internal/finance"
	"github.com/talentlens/reportflow/internal/model"
	"github.com/talentlens/reportflow/pkg/anthropic"
)

// Pipeline runs the staged extraction for one document at a time. A single
// instance is safe for concurrent runs; all per-run state lives in the
// outcome.
type Pipeline struct {
	cfg      config.PipelineConfig
	ai       config.AnthropicConfig
	llm      anthropic.Client
	resolver docsource.Resolver
	norm     *finance.Normalizer
}

// New assembles a pipeline from its collaborators.
func New(cfg config.PipelineConfig, ai config.AnthropicConfig, llm anthropic.Client, resolver docsource.Resolver, norm *finance.Normalizer) *Pipeline {
	return &Pipeline{cfg: cfg, ai: ai, llm: llm, resolver: resolver, norm: norm}
}

// runOutcome collects per-stage results before they are merged into the
// immutable PipelineResult. Parallel dispatch writes each slot from exactly
// one goroutine, so no locking is needed.
type runOutcome struct {
	overview      model.BusinessOverview
	overviewStats model.StageStats
	overviewErr   error

	metrics      model.FinancialMetrics
	metricsStats model.StageStats
	metricsErr   error

	insights []model.HRInsight
	hrStats  model.StageStats
	hrErr    error
}

// Run resolves handle and executes the staged extraction in the given mode.
// Overview and financial failures degrade to documented defaults and mark
// the run as a partial success; an HR failure aborts the run with a
// StagedFailure. A panic inside parallel dispatch is retried once
// sequentially before giving up.
func (p *Pipeline) Run(ctx context.Context, handle string, mode model.ExecutionMode) (*model.PipelineResult, error) {
	if !mode.Valid() {
		return nil, &StagedFailure{Stage: StagePipeline, Cause: eris.Errorf("pipeline: unknown execution mode %q", mode)}
	}

	start := time.Now()
	log := zap.L().With(
		zap.String("component", "pipeline"),
		zap.String("document", handle),
	)

	doc, err := p.resolver.Resolve(ctx, handle)
	if err != nil {
		return nil, &StagedFailure{Stage: StagePipeline, Cause: eris.Wrap(err, "pipeline: resolve document")}
	}
	log.Info("document resolved",
		zap.String("name", doc.Name),
		zap.Int("chars", len(doc.Text)),
		zap.String("mode", string(mode)),
	)

	executed := mode
	var out *runOutcome
	switch mode {
	case model.ModeParallel:
		out, err = p.runParallel(ctx, doc)
		if err != nil {
			// Stage errors settle in the outcome; an error here means the
			// dispatch machinery itself broke. One sequential retry.
			log.Warn("parallel dispatch failed, retrying sequentially", zap.Error(err))
			executed = model.ModeSequential
			out = p.runSequential(ctx, doc)
		}
	default:
		out = p.runSequential(ctx, doc)
	}

	result, err := p.finalize(out, executed, log)
	if err != nil {
		return nil, err
	}
	result.Stats.Duration = time.Since(start).Milliseconds()
	log.Info("pipeline complete",
		zap.String("mode", string(executed)),
		zap.Int("quality_score", result.Stats.QualityScore),
		zap.Bool("partial", result.Stats.PartialSuccess),
		zap.Int64("tokens", result.Stats.TokenUsage.Total()),
		zap.Int64("duration_ms", result.Stats.Duration),
	)
	return result, nil
}

// runSequential executes the stages in order. The HR prompt sees the output
// of the earlier stages; fallback values never qualify as context.
func (p *Pipeline) runSequential(ctx context.Context, doc *docsource.Document) *runOutcome {
	out := &runOutcome{}

	out.overview, out.overviewStats, out.overviewErr = p.overviewStage(ctx, doc.Text)
	out.metrics, out.metricsStats, out.metricsErr = p.financialStage(ctx, doc.Text)
	out.insights, out.hrStats, out.hrErr = p.hrStage(ctx, doc.Text, stageContext(out))

	return out
}

// runParallel dispatches all three stages at once and waits for every one
// to settle before merging, so a failed stage never short-circuits the
// others. Wait repanics stage goroutine panics; the deferred recover turns
// them into a StagedFailure on StagePipeline.
func (p *Pipeline) runParallel(ctx context.Context, doc *docsource.Document) (out *runOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &StagedFailure{Stage: StagePipeline, Cause: eris.Errorf("pipeline: parallel dispatch panic: %v", r)}
		}
	}()

	out = &runOutcome{}
	var g errgroup.Group
	g.Go(func() error {
		out.overview, out.overviewStats, out.overviewErr = p.overviewStage(ctx, doc.Text)
		return nil
	})
	g.Go(func() error {
		out.metrics, out.metricsStats, out.metricsErr = p.financialStage(ctx, doc.Text)
		return nil
	})
	g.Go(func() error {
		out.insights, out.hrStats, out.hrErr = p.hrStage(ctx, doc.Text, "")
		return nil
	})
	if werr := g.Wait(); werr != nil {
		return nil, &StagedFailure{Stage: StagePipeline, Cause: werr}
	}
	return out, nil
}

// finalize applies the degradation rules and merges the outcome into a
// PipelineResult. The HR stage is the only extraction stage that can abort
// the run.
func (p *Pipeline) finalize(out *runOutcome, mode model.ExecutionMode, log *zap.Logger) (*model.PipelineResult, error) {
	if out.hrErr != nil {
		return nil, &StagedFailure{Stage: StageHR, Cause: out.hrErr}
	}

	result := &model.PipelineResult{
		BusinessOverview: out.overview,
		FinancialMetrics: out.metrics,
		HRInsights:       out.insights,
	}
	if out.overviewErr != nil {
		log.Warn("business overview degraded to defaults", zap.Error(out.overviewErr))
		result.BusinessOverview = defaultOverview()
		out.overviewStats.Fallback = true
	}
	if out.metricsErr != nil {
		log.Warn("financial metrics degraded to defaults", zap.Error(out.metricsErr))
		result.FinancialMetrics = defaultMetrics()
		out.metricsStats.Fallback = true
	}

	result.Stats = model.ProcessingStats{
		Mode:           mode,
		Stages:         []model.StageStats{out.overviewStats, out.metricsStats, out.hrStats},
		PartialSuccess: out.overviewErr != nil || out.metricsErr != nil,
	}
	for _, st := range result.Stats.Stages {
		result.Stats.TokenUsage.Add(st.TokenUsage)
	}
	result.Stats.QualityScore = qualityScore(result)
	return result, nil
}

// stageContext renders successful earlier-stage output for the HR prompt.
func stageContext(out *runOutcome) string {
	var parts []string
	if out.overviewErr == nil {
		if b, err := json.Marshal(out.overview); err == nil {
			parts = append(parts, "Business overview: "+string(b))
		}
	}
	if out.metricsErr == nil {
		if b, err := json.Marshal(out.metrics); err == nil {
			parts = append(parts, "Financial metrics: "+string(b))
		}
	}
	return strings.Join(parts, "\n")
}
