package main

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/talentlens/reportflow/internal/config"
	"github.com/talentlens/reportflow/internal/docsource"
	"github.com/talentlens/reportflow/internal/finance"
	"github.com/talentlens/reportflow/internal/model"
	"github.com/talentlens/reportflow/internal/ocr"
	"github.com/talentlens/reportflow/internal/pipeline"
	"github.com/talentlens/reportflow/internal/resilience"
	"github.com/talentlens/reportflow/internal/review"
	"github.com/talentlens/reportflow/internal/store"
	anthropicpkg "github.com/talentlens/reportflow/pkg/anthropic"
)

// analysisRunner runs one document through the analysis pipeline.
// *pipeline.Pipeline satisfies it.
type analysisRunner interface {
	Run(ctx context.Context, handle string, mode model.ExecutionMode) (*model.PipelineResult, error)
}

// analysisEnv holds the initialized store, pipeline, and review queue
// shared by the analyze and serve commands.
type analysisEnv struct {
	Store    store.Store
	Pipeline analysisRunner
	Review   *review.Queue
}

// Close releases resources held by the analysis environment.
func (ae *analysisEnv) Close() {
	if ae.Store != nil {
		_ = ae.Store.Close()
	}
}

// initStore opens the run store configured by store.driver.
func initStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, cfg.Store)
}

// initPipeline sets up the store, document resolver, normalizer, Claude
// client, and review queue, and builds the Pipeline. Callers should defer
// env.Close().
func initPipeline(ctx context.Context) (*analysisEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	extractor, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	resolver := docsource.NewResolver(extractor, cfg.DocSource)

	norm, err := buildNormalizer(cfg.Finance)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	llm := anthropicpkg.NewClient(cfg.Anthropic.APIKey, anthropicpkg.WithRateLimit(cfg.Anthropic.RateLimit))
	p := pipeline.New(cfg.Pipeline, cfg.Anthropic, llm, resolver, norm)

	queue := review.NewQueue(cfg.Notion)
	if queue.Enabled() {
		zap.L().Info("notion review queue enabled")
	} else {
		zap.L().Debug("notion not configured, review queue disabled")
	}

	return &analysisEnv{
		Store:    st,
		Pipeline: p,
		Review:   queue,
	}, nil
}

// buildNormalizer loads the finance config file when one is set, then
// overlays the scalar bound overrides from the main configuration.
func buildNormalizer(fc config.FinanceConfig) (*finance.Normalizer, error) {
	fcfg, err := finance.LoadConfig(fc.ConfigPath)
	if err != nil {
		return nil, err
	}
	if fc.BaseCurrency != "" {
		fcfg.BaseCurrency = fc.BaseCurrency
	}
	if fc.MinEmployees > 0 {
		fcfg.MinEmployees = float64(fc.MinEmployees)
	}
	if fc.MaxEmployees > 0 {
		fcfg.MaxEmployees = float64(fc.MaxEmployees)
	}
	if fc.MinRevenue > 0 {
		fcfg.MinRevenue = fc.MinRevenue
	}
	if fc.MaxRevenue > 0 {
		fcfg.MaxRevenue = fc.MaxRevenue
	}
	return finance.NewNormalizer(fcfg)
}

// executeRun drives a persisted run through the pipeline: marks it running,
// analyzes the document, records the terminal state, and submits flagged
// results to the review queue. Errors are logged rather than returned; the
// run row is the durable record of the outcome.
func executeRun(ctx context.Context, env *analysisEnv, run *model.Run) {
	log := zap.L().With(
		zap.String("run_id", run.ID),
		zap.String("document", run.Document),
	)

	run.Status = model.RunStatusRunning
	if err := env.Store.UpdateRun(ctx, run); err != nil {
		log.Error("run update failed", zap.Error(err))
		return
	}

	result, err := env.Pipeline.Run(ctx, run.Document, run.Mode)
	if err != nil {
		run.Status = model.RunStatusFailed
		run.Error = runErrorFrom(err)
		log.Error("analysis failed",
			zap.String("stage", run.Error.Stage),
			zap.String("category", string(run.Error.Category)),
			zap.Error(err),
		)
	} else {
		run.Status = model.RunStatusCompleted
		run.PartialSuccess = result.Stats.PartialSuccess
		run.QualityScore = result.Stats.QualityScore
		run.Result = result
		run.AnalysisText = pipeline.BuildAnalysisData(result, run.Document).Text
		log.Info("analysis complete",
			zap.Int("quality_score", run.QualityScore),
			zap.Bool("partial", run.PartialSuccess),
			zap.Int64("duration_ms", result.Stats.Duration),
		)
	}

	if err := env.Store.UpdateRun(ctx, run); err != nil {
		log.Error("run update failed", zap.Error(err))
		return
	}

	if run.Status == model.RunStatusCompleted {
		if err := env.Review.Submit(ctx, run); err != nil {
			log.Warn("review submission failed", zap.Error(err))
		}
	}
}

// runErrorFrom classifies a pipeline failure for persistence. The stage
// comes from the StagedFailure wrapper when present; transient causes are
// marked so operators know a retry may succeed.
func runErrorFrom(err error) *model.RunError {
	re := &model.RunError{
		Message:  err.Error(),
		Category: model.ErrorCategoryPermanent,
	}
	var staged *pipeline.StagedFailure
	if errors.As(err, &staged) {
		re.Stage = staged.Stage
	}
	if resilience.IsTransient(err) {
		re.Category = model.ErrorCategoryTransient
	}
	return re
}
