package pipeline

import (
	"math"

	"github.com/talentlens/reportflow/internal/model"
)

// qualityScore grades a completed result from 0 to 100. The score is
// advisory: it ranks run completeness for reviewers and never gates a run.
func qualityScore(r *model.PipelineResult) int {
	total := overviewScore(r.BusinessOverview) +
		financialScore(r.FinancialMetrics) +
		hrScore(r.HRInsights)

	score := int(math.Round(total))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// overviewScore awards up to 20 points for profile completeness.
func overviewScore(ov model.BusinessOverview) float64 {
	var s float64
	if ov.Description != "" && ov.Description != "Unknown" {
		s += 8
	}
	if ov.Industry != "" {
		s += 4
	}
	if ov.Headquarters != "" {
		s += 2
	}
	if ov.Founded != "" {
		s += 2
	}
	if len(ov.KeyProducts) > 0 {
		s += 2
	}
	if len(ov.KeyMarkets) > 0 {
		s += 2
	}
	return s
}

// financialScore awards up to 40 points for metric coverage and validation
// outcome.
func financialScore(m model.FinancialMetrics) float64 {
	var s float64
	if m.Revenue.Value != nil {
		s += 10
	}
	if m.ProfitLoss.Value != nil {
		s += 8
	}
	if m.Employees.Value != nil {
		s += 6
	}
	if m.Assets.Value != nil {
		s += 4
	}
	if m.Validation.CrossCheckPassed {
		s += 6
	}
	if !m.Validation.FlaggedForReview {
		s += 2
	}
	s += float64(m.HighConfidenceCount())
	return s
}

// hrScore awards up to 40 points: volume capped at eight insights, mean
// declared confidence, and category spread capped at three.
func hrScore(insights []model.HRInsight) float64 {
	if len(insights) == 0 {
		return 0
	}

	counted := len(insights)
	if counted > 8 {
		counted = 8
	}
	s := float64(counted * 3)

	var confSum float64
	for _, in := range insights {
		confSum += in.Confidence.Weight()
	}
	s += confSum / float64(len(insights)) * 10

	categories := make(map[string]struct{})
	for _, in := range insights {
		if in.Category != "" {
			categories[in.Category] = struct{}{}
		}
	}
	spread := len(categories)
	if spread > 3 {
		spread = 3
	}
	s += float64(spread * 2)

	return s
}
