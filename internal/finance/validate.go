package finance

import (
	"fmt"

	"github.com/talentlens/reportflow/internal/model"
)

// validateMetrics applies the cross-metric sanity checks once all four
// metrics have resolved. A profit exceeding revenue is nulled and flagged
// for review rather than reported; employee bounds are enforced earlier,
// during candidate filtering.
func (n *Normalizer) validateMetrics(m *model.FinancialMetrics) {
	v := &m.Validation

	v.RevenueReasonable = m.Revenue.Value != nil

	v.ProfitMarginReasonable = true
	v.CrossCheckPassed = false

	if m.Revenue.Value != nil && m.ProfitLoss.Value != nil {
		revenue := *m.Revenue.Value
		profit := *m.ProfitLoss.Value
		if profit > revenue {
			m.ProfitLoss = model.MetricRecord{Confidence: model.ConfidenceLow}
			v.ProfitMarginReasonable = false
			v.FlaggedForReview = true
			v.Notes = append(v.Notes, fmt.Sprintf("profit %.0f exceeds revenue %.0f; profit discarded", profit, revenue))
		} else {
			v.CrossCheckPassed = true
		}
	} else {
		v.Notes = append(v.Notes, "cross-check skipped: revenue and profit not both extracted")
	}
}
