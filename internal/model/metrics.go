package model

// ExtractionMethod tags how a financial figure was obtained from the text.
type ExtractionMethod string

const (
	MethodDirectStatement ExtractionMethod = "direct_statement"
	MethodGrowthNarrative ExtractionMethod = "growth_narrative"
	MethodCalculated      ExtractionMethod = "calculated"
)

// CurrencyInfo identifies a currency by symbol, ISO code, and display name.
type CurrencyInfo struct {
	Symbol string `json:"symbol"`
	Code   string `json:"code"`
	Name   string `json:"name"`
}

// MetricRecord is a single extracted financial figure with its provenance.
// Value is nil when the metric could not be extracted or was discarded by
// validation. Currency is nil for count metrics such as headcount.
type MetricRecord struct {
	Value       *float64         `json:"value"`
	Currency    *CurrencyInfo    `json:"currency,omitempty"`
	Confidence  Confidence       `json:"confidence"`
	SourceQuote string           `json:"source_quote,omitempty"`
	Method      ExtractionMethod `json:"extraction_method,omitempty"`
	Year        int              `json:"year,omitempty"`
}

// ValidationRecord holds the cross-metric sanity check outcome.
type ValidationRecord struct {
	RevenueReasonable      bool     `json:"revenue_reasonable"`
	ProfitMarginReasonable bool     `json:"profit_margin_reasonable"`
	CrossCheckPassed       bool     `json:"cross_check_passed"`
	FlaggedForReview       bool     `json:"flagged_for_review"`
	Notes                  []string `json:"notes,omitempty"`
}

// FinancialMetrics is the normalized financial picture of one report.
// Invariants maintained by the normalizer: a non-null profit never exceeds
// a non-null revenue, and an employee count outside the configured bounds
// is discarded rather than reported.
type FinancialMetrics struct {
	Revenue    MetricRecord     `json:"revenue"`
	ProfitLoss MetricRecord     `json:"profit_loss"`
	Employees  MetricRecord     `json:"employees"`
	Assets     MetricRecord     `json:"assets"`
	Validation ValidationRecord `json:"validation"`
}

// HighConfidenceCount returns how many sub-records carry a non-null value
// with high confidence.
func (m FinancialMetrics) HighConfidenceCount() int {
	n := 0
	for _, rec := range []MetricRecord{m.Revenue, m.ProfitLoss, m.Employees, m.Assets} {
		if rec.Value != nil && rec.Confidence == ConfidenceHigh {
			n++
		}
	}
	return n
}
