package finance

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/talentlens/reportflow/internal/model"
)

// Normalizer extracts financial metrics from free text. Extraction is pure
// and synchronous; a single instance is safe for concurrent use across runs.
type Normalizer struct {
	cfg        Config
	base       model.CurrencyInfo
	currencies []currencyMatcher
	metrics    []metricSpec
}

// currencyMatcher is a precompiled marker test. Alphabetic markers match on
// word-ish boundaries so "RM" does not fire inside "FORM"; symbol markers
// use plain substring search.
type currencyMatcher struct {
	info model.CurrencyInfo
	test func(s string) bool
}

// metricSpec describes how one metric is anchored and bounded.
type metricSpec struct {
	name     string
	keywords MetricKeywords
	money    bool
	min      float64
	max      float64
}

// financialMatch is one candidate extraction. Candidates are reduced to a
// single winner per metric and never escape this package.
type financialMatch struct {
	value    float64
	currency model.CurrencyInfo
	context  string
	cueText  string
	quote    string
	keyword  string
	exact    bool
	year     int
	strategy string
	score    float64
	forward  bool // value appears after the keyword
	gap      int  // bytes between keyword and value
}

// NewNormalizer validates cfg and builds an immutable normalizer.
func NewNormalizer(cfg Config) (*Normalizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base, _ := cfg.lookupCurrency(cfg.BaseCurrency)

	matchers := make([]currencyMatcher, 0, len(cfg.Currencies))
	for _, m := range cfg.Currencies {
		matchers = append(matchers, currencyMatcher{info: m.Info, test: markerTest(m.Marker)})
	}

	n := &Normalizer{
		cfg:        cfg,
		base:       base,
		currencies: matchers,
		metrics: []metricSpec{
			{name: "revenue", keywords: cfg.Revenue, money: true, min: cfg.MinRevenue, max: cfg.MaxRevenue},
			{name: "profit_loss", keywords: cfg.ProfitLoss, money: true, min: cfg.MinRevenue, max: cfg.MaxRevenue},
			{name: "employees", keywords: cfg.Employees, money: false, min: cfg.MinEmployees, max: cfg.MaxEmployees},
			{name: "assets", keywords: cfg.Assets, money: true, min: cfg.MinRevenue, max: cfg.MaxRevenue},
		},
	}
	return n, nil
}

// markerTest builds the substring test for one currency marker.
func markerTest(marker string) func(string) bool {
	alpha := true
	for _, r := range marker {
		if r < 'A' || (r > 'Z' && r < 'a') || r > 'z' {
			alpha = false
			break
		}
	}
	if !alpha {
		return func(s string) bool { return strings.Contains(s, marker) }
	}
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(marker) + `(?:[^A-Za-z]|$)`)
	return re.MatchString
}

// Extract normalizes all four metrics out of text and applies the
// cross-metric validation. It never fails; the worst case is an all-null,
// low-confidence record with explanatory notes.
func (n *Normalizer) Extract(text string) model.FinancialMetrics {
	var out model.FinancialMetrics
	var notes []string

	records := make([]model.MetricRecord, len(n.metrics))
	for i, spec := range n.metrics {
		rec, recNotes := n.extractMetric(text, spec)
		records[i] = rec
		notes = append(notes, recNotes...)
	}

	out.Revenue = records[0]
	out.ProfitLoss = records[1]
	out.Employees = records[2]
	out.Assets = records[3]
	out.Validation.Notes = notes

	n.validateMetrics(&out)
	return out
}

// extractMetric runs the strategy ladder for a single metric: the first
// strategy whose candidates survive the bounds check wins, and its best
// candidate becomes the record.
func (n *Normalizer) extractMetric(text string, spec metricSpec) (model.MetricRecord, []string) {
	null := model.MetricRecord{Confidence: model.ConfidenceLow}

	occs := findOccurrences(text, spec.keywords)
	if len(occs) == 0 {
		return null, nil
	}

	// A metric explicitly stated as undisclosed short-circuits before any
	// value matching runs.
	for _, occ := range occs {
		if notDisclosed(text, occ) {
			return null, []string{spec.name + ": stated as not disclosed"}
		}
	}

	ladder := []func(text string, occ occurrence) []financialMatch{
		n.matchScaled,
		n.matchFullDigit,
		n.matchFiscalYear,
		n.matchProximity,
	}

	for _, strategy := range ladder {
		var candidates []financialMatch
		for _, occ := range occs {
			candidates = append(candidates, strategy(text, occ)...)
		}
		candidates = n.filterBounds(candidates, spec)
		if len(candidates) == 0 {
			continue
		}

		for i := range candidates {
			n.scoreMatch(&candidates[i])
		}
		best := selectBest(candidates)
		return n.toRecord(best, spec), nil
	}

	return null, nil
}

// filterBounds drops candidates outside the metric's configured range.
// Money metrics are bounded on magnitude so losses survive.
func (n *Normalizer) filterBounds(candidates []financialMatch, spec metricSpec) []financialMatch {
	kept := candidates[:0]
	for _, c := range candidates {
		v := c.value
		if v < 0 {
			v = -v
		}
		if v >= spec.min && v <= spec.max {
			kept = append(kept, c)
		}
	}
	return kept
}

// selectBest orders candidates by year desc, confidence desc, then context
// length asc, and takes the top. No averaging across candidates. Remaining
// ties fall to keyword attachment: a value following its keyword beats one
// preceding it, and the smaller keyword-value gap wins.
func selectBest(candidates []financialMatch) financialMatch {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.year != b.year {
			return a.year > b.year
		}
		ar, br := confidenceRank(bucketConfidence(a.score)), confidenceRank(bucketConfidence(b.score))
		if ar != br {
			return ar > br
		}
		if len(a.context) != len(b.context) {
			return len(a.context) < len(b.context)
		}
		if a.forward != b.forward {
			return a.forward
		}
		return a.gap < b.gap
	})
	return candidates[0]
}

func confidenceRank(c model.Confidence) int {
	switch c {
	case model.ConfidenceHigh:
		return 3
	case model.ConfidenceMedium:
		return 2
	default:
		return 1
	}
}

var (
	currentLanguageRe  = regexp.MustCompile(`(?i)\b(?:current|latest|most recent)\b`)
	adjustedLanguageRe = regexp.MustCompile(`(?i)\b(?:underlying|adjusted|pro[- ]forma|normalized|normalised)\b`)
)

// strategyBaseScore seeds the confidence score for each strategy.
var strategyBaseScore = map[string]float64{
	strategyScaled:     0.70,
	strategyFullDigit:  0.65,
	strategyFiscalYear: 0.70,
	strategyProximity:  0.35,
}

// scoreMatch assigns the numeric confidence later bucketed into
// high/medium/low: a recent explicit year raises, an exact canonical
// keyword raises, current/latest language raises, underlying/adjusted
// language lowers.
func (n *Normalizer) scoreMatch(m *financialMatch) {
	score := strategyBaseScore[m.strategy]
	if m.year >= time.Now().Year()-2 {
		score += 0.15
	}
	if m.exact {
		score += 0.10
	}
	if currentLanguageRe.MatchString(m.cueText) {
		score += 0.10
	}
	if adjustedLanguageRe.MatchString(m.cueText) {
		score -= 0.20
	}
	m.score = score
}

func bucketConfidence(score float64) model.Confidence {
	switch {
	case score >= 0.8:
		return model.ConfidenceHigh
	case score >= 0.5:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}

// toRecord converts the winning candidate into the public record shape.
func (n *Normalizer) toRecord(m financialMatch, spec metricSpec) model.MetricRecord {
	value := m.value
	if spec.name == "profit_loss" && strings.Contains(strings.ToLower(m.keyword), "loss") && value > 0 {
		value = -value
	}

	rec := model.MetricRecord{
		Value:       &value,
		Confidence:  bucketConfidence(m.score),
		SourceQuote: m.quote,
		Method:      extractionMethod(m),
		Year:        m.year,
	}
	if spec.money {
		cur := m.currency
		rec.Currency = &cur
	}
	return rec
}

var growthLanguageRe = regexp.MustCompile(`(?i)\b(?:grew|growth|increased|rose|up from|compared to|up \d)\b`)

// extractionMethod tags how the value was stated in the source.
func extractionMethod(m financialMatch) model.ExtractionMethod {
	if growthLanguageRe.MatchString(m.cueText) {
		return model.MethodGrowthNarrative
	}
	return model.MethodDirectStatement
}

// resolveCurrency scans the candidate's immediate cue slice, then the wider
// context, against the marker table in priority order, falling back to the
// configured base currency.
func (n *Normalizer) resolveCurrency(cue, context string) model.CurrencyInfo {
	for _, cm := range n.currencies {
		if cm.test(cue) {
			return cm.info
		}
	}
	for _, cm := range n.currencies {
		if cm.test(context) {
			return cm.info
		}
	}
	return n.base
}
