package pipeline

import (
	"fmt"
	"strings"

	"github.com/talentlens/reportflow/internal/finance"
	"github.com/talentlens/reportflow/internal/model"
)

// BuildAnalysisData flattens a pipeline result into the display-ready form
// stored alongside the run and pushed to the review queue.
func BuildAnalysisData(result *model.PipelineResult, handle string) model.AnalysisData {
	data := model.AnalysisData{
		Document:     handle,
		Overview:     overviewParagraph(result.BusinessOverview),
		MetricLines:  metricLines(result.FinancialMetrics),
		InsightLines: insightLines(result.HRInsights),
	}

	var b strings.Builder
	b.WriteString(data.Overview)
	b.WriteString("\n\nFinancial metrics:\n")
	for _, line := range data.MetricLines {
		fmt.Fprintf(&b, "  %s\n", line)
	}
	b.WriteString("\nWorkforce insights:\n")
	for _, line := range data.InsightLines {
		fmt.Fprintf(&b, "  %s\n", line)
	}
	data.Text = strings.TrimRight(b.String(), "\n")
	return data
}

func overviewParagraph(ov model.BusinessOverview) string {
	var parts []string
	if ov.Description != "" {
		parts = append(parts, strings.TrimSuffix(ov.Description, ".")+".")
	}
	if ov.Industry != "" {
		parts = append(parts, "Industry: "+ov.Industry+".")
	}
	if ov.Headquarters != "" {
		parts = append(parts, "Headquartered in "+ov.Headquarters+".")
	}
	if ov.Founded != "" {
		parts = append(parts, "Founded in "+ov.Founded+".")
	}
	if len(ov.KeyProducts) > 0 {
		parts = append(parts, "Key products: "+strings.Join(ov.KeyProducts, ", ")+".")
	}
	if len(ov.KeyMarkets) > 0 {
		parts = append(parts, "Key markets: "+strings.Join(ov.KeyMarkets, ", ")+".")
	}
	return strings.Join(parts, " ")
}

func metricLines(m model.FinancialMetrics) []string {
	lines := []string{
		amountLine("Revenue", m.Revenue),
		amountLine("Profit/loss", m.ProfitLoss),
		countLine("Employees", m.Employees),
		amountLine("Assets", m.Assets),
	}
	if m.Validation.FlaggedForReview {
		lines = append(lines, "Flagged for review: "+strings.Join(m.Validation.Notes, "; "))
	}
	return lines
}

func amountLine(label string, rec model.MetricRecord) string {
	if rec.Value == nil {
		return label + ": not available"
	}
	cur := model.CurrencyInfo{Symbol: "$", Code: "USD", Name: "US Dollar"}
	if rec.Currency != nil {
		cur = *rec.Currency
	}
	return fmt.Sprintf("%s: %s%s", label, finance.FormatAmount(*rec.Value, cur), recordSuffix(rec))
}

func countLine(label string, rec model.MetricRecord) string {
	if rec.Value == nil {
		return label + ": not available"
	}
	return fmt.Sprintf("%s: %s%s", label, finance.FormatCount(*rec.Value), recordSuffix(rec))
}

// recordSuffix renders the provenance tail: confidence bucket and, when
// known, the fiscal year.
func recordSuffix(rec model.MetricRecord) string {
	suffix := fmt.Sprintf(" (%s confidence", rec.Confidence)
	if rec.Year > 0 {
		suffix += fmt.Sprintf(", FY%d", rec.Year)
	}
	return suffix + ")"
}

func insightLines(insights []model.HRInsight) []string {
	lines := make([]string, 0, len(insights))
	for _, in := range insights {
		lines = append(lines, fmt.Sprintf("[%s] %s (%s confidence)", in.Category, in.Finding, in.Confidence))
	}
	return lines
}
