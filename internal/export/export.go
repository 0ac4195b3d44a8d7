// Package export writes stored analysis runs to an XLSX workbook.
package export

import (
	"context"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/talentlens/reportflow/internal/finance"
	"github.com/talentlens/reportflow/internal/model"
	"github.com/talentlens/reportflow/internal/store"
)

// WriteWorkbook exports up to limit stored runs (newest first) to an XLSX
// workbook at path. Returns the number of runs exported.
func WriteWorkbook(ctx context.Context, st store.Store, path string, limit int) (int, error) {
	runs, err := st.ListRuns(ctx, store.RunFilter{Limit: limit})
	if err != nil {
		return 0, eris.Wrap(err, "export: list runs")
	}

	f, err := BuildWorkbook(runs)
	if err != nil {
		return 0, err
	}
	if err := f.Save(path); err != nil {
		return 0, eris.Wrapf(err, "export: save %s", path)
	}

	zap.L().Info("workbook written",
		zap.String("path", path),
		zap.Int("runs", len(runs)),
	)
	return len(runs), nil
}

// BuildWorkbook renders runs into the three-sheet workbook layout: one row
// per run on Runs, one row per extracted metric on Metrics, one row per
// insight on Insights.
func BuildWorkbook(runs []model.Run) (*xlsx.File, error) {
	f := xlsx.NewFile()

	if err := addRunsSheet(f, runs); err != nil {
		return nil, err
	}
	if err := addMetricsSheet(f, runs); err != nil {
		return nil, err
	}
	if err := addInsightsSheet(f, runs); err != nil {
		return nil, err
	}
	return f, nil
}

func addRunsSheet(f *xlsx.File, runs []model.Run) error {
	sheet, err := f.AddSheet("Runs")
	if err != nil {
		return eris.Wrap(err, "export: add runs sheet")
	}
	writeHeader(sheet, "ID", "Document", "Mode", "Status", "Partial", "Score",
		"Duration (ms)", "Cost (USD)", "Created", "Updated")

	for _, r := range runs {
		row := sheet.AddRow()
		row.AddCell().SetString(r.ID)
		row.AddCell().SetString(r.Document)
		row.AddCell().SetString(string(r.Mode))
		row.AddCell().SetString(string(r.Status))
		row.AddCell().SetString(strconv.FormatBool(r.PartialSuccess))
		row.AddCell().SetInt(r.QualityScore)
		if r.Result != nil {
			row.AddCell().SetInt(int(r.Result.Stats.Duration))
			row.AddCell().SetFloat(r.Result.Stats.TokenUsage.Cost)
		} else {
			row.AddCell().SetString("")
			row.AddCell().SetString("")
		}
		row.AddCell().SetString(r.CreatedAt.UTC().Format(time.RFC3339))
		row.AddCell().SetString(r.UpdatedAt.UTC().Format(time.RFC3339))
	}
	return nil
}

func addMetricsSheet(f *xlsx.File, runs []model.Run) error {
	sheet, err := f.AddSheet("Metrics")
	if err != nil {
		return eris.Wrap(err, "export: add metrics sheet")
	}
	writeHeader(sheet, "Run ID", "Document", "Metric", "Value", "Confidence",
		"Method", "Year", "Source")

	for _, r := range runs {
		if r.Result == nil {
			continue
		}
		m := r.Result.FinancialMetrics
		addMetricRow(sheet, r, "Revenue", m.Revenue, false)
		addMetricRow(sheet, r, "Profit/loss", m.ProfitLoss, false)
		addMetricRow(sheet, r, "Employees", m.Employees, true)
		addMetricRow(sheet, r, "Assets", m.Assets, false)
	}
	return nil
}

// addMetricRow appends one row for a present metric. Absent metrics leave
// no row; the workbook lists what was extracted, not what was missing.
func addMetricRow(sheet *xlsx.Sheet, run model.Run, label string, rec model.MetricRecord, count bool) {
	if rec.Value == nil {
		return
	}

	row := sheet.AddRow()
	row.AddCell().SetString(run.ID)
	row.AddCell().SetString(run.Document)
	row.AddCell().SetString(label)
	row.AddCell().SetString(formattedValue(rec, count))
	row.AddCell().SetString(string(rec.Confidence))
	row.AddCell().SetString(string(rec.Method))
	if rec.Year > 0 {
		row.AddCell().SetInt(rec.Year)
	} else {
		row.AddCell().SetString("")
	}
	row.AddCell().SetString(rec.SourceQuote)
}

func formattedValue(rec model.MetricRecord, count bool) string {
	if count {
		return finance.FormatCount(*rec.Value)
	}
	cur := model.CurrencyInfo{Symbol: "$", Code: "USD", Name: "US Dollar"}
	if rec.Currency != nil {
		cur = *rec.Currency
	}
	return finance.FormatAmount(*rec.Value, cur)
}

func addInsightsSheet(f *xlsx.File, runs []model.Run) error {
	sheet, err := f.AddSheet("Insights")
	if err != nil {
		return eris.Wrap(err, "export: add insights sheet")
	}
	writeHeader(sheet, "Run ID", "Document", "Category", "Finding", "Confidence", "Evidence")

	for _, r := range runs {
		if r.Result == nil {
			continue
		}
		for _, in := range r.Result.HRInsights {
			row := sheet.AddRow()
			row.AddCell().SetString(r.ID)
			row.AddCell().SetString(r.Document)
			row.AddCell().SetString(in.Category)
			row.AddCell().SetString(in.Finding)
			row.AddCell().SetString(string(in.Confidence))
			row.AddCell().SetString(in.Evidence)
		}
	}
	return nil
}

func writeHeader(sheet *xlsx.Sheet, titles ...string) {
	row := sheet.AddRow()
	for _, title := range titles {
		row.AddCell().SetString(title)
	}
}
