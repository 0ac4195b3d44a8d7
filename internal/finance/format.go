package finance

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/talentlens/reportflow/internal/model"
)

var printer = message.NewPrinter(language.English)

// FormatAmount renders a monetary value with its currency symbol: B suffix
// from a billion up, M suffix from a million up, grouped digits below.
func FormatAmount(value float64, cur model.CurrencyInfo) string {
	sign := ""
	v := value
	if v < 0 {
		sign = "-"
		v = -v
	}

	switch {
	case v >= 1e9:
		return fmt.Sprintf("%s%s%sB", sign, cur.Symbol, trimZeros(fmt.Sprintf("%.2f", v/1e9)))
	case v >= 1e6:
		return fmt.Sprintf("%s%s%sM", sign, cur.Symbol, trimZeros(fmt.Sprintf("%.2f", v/1e6)))
	default:
		return printer.Sprintf("%s%s%d", sign, cur.Symbol, int64(math.Round(v)))
	}
}

// FormatCount renders a whole count with thousands separators.
func FormatCount(value float64) string {
	return printer.Sprintf("%d", int64(math.Round(value)))
}

// FormatPercent renders a ratio as a percentage with one decimal.
func FormatPercent(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

func trimZeros(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
