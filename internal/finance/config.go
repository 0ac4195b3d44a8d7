// Package finance normalizes unstructured financial mentions into typed
// metrics: revenue, profit/loss, headcount, and assets.
package finance

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/talentlens/reportflow/internal/model"
)

// MetricKeywords lists the anchor terms for one metric. Canonical terms are
// the exact names confidence scoring rewards; synonyms still anchor a search
// but score lower.
type MetricKeywords struct {
	Canonical []string `yaml:"canonical"`
	Synonyms  []string `yaml:"synonyms"`
}

// All returns canonical terms followed by synonyms.
func (k MetricKeywords) All() []string {
	out := make([]string, 0, len(k.Canonical)+len(k.Synonyms))
	out = append(out, k.Canonical...)
	out = append(out, k.Synonyms...)
	return out
}

// CurrencyMapping binds a textual marker to a currency. Markers are matched
// in slice order, so compound symbols like "S$" must precede "$".
type CurrencyMapping struct {
	Marker string             `yaml:"marker"`
	Info   model.CurrencyInfo `yaml:"info"`
}

// Config is the normalizer configuration. Build it with DefaultConfig or
// LoadConfig, validate it once, and treat it as read-only afterwards.
type Config struct {
	BaseCurrency string            `yaml:"base_currency"`
	Currencies   []CurrencyMapping `yaml:"currencies"`
	Revenue      MetricKeywords    `yaml:"revenue"`
	ProfitLoss   MetricKeywords    `yaml:"profit_loss"`
	Employees    MetricKeywords    `yaml:"employees"`
	Assets       MetricKeywords    `yaml:"assets"`
	MinEmployees float64           `yaml:"min_employees"`
	MaxEmployees float64           `yaml:"max_employees"`
	MinRevenue   float64           `yaml:"min_revenue"`
	MaxRevenue   float64           `yaml:"max_revenue"`
}

// DefaultConfig returns the built-in normalizer configuration.
func DefaultConfig() Config {
	usd := model.CurrencyInfo{Symbol: "$", Code: "USD", Name: "US Dollar"}
	sgd := model.CurrencyInfo{Symbol: "S$", Code: "SGD", Name: "Singapore Dollar"}
	hkd := model.CurrencyInfo{Symbol: "HK$", Code: "HKD", Name: "Hong Kong Dollar"}
	aud := model.CurrencyInfo{Symbol: "A$", Code: "AUD", Name: "Australian Dollar"}
	nzd := model.CurrencyInfo{Symbol: "NZ$", Code: "NZD", Name: "New Zealand Dollar"}
	cad := model.CurrencyInfo{Symbol: "C$", Code: "CAD", Name: "Canadian Dollar"}
	myr := model.CurrencyInfo{Symbol: "RM", Code: "MYR", Name: "Malaysian Ringgit"}
	eur := model.CurrencyInfo{Symbol: "€", Code: "EUR", Name: "Euro"}
	gbp := model.CurrencyInfo{Symbol: "£", Code: "GBP", Name: "British Pound"}
	jpy := model.CurrencyInfo{Symbol: "¥", Code: "JPY", Name: "Japanese Yen"}
	cny := model.CurrencyInfo{Symbol: "¥", Code: "CNY", Name: "Chinese Yuan"}
	inr := model.CurrencyInfo{Symbol: "₹", Code: "INR", Name: "Indian Rupee"}

	return Config{
		BaseCurrency: "USD",
		// Most-specific markers first: compound symbols, then ISO codes,
		// then bare symbols. "$" must stay last.
		Currencies: []CurrencyMapping{
			{Marker: "US$", Info: usd},
			{Marker: "AU$", Info: aud},
			{Marker: "NZ$", Info: nzd},
			{Marker: "HK$", Info: hkd},
			{Marker: "S$", Info: sgd},
			{Marker: "A$", Info: aud},
			{Marker: "C$", Info: cad},
			{Marker: "RM", Info: myr},
			{Marker: "HKD", Info: hkd},
			{Marker: "SGD", Info: sgd},
			{Marker: "AUD", Info: aud},
			{Marker: "NZD", Info: nzd},
			{Marker: "CAD", Info: cad},
			{Marker: "MYR", Info: myr},
			{Marker: "USD", Info: usd},
			{Marker: "EUR", Info: eur},
			{Marker: "GBP", Info: gbp},
			{Marker: "JPY", Info: jpy},
			{Marker: "CNY", Info: cny},
			{Marker: "RMB", Info: cny},
			{Marker: "INR", Info: inr},
			{Marker: "€", Info: eur},
			{Marker: "£", Info: gbp},
			{Marker: "¥", Info: jpy},
			{Marker: "₹", Info: inr},
			{Marker: "$", Info: usd},
		},
		Revenue: MetricKeywords{
			Canonical: []string{"total revenue", "revenue"},
			Synonyms:  []string{"net sales", "total sales", "turnover", "total income"},
		},
		ProfitLoss: MetricKeywords{
			Canonical: []string{"net profit", "net income", "net loss"},
			Synonyms:  []string{"profit after tax", "profit for the year", "net earnings", "profit attributable", "loss for the year"},
		},
		Employees: MetricKeywords{
			Canonical: []string{"employees", "headcount"},
			Synonyms:  []string{"workforce", "staff", "team members", "full-time equivalents"},
		},
		Assets: MetricKeywords{
			Canonical: []string{"total assets"},
			Synonyms:  []string{"asset base", "assets"},
		},
		MinEmployees: 10,
		MaxEmployees: 5_000_000,
		MinRevenue:   100_000,
		MaxRevenue:   10_000_000_000_000,
	}
}

// LoadConfig reads a YAML override file and merges it over the defaults.
// An empty path returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, eris.Wrapf(err, "finance: read config %s", path)
	}

	// The YAML has a top-level "finance" key.
	var wrapper struct {
		Finance Config `yaml:"finance"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Config{}, eris.Wrap(err, "finance: parse config")
	}

	cfg = mergeConfig(cfg, wrapper.Finance)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// mergeConfig overlays non-zero override fields onto base.
func mergeConfig(base, override Config) Config {
	if override.BaseCurrency != "" {
		base.BaseCurrency = override.BaseCurrency
	}
	if len(override.Currencies) > 0 {
		base.Currencies = override.Currencies
	}
	if len(override.Revenue.Canonical) > 0 || len(override.Revenue.Synonyms) > 0 {
		base.Revenue = override.Revenue
	}
	if len(override.ProfitLoss.Canonical) > 0 || len(override.ProfitLoss.Synonyms) > 0 {
		base.ProfitLoss = override.ProfitLoss
	}
	if len(override.Employees.Canonical) > 0 || len(override.Employees.Synonyms) > 0 {
		base.Employees = override.Employees
	}
	if len(override.Assets.Canonical) > 0 || len(override.Assets.Synonyms) > 0 {
		base.Assets = override.Assets
	}
	if override.MinEmployees > 0 {
		base.MinEmployees = override.MinEmployees
	}
	if override.MaxEmployees > 0 {
		base.MaxEmployees = override.MaxEmployees
	}
	if override.MinRevenue > 0 {
		base.MinRevenue = override.MinRevenue
	}
	if override.MaxRevenue > 0 {
		base.MaxRevenue = override.MaxRevenue
	}
	return base
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if c.BaseCurrency == "" {
		return eris.New("finance: base currency required")
	}
	if _, ok := c.lookupCurrency(c.BaseCurrency); !ok {
		return eris.Errorf("finance: base currency %q not in currency table", c.BaseCurrency)
	}
	for _, m := range c.Currencies {
		if m.Marker == "" {
			return eris.New("finance: currency mapping with empty marker")
		}
		if m.Info.Code == "" {
			return eris.Errorf("finance: currency marker %q has no code", m.Marker)
		}
	}
	for name, kw := range map[string]MetricKeywords{
		"revenue":     c.Revenue,
		"profit_loss": c.ProfitLoss,
		"employees":   c.Employees,
		"assets":      c.Assets,
	} {
		if len(kw.Canonical) == 0 {
			return eris.Errorf("finance: metric %s has no canonical keywords", name)
		}
	}
	if c.MinEmployees <= 0 || c.MaxEmployees <= c.MinEmployees {
		return eris.New("finance: invalid employee bounds")
	}
	if c.MinRevenue <= 0 || c.MaxRevenue <= c.MinRevenue {
		return eris.New("finance: invalid revenue bounds")
	}
	return nil
}

// lookupCurrency returns the currency info for an ISO code.
func (c Config) lookupCurrency(code string) (model.CurrencyInfo, bool) {
	for _, m := range c.Currencies {
		if m.Info.Code == code {
			return m.Info, true
		}
	}
	return model.CurrencyInfo{}, false
}
