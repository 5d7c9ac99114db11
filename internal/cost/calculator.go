// Package cost prices LLM and Reader usage and keeps the cross-run
// cumulative usage ledger.
package cost

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Jina      JinaRate             `yaml:"jina" mapstructure:"jina"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// JinaRate holds Jina Reader/Search pricing.
type JinaRate struct {
	PerMTok float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost for one Claude API call. Unknown models cost
// zero rather than guessing a rate.
func (c *Calculator) Claude(model string, input, output int64) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// Jina computes the cost for Jina token usage.
func (c *Calculator) Jina(tokens int64) float64 {
	return (float64(tokens) / 1e6) * c.rates.Jina.PerMTok
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		},
		Jina: JinaRate{PerMTok: 0.02},
	}
}
