// Package cost estimates upstream spend for a search or an extraction.
package cost

import (
	"go.uber.org/zap"

	"github.com/sells-group/spec-search/internal/config"
)

// Provider names a token-priced upstream.
type Provider string

const (
	Anthropic Provider = "anthropic"
	OpenAI    Provider = "openai"
)

// Calculator computes costs from configured rates.
type Calculator struct {
	rates config.PricingConfig
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates config.PricingConfig) *Calculator {
	return &Calculator{rates: rates}
}

// Tokens prices a chat call. Unknown models cost zero, as does a nil Calculator.
func (c *Calculator) Tokens(p Provider, model string, input, output int) float64 {
	if c == nil {
		return 0
	}
	var table map[string]config.ModelPricing
	switch p {
	case Anthropic:
		table = c.rates.Anthropic
	case OpenAI:
		table = c.rates.OpenAI
	}
	rate, ok := table[model]
	if !ok {
		return 0
	}
	return float64(input)/1e6*rate.Input + float64(output)/1e6*rate.Output
}

// Queries prices n Perplexity queries at the flat per-query rate.
func (c *Calculator) Queries(n int) float64 {
	if c == nil {
		return 0
	}
	return float64(n) * c.rates.Perplexity.PerQuery
}

// Pages prices n Mistral OCR pages.
func (c *Calculator) Pages(n int) float64 {
	if c == nil {
		return 0
	}
	return float64(n) * c.rates.Mistral.PerPage
}

// Log records an estimate at debug level. A nil Calculator logs nothing.
func (c *Calculator) Log(operation string, usd float64, fields ...zap.Field) {
	if c == nil {
		return
	}
	zap.L().Debug("cost: estimate",
		append([]zap.Field{zap.String("operation", operation), zap.Float64("usd", usd)}, fields...)...,
	)
}
