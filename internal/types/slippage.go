// internal/types/slippage.go
package types

import "github.com/shopspring/decimal"

// SlippageType selects how the minimum acceptable output is derived.
type SlippageType string

const (
	// SlippageFixed uses an absolute minimum output amount.
	SlippageFixed SlippageType = "fixed"
	// SlippagePercent derives the minimum as a percentage below the expected output.
	SlippagePercent SlippageType = "percent"
	// SlippageNone disables the minimum output constraint.
	SlippageNone SlippageType = "none"
)

// SlippageConfig configures the minimum-received policy for a quote.
type SlippageConfig struct {
	Type SlippageType `json:"type" yaml:"type"`
	// Value meaning depends on Type:
	// - SlippageFixed: the exact minimum output amount
	// - SlippagePercent: tolerated slippage percent (1.0 = 1%)
	// - SlippageNone: ignored
	Value float64 `json:"value" yaml:"value"`
}

// CalculateMinReceived computes the minimum acceptable output under the policy.
func CalculateMinReceived(expected decimal.Decimal, cfg SlippageConfig) decimal.Decimal {
	switch cfg.Type {
	case SlippageFixed:
		return decimal.NewFromFloat(cfg.Value)
	case SlippagePercent:
		multiplier := decimal.NewFromFloat(1.0 - cfg.Value/100.0)
		if multiplier.IsNegative() {
			return decimal.Zero
		}
		return expected.Mul(multiplier)
	case SlippageNone:
		return decimal.Zero
	default:
		return decimal.Zero
	}
}
