package domain

import "github.com/shopspring/decimal"

// FundRule routes a percentage of daily revenue from a source wallet into
// a fund wallet.
type FundRule struct {
	Source      string          `json:"source"`
	Destination string          `json:"destination"`
	Percent     decimal.Decimal `json:"percent"`
}

// Active reports whether the rule participates in distribution.
func (r FundRule) Active() bool {
	return r.Source != "" && r.Destination != "" && r.Percent.IsPositive()
}

// TotalPercent sums the percentages of the active rules.
func TotalPercent(rules []FundRule) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rules {
		if r.Active() {
			total = total.Add(r.Percent)
		}
	}
	return total
}
