// Package parse converts free-form user text into validated domain values:
// amounts with comma or dot separators, DD.MM.YYYY dates and ranges, and the
// one-message operation grammar of the fast entry path.
package parse

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotANumber is returned when text carries no parsable numeric value.
	ErrNotANumber = errors.New("not a number")
	// ErrNotPositive rejects zero and negative amounts.
	ErrNotPositive = errors.New("amount must be positive")
)

// Number parses a possibly signed numeric string the way the spreadsheet
// renders it: spaces (including NBSP) as thousands separators, comma or dot
// as the decimal separator. Stray non-numeric characters (currency signs,
// formatting leftovers) are dropped.
func Number(s string) (decimal.Decimal, error) {
	cleaned := normalizeNumber(s)
	if cleaned == "" {
		return decimal.Decimal{}, ErrNotANumber
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, ErrNotANumber
	}
	return d, nil
}

// Amount parses a strictly positive operation amount.
func Amount(s string) (decimal.Decimal, error) {
	d, err := Number(s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, ErrNotPositive
	}
	return d, nil
}

func normalizeNumber(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ',' || r == '.':
			b.WriteByte('.')
		case r == '-':
			b.WriteByte('-')
		}
	}
	out := b.String()
	if out == "-" || out == "." || out == "-." {
		return ""
	}
	return out
}
