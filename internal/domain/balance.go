package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// TotalLabel is the caption of the total cell in the balance block.
const TotalLabel = "Итого"

// FundWalletPrefix distinguishes fund wallets from working ones in the
// balance display.
const FundWalletPrefix = "Фонд"

// WalletBalance is one wallet with its current balance.
type WalletBalance struct {
	Wallet string
	Amount decimal.Decimal
}

// Balances is the snapshot of all wallet balances plus the grand total.
type Balances struct {
	Wallets []WalletBalance
	Total   decimal.Decimal
}

// Split separates working wallets from fund wallets.
func (b Balances) Split() (main, funds []WalletBalance) {
	for _, wb := range b.Wallets {
		if strings.HasPrefix(wb.Wallet, FundWalletPrefix) {
			funds = append(funds, wb)
		} else {
			main = append(main, wb)
		}
	}
	return main, funds
}

// Summary is an aggregated money report over a month or a date range.
// Revenue and Expenses are nil when the source sheet does not carry them.
type Summary struct {
	StartBalance decimal.Decimal
	EndBalance   decimal.Decimal
	Change       decimal.Decimal
	Revenue      *decimal.Decimal
	Expenses     *decimal.Decimal
}
