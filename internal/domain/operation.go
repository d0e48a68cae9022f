// Package domain holds the core types of the cash-flow ledger: operations,
// reference data, balances, fund rules and the dialog draft.
package domain

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Kind is the operation type a user records.
type Kind int

const (
	KindInflow Kind = iota + 1
	KindOutflow
	KindTransfer
)

// String returns the user-facing name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInflow:
		return "Поступление"
	case KindOutflow:
		return "Выбытие"
	case KindTransfer:
		return "Перевод"
	default:
		return "?"
	}
}

// Group maps the kind to the category group its articles come from.
// Transfers use the technical category pair and have no group of their own.
func (k Kind) Group() CategoryGroup {
	switch k {
	case KindInflow:
		return GroupInflow
	case KindOutflow:
		return GroupOutflow
	default:
		return ""
	}
}

// LedgerRow is one committed (or committable) register row. Amount carries
// the sign as stored in the sheet: negative for outflows.
type LedgerRow struct {
	Row          int // sheet row number, 0 when not yet committed
	Date         string
	Amount       decimal.Decimal
	Wallet       string
	Direction    string
	Counterparty string
	Memo         string
	Category     string
}

// Inflow reports whether the row credits its wallet.
func (r LedgerRow) Inflow() bool {
	return r.Amount.IsPositive()
}

// CashOperation is a validated single-row operation ready to commit.
// Amount is always positive; the sign is applied at row build time.
type CashOperation struct {
	Kind         Kind
	Date         string
	Amount       decimal.Decimal
	Category     string
	Wallet       string
	Direction    string
	Counterparty string
	Memo         string
}

// Row builds the signed register row for the operation.
func (o CashOperation) Row() LedgerRow {
	amount := o.Amount
	if o.Kind == KindOutflow {
		amount = amount.Neg()
	}
	return LedgerRow{
		Date:         o.Date,
		Amount:       amount,
		Wallet:       o.Wallet,
		Direction:    o.Direction,
		Counterparty: o.Counterparty,
		Memo:         o.Memo,
		Category:     o.Category,
	}
}

// TransferOperation is a validated inter-wallet transfer ready to commit.
// Amount is always positive.
type TransferOperation struct {
	Date       string
	Amount     decimal.Decimal
	WalletFrom string
	WalletTo   string
	Direction  string
	Memo       string
	// MemoInflow overrides Memo on the destination row when set; the fund
	// distributor uses it to tag the two rows with distinct markers.
	MemoInflow string
}

// Rows builds the signed row pair of the transfer: negative out of the
// source wallet, positive into the destination, tagged with the transfer
// category pair.
func (t TransferOperation) Rows(categoryOut, categoryIn string) (out, in LedgerRow) {
	out = LedgerRow{
		Date:      t.Date,
		Amount:    t.Amount.Neg(),
		Wallet:    t.WalletFrom,
		Direction: t.Direction,
		Memo:      t.Memo,
		Category:  categoryOut,
	}
	memoIn := t.Memo
	if t.MemoInflow != "" {
		memoIn = t.MemoInflow
	}
	in = LedgerRow{
		Date:      t.Date,
		Amount:    t.Amount,
		Wallet:    t.WalletTo,
		Direction: t.Direction,
		Memo:      memoIn,
		Category:  categoryIn,
	}
	return out, in
}

var (
	// ErrDraftIncomplete is returned when a draft is committed before all
	// required fields are collected.
	ErrDraftIncomplete = errors.New("draft is missing required fields")

	// ErrAmountNotPositive is returned for zero or negative draft amounts.
	ErrAmountNotPositive = errors.New("amount must be positive")
)

// Draft is the in-progress operation a dialog accumulates field by field.
// Page tracks list pagination while the user picks from long lists.
type Draft struct {
	Kind         Kind
	Date         string
	Amount       decimal.Decimal
	Category     string
	Wallet       string
	WalletFrom   string
	WalletTo     string
	Counterparty string
	Memo         string
	Page         int
}

// SetAmount stores a validated positive amount.
func (d *Draft) SetAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrAmountNotPositive
	}
	d.Amount = amount
	return nil
}

// BuildCash assembles a single-row operation from the draft.
func (d *Draft) BuildCash(direction string) (CashOperation, error) {
	if d.Kind != KindInflow && d.Kind != KindOutflow {
		return CashOperation{}, errors.Wrap(ErrDraftIncomplete, "kind not set")
	}
	if d.Date == "" || d.Category == "" || d.Wallet == "" {
		return CashOperation{}, ErrDraftIncomplete
	}
	if !d.Amount.IsPositive() {
		return CashOperation{}, ErrAmountNotPositive
	}
	return CashOperation{
		Kind:         d.Kind,
		Date:         d.Date,
		Amount:       d.Amount,
		Category:     d.Category,
		Wallet:       d.Wallet,
		Direction:    direction,
		Counterparty: d.Counterparty,
		Memo:         d.Memo,
	}, nil
}

// BuildTransfer assembles a transfer from the draft.
func (d *Draft) BuildTransfer(direction string) (TransferOperation, error) {
	if d.Kind != KindTransfer {
		return TransferOperation{}, errors.Wrap(ErrDraftIncomplete, "kind is not transfer")
	}
	if d.Date == "" || d.WalletFrom == "" || d.WalletTo == "" {
		return TransferOperation{}, ErrDraftIncomplete
	}
	if d.WalletFrom == d.WalletTo {
		return TransferOperation{}, errors.New("source and destination wallets must differ")
	}
	if !d.Amount.IsPositive() {
		return TransferOperation{}, ErrAmountNotPositive
	}
	return TransferOperation{
		Date:       d.Date,
		Amount:     d.Amount,
		WalletFrom: d.WalletFrom,
		WalletTo:   d.WalletTo,
		Direction:  direction,
		Memo:       d.Memo,
	}, nil
}
