package funds

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ivmorgun/cashbot/internal/domain"
	"github.com/ivmorgun/cashbot/internal/services/sheets"
)

var (
	// ErrNoActiveRules is returned when no rule can produce a transfer.
	ErrNoActiveRules = errors.New("no active fund rules configured")

	// ErrNoInflow is returned when the date has no revenue to distribute.
	ErrNoInflow = errors.New("no inflow to distribute")

	// ErrAlreadyDistributed is returned when prior runs already consumed
	// the whole revenue of the date.
	ErrAlreadyDistributed = errors.New("funds already distributed for this date")
)

// ledger is the slice of the access layer the distributor consumes.
type ledger interface {
	DailyInflow(ctx context.Context, date string) (decimal.Decimal, error)
	FundTransfersDoneToday(ctx context.Context, date string) (map[string]decimal.Decimal, error)
	DefaultDirection(ctx context.Context) (string, error)
	AppendTransfer(ctx context.Context, t domain.TransferOperation) (outRow, inRow int, err error)
	InvalidateAfterWrite()
}

// Transfer is the outcome of one rule in a distribution pass.
type Transfer struct {
	Source      string
	Destination string
	Amount      decimal.Decimal
	Err         error
}

// Result describes one distribution pass.
type Result struct {
	Date        string
	Inflow      decimal.Decimal
	AlreadyDone decimal.Decimal
	NewRevenue  decimal.Decimal
	Transfers   []Transfer
}

// Distributor runs the idempotent daily fund allocation.
type Distributor struct {
	ledger ledger
	rules  *RuleStore
	lg     *zap.Logger
}

func NewDistributor(l ledger, rules *RuleStore, lg *zap.Logger) *Distributor {
	return &Distributor{ledger: l, rules: rules, lg: lg}
}

var hundred = decimal.NewFromInt(100)

// Distribute tops the fund wallets up toward their rule-implied share of
// the date's cumulative revenue. Safe to re-run: amounts already delivered
// today (detected by the fund memo markers) are backed out of the revenue
// base before percentages are applied, so a repeat call with no new inflow
// produces no transfers.
//
// Per-rule append failures are collected in the result, not fatal: the
// remaining rules still run and a later call tops up the failed ones.
func (d *Distributor) Distribute(ctx context.Context, date string) (Result, error) {
	res := Result{Date: date}

	inflow, err := d.ledger.DailyInflow(ctx, date)
	if err != nil {
		return res, errors.Wrap(err, "read daily inflow")
	}
	res.Inflow = inflow
	if !inflow.IsPositive() {
		return res, ErrNoInflow
	}

	rules := d.rules.Active()
	if len(rules) == 0 {
		return res, ErrNoActiveRules
	}

	done, err := d.ledger.FundTransfersDoneToday(ctx, date)
	if err != nil {
		return res, errors.Wrap(err, "read delivered fund transfers")
	}
	for _, amt := range done {
		res.AlreadyDone = res.AlreadyDone.Add(amt)
	}

	// Back out the revenue already consumed by prior runs: delivered total
	// relates to its revenue base through the combined percentage.
	totalPercent := domain.TotalPercent(rules)
	newRevenue := inflow
	if totalPercent.IsPositive() && res.AlreadyDone.IsPositive() {
		used := res.AlreadyDone.Mul(hundred).Div(totalPercent)
		newRevenue = inflow.Sub(used)
	}
	res.NewRevenue = newRevenue
	if !newRevenue.IsPositive() {
		return res, ErrAlreadyDistributed
	}

	direction, err := d.ledger.DefaultDirection(ctx)
	if err != nil {
		return res, errors.Wrap(err, "read default direction")
	}

	for _, rule := range rules {
		amount := newRevenue.Mul(rule.Percent).Div(hundred).Round(0)
		if !amount.IsPositive() {
			continue
		}
		t := domain.TransferOperation{
			Date:       date,
			Amount:     amount,
			WalletFrom: rule.Source,
			WalletTo:   rule.Destination,
			Direction:  direction,
			Memo:       fmt.Sprintf("%s за %s", sheets.MemoFundOut, date),
			MemoInflow: fmt.Sprintf("%s за %s", sheets.MemoFundIn, date),
		}
		_, _, err := d.ledger.AppendTransfer(ctx, t)
		if err != nil {
			d.lg.Error("fund transfer failed",
				zap.String("destination", rule.Destination),
				zap.String("amount", amount.String()),
				zap.Error(err))
		} else {
			d.lg.Info("fund transfer delivered",
				zap.String("destination", rule.Destination),
				zap.String("amount", amount.String()))
		}
		res.Transfers = append(res.Transfers, Transfer{
			Source:      rule.Source,
			Destination: rule.Destination,
			Amount:      amount,
			Err:         err,
		})
	}
	d.ledger.InvalidateAfterWrite()
	return res, nil
}
