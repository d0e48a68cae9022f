package sheets

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ivmorgun/cashbot/internal/domain"
	"github.com/ivmorgun/cashbot/internal/parse"
)

// ErrNoSummary is returned when the summary sheet has no data for the
// requested month.
var ErrNoSummary = errors.New("no summary data for the requested period")

// MonthSummary reads the monthly summary sheet: label rows in column A,
// months in columns B..M. Missing figures are derived from the other two
// when possible.
func (l *Ledger) MonthSummary(ctx context.Context, month int) (domain.Summary, error) {
	if month < 1 || month > 12 {
		return domain.Summary{}, errors.Errorf("month must be 1..12, got %d", month)
	}
	rows, err := l.fetch(ctx, rangeOf(sheetSummary, "A:M"))
	if err != nil {
		return domain.Summary{}, errors.Wrap(err, "month summary")
	}
	col := month // column B (index 1) is month 1

	var start, end, change, revenue, expenses *decimal.Decimal
	for _, row := range rows {
		val, err := parse.Number(cell(row, col))
		if err != nil {
			continue
		}
		label := strings.ToLower(cell(row, 0))
		v := val
		switch {
		case strings.Contains(label, "денег на начало") || strings.Contains(label, "начало месяца"):
			start = &v
		case strings.Contains(label, "денег на конец") || strings.Contains(label, "конец месяца"):
			end = &v
		case strings.Contains(label, "изменение денег") || strings.Contains(label, "изменение за месяц"):
			change = &v
		case strings.Contains(label, "выручка") || strings.Contains(label, "доходы"):
			if revenue == nil && !v.IsNegative() {
				revenue = &v
			}
		case strings.Contains(label, "расходы"):
			abs := v.Abs()
			expenses = &abs
		}
	}
	if start == nil && end != nil && change != nil {
		v := end.Sub(*change)
		start = &v
	}
	if end == nil && start != nil && change != nil {
		v := start.Add(*change)
		end = &v
	}
	if change == nil && start != nil && end != nil {
		v := end.Sub(*start)
		change = &v
	}
	if start == nil && end == nil {
		return domain.Summary{}, ErrNoSummary
	}
	s := domain.Summary{Revenue: revenue, Expenses: expenses}
	if start != nil {
		s.StartBalance = *start
	}
	if end != nil {
		s.EndBalance = *end
	}
	if change != nil {
		s.Change = *change
	}
	return s, nil
}

// RangeSummary aggregates the register over an inclusive date range:
// revenue is the sum of positive amounts, expenses the absolute sum of
// negative ones. The end balance is the current live total; the start
// balance is derived by backing out the change.
func (l *Ledger) RangeSummary(ctx context.Context, from, to string) (domain.Summary, error) {
	t1, err := parse.ToTime(from)
	if err != nil {
		return domain.Summary{}, err
	}
	t2, err := parse.ToTime(to)
	if err != nil {
		return domain.Summary{}, err
	}
	if t1.After(t2) {
		return domain.Summary{}, errors.New("range start is after range end")
	}
	rows, err := l.registerRows(ctx)
	if err != nil {
		return domain.Summary{}, errors.Wrap(err, "range summary")
	}
	income := decimal.Zero
	expense := decimal.Zero
	for _, row := range rows {
		d, err := parse.ToTime(cell(row, regDate))
		if err != nil || d.Before(t1) || d.After(t2) {
			continue
		}
		amt, err := parse.Number(cell(row, regAmount))
		if err != nil {
			continue
		}
		if amt.IsPositive() {
			income = income.Add(amt)
		} else {
			expense = expense.Add(amt.Abs())
		}
	}
	change := income.Sub(expense)
	s := domain.Summary{
		Change:   change,
		Revenue:  &income,
		Expenses: &expense,
	}
	balances, err := l.Balances(ctx, false)
	if err != nil {
		l.lg.Warn("live total unavailable for range summary", zap.Error(err))
		return s, nil
	}
	s.EndBalance = balances.Total
	s.StartBalance = balances.Total.Sub(change)
	return s, nil
}
