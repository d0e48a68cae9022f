// Package sheets is the access layer over the shared cash-flow spreadsheet:
// reference lists, balances, register rows and wallet slots, behind a TTL
// cache and a bounded retry policy.
package sheets

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/ivmorgun/cashbot/internal/domain"
	"github.com/ivmorgun/cashbot/internal/parse"
	"github.com/ivmorgun/cashbot/pkg/retrier"
)

// Sheet names of the spreadsheet template.
const (
	sheetRegister   = "ДДС: месяц"
	sheetWallets    = "ДДС: настройки (для ввода сальдо)"
	sheetDirections = "Справочники"
	sheetCategories = "ДДС: статьи"
	sheetSummary    = "ДДС: Сводный"
)

// Register columns. A, B, J, K are formula-owned and never written.
const (
	colDate         = "C"
	colAmount       = "D"
	colWallet       = "E"
	colDirection    = "F"
	colCounterparty = "G"
	colMemo         = "H"
	colCategory     = "I"
)

// Memo markers tagging fund-transfer rows so a later distribution run can
// detect what was already delivered today.
const (
	MemoFundOut = "Отчисление в Фонд"
	MemoFundIn  = "Поступление в Фонд"
)

// Usage counting reads only the tail of the register to bound latency on
// large tables; the ordering is a UX hint, staleness is acceptable.
const maxUsageRows = 3000

// Cache keys per logical dataset.
const (
	keyWallets      = "wallets"
	keyDirections   = "directions"
	keyUsage        = "article_usage"
	keyBalances     = "balances"
	keyTransferCats = "transfer_articles"
)

func categoriesKey(group domain.CategoryGroup, excludeTechnical bool) string {
	return fmt.Sprintf("articles_%s_%t", group, excludeTechnical)
}

// api is the narrow spreadsheet contract the ledger consumes; implemented
// by Client and by test fakes.
type api interface {
	Get(ctx context.Context, rng string) ([][]string, error)
	GetRaw(ctx context.Context, rng string) ([][]string, error)
	Update(ctx context.Context, rng string, values [][]any) error
	BatchUpdate(ctx context.Context, reqs []*sheetsapi.Request) error
	Sheets(ctx context.Context) ([]SheetInfo, error)
}

// Ledger is the caching, retrying facade over the remote spreadsheet.
type Ledger struct {
	api   api
	cache *Cache
	retry *retrier.Retrier
	lg    *zap.Logger
}

// NewLedger wires the ledger over a spreadsheet client. A nil retrier gets
// the standard policy: 3 attempts, 2s growing backoff, transient-only.
func NewLedger(a api, cache *Cache, retry *retrier.Retrier, lg *zap.Logger) *Ledger {
	if retry == nil {
		retry = retrier.New(retrier.WithRetryIf(TransientError))
	}
	if cache == nil {
		cache = NewCache(DefaultCacheTTL)
	}
	return &Ledger{api: a, cache: cache, retry: retry, lg: lg}
}

func rangeOf(sheet, ref string) string {
	return fmt.Sprintf("'%s'!%s", sheet, ref)
}

func (l *Ledger) fetch(ctx context.Context, rng string) ([][]string, error) {
	return retrier.DoWithData(l.retry, ctx, func(ctx context.Context) ([][]string, error) {
		return l.api.Get(ctx, rng)
	})
}

func (l *Ledger) fetchRaw(ctx context.Context, rng string) ([][]string, error) {
	return retrier.DoWithData(l.retry, ctx, func(ctx context.Context) ([][]string, error) {
		return l.api.GetRaw(ctx, rng)
	})
}

func cell(row []string, idx int) string {
	if idx < len(row) {
		return strings.TrimSpace(row[idx])
	}
	return ""
}

func isSlotDigit(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ListWallets returns wallet names from the settings sheet, column A from
// row 3. Cells holding a bare slot number mark free slots and are skipped.
func (l *Ledger) ListWallets(ctx context.Context) ([]string, error) {
	return cached(l.cache, keyWallets, func() ([]string, error) {
		rows, err := l.fetch(ctx, rangeOf(sheetWallets, "A:A"))
		if err != nil {
			return nil, errors.Wrap(err, "list wallets")
		}
		var wallets []string
		for i := 2; i < len(rows); i++ {
			v := cell(rows[i], 0)
			if v == "" || isSlotDigit(v) {
				continue
			}
			wallets = append(wallets, v)
		}
		return wallets, nil
	})
}

// ListDirections returns business directions, column A from row 2.
func (l *Ledger) ListDirections(ctx context.Context) ([]string, error) {
	return cached(l.cache, keyDirections, func() ([]string, error) {
		rows, err := l.fetch(ctx, rangeOf(sheetDirections, "A:A"))
		if err != nil {
			return nil, errors.Wrap(err, "list directions")
		}
		var out []string
		for i := 1; i < len(rows); i++ {
			if v := cell(rows[i], 0); v != "" {
				out = append(out, v)
			}
		}
		return out, nil
	})
}

// DefaultDirection returns the single configured direction, the first one
// when several exist, or empty when none are configured.
func (l *Ledger) DefaultDirection(ctx context.Context) (string, error) {
	directions, err := l.ListDirections(ctx)
	if err != nil {
		return "", err
	}
	if len(directions) == 0 {
		return "", nil
	}
	return directions[0], nil
}

// ListCategories returns category names of a group in sheet order,
// optionally dropping technical ones.
func (l *Ledger) ListCategories(ctx context.Context, group domain.CategoryGroup, excludeTechnical bool) ([]string, error) {
	return cached(l.cache, categoriesKey(group, excludeTechnical), func() ([]string, error) {
		rows, err := l.fetch(ctx, rangeOf(sheetCategories, "A2:C"))
		if err != nil {
			return nil, errors.Wrap(err, "list categories")
		}
		var out []string
		for _, row := range rows {
			c := domain.Category{
				Name:     cell(row, 0),
				Group:    domain.CategoryGroup(cell(row, 1)),
				Activity: cell(row, 2),
			}
			if c.Name == "" || !strings.EqualFold(string(c.Group), string(group)) {
				continue
			}
			if excludeTechnical && c.Technical() {
				continue
			}
			out = append(out, c.Name)
		}
		return out, nil
	})
}

// usageCounts counts register references per category over the last
// maxUsageRows rows.
func (l *Ledger) usageCounts(ctx context.Context) (map[string]int, error) {
	return cached(l.cache, keyUsage, func() (map[string]int, error) {
		rows, err := l.fetch(ctx, rangeOf(sheetRegister, colCategory+"2:"+colCategory))
		if err != nil {
			return nil, errors.Wrap(err, "category usage")
		}
		if len(rows) > maxUsageRows {
			rows = rows[len(rows)-maxUsageRows:]
		}
		counts := make(map[string]int)
		for _, row := range rows {
			if name := cell(row, 0); name != "" {
				counts[name]++
			}
		}
		return counts, nil
	})
}

// ListCategoriesByUsage returns categories ordered by descending register
// usage, ties broken by sheet order. A usage-count failure falls back to
// plain sheet order: the ordering is an optimization, not a requirement.
func (l *Ledger) ListCategoriesByUsage(ctx context.Context, group domain.CategoryGroup, excludeTechnical bool) ([]string, error) {
	names, err := l.ListCategories(ctx, group, excludeTechnical)
	if err != nil || len(names) == 0 {
		return names, err
	}
	usage, err := l.usageCounts(ctx)
	if err != nil {
		l.lg.Warn("category usage unavailable, keeping sheet order", zap.Error(err))
		return names, nil
	}
	order := make(map[string]int, len(names))
	for i, n := range names {
		order[n] = i
	}
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.SliceStable(sorted, func(i, j int) bool {
		ci, cj := usage[sorted[i]], usage[sorted[j]]
		if ci != cj {
			return ci > cj
		}
		return order[sorted[i]] < order[sorted[j]]
	})
	return sorted, nil
}

// ErrNoTransferCategories is returned when the categories sheet lacks the
// inter-wallet transfer pair.
var ErrNoTransferCategories = errors.New("transfer categories not found in categories sheet")

// TransferCategories returns the outflow/inflow category pair used for
// inter-wallet transfers.
func (l *Ledger) TransferCategories(ctx context.Context) (out, in string, err error) {
	type pair struct{ Out, In string }
	p, err := cached(l.cache, keyTransferCats, func() (pair, error) {
		outs, err := l.ListCategories(ctx, domain.GroupOutflow, false)
		if err != nil {
			return pair{}, err
		}
		ins, err := l.ListCategories(ctx, domain.GroupInflow, false)
		if err != nil {
			return pair{}, err
		}
		var p pair
		for _, c := range outs {
			if domain.IsTransferCategory(c) {
				p.Out = c
				break
			}
		}
		for _, c := range ins {
			if domain.IsTransferCategory(c) {
				p.In = c
				break
			}
		}
		if p.Out == "" || p.In == "" {
			return pair{}, ErrNoTransferCategories
		}
		return p, nil
	})
	if err != nil {
		return "", "", err
	}
	return p.Out, p.In, nil
}

// Balances reads the 12-slot balance block at the top of the register sheet
// (rows 1-3, name/amount pairs in B/C, D/E, F/G, H/I; A3 is the total).
// The read goes through the sanitizing raw path: a single malformed cell
// must not block the whole balance display.
func (l *Ledger) Balances(ctx context.Context, useCache bool) (domain.Balances, error) {
	fetch := func() (domain.Balances, error) {
		rows, err := l.fetchRaw(ctx, rangeOf(sheetRegister, "A1:I3"))
		if err != nil {
			return domain.Balances{}, errors.Wrap(err, "read balances")
		}
		return parseBalances(rows), nil
	}
	if !useCache {
		l.cache.Invalidate(keyBalances)
		return fetch()
	}
	return cached(l.cache, keyBalances, fetch)
}

func parseBalances(rows [][]string) domain.Balances {
	var b domain.Balances
	var total *decimal.Decimal
	if len(rows) > 2 {
		if v, err := parse.Number(cell(rows[2], 0)); err == nil {
			total = &v
		}
	}
	slotPairs := [][2]int{{1, 2}, {3, 4}, {5, 6}, {7, 8}}
	for _, row := range rows {
		for _, p := range slotPairs {
			name := cell(row, p[0])
			amount, err := parse.Number(cell(row, p[1]))
			if name == "" || err != nil || strings.EqualFold(name, domain.TotalLabel) {
				continue
			}
			b.Wallets = append(b.Wallets, domain.WalletBalance{Wallet: name, Amount: amount})
		}
	}
	if total == nil {
		sum := decimal.Zero
		for _, wb := range b.Wallets {
			sum = sum.Add(wb.Amount)
		}
		total = &sum
	}
	b.Total = *total
	return b
}

// registerRows reads the data part of the register (C2:I) once; callers
// index columns relative to C.
func (l *Ledger) registerRows(ctx context.Context) ([][]string, error) {
	return l.fetch(ctx, rangeOf(sheetRegister, colDate+"2:"+colCategory))
}

const (
	regDate = iota
	regAmount
	regWallet
	regDirection
	regCounterparty
	regMemo
	regCategory
)

// DailyInflow sums positive register amounts for the date, excluding rows
// whose category is the transfer inflow category: re-counting prior fund
// transfers would inflate revenue on a repeated distribution run.
func (l *Ledger) DailyInflow(ctx context.Context, date string) (decimal.Decimal, error) {
	rows, err := l.registerRows(ctx)
	if err != nil {
		return decimal.Decimal{}, errors.Wrap(err, "daily inflow")
	}
	transferIn := ""
	if _, in, err := l.TransferCategories(ctx); err == nil {
		transferIn = in
	}
	total := decimal.Zero
	for _, row := range rows {
		if cell(row, regDate) != date {
			continue
		}
		amt, err := parse.Number(cell(row, regAmount))
		if err != nil || !amt.IsPositive() {
			continue
		}
		if transferIn != "" && cell(row, regCategory) == transferIn {
			continue
		}
		total = total.Add(amt)
	}
	return total, nil
}

// FundTransfersDoneToday sums the amounts already delivered on the date
// under the fund-transfer memo markers, grouped by destination wallet.
func (l *Ledger) FundTransfersDoneToday(ctx context.Context, date string) (map[string]decimal.Decimal, error) {
	rows, err := l.registerRows(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fund transfers done today")
	}
	byDestination := make(map[string]decimal.Decimal)
	for _, row := range rows {
		if cell(row, regDate) != date {
			continue
		}
		memo := cell(row, regMemo)
		if !strings.Contains(memo, MemoFundOut) && !strings.Contains(memo, MemoFundIn) {
			continue
		}
		amt, err := parse.Number(cell(row, regAmount))
		if err != nil || !amt.IsPositive() {
			continue
		}
		wallet := cell(row, regWallet)
		if wallet == "" {
			continue
		}
		byDestination[wallet] = byDestination[wallet].Add(amt)
	}
	return byDestination, nil
}

// nextRow finds the first register row after the populated block: highest
// row with a non-empty date cell, plus one. Appends never overwrite.
func (l *Ledger) nextRow(ctx context.Context) (int, error) {
	rows, err := l.fetch(ctx, rangeOf(sheetRegister, colDate+":"+colDate))
	if err != nil {
		return 0, errors.Wrap(err, "discover next register row")
	}
	last := 1
	for i, row := range rows {
		if cell(row, 0) != "" {
			last = i + 1
		}
	}
	return last + 1, nil
}

// AppendOperation writes one signed operation row into the register and
// returns the register row it landed on.
func (l *Ledger) AppendOperation(ctx context.Context, op domain.CashOperation) (int, error) {
	n, err := l.appendRow(ctx, op.Row())
	if err != nil {
		return 0, errors.Wrap(err, "append operation")
	}
	l.InvalidateAfterWrite()
	return n, nil
}

// AppendTransfer writes the two rows of a transfer: outflow from the
// source wallet, inflow to the destination, tagged with the transfer
// category pair. Returns the register rows written. The two appends are
// intent-atomic only: a failure between them is reported and must be
// completed manually.
func (l *Ledger) AppendTransfer(ctx context.Context, t domain.TransferOperation) (outRow, inRow int, err error) {
	catOut, catIn, err := l.TransferCategories(ctx)
	if err != nil {
		return 0, 0, err
	}
	out, in := t.Rows(catOut, catIn)
	outRow, err = l.appendRow(ctx, out)
	if err != nil {
		return 0, 0, errors.Wrap(err, "append transfer outflow row")
	}
	inRow, err = l.appendRow(ctx, in)
	if err != nil {
		return outRow, 0, errors.Wrap(err, "append transfer inflow row (outflow row already written)")
	}
	l.InvalidateAfterWrite()
	return outRow, inRow, nil
}

func (l *Ledger) appendRow(ctx context.Context, row domain.LedgerRow) (int, error) {
	n, err := l.nextRow(ctx)
	if err != nil {
		return 0, err
	}
	rng := rangeOf(sheetRegister, fmt.Sprintf("%s%d:%s%d", colDate, n, colCategory, n))
	values := [][]any{{
		row.Date,
		row.Amount.InexactFloat64(),
		row.Wallet,
		row.Direction,
		row.Counterparty,
		row.Memo,
		row.Category,
	}}
	if err := l.retry.Do(ctx, func(ctx context.Context) error {
		return l.api.Update(ctx, rng, values)
	}); err != nil {
		return 0, err
	}
	return n, nil
}

// OperationsByDate returns the committed register rows for one date.
func (l *Ledger) OperationsByDate(ctx context.Context, date string) ([]domain.LedgerRow, error) {
	rows, err := l.registerRows(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "operations by date")
	}
	var out []domain.LedgerRow
	for i, row := range rows {
		if cell(row, regDate) != date {
			continue
		}
		if r, ok := parseRegisterRow(row, i+2); ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// LastOperation returns the bottom register row, or false when the
// register is empty.
func (l *Ledger) LastOperation(ctx context.Context) (domain.LedgerRow, bool, error) {
	rows, err := l.registerRows(ctx)
	if err != nil {
		return domain.LedgerRow{}, false, errors.Wrap(err, "last operation")
	}
	for i := len(rows) - 1; i >= 0; i-- {
		if r, ok := parseRegisterRow(rows[i], i+2); ok {
			return r, true, nil
		}
	}
	return domain.LedgerRow{}, false, nil
}

func parseRegisterRow(row []string, sheetRow int) (domain.LedgerRow, bool) {
	date := cell(row, regDate)
	if date == "" {
		return domain.LedgerRow{}, false
	}
	amount, err := parse.Number(cell(row, regAmount))
	if err != nil {
		amount = decimal.Zero
	}
	return domain.LedgerRow{
		Row:          sheetRow,
		Date:         date,
		Amount:       amount,
		Wallet:       cell(row, regWallet),
		Direction:    cell(row, regDirection),
		Counterparty: cell(row, regCounterparty),
		Memo:         cell(row, regMemo),
		Category:     cell(row, regCategory),
	}, true
}

// OperationPatch carries the fields of a targeted row update; nil fields
// are left untouched.
type OperationPatch struct {
	Amount       *decimal.Decimal
	Counterparty *string
	Memo         *string
	Category     *string
}

// UpdateOperation rewrites individual cells of an existing register row.
func (l *Ledger) UpdateOperation(ctx context.Context, sheetRow int, patch OperationPatch) error {
	if sheetRow < 2 {
		return errors.Errorf("register row %d is not editable", sheetRow)
	}
	set := func(col string, v any) error {
		rng := rangeOf(sheetRegister, fmt.Sprintf("%s%d", col, sheetRow))
		return l.retry.Do(ctx, func(ctx context.Context) error {
			return l.api.Update(ctx, rng, [][]any{{v}})
		})
	}
	if patch.Amount != nil {
		if err := set(colAmount, patch.Amount.InexactFloat64()); err != nil {
			return errors.Wrap(err, "update amount")
		}
	}
	if patch.Counterparty != nil {
		if err := set(colCounterparty, *patch.Counterparty); err != nil {
			return errors.Wrap(err, "update counterparty")
		}
	}
	if patch.Memo != nil {
		if err := set(colMemo, *patch.Memo); err != nil {
			return errors.Wrap(err, "update memo")
		}
	}
	if patch.Category != nil {
		if err := set(colCategory, *patch.Category); err != nil {
			return errors.Wrap(err, "update category")
		}
	}
	l.InvalidateAfterWrite()
	return nil
}

// InvalidateAfterWrite drops the caches any committed operation can affect.
func (l *Ledger) InvalidateAfterWrite() {
	l.cache.Invalidate(keyBalances, keyUsage)
}
