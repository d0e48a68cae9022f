package sheets

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/ivmorgun/cashbot/internal/domain"
	"github.com/ivmorgun/cashbot/pkg/retrier"
)

// fakeAPI models the spreadsheet in memory: static ranges plus a live
// register whose C:I columns reflect row updates.
type fakeAPI struct {
	mu       sync.Mutex
	static   map[string][][]string
	raw      map[string][][]string
	register map[int][]string // sheet row -> C..I values
	updates  []string         // ranges written, in order
	metas    []SheetInfo
	failGets int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		static:   make(map[string][][]string),
		raw:      make(map[string][][]string),
		register: make(map[int][]string),
	}
}

func (f *fakeAPI) setRegisterRow(row int, values ...string) {
	f.register[row] = values
}

func (f *fakeAPI) Get(ctx context.Context, rng string) ([][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGets > 0 {
		f.failGets--
		return nil, errors.Wrap(context.DeadlineExceeded, "fake transient")
	}
	if rows, ok := f.static[rng]; ok {
		return rows, nil
	}
	switch rng {
	case rangeOf(sheetRegister, "C:C"):
		return f.registerColumn(0), nil
	case rangeOf(sheetRegister, "C2:I"):
		return f.registerBlock(), nil
	case rangeOf(sheetRegister, "I2:I"):
		return f.registerTailColumn(6), nil
	}
	return nil, nil
}

func (f *fakeAPI) registerColumn(col int) [][]string {
	max := f.maxRow()
	rows := make([][]string, max)
	rows[0] = []string{"Дата"}
	for r, vals := range f.register {
		if col < len(vals) {
			rows[r-1] = []string{vals[col]}
		}
	}
	return rows
}

func (f *fakeAPI) registerTailColumn(col int) [][]string {
	max := f.maxRow()
	var rows [][]string
	for r := 2; r <= max; r++ {
		if vals, ok := f.register[r]; ok && col < len(vals) {
			rows = append(rows, []string{vals[col]})
		} else {
			rows = append(rows, []string{""})
		}
	}
	return rows
}

func (f *fakeAPI) registerBlock() [][]string {
	max := f.maxRow()
	var rows [][]string
	for r := 2; r <= max; r++ {
		rows = append(rows, f.register[r])
	}
	return rows
}

func (f *fakeAPI) maxRow() int {
	max := 1
	for r := range f.register {
		if r > max {
			max = r
		}
	}
	return max
}

func (f *fakeAPI) GetRaw(ctx context.Context, rng string) ([][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.raw[rng], nil
}

func (f *fakeAPI) Update(ctx context.Context, rng string, values [][]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, rng)
	prefix := fmt.Sprintf("'%s'!C", sheetRegister)
	if strings.HasPrefix(rng, prefix) && len(values) == 1 {
		var row int
		if _, err := fmt.Sscanf(strings.TrimPrefix(rng, prefix), "%d", &row); err == nil {
			cells := make([]string, len(values[0]))
			for i, v := range values[0] {
				cells[i] = fmt.Sprint(v)
			}
			f.register[row] = cells
		}
	}
	return nil
}

func (f *fakeAPI) BatchUpdate(ctx context.Context, reqs []*sheetsapi.Request) error {
	return nil
}

func (f *fakeAPI) Sheets(ctx context.Context) ([]SheetInfo, error) {
	return f.metas, nil
}

func testLedger(t *testing.T, api *fakeAPI) *Ledger {
	t.Helper()
	retry := retrier.New(
		retrier.WithInitialInterval(time.Millisecond),
		retrier.WithRetryIf(TransientError),
	)
	return NewLedger(api, NewCache(time.Minute), retry, zap.NewNop())
}

func seedCategories(api *fakeAPI) {
	api.static[rangeOf(sheetCategories, "A2:C")] = [][]string{
		{"Выручка", "Поступление", "Основная"},
		{"Перевод между счетами (in)", "Поступление", "Техническая операция"},
		{"Аренда", "Выбытие", "Основная"},
		{"Зарплата", "Выбытие", "Основная"},
		{"Перевод между счетами (out)", "Выбытие", "Техническая операция"},
	}
}

func TestListWalletsSkipsFreeSlots(t *testing.T) {
	api := newFakeAPI()
	api.static[rangeOf(sheetWallets, "A:A")] = [][]string{
		{"Кошельки"}, {"(строка 2)"},
		{"Сбербанк"}, {"Касса"}, {"5"}, {""}, {"Фонд Налоги"},
	}
	l := testLedger(t, api)

	wallets, err := l.ListWallets(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"Сбербанк", "Касса", "Фонд Налоги"}, wallets)
}

func TestListWalletsRetriesTransient(t *testing.T) {
	api := newFakeAPI()
	api.static[rangeOf(sheetWallets, "A:A")] = [][]string{{"x"}, {"x"}, {"Сбербанк"}}
	api.failGets = 2
	l := testLedger(t, api)

	wallets, err := l.ListWallets(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"Сбербанк"}, wallets)
}

func TestListCategoriesExcludesTechnical(t *testing.T) {
	api := newFakeAPI()
	seedCategories(api)
	l := testLedger(t, api)

	all, err := l.ListCategories(context.Background(), domain.GroupOutflow, false)
	require.NoError(t, err)
	require.Len(t, all, 3)

	regular, err := l.ListCategories(context.Background(), domain.GroupOutflow, true)
	require.NoError(t, err)
	require.Equal(t, []string{"Аренда", "Зарплата"}, regular)
}

func TestListCategoriesByUsage(t *testing.T) {
	api := newFakeAPI()
	seedCategories(api)
	api.setRegisterRow(2, "01.02.2024", "-100", "Касса", "Осн", "", "", "Зарплата")
	api.setRegisterRow(3, "01.02.2024", "-200", "Касса", "Осн", "", "", "Зарплата")
	api.setRegisterRow(4, "01.02.2024", "-50", "Касса", "Осн", "", "", "Аренда")
	l := testLedger(t, api)

	sorted, err := l.ListCategoriesByUsage(context.Background(), domain.GroupOutflow, true)
	require.NoError(t, err)
	require.Equal(t, []string{"Зарплата", "Аренда"}, sorted)
}

func TestTransferCategories(t *testing.T) {
	api := newFakeAPI()
	seedCategories(api)
	l := testLedger(t, api)

	out, in, err := l.TransferCategories(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Перевод между счетами (out)", out)
	require.Equal(t, "Перевод между счетами (in)", in)
}

func TestDailyInflowExcludesTransferCategory(t *testing.T) {
	api := newFakeAPI()
	seedCategories(api)
	api.setRegisterRow(2, "01.02.2024", "5000", "Сбербанк", "Осн", "", "", "Выручка")
	api.setRegisterRow(3, "01.02.2024", "1000", "Фонд Налоги", "Осн", "", "Поступление в Фонд", "Перевод между счетами (in)")
	api.setRegisterRow(4, "01.02.2024", "-700", "Касса", "Осн", "", "", "Аренда")
	api.setRegisterRow(5, "02.02.2024", "9999", "Сбербанк", "Осн", "", "", "Выручка")
	l := testLedger(t, api)

	total, err := l.DailyInflow(context.Background(), "01.02.2024")
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(5000).Equal(total), "got %s", total)
}

func TestFundTransfersDoneToday(t *testing.T) {
	api := newFakeAPI()
	seedCategories(api)
	api.setRegisterRow(2, "01.02.2024", "500", "Фонд Развития", "Осн", "", "Поступление в Фонд за 01.02.2024", "Перевод между счетами (in)")
	api.setRegisterRow(3, "01.02.2024", "250", "Фонд Налоги", "Осн", "", "Поступление в Фонд за 01.02.2024", "Перевод между счетами (in)")
	api.setRegisterRow(4, "01.02.2024", "100", "Сбербанк", "Осн", "", "обычная операция", "Выручка")
	l := testLedger(t, api)

	done, err := l.FundTransfersDoneToday(context.Background(), "01.02.2024")
	require.NoError(t, err)
	require.Len(t, done, 2)
	require.True(t, decimal.NewFromInt(500).Equal(done["Фонд Развития"]))
	require.True(t, decimal.NewFromInt(250).Equal(done["Фонд Налоги"]))
}

func TestAppendOperationWritesNextFreeRow(t *testing.T) {
	api := newFakeAPI()
	api.setRegisterRow(2, "01.02.2024", "100", "Касса", "Осн", "", "", "Выручка")
	api.setRegisterRow(3, "01.02.2024", "200", "Касса", "Осн", "", "", "Выручка")
	l := testLedger(t, api)

	op := domain.CashOperation{
		Kind: domain.KindOutflow, Date: "02.02.2024",
		Amount: decimal.NewFromInt(300), Category: "Аренда",
		Wallet: "Касса", Direction: "Осн",
	}
	row, err := l.AppendOperation(context.Background(), op)
	require.NoError(t, err)
	require.Equal(t, 4, row)
	require.Contains(t, api.updates, rangeOf(sheetRegister, "C4:I4"))
	require.Equal(t, "-300", api.register[4][1], "outflow amount must be signed at commit")
}

func TestAppendTransferWritesTwoRows(t *testing.T) {
	api := newFakeAPI()
	seedCategories(api)
	api.setRegisterRow(2, "01.02.2024", "100", "Касса", "Осн", "", "", "Выручка")
	l := testLedger(t, api)

	tr := domain.TransferOperation{
		Date: "01.02.2024", Amount: decimal.NewFromInt(500),
		WalletFrom: "Сбербанк", WalletTo: "Касса", Direction: "Осн",
		Memo: "инкассация",
	}
	outRow, inRow, err := l.AppendTransfer(context.Background(), tr)
	require.NoError(t, err)
	require.Equal(t, 3, outRow)
	require.Equal(t, 4, inRow)

	require.Equal(t, "-500", api.register[3][1])
	require.Equal(t, "Сбербанк", api.register[3][2])
	require.Equal(t, "Перевод между счетами (out)", api.register[3][6])
	require.Equal(t, "500", api.register[4][1])
	require.Equal(t, "Касса", api.register[4][2])
	require.Equal(t, "Перевод между счетами (in)", api.register[4][6])
}

func TestBalancesParsesSlotPairs(t *testing.T) {
	api := newFakeAPI()
	api.raw[rangeOf(sheetRegister, "A1:I3")] = [][]string{
		{"", "Сбербанк", "1 000,50", "Касса", "200"},
		{"", "Фонд Налоги", "300"},
		{"Итого:", "", ""},
	}
	l := testLedger(t, api)

	b, err := l.Balances(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, b.Wallets, 3)
	require.True(t, decimal.RequireFromString("1500.5").Equal(b.Total), "total synthesized from slots, got %s", b.Total)

	main, funds := b.Split()
	require.Len(t, main, 2)
	require.Len(t, funds, 1)
	require.Equal(t, "Фонд Налоги", funds[0].Wallet)
}

func TestLastOperation(t *testing.T) {
	api := newFakeAPI()
	api.setRegisterRow(2, "01.02.2024", "100", "Касса", "Осн", "", "", "Выручка")
	api.setRegisterRow(3, "02.02.2024", "-40", "Касса", "Осн", "ИП Иванов", "аренда", "Аренда")
	l := testLedger(t, api)

	op, ok, err := l.LastOperation(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 3, op.Row)
	require.Equal(t, "ИП Иванов", op.Counterparty)
	require.False(t, op.Inflow())
}

func TestFreeWalletSlots(t *testing.T) {
	api := newFakeAPI()
	api.static[rangeOf(sheetWallets, "A:A")] = [][]string{
		{"Кошельки"}, {"(строка 2)"},
		{"Сбербанк"}, {"Касса"}, {"3"}, {"4"}, {"Фонд Налоги"}, {"6"},
	}
	l := testLedger(t, api)

	free, err := l.FreeWalletSlots(context.Background())
	require.NoError(t, err)
	require.Equal(t, []domain.WalletSlot{
		{Position: 3, SheetNumber: 3},
		{Position: 4, SheetNumber: 4},
		{Position: 6, SheetNumber: 6},
	}, free)
}
