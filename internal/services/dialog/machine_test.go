package dialog

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ivmorgun/cashbot/internal/domain"
	"github.com/ivmorgun/cashbot/internal/journal"
	"github.com/ivmorgun/cashbot/internal/parse"
	"github.com/ivmorgun/cashbot/internal/services/funds"
	"github.com/ivmorgun/cashbot/internal/services/sheets"
	"github.com/ivmorgun/cashbot/internal/telegram"
)

type sentMessage struct {
	ChatID int64
	MsgID  int // zero for fresh sends, the edited message otherwise
	Text   string
	Kb     domain.Keyboard
}

type fakeSender struct {
	sent []sentMessage
}

func (f *fakeSender) Send(ctx context.Context, chatID int64, text string, kb domain.Keyboard) error {
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text, Kb: kb})
	return nil
}

func (f *fakeSender) Edit(ctx context.Context, chatID int64, messageID int, text string, kb domain.Keyboard) error {
	f.sent = append(f.sent, sentMessage{ChatID: chatID, MsgID: messageID, Text: text, Kb: kb})
	return nil
}

func (f *fakeSender) last(t *testing.T) sentMessage {
	t.Helper()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

type dialogLedger struct {
	wallets    []string
	categories []string
	ops        []domain.CashOperation
	transfers  []domain.TransferOperation
	patches    []sheets.OperationPatch
	patchRows  []int
	lastRow    domain.LedgerRow
	hasLast    bool
	failAppend bool
}

// nextRow mimics register growth: row 2 is the first data row.
func (f *dialogLedger) nextRow() int { return 2 + len(f.ops) + 2*len(f.transfers) }

func (f *dialogLedger) ListWallets(ctx context.Context) ([]string, error) { return f.wallets, nil }

func (f *dialogLedger) ListCategoriesByUsage(ctx context.Context, g domain.CategoryGroup, excl bool) ([]string, error) {
	return f.categories, nil
}

func (f *dialogLedger) DefaultDirection(ctx context.Context) (string, error) {
	return "Основное", nil
}

func (f *dialogLedger) AppendOperation(ctx context.Context, op domain.CashOperation) (int, error) {
	if f.failAppend {
		return 0, errors.New("append failed")
	}
	row := f.nextRow()
	f.ops = append(f.ops, op)
	return row, nil
}

func (f *dialogLedger) AppendTransfer(ctx context.Context, t domain.TransferOperation) (int, int, error) {
	if f.failAppend {
		return 0, 0, errors.New("append failed")
	}
	row := f.nextRow()
	f.transfers = append(f.transfers, t)
	return row, row + 1, nil
}

func (f *dialogLedger) Balances(ctx context.Context, useCache bool) (domain.Balances, error) {
	return domain.Balances{
		Wallets: []domain.WalletBalance{{Wallet: "Сбербанк", Amount: decimal.NewFromInt(1000)}},
		Total:   decimal.NewFromInt(1000),
	}, nil
}

func (f *dialogLedger) OperationsByDate(ctx context.Context, date string) ([]domain.LedgerRow, error) {
	return nil, nil
}

func (f *dialogLedger) LastOperation(ctx context.Context) (domain.LedgerRow, bool, error) {
	return f.lastRow, f.hasLast, nil
}

func (f *dialogLedger) UpdateOperation(ctx context.Context, row int, patch sheets.OperationPatch) error {
	f.patches = append(f.patches, patch)
	f.patchRows = append(f.patchRows, row)
	return nil
}

func (f *dialogLedger) MonthSummary(ctx context.Context, month int) (domain.Summary, error) {
	return domain.Summary{}, sheets.ErrNoSummary
}

func (f *dialogLedger) RangeSummary(ctx context.Context, from, to string) (domain.Summary, error) {
	return domain.Summary{}, nil
}

func (f *dialogLedger) FreeWalletSlots(ctx context.Context) ([]domain.WalletSlot, error) {
	return []domain.WalletSlot{{Position: 3, SheetNumber: 3}}, nil
}

func (f *dialogLedger) AddWallet(ctx context.Context, slot domain.WalletSlot, name string, start decimal.Decimal) error {
	return nil
}

type fakeDistributor struct{ err error }

func (f *fakeDistributor) Distribute(ctx context.Context, date string) (funds.Result, error) {
	return funds.Result{Date: date}, f.err
}

type fakeRules struct{ rules []domain.FundRule }

func (f *fakeRules) Rules() []domain.FundRule { return f.rules }
func (f *fakeRules) Add(r domain.FundRule) error {
	f.rules = append(f.rules, r)
	return nil
}
func (f *fakeRules) Update(i int, r domain.FundRule) error {
	f.rules[i] = r
	return nil
}
func (f *fakeRules) Delete(i int) error {
	f.rules = append(f.rules[:i], f.rules[i+1:]...)
	return nil
}

type fakeJournal struct{ entries []journal.Entry }

func (f *fakeJournal) Append(e journal.Entry) error {
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeJournal) Last() (journal.Entry, bool, error) {
	if len(f.entries) == 0 {
		return journal.Entry{}, false, nil
	}
	return f.entries[len(f.entries)-1], true, nil
}

type fixture struct {
	m      *Machine
	sender *fakeSender
	ledger *dialogLedger
	store  *MemoryStore
	rules  *fakeRules
	jrnl   *fakeJournal
	dist   *fakeDistributor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sender: &fakeSender{},
		ledger: &dialogLedger{
			wallets:    []string{"Сбербанк", "Касса", "Касса Магазин"},
			categories: []string{"Выручка", "Прочие доходы"},
		},
		store: NewMemoryStore(DefaultSessionTTL),
		rules: &fakeRules{},
		jrnl:  &fakeJournal{},
		dist:  &fakeDistributor{},
	}
	f.m = NewMachine(f.sender, f.ledger, f.dist, f.rules, f.jrnl, f.store, zap.NewNop())
	return f
}

const (
	testUser int64 = 42
	testChat int64 = 42
)

func (f *fixture) press(t *testing.T, a domain.Action) {
	t.Helper()
	f.m.OnAction(context.Background(), telegram.Event{
		Kind: telegram.EventCallback, UserID: testUser, ChatID: testChat, Action: a,
	})
}

func (f *fixture) pressMsg(t *testing.T, a domain.Action, msgID int) {
	t.Helper()
	f.m.OnAction(context.Background(), telegram.Event{
		Kind: telegram.EventCallback, UserID: testUser, ChatID: testChat, MessageID: msgID, Action: a,
	})
}

func (f *fixture) typeText(t *testing.T, text string) {
	t.Helper()
	f.m.OnText(context.Background(), telegram.Event{
		Kind: telegram.EventText, UserID: testUser, ChatID: testChat, Text: text,
	})
}

func (f *fixture) command(t *testing.T, cmd string) {
	t.Helper()
	f.m.OnCommand(context.Background(), telegram.Event{
		Kind: telegram.EventCommand, UserID: testUser, ChatID: testChat, Command: cmd,
	})
}

func TestGuidedInflowEndToEnd(t *testing.T) {
	f := newFixture(t)

	f.press(t, domain.Act(domain.ActAddOperation))
	f.press(t, domain.Act(domain.ActDateToday))
	f.press(t, domain.Act(domain.ActTypeInflow))
	f.press(t, domain.ActIdx(domain.ActPick, 0)) // Выручка
	f.press(t, domain.ActIdx(domain.ActPick, 0)) // Сбербанк
	f.typeText(t, "1 250,50")
	f.typeText(t, "ИП Иванов") // counterparty
	f.press(t, domain.Act(domain.ActSkip))
	f.press(t, domain.Act(domain.ActConfirm))

	require.Len(t, f.ledger.ops, 1)
	op := f.ledger.ops[0]
	require.Equal(t, domain.KindInflow, op.Kind)
	require.Equal(t, parse.Today(), op.Date)
	require.True(t, decimal.RequireFromString("1250.5").Equal(op.Amount))
	require.Equal(t, "Выручка", op.Category)
	require.Equal(t, "Сбербанк", op.Wallet)
	require.Equal(t, "ИП Иванов", op.Counterparty)
	require.Len(t, f.jrnl.entries, 1)
}

func TestGuidedTransfer(t *testing.T) {
	f := newFixture(t)

	f.press(t, domain.Act(domain.ActAddOperation))
	f.press(t, domain.Act(domain.ActDateToday))
	f.press(t, domain.Act(domain.ActTypeTransfer))
	f.press(t, domain.ActIdx(domain.ActPick, 0)) // from: Сбербанк
	// destination options exclude the source
	f.press(t, domain.ActIdx(domain.ActPick, 0)) // to: Касса
	f.typeText(t, "500")
	f.press(t, domain.Act(domain.ActSkip)) // memo
	f.press(t, domain.Act(domain.ActConfirm))

	require.Len(t, f.ledger.transfers, 1)
	tr := f.ledger.transfers[0]
	require.Equal(t, "Сбербанк", tr.WalletFrom)
	require.Equal(t, "Касса", tr.WalletTo)
	require.True(t, decimal.NewFromInt(500).Equal(tr.Amount))
}

func TestFastPathMatchesGuidedRows(t *testing.T) {
	guided := newFixture(t)
	guided.press(t, domain.Act(domain.ActAddOperation))
	guided.press(t, domain.Act(domain.ActDateToday))
	guided.press(t, domain.Act(domain.ActTypeInflow))
	guided.press(t, domain.ActIdx(domain.ActPick, 0))
	guided.press(t, domain.ActIdx(domain.ActPick, 0))
	guided.typeText(t, "5000")
	guided.typeText(t, "ИП Иванов")
	guided.typeText(t, "за услуги")
	guided.press(t, domain.Act(domain.ActConfirm))

	fast := newFixture(t)
	fast.typeText(t, "5000 Сбербанк (ИП Иванов) за услуги")
	fast.press(t, domain.ActIdx(domain.ActPick, 0)) // category
	fast.press(t, domain.Act(domain.ActConfirm))

	require.Len(t, guided.ledger.ops, 1)
	require.Len(t, fast.ledger.ops, 1)
	require.Equal(t, guided.ledger.ops[0].Row(), fast.ledger.ops[0].Row())
}

func TestFastPathTransferJumpsToConfirm(t *testing.T) {
	f := newFixture(t)
	f.typeText(t, "перевод 500 Сбербанк Касса Магазин")
	f.press(t, domain.Act(domain.ActConfirm))

	require.Len(t, f.ledger.transfers, 1)
	require.Equal(t, "Сбербанк", f.ledger.transfers[0].WalletFrom)
	require.Equal(t, "Касса Магазин", f.ledger.transfers[0].WalletTo)
}

func TestDuplicateConfirmHitsExpiredFallback(t *testing.T) {
	f := newFixture(t)
	f.typeText(t, "5000 Сбербанк")
	f.press(t, domain.ActIdx(domain.ActPick, 0))
	f.press(t, domain.Act(domain.ActConfirm))
	require.Len(t, f.ledger.ops, 1)

	f.press(t, domain.Act(domain.ActConfirm))
	require.Len(t, f.ledger.ops, 1, "duplicate press must not re-submit")
	require.Contains(t, f.sender.last(t).Text, "устарела")
}

func TestCancelFromAnywhereClearsSession(t *testing.T) {
	f := newFixture(t)

	f.press(t, domain.Act(domain.ActAddOperation))
	f.press(t, domain.Act(domain.ActDateToday))
	f.press(t, domain.Act(domain.ActTypeOutflow))
	f.press(t, domain.Act(domain.ActCancel))

	_, ok := f.store.Get(testUser)
	require.False(t, ok, "cancel must clear the session")
	require.Contains(t, f.sender.last(t).Text, "Отменено")
}

func TestBackThenRedoReproducesDraft(t *testing.T) {
	f := newFixture(t)

	f.press(t, domain.Act(domain.ActAddOperation))
	f.press(t, domain.Act(domain.ActDateToday))
	f.press(t, domain.Act(domain.ActTypeInflow))
	f.press(t, domain.ActIdx(domain.ActPick, 1)) // Прочие доходы

	s, ok := f.store.Get(testUser)
	require.True(t, ok)
	before := s.Draft

	f.press(t, domain.Act(domain.ActBack)) // back to category select
	f.press(t, domain.ActIdx(domain.ActPick, 1))

	s, ok = f.store.Get(testUser)
	require.True(t, ok)
	require.Equal(t, before, s.Draft)
	require.Equal(t, StateWallet, s.State)
}

func TestInvalidAmountRepromptsInPlace(t *testing.T) {
	f := newFixture(t)
	f.press(t, domain.Act(domain.ActAddOperation))
	f.press(t, domain.Act(domain.ActDateToday))
	f.press(t, domain.Act(domain.ActTypeInflow))
	f.press(t, domain.ActIdx(domain.ActPick, 0))
	f.press(t, domain.ActIdx(domain.ActPick, 0))

	f.typeText(t, "не число")
	s, ok := f.store.Get(testUser)
	require.True(t, ok)
	require.Equal(t, StateAmount, s.State, "invalid input keeps the state")

	f.typeText(t, "-5")
	s, _ = f.store.Get(testUser)
	require.Equal(t, StateAmount, s.State, "negative amount rejected")
}

func TestEditAmountFromConfirm(t *testing.T) {
	f := newFixture(t)
	f.typeText(t, "5000 Сбербанк")
	f.press(t, domain.ActIdx(domain.ActPick, 0))

	f.press(t, domain.Act(domain.ActEditMenu))
	f.press(t, domain.Act(domain.ActEditAmount))
	f.typeText(t, "6000")
	f.press(t, domain.Act(domain.ActConfirm))

	require.Len(t, f.ledger.ops, 1)
	require.True(t, decimal.NewFromInt(6000).Equal(f.ledger.ops[0].Amount))
}

func TestAppendFailureReportsAndDoesNotJournal(t *testing.T) {
	f := newFixture(t)
	f.ledger.failAppend = true

	f.typeText(t, "5000 Сбербанк")
	f.press(t, domain.ActIdx(domain.ActPick, 0))
	f.press(t, domain.Act(domain.ActConfirm))

	require.Empty(t, f.jrnl.entries)
	require.Contains(t, f.sender.last(t).Text, "Не удалось")
}

func TestFundsCommandOutcomes(t *testing.T) {
	f := newFixture(t)

	f.dist.err = funds.ErrNoInflow
	f.command(t, "funds")
	require.Contains(t, f.sender.last(t).Text, "не было поступлений")

	f.dist.err = funds.ErrAlreadyDistributed
	f.command(t, "funds")
	require.Contains(t, f.sender.last(t).Text, "уже распределены")

	f.dist.err = nil
	f.command(t, "funds")
	require.Contains(t, f.sender.last(t).Text, "Распределение")
}

func TestRuleAddFlow(t *testing.T) {
	f := newFixture(t)

	f.command(t, "settings")
	f.press(t, domain.Act(domain.ActSettingsFunds))
	f.press(t, domain.Act(domain.ActRuleAdd))
	f.press(t, domain.ActIdx(domain.ActPick, 0)) // source: Сбербанк
	f.press(t, domain.ActIdx(domain.ActPick, 1)) // destination: Касса
	f.press(t, domain.ActVal(domain.ActRulePercent, "10"))

	require.Len(t, f.rules.rules, 1)
	r := f.rules.rules[0]
	require.Equal(t, "Сбербанк", r.Source)
	require.Equal(t, "Касса", r.Destination)
	require.True(t, decimal.NewFromInt(10).Equal(r.Percent))
}

func TestEditLastOperation(t *testing.T) {
	f := newFixture(t)
	f.ledger.hasLast = true
	f.ledger.lastRow = domain.LedgerRow{
		Row: 7, Date: "01.02.2024", Amount: decimal.NewFromInt(-700), Wallet: "Касса",
	}

	f.command(t, "last")
	f.press(t, domain.Act(domain.ActEditAmount))
	f.typeText(t, "800")

	require.Len(t, f.ledger.patches, 1)
	require.NotNil(t, f.ledger.patches[0].Amount)
	require.True(t, decimal.NewFromInt(-800).Equal(*f.ledger.patches[0].Amount),
		"outflow sign preserved on amount edit, got %s", f.ledger.patches[0].Amount)
}

func TestBackFromTransferMemoReturnsToAmount(t *testing.T) {
	f := newFixture(t)

	f.press(t, domain.Act(domain.ActAddOperation))
	f.press(t, domain.Act(domain.ActDateToday))
	f.press(t, domain.Act(domain.ActTypeTransfer))
	f.press(t, domain.ActIdx(domain.ActPick, 0)) // from
	f.press(t, domain.ActIdx(domain.ActPick, 0)) // to
	f.typeText(t, "500")

	s, ok := f.store.Get(testUser)
	require.True(t, ok)
	require.Equal(t, StateMemo, s.State)

	f.press(t, domain.Act(domain.ActBack))
	s, ok = f.store.Get(testUser)
	require.True(t, ok)
	require.Equal(t, StateAmount, s.State, "a transfer has no counterparty step")
	require.Contains(t, f.sender.last(t).Text, "сумму")
}

func TestLastReadsJournalAfterCommit(t *testing.T) {
	f := newFixture(t)

	f.typeText(t, "5000 Сбербанк")
	f.press(t, domain.ActIdx(domain.ActPick, 0))
	f.press(t, domain.Act(domain.ActConfirm))
	require.Len(t, f.jrnl.entries, 1)
	require.Equal(t, 2, f.jrnl.entries[0].Rows[0].Row, "commit must journal the register row it wrote")

	// the register fake has no last row: only the journal can answer
	f.command(t, "last")
	require.Contains(t, f.sender.last(t).Text, "Последняя операция")

	f.press(t, domain.Act(domain.ActEditAmount))
	f.typeText(t, "6000")
	require.Equal(t, []int{2}, f.ledger.patchRows, "edit must target the journaled row")
}

func TestButtonPressEditsPromptInPlace(t *testing.T) {
	f := newFixture(t)

	f.pressMsg(t, domain.Act(domain.ActAddOperation), 11)
	require.Equal(t, 11, f.sender.last(t).MsgID, "prompt replaces the pressed message")

	f.pressMsg(t, domain.Act(domain.ActDateToday), 11)
	require.Equal(t, 11, f.sender.last(t).MsgID)

	f.pressMsg(t, domain.Act(domain.ActTypeInflow), 11)
	f.pressMsg(t, domain.ActIdx(domain.ActPick, 0), 11)
	f.pressMsg(t, domain.ActIdx(domain.ActPick, 0), 11)
	f.typeText(t, "100")
	require.Equal(t, 0, f.sender.last(t).MsgID, "a typed message gets a fresh prompt")
}

func TestUnknownTextShowsHelp(t *testing.T) {
	f := newFixture(t)
	f.typeText(t, "как дела?")
	require.Contains(t, f.sender.last(t).Text, "Быстрый ввод")
}
