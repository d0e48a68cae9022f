package dialog

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ivmorgun/cashbot/internal/domain"
	"github.com/ivmorgun/cashbot/internal/format"
	"github.com/ivmorgun/cashbot/internal/journal"
	"github.com/ivmorgun/cashbot/internal/parse"
	"github.com/ivmorgun/cashbot/internal/services/funds"
	"github.com/ivmorgun/cashbot/internal/services/sheets"
	"github.com/ivmorgun/cashbot/internal/telegram"
)

// ledger is the slice of the access layer the dialog consumes.
type ledger interface {
	ListWallets(ctx context.Context) ([]string, error)
	ListCategoriesByUsage(ctx context.Context, group domain.CategoryGroup, excludeTechnical bool) ([]string, error)
	DefaultDirection(ctx context.Context) (string, error)
	AppendOperation(ctx context.Context, op domain.CashOperation) (int, error)
	AppendTransfer(ctx context.Context, t domain.TransferOperation) (outRow, inRow int, err error)
	Balances(ctx context.Context, useCache bool) (domain.Balances, error)
	OperationsByDate(ctx context.Context, date string) ([]domain.LedgerRow, error)
	LastOperation(ctx context.Context) (domain.LedgerRow, bool, error)
	UpdateOperation(ctx context.Context, sheetRow int, patch sheets.OperationPatch) error
	MonthSummary(ctx context.Context, month int) (domain.Summary, error)
	RangeSummary(ctx context.Context, from, to string) (domain.Summary, error)
	FreeWalletSlots(ctx context.Context) ([]domain.WalletSlot, error)
	AddWallet(ctx context.Context, slot domain.WalletSlot, name string, startBalance decimal.Decimal) error
}

type distributor interface {
	Distribute(ctx context.Context, date string) (funds.Result, error)
}

type ruleStore interface {
	Rules() []domain.FundRule
	Add(rule domain.FundRule) error
	Update(idx int, rule domain.FundRule) error
	Delete(idx int) error
}

type opJournal interface {
	Append(entry journal.Entry) error
	Last() (journal.Entry, bool, error)
}

const (
	msgExpired     = "Сессия устарела или операция уже завершена. Начните заново: /start"
	msgCancelled   = "Отменено."
	msgTryAgain    = "Не получилось обратиться к таблице, попробуйте ещё раз чуть позже."
	msgHelp        = "Я записываю операции в таблицу ДДС.\n\n" +
		"Быстрый ввод одним сообщением:\n" +
		"«5000 Сбербанк (ИП Иванов) за услуги» — поступление\n" +
		"«минус 700 Касса аренда» — выбытие\n" +
		"«перевод 5000 Сбербанк Касса» — перевод\n\n" +
		"Команды: /add /balance /funds /report /settings /last /cancel"
	msgChooseDate  = "Выберите дату операции или введите её в формате ДД.ММ.ГГГГ:"
	msgChooseType  = "Выберите тип операции:"
	msgEnterAmount = "Введите сумму:"
)

// Machine drives every user dialog: guided entry, fast path, balance,
// fund distribution, reports, settings. It is the single producer of
// chat-visible text; lower layers raise typed failures.
type Machine struct {
	sender   telegram.Sender
	ledger   ledger
	funds    distributor
	rules    ruleStore
	journal  opJournal
	sessions Repo
	lg       *zap.Logger
}

func NewMachine(sender telegram.Sender, l ledger, d distributor, rules ruleStore, j opJournal, sessions Repo, lg *zap.Logger) *Machine {
	if sessions == nil {
		sessions = NewMemoryStore(DefaultSessionTTL)
	}
	return &Machine{
		sender:   sender,
		ledger:   l,
		funds:    d,
		rules:    rules,
		journal:  j,
		sessions: sessions,
		lg:       lg,
	}
}

func (m *Machine) reply(ctx context.Context, chatID int64, text string, kb domain.Keyboard) {
	if err := m.sender.Send(ctx, chatID, text, kb); err != nil {
		m.lg.Error("send failed", zap.Int64("chat", chatID), zap.Error(err))
	}
}

// replyTo rewrites the prompt message in place when the step was driven by
// a button press; msgID zero (slash command, typed text) gets a fresh
// message. An edit failure falls back to sending: the original message may
// have been deleted.
func (m *Machine) replyTo(ctx context.Context, chatID int64, msgID int, text string, kb domain.Keyboard) {
	if msgID != 0 {
		if err := m.sender.Edit(ctx, chatID, msgID, text, kb); err == nil {
			return
		}
	}
	m.reply(ctx, chatID, text, kb)
}

// OnCommand handles slash commands.
func (m *Machine) OnCommand(ctx context.Context, ev telegram.Event) {
	switch ev.Command {
	case "start":
		m.sessions.Delete(ev.UserID)
		m.reply(ctx, ev.ChatID, "Привет! Что записываем?", mainMenuKeyboard())
	case "add":
		m.startGuided(ctx, ev.UserID, ev.ChatID, 0)
	case "balance":
		m.showBalance(ctx, ev.ChatID, 0)
	case "funds":
		m.runFunds(ctx, ev.ChatID, 0)
	case "report":
		m.reply(ctx, ev.ChatID, "Отчёт за какой период?", reportKeyboard())
	case "settings":
		m.openSettings(ctx, ev.UserID, ev.ChatID, 0)
	case "last":
		m.showLast(ctx, ev.UserID, ev.ChatID)
	case "cancel":
		m.cancel(ctx, ev.UserID, ev.ChatID, 0)
	default:
		m.reply(ctx, ev.ChatID, msgHelp, mainMenuKeyboard())
	}
}

// OnText routes a free-text message: into the waiting state of the live
// session, or through the fast-path grammar when no input is expected.
func (m *Machine) OnText(ctx context.Context, ev telegram.Event) {
	if s, ok := m.sessions.Get(ev.UserID); ok && wantsText(s.State) {
		s.MsgID = 0
		m.handleText(ctx, s, ev.Text)
		return
	}
	if parse.IsShortForm(ev.Text) {
		m.tryShortForm(ctx, ev)
		return
	}
	m.reply(ctx, ev.ChatID, msgHelp, mainMenuKeyboard())
}

// OnAction handles a button press.
func (m *Machine) OnAction(ctx context.Context, ev telegram.Event) {
	a := ev.Action

	// Entry-point actions work without a session.
	switch a.Kind {
	case domain.ActAddOperation:
		m.startGuided(ctx, ev.UserID, ev.ChatID, ev.MessageID)
		return
	case domain.ActShowBalance:
		m.showBalance(ctx, ev.ChatID, ev.MessageID)
		return
	case domain.ActRunFunds:
		m.runFunds(ctx, ev.ChatID, ev.MessageID)
		return
	case domain.ActOpenReport:
		m.replyTo(ctx, ev.ChatID, ev.MessageID, "Отчёт за какой период?", reportKeyboard())
		return
	case domain.ActReportToday:
		m.reportOperations(ctx, ev.ChatID, ev.MessageID, parse.Today())
		return
	case domain.ActReportWeek:
		m.reportRange(ctx, ev.ChatID, ev.MessageID, parse.DaysAgo(6), parse.Today())
		return
	case domain.ActReportMonth:
		m.reportMonth(ctx, ev.ChatID, ev.MessageID)
		return
	case domain.ActReportRange:
		s := &Session{UserID: ev.UserID, ChatID: ev.ChatID, State: StateReportRange, MsgID: ev.MessageID}
		m.sessions.Put(s)
		m.replyTo(ctx, s.ChatID, s.MsgID, "Введите период: ДД.ММ.ГГГГ - ДД.ММ.ГГГГ", domain.Keyboard{}.Row(navRow(false)...))
		return
	case domain.ActOpenSettings:
		m.openSettings(ctx, ev.UserID, ev.ChatID, ev.MessageID)
		return
	case domain.ActCancel, domain.ActDecline:
		m.cancel(ctx, ev.UserID, ev.ChatID, ev.MessageID)
		return
	}

	s, ok := m.sessions.Get(ev.UserID)
	if !ok {
		m.reply(ctx, ev.ChatID, msgExpired, mainMenuKeyboard())
		return
	}
	s.ChatID = ev.ChatID
	s.MsgID = ev.MessageID

	if a.Kind == domain.ActBack {
		m.goBack(ctx, s)
		return
	}
	m.handleAction(ctx, s, a)
}

// --- guided entry ---

func (m *Machine) startGuided(ctx context.Context, userID, chatID int64, msgID int) {
	s := &Session{UserID: userID, ChatID: chatID, State: StateDate, MsgID: msgID}
	m.sessions.Put(s)
	m.replyTo(ctx, chatID, msgID, msgChooseDate, dateKeyboard())
}

func (m *Machine) cancel(ctx context.Context, userID, chatID int64, msgID int) {
	m.sessions.Delete(userID)
	m.replyTo(ctx, chatID, msgID, msgCancelled, mainMenuKeyboard())
}

// goBack moves to the predecessor state and redisplays it; the draft keeps
// everything entered so far.
func (m *Machine) goBack(ctx context.Context, s *Session) {
	s.State = prev(s.State, s.Draft.Kind)
	s.Draft.Page = 0
	m.show(ctx, s)
}

// show redisplays the current state.
func (m *Machine) show(ctx context.Context, s *Session) {
	m.sessions.Put(s)
	switch s.State {
	case StateDate:
		m.replyTo(ctx, s.ChatID, s.MsgID, msgChooseDate, dateKeyboard())
	case StateType:
		m.replyTo(ctx, s.ChatID, s.MsgID, msgChooseType, typeKeyboard())
	case StateCategory:
		m.showCategories(ctx, s)
	case StateWallet, StateTransferFrom, StateTransferTo:
		m.showWallets(ctx, s)
	case StateAmount:
		m.replyTo(ctx, s.ChatID, s.MsgID, msgEnterAmount, domain.Keyboard{}.Row(navRow(true)...))
	case StateCounterparty:
		m.replyTo(ctx, s.ChatID, s.MsgID, "Контрагент:", skipKeyboard())
	case StateMemo:
		m.replyTo(ctx, s.ChatID, s.MsgID, "Назначение платежа:", skipKeyboard())
	case StateConfirm:
		m.replyTo(ctx, s.ChatID, s.MsgID, format.Confirm(s.Draft), confirmKeyboard())
	case StateEditMenu:
		m.replyTo(ctx, s.ChatID, s.MsgID, "Что изменить?", editMenuKeyboard(s.Draft.Kind))
	case StateSettingsMenu:
		m.replyTo(ctx, s.ChatID, s.MsgID, "Настройки:", settingsKeyboard())
	case StateRulesList:
		m.replyTo(ctx, s.ChatID, s.MsgID, format.FundRules(m.rules.Rules()), rulesKeyboard(len(m.rules.Rules())))
	case StateRuleSource, StateRuleDestination:
		m.showRuleWallets(ctx, s)
	case StateRulePercent:
		m.replyTo(ctx, s.ChatID, s.MsgID, "Процент отчисления:", percentKeyboard())
	case StateSlotPick:
		m.replyTo(ctx, s.ChatID, s.MsgID, "Выберите свободный слот:", slotsKeyboard(s.Slots))
	case StateWalletName:
		m.replyTo(ctx, s.ChatID, s.MsgID, "Название нового кошелька:", domain.Keyboard{}.Row(navRow(true)...))
	case StateReportMenu:
		m.replyTo(ctx, s.ChatID, s.MsgID, "Отчёт за какой период?", reportKeyboard())
	default:
		m.replyTo(ctx, s.ChatID, s.MsgID, msgChooseDate, dateKeyboard())
	}
}

func (m *Machine) showCategories(ctx context.Context, s *Session) {
	opts, err := m.ledger.ListCategoriesByUsage(ctx, s.Draft.Kind.Group(), true)
	if err != nil {
		m.lg.Error("categories unavailable", zap.Error(err))
		m.replyTo(ctx, s.ChatID, s.MsgID, msgTryAgain, domain.Keyboard{}.Row(navRow(true)...))
		return
	}
	if len(opts) == 0 {
		m.sessions.Delete(s.UserID)
		m.replyTo(ctx, s.ChatID, s.MsgID, "В справочнике нет статей для этого типа операции. Добавьте статьи в таблицу.", mainMenuKeyboard())
		return
	}
	s.Options = opts
	s.State = StateCategory
	m.sessions.Put(s)
	m.replyTo(ctx, s.ChatID, s.MsgID, "Выберите статью:", listKeyboard(opts, s.Draft.Page, true))
}

func (m *Machine) showWallets(ctx context.Context, s *Session) {
	opts, err := m.ledger.ListWallets(ctx)
	if err != nil {
		m.lg.Error("wallets unavailable", zap.Error(err))
		m.replyTo(ctx, s.ChatID, s.MsgID, msgTryAgain, domain.Keyboard{}.Row(navRow(true)...))
		return
	}
	title := "Выберите кошелёк:"
	if s.State == StateTransferFrom {
		title = "Откуда переводим?"
	}
	if s.State == StateTransferTo {
		title = "Куда переводим?"
		filtered := opts[:0:0]
		for _, w := range opts {
			if w != s.Draft.WalletFrom {
				filtered = append(filtered, w)
			}
		}
		opts = filtered
	}
	if len(opts) == 0 {
		m.sessions.Delete(s.UserID)
		m.replyTo(ctx, s.ChatID, s.MsgID, "В таблице не настроены кошельки.", mainMenuKeyboard())
		return
	}
	s.Options = opts
	m.sessions.Put(s)
	m.replyTo(ctx, s.ChatID, s.MsgID, title, listKeyboard(opts, s.Draft.Page, true))
}

func (m *Machine) handleAction(ctx context.Context, s *Session, a domain.Action) {
	// Pagination is a sub-transition: the logical state does not change.
	switch a.Kind {
	case domain.ActPageNext:
		s.Draft.Page++
		m.show(ctx, s)
		return
	case domain.ActPagePrev:
		if s.Draft.Page > 0 {
			s.Draft.Page--
		}
		m.show(ctx, s)
		return
	}

	switch s.State {
	case StateDate:
		switch a.Kind {
		case domain.ActDateToday:
			s.Draft.Date = parse.Today()
		case domain.ActDatePreset:
			s.Draft.Date = parse.DaysAgo(a.Index)
		default:
			m.show(ctx, s)
			return
		}
		s.State = StateType
		m.show(ctx, s)

	case StateType:
		switch a.Kind {
		case domain.ActTypeInflow:
			s.Draft.Kind = domain.KindInflow
		case domain.ActTypeOutflow:
			s.Draft.Kind = domain.KindOutflow
		case domain.ActTypeTransfer:
			s.Draft.Kind = domain.KindTransfer
			s.State = StateTransferFrom
			s.Draft.Page = 0
			m.startTransfer(ctx, s)
			return
		default:
			m.show(ctx, s)
			return
		}
		s.Draft.Page = 0
		m.showCategories(ctx, s)

	case StateCategory:
		if a.Kind != domain.ActPick || a.Index < 0 || a.Index >= len(s.Options) {
			m.show(ctx, s)
			return
		}
		s.Draft.Category = s.Options[a.Index]
		// fast-path drafts already carry wallet and amount
		if s.Draft.Wallet != "" && s.Draft.Amount.IsPositive() {
			s.State = StateConfirm
		} else {
			s.State = StateWallet
		}
		s.Draft.Page = 0
		m.show(ctx, s)

	case StateWallet:
		if a.Kind != domain.ActPick || a.Index < 0 || a.Index >= len(s.Options) {
			m.show(ctx, s)
			return
		}
		s.Draft.Wallet = s.Options[a.Index]
		s.State = StateAmount
		m.show(ctx, s)

	case StateTransferFrom:
		if a.Kind != domain.ActPick || a.Index < 0 || a.Index >= len(s.Options) {
			m.show(ctx, s)
			return
		}
		s.Draft.WalletFrom = s.Options[a.Index]
		s.State = StateTransferTo
		s.Draft.Page = 0
		m.show(ctx, s)

	case StateTransferTo:
		if a.Kind != domain.ActPick || a.Index < 0 || a.Index >= len(s.Options) {
			m.show(ctx, s)
			return
		}
		s.Draft.WalletTo = s.Options[a.Index]
		s.State = StateAmount
		m.show(ctx, s)

	case StateCounterparty:
		if a.Kind == domain.ActSkip {
			s.State = StateMemo
			m.show(ctx, s)
			return
		}
		m.show(ctx, s)

	case StateMemo:
		if a.Kind == domain.ActSkip {
			s.State = StateConfirm
			m.show(ctx, s)
			return
		}
		m.show(ctx, s)

	case StateConfirm:
		switch a.Kind {
		case domain.ActConfirm:
			m.commit(ctx, s)
		case domain.ActEditMenu:
			s.State = StateEditMenu
			m.show(ctx, s)
		default:
			m.show(ctx, s)
		}

	case StateEditMenu:
		m.handleEditMenu(ctx, s, a)

	case StateEditCategory:
		if a.Kind != domain.ActPick || a.Index < 0 || a.Index >= len(s.Options) {
			m.show(ctx, s)
			return
		}
		s.Draft.Category = s.Options[a.Index]
		s.State = StateConfirm
		m.show(ctx, s)

	case StateEditWallet:
		if a.Kind != domain.ActPick || a.Index < 0 || a.Index >= len(s.Options) {
			m.show(ctx, s)
			return
		}
		s.Draft.Wallet = s.Options[a.Index]
		s.State = StateConfirm
		m.show(ctx, s)

	case StateSettingsMenu:
		m.handleSettingsMenu(ctx, s, a)

	case StateRulesList:
		m.handleRulesList(ctx, s, a)

	case StateRuleSource:
		if a.Kind != domain.ActPick || a.Index < 0 || a.Index >= len(s.Options) {
			m.show(ctx, s)
			return
		}
		s.RuleDraft.Source = s.Options[a.Index]
		s.State = StateRuleDestination
		s.Draft.Page = 0
		m.show(ctx, s)

	case StateRuleDestination:
		if a.Kind != domain.ActPick || a.Index < 0 || a.Index >= len(s.Options) {
			m.show(ctx, s)
			return
		}
		s.RuleDraft.Destination = s.Options[a.Index]
		s.State = StateRulePercent
		m.show(ctx, s)

	case StateRulePercent:
		switch a.Kind {
		case domain.ActRulePercent:
			m.saveRulePercent(ctx, s, a.Value)
		case domain.ActRulePercentCustom:
			s.State = StateRulePercentCustom
			m.sessions.Put(s)
			m.replyTo(ctx, s.ChatID, s.MsgID, "Введите процент (например 12,5):", domain.Keyboard{}.Row(navRow(true)...))
		default:
			m.show(ctx, s)
		}

	case StateSlotPick:
		if a.Kind != domain.ActSlotPick || a.Index < 0 || a.Index >= len(s.Slots) {
			m.show(ctx, s)
			return
		}
		s.SlotIdx = a.Index
		s.State = StateWalletName
		m.show(ctx, s)

	case StateLastMenu:
		m.handleLastMenu(ctx, s, a)

	default:
		m.show(ctx, s)
	}
}

func (m *Machine) startTransfer(ctx context.Context, s *Session) {
	wallets, err := m.ledger.ListWallets(ctx)
	if err != nil {
		m.lg.Error("wallets unavailable", zap.Error(err))
		m.replyTo(ctx, s.ChatID, s.MsgID, msgTryAgain, domain.Keyboard{}.Row(navRow(true)...))
		return
	}
	if len(wallets) < 2 {
		m.sessions.Delete(s.UserID)
		m.replyTo(ctx, s.ChatID, s.MsgID, "Для перевода нужно минимум два кошелька.", mainMenuKeyboard())
		return
	}
	m.show(ctx, s)
}

func (m *Machine) handleEditMenu(ctx context.Context, s *Session, a domain.Action) {
	switch a.Kind {
	case domain.ActEditAmount:
		s.State = StateEditAmount
		m.sessions.Put(s)
		m.replyTo(ctx, s.ChatID, s.MsgID, msgEnterAmount, domain.Keyboard{}.Row(navRow(true)...))
	case domain.ActEditCounterparty:
		s.State = StateEditCounterparty
		m.sessions.Put(s)
		m.replyTo(ctx, s.ChatID, s.MsgID, "Контрагент:", skipKeyboard())
	case domain.ActEditMemo:
		s.State = StateEditMemo
		m.sessions.Put(s)
		m.replyTo(ctx, s.ChatID, s.MsgID, "Назначение платежа:", skipKeyboard())
	case domain.ActEditCategory:
		opts, err := m.ledger.ListCategoriesByUsage(ctx, s.Draft.Kind.Group(), true)
		if err != nil || len(opts) == 0 {
			m.replyTo(ctx, s.ChatID, s.MsgID, msgTryAgain, editMenuKeyboard(s.Draft.Kind))
			return
		}
		s.Options = opts
		s.State = StateEditCategory
		s.Draft.Page = 0
		m.sessions.Put(s)
		m.replyTo(ctx, s.ChatID, s.MsgID, "Выберите статью:", listKeyboard(opts, 0, true))
	case domain.ActEditWallet:
		opts, err := m.ledger.ListWallets(ctx)
		if err != nil || len(opts) == 0 {
			m.replyTo(ctx, s.ChatID, s.MsgID, msgTryAgain, editMenuKeyboard(s.Draft.Kind))
			return
		}
		s.Options = opts
		s.State = StateEditWallet
		s.Draft.Page = 0
		m.sessions.Put(s)
		m.replyTo(ctx, s.ChatID, s.MsgID, "Выберите кошелёк:", listKeyboard(opts, 0, true))
	default:
		m.show(ctx, s)
	}
}

// handleText feeds a free-text message into the waiting state.
func (m *Machine) handleText(ctx context.Context, s *Session, text string) {
	switch s.State {
	case StateDate:
		day, err := parse.Day(text)
		if err != nil {
			m.replyTo(ctx, s.ChatID, s.MsgID, "Не похоже на дату. Формат: ДД.ММ.ГГГГ", dateKeyboard())
			return
		}
		s.Draft.Date = day
		s.State = StateType
		m.show(ctx, s)

	case StateAmount, StateEditAmount:
		amount, err := parse.Amount(text)
		if err == nil {
			err = s.Draft.SetAmount(amount)
		}
		if err != nil {
			m.replyTo(ctx, s.ChatID, s.MsgID, "Нужна положительная сумма, например 1 250,50", domain.Keyboard{}.Row(navRow(true)...))
			return
		}
		if s.State == StateEditAmount {
			s.State = StateConfirm
		} else if s.Draft.Kind == domain.KindTransfer {
			s.State = StateMemo
		} else {
			s.State = StateCounterparty
		}
		m.show(ctx, s)

	case StateCounterparty, StateEditCounterparty:
		s.Draft.Counterparty = text
		if s.State == StateEditCounterparty {
			s.State = StateConfirm
		} else {
			s.State = StateMemo
		}
		m.show(ctx, s)

	case StateMemo, StateEditMemo:
		s.Draft.Memo = text
		s.State = StateConfirm
		m.show(ctx, s)

	case StateRulePercentCustom:
		m.saveRulePercent(ctx, s, text)

	case StateWalletName:
		if text == "" {
			m.replyTo(ctx, s.ChatID, s.MsgID, "Название не может быть пустым.", domain.Keyboard{}.Row(navRow(true)...))
			return
		}
		s.WalletName = text
		s.State = StateWalletBalance
		m.sessions.Put(s)
		m.replyTo(ctx, s.ChatID, s.MsgID, "Начальный остаток (или 0):", domain.Keyboard{}.Row(navRow(true)...))

	case StateWalletBalance:
		m.finishAddWallet(ctx, s, text)

	case StateReportRange:
		from, to, err := parse.DayRange(text)
		if err != nil {
			m.replyTo(ctx, s.ChatID, s.MsgID, "Формат периода: ДД.ММ.ГГГГ - ДД.ММ.ГГГГ", domain.Keyboard{}.Row(navRow(false)...))
			return
		}
		m.sessions.Delete(s.UserID)
		m.reportRange(ctx, s.ChatID, 0, from, to)

	case StateLastAmount:
		amount, err := parse.Amount(text)
		if err != nil {
			m.replyTo(ctx, s.ChatID, s.MsgID, "Нужна положительная сумма.", domain.Keyboard{}.Row(navRow(false)...))
			return
		}
		if s.Draft.Kind == domain.KindOutflow {
			amount = amount.Neg()
		}
		m.patchLast(ctx, s, sheets.OperationPatch{Amount: &amount})

	case StateLastCounterparty:
		m.patchLast(ctx, s, sheets.OperationPatch{Counterparty: &text})

	case StateLastMemo:
		m.patchLast(ctx, s, sheets.OperationPatch{Memo: &text})

	default:
		m.show(ctx, s)
	}
}

// --- fast path ---

func (m *Machine) tryShortForm(ctx context.Context, ev telegram.Event) {
	wallets, err := m.ledger.ListWallets(ctx)
	if err != nil {
		m.lg.Error("wallets unavailable", zap.Error(err))
		m.reply(ctx, ev.ChatID, msgTryAgain, nil)
		return
	}
	sf, ok := parse.ShortFormDraft(ev.Text, wallets)
	if !ok {
		m.reply(ctx, ev.ChatID, "Не разобрал сообщение.\n\n"+msgHelp, mainMenuKeyboard())
		return
	}
	s := &Session{
		UserID: ev.UserID,
		ChatID: ev.ChatID,
		Draft: domain.Draft{
			Kind:         sf.Kind,
			Date:         parse.Today(),
			Amount:       sf.Amount,
			Wallet:       sf.Wallet,
			WalletFrom:   sf.WalletFrom,
			WalletTo:     sf.WalletTo,
			Counterparty: sf.Counterparty,
			Memo:         sf.Memo,
		},
	}
	if sf.Kind == domain.KindTransfer {
		s.State = StateConfirm
		m.show(ctx, s)
		return
	}
	// jump straight to category selection, everything else is collected
	m.sessions.Put(s)
	m.showCategories(ctx, s)
}

// --- commit ---

func (m *Machine) commit(ctx context.Context, s *Session) {
	direction, err := m.ledger.DefaultDirection(ctx)
	if err != nil {
		m.lg.Error("direction unavailable", zap.Error(err))
		m.replyTo(ctx, s.ChatID, s.MsgID, msgTryAgain, confirmKeyboard())
		return
	}

	// Clear the session first: a duplicate confirm press must hit the
	// expired fallback instead of re-submitting.
	m.sessions.Delete(s.UserID)

	var rows []domain.LedgerRow
	if s.Draft.Kind == domain.KindTransfer {
		t, err := s.Draft.BuildTransfer(direction)
		if err != nil {
			m.replyTo(ctx, s.ChatID, s.MsgID, "Операция заполнена не до конца: "+err.Error(), mainMenuKeyboard())
			return
		}
		outRow, inRow, err := m.ledger.AppendTransfer(ctx, t)
		if err != nil {
			m.lg.Error("transfer append failed", zap.Error(err))
			m.replyTo(ctx, s.ChatID, s.MsgID, "Не удалось записать перевод: "+err.Error(), mainMenuKeyboard())
			return
		}
		out, in := t.Rows("", "")
		out.Row, in.Row = outRow, inRow
		rows = []domain.LedgerRow{out, in}
	} else {
		op, err := s.Draft.BuildCash(direction)
		if err != nil {
			m.replyTo(ctx, s.ChatID, s.MsgID, "Операция заполнена не до конца: "+err.Error(), mainMenuKeyboard())
			return
		}
		n, err := m.ledger.AppendOperation(ctx, op)
		if err != nil {
			m.lg.Error("operation append failed", zap.Error(err))
			m.replyTo(ctx, s.ChatID, s.MsgID, "Не удалось записать операцию: "+err.Error(), mainMenuKeyboard())
			return
		}
		row := op.Row()
		row.Row = n
		rows = []domain.LedgerRow{row}
	}

	if err := m.journal.Append(journal.Entry{
		At:     time.Now(),
		UserID: s.UserID,
		Kind:   s.Draft.Kind.String(),
		Rows:   rows,
	}); err != nil {
		m.lg.Warn("journal append failed", zap.Error(err))
	}

	m.replyTo(ctx, s.ChatID, s.MsgID, "✅ Записано: "+format.Operation(rows[0]), mainMenuKeyboard())
}

// --- balance / funds / reports ---

func (m *Machine) showBalance(ctx context.Context, chatID int64, msgID int) {
	b, err := m.ledger.Balances(ctx, true)
	if err != nil {
		m.lg.Error("balances unavailable", zap.Error(err))
		m.replyTo(ctx, chatID, msgID, msgTryAgain, mainMenuKeyboard())
		return
	}
	m.replyTo(ctx, chatID, msgID, format.Balances(b), mainMenuKeyboard())
}

func (m *Machine) runFunds(ctx context.Context, chatID int64, msgID int) {
	res, err := m.funds.Distribute(ctx, parse.Today())
	switch {
	case errors.Is(err, funds.ErrNoActiveRules):
		m.replyTo(ctx, chatID, msgID, "Правила отчислений не настроены: ⚙️ Настройки → Правила отчислений.", mainMenuKeyboard())
	case errors.Is(err, funds.ErrNoInflow):
		m.replyTo(ctx, chatID, msgID, "Сегодня ещё не было поступлений, распределять нечего.", mainMenuKeyboard())
	case errors.Is(err, funds.ErrAlreadyDistributed):
		m.replyTo(ctx, chatID, msgID, "Фонды за сегодня уже распределены, нового ничего нет.", mainMenuKeyboard())
	case err != nil:
		m.lg.Error("fund distribution failed", zap.Error(err))
		m.replyTo(ctx, chatID, msgID, msgTryAgain, mainMenuKeyboard())
	default:
		m.replyTo(ctx, chatID, msgID, format.FundResult(res), mainMenuKeyboard())
	}
}

func (m *Machine) reportOperations(ctx context.Context, chatID int64, msgID int, date string) {
	rows, err := m.ledger.OperationsByDate(ctx, date)
	if err != nil {
		m.lg.Error("daily report failed", zap.Error(err))
		m.replyTo(ctx, chatID, msgID, msgTryAgain, mainMenuKeyboard())
		return
	}
	m.replyTo(ctx, chatID, msgID, format.Operations(date, rows), mainMenuKeyboard())
}

func (m *Machine) reportRange(ctx context.Context, chatID int64, msgID int, from, to string) {
	s, err := m.ledger.RangeSummary(ctx, from, to)
	if err != nil {
		m.lg.Error("range report failed", zap.Error(err))
		m.replyTo(ctx, chatID, msgID, msgTryAgain, mainMenuKeyboard())
		return
	}
	m.replyTo(ctx, chatID, msgID, format.Summary("Отчёт за "+from+" — "+to, s), mainMenuKeyboard())
}

func (m *Machine) reportMonth(ctx context.Context, chatID int64, msgID int) {
	month := int(time.Now().Month())
	s, err := m.ledger.MonthSummary(ctx, month)
	if errors.Is(err, sheets.ErrNoSummary) {
		m.replyTo(ctx, chatID, msgID, "В сводном листе нет данных за этот месяц.", mainMenuKeyboard())
		return
	}
	if err != nil {
		m.lg.Error("month report failed", zap.Error(err))
		m.replyTo(ctx, chatID, msgID, msgTryAgain, mainMenuKeyboard())
		return
	}
	m.replyTo(ctx, chatID, msgID, format.Summary("Отчёт за текущий месяц", s), mainMenuKeyboard())
}

// --- settings ---

func (m *Machine) openSettings(ctx context.Context, userID, chatID int64, msgID int) {
	s := &Session{UserID: userID, ChatID: chatID, State: StateSettingsMenu, MsgID: msgID}
	m.sessions.Put(s)
	m.replyTo(ctx, chatID, msgID, "Настройки:", settingsKeyboard())
}

func (m *Machine) handleSettingsMenu(ctx context.Context, s *Session, a domain.Action) {
	switch a.Kind {
	case domain.ActSettingsFunds:
		s.State = StateRulesList
		m.show(ctx, s)
	case domain.ActSettingsAddWallet:
		slots, err := m.ledger.FreeWalletSlots(ctx)
		if err != nil {
			m.lg.Error("free slots unavailable", zap.Error(err))
			m.replyTo(ctx, s.ChatID, s.MsgID, msgTryAgain, settingsKeyboard())
			return
		}
		if len(slots) == 0 {
			m.sessions.Delete(s.UserID)
			m.replyTo(ctx, s.ChatID, s.MsgID, "Свободных слотов для кошельков не осталось.", mainMenuKeyboard())
			return
		}
		s.Slots = slots
		s.State = StateSlotPick
		m.show(ctx, s)
	default:
		m.show(ctx, s)
	}
}

func (m *Machine) handleRulesList(ctx context.Context, s *Session, a domain.Action) {
	rules := m.rules.Rules()
	switch a.Kind {
	case domain.ActRuleAdd:
		s.RuleIdx = -1
		s.RuleDraft = domain.FundRule{}
		m.startRuleWallets(ctx, s)
	case domain.ActRuleEdit:
		if a.Index < 0 || a.Index >= len(rules) {
			m.show(ctx, s)
			return
		}
		s.RuleIdx = a.Index
		s.RuleDraft = rules[a.Index]
		m.startRuleWallets(ctx, s)
	case domain.ActRuleDelete:
		if a.Index < 0 || a.Index >= len(rules) {
			m.show(ctx, s)
			return
		}
		if err := m.rules.Delete(a.Index); err != nil {
			m.lg.Error("rule delete failed", zap.Error(err))
			m.replyTo(ctx, s.ChatID, s.MsgID, "Не удалось сохранить правила: "+err.Error(), nil)
			return
		}
		m.show(ctx, s)
	default:
		m.show(ctx, s)
	}
}

func (m *Machine) startRuleWallets(ctx context.Context, s *Session) {
	s.State = StateRuleSource
	s.Draft.Page = 0
	m.show(ctx, s)
}

func (m *Machine) showRuleWallets(ctx context.Context, s *Session) {
	opts, err := m.ledger.ListWallets(ctx)
	if err != nil {
		m.lg.Error("wallets unavailable", zap.Error(err))
		m.replyTo(ctx, s.ChatID, s.MsgID, msgTryAgain, domain.Keyboard{}.Row(navRow(true)...))
		return
	}
	title := "Кошелёк-источник:"
	if s.State == StateRuleDestination {
		title = "Кошелёк-фонд (куда отчисляем):"
	}
	s.Options = opts
	m.sessions.Put(s)
	m.replyTo(ctx, s.ChatID, s.MsgID, title, listKeyboard(opts, s.Draft.Page, true))
}

func (m *Machine) saveRulePercent(ctx context.Context, s *Session, text string) {
	percent, err := parse.Number(text)
	if err != nil || !percent.IsPositive() || percent.GreaterThan(decimal.NewFromInt(100)) {
		m.replyTo(ctx, s.ChatID, s.MsgID, "Процент должен быть числом от 0 до 100.", percentKeyboard())
		return
	}
	s.RuleDraft.Percent = percent

	var saveErr error
	if s.RuleIdx < 0 {
		saveErr = m.rules.Add(s.RuleDraft)
	} else {
		saveErr = m.rules.Update(s.RuleIdx, s.RuleDraft)
	}
	if saveErr != nil {
		m.lg.Error("rule save failed", zap.Error(saveErr))
		m.replyTo(ctx, s.ChatID, s.MsgID, "Не удалось сохранить правило: "+saveErr.Error(), nil)
		return
	}
	s.State = StateRulesList
	m.show(ctx, s)
}

func (m *Machine) finishAddWallet(ctx context.Context, s *Session, text string) {
	start := decimal.Zero
	if text != "" && text != "0" {
		v, err := parse.Number(text)
		if err != nil {
			m.replyTo(ctx, s.ChatID, s.MsgID, "Нужно число, например 10 000 (или 0).", domain.Keyboard{}.Row(navRow(true)...))
			return
		}
		start = v
	}
	slot := s.Slots[s.SlotIdx]
	name := s.WalletName
	m.sessions.Delete(s.UserID)

	if err := m.ledger.AddWallet(ctx, slot, name, start); err != nil {
		m.lg.Error("add wallet failed", zap.String("wallet", name), zap.Error(err))
		m.replyTo(ctx, s.ChatID, s.MsgID, "Кошелёк добавлен не полностью: "+err.Error()+
			"\nДопишите оставшиеся шаги в таблице вручную или повторите.", mainMenuKeyboard())
		return
	}
	m.replyTo(ctx, s.ChatID, s.MsgID, "✅ Кошелёк «"+name+"» добавлен.", mainMenuKeyboard())
}

// --- edit last committed row ---

// showLast shows the most recently committed register row. The local
// journal answers first; the register is read only when the journal has
// nothing usable (fresh install, entries rotated away).
func (m *Machine) showLast(ctx context.Context, userID, chatID int64) {
	row, ok := m.lastFromJournal()
	if !ok {
		var err error
		row, ok, err = m.ledger.LastOperation(ctx)
		if err != nil {
			m.lg.Error("last operation unavailable", zap.Error(err))
			m.reply(ctx, chatID, msgTryAgain, mainMenuKeyboard())
			return
		}
		if !ok {
			m.reply(ctx, chatID, "В реестре ещё нет операций.", mainMenuKeyboard())
			return
		}
	}
	s := &Session{UserID: userID, ChatID: chatID, State: StateLastMenu, LastRow: row.Row}
	if !row.Inflow() {
		s.Draft.Kind = domain.KindOutflow
	} else {
		s.Draft.Kind = domain.KindInflow
	}
	m.sessions.Put(s)
	m.reply(ctx, chatID, "Последняя операция:\n"+format.Operation(row), lastMenuKeyboard())
}

// lastFromJournal returns the most recent journaled register row. Entries
// without a recorded row number cannot serve an edit and are skipped.
func (m *Machine) lastFromJournal() (domain.LedgerRow, bool) {
	e, ok, err := m.journal.Last()
	if err != nil {
		m.lg.Warn("journal read failed", zap.Error(err))
		return domain.LedgerRow{}, false
	}
	if !ok || len(e.Rows) == 0 {
		return domain.LedgerRow{}, false
	}
	row := e.Rows[len(e.Rows)-1]
	if row.Row == 0 {
		return domain.LedgerRow{}, false
	}
	return row, true
}

func (m *Machine) handleLastMenu(ctx context.Context, s *Session, a domain.Action) {
	prompt := map[domain.ActionKind]string{
		domain.ActEditAmount:       msgEnterAmount,
		domain.ActEditCounterparty: "Контрагент:",
		domain.ActEditMemo:         "Назначение платежа:",
	}
	next := map[domain.ActionKind]State{
		domain.ActEditAmount:       StateLastAmount,
		domain.ActEditCounterparty: StateLastCounterparty,
		domain.ActEditMemo:         StateLastMemo,
	}
	st, ok := next[a.Kind]
	if !ok {
		m.show(ctx, s)
		return
	}
	s.State = st
	m.sessions.Put(s)
	m.replyTo(ctx, s.ChatID, s.MsgID, prompt[a.Kind], domain.Keyboard{}.Row(navRow(false)...))
}

func (m *Machine) patchLast(ctx context.Context, s *Session, patch sheets.OperationPatch) {
	row := s.LastRow
	m.sessions.Delete(s.UserID)
	if err := m.ledger.UpdateOperation(ctx, row, patch); err != nil {
		m.lg.Error("last operation update failed", zap.Error(err))
		m.replyTo(ctx, s.ChatID, s.MsgID, "Не удалось изменить операцию: "+err.Error(), mainMenuKeyboard())
		return
	}
	m.replyTo(ctx, s.ChatID, s.MsgID, "✅ Операция обновлена.", mainMenuKeyboard())
}
