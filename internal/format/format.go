// Package format renders domain values into chat-visible text.
package format

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ivmorgun/cashbot/internal/domain"
	"github.com/ivmorgun/cashbot/internal/services/funds"
)

// Amount renders a money value in the local convention: space-grouped
// thousands, comma decimal separator, two decimal places ("63 722,00").
func Amount(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	parts := strings.SplitN(s, ".", 2)
	intPart, fracPart := parts[0], parts[1]

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
		if len(intPart) > lead {
			b.WriteByte(' ')
		}
	}
	for i := lead; i < len(intPart); i += 3 {
		b.WriteString(intPart[i : i+3])
		if i+3 < len(intPart) {
			b.WriteByte(' ')
		}
	}
	b.WriteByte(',')
	b.WriteString(fracPart)
	return b.String()
}

// Confirm renders the confirmation card of a draft.
func Confirm(d domain.Draft) string {
	var b strings.Builder
	b.WriteString("Проверьте операцию:\n")
	fmt.Fprintf(&b, "Тип: %s\n", d.Kind)
	fmt.Fprintf(&b, "Дата: %s\n", d.Date)
	fmt.Fprintf(&b, "Сумма: %s\n", Amount(d.Amount))
	if d.Kind == domain.KindTransfer {
		fmt.Fprintf(&b, "Откуда: %s\n", d.WalletFrom)
		fmt.Fprintf(&b, "Куда: %s\n", d.WalletTo)
	} else {
		fmt.Fprintf(&b, "Статья: %s\n", d.Category)
		fmt.Fprintf(&b, "Кошелёк: %s\n", d.Wallet)
	}
	if d.Counterparty != "" {
		fmt.Fprintf(&b, "Контрагент: %s\n", d.Counterparty)
	}
	if d.Memo != "" {
		fmt.Fprintf(&b, "Назначение: %s\n", d.Memo)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Balances renders the balance snapshot, working wallets first, fund
// wallets in their own section.
func Balances(b domain.Balances) string {
	main, fundWallets := b.Split()
	var sb strings.Builder
	sb.WriteString("Остатки по кошелькам:\n")
	for _, wb := range main {
		fmt.Fprintf(&sb, "%s: %s\n", wb.Wallet, Amount(wb.Amount))
	}
	if len(fundWallets) > 0 {
		sb.WriteString("\nФонды:\n")
		for _, wb := range fundWallets {
			fmt.Fprintf(&sb, "%s: %s\n", wb.Wallet, Amount(wb.Amount))
		}
	}
	fmt.Fprintf(&sb, "\nИтого: %s", Amount(b.Total))
	return sb.String()
}

// FundResult renders the outcome of a distribution pass.
func FundResult(r funds.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Распределение по фондам за %s\n", r.Date)
	fmt.Fprintf(&b, "Выручка за день: %s\n", Amount(r.Inflow))
	if r.AlreadyDone.IsPositive() {
		fmt.Fprintf(&b, "Уже отчислено ранее: %s\n", Amount(r.AlreadyDone))
	}
	fmt.Fprintf(&b, "К распределению: %s\n\n", Amount(r.NewRevenue))
	for _, t := range r.Transfers {
		if t.Err != nil {
			fmt.Fprintf(&b, "❌ %s: %s — не записано, попробуйте ещё раз\n", t.Destination, Amount(t.Amount))
			continue
		}
		fmt.Fprintf(&b, "✅ %s: %s\n", t.Destination, Amount(t.Amount))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Summary renders a money report.
func Summary(title string, s domain.Summary) string {
	var b strings.Builder
	b.WriteString(title)
	b.WriteByte('\n')
	if s.Revenue != nil {
		fmt.Fprintf(&b, "Поступления: %s\n", Amount(*s.Revenue))
	}
	if s.Expenses != nil {
		fmt.Fprintf(&b, "Выбытия: %s\n", Amount(*s.Expenses))
	}
	fmt.Fprintf(&b, "Изменение денег: %s\n", Amount(s.Change))
	fmt.Fprintf(&b, "Остаток на начало: %s\n", Amount(s.StartBalance))
	fmt.Fprintf(&b, "Остаток на конец: %s", Amount(s.EndBalance))
	return b.String()
}

// Operation renders one committed register row.
func Operation(r domain.LedgerRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s  %s", r.Date, Amount(r.Amount), r.Wallet)
	if r.Category != "" {
		fmt.Fprintf(&b, "  (%s)", r.Category)
	}
	if r.Counterparty != "" {
		fmt.Fprintf(&b, "  %s", r.Counterparty)
	}
	if r.Memo != "" {
		fmt.Fprintf(&b, " — %s", r.Memo)
	}
	return b.String()
}

// Operations renders a day's register rows as a list.
func Operations(date string, rows []domain.LedgerRow) string {
	if len(rows) == 0 {
		return fmt.Sprintf("За %s операций нет.", date)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Операции за %s:\n", date)
	for _, r := range rows {
		b.WriteString(Operation(r))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// FundRules renders the configured rule list for the settings flow.
func FundRules(rules []domain.FundRule) string {
	if len(rules) == 0 {
		return "Правила отчислений не настроены."
	}
	var b strings.Builder
	b.WriteString("Правила отчислений:\n")
	for i, r := range rules {
		fmt.Fprintf(&b, "%d. %s → %s: %s%%\n", i+1, r.Source, r.Destination, r.Percent.String())
	}
	return strings.TrimRight(b.String(), "\n")
}
