package dialog

import (
	"fmt"

	"github.com/ivmorgun/cashbot/internal/domain"
)

// pageSize caps option rows per keyboard; longer lists paginate.
const pageSize = 9

func btn(label string, a domain.Action) domain.Button {
	return domain.Button{Label: label, Action: a}
}

func navRow(withBack bool) []domain.Button {
	row := []domain.Button{}
	if withBack {
		row = append(row, btn("⬅️ Назад", domain.Act(domain.ActBack)))
	}
	return append(row, btn("❌ Отмена", domain.Act(domain.ActCancel)))
}

func mainMenuKeyboard() domain.Keyboard {
	return domain.Keyboard{}.
		Row(btn("➕ Добавить операцию", domain.Act(domain.ActAddOperation))).
		Row(btn("💰 Остатки", domain.Act(domain.ActShowBalance)),
			btn("🏦 Фонды", domain.Act(domain.ActRunFunds))).
		Row(btn("📊 Отчёт", domain.Act(domain.ActOpenReport)),
			btn("⚙️ Настройки", domain.Act(domain.ActOpenSettings)))
}

func dateKeyboard() domain.Keyboard {
	return domain.Keyboard{}.
		Row(btn("Сегодня", domain.Act(domain.ActDateToday)),
			btn("Вчера", domain.ActIdx(domain.ActDatePreset, 1))).
		Row(btn("2 дня назад", domain.ActIdx(domain.ActDatePreset, 2)),
			btn("3 дня назад", domain.ActIdx(domain.ActDatePreset, 3))).
		Row(navRow(false)...)
}

func typeKeyboard() domain.Keyboard {
	return domain.Keyboard{}.
		Row(btn("📈 Поступление", domain.Act(domain.ActTypeInflow)),
			btn("📉 Выбытие", domain.Act(domain.ActTypeOutflow))).
		Row(btn("🔁 Перевод", domain.Act(domain.ActTypeTransfer))).
		Row(navRow(true)...)
}

// listKeyboard renders one page of options as pick buttons. Indices are
// absolute so pagination never shifts the meaning of a stale button.
func listKeyboard(options []string, page int, withBack bool) domain.Keyboard {
	start := page * pageSize
	if start >= len(options) {
		start = 0
		page = 0
	}
	end := start + pageSize
	if end > len(options) {
		end = len(options)
	}
	kb := domain.Keyboard{}
	for i := start; i < end; i++ {
		kb = kb.Row(btn(options[i], domain.ActIdx(domain.ActPick, i)))
	}
	var pager []domain.Button
	if page > 0 {
		pager = append(pager, btn("⬅️", domain.Act(domain.ActPagePrev)))
	}
	if end < len(options) {
		pager = append(pager, btn("➡️", domain.Act(domain.ActPageNext)))
	}
	if len(pager) > 0 {
		kb = kb.Row(pager...)
	}
	return kb.Row(navRow(withBack)...)
}

func skipKeyboard() domain.Keyboard {
	return domain.Keyboard{}.
		Row(btn("Пропустить", domain.Act(domain.ActSkip))).
		Row(navRow(true)...)
}

func confirmKeyboard() domain.Keyboard {
	return domain.Keyboard{}.
		Row(btn("✅ Записать", domain.Act(domain.ActConfirm))).
		Row(btn("✏️ Изменить", domain.Act(domain.ActEditMenu)),
			btn("❌ Отмена", domain.Act(domain.ActDecline)))
}

func editMenuKeyboard(kind domain.Kind) domain.Keyboard {
	kb := domain.Keyboard{}.
		Row(btn("Сумма", domain.Act(domain.ActEditAmount)))
	if kind != domain.KindTransfer {
		kb = kb.Row(btn("Статья", domain.Act(domain.ActEditCategory)),
			btn("Кошелёк", domain.Act(domain.ActEditWallet)))
	}
	return kb.
		Row(btn("Контрагент", domain.Act(domain.ActEditCounterparty)),
			btn("Назначение", domain.Act(domain.ActEditMemo))).
		Row(navRow(true)...)
}

func settingsKeyboard() domain.Keyboard {
	return domain.Keyboard{}.
		Row(btn("🏦 Правила отчислений", domain.Act(domain.ActSettingsFunds))).
		Row(btn("➕ Добавить кошелёк", domain.Act(domain.ActSettingsAddWallet))).
		Row(navRow(false)...)
}

func rulesKeyboard(n int) domain.Keyboard {
	kb := domain.Keyboard{}
	for i := 0; i < n; i++ {
		kb = kb.Row(
			btn(fmt.Sprintf("✏️ %d", i+1), domain.ActIdx(domain.ActRuleEdit, i)),
			btn(fmt.Sprintf("🗑 %d", i+1), domain.ActIdx(domain.ActRuleDelete, i)))
	}
	return kb.
		Row(btn("➕ Добавить правило", domain.Act(domain.ActRuleAdd))).
		Row(navRow(true)...)
}

func percentKeyboard() domain.Keyboard {
	return domain.Keyboard{}.
		Row(btn("5%", domain.ActVal(domain.ActRulePercent, "5")),
			btn("10%", domain.ActVal(domain.ActRulePercent, "10")),
			btn("15%", domain.ActVal(domain.ActRulePercent, "15")),
			btn("20%", domain.ActVal(domain.ActRulePercent, "20"))).
		Row(btn("Другой процент", domain.Act(domain.ActRulePercentCustom))).
		Row(navRow(true)...)
}

func reportKeyboard() domain.Keyboard {
	return domain.Keyboard{}.
		Row(btn("Сегодня", domain.Act(domain.ActReportToday)),
			btn("Неделя", domain.Act(domain.ActReportWeek))).
		Row(btn("Месяц", domain.Act(domain.ActReportMonth)),
			btn("Период", domain.Act(domain.ActReportRange))).
		Row(navRow(false)...)
}

func slotsKeyboard(slots []domain.WalletSlot) domain.Keyboard {
	kb := domain.Keyboard{}
	for i, s := range slots {
		kb = kb.Row(btn(fmt.Sprintf("Слот %d", s.Position), domain.ActIdx(domain.ActSlotPick, i)))
	}
	return kb.Row(navRow(true)...)
}

func lastMenuKeyboard() domain.Keyboard {
	return domain.Keyboard{}.
		Row(btn("Сумма", domain.Act(domain.ActEditAmount)),
			btn("Контрагент", domain.Act(domain.ActEditCounterparty)),
			btn("Назначение", domain.Act(domain.ActEditMemo))).
		Row(navRow(false)...)
}
