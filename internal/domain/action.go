package domain

// ActionKind is the closed set of button actions the dialog understands.
// The transport layer serializes Action to opaque callback strings and back;
// nothing inside the core ever parses an encoded string.
type ActionKind string

const (
	ActDateToday  ActionKind = "date_today"
	ActDatePreset ActionKind = "date_preset" // Index = days ago

	ActTypeInflow   ActionKind = "type_in"
	ActTypeOutflow  ActionKind = "type_out"
	ActTypeTransfer ActionKind = "type_tr"

	// ActPick selects an option of the currently displayed list by its
	// absolute index (page offset already applied when the keyboard was
	// built).
	ActPick     ActionKind = "pick"
	ActPageNext ActionKind = "page_next"
	ActPagePrev ActionKind = "page_prev"

	ActBack   ActionKind = "back"
	ActCancel ActionKind = "cancel"
	ActSkip   ActionKind = "skip"

	ActConfirm  ActionKind = "confirm_yes"
	ActDecline  ActionKind = "confirm_no"
	ActEditMenu ActionKind = "edit_menu"

	ActEditAmount       ActionKind = "edit_amount"
	ActEditCounterparty ActionKind = "edit_ct"
	ActEditMemo         ActionKind = "edit_memo"
	ActEditCategory     ActionKind = "edit_category"
	ActEditWallet       ActionKind = "edit_wallet"

	ActAddOperation ActionKind = "add_op"
	ActShowBalance  ActionKind = "show_balance"
	ActRunFunds     ActionKind = "run_funds"

	ActOpenReport  ActionKind = "report_open"
	ActReportToday ActionKind = "report_today"
	ActReportWeek  ActionKind = "report_week"
	ActReportMonth ActionKind = "report_month"
	ActReportRange ActionKind = "report_range"

	ActOpenSettings      ActionKind = "settings"
	ActSettingsFunds     ActionKind = "settings_funds"
	ActSettingsAddWallet ActionKind = "settings_add_wallet"

	ActRuleEdit          ActionKind = "rule_edit" // Index = rule position
	ActRuleDelete        ActionKind = "rule_del"  // Index = rule position
	ActRuleAdd           ActionKind = "rule_add"
	ActRulePercent       ActionKind = "rule_pct" // Value = preset percent
	ActRulePercentCustom ActionKind = "rule_pct_custom"

	ActSlotPick ActionKind = "slot_pick" // Index = free-slot list index
)

// Action is a button action with its typed payload.
type Action struct {
	Kind  ActionKind
	Index int
	Value string
}

// Act builds a payload-free action.
func Act(kind ActionKind) Action { return Action{Kind: kind} }

// ActIdx builds an action carrying a list index.
func ActIdx(kind ActionKind, index int) Action { return Action{Kind: kind, Index: index} }

// ActVal builds an action carrying a string value.
func ActVal(kind ActionKind, value string) Action { return Action{Kind: kind, Value: value} }

// Button is one inline keyboard button.
type Button struct {
	Label  string
	Action Action
}

// Keyboard is rows of buttons attached to an outgoing message.
type Keyboard [][]Button

// Row appends a row of buttons and returns the keyboard for chaining.
func (k Keyboard) Row(buttons ...Button) Keyboard {
	return append(k, buttons)
}
