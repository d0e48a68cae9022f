package dialog

import "github.com/ivmorgun/cashbot/internal/domain"

// State is the dialog position of a session.
type State int

const (
	// Guided operation entry.
	StateDate State = iota + 1
	StateType
	StateCategory
	StateWallet
	StateTransferFrom
	StateTransferTo
	StateAmount
	StateCounterparty
	StateMemo
	StateConfirm

	// Pre-commit edit sub-flow.
	StateEditMenu
	StateEditAmount
	StateEditCounterparty
	StateEditMemo
	StateEditCategory
	StateEditWallet

	// Settings.
	StateSettingsMenu
	StateRulesList
	StateRuleSource
	StateRuleDestination
	StateRulePercent
	StateRulePercentCustom
	StateSlotPick
	StateWalletName
	StateWalletBalance

	// Reports.
	StateReportMenu
	StateReportRange

	// Post-commit edit of the last register row.
	StateLastMenu
	StateLastAmount
	StateLastCounterparty
	StateLastMemo
)

// prev returns the state "back" leads to. Previously entered draft fields
// are kept; redoing the same selection reproduces the draft exactly.
func prev(s State, kind domain.Kind) State {
	switch s {
	case StateType:
		return StateDate
	case StateCategory:
		return StateType
	case StateWallet:
		return StateCategory
	case StateTransferFrom:
		return StateType
	case StateTransferTo:
		return StateTransferFrom
	case StateAmount:
		if kind == domain.KindTransfer {
			return StateTransferTo
		}
		return StateWallet
	case StateCounterparty:
		return StateAmount
	case StateMemo:
		// transfers skip the counterparty step
		if kind == domain.KindTransfer {
			return StateAmount
		}
		return StateCounterparty
	case StateConfirm:
		return StateMemo
	case StateEditMenu:
		return StateConfirm
	case StateEditAmount, StateEditCounterparty, StateEditMemo, StateEditCategory, StateEditWallet:
		return StateEditMenu
	case StateRulesList:
		return StateSettingsMenu
	case StateRuleSource:
		return StateRulesList
	case StateRuleDestination:
		return StateRuleSource
	case StateRulePercent:
		return StateRuleDestination
	case StateRulePercentCustom:
		return StateRulePercent
	case StateSlotPick:
		return StateSettingsMenu
	case StateWalletName:
		return StateSlotPick
	case StateWalletBalance:
		return StateWalletName
	case StateReportRange:
		return StateReportMenu
	case StateLastAmount, StateLastCounterparty, StateLastMemo:
		return StateLastMenu
	default:
		return StateDate
	}
}

// wantsText reports whether the state consumes a free-text message.
func wantsText(s State) bool {
	switch s {
	case StateDate, StateAmount, StateCounterparty, StateMemo,
		StateEditAmount, StateEditCounterparty, StateEditMemo,
		StateRulePercentCustom, StateWalletName, StateWalletBalance,
		StateReportRange,
		StateLastAmount, StateLastCounterparty, StateLastMemo:
		return true
	default:
		return false
	}
}
