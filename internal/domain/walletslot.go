package domain

import "github.com/pkg/errors"

// WalletSlotCount is the number of wallet positions the spreadsheet
// template reserves: 12 settings rows, 12 hidden sheets, 12 balance slots.
const WalletSlotCount = 12

// WalletSlot is a free wallet position: its ordinal in the settings sheet
// and the number of the hidden per-wallet sheet reserved for it.
type WalletSlot struct {
	Position    int
	SheetNumber int
}

// Validate checks the slot coordinates are within the template bounds.
func (s WalletSlot) Validate() error {
	if s.Position < 1 || s.Position > WalletSlotCount {
		return errors.Errorf("wallet slot position %d out of range 1..%d", s.Position, WalletSlotCount)
	}
	if s.SheetNumber < 1 || s.SheetNumber > WalletSlotCount {
		return errors.Errorf("wallet sheet number %d out of range 1..%d", s.SheetNumber, WalletSlotCount)
	}
	return nil
}
