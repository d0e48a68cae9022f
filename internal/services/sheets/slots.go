package sheets

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/ivmorgun/cashbot/internal/domain"
)

// Slot rows start at row 3 in the settings and summary sheets: row 3 is
// slot 1, row 14 is slot 12.
const slotFirstRow = 3

// Balance-block slot order in the register sheet: down each column pair.
var registerSlotOrder = [][2]string{
	{"B1", "C1"}, {"B2", "C2"}, {"B3", "C3"},
	{"D1", "E1"}, {"D2", "E2"}, {"D3", "E3"},
	{"F1", "G1"}, {"F2", "G2"}, {"F3", "G3"},
	{"H1", "I1"}, {"H2", "I2"}, {"H3", "I3"},
}

// ErrNoFreeSlots is returned when all 12 wallet positions are occupied.
var ErrNoFreeSlots = errors.New("no free wallet slots")

// FreeWalletSlots lists unoccupied wallet positions: settings rows whose
// column A still holds a bare slot number. The number names the hidden
// per-wallet sheet reserved for the slot.
func (l *Ledger) FreeWalletSlots(ctx context.Context) ([]domain.WalletSlot, error) {
	rows, err := l.fetch(ctx, rangeOf(sheetWallets, "A:A"))
	if err != nil {
		return nil, errors.Wrap(err, "free wallet slots")
	}
	var free []domain.WalletSlot
	for position := 1; position <= domain.WalletSlotCount; position++ {
		rowIdx := position + slotFirstRow - 2 // 0-based index of the slot row
		if rowIdx >= len(rows) {
			continue
		}
		v := cell(rows[rowIdx], 0)
		if !isSlotDigit(v) {
			continue
		}
		num, err := strconv.Atoi(v)
		if err != nil || num < 1 || num > domain.WalletSlotCount {
			continue
		}
		free = append(free, domain.WalletSlot{Position: position, SheetNumber: num})
	}
	return free, nil
}

// firstFreeRegisterSlot finds the first balance-block slot whose name cell
// is empty or still holds a placeholder slot number.
func (l *Ledger) firstFreeRegisterSlot(ctx context.Context) (nameCell string, err error) {
	rows, err := l.fetch(ctx, rangeOf(sheetRegister, "A1:I3"))
	if err != nil {
		return "", errors.Wrap(err, "read balance block")
	}
	for _, pair := range registerSlotOrder {
		v := cellAt(rows, pair[0])
		if v == "" || isSlotDigit(v) {
			return pair[0], nil
		}
	}
	return "", ErrNoFreeSlots
}

// cellAt resolves a single-letter A1 reference inside a small fetched block.
func cellAt(rows [][]string, ref string) string {
	col := int(ref[0] - 'A')
	row := int(ref[1] - '1')
	if row < 0 || row >= len(rows) {
		return ""
	}
	return cell(rows[row], col)
}

// AddWallet binds a wallet name to a free slot. The mutation is a sequence
// of independent remote setters and is not atomic; on failure the error
// names the failed step so an operator can finish the remaining ones by
// hand (each step is an idempotent setter, re-running is safe):
//
//  1. settings sheet: slot row gets the name and the starting balance;
//  2. the hidden sheet named after the slot number is unhidden and renamed;
//  3. the renamed sheet gets its own name in A1 (best effort, the cell may
//     be formula-owned);
//  4. summary sheet: the slot row is unhidden and named;
//  5. register sheet: the first free balance-block slot gets the name (the
//     amount cell is formula-owned and left untouched).
func (l *Ledger) AddWallet(ctx context.Context, slot domain.WalletSlot, name string, startBalance decimal.Decimal) error {
	if err := slot.Validate(); err != nil {
		return err
	}
	if name == "" {
		return errors.New("wallet name must not be empty")
	}

	settingsRow := slot.Position + slotFirstRow - 1
	start := any("0")
	if !startBalance.IsZero() {
		start = startBalance.InexactFloat64()
	}
	err := l.retry.Do(ctx, func(ctx context.Context) error {
		return l.api.Update(ctx, rangeOf(sheetWallets, fmt.Sprintf("A%d:B%d", settingsRow, settingsRow)),
			[][]any{{name, start}})
	})
	if err != nil {
		return errors.Wrapf(err, "add wallet %q: settings row not written, nothing applied yet", name)
	}

	metas, err := l.api.Sheets(ctx)
	if err != nil {
		return errors.Wrapf(err, "add wallet %q: settings row written, sheet metadata unavailable", name)
	}
	var walletSheetID, summarySheetID int64 = -1, -1
	sheetTitle := strconv.Itoa(slot.SheetNumber)
	for _, m := range metas {
		switch m.Title {
		case sheetTitle:
			walletSheetID = m.ID
		case sheetSummary:
			summarySheetID = m.ID
		}
	}
	if walletSheetID < 0 {
		return errors.Errorf("add wallet %q: hidden sheet «%s» not found; settings row already written", name, sheetTitle)
	}

	err = l.api.BatchUpdate(ctx, []*sheetsapi.Request{{
		UpdateSheetProperties: &sheetsapi.UpdateSheetPropertiesRequest{
			Properties: &sheetsapi.SheetProperties{
				SheetId: walletSheetID,
				Hidden:  false,
				Title:   name,
			},
			Fields: "hidden,title",
		},
	}})
	if err != nil {
		return errors.Wrapf(err, "add wallet %q: settings row written, sheet «%s» not renamed", name, sheetTitle)
	}

	// A1 of the wallet sheet may carry a formula; a failure here is not
	// worth aborting the remaining steps.
	if err := l.api.Update(ctx, rangeOf(name, "A1"), [][]any{{name}}); err != nil {
		l.lg.Warn("wallet sheet A1 not set", zap.String("wallet", name), zap.Error(err))
	}

	if summarySheetID >= 0 {
		summaryRow := slot.Position + slotFirstRow - 1
		err = l.api.BatchUpdate(ctx, []*sheetsapi.Request{{
			UpdateDimensionProperties: &sheetsapi.UpdateDimensionPropertiesRequest{
				Range: &sheetsapi.DimensionRange{
					SheetId:    summarySheetID,
					Dimension:  "ROWS",
					StartIndex: int64(summaryRow - 1),
					EndIndex:   int64(summaryRow),
				},
				Properties: &sheetsapi.DimensionProperties{HiddenByUser: false},
				Fields:     "hiddenByUser",
			},
		}})
		if err != nil {
			return errors.Wrapf(err, "add wallet %q: sheet renamed, summary row %d not unhidden", name, summaryRow)
		}
		if err := l.api.Update(ctx, rangeOf(sheetSummary, fmt.Sprintf("A%d", summaryRow)), [][]any{{name}}); err != nil {
			return errors.Wrapf(err, "add wallet %q: summary row unhidden but not named", name)
		}
	}

	nameCell, err := l.firstFreeRegisterSlot(ctx)
	if err != nil {
		return errors.Wrapf(err, "add wallet %q: summary updated, no register slot assigned", name)
	}
	if err := l.api.Update(ctx, rangeOf(sheetRegister, nameCell), [][]any{{name}}); err != nil {
		return errors.Wrapf(err, "add wallet %q: register slot %s not named", name, nameCell)
	}

	l.cache.Invalidate(keyWallets)
	l.InvalidateAfterWrite()
	return nil
}
