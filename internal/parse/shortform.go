package parse

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ivmorgun/cashbot/internal/domain"
)

// One-message entry grammar:
//
//	Поступление/Доход/Плюс 5000 Сбербанк (ИП Иванов) за услуги
//	5000 Сбербанк (ИП Иванов) за услуги   — bare leading amount means inflow
//	Минус/-/Выбытие/Расход 5000 Касса (ИП Иванов) аренда
//	Перевод 5000 Сбербанк Касса комментарий
//
// The parenthesized segment is the counterparty, text after it is the memo.
// Wallet names are matched by longest prefix so multi-word wallets split
// correctly from trailing free text.
var (
	outflowKeywords  = []string{"минус", "выбытие", "расход"}
	inflowKeywords   = []string{"плюс", "поступление", "доход"}
	transferKeywords = []string{"перевод"}

	counterpartyRe = regexp.MustCompile(`\s*\(([^)]*)\)\s*`)
)

// ShortForm is a fully populated draft parsed from a single message.
// Category is never filled here: the user picks it afterwards.
type ShortForm struct {
	Kind         domain.Kind
	Amount       decimal.Decimal
	Wallet       string
	WalletFrom   string
	WalletTo     string
	Counterparty string
	Memo         string
}

// IsShortForm reports whether the message looks like one-message entry:
// a type keyword, a leading "-", or a bare positive amount first.
func IsShortForm(text string) bool {
	parts := strings.Fields(strings.TrimSpace(text))
	if len(parts) == 0 {
		return false
	}
	first := strings.ToLower(parts[0])
	if containsWord(outflowKeywords, first) || containsWord(inflowKeywords, first) || containsWord(transferKeywords, first) {
		return true
	}
	if first == "-" && len(parts) >= 2 {
		return true
	}
	if amt, err := Amount(parts[0]); err == nil && amt.IsPositive() {
		return true
	}
	return false
}

// ShortFormDraft parses the message against the known wallet list. The
// second return value is false when the text does not fit the grammar.
func ShortFormDraft(text string, wallets []string) (*ShortForm, bool) {
	parts := strings.Fields(strings.TrimSpace(text))
	if len(parts) < 2 {
		return nil, false
	}
	first := strings.ToLower(parts[0])

	var kind domain.Kind
	var amountRaw, rest string
	switch {
	case containsWord(transferKeywords, first):
		kind = domain.KindTransfer
		amountRaw = parts[1]
		rest = strings.Join(parts[2:], " ")
	case containsWord(outflowKeywords, first) || first == "-":
		kind = domain.KindOutflow
		amountRaw = parts[1]
		rest = strings.Join(parts[2:], " ")
	case containsWord(inflowKeywords, first):
		kind = domain.KindInflow
		amountRaw = parts[1]
		rest = strings.Join(parts[2:], " ")
	default:
		// bare leading positive amount implies inflow
		if _, err := Amount(parts[0]); err != nil {
			return nil, false
		}
		kind = domain.KindInflow
		amountRaw = parts[0]
		rest = strings.Join(parts[1:], " ")
	}

	amount, err := Amount(amountRaw)
	if err != nil {
		return nil, false
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return nil, false
	}

	if kind == domain.KindTransfer {
		from, after, ok := MatchWallet(rest, wallets)
		if !ok {
			return nil, false
		}
		to, tail, ok := MatchWallet(after, wallets)
		if !ok {
			return nil, false
		}
		return &ShortForm{
			Kind:       kind,
			Amount:     amount,
			WalletFrom: from,
			WalletTo:   to,
			Memo:       strings.TrimSpace(tail),
		}, true
	}

	wallet, after, ok := MatchWallet(rest, wallets)
	if !ok {
		return nil, false
	}
	counterparty, memo := splitCounterparty(after)
	return &ShortForm{
		Kind:         kind,
		Amount:       amount,
		Wallet:       wallet,
		Counterparty: counterparty,
		Memo:         memo,
	}, true
}

// MatchWallet finds the known wallet the text starts with, preferring the
// longest name, and returns the remainder after it. Matching is
// case-insensitive.
func MatchWallet(text string, wallets []string) (wallet, rest string, ok bool) {
	s := strings.TrimSpace(text)
	sorted := make([]string, len(wallets))
	copy(sorted, wallets)
	// longest first, so «Касса Магазин» wins over «Касса»
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && len([]rune(sorted[j])) > len([]rune(sorted[j-1])); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	runes := []rune(s)
	for _, w := range sorted {
		wr := []rune(w)
		if len(wr) == 0 || len(runes) < len(wr) {
			continue
		}
		if strings.EqualFold(string(runes[:len(wr)]), w) {
			return w, strings.TrimSpace(string(runes[len(wr):])), true
		}
	}
	return "", s, false
}

func splitCounterparty(s string) (counterparty, memo string) {
	m := counterpartyRe.FindStringSubmatchIndex(s)
	if m == nil {
		return "", strings.TrimSpace(s)
	}
	counterparty = strings.TrimSpace(s[m[2]:m[3]])
	memo = strings.TrimSpace(s[m[1]:])
	return counterparty, memo
}

func containsWord(words []string, w string) bool {
	for _, x := range words {
		if x == w {
			return true
		}
	}
	return false
}
