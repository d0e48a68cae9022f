package telegram

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/ivmorgun/cashbot/internal/domain"
)

// Callback data format: kind|index|value. The value field is last and may
// itself contain the separator; only this file knows the encoding.
const actionSep = "|"

// EncodeAction serializes an action into callback data.
func EncodeAction(a domain.Action) string {
	return string(a.Kind) + actionSep + strconv.Itoa(a.Index) + actionSep + a.Value
}

// DecodeAction parses callback data back into an action.
func DecodeAction(data string) (domain.Action, error) {
	parts := strings.SplitN(data, actionSep, 3)
	if len(parts) != 3 || parts[0] == "" {
		return domain.Action{}, errors.Errorf("malformed callback data %q", data)
	}
	index, err := strconv.Atoi(parts[1])
	if err != nil {
		return domain.Action{}, errors.Wrapf(err, "malformed callback index in %q", data)
	}
	return domain.Action{
		Kind:  domain.ActionKind(parts[0]),
		Index: index,
		Value: parts[2],
	}, nil
}
