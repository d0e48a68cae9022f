// Package telegram is the chat transport boundary: inbound events, the
// action codec, the allow-list router and a minimal Bot API client.
package telegram

import (
	"context"

	"github.com/ivmorgun/cashbot/internal/domain"
)

// EventKind classifies an inbound chat event.
type EventKind int

const (
	EventText EventKind = iota + 1
	EventCommand
	EventCallback
)

// Event is one inbound chat event, already decoded: commands carry the
// command name and its argument tail, callbacks carry the decoded action.
type Event struct {
	Kind      EventKind
	UserID    int64
	ChatID    int64
	MessageID int

	Text    string
	Command string
	Args    string
	Action  domain.Action
}

// Sender delivers outbound messages. Implemented by Bot; the dialog layer
// consumes only this.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string, kb domain.Keyboard) error
	Edit(ctx context.Context, chatID int64, messageID int, text string, kb domain.Keyboard) error
}

// Handler receives routed events. Implemented by the dialog machine.
type Handler interface {
	OnCommand(ctx context.Context, ev Event)
	OnText(ctx context.Context, ev Event)
	OnAction(ctx context.Context, ev Event)
}
