package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ivmorgun/cashbot/internal/domain"
)

const (
	apiBase        = "https://api.telegram.org"
	pollTimeout    = 30 * time.Second
	requestTimeout = 35 * time.Second
)

// Bot is a minimal long-polling Bot API client covering exactly the calls
// this system makes: getUpdates, sendMessage, editMessageText,
// answerCallbackQuery.
type Bot struct {
	token  string
	base   string
	client *http.Client
	lg     *zap.Logger
	offset int64
}

func NewBot(token string, lg *zap.Logger) *Bot {
	return &Bot{
		token:  token,
		base:   apiBase,
		client: &http.Client{Timeout: requestTimeout},
		lg:     lg,
	}
}

type update struct {
	UpdateID int64     `json:"update_id"`
	Message  *message  `json:"message"`
	Callback *callback `json:"callback_query"`
}

type message struct {
	MessageID int    `json:"message_id"`
	From      *user  `json:"from"`
	Chat      chat   `json:"chat"`
	Text      string `json:"text"`
}

type user struct {
	ID int64 `json:"id"`
}

type chat struct {
	ID int64 `json:"id"`
}

type callback struct {
	ID      string   `json:"id"`
	From    user     `json:"from"`
	Message *message `json:"message"`
	Data    string   `json:"data"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// Run polls for updates until the context is cancelled, converting each
// into an Event and handing it to dispatch. Decode failures and transport
// hiccups are logged and polling continues.
func (b *Bot) Run(ctx context.Context, dispatch func(context.Context, Event)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, err := b.getUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.lg.Warn("getUpdates failed, backing off", zap.Error(err))
			select {
			case <-time.After(3 * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= b.offset {
				b.offset = u.UpdateID + 1
			}
			ev, ok := b.toEvent(ctx, u)
			if !ok {
				continue
			}
			// Concurrent dispatch: the router serializes per user, so one
			// user's slow spreadsheet call never stalls the others.
			go dispatch(ctx, ev)
		}
	}
}

func (b *Bot) toEvent(ctx context.Context, u update) (Event, bool) {
	switch {
	case u.Callback != nil:
		// Ack immediately so the client stops the button spinner even if
		// handling takes a while.
		if err := b.answerCallback(ctx, u.Callback.ID); err != nil {
			b.lg.Debug("answerCallbackQuery failed", zap.Error(err))
		}
		action, err := DecodeAction(u.Callback.Data)
		if err != nil {
			b.lg.Warn("undecodable callback dropped", zap.Error(err))
			return Event{}, false
		}
		ev := Event{
			Kind:   EventCallback,
			UserID: u.Callback.From.ID,
			Action: action,
		}
		if u.Callback.Message != nil {
			ev.ChatID = u.Callback.Message.Chat.ID
			ev.MessageID = u.Callback.Message.MessageID
		}
		return ev, true

	case u.Message != nil && u.Message.From != nil:
		ev := Event{
			UserID:    u.Message.From.ID,
			ChatID:    u.Message.Chat.ID,
			MessageID: u.Message.MessageID,
			Text:      strings.TrimSpace(u.Message.Text),
		}
		if strings.HasPrefix(ev.Text, "/") {
			ev.Kind = EventCommand
			cmd, args, _ := strings.Cut(ev.Text[1:], " ")
			// strip the bot-name suffix of group-style commands
			cmd, _, _ = strings.Cut(cmd, "@")
			ev.Command = cmd
			ev.Args = strings.TrimSpace(args)
		} else {
			ev.Kind = EventText
		}
		return ev, true
	}
	return Event{}, false
}

func (b *Bot) getUpdates(ctx context.Context) ([]update, error) {
	payload := map[string]any{
		"offset":          b.offset,
		"timeout":         int(pollTimeout.Seconds()),
		"allowed_updates": []string{"message", "callback_query"},
	}
	var updates []update
	if err := b.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// keyboardMarkup converts a domain keyboard into the wire format.
func keyboardMarkup(kb domain.Keyboard) map[string]any {
	if len(kb) == 0 {
		return nil
	}
	rows := make([][]map[string]string, 0, len(kb))
	for _, row := range kb {
		wire := make([]map[string]string, 0, len(row))
		for _, btn := range row {
			wire = append(wire, map[string]string{
				"text":          btn.Label,
				"callback_data": EncodeAction(btn.Action),
			})
		}
		rows = append(rows, wire)
	}
	return map[string]any{"inline_keyboard": rows}
}

// Send delivers a new message with an optional inline keyboard.
func (b *Bot) Send(ctx context.Context, chatID int64, text string, kb domain.Keyboard) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if markup := keyboardMarkup(kb); markup != nil {
		payload["reply_markup"] = markup
	}
	return b.call(ctx, "sendMessage", payload, nil)
}

// Edit replaces the text and keyboard of a previously sent message.
func (b *Bot) Edit(ctx context.Context, chatID int64, messageID int, text string, kb domain.Keyboard) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}
	if markup := keyboardMarkup(kb); markup != nil {
		payload["reply_markup"] = markup
	}
	return b.call(ctx, "editMessageText", payload, nil)
}

func (b *Bot) answerCallback(ctx context.Context, callbackID string) error {
	return b.call(ctx, "answerCallbackQuery", map[string]any{"callback_query_id": callbackID}, nil)
}

func (b *Bot) call(ctx context.Context, method string, payload any, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "encode %s payload", method)
	}
	url := fmt.Sprintf("%s/bot%s/%s", b.base, b.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "build %s request", method)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "call %s", method)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrapf(err, "read %s response", method)
	}
	var api apiResponse
	if err := json.Unmarshal(data, &api); err != nil {
		return errors.Wrapf(err, "decode %s response", method)
	}
	if !api.OK {
		return errors.Errorf("%s: api error: %s", method, api.Description)
	}
	if result != nil {
		if err := json.Unmarshal(api.Result, result); err != nil {
			return errors.Wrapf(err, "decode %s result", method)
		}
	}
	return nil
}
