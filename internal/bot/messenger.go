package bot

import (
	"context"

	"github.com/tbourn/hr-intake-bot/internal/conversation"
	"github.com/tbourn/hr-intake-bot/internal/telegram"
)

// MessageSender is the part of the Bot API client needed to talk to users.
type MessageSender interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) (telegram.Sent, error)
}

// ChatMessenger adapts conversation replies to Bot API messages with reply
// keyboards.
type ChatMessenger struct {
	API MessageSender
}

var _ conversation.Messenger = (*ChatMessenger)(nil)

// Send implements conversation.Messenger.
func (m *ChatMessenger) Send(ctx context.Context, chatID int64, r conversation.Reply) error {
	_, err := m.API.SendMessage(ctx, chatID, r.Text, telegram.SendOptions{Markup: Markup(r)})
	return err
}

// Markup converts the keyboard of r to Bot API reply markup. It returns nil
// when r leaves the current keyboard alone.
func Markup(r conversation.Reply) any {
	switch {
	case r.RemoveKeyboard:
		return telegram.RemoveKeyboard
	case len(r.Keyboard) > 0:
		kb := telegram.Rows(r.Keyboard...)
		kb.OneTimeKeyboard = r.OneTime
		return kb
	}
	return nil
}
