package services

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/hr-intake-bot/internal/domain"
	"github.com/tbourn/hr-intake-bot/internal/i18n"
	"github.com/tbourn/hr-intake-bot/internal/telegram"
)

// StaffChannel is the subset of the chat transport used to post and edit
// cards in the staff chat. *telegram.Client implements it.
type StaffChannel interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) (telegram.Sent, error)
	SendMedia(ctx context.Context, chatID int64, a domain.Attachment, replyTo int) (telegram.Sent, error)
	EditMessageText(ctx context.Context, chatID int64, messageID int, text, parseMode string, markup any) error
}

const callbackPrefix = "adm"

// CallbackData encodes an operator action button payload.
func CallbackData(a domain.Action, id domain.ExternalID) string {
	return callbackPrefix + ":" + string(a) + ":" + string(id)
}

// IsAdminCallback reports whether data belongs to a card button.
func IsAdminCallback(data string) bool {
	return strings.HasPrefix(data, callbackPrefix+":")
}

// ParseCallback decodes `adm:<action>:<id>`.
func ParseCallback(data string) (domain.Action, domain.ExternalID, error) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[0] != callbackPrefix || parts[1] == "" || parts[2] == "" {
		return "", "", ErrBadCallback
	}
	a, ok := domain.ParseAction(parts[1])
	if !ok {
		return "", domain.ExternalID(parts[2]), ErrUnknownAction
	}
	return a, domain.ExternalID(parts[2]), nil
}

// AdminKeyboard is the inline keyboard attached to every card.
func AdminKeyboard(cat *i18n.Catalog, lang domain.Language, id domain.ExternalID) telegram.InlineKeyboard {
	return telegram.InlineKeyboard{InlineKeyboard: [][]telegram.InlineButton{{
		{Text: cat.T("btn_admin_work", lang), CallbackData: CallbackData(domain.ActionMarkInWork, id)},
		{Text: cat.T("btn_admin_close", lang), CallbackData: CallbackData(domain.ActionClose, id)},
	}}}
}

// safeBridge runs a bridge call, converting a panic into failure.
func safeBridge(id domain.ExternalID, op string, fn func() bool) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("external_id", string(id)).Str("op", op).Interface("panic", r).Msg("bitrix bridge panicked")
			ok = false
		}
	}()
	return fn()
}
