// Package bot routes Telegram updates: user messages go to the conversation
// engine, card buttons to the status service and staff commands to the
// reports. It also carries the long-polling loop.
package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/hr-intake-bot/internal/conversation"
	"github.com/tbourn/hr-intake-bot/internal/domain"
	"github.com/tbourn/hr-intake-bot/internal/i18n"
	"github.com/tbourn/hr-intake-bot/internal/repo"
	"github.com/tbourn/hr-intake-bot/internal/services"
	"github.com/tbourn/hr-intake-bot/internal/telegram"
)

// Staff commands.
const (
	CmdWhereAmI = "/whereami"
	CmdStats    = "/stats"
	CmdExport   = "/export"
)

// API is the Bot API surface used by the dispatcher. *telegram.Client
// implements it.
type API interface {
	MessageSender
	AnswerCallbackQuery(ctx context.Context, id, text string) error
	SendDocumentBytes(ctx context.Context, chatID int64, filename string, data []byte, caption string) (telegram.Sent, error)
}

// Conversation advances a user's intake dialogue.
type Conversation interface {
	Handle(ctx context.Context, in conversation.Inbound) error
}

// StatusApplier applies an operator action to a card.
type StatusApplier interface {
	Apply(ctx context.Context, id domain.ExternalID, action domain.Action) (string, error)
}

// Reporter renders the staff reports.
type Reporter interface {
	StatsText(ctx context.Context) string
	ExportCSV(ctx context.Context, w io.Writer) (int, error)
}

// Dispatcher handles one update at a time; it is safe for concurrent use.
type Dispatcher struct {
	API     API
	Engine  Conversation
	Status  StatusApplier
	Reports Reporter
	Catalog *i18n.Catalog

	// DB holds the update log. Nil disables de-duplication.
	DB       *gorm.DB
	DedupTTL time.Duration

	AdminIDs  []int64
	StaffLang domain.Language
	Now       func() time.Time
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Dispatcher) isAdmin(userID int64) bool {
	for _, id := range d.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (d *Dispatcher) t(key string) string { return d.Catalog.T(key, d.StaffLang) }

// Dispatch handles u. Re-delivered updates are dropped silently. A failing
// update log never blocks processing.
func (d *Dispatcher) Dispatch(ctx context.Context, u telegram.Update) error {
	kind := u.Kind()
	updatesTotal.WithLabelValues(kind).Inc()

	if d.DB != nil {
		err := repo.MarkUpdate(ctx, d.DB, u.UpdateID, kind, d.DedupTTL, d.now())
		switch {
		case errors.Is(err, repo.ErrDuplicate):
			duplicateUpdates.Inc()
			log.Debug().Int64("update_id", u.UpdateID).Msg("duplicate update dropped")
			return nil
		case err != nil:
			log.Warn().Err(err).Int64("update_id", u.UpdateID).Msg("update log unavailable")
		}
	}

	switch {
	case u.CallbackQuery != nil:
		return d.onCallback(ctx, u.CallbackQuery)
	case u.Message != nil:
		return d.onMessage(ctx, u.Message)
	}
	return nil
}

func (d *Dispatcher) onMessage(ctx context.Context, m *telegram.Message) error {
	if cmd := command(m.Text); cmd == CmdWhereAmI || cmd == CmdStats || cmd == CmdExport {
		return d.onCommand(ctx, cmd, m)
	}

	in := conversation.Inbound{ChatID: m.Chat.ID, Text: m.Text}
	if m.From != nil {
		in.LangHint = i18n.Detect(m.From.LanguageCode)
	}
	if a, ok := m.Attachment(); ok {
		in.Attachment = &a
		in.Text = ""
	}
	err := d.Engine.Handle(ctx, in)
	if errors.Is(err, conversation.ErrNoSession) {
		log.Debug().Int64("chat_id", m.Chat.ID).Msg("message outside a conversation ignored")
		return nil
	}
	return err
}

// command extracts a bot command, dropping a trailing @botname.
func command(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	if i := strings.IndexAny(text, " \n"); i >= 0 {
		text = text[:i]
	}
	if i := strings.IndexByte(text, '@'); i >= 0 {
		text = text[:i]
	}
	return text
}

func (d *Dispatcher) reply(ctx context.Context, chatID int64, text string) error {
	_, err := d.API.SendMessage(ctx, chatID, text, telegram.SendOptions{})
	return err
}

func (d *Dispatcher) onCommand(ctx context.Context, cmd string, m *telegram.Message) error {
	if m.From == nil || !d.isAdmin(m.From.ID) {
		adminCommands.WithLabelValues(cmd, "denied").Inc()
		return d.reply(ctx, m.Chat.ID, d.t("admin_no_access"))
	}
	adminCommands.WithLabelValues(cmd, "ok").Inc()

	switch cmd {
	case CmdWhereAmI:
		return d.reply(ctx, m.Chat.ID, d.Catalog.F("whereami", d.StaffLang, i18n.Vars{"cid": m.Chat.ID}))
	case CmdStats:
		return d.reply(ctx, m.Chat.ID, d.Reports.StatsText(ctx))
	default:
		return d.export(ctx, m.Chat.ID)
	}
}

func (d *Dispatcher) export(ctx context.Context, chatID int64) error {
	var buf bytes.Buffer
	n, err := d.Reports.ExportCSV(ctx, &buf)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if n == 0 {
		return d.reply(ctx, chatID, d.t("export_empty"))
	}
	if _, err := d.API.SendDocumentBytes(ctx, chatID, services.ExportFilename(d.now()), buf.Bytes(), d.t("export_ready")); err != nil {
		return fmt.Errorf("export upload: %w", err)
	}
	log.Info().Int("rows", n).Int64("chat_id", chatID).Msg("history exported")
	return nil
}

func (d *Dispatcher) onCallback(ctx context.Context, q *telegram.CallbackQuery) error {
	if !services.IsAdminCallback(q.Data) {
		return d.API.AnswerCallbackQuery(ctx, q.ID, "")
	}
	if !d.isAdmin(q.From.ID) {
		return d.API.AnswerCallbackQuery(ctx, q.ID, d.t("admin_no_access"))
	}

	key := "status_updated"
	action, id, err := services.ParseCallback(q.Data)
	if err == nil {
		_, err = d.Status.Apply(ctx, id, action)
	}
	switch {
	case err == nil:
	case errors.Is(err, services.ErrBadCallback):
		key = "bad_callback"
	case errors.Is(err, services.ErrUnknownAction):
		key = "unknown_action"
	case errors.Is(err, services.ErrNotFound):
		key = "card_not_found"
	default:
		log.Error().Err(err).Str("external_id", string(id)).Msg("status transition failed")
		key = "bad_callback"
	}
	return d.API.AnswerCallbackQuery(ctx, q.ID, d.t(key))
}
