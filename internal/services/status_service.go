// Package services – StatusService
//
// StatusService applies an operator action (work / close) to a card. The
// card text, the card index entry and the newest matching history record are
// updated together; the bridge comment/close runs last and its failure never
// rolls anything back. Re-applying an action is harmless: it re-renders the
// same status and posts the comment again.

package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/hr-intake-bot/internal/bitrix"
	"github.com/tbourn/hr-intake-bot/internal/domain"
	"github.com/tbourn/hr-intake-bot/internal/format"
	"github.com/tbourn/hr-intake-bot/internal/i18n"
	"github.com/tbourn/hr-intake-bot/internal/store"
	"github.com/tbourn/hr-intake-bot/internal/telegram"
)

// StatusService synchronizes card status across the channel, the store and
// the external case.
type StatusService struct {
	Store   *store.Store
	Bridge  bitrix.Bridge
	Channel StaffChannel
	Catalog *i18n.Catalog

	StaffChatID int64
	StaffLang   domain.Language
}

// Apply performs action on the card of id and returns the new localized
// status label. The card edit runs outside the store lock, so concurrent
// actions on one card may leave the staff message showing another status than
// the index. The index is updated atomically and the last action wins there.
func (s *StatusService) Apply(ctx context.Context, id domain.ExternalID, action domain.Action) (string, error) {
	tr := otel.Tracer("services/StatusService")
	ctx, span := tr.Start(ctx, "Apply",
		trace.WithAttributes(
			attribute.String("external_id", string(id)),
			attribute.String("action", string(action)),
		),
	)
	defer span.End()

	if _, ok := domain.ParseAction(string(action)); !ok {
		return "", ErrUnknownAction
	}
	entry, ok := s.Store.Lookup(id)
	if !ok {
		return "", ErrNotFound
	}

	target := action.Target()
	label := s.Catalog.StatusLabel(target, entry.Language)
	commentKey := "comment_work"
	if action == domain.ActionClose {
		commentKey = "comment_close"
	}
	comment := s.Catalog.T(commentKey, s.StaffLang)

	text := format.ReplaceStatusLine(entry.CardText, label)
	if entry.ChannelMessageID != 0 && text != "" {
		err := s.Channel.EditMessageText(ctx, s.StaffChatID, entry.ChannelMessageID, text, telegram.ParseHTML, AdminKeyboard(s.Catalog, s.StaffLang, id))
		switch {
		case errors.Is(err, telegram.ErrNotModified):
		case err != nil:
			log.Warn().Err(err).Str("external_id", string(id)).Msg("edit card status")
		}
	}

	updated, inHistory, err := s.Store.ApplyStatus(id, store.StatusUpdate{Status: target, Label: label, CardText: text})
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrNotFound
	}
	if !inHistory {
		log.Debug().Str("external_id", string(id)).Msg("history record already evicted")
	}

	if !updated.Case.IsZero() {
		var done bool
		if action == domain.ActionClose {
			done = safeBridge(id, "close", func() bool { return s.Bridge.Close(ctx, updated.Case, comment) })
		} else {
			done = safeBridge(id, "comment", func() bool { return s.Bridge.Comment(ctx, updated.Case, comment) })
		}
		if !done {
			log.Warn().Str("external_id", string(id)).Str("action", string(action)).Msg("bitrix status sync failed")
		}
	}

	transitions.WithLabelValues(string(action)).Inc()
	log.Info().
		Str("external_id", string(id)).
		Str("action", string(action)).
		Str("status", target.String()).
		Msg("card status updated")
	return label, nil
}
