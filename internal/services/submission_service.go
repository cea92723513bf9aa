// Package services – SubmissionService
//
// SubmissionService finalizes a reviewed draft. In order, it:
//  1. mints the external id and posts the card to the staff chat (the only
//     step whose failure aborts the submission);
//  2. forwards attachments concurrently as replies to the card;
//  3. opens the external case via the Bitrix bridge, warning the staff chat
//     when that fails;
//  4. appends the case reference to the card (best effort);
//  5. records the card index entry and the history record.
//
// Observability: Submit is OpenTelemetry-instrumented and counted in
// intake_submissions_total.

package services

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/hr-intake-bot/internal/bitrix"
	"github.com/tbourn/hr-intake-bot/internal/domain"
	"github.com/tbourn/hr-intake-bot/internal/format"
	"github.com/tbourn/hr-intake-bot/internal/i18n"
	"github.com/tbourn/hr-intake-bot/internal/store"
	"github.com/tbourn/hr-intake-bot/internal/telegram"
)

// CardBodyLimit keeps the card under the 4096 character message limit.
const CardBodyLimit = 3500

// SubmissionService coordinates card posting, case creation and bookkeeping.
type SubmissionService struct {
	Store   *store.Store
	Bridge  bitrix.Bridge
	Channel StaffChannel
	Catalog *i18n.Catalog

	StaffChatID   int64
	ResponsibleID int64
	// StaffLang localizes staff-facing strings (warnings, case title, buttons).
	StaffLang domain.Language
}

// Submit finalizes d and returns its external id. Only a failure to post the
// card is returned as an error; bridge and edit failures degrade silently.
func (s *SubmissionService) Submit(ctx context.Context, d domain.Draft) (domain.ExternalID, error) {
	tr := otel.Tracer("services/SubmissionService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.String("draft.language", string(d.Language)),
			attribute.Int("draft.attachments", len(d.Attachments)),
		),
	)
	defer span.End()

	id := s.Store.NextExternalID()
	span.SetAttributes(attribute.String("external_id", string(id)))
	label := s.Catalog.StatusLabel(domain.StatusNew, d.Language)
	markup := AdminKeyboard(s.Catalog, s.StaffLang, id)

	card := format.RenderCard(format.Card{
		ID:          id,
		Language:    d.Language,
		Name:        d.Name,
		Phone:       d.Phone,
		Category:    d.Category,
		StatusLabel: label,
		Text:        format.Truncate(d.Text, CardBodyLimit),
	})
	msg, err := s.Channel.SendMessage(ctx, s.StaffChatID, card, telegram.SendOptions{
		ParseMode: telegram.ParseHTML,
		Markup:    markup,
	})
	if err != nil {
		submissions.WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "post card")
		return "", fmt.Errorf("post card %s: %w", id, err)
	}

	s.dispatchAttachments(ctx, id, msg.MessageID, d.Attachments)

	ref, ok := s.createCase(ctx, id, d)
	if ok {
		line := format.CaseLine(ref)
		if err := s.Channel.EditMessageText(ctx, s.StaffChatID, msg.MessageID, card+line, telegram.ParseHTML, markup); err != nil {
			log.Warn().Err(err).Str("external_id", string(id)).Msg("append case reference to card")
		} else {
			card += line
		}
	} else {
		s.warnStaff(ctx, id)
	}

	date := msg.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}
	s.Store.Put(domain.CardIndexEntry{
		ID:               id,
		Case:             ref,
		ChannelMessageID: msg.MessageID,
		Language:         d.Language,
		Status:           domain.StatusNew,
		StatusLabel:      label,
		CardText:         card,
	})
	s.Store.Append(domain.HistoryRecord{
		ID:               id,
		Date:             date,
		Language:         d.Language,
		Name:             d.Name,
		Phone:            d.Phone,
		Category:         d.Category,
		Status:           domain.StatusNew,
		StatusLabel:      label,
		TextLen:          utf8.RuneCountInString(d.Text),
		AttachmentsCount: len(d.Attachments),
	})

	outcome := "ok"
	if !ok {
		outcome = "no_case"
	}
	submissions.WithLabelValues(outcome).Inc()
	log.Info().
		Str("external_id", string(id)).
		Str("language", string(d.Language)).
		Bool("case_created", ok).
		Int("attachments", len(d.Attachments)).
		Msg("submission registered")
	return id, nil
}

// dispatchAttachments forwards every attachment as a reply to the card. Sends
// run concurrently; a failed send is logged and does not cancel the others.
func (s *SubmissionService) dispatchAttachments(ctx context.Context, id domain.ExternalID, replyTo int, atts []domain.Attachment) {
	if len(atts) == 0 {
		return
	}
	var g errgroup.Group
	for i, a := range atts {
		i, a := i, a
		g.Go(func() error {
			if _, err := s.Channel.SendMedia(ctx, s.StaffChatID, a, replyTo); err != nil {
				attachmentFailures.Inc()
				log.Warn().Err(err).
					Str("external_id", string(id)).
					Int("index", i).
					Str("kind", string(a.Kind)).
					Msg("forward attachment")
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *SubmissionService) createCase(ctx context.Context, id domain.ExternalID, d domain.Draft) (domain.CaseRef, bool) {
	title := s.Catalog.F("case_title", s.StaffLang, i18n.Vars{"name": d.Name, "phone": d.Phone, "eid": string(id)})
	desc := format.RenderDescription(format.Description{
		ID:          id,
		Language:    d.Language,
		Name:        d.Name,
		Phone:       d.Phone,
		Category:    d.Category,
		Text:        d.Text,
		Attachments: d.Attachments,
	})
	var ref domain.CaseRef
	ok := safeBridge(id, "create", func() bool {
		var created bool
		ref, created = s.Bridge.CreateCase(ctx, title, desc, s.ResponsibleID)
		return created
	})
	if !ok {
		return domain.CaseRef{}, false
	}
	return ref, true
}

func (s *SubmissionService) warnStaff(ctx context.Context, id domain.ExternalID) {
	text := s.Catalog.F("bitrix_error", s.StaffLang, i18n.Vars{"eid": string(id)})
	if _, err := s.Channel.SendMessage(ctx, s.StaffChatID, text, telegram.SendOptions{}); err != nil {
		log.Warn().Err(err).Str("external_id", string(id)).Msg("send bitrix warning")
	}
}
