// Package conversation drives each user's submission draft through the guided
// collection flow: language, consent, name, phone, category, text,
// attachments, review, with an edit menu that jumps back into the sequence.
//
// Sessions are keyed by chat id. Updates for one chat are serialized by the
// session lock; different chats proceed concurrently and never share a draft.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/hr-intake-bot/internal/domain"
	"github.com/tbourn/hr-intake-bot/internal/format"
	"github.com/tbourn/hr-intake-bot/internal/i18n"
)

// ErrNoSession is returned by Handle when the chat has no active draft.
var ErrNoSession = errors.New("conversation: no active session")

// Commands recognised in any state.
const (
	CmdStart  = "/start"
	CmdCancel = "/cancel"
)

// Reply is an outbound message plus its reply keyboard.
type Reply struct {
	Text     string
	Keyboard [][]string
	OneTime  bool
	// RemoveKeyboard hides the current reply keyboard.
	RemoveKeyboard bool
}

// Messenger delivers replies to the user's chat.
type Messenger interface {
	Send(ctx context.Context, chatID int64, r Reply) error
}

// Submitter finalizes a reviewed draft and returns its external id.
type Submitter interface {
	Submit(ctx context.Context, d domain.Draft) (domain.ExternalID, error)
}

// Inbound is one user event: either text or a media item.
type Inbound struct {
	ChatID     int64
	Text       string
	Attachment *domain.Attachment
	// LangHint is the client language, used only before the user has
	// picked one.
	LangHint domain.Language
}

type session struct {
	mu    sync.Mutex
	fsm   *fsm.FSM
	draft domain.Draft
}

// Engine owns all conversation sessions.
type Engine struct {
	cat *i18n.Catalog
	out Messenger
	sub Submitter

	mu       sync.Mutex
	sessions map[int64]*session
}

// NewEngine wires the engine to its collaborators.
func NewEngine(cat *i18n.Catalog, out Messenger, sub Submitter) *Engine {
	return &Engine{cat: cat, out: out, sub: sub, sessions: make(map[int64]*session)}
}

// Start force-clears any draft of chatID and enters the language step.
func (e *Engine) Start(ctx context.Context, chatID int64) error {
	s := &session{fsm: newMachine(chatID), draft: domain.Draft{Language: domain.LangRU}}
	e.mu.Lock()
	e.sessions[chatID] = s
	e.mu.Unlock()
	return e.out.Send(ctx, chatID, e.langPrompt())
}

func (e *Engine) langPrompt() Reply {
	return Reply{
		Text:     e.cat.T("lang_prompt", domain.LangRU),
		Keyboard: [][]string{{e.cat.T("lang_ru", domain.LangRU), e.cat.T("lang_uz", domain.LangUZ), e.cat.T("lang_en", domain.LangEN)}},
		OneTime:  true,
	}
}

// Cancel discards the draft of chatID.
func (e *Engine) Cancel(ctx context.Context, chatID int64) error {
	return e.cancel(ctx, chatID, domain.LangRU)
}

func (e *Engine) cancel(ctx context.Context, chatID int64, lang domain.Language) error {
	if s := e.lookup(chatID); s != nil {
		s.mu.Lock()
		lang = s.draft.Language
		if s.fsm.Can(evCancel) {
			_ = s.fsm.Event(ctx, evCancel)
		}
		s.mu.Unlock()
		e.drop(chatID, s)
	}
	return e.out.Send(ctx, chatID, Reply{Text: e.cat.T("cancelled", lang), RemoveKeyboard: true})
}

// State reports the current step of chatID.
func (e *Engine) State(chatID int64) (string, bool) {
	s := e.lookup(chatID)
	if s == nil {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fsm.Current(), true
}

// Draft returns a copy of the draft of chatID.
func (e *Engine) Draft(chatID int64) (domain.Draft, bool) {
	s := e.lookup(chatID)
	if s == nil {
		return domain.Draft{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.Clone(), true
}

// Reset drops the session of chatID without replying.
func (e *Engine) Reset(chatID int64) {
	e.mu.Lock()
	delete(e.sessions, chatID)
	e.mu.Unlock()
}

func (e *Engine) lookup(chatID int64) *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[chatID]
}

// drop removes s only if it is still the session of chatID; a concurrent
// Start may already have replaced it.
func (e *Engine) drop(chatID int64, s *session) {
	e.mu.Lock()
	if e.sessions[chatID] == s {
		delete(e.sessions, chatID)
	}
	e.mu.Unlock()
}

// Handle advances the conversation of in.ChatID by one event. Invalid input
// re-prompts the current step and is not an error.
func (e *Engine) Handle(ctx context.Context, in Inbound) error {
	text := strings.TrimSpace(in.Text)
	switch {
	case in.Attachment == nil && (text == CmdStart || e.cat.IsButton("btn_new_request", text)):
		return e.Start(ctx, in.ChatID)
	case in.Attachment == nil && text == CmdCancel:
		lang := in.LangHint
		if lang == "" {
			lang = domain.LangRU
		}
		return e.cancel(ctx, in.ChatID, lang)
	}

	s := e.lookup(in.ChatID)
	if s == nil {
		return ErrNoSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	h := stepper{e: e, s: s, chatID: in.ChatID, lang: s.draft.Language}
	var err error
	switch s.fsm.Current() {
	case StateLang:
		err = h.pickLanguage(ctx, text)
	case StateConsent:
		err = h.consent(ctx, text)
	case StateName:
		err = h.name(ctx, text)
	case StatePhone:
		err = h.phone(ctx, text)
	case StateCategory:
		err = h.category(ctx, text)
	case StateText:
		err = h.body(ctx, text)
	case StateAttachments:
		err = h.attachments(ctx, text, in.Attachment)
	case StateReview:
		err = h.review(ctx, text)
	case StateEditChoice:
		err = h.editChoice(ctx, text)
	default:
		return ErrNoSession
	}
	if err != nil {
		return fmt.Errorf("conversation %d: %w", in.ChatID, err)
	}
	return nil
}

// stepper runs one step handler with the session locked.
type stepper struct {
	e      *Engine
	s      *session
	chatID int64
	lang   domain.Language
}

func (h stepper) t(key string) string { return h.e.cat.T(key, h.lang) }

func (h stepper) send(ctx context.Context, r Reply) error {
	return h.e.out.Send(ctx, h.chatID, r)
}

func (h stepper) say(ctx context.Context, key string) error {
	return h.send(ctx, Reply{Text: h.t(key)})
}

func (h stepper) fire(ctx context.Context, event string) error {
	return h.s.fsm.Event(ctx, event)
}

func (h stepper) consentKeyboard() [][]string { return [][]string{{h.t("consent_agree")}} }

func (h stepper) categoryKeyboard() [][]string {
	return pairs(h.e.cat.Categories(h.lang))
}

func (h stepper) attachmentsKeyboard() [][]string {
	return [][]string{{h.t("btn_done"), h.t("btn_skip")}}
}

func (h stepper) reviewKeyboard() [][]string {
	return [][]string{{h.t("btn_edit"), h.t("btn_send")}}
}

func (h stepper) editKeyboard() [][]string {
	return [][]string{
		{h.t("edit_name"), h.t("edit_phone")},
		{h.t("edit_category"), h.t("edit_text")},
		{h.t("edit_attachments")},
	}
}

func (h stepper) pickLanguage(ctx context.Context, text string) error {
	lang, ok := domain.ParseLanguage(text)
	if !ok {
		return h.send(ctx, h.e.langPrompt())
	}
	h.s.draft.Language = lang
	h.s.draft.Attachments = nil
	h.s.draft.Category = ""
	h.lang = lang
	if err := h.fire(ctx, evNext); err != nil {
		return err
	}
	return h.send(ctx, Reply{Text: h.t("consent_text"), Keyboard: h.consentKeyboard()})
}

func (h stepper) consent(ctx context.Context, text string) error {
	if text != h.t("consent_agree") {
		return h.send(ctx, Reply{Text: h.t("consent_text"), Keyboard: h.consentKeyboard()})
	}
	h.s.draft.Consent = true
	if err := h.fire(ctx, evNext); err != nil {
		return err
	}
	return h.send(ctx, Reply{Text: h.t("ask_name"), RemoveKeyboard: true})
}

func (h stepper) name(ctx context.Context, text string) error {
	if !format.ValidateName(text) {
		return h.say(ctx, "invalid_name")
	}
	h.s.draft.Name = text
	if err := h.fire(ctx, evNext); err != nil {
		return err
	}
	return h.say(ctx, "ask_phone")
}

func (h stepper) phone(ctx context.Context, text string) error {
	if !format.ValidatePhone(text) {
		return h.say(ctx, "invalid_phone")
	}
	h.s.draft.Phone = text
	if err := h.fire(ctx, evNext); err != nil {
		return err
	}
	return h.send(ctx, Reply{Text: h.t("choose_category"), Keyboard: h.categoryKeyboard()})
}

func (h stepper) category(ctx context.Context, text string) error {
	cat, ok := h.e.cat.MatchCategory(h.lang, text)
	if !ok {
		return h.send(ctx, Reply{Text: h.t("choose_category"), Keyboard: h.categoryKeyboard()})
	}
	h.s.draft.Category = cat
	if err := h.fire(ctx, evNext); err != nil {
		return err
	}
	return h.send(ctx, Reply{Text: h.t("ask_text"), RemoveKeyboard: true})
}

func (h stepper) body(ctx context.Context, text string) error {
	if !format.ValidText(text) {
		return h.say(ctx, "text_too_short")
	}
	h.s.draft.Text = text
	if err := h.fire(ctx, evNext); err != nil {
		return err
	}
	return h.send(ctx, Reply{Text: h.t("attachments_hint"), Keyboard: h.attachmentsKeyboard()})
}

func (h stepper) attachments(ctx context.Context, text string, a *domain.Attachment) error {
	if a != nil {
		if !a.Kind.Valid() || a.MediaRef == "" {
			return h.send(ctx, Reply{Text: h.t("attachments_hint"), Keyboard: h.attachmentsKeyboard()})
		}
		if len(h.s.draft.Attachments) >= domain.MaxAttachments {
			return h.say(ctx, "too_many_attachments")
		}
		h.s.draft.Attachments = append(h.s.draft.Attachments, *a)
		return nil
	}
	if !h.e.cat.IsButton("btn_done", text) && !h.e.cat.IsButton("btn_skip", text) {
		return h.send(ctx, Reply{Text: h.t("attachments_hint"), Keyboard: h.attachmentsKeyboard()})
	}
	if err := h.fire(ctx, evNext); err != nil {
		return err
	}
	return h.send(ctx, Reply{Text: h.summary(), Keyboard: h.reviewKeyboard()})
}

// summary renders the review text with a truncated body sample.
func (h stepper) summary() string {
	d := h.s.draft
	return h.t("review_title") + "\n\n" + h.e.cat.F("review_fields", h.lang, i18n.Vars{
		"lang":        string(d.Language),
		"name":        d.Name,
		"phone":       d.Phone,
		"cat":         d.Category,
		"text_sample": format.Truncate(d.Text, format.DefaultTruncate),
		"n":           len(d.Attachments),
	})
}

func (h stepper) review(ctx context.Context, text string) error {
	switch {
	case h.e.cat.IsButton("btn_edit", text):
		if err := h.fire(ctx, evEdit); err != nil {
			return err
		}
		return h.send(ctx, Reply{Text: h.t("edit_what"), Keyboard: h.editKeyboard()})
	case h.e.cat.IsButton("btn_send", text):
		return h.submit(ctx)
	default:
		return h.send(ctx, Reply{Text: h.summary(), Keyboard: h.reviewKeyboard()})
	}
}

func (h stepper) submit(ctx context.Context) error {
	eid, err := h.e.sub.Submit(ctx, h.s.draft.Clone())
	if err != nil {
		log.Error().Err(err).Int64("chat_id", h.chatID).Msg("submission failed")
		return h.send(ctx, Reply{Text: h.t("submit_failed"), Keyboard: h.reviewKeyboard()})
	}
	if err := h.fire(ctx, evSubmit); err != nil {
		return err
	}
	h.e.drop(h.chatID, h.s)
	if err := h.send(ctx, Reply{
		Text:           h.e.cat.F("submitted", h.lang, i18n.Vars{"eid": string(eid)}),
		RemoveKeyboard: true,
	}); err != nil {
		return err
	}
	return h.send(ctx, Reply{
		Text:     h.t("after_submit_prompt"),
		Keyboard: [][]string{{h.t("btn_new_request")}},
	})
}

func (h stepper) editChoice(ctx context.Context, text string) error {
	for _, t := range editTargets {
		if text != h.t(t.key) {
			continue
		}
		if err := h.send(ctx, Reply{
			Text:           h.e.cat.F("review_back", h.lang, i18n.Vars{"what": text}),
			RemoveKeyboard: true,
		}); err != nil {
			return err
		}
		if err := h.fire(ctx, t.event); err != nil {
			return err
		}
		switch t.state {
		case StateCategory:
			return h.send(ctx, Reply{Text: h.t("choose_category"), Keyboard: h.categoryKeyboard()})
		case StateAttachments:
			h.s.draft.Attachments = nil
			return h.send(ctx, Reply{Text: h.t("attachments_hint"), Keyboard: h.attachmentsKeyboard()})
		case StateName:
			return h.say(ctx, "ask_name")
		case StatePhone:
			return h.say(ctx, "ask_phone")
		default:
			return h.say(ctx, "ask_text")
		}
	}
	return h.send(ctx, Reply{Text: h.t("edit_what"), Keyboard: h.editKeyboard()})
}

// pairs lays labels out two per row.
func pairs(labels []string) [][]string {
	var rows [][]string
	for i := 0; i < len(labels); i += 2 {
		end := i + 2
		if end > len(labels) {
			end = len(labels)
		}
		rows = append(rows, append([]string(nil), labels[i:end]...))
	}
	return rows
}
