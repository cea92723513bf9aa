package conversation

import (
	"context"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog/log"
)

// Collection states, in order.
const (
	StateLang        = "lang"
	StateConsent     = "consent"
	StateName        = "name"
	StatePhone       = "phone"
	StateCategory    = "category"
	StateText        = "text"
	StateAttachments = "attachments"
	StateReview      = "review"
	StateEditChoice  = "edit_choice"
	StateSubmitted   = "submitted"
	StateCancelled   = "cancelled"
)

const (
	evNext   = "next"
	evEdit   = "edit"
	evSubmit = "submit"
	evCancel = "cancel"
)

// editTargets maps each edit menu key to its event and target state.
// Editing re-joins the main sequence at the target, so the next step after
// it is the following field rather than the review.
var editTargets = []struct {
	key   string
	event string
	state string
}{
	{"edit_name", "edit_name", StateName},
	{"edit_phone", "edit_phone", StatePhone},
	{"edit_category", "edit_category", StateCategory},
	{"edit_text", "edit_text", StateText},
	{"edit_attachments", "edit_attachments", StateAttachments},
}

var collecting = []string{
	StateLang, StateConsent, StateName, StatePhone, StateCategory,
	StateText, StateAttachments, StateReview, StateEditChoice,
}

func events() fsm.Events {
	evs := fsm.Events{
		{Name: evNext, Src: []string{StateLang}, Dst: StateConsent},
		{Name: evNext, Src: []string{StateConsent}, Dst: StateName},
		{Name: evNext, Src: []string{StateName}, Dst: StatePhone},
		{Name: evNext, Src: []string{StatePhone}, Dst: StateCategory},
		{Name: evNext, Src: []string{StateCategory}, Dst: StateText},
		{Name: evNext, Src: []string{StateText}, Dst: StateAttachments},
		{Name: evNext, Src: []string{StateAttachments}, Dst: StateReview},
		{Name: evEdit, Src: []string{StateReview}, Dst: StateEditChoice},
		{Name: evSubmit, Src: []string{StateReview}, Dst: StateSubmitted},
		{Name: evCancel, Src: collecting, Dst: StateCancelled},
	}
	for _, t := range editTargets {
		evs = append(evs, fsm.EventDesc{Name: t.event, Src: []string{StateEditChoice}, Dst: t.state})
	}
	return evs
}

func newMachine(chatID int64) *fsm.FSM {
	return fsm.NewFSM(StateLang, events(), fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			log.Debug().
				Int64("chat_id", chatID).
				Str("event", e.Event).
				Str("from", e.Src).
				Str("to", e.Dst).
				Msg("conversation transition")
		},
	})
}
