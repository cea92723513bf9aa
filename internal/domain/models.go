// Package domain defines the core types of the intake bot: the per-user
// submission draft, the external case identifiers, and the two correlated
// records (history and card index) kept for every submitted complaint.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Language is one of the three supported conversation languages.
type Language string

const (
	LangRU Language = "RU"
	LangUZ Language = "UZ"
	LangEN Language = "EN"
)

// Languages lists the supported languages in menu order.
var Languages = []Language{LangRU, LangUZ, LangEN}

// ParseLanguage matches s exactly against the three language tokens.
func ParseLanguage(s string) (Language, bool) {
	switch Language(strings.TrimSpace(s)) {
	case LangRU:
		return LangRU, true
	case LangUZ:
		return LangUZ, true
	case LangEN:
		return LangEN, true
	}
	return "", false
}

// Status is the stable lifecycle state of a submission. It is localized only
// when rendered.
type Status int

const (
	StatusNew Status = iota
	StatusInWork
	StatusClosed
)

// String returns a stable machine name (used in logs, metrics and the ops API).
func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusInWork:
		return "in_work"
	case StatusClosed:
		return "closed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Action is an operator action applied to a card.
type Action string

const (
	ActionMarkInWork Action = "work"
	ActionClose      Action = "close"
)

// ParseAction maps callback tokens to actions.
func ParseAction(s string) (Action, bool) {
	switch Action(s) {
	case ActionMarkInWork:
		return ActionMarkInWork, true
	case ActionClose:
		return ActionClose, true
	}
	return "", false
}

// Target returns the status an action moves a card to.
func (a Action) Target() Status {
	if a == ActionClose {
		return StatusClosed
	}
	return StatusInWork
}

// AttachmentKind enumerates the accepted media kinds.
type AttachmentKind string

const (
	KindPhoto    AttachmentKind = "photo"
	KindDocument AttachmentKind = "document"
	KindVideo    AttachmentKind = "video"
	KindVoice    AttachmentKind = "voice"
)

// Valid reports whether k is one of the four accepted kinds.
func (k AttachmentKind) Valid() bool {
	switch k {
	case KindPhoto, KindDocument, KindVideo, KindVoice:
		return true
	}
	return false
}

// MaxAttachments caps the attachment list of a draft.
const MaxAttachments = 10

// MinTextLength is the minimum body length (in characters) of a draft.
const MinTextLength = 15

// Attachment references a media item already stored by the chat transport.
type Attachment struct {
	Kind     AttachmentKind `json:"type"`
	MediaRef string         `json:"file_id"`
}

// Draft is the transient, per-conversation submission being collected.
// It is owned by exactly one conversation session.
type Draft struct {
	Language    Language
	Consent     bool
	Name        string
	Phone       string
	Category    string
	Text        string
	Attachments []Attachment
}

// Clone returns a deep copy of the draft.
func (d Draft) Clone() Draft {
	out := d
	if d.Attachments != nil {
		out.Attachments = append([]Attachment(nil), d.Attachments...)
	}
	return out
}

// ExternalID is the immutable `<PREFIX>-<year>-<6-digit sequence>` identifier
// handed out for every submission.
type ExternalID string

// BackendMode selects the Bitrix24 flavour used for external cases.
type BackendMode string

const (
	ModeTasks BackendMode = "TASKS"
	ModeCRM   BackendMode = "CRM"
)

// CaseRef points at an external case. Exactly one of TaskID/CRMItemID is set
// for a created case; the zero value means "no case".
type CaseRef struct {
	TaskID    *int64 `json:"task_id,omitempty"`
	CRMItemID *int64 `json:"crm_item_id,omitempty"`
}

// TaskRef builds a task-mode reference.
func TaskRef(id int64) CaseRef { return CaseRef{TaskID: &id} }

// CRMItemRef builds a CRM-item-mode reference.
func CRMItemRef(id int64) CaseRef { return CaseRef{CRMItemID: &id} }

// IsZero reports whether the reference points nowhere.
func (r CaseRef) IsZero() bool { return r.TaskID == nil && r.CRMItemID == nil }

// HistoryRecord is the export/statistics row written once per submission.
// Only Status and StatusLabel change afterwards.
type HistoryRecord struct {
	ID               ExternalID `json:"id"`
	Date             time.Time  `json:"date"`
	Language         Language   `json:"language"`
	Name             string     `json:"name"`
	Phone            string     `json:"phone"`
	Category         string     `json:"category"`
	Status           Status     `json:"-"`
	StatusLabel      string     `json:"status"`
	TextLen          int        `json:"text_len"`
	AttachmentsCount int        `json:"attachments_count"`
}

// CardIndexEntry links an external id to its staff-channel card and its
// backend case.
type CardIndexEntry struct {
	ID               ExternalID `json:"id"`
	Case             CaseRef    `json:"case"`
	ChannelMessageID int        `json:"channel_message_id"`
	Language         Language   `json:"language"`
	Status           Status     `json:"-"`
	StatusLabel      string     `json:"status"`
	CardText         string     `json:"-"`
}
