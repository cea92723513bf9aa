package telegram

import (
	"time"

	"github.com/tbourn/hr-intake-bot/internal/domain"
)

// Update is the subset of the Bot API update object the bot consumes.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// Kind names the update flavour for logging and metrics.
func (u Update) Kind() string {
	switch {
	case u.CallbackQuery != nil:
		return "callback"
	case u.Message == nil:
		return "other"
	case u.Message.Text != "":
		return "text"
	default:
		if _, ok := u.Message.Attachment(); ok {
			return "media"
		}
		return "other"
	}
}

type User struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot"`
	FirstName    string `json:"first_name"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

type Chat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
}

type PhotoSize struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
}

type File struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
}

type Message struct {
	MessageID int         `json:"message_id"`
	Date      int64       `json:"date"`
	From      *User       `json:"from,omitempty"`
	Chat      Chat        `json:"chat"`
	Text      string      `json:"text,omitempty"`
	Caption   string      `json:"caption,omitempty"`
	Photo     []PhotoSize `json:"photo,omitempty"`
	Document  *File       `json:"document,omitempty"`
	Video     *File       `json:"video,omitempty"`
	Voice     *File       `json:"voice,omitempty"`
}

// Attachment extracts a media reference. For photos the largest size (the
// last element) is used.
func (m *Message) Attachment() (domain.Attachment, bool) {
	switch {
	case len(m.Photo) > 0:
		return domain.Attachment{Kind: domain.KindPhoto, MediaRef: m.Photo[len(m.Photo)-1].FileID}, true
	case m.Document != nil:
		return domain.Attachment{Kind: domain.KindDocument, MediaRef: m.Document.FileID}, true
	case m.Video != nil:
		return domain.Attachment{Kind: domain.KindVideo, MediaRef: m.Video.FileID}, true
	case m.Voice != nil:
		return domain.Attachment{Kind: domain.KindVoice, MediaRef: m.Voice.FileID}, true
	}
	return domain.Attachment{}, false
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

// Sent identifies a message the bot posted.
type Sent struct {
	MessageID int
	Date      time.Time
}

// ---- reply markup ----

type KeyboardButton struct {
	Text string `json:"text"`
}

type ReplyKeyboard struct {
	Keyboard        [][]KeyboardButton `json:"keyboard"`
	ResizeKeyboard  bool               `json:"resize_keyboard,omitempty"`
	OneTimeKeyboard bool               `json:"one_time_keyboard,omitempty"`
}

type ReplyKeyboardRemove struct {
	RemoveKeyboard bool `json:"remove_keyboard"`
}

type InlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type InlineKeyboard struct {
	InlineKeyboard [][]InlineButton `json:"inline_keyboard"`
}

// Rows builds a resizable reply keyboard, one row per argument.
func Rows(rows ...[]string) ReplyKeyboard {
	kb := ReplyKeyboard{ResizeKeyboard: true}
	for _, r := range rows {
		row := make([]KeyboardButton, 0, len(r))
		for _, t := range r {
			row = append(row, KeyboardButton{Text: t})
		}
		kb.Keyboard = append(kb.Keyboard, row)
	}
	return kb
}

// RemoveKeyboard hides any reply keyboard.
var RemoveKeyboard = ReplyKeyboardRemove{RemoveKeyboard: true}
