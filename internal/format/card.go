package format

import (
	"fmt"
	"html"
	"strings"

	"github.com/tbourn/hr-intake-bot/internal/domain"
)

// Card line prefixes. The admin tooling locates the status line by
// StatusMarker, so the layout below is a contract: one field per line,
// status on the sixth line, body after a blank line.
const (
	markerID       = "🆔 "
	markerLang     = "🌐 "
	markerName     = "👤 "
	markerPhone    = "📞 "
	markerCategory = "📂 "
	StatusMarker   = "🔧 Статус:"
	markerCase     = "🧩 "
)

// Card is the data rendered into a staff-channel card.
type Card struct {
	ID          domain.ExternalID
	Language    domain.Language
	Name        string
	Phone       string
	Category    string
	StatusLabel string
	Text        string
}

// RenderCard renders the HTML card posted to the staff channel. User-supplied
// fields are HTML-escaped.
func RenderCard(c Card) string {
	var b strings.Builder
	b.WriteString(markerID + "<b>" + html.EscapeString(string(c.ID)) + "</b>\n")
	b.WriteString(markerLang + string(c.Language) + "\n")
	b.WriteString(markerName + html.EscapeString(c.Name) + "\n")
	b.WriteString(markerPhone + html.EscapeString(c.Phone) + "\n")
	b.WriteString(markerCategory + html.EscapeString(c.Category) + "\n")
	b.WriteString(StatusMarker + " " + html.EscapeString(c.StatusLabel) + "\n\n")
	b.WriteString(html.EscapeString(c.Text))
	return b.String()
}

// ReplaceStatusLine rewrites the value of the status line and leaves every
// other byte untouched. Without a status line the input is returned as-is.
func ReplaceStatusLine(card, status string) string {
	i := strings.Index(card, StatusMarker)
	if i < 0 {
		return card
	}
	start := i + len(StatusMarker)
	for start < len(card) && (card[start] == ' ' || card[start] == '\t') {
		start++
	}
	end := strings.IndexByte(card[start:], '\n')
	if end < 0 {
		end = len(card)
	} else {
		end += start
	}
	return card[:start] + html.EscapeString(status) + card[end:]
}

// CaseLine is the reference line appended to a card once the external case
// exists. It is empty for a zero reference.
func CaseLine(ref domain.CaseRef) string {
	switch {
	case ref.CRMItemID != nil:
		return fmt.Sprintf("\n%sCRM item: %d", markerCase, *ref.CRMItemID)
	case ref.TaskID != nil:
		return fmt.Sprintf("\n%sTask ID: %d", markerCase, *ref.TaskID)
	}
	return ""
}

// Description is the data rendered into the external case body.
type Description struct {
	ID          domain.ExternalID
	Language    domain.Language
	Name        string
	Phone       string
	Category    string
	Text        string
	Attachments []domain.Attachment
}

// RenderDescription renders the plain-text case description for Bitrix24.
func RenderDescription(d Description) string {
	lines := []string{
		"Внешний ID: " + string(d.ID),
		"Язык: " + string(d.Language),
		"Имя: " + d.Name,
		"Телефон: " + d.Phone,
		"Категория: " + d.Category,
		"",
		"Текст обращения:",
		d.Text,
		"",
	}
	if len(d.Attachments) == 0 {
		lines = append(lines, "Вложения: нет")
	} else {
		lines = append(lines, "Вложения (отправлены в служебный канал):")
		for i, a := range d.Attachments {
			lines = append(lines, fmt.Sprintf("%d. %s: file_id=%s", i+1, a.Kind, a.MediaRef))
		}
	}
	return strings.Join(lines, "\n")
}
