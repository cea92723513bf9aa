// Package format holds the stateless validation and rendering helpers of the
// intake flow: input predicates, external id formatting, and the staff card
// and case description templates. Nothing here touches shared state.
package format

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tbourn/hr-intake-bot/internal/domain"
)

// DefaultTruncate is the sample length used in review summaries.
const DefaultTruncate = 140

// Ellipsis marks truncated text.
const Ellipsis = "…"

// phoneRE: optional leading '+' or digit, then 6–19 digits/spaces/hyphens/parentheses.
var phoneRE = regexp.MustCompile(`^[+\d][\d\s\-()]{6,19}$`)

// ValidateName reports whether the trimmed name is 2..120 characters long.
func ValidateName(s string) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	return n >= 2 && n <= 120
}

// ValidatePhone reports whether s has a phone shape and 7..20 digits.
func ValidatePhone(s string) bool {
	s = strings.TrimSpace(s)
	if !phoneRE.MatchString(s) {
		return false
	}
	digits := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return digits >= 7 && digits <= 20
}

// ValidText reports whether a complaint body is long enough to advance.
func ValidText(s string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(s)) >= domain.MinTextLength
}

// Truncate returns s unchanged when it has at most n characters, otherwise the
// first n-1 characters followed by an ellipsis.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + Ellipsis
}

// ExternalID formats `<prefix>-<year>-<6-digit seq>`.
func ExternalID(prefix string, year int, seq uint64) domain.ExternalID {
	return domain.ExternalID(fmt.Sprintf("%s-%d-%06d", prefix, year, seq))
}
