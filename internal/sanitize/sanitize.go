// Package sanitize cleans user-supplied text before it's sent to the backend or
// stored as a chat message.
package sanitize

import (
	"html"
	"strings"
	"unicode/utf8"

	goaway "github.com/TwiN/go-away"
	"github.com/microcosm-cc/bluemonday"
	"github.com/sym01/htmlsanitizer"
)

var stripPolicy = bluemonday.StrictPolicy()

// Strip removes all html tags from the string and trims it down to max
// characters. A max of zero means no limit.
//
// The result is plain text: the entities bluemonday escapes are turned back
// into what the user typed.
func Strip(s string, max int) string {
	s = strings.TrimSpace(s)
	s = html.UnescapeString(stripPolicy.Sanitize(s))
	if max > 0 && utf8.RuneCountInString(s) > max {
		s = string([]rune(s)[:max])
	}

	return s
}

// RichText keeps the harmless formatting in a listing description (paragraphs,
// lists, emphasis) and drops everything else.
func RichText(s string) (string, error) {
	return htmlsanitizer.NewHTMLSanitizer().SanitizeString(s)
}

// Profane reports whether any of the given strings contain profanity.
func Profane(ss ...string) bool {
	for _, s := range ss {
		if goaway.IsProfane(s) {
			return true
		}
	}

	return false
}
