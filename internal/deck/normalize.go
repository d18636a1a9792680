package deck

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// whitespaceRegex matches one or more whitespace characters
var whitespaceRegex = regexp.MustCompile(`\s+`)

// Normalize trims, lowercases, and collapses internal whitespace to single spaces.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// CountChars returns the character count as runes (not bytes).
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}

// ParseOrientation accepts "upright" or "reversed" in any case. Empty means upright.
func ParseOrientation(s string) (Orientation, error) {
	switch Normalize(s) {
	case "", string(Upright):
		return Upright, nil
	case string(Reversed):
		return Reversed, nil
	default:
		return "", fmt.Errorf("unknown orientation %q", s)
	}
}

// ParseArcana accepts "major" or "minor"; empty means any.
func ParseArcana(s string) (Arcana, error) {
	switch a := Arcana(Normalize(s)); a {
	case "", Major, Minor:
		return a, nil
	default:
		return "", fmt.Errorf("unknown arcana %q", s)
	}
}

// ParseSuit accepts a suit name; empty means any.
func ParseSuit(s string) (Suit, error) {
	switch su := Suit(Normalize(s)); su {
	case "", Wands, Cups, Swords, Pentacles:
		return su, nil
	default:
		return "", fmt.Errorf("unknown suit %q", s)
	}
}
