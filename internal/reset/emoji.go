package reset

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var reCustomEmoji = regexp.MustCompile(`^<a?:\w+:\d+>$`)

// SanitizeEmoji keeps custom emoji tokens (<a:name:id>, :name:) and any valid
// UTF-8 text. Anything else becomes "".
func SanitizeEmoji(raw string) string {
	s := strings.TrimSpace(raw)
	switch {
	case s == "":
		return ""
	case reCustomEmoji.MatchString(s):
		return s
	case len(s) > 2 && strings.HasPrefix(s, ":") && strings.HasSuffix(s, ":"):
		return s
	case utf8.ValidString(s):
		return s
	default:
		return ""
	}
}
