package extract

import (
	"strings"
	"unicode"
)

// scopePrefixes maps tag and shorthand prefixes to their canonical scope
// prefix. At most one rewrite applies: every replacement starts with a
// canonical scope name, which no other entry matches.
var scopePrefixes = []struct {
	from string
	to   string
}{
	{"<player.", "player."},
	{"<server.", "server."},
	{"p.", "player."},
	{"s.", "server."},
}

// Normalize canonicalizes a raw state-access key. It trims whitespace,
// rewrites a recognized scope prefix and strips trailing '>' markers.
// Unrecognized shapes pass through unchanged.
//
// Normalize is idempotent: Normalize(Normalize(k)) == Normalize(k).
func Normalize(raw string) string {
	key := strings.TrimSpace(raw)
	for _, p := range scopePrefixes {
		if strings.HasPrefix(key, p.from) {
			key = p.to + key[len(p.from):]
			break
		}
	}
	return strings.TrimRightFunc(key, func(r rune) bool {
		return r == '>' || unicode.IsSpace(r)
	})
}
