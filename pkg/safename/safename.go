// Package safename turns event types and tag (key, value) pairs into
// filesystem-safe, injective file names (spec §4.3: "the escape must be
// injective so two distinct inputs never collide"). Grounded on the
// sanitizeFilename character-replacement pattern used across the
// filesystem-backed stores in the retrieval pack, extended with a
// unicode-normalization pass (spec §9 EXPANDED) so that two
// byte-distinct-but-canonically-equivalent strings map to the same file
// name instead of acting as two different tags.
package safename

import (
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// escapeChar is used to percent-escape any byte that is not safe across
// the filesystems Opossum targets. It must not itself be one of those
// bytes, or the escaping would not be injective.
const escapeChar = '~'

// '_' is escaped too: TagFile joins its two escaped components with a
// literal '_', and a plain '_' inside a component would be indistinguishable
// from that join separator, letting two distinct (key, value) pairs collapse
// onto the same file name (e.g. ("a_b", "c") and ("a", "b_c")). Escaping it
// here frees '_' as an unambiguous separator.
var unsafe = [256]bool{
	'/': true, '\\': true, ':': true, '*': true, '?': true,
	'"': true, '<': true, '>': true, '|': true, ' ': true,
	'\x00': true, escapeChar: true, '_': true,
}

// Escape normalises s to NFC and then percent-escapes (with '~' instead of
// '%', which is itself filesystem-sensitive on some hosts) every byte
// outside [A-Za-z0-9.-]. The result is injective: distinct normalised
// inputs always produce distinct outputs, and the escape character itself
// is always escaped, so there is no ambiguity between an escaped byte and
// a literal one.
func Escape(s string) string {
	s = norm.NFC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isPlain(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte(escapeChar)
		b.WriteString(strings.ToUpper(hex.EncodeToString([]byte{c})))
	}
	return b.String()
}

func isPlain(c byte) bool {
	if unsafe[c] {
		return false
	}
	switch {
	case c >= 'a' && c <= 'z':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '.' || c == '-':
		return true
	}
	return false
}

// EventTypeFile returns the indices/eventtype/{safe(eventType)}.json path
// component (the caller joins it to the context root).
func EventTypeFile(eventType string) string {
	return Escape(eventType) + ".json"
}

// TagFile returns the indices/tag/{safe(key)}_{safe(value)}.json path
// component.
func TagFile(key, value string) string {
	return Escape(key) + "_" + Escape(value) + ".json"
}
