package sheets

import (
	"unicode/utf8"

	"github.com/pkg/errors"
)

// maxJSONRepairs caps the sanitizer so a completely broken payload fails
// instead of being silently rewritten into garbage.
const maxJSONRepairs = 500

// ErrTooManyRepairs is returned when a payload needs more character
// replacements than the sanitizer allows.
var ErrTooManyRepairs = errors.New("payload has too many control characters")

// sanitizeJSON replaces raw control characters (0x00-0x1F, 0x7F, U+2028,
// U+2029) found inside string literals with spaces so encoding/json does
// not fail on upstream payloads carrying unescaped control characters in
// cell values. Structural whitespace between tokens is legal JSON and does
// not count against the repair budget. This is a bounded repair pass for a
// misbehaving upstream, not a general JSON parser.
func sanitizeJSON(raw []byte) ([]byte, error) {
	out := make([]byte, 0, len(raw))
	repairs := 0
	inString := false
	escaped := false
	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRune(raw[i:])
		if inString && (r < 0x20 || r == 0x7F || r == 0x2028 || r == 0x2029) {
			repairs++
			if repairs > maxJSONRepairs {
				return nil, ErrTooManyRepairs
			}
			out = append(out, ' ')
			escaped = false
			i += size
			continue
		}
		out = append(out, raw[i:i+size]...)
		switch {
		case escaped:
			escaped = false
		case inString && r == '\\':
			escaped = true
		case r == '"':
			inString = !inString
		}
		i += size
	}
	return out, nil
}

// sanitizeCell strips control characters from a single cell value so it can
// be safely re-serialized later.
func sanitizeCell(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
