package validators

import (
	"strings"
	"unicode"
)

// SanitizeMemo normalizes free-text invoice memos: control and format
// characters are dropped, whitespace runs fold to one space, and the result is
// cut to maxRunes runes without splitting a multi-byte character.
func SanitizeMemo(input string, maxRunes int) string {
	var b strings.Builder
	b.Grow(len(input))
	pendingSpace := false
	runes := 0
	for _, r := range input {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = b.Len() > 0
			continue
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r), r == unicode.ReplacementChar:
			continue
		}
		need := 1
		if pendingSpace {
			need = 2
		}
		if maxRunes > 0 && runes+need > maxRunes {
			break
		}
		if pendingSpace {
			b.WriteByte(' ')
			runes++
			pendingSpace = false
		}
		b.WriteRune(r)
		runes++
	}
	return b.String()
}
