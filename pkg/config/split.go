package config

import (
	"strings"
	"unicode"
)

// SplitQuotedFields splits in on whitespace, keeping runs surrounded by the
// quote character together as one field. Inside a quoted run a backslash
// escapes the next character. The terminal's config command uses it so
// aliases and values may contain spaces.
func SplitQuotedFields(in string, quote rune) []string {
	var (
		fields  []string
		buf     strings.Builder
		quoted  bool
		escaped bool
		started bool
	)

	for _, ch := range in {
		switch {
		case escaped:
			buf.WriteRune(ch)
			escaped = false
		case quoted:
			switch ch {
			case quote:
				quoted = false
			case '\\':
				escaped = true
			default:
				buf.WriteRune(ch)
			}
		case ch == quote:
			quoted = true
			started = true
		case unicode.IsSpace(ch):
			if started {
				fields = append(fields, buf.String())
				buf.Reset()
				started = false
			}
		default:
			buf.WriteRune(ch)
			started = true
		}
	}
	if buf.Len() > 0 {
		fields = append(fields, buf.String())
	}
	return fields
}
