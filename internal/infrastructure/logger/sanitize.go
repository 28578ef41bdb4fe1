package logger

import (
	"fmt"
	"strings"
)

// MaxValueLen bounds how much of a client supplied value reaches the log.
const MaxValueLen = 256

// SanitizeForLog escapes control characters so request values such as
// source paths and option strings cannot forge log lines, and truncates
// them to MaxValueLen runes.
func SanitizeForLog(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))

	n := 0
	for _, r := range s {
		if n == MaxValueLen {
			sb.WriteString("...")
			break
		}
		n++

		switch r {
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if r < 32 || r == 127 {
				fmt.Fprintf(&sb, `\x%02x`, r)
				continue
			}
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
