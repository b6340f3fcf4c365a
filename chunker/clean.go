package chunker

import "strings"

// CleanText removes NUL bytes and other control characters that Postgres
// text columns cannot store. Newlines, tabs and carriage returns survive.
func CleanText(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 32 || r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		return -1
	}, s)
}
