// Package visualize renders raw packet bytes as display-safe text for the
// packet pane and the packet log.
package visualize

import (
	"strings"
)

const hexDigits = "0123456789abcdef"

// Printable reports whether b is a printable 7-bit ASCII character.
func Printable(b byte) bool {
	return b >= 0x20 && b <= 0x7e
}

// Space reports whether b is one of the ASCII whitespace characters.
func Space(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// RenderPrintable copies printable characters through and escapes every other
// byte as \xNN. A bare trailing newline or carriage return (or the \r of a
// final \r\n pair) passes through verbatim. The result never exceeds limit
// bytes; limit <= 0 means unbounded.
func RenderPrintable(buf []byte, limit int) string {
	var b strings.Builder
	b.Grow(len(buf))
	n := len(buf)
	for i := 0; i < n; i++ {
		c := buf[i]
		verbatim := Printable(c) ||
			(c == '\n' && i == n-1) ||
			(c == '\r' && (i == n-1 || (i == n-2 && buf[n-1] == '\n')))
		if verbatim {
			if !fits(&b, 1, limit) {
				break
			}
			b.WriteByte(c)
			continue
		}
		if !fits(&b, 4, limit) {
			break
		}
		writeEscape(&b, c)
	}
	return b.String()
}

// RenderConditional passes an all-printable buffer through RenderPrintable
// rules and hex dumps anything else. For textual packet types a trailing \n or
// \r\n is dropped from the printable rendering. A buffer holding any byte that
// is neither printable nor whitespace renders as two lowercase hex digits per
// byte with no separators.
func RenderConditional(buf []byte, textual bool, limit int) string {
	printable := true
	for _, c := range buf {
		if !Printable(c) && !Space(c) {
			printable = false
			break
		}
	}
	var b strings.Builder
	if !printable {
		b.Grow(2 * len(buf))
		for _, c := range buf {
			if !fits(&b, 2, limit) {
				break
			}
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0f])
		}
		return b.String()
	}

	n := len(buf)
	b.Grow(n)
	for i := 0; i < n; i++ {
		c := buf[i]
		if Printable(c) {
			if !fits(&b, 1, limit) {
				break
			}
			b.WriteByte(c)
			continue
		}
		if textual {
			if i == n-1 && c == '\n' {
				continue
			}
			if i == n-2 && c == '\r' && buf[n-1] == '\n' {
				continue
			}
		}
		if !fits(&b, 4, limit) {
			break
		}
		writeEscape(&b, c)
	}
	return b.String()
}

func writeEscape(b *strings.Builder, c byte) {
	b.WriteString(`\x`)
	b.WriteByte(hexDigits[c>>4])
	b.WriteByte(hexDigits[c&0x0f])
}

func fits(b *strings.Builder, n, limit int) bool {
	return limit <= 0 || b.Len()+n <= limit
}
