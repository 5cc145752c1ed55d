package eventloop

// LineBuffer assembles operator keystrokes into command lines. Backspace and
// DEL erase, CR or LF completes a line, NUL and other control bytes are
// dropped.
type LineBuffer struct {
	buf []byte
	max int
}

// NewLineBuffer bounds a pending line to max bytes; extra input is ignored
// until the line is completed.
func NewLineBuffer(max int) *LineBuffer {
	if max <= 0 {
		max = 80
	}
	return &LineBuffer{max: max}
}

// Feed consumes keystrokes and returns the lines they complete. Empty lines
// are not returned.
func (l *LineBuffer) Feed(p []byte) []string {
	var lines []string
	for _, c := range p {
		switch {
		case c == '\r' || c == '\n':
			if len(l.buf) > 0 {
				lines = append(lines, string(l.buf))
				l.buf = l.buf[:0]
			}
		case c == 0x08 || c == 0x7f:
			if len(l.buf) > 0 {
				l.buf = l.buf[:len(l.buf)-1]
			}
		case c < ' ' && c != '\t':
		default:
			if len(l.buf) < l.max {
				l.buf = append(l.buf, c)
			}
		}
	}
	return lines
}

// Pending is the partial line typed so far.
func (l *LineBuffer) Pending() string {
	return string(l.buf)
}
