package terminal

import "strings"

// LineAssembler splits a filtered output stream into logical lines. A bare
// carriage return rewinds the current line, as a terminal would.
type LineAssembler struct {
	current strings.Builder
	pending bool
}

// Write consumes data and returns the lines completed by it.
func (a *LineAssembler) Write(data []byte) []string {
	var lines []string
	for _, b := range data {
		switch b {
		case '\n':
			lines = append(lines, a.current.String())
			a.current.Reset()
			a.pending = false
		case '\r':
			a.pending = true
		default:
			if a.pending {
				a.current.Reset()
				a.pending = false
			}
			a.current.WriteByte(b)
		}
	}
	return lines
}

// Partial returns the unterminated trailing line.
func (a *LineAssembler) Partial() string {
	return a.current.String()
}
