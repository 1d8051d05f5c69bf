package natsgath

import "strings"

// Output shipped in progress messages is clipped to a text rectangle so a
// runaway print loop cannot balloon the message bus.
const (
	maxHeight = 40
	maxWidth  = 80
)

func trimToRect(s string, maxHeight, maxWidth int) string {
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > maxHeight {
		lines = lines[:maxHeight]
		lines = append(lines, "[...]")
	}
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		if len(line) > maxWidth {
			b.WriteString(line[:maxWidth])
			b.WriteString("[...]")
		} else {
			b.WriteString(line)
		}
	}
	return b.String()
}
