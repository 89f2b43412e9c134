// Package utils condenses captured process output into short, printable
// strings for logs and summaries.
package utils

import "strings"

// SafeTruncate cuts s to at most maxLen runes, marking the cut with "...".
func SafeTruncate(s string, maxLen int) string {
	if maxLen <= 0 || s == "" {
		return ""
	}

	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen < 4 {
		return string(runes[:1])
	}
	return string(runes[:maxLen-3]) + "..."
}

// SanitizeOutput removes ANSI CSI sequences and control characters other
// than newline and tab. A carriage return ends the line it is on, so
// progress redraws collapse to their final state.
func SanitizeOutput(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	inEscape := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\x1b' && i+1 < len(s) && s[i+1] == '[' {
			inEscape = true
			i++
			continue
		}
		if inEscape {
			if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
				inEscape = false
			}
			continue
		}
		switch {
		case c == '\r':
			if i+1 < len(s) && s[i+1] != '\n' {
				dropCurrentLine(&result)
			}
		case c >= 32 && c != 0x7f, c == '\n', c == '\t':
			result.WriteByte(c)
		}
	}
	return result.String()
}

func dropCurrentLine(b *strings.Builder) {
	out := b.String()
	idx := strings.LastIndexByte(out, '\n')
	b.Reset()
	b.WriteString(out[:idx+1])
}

// OneLine sanitizes s, collapses all whitespace runs to single spaces and
// truncates the result to maxLen runes.
func OneLine(s string, maxLen int) string {
	return SafeTruncate(strings.Join(strings.Fields(SanitizeOutput(s)), " "), maxLen)
}

// LastLines keeps the final n non-blank lines of s joined by sep.
func LastLines(s string, n int, sep string) string {
	if n <= 0 {
		return ""
	}
	lines := strings.Split(s, "\n")
	kept := make([]string, 0, n)
	for i := len(lines) - 1; i >= 0 && len(kept) < n; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			kept = append(kept, line)
		}
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return strings.Join(kept, sep)
}
