package utils

import (
	"strings"
	"testing"
)

func TestSafeTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"empty", "", 10, ""},
		{"zero max", "hello", 0, ""},
		{"fits", "hello", 5, "hello"},
		{"cut with ellipsis", "hello world", 8, "hello..."},
		{"tiny max keeps first rune", "hello", 3, "h"},
		{"runes not bytes", "你好世界你好", 5, "你好..."},
		{"emoji kept whole", "🙂🙂🙂🙂🙂", 4, "🙂..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeTruncate(tt.input, tt.maxLen); got != tt.want {
				t.Fatalf("SafeTruncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestSanitizeOutput(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "ok\n", "ok\n"},
		{"color codes", "\x1b[31mFAIL\x1b[0m test_a", "FAIL test_a"},
		{"bell and nul", "a\x07b\x00c", "abc"},
		{"tabs kept", "a\tb", "a\tb"},
		{"progress redraw", "10%\r50%\r100%\ndone", "100%\ndone"},
		{"crlf kept as newline", "line1\r\nline2", "line1\nline2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeOutput(tt.input); got != tt.want {
				t.Fatalf("SanitizeOutput(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestOneLine(t *testing.T) {
	got := OneLine("  \x1b[1mAssertionError\x1b[0m:\n\texpected 1\n   got 2  ", 100)
	if got != "AssertionError: expected 1 got 2" {
		t.Fatalf("OneLine() = %q", got)
	}
	if got := OneLine(strings.Repeat("x ", 100), 10); len([]rune(got)) != 10 || !strings.HasSuffix(got, "...") {
		t.Fatalf("OneLine() = %q, want 10 runes ending in ...", got)
	}
}

func TestLastLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		n     int
		want  string
	}{
		{"fewer lines than n", "a\nb", 5, "a | b"},
		{"keeps tail", "a\nb\nc\nd", 2, "c | d"},
		{"skips blank lines", "a\n\n  \nb\n\n", 2, "a | b"},
		{"zero n", "a", 0, ""},
		{"empty", "", 3, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LastLines(tt.input, tt.n, " | "); got != tt.want {
				t.Fatalf("LastLines(%q, %d) = %q, want %q", tt.input, tt.n, got, tt.want)
			}
		})
	}
}

func BenchmarkSanitizeOutput(b *testing.B) {
	input := strings.Repeat("\x1b[32mPASS\x1b[0m test_case\r\n", 200)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		SanitizeOutput(input)
	}
}
