package gitops

import (
	"strings"
	"unicode/utf8"
)

// maxSubjectLen bounds the commit subject line, keeping it conventional.
const maxSubjectLen = 72

const ellipsis = "..."

// Subject derives a commit subject from the task prompt: the first line,
// whitespace-collapsed, truncated to maxSubjectLen with a trailing ellipsis
// when it exceeds the bound. Prompts at or under the bound are used
// verbatim.
func Subject(prompt string) string {
	line := prompt
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.Join(strings.Fields(line), " ")

	if line == "" {
		return "Automated change"
	}
	if len(line) <= maxSubjectLen {
		return line
	}
	return safeTruncate(line, maxSubjectLen-len(ellipsis)) + ellipsis
}

// safeTruncate truncates s to at most maxLen bytes without splitting a
// multi-byte UTF-8 sequence, backing off to the previous rune boundary.
func safeTruncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	truncated := s[:maxLen]
	for i := 0; i < utf8.UTFMax && len(truncated) > 0; i++ {
		if utf8.ValidString(truncated) {
			return truncated
		}
		truncated = truncated[:len(truncated)-1]
	}
	return truncated
}
