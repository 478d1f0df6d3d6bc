package gitops

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubjectShortPromptUsedVerbatim(t *testing.T) {
	assert.Equal(t, "Add a health endpoint", Subject("Add a health endpoint"))
}

func TestSubjectAtBoundUsedVerbatim(t *testing.T) {
	prompt := strings.Repeat("a", maxSubjectLen)
	assert.Equal(t, prompt, Subject(prompt))
}

func TestSubjectLongPromptTruncatedWithEllipsis(t *testing.T) {
	prompt := strings.Repeat("a", maxSubjectLen+1)
	got := Subject(prompt)
	assert.Len(t, got, maxSubjectLen)
	assert.True(t, strings.HasSuffix(got, ellipsis))
}

func TestSubjectFirstLineOnly(t *testing.T) {
	got := Subject("Fix the login bug\n\nAlso refactor everything while you are at it.")
	assert.Equal(t, "Fix the login bug", got)
}

func TestSubjectCollapsesWhitespace(t *testing.T) {
	got := Subject("  Fix   the\tlogin   bug  ")
	assert.Equal(t, "Fix the login bug", got)
}

func TestSubjectEmptyPromptFallsBack(t *testing.T) {
	assert.Equal(t, "Automated change", Subject("   \n more below"))
}

func TestSubjectMultibyteTruncationStaysValidUTF8(t *testing.T) {
	prompt := strings.Repeat("é", maxSubjectLen) // 2 bytes per rune
	got := Subject(prompt)
	assert.LessOrEqual(t, len(got), maxSubjectLen)
	assert.True(t, strings.HasSuffix(got, ellipsis))
	assert.True(t, strings.ToValidUTF8(got, "") == got, "truncation split a rune")
}
