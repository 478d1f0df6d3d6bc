package backend

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgehand/forgehand/internal/workspace"
)

func TestNewClaudeRequiresAPIKey(t *testing.T) {
	_, err := NewClaude("", "claude-sonnet-4-5-20250929", time.Minute)
	assert.Error(t, err)
}

func TestNewClaude(t *testing.T) {
	c, err := NewClaude("sk-test", "claude-sonnet-4-5-20250929", time.Minute)
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestBuildUserMessageWrapsEachFile(t *testing.T) {
	snapshots := []workspace.FileSnapshot{
		{Path: "README.md", Content: "# hi"},
		{Path: "src/main.go", Content: "package main"},
	}

	msg := BuildUserMessage(snapshots, "add a license")

	assert.Contains(t, msg, "<file path=\"README.md\">\n# hi\n</file>")
	assert.Contains(t, msg, "<file path=\"src/main.go\">\npackage main\n</file>")
	assert.Contains(t, msg, "Task:\nadd a license")

	// Context precedes the task.
	assert.Less(t,
		strings.Index(msg, "README.md"),
		strings.Index(msg, "Task:"))
}

func TestBuildUserMessagePreservesSnapshotOrder(t *testing.T) {
	snapshots := []workspace.FileSnapshot{
		{Path: "a.txt", Content: "a"},
		{Path: "b.txt", Content: "b"},
		{Path: "c.txt", Content: "c"},
	}

	msg := BuildUserMessage(snapshots, "task")
	ia := strings.Index(msg, `path="a.txt"`)
	ib := strings.Index(msg, `path="b.txt"`)
	ic := strings.Index(msg, `path="c.txt"`)
	assert.True(t, ia < ib && ib < ic, "snapshot order must be preserved")
}

func TestBuildUserMessageEmptyRepository(t *testing.T) {
	msg := BuildUserMessage(nil, "bootstrap the project")
	assert.Contains(t, msg, "(the repository is empty)")
	assert.Contains(t, msg, "bootstrap the project")
}

func TestSystemPromptDocumentsWireFormat(t *testing.T) {
	// The system prompt is the producer side of the fileops contract;
	// both block forms must be present.
	assert.Contains(t, systemPrompt, `<write path=`)
	assert.Contains(t, systemPrompt, `<delete path=`)
	assert.Contains(t, systemPrompt, "</write>")
}
