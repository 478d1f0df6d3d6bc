// Package backend calls the generative model that proposes file changes.
// The model's single text response is the wire-format input for
// fileops.Parse; the backend itself makes no decisions about the output
// beyond returning it.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog/log"

	"github.com/forgehand/forgehand/internal/workspace"
)

// ErrBackend reports a failed or empty generative call. No files have been
// touched when it is returned.
var ErrBackend = errors.New("backend call failed")

// maxOutputTokens bounds the model's response. Whole-file rewrites are
// large, so this is generous.
const maxOutputTokens = 16384

// systemPrompt defines the tagged-block output contract the parser
// expects.
const systemPrompt = `You are an automated coding agent. You receive the full content of every file in a repository and a task. Respond with file operations using exactly this format:

To create or fully replace a file:
<write path="relative/path/to/file.ext">
the complete new file content
</write>

To delete a file:
<delete path="relative/path/to/file.ext"/>

Rules:
- Always emit the COMPLETE content of any file you write. Never emit diffs, patches, or elided sections.
- Paths are relative to the repository root, using forward slashes.
- Never include the literal sequence "</write>" inside file content; it terminates the block.
- Only emit blocks for files that must change. If nothing needs to change, emit no blocks.
- Any text outside the blocks is ignored.`

// Generator produces a change proposal for a task given full repository
// context.
type Generator interface {
	GenerateChanges(ctx context.Context, snapshots []workspace.FileSnapshot, task string) (string, error)
}

// Claude implements Generator against the Anthropic Messages API.
type Claude struct {
	client  *anthropic.Client
	model   string
	timeout time.Duration
}

// Compile-time check that Claude implements Generator
var _ Generator = (*Claude)(nil)

// NewClaude creates a Claude generator. apiKey is required; model falls
// back to the caller's configured default and timeout bounds each call.
func NewClaude(apiKey, model string, timeout time.Duration) (*Claude, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Claude{client: &client, model: model, timeout: timeout}, nil
}

// GenerateChanges sends the repository context and task to the model and
// returns its raw text response. The call is bounded by the configured
// timeout; on expiry the job fails with a timeout error and is not
// retried.
func (c *Claude) GenerateChanges(ctx context.Context, snapshots []workspace.FileSnapshot, task string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxOutputTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(BuildUserMessage(snapshots, task))),
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("generative call exceeded %v: %w", c.timeout, ctx.Err())
		}
		return "", fmt.Errorf("%w: %v", ErrBackend, err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("%w: response contained no text", ErrBackend)
	}

	log.Info().
		Int64("input_tokens", resp.Usage.InputTokens).
		Int64("output_tokens", resp.Usage.OutputTokens).
		Dur("duration", time.Since(start)).
		Str("model", c.model).
		Msg("generative call complete")

	return text.String(), nil
}

// BuildUserMessage assembles the user message: every snapshot wrapped in a
// file block carrying its path, followed by the task text.
func BuildUserMessage(snapshots []workspace.FileSnapshot, task string) string {
	var b strings.Builder

	b.WriteString("Current repository content:\n\n")
	if len(snapshots) == 0 {
		b.WriteString("(the repository is empty)\n\n")
	}
	for _, s := range snapshots {
		fmt.Fprintf(&b, "<file path=%q>\n%s\n</file>\n\n", s.Path, s.Content)
	}

	b.WriteString("Task:\n")
	b.WriteString(task)
	return b.String()
}
