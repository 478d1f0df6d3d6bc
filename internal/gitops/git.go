// Package gitops wraps the git CLI as an opaque subprocess collaborator:
// clone, pull, status, commit, and push, with credentials redacted from
// every error and log line.
package gitops

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrGit reports a git subprocess that exited non-zero. The wrapping
// error carries the failing subcommand and its redacted stderr.
var ErrGit = errors.New("git command failed")

// Git implements Operations using the git CLI.
type Git struct {
	// gitPath is the path to the git executable
	gitPath string
}

// Compile-time check that Git implements Operations
var _ Operations = (*Git)(nil)

// NewGit creates a new Git instance.
// It verifies that git is available on the system.
func NewGit(ctx context.Context) (*Git, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}

	cmd := exec.CommandContext(ctx, gitPath, "version")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git command failed: %w", err)
	}

	return &Git{gitPath: gitPath}, nil
}

// credentialRe matches a userinfo section in an http(s) remote URL. Remote
// URLs carry the write token, so they must never reach logs or error text.
var credentialRe = regexp.MustCompile(`(https?://)[^/@\s]+@`)

// Redact strips embedded credentials from s.
func Redact(s string) string {
	return credentialRe.ReplaceAllString(s, "${1}***@")
}

// run executes git with args, returning captured stdout. On non-zero exit
// the error carries the redacted stderr tail.
func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.gitPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("git %s timed out: %w", args[0], ctx.Err())
		}
		detail := strings.TrimSpace(Redact(stderr.String()))
		if detail == "" {
			detail = err.Error()
		}
		return "", fmt.Errorf("git %s failed (%s): %w", Redact(strings.Join(args, " ")), detail, ErrGit)
	}
	return stdout.String(), nil
}

// Clone clones remoteURL into dir.
func (g *Git) Clone(ctx context.Context, remoteURL, dir string) error {
	log.Info().Str("dir", dir).Msg("cloning repository")
	_, err := g.run(ctx, "clone", remoteURL, dir)
	return err
}

// SetRemoteURL points origin at remoteURL.
func (g *Git) SetRemoteURL(ctx context.Context, repoPath, remoteURL string) error {
	_, err := g.run(ctx, "-C", repoPath, "remote", "set-url", "origin", remoteURL)
	return err
}

// Pull runs a rebase pull against the upstream branch.
func (g *Git) Pull(ctx context.Context, repoPath string) error {
	_, err := g.run(ctx, "-C", repoPath, "pull", "--rebase")
	return err
}

// Status returns the porcelain status of the working copy.
func (g *Git) Status(ctx context.Context, repoPath string) (*Status, error) {
	out, err := g.run(ctx, "-C", repoPath, "status", "--porcelain")
	if err != nil {
		return nil, err
	}

	status := &Status{}
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 3 {
			continue
		}

		code := line[0:2]
		path := line[3:]

		// XY short-format codes: X=index, Y=working tree.
		switch {
		case strings.HasPrefix(code, "??"):
			status.Untracked = append(status.Untracked, path)
		case code[0] == 'A':
			status.Added = append(status.Added, path)
		case code[0] == 'D' || code[1] == 'D':
			status.Deleted = append(status.Deleted, path)
		default:
			status.Modified = append(status.Modified, path)
		}

		status.HasChanges = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse git status: %w", err)
	}

	return status, nil
}

// CommitAll stages all changes and creates a commit, returning its hash.
func (g *Git) CommitAll(ctx context.Context, repoPath, message string) (string, error) {
	if message == "" {
		return "", fmt.Errorf("commit message is required")
	}

	if _, err := g.run(ctx, "-C", repoPath, "add", "-A"); err != nil {
		return "", err
	}
	if _, err := g.run(ctx, "-C", repoPath, "commit", "-m", message); err != nil {
		return "", err
	}

	hash, err := g.run(ctx, "-C", repoPath, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(hash), nil
}

// Push pushes the current branch to its upstream.
func (g *Git) Push(ctx context.Context, repoPath string) error {
	branch, err := g.run(ctx, "-C", repoPath, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return err
	}
	_, err = g.run(ctx, "-C", repoPath, "push", "origin", strings.TrimSpace(branch))
	return err
}

// noUpstreamMarkers identify the rev-list failures that mean "@{u} does
// not resolve": no upstream configured, detached HEAD, or a branch with
// no commits yet. Anything else is a real failure.
var noUpstreamMarkers = []string{
	"no upstream",
	"does not point to a branch",
	"unknown revision",
}

// AheadOfUpstream reports how many local commits have not been pushed.
// A working copy with no upstream configured reports zero; any other
// rev-list failure (including a timeout) is returned, since swallowing
// it would silently skip unpushed-commit recovery.
func (g *Git) AheadOfUpstream(ctx context.Context, repoPath string) (int, error) {
	out, err := g.run(ctx, "-C", repoPath, "rev-list", "--count", "@{u}..HEAD")
	if err != nil {
		for _, marker := range noUpstreamMarkers {
			if strings.Contains(err.Error(), marker) {
				// Nothing to recover without an upstream.
				return 0, nil
			}
		}
		return 0, err
	}
	n, convErr := strconv.Atoi(strings.TrimSpace(out))
	if convErr != nil {
		return 0, fmt.Errorf("unexpected rev-list output %q: %w", strings.TrimSpace(out), convErr)
	}
	return n, nil
}
