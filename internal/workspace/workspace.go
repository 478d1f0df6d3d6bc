// Package workspace materializes local working copies of target
// repositories and collects their file content as context for the
// generative backend.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/forgehand/forgehand/internal/gitops"
)

// repoNameRe restricts repository names to safe directory names. The repo
// name becomes a path component under the workspace base directory, so it
// gets the same containment treatment as wire-format paths.
var repoNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Manager ensures working copies exist and are current.
type Manager struct {
	baseDir    string
	git        gitops.Operations
	gitTimeout time.Duration
}

// NewManager creates a Manager that keeps working copies under baseDir.
// Every git invocation is bounded by gitTimeout.
func NewManager(baseDir string, git gitops.Operations, gitTimeout time.Duration) *Manager {
	return &Manager{baseDir: baseDir, git: git, gitTimeout: gitTimeout}
}

// ValidRepoName reports whether name is acceptable as a repository name.
func ValidRepoName(name string) bool {
	return repoNameRe.MatchString(name) && name != "." && name != ".."
}

// Materialize ensures a current working copy for repoName and returns its
// path: clone if absent, otherwise refresh the remote URL and rebase-pull.
// If a previous job committed but failed to push, the leftover local
// commits are pushed here before the new job proceeds.
func (m *Manager) Materialize(ctx context.Context, repoName, remoteURL string) (string, error) {
	if !ValidRepoName(repoName) {
		return "", fmt.Errorf("invalid repository name %q", repoName)
	}

	path := filepath.Join(m.baseDir, repoName)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create workspace dir %s: %w", m.baseDir, err)
		}
		if err := m.withTimeout(ctx, func(ctx context.Context) error {
			return m.git.Clone(ctx, remoteURL, path)
		}); err != nil {
			return "", err
		}
		log.Info().Str("repo", repoName).Str("path", path).Msg("cloned working copy")
		return path, nil
	} else if err != nil {
		return "", fmt.Errorf("failed to stat working copy %s: %w", path, err)
	}

	// Existing working copy: refresh credentials in the remote URL, then
	// bring it up to date.
	if err := m.withTimeout(ctx, func(ctx context.Context) error {
		return m.git.SetRemoteURL(ctx, path, remoteURL)
	}); err != nil {
		return "", err
	}
	if err := m.withTimeout(ctx, func(ctx context.Context) error {
		return m.git.Pull(ctx, path)
	}); err != nil {
		return "", err
	}

	// Recover from a prior job whose push failed after a local commit.
	var ahead int
	if err := m.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		ahead, err = m.git.AheadOfUpstream(ctx, path)
		return err
	}); err != nil {
		return "", err
	}
	if ahead > 0 {
		log.Warn().Str("repo", repoName).Int("commits", ahead).
			Msg("pushing commits left behind by a previous job")
		if err := m.withTimeout(ctx, func(ctx context.Context) error {
			return m.git.Push(ctx, path)
		}); err != nil {
			return "", err
		}
	}

	log.Info().Str("repo", repoName).Str("path", path).Msg("working copy up to date")
	return path, nil
}

func (m *Manager) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, m.gitTimeout)
	defer cancel()
	return fn(ctx)
}
