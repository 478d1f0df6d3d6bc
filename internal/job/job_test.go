package job

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgehand/forgehand/internal/config"
	"github.com/forgehand/forgehand/internal/fileops"
	"github.com/forgehand/forgehand/internal/gitops"
	"github.com/forgehand/forgehand/internal/workspace"
)

// fakeGit is an in-memory Operations implementation. Clone creates the
// target directory so the applier and collector operate on a real tree.
type fakeGit struct {
	calls      []string
	commitMsgs []string
	hasChanges bool
	statusErr  error
	pushErr    error
}

var _ gitops.Operations = (*fakeGit)(nil)

func (f *fakeGit) Clone(ctx context.Context, remoteURL, dir string) error {
	f.calls = append(f.calls, "clone")
	return os.MkdirAll(dir, 0o755)
}

func (f *fakeGit) SetRemoteURL(ctx context.Context, repoPath, remoteURL string) error {
	f.calls = append(f.calls, "set-remote")
	return nil
}

func (f *fakeGit) Pull(ctx context.Context, repoPath string) error {
	f.calls = append(f.calls, "pull")
	return nil
}

func (f *fakeGit) Status(ctx context.Context, repoPath string) (*gitops.Status, error) {
	f.calls = append(f.calls, "status")
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return &gitops.Status{HasChanges: f.hasChanges}, nil
}

func (f *fakeGit) CommitAll(ctx context.Context, repoPath, message string) (string, error) {
	f.calls = append(f.calls, "commit")
	f.commitMsgs = append(f.commitMsgs, message)
	return "cafebabe", nil
}

func (f *fakeGit) Push(ctx context.Context, repoPath string) error {
	f.calls = append(f.calls, "push")
	return f.pushErr
}

func (f *fakeGit) AheadOfUpstream(ctx context.Context, repoPath string) (int, error) {
	f.calls = append(f.calls, "ahead")
	return 0, nil
}

// fakeGenerator returns a canned response and records invocations.
type fakeGenerator struct {
	response string
	err      error
	called   int
}

func (f *fakeGenerator) GenerateChanges(ctx context.Context, snapshots []workspace.FileSnapshot, task string) (string, error) {
	f.called++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Port:            3000,
		GitHubUsername:  "octocat",
		AnthropicAPIKey: "sk-test",
		GitHubToken:     "ghp-test",
		WorkspaceDir:    t.TempDir(),
		Model:           config.DefaultModel,
		BackendTimeout:  time.Minute,
		GitTimeout:      time.Minute,
	}
}

func TestRunEndToEndCommit(t *testing.T) {
	cfg := testConfig(t)
	git := &fakeGit{hasChanges: true}
	gen := &fakeGenerator{response: `I created the readme.

<write path="README.md">
# Widget
</write>`}

	r := NewRunner(cfg, git, gen)
	outcome, err := r.Run(context.Background(), "widget", "write a readme")
	require.NoError(t, err)

	assert.Equal(t, "widget", outcome.Repo)
	assert.True(t, outcome.Committed)
	assert.Equal(t, 1, outcome.OperationCount)
	assert.Equal(t, gen.response, outcome.BackendOutput)

	data, err := os.ReadFile(filepath.Join(cfg.WorkspaceDir, "widget", "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Widget", string(data))

	assert.Equal(t, []string{"clone", "status", "commit", "push"}, git.calls)
	require.Len(t, git.commitMsgs, 1)
	assert.Equal(t, "write a readme", git.commitMsgs[0])
}

func TestRunNoBlocksIsSuccessfulNoop(t *testing.T) {
	cfg := testConfig(t)
	git := &fakeGit{hasChanges: false}
	gen := &fakeGenerator{response: "Everything already looks correct; no changes needed."}

	r := NewRunner(cfg, git, gen)
	outcome, err := r.Run(context.Background(), "widget", "check the project")
	require.NoError(t, err)

	assert.False(t, outcome.Committed)
	assert.Equal(t, 0, outcome.OperationCount)
	assert.NotContains(t, git.calls, "commit")
	assert.NotContains(t, git.calls, "push")

	// The working copy was cloned but not otherwise touched.
	entries, err := os.ReadDir(filepath.Join(cfg.WorkspaceDir, "widget"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunIdenticalContentSkipsCommit(t *testing.T) {
	cfg := testConfig(t)
	wc := filepath.Join(cfg.WorkspaceDir, "widget")
	require.NoError(t, os.MkdirAll(wc, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(wc, "README.md"), []byte("# Widget"), 0o644))

	// Backend regenerates the exact same content; porcelain status stays
	// clean, so the job reports success without a commit.
	git := &fakeGit{hasChanges: false}
	gen := &fakeGenerator{response: `<write path="README.md">
# Widget
</write>`}

	r := NewRunner(cfg, git, gen)
	outcome, err := r.Run(context.Background(), "widget", "regenerate readme")
	require.NoError(t, err)

	assert.False(t, outcome.Committed)
	assert.Equal(t, 1, outcome.OperationCount, "the write still ran")
	assert.NotContains(t, git.calls, "commit")
}

func TestRunValidatesConfigBeforeAnyMutation(t *testing.T) {
	cfg := testConfig(t)
	cfg.AnthropicAPIKey = ""
	git := &fakeGit{}
	gen := &fakeGenerator{response: "unused"}

	r := NewRunner(cfg, git, gen)
	_, err := r.Run(context.Background(), "widget", "anything")

	require.ErrorIs(t, err, config.ErrMissingCredential)
	assert.Empty(t, git.calls, "no git operation may run on a config error")
	assert.Zero(t, gen.called)
}

func TestRunBackendFailureTouchesNoFiles(t *testing.T) {
	cfg := testConfig(t)
	git := &fakeGit{}
	gen := &fakeGenerator{err: fmt.Errorf("model overloaded")}

	r := NewRunner(cfg, git, gen)
	_, err := r.Run(context.Background(), "widget", "task")
	require.Error(t, err)

	entries, readErr := os.ReadDir(filepath.Join(cfg.WorkspaceDir, "widget"))
	require.NoError(t, readErr)
	assert.Empty(t, entries)
	assert.NotContains(t, git.calls, "commit")
}

func TestRunPathEscapeFailsJob(t *testing.T) {
	cfg := testConfig(t)
	git := &fakeGit{hasChanges: true}
	gen := &fakeGenerator{response: `<write path="../../outside.txt">nope</write>`}

	r := NewRunner(cfg, git, gen)
	_, err := r.Run(context.Background(), "widget", "task")

	require.ErrorIs(t, err, fileops.ErrPathEscape)
	assert.NotContains(t, git.calls, "commit")
	assert.NoFileExists(t, filepath.Join(cfg.WorkspaceDir, "outside.txt"))
}

func TestRunPushFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	git := &fakeGit{hasChanges: true, pushErr: fmt.Errorf("remote rejected")}
	gen := &fakeGenerator{response: `<write path="a.txt">x</write>`}

	r := NewRunner(cfg, git, gen)
	_, err := r.Run(context.Background(), "widget", "task")

	require.Error(t, err)
	// The local commit happened; recovery is the next job's concern.
	assert.Contains(t, git.calls, "commit")
}

func TestRunGitDeadlineMapsToErrTimeout(t *testing.T) {
	cfg := testConfig(t)
	git := &fakeGit{statusErr: fmt.Errorf(
		"git status timed out: %w", context.DeadlineExceeded)}
	gen := &fakeGenerator{response: `<write path="a.txt">x</write>`}

	r := NewRunner(cfg, git, gen)
	_, err := r.Run(context.Background(), "widget", "task")

	require.ErrorIs(t, err, ErrTimeout)
	assert.NotContains(t, git.calls, "commit")
}

func TestRunBackendDeadlineMapsToErrTimeout(t *testing.T) {
	cfg := testConfig(t)
	git := &fakeGit{}
	gen := &fakeGenerator{err: fmt.Errorf(
		"generative call exceeded 1m0s: %w", context.DeadlineExceeded)}

	r := NewRunner(cfg, git, gen)
	_, err := r.Run(context.Background(), "widget", "task")

	require.ErrorIs(t, err, ErrTimeout)
}

func TestRunAppliesLastWriteWins(t *testing.T) {
	cfg := testConfig(t)
	git := &fakeGit{hasChanges: true}
	gen := &fakeGenerator{response: `<write path="p">a</write>
<write path="p">b</write>`}

	r := NewRunner(cfg, git, gen)
	outcome, err := r.Run(context.Background(), "widget", "task")
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.OperationCount)

	data, err := os.ReadFile(filepath.Join(cfg.WorkspaceDir, "widget", "p"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))
}
