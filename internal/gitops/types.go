package gitops

import "context"

// Operations provides the version-control operations the job runner needs.
// The interface exists so the orchestrator can be tested with a mock
// implementation instead of a real git binary.
type Operations interface {
	// Clone clones remoteURL into dir.
	Clone(ctx context.Context, remoteURL, dir string) error

	// SetRemoteURL points origin at remoteURL, refreshing embedded
	// credentials on an existing working copy.
	SetRemoteURL(ctx context.Context, repoPath, remoteURL string) error

	// Pull runs a rebase pull against the upstream branch.
	Pull(ctx context.Context, repoPath string) error

	// Status returns the porcelain status of the working copy.
	Status(ctx context.Context, repoPath string) (*Status, error)

	// CommitAll stages every change and commits with the given message.
	// Returns the new commit hash.
	CommitAll(ctx context.Context, repoPath, message string) (string, error)

	// Push pushes the current branch to its upstream.
	Push(ctx context.Context, repoPath string) error

	// AheadOfUpstream reports how many local commits have not been pushed.
	// Returns 0 when there is no upstream configured.
	AheadOfUpstream(ctx context.Context, repoPath string) (int, error)
}

// Status is the parsed result of a porcelain status query.
type Status struct {
	// Added files (staged)
	Added []string

	// Modified files (staged or unstaged)
	Modified []string

	// Deleted files
	Deleted []string

	// Untracked files
	Untracked []string

	// HasChanges is true if any entry exists
	HasChanges bool
}
