// Package job sequences one code-change request from working-copy
// materialization through commit and push, and maps the result to an
// outcome payload.
package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/forgehand/forgehand/internal/backend"
	"github.com/forgehand/forgehand/internal/config"
	"github.com/forgehand/forgehand/internal/fileops"
	"github.com/forgehand/forgehand/internal/gitops"
	"github.com/forgehand/forgehand/internal/workspace"
)

// state names the steps of a job. Steps run strictly in order with no
// branching back; any failure terminates the job and surfaces the
// triggering error verbatim.
type state string

const (
	stateMaterializing     state = "materializing"
	stateCollectingContext state = "collecting_context"
	stateGenerating        state = "generating"
	stateParsing           state = "parsing"
	stateApplying          state = "applying"
	stateDetectingChanges  state = "detecting_changes"
	stateCommitting        state = "committing_and_pushing"
	stateSkipped           state = "skipped"
	stateDone              state = "done"
)

// ErrTimeout reports a job step that exceeded its configured deadline.
// The in-flight subprocess or API call has been terminated; the job is
// not retried.
var ErrTimeout = errors.New("step exceeded deadline")

// mapTimeout tags deadline expirations with ErrTimeout so callers can
// classify them without inspecting context errors.
func mapTimeout(err error) error {
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

// Outcome is the result of one job. It becomes the webhook response body
// and is not persisted anywhere.
type Outcome struct {
	Repo           string
	Committed      bool
	BackendOutput  string
	OperationCount int
}

// Runner executes jobs. A single Runner is shared by all webhook requests;
// per-repository locks keep concurrent jobs for the same repository from
// interleaving.
type Runner struct {
	cfg       *config.Config
	git       gitops.Operations
	workspace *workspace.Manager
	generator backend.Generator
	locks     *repoLocks
}

// NewRunner wires a Runner from its collaborators.
func NewRunner(cfg *config.Config, git gitops.Operations, generator backend.Generator) *Runner {
	return &Runner{
		cfg:       cfg,
		git:       git,
		workspace: workspace.NewManager(cfg.WorkspaceDir, git, cfg.GitTimeout),
		generator: generator,
		locks:     newRepoLocks(),
	}
}

// Run executes one job for the named repository and task prompt.
//
// Configuration is validated before any mutation. A failure in any step is
// fatal to the job: changes already applied to disk are not rolled back,
// and a commit whose push failed is picked up by the next job for the same
// repository during materialization.
func (r *Runner) Run(ctx context.Context, repo, prompt string) (*Outcome, error) {
	logger := log.With().
		Str("job_id", uuid.NewString()).
		Str("repo", repo).
		Logger()

	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}

	if err := r.locks.acquire(ctx, repo); err != nil {
		return nil, fmt.Errorf("failed to acquire repository lock for %s: %w", repo, err)
	}
	defer r.locks.release(repo)

	start := time.Now()

	logger.Info().Str("state", string(stateMaterializing)).Msg("job step")
	wcPath, err := r.workspace.Materialize(ctx, repo, r.cfg.RemoteURL(repo))
	if err != nil {
		return nil, mapTimeout(err)
	}

	logger.Info().Str("state", string(stateCollectingContext)).Msg("job step")
	snapshots, err := workspace.Collect(wcPath)
	if err != nil {
		return nil, err
	}

	logger.Info().Str("state", string(stateGenerating)).Int("files", len(snapshots)).Msg("job step")
	response, err := r.generator.GenerateChanges(ctx, snapshots, prompt)
	if err != nil {
		return nil, mapTimeout(err)
	}

	logger.Info().Str("state", string(stateParsing)).Msg("job step")
	ops := fileops.Parse(response)

	logger.Info().Str("state", string(stateApplying)).Int("operations", len(ops)).Msg("job step")
	applier, err := fileops.NewApplier(wcPath)
	if err != nil {
		return nil, err
	}
	applied, err := applier.Apply(ops)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		Repo:           repo,
		BackendOutput:  response,
		OperationCount: applied,
	}

	logger.Info().Str("state", string(stateDetectingChanges)).Msg("job step")
	var status *gitops.Status
	if err := r.withGitTimeout(ctx, func(ctx context.Context) error {
		var err error
		status, err = r.git.Status(ctx, wcPath)
		return err
	}); err != nil {
		return nil, err
	}

	if !status.HasChanges {
		// The backend proposed nothing, or regenerated identical content.
		// Success, not an error.
		logger.Info().Str("state", string(stateSkipped)).
			Dur("duration", time.Since(start)).Msg("no changes to commit")
		return outcome, nil
	}

	logger.Info().Str("state", string(stateCommitting)).Msg("job step")
	var hash string
	if err := r.withGitTimeout(ctx, func(ctx context.Context) error {
		var err error
		hash, err = r.git.CommitAll(ctx, wcPath, gitops.Subject(prompt))
		return err
	}); err != nil {
		return nil, err
	}
	if err := r.withGitTimeout(ctx, func(ctx context.Context) error {
		return r.git.Push(ctx, wcPath)
	}); err != nil {
		return nil, err
	}

	outcome.Committed = true
	logger.Info().Str("state", string(stateDone)).
		Str("commit", hash).
		Int("operations", applied).
		Dur("duration", time.Since(start)).
		Msg("job complete")
	return outcome, nil
}

func (r *Runner) withGitTimeout(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.GitTimeout)
	defer cancel()
	return mapTimeout(fn(ctx))
}
