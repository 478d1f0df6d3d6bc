package job

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// repoLocks serializes jobs per repository name. Two concurrent webhook
// requests naming the same repository would otherwise race on clone/pull,
// file writes, and commit/push in the shared working copy. The lock is
// held for the whole materialize-through-push span.
type repoLocks struct {
	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
}

func newRepoLocks() *repoLocks {
	return &repoLocks{sems: make(map[string]*semaphore.Weighted)}
}

// acquire blocks until the repository's lock is available or ctx is done.
func (l *repoLocks) acquire(ctx context.Context, repo string) error {
	l.mu.Lock()
	sem, ok := l.sems[repo]
	if !ok {
		sem = semaphore.NewWeighted(1)
		l.sems[repo] = sem
	}
	l.mu.Unlock()

	return sem.Acquire(ctx, 1)
}

func (l *repoLocks) release(repo string) {
	l.mu.Lock()
	sem := l.sems[repo]
	l.mu.Unlock()
	if sem != nil {
		sem.Release(1)
	}
}
