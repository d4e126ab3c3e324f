package application

import "sync"

// projectLocks serializes every mutating operation touching one project's
// milestones, escrow account, or disputes. Cross-entity read-modify-write
// stays atomic relative to other callers, including the sweep worker.
type projectLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newProjectLocks() *projectLocks {
	return &projectLocks{locks: map[string]*sync.Mutex{}}
}

func (l *projectLocks) lock(projectID string) func() {
	l.mu.Lock()
	m, ok := l.locks[projectID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[projectID] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}
