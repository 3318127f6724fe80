// Package session wraps a project snapshot behind a multiple-reader,
// single-writer discipline. Readers share one immutable snapshot without
// copying; a writer gets a private deep copy and publishes it atomically on
// commit, so a reader is never handed a partially mutated graph.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dawtools/dawproject"
)

// ErrLockTimeout is returned when AcquireWrite gives up waiting for the
// readers of the current snapshot.
var ErrLockTimeout = errors.New("write lock timeout")

// Session coordinates access to one project. The only mutable shared state
// is the current-snapshot pointer; everything reachable from a snapshot is
// treated as immutable.
type Session struct {
	mu      sync.Mutex
	current *snapshot
	writing bool
	// changed is closed and replaced whenever a reader releases or a
	// writer finishes, waking AcquireWrite waiters.
	changed chan struct{}
}

type snapshot struct {
	project *dawproject.Project
	readers int
}

// NewSession publishes p as the first snapshot. The caller must not mutate
// p afterwards.
func NewSession(p *dawproject.Project) *Session {
	return &Session{
		current: &snapshot{project: p},
		changed: make(chan struct{}),
	}
}

// ReadGuard pins one snapshot. Multiple read guards never block each
// other; a guard keeps observing its snapshot even after later commits.
type ReadGuard struct {
	s        *Session
	snap     *snapshot
	released bool
}

// WriteGuard owns a private working copy of the snapshot it was created
// from. Commit publishes it; Release without Commit discards it.
type WriteGuard struct {
	s       *Session
	working *dawproject.Project
	done    bool
}

// AcquireRead pins the current snapshot for reading. Never blocks beyond
// the internal mutex.
func (s *Session) AcquireRead() *ReadGuard {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.readers++
	return &ReadGuard{s: s, snap: s.current}
}

// Project returns the pinned snapshot.
func (g *ReadGuard) Project() *dawproject.Project { return g.snap.project }

// Release lets go of the snapshot. Releasing twice is a no-op.
func (g *ReadGuard) Release() {
	if g.released {
		return
	}
	g.released = true
	g.s.mu.Lock()
	g.snap.readers--
	g.s.broadcastLocked()
	g.s.mu.Unlock()
}

// AcquireWrite waits until no reader pins the current snapshot and no
// other writer is active, then hands out a deep working copy. The context
// bounds the wait: an expired deadline yields ErrLockTimeout, a plain
// cancellation yields ctx.Err(). Readers pinning older snapshots do not
// block a writer.
func (s *Session) AcquireWrite(ctx context.Context) (*WriteGuard, error) {
	for {
		s.mu.Lock()
		if !s.writing && s.current.readers == 0 {
			s.writing = true
			working := s.current.project.Copy()
			s.mu.Unlock()
			return &WriteGuard{s: s, working: working}, nil
		}
		wait := s.changed
		s.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
			}
			return nil, ctx.Err()
		}
	}
}

// Project returns the private working copy; the writer may mutate it
// freely until Commit or Release.
func (g *WriteGuard) Project() *dawproject.Project { return g.working }

// Commit publishes the working copy as the new snapshot. Readers acquired
// after Commit observe the new snapshot; guards issued before keep the old
// one until released. At most one commit completes at a time per session.
func (g *WriteGuard) Commit() error {
	if g.done {
		return errors.New("write guard already finished")
	}
	g.done = true
	g.s.mu.Lock()
	g.s.current = &snapshot{project: g.working}
	g.s.writing = false
	g.s.broadcastLocked()
	g.s.mu.Unlock()
	return nil
}

// Release discards the working copy without publishing. A no-op after
// Commit.
func (g *WriteGuard) Release() {
	if g.done {
		return
	}
	g.done = true
	g.s.mu.Lock()
	g.s.writing = false
	g.s.broadcastLocked()
	g.s.mu.Unlock()
}

// Current returns the project of the current snapshot without pinning it,
// for callers that only need a point-in-time peek.
func (s *Session) Current() *dawproject.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.project
}

func (s *Session) broadcastLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}
