package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dawtools/dawproject"
	"github.com/dawtools/dawproject/session"
)

func testProject(title string) *dawproject.Project {
	return &dawproject.Project{
		Title: title, Tempo: 120,
		TimeSignature: dawproject.TimeSignature{Numerator: 4, Denominator: 4},
		Tracks: []dawproject.Track{
			{ID: "t1", Type: dawproject.TrackInstrument, Volume: 1, Order: 0},
		},
	}
}

func TestConcurrentReadersDoNotBlock(t *testing.T) {
	s := session.NewSession(testProject("shared"))
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g := s.AcquireRead()
			defer g.Release()
			if g.Project().Title != "shared" {
				t.Errorf("reader saw wrong snapshot: %q", g.Project().Title)
			}
			time.Sleep(time.Millisecond)
		}()
	}
	wg.Wait()
}

func TestWriterWaitsForReaders(t *testing.T) {
	s := session.NewSession(testProject("v1"))
	r := s.AcquireRead()

	var released atomic.Bool
	acquired := make(chan struct{})
	go func() {
		g, err := s.AcquireWrite(context.Background())
		if err != nil {
			t.Errorf("writer failed: %v", err)
			close(acquired)
			return
		}
		if !released.Load() {
			t.Errorf("writer acquired while a reader still pinned the snapshot")
		}
		g.Release()
		close(acquired)
	}()

	time.Sleep(20 * time.Millisecond)
	released.Store(true)
	r.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("writer never acquired after the reader released")
	}
}

func TestWriteLockTimeout(t *testing.T) {
	s := session.NewSession(testProject("v1"))
	r := s.AcquireRead()
	defer r.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.AcquireWrite(ctx); !errors.Is(err, session.ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}

	plain, cancelPlain := context.WithCancel(context.Background())
	cancelPlain()
	if _, err := s.AcquireWrite(plain); !errors.Is(err, context.Canceled) {
		t.Fatalf("plain cancellation should surface ctx.Err, got %v", err)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := session.NewSession(testProject("old"))

	w, err := s.AcquireWrite(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// readers may pin the current snapshot while a write is in flight
	r := s.AcquireRead()
	defer r.Release()

	w.Project().Title = "new"
	w.Project().Tracks[0].Name = "edited"
	if r.Project().Title != "old" || r.Project().Tracks[0].Name != "" {
		t.Fatalf("working-copy edits leaked into the pinned snapshot")
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if r.Project().Title != "old" {
		t.Fatalf("commit must not change an already pinned snapshot")
	}
	if s.Current().Title != "new" {
		t.Fatalf("commit did not publish the new snapshot")
	}
	r2 := s.AcquireRead()
	defer r2.Release()
	if r2.Project().Title != "new" {
		t.Fatalf("reader acquired after commit saw the old snapshot")
	}
}

func TestReleaseWithoutCommitDiscards(t *testing.T) {
	s := session.NewSession(testProject("keep"))
	w, err := s.AcquireWrite(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	w.Project().Title = "discard me"
	w.Release()
	if s.Current().Title != "keep" {
		t.Fatalf("released write leaked into the session")
	}
	if err := w.Commit(); err == nil {
		t.Fatalf("commit after release should fail")
	}

	// the session is free for the next writer
	w2, err := s.AcquireWrite(context.Background())
	if err != nil {
		t.Fatalf("session stayed locked after release: %v", err)
	}
	w2.Release()
}

func TestSingleWriter(t *testing.T) {
	s := session.NewSession(testProject("v1"))
	w1, err := s.AcquireWrite(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.AcquireWrite(ctx); !errors.Is(err, session.ErrLockTimeout) {
		t.Fatalf("second writer should time out, got %v", err)
	}
	if err := w1.Commit(); err != nil {
		t.Fatal(err)
	}
	w2, err := s.AcquireWrite(context.Background())
	if err != nil {
		t.Fatalf("writer after commit failed: %v", err)
	}
	w2.Release()
}

func TestSequentialCommitsApplyInOrder(t *testing.T) {
	s := session.NewSession(testProject("base"))
	for i := 0; i < 8; i++ {
		w, err := s.AcquireWrite(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		w.Project().Tracks = append(w.Project().Tracks, dawproject.Track{
			ID: fmt.Sprintf("extra%d", i), Type: dawproject.TrackAudio, Volume: 1, Order: i + 1,
		})
		if err := w.Commit(); err != nil {
			t.Fatal(err)
		}
	}
	if got := len(s.Current().Tracks); got != 9 {
		t.Fatalf("expected 9 tracks after 8 commits, got %d", got)
	}
}
