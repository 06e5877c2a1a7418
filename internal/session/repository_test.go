package session

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemorySessionRepository(t *testing.T) {
	repo := NewMemorySessionRepository()
	clock := newManualClock()

	a1 := NewSession("a1", "alice", "bash", DefaultDimensions(), newFakePTY(DefaultDimensions()), 0, clock.Now())
	a2 := NewSession("a2", "alice", "zsh", DefaultDimensions(), newFakePTY(DefaultDimensions()), 0, clock.Now())
	b1 := NewSession("b1", "bob", "bash", DefaultDimensions(), newFakePTY(DefaultDimensions()), 0, clock.Now())
	repo.Add(a1)
	repo.Add(a2)
	repo.Add(b1)

	if repo.Count() != 3 {
		t.Errorf("expected 3 sessions, got %d", repo.Count())
	}
	if repo.CountForUser("alice") != 2 {
		t.Errorf("expected 2 sessions for alice, got %d", repo.CountForUser("alice"))
	}
	if got, ok := repo.Get("a2"); !ok || got != a2 {
		t.Error("expected to find a2")
	}
	if len(repo.ByUser("bob")) != 1 {
		t.Error("expected 1 session for bob")
	}

	if removed := repo.Remove("a1"); removed != a1 {
		t.Error("expected Remove to return the session")
	}
	if repo.Remove("a1") != nil {
		t.Error("expected second Remove to return nil")
	}
	if repo.CountForUser("alice") != 1 {
		t.Errorf("expected user index updated, got %d", repo.CountForUser("alice"))
	}

	repo.Remove("b1")
	if len(repo.ByUser("bob")) != 0 || repo.CountForUser("bob") != 0 {
		t.Error("expected bob's index cleaned")
	}
	if len(repo.All()) != 1 {
		t.Errorf("expected 1 session left, got %d", len(repo.All()))
	}
}

func TestMemorySessionRepository_Concurrent(t *testing.T) {
	repo := NewMemorySessionRepository()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := NewSession(fmt.Sprintf("s%d", i), "alice", "bash", DefaultDimensions(), newFakePTY(DefaultDimensions()), 0, now)
			repo.Add(s)
			repo.All()
			repo.CountForUser("alice")
		}(i)
	}
	wg.Wait()

	if repo.Count() != 50 {
		t.Errorf("expected 50 sessions, got %d", repo.Count())
	}
}

func TestMemoryTabRepository(t *testing.T) {
	repo := NewMemoryTabRepository()
	now := time.Now()

	t1, _ := NewTab("t1", "alice", "s1", "bash", "One", now)
	t2, _ := NewTab("t2", "alice", "s1", "bash", "Two", now)
	t3, _ := NewTab("t3", "bob", "s2", "bash", "Three", now)
	repo.Add(t1)
	repo.Add(t2)
	repo.Add(t3)

	if len(repo.BySession("s1")) != 2 {
		t.Errorf("expected 2 tabs for s1, got %d", len(repo.BySession("s1")))
	}

	removed := repo.RemoveBySession("s1")
	if len(removed) != 2 {
		t.Fatalf("expected 2 removed, got %d", len(removed))
	}
	if repo.CountForUser("alice") != 0 {
		t.Error("expected user index cleaned after RemoveBySession")
	}
	if repo.Count() != 1 {
		t.Errorf("expected 1 tab left, got %d", repo.Count())
	}
}

func TestMemoryTabRepository_UpdateUnknownIsNoop(t *testing.T) {
	repo := NewMemoryTabRepository()
	tab, _ := NewTab("t1", "alice", "s1", "bash", "One", time.Now())

	repo.Update(tab)

	if repo.Count() != 0 {
		t.Error("expected Update of unknown tab to be ignored")
	}
	if _, ok := repo.Get("t1"); ok {
		t.Error("expected tab not stored")
	}
}
