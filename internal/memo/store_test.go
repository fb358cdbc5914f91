package memo

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestStorePutGet(t *testing.T) {
	s := New[string](5*time.Minute, 10)
	defer s.Close()

	s.Put("a", "alpha")
	got, ok := s.Get("a")
	if !ok || got != "alpha" {
		t.Fatalf("expected alpha, got %q (ok=%v)", got, ok)
	}

	s.Put("a", "again")
	if got, _ := s.Get("a"); got != "again" {
		t.Fatalf("expected overwrite, got %q", got)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", s.Len())
	}

	if _, ok := s.Get("missing"); ok {
		t.Fatal("expected missing key")
	}
	s.Put("", "ignored")
	if s.Len() != 1 {
		t.Fatal("empty key must be ignored")
	}
}

func TestStoreEvictsLeastRecentlyUsed(t *testing.T) {
	s := New[int](5*time.Minute, 2)
	defer s.Close()

	s.Put("a", 1)
	s.Put("b", 2)
	s.Get("a") // a is now most recent
	s.Put("c", 3)

	if _, ok := s.Get("b"); ok {
		t.Fatal("expected b to be evicted")
	}
	if _, ok := s.Get("a"); !ok {
		t.Fatal("expected a to survive")
	}
	if _, ok := s.Get("c"); !ok {
		t.Fatal("expected c to survive")
	}
}

func TestStoreExpiry(t *testing.T) {
	s := New[int](time.Minute, 10)
	defer s.Close()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.mu.Lock()
	s.now = func() time.Time { return now }
	s.mu.Unlock()

	s.Put("a", 1)
	s.Put("b", 2)

	now = now.Add(45 * time.Second)
	s.Get("b")

	now = now.Add(30 * time.Second)
	if _, ok := s.Get("a"); ok {
		t.Fatal("expected a to expire")
	}

	s.mu.Lock()
	s.cleanupExpiredLocked(now)
	s.mu.Unlock()
	if s.Len() != 1 {
		t.Fatalf("expected only b after sweep, got %d", s.Len())
	}
}

func TestStoreDeleteAndClose(t *testing.T) {
	s := New[int](0, 0)
	s.Put("a", 1)
	s.Delete("a")
	s.Delete("a")
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d", s.Len())
	}
	s.Close()
	s.Close()
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := New[int](time.Minute, 50)
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("k%d", (n*j)%80)
				s.Put(key, j)
				s.Get(key)
			}
		}(i)
	}
	wg.Wait()
	if s.Len() > 50 {
		t.Fatalf("capacity exceeded: %d", s.Len())
	}
}
