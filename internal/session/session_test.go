package session

import (
	"sync"
	"testing"
)

func TestManagerResolve(t *testing.T) {
	t.Parallel()

	m := NewManager()

	id, minted := m.Resolve("  existing-42  ")
	if id != "existing-42" || minted {
		t.Errorf("Resolve(existing) = (%q, %v), want (existing-42, false)", id, minted)
	}

	a, minted := m.Resolve("")
	if a == "" || !minted {
		t.Fatalf("Resolve(empty) = (%q, %v), want minted id", a, minted)
	}
	b, _ := m.Resolve("")
	if a == b {
		t.Error("minted ids must be unique")
	}
}

func TestManagerLock_SerializesPerSession(t *testing.T) {
	t.Parallel()

	m := NewManager()
	var active, maxActive int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("same")
			defer unlock()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("observed %d concurrent holders of one session lock, want 1", maxActive)
	}
}

func TestManagerLock_IndependentSessions(t *testing.T) {
	t.Parallel()

	m := NewManager()
	unlockA := m.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := m.Lock("b")
		unlockB()
		close(done)
	}()

	// Must not deadlock: locking b while a is held.
	<-done
}
