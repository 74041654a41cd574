package session

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestIsNew_TrueOncePerPayload(t *testing.T) {
	s := New()

	seq := []string{"A", "B", "A", "A", "C", "B"}
	want := []bool{true, true, false, false, true, false}
	for i, p := range seq {
		if got := s.IsNew(p); got != want[i] {
			t.Errorf("IsNew(%q) at %d = %v, want %v", p, i, got, want[i])
		}
	}
	if s.Len() != 3 {
		t.Errorf("Len = %d, want 3", s.Len())
	}
}

func TestIsNew_EmptyStringIsAPayload(t *testing.T) {
	s := New()
	if !s.IsNew("") {
		t.Error("first IsNew(\"\") = false, want true")
	}
	if s.IsNew("") {
		t.Error("second IsNew(\"\") = true, want false")
	}
}

func TestSeed(t *testing.T) {
	s := New()
	s.Seed([]string{"old-1", "old-2"})

	if s.IsNew("old-1") {
		t.Error("seeded payload reported as new")
	}
	if !s.Contains("old-2") {
		t.Error("Contains(old-2) = false after Seed")
	}
	if !s.IsNew("fresh") {
		t.Error("unseeded payload not reported as new")
	}
}

func TestIsNew_ConcurrentSamePayload(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	var trues atomic.Int32
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.IsNew("same") {
				trues.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := trues.Load(); got != 1 {
		t.Errorf("IsNew returned true %d times, want 1", got)
	}
}
