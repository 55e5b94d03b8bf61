package realtime

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type stubSession struct {
	last time.Time
	busy bool
}

func (s *stubSession) LastActive() time.Time { return s.last }
func (s *stubSession) Busy() bool            { return s.busy }

func TestRegistryGetOrCreate(t *testing.T) {
	var sizes []int
	reg := NewRegistry[*stubSession]("dialogue", func(_ string, n int) { sizes = append(sizes, n) })
	key := Key{UserID: "u1", TabID: "tab", EncounterID: "adler"}

	calls := 0
	create := func() (*stubSession, error) {
		calls++
		return &stubSession{last: time.Now()}, nil
	}

	first, created, err := reg.GetOrCreate(key, create)
	if err != nil || !created {
		t.Fatalf("first GetOrCreate: created=%v err=%v", created, err)
	}
	second, created, err := reg.GetOrCreate(key, create)
	if err != nil || created {
		t.Fatalf("second GetOrCreate: created=%v err=%v", created, err)
	}
	if first != second || calls != 1 {
		t.Errorf("expected the same session and one create call, got calls=%d", calls)
	}

	other := Key{UserID: "u1", TabID: "tab", EncounterID: "fermat"}
	if _, _, err := reg.GetOrCreate(other, create); err != nil {
		t.Fatalf("GetOrCreate other: %v", err)
	}
	if reg.Len() != 2 {
		t.Errorf("Len = %d, want 2", reg.Len())
	}

	reg.Remove(key)
	if _, ok := reg.Get(key); ok {
		t.Error("expected session removed")
	}
	if len(sizes) != 3 || sizes[2] != 1 {
		t.Errorf("unexpected size notifications %v", sizes)
	}
}

func TestRegistryCreateError(t *testing.T) {
	reg := NewRegistry[*stubSession]("dialogue", nil)
	boom := errors.New("boom")
	_, _, err := reg.GetOrCreate(Key{UserID: "u"}, func() (*stubSession, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected create error, got %v", err)
	}
	if reg.Len() != 0 {
		t.Error("failed create must not register")
	}
}

func TestRegistryEvictIdle(t *testing.T) {
	reg := NewRegistry[*stubSession]("dialogue", nil)
	now := time.Now()

	add := func(user string, s *stubSession) {
		if _, _, err := reg.GetOrCreate(Key{UserID: user}, func() (*stubSession, error) { return s, nil }); err != nil {
			t.Fatal(err)
		}
	}
	add("stale", &stubSession{last: now.Add(-2 * time.Hour)})
	add("busy", &stubSession{last: now.Add(-2 * time.Hour), busy: true})
	add("fresh", &stubSession{last: now})

	evicted := reg.EvictIdle(now.Add(-time.Hour))
	if len(evicted) != 1 || evicted[0].UserID != "stale" {
		t.Fatalf("evicted %v, want only stale", evicted)
	}
	if reg.Len() != 2 {
		t.Errorf("Len = %d, want 2", reg.Len())
	}
}

func TestRegistryRemoveUser(t *testing.T) {
	reg := NewRegistry[*stubSession]("dialogue", nil)
	for _, k := range []Key{
		{UserID: "u1", TabID: "a"},
		{UserID: "u1", TabID: "b"},
		{UserID: "u2", TabID: "a"},
	} {
		if _, _, err := reg.GetOrCreate(k, func() (*stubSession, error) { return &stubSession{}, nil }); err != nil {
			t.Fatal(err)
		}
	}
	if n := reg.RemoveUser("u1"); n != 2 {
		t.Errorf("RemoveUser = %d, want 2", n)
	}
	if reg.Len() != 1 {
		t.Errorf("Len = %d, want 1", reg.Len())
	}
}

func TestRegistryConcurrentGetOrCreate(t *testing.T) {
	reg := NewRegistry[*stubSession]("dialogue", nil)
	key := Key{UserID: "u1"}

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[*stubSession]bool{}
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, _, err := reg.GetOrCreate(key, func() (*stubSession, error) { return &stubSession{}, nil })
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			seen[s] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != 1 {
		t.Errorf("expected one shared session, got %d", len(seen))
	}
}

func TestRegistryOnRemove(t *testing.T) {
	reg := NewRegistry[*stubSession]("dialogue", nil)
	var removed []*stubSession
	reg.OnRemove(func(s *stubSession) { removed = append(removed, s) })

	now := time.Now()
	create := func(last time.Time) func() (*stubSession, error) {
		return func() (*stubSession, error) { return &stubSession{last: last}, nil }
	}
	_, _, _ = reg.GetOrCreate(Key{UserID: "u1", TabID: "a"}, create(now))
	_, _, _ = reg.GetOrCreate(Key{UserID: "u1", TabID: "b"}, create(now.Add(-2*time.Hour)))
	_, _, _ = reg.GetOrCreate(Key{UserID: "u2", TabID: "a"}, create(now))

	reg.EvictIdle(now.Add(-time.Hour))
	reg.Remove(Key{UserID: "u2", TabID: "a"})
	reg.Remove(Key{UserID: "u2", TabID: "a"})
	reg.RemoveUser("u1")

	if len(removed) != 3 {
		t.Errorf("OnRemove called %d times, want 3", len(removed))
	}
}
