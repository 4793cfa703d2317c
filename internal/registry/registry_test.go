package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tandemlabs/tandem/internal/errors"
	"github.com/tandemlabs/tandem/internal/session"
)

// newTestSession builds a session with deterministic identity fields.
func newTestSession(id, name, path string) session.Session {
	now := time.Now().UTC()
	return session.Session{
		ID:          id,
		Name:        name,
		ProjectPath: path,
		Config:      map[string]string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestRegister_Basic(t *testing.T) {
	r := New(10)

	if err := r.Register(newTestSession("s1", "one", "/p/1")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}

	got, ok := r.Lookup("s1")
	if !ok {
		t.Fatal("Lookup should find registered session")
	}
	if got.Name != "one" || got.ProjectPath != "/p/1" {
		t.Errorf("unexpected session: %+v", got)
	}
}

func TestRegister_DuplicateID(t *testing.T) {
	r := New(10)

	if err := r.Register(newTestSession("s1", "one", "/p/1")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	err := r.Register(newTestSession("s1", "other", "/p/2"))
	if !errors.Is(err, errors.ErrSessionExists) {
		t.Errorf("duplicate id should return ErrSessionExists, got %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("failed register should not change Len, got %d", r.Len())
	}
}

func TestRegister_DuplicatePath(t *testing.T) {
	r := New(10)

	if err := r.Register(newTestSession("s1", "one", "/p/1")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	err := r.Register(newTestSession("s2", "two", "/p/1"))
	if !errors.Is(err, errors.ErrProjectAlreadyOpen) {
		t.Errorf("duplicate path should return ErrProjectAlreadyOpen, got %v", err)
	}
}

func TestRegister_CapacityCeiling(t *testing.T) {
	r := New(3)

	for i := 0; i < 3; i++ {
		s := newTestSession(fmt.Sprintf("s%d", i), "n", fmt.Sprintf("/p/%d", i))
		if err := r.Register(s); err != nil {
			t.Fatalf("Register %d failed: %v", i, err)
		}
	}

	err := r.Register(newTestSession("s3", "n", "/p/3"))
	if !errors.Is(err, errors.ErrSessionLimitReached) {
		t.Errorf("register over capacity should return ErrSessionLimitReached, got %v", err)
	}
	if r.Len() != 3 {
		t.Errorf("Len = %d, want 3", r.Len())
	}
}

// TestRegister_PrecedenceAtCapacity pins the violation precedence: a full
// registry reports the ceiling even when the candidate also duplicates a
// live id and path.
func TestRegister_PrecedenceAtCapacity(t *testing.T) {
	r := New(1)

	if err := r.Register(newTestSession("s1", "one", "/p/1")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	err := r.Register(newTestSession("s1", "one", "/p/1"))
	if !errors.Is(err, errors.ErrSessionLimitReached) {
		t.Errorf("capacity must win over duplicate id/path, got %v", err)
	}
}

// TestRegister_PrecedenceIDOverPath pins that duplicate id is reported
// before duplicate path when both hold and capacity does not.
func TestRegister_PrecedenceIDOverPath(t *testing.T) {
	r := New(10)

	if err := r.Register(newTestSession("s1", "one", "/p/1")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	err := r.Register(newTestSession("s1", "other", "/p/1"))
	if !errors.Is(err, errors.ErrSessionExists) {
		t.Errorf("duplicate id must win over duplicate path, got %v", err)
	}
}

// TestRegister_ConcurrentNeverExceedsCapacity drives many registrations at
// the ceiling from concurrent goroutines and verifies the count never passes
// the capacity and no two winners share an id or path.
func TestRegister_ConcurrentNeverExceedsCapacity(t *testing.T) {
	const capacity = 10
	const attempts = 100

	r := New(capacity)

	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s := newTestSession(fmt.Sprintf("s%d", n), "n", fmt.Sprintf("/p/%d", n))
			results[n] = r.Register(s)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, errors.ErrSessionLimitReached) {
			t.Errorf("unexpected error kind: %v", err)
		}
	}

	if succeeded != capacity {
		t.Errorf("%d registrations succeeded, want exactly %d", succeeded, capacity)
	}
	if r.Len() != capacity {
		t.Errorf("Len = %d, want %d", r.Len(), capacity)
	}

	// No two live entries share an id or path.
	seenPaths := make(map[string]bool)
	for _, s := range r.ListAll() {
		if seenPaths[s.ProjectPath] {
			t.Errorf("duplicate live path %s", s.ProjectPath)
		}
		seenPaths[s.ProjectPath] = true
	}
}

func TestUnregister_Idempotent(t *testing.T) {
	r := New(10)

	if err := r.Register(newTestSession("s1", "one", "/p/1")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	r.Unregister("s1")
	r.Unregister("s1") // second call is a no-op
	r.Unregister("never-existed")

	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}

	// The freed path and id are reusable.
	if err := r.Register(newTestSession("s1", "one", "/p/1")); err != nil {
		t.Errorf("re-register after unregister failed: %v", err)
	}
}

func TestUpdate(t *testing.T) {
	r := New(10)

	s := newTestSession("s1", "old-name", "/p/1")
	if err := r.Register(s); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	s.Name = "new-name"
	s.Config = map[string]string{"model": "m2"}
	if err := r.Update(s); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, _ := r.Lookup("s1")
	if got.Name != "new-name" || got.Config["model"] != "m2" {
		t.Errorf("update not applied: %+v", got)
	}

	// Old name is gone from the name index, new name resolves.
	if _, ok := r.LookupByName("old-name"); ok {
		t.Error("old name should no longer resolve")
	}
	if _, ok := r.LookupByName("new-name"); !ok {
		t.Error("new name should resolve")
	}
}

func TestUpdate_NotFound(t *testing.T) {
	r := New(10)
	err := r.Update(newTestSession("ghost", "n", "/p/1"))
	if !errors.Is(err, errors.ErrSessionNotFound) {
		t.Errorf("update of unknown session should return ErrSessionNotFound, got %v", err)
	}
}

func TestUpdate_RejectsPathChange(t *testing.T) {
	r := New(10)

	s := newTestSession("s1", "n", "/p/1")
	if err := r.Register(s); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	s.ProjectPath = "/p/other"
	if err := r.Update(s); err == nil {
		t.Error("update changing project path should fail")
	}

	got, _ := r.Lookup("s1")
	if got.ProjectPath != "/p/1" {
		t.Errorf("path changed to %s despite rejection", got.ProjectPath)
	}
}

func TestLookupByPath(t *testing.T) {
	r := New(10)

	if err := r.Register(newTestSession("s1", "n", "/p/1")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, ok := r.LookupByPath("/p/1")
	if !ok || got.ID != "s1" {
		t.Errorf("LookupByPath = (%+v, %v), want s1", got, ok)
	}
	if _, ok := r.LookupByPath("/p/other"); ok {
		t.Error("LookupByPath should miss unknown paths")
	}
}

func TestLookupByName_EarliestCreatedWins(t *testing.T) {
	r := New(10)

	older := newTestSession("older", "shared", "/p/1")
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := newTestSession("newer", "shared", "/p/2")

	// Register in reverse creation order to prove the index is not
	// insertion-ordered.
	if err := r.Register(newer); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(older); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, ok := r.LookupByName("shared")
	if !ok || got.ID != "older" {
		t.Errorf("LookupByName = (%s, %v), want earliest-created \"older\"", got.ID, ok)
	}
}

func TestListAll_CreationOrder(t *testing.T) {
	r := New(10)

	base := time.Now().UTC()
	for i, id := range []string{"c", "a", "b"} {
		s := newTestSession(id, "n", "/p/"+id)
		s.CreatedAt = base.Add(time.Duration(2-i) * time.Minute) // c newest, b oldest
		if err := r.Register(s); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	ids := r.ListIDs()
	want := []string{"b", "a", "c"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ListIDs = %v, want %v", ids, want)
		}
	}
}

func TestLookup_ReturnsCopy(t *testing.T) {
	r := New(10)

	s := newTestSession("s1", "n", "/p/1")
	s.Config["model"] = "m1"
	if err := r.Register(s); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, _ := r.Lookup("s1")
	got.Config["model"] = "hacked"

	fresh, _ := r.Lookup("s1")
	if fresh.Config["model"] != "m1" {
		t.Error("Lookup must return a copy, not aliased registry state")
	}
}

// TestReads_DoNotBlockEachOther sanity-checks that many concurrent readers
// make progress together while a steady trickle of writes is in flight.
func TestReads_DoNotBlockEachOther(t *testing.T) {
	r := New(100)
	for i := 0; i < 50; i++ {
		s := newTestSession(fmt.Sprintf("s%d", i), "n", fmt.Sprintf("/p/%d", i))
		if err := r.Register(s); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				r.Lookup(fmt.Sprintf("s%d", j%50))
				r.ListAll()
			}
		}(i)
	}
	for i := 50; i < 60; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s := newTestSession(fmt.Sprintf("s%d", n), "n", fmt.Sprintf("/p/%d", n))
			_ = r.Register(s)
			r.Unregister(s.ID)
		}(i)
	}
	wg.Wait()
}
