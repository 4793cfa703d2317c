// Package registry maintains the index of live sessions and enforces the
// global invariants over them: unique session identity, unique project path,
// and a hard capacity ceiling. All mutation happens under a single write
// lock, so the capacity check and the insert are one linearizable step;
// reads share an RWMutex read lock and never serialize against each other.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tandemlabs/tandem/internal/errors"
	"github.com/tandemlabs/tandem/internal/session"
)

// DefaultCapacity is the default ceiling on concurrently live sessions.
const DefaultCapacity = 10

// Registry is the invariant-enforcing index of live sessions. It stores
// value copies of sessions; the only mutation path is Update.
// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	capacity int
	sessions map[string]session.Session // id -> session
	byPath   map[string]string          // project path -> id
	byName   map[string][]string        // display name -> ids
}

// New creates a Registry with the given capacity ceiling.
// A capacity below 1 falls back to DefaultCapacity.
func New(capacity int) *Registry {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Registry{
		capacity: capacity,
		sessions: make(map[string]session.Session),
		byPath:   make(map[string]string),
		byName:   make(map[string][]string),
	}
}

// Register adds a session to the registry. The checks run in a fixed,
// externally observable order: capacity first, then duplicate ID, then
// duplicate project path: a full registry reports the ceiling even when a
// duplicate also holds.
func (r *Registry) Register(s session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sessions) >= r.capacity {
		return fmt.Errorf("%w: %d sessions already live", errors.ErrSessionLimitReached, r.capacity)
	}
	if _, ok := r.sessions[s.ID]; ok {
		return fmt.Errorf("%w: %s", errors.ErrSessionExists, s.ID)
	}
	if owner, ok := r.byPath[s.ProjectPath]; ok {
		return fmt.Errorf("%w: %s held by session %s", errors.ErrProjectAlreadyOpen, s.ProjectPath, owner)
	}

	s = s.Clone()
	r.sessions[s.ID] = s
	r.byPath[s.ProjectPath] = s.ID
	r.byName[s.Name] = append(r.byName[s.Name], s.ID)
	return nil
}

// Unregister removes a session by ID. Removing an absent session is a no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(r.sessions, id)
	delete(r.byPath, s.ProjectPath)
	r.dropNameLocked(s.Name, id)
}

// Update replaces a registered session in place. It returns
// ErrSessionNotFound for unknown IDs and rejects any attempt to change the
// project path, which is a uniqueness-relevant field.
func (r *Registry) Update(s session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.sessions[s.ID]
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrSessionNotFound, s.ID)
	}
	if s.ProjectPath != prev.ProjectPath {
		return fmt.Errorf("update session %s: project path is immutable", s.ID)
	}

	s = s.Clone()
	if s.Name != prev.Name {
		r.dropNameLocked(prev.Name, s.ID)
		r.byName[s.Name] = append(r.byName[s.Name], s.ID)
	}
	r.sessions[s.ID] = s
	return nil
}

// Lookup returns the session with the given ID.
func (r *Registry) Lookup(id string) (session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return session.Session{}, false
	}
	return s.Clone(), true
}

// LookupByPath returns the session bound to the given project path.
func (r *Registry) LookupByPath(path string) (session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byPath[path]
	if !ok {
		return session.Session{}, false
	}
	return r.sessions[id].Clone(), true
}

// LookupByName returns the session with the given display name. Names are
// not unique; on collision the earliest-created match wins.
func (r *Registry) LookupByName(name string) (session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byName[name]
	if len(ids) == 0 {
		return session.Session{}, false
	}

	best := r.sessions[ids[0]]
	for _, id := range ids[1:] {
		if s := r.sessions[id]; s.CreatedAt.Before(best.CreatedAt) {
			best = s
		}
	}
	return best.Clone(), true
}

// ListAll returns all live sessions in creation-time-ascending order.
func (r *Registry) ListAll() []session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ListIDs returns all live session IDs in creation-time-ascending order.
func (r *Registry) ListIDs() []string {
	all := r.ListAll()
	ids := make([]string, len(all))
	for i, s := range all {
		ids[i] = s.ID
	}
	return ids
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Capacity returns the ceiling this registry enforces.
func (r *Registry) Capacity() int {
	return r.capacity
}

// dropNameLocked removes one id from a name index entry.
// Must be called with the write lock held.
func (r *Registry) dropNameLocked(name, id string) {
	ids := r.byName[name]
	for i, existing := range ids {
		if existing == id {
			r.byName[name] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(r.byName[name]) == 0 {
		delete(r.byName, name)
	}
}
