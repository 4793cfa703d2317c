package supervisor

import "sync"

// Role identifies a member of a session's process group.
type Role string

// Process-group roles.
const (
	RoleGroup       Role = "group"
	RoleCoordinator Role = "coordinator"
	RoleState       Role = "state"
	RoleAgent       Role = "agent"
)

// Handle is anything locatable through the shared handle index.
type Handle interface {
	SessionID() string
	HandleRole() Role
}

type handleKey struct {
	role      Role
	sessionID string
}

// Index is the shared O(1) lookup table from (role, session id) to a live
// handle. Entries are inserted when a worker starts and removed on its
// guaranteed-cleanup path, so a crashed worker never leaves a stale entry.
// Index is safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	handles map[handleKey]Handle
}

// NewIndex creates an empty handle index.
func NewIndex() *Index {
	return &Index{handles: make(map[handleKey]Handle)}
}

// Put registers a handle under (role, session id), replacing any prior entry.
func (ix *Index) Put(h Handle) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.handles[handleKey{role: h.HandleRole(), sessionID: h.SessionID()}] = h
}

// Get returns the handle registered under (role, session id).
func (ix *Index) Get(role Role, sessionID string) (Handle, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	h, ok := ix.handles[handleKey{role: role, sessionID: sessionID}]
	return h, ok
}

// Remove deletes the entry under (role, session id). Removing an absent
// entry is a no-op.
func (ix *Index) Remove(role Role, sessionID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.handles, handleKey{role: role, sessionID: sessionID})
}

// RemoveSession deletes every role entry for a session id.
func (ix *Index) RemoveSession(sessionID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, role := range []Role{RoleGroup, RoleCoordinator, RoleState, RoleAgent} {
		delete(ix.handles, handleKey{role: role, sessionID: sessionID})
	}
}

// SessionIDs returns the ids of every session with a group handle.
func (ix *Index) SessionIDs() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	ids := make([]string, 0)
	for k := range ix.handles {
		if k.role == RoleGroup {
			ids = append(ids, k.sessionID)
		}
	}
	return ids
}

// Len returns the number of registered handles across all roles.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.handles)
}
