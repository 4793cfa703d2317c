// Package supervisor owns the pool of per-session process groups. Each live
// session runs a coordinator, a state holder, and optionally an agent, all
// supervised together with all-or-nothing restart. The supervisor transacts
// Registry registration with group start and stop, so a session is never
// registered without a group or running without a registration.
package supervisor

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/tandemlabs/tandem/internal/config"
	"github.com/tandemlabs/tandem/internal/errors"
	"github.com/tandemlabs/tandem/internal/logging"
	"github.com/tandemlabs/tandem/internal/registry"
	"github.com/tandemlabs/tandem/internal/session"
)

// Saver persists a session snapshot. It is implemented by the persistence
// store; the indirection exists so stop-time auto-save does not couple this
// package to the on-disk format.
type Saver interface {
	// TrySave snapshots the session to disk. It returns ErrSaveInProgress
	// when another save for the same id is already in flight.
	TrySave(sessionID string) error
}

// Supervisor manages the lifecycle of all live sessions.
type Supervisor struct {
	cfg      config.SessionConfig
	registry *registry.Registry
	handles  *Index
	logger   *logging.Logger

	mu     sync.Mutex
	saver  Saver
	groups map[string]*Group
	// stopping holds ids claimed by an in-flight StopSession. The group
	// stays in groups while its stop-time snapshot runs, so the claim is
	// what keeps a second stop from acting on the same group.
	stopping map[string]struct{}
}

// New creates a Supervisor over the given registry.
func New(cfg config.SessionConfig, reg *registry.Registry, logger *logging.Logger) *Supervisor {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Supervisor{
		cfg:      cfg,
		registry: reg,
		handles:  NewIndex(),
		logger:   logger,
		groups:   make(map[string]*Group),
		stopping: make(map[string]struct{}),
	}
}

// SetSaver installs the snapshot hook used by StopSession. Must be set
// before sessions are stopped if stop-time auto-save is wanted.
func (sv *Supervisor) SetSaver(s Saver) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	sv.saver = s
}

// Registry returns the live-session registry.
func (sv *Supervisor) Registry() *registry.Registry { return sv.registry }

// CreateSession validates the project path, builds a new Session, and starts
// it. The returned Session is the registered value.
func (sv *Supervisor) CreateSession(path, name string, cfg map[string]string) (session.Session, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return session.Session{}, fmt.Errorf("resolve project path %s: %w", path, err)
	}
	if err := CheckProjectPath(abs); err != nil {
		return session.Session{}, err
	}

	if cfg == nil {
		cfg = make(map[string]string)
	}
	if cfg["provider"] == "" {
		cfg["provider"] = sv.cfg.DefaultProvider
	}
	if cfg["model"] == "" {
		cfg["model"] = sv.cfg.DefaultModel
	}

	s := session.New(abs, name, cfg)
	if err := sv.StartSession(s); err != nil {
		return session.Session{}, err
	}
	return s, nil
}

// StartSession registers the session and starts its process group. The
// registration happens first, reserving the identity before any worker
// exists, so two concurrent starts cannot both pass the uniqueness gate. If
// the group fails to start, the registration is rolled back before the error
// returns; a failed start leaves no trace.
func (sv *Supervisor) StartSession(s session.Session) error {
	if err := session.ValidateID(s.ID); err != nil {
		return err
	}
	if err := sv.registry.Register(s); err != nil {
		return err
	}

	group := newGroup(s, sv.handles, sv.logger, GroupOptions{
		RestartBudget: sv.cfg.RestartBudget,
		QueryTimeout:  sv.cfg.QueryTimeout(),
		OnExhausted:   sv.handleExhausted,
	})
	if err := group.Start(); err != nil {
		sv.registry.Unregister(s.ID)
		return err
	}

	sv.mu.Lock()
	sv.groups[s.ID] = group
	sv.mu.Unlock()

	sv.logger.Info("session started", "session_id", s.ID, "name", s.Name, "project_path", s.ProjectPath)
	return nil
}

// StopSession snapshots the session to disk on a best-effort basis, then
// terminates its group and unregisters it. A failed snapshot is logged and
// never blocks the shutdown. The snapshot runs while the group is still
// addressable, since the saver reads live state through the supervisor;
// concurrent stops of the same id race for a claim taken under the lock, and
// the loser reports the session as gone.
func (sv *Supervisor) StopSession(id string) error {
	sv.mu.Lock()
	group, ok := sv.groups[id]
	if _, busy := sv.stopping[id]; !ok || busy {
		sv.mu.Unlock()
		return fmt.Errorf("%w: %s", errors.ErrSessionNotFound, id)
	}
	sv.stopping[id] = struct{}{}
	saver := sv.saver
	sv.mu.Unlock()

	if saver != nil {
		if err := saver.TrySave(id); err != nil {
			sv.logger.Warn("snapshot on stop failed", "session_id", id, "error", err)
		}
	}

	sv.mu.Lock()
	delete(sv.groups, id)
	delete(sv.stopping, id)
	sv.mu.Unlock()

	group.Stop()
	sv.registry.Unregister(id)
	sv.logger.Info("session stopped", "session_id", id)
	return nil
}

// AbortSession terminates a session's group and unregisters it without
// snapshotting. Used to undo a partially restored session whose persisted
// record is still the durable truth.
func (sv *Supervisor) AbortSession(id string) error {
	group, _, err := sv.takeGroup(id)
	if err != nil {
		return err
	}

	group.Stop()
	sv.registry.Unregister(id)
	sv.logger.Info("session aborted", "session_id", id)
	return nil
}

// StopAll stops every live session, continuing past individual failures.
func (sv *Supervisor) StopAll() error {
	sv.mu.Lock()
	ids := make([]string, 0, len(sv.groups))
	for id := range sv.groups {
		ids = append(ids, id)
	}
	sv.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := sv.StopSession(id); err != nil && !errors.Is(err, errors.ErrSessionNotFound) {
			errs = append(errs, fmt.Errorf("stop %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// RenameSession changes a session's display name.
func (sv *Supervisor) RenameSession(id, name string) error {
	s, ok := sv.registry.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrSessionNotFound, id)
	}
	s.Name = name
	s.UpdatedAt = time.Now().UTC()
	return sv.registry.Update(s)
}

// UpdateSessionConfig merges the given entries into a session's config.
func (sv *Supervisor) UpdateSessionConfig(id string, cfg map[string]string) error {
	s, ok := sv.registry.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrSessionNotFound, id)
	}
	for k, v := range cfg {
		s.Config[k] = v
	}
	s.UpdatedAt = time.Now().UTC()
	return sv.registry.Update(s)
}

// GetState returns a snapshot of the session's live state.
func (sv *Supervisor) GetState(id string) (ConversationState, error) {
	holder, err := sv.stateHolder(id)
	if err != nil {
		return ConversationState{}, err
	}
	return holder.GetState()
}

// AppendMessage appends one message to the session's history.
func (sv *Supervisor) AppendMessage(id string, msg session.Message) error {
	holder, err := sv.stateHolder(id)
	if err != nil {
		return err
	}
	return holder.AppendMessage(msg)
}

// UpdateTodos replaces the session's task list.
func (sv *Supervisor) UpdateTodos(id string, todos []session.Todo) error {
	holder, err := sv.stateHolder(id)
	if err != nil {
		return err
	}
	return holder.UpdateTodos(todos)
}

// SetStreaming flips the session's streaming flag.
func (sv *Supervisor) SetStreaming(id string, streaming bool) error {
	holder, err := sv.stateHolder(id)
	if err != nil {
		return err
	}
	return holder.SetStreaming(streaming)
}

// ValidateProjectPath asks the session's coordinator to re-check its project
// root.
func (sv *Supervisor) ValidateProjectPath(id string) error {
	group, err := sv.group(id)
	if err != nil {
		return err
	}
	coord, err := group.Coordinator()
	if err != nil {
		return err
	}
	return coord.ValidatePath()
}

// group returns the live group for a session id.
func (sv *Supervisor) group(id string) (*Group, error) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	group, ok := sv.groups[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrSessionNotFound, id)
	}
	return group, nil
}

// takeGroup removes and returns the group for a session id, together with
// the current saver. Removal and lookup are one step, and an id claimed by an
// in-flight StopSession counts as already gone, so two concurrent removals
// cannot both act on the same group.
func (sv *Supervisor) takeGroup(id string) (*Group, Saver, error) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	group, ok := sv.groups[id]
	if _, busy := sv.stopping[id]; !ok || busy {
		return nil, nil, fmt.Errorf("%w: %s", errors.ErrSessionNotFound, id)
	}
	delete(sv.groups, id)
	return group, sv.saver, nil
}

func (sv *Supervisor) stateHolder(id string) (*StateHolder, error) {
	group, err := sv.group(id)
	if err != nil {
		return nil, err
	}
	return group.State()
}

// handleExhausted removes a session whose group ran out of restarts.
func (sv *Supervisor) handleExhausted(id string) {
	sv.mu.Lock()
	delete(sv.groups, id)
	sv.mu.Unlock()

	sv.registry.Unregister(id)
	sv.logger.Error("session removed after restart budget exhausted", "session_id", id)
}
