package supervisor

import (
	"fmt"
	"time"

	"github.com/tandemlabs/tandem/internal/errors"
	"github.com/tandemlabs/tandem/internal/logging"
	"github.com/tandemlabs/tandem/internal/session"
)

// ConversationState is the mutable live state of one session: the message
// history, the task list, and the streaming flag.
type ConversationState struct {
	Messages  []session.Message
	Todos     []session.Todo
	Streaming bool
}

// clone deep-copies the state so callers never alias the holder's memory.
func (c ConversationState) clone() ConversationState {
	out := ConversationState{Streaming: c.Streaming}
	if c.Messages != nil {
		out.Messages = make([]session.Message, len(c.Messages))
		copy(out.Messages, c.Messages)
	}
	if c.Todos != nil {
		out.Todos = make([]session.Todo, len(c.Todos))
		copy(out.Todos, c.Todos)
	}
	return out
}

type stateRequest struct {
	apply func(*ConversationState) error
	reply chan error
}

// StateHolder is the process-group member that owns a session's mutable
// state. All mutations and reads are serialized through its inbound queue,
// so within one session state changes are strictly ordered. Queries carry a
// bounded wait; a holder that cannot answer in time yields
// ErrStateUnavailable rather than blocking the caller.
type StateHolder struct {
	sessionID string
	timeout   time.Duration
	logger    *logging.Logger

	requests chan stateRequest
	stopc    chan struct{}
	failc    chan error
}

func newStateHolder(sessionID string, timeout time.Duration, logger *logging.Logger) *StateHolder {
	return &StateHolder{
		sessionID: sessionID,
		timeout:   timeout,
		logger:    logger.WithRole(string(RoleState)),
		requests:  make(chan stateRequest),
		stopc:     make(chan struct{}),
		failc:     make(chan error, 1),
	}
}

// SessionID implements Handle.
func (s *StateHolder) SessionID() string { return s.sessionID }

// HandleRole implements Handle.
func (s *StateHolder) HandleRole() Role { return RoleState }

// run is the holder's request loop. report is invoked only on abnormal exit;
// a requested stop returns without reporting.
func (s *StateHolder) run(report func(Role, error)) {
	state := &ConversationState{}
	for {
		select {
		case <-s.stopc:
			return
		case err := <-s.failc:
			s.logger.Error("state holder failed", "error", err)
			report(RoleState, err)
			return
		case req := <-s.requests:
			req.reply <- req.apply(state)
		}
	}
}

// injectFailure makes the holder exit abnormally. Test hook.
func (s *StateHolder) injectFailure(err error) {
	select {
	case s.failc <- err:
	default:
	}
}

// do submits a request and waits for its reply, bounded by the query timeout.
func (s *StateHolder) do(fn func(*ConversationState) error) error {
	req := stateRequest{apply: fn, reply: make(chan error, 1)}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case s.requests <- req:
	case <-s.stopc:
		return fmt.Errorf("%w: state holder for %s stopped", errors.ErrGroupNotRunning, s.sessionID)
	case <-timer.C:
		return fmt.Errorf("%w: state queue for %s", errors.ErrStateUnavailable, s.sessionID)
	}

	select {
	case err := <-req.reply:
		return err
	case <-timer.C:
		return fmt.Errorf("%w: state reply for %s", errors.ErrStateUnavailable, s.sessionID)
	}
}

// GetState returns a snapshot copy of the current state.
func (s *StateHolder) GetState() (ConversationState, error) {
	var out ConversationState
	err := s.do(func(st *ConversationState) error {
		out = st.clone()
		return nil
	})
	return out, err
}

// AppendMessage adds one message to the end of the history.
func (s *StateHolder) AppendMessage(msg session.Message) error {
	return s.do(func(st *ConversationState) error {
		st.Messages = append(st.Messages, msg)
		return nil
	})
}

// UpdateTodos replaces the task list wholesale.
func (s *StateHolder) UpdateTodos(todos []session.Todo) error {
	return s.do(func(st *ConversationState) error {
		st.Todos = make([]session.Todo, len(todos))
		copy(st.Todos, todos)
		return nil
	})
}

// SetStreaming flips the streaming flag.
func (s *StateHolder) SetStreaming(streaming bool) error {
	return s.do(func(st *ConversationState) error {
		st.Streaming = streaming
		return nil
	})
}

// Replace overwrites the whole state. Used when restoring a snapshot.
func (s *StateHolder) Replace(state ConversationState) error {
	return s.do(func(st *ConversationState) error {
		*st = state.clone()
		return nil
	})
}
