package persist

import (
	"fmt"

	"github.com/tandemlabs/tandem/internal/errors"
	"github.com/tandemlabs/tandem/internal/logging"
	"github.com/tandemlabs/tandem/internal/session"
	"github.com/tandemlabs/tandem/internal/supervisor"
)

// resumeOperation is the rate-limiter operation name for resume attempts.
const resumeOperation = "resume"

// Resume reconstructs a live session from its persisted record. The pipeline
// runs in a fixed order and aborts on the first failure:
//
//  1. rate-limit check keyed by session id
//  2. load and verify the record
//  3. validate the project path
//  4. reconstruct the session and start its group
//  5. re-validate the project path through the live coordinator, closing the
//     window since step 3 during which the path could be deleted or swapped
//  6. replay messages and todos into the live state holder in original order
//  7. delete the persisted file, which stayed the sole durable truth until
//     the live copy was confirmed good
//  8. record the successful attempt with the rate limiter
//
// If steps 5 or 6 fail after the group started, the group is torn down
// without snapshotting before the error returns, so no half-restored session
// sits live in the registry while the record still exists on disk.
func (st *Store) Resume(id string) (session.Session, error) {
	logger := st.logger.WithOperation(resumeOperation).WithSession(id)

	// Step 1: throttle.
	if res := st.limiter.Check(resumeOperation, id); !res.Allowed {
		return session.Session{}, &errors.RateLimitError{
			Operation:  resumeOperation,
			Key:        id,
			RetryAfter: res.RetryAfter,
		}
	}

	// Step 2: the record is the durable truth; nothing proceeds unless it
	// loads and verifies cleanly.
	record, err := st.Load(id)
	if err != nil {
		return session.Session{}, err
	}

	// Step 3: the project directory must still exist.
	if err := supervisor.CheckProjectPath(record.ProjectPath); err != nil {
		return session.Session{}, err
	}

	// Step 4: reserve the identity and start the group. StartSession rolls
	// its registration back on a failed start.
	s, err := record.Session()
	if err != nil {
		return session.Session{}, err
	}
	messages, err := record.Messages()
	if err != nil {
		return session.Session{}, err
	}
	todos, err := record.TodoItems()
	if err != nil {
		return session.Session{}, err
	}
	if err := st.sup.StartSession(s); err != nil {
		return session.Session{}, err
	}

	// Step 5: second path check through the live coordinator.
	if err := st.sup.ValidateProjectPath(id); err != nil {
		st.abortResume(id, logger, err)
		return session.Session{}, err
	}

	// Step 6: replay in original order, failing fast.
	for _, msg := range messages {
		if err := st.sup.AppendMessage(id, msg); err != nil {
			st.abortResume(id, logger, err)
			return session.Session{}, fmt.Errorf("replay message %s: %w", msg.ID, err)
		}
	}
	if len(todos) > 0 {
		if err := st.sup.UpdateTodos(id, todos); err != nil {
			st.abortResume(id, logger, err)
			return session.Session{}, fmt.Errorf("replay todos: %w", err)
		}
	}

	// Step 7: only now is the live copy confirmed good. A failed delete
	// leaves the session running; the stale record is surfaced to the caller
	// rather than silently ignored.
	if err := st.Delete(id); err != nil {
		logger.Error("resumed session is live but its record could not be deleted", "error", err)
		return s, fmt.Errorf("delete record after resume: %w", err)
	}

	// Step 8: a completed resume counts against the window.
	st.limiter.Record(resumeOperation, id)

	logger.Info("session resumed", "messages", len(messages), "todos", len(todos))
	return s, nil
}

// abortResume tears down a partially restored session without snapshotting,
// since the persisted record remains the authoritative copy.
func (st *Store) abortResume(id string, logger *logging.Logger, cause error) {
	logger.Warn("aborting partially restored session", "error", cause)
	if err := st.sup.AbortSession(id); err != nil {
		logger.Warn("teardown of partially restored session failed", "error", err)
	}
}
