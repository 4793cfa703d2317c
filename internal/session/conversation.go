package session

import (
	"fmt"
	"time"

	"github.com/tandemlabs/tandem/internal/errors"
)

// Role identifies the author of a conversation message.
type Role string

// Valid message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ParseRole validates a role string from an external source (a persisted
// record). Out-of-enum values are an integrity error, not a default.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: unknown role %q", errors.ErrInvalidRecord, s)
}

// TodoStatus identifies the progress state of a task-list entry.
type TodoStatus string

// Valid todo statuses.
const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
)

// ParseTodoStatus validates a status string from an external source.
func ParseTodoStatus(s string) (TodoStatus, error) {
	switch TodoStatus(s) {
	case TodoPending, TodoInProgress, TodoCompleted:
		return TodoStatus(s), nil
	}
	return "", fmt.Errorf("%w: unknown todo status %q", errors.ErrInvalidRecord, s)
}

// Message is a single conversation entry.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Timestamp time.Time
}

// Todo is a single task-list entry.
type Todo struct {
	Content string
	Status  TodoStatus
	// ActiveForm is the present-continuous phrasing shown while the todo is
	// in progress (e.g. "Running tests" for "Run tests").
	ActiveForm string
}
