package supervisor

import (
	"github.com/tandemlabs/tandem/internal/logging"
)

// ConfigKeyAgent is the session config key controlling whether a session
// runs an agent worker. The value "disabled" suppresses it.
const ConfigKeyAgent = "agent"

// Agent is the optional process-group member standing in for the
// tool-execution engine. The engine itself is an external collaborator; the
// agent worker exists so it shares restart fate with the coordinator and
// state holder.
type Agent struct {
	sessionID string
	logger    *logging.Logger

	stopc chan struct{}
	failc chan error
}

func newAgent(sessionID string, logger *logging.Logger) *Agent {
	return &Agent{
		sessionID: sessionID,
		logger:    logger.WithRole(string(RoleAgent)),
		stopc:     make(chan struct{}),
		failc:     make(chan error, 1),
	}
}

// SessionID implements Handle.
func (a *Agent) SessionID() string { return a.sessionID }

// HandleRole implements Handle.
func (a *Agent) HandleRole() Role { return RoleAgent }

func (a *Agent) run(report func(Role, error)) {
	select {
	case <-a.stopc:
		return
	case err := <-a.failc:
		a.logger.Error("agent failed", "error", err)
		report(RoleAgent, err)
	}
}

// injectFailure makes the agent exit abnormally. Test hook.
func (a *Agent) injectFailure(err error) {
	select {
	case a.failc <- err:
	default:
	}
}
