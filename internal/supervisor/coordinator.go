package supervisor

import (
	"fmt"
	"os"
	"time"

	"github.com/tandemlabs/tandem/internal/errors"
	"github.com/tandemlabs/tandem/internal/logging"
)

type coordRequest struct {
	apply func() error
	reply chan error
}

// Coordinator is the process-group member that holds a session's project-root
// boundary. Path checks go through its queue, so they are ordered with
// respect to each other the same way state mutations are.
type Coordinator struct {
	sessionID   string
	projectRoot string
	timeout     time.Duration
	logger      *logging.Logger

	requests chan coordRequest
	stopc    chan struct{}
	failc    chan error
}

func newCoordinator(sessionID, projectRoot string, timeout time.Duration, logger *logging.Logger) *Coordinator {
	return &Coordinator{
		sessionID:   sessionID,
		projectRoot: projectRoot,
		timeout:     timeout,
		logger:      logger.WithRole(string(RoleCoordinator)),
		requests:    make(chan coordRequest),
		stopc:       make(chan struct{}),
		failc:       make(chan error, 1),
	}
}

// SessionID implements Handle.
func (c *Coordinator) SessionID() string { return c.sessionID }

// HandleRole implements Handle.
func (c *Coordinator) HandleRole() Role { return RoleCoordinator }

// ProjectRoot returns the directory this session is bound to.
func (c *Coordinator) ProjectRoot() string { return c.projectRoot }

func (c *Coordinator) run(report func(Role, error)) {
	for {
		select {
		case <-c.stopc:
			return
		case err := <-c.failc:
			c.logger.Error("coordinator failed", "error", err)
			report(RoleCoordinator, err)
			return
		case req := <-c.requests:
			req.reply <- req.apply()
		}
	}
}

// injectFailure makes the coordinator exit abnormally. Test hook.
func (c *Coordinator) injectFailure(err error) {
	select {
	case c.failc <- err:
	default:
	}
}

func (c *Coordinator) do(fn func() error) error {
	req := coordRequest{apply: fn, reply: make(chan error, 1)}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case c.requests <- req:
	case <-c.stopc:
		return fmt.Errorf("%w: coordinator for %s stopped", errors.ErrGroupNotRunning, c.sessionID)
	case <-timer.C:
		return fmt.Errorf("%w: coordinator queue for %s", errors.ErrStateUnavailable, c.sessionID)
	}

	select {
	case err := <-req.reply:
		return err
	case <-timer.C:
		return fmt.Errorf("%w: coordinator reply for %s", errors.ErrStateUnavailable, c.sessionID)
	}
}

// ValidatePath checks that the project root still exists and is a directory.
func (c *Coordinator) ValidatePath() error {
	return c.do(func() error {
		return CheckProjectPath(c.projectRoot)
	})
}

// CheckProjectPath verifies that path exists and is a directory. It is the
// shared validation used both before a session exists and by a live
// coordinator.
func CheckProjectPath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", errors.ErrPathNotFound, path)
		}
		return fmt.Errorf("stat project path %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", errors.ErrPathNotDirectory, path)
	}
	return nil
}
