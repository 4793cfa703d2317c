package supervisor

import (
	"fmt"
	"sync"
	"time"

	"github.com/tandemlabs/tandem/internal/errors"
	"github.com/tandemlabs/tandem/internal/logging"
	"github.com/tandemlabs/tandem/internal/ratelimit"
	"github.com/tandemlabs/tandem/internal/session"
)

const restartOperation = "restart"

type workerExit struct {
	generation int
	role       Role
	err        error
}

// Group supervises one session's process group: a coordinator, a state
// holder, and optionally an agent. The members share restart fate: when any
// of them exits abnormally, the whole generation is torn down and a fresh
// one is started, because each member's in-memory data depends on the others
// being mutually consistent. Restarts draw from a sliding-window budget;
// exhausting it stops the group for good and notifies the owner.
type Group struct {
	sessionID     string
	projectRoot   string
	withAgent     bool
	timeout       time.Duration
	handles       *Index
	logger        *logging.Logger
	budget        *ratelimit.Limiter
	restartBudget int
	onExhausted   func(sessionID string)

	mu          sync.Mutex
	running     bool
	generation  int
	coordinator *Coordinator
	state       *StateHolder
	agent       *Agent
	wg          sync.WaitGroup

	exits chan workerExit
	stopc chan struct{}
	done  chan struct{}
}

// GroupOptions configures a new Group.
type GroupOptions struct {
	// RestartBudget is how many restarts are allowed per rolling minute
	// before the group gives up. Zero or negative disables restarts: the
	// first abnormal exit tears the group down.
	RestartBudget int
	// QueryTimeout bounds waits on state and coordinator queries.
	QueryTimeout time.Duration
	// OnExhausted is called, outside any group lock, when the restart budget
	// runs out and the group tears itself down.
	OnExhausted func(sessionID string)
}

func newGroup(s session.Session, handles *Index, logger *logging.Logger, opts GroupOptions) *Group {
	budget := ratelimit.New(map[string]ratelimit.Limit{
		restartOperation: {Limit: opts.RestartBudget, Window: time.Minute},
	}, logger)

	return &Group{
		sessionID:     s.ID,
		projectRoot:   s.ProjectPath,
		withAgent:     s.Config[ConfigKeyAgent] != "disabled",
		timeout:       opts.QueryTimeout,
		handles:       handles,
		logger:        logger.WithSession(s.ID).WithRole(string(RoleGroup)),
		budget:        budget,
		restartBudget: opts.RestartBudget,
		onExhausted:   opts.OnExhausted,
		exits:         make(chan workerExit, 3),
		stopc:         make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// SessionID implements Handle.
func (g *Group) SessionID() string { return g.sessionID }

// HandleRole implements Handle.
func (g *Group) HandleRole() Role { return RoleGroup }

// Start validates the project root, launches the first worker generation,
// and begins supervising. A failed start leaves no handles behind.
func (g *Group) Start() error {
	if err := CheckProjectPath(g.projectRoot); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrGroupStartFailed, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return fmt.Errorf("%w: group for %s already running", errors.ErrGroupStartFailed, g.sessionID)
	}
	g.running = true
	g.handles.Put(g)
	g.startGenerationLocked()

	go g.loop()
	g.logger.Info("group started", "project_path", g.projectRoot)
	return nil
}

// Stop tears down the current generation and ends supervision. Stopping a
// stopped group is a no-op.
func (g *Group) Stop() {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	g.running = false
	g.stopGenerationLocked()
	g.handles.RemoveSession(g.sessionID)
	g.mu.Unlock()

	close(g.stopc)
	<-g.done
	g.logger.Info("group stopped")
}

// State returns the current generation's state holder.
func (g *Group) State() (*StateHolder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running {
		return nil, fmt.Errorf("%w: %s", errors.ErrGroupNotRunning, g.sessionID)
	}
	return g.state, nil
}

// Coordinator returns the current generation's coordinator.
func (g *Group) Coordinator() (*Coordinator, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running {
		return nil, fmt.Errorf("%w: %s", errors.ErrGroupNotRunning, g.sessionID)
	}
	return g.coordinator, nil
}

// Generation returns the current restart generation. Test observability.
func (g *Group) Generation() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generation
}

// Running reports whether the group is supervising workers.
func (g *Group) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// loop is the supervision control loop. It reacts to abnormal worker exits
// by restarting the whole generation, until the budget runs out or the group
// is stopped.
func (g *Group) loop() {
	defer close(g.done)

	for {
		select {
		case <-g.stopc:
			return
		case exit := <-g.exits:
			g.mu.Lock()
			if !g.running || exit.generation != g.generation {
				// Stale report from a generation already torn down.
				g.mu.Unlock()
				continue
			}

			g.logger.Warn("group member exited abnormally",
				"role", exit.role,
				"generation", exit.generation,
				"error", exit.err)

			g.stopGenerationLocked()

			// An explicit zero budget means no restarts at all; the limiter
			// would otherwise substitute its default for a non-positive limit.
			if g.restartBudget <= 0 || !g.budget.Check(restartOperation, g.sessionID).Allowed {
				g.running = false
				g.handles.RemoveSession(g.sessionID)
				g.mu.Unlock()

				g.logger.Error("restart budget exhausted, giving up",
					"generation", exit.generation)
				if g.onExhausted != nil {
					g.onExhausted(g.sessionID)
				}
				return
			}
			g.budget.Record(restartOperation, g.sessionID)

			g.generation++
			g.startGenerationLocked()
			g.logger.Info("group restarted", "generation", g.generation)
			g.mu.Unlock()
		}
	}
}

// startGenerationLocked launches a fresh set of workers and registers their
// handles. Must be called with the group lock held.
func (g *Group) startGenerationLocked() {
	gen := g.generation
	report := func(role Role, err error) {
		select {
		case g.exits <- workerExit{generation: gen, role: role, err: err}:
		case <-g.stopc:
		}
	}

	base := g.logger.WithSession(g.sessionID)
	g.coordinator = newCoordinator(g.sessionID, g.projectRoot, g.timeout, base)
	g.state = newStateHolder(g.sessionID, g.timeout, base)
	g.handles.Put(g.coordinator)
	g.handles.Put(g.state)

	g.wg.Add(2)
	go func() {
		defer g.wg.Done()
		g.coordinator.run(report)
	}()
	go func() {
		defer g.wg.Done()
		g.state.run(report)
	}()

	if g.withAgent {
		g.agent = newAgent(g.sessionID, base)
		g.handles.Put(g.agent)
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			g.agent.run(report)
		}()
	} else {
		g.agent = nil
	}
}

// stopGenerationLocked signals every worker of the current generation to
// stop and waits for them to exit. Must be called with the group lock held.
func (g *Group) stopGenerationLocked() {
	close(g.coordinator.stopc)
	close(g.state.stopc)
	if g.agent != nil {
		close(g.agent.stopc)
	}
	g.wg.Wait()
}
