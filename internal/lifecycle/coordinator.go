package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ethDreamer/lighthouse/libs/log"
	"github.com/ethDreamer/lighthouse/libs/service"
)

// State is the coordinator's lifecycle state.
type State int

const (
	Running State = iota
	ShuttingDown
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting down"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrDidNotTerminate is recorded as the outcome of a service that exceeded
// the per-task shutdown timeout.
var ErrDidNotTerminate = errors.New("service did not terminate within shutdown timeout")

// Failer is the interface subsystems use to report a fatal runtime failure.
// Recoverable failures are handled locally by the owning collaborator and
// never reach the coordinator.
type Failer interface {
	Fail(subsystem string, cause error)
}

// Trap converts a panic in a spawned service loop into a fatal failure
// delivered to the coordinator, preserving the single-shutdown-reason
// invariant. Use as the first deferred call of every loop goroutine:
//
//	defer lifecycle.Trap("chain", failer)
func Trap(subsystem string, failer Failer) {
	if r := recover(); r != nil {
		failer.Fail(subsystem, fmt.Errorf("panic: %v", r))
	}
}

// Coordinator is the single authority that decides when and why the node
// stops. It owns the service registry: services are spawned through it,
// report fatal outcomes to it, and are drained by it.
//
// The state machine is Running -> ShuttingDown -> Stopped. The transition to
// ShuttingDown records a Reason exactly once; concurrent triggers race
// harmlessly to set the same terminal state.
type Coordinator struct {
	logger   log.Logger
	registry *Registry

	perTaskTimeout time.Duration

	// flushed as the very last action before Stopped
	flushFn func() error

	stateCh      chan State // 1-buffered mutex carrying the current state
	reason       Reason
	shuttingDown chan struct{}
	stopped      chan struct{}
}

// NewCoordinator creates a coordinator in the Running state.
func NewCoordinator(logger log.Logger, perTaskTimeout time.Duration) *Coordinator {
	c := &Coordinator{
		logger:         logger,
		registry:       NewRegistry(),
		perTaskTimeout: perTaskTimeout,
		stateCh:        make(chan State, 1),
		shuttingDown:   make(chan struct{}),
		stopped:        make(chan struct{}),
	}
	c.stateCh <- Running
	return c
}

// Registry exposes the coordinator-owned service registry.
func (c *Coordinator) Registry() *Registry { return c.registry }

// SetFlush installs the persistent-store flush executed after every service
// has stopped mutating it.
func (c *Coordinator) SetFlush(fn func() error) { c.flushFn = fn }

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	s := <-c.stateCh
	c.stateCh <- s
	return s
}

// IsShuttingDown reports whether shutdown has been triggered (the state is
// ShuttingDown or Stopped).
func (c *Coordinator) IsShuttingDown() bool {
	select {
	case <-c.shuttingDown:
		return true
	default:
		return false
	}
}

// Reason returns the recorded shutdown reason, or nil while Running.
func (c *Coordinator) Reason() Reason {
	s := <-c.stateCh
	r := c.reason
	c.stateCh <- s
	return r
}

// Done returns a channel closed once the coordinator reaches Stopped.
func (c *Coordinator) Done() <-chan struct{} { return c.stopped }

// Wait blocks until the coordinator reaches Stopped.
func (c *Coordinator) Wait() { <-c.stopped }

// Spawn starts a subsystem service under a child context, registers it, and
// installs the clean-exit observer. The service is not registered if its
// OnStart fails.
func (c *Coordinator) Spawn(
	ctx context.Context,
	name string,
	criticality Criticality,
	requiredOnFailure bool,
	svc service.Service,
) error {
	svcCtx, cancel := context.WithCancel(ctx)

	if err := svc.Start(svcCtx); err != nil {
		cancel()
		return err
	}

	entry := &Entry{
		Name:              name,
		Criticality:       criticality,
		RequiredOnFailure: requiredOnFailure,
		Service:           svc,
		cancel:            cancel,
	}
	if err := c.registry.Register(entry); err != nil {
		cancel()
		if stopErr := svc.Stop(); stopErr != nil {
			c.logger.Error("failed to stop duplicate service", "service", name, "err", stopErr)
		}
		return err
	}

	// A service that stops on its own while the node is running, without a
	// reported fatal cause, terminated abnormally.
	go func() {
		svc.Wait()
		if c.IsShuttingDown() {
			return
		}
		if done, _ := entry.Completed(); done {
			return
		}
		c.Fail(name, errors.New("service terminated unexpectedly"))
	}()

	return nil
}

// Fail delivers a fatal runtime failure from the named subsystem. Critical
// subsystems (and optional ones marked required-on-failure) trigger a full
// shutdown; other optional subsystems are marked dead and the node keeps
// running without them.
func (c *Coordinator) Fail(subsystem string, cause error) {
	entry, ok := c.registry.Lookup(subsystem)
	if !ok {
		c.logger.Error("fatal failure from unregistered subsystem", "subsystem", subsystem, "err", cause)
		return
	}

	if !entry.markCompleted(cause) {
		// already classified; nothing further to decide
		return
	}

	if entry.Criticality == Critical || entry.RequiredOnFailure {
		c.Shutdown(FatalSubsystemFailure{Subsystem: subsystem, Cause: cause})
		return
	}

	c.logger.Error("optional subsystem failed; continuing without it",
		"subsystem", subsystem, "err", cause)

	// Tear the dead subsystem down in the background. Fail may be called
	// from the subsystem's own loop, so stopping synchronously here could
	// deadlock.
	entry.cancel()
	go func() {
		if err := entry.Service.Stop(); err != nil &&
			!errors.Is(err, service.ErrAlreadyStopped) && !errors.Is(err, service.ErrNotStarted) {
			c.logger.Error("failed to stop subsystem", "subsystem", subsystem, "err", err)
		}
	}()
}

// Shutdown triggers the Running -> ShuttingDown transition and returns a
// channel closed once Stopped is reached. The first caller's reason is
// recorded; every later call observes the same in-flight or completed
// teardown.
func (c *Coordinator) Shutdown(reason Reason) <-chan struct{} {
	s := <-c.stateCh
	if s != Running {
		c.stateCh <- s
		return c.stopped
	}
	c.reason = reason
	c.stateCh <- ShuttingDown
	close(c.shuttingDown)

	c.logger.Info("shutting down", "reason", reason.String())
	go c.drain()

	return c.stopped
}

// drain broadcasts cancellation to every registered entry, waits for each
// completion signal up to the per-task timeout concurrently, flushes the
// persistent store, and transitions to Stopped.
func (c *Coordinator) drain() {
	entries := c.registry.Entries()

	// Cooperative cancellation broadcast, in registration order.
	for _, entry := range entries {
		c.logger.Info("stopping service", "service", entry.Name)
		entry.cancel()
	}

	var g errgroup.Group
	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			waitDone := make(chan struct{})
			go func() {
				if err := entry.Service.Stop(); err != nil &&
					!errors.Is(err, service.ErrAlreadyStopped) && !errors.Is(err, service.ErrNotStarted) {
					c.logger.Error("error stopping service", "service", entry.Name, "err", err)
				}
				entry.Service.Wait()
				close(waitDone)
			}()

			select {
			case <-waitDone:
				entry.markCompleted(nil)
				c.logger.Info("service stopped", "service", entry.Name)
			case <-time.After(c.perTaskTimeout):
				entry.markCompleted(ErrDidNotTerminate)
				c.logger.Error("service did not terminate; force releasing",
					"service", entry.Name, "timeout", c.perTaskTimeout)
			}
			return nil
		})
	}
	_ = g.Wait()

	// All tasks have stopped mutating shared state; flush the persistent
	// store as the last action before Stopped.
	if c.flushFn != nil {
		if err := c.flushFn(); err != nil {
			c.logger.Error("failed to flush store during shutdown", "err", err)
		}
	}

	<-c.stateCh
	c.stateCh <- Stopped
	close(c.stopped)
	c.logger.Info("shutdown complete", "reason", c.reason.String())
}
