package topology

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/basinrelay/flowgate/pkg/log"
)

// Component is one running graph node: a source, transform, or sink.
// Run must return when ctx is cancelled; a Run that returns a non-nil
// error other than ctx.Err() is reported to the supervisor as a crash.
type Component interface {
	Run(ctx context.Context) error
}

// HealthChecker is implemented by components (typically sinks) whose
// readiness should gate a Reload when the node's RequireHealthy is set.
type HealthChecker interface {
	Healthcheck(ctx context.Context) error
}

// Severity classifies a crash for the supervisor's policy decision.
type Severity uint8

const (
	// Expected crashes (a transient downstream error, a context
	// cancellation race) are logged and the topology continues.
	Expected Severity = iota
	// Fatal crashes (e.g. a listener failing to bind its port) trigger
	// an orderly shutdown of the whole topology.
	Fatal
)

func (s Severity) String() string {
	if s == Fatal {
		return "fatal"
	}
	return "expected"
}

// CrashReport is sent on the supervisor's channel whenever a
// component's Run returns an unexpected error.
type CrashReport struct {
	NodeID   string
	Err      error
	Severity Severity
}

// runningComponent tracks one supervised goroutine.
type runningComponent struct {
	node      Node
	component Component
	cancel    context.CancelFunc
	done      chan struct{}
}

// supervisor starts and stops a set of components, reporting failures
// on Crashes. Grounded on pkg/worker/worker.go's stopCh-per-task
// lifecycle (here, one context.CancelFunc per component instead of a
// single shared stopCh, since Reload must be able to stop components
// individually) and pkg/reconciler/reconciler.go's ticking
// desired-vs-actual loop, generalized here from a fixed "reconcile
// containers" cycle into "notice and report a component's own exit."
type supervisor struct {
	mu         sync.Mutex
	running    map[string]*runningComponent
	Crashes    chan CrashReport
	stopTimeout time.Duration
}

func newSupervisor(stopTimeout time.Duration) *supervisor {
	if stopTimeout <= 0 {
		stopTimeout = 30 * time.Second
	}
	return &supervisor{
		running:     make(map[string]*runningComponent),
		Crashes:     make(chan CrashReport, 16),
		stopTimeout: stopTimeout,
	}
}

// start launches node's component in its own goroutine under ctx.
func (s *supervisor) start(ctx context.Context, node Node, c Component) {
	runCtx, cancel := context.WithCancel(ctx)
	rc := &runningComponent{node: node, component: c, cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.running[node.ID] = rc
	s.mu.Unlock()

	go func() {
		defer close(rc.done)
		err := c.Run(runCtx)
		if err == nil || runCtx.Err() != nil {
			return
		}
		sev := Expected
		if isFatal(err) {
			sev = Fatal
		}
		log.WithComponent(node.ID).Error().Err(err).Str("severity", sev.String()).Msg("component exited unexpectedly")
		select {
		case s.Crashes <- CrashReport{NodeID: node.ID, Err: err, Severity: sev}:
		default:
			log.WithComponent(node.ID).Warn().Msg("crash channel full, dropping crash report")
		}
	}()
}

// fatalError is implemented by errors a component wants the
// supervisor to treat as Fatal (e.g. "failed to bind listener port")
// rather than Expected.
type fatalError interface {
	Fatal() bool
}

func isFatal(err error) bool {
	fe, ok := err.(fatalError)
	return ok && fe.Fatal()
}

// stop signals the named component to shut down and waits up to the
// supervisor's stopTimeout for it to exit.
func (s *supervisor) stop(nodeID string) error {
	s.mu.Lock()
	rc, ok := s.running[nodeID]
	if ok {
		delete(s.running, nodeID)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}

	rc.cancel()
	select {
	case <-rc.done:
		return nil
	case <-time.After(s.stopTimeout):
		return fmt.Errorf("topology: component %q did not stop within %s", nodeID, s.stopTimeout)
	}
}

// stopAll shuts down every running component concurrently, each
// within the supervisor's stopTimeout.
func (s *supervisor) stopAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.running))
	for id := range s.running {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := s.stop(id); err != nil {
				log.WithComponent(id).Warn().Err(err).Msg("component did not stop cleanly during shutdown")
			}
		}(id)
	}
	wg.Wait()
}
