package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/basinrelay/flowgate/pkg/finalize"
	"github.com/basinrelay/flowgate/pkg/log"
)

// AttemptFunc performs one dispatch attempt (one HTTP call, one gRPC
// call) and reports how it went. It must itself respect ctx's
// deadline/cancellation.
type AttemptFunc func(ctx context.Context) AttemptResult

// concurrencyLimiter is a resizable counting semaphore: the same
// "mutex-guarded shared state, no buffered-channel capacity to resize"
// shape as a round-robin index map, generalized from picking among a
// fixed set of backends to bounding how many requests may be in
// flight against one sink at once.
type concurrencyLimiter struct {
	mu    sync.Mutex
	cond  *sync.Cond
	cur   int
	limit int
	min   int
	max   int
}

func newConcurrencyLimiter(initial, max int) *concurrencyLimiter {
	l := &concurrencyLimiter{limit: initial, min: 1, max: max}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *concurrencyLimiter) acquire(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.mu.Lock()
		for l.cur >= l.limit {
			l.cond.Wait()
		}
		l.cur++
		l.mu.Unlock()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		// The waiting goroutine above may still acquire a slot after
		// this returns; release it immediately so the limiter's
		// accounting stays correct rather than leaking a permanently
		// held slot.
		go func() {
			<-done
			l.release()
		}()
		return ctx.Err()
	}
}

func (l *concurrencyLimiter) release() {
	l.mu.Lock()
	l.cur--
	l.mu.Unlock()
	l.cond.Signal()
}

func (l *concurrencyLimiter) grow() {
	l.mu.Lock()
	if l.limit < l.max {
		l.limit++
	}
	l.mu.Unlock()
}

func (l *concurrencyLimiter) shrink() {
	l.mu.Lock()
	newLimit := l.limit / 2
	if newLimit < l.min {
		newLimit = l.min
	}
	l.limit = newLimit
	l.mu.Unlock()
}

func (l *concurrencyLimiter) current() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

// Dispatcher runs attempts against a sink within a concurrency limit,
// retrying Retriable outcomes per a Classifier and resolving a
// request's finalizers once a terminal Outcome is reached. With
// adaptive enabled the concurrency limit grows by one after a run of
// stable, low-latency successes and halves on any failure (AIMD),
// bounded to [1, maxConcurrency]; a latency regression only restarts
// the run of successes.
type Dispatcher struct {
	limiter     *concurrencyLimiter
	adaptive    bool
	latencyCeil int
	growAfter   int
	mu          sync.Mutex
	baseLatency time.Duration
	streakOK    int
}

// NewDispatcher builds a Dispatcher capped at maxConcurrency in-flight
// attempts. When adaptive is true the limit starts at 1 and grows
// toward maxConcurrency as the sink proves stable; when false it
// starts (and stays) at maxConcurrency.
func NewDispatcher(maxConcurrency int, adaptive bool) *Dispatcher {
	initial := maxConcurrency
	if adaptive {
		initial = 1
	}
	return &Dispatcher{
		limiter:     newConcurrencyLimiter(initial, maxConcurrency),
		adaptive:    adaptive,
		latencyCeil: 2, // multiplier over baseLatency before it counts as a regression
		growAfter:   20,
	}
}

// Dispatch runs fn, retrying per classifier's verdict until a terminal
// Outcome is reached, then resolves finalizers accordingly. It blocks
// until the concurrency limiter grants a slot for each attempt and
// returns ctx's error if ctx is cancelled while waiting or sleeping.
func (d *Dispatcher) Dispatch(ctx context.Context, fn AttemptFunc, classifier Classifier, finalizers finalize.EventFinalizers) error {
	for attempt := 0; ; attempt++ {
		if err := d.limiter.acquire(ctx); err != nil {
			finalizers.UpdateStatus(finalize.Errored)
			return err
		}
		res := fn(ctx)
		d.limiter.release()

		outcome, delay := classifier.Classify(res, attempt)
		if d.adaptive {
			d.observe(outcome, res.Duration)
		}

		switch outcome {
		case Success:
			finalizers.UpdateStatus(finalize.Delivered)
			return nil
		case NonRetriable:
			log.WithStage("dispatch").Warn().Err(res.Err).Int("status_code", res.StatusCode).Msg("request rejected, not retrying")
			finalizers.UpdateStatus(finalize.Rejected)
			return res.Err
		case Exhausted:
			log.WithStage("dispatch").Error().Err(res.Err).Int("attempts", attempt+1).Msg("request exhausted its retry budget")
			finalizers.UpdateStatus(finalize.Errored)
			return res.Err
		case Retriable:
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				finalizers.UpdateStatus(finalize.Errored)
				return ctx.Err()
			}
		}
	}
}

// observe feeds one attempt's outcome into the AIMD controller. A
// failure (anything but Success) always shrinks. A success only grows
// the limit after growAfter consecutive successes with latency under
// latencyCeil times the running baseline; any regression above that
// resets the streak without shrinking, since a single slow call isn't
// evidence the sink is overloaded the way a failure is.
func (d *Dispatcher) observe(outcome Outcome, latency time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if outcome != Success {
		d.streakOK = 0
		d.limiter.shrink()
		return
	}

	if d.baseLatency == 0 {
		d.baseLatency = latency
	}
	if latency > d.baseLatency*time.Duration(d.latencyCeil) {
		d.streakOK = 0
		return
	}
	// Exponential moving average keeps the baseline responsive to a
	// sink that's genuinely gotten faster or slower over time.
	d.baseLatency = (d.baseLatency*3 + latency) / 4

	d.streakOK++
	if d.streakOK >= d.growAfter {
		d.streakOK = 0
		d.limiter.grow()
	}
}

// Concurrency reports the current in-flight cap, for metrics export.
func (d *Dispatcher) Concurrency() int {
	return d.limiter.current()
}
