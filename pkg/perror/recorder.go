package perror

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/basinrelay/flowgate/pkg/log"
	"github.com/basinrelay/flowgate/pkg/metrics"
)

// DefaultWindow is the rate-limit window a cause is allowed to log
// once per, per spec's "at most once per unique cause per rate-limit
// window (default 10s)".
const DefaultWindow = 10 * time.Second

// Recorder is the single path components route surfaced errors
// through: every call counts the error unconditionally, but only logs
// it if this exact cause hasn't already logged within the current
// window. "Cause" is keyed on (stage, type, component, cause string)
// — two different underlying errors with the same message in the same
// place share a limiter, which is the intended behavior for a
// flapping dependency producing the same error repeatedly.
type Recorder struct {
	window time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewRecorder(window time.Duration) *Recorder {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Recorder{window: window, limiters: make(map[string]*rate.Limiter)}
}

// Record increments the stage/type counter and logs e at most once
// per window for its (stage, type, component, cause) key.
func (r *Recorder) Record(e *Error) {
	metrics.ComponentErrorsTotal.WithLabelValues(string(e.Stage), string(e.Type)).Inc()

	key := string(e.Stage) + "|" + string(e.Type) + "|" + e.Component + "|" + e.Error()
	if !r.allow(key) {
		return
	}

	logger := log.WithComponent(e.Component)
	event := logger.Error()
	if e.Cause != nil {
		event = event.Err(e.Cause)
	}
	event.Str("stage", string(e.Stage)).Str("error_type", string(e.Type)).Msg("component error")
}

func (r *Recorder) allow(key string) bool {
	r.mu.Lock()
	limiter, ok := r.limiters[key]
	if !ok {
		// burst of 1, refilling once per window: exactly "once per
		// cause per window", not a steady-state rate.
		limiter = rate.NewLimiter(rate.Every(r.window), 1)
		r.limiters[key] = limiter
	}
	r.mu.Unlock()
	return limiter.Allow()
}
