package pipeline

import (
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Outcome classifies the result of one dispatch attempt.
type Outcome int

const (
	// Success means the attempt delivered; the request's finalizers
	// resolve Delivered and no retry happens.
	Success Outcome = iota
	// Retriable means the attempt failed in a way that might succeed
	// on a later attempt; the dispatcher retries after a backoff delay
	// as long as the retry budget isn't exhausted.
	Retriable
	// NonRetriable means the attempt failed in a way no retry would
	// fix (the request itself is malformed or rejected); finalizers
	// resolve Rejected immediately.
	NonRetriable
	// Exhausted means a Retriable attempt ran out of retries; finalizers
	// resolve Errored.
	Exhausted
)

// AttemptResult is what a transport reports back to the dispatcher
// after one call: how long the call took (for AIMD latency tracking),
// any error, and, for HTTP, the status code and an optional
// Retry-After override.
type AttemptResult struct {
	Duration   time.Duration
	Err        error
	StatusCode int           // 0 if not an HTTP transport
	RetryAfter time.Duration // 0 if the response carried none
}

// Classifier turns a transport-level AttemptResult into an Outcome.
// Retriable outcomes additionally return the delay to wait before the
// next attempt, honoring any server-provided Retry-After.
type Classifier interface {
	Classify(res AttemptResult, attempt int) (Outcome, time.Duration)
}

// DefaultClassifier implements the mandated HTTP/gRPC retry table:
// connection errors and 5xx are retriable; 4xx is non-retriable except
// 408 and 429, which are retriable and honor Retry-After; gRPC
// Unavailable, DeadlineExceeded, and ResourceExhausted are retriable,
// InvalidArgument, NotFound, PermissionDenied, and Unauthenticated are
// not. MaxRetries bounds how many Retriable verdicts become Exhausted.
type DefaultClassifier struct {
	MaxRetries int
	Backoff    *Backoff
}

// NewDefaultClassifier builds a DefaultClassifier with a Backoff sized
// for the spec's ~60s retry ceiling.
func NewDefaultClassifier(maxRetries int) *DefaultClassifier {
	return &DefaultClassifier{MaxRetries: maxRetries, Backoff: NewBackoff()}
}

func (c *DefaultClassifier) Classify(res AttemptResult, attempt int) (Outcome, time.Duration) {
	retriable := classifyError(res)
	if !retriable.retriable {
		if retriable.nonRetriable {
			return NonRetriable, 0
		}
		return Success, 0
	}
	if attempt >= c.MaxRetries {
		return Exhausted, 0
	}
	if res.RetryAfter > 0 {
		return Retriable, res.RetryAfter
	}
	return Retriable, c.Backoff.Delay(attempt)
}

type classification struct {
	retriable    bool
	nonRetriable bool
}

func classifyError(res AttemptResult) classification {
	if res.StatusCode != 0 {
		return classifyHTTPStatus(res.StatusCode)
	}
	if res.Err == nil {
		return classification{}
	}
	if st, ok := status.FromError(res.Err); ok {
		return classifyGRPCCode(st.Code())
	}
	var netErr net.Error
	if errors.As(res.Err, &netErr) {
		return classification{retriable: true}
	}
	// Any other transport-level error (connection refused, reset,
	// DNS failure) is treated as retriable: the request never reached
	// the sink, so it cannot have been permanently rejected by it.
	return classification{retriable: true}
}

func classifyHTTPStatus(code int) classification {
	switch {
	case code >= 200 && code < 300:
		return classification{}
	case code == 408 || code == 429:
		return classification{retriable: true}
	case code >= 400 && code < 500:
		return classification{nonRetriable: true}
	case code >= 500:
		return classification{retriable: true}
	default:
		return classification{nonRetriable: true}
	}
}

func classifyGRPCCode(code codes.Code) classification {
	switch code {
	case codes.OK:
		return classification{}
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return classification{retriable: true}
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied, codes.Unauthenticated:
		return classification{nonRetriable: true}
	default:
		return classification{retriable: true}
	}
}

// Backoff produces a jittered exponential delay capped at 60 seconds,
// wrapping cenkalti/backoff's ExponentialBackOff so the curve and its
// ±50% randomization follow a maintained implementation rather than a
// hand-rolled one.
type Backoff struct {
	base *backoff.ExponentialBackOff
}

// NewBackoff builds a Backoff with the spec's defaults: 500ms initial
// interval, factor 2, capped at 60s, unbounded elapsed time (the
// dispatcher's MaxRetries is what bounds attempt count, not this).
func NewBackoff() *Backoff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 60 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return &Backoff{base: b}
}

// Delay returns the jittered delay for the given attempt number
// (0-indexed). Each call advances the underlying curve by one step
// from where attempt last left it; attempt is used to detect a
// restarted sequence and reset the curve rather than to recompute the
// interval directly, since ExponentialBackOff is inherently stateful.
// The result is clamped to MaxInterval because ExponentialBackOff
// applies its randomization after capping the interval.
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt == 0 {
		b.base.Reset()
	}
	d := b.base.NextBackOff()
	if d == backoff.Stop || d > b.base.MaxInterval {
		return b.base.MaxInterval
	}
	return d
}
