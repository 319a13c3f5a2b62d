package buffer

import (
	"context"
	"errors"

	"github.com/basinrelay/flowgate/pkg/event"
)

// ErrClosed is returned by Send/Recv once the edge has been closed.
var ErrClosed = errors.New("buffer: edge closed")

// Policy governs what a Sender does when its receiver can't keep up.
type Policy uint8

const (
	// Block suspends the producer until capacity is available.
	Block Policy = iota
	// DropNewest accepts the send but discards the event, finalizing it
	// Delivered since the operator configured this behavior explicitly.
	DropNewest
	// Overflow attempts a non-blocking send and forwards to a secondary
	// Sender on failure. Use pkg/buffer/overflow to build one of these;
	// a bare memory.Sender does not implement Overflow itself.
	Overflow
)

func (p Policy) String() string {
	switch p {
	case Block:
		return "block"
	case DropNewest:
		return "drop_newest"
	case Overflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// Sender is the producer side of a buffer edge.
type Sender interface {
	// Send enqueues e, applying the edge's configured Policy. It
	// returns an error for Block (context cancellation), after the edge
	// is closed, or when the backend cannot store e (the disk buffer
	// rejects an oversized record or a failed write); a DropNewest drop
	// is not an error.
	Send(ctx context.Context, e event.Event) error
	Close() error
}

// Receiver is the consumer side of a buffer edge.
type Receiver interface {
	// Recv blocks until an event is available, ctx is done, or the
	// edge is closed and drained. The bool is false in the latter two
	// cases.
	Recv(ctx context.Context) (event.Event, bool)
	Close() error
}

// ChanReceiver is a Receiver that can also expose its underlying
// delivery channel, so pkg/buffer/overflow can poll two receivers
// fairly without either one's Recv call being able to fully drain the
// other first. memory.Receiver and disk.Receiver both implement this;
// an overflow.Receiver deliberately does not, since its own fairness
// guarantee would be bypassed by a caller reading its channel directly.
type ChanReceiver interface {
	Receiver
	Chan() <-chan event.Event
}

// Lenner is implemented by Receivers that can report how many events
// are currently buffered without consuming them. Not every backend can
// answer this cheaply (a disk buffer would need to scan its ledger);
// callers that need it should treat its absence as "unknown," not "0."
type Lenner interface {
	Len() int
}

// NonBlockingSender is implemented by Senders that can attempt a
// send without blocking, reporting success immediately. pkg/buffer/
// overflow requires this from the primary side of an Overflow edge.
type NonBlockingSender interface {
	TrySend(e event.Event) bool
}
