/*
Package memory implements a bounded, channel-backed BufferSender/
BufferReceiver pair: flowgate's in-memory queue edge. Grounded on the
teacher's pkg/events.Broker, which uses the same
"select{case ch<-x: default:}" pattern to drop an event on a full
subscriber channel rather than block the publisher; here that pattern
is generalized from "best-effort event fan-out" to an edge policy the
operator chooses explicitly (Block or DropNewest — Overflow composition
is built on top of TrySend by pkg/buffer/overflow).
*/
package memory

import (
	"context"
	"sync"

	"github.com/basinrelay/flowgate/pkg/buffer"
	"github.com/basinrelay/flowgate/pkg/event"
	"github.com/basinrelay/flowgate/pkg/log"
)

// New creates a bounded memory buffer of the given capacity and policy,
// returning its Sender and Receiver halves. Policy must be Block or
// DropNewest; pass Overflow to pkg/buffer/overflow instead, which wraps
// a memory buffer's TrySend rather than asking this package to know
// about a secondary edge.
func New(capacity int, policy buffer.Policy, edgeID string) (*Sender, *Receiver) {
	ch := make(chan event.Event, capacity)
	closeCh := make(chan struct{})
	var once sync.Once
	s := &Sender{ch: ch, policy: policy, closeCh: closeCh, closeOnce: &once, edgeID: edgeID}
	r := &Receiver{ch: ch, closeCh: closeCh}
	return s, r
}

// Sender is the producer side of a memory buffer edge.
type Sender struct {
	ch        chan event.Event
	policy    buffer.Policy
	closeCh   chan struct{}
	closeOnce *sync.Once
	edgeID    string
}

// Send enqueues e per s.policy. DropNewest never blocks and never
// returns an error; it finalizes the dropped event Delivered, since a
// DropNewest policy is an explicit operator choice to shed load.
func (s *Sender) Send(ctx context.Context, e event.Event) error {
	switch s.policy {
	case buffer.DropNewest:
		select {
		case s.ch <- e:
			return nil
		default:
			meta := e.Metadata()
			meta.Finalizers.Drop()
			log.WithEdge(s.edgeID).Warn().Msg("memory buffer full, dropping newest event per configured policy")
			return nil
		}
	default: // Block
		select {
		case s.ch <- e:
			return nil
		case <-s.closeCh:
			return buffer.ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// TrySend attempts a non-blocking send regardless of the configured
// policy, for use as the primary side of an Overflow edge.
func (s *Sender) TrySend(e event.Event) bool {
	select {
	case s.ch <- e:
		return true
	default:
		return false
	}
}

// Close signals the edge is shutting down. Events already buffered
// remain available to Recv until drained.
func (s *Sender) Close() error {
	s.closeOnce.Do(func() { close(s.closeCh) })
	return nil
}

// Receiver is the consumer side of a memory buffer edge.
type Receiver struct {
	ch      chan event.Event
	closeCh chan struct{}
}

// Recv blocks until an event arrives, ctx is done, or the edge closes
// with nothing left buffered.
func (r *Receiver) Recv(ctx context.Context) (event.Event, bool) {
	select {
	case e := <-r.ch:
		return e, true
	case <-ctx.Done():
		return event.Event{}, false
	case <-r.closeCh:
		select {
		case e := <-r.ch:
			return e, true
		default:
			return event.Event{}, false
		}
	}
}

// Chan exposes the delivery channel for fair polling by
// pkg/buffer/overflow.
func (r *Receiver) Chan() <-chan event.Event { return r.ch }

// Len reports how many events are currently buffered, for callers
// (pkg/topology's reload drain step) that need to know when an edge
// has emptied without stealing events from the component actually
// consuming it.
func (r *Receiver) Len() int { return len(r.ch) }

// Close is a no-op on the receiver side; the sender owns shutdown.
func (r *Receiver) Close() error { return nil }
