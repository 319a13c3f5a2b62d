/*
Package overflow composes a primary BufferSender/Receiver pair with a
secondary one into a single Overflow edge: sends try the primary
non-blockingly and fall back to the secondary on failure, and receives
poll both sides fairly so neither is starved. An overflow.Sender is a
buffer.Sender, so a Sender's secondary may itself be another
overflow.Sender. The receive side does not nest: NewReceiver takes two
buffer.ChanReceivers and an overflow.Receiver is not one, so an
overflow.Receiver cannot be the secondary of another Receiver (and
pkg/topology rejects an overflow edge whose secondary is itself an
overflow edge).

Grounded on original_source lib/vector-buffers/src/topology/channel/
receiver.rs: "never fully drain one [side] before checking the other."
The Receiver below achieves this by checking both sides non-blockingly,
in alternating priority order, before ever blocking on either.
*/
package overflow

import (
	"context"
	"sync/atomic"

	"github.com/basinrelay/flowgate/pkg/buffer"
	"github.com/basinrelay/flowgate/pkg/event"
)

// Sender attempts a non-blocking send on primary, falling back to
// secondary.Send (which may itself block, drop, or overflow further)
// when primary is full.
type Sender struct {
	primary   buffer.NonBlockingSender
	secondary buffer.Sender
}

// NewSender builds an Overflow sender. primary must support TrySend
// (memory.Sender does); secondary is any buffer.Sender, including
// another overflow.Sender or a disk buffer's sender.
func NewSender(primary buffer.NonBlockingSender, secondary buffer.Sender) *Sender {
	return &Sender{primary: primary, secondary: secondary}
}

func (s *Sender) Send(ctx context.Context, e event.Event) error {
	if s.primary.TrySend(e) {
		return nil
	}
	return s.secondary.Send(ctx, e)
}

// Close closes the secondary edge. The primary's lifecycle is owned by
// whatever constructed it (typically the same topology component that
// built this Sender), since the primary is also the edge's normal,
// non-overflow delivery path and may outlive this wrapper.
func (s *Sender) Close() error {
	return s.secondary.Close()
}

// Receiver fairly interleaves delivery from a primary and a secondary
// buffer.ChanReceiver. It implements plain buffer.Receiver, not
// buffer.ChanReceiver itself — nesting Overflow receivers further would
// let an outer layer bypass this one's fairness guarantee by reading
// its channel directly, so that capability is intentionally not offered.
type Receiver struct {
	primary, secondary buffer.ChanReceiver
	toggle             uint32 // atomic; even values swap priority order
}

// NewReceiver pairs primary and secondary for fair polling.
func NewReceiver(primary, secondary buffer.ChanReceiver) *Receiver {
	return &Receiver{primary: primary, secondary: secondary}
}

func (r *Receiver) Recv(ctx context.Context) (event.Event, bool) {
	first, second := r.primary.Chan(), r.secondary.Chan()
	if atomic.AddUint32(&r.toggle, 1)%2 == 0 {
		first, second = second, first
	}

	// Non-blocking pass in alternating priority order: if both are
	// ready, whichever is checked first this cycle wins, so priority
	// itself alternates rather than staying fixed on one side.
	select {
	case e := <-first:
		return e, true
	default:
	}
	select {
	case e := <-second:
		return e, true
	default:
	}

	select {
	case e := <-first:
		return e, true
	case e := <-second:
		return e, true
	case <-ctx.Done():
		return event.Event{}, false
	}
}

func (r *Receiver) Close() error {
	if err := r.primary.Close(); err != nil {
		return err
	}
	return r.secondary.Close()
}
