package topology

import (
	"context"
	"sync"
	"time"

	"github.com/basinrelay/flowgate/pkg/buffer"
	"github.com/basinrelay/flowgate/pkg/event"
)

// pollInterval bounds how long mergeReceiver waits on one upstream
// before checking the next, so a quiet source can't block a busy one
// from being noticed within a bounded time.
const pollInterval = 50 * time.Millisecond

// fanoutSender broadcasts a Send to every underlying Sender, for a
// node with more than one outgoing edge. It returns the first error
// encountered but still attempts every sender, so one slow downstream
// edge doesn't prevent the others from receiving the event.
type fanoutSender struct {
	senders []buffer.Sender
}

func newFanoutSender(senders []buffer.Sender) buffer.Sender {
	if len(senders) == 1 {
		return senders[0]
	}
	return &fanoutSender{senders: senders}
}

func (f *fanoutSender) Send(ctx context.Context, e event.Event) error {
	var firstErr error
	for i, s := range f.senders {
		ev := e
		if i > 0 {
			ev = e.Clone()
		}
		if err := s.Send(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f *fanoutSender) Close() error {
	var firstErr error
	for _, s := range f.senders {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// pausableSender gates Send behind a pause flag, so Reload can stop
// new writes into an edge whose destination is about to be replaced
// without tearing the edge down first (draining still needs somewhere
// for in-flight sends to land). Resume reopens the gate; an edge is
// never paused at construction, only by an in-progress Reload.
type pausableSender struct {
	inner  buffer.Sender
	mu     sync.Mutex
	gate   chan struct{} // nil while open; non-nil and unclosed while paused
}

func newPausableSender(inner buffer.Sender) *pausableSender {
	return &pausableSender{inner: inner}
}

func (p *pausableSender) Send(ctx context.Context, e event.Event) error {
	p.mu.Lock()
	gate := p.gate
	p.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.inner.Send(ctx, e)
}

func (p *pausableSender) Close() error { return p.inner.Close() }

// pause blocks subsequent Sends until resume is called.
func (p *pausableSender) pause() {
	p.mu.Lock()
	if p.gate == nil {
		p.gate = make(chan struct{})
	}
	p.mu.Unlock()
}

func (p *pausableSender) resume() {
	p.mu.Lock()
	if p.gate != nil {
		close(p.gate)
		p.gate = nil
	}
	p.mu.Unlock()
}

// mergeReceiver fans multiple upstream Receivers into the single
// Receiver a node's BuildFunc expects, for a node with more than one
// incoming edge. It polls every source in rotating priority order so
// no single busy upstream can starve the others, the same discipline
// pkg/buffer/overflow's Receiver applies to a two-way choice.
type mergeReceiver struct {
	mu      sync.Mutex
	sources []buffer.Receiver
	next    int
}

func newMergeReceiver(sources []buffer.Receiver) buffer.Receiver {
	if len(sources) == 1 {
		return sources[0]
	}
	return &mergeReceiver{sources: sources}
}

func (m *mergeReceiver) Recv(ctx context.Context) (event.Event, bool) {
	for {
		m.mu.Lock()
		start := m.next
		m.next = (m.next + 1) % len(m.sources)
		order := m.sources
		m.mu.Unlock()

		for i := 0; i < len(order); i++ {
			idx := (start + i) % len(order)
			pollCtx, cancel := context.WithTimeout(ctx, pollInterval)
			e, ok := order[idx].Recv(pollCtx)
			cancel()
			if ok {
				return e, true
			}
			if ctx.Err() != nil {
				return event.Event{}, false
			}
		}
	}
}

func (m *mergeReceiver) Close() error {
	var firstErr error
	for _, s := range m.sources {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
