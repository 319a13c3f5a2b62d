package pipeline

import (
	"sync"
	"time"

	"github.com/basinrelay/flowgate/pkg/event"
	"github.com/basinrelay/flowgate/pkg/finalize"
	"github.com/basinrelay/flowgate/pkg/log"
)

// BatchLimits bounds how large a batch may grow before it closes.
// Zero means "no limit" for that dimension; at least one of MaxEvents,
// MaxBytes, or Timeout must be set or a batch could grow without
// bound and never flush.
type BatchLimits struct {
	MaxEvents int
	MaxBytes  int
	Timeout   time.Duration
}

// Batch is a closed, ready-to-encode group of events sharing one
// partition key, plus the aggregated finalizers needed to report the
// whole group's eventual delivery outcome.
type Batch struct {
	Partition  string
	Events     []event.Event
	Finalizers finalize.EventFinalizers
	Bytes      int
}

// SizeFunc measures the wire size an event will contribute to a batch,
// so MaxBytes reflects the encoded size rather than Event.ByteSize's
// in-memory estimate. Sinks that encode events independently of one
// another (newline-delimited JSON, for example) can pass something
// close to the true encoded size; sinks with shared framing overhead
// can still approximate it.
type SizeFunc func(event.Event) int

type partitionBuilder struct {
	key        string
	events     []event.Event
	finalizers finalize.EventFinalizers
	bytes      int
	timer      *time.Timer
}

// Batcher groups events into per-partition Batches, closing a batch
// when it hits BatchLimits or when its timeout elapses, whichever
// comes first. One Batcher serves every partition a sink produces;
// partitions are independent, so a quiet partition doesn't hold up a
// busy one and vice versa.
type Batcher struct {
	partitioner *Partitioner
	limits      BatchLimits
	sizeFn      SizeFunc

	mu      sync.Mutex
	pending map[string]*partitionBuilder

	in     chan event.Event
	out    chan Batch
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewBatcher constructs a Batcher. sizeFn is consulted for every event
// admitted; pass a constant function if MaxBytes is unused.
func NewBatcher(partitioner *Partitioner, limits BatchLimits, sizeFn SizeFunc) *Batcher {
	return &Batcher{
		partitioner: partitioner,
		limits:      limits,
		sizeFn:      sizeFn,
		pending:     make(map[string]*partitionBuilder),
		in:          make(chan event.Event),
		out:         make(chan Batch),
		stopCh:      make(chan struct{}),
	}
}

// In returns the channel events are submitted on.
func (b *Batcher) In() chan<- event.Event { return b.in }

// Out returns the channel of closed batches.
func (b *Batcher) Out() <-chan Batch { return b.out }

// Run drives the batcher's event loop until Stop is called. Call it in
// its own goroutine; it owns the timers for every open partition and
// must be the sole goroutine mutating batcher state.
func (b *Batcher) Run() {
	b.wg.Add(1)
	defer b.wg.Done()

	fired := make(chan string, 1)
	for {
		select {
		case e, ok := <-b.in:
			if !ok {
				b.flushAll()
				close(b.out)
				return
			}
			key, err := b.partitioner.Key(e)
			if err != nil {
				e.Metadata().Finalizers.UpdateStatus(finalize.Rejected)
				log.WithStage("batch").Warn().Err(err).Msg("dropping event with unresolvable partition key")
				continue
			}
			b.admit(key, e, fired)

		case key := <-fired:
			b.mu.Lock()
			pb, ok := b.pending[key]
			if ok {
				delete(b.pending, key)
			}
			b.mu.Unlock()
			if ok {
				b.emit(pb)
			}

		case <-b.stopCh:
			b.flushAll()
			close(b.out)
			return
		}
	}
}

func (b *Batcher) admit(key string, e event.Event, fired chan<- string) {
	b.mu.Lock()
	pb, ok := b.pending[key]
	if !ok {
		pb = &partitionBuilder{key: key}
		if b.limits.Timeout > 0 {
			pb.timer = time.AfterFunc(b.limits.Timeout, func() {
				select {
				case fired <- key:
				case <-b.stopCh:
				}
			})
		}
		b.pending[key] = pb
	}

	size := 0
	if b.sizeFn != nil {
		size = b.sizeFn(e)
	}
	pb.events = append(pb.events, e)
	pb.finalizers = append(pb.finalizers, e.Metadata().Finalizers...)
	pb.bytes += size

	full := (b.limits.MaxEvents > 0 && len(pb.events) >= b.limits.MaxEvents) ||
		(b.limits.MaxBytes > 0 && pb.bytes >= b.limits.MaxBytes)
	if full {
		delete(b.pending, key)
	}
	b.mu.Unlock()

	if full {
		b.emit(pb)
	}
}

// emit delivers pb to Out, bailing out early if Stop is concurrently
// requested so a slow or gone consumer can't wedge the event loop.
// Not used during flushAll: by the time flushAll runs, stopCh is
// already closed, so this select would pick it nondeterministically
// and could silently drop the final batches instead of delivering
// them.
func (b *Batcher) emit(pb *partitionBuilder) {
	if pb.timer != nil {
		pb.timer.Stop()
	}
	if len(pb.events) == 0 {
		return
	}
	batch := Batch{Partition: pb.key, Events: pb.events, Finalizers: pb.finalizers, Bytes: pb.bytes}
	select {
	case b.out <- batch:
	case <-b.stopCh:
	}
}

// flushAll delivers every open partition unconditionally, blocking on
// Out rather than racing stopCh. It only runs on the two paths that are
// about to close Out for good (In closed, or Stop called), and the
// caller is expected to keep draining Out until it closes.
func (b *Batcher) flushAll() {
	b.mu.Lock()
	pending := b.pending
	b.pending = make(map[string]*partitionBuilder)
	b.mu.Unlock()
	for _, pb := range pending {
		if pb.timer != nil {
			pb.timer.Stop()
		}
		if len(pb.events) == 0 {
			continue
		}
		b.out <- Batch{Partition: pb.key, Events: pb.events, Finalizers: pb.finalizers, Bytes: pb.bytes}
	}
}

// Stop closes the Batcher, flushing every open partition's partial
// batch to Out before Out is closed, then waits for Run to return.
func (b *Batcher) Stop() {
	close(b.stopCh)
	b.wg.Wait()
}
