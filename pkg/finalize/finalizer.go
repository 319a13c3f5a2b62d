package finalize

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/basinrelay/flowgate/pkg/log"
)

// BatchNotifier holds the shared state behind every Finalizer cloned
// from it. It starts with one outstanding reference (the one returned
// by NewBatchNotifier); every AddFinalizer/Clone adds another. When the
// last reference reports its Status, the joined result is sent once on
// the channel returned by NewBatchNotifier.
type BatchNotifier struct {
	pending int64 // atomic
	mu      sync.Mutex
	status  Status
	done    chan Status
	once    sync.Once
}

// NewBatchNotifier creates a notifier with one outstanding reference and
// the receive side the originating source should hold onto. Callers
// must Release the initial reference (see Release) or the channel will
// never receive a value; a notifier released with no Finalizers added
// reports Delivered at once.
func NewBatchNotifier() (*BatchNotifier, <-chan Status) {
	bn := &BatchNotifier{
		pending: 1,
		done:    make(chan Status, 1),
	}
	return bn, bn.done
}

// Release drops the initial reference held by the creator of the
// notifier. Call this once all of the batch's Finalizers have been
// attached to events so the notifier isn't waiting on a reference that
// will never report a status.
func (bn *BatchNotifier) Release() {
	bn.decrement(Delivered)
}

func (bn *BatchNotifier) join(status Status) {
	bn.mu.Lock()
	bn.status = bn.status.Join(status)
	bn.mu.Unlock()
}

func (bn *BatchNotifier) decrement(status Status) {
	bn.join(status)
	if atomic.AddInt64(&bn.pending, -1) == 0 {
		bn.once.Do(func() {
			bn.mu.Lock()
			final := bn.status
			bn.mu.Unlock()
			bn.done <- final
			close(bn.done)
		})
	}
}

// Finalizer is a single outstanding reference against a BatchNotifier.
// Exactly one terminal call — Update, Drop, or the implicit-drop
// fallback below — must happen per Finalizer.
type Finalizer struct {
	notifier *BatchNotifier
	reported int32 // atomic, guards against double-report
	fin      *finalizerGuard
}

// finalizerGuard exists solely so runtime.SetFinalizer can be attached
// to something that isn't the Finalizer itself (attaching it to f would
// keep f, and therefore the guard, reachable forever once f escapes to
// a caller that holds a pointer to it after reporting).
type finalizerGuard struct {
	f *Finalizer
}

// AddFinalizer creates a new Finalizer against bn. Call this once per
// event a batch notifier should track.
func AddFinalizer(bn *BatchNotifier) *Finalizer {
	atomic.AddInt64(&bn.pending, 1)
	f := &Finalizer{notifier: bn}
	g := &finalizerGuard{f: f}
	f.fin = g
	runtime.SetFinalizer(g, func(g *finalizerGuard) {
		// The Finalizer was garbage collected without an explicit
		// Update or Drop call: per spec this is an implicit drop,
		// which must be treated as Errored, never Delivered. A public
		// constructor that defaulted to Delivered would make "I forgot
		// to finalize this event" indistinguishable from "this event
		// was delivered," so this path exists as a last-resort net,
		// not the primary mechanism — callers should always call
		// Update or Drop explicitly.
		if atomic.CompareAndSwapInt32(&g.f.reported, 0, 1) {
			log.Error("event finalizer garbage collected without explicit status; treating as errored")
			g.f.notifier.decrement(Errored)
		}
	})
	return f
}

// Update reports status for this Finalizer's event. It is safe to call
// at most once; subsequent calls are no-ops.
func (f *Finalizer) Update(status Status) {
	if !atomic.CompareAndSwapInt32(&f.reported, 0, 1) {
		return
	}
	runtime.SetFinalizer(f.fin, nil)
	f.notifier.decrement(status)
}

// Drop marks this Finalizer's event as explicitly, intentionally
// discarded (e.g. an operator-configured sampling rule, or a
// DropNewest buffer policy). Per spec this resolves to Delivered: the
// operator chose to drop it, so the source should advance its
// checkpoint rather than retry.
func (f *Finalizer) Drop() {
	f.Update(Delivered)
}
