package finalize

// EventFinalizers is the list of Finalizer references carried by a
// single event's metadata. Most events carry zero or one; an event
// produced by fan-out (one source event split into several) carries a
// clone of the original list so each resulting event independently
// gates the originating batch.
type EventFinalizers []*Finalizer

// Add appends f, attaching it to this event.
func (ef *EventFinalizers) Add(f *Finalizer) {
	if f == nil {
		return
	}
	*ef = append(*ef, f)
}

// Clone produces an independent EventFinalizers list that references
// the same underlying BatchNotifiers, incrementing each one's pending
// count by one extra reference. Use this whenever a transform splits
// one event into several — every split event needs its own clone so
// the original batch isn't considered done until all of them resolve.
func (ef EventFinalizers) Clone() EventFinalizers {
	if len(ef) == 0 {
		return nil
	}
	out := make(EventFinalizers, len(ef))
	for i, f := range ef {
		out[i] = AddFinalizer(f.notifier)
	}
	return out
}

// UpdateStatus reports status to every Finalizer in the list and
// empties it, so a second call (or a later implicit drop of the event)
// is a safe no-op rather than a double report.
func (ef *EventFinalizers) UpdateStatus(status Status) {
	for _, f := range *ef {
		f.Update(status)
	}
	*ef = nil
}

// Drop is UpdateStatus(Delivered); see Finalizer.Drop for rationale.
func (ef *EventFinalizers) Drop() {
	ef.UpdateStatus(Delivered)
}

// Len reports how many finalizers remain attached.
func (ef EventFinalizers) Len() int {
	return len(ef)
}
