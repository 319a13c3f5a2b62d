/*
Package finalize propagates delivery status from sinks back to the
sources that produced the events a sink is acknowledging.

A Finalizer is a single reference into a shared BatchNotifier. When a
source emits a batch of events it creates one BatchNotifier and attaches
one Finalizer per event to that event's metadata. As each event is
dropped, rejected, or delivered, its Finalizer reports a Status; once
every Finalizer sharing a BatchNotifier has reported, the notifier joins
all reported statuses (worst-of: Errored > Rejected > Delivered) and
sends the result once on the channel the source is listening on.

Fan-out (a transform turning one event into many) clones the finalizer
list so that every resulting event must independently reach a terminal
status before the original notifier completes. Sinks that merge many
events into one batch join their statuses the same way, just without a
dedicated BatchNotifier per event — see Status.Join.
*/
package finalize
