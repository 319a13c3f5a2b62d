// Package perror defines the error taxonomy tags (stage, type) and a
// Recorder that counts each surfaced error on
// metrics.ComponentErrorsTotal and logs it at most once per cause per
// window. Callers opt in by constructing an Error and passing it to a
// Recorder; pkg/pipeline's Batcher and Dispatcher do not, and log
// through pkg/log directly.
package perror
