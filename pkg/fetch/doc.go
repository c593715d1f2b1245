// Package fetch provides retrying execution of upstream operations with
// per-attempt timeouts and jittered exponential backoff.
//
// An operation is retried only when its failure is transient: a transport
// error, a per-attempt timeout, or an HTTP status on the configured
// allow-list. Errors that expose an HTTP status outside the allow-list
// fail immediately, as does cancellation of the caller's context.
//
// When every attempt fails the caller receives a NetworkError that wraps
// the last underlying error and records how many attempts were made, so
// callers can distinguish upstream exhaustion from their own mistakes.
package fetch
