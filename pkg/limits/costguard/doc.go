// Package costguard enforces spend ceilings on upstream usage across
// fixed windows from one second up to one month.
//
// Every upstream call has a configured unit cost. The guard accumulates
// cost and call counts per window and rejects a request whose projected
// usage would cross any configured ceiling. Unlike rate limiting, a
// ceiling violation also trips a circuit breaker that rejects everything
// until it times out or the daily window rolls over.
//
// Usage survives restarts through snapshots persisted to a key-value
// store. A snapshot older than the configured maximum age is discarded on
// load rather than resurrecting stale spend.
package costguard
