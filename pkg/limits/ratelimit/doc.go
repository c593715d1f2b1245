// Package ratelimit provides sliding window rate limiting for upstream
// calls, keyed by resource and caller identifier.
//
// Each (resource, identifier) pair keeps a timestamp history of recorded
// calls. A check counts the timestamps inside each configured window and
// rejects when any window is at its ceiling. Windows are evaluated from
// the shortest to the longest so the reported violation is always the
// tightest one.
//
// Because admission and recording happen under one lock, a call that fails
// after being admitted must be compensated with Rollback, which removes
// the newest recorded timestamp. Histories are pruned lazily on every
// check and in bulk by Sweep, which is intended to run on a schedule.
package ratelimit
