// Package maintenance runs the background upkeep of the lookup pipeline
// on cron schedules: sweeping expired cache entries, pruning aged rate
// limit histories, and flushing the cost guard's usage snapshot.
//
// One scheduler owns all tasks, so upkeep has a single lifecycle tied to
// the process context. Tasks are best-effort; a failing sweep is logged
// and retried at the next tick rather than stopping the scheduler.
package maintenance
