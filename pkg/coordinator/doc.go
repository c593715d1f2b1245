// Package coordinator drives a batch lookup through the full governance
// pipeline: cache split, cost admission, rate admission, upstream fetch,
// and write-back.
//
// A batch is answered from the cache wherever possible. The residual miss
// subset is admitted or rejected as a whole: if the cost guard or the
// rate limiter says no, no part of it reaches the upstream, but the
// cached portion of the batch is still returned alongside the rejection.
//
// Identical miss subsets in flight at the same time are collapsed into a
// single upstream call. A rate charge taken for a fetch that then fails
// upstream is rolled back, so callers are only ever charged for work that
// produced an answer.
package coordinator
