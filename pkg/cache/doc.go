// Package cache implements the layered translation cache: a bloom-filter
// pre-check, a bounded in-memory LRU tier (L1), and a larger persisted tier
// (L2) backed by a storage.KeyValue collaborator.
//
// # Lookup Path
//
//  1. Bloom filter: a negative answer means the key was never stored in
//     either tier, so the lookup returns a miss without probing L1/L2. This
//     is purely a cost optimization for the common negative case; false
//     positives just fall through to the tiers.
//  2. L1: bounded LRU. A hit moves the entry to most-recently-used position.
//     Expired entries found here are evicted lazily and treated as misses.
//  3. L2: persisted tier. A hit backfills L1 (write-through promotion).
//
// # Eviction Asymmetry
//
// L1 is a true LRU by read recency. L2 is pruned to its newest N entries by
// last-WRITE order: reads never refresh an L2 entry's position. This is a
// deliberately weaker policy that keeps L2 writes cheap; see Hierarchy.Store.
//
// # Failure Semantics
//
// L2 write failures are logged and swallowed. The bloom filter and L1 still
// reflect the stored value, so in-process lookups keep succeeding; only
// persistence degrades.
package cache
