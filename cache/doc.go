// Package cache memoizes model responses and tool outputs with TTL-bound
// entries, tag-based grouping, and two eviction tiers: an in-memory map
// evicted by access count and an optional on-disk tier evicted by file age.
package cache
