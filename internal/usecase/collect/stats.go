package collect

import "time"

// CycleStats summarizes one collection cycle. A cycle that completes
// without error places every collected item in exactly one bucket:
// Collected == Published + RejectedQuality + RejectedDedup.
type CycleStats struct {
	// CollectionID identifies the cycle; it prefixes every correlation id
	// the cycle produces.
	CollectionID string

	// CollectionBlob is the path of the cycle's collection blob in the
	// collected-content container. The blob exists only once the cycle
	// has published at least one item.
	CollectionBlob string

	Sources         int
	Collected       int64
	Published       int64
	RejectedQuality int64
	RejectedDedup   int64

	// Enhanced counts items whose body was upgraded by a full-page fetch.
	Enhanced int64

	Duration time.Duration
}

// accounted reports whether every collected item was dispositioned.
func (s *CycleStats) accounted() bool {
	return s.Collected == s.Published+s.RejectedQuality+s.RejectedDedup
}
