// Package cache holds encoded readback snapshots so that many clients polling
// the same tick share one encoding.
package cache

import (
	"fmt"
	"time"
)

// Cache stores serialized snapshots with a TTL.
type Cache interface {
	// Get returns the value and true if present and not expired.
	Get(key string) ([]byte, bool)
	// Set stores value under key. A zero ttl uses the cache default.
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
	Clear()
	Stats() Stats
}

// Stats represents cache statistics.
type Stats struct {
	Hits      uint64
	Misses    uint64
	KeysAdded uint64
	Evictions uint64
	Size      int64 // approximate bytes held
}

// SnapshotKey names one encoding of one snapshot generation.
func SnapshotKey(kind string, generation uint64, encoding string) string {
	return fmt.Sprintf("%s:%d:%s", kind, generation, encoding)
}
