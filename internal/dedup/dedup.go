// Package dedup remembers which alert fingerprints were already delivered.
package dedup

import "context"

// Store marks keys as seen for a TTL
type Store interface {
	// Seen marks key and reports whether it was already marked and unexpired
	Seen(ctx context.Context, key string) (bool, error)
	Close() error
}
