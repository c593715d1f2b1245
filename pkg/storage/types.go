package storage

import "context"

// KeyValue defines the interface for the persisted key-value collaborator.
// Implementations must be safe for concurrent use.
//
// The engine never assumes a specific backing technology; anything that can
// store small opaque byte values behind string keys qualifies.
type KeyValue interface {
	// Get retrieves the value for a key. The second return value reports
	// whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value under a key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes a key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Keys returns all keys with the given prefix. An empty prefix returns
	// every key.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// BytesInUse returns the approximate number of bytes stored.
	BytesInUse(ctx context.Context) (int64, error)

	// Close releases any resources held by the store.
	Close() error
}

// QuotaExceededError is returned by Set when a store's byte quota would be
// exceeded by the write.
type QuotaExceededError struct {
	// Key is the key whose write was rejected.
	Key string

	// InUse is the current number of bytes stored.
	InUse int64

	// Quota is the configured byte quota.
	Quota int64
}

// Error implements the error interface.
func (e *QuotaExceededError) Error() string {
	return "storage quota exceeded for key " + e.Key
}
