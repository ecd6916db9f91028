package ports

import "context"

// KeyValueStore is the durable, namespaced key-value store behind the persistence gateway.
// Values are opaque JSON documents.
type KeyValueStore interface {
	// Get returns the stored value and true, or nil and false when the key is absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	// Close releases the underlying connection.
	Close() error
}
