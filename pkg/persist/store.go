// Package persist makes the AI response caches durable across process
// restarts. A versioned JSON snapshot of all cache families is written
// to a key-value store, debounced so bursts of cache writes collapse
// into a single storage write. Durability is an optimization: every
// persistence failure is swallowed and logged, never surfaced to the
// operation that triggered it.
package persist

import "fmt"

// Fixed storage keys.
const (
	snapshotKey = "ai_response_cache"
	cooldownKey = "ai_cooldown_until"
)

// Store is the durable key-value backend the snapshot is written to.
type Store interface {
	// Get returns the value for key, or ok=false if absent.
	Get(key string) (value []byte, ok bool, err error)

	// Set writes value under key, overwriting any previous value.
	Set(key string, value []byte) error

	// Delete removes key if present.
	Delete(key string) error

	// Close releases backend resources.
	Close() error
}

// Open creates a Store for the configured backend: "file" (a directory
// of atomically written files) or "sqlite" (a single database file).
func Open(backend, path string) (Store, error) {
	switch backend {
	case "file", "":
		return NewFileStore(path)
	case "sqlite":
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q (supported: file, sqlite)", backend)
	}
}
