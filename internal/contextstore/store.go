// Package contextstore provides the generic per-conversation document store
// backing pause state and conversation sync flags. Documents are keyed by
// normalized phone.
package contextstore

import (
	"context"
)

// Store is a generic JSON document store keyed by normalized phone.
type Store interface {
	// Get returns the document for key, or nil when no document exists.
	Get(ctx context.Context, key string) (map[string]any, error)

	// Set stores the document for key, replacing any existing one.
	Set(ctx context.Context, key string, doc map[string]any) error

	// Keys returns every key currently present in the store's namespace.
	Keys(ctx context.Context) ([]string, error)
}
