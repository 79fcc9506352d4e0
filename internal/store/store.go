// Package store defines the durable session store abstraction and its
// backends.
package store

import (
	"context"
	"errors"

	"github.com/parley-chat/parley/internal/chat"
)

// ErrNotFound is returned by Get when no session exists for the key.
var ErrNotFound = errors.New("session not found")

// Store persists full session snapshots keyed by session key. A Put is
// atomic from the caller's perspective: a concurrent or later Get observes
// either the previous snapshot or the new one, never a partial write.
//
// The session actor layer guarantees at most one in-flight write per key,
// so implementations need no cross-key coordination.
type Store interface {
	// Get retrieves the session stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (*chat.Session, error)

	// Put stores the full session snapshot under key, replacing any
	// previous snapshot.
	Put(ctx context.Context, key string, sess *chat.Session) error

	// Delete removes the session stored under key. Deleting an absent
	// key is not an error.
	Delete(ctx context.Context, key string) error
}
