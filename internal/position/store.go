// internal/position/store.go
package position

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Update and Remove for a key that was never
// created. Callers must treat it as a hard error, not a signal to create.
var ErrNotFound = errors.New("position: not found")

// Store is the durable record of positions. The backing document is read and
// rewritten wholesale on every mutation, so mutations must be externally
// serialized - the evaluator walks positions one at a time for exactly this
// reason.
type Store interface {
	// Create persists a new position. It is a no-op when the key already
	// exists, so a replayed acquisition never clobbers live ladder state.
	Create(ctx context.Context, pos *Position) error

	// Update applies mutate to the stored position under key and persists
	// the whole document. Returns ErrNotFound when the key is absent.
	Update(ctx context.Context, key Key, mutate func(*Position) error) error

	// ReadAll returns a snapshot of every position, in stable order.
	ReadAll(ctx context.Context) ([]*Position, error)

	// Remove deletes a position. Removal is always an explicit external
	// operation; nothing in the bot removes positions automatically.
	Remove(ctx context.Context, key Key) error

	// Close releases the backing resources.
	Close() error
}
