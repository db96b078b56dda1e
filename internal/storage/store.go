// Package storage persists the per-author last-seen artwork id used for
// new-artwork change detection. It is deliberately a single table; this is
// not a cache or a general store.
package storage

import (
	"context"
	"errors"
)

var ErrDisabled = errors.New("storage disabled")

// Store is the persistence API used by the watch service.
type Store interface {
	// LastSeen returns the recorded newest artwork id for an author.
	// ok is false when the author has never been recorded.
	LastSeen(ctx context.Context, authorID int64) (id int64, ok bool, err error)

	// SetLastSeen records a newer artwork id for an author. The id only
	// ever moves forward: writes with an id not greater than the stored
	// one are silent no-ops.
	SetLastSeen(ctx context.Context, authorID, illustID int64) error

	Close() error
}
