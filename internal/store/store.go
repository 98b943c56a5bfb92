package store

import "context"

// DedupStore remembers which messages have already been handled so that a
// restart never triages the same message twice.
type DedupStore interface {
	// Seen reports whether id was previously marked.
	Seen(ctx context.Context, id string) (bool, error)

	// MarkSeen records id. It is idempotent and durable before returning.
	MarkSeen(ctx context.Context, id string) error

	// Count returns the number of recorded identifiers.
	Count(ctx context.Context) (int, error)

	Close() error
}
