package note

import "context"

// Store abstracts note persistence.
type Store interface {
	// Save inserts the note and fills in its ID, plus CreatedAt when unset.
	Save(ctx context.Context, n *Note) error
	Get(ctx context.Context, id int64) (*Note, error)
	List(ctx context.Context, opts ListOptions) ([]*Note, error)
	Stats(ctx context.Context, opts ListOptions) (Stats, error)
	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error
	Close() error
}
