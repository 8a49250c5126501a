package ps

import (
	"context"
	"errors"

	"github.com/nickyhof/MiniDB/core"
)

var (
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrReadOnly         = errors.New("snapshot store is read only")
)

// SnapshotStore holds one encoded snapshot per table.
type SnapshotStore interface {
	// WriteSnapshots replaces the stored set with exactly the given
	// snapshots, keyed by table name.
	WriteSnapshots(ctx context.Context, snapshots map[string][]byte, identity core.Identity) (Transaction, error)
	ReadSnapshot(ctx context.Context, name string) ([]byte, error)
	// ListSnapshots returns the stored table names in ascending order.
	ListSnapshots(ctx context.Context) ([]string, error)
}

var (
	_ SnapshotStore = (*Persistence)(nil)
	_ SnapshotStore = (*commitView)(nil)
	_ SnapshotStore = (*URLStore)(nil)
)
