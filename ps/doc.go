// Package ps persists MiniDB table snapshots.
//
// A snapshot is the JSON form of one table: schema, index definitions and
// live rows (see Snapshot). Stores implement SnapshotStore and always
// replace the whole set of snapshots in one step.
//
// # Git Persistence
//
// The default store keeps snapshots in a git repository, one commit per
// save, using go-git plumbing directly:
//
//	persistence, err := ps.NewMemoryPersistence()
//	persistence, err := ps.NewFilePersistence("/path/to/data", nil)
//
//	txn, err := persistence.WriteSnapshots(ctx, snapshots, identity)
//	history := persistence.History(10)
//	old := persistence.AsOf(history[1])   // read-only view of an older save
//
// # URL Stores
//
// URLStore writes the same snapshots to a directory or an S3 prefix and
// reads them back from either, or from plain HTTP:
//
//	store, err := ps.NewURLStore(ctx, "s3://bucket/backups", &ps.S3Config{Region: "eu-west-1"})
package ps
