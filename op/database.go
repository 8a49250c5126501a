package op

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/nickyhof/MiniDB/core"
	"github.com/nickyhof/MiniDB/ps"
	"golang.org/x/sync/errgroup"
)

// Database is the catalog: it owns every table by name. Index names are
// unique across the whole catalog.
type Database struct {
	tables map[string]*Table
	opts   []Option
	logger *slog.Logger
}

func NewDatabase(opts ...Option) *Database {
	return &Database{
		tables: make(map[string]*Table),
		opts:   opts,
		logger: buildOptions(opts).logger,
	}
}

func (db *Database) CreateTable(schema core.Table) (*Table, error) {
	if _, exists := db.tables[schema.Name]; exists {
		return nil, fmt.Errorf("%w: table %s", core.ErrAlreadyExists, schema.Name)
	}

	t, err := NewTable(schema, db.opts...)
	if err != nil {
		return nil, err
	}
	for _, idx := range t.indexes {
		if owner, _, found := db.FindIndex(idx.Name); found {
			return nil, fmt.Errorf("%w: index %s on %s", core.ErrAlreadyExists, idx.Name, owner.Name())
		}
	}

	db.tables[schema.Name] = t
	db.logger.Debug("table created", "table", schema.Name, "columns", len(schema.Columns))
	return t, nil
}

func (db *Database) Get(name string) (*Table, error) {
	t, ok := db.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownTable, name)
	}
	return t, nil
}

// Drop removes a table together with its indexes.
func (db *Database) Drop(name string) error {
	t, ok := db.tables[name]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrUnknownTable, name)
	}
	for _, idx := range t.indexes {
		idx.clear()
	}
	delete(db.tables, name)
	db.logger.Debug("table dropped", "table", name)
	return nil
}

// List returns the table names in ascending order.
func (db *Database) List() []string {
	names := make([]string, 0, len(db.tables))
	for name := range db.tables {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (db *Database) FindIndex(name string) (*Table, *Index, bool) {
	for _, t := range db.tables {
		if idx, err := t.Index(name); err == nil {
			return t, idx, true
		}
	}
	return nil, nil, false
}

func (db *Database) CreateIndex(table, name, column string, unique bool) (*Index, error) {
	t, err := db.Get(table)
	if err != nil {
		return nil, err
	}
	if owner, _, found := db.FindIndex(name); found {
		return nil, fmt.Errorf("%w: index %s on %s", core.ErrAlreadyExists, name, owner.Name())
	}
	return t.CreateIndex(name, column, unique)
}

func (db *Database) DropIndex(name string) error {
	t, _, found := db.FindIndex(name)
	if !found {
		return fmt.Errorf("%w: %s", core.ErrUnknownIndex, name)
	}
	return t.DropIndex(name)
}

// SaveAll encodes every table concurrently and hands the whole set to the
// store in one write.
func (db *Database) SaveAll(ctx context.Context, store ps.SnapshotStore, identity core.Identity) (ps.Transaction, error) {
	var (
		mu        sync.Mutex
		snapshots = make(map[string][]byte, len(db.tables))
	)

	g, gctx := errgroup.WithContext(ctx)
	for name, t := range db.tables {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := t.MarshalSnapshot()
			if err != nil {
				return err
			}
			mu.Lock()
			snapshots[name] = data
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ps.Transaction{}, err
	}

	txn, err := store.WriteSnapshots(ctx, snapshots, identity)
	if err != nil {
		return ps.Transaction{}, fmt.Errorf("failed to save catalog: %w", err)
	}
	db.logger.Debug("catalog saved", "tables", len(snapshots), "transaction", txn.Short())
	return txn, nil
}

// LoadAll replaces the catalog with the tables in store. Tables are read
// and rebuilt concurrently; on any failure the catalog is left as it was.
func (db *Database) LoadAll(ctx context.Context, store ps.SnapshotStore) error {
	names, err := store.ListSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}

	loaded := make([]*Table, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			data, err := store.ReadSnapshot(gctx, name)
			if err != nil {
				return fmt.Errorf("table %s: %w", name, err)
			}
			t, err := UnmarshalTable(data, db.opts...)
			if err != nil {
				return fmt.Errorf("table %s: %w", name, err)
			}
			if t.Name() != name {
				return fmt.Errorf("%w: snapshot %s holds table %s", core.ErrUnreadable, name, t.Name())
			}
			loaded[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	tables := make(map[string]*Table, len(loaded))
	seen := make(map[string]string)
	for _, t := range loaded {
		for _, idx := range t.indexes {
			if other, dup := seen[idx.Name]; dup {
				return fmt.Errorf("%w: index %s on both %s and %s", core.ErrUnreadable, idx.Name, other, t.Name())
			}
			seen[idx.Name] = t.Name()
		}
		tables[t.Name()] = t
	}

	db.tables = tables
	db.logger.Debug("catalog loaded", "tables", len(tables))
	return nil
}
