package op

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/nickyhof/MiniDB/btree"
	"github.com/nickyhof/MiniDB/core"
	"github.com/nickyhof/MiniDB/ps"
)

var ErrIndexInUse = errors.New("index backs a table constraint")

// Table owns the rows of one schema and keeps its indexes in step with
// them. Rows live in an arena addressed by RowID; deleted slots stay
// empty, so ids are never reused and Scan follows insertion order.
type Table struct {
	schema  core.Table
	rows    []core.Row
	live    int
	indexes []*Index
	opts    options
	logger  *slog.Logger
}

// NewTable validates the schema and creates the implicit unique indexes:
// <table>_pkey for the primary key and <table>_<column>_key for every
// other UNIQUE column.
func NewTable(schema core.Table, opts ...Option) (*Table, error) {
	schema = schema.Clone()
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	t := &Table{
		schema: schema,
		opts:   o,
		logger: o.logger.With("table", schema.Name),
	}

	for _, col := range schema.Columns {
		if !col.Unique {
			continue
		}
		name := fmt.Sprintf("%s_%s_key", schema.Name, col.Name)
		if col.PrimaryKey {
			name = schema.Name + "_pkey"
		}
		if _, err := t.addIndex(name, col.Name, true, true); err != nil {
			return nil, err
		}
	}

	return t, nil
}

func (t *Table) Name() string { return t.schema.Name }

// Schema returns a copy of the table definition.
func (t *Table) Schema() core.Table { return t.schema.Clone() }

// Len returns the number of live rows.
func (t *Table) Len() int { return t.live }

func (t *Table) Get(id core.RowID) (core.Row, bool) {
	row := t.row(id)
	if row == nil {
		return nil, false
	}
	return row.Clone(), true
}

func (t *Table) row(id core.RowID) core.Row {
	if uint64(id) >= uint64(len(t.rows)) {
		return nil
	}
	return t.rows[id]
}

// validate checks a candidate row in declared column order and returns it
// with values coerced to the column types. self is excluded from
// uniqueness checks when updating.
func (t *Table) validate(row core.Row, self core.RowID, updating bool) (core.Row, error) {
	if len(row) != len(t.schema.Columns) {
		return nil, fmt.Errorf("%w: %s expects %d values, got %d",
			core.ErrTypeMismatch, t.schema.Name, len(t.schema.Columns), len(row))
	}

	out := make(core.Row, len(row))
	for i, col := range t.schema.Columns {
		v, err := core.Coerce(row[i], col.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		if v.IsNull() {
			if col.NotNull {
				return nil, &core.ConstraintError{Table: t.schema.Name, Column: col.Name, Err: core.ErrNotNull}
			}
			out[i] = v
			continue
		}

		for _, idx := range t.indexes {
			if idx.col != i || !idx.Unique {
				continue
			}
			for _, holder := range idx.Lookup(v) {
				if !updating || holder != self {
					return nil, &core.ConstraintError{Table: t.schema.Name, Column: col.Name, Err: core.ErrDuplicateKey}
				}
			}
		}
		out[i] = v
	}
	return out, nil
}

// Insert stores row and indexes it. Nothing changes on failure.
func (t *Table) Insert(row core.Row) (core.RowID, error) {
	row, err := t.validate(row, 0, false)
	if err != nil {
		return 0, err
	}

	id := core.RowID(len(t.rows))
	for i, idx := range t.indexes {
		if err := idx.insert(row[idx.col], id); err != nil {
			for _, done := range t.indexes[:i] {
				done.delete(row[done.col], id)
			}
			return 0, t.indexError(idx, err)
		}
	}

	t.rows = append(t.rows, row)
	t.live++
	return id, nil
}

// Update replaces the row at id. Only indexes whose column changed are
// touched. Nothing changes on failure.
func (t *Table) Update(id core.RowID, row core.Row) error {
	old := t.row(id)
	if old == nil {
		return fmt.Errorf("%w: %s row %d", core.ErrNotFound, t.schema.Name, id)
	}

	row, err := t.validate(row, id, true)
	if err != nil {
		return err
	}

	var moved []*Index
	for _, idx := range t.indexes {
		before, after := old[idx.col], row[idx.col]
		if before.Equal(after) {
			continue
		}
		idx.delete(before, id)
		if err := idx.insert(after, id); err != nil {
			idx.insert(before, id)
			for _, done := range moved {
				done.delete(row[done.col], id)
				done.insert(old[done.col], id)
			}
			return t.indexError(idx, err)
		}
		moved = append(moved, idx)
	}

	t.rows[id] = row
	return nil
}

func (t *Table) Delete(id core.RowID) error {
	old := t.row(id)
	if old == nil {
		return fmt.Errorf("%w: %s row %d", core.ErrNotFound, t.schema.Name, id)
	}

	for _, idx := range t.indexes {
		idx.delete(old[idx.col], id)
	}
	t.rows[id] = nil
	t.live--
	return nil
}

func (t *Table) indexError(idx *Index, err error) error {
	if errors.Is(err, core.ErrDuplicateKey) {
		return &core.ConstraintError{Table: t.schema.Name, Column: idx.Column, Err: core.ErrDuplicateKey}
	}
	return fmt.Errorf("index %s: %w", idx.Name, err)
}

// Scan yields every live row in RowID order. Each pass re-reads the arena.
func (t *Table) Scan() iter.Seq2[core.RowID, core.Row] {
	return func(yield func(core.RowID, core.Row) bool) {
		for i := 0; i < len(t.rows); i++ {
			if t.rows[i] == nil {
				continue
			}
			if !yield(core.RowID(i), t.rows[i]) {
				return
			}
		}
	}
}

// Lookup yields the rows whose indexed column equals key.
func (t *Table) Lookup(indexName string, key core.Value) (iter.Seq2[core.RowID, core.Row], error) {
	idx, err := t.Index(indexName)
	if err != nil {
		return nil, err
	}

	return func(yield func(core.RowID, core.Row) bool) {
		for _, id := range idx.Lookup(key) {
			if row := t.row(id); row != nil && !yield(id, row) {
				return
			}
		}
	}, nil
}

// Range yields rows whose indexed column lies between low and high, in
// key order.
func (t *Table) Range(indexName string, low, high btree.Bound[core.Value]) (iter.Seq2[core.RowID, core.Row], error) {
	idx, err := t.Index(indexName)
	if err != nil {
		return nil, err
	}

	return func(yield func(core.RowID, core.Row) bool) {
		for _, id := range idx.Range(low, high) {
			if row := t.row(id); row != nil && !yield(id, row) {
				return
			}
		}
	}, nil
}

func (t *Table) Index(name string) (*Index, error) {
	for _, idx := range t.indexes {
		if idx.Name == name {
			return idx, nil
		}
	}
	return nil, fmt.Errorf("%w: %s on %s", core.ErrUnknownIndex, name, t.schema.Name)
}

// Indexes returns the table's indexes in creation order.
func (t *Table) Indexes() []*Index {
	out := make([]*Index, len(t.indexes))
	copy(out, t.indexes)
	return out
}

// IndexOn returns the best index over column, preferring unique ones.
func (t *Table) IndexOn(column string) (*Index, bool) {
	var best *Index
	for _, idx := range t.indexes {
		if idx.Column != column {
			continue
		}
		if best == nil || (idx.Unique && !best.Unique) {
			best = idx
		}
	}
	return best, best != nil
}

// CreateIndex builds a new index with one scan. A unique build over
// duplicate values fails with a constraint violation and leaves nothing.
func (t *Table) CreateIndex(name, column string, unique bool) (*Index, error) {
	return t.addIndex(name, column, unique, false)
}

func (t *Table) addIndex(name, column string, unique, implicit bool) (*Index, error) {
	if _, err := t.Index(name); err == nil {
		return nil, fmt.Errorf("%w: index %s", core.ErrAlreadyExists, name)
	}
	col := t.schema.ColumnIndex(column)
	if col < 0 {
		return nil, fmt.Errorf("%w: %s.%s", core.ErrUnknownColumn, t.schema.Name, column)
	}

	idx, err := newIndex(t.schema.Name, name, column, col, unique, implicit, t.opts.order)
	if err != nil {
		return nil, err
	}

	for id, row := range t.Scan() {
		if err := idx.insert(row[col], id); err != nil {
			return nil, t.indexError(idx, err)
		}
	}

	t.indexes = append(t.indexes, idx)
	t.logger.Debug("index built", "index", name, "column", column, "unique", unique, "keys", idx.Len())
	return idx, nil
}

// DropIndex removes an explicit index. Constraint indexes stay.
func (t *Table) DropIndex(name string) error {
	for i, idx := range t.indexes {
		if idx.Name != name {
			continue
		}
		if idx.Implicit {
			return fmt.Errorf("%w: %s", ErrIndexInUse, name)
		}
		idx.clear()
		t.indexes = append(t.indexes[:i], t.indexes[i+1:]...)
		return nil
	}
	return fmt.Errorf("%w: %s on %s", core.ErrUnknownIndex, name, t.schema.Name)
}

// Snapshot captures schema, index definitions and live rows.
func (t *Table) Snapshot() *ps.Snapshot {
	s := &ps.Snapshot{
		Table: t.schema.Clone(),
		Rows:  make([]core.Row, 0, t.live),
	}
	for _, idx := range t.indexes {
		s.Indexes = append(s.Indexes, idx.Definition())
	}
	for _, row := range t.Scan() {
		s.Rows = append(s.Rows, row)
	}
	return s
}

func (t *Table) MarshalSnapshot() ([]byte, error) {
	return ps.EncodeSnapshot(t.Snapshot())
}

// Save writes the table snapshot to w. The snapshot is encoded fully
// before the first byte is written.
func (t *Table) Save(w io.Writer) error {
	data, err := t.MarshalSnapshot()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// LoadTable rebuilds a table from a snapshot written by Save. Rows get
// fresh contiguous ids and every index is rebuilt by replaying inserts.
func LoadTable(r io.Reader, opts ...Option) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrUnreadable, err)
	}
	return UnmarshalTable(data, opts...)
}

func UnmarshalTable(data []byte, opts ...Option) (*Table, error) {
	s, err := ps.DecodeSnapshot(data)
	if err != nil {
		return nil, err
	}

	t, err := NewTable(s.Table, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrUnreadable, err)
	}

	for _, def := range s.Indexes {
		if def.Implicit {
			continue
		}
		if _, err := t.CreateIndex(def.Name, def.Column, def.Unique); err != nil {
			return nil, fmt.Errorf("%w: index %s: %v", core.ErrUnreadable, def.Name, err)
		}
	}

	for i, row := range s.Rows {
		if _, err := t.Insert(row); err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", core.ErrUnreadable, i, err)
		}
	}

	t.logger.Debug("table loaded", "rows", t.live, "indexes", len(t.indexes))
	return t, nil
}
