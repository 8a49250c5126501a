package op

import (
	"iter"
	"strconv"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/nickyhof/MiniDB/btree"
	"github.com/nickyhof/MiniDB/core"
	"github.com/nickyhof/MiniDB/ps"
)

const (
	minFilterCapacity = 1024
	filterFalseRate   = 0.01
)

// Index maps the non-null values of one column to the rows holding them.
// A bloom filter in front of the tree answers most misses without a
// descent; deletes leave stale bits, which only cost a wasted lookup.
type Index struct {
	Name     string
	Table    string
	Column   string
	Unique   bool
	Implicit bool

	col       int
	tree      *btree.Tree[core.Value, core.RowID]
	filter    *bloom.BloomFilter
	filterCap uint
}

func newIndex(table, name, column string, col int, unique, implicit bool, order int) (*Index, error) {
	tree, err := btree.New[core.Value, core.RowID](order, core.KeyCompare, unique)
	if err != nil {
		return nil, err
	}
	return &Index{
		Name:      name,
		Table:     table,
		Column:    column,
		Unique:    unique,
		Implicit:  implicit,
		col:       col,
		tree:      tree,
		filter:    bloom.NewWithEstimates(minFilterCapacity, filterFalseRate),
		filterCap: minFilterCapacity,
	}, nil
}

// filterKey encodes v so that values equal under core.KeyCompare share a
// key. Numbers go through float64, matching mixed int/float comparison.
func filterKey(v core.Value) []byte {
	switch v.Kind() {
	case core.IntKind:
		i, _ := v.AsInt()
		return numericKey(float64(i))
	case core.FloatKind:
		f, _ := v.AsFloat()
		return numericKey(f)
	case core.TextKind:
		s, _ := v.AsText()
		return append([]byte{'t'}, s...)
	case core.BoolKind:
		b, _ := v.AsBool()
		return strconv.AppendBool([]byte{'b'}, b)
	}
	return []byte{0}
}

func numericKey(f float64) []byte {
	// -0 and 0 compare equal
	if f == 0 {
		f = 0
	}
	return strconv.AppendFloat([]byte{'n'}, f, 'g', -1, 64)
}

func (idx *Index) insert(v core.Value, id core.RowID) error {
	if v.IsNull() {
		return nil
	}
	if err := idx.tree.Insert(v, id); err != nil {
		return err
	}
	if uint(idx.tree.Len()) > idx.filterCap {
		idx.rebuildFilter()
	} else {
		idx.filter.Add(filterKey(v))
	}
	return nil
}

func (idx *Index) delete(v core.Value, id core.RowID) {
	if v.IsNull() {
		return
	}
	idx.tree.Delete(v, id)
}

// rebuildFilter resizes the filter for the current key count and drops
// stale bits.
func (idx *Index) rebuildFilter() {
	capacity := uint(minFilterCapacity)
	for capacity < uint(idx.tree.Len())*2 {
		capacity *= 2
	}
	idx.filter = bloom.NewWithEstimates(capacity, filterFalseRate)
	idx.filterCap = capacity
	for key := range idx.tree.All() {
		idx.filter.Add(filterKey(key))
	}
}

func (idx *Index) clear() {
	idx.tree.Clear()
	idx.filter.ClearAll()
}

// Lookup returns the rows holding v. Null is never indexed.
func (idx *Index) Lookup(v core.Value) []core.RowID {
	if v.IsNull() || !idx.filter.Test(filterKey(v)) {
		return nil
	}
	return idx.tree.Search(v)
}

// MightContain reports whether v may be indexed; false is definitive.
func (idx *Index) MightContain(v core.Value) bool {
	return !v.IsNull() && idx.filter.Test(filterKey(v))
}

func (idx *Index) Range(low, high btree.Bound[core.Value]) iter.Seq2[core.Value, core.RowID] {
	return idx.tree.Range(low, high)
}

// Len is the number of distinct indexed values.
func (idx *Index) Len() int { return idx.tree.Len() }

func (idx *Index) Height() int { return idx.tree.Height() }

func (idx *Index) Definition() ps.IndexDef {
	return ps.IndexDef{
		Name:     idx.Name,
		Column:   idx.Column,
		Unique:   idx.Unique,
		Implicit: idx.Implicit,
	}
}
