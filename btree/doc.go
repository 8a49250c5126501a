// Package btree implements the in-memory B+tree behind MiniDB indexes.
//
// A Tree maps ordered keys to sets of values (row locators). Unique trees
// reject a second value for an existing key with ErrDuplicateKey.
//
//	tree, _ := btree.New[core.Value, core.RowID](btree.DefaultOrder, core.KeyCompare, false)
//	tree.Insert(core.Int(30), 1)
//	ids := tree.Search(core.Int(30))
//
//	for key, id := range tree.Range(btree.Inclusive(core.Int(18)), btree.Unbounded[core.Value]()) {
//	    // ascending keys >= 18
//	}
package btree
