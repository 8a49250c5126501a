package btree

import (
	"iter"
)

type boundKind uint8

const (
	unbounded boundKind = iota
	inclusive
	exclusive
)

// Bound is one end of a range scan.
type Bound[K any] struct {
	key  K
	kind boundKind
}

func Unbounded[K any]() Bound[K]      { return Bound[K]{} }
func Inclusive[K any](key K) Bound[K] { return Bound[K]{key: key, kind: inclusive} }
func Exclusive[K any](key K) Bound[K] { return Bound[K]{key: key, kind: exclusive} }

func (b Bound[K]) IsUnbounded() bool { return b.kind == unbounded }
func (b Bound[K]) IsInclusive() bool { return b.kind == inclusive }

// Key returns the bound's key; ok is false for an unbounded end.
func (b Bound[K]) Key() (key K, ok bool) {
	return b.key, b.kind != unbounded
}

func (t *Tree[K, V]) aboveLow(low Bound[K], key K) bool {
	switch low.kind {
	case inclusive:
		return t.cmp(key, low.key) >= 0
	case exclusive:
		return t.cmp(key, low.key) > 0
	}
	return true
}

func (t *Tree[K, V]) belowHigh(high Bound[K], key K) bool {
	switch high.kind {
	case inclusive:
		return t.cmp(key, high.key) <= 0
	case exclusive:
		return t.cmp(key, high.key) < 0
	}
	return true
}

// Range yields every key/value pair with low <= key <= high (bounds as
// given) in ascending key order. The sequence is lazy and can be ranged
// over again; each pass starts from the root. The tree must not be
// modified while a pass is running.
func (t *Tree[K, V]) Range(low, high Bound[K]) iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		n := t.root
		for !n.leaf {
			if low.kind == unbounded {
				n = n.children[0]
			} else {
				n = n.children[t.childIndex(n, low.key)]
			}
		}

		i := 0
		if low.kind != unbounded {
			i, _ = t.find(n, low.key)
		}

		for ; n != nil; n, i = n.next, 0 {
			for ; i < len(n.keys); i++ {
				key := n.keys[i]
				if !t.aboveLow(low, key) {
					continue
				}
				if !t.belowHigh(high, key) {
					return
				}
				for _, v := range n.vals[i] {
					if !yield(key, v) {
						return
					}
				}
			}
		}
	}
}

// All yields every pair in key order.
func (t *Tree[K, V]) All() iter.Seq2[K, V] {
	return t.Range(Unbounded[K](), Unbounded[K]())
}
