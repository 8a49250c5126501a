package btree

import (
	"errors"
	"fmt"
	"sort"

	"github.com/nickyhof/MiniDB/core"
)

const (
	DefaultOrder = 32
	MinOrder     = 4
)

// ErrDuplicateKey is returned by Insert on a unique tree when the key
// already holds a value.
var ErrDuplicateKey = core.ErrDuplicateKey

var ErrInvalidOrder = errors.New("btree: order must be at least 4")

type node[K any, V comparable] struct {
	leaf     bool
	keys     []K
	vals     [][]V
	children []*node[K, V]
	next     *node[K, V]
}

// Tree is an in-memory B+tree mapping each key to a set of values. Keys
// live in the leaves, which are linked left to right for range scans.
// Internal separators are inclusive on the left: a key equal to keys[i]
// lives under children[i].
type Tree[K any, V comparable] struct {
	root   *node[K, V]
	cmp    func(a, b K) int
	order  int
	unique bool
	keys   int
	count  int
}

func New[K any, V comparable](order int, cmp func(a, b K) int, unique bool) (*Tree[K, V], error) {
	if order < MinOrder {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidOrder, order)
	}
	return &Tree[K, V]{
		root:   &node[K, V]{leaf: true},
		cmp:    cmp,
		order:  order,
		unique: unique,
	}, nil
}

func (t *Tree[K, V]) maxKeys() int { return t.order - 1 }
func (t *Tree[K, V]) minKeys() int { return t.maxKeys() / 2 }

func (t *Tree[K, V]) Order() int   { return t.order }
func (t *Tree[K, V]) Unique() bool { return t.unique }

// Len returns the number of distinct keys.
func (t *Tree[K, V]) Len() int { return t.keys }

// Count returns the number of key/value pairs.
func (t *Tree[K, V]) Count() int { return t.count }

func (t *Tree[K, V]) Height() int {
	h := 1
	for n := t.root; !n.leaf; n = n.children[0] {
		h++
	}
	return h
}

func (t *Tree[K, V]) Clear() {
	t.root = &node[K, V]{leaf: true}
	t.keys = 0
	t.count = 0
}

// childIndex picks the subtree for key: the first separator >= key.
func (t *Tree[K, V]) childIndex(n *node[K, V], key K) int {
	return sort.Search(len(n.keys), func(i int) bool {
		return t.cmp(key, n.keys[i]) <= 0
	})
}

// find returns the position of the first leaf key >= key and whether it
// is an exact match.
func (t *Tree[K, V]) find(n *node[K, V], key K) (int, bool) {
	i := sort.Search(len(n.keys), func(i int) bool {
		return t.cmp(n.keys[i], key) >= 0
	})
	return i, i < len(n.keys) && t.cmp(n.keys[i], key) == 0
}

func (t *Tree[K, V]) leafFor(key K) *node[K, V] {
	n := t.root
	for !n.leaf {
		n = n.children[t.childIndex(n, key)]
	}
	return n
}

// Search returns the values stored under key, or nil.
func (t *Tree[K, V]) Search(key K) []V {
	n := t.leafFor(key)
	i, ok := t.find(n, key)
	if !ok {
		return nil
	}
	out := make([]V, len(n.vals[i]))
	copy(out, n.vals[i])
	return out
}

func (t *Tree[K, V]) Contains(key K) bool {
	_, ok := t.find(t.leafFor(key), key)
	return ok
}

func (t *Tree[K, V]) Min() (K, bool) {
	n := t.root
	for !n.leaf {
		n = n.children[0]
	}
	if len(n.keys) == 0 {
		var zero K
		return zero, false
	}
	return n.keys[0], true
}

func (t *Tree[K, V]) Max() (K, bool) {
	n := t.root
	for !n.leaf {
		n = n.children[len(n.children)-1]
	}
	if len(n.keys) == 0 {
		var zero K
		return zero, false
	}
	return n.keys[len(n.keys)-1], true
}
