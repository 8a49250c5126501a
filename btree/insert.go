package btree

import (
	"slices"
)

// Insert adds v under key. On a unique tree a key that already holds a
// different value fails with ErrDuplicateKey and leaves the tree unchanged.
// Re-inserting an existing pair is a no-op.
func (t *Tree[K, V]) Insert(key K, v V) error {
	promoted, sibling, err := t.insert(t.root, key, v)
	if err != nil {
		return err
	}

	if sibling != nil {
		t.root = &node[K, V]{
			keys:     []K{promoted},
			children: []*node[K, V]{t.root, sibling},
		}
	}

	return nil
}

func (t *Tree[K, V]) insert(n *node[K, V], key K, v V) (K, *node[K, V], error) {
	var zero K

	if n.leaf {
		i, found := t.find(n, key)
		if found {
			if slices.Contains(n.vals[i], v) {
				return zero, nil, nil
			}
			if t.unique {
				return zero, nil, ErrDuplicateKey
			}
			n.vals[i] = append(n.vals[i], v)
			t.count++
			return zero, nil, nil
		}

		n.keys = slices.Insert(n.keys, i, key)
		n.vals = slices.Insert(n.vals, i, []V{v})
		t.keys++
		t.count++

		if len(n.keys) > t.maxKeys() {
			promoted, sibling := t.splitLeaf(n)
			return promoted, sibling, nil
		}
		return zero, nil, nil
	}

	i := t.childIndex(n, key)
	promoted, sibling, err := t.insert(n.children[i], key, v)
	if err != nil || sibling == nil {
		return zero, nil, err
	}

	n.keys = slices.Insert(n.keys, i, promoted)
	n.children = slices.Insert(n.children, i+1, sibling)

	if len(n.keys) > t.maxKeys() {
		promoted, sibling := t.splitInternal(n)
		return promoted, sibling, nil
	}
	return zero, nil, nil
}

// splitLeaf moves the upper half of n into a new right sibling. The
// separator is the last key kept on the left.
func (t *Tree[K, V]) splitLeaf(n *node[K, V]) (K, *node[K, V]) {
	mid := len(n.keys) / 2

	sibling := &node[K, V]{
		leaf: true,
		keys: slices.Clone(n.keys[mid:]),
		vals: slices.Clone(n.vals[mid:]),
		next: n.next,
	}

	clear(n.vals[mid:])
	n.keys = n.keys[:mid]
	n.vals = n.vals[:mid]
	n.next = sibling

	return n.keys[mid-1], sibling
}

// splitInternal promotes the median separator; it stays in neither half.
func (t *Tree[K, V]) splitInternal(n *node[K, V]) (K, *node[K, V]) {
	mid := len(n.keys) / 2
	promoted := n.keys[mid]

	sibling := &node[K, V]{
		keys:     slices.Clone(n.keys[mid+1:]),
		children: slices.Clone(n.children[mid+1:]),
	}

	clear(n.children[mid+1:])
	n.keys = n.keys[:mid]
	n.children = n.children[:mid+1]

	return promoted, sibling
}
