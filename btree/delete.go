package btree

import (
	"slices"
)

// Delete removes v from the set stored under key, dropping the key once
// its set is empty. It reports whether anything was removed.
func (t *Tree[K, V]) Delete(key K, v V) bool {
	if !t.delete(t.root, key, v) {
		return false
	}

	if !t.root.leaf && len(t.root.keys) == 0 {
		t.root = t.root.children[0]
	}

	return true
}

func (t *Tree[K, V]) delete(n *node[K, V], key K, v V) bool {
	if n.leaf {
		i, found := t.find(n, key)
		if !found {
			return false
		}
		j := slices.Index(n.vals[i], v)
		if j < 0 {
			return false
		}

		n.vals[i] = slices.Delete(n.vals[i], j, j+1)
		t.count--
		if len(n.vals[i]) == 0 {
			n.keys = slices.Delete(n.keys, i, i+1)
			n.vals = slices.Delete(n.vals, i, i+1)
			t.keys--
		}
		return true
	}

	i := t.childIndex(n, key)
	child := n.children[i]
	if !t.delete(child, key, v) {
		return false
	}

	if len(child.keys) < t.minKeys() {
		t.fixUnderflow(n, i)
	}

	return true
}

// fixUnderflow restores occupancy of parent.children[i]: borrow from the
// left sibling, then the right, otherwise merge with one of them.
func (t *Tree[K, V]) fixUnderflow(parent *node[K, V], i int) {
	if i > 0 && len(parent.children[i-1].keys) > t.minKeys() {
		t.borrowFromLeft(parent, i)
		return
	}

	if i < len(parent.children)-1 && len(parent.children[i+1].keys) > t.minKeys() {
		t.borrowFromRight(parent, i)
		return
	}

	if i > 0 {
		t.merge(parent, i-1)
	} else {
		t.merge(parent, i)
	}
}

func (t *Tree[K, V]) borrowFromLeft(parent *node[K, V], i int) {
	child := parent.children[i]
	left := parent.children[i-1]
	last := len(left.keys) - 1

	if child.leaf {
		child.keys = slices.Insert(child.keys, 0, left.keys[last])
		child.vals = slices.Insert(child.vals, 0, left.vals[last])
		left.keys = slices.Delete(left.keys, last, last+1)
		left.vals = slices.Delete(left.vals, last, last+1)
		parent.keys[i-1] = left.keys[len(left.keys)-1]
		return
	}

	child.keys = slices.Insert(child.keys, 0, parent.keys[i-1])
	child.children = slices.Insert(child.children, 0, left.children[last+1])
	parent.keys[i-1] = left.keys[last]
	left.keys = slices.Delete(left.keys, last, last+1)
	left.children = slices.Delete(left.children, last+1, last+2)
}

func (t *Tree[K, V]) borrowFromRight(parent *node[K, V], i int) {
	child := parent.children[i]
	right := parent.children[i+1]

	if child.leaf {
		child.keys = append(child.keys, right.keys[0])
		child.vals = append(child.vals, right.vals[0])
		right.keys = slices.Delete(right.keys, 0, 1)
		right.vals = slices.Delete(right.vals, 0, 1)
		parent.keys[i] = child.keys[len(child.keys)-1]
		return
	}

	child.keys = append(child.keys, parent.keys[i])
	child.children = append(child.children, right.children[0])
	parent.keys[i] = right.keys[0]
	right.keys = slices.Delete(right.keys, 0, 1)
	right.children = slices.Delete(right.children, 0, 1)
}

// merge folds parent.children[i+1] into parent.children[i].
func (t *Tree[K, V]) merge(parent *node[K, V], i int) {
	left := parent.children[i]
	right := parent.children[i+1]

	if left.leaf {
		left.keys = append(left.keys, right.keys...)
		left.vals = append(left.vals, right.vals...)
		left.next = right.next
	} else {
		left.keys = append(left.keys, parent.keys[i])
		left.keys = append(left.keys, right.keys...)
		left.children = append(left.children, right.children...)
	}

	parent.keys = slices.Delete(parent.keys, i, i+1)
	parent.children = slices.Delete(parent.children, i+1, i+2)
}
