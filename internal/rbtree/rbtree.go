// Package rbtree implements a generic augmented red-black tree.
//
// It follows the textbook (Cormen et al., "Introduction to Algorithms",
// 3rd ed., ch. 13) red-black tree, parameterized over a key type, a value
// type, and an augmentation type recomputed bottom-up from a node's key,
// value, and the augmentation of its children after every structural
// change. This is the same sentinel-node, parent-pointer shape used by the
// retrieval pack's augmented interval tree, generalized so it can back both
// a tree keyed by virtual finish time (augmented by minimum start time) and
// a tree keyed by sector (trivially augmented), without duplicating the
// rotation and fixup logic for each.
package rbtree

type color bool

const (
	red   color = true
	black color = false
)

// Node is an element of a Tree. Augment holds a value derived from Key,
// Value, and the Augment of both children, recomputed by the owning Tree
// after every insert, delete, and rotation that could change it.
type Node[K, A, V any] struct {
	left, right, parent *Node[K, A, V]
	color                color

	Key     K
	Value   V
	Augment A
}

func (n *Node[K, A, V]) min(sentinel *Node[K, A, V]) *Node[K, A, V] {
	for n.left != sentinel {
		n = n.left
	}
	return n
}

func (n *Node[K, A, V]) max(sentinel *Node[K, A, V]) *Node[K, A, V] {
	for n.right != sentinel {
		n = n.right
	}
	return n
}

func (n *Node[K, A, V]) successor(sentinel *Node[K, A, V]) *Node[K, A, V] {
	if n.right != sentinel {
		return n.right.min(sentinel)
	}
	y := n.parent
	for y != sentinel && n == y.right {
		n = y
		y = y.parent
	}
	return y
}

func (n *Node[K, A, V]) predecessor(sentinel *Node[K, A, V]) *Node[K, A, V] {
	if n.left != sentinel {
		return n.left.max(sentinel)
	}
	y := n.parent
	for y != sentinel && n == y.left {
		n = y
		y = y.parent
	}
	return y
}

func (n *Node[K, A, V]) colorOf(sentinel *Node[K, A, V]) color {
	if n == sentinel {
		return black
	}
	return n.color
}

// Combine computes a node's Augment from its own key and value and the
// Augment of its left and right children. left/right are nil when the
// corresponding child is absent.
type Combine[K, A, V any] func(key K, value V, left, right *A) A

// Tree is a red-black tree keyed by K, storing values of type V, with each
// node carrying an Augment of type A maintained by Combine. A single
// sentinel node represents every nil leaf and the root's parent, as in the
// textbook implementation, so boundary checks never need a nil test.
type Tree[K, A, V any] struct {
	root     *Node[K, A, V]
	sentinel *Node[K, A, V]
	size     int
	less     func(a, b K) bool
	combine  Combine[K, A, V]
}

// New creates an empty tree ordered by less and augmented by combine.
func New[K, A, V any](less func(a, b K) bool, combine Combine[K, A, V]) *Tree[K, A, V] {
	s := &Node[K, A, V]{color: black}
	s.left, s.right, s.parent = s, s, s
	t := &Tree[K, A, V]{sentinel: s, less: less, combine: combine}
	t.root = s
	return t
}

// Len reports the number of nodes in the tree.
func (t *Tree[K, A, V]) Len() int { return t.size }

// Root returns the tree's root node, or nil if the tree is empty.
func (t *Tree[K, A, V]) Root() *Node[K, A, V] { return t.export(t.root) }

// Left returns n's left child, or nil if n has none.
func (t *Tree[K, A, V]) Left(n *Node[K, A, V]) *Node[K, A, V] { return t.export(n.left) }

// Right returns n's right child, or nil if n has none.
func (t *Tree[K, A, V]) Right(n *Node[K, A, V]) *Node[K, A, V] { return t.export(n.right) }

// Parent returns n's parent, or nil if n is the root.
func (t *Tree[K, A, V]) Parent(n *Node[K, A, V]) *Node[K, A, V] { return t.export(n.parent) }

func (t *Tree[K, A, V]) export(n *Node[K, A, V]) *Node[K, A, V] {
	if n == t.sentinel {
		return nil
	}
	return n
}

// Min returns the node with the smallest key, or nil if the tree is empty.
func (t *Tree[K, A, V]) Min() *Node[K, A, V] { return t.export(t.root.min(t.sentinel)) }

// Max returns the node with the largest key, or nil if the tree is empty.
func (t *Tree[K, A, V]) Max() *Node[K, A, V] { return t.export(t.root.max(t.sentinel)) }

// Next returns n's in-order successor, or nil if n is the last node.
func (t *Tree[K, A, V]) Next(n *Node[K, A, V]) *Node[K, A, V] {
	return t.export(n.successor(t.sentinel))
}

// Prev returns n's in-order predecessor, or nil if n is the first node.
func (t *Tree[K, A, V]) Prev(n *Node[K, A, V]) *Node[K, A, V] {
	return t.export(n.predecessor(t.sentinel))
}

// Get returns the node whose key compares equal to key under less, or nil.
func (t *Tree[K, A, V]) Get(key K) *Node[K, A, V] {
	n := t.root
	for n != t.sentinel {
		switch {
		case t.less(key, n.Key):
			n = n.left
		case t.less(n.Key, key):
			n = n.right
		default:
			return n
		}
	}
	return nil
}

// Ceiling returns the node with the smallest key not less than key, or nil
// if every key in the tree is smaller.
func (t *Tree[K, A, V]) Ceiling(key K) *Node[K, A, V] {
	n := t.root
	var result *Node[K, A, V]
	for n != t.sentinel {
		if t.less(n.Key, key) {
			n = n.right
		} else {
			result = n
			n = n.left
		}
	}
	return t.export(orSentinel(result, t.sentinel))
}

// Floor returns the node with the largest key not greater than key, or nil
// if every key in the tree is larger.
func (t *Tree[K, A, V]) Floor(key K) *Node[K, A, V] {
	n := t.root
	var result *Node[K, A, V]
	for n != t.sentinel {
		if t.less(key, n.Key) {
			n = n.left
		} else {
			result = n
			n = n.right
		}
	}
	return t.export(orSentinel(result, t.sentinel))
}

func orSentinel[K, A, V any](n, sentinel *Node[K, A, V]) *Node[K, A, V] {
	if n == nil {
		return sentinel
	}
	return n
}

// recompute derives n's Augment from its own key/value and its children's
// current Augment, then walks up to the root recomputing every ancestor.
// Augmentation functions need not be monotonic, so unlike a max-interval
// tree this never early-exits on an unchanged value.
func (t *Tree[K, A, V]) recompute(n *Node[K, A, V]) {
	for n != t.sentinel {
		var left, right *A
		if n.left != t.sentinel {
			left = &n.left.Augment
		}
		if n.right != t.sentinel {
			right = &n.right.Augment
		}
		n.Augment = t.combine(n.Key, n.Value, left, right)
		n = n.parent
	}
}

// Insert adds a new node with the given key and value and returns it. The
// returned pointer is the handle callers keep to later call Delete.
func (t *Tree[K, A, V]) Insert(key K, value V) *Node[K, A, V] {
	z := &Node[K, A, V]{
		Key:    key,
		Value:  value,
		color:  red,
		left:   t.sentinel,
		right:  t.sentinel,
		parent: t.sentinel,
	}

	y := t.sentinel
	x := t.root
	for x != t.sentinel {
		y = x
		if t.less(z.Key, x.Key) {
			x = x.left
		} else {
			x = x.right
		}
	}

	z.parent = y
	if y == t.sentinel {
		t.root = z
	} else {
		if t.less(z.Key, y.Key) {
			y.left = z
		} else {
			y.right = z
		}
	}
	t.recompute(z)

	t.insertFixup(z)
	t.size++
	return z
}

func (t *Tree[K, A, V]) insertFixup(z *Node[K, A, V]) {
	for z.parent.colorOf(t.sentinel) == red {
		if z.parent == z.parent.parent.left {
			y := z.parent.parent.right
			if y.colorOf(t.sentinel) == red {
				y.color = black
				z.parent.color = black
				z.parent.parent.color = red
				z = z.parent.parent
			} else {
				if z == z.parent.right {
					z = z.parent
					t.rotateLeft(z)
				}
				z.parent.color = black
				z.parent.parent.color = red
				t.rotateRight(z.parent.parent)
			}
		} else {
			y := z.parent.parent.left
			if y.colorOf(t.sentinel) == red {
				y.color = black
				z.parent.color = black
				z.parent.parent.color = red
				z = z.parent.parent
			} else {
				if z == z.parent.left {
					z = z.parent
					t.rotateRight(z)
				}
				z.parent.color = black
				z.parent.parent.color = red
				t.rotateLeft(z.parent.parent)
			}
		}
	}
	t.root.color = black
}

// transplant replaces the subtree rooted at u with the subtree rooted at
// v, leaving v.parent pointed at u's former parent. It does not touch
// u's own left/right/parent fields, and does not recompute anything;
// the caller is responsible for both.
func (t *Tree[K, A, V]) transplant(u, v *Node[K, A, V]) {
	switch {
	case u.parent == t.sentinel:
		t.root = v
	case u == u.parent.left:
		u.parent.left = v
	default:
		u.parent.right = v
	}
	v.parent = u.parent
}

// Delete removes z from the tree. z must be a node currently in this
// tree, as returned by Insert, Get, Min, Max, Next, or Prev.
//
// Deletion relinks nodes (CLRS 3rd ed. RB-DELETE/RB-TRANSPLANT) rather
// than copying a successor's key/value into z: when z has two children,
// its in-order successor is spliced into z's place by adjusting parent
// and child pointers, never by overwriting the successor's own Key or
// Value. Every other live handle into this tree — including one held to
// that successor — stays valid and keeps pointing at a node still
// attached to the tree; only z itself is detached.
func (t *Tree[K, A, V]) Delete(z *Node[K, A, V]) {
	y := z
	yOriginalColor := y.color
	var x *Node[K, A, V]

	switch {
	case z.left == t.sentinel:
		x = z.right
		t.transplant(z, z.right)
	case z.right == t.sentinel:
		x = z.left
		t.transplant(z, z.left)
	default:
		y = z.right.min(t.sentinel)
		yOriginalColor = y.color
		x = y.right
		if y.parent == z {
			x.parent = y
		} else {
			t.transplant(y, y.right)
			y.right = z.right
			y.right.parent = y
		}
		t.transplant(z, y)
		y.left = z.left
		y.left.parent = y
		y.color = z.color
	}

	if yOriginalColor == black {
		t.deleteFixup(x)
	}

	// x.parent is the deepest node whose subtree changed, whether z had
	// zero, one, or two children; recomputing from there up to the root
	// covers every ancestor, including any already revisited by
	// deleteFixup's rotations (recompute is idempotent, so that overlap
	// costs nothing but a few redundant passes).
	t.recompute(x.parent)

	z.left, z.right, z.parent = nil, nil, nil
	t.size--
}

func (t *Tree[K, A, V]) deleteFixup(x *Node[K, A, V]) {
	for x != t.root && x.colorOf(t.sentinel) == black {
		if x == x.parent.left {
			w := x.parent.right
			if w.colorOf(t.sentinel) == red {
				w.color = black
				x.parent.color = red
				t.rotateLeft(x.parent)
				w = x.parent.right
			}
			if w.left.colorOf(t.sentinel) == black && w.right.colorOf(t.sentinel) == black {
				w.color = red
				x = x.parent
			} else {
				if w.right.colorOf(t.sentinel) == black {
					w.left.color = black
					w.color = red
					t.rotateRight(w)
					w = x.parent.right
				}
				w.color = x.parent.colorOf(t.sentinel)
				x.parent.color = black
				w.right.color = black
				t.rotateLeft(x.parent)
				x = t.root
			}
		} else {
			w := x.parent.left
			if w.colorOf(t.sentinel) == red {
				w.color = black
				x.parent.color = red
				t.rotateRight(x.parent)
				w = x.parent.left
			}
			if w.right.colorOf(t.sentinel) == black && w.left.colorOf(t.sentinel) == black {
				w.color = red
				x = x.parent
			} else {
				if w.left.colorOf(t.sentinel) == black {
					w.right.color = black
					w.color = red
					t.rotateLeft(w)
					w = x.parent.left
				}
				w.color = x.parent.colorOf(t.sentinel)
				x.parent.color = black
				w.left.color = black
				t.rotateRight(x.parent)
				x = t.root
			}
		}
	}
	x.color = black
}

// rotateLeft moves x so that it becomes the left child of its former right
// child, recomputing the augmentation of both nodes and every ancestor.
func (t *Tree[K, A, V]) rotateLeft(x *Node[K, A, V]) {
	if x.right == t.sentinel {
		return
	}
	y := x.right
	x.right = y.left
	if y.left != t.sentinel {
		y.left.parent = x
	}
	t.recompute(x)

	t.replaceParent(x, y)

	y.left = x
	t.recompute(y)
}

// rotateRight moves x so that it becomes the right child of its former left
// child, recomputing the augmentation of both nodes and every ancestor.
func (t *Tree[K, A, V]) rotateRight(x *Node[K, A, V]) {
	if x.left == t.sentinel {
		return
	}
	y := x.left
	x.left = y.right
	if y.right != t.sentinel {
		y.right.parent = x
	}
	t.recompute(x)

	t.replaceParent(x, y)

	y.right = x
	t.recompute(y)
}

func (t *Tree[K, A, V]) replaceParent(x, y *Node[K, A, V]) {
	y.parent = x.parent
	if x.parent == t.sentinel {
		t.root = y
	} else {
		if x == x.parent.left {
			x.parent.left = y
		} else {
			x.parent.right = y
		}
	}
	x.parent = y
}

// Direction is returned by a Descend callback to steer a guided descent.
type Direction int

const (
	// Stop halts the descent at the current node, which becomes the result.
	Stop Direction = iota
	// Left continues the descent into the current node's left child.
	Left
	// Right continues the descent into the current node's right child.
	Right
)

// Descend walks from the root, calling f at each visited node to choose
// which child to descend into next. It stops and returns the last visited
// node when f returns Stop or a leaf is reached. This is the primitive an
// augmented tree's O(log n) guided searches (e.g. an eligibility descent
// keyed on a subtree's minimum start time) are built from; Descend itself
// has no domain knowledge of what the augmentation means.
func (t *Tree[K, A, V]) Descend(f func(n *Node[K, A, V]) Direction) *Node[K, A, V] {
	n := t.root
	if n == t.sentinel {
		return nil
	}
	for {
		switch f(n) {
		case Left:
			if n.left == t.sentinel {
				return n
			}
			n = n.left
		case Right:
			if n.right == t.sentinel {
				return n
			}
			n = n.right
		default:
			return n
		}
	}
}
