package orderbook

import (
	rbt "github.com/emirpasic/gods/v2/trees/redblacktree"
)

// RBTree is a price-indexed red-black tree backed by
// github.com/emirpasic/gods/v2/trees/redblacktree, wrapped so the rest of
// this package can keep treating it as a plain price->level map with O(1)
// best-price access. The comparator, not a second tree variant, is what
// flips "best" between bids (highest first) and asks (lowest first) — the
// same trick used to keep a bucketed bid tree and ask tree symmetric.
type RBTree struct {
	tree       *rbt.Tree[int64, *PriceLevel]
	descending bool
	minNode    *PriceLevel // cached best (tree.Left() is O(log n); this keeps Min() O(1))
}

// NewRBTree creates a new price tree. If descending is true, Min() returns
// the highest price (used for the bid side).
func NewRBTree(descending bool) *RBTree {
	cmp := func(a, b int64) int {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	}
	if descending {
		cmp = func(a, b int64) int {
			switch {
			case a > b:
				return -1
			case a < b:
				return 1
			default:
				return 0
			}
		}
	}
	return &RBTree{
		tree:       rbt.NewWith[int64, *PriceLevel](cmp),
		descending: descending,
	}
}

// Size returns the number of price levels in the tree.
func (t *RBTree) Size() int {
	return t.tree.Size()
}

// IsEmpty returns true if the tree has no price levels.
func (t *RBTree) IsEmpty() bool {
	return t.tree.Empty()
}

// Min returns the best price level (highest for a descending/bid tree,
// lowest for an ascending/ask tree), or nil if empty.
func (t *RBTree) Min() *PriceLevel {
	if t.minNode != nil {
		return t.minNode
	}
	node := t.tree.Left()
	if node == nil {
		return nil
	}
	return node.Value
}

// Get retrieves the price level at the given price.
func (t *RBTree) Get(price int64) *PriceLevel {
	v, ok := t.tree.Get(price)
	if !ok {
		return nil
	}
	return v
}

// Insert adds a price level to the tree, keyed by its Price field.
func (t *RBTree) Insert(level *PriceLevel) {
	t.tree.Put(level.Price, level)
	if t.minNode == nil || better(level.Price, t.minNode.Price, t.descending) {
		t.minNode = level
	}
}

// Delete removes the price level at the given price.
func (t *RBTree) Delete(price int64) {
	t.tree.Remove(price)
	if t.minNode != nil && t.minNode.Price == price {
		t.minNode = nil
		if node := t.tree.Left(); node != nil {
			t.minNode = node.Value
		}
	}
}

// ForEach iterates price levels in best-first order.
func (t *RBTree) ForEach(fn func(*PriceLevel) bool) {
	it := t.tree.Iterator()
	for it.Next() {
		if !fn(it.Value()) {
			return
		}
	}
}

func better(candidate, current int64, descending bool) bool {
	if descending {
		return candidate > current
	}
	return candidate < current
}
