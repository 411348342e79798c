package repository

// rankIndex is a treap ordered by value DESC, then seq ASC, so an in-order
// walk yields the leaderboard from best to worst with ties in the order users
// were first credited.
type rankIndex struct {
	root *node
}

type node struct {
	seq   uint64
	value int
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less reports whether (aValue, aSeq) ranks before (bValue, bSeq).
func less(aValue int, aSeq uint64, bValue int, bSeq uint64) bool {
	if aValue != bValue {
		return aValue > bValue
	}
	return aSeq < bSeq
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

// priority mixes seq (splitmix64) so the heap shape does not follow insertion order.
func priority(seq uint64) uint64 {
	z := seq + 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func insert(n *node, seq uint64, value int) *node {
	if n == nil {
		return &node{seq: seq, value: value, prio: priority(seq), size: 1}
	}
	if less(value, seq, n.value, n.seq) {
		n.left = insert(n.left, seq, value)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, seq, value)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, seq uint64, value int) *node {
	if n == nil {
		return nil
	}
	if seq == n.seq && value == n.value {
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, seq, value)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, seq, value)
		}
	} else if less(value, seq, n.value, n.seq) {
		n.left = deleteNode(n.left, seq, value)
	} else {
		n.right = deleteNode(n.right, seq, value)
	}
	fix(n)
	return n
}

// update moves seq from old to value.
func (r *rankIndex) update(seq uint64, old, value int, existed bool) {
	if existed {
		r.root = deleteNode(r.root, seq, old)
	}
	r.root = insert(r.root, seq, value)
}

// top returns up to limit sequence numbers in rank order.
func (r *rankIndex) top(limit int) []uint64 {
	out := make([]uint64, 0, min(limit, nsize(r.root)))
	var walk func(n *node)
	walk = func(n *node) {
		if n == nil || len(out) >= limit {
			return
		}
		walk(n.left)
		if len(out) < limit {
			out = append(out, n.seq)
		}
		walk(n.right)
	}
	walk(r.root)
	return out
}

func (r *rankIndex) len() int { return nsize(r.root) }
