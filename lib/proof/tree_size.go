package proof

type TreeSize struct {
	NodeCount  int64
	LevelSizes []int64
}

func computeTreeSize(nLeaves, arity int64) TreeSize {
	var ts TreeSize
	curr := nLeaves
	for curr > 0 {
		ts.LevelSizes = append(ts.LevelSizes, curr)
		ts.NodeCount += curr
		if curr == 1 {
			break
		}
		curr = (curr + arity - 1) / arity
	}
	return ts
}

// levelStarts returns the byte offset of every level in a concatenated memtree.
func (ts TreeSize) levelStarts() []int64 {
	starts := make([]int64, len(ts.LevelSizes))
	for i := 1; i < len(ts.LevelSizes); i++ {
		starts[i] = starts[i-1] + ts.LevelSizes[i-1]*NODE_SIZE
	}
	return starts
}

// TreeRowCount is the number of rows, leaves and root included, of a tree with the given leaves.
func TreeRowCount(leaves, arity int64) int {
	if leaves == 0 {
		return 0
	}
	rows := 1
	for leaves > 1 {
		leaves = (leaves + arity - 1) / arity
		rows++
	}
	return rows
}

// DefaultRowsToDiscard mirrors the level cache defaults of rust-fil-proofs
// for a binary tree: keep everything on tiny trees, otherwise drop two rows.
func DefaultRowsToDiscard(leaves int64) uint64 {
	rows := TreeRowCount(leaves, 2)
	switch {
	case rows <= 2:
		return 0
	case rows == 3:
		return 1
	default:
		return 2
	}
}
