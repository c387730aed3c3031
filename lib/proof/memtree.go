package proof

import (
	"math/bits"

	pool "github.com/libp2p/go-buffer-pool"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

const MaxMemtreeSize = 1 << 30

// nodes hashed by one worker before handing the level to the next
const minLevelChunk = 64

// BuildMemtree builds a binary merkle tree over a power-of-two number of leaf nodes.
// All levels are concatenated, leaves first, root last.
// Returned slice should be released to the pool after use.
func BuildMemtree[H Domain](leaves []byte, h Hasher[H], workers int) ([]byte, error) {
	if len(leaves) == 0 || len(leaves)%NODE_SIZE != 0 {
		return nil, xerrors.Errorf("leaf data length %d is not a positive multiple of %d", len(leaves), NODE_SIZE)
	}

	nLeaves := int64(len(leaves) / NODE_SIZE)
	if bits.OnesCount64(uint64(nLeaves)) != 1 {
		return nil, xerrors.Errorf("leaf count %d is not a power of two", nLeaves)
	}

	ts := computeTreeSize(nLeaves, 2)
	if ts.NodeCount*NODE_SIZE > MaxMemtreeSize {
		return nil, xerrors.Errorf("tree too large for memtree: %d nodes", ts.NodeCount)
	}

	memtreeBuf := pool.Get(int(ts.NodeCount * NODE_SIZE))
	copy(memtreeBuf, leaves)

	starts := ts.levelStarts()
	for level := 1; level < len(ts.LevelSizes); level++ {
		if err := hashLevel(memtreeBuf, starts[level-1], starts[level], ts.LevelSizes[level], h, workers); err != nil {
			pool.Put(memtreeBuf)
			return nil, xerrors.Errorf("hashing level %d: %w", level, err)
		}
	}

	return memtreeBuf, nil
}

func hashLevel[H Domain](buf []byte, prevStart, currStart, n int64, h Hasher[H], workers int) error {
	if workers < 1 {
		workers = 1
	}
	chunk := max((n+int64(workers)-1)/int64(workers), minLevelChunk)

	var eg errgroup.Group
	for start := int64(0); start < n; start += chunk {
		start, end := start, min(start+chunk, n)
		eg.Go(func() error {
			for i := start; i < end; i++ {
				left := nodeAt[H](buf, prevStart+2*i*NODE_SIZE)
				right := nodeAt[H](buf, prevStart+(2*i+1)*NODE_SIZE)

				parent := [NODE_SIZE]byte(h.Node(left, right))
				copy(buf[currStart+i*NODE_SIZE:], parent[:])
			}
			return nil
		})
	}
	return eg.Wait()
}

func nodeAt[H Domain](buf []byte, off int64) H {
	var b [NODE_SIZE]byte
	copy(b[:], buf[off:off+NODE_SIZE])
	return H(b)
}

// MemtreeRoot returns the last node of a memtree.
func MemtreeRoot(memtree []byte) [NODE_SIZE]byte {
	var root [NODE_SIZE]byte
	copy(root[:], memtree[len(memtree)-NODE_SIZE:])
	return root
}

// memtreeShape reconstructs the level sizes of a binary memtree from its byte length.
func memtreeShape(memtree []byte) (TreeSize, error) {
	totalNodes := int64(len(memtree)) / NODE_SIZE
	if totalNodes == 0 || int64(len(memtree))%NODE_SIZE != 0 {
		return TreeSize{}, xerrors.New("invalid memtree size")
	}

	ts := computeTreeSize((totalNodes+1)/2, 2)
	if ts.NodeCount != totalNodes {
		return TreeSize{}, xerrors.New("invalid memtree size; reconstructed total nodes do not match")
	}
	return ts, nil
}

// MemtreeProof generates an inclusion proof for the given leaf index from the memtree.
func MemtreeProof[H Domain](memtree []byte, leafIndex int64) (MerkleProof[H], error) {
	var proof MerkleProof[H]

	ts, err := memtreeShape(memtree)
	if err != nil {
		return proof, err
	}
	levelStarts := ts.levelStarts()

	if leafIndex < 0 || leafIndex >= ts.LevelSizes[0] {
		return proof, xerrors.Errorf("invalid leaf index %d for %d leaves", leafIndex, ts.LevelSizes[0])
	}

	proof.Leaf = nodeAt[H](memtree, levelStarts[0]+leafIndex*NODE_SIZE)
	proof.Path = make([]PathElement[H], 0, len(ts.LevelSizes)-1)

	index := leafIndex
	for level := 0; level < len(ts.LevelSizes)-1; level++ {
		sibling := nodeAt[H](memtree, levelStarts[level]+(index^1)*NODE_SIZE)
		proof.Path = append(proof.Path, PathElement[H]{
			Hashes: []H{sibling},
			Index:  uint64(index & 1),
		})
		index >>= 1
	}

	proof.Root = nodeAt[H](memtree, levelStarts[len(levelStarts)-1])
	return proof, nil
}

// Verify recomputes the root from the leaf and the path.
func (p MerkleProof[H]) Verify(h Hasher[H]) bool {
	if !p.canonical() {
		return false
	}

	cur := p.Leaf
	for _, el := range p.Path {
		if len(el.Hashes) != 1 {
			return false
		}
		switch el.Index {
		case 0:
			cur = h.Node(cur, el.Hashes[0])
		case 1:
			cur = h.Node(el.Hashes[0], cur)
		default:
			return false
		}
	}
	return [NODE_SIZE]byte(cur) == [NODE_SIZE]byte(p.Root)
}

// canonical reports whether every node of the proof is a reduced field
// element. Poseidon reduces its inputs, so v and v+r would hash alike.
func (p MerkleProof[H]) canonical() bool {
	if !IsCanonical(p.Leaf) || !IsCanonical(p.Root) {
		return false
	}
	for _, el := range p.Path {
		for _, n := range el.Hashes {
			if !IsCanonical(n) {
				return false
			}
		}
	}
	return true
}

// VerifyAt checks the proof against a tree of the given depth and the expected leaf position.
func (p MerkleProof[H]) VerifyAt(h Hasher[H], leafIndex uint64, depth int) bool {
	if len(p.Path) != depth || p.LeafIndex() != leafIndex {
		return false
	}
	return p.Verify(h)
}
