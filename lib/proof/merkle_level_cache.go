package proof

import (
	"io"

	logging "github.com/ipfs/go-log/v2"
	pool "github.com/libp2p/go-buffer-pool"
	"golang.org/x/xerrors"
)

var log = logging.Logger("proof")

// LevelCache is a binary memtree persisted without its leaves and the lowest
// RowsToDiscard rows above them. Proofs rebuild the missing rows of one
// subtree from the leaf data.
type LevelCache struct {
	NLeaves       int64
	RowsToDiscard uint64

	ts   TreeSize
	data []byte
}

func (c *LevelCache) baseLevel() int {
	return int(c.RowsToDiscard) + 1
}

func levelCacheShape(nLeaves int64, rows uint64) (TreeSize, int64, error) {
	ts := computeTreeSize(nLeaves, 2)
	if nLeaves < 2 || int(rows)+1 > len(ts.LevelSizes)-1 {
		return ts, 0, xerrors.Errorf("cannot discard %d rows of a tree with %d rows", rows, len(ts.LevelSizes))
	}

	var cached int64
	for _, sz := range ts.LevelSizes[rows+1:] {
		cached += sz
	}
	return ts, cached * NODE_SIZE, nil
}

// NewLevelCache copies the retained rows out of a full memtree.
func NewLevelCache(memtree []byte, nLeaves int64, rows uint64) (*LevelCache, error) {
	ts, size, err := levelCacheShape(nLeaves, rows)
	if err != nil {
		return nil, err
	}
	if int64(len(memtree)) != ts.NodeCount*NODE_SIZE {
		return nil, xerrors.Errorf("memtree has %d bytes, expected %d", len(memtree), ts.NodeCount*NODE_SIZE)
	}

	start := ts.levelStarts()[rows+1]
	data := make([]byte, size)
	copy(data, memtree[start:])
	log.Debugw("level cache", "leaves", nLeaves, "discarded", rows, "bytes", size)

	return &LevelCache{NLeaves: nLeaves, RowsToDiscard: rows, ts: ts, data: data}, nil
}

// LoadLevelCache wraps bytes previously returned by Bytes.
func LoadLevelCache(data []byte, nLeaves int64, rows uint64) (*LevelCache, error) {
	ts, size, err := levelCacheShape(nLeaves, rows)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != size {
		return nil, xerrors.Errorf("level cache has %d bytes, expected %d", len(data), size)
	}
	return &LevelCache{NLeaves: nLeaves, RowsToDiscard: rows, ts: ts, data: data}, nil
}

func (c *LevelCache) Bytes() []byte {
	return c.data
}

func (c *LevelCache) Root() [NODE_SIZE]byte {
	return MemtreeRoot(c.data)
}

func (c *LevelCache) nodeOffset(level int, index int64) int64 {
	var off int64
	for l := c.baseLevel(); l < level; l++ {
		off += c.ts.LevelSizes[l]
	}
	return (off + index) * NODE_SIZE
}

// LevelCacheProof builds an inclusion proof for leafIndex, reading the
// discarded subtree's leaves from leaves.
func LevelCacheProof[H Domain](c *LevelCache, h Hasher[H], leaves io.ReaderAt, leafIndex int64) (MerkleProof[H], error) {
	var proof MerkleProof[H]
	if leafIndex < 0 || leafIndex >= c.NLeaves {
		return proof, xerrors.Errorf("invalid leaf index %d for %d leaves", leafIndex, c.NLeaves)
	}

	base := c.baseLevel()
	span := int64(1) << base
	first := leafIndex &^ (span - 1)

	sub := pool.Get(int(span * NODE_SIZE))
	defer pool.Put(sub)
	if _, err := leaves.ReadAt(sub, first*NODE_SIZE); err != nil {
		return proof, xerrors.Errorf("reading leaves %d..%d: %w", first, first+span, err)
	}

	subtree, err := BuildMemtree(sub, h, 1)
	if err != nil {
		return proof, xerrors.Errorf("rebuilding discarded rows: %w", err)
	}
	defer pool.Put(subtree)

	proof, err = MemtreeProof[H](subtree, leafIndex-first)
	if err != nil {
		return proof, err
	}

	cached := nodeAt[H](c.data, c.nodeOffset(base, leafIndex>>base))
	if [NODE_SIZE]byte(cached) != [NODE_SIZE]byte(proof.Root) {
		log.Warnw("rebuilt subtree does not match level cache", "leaf", leafIndex, "span", span)
		return proof, xerrors.Errorf("leaf data does not match cached tree at node %d", leafIndex)
	}

	for level := base; level < len(c.ts.LevelSizes)-1; level++ {
		index := leafIndex >> level
		proof.Path = append(proof.Path, PathElement[H]{
			Hashes: []H{nodeAt[H](c.data, c.nodeOffset(level, index^1))},
			Index:  uint64(index & 1),
		})
	}
	proof.Root = H(c.Root())

	return proof, nil
}
