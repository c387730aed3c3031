package proof

// Type definitions follow the stacked DRG vanilla proof layout from
// rust-fil-proofs (storage-proofs-core/src/merkle, storage-proofs-porep/src/stacked/vanilla),
// restricted to single binary trees.

const NODE_SIZE = 32

type Commitment [NODE_SIZE]byte

// Domain is a tree node in the byte form of a particular hasher.
type Domain interface {
	~[NODE_SIZE]byte
}

type Sha256Domain [NODE_SIZE]byte

type PoseidonDomain [NODE_SIZE]byte // Fr, little-endian

type PathElement[H Domain] struct {
	Hashes []H
	// Index is the position of the current node among its siblings.
	Index uint64
}

type MerkleProof[H Domain] struct {
	Root H
	Leaf H
	Path []PathElement[H]
}

// LeafIndex reassembles the leaf position from the per-level sibling indexes.
func (p MerkleProof[H]) LeafIndex() uint64 {
	var idx uint64
	for i := len(p.Path) - 1; i >= 0; i-- {
		idx = idx<<1 | p.Path[i].Index
	}
	return idx
}

type Column[H Domain] struct {
	Index uint64
	Rows  []H
}

type ColumnProof[H Domain] struct {
	Column         Column[H]
	InclusionProof MerkleProof[H]
}

type ReplicaColumnProof[H Domain] struct {
	C_X        ColumnProof[H]
	DrgParents []ColumnProof[H]
	ExpParents []ColumnProof[H]
}

type LabelingProof[H Domain] struct {
	Parents    []H
	LayerIndex uint32
	Node       uint64
}

type EncodingProof[H Domain] struct {
	Parents    []H
	LayerIndex uint32
	Node       uint64
}

type VanillaStackedProof struct {
	CommDProofs         MerkleProof[Sha256Domain]
	CommRLastProof      MerkleProof[PoseidonDomain]
	ReplicaColumnProofs ReplicaColumnProof[PoseidonDomain]
	LabelingProofs      []LabelingProof[PoseidonDomain]
	EncodingProof       EncodingProof[PoseidonDomain]
}
