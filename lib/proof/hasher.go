package proof

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/minio/sha256-simd"
	"github.com/triplewz/poseidon"
	"golang.org/x/xerrors"

	poseidondst "github.com/filecoin-project/sdr-porep/lib/proof/poseidon"
)

// Hasher combines two child nodes into their parent.
type Hasher[H Domain] interface {
	Name() string
	Node(left, right H) H
}

// Sha254Hasher is sha256 with the two top bits of the output cleared.
type Sha254Hasher struct{}

func (Sha254Hasher) Name() string { return "sha254" }

func (Sha254Hasher) Node(left, right Sha256Domain) Sha256Domain {
	return Sha256Domain(ComputeBinShaParent(left, right))
}

func ComputeBinShaParent(left, right [NODE_SIZE]byte) [NODE_SIZE]byte {
	var buf [2 * NODE_SIZE]byte
	copy(buf[:NODE_SIZE], left[:])
	copy(buf[NODE_SIZE:], right[:])

	out := sha256.Sum256(buf[:])
	out[NODE_SIZE-1] &= 0x3F
	return out
}

// PoseidonHasher is the arity-2 neptune poseidon hash over BLS12-381 Fr.
type PoseidonHasher struct{}

func (PoseidonHasher) Name() string { return "poseidon" }

func (PoseidonHasher) Node(left, right PoseidonDomain) PoseidonDomain {
	return poseidonHashMulti[poseidondst.Arity2]([]PoseidonDomain{left, right})
}

// CommR binds the column commitment and the replica tree root.
func CommR(commC, commRLast PoseidonDomain) PoseidonDomain {
	return poseidonHashMulti[poseidondst.Arity2]([]PoseidonDomain{commC, commRLast})
}

// HashColumn hashes one label per layer into the tree C leaf for a node.
func HashColumn(rows []PoseidonDomain) (PoseidonDomain, error) {
	switch len(rows) {
	case 2:
		return poseidonHashMulti[poseidondst.Arity2](rows), nil
	case 3:
		return poseidonHashMulti[poseidondst.Arity3](rows), nil
	case 4:
		return poseidonHashMulti[poseidondst.Arity4](rows), nil
	case 8:
		return poseidonHashMulti[poseidondst.Arity8](rows), nil
	case 11:
		return poseidonHashMulti[poseidondst.Arity11](rows), nil
	default:
		return PoseidonDomain{}, xerrors.Errorf("unsupported column height %d", len(rows))
	}
}

var (
	constsLk sync.Mutex
	consts   = map[int]any{}
)

func poseidonHashMulti[A poseidondst.Arity](vals []PoseidonDomain) PoseidonDomain {
	arity := (*new(A)).Arity()
	if len(vals) != arity {
		panic("poseidonHashMulti called with invalid amount of values")
	}

	type E = *poseidondst.DSTElement[poseidondst.MerkleTreeDST[A]]

	var cons *poseidon.PoseidonConst[E]
	var err error

	constsLk.Lock()
	if consts[arity] != nil {
		cons = consts[arity].(*poseidon.PoseidonConst[E])
	} else {
		cons, err = poseidon.GenPoseidonConstants[E](arity + 1)
		if err != nil {
			constsLk.Unlock()
			panic(fmt.Sprintf("poseidonHashMulti constants: %v", err))
		}
		consts[arity] = cons
	}
	constsLk.Unlock()

	bigs := make([]*big.Int, len(vals))
	for i, v := range vals {
		bigs[i] = domainToBigInt(v)
	}

	h, err := poseidon.Hash(bigs, cons, poseidon.OptimizedStatic)
	if err != nil {
		panic(fmt.Sprintf("poseidonHashMulti error: %v", err))
	}
	return bigIntToDomain(h)
}

// domainToBigInt interprets a node as a little-endian integer.
func domainToBigInt[H Domain](d H) *big.Int {
	b := [NODE_SIZE]byte(d)
	var be [NODE_SIZE]byte
	for i := 0; i < NODE_SIZE; i++ {
		be[NODE_SIZE-1-i] = b[i]
	}
	return new(big.Int).SetBytes(be[:])
}

func bigIntToDomain(x *big.Int) PoseidonDomain {
	var el fr.Element
	el.SetBigInt(x)
	return ElementToNode(&el)
}

// ElementToNode writes el as a little-endian node.
func ElementToNode(el *fr.Element) (out PoseidonDomain) {
	var b [NODE_SIZE]byte
	fr.LittleEndian.PutElement(&b, *el)
	return PoseidonDomain(b)
}

// NodeToElement reads a little-endian node, rejecting values >= r.
func NodeToElement(node []byte) (fr.Element, error) {
	if len(node) != NODE_SIZE {
		return fr.Element{}, xerrors.Errorf("node must be %d bytes, got %d", NODE_SIZE, len(node))
	}
	return fr.LittleEndian.Element((*[NODE_SIZE]byte)(node))
}

// IsCanonical is IsValidNode for a typed node.
func IsCanonical[H Domain](n H) bool {
	b := [NODE_SIZE]byte(n)
	return IsValidNode(b[:])
}

// IsValidNode reports whether node is a canonical field element.
func IsValidNode(node []byte) bool {
	_, err := NodeToElement(node)
	return err == nil
}
