package proof

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	pool "github.com/libp2p/go-buffer-pool"
	"github.com/snadrus/must"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/sdr-porep/lib/testutils"
)

func randomNodes(t *testing.T, n int) []byte {
	t.Helper()
	return must.One(testutils.RandomNodes(n))
}

func leaf(data []byte, i int) [NODE_SIZE]byte {
	var out [NODE_SIZE]byte
	copy(out[:], data[i*NODE_SIZE:])
	return out
}

func TestBuildMemtreeSha254Root(t *testing.T) {
	data := randomNodes(t, 4)

	mt, err := BuildMemtree[Sha256Domain](data, Sha254Hasher{}, 4)
	require.NoError(t, err)
	defer pool.Put(mt)

	l := ComputeBinShaParent(leaf(data, 0), leaf(data, 1))
	r := ComputeBinShaParent(leaf(data, 2), leaf(data, 3))
	require.Equal(t, ComputeBinShaParent(l, r), MemtreeRoot(mt))
	require.Len(t, mt, 7*NODE_SIZE)
}

func TestBuildMemtreeRejectsBadInput(t *testing.T) {
	_, err := BuildMemtree[Sha256Domain](make([]byte, 3*NODE_SIZE), Sha254Hasher{}, 1)
	require.Error(t, err)

	_, err = BuildMemtree[Sha256Domain](make([]byte, 33), Sha254Hasher{}, 1)
	require.Error(t, err)

	_, err = BuildMemtree[Sha256Domain](nil, Sha254Hasher{}, 1)
	require.Error(t, err)
}

func TestMemtreeProofs(t *testing.T) {
	const n = 64
	data := randomNodes(t, n)

	mt, err := BuildMemtree[Sha256Domain](data, Sha254Hasher{}, 8)
	require.NoError(t, err)
	defer pool.Put(mt)

	for i := int64(0); i < n; i++ {
		p, err := MemtreeProof[Sha256Domain](mt, i)
		require.NoError(t, err)
		require.Equal(t, Sha256Domain(leaf(data, int(i))), p.Leaf)
		require.True(t, p.VerifyAt(Sha254Hasher{}, uint64(i), 6), "leaf %d", i)
		require.False(t, p.VerifyAt(Sha254Hasher{}, uint64(i+1)%n, 6))
	}

	p, err := MemtreeProof[Sha256Domain](mt, 5)
	require.NoError(t, err)
	p.Path[2].Hashes[0][0] ^= 1
	require.False(t, p.Verify(Sha254Hasher{}))

	_, err = MemtreeProof[Sha256Domain](mt, n)
	require.Error(t, err)
}

func TestMerkleProofRejectsNonCanonicalNodes(t *testing.T) {
	const n = 8
	mt := must.One(BuildMemtree[PoseidonDomain](randomNodes(t, n), PoseidonHasher{}, 2))
	defer pool.Put(mt)

	alias := func(d PoseidonDomain) PoseidonDomain {
		v := new(big.Int).Add(domainToBigInt(d), fr.Modulus())
		be := v.FillBytes(make([]byte, NODE_SIZE))
		var out PoseidonDomain
		for i := range be {
			out[i] = be[NODE_SIZE-1-i]
		}
		return out
	}

	for _, tc := range []struct {
		name   string
		mutate func(p *MerkleProof[PoseidonDomain])
	}{
		{"sibling", func(p *MerkleProof[PoseidonDomain]) { p.Path[1].Hashes[0] = alias(p.Path[1].Hashes[0]) }},
		{"leaf", func(p *MerkleProof[PoseidonDomain]) { p.Leaf = alias(p.Leaf) }},
		{"root", func(p *MerkleProof[PoseidonDomain]) { p.Root = alias(p.Root) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p := must.One(MemtreeProof[PoseidonDomain](mt, 3))
			require.True(t, p.VerifyAt(PoseidonHasher{}, 3, 3))

			tc.mutate(&p)
			require.False(t, p.VerifyAt(PoseidonHasher{}, 3, 3))
		})
	}
}

func TestLevelCacheProofsMatchFullTree(t *testing.T) {
	const n = 32
	data := randomNodes(t, n)

	mt, err := BuildMemtree[PoseidonDomain](data, PoseidonHasher{}, 4)
	require.NoError(t, err)
	defer pool.Put(mt)

	for _, rows := range []uint64{0, 1, 2, 3} {
		lc, err := NewLevelCache(mt, n, rows)
		require.NoError(t, err)
		require.Equal(t, MemtreeRoot(mt), lc.Root())

		reloaded, err := LoadLevelCache(lc.Bytes(), n, rows)
		require.NoError(t, err)

		for _, i := range []int64{0, 1, 7, 16, 31} {
			want, err := MemtreeProof[PoseidonDomain](mt, i)
			require.NoError(t, err)

			got, err := LevelCacheProof[PoseidonDomain](reloaded, PoseidonHasher{}, bytes.NewReader(data), i)
			require.NoError(t, err)
			require.Equal(t, want, got, "rows %d leaf %d", rows, i)
		}
	}

	_, err = NewLevelCache(mt, n, 5)
	require.Error(t, err)
}

func TestLevelCacheDetectsForeignLeaves(t *testing.T) {
	const n = 16
	data := randomNodes(t, n)

	mt, err := BuildMemtree[PoseidonDomain](data, PoseidonHasher{}, 1)
	require.NoError(t, err)
	defer pool.Put(mt)

	lc, err := NewLevelCache(mt, n, 1)
	require.NoError(t, err)

	other := append([]byte(nil), data...)
	other[3*NODE_SIZE] ^= 1

	_, err = LevelCacheProof[PoseidonDomain](lc, PoseidonHasher{}, bytes.NewReader(other), 2)
	require.Error(t, err)
}
