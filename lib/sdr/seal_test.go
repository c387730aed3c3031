package sdr

import (
	"bytes"
	"context"
	"crypto/sha256"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/sdr-porep/lib/paths"
	"github.com/filecoin-project/sdr-porep/lib/proof"
)

type sealedStore struct {
	p       SetupParams
	cfg     StoreConfig
	id      ReplicaID
	src     string
	replica string

	commD, commR proof.Commitment
}

func sealSample(t *testing.T, nodes uint64, layers uint32, opts ...Option) sealedStore {
	t.Helper()

	dir := t.TempDir()
	s := sealedStore{src: filepath.Join(dir, "data.bin")}
	require.NoError(t, GenerateSampleFile(nodes*NodeSize, s.src))

	var err error
	s.p, err = GenerateSetupParams(nodes, WithLayers(layers))
	require.NoError(t, err)
	s.cfg, err = GenerateStoreConfig(nodes, filepath.Join(dir, "store"))
	require.NoError(t, err)
	s.id, err = GenerateReplicaID()
	require.NoError(t, err)

	s.commD, s.commR, err = Seal(context.Background(), s.src, s.p, s.cfg, s.id, append([]Option{WithWorkers(4)}, opts...)...)
	require.NoError(t, err)

	s.replica = paths.ReplicaPath(s.src, s.cfg.Path)
	return s
}

func (s sealedStore) input(ch Challenges) VerifyInput {
	return VerifyInput{Params: s.p, ReplicaID: s.id, CommD: s.commD, CommR: s.commR, Challenges: ch}
}

func (s sealedStore) prove(t *testing.T, ch Challenges) string {
	t.Helper()
	out := filepath.Join(t.TempDir(), "proof.bin")
	require.NoError(t, Prove(context.Background(), s.replica, s.p, s.id, ch, out, WithWorkers(4)))
	return out
}

func TestSealProveVerify(t *testing.T) {
	ctx := context.Background()
	s := sealSample(t, 1024, DefaultLayers)

	rec, err := ReadSealRecord(s.cfg.Path)
	require.NoError(t, err)
	require.Equal(t, StateSealed, rec.State)
	require.NotNil(t, rec.Finished)

	info, err := os.Stat(s.replica)
	require.NoError(t, err)
	require.EqualValues(t, s.p.DataSize(), info.Size())

	tau, err := ReadTau(s.cfg.Path)
	require.NoError(t, err)
	require.Equal(t, s.commD, tau.CommD)
	require.Equal(t, s.commR, tau.CommR)

	ch, err := GenerateChallenges(s.p.Nodes, 10)
	require.NoError(t, err)
	proofPath := s.prove(t, ch)

	ok, err := Verify(ctx, s.input(ch), proofPath)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = VerifyReplica(ctx, s.replica, s.p, s.id, ch, proofPath)
	require.NoError(t, err)
	require.True(t, ok)

	t.Run("other replica id", func(t *testing.T) {
		other, err := GenerateReplicaID()
		require.NoError(t, err)
		in := s.input(ch)
		in.ReplicaID = other

		ok, err := Verify(ctx, in, proofPath)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("flipped comm_r", func(t *testing.T) {
		for bit := 0; bit < 8*len(s.commR); bit++ {
			in := s.input(ch)
			in.CommR[bit/8] ^= 1 << (bit % 8)

			ok, err := Verify(ctx, in, proofPath)
			require.NoError(t, err, "bit %d", bit)
			require.False(t, ok, "bit %d", bit)
		}
	})

	t.Run("flipped comm_d", func(t *testing.T) {
		for bit := 0; bit < 8*len(s.commD); bit++ {
			in := s.input(ch)
			in.CommD[bit/8] ^= 1 << (bit % 8)

			ok, err := Verify(ctx, in, proofPath)
			require.NoError(t, err, "bit %d", bit)
			require.False(t, ok, "bit %d", bit)
		}
	})

	t.Run("other challenges", func(t *testing.T) {
		other, err := DeriveChallenges(bytes.Repeat([]byte{9}, 32), s.p.Nodes, 10)
		require.NoError(t, err)
		require.NotEqual(t, ch.Indices, other.Indices)

		ok, err := Verify(ctx, s.input(other), proofPath)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("wrong challenge count", func(t *testing.T) {
		short := Challenges{Indices: ch.Indices[:5]}
		_, err := Verify(ctx, s.input(short), proofPath)
		require.ErrorIs(t, err, ErrMalformedProof)
		require.ErrorIs(t, err, ErrMalformedArtifact)
	})
}

func TestProveLeavesReplicaUntouched(t *testing.T) {
	s := sealSample(t, 64, 2)

	before, err := os.ReadFile(s.replica)
	require.NoError(t, err)

	ch, err := GenerateChallenges(s.p.Nodes, 20)
	require.NoError(t, err)
	ch.Indices = append(ch.Indices, 0, s.p.Nodes-1)
	proofPath := s.prove(t, ch)

	after, err := os.ReadFile(s.replica)
	require.NoError(t, err)
	require.Equal(t, sha256.Sum256(before), sha256.Sum256(after))

	ok, err := Verify(context.Background(), s.input(ch), proofPath)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoFileExists(t, proofPath+".tmp")
}

func TestSealDeterministic(t *testing.T) {
	ctx := context.Background()
	s := sealSample(t, 64, 3, WithReflink(false))

	_, _, err := Seal(ctx, s.src, s.p, s.cfg, s.id)
	require.ErrorIs(t, err, ErrAlreadySealed)
	require.ErrorIs(t, err, ErrStateViolation)

	require.NoError(t, ResetStore(s.cfg.Path))
	rec, err := ReadSealRecord(s.cfg.Path)
	require.NoError(t, err)
	require.Equal(t, StateUnsealed, rec.State)
	require.NoFileExists(t, s.replica)

	commD, commR, err := Seal(ctx, s.src, s.p, s.cfg, s.id)
	require.NoError(t, err)
	require.Equal(t, s.commD, commD)
	require.Equal(t, s.commR, commR)
}

func TestSealRowsToDiscard(t *testing.T) {
	ctx := context.Background()
	s := sealSample(t, 256, 2)

	for _, rows := range []uint64{0, 1, 3} {
		dir := filepath.Join(t.TempDir(), "store")
		cfg, err := GenerateStoreConfig(s.p.Nodes, dir, WithRowsToDiscard(rows))
		require.NoError(t, err)

		commD, commR, err := Seal(ctx, s.src, s.p, cfg, s.id, WithWorkers(2))
		require.NoError(t, err)
		require.Equal(t, s.commD, commD)
		require.Equal(t, s.commR, commR)

		ch, err := GenerateChallenges(s.p.Nodes, 8)
		require.NoError(t, err)
		out := filepath.Join(t.TempDir(), "proof")
		require.NoError(t, Prove(ctx, paths.ReplicaPath(s.src, dir), s.p, s.id, ch, out))

		ok, err := Verify(ctx, s.input(ch), out)
		require.NoError(t, err)
		require.True(t, ok, "rows %d", rows)
	}
}

func TestSealFailureLeavesNothingVerifiable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	src := filepath.Join(dir, "bad.bin")
	data := randomNodes(t, 64)
	data[10*NodeSize+NodeSize-1] = 0xff
	require.NoError(t, os.WriteFile(src, data, 0644))

	p, err := GenerateSetupParams(64, WithLayers(2))
	require.NoError(t, err)
	cfg, err := GenerateStoreConfig(64, filepath.Join(dir, "store"))
	require.NoError(t, err)
	id, err := GenerateReplicaID()
	require.NoError(t, err)

	_, _, err = Seal(ctx, src, p, cfg, id)
	require.ErrorIs(t, err, ErrMalformedInput)

	rec, err := ReadSealRecord(cfg.Path)
	require.NoError(t, err)
	require.Equal(t, StateFailed, rec.State)
	require.NotEmpty(t, rec.Error)

	replica := paths.ReplicaPath(src, cfg.Path)
	require.NoFileExists(t, replica)
	require.NoFileExists(t, cfg.Layout().Tau())
	require.NoFileExists(t, cfg.Layout().PAux())

	ch, err := GenerateChallenges(64, 4)
	require.NoError(t, err)
	err = Prove(ctx, replica, p, id, ch, filepath.Join(dir, "proof"))
	require.ErrorIs(t, err, ErrUnsealedReplica)

	// a fixed source seals over the failed run
	data[10*NodeSize+NodeSize-1] = 0x01
	require.NoError(t, os.WriteFile(src, data, 0644))
	_, _, err = Seal(ctx, src, p, cfg, id)
	require.NoError(t, err)
}

func TestSealRejects(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	p, err := GenerateSetupParams(64, WithLayers(2))
	require.NoError(t, err)
	cfg, err := GenerateStoreConfig(64, filepath.Join(dir, "store"))
	require.NoError(t, err)
	id, err := GenerateReplicaID()
	require.NoError(t, err)

	src := filepath.Join(dir, "short.bin")
	require.NoError(t, GenerateSampleFile(32*NodeSize, src))
	_, _, err = Seal(ctx, src, p, cfg, id)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, _, err = Seal(ctx, filepath.Join(dir, "missing"), p, cfg, id)
	require.ErrorIs(t, err, ErrIOFailure)

	other, err := GenerateSetupParams(128, WithLayers(2))
	require.NoError(t, err)
	_, _, err = Seal(ctx, src, other, cfg, id)
	require.ErrorIs(t, err, ErrParameterMismatch)

	var badID ReplicaID
	for i := range badID {
		badID[i] = 0xff
	}
	require.NoError(t, GenerateSampleFile(64*NodeSize, src))
	_, _, err = Seal(ctx, src, p, cfg, badID)
	require.ErrorIs(t, err, ErrInvalidArgument)

	rec, err := ReadSealRecord(cfg.Path)
	require.NoError(t, err)
	require.Equal(t, StateUnsealed, rec.State)
}

func TestProveRejects(t *testing.T) {
	ctx := context.Background()
	s := sealSample(t, 64, 2)
	out := filepath.Join(t.TempDir(), "proof")

	err := Prove(ctx, s.replica, s.p, s.id, Challenges{Indices: []uint64{1, 64}}, out)
	require.ErrorIs(t, err, ErrChallengeOutOfRange)
	require.NoFileExists(t, out)

	err = Prove(ctx, s.replica, s.p, s.id, Challenges{}, out)
	require.ErrorIs(t, err, ErrInvalidArgument)

	other, err := GenerateReplicaID()
	require.NoError(t, err)
	err = Prove(ctx, s.replica, s.p, other, Challenges{Indices: []uint64{1}}, out)
	require.ErrorIs(t, err, ErrParameterMismatch)

	err = Prove(ctx, filepath.Join(t.TempDir(), "x.replica"), s.p, s.id, Challenges{Indices: []uint64{1}}, out)
	require.ErrorIs(t, err, ErrUnsealedReplica)

	err = Prove(ctx, s.replica, s.p, s.id, Challenges{Indices: []uint64{1}}, filepath.Join(out, "sub", "proof"))
	require.ErrorIs(t, err, ErrIOFailure)
}

func TestProveErrorClasses(t *testing.T) {
	s := sealSample(t, 64, 2)
	out := filepath.Join(t.TempDir(), "proof")
	ch := Challenges{Indices: []uint64{3, 63}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Prove(ctx, s.replica, s.p, s.id, ch, out)
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrMalformedArtifact)
	require.NoFileExists(t, out)

	layer := paths.Layout{Dir: s.cfg.Path}.Layer(2)
	require.NoError(t, os.Truncate(layer, 10*NodeSize))

	err = Prove(context.Background(), s.replica, s.p, s.id, ch, out)
	require.ErrorIs(t, err, ErrIOFailure)
	require.NotErrorIs(t, err, ErrMalformedArtifact)
	require.NoFileExists(t, out)
}

func TestVerifyMalformedProof(t *testing.T) {
	ctx := context.Background()
	s := sealSample(t, 64, 2)

	ch, err := GenerateChallenges(s.p.Nodes, 4)
	require.NoError(t, err)
	proofPath := s.prove(t, ch)

	raw, err := os.ReadFile(proofPath)
	require.NoError(t, err)

	write := func(b []byte) string {
		p := filepath.Join(t.TempDir(), "proof")
		require.NoError(t, os.WriteFile(p, b, 0644))
		return p
	}

	for _, cut := range []int{0, 3, 40, len(raw) / 2, len(raw) - 1} {
		_, err := Verify(ctx, s.input(ch), write(raw[:cut]))
		require.ErrorIs(t, err, ErrMalformedProof, "cut at %d", cut)
	}

	_, err = Verify(ctx, s.input(ch), write(append(bytes.Clone(raw), 0)))
	require.ErrorIs(t, err, ErrMalformedProof)

	bad := bytes.Clone(raw)
	bad[0] = 'X'
	_, err = Verify(ctx, s.input(ch), write(bad))
	require.ErrorIs(t, err, ErrMalformedProof)

	_, err = Verify(ctx, s.input(ch), filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, ErrIOFailure)
}

func TestVerifyParameterMismatch(t *testing.T) {
	ctx := context.Background()
	s := sealSample(t, 64, 2)

	ch, err := GenerateChallenges(s.p.Nodes, 4)
	require.NoError(t, err)
	proofPath := s.prove(t, ch)

	in := s.input(ch)
	in.Params, err = GenerateSetupParams(128, WithLayers(2))
	require.NoError(t, err)
	_, err = Verify(ctx, in, proofPath)
	require.ErrorIs(t, err, ErrParameterMismatch)

	in = s.input(ch)
	in.Params, err = GenerateSetupParams(64, WithLayers(4))
	require.NoError(t, err)
	_, err = Verify(ctx, in, proofPath)
	require.ErrorIs(t, err, ErrParameterMismatch)

	in = s.input(Challenges{Indices: []uint64{0, 1, 2, 64}})
	_, err = Verify(ctx, in, proofPath)
	require.ErrorIs(t, err, ErrChallengeOutOfRange)
}

func TestVerifyTamperedProof(t *testing.T) {
	ctx := context.Background()
	s := sealSample(t, 64, 2)

	ch := Challenges{Indices: []uint64{0, 5, 17, 63}}
	proofPath := s.prove(t, ch)

	pf, err := ReadProofFile(proofPath)
	require.NoError(t, err)

	tamper := []func(pf *ProofFile){
		func(pf *ProofFile) { pf.Entries[1].Proof.CommRLastProof.Leaf[0] ^= 1 },
		func(pf *ProofFile) { pf.Entries[2].Proof.CommDProofs.Leaf[0] ^= 1 },
		func(pf *ProofFile) { pf.Entries[3].Proof.ReplicaColumnProofs.C_X.Column.Rows[1][0] ^= 1 },
		func(pf *ProofFile) { pf.Entries[1].Proof.ReplicaColumnProofs.DrgParents[0].Column.Rows[0][2] ^= 1 },
		func(pf *ProofFile) { pf.Entries[0].Proof.LabelingProofs[1].Parents[0][1] ^= 1 },
		func(pf *ProofFile) { pf.Entries[0].Proof.EncodingProof.LayerIndex = 1 },
		func(pf *ProofFile) { pf.Entries[2].Challenge = 3 },
		func(pf *ProofFile) { pf.Header.CommC[0] ^= 1 },
		func(pf *ProofFile) { pf.Entries[1], pf.Entries[2] = pf.Entries[2], pf.Entries[1] },
		func(pf *ProofFile) {
			h := &pf.Entries[1].Proof.CommRLastProof.Path[0].Hashes[0]
			*h = aliasNode(t, *h)
		},
		func(pf *ProofFile) {
			h := &pf.Entries[2].Proof.ReplicaColumnProofs.ExpParents[0].InclusionProof.Path[2].Hashes[0]
			*h = aliasNode(t, *h)
		},
		func(pf *ProofFile) {
			row := &pf.Entries[3].Proof.ReplicaColumnProofs.DrgParents[1].Column.Rows[0]
			*row = aliasNode(t, *row)
		},
	}

	for i, fn := range tamper {
		var buf bytes.Buffer
		require.NoError(t, EncodeProofFile(&buf, pf))
		cp, err := DecodeProofFile(bytes.NewReader(buf.Bytes()))
		require.NoError(t, err)

		fn(&cp)

		out := filepath.Join(t.TempDir(), "proof")
		require.NoError(t, writeProofFile(out, cp))
		ok, err := Verify(ctx, s.input(ch), out)
		require.NoError(t, err)
		require.False(t, ok, "tamper %d", i)
	}
}

// aliasNode returns n + r, the same field element in non-reduced form.
func aliasNode(t *testing.T, n proof.PoseidonDomain) proof.PoseidonDomain {
	t.Helper()

	el, err := proof.NodeToElement(n[:])
	require.NoError(t, err)
	var v big.Int
	el.BigInt(&v)
	v.Add(&v, fr.Modulus())
	require.LessOrEqual(t, v.BitLen(), 8*NodeSize)

	var out proof.PoseidonDomain
	be := v.FillBytes(make([]byte, NodeSize))
	for i := range be {
		out[i] = be[NodeSize-1-i]
	}
	require.False(t, proof.IsCanonical(out))
	return out
}

func TestUnseal(t *testing.T) {
	ctx := context.Background()
	s := sealSample(t, 256, 4)

	orig, err := os.ReadFile(s.src)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "unsealed")
	require.NoError(t, Unseal(ctx, s.replica, s.p, s.id, out))
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, orig, got)

	// without the last layer the key is regenerated
	require.NoError(t, os.Remove(s.cfg.Layout().Layer(int(s.p.Layers))))
	out2 := filepath.Join(t.TempDir(), "unsealed")
	require.NoError(t, Unseal(ctx, s.replica, s.p, s.id, out2))
	got, err = os.ReadFile(out2)
	require.NoError(t, err)
	require.Equal(t, orig, got)

	err = Unseal(ctx, s.replica, s.p, s.id, s.replica)
	require.ErrorIs(t, err, ErrInvalidArgument)

	require.NoError(t, ResetStore(s.cfg.Path))
	err = Unseal(ctx, s.replica, s.p, s.id, out)
	require.ErrorIs(t, err, ErrUnsealedReplica)
}
