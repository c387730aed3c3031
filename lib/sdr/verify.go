package sdr

import (
	"context"
	"slices"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/sdr-porep/lib/paths"
	"github.com/filecoin-project/sdr-porep/lib/proof"
)

// VerifyInput is the public statement a proof is checked against.
type VerifyInput struct {
	Params     SetupParams
	ReplicaID  ReplicaID
	CommD      proof.Commitment
	CommR      proof.Commitment
	Challenges Challenges
}

// Verify checks the proof at proofPath against in. It never reads the
// replica. A well-formed proof that does not hold returns false; malformed or
// mismatched artifacts return an error.
func Verify(ctx context.Context, in VerifyInput, proofPath string, opts ...Option) (bool, error) {
	o := applyOptions(opts)
	defer trackPhase(ctx, "verify")()

	p := in.Params
	if err := p.Validate(); err != nil {
		return false, err
	}
	if err := in.Challenges.Validate(p.Nodes); err != nil {
		return false, err
	}

	pf, err := ReadProofFile(proofPath)
	if err != nil {
		return false, err
	}

	h := pf.Header
	switch {
	case h.Nodes != p.Nodes:
		return false, opErr("verify", proofPath, ErrParameterMismatch, wrapMismatch(ErrParameterMismatch, "nodes", p.Nodes, h.Nodes))
	case h.Layers != p.Layers:
		return false, opErr("verify", proofPath, ErrParameterMismatch, wrapMismatch(ErrParameterMismatch, "layers", p.Layers, h.Layers))
	case h.Degree != p.Degree || h.ExpansionDegree != p.ExpansionDegree:
		return false, opErr("verify", proofPath, ErrParameterMismatch,
			wrapMismatch(ErrParameterMismatch, "degrees", [2]uint32{p.Degree, p.ExpansionDegree}, [2]uint32{h.Degree, h.ExpansionDegree}))
	}
	if len(pf.Entries) != len(in.Challenges.Indices) {
		return false, opErr("verify", proofPath, ErrMalformedProof,
			xerrors.Errorf("proof has %d entries for %d challenges", len(pf.Entries), len(in.Challenges.Indices)))
	}

	g, err := GraphFor(p)
	if err != nil {
		return false, opErr("verify graph", proofPath, ErrGraphConstruction, err)
	}

	ok, err := verifyProof(ctx, in, pf, g, o.workers)
	if err != nil {
		return false, err
	}
	recordVerification(ctx, ok)
	log.Infow("verified", "proof", proofPath, "valid", ok)
	return ok, nil
}

// VerifyReplica verifies against the commitments recorded next to a replica.
func VerifyReplica(ctx context.Context, replicaPath string, p SetupParams, replicaID ReplicaID, ch Challenges, proofPath string, opts ...Option) (bool, error) {
	tau, err := ReadTau(paths.StoreDir(replicaPath))
	if err != nil {
		return false, err
	}
	return Verify(ctx, VerifyInput{
		Params:     p,
		ReplicaID:  replicaID,
		CommD:      tau.CommD,
		CommR:      tau.CommR,
		Challenges: ch,
	}, proofPath, opts...)
}

func verifyProof(ctx context.Context, in VerifyInput, pf ProofFile, g *Graph, workers int) (bool, error) {
	h := pf.Header
	if h.ReplicaID != in.ReplicaID || h.CommD != in.CommD || h.CommR != in.CommR {
		log.Debugw("proof header does not match statement")
		return false, nil
	}
	if proof.CommR(h.CommC, h.CommRLast) != proof.PoseidonDomain(in.CommR) {
		log.Debugw("comm_r does not open to comm_c and comm_r_last")
		return false, nil
	}

	var failed atomic.Bool
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, e := range pf.Entries {
		c := in.Challenges.Indices[i]
		eg.Go(func() error {
			if failed.Load() {
				return nil
			}
			if err := ectx.Err(); err != nil {
				return err
			}
			if !verifyChallenge(in.Params, g, h, c, e) {
				log.Debugw("challenge failed", "index", i, "node", c)
				failed.Store(true)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return false, err
	}
	return !failed.Load(), nil
}

func verifyChallenge(p SetupParams, g *Graph, h ProofHeader, c uint64, e ProofEntry) bool {
	if e.Challenge != c {
		return false
	}
	depth := p.TreeDepth()
	vp := e.Proof

	// data and replica openings
	if vp.CommDProofs.Root != proof.Sha256Domain(h.CommD) || !vp.CommDProofs.VerifyAt(proof.Sha254Hasher{}, c, depth) {
		return false
	}
	if vp.CommRLastProof.Root != h.CommRLast || !vp.CommRLastProof.VerifyAt(proof.PoseidonHasher{}, c, depth) {
		return false
	}

	// columns
	checkColumn := func(cp proof.ColumnProof[proof.PoseidonDomain], idx uint64) bool {
		if cp.Column.Index != idx || uint32(len(cp.Column.Rows)) != p.Layers {
			return false
		}
		for _, row := range cp.Column.Rows {
			if !proof.IsCanonical(row) {
				return false
			}
		}
		incl := cp.InclusionProof
		if incl.Root != h.CommC || !incl.VerifyAt(proof.PoseidonHasher{}, idx, depth) {
			return false
		}
		leaf, err := proof.HashColumn(cp.Column.Rows)
		return err == nil && leaf == incl.Leaf
	}

	rcp := vp.ReplicaColumnProofs
	if !checkColumn(rcp.C_X, c) {
		return false
	}
	base, exp := g.BaseParents(c), g.ExpParents(c)
	if len(rcp.DrgParents) != len(base) || len(rcp.ExpParents) != len(exp) {
		return false
	}
	for k, parent := range base {
		if !checkColumn(rcp.DrgParents[k], uint64(parent)) {
			return false
		}
	}
	for k, parent := range exp {
		if !checkColumn(rcp.ExpParents[k], uint64(parent)) {
			return false
		}
	}

	// labels
	if uint32(len(vp.LabelingProofs)) != p.Layers {
		return false
	}
	for k, lp := range vp.LabelingProofs {
		layer := uint32(k + 1)
		if lp.LayerIndex != layer || lp.Node != c || !slices.Equal(lp.Parents, columnParents(rcp, layer)) {
			return false
		}
		if computeLabel(h.ReplicaID, layer, c, lp.Parents) != rcp.C_X.Column.Rows[k] {
			return false
		}
	}

	// encoding
	ep := vp.EncodingProof
	if ep.LayerIndex != p.Layers || ep.Node != c || !slices.Equal(ep.Parents, columnParents(rcp, p.Layers)) {
		return false
	}
	key := computeLabel(h.ReplicaID, p.Layers, c, ep.Parents)

	data, err := proof.NodeToElement(vp.CommDProofs.Leaf[:])
	if err != nil {
		return false
	}
	k, err := proof.NodeToElement(key[:])
	if err != nil {
		return false
	}
	data.Add(&data, &k)
	return proof.ElementToNode(&data) == vp.CommRLastProof.Leaf
}
