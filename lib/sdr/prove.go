package sdr

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/sdr-porep/lib/paths"
	"github.com/filecoin-project/sdr-porep/lib/proof"
)

// Prove opens the sealed replica at every challenged node and writes the
// resulting proof file to outPath. The replica and its store are only read.
func Prove(ctx context.Context, replicaPath string, p SetupParams, replicaID ReplicaID, ch Challenges, outPath string, opts ...Option) error {
	o := applyOptions(opts)
	defer trackPhase(ctx, "prove")()

	if err := p.Validate(); err != nil {
		return err
	}
	if err := ch.Validate(p.Nodes); err != nil {
		return err
	}

	dir := paths.StoreDir(replicaPath)
	layout := paths.Layout{Dir: dir}
	if err := checkSealed("prove", replicaPath, p, replicaID); err != nil {
		return err
	}

	tau, err := ReadTau(dir)
	if err != nil {
		return err
	}
	commC, commRLast, err := proof.ReadPAux(dir)
	if err != nil {
		return opErr("prove", layout.PAux(), ErrMalformedArtifact, err)
	}
	taux, err := proof.ReadTAux(dir)
	if err != nil {
		return opErr("prove", layout.TAux(), ErrMalformedArtifact, err)
	}
	if err := checkTAux(taux, p); err != nil {
		return opErr("prove", layout.TAux(), ErrParameterMismatch, err)
	}

	g, err := GraphFor(p)
	if err != nil {
		return opErr("prove graph", dir, ErrGraphConstruction, err)
	}

	pr := &prover{p: p, g: g, replicaID: replicaID}

	if pr.treeD, err = os.ReadFile(layout.TreeD()); err != nil {
		return ioErr("prove", layout.TreeD(), err)
	}
	if pr.treeC, err = os.ReadFile(layout.TreeC()); err != nil {
		return ioErr("prove", layout.TreeC(), err)
	}
	rcache, err := os.ReadFile(layout.TreeRLast())
	if err != nil {
		return ioErr("prove", layout.TreeRLast(), err)
	}
	if pr.treeR, err = proof.LoadLevelCache(rcache, int64(p.Nodes), taux.TreeRConfig.RowsToDiscard); err != nil {
		return opErr("prove", layout.TreeRLast(), ErrMalformedArtifact, err)
	}
	treeLen := int(2*p.Nodes-1) * NodeSize
	if len(pr.treeD) != treeLen || len(pr.treeC) != treeLen {
		return opErr("prove", dir, ErrMalformedArtifact, xerrors.Errorf("trees must hold %d bytes", treeLen))
	}
	if proof.MemtreeRoot(pr.treeC) != [NodeSize]byte(commC) || pr.treeR.Root() != [NodeSize]byte(commRLast) {
		return opErr("prove", dir, ErrMalformedArtifact, xerrors.New("cached trees do not match p_aux"))
	}

	replica, err := os.Open(replicaPath)
	if err != nil {
		return ioErr("prove", replicaPath, err)
	}
	defer replica.Close() // nolint:errcheck
	pr.replica = classedReader{r: replica, path: replicaPath}

	layers, closeLayers, err := openLayers(layout, p.Layers)
	if err != nil {
		return err
	}
	defer closeLayers()
	for l, f := range layers {
		pr.layers = append(pr.layers, classedReader{r: f, path: layout.Layer(l + 1)})
	}

	start := time.Now()
	entries := make([]ProofEntry, len(ch.Indices))

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(o.workers)
	for i, c := range ch.Indices {
		eg.Go(func() error {
			if err := ectx.Err(); err != nil {
				return err
			}
			vp, err := pr.challenge(c)
			if err != nil {
				return xerrors.Errorf("challenge %d (node %d): %w", i, c, err)
			}
			entries[i] = ProofEntry{Challenge: c, Proof: vp}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if errors.Is(err, ErrIOFailure) {
			return err
		}
		return opErr("prove", replicaPath, ErrMalformedArtifact, err)
	}

	pf := ProofFile{
		Header: ProofHeader{
			Nodes:           p.Nodes,
			Layers:          p.Layers,
			Degree:          p.Degree,
			ExpansionDegree: p.ExpansionDegree,
			ReplicaID:       replicaID,
			CommD:           tau.CommD,
			CommR:           tau.CommR,
			CommC:           commC,
			CommRLast:       commRLast,
		},
		Entries: entries,
	}
	if err := writeProofFile(outPath, pf); err != nil {
		return err
	}

	log.Infow("proved", "replica", replicaPath, "challenges", len(entries), "took", time.Since(start))
	return nil
}

// checkSealed ensures replicaPath is the sealed replica of its store and that
// the store was sealed with p and replicaID.
func checkSealed(op, replicaPath string, p SetupParams, replicaID ReplicaID) error {
	rec, err := ReadSealRecord(paths.StoreDir(replicaPath))
	if err != nil {
		return err
	}
	if rec.State != StateSealed {
		return opErr(op, replicaPath, ErrUnsealedReplica, xerrors.Errorf("store is %s", rec.State))
	}
	if rec.Replica != filepath.Base(replicaPath) {
		return opErr(op, replicaPath, ErrUnsealedReplica, xerrors.Errorf("store holds replica %s", rec.Replica))
	}
	if _, err := os.Stat(replicaPath); err != nil {
		return ioErr(op, replicaPath, err)
	}

	switch {
	case rec.ReplicaID != replicaID:
		return opErr(op, replicaPath, ErrParameterMismatch, wrapMismatch(ErrParameterMismatch, "replica id", rec.ReplicaID, replicaID))
	case rec.Nodes != p.Nodes:
		return opErr(op, replicaPath, ErrParameterMismatch, wrapMismatch(ErrParameterMismatch, "nodes", rec.Nodes, p.Nodes))
	case rec.Layers != p.Layers:
		return opErr(op, replicaPath, ErrParameterMismatch, wrapMismatch(ErrParameterMismatch, "layers", rec.Layers, p.Layers))
	}
	return nil
}

func checkTAux(taux *proof.TemporaryAux, p SetupParams) error {
	stores := append([]proof.StoreConfig{taux.TreeDConfig, taux.TreeCConfig, taux.TreeRConfig}, taux.Labels.Labels...)
	for _, sc := range stores {
		if sc.Size == nil || *sc.Size != p.Nodes {
			return xerrors.Errorf("store %s does not cover %d nodes", sc.ID, p.Nodes)
		}
	}
	if uint32(len(taux.Labels.Labels)) != p.Layers {
		return xerrors.Errorf("t_aux lists %d layers, expected %d", len(taux.Labels.Labels), p.Layers)
	}
	return nil
}

type prover struct {
	p         SetupParams
	g         *Graph
	replicaID ReplicaID

	treeD   []byte
	treeC   []byte
	treeR   *proof.LevelCache
	replica io.ReaderAt
	layers  []io.ReaderAt
}

func (pr *prover) challenge(c uint64) (proof.VanillaStackedProof, error) {
	var vp proof.VanillaStackedProof
	var err error

	if vp.CommDProofs, err = proof.MemtreeProof[proof.Sha256Domain](pr.treeD, int64(c)); err != nil {
		return vp, xerrors.Errorf("tree d: %w", err)
	}
	if vp.CommRLastProof, err = proof.LevelCacheProof[proof.PoseidonDomain](pr.treeR, proof.PoseidonHasher{}, pr.replica, int64(c)); err != nil {
		return vp, xerrors.Errorf("tree r-last: %w", err)
	}

	rcp := &vp.ReplicaColumnProofs
	if rcp.C_X, err = pr.columnProof(c); err != nil {
		return vp, err
	}
	for _, parent := range pr.g.BaseParents(c) {
		cp, err := pr.columnProof(uint64(parent))
		if err != nil {
			return vp, err
		}
		rcp.DrgParents = append(rcp.DrgParents, cp)
	}
	for _, parent := range pr.g.ExpParents(c) {
		cp, err := pr.columnProof(uint64(parent))
		if err != nil {
			return vp, err
		}
		rcp.ExpParents = append(rcp.ExpParents, cp)
	}

	for layer := uint32(1); layer <= pr.p.Layers; layer++ {
		vp.LabelingProofs = append(vp.LabelingProofs, proof.LabelingProof[proof.PoseidonDomain]{
			Parents:    columnParents(*rcp, layer),
			LayerIndex: layer,
			Node:       c,
		})
	}
	vp.EncodingProof = proof.EncodingProof[proof.PoseidonDomain]{
		Parents:    columnParents(*rcp, pr.p.Layers),
		LayerIndex: pr.p.Layers,
		Node:       c,
	}

	return vp, nil
}

func (pr *prover) columnProof(i uint64) (proof.ColumnProof[proof.PoseidonDomain], error) {
	rows, err := readColumn(pr.layers, i)
	if err != nil {
		return proof.ColumnProof[proof.PoseidonDomain]{}, err
	}
	incl, err := proof.MemtreeProof[proof.PoseidonDomain](pr.treeC, int64(i))
	if err != nil {
		return proof.ColumnProof[proof.PoseidonDomain]{}, xerrors.Errorf("tree c: %w", err)
	}
	return proof.ColumnProof[proof.PoseidonDomain]{
		Column:         proof.Column[proof.PoseidonDomain]{Index: i, Rows: rows},
		InclusionProof: incl,
	}, nil
}

// columnParents gathers the parent labels of a layer from opened columns, in
// the order computeLabel consumes them.
func columnParents(rcp proof.ReplicaColumnProof[proof.PoseidonDomain], layer uint32) []proof.PoseidonDomain {
	out := make([]proof.PoseidonDomain, 0, len(rcp.DrgParents)+len(rcp.ExpParents))
	for _, cp := range rcp.DrgParents {
		out = append(out, cp.Column.Rows[layer-1])
	}
	if layer > 1 {
		for _, cp := range rcp.ExpParents {
			out = append(out, cp.Column.Rows[layer-2])
		}
	}
	return out
}

// classedReader reports failed reads of a store file as io failures.
type classedReader struct {
	r    io.ReaderAt
	path string
}

func (c classedReader) ReadAt(p []byte, off int64) (int, error) {
	n, err := c.r.ReadAt(p, off)
	if err == io.EOF && n == len(p) {
		return n, nil
	}
	if err != nil {
		return n, ioErr("prove read", c.path, err)
	}
	return n, nil
}
