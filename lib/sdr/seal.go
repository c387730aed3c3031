package sdr

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/KarpelesLab/reflink"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	fslock "github.com/ipfs/go-fs-lock"
	logging "github.com/ipfs/go-log/v2"
	pool "github.com/libp2p/go-buffer-pool"
	"go.uber.org/multierr"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/sdr-porep/lib/paths"
	"github.com/filecoin-project/sdr-porep/lib/proof"
)

var log = logging.Logger("sdr")

// Seal encodes src into a replica inside cfg's directory and returns the
// data and replica commitments. A store holds one sealed replica; sealing it
// again fails with ErrAlreadySealed until ResetStore is called. Artifacts of
// an interrupted or failed run are discarded and the run starts over.
func Seal(ctx context.Context, src string, p SetupParams, cfg StoreConfig, replicaID ReplicaID, opts ...Option) (commD, commR proof.Commitment, err error) {
	o := applyOptions(opts)

	if err := p.Validate(); err != nil {
		return commD, commR, err
	}
	if err := cfg.Validate(p); err != nil {
		return commD, commR, err
	}
	if !proof.IsValidNode(replicaID[:]) {
		return commD, commR, xerrors.Errorf("replica id %s is not a field element: %w", replicaID, ErrInvalidArgument)
	}

	st, err := os.Stat(src)
	if err != nil {
		return commD, commR, ioErr("seal", src, err)
	}
	if uint64(st.Size()) != uint64(p.DataSize()) {
		return commD, commR, opErr("seal", src, ErrInvalidArgument, wrapMismatch(ErrInvalidArgument, "source size", uint64(p.DataSize()), st.Size()))
	}

	replica := paths.ReplicaPath(src, cfg.Path)
	if absSrc, _ := filepath.Abs(src); absSrc == replica {
		return commD, commR, opErr("seal", src, ErrInvalidArgument, xerrors.New("source would be overwritten by the replica"))
	}

	if err := paths.PrepareDir(cfg.Path, false); err != nil {
		return commD, commR, opErr("seal", cfg.Path, ErrDirectoryUnavailable, err)
	}

	lk, err := fslock.Lock(cfg.Path, paths.LockFile)
	if err != nil {
		return commD, commR, opErr("seal", cfg.Path, ErrStoreBusy, err)
	}
	defer lk.Close() // nolint:errcheck

	rec, err := ReadSealRecord(cfg.Path)
	if err != nil {
		return commD, commR, err
	}
	switch rec.State {
	case StateSealed:
		return commD, commR, opErr("seal", cfg.Path, ErrAlreadySealed, xerrors.Errorf("replica %s sealed by run %s", rec.Replica, rec.RunID))
	case StateSealing, StateFailed:
		log.Warnw("discarding artifacts of unfinished run", "dir", cfg.Path, "run", rec.RunID, "state", rec.State)
		if err := removeRun(cfg.Layout(), rec, p.Layers); err != nil {
			return commD, commR, ioErr("seal", cfg.Path, err)
		}
	}

	rec = SealRecord{
		State:     StateSealing,
		RunID:     uuid.New(),
		Replica:   filepath.Base(replica),
		ReplicaID: replicaID,
		Nodes:     p.Nodes,
		Layers:    p.Layers,
		Started:   time.Now(),
	}
	if err := writeSealRecord(cfg.Path, rec); err != nil {
		return commD, commR, err
	}

	log.Infow("sealing", "src", src, "replica", replica, "size", humanize.IBytes(uint64(p.DataSize())), "layers", p.Layers, "run", rec.RunID)

	tau, err := sealRun(ctx, src, replica, p, cfg, replicaID, o)
	if err != nil {
		now := time.Now()
		rec.State = StateFailed
		rec.Finished = &now
		rec.Error = err.Error()

		layout := cfg.Layout()
		cerr := multierr.Combine(
			removeFiles(replica, replica+".tmp", layout.Tau(), layout.PAux()),
			writeSealRecord(cfg.Path, rec),
		)
		if cerr != nil {
			log.Errorw("cleaning up failed seal", "dir", cfg.Path, "error", cerr)
		}
		return commD, commR, err
	}

	now := time.Now()
	rec.State = StateSealed
	rec.Finished = &now
	if err := writeSealRecord(cfg.Path, rec); err != nil {
		return commD, commR, err
	}

	log.Infow("sealed", "replica", replica, "took", now.Sub(rec.Started), "run", rec.RunID)
	return tau.CommD, tau.CommR, nil
}

func sealRun(ctx context.Context, src, replica string, p SetupParams, cfg StoreConfig, replicaID ReplicaID, o options) (Tau, error) {
	defer trackPhase(ctx, "seal")()

	layout := cfg.Layout()
	g, err := GraphFor(p)
	if err != nil {
		return Tau{}, opErr("seal graph", layout.Dir, ErrGraphConstruction, err)
	}

	// tree D over the raw data
	commD, err := sealTreeD(ctx, src, layout, o)
	if err != nil {
		return Tau{}, err
	}
	if err := ctx.Err(); err != nil {
		return Tau{}, err
	}

	// labels
	endLabels := trackPhase(ctx, "labels")
	key, err := generateLabels(ctx, g, replicaID, p.Layers, func(layer uint32, labels []byte) error {
		return os.WriteFile(layout.Layer(int(layer)), labels, 0644)
	}, o.progress)
	endLabels()
	if err != nil {
		return Tau{}, ioErr("seal labels", cfg.Path, err)
	}

	// replica = data + key, written in place over a copy of the source
	tmp := replica + ".tmp"
	err = encodeReplica(ctx, src, tmp, key, o)
	pool.Put(key)
	if err != nil {
		return Tau{}, err
	}
	o.progress.report("encode", 1, 1)

	commRLast, err := sealTreeR(ctx, tmp, layout, cfg.RowsToDiscard, o)
	if err != nil {
		return Tau{}, err
	}

	commC, err := sealTreeC(ctx, p, layout, o)
	if err != nil {
		return Tau{}, err
	}

	tau := Tau{
		CommD: commD,
		CommR: proof.Commitment(proof.CommR(commC, commRLast)),
	}

	if err := proof.WritePAux(cfg.Path, commC, commRLast); err != nil {
		return Tau{}, ioErr("seal p_aux", layout.PAux(), err)
	}
	if err := proof.WriteTAux(cfg.Path, cfg.temporaryAux(p)); err != nil {
		return Tau{}, ioErr("seal t_aux", layout.TAux(), err)
	}
	if err := writeTau(cfg.Path, tau); err != nil {
		return Tau{}, err
	}
	if err := os.Rename(tmp, replica); err != nil {
		return Tau{}, ioErr("seal", replica, err)
	}

	return tau, nil
}

func sealTreeD(ctx context.Context, src string, layout paths.Layout, o options) (proof.Commitment, error) {
	defer trackPhase(ctx, "tree_d")()

	data, err := os.ReadFile(src)
	if err != nil {
		return proof.Commitment{}, ioErr("seal read source", src, err)
	}
	for off := 0; off < len(data); off += NodeSize {
		if !proof.IsValidNode(data[off : off+NodeSize]) {
			return proof.Commitment{}, opErr("seal", src, ErrMalformedInput, xerrors.Errorf("node %d is not a field element", off/NodeSize))
		}
	}

	treeD, err := proof.BuildMemtree[proof.Sha256Domain](data, proof.Sha254Hasher{}, o.workers)
	if err != nil {
		return proof.Commitment{}, xerrors.Errorf("building tree d: %w", err)
	}
	defer pool.Put(treeD)

	if err := os.WriteFile(layout.TreeD(), treeD, 0644); err != nil {
		return proof.Commitment{}, ioErr("seal tree d", layout.TreeD(), err)
	}
	o.progress.report("tree_d", 1, 1)

	return proof.Commitment(proof.MemtreeRoot(treeD)), nil
}

func encodeReplica(ctx context.Context, src, dst string, key []byte, o options) error {
	defer trackPhase(ctx, "encode")()

	if err := copySource(src, dst, o.reflink); err != nil {
		return ioErr("seal copy source", dst, err)
	}

	in, err := os.Open(dst)
	if err != nil {
		return ioErr("seal encode", dst, err)
	}
	defer in.Close() // nolint:errcheck

	out, err := os.OpenFile(dst, os.O_WRONLY, 0)
	if err != nil {
		return ioErr("seal encode", dst, err)
	}

	// The writer trails the reader chunk by chunk, so encoding in place is safe.
	if err := EncodeStream(in, bytes.NewReader(key), out, o.workers); err != nil {
		_ = out.Close()
		return xerrors.Errorf("encoding replica: %w", err)
	}
	if err := multierr.Combine(out.Sync(), out.Close()); err != nil {
		return ioErr("seal encode", dst, err)
	}
	return nil
}

func copySource(src, dst string, useReflink bool) error {
	if err := removeFiles(dst); err != nil {
		return err
	}
	if useReflink {
		return reflink.Auto(src, dst)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() // nolint:errcheck

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func sealTreeR(ctx context.Context, replica string, layout paths.Layout, rows uint64, o options) (proof.PoseidonDomain, error) {
	defer trackPhase(ctx, "tree_r")()

	data, err := os.ReadFile(replica)
	if err != nil {
		return proof.PoseidonDomain{}, ioErr("seal tree r", replica, err)
	}

	treeR, err := proof.BuildMemtree[proof.PoseidonDomain](data, proof.PoseidonHasher{}, o.workers)
	if err != nil {
		return proof.PoseidonDomain{}, xerrors.Errorf("building tree r-last: %w", err)
	}
	defer pool.Put(treeR)

	cache, err := proof.NewLevelCache(treeR, int64(len(data)/NodeSize), rows)
	if err != nil {
		return proof.PoseidonDomain{}, xerrors.Errorf("trimming tree r-last: %w", err)
	}
	if err := os.WriteFile(layout.TreeRLast(), cache.Bytes(), 0644); err != nil {
		return proof.PoseidonDomain{}, ioErr("seal tree r", layout.TreeRLast(), err)
	}
	o.progress.report("tree_r", 1, 1)

	return proof.PoseidonDomain(proof.MemtreeRoot(treeR)), nil
}

func sealTreeC(ctx context.Context, p SetupParams, layout paths.Layout, o options) (proof.PoseidonDomain, error) {
	defer trackPhase(ctx, "tree_c")()

	layers, closeLayers, err := openLayers(layout, p.Layers)
	if err != nil {
		return proof.PoseidonDomain{}, err
	}
	defer closeLayers()

	columns, err := columnHashes(layers, p.Nodes, o.workers)
	if err != nil {
		return proof.PoseidonDomain{}, xerrors.Errorf("hashing columns: %w", err)
	}
	defer pool.Put(columns)

	treeC, err := proof.BuildMemtree[proof.PoseidonDomain](columns, proof.PoseidonHasher{}, o.workers)
	if err != nil {
		return proof.PoseidonDomain{}, xerrors.Errorf("building tree c: %w", err)
	}
	defer pool.Put(treeC)

	if err := os.WriteFile(layout.TreeC(), treeC, 0644); err != nil {
		return proof.PoseidonDomain{}, ioErr("seal tree c", layout.TreeC(), err)
	}
	o.progress.report("tree_c", 1, 1)

	return proof.PoseidonDomain(proof.MemtreeRoot(treeC)), nil
}

// openLayers opens the persisted label layers read-only.
func openLayers(layout paths.Layout, layers uint32) ([]io.ReaderAt, func(), error) {
	files := make([]*os.File, 0, layers)
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}

	out := make([]io.ReaderAt, 0, layers)
	for l := 1; l <= int(layers); l++ {
		f, err := os.Open(layout.Layer(l))
		if err != nil {
			closeAll()
			return nil, nil, ioErr("open layer", layout.Layer(l), err)
		}
		files = append(files, f)
		out = append(out, f)
	}
	return out, closeAll, nil
}

func removeFiles(files ...string) error {
	var err error
	for _, f := range files {
		if rerr := os.Remove(f); rerr != nil && !os.IsNotExist(rerr) {
			err = multierr.Append(err, rerr)
		}
	}
	return err
}

// removeRun deletes everything a run recorded in rec may have written.
func removeRun(layout paths.Layout, rec SealRecord, layers uint32) error {
	if rec.Layers > layers {
		layers = rec.Layers
	}
	files := layout.RunArtifacts(int(layers))
	if rec.Replica != "" {
		replica := filepath.Join(layout.Dir, rec.Replica)
		files = append(files, replica, replica+".tmp")
	}
	return removeFiles(files...)
}

// ResetStore removes the replica and every artifact of the store in dir, returning it to Unsealed.
func ResetStore(dir string) error {
	lk, err := fslock.Lock(dir, paths.LockFile)
	if err != nil {
		return opErr("reset store", dir, ErrStoreBusy, err)
	}
	defer lk.Close() // nolint:errcheck

	rec, err := ReadSealRecord(dir)
	if err != nil {
		return err
	}

	layout := paths.Layout{Dir: dir}
	if err := multierr.Combine(removeRun(layout, rec, DefaultLayers), removeFiles(layout.State())); err != nil {
		return ioErr("reset store", dir, err)
	}
	log.Infow("store reset", "dir", dir, "previous", rec.State)
	return nil
}
