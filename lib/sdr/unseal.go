package sdr

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	fallocate "github.com/detailyang/go-fallocate"
	pool "github.com/libp2p/go-buffer-pool"
	"go.uber.org/multierr"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/sdr-porep/lib/paths"
)

// Unseal recovers the original data of a sealed replica into out. The key is
// read from the persisted last layer when present and regenerated otherwise.
func Unseal(ctx context.Context, replicaPath string, p SetupParams, replicaID ReplicaID, out string, opts ...Option) (err error) {
	o := applyOptions(opts)
	defer trackPhase(ctx, "unseal")()

	if err := p.Validate(); err != nil {
		return err
	}
	if err := checkSealed("unseal", replicaPath, p, replicaID); err != nil {
		return err
	}

	if absOut, _ := filepath.Abs(out); absOut == absPath(replicaPath) {
		return opErr("unseal", out, ErrInvalidArgument, xerrors.New("output would overwrite the replica"))
	}

	start := time.Now()
	layout := paths.Layout{Dir: paths.StoreDir(replicaPath)}

	key, release, err := unsealKey(ctx, layout, p, replicaID, o)
	if err != nil {
		return err
	}
	defer release()

	replica, err := os.Open(replicaPath)
	if err != nil {
		return ioErr("unseal", replicaPath, err)
	}
	defer replica.Close() // nolint:errcheck

	f, err := os.Create(out)
	if err != nil {
		return ioErr("unseal", out, err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(out)
		}
	}()

	if err := fallocate.Fallocate(f, 0, int64(p.DataSize())); err != nil {
		log.Warnw("preallocating unsealed output failed", "path", out, "error", err)
	}

	if err := DecodeStream(replica, key, f, o.workers); err != nil {
		return xerrors.Errorf("decoding replica: %w", err)
	}
	if err := multierr.Combine(f.Sync(), f.Close()); err != nil {
		return ioErr("unseal", out, err)
	}

	log.Infow("unsealed", "replica", replicaPath, "out", out, "took", time.Since(start))
	return nil
}

func unsealKey(ctx context.Context, layout paths.Layout, p SetupParams, replicaID ReplicaID, o options) (io.Reader, func(), error) {
	last := layout.Layer(int(p.Layers))
	if f, err := os.Open(last); err == nil {
		st, err := f.Stat()
		if err == nil && uint64(st.Size()) == uint64(p.DataSize()) {
			return f, func() { _ = f.Close() }, nil
		}
		_ = f.Close()
	}

	log.Infow("last layer missing, regenerating labels", "dir", layout.Dir)
	g, err := GraphFor(p)
	if err != nil {
		return nil, nil, opErr("unseal graph", layout.Dir, ErrGraphConstruction, err)
	}
	key, err := generateLabels(ctx, g, replicaID, p.Layers, nil, o.progress)
	if err != nil {
		return nil, nil, xerrors.Errorf("regenerating labels: %w", err)
	}
	return bytes.NewReader(key), func() { pool.Put(key) }, nil
}

func absPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}
