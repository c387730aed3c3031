package sdr

import (
	"context"
	"encoding/binary"
	"io"

	pool "github.com/libp2p/go-buffer-pool"
	"github.com/minio/sha256-simd"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/sdr-porep/lib/proof"
)

// computeLabel hashes replicaID || BE32(layer) || BE64(node) || parents and
// clears the top two bits so the label is a field element.
func computeLabel(replicaID ReplicaID, layer uint32, node uint64, parents []proof.PoseidonDomain) proof.PoseidonDomain {
	var hdr [12]byte
	binary.BigEndian.PutUint32(hdr[:4], layer)
	binary.BigEndian.PutUint64(hdr[4:], node)

	h := sha256.New()
	h.Write(replicaID[:])
	h.Write(hdr[:])
	for i := range parents {
		h.Write(parents[i][:])
	}

	var out proof.PoseidonDomain
	h.Sum(out[:0])
	out[NodeSize-1] &= 0x3F
	return out
}

func nodeOf(buf []byte, i uint64) proof.PoseidonDomain {
	var out proof.PoseidonDomain
	copy(out[:], buf[i*NodeSize:(i+1)*NodeSize])
	return out
}

// labelParents collects the labels node i is derived from: its base parents
// in the current layer followed, above layer 1, by its expansion parents in
// the previous layer.
func labelParents(g *Graph, layer uint32, i uint64, cur, prev []byte, dst []proof.PoseidonDomain) []proof.PoseidonDomain {
	dst = dst[:0]
	for _, p := range g.BaseParents(i) {
		dst = append(dst, nodeOf(cur, uint64(p)))
	}
	if layer > 1 {
		for _, p := range g.ExpParents(i) {
			dst = append(dst, nodeOf(prev, uint64(p)))
		}
	}
	return dst
}

// generateLabels builds all layers in order, handing each finished layer to
// persist. Layer l+1 starts only once layer l is complete. The last layer,
// the encoding key, is returned and must be released to the pool.
func generateLabels(ctx context.Context, g *Graph, replicaID ReplicaID, layers uint32, persist func(layer uint32, labels []byte) error, progress ProgressFunc) ([]byte, error) {
	size := int(g.Nodes * NodeSize)
	cur := pool.Get(size)
	prev := pool.Get(size)
	defer pool.Put(prev)

	parents := make([]proof.PoseidonDomain, 0, g.Degree+g.ExpansionDegree)
	for layer := uint32(1); layer <= layers; layer++ {
		if err := ctx.Err(); err != nil {
			pool.Put(cur)
			return nil, err
		}

		for i := uint64(0); i < g.Nodes; i++ {
			parents = labelParents(g, layer, i, cur, prev, parents)
			l := computeLabel(replicaID, layer, i, parents)
			copy(cur[i*NodeSize:], l[:])
		}

		if persist != nil {
			if err := persist(layer, cur); err != nil {
				pool.Put(cur)
				return nil, xerrors.Errorf("persisting layer %d: %w", layer, err)
			}
		}
		progress.report("labels", uint64(layer), uint64(layers))

		if layer < layers {
			cur, prev = prev, cur
		}
	}

	return cur, nil
}

const columnChunk = 1024

// columnHashes computes the tree C leaves from the persisted layers.
func columnHashes(layerFiles []io.ReaderAt, nodes uint64, workers int) ([]byte, error) {
	out := pool.Get(int(nodes * NodeSize))

	var eg errgroup.Group
	eg.SetLimit(max(workers, 1))
	for start := uint64(0); start < nodes; start += columnChunk {
		start, end := start, min(start+columnChunk, nodes)
		eg.Go(func() error {
			n := end - start
			bufs := make([][]byte, len(layerFiles))
			for l, f := range layerFiles {
				bufs[l] = make([]byte, n*NodeSize)
				if _, err := f.ReadAt(bufs[l], int64(start*NodeSize)); err != nil {
					return xerrors.Errorf("reading layer %d nodes %d..%d: %w", l+1, start, end, err)
				}
			}

			rows := make([]proof.PoseidonDomain, len(layerFiles))
			for i := uint64(0); i < n; i++ {
				for l := range bufs {
					rows[l] = nodeOf(bufs[l], i)
				}
				h, err := proof.HashColumn(rows)
				if err != nil {
					return err
				}
				copy(out[(start+i)*NodeSize:], h[:])
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		pool.Put(out)
		return nil, err
	}
	return out, nil
}

// readColumn returns the labels of node i across all layers.
func readColumn(layerFiles []io.ReaderAt, i uint64) ([]proof.PoseidonDomain, error) {
	rows := make([]proof.PoseidonDomain, len(layerFiles))
	for l, f := range layerFiles {
		if _, err := f.ReadAt(rows[l][:], int64(i*NodeSize)); err != nil {
			return nil, xerrors.Errorf("reading layer %d node %d: %w", l+1, i, err)
		}
	}
	return rows, nil
}
