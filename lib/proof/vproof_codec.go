package proof

import (
	"fmt"
	"io"
)

// Limits applied while decoding; real proofs sit far below them.
const (
	maxPathLen     = 64
	maxPathHashes  = 16
	maxColumnRows  = 64
	maxParents     = 256
	maxColumnProof = 256
)

func EncodeVanillaStackedProof(w io.Writer, p VanillaStackedProof) error {
	if err := EncodeMerkleProof(w, p.CommDProofs); err != nil {
		return fmt.Errorf("encode CommDProofs: %w", err)
	}
	if err := EncodeMerkleProof(w, p.CommRLastProof); err != nil {
		return fmt.Errorf("encode CommRLastProof: %w", err)
	}
	if err := EncodeReplicaColumnProof(w, p.ReplicaColumnProofs); err != nil {
		return fmt.Errorf("encode ReplicaColumnProofs: %w", err)
	}

	if err := WriteLE(w, uint64(len(p.LabelingProofs))); err != nil {
		return fmt.Errorf("writing LabelingProofs length: %w", err)
	}
	for i, lp := range p.LabelingProofs {
		if err := encodeParented(w, lp.Parents, lp.LayerIndex, lp.Node); err != nil {
			return fmt.Errorf("encode LabelingProof %d: %w", i, err)
		}
	}

	ep := p.EncodingProof
	if err := encodeParented(w, ep.Parents, ep.LayerIndex, ep.Node); err != nil {
		return fmt.Errorf("encode EncodingProof: %w", err)
	}
	return nil
}

func DecodeVanillaStackedProof(r io.Reader) (VanillaStackedProof, error) {
	var out VanillaStackedProof
	var err error

	if out.CommDProofs, err = DecodeMerkleProof[Sha256Domain](r); err != nil {
		return out, fmt.Errorf("failed to decode CommDProofs: %w", err)
	}
	if out.CommRLastProof, err = DecodeMerkleProof[PoseidonDomain](r); err != nil {
		return out, fmt.Errorf("failed to decode CommRLastProof: %w", err)
	}
	if out.ReplicaColumnProofs, err = DecodeReplicaColumnProof[PoseidonDomain](r); err != nil {
		return out, fmt.Errorf("failed to decode ReplicaColumnProofs: %w", err)
	}

	n, err := ReadLen(r, maxColumnRows)
	if err != nil {
		return out, fmt.Errorf("failed to read number of LabelingProofs: %w", err)
	}
	out.LabelingProofs = make([]LabelingProof[PoseidonDomain], n)
	for i := range out.LabelingProofs {
		lp := &out.LabelingProofs[i]
		if lp.Parents, lp.LayerIndex, lp.Node, err = decodeParented[PoseidonDomain](r); err != nil {
			return out, fmt.Errorf("failed to decode LabelingProof %d: %w", i, err)
		}
	}

	ep := &out.EncodingProof
	if ep.Parents, ep.LayerIndex, ep.Node, err = decodeParented[PoseidonDomain](r); err != nil {
		return out, fmt.Errorf("failed to decode EncodingProof: %w", err)
	}

	return out, nil
}

func EncodeMerkleProof[H Domain](w io.Writer, mp MerkleProof[H]) error {
	if err := WriteDomain(w, mp.Root); err != nil {
		return fmt.Errorf("encode root: %w", err)
	}
	if err := WriteDomain(w, mp.Leaf); err != nil {
		return fmt.Errorf("encode leaf: %w", err)
	}
	if err := WriteLE(w, uint64(len(mp.Path))); err != nil {
		return fmt.Errorf("writing path length: %w", err)
	}
	for _, el := range mp.Path {
		if err := WriteLE(w, uint64(len(el.Hashes))); err != nil {
			return fmt.Errorf("writing number of path-element hashes: %w", err)
		}
		for _, h := range el.Hashes {
			if err := WriteDomain(w, h); err != nil {
				return fmt.Errorf("encode path-element hash: %w", err)
			}
		}
		if err := WriteLE(w, el.Index); err != nil {
			return fmt.Errorf("writing path-element index: %w", err)
		}
	}
	return nil
}

func DecodeMerkleProof[H Domain](r io.Reader) (MerkleProof[H], error) {
	var out MerkleProof[H]
	var err error

	if out.Root, err = ReadDomain[H](r); err != nil {
		return out, fmt.Errorf("failed to read root: %w", err)
	}
	if out.Leaf, err = ReadDomain[H](r); err != nil {
		return out, fmt.Errorf("failed to read leaf: %w", err)
	}

	pathLen, err := ReadLen(r, maxPathLen)
	if err != nil {
		return out, fmt.Errorf("failed to read path length: %w", err)
	}
	out.Path = make([]PathElement[H], pathLen)
	for i := range out.Path {
		nh, err := ReadLen(r, maxPathHashes)
		if err != nil {
			return out, fmt.Errorf("failed to read path-element %d hash count: %w", i, err)
		}
		out.Path[i].Hashes = make([]H, nh)
		for j := range out.Path[i].Hashes {
			if out.Path[i].Hashes[j], err = ReadDomain[H](r); err != nil {
				return out, fmt.Errorf("failed to read path-element %d hash: %w", i, err)
			}
		}
		if out.Path[i].Index, err = ReadLE[uint64](r); err != nil {
			return out, fmt.Errorf("failed to read path-element %d index: %w", i, err)
		}
	}

	return out, nil
}

func EncodeReplicaColumnProof[H Domain](w io.Writer, rcp ReplicaColumnProof[H]) error {
	if err := EncodeColumnProof(w, rcp.C_X); err != nil {
		return fmt.Errorf("encode c_x: %w", err)
	}

	for _, set := range [][]ColumnProof[H]{rcp.DrgParents, rcp.ExpParents} {
		if err := WriteLE(w, uint64(len(set))); err != nil {
			return fmt.Errorf("writing parents length: %w", err)
		}
		for _, cp := range set {
			if err := EncodeColumnProof(w, cp); err != nil {
				return fmt.Errorf("encode parent column: %w", err)
			}
		}
	}

	return nil
}

func DecodeReplicaColumnProof[H Domain](r io.Reader) (ReplicaColumnProof[H], error) {
	var out ReplicaColumnProof[H]
	var err error

	if out.C_X, err = DecodeColumnProof[H](r); err != nil {
		return out, fmt.Errorf("failed to decode c_x: %w", err)
	}

	decodeSet := func(name string) ([]ColumnProof[H], error) {
		n, err := ReadLen(r, maxColumnProof)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s length: %w", name, err)
		}
		set := make([]ColumnProof[H], n)
		for i := range set {
			if set[i], err = DecodeColumnProof[H](r); err != nil {
				return nil, fmt.Errorf("failed to decode %s %d: %w", name, i, err)
			}
		}
		return set, nil
	}

	if out.DrgParents, err = decodeSet("drg_parents"); err != nil {
		return out, err
	}
	if out.ExpParents, err = decodeSet("exp_parents"); err != nil {
		return out, err
	}

	return out, nil
}

func EncodeColumnProof[H Domain](w io.Writer, cp ColumnProof[H]) error {
	if err := WriteLE(w, cp.Column.Index); err != nil {
		return fmt.Errorf("writing column index: %w", err)
	}
	if err := WriteLE(w, uint64(len(cp.Column.Rows))); err != nil {
		return fmt.Errorf("writing column rows length: %w", err)
	}
	for _, row := range cp.Column.Rows {
		if err := WriteDomain(w, row); err != nil {
			return fmt.Errorf("encode column row: %w", err)
		}
	}
	if err := EncodeMerkleProof(w, cp.InclusionProof); err != nil {
		return fmt.Errorf("encode inclusion proof: %w", err)
	}
	return nil
}

func DecodeColumnProof[H Domain](r io.Reader) (ColumnProof[H], error) {
	var out ColumnProof[H]
	var err error

	if out.Column.Index, err = ReadLE[uint64](r); err != nil {
		return out, fmt.Errorf("failed to read column index: %w", err)
	}
	rows, err := ReadLen(r, maxColumnRows)
	if err != nil {
		return out, fmt.Errorf("failed to read column rows length: %w", err)
	}
	out.Column.Rows = make([]H, rows)
	for i := range out.Column.Rows {
		if out.Column.Rows[i], err = ReadDomain[H](r); err != nil {
			return out, fmt.Errorf("failed to read column row %d: %w", i, err)
		}
	}
	if out.InclusionProof, err = DecodeMerkleProof[H](r); err != nil {
		return out, fmt.Errorf("failed to decode inclusion proof: %w", err)
	}

	return out, nil
}

// labeling and encoding proofs share one layout: parents, layer_index (u32), node (u64)
func encodeParented[H Domain](w io.Writer, parents []H, layer uint32, node uint64) error {
	if err := WriteLE(w, uint64(len(parents))); err != nil {
		return fmt.Errorf("writing parents length: %w", err)
	}
	for _, p := range parents {
		if err := WriteDomain(w, p); err != nil {
			return fmt.Errorf("encode parent: %w", err)
		}
	}
	if err := WriteLE(w, layer); err != nil {
		return fmt.Errorf("writing layer_index: %w", err)
	}
	if err := WriteLE(w, node); err != nil {
		return fmt.Errorf("writing node: %w", err)
	}
	return nil
}

func decodeParented[H Domain](r io.Reader) ([]H, uint32, uint64, error) {
	n, err := ReadLen(r, maxParents)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to read parents length: %w", err)
	}
	parents := make([]H, n)
	for i := range parents {
		if parents[i], err = ReadDomain[H](r); err != nil {
			return nil, 0, 0, fmt.Errorf("failed to read parent %d: %w", i, err)
		}
	}
	layer, err := ReadLE[uint32](r)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to read layer_index: %w", err)
	}
	node, err := ReadLE[uint64](r)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to read node: %w", err)
	}
	return parents, layer, node, nil
}
