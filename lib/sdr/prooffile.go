package sdr

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/filecoin-project/sdr-porep/lib/proof"
)

var proofMagic = [4]byte{'S', 'D', 'R', 'P'}

const proofVersion uint32 = 1

// ProofHeader carries the graph shape and public commitments a proof was built for.
type ProofHeader struct {
	Nodes           uint64
	Layers          uint32
	Degree          uint32
	ExpansionDegree uint32

	ReplicaID ReplicaID
	CommD     proof.Commitment
	CommR     proof.Commitment
	CommC     proof.PoseidonDomain
	CommRLast proof.PoseidonDomain
}

type ProofEntry struct {
	Challenge uint64
	Proof     proof.VanillaStackedProof
}

type ProofFile struct {
	Header  ProofHeader
	Entries []ProofEntry
}

func EncodeProofFile(w io.Writer, pf ProofFile) error {
	h := pf.Header
	fields := []any{
		proofMagic, proofVersion,
		h.Nodes, h.Layers, h.Degree, h.ExpansionDegree,
		h.ReplicaID, h.CommD, h.CommR, h.CommC, h.CommRLast,
		uint64(len(pf.Entries)),
	}
	for _, f := range fields {
		if err := proof.WriteLE(w, f); err != nil {
			return fmt.Errorf("writing proof header: %w", err)
		}
	}

	for i, e := range pf.Entries {
		if err := proof.WriteLE(w, e.Challenge); err != nil {
			return fmt.Errorf("writing entry %d challenge: %w", i, err)
		}
		if err := proof.EncodeVanillaStackedProof(w, e.Proof); err != nil {
			return fmt.Errorf("encode entry %d: %w", i, err)
		}
	}
	return nil
}

func DecodeProofFile(r io.Reader) (ProofFile, error) {
	var pf ProofFile
	h := &pf.Header

	var magic [4]byte
	var version uint32
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return pf, fmt.Errorf("failed to read magic: %w", err)
	}
	if magic != proofMagic {
		return pf, fmt.Errorf("bad magic %x", magic)
	}
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return pf, fmt.Errorf("failed to read version: %w", err)
	}
	if version != proofVersion {
		return pf, fmt.Errorf("unsupported proof version %d", version)
	}

	fields := []any{
		&h.Nodes, &h.Layers, &h.Degree, &h.ExpansionDegree,
		&h.ReplicaID, &h.CommD, &h.CommR, &h.CommC, &h.CommRLast,
		&count,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return pf, fmt.Errorf("failed to read proof header: %w", err)
		}
	}
	if count > MaxChallenges {
		return pf, fmt.Errorf("proof claims %d entries", count)
	}

	pf.Entries = make([]ProofEntry, count)
	for i := range pf.Entries {
		var err error
		if pf.Entries[i].Challenge, err = proof.ReadLE[uint64](r); err != nil {
			return pf, fmt.Errorf("failed to read entry %d challenge: %w", i, err)
		}
		if pf.Entries[i].Proof, err = proof.DecodeVanillaStackedProof(r); err != nil {
			return pf, fmt.Errorf("failed to decode entry %d: %w", i, err)
		}
	}

	if _, err := r.Read(make([]byte, 1)); err != io.EOF {
		return pf, fmt.Errorf("expected EOF after %d entries", count)
	}
	return pf, nil
}

// ReadProofFile loads and decodes a proof artifact.
func ReadProofFile(path string) (ProofFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return ProofFile{}, ioErr("read proof", path, err)
	}
	defer f.Close() // nolint:errcheck

	pf, err := DecodeProofFile(bufio.NewReader(f))
	if err != nil {
		return ProofFile{}, opErr("read proof", path, ErrMalformedProof, err)
	}
	return pf, nil
}

// writeProofFile writes pf next to path and renames it into place.
func writeProofFile(path string, pf ProofFile) (err error) {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return ioErr("write proof", tmp, err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	bw := bufio.NewWriter(f)
	if err := EncodeProofFile(bw, pf); err != nil {
		return ioErr("write proof", tmp, err)
	}
	if err := bw.Flush(); err != nil {
		return ioErr("write proof", tmp, err)
	}
	if err := f.Sync(); err != nil {
		return ioErr("write proof", tmp, err)
	}
	if err := f.Close(); err != nil {
		return ioErr("write proof", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return ioErr("write proof", path, err)
	}
	return nil
}
