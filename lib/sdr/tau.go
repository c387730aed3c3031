package sdr

import (
	"encoding/json"
	"os"

	commcid "github.com/filecoin-project/go-fil-commcid"
	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/sdr-porep/lib/paths"
	"github.com/filecoin-project/sdr-porep/lib/proof"
)

// Tau holds the public commitments of a sealed replica.
type Tau struct {
	CommD proof.Commitment
	CommR proof.Commitment
}

type tauJSON struct {
	CommD string `json:"comm_d"`
	CommR string `json:"comm_r"`
}

func (t Tau) CommDCid() (cid.Cid, error) {
	return commcid.DataCommitmentV1ToCID(t.CommD[:])
}

func (t Tau) CommRCid() (cid.Cid, error) {
	return commcid.ReplicaCommitmentV1ToCID(t.CommR[:])
}

func (t Tau) MarshalJSON() ([]byte, error) {
	d, err := t.CommDCid()
	if err != nil {
		return nil, xerrors.Errorf("comm_d cid: %w", err)
	}
	r, err := t.CommRCid()
	if err != nil {
		return nil, xerrors.Errorf("comm_r cid: %w", err)
	}
	return json.Marshal(tauJSON{CommD: d.String(), CommR: r.String()})
}

func (t *Tau) UnmarshalJSON(b []byte) error {
	var tj tauJSON
	if err := json.Unmarshal(b, &tj); err != nil {
		return err
	}

	d, err := cid.Decode(tj.CommD)
	if err != nil {
		return xerrors.Errorf("comm_d: %w", err)
	}
	r, err := cid.Decode(tj.CommR)
	if err != nil {
		return xerrors.Errorf("comm_r: %w", err)
	}

	commD, err := commcid.CIDToDataCommitmentV1(d)
	if err != nil {
		return xerrors.Errorf("comm_d: %w", err)
	}
	commR, err := commcid.CIDToReplicaCommitmentV1(r)
	if err != nil {
		return xerrors.Errorf("comm_r: %w", err)
	}

	copy(t.CommD[:], commD)
	copy(t.CommR[:], commR)
	return nil
}

// ReadTau loads the commitments stored alongside a replica.
func ReadTau(dir string) (Tau, error) {
	path := paths.Layout{Dir: dir}.Tau()

	b, err := os.ReadFile(path)
	if err != nil {
		return Tau{}, ioErr("read tau", path, err)
	}
	var t Tau
	if err := json.Unmarshal(b, &t); err != nil {
		return Tau{}, opErr("read tau", path, ErrMalformedArtifact, err)
	}
	return t, nil
}

func writeTau(dir string, t Tau) error {
	path := paths.Layout{Dir: dir}.Tau()

	b, err := json.Marshal(t)
	if err != nil {
		return xerrors.Errorf("encoding tau: %w", err)
	}
	if err := writeFileAtomic(path, b); err != nil {
		return ioErr("write tau", path, err)
	}
	return nil
}
